package loan

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tinoosan/loanledger/internal/amortization"
	"github.com/tinoosan/loanledger/internal/dictionary"
	"github.com/tinoosan/loanledger/internal/errs"
	"github.com/tinoosan/loanledger/internal/ledger"
)

func (s *service) Get(ctx context.Context, loanID uuid.UUID) (ledger.Loan, error) {
	if loanID == uuid.Nil {
		return ledger.Loan{}, errs.Invalid("loan_id", "is required")
	}
	return s.repo.GetLoan(ctx, loanID)
}

// ListByAccount returns an account's loans; the account must exist.
func (s *service) ListByAccount(ctx context.Context, accountID uuid.UUID) ([]ledger.Loan, error) {
	if accountID == uuid.Nil {
		return nil, errs.Invalid("account_id", "is required")
	}
	if _, err := s.repo.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}
	return s.repo.ListLoansByAccount(ctx, accountID)
}

func (s *service) DueLoans(ctx context.Context, asOf time.Time) ([]ledger.Loan, error) {
	return s.repo.ListDueLoans(ctx, ledger.Day(asOf))
}

func (s *service) Outstanding(ctx context.Context, loanID uuid.UUID) (decimal.Decimal, error) {
	l, err := s.Get(ctx, loanID)
	if err != nil {
		return decimal.Zero, err
	}
	return l.Outstanding(), nil
}

func (s *service) IsOverdue(ctx context.Context, loanID uuid.UUID) (bool, error) {
	l, err := s.Get(ctx, loanID)
	if err != nil {
		return false, err
	}
	return l.IsOverdue(s.today()), nil
}

// Upcoming lists ACTIVE loans due in [today, today+UpcomingWindow), soonest first.
func (s *service) Upcoming(ctx context.Context, accountID uuid.UUID) ([]UpcomingEMI, error) {
	loans, err := s.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	today := s.today()
	limit := ledger.AddDays(today, UpcomingWindow)
	out := make([]UpcomingEMI, 0)
	for _, l := range loans {
		if l.Status != ledger.LoanActive || l.NextDueDate == nil {
			continue
		}
		due := *l.NextDueDate
		if due.Before(today) || !due.Before(limit) {
			continue
		}
		out = append(out, UpcomingEMI{LoanID: l.ID, Lender: l.Lender, Amount: l.EMI, DueDate: due})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DueDate.Before(out[j].DueDate) })
	return out, nil
}

func (s *service) Overdue(ctx context.Context, accountID uuid.UUID) ([]ledger.Loan, error) {
	loans, err := s.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	today := s.today()
	out := make([]ledger.Loan, 0)
	for _, l := range loans {
		if l.IsOverdue(today) {
			out = append(out, l)
		}
	}
	return out, nil
}

// TotalOutstanding sums Outstanding over the account's ACTIVE loans.
func (s *service) TotalOutstanding(ctx context.Context, accountID uuid.UUID) (decimal.Decimal, error) {
	loans, err := s.ListByAccount(ctx, accountID)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, l := range loans {
		if l.Status == ledger.LoanActive {
			total = total.Add(l.Outstanding())
		}
	}
	return total, nil
}

func (s *service) Summary(ctx context.Context, accountID uuid.UUID) ([]Summary, error) {
	loans, err := s.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	today := s.today()
	out := make([]Summary, 0, len(loans))
	for _, l := range loans {
		out = append(out, Summary{
			LoanID:            l.ID,
			Lender:            l.Lender,
			EMI:               l.EMI,
			Frequency:         dictionary.FrequencyLabel(l.IntervalDays),
			NextDueDate:       l.NextDueDate,
			Status:            l.Status,
			Completed:         l.CompletedInstallments,
			Total:             l.TotalInstallments,
			Outstanding:       l.Outstanding(),
			CompletionPercent: l.CompletionPercent(),
			Overdue:           l.IsOverdue(today),
		})
	}
	return out, nil
}

func (s *service) Schedule(ctx context.Context, loanID uuid.UUID) ([]amortization.Installment, error) {
	l, err := s.Get(ctx, loanID)
	if err != nil {
		return nil, err
	}
	return amortization.Schedule(l)
}
