// Package loan implements the installment-loan engine: disbursement, EMI
// payment application shared by the manual and scheduled paths, and the
// outstanding/overdue/summary read models.
//
// Every write runs in one storage transaction so the ledger entry, the
// balance adjustment and the loan state change commit together. Payments on
// the same loan are serialised through a lock.Locker keyed by loan id.
package loan

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tinoosan/loanledger/internal/amortization"
	"github.com/tinoosan/loanledger/internal/amount"
	"github.com/tinoosan/loanledger/internal/dictionary"
	"github.com/tinoosan/loanledger/internal/errs"
	"github.com/tinoosan/loanledger/internal/events"
	"github.com/tinoosan/loanledger/internal/ledger"
	"github.com/tinoosan/loanledger/internal/lock"
	"github.com/tinoosan/loanledger/internal/meta"
	"github.com/tinoosan/loanledger/internal/storage"
)

// UpcomingWindow is how far ahead Upcoming looks, in days.
const UpcomingWindow = 7

// ErrNotDue is returned by ApplyScheduledPayment when the loan is no longer due
// once its lock is held (another path already paid it).
var ErrNotDue = fmt.Errorf("loan not due: %w", errs.ErrInvalidState)

// Repo defines read operations needed by the service.
type Repo interface {
	storage.AccountRepo
	storage.LoanRepo
}

// DisburseInput describes a new loan. Either both dates, or a term (TermDays
// or TotalInstallments) must be given; everything else is derived.
type DisburseInput struct {
	AccountID         uuid.UUID
	Lender            string
	Principal         decimal.Decimal
	AnnualRate        decimal.Decimal
	StartDate         *time.Time
	EndDate           *time.Time
	TermDays          int
	IntervalDays      int
	TotalInstallments int
	EMI               *decimal.Decimal
}

// Payment is the outcome of one applied EMI.
type Payment struct {
	Loan        ledger.Loan     `json:"loan"`
	EntryID     uuid.UUID       `json:"entry_id"`
	Amount      decimal.Decimal `json:"amount"`
	Installment int             `json:"installment"`
	Balance     decimal.Decimal `json:"balance"`
}

// Summary is one row of an account's loan overview.
type Summary struct {
	LoanID            uuid.UUID         `json:"loan_id"`
	Lender            string            `json:"lender"`
	EMI               decimal.Decimal   `json:"emi"`
	Frequency         string            `json:"frequency"`
	NextDueDate       *time.Time        `json:"next_due_date"`
	Status            ledger.LoanStatus `json:"status"`
	Completed         int               `json:"completed_installments"`
	Total             int               `json:"total_installments"`
	Outstanding       decimal.Decimal   `json:"outstanding"`
	CompletionPercent decimal.Decimal   `json:"completion_percent"`
	Overdue           bool              `json:"overdue"`
}

// UpcomingEMI is an installment falling due within UpcomingWindow days.
type UpcomingEMI struct {
	LoanID  uuid.UUID       `json:"loan_id"`
	Lender  string          `json:"lender"`
	Amount  decimal.Decimal `json:"amount"`
	DueDate time.Time       `json:"due_date"`
}

// Service exposes the loan lifecycle and its read models.
type Service interface {
	Disburse(ctx context.Context, in DisburseInput) (ledger.Loan, error)
	// PayEMI records a manual payment; the next due date moves to today + interval.
	PayEMI(ctx context.Context, loanID uuid.UUID) (Payment, error)
	// ApplyScheduledPayment pays a due loan; the next due date advances from the previous one.
	ApplyScheduledPayment(ctx context.Context, loanID uuid.UUID, asOf time.Time) (Payment, error)
	MarkDefault(ctx context.Context, loanID uuid.UUID) (ledger.Loan, error)

	Get(ctx context.Context, loanID uuid.UUID) (ledger.Loan, error)
	ListByAccount(ctx context.Context, accountID uuid.UUID) ([]ledger.Loan, error)
	DueLoans(ctx context.Context, asOf time.Time) ([]ledger.Loan, error)
	Outstanding(ctx context.Context, loanID uuid.UUID) (decimal.Decimal, error)
	IsOverdue(ctx context.Context, loanID uuid.UUID) (bool, error)
	Upcoming(ctx context.Context, accountID uuid.UUID) ([]UpcomingEMI, error)
	Overdue(ctx context.Context, accountID uuid.UUID) ([]ledger.Loan, error)
	TotalOutstanding(ctx context.Context, accountID uuid.UUID) (decimal.Decimal, error)
	Summary(ctx context.Context, accountID uuid.UUID) ([]Summary, error)
	Schedule(ctx context.Context, loanID uuid.UUID) ([]amortization.Installment, error)
}

type service struct {
	repo      Repo
	writer    storage.TxBeginner
	locker    lock.Locker
	publisher events.Publisher
	logger    *slog.Logger
	now       func() time.Time
	loc       *time.Location
}

// Option customises the service.
type Option func(*service)

func WithLocker(l lock.Locker) Option         { return func(s *service) { s.locker = l } }
func WithPublisher(p events.Publisher) Option { return func(s *service) { s.publisher = p } }
func WithLogger(l *slog.Logger) Option        { return func(s *service) { s.logger = l } }
func WithClock(now func() time.Time) Option   { return func(s *service) { s.now = now } }

// WithLocation sets the zone whose calendar date counts as today. The
// scheduler must run in the same zone.
func WithLocation(loc *time.Location) Option {
	return func(s *service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

func New(repo Repo, writer storage.TxBeginner, opts ...Option) Service {
	s := &service{
		repo:      repo,
		writer:    writer,
		locker:    lock.NewKeyed(),
		publisher: events.Noop{},
		logger:    slog.Default(),
		now:       time.Now,
		loc:       time.UTC,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *service) today() time.Time { return ledger.Day(s.now().In(s.loc)) }

func lockKey(loanID uuid.UUID) string { return "loan:" + loanID.String() }

// Disburse creates the loan, credits the principal to the account and posts the
// disbursement entry in one transaction.
func (s *service) Disburse(ctx context.Context, in DisburseInput) (ledger.Loan, error) {
	if in.AccountID == uuid.Nil {
		return ledger.Loan{}, errs.Invalid("account_id", "is required")
	}
	acc, err := s.repo.GetAccount(ctx, in.AccountID)
	if err != nil {
		return ledger.Loan{}, err
	}
	l, err := s.buildLoan(in)
	if err != nil {
		return ledger.Loan{}, err
	}

	err = storage.WithTx(ctx, s.writer, func(tx storage.Tx) error {
		if _, err := tx.GetAccountForUpdate(ctx, acc.ID); err != nil {
			return err
		}
		if err := tx.CreateLoan(ctx, l); err != nil {
			return err
		}
		md := meta.New(nil)
		md.Set(ledger.MetaLoanID, l.ID.String())
		if _, err := tx.AppendEntry(ctx, ledger.Entry{
			ID:          uuid.New(),
			AccountID:   acc.ID,
			Amount:      l.Principal,
			Type:        ledger.EntryCredit,
			Category:    ledger.CategoryLoanDisbursement,
			Description: fmt.Sprintf("Loan disbursement from %s (%s payments)", l.Lender, dictionary.FrequencyLabel(l.IntervalDays)),
			Metadata:    md,
			CreatedAt:   l.CreatedAt,
		}); err != nil {
			return err
		}
		_, err := tx.AdjustBalance(ctx, acc.ID, l.Principal)
		return err
	})
	if err != nil {
		return ledger.Loan{}, fmt.Errorf("disburse loan: %w", err)
	}

	s.logger.Info("loan disbursed", "loan_id", l.ID, "account_id", l.AccountID, "principal", amount.String(l.Principal), "emi", amount.String(l.EMI), "installments", l.TotalInstallments)
	s.publish(ctx, events.LoanDisbursed, l, l.Principal, 0, "")
	return l, nil
}

// buildLoan validates the input and derives dates, installment count and EMI.
func (s *service) buildLoan(in DisburseInput) (ledger.Loan, error) {
	lender := strings.TrimSpace(in.Lender)
	switch {
	case lender == "":
		return ledger.Loan{}, errs.Invalid("lender", "is required")
	case in.IntervalDays <= 0:
		return ledger.Loan{}, errs.Invalid("interval_days", "must be greater than zero")
	case !in.Principal.IsPositive():
		return ledger.Loan{}, errs.Invalid("principal", "must be greater than zero")
	case !amount.Round(in.Principal).Equal(in.Principal):
		return ledger.Loan{}, errs.Invalid("principal", "at most two decimal places")
	case in.AnnualRate.IsNegative():
		return ledger.Loan{}, errs.Invalid("annual_rate", "must not be negative")
	case in.TermDays < 0:
		return ledger.Loan{}, errs.Invalid("term_days", "must not be negative")
	case in.TotalInstallments < 0:
		return ledger.Loan{}, errs.Invalid("total_installments", "must not be negative")
	case in.TotalInstallments > amortization.MaxInstallments:
		return ledger.Loan{}, errs.Invalid("total_installments", fmt.Sprintf("must not exceed %d", amortization.MaxInstallments))
	}

	var term int
	switch {
	case in.StartDate != nil && in.EndDate != nil:
		term = ledger.DaysBetween(*in.StartDate, *in.EndDate)
		if term <= 0 {
			return ledger.Loan{}, errs.Invalid("end_date", "must be after start_date")
		}
	case in.TermDays > 0:
		term = in.TermDays
	case in.TotalInstallments > 0:
		term = in.TotalInstallments * in.IntervalDays
	default:
		return ledger.Loan{}, errs.Invalid("term", "provide start and end dates, term_days or total_installments")
	}

	var start, end time.Time
	switch {
	case in.StartDate != nil:
		start = ledger.Day(*in.StartDate)
	case in.EndDate != nil:
		start = ledger.AddDays(*in.EndDate, -term)
	default:
		start = s.today()
	}
	if in.EndDate != nil {
		end = ledger.Day(*in.EndDate)
	} else {
		end = ledger.AddDays(start, term)
	}

	total := in.TotalInstallments
	if total == 0 {
		total = (term + in.IntervalDays - 1) / in.IntervalDays
		if total > amortization.MaxInstallments {
			return ledger.Loan{}, errs.Invalid("term", fmt.Sprintf("spans more than %d installments", amortization.MaxInstallments))
		}
	}

	var emi decimal.Decimal
	if in.EMI != nil {
		if !in.EMI.IsPositive() {
			return ledger.Loan{}, errs.Invalid("emi", "must be greater than zero")
		}
		emi = amount.Round(*in.EMI)
	} else {
		var err error
		if emi, err = amortization.EMI(in.Principal, in.AnnualRate, total, in.IntervalDays); err != nil {
			return ledger.Loan{}, err
		}
	}
	if !emi.IsPositive() {
		return ledger.Loan{}, errs.Invalid("emi", "rounds to zero")
	}

	now := s.now().UTC()
	return ledger.Loan{
		ID:                uuid.New(),
		AccountID:         in.AccountID,
		Lender:            lender,
		Principal:         in.Principal,
		AnnualRate:        in.AnnualRate,
		StartDate:         start,
		EndDate:           end,
		IntervalDays:      in.IntervalDays,
		TotalInstallments: total,
		EMI:               emi,
		NextDueDate:       ledger.DatePtr(ledger.AddDays(start, in.IntervalDays)),
		Status:            ledger.LoanActive,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

// MarkDefault moves an ACTIVE, overdue loan to DEFAULTED.
func (s *service) MarkDefault(ctx context.Context, loanID uuid.UUID) (ledger.Loan, error) {
	unlock, err := s.locker.Lock(ctx, lockKey(loanID))
	if err != nil {
		return ledger.Loan{}, fmt.Errorf("lock loan %s: %w", loanID, err)
	}
	defer unlock()

	today := s.today()
	var out ledger.Loan
	err = storage.WithTx(ctx, s.writer, func(tx storage.Tx) error {
		l, err := tx.GetLoanForUpdate(ctx, loanID)
		if err != nil {
			return err
		}
		if l.Status != ledger.LoanActive {
			return fmt.Errorf("loan %s is %s: %w", loanID, l.Status, errs.ErrInvalidState)
		}
		if !l.IsOverdue(today) {
			return fmt.Errorf("loan %s is not overdue: %w", loanID, errs.ErrInvalidState)
		}
		l.Status = ledger.LoanDefaulted
		l.UpdatedAt = s.now().UTC()
		if err := tx.UpdateLoan(ctx, l); err != nil {
			return err
		}
		out = l
		return nil
	})
	if err != nil {
		return ledger.Loan{}, err
	}
	s.logger.Warn("loan defaulted", "loan_id", out.ID, "account_id", out.AccountID, "next_due_date", out.NextDueDate)
	s.publish(ctx, events.LoanDefaulted, out, out.Outstanding(), 0, "")
	return out, nil
}

// publish emits a loan event after commit. Failures are logged only.
func (s *service) publish(ctx context.Context, typ string, l ledger.Loan, amt decimal.Decimal, installment int, source string) {
	e := events.New(typ, l.ID.String(), events.LoanPayload{
		LoanID:      l.ID,
		AccountID:   l.AccountID,
		Lender:      l.Lender,
		Amount:      amt,
		Installment: installment,
		Total:       l.TotalInstallments,
		Status:      string(l.Status),
		NextDueDate: l.NextDueDate,
		Source:      source,
	}, s.now())
	if err := s.publisher.Publish(ctx, e); err != nil {
		s.logger.Warn("event publish failed", "type", typ, "loan_id", l.ID, "err", err)
	}
}
