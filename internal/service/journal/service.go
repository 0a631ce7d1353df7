package journal

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tinoosan/loanledger/internal/errs"
	"github.com/tinoosan/loanledger/internal/ledger"
	"github.com/tinoosan/loanledger/internal/slug"
)

// Repo defines read operations needed by the service.
type Repo interface {
	GetAccount(ctx context.Context, id uuid.UUID) (ledger.Account, error)
	ListEntries(ctx context.Context, accountID uuid.UUID) ([]ledger.Entry, error)
}

// Reconciliation compares a stored balance with the signed sum of the account's entries.
type Reconciliation struct {
	AccountID  uuid.UUID       `json:"account_id"`
	Balance    decimal.Decimal `json:"balance"`
	LedgerSum  decimal.Decimal `json:"ledger_sum"`
	Difference decimal.Decimal `json:"difference"`
	Entries    int             `json:"entries"`
	Balanced   bool            `json:"balanced"`
}

// Filter narrows an entry listing.
type Filter struct {
	Category ledger.Category
	LoanID   uuid.UUID
}

// Service exposes read-only views over the entry log.
type Service interface {
	ListEntries(ctx context.Context, accountID uuid.UUID, f Filter) ([]ledger.Entry, error)
	Reconcile(ctx context.Context, accountID uuid.UUID) (Reconciliation, error)
}

type service struct {
	repo Repo
}

func New(repo Repo) Service { return &service{repo: repo} }

func (s *service) ListEntries(ctx context.Context, accountID uuid.UUID, f Filter) ([]ledger.Entry, error) {
	if f.Category != "" && !slug.IsSlug(string(f.Category)) {
		return nil, errs.Invalid("category", "must be a lowercase code like loan_emi")
	}
	if _, err := s.repo.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}
	entries, err := s.repo.ListEntries(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if f.Category == "" && f.LoanID == uuid.Nil {
		return entries, nil
	}
	out := make([]ledger.Entry, 0, len(entries))
	for _, e := range entries {
		if f.Category != "" && e.Category != f.Category {
			continue
		}
		if f.LoanID != uuid.Nil {
			if v, _ := e.Metadata.Get(ledger.MetaLoanID); v != f.LoanID.String() {
				continue
			}
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *service) Reconcile(ctx context.Context, accountID uuid.UUID) (Reconciliation, error) {
	if accountID == uuid.Nil {
		return Reconciliation{}, errs.Invalid("account_id", "is required")
	}
	acc, err := s.repo.GetAccount(ctx, accountID)
	if err != nil {
		return Reconciliation{}, err
	}
	entries, err := s.repo.ListEntries(ctx, accountID)
	if err != nil {
		return Reconciliation{}, err
	}
	sum := decimal.Zero
	for _, e := range entries {
		sum = sum.Add(e.SignedAmount())
	}
	diff := acc.Balance.Sub(sum)
	return Reconciliation{
		AccountID:  accountID,
		Balance:    acc.Balance,
		LedgerSum:  sum,
		Difference: diff,
		Entries:    len(entries),
		Balanced:   diff.IsZero(),
	}, nil
}
