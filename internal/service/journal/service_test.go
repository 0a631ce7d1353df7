package journal

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tinoosan/loanledger/internal/errs"
	"github.com/tinoosan/loanledger/internal/ledger"
	"github.com/tinoosan/loanledger/internal/meta"
)

type fakeRepo struct {
	acc     ledger.Account
	entries []ledger.Entry
}

func (f *fakeRepo) GetAccount(_ context.Context, id uuid.UUID) (ledger.Account, error) {
	if id != f.acc.ID {
		return ledger.Account{}, errs.ErrAccountNotFound
	}
	return f.acc, nil
}

func (f *fakeRepo) ListEntries(_ context.Context, _ uuid.UUID) ([]ledger.Entry, error) {
	return f.entries, nil
}

func entry(typ ledger.EntryType, amt string, cat ledger.Category, loanID uuid.UUID) ledger.Entry {
	md := meta.New(nil)
	if loanID != uuid.Nil {
		md.Set(ledger.MetaLoanID, loanID.String())
	}
	return ledger.Entry{ID: uuid.New(), Type: typ, Amount: decimal.RequireFromString(amt), Category: cat, Metadata: md}
}

func TestReconcile(t *testing.T) {
	loanID := uuid.New()
	repo := &fakeRepo{
		acc: ledger.Account{ID: uuid.New(), Balance: decimal.RequireFromString("1100.00")},
		entries: []ledger.Entry{
			entry(ledger.EntryCredit, "100.00", ledger.CategoryOpeningBalance, uuid.Nil),
			entry(ledger.EntryCredit, "1200.00", ledger.CategoryLoanDisbursement, loanID),
			entry(ledger.EntryDebit, "200.00", ledger.CategoryLoanEMI, loanID),
		},
	}
	svc := New(repo)
	rec, err := svc.Reconcile(context.Background(), repo.acc.ID)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if !rec.Balanced || rec.Entries != 3 || !rec.LedgerSum.Equal(decimal.RequireFromString("1100")) {
		t.Fatalf("unexpected reconciliation: %+v", rec)
	}

	repo.acc.Balance = decimal.RequireFromString("1000.00")
	rec, _ = svc.Reconcile(context.Background(), repo.acc.ID)
	if rec.Balanced || rec.Difference.String() != "-100" {
		t.Fatalf("expected drift of -100, got %+v", rec)
	}

	if _, err := svc.Reconcile(context.Background(), uuid.New()); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestListEntriesFilters(t *testing.T) {
	loanA, loanB := uuid.New(), uuid.New()
	repo := &fakeRepo{
		acc: ledger.Account{ID: uuid.New()},
		entries: []ledger.Entry{
			entry(ledger.EntryCredit, "1000", ledger.CategoryLoanDisbursement, loanA),
			entry(ledger.EntryDebit, "100", ledger.CategoryLoanEMI, loanA),
			entry(ledger.EntryDebit, "50", ledger.CategoryLoanEMI, loanB),
		},
	}
	svc := New(repo)
	all, _ := svc.ListEntries(context.Background(), repo.acc.ID, Filter{})
	if len(all) != 3 {
		t.Fatalf("expected 3, got %d", len(all))
	}
	emis, _ := svc.ListEntries(context.Background(), repo.acc.ID, Filter{Category: ledger.CategoryLoanEMI})
	if len(emis) != 2 {
		t.Fatalf("expected 2 emi entries, got %d", len(emis))
	}
	forA, _ := svc.ListEntries(context.Background(), repo.acc.ID, Filter{LoanID: loanA})
	if len(forA) != 2 {
		t.Fatalf("expected 2 entries for loan A, got %d", len(forA))
	}
	if _, err := svc.ListEntries(context.Background(), repo.acc.ID, Filter{Category: "Loan EMI"}); !errors.Is(err, errs.ErrInvalid) {
		t.Fatalf("expected invalid category, got %v", err)
	}
	if _, err := svc.ListEntries(context.Background(), uuid.New(), Filter{}); !errors.Is(err, errs.ErrAccountNotFound) {
		t.Fatalf("expected account not found, got %v", err)
	}
}
