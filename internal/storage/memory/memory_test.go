package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tinoosan/loanledger/internal/errs"
	"github.com/tinoosan/loanledger/internal/ledger"
	"github.com/tinoosan/loanledger/internal/storage"
)

func seedAccount(s *Store, bal string) ledger.Account {
	a := ledger.Account{ID: uuid.New(), Name: "Checking", Currency: "USD", Balance: decimal.RequireFromString(bal)}
	s.SeedAccount(a)
	return a
}

func TestTxCommitAppliesAllWrites(t *testing.T) {
	ctx := context.Background()
	s := New()
	acc := seedAccount(s, "10.00")
	today := ledger.Day(time.Now())
	loan := ledger.Loan{ID: uuid.New(), AccountID: acc.ID, Status: ledger.LoanActive, NextDueDate: ledger.DatePtr(today), TotalInstallments: 2}

	err := storage.WithTx(ctx, s, func(tx storage.Tx) error {
		if err := tx.CreateLoan(ctx, loan); err != nil {
			return err
		}
		if _, err := tx.AppendEntry(ctx, ledger.Entry{AccountID: acc.ID, Amount: decimal.NewFromInt(5), Type: ledger.EntryCredit, CreatedAt: time.Now()}); err != nil {
			return err
		}
		_, err := tx.AdjustBalance(ctx, acc.ID, decimal.NewFromInt(5))
		return err
	})
	if err != nil {
		t.Fatalf("tx: %v", err)
	}
	got, _ := s.GetAccount(ctx, acc.ID)
	if got.Balance.String() != "15" {
		t.Fatalf("balance: %s", got.Balance)
	}
	entries, _ := s.ListEntries(ctx, acc.ID)
	if len(entries) != 1 {
		t.Fatalf("entries: %d", len(entries))
	}
	due, _ := s.ListDueLoans(ctx, today)
	if len(due) != 1 || due[0].ID != loan.ID {
		t.Fatalf("due loans: %+v", due)
	}
	byAcc, _ := s.ListLoansByAccount(ctx, acc.ID)
	if len(byAcc) != 1 {
		t.Fatalf("loans by account: %d", len(byAcc))
	}
}

func TestTxRollbackRestoresState(t *testing.T) {
	ctx := context.Background()
	s := New()
	acc := seedAccount(s, "10.00")
	loan := ledger.Loan{ID: uuid.New(), AccountID: acc.ID, Status: ledger.LoanActive, CompletedInstallments: 1}
	s.SeedLoan(loan)

	boom := errors.New("boom")
	err := storage.WithTx(ctx, s, func(tx storage.Tx) error {
		l, err := tx.GetLoanForUpdate(ctx, loan.ID)
		if err != nil {
			return err
		}
		l.CompletedInstallments = 2
		if err := tx.UpdateLoan(ctx, l); err != nil {
			return err
		}
		if _, err := tx.AppendEntry(ctx, ledger.Entry{AccountID: acc.ID, Amount: decimal.NewFromInt(3), Type: ledger.EntryDebit}); err != nil {
			return err
		}
		if _, err := tx.AdjustBalance(ctx, acc.ID, decimal.NewFromInt(-3)); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	got, _ := s.GetAccount(ctx, acc.ID)
	if !got.Balance.Equal(decimal.RequireFromString("10")) {
		t.Fatalf("balance not restored: %s", got.Balance)
	}
	if entries, _ := s.ListEntries(ctx, acc.ID); len(entries) != 0 {
		t.Fatalf("entry not rolled back")
	}
	l, _ := s.GetLoan(ctx, loan.ID)
	if l.CompletedInstallments != 1 {
		t.Fatalf("loan not restored: %d", l.CompletedInstallments)
	}
}

func TestNotFound(t *testing.T) {
	ctx := context.Background()
	s := New()
	if _, err := s.GetAccount(ctx, uuid.New()); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := s.GetLoan(ctx, uuid.New()); !errors.Is(err, errs.ErrLoanNotFound) {
		t.Fatalf("expected loan not found, got %v", err)
	}
}

func TestReadsReturnCopies(t *testing.T) {
	ctx := context.Background()
	s := New()
	due := ledger.Day(time.Now())
	loan := ledger.Loan{ID: uuid.New(), AccountID: uuid.New(), Status: ledger.LoanActive, NextDueDate: &due}
	s.SeedLoan(loan)
	l, _ := s.GetLoan(ctx, loan.ID)
	*l.NextDueDate = due.AddDate(1, 0, 0)
	again, _ := s.GetLoan(ctx, loan.ID)
	if !again.NextDueDate.Equal(due) {
		t.Fatalf("store leaked a pointer")
	}
}
