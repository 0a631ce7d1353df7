package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tinoosan/loanledger/internal/errs"
	"github.com/tinoosan/loanledger/internal/ledger"
	"github.com/tinoosan/loanledger/internal/meta"
	"github.com/tinoosan/loanledger/internal/storage"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "loans.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteStore_LoanRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)
	now := time.Now().UTC()
	today := ledger.Day(now)

	acc := ledger.Account{ID: uuid.New(), Name: "Checking", Currency: "usd", Balance: decimal.RequireFromString("50.10"), Metadata: meta.New(map[string]string{"owner": "dev"}), CreatedAt: now}
	loan := ledger.Loan{
		ID: uuid.New(), AccountID: acc.ID, Lender: "Credit Union",
		Principal: decimal.RequireFromString("12000.00"), AnnualRate: decimal.RequireFromString("9.125"),
		StartDate: today.AddDate(0, 0, -7), EndDate: today.AddDate(0, 1, 0),
		IntervalDays: 7, TotalInstallments: 5, EMI: decimal.RequireFromString("2409.87"),
		NextDueDate: ledger.DatePtr(today), Status: ledger.LoanActive, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, storage.WithTx(ctx, s, func(tx storage.Tx) error {
		if err := tx.CreateAccount(ctx, acc); err != nil {
			return err
		}
		if err := tx.CreateLoan(ctx, loan); err != nil {
			return err
		}
		e := ledger.Entry{AccountID: acc.ID, Amount: loan.Principal, Type: ledger.EntryCredit, Category: ledger.CategoryLoanDisbursement, Description: "disbursed", CreatedAt: now}
		if _, err := tx.AppendEntry(ctx, e); err != nil {
			return err
		}
		_, err := tx.AdjustBalance(ctx, acc.ID, loan.Principal)
		return err
	}))

	gotAcc, err := s.GetAccount(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, "USD", gotAcc.Currency)
	assert.Equal(t, "12050.10", gotAcc.Balance.StringFixed(2))
	assert.Equal(t, "dev", gotAcc.Metadata["owner"])

	gotLoan, err := s.GetLoan(ctx, loan.ID)
	require.NoError(t, err)
	assert.True(t, gotLoan.AnnualRate.Equal(loan.AnnualRate))
	assert.True(t, gotLoan.EMI.Equal(loan.EMI))
	assert.Equal(t, loan.StartDate, gotLoan.StartDate)
	require.NotNil(t, gotLoan.NextDueDate)
	assert.Equal(t, today, *gotLoan.NextDueDate)
	assert.Nil(t, gotLoan.LastPaymentDate)

	due, err := s.ListDueLoans(ctx, today)
	require.NoError(t, err)
	assert.Len(t, due, 1)
	due, err = s.ListDueLoans(ctx, today.AddDate(0, 0, -1))
	require.NoError(t, err)
	assert.Empty(t, due)

	entries, err := s.ListEntries(ctx, acc.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, ledger.EntryCredit, entries[0].Type)
}

func TestSQLiteStore_RollbackAndNotFound(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)
	now := time.Now().UTC()
	acc := ledger.Account{ID: uuid.New(), Name: "Savings", Currency: "EUR", Balance: decimal.NewFromInt(10), CreatedAt: now}
	require.NoError(t, storage.WithTx(ctx, s, func(tx storage.Tx) error { return tx.CreateAccount(ctx, acc) }))

	boom := errors.New("boom")
	err := storage.WithTx(ctx, s, func(tx storage.Tx) error {
		if _, err := tx.AdjustBalance(ctx, acc.ID, decimal.NewFromInt(-4)); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	got, err := s.GetAccount(ctx, acc.ID)
	require.NoError(t, err)
	assert.True(t, got.Balance.Equal(decimal.NewFromInt(10)))

	_, err = s.GetLoan(ctx, uuid.New())
	assert.ErrorIs(t, err, errs.ErrNotFound)
	_, err = s.GetAccount(ctx, uuid.New())
	assert.ErrorIs(t, err, errs.ErrAccountNotFound)

	err = storage.WithTx(ctx, s, func(tx storage.Tx) error { return tx.CreateAccount(ctx, acc) })
	assert.ErrorIs(t, err, errs.ErrConflict)
}
