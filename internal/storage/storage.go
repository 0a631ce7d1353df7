// Package storage declares the persistence contracts shared by the memory,
// postgres and sqlite backends.
//
// Reads outside a transaction see committed state only. Every write goes
// through a Tx so an entry, the balance change it implies and the loan state
// it advances land together or not at all.
package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tinoosan/loanledger/internal/ledger"
)

// AccountRepo reads accounts.
type AccountRepo interface {
	GetAccount(ctx context.Context, id uuid.UUID) (ledger.Account, error)
	ListAccounts(ctx context.Context) ([]ledger.Account, error)
}

// EntryRepo reads ledger entries.
type EntryRepo interface {
	// ListEntries returns an account's entries oldest first.
	ListEntries(ctx context.Context, accountID uuid.UUID) ([]ledger.Entry, error)
}

// LoanRepo reads loans.
type LoanRepo interface {
	GetLoan(ctx context.Context, id uuid.UUID) (ledger.Loan, error)
	ListLoansByAccount(ctx context.Context, accountID uuid.UUID) ([]ledger.Loan, error)
	// ListDueLoans returns ACTIVE loans whose next due date is on or before asOf.
	ListDueLoans(ctx context.Context, asOf time.Time) ([]ledger.Loan, error)
}

// Tx is a unit of work. Get*ForUpdate reads lock the row until Commit or Rollback.
type Tx interface {
	GetAccountForUpdate(ctx context.Context, id uuid.UUID) (ledger.Account, error)
	CreateAccount(ctx context.Context, a ledger.Account) error
	// AdjustBalance adds delta to the account balance and returns the updated account.
	AdjustBalance(ctx context.Context, id uuid.UUID, delta decimal.Decimal) (ledger.Account, error)
	AppendEntry(ctx context.Context, e ledger.Entry) (uuid.UUID, error)

	CreateLoan(ctx context.Context, l ledger.Loan) error
	GetLoanForUpdate(ctx context.Context, id uuid.UUID) (ledger.Loan, error)
	UpdateLoan(ctx context.Context, l ledger.Loan) error

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// TxBeginner opens transactions.
type TxBeginner interface {
	BeginTx(ctx context.Context) (Tx, error)
}

// Store is the full surface a backend provides.
type Store interface {
	AccountRepo
	EntryRepo
	LoanRepo
	TxBeginner
	Ready(ctx context.Context) error
}

// WithTx runs fn inside a transaction, committing on success and rolling back
// on error or panic.
func WithTx(ctx context.Context, b TxBeginner, fn func(tx Tx) error) (err error) {
	tx, err := b.BeginTx(ctx)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	committed = true
	return nil
}
