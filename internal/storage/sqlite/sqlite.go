// Package sqlite provides a single-file storage.Store on mattn/go-sqlite3.
//
// Decimals are stored as TEXT so no precision is lost, dates as YYYY-MM-DD and
// timestamps as RFC 3339. Transactions begin IMMEDIATE, which takes the
// database write lock up front and serialises writers.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/tinoosan/loanledger/internal/errs"
	"github.com/tinoosan/loanledger/internal/ledger"
	"github.com/tinoosan/loanledger/internal/meta"
	"github.com/tinoosan/loanledger/internal/storage"
)

const (
	dateLayout = "2006-01-02"
	tsLayout   = time.RFC3339Nano
)

// Store manages the database handle.
type Store struct {
	db *sql.DB
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Open opens (creating if needed) the database at path and applies the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?_foreign_keys=on&_busy_timeout=5000&_txlock=immediate"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}
	// One connection: transactions never contend with each other inside the process.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("could not connect to database: %w", err)
	}
	s := &Store{db: db}
	if err := s.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("could not initialize schema: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error { return s.db.Close() }

// Ready pings the database.
func (s *Store) Ready(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) initSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		currency TEXT NOT NULL,
		balance TEXT NOT NULL,
		metadata TEXT NOT NULL DEFAULT '{}',
		created_at TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS entries (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL REFERENCES accounts(id),
		amount TEXT NOT NULL,
		type TEXT NOT NULL,
		category TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		metadata TEXT NOT NULL DEFAULT '{}',
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS entries_account_idx ON entries(account_id, created_at, id);
	CREATE TABLE IF NOT EXISTS loans (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL REFERENCES accounts(id),
		lender TEXT NOT NULL,
		principal TEXT NOT NULL,
		annual_rate TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		interval_days INTEGER NOT NULL,
		total_installments INTEGER NOT NULL,
		completed_installments INTEGER NOT NULL DEFAULT 0,
		emi TEXT NOT NULL,
		next_due_date TEXT,
		last_payment_date TEXT,
		status TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS loans_account_idx ON loans(account_id);
	CREATE INDEX IF NOT EXISTS loans_due_idx ON loans(status, next_due_date);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

const (
	accountCols = `id, name, currency, balance, metadata, created_at`
	entryCols   = `id, account_id, amount, type, category, description, metadata, created_at`
	loanCols    = `id, account_id, lender, principal, annual_rate, start_date, end_date, interval_days,
		total_installments, completed_installments, emi, next_due_date, last_payment_date, status, created_at, updated_at`
)

// --- reads ---

func (s *Store) GetAccount(ctx context.Context, id uuid.UUID) (ledger.Account, error) {
	return getAccount(ctx, s.db, id)
}

func (s *Store) ListAccounts(ctx context.Context) ([]ledger.Account, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+accountCols+` FROM accounts ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()
	out := make([]ledger.Account, 0)
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) ListEntries(ctx context.Context, accountID uuid.UUID) ([]ledger.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+entryCols+` FROM entries WHERE account_id = ? ORDER BY created_at ASC, id ASC`, accountID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list entries for account %s: %w", accountID, err)
	}
	defer rows.Close()
	out := make([]ledger.Entry, 0)
	for rows.Next() {
		var e ledger.Entry
		var id, acc, created string
		if err := rows.Scan(&id, &acc, &e.Amount, &e.Type, &e.Category, &e.Description, &e.Metadata, &created); err != nil {
			return nil, fmt.Errorf("failed to scan entry row: %w", err)
		}
		e.ID, e.AccountID = uuid.MustParse(id), uuid.MustParse(acc)
		if e.CreatedAt, err = time.Parse(tsLayout, created); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) GetLoan(ctx context.Context, id uuid.UUID) (ledger.Loan, error) {
	return getLoan(ctx, s.db, id)
}

func (s *Store) ListLoansByAccount(ctx context.Context, accountID uuid.UUID) ([]ledger.Loan, error) {
	return listLoans(ctx, s.db, `SELECT `+loanCols+` FROM loans WHERE account_id = ? ORDER BY created_at, id`, accountID.String())
}

func (s *Store) ListDueLoans(ctx context.Context, asOf time.Time) ([]ledger.Loan, error) {
	return listLoans(ctx, s.db, `
		SELECT `+loanCols+` FROM loans
		WHERE status = 'ACTIVE' AND next_due_date IS NOT NULL AND next_due_date <= ?
		ORDER BY next_due_date, id`, ledger.Day(asOf).Format(dateLayout))
}

// --- transactions ---

// BeginTx starts an IMMEDIATE transaction.
func (s *Store) BeginTx(ctx context.Context) (storage.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &Tx{tx: tx}, nil
}

// Tx wraps a *sql.Tx.
type Tx struct{ tx *sql.Tx }

// GetAccountForUpdate reads the account; the IMMEDIATE lock already excludes other writers.
func (t *Tx) GetAccountForUpdate(ctx context.Context, id uuid.UUID) (ledger.Account, error) {
	return getAccount(ctx, t.tx, id)
}

func (t *Tx) CreateAccount(ctx context.Context, a ledger.Account) error {
	if err := a.Metadata.Validate(); err != nil {
		return err
	}
	_, err := t.tx.ExecContext(ctx, `INSERT INTO accounts (`+accountCols+`) VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID.String(), a.Name, strings.ToUpper(a.Currency), a.Balance, a.Metadata, a.CreatedAt.UTC().Format(tsLayout))
	if err != nil {
		return fmt.Errorf("failed to create account: %w", mapErr(err))
	}
	return nil
}

func (t *Tx) AdjustBalance(ctx context.Context, id uuid.UUID, delta decimal.Decimal) (ledger.Account, error) {
	a, err := getAccount(ctx, t.tx, id)
	if err != nil {
		return ledger.Account{}, err
	}
	a.Balance = a.Balance.Add(delta)
	if _, err := t.tx.ExecContext(ctx, `UPDATE accounts SET balance = ? WHERE id = ?`, a.Balance, id.String()); err != nil {
		return ledger.Account{}, fmt.Errorf("failed to adjust balance: %w", err)
	}
	return a, nil
}

func (t *Tx) AppendEntry(ctx context.Context, e ledger.Entry) (uuid.UUID, error) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	_, err := t.tx.ExecContext(ctx, `INSERT INTO entries (`+entryCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID.String(), e.AccountID.String(), e.Amount, e.Type, e.Category, e.Description, e.Metadata, e.CreatedAt.UTC().Format(tsLayout))
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to append entry: %w", mapErr(err))
	}
	return e.ID, nil
}

func (t *Tx) CreateLoan(ctx context.Context, l ledger.Loan) error {
	_, err := t.tx.ExecContext(ctx, `INSERT INTO loans (`+loanCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID.String(), l.AccountID.String(), l.Lender, l.Principal, l.AnnualRate,
		l.StartDate.Format(dateLayout), l.EndDate.Format(dateLayout), l.IntervalDays,
		l.TotalInstallments, l.CompletedInstallments, l.EMI, fmtDate(l.NextDueDate), fmtDate(l.LastPaymentDate),
		l.Status, l.CreatedAt.UTC().Format(tsLayout), l.UpdatedAt.UTC().Format(tsLayout))
	if err != nil {
		return fmt.Errorf("failed to create loan: %w", mapErr(err))
	}
	return nil
}

func (t *Tx) GetLoanForUpdate(ctx context.Context, id uuid.UUID) (ledger.Loan, error) {
	return getLoan(ctx, t.tx, id)
}

func (t *Tx) UpdateLoan(ctx context.Context, l ledger.Loan) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE loans SET completed_installments = ?, next_due_date = ?, last_payment_date = ?, status = ?, updated_at = ?
		WHERE id = ?`,
		l.CompletedInstallments, fmtDate(l.NextDueDate), fmtDate(l.LastPaymentDate), l.Status, l.UpdatedAt.UTC().Format(tsLayout), l.ID.String())
	if err != nil {
		return fmt.Errorf("failed to update loan: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if n == 0 {
		return errs.ErrLoanNotFound
	}
	return nil
}

func (t *Tx) Commit(context.Context) error   { return t.tx.Commit() }
func (t *Tx) Rollback(context.Context) error { return t.tx.Rollback() }

// --- scanning ---

type scanner interface{ Scan(dest ...any) error }

func getAccount(ctx context.Context, q querier, id uuid.UUID) (ledger.Account, error) {
	a, err := scanAccount(q.QueryRowContext(ctx, `SELECT `+accountCols+` FROM accounts WHERE id = ?`, id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Account{}, errs.ErrAccountNotFound
	}
	return a, err
}

func scanAccount(row scanner) (ledger.Account, error) {
	var a ledger.Account
	var id, created string
	var md meta.Metadata
	if err := row.Scan(&id, &a.Name, &a.Currency, &a.Balance, &md, &created); err != nil {
		return ledger.Account{}, err
	}
	a.ID = uuid.MustParse(id)
	a.Metadata = md
	var err error
	if a.CreatedAt, err = time.Parse(tsLayout, created); err != nil {
		return ledger.Account{}, err
	}
	return a, nil
}

func getLoan(ctx context.Context, q querier, id uuid.UUID) (ledger.Loan, error) {
	l, err := scanLoan(q.QueryRowContext(ctx, `SELECT `+loanCols+` FROM loans WHERE id = ?`, id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Loan{}, errs.ErrLoanNotFound
	}
	return l, err
}

func listLoans(ctx context.Context, q querier, query string, args ...any) ([]ledger.Loan, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list loans: %w", err)
	}
	defer rows.Close()
	out := make([]ledger.Loan, 0)
	for rows.Next() {
		l, err := scanLoan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan loan row: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func scanLoan(row scanner) (ledger.Loan, error) {
	var l ledger.Loan
	var id, acc, start, end, created, updated string
	var next, last sql.NullString
	if err := row.Scan(&id, &acc, &l.Lender, &l.Principal, &l.AnnualRate, &start, &end, &l.IntervalDays,
		&l.TotalInstallments, &l.CompletedInstallments, &l.EMI, &next, &last, &l.Status, &created, &updated); err != nil {
		return ledger.Loan{}, err
	}
	l.ID, l.AccountID = uuid.MustParse(id), uuid.MustParse(acc)
	var err error
	if l.StartDate, err = time.Parse(dateLayout, start); err != nil {
		return ledger.Loan{}, err
	}
	if l.EndDate, err = time.Parse(dateLayout, end); err != nil {
		return ledger.Loan{}, err
	}
	if l.NextDueDate, err = parseDate(next); err != nil {
		return ledger.Loan{}, err
	}
	if l.LastPaymentDate, err = parseDate(last); err != nil {
		return ledger.Loan{}, err
	}
	if l.CreatedAt, err = time.Parse(tsLayout, created); err != nil {
		return ledger.Loan{}, err
	}
	if l.UpdatedAt, err = time.Parse(tsLayout, updated); err != nil {
		return ledger.Loan{}, err
	}
	return l, nil
}

func fmtDate(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(dateLayout), Valid: true}
}

func parseDate(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func mapErr(err error) error {
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return fmt.Errorf("%w: %v", errs.ErrConflict, err)
	}
	return err
}

var _ storage.Store = (*Store)(nil)
