// Package postgres provides a pgx-backed storage.Store.
//
// Money is persisted as integer minor units of the row's currency; the annual
// rate is a numeric column exchanged as text so no precision is lost. The
// schema lives under db/migrations.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/tinoosan/loanledger/internal/amount"
	"github.com/tinoosan/loanledger/internal/errs"
	"github.com/tinoosan/loanledger/internal/ledger"
	"github.com/tinoosan/loanledger/internal/meta"
	"github.com/tinoosan/loanledger/internal/storage"
)

// Store holds a pgx connection pool. All methods are safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// querier is the subset shared by *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Open establishes a pgx pool using the provided connection string.
func Open(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool}, nil
}

// Close releases the underlying pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Ready pings the pool to verify connectivity.
func (s *Store) Ready(ctx context.Context) error { return s.pool.Ping(ctx) }

const (
	accountCols = `id, name, currency, balance_minor, metadata, created_at`
	entryCols   = `id, account_id, currency, amount_minor, type, category, description, metadata, created_at`
	loanCols    = `id, account_id, currency, lender, principal_minor, annual_rate::text, start_date, end_date,
		interval_days, total_installments, completed_installments, emi_minor, next_due_date, last_payment_date,
		status, created_at, updated_at`
)

// --- reads ---

func (s *Store) GetAccount(ctx context.Context, id uuid.UUID) (ledger.Account, error) {
	return getAccount(ctx, s.pool, `select `+accountCols+` from accounts where id = $1`, id)
}

func (s *Store) ListAccounts(ctx context.Context) ([]ledger.Account, error) {
	rows, err := s.pool.Query(ctx, `select `+accountCols+` from accounts order by created_at, id`)
	if err != nil {
		return nil, err
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
	rows, err := s.pool.Query(ctx, `
		select `+entryCols+`
		from entries
		where account_id = $1
		order by created_at asc, id asc
	`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]ledger.Entry, 0)
	for rows.Next() {
		var e ledger.Entry
		var curr string
		var minor int64
		if err := rows.Scan(&e.ID, &e.AccountID, &curr, &minor, &e.Type, &e.Category, &e.Description, &e.Metadata, &e.CreatedAt); err != nil {
			return nil, err
		}
		if e.Amount, err = amount.FromMinor(strings.TrimSpace(curr), minor); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) GetLoan(ctx context.Context, id uuid.UUID) (ledger.Loan, error) {
	return getLoan(ctx, s.pool, `select `+loanCols+` from loans where id = $1`, id)
}

func (s *Store) ListLoansByAccount(ctx context.Context, accountID uuid.UUID) ([]ledger.Loan, error) {
	return listLoans(ctx, s.pool, `select `+loanCols+` from loans where account_id = $1 order by created_at, id`, accountID)
}

func (s *Store) ListDueLoans(ctx context.Context, asOf time.Time) ([]ledger.Loan, error) {
	return listLoans(ctx, s.pool, `
		select `+loanCols+`
		from loans
		where status = 'ACTIVE' and next_due_date is not null and next_due_date <= $1
		order by next_due_date, id
	`, ledger.Day(asOf))
}

// --- transactions ---

// BeginTx opens a database transaction.
func (s *Store) BeginTx(ctx context.Context) (storage.Tx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &Tx{tx: tx}, nil
}

// Tx wraps a pgx.Tx. Row locks are taken with SELECT ... FOR UPDATE.
type Tx struct{ tx pgx.Tx }

func (t *Tx) GetAccountForUpdate(ctx context.Context, id uuid.UUID) (ledger.Account, error) {
	return getAccount(ctx, t.tx, `select `+accountCols+` from accounts where id = $1 for update`, id)
}

func (t *Tx) CreateAccount(ctx context.Context, a ledger.Account) error {
	if err := a.Metadata.Validate(); err != nil {
		return err
	}
	minor, err := amount.ToMinor(a.Currency, a.Balance)
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(ctx, `
		insert into accounts (id, name, currency, balance_minor, metadata, created_at)
		values ($1,$2,$3,$4,$5,$6)
	`, a.ID, a.Name, strings.ToUpper(a.Currency), minor, a.Metadata, a.CreatedAt)
	return mapErr(err)
}

func (t *Tx) AdjustBalance(ctx context.Context, id uuid.UUID, delta decimal.Decimal) (ledger.Account, error) {
	var curr string
	err := t.tx.QueryRow(ctx, `select currency from accounts where id = $1`, id).Scan(&curr)
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Account{}, errs.ErrAccountNotFound
	}
	if err != nil {
		return ledger.Account{}, err
	}
	minor, err := amount.ToMinor(strings.TrimSpace(curr), delta)
	if err != nil {
		return ledger.Account{}, err
	}
	return getAccount(ctx, t.tx, `
		update accounts set balance_minor = balance_minor + $2
		where id = $1
		returning `+accountCols, id, minor)
}

func (t *Tx) AppendEntry(ctx context.Context, e ledger.Entry) (uuid.UUID, error) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	var curr string
	err := t.tx.QueryRow(ctx, `select currency from accounts where id = $1`, e.AccountID).Scan(&curr)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, errs.ErrAccountNotFound
	}
	if err != nil {
		return uuid.Nil, err
	}
	curr = strings.TrimSpace(curr)
	minor, err := amount.ToMinor(curr, e.Amount)
	if err != nil {
		return uuid.Nil, err
	}
	if _, err := t.tx.Exec(ctx, `
		insert into entries (id, account_id, currency, amount_minor, type, category, description, metadata, created_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, e.ID, e.AccountID, curr, minor, e.Type, e.Category, e.Description, e.Metadata, e.CreatedAt); err != nil {
		return uuid.Nil, fmt.Errorf("insert entry: %w", mapErr(err))
	}
	return e.ID, nil
}

func (t *Tx) CreateLoan(ctx context.Context, l ledger.Loan) error {
	var curr string
	err := t.tx.QueryRow(ctx, `select currency from accounts where id = $1`, l.AccountID).Scan(&curr)
	if errors.Is(err, pgx.ErrNoRows) {
		return errs.ErrAccountNotFound
	}
	if err != nil {
		return err
	}
	curr = strings.TrimSpace(curr)
	principal, err := amount.ToMinor(curr, l.Principal)
	if err != nil {
		return err
	}
	emi, err := amount.ToMinor(curr, l.EMI)
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(ctx, `
		insert into loans (id, account_id, currency, lender, principal_minor, annual_rate, start_date, end_date,
			interval_days, total_installments, completed_installments, emi_minor, next_due_date, last_payment_date,
			status, created_at, updated_at)
		values ($1,$2,$3,$4,$5,$6::text::numeric,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
	`, l.ID, l.AccountID, curr, l.Lender, principal, l.AnnualRate.String(), l.StartDate, l.EndDate,
		l.IntervalDays, l.TotalInstallments, l.CompletedInstallments, emi, l.NextDueDate, l.LastPaymentDate,
		l.Status, l.CreatedAt, l.UpdatedAt)
	return mapErr(err)
}

func (t *Tx) GetLoanForUpdate(ctx context.Context, id uuid.UUID) (ledger.Loan, error) {
	return getLoan(ctx, t.tx, `select `+loanCols+` from loans where id = $1 for update`, id)
}

// UpdateLoan writes the mutable lifecycle columns. Principal, rate and EMI are never rewritten.
func (t *Tx) UpdateLoan(ctx context.Context, l ledger.Loan) error {
	ct, err := t.tx.Exec(ctx, `
		update loans
		set completed_installments=$2, next_due_date=$3, last_payment_date=$4, status=$5, updated_at=$6
		where id=$1
	`, l.ID, l.CompletedInstallments, l.NextDueDate, l.LastPaymentDate, l.Status, l.UpdatedAt)
	if err != nil {
		return mapErr(err)
	}
	if ct.RowsAffected() == 0 {
		return errs.ErrLoanNotFound
	}
	return nil
}

func (t *Tx) Commit(ctx context.Context) error   { return t.tx.Commit(ctx) }
func (t *Tx) Rollback(ctx context.Context) error { return t.tx.Rollback(ctx) }

// --- scanning ---

func getAccount(ctx context.Context, q querier, sql string, args ...any) (ledger.Account, error) {
	a, err := scanAccount(q.QueryRow(ctx, sql, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Account{}, errs.ErrAccountNotFound
	}
	return a, err
}

func scanAccount(row pgx.Row) (ledger.Account, error) {
	var a ledger.Account
	var minor int64
	var md meta.Metadata
	if err := row.Scan(&a.ID, &a.Name, &a.Currency, &minor, &md, &a.CreatedAt); err != nil {
		return ledger.Account{}, err
	}
	a.Currency = strings.TrimSpace(a.Currency)
	a.Metadata = md
	bal, err := amount.FromMinor(a.Currency, minor)
	if err != nil {
		return ledger.Account{}, err
	}
	a.Balance = bal
	return a, nil
}

func getLoan(ctx context.Context, q querier, sql string, args ...any) (ledger.Loan, error) {
	l, err := scanLoan(q.QueryRow(ctx, sql, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Loan{}, errs.ErrLoanNotFound
	}
	return l, err
}

func listLoans(ctx context.Context, q querier, sql string, args ...any) ([]ledger.Loan, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]ledger.Loan, 0)
	for rows.Next() {
		l, err := scanLoan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func scanLoan(row pgx.Row) (ledger.Loan, error) {
	var l ledger.Loan
	var curr, rate string
	var principal, emi int64
	if err := row.Scan(&l.ID, &l.AccountID, &curr, &l.Lender, &principal, &rate, &l.StartDate, &l.EndDate,
		&l.IntervalDays, &l.TotalInstallments, &l.CompletedInstallments, &emi, &l.NextDueDate, &l.LastPaymentDate,
		&l.Status, &l.CreatedAt, &l.UpdatedAt); err != nil {
		return ledger.Loan{}, err
	}
	curr = strings.TrimSpace(curr)
	var err error
	if l.Principal, err = amount.FromMinor(curr, principal); err != nil {
		return ledger.Loan{}, err
	}
	if l.EMI, err = amount.FromMinor(curr, emi); err != nil {
		return ledger.Loan{}, err
	}
	if l.AnnualRate, err = decimal.NewFromString(rate); err != nil {
		return ledger.Loan{}, err
	}
	return l, nil
}

// mapErr translates unique violations into errs.ErrConflict.
func mapErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", errs.ErrConflict, pgErr.ConstraintName)
	}
	return err
}
