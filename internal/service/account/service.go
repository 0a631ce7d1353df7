// Package account implements the thin account service: create with an
// optional opening balance, and reads.
package account

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tinoosan/loanledger/internal/amount"
	"github.com/tinoosan/loanledger/internal/errs"
	"github.com/tinoosan/loanledger/internal/ledger"
	"github.com/tinoosan/loanledger/internal/meta"
	"github.com/tinoosan/loanledger/internal/storage"
)

type Repo interface {
	GetAccount(ctx context.Context, id uuid.UUID) (ledger.Account, error)
	ListAccounts(ctx context.Context) ([]ledger.Account, error)
}

// CreateInput describes a new account.
type CreateInput struct {
	Name           string
	Currency       string
	OpeningBalance decimal.Decimal
	Metadata       meta.Metadata
}

type Service interface {
	ValidateCreate(in CreateInput) error
	Create(ctx context.Context, in CreateInput) (ledger.Account, error)
	Get(ctx context.Context, id uuid.UUID) (ledger.Account, error)
	List(ctx context.Context) ([]ledger.Account, error)
}

type service struct {
	repo   Repo
	writer storage.TxBeginner
	now    func() time.Time
}

// Option customises the service.
type Option func(*service)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(s *service) { s.now = now } }

func New(repo Repo, writer storage.TxBeginner, opts ...Option) Service {
	s := &service{repo: repo, writer: writer, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *service) ValidateCreate(in CreateInput) error {
	if strings.TrimSpace(in.Name) == "" {
		return errs.Invalid("name", "is required")
	}
	if !amount.ValidCurrency(in.Currency) {
		return errs.Invalid("currency", "must be an ISO 4217 code")
	}
	if in.OpeningBalance.IsNegative() {
		return errs.Invalid("opening_balance", "must not be negative")
	}
	if !amount.Round(in.OpeningBalance).Equal(in.OpeningBalance) {
		return errs.Invalid("opening_balance", "at most two decimal places")
	}
	return in.Metadata.Validate()
}

// Create stores the account. A positive opening balance is posted as a CREDIT
// entry in the same transaction so the balance always equals the entry sum.
func (s *service) Create(ctx context.Context, in CreateInput) (ledger.Account, error) {
	if err := s.ValidateCreate(in); err != nil {
		return ledger.Account{}, err
	}
	now := s.now().UTC()
	a := ledger.Account{
		ID:        uuid.New(),
		Name:      strings.TrimSpace(in.Name),
		Currency:  strings.ToUpper(strings.TrimSpace(in.Currency)),
		Balance:   decimal.Zero,
		Metadata:  in.Metadata.Clone(),
		CreatedAt: now,
	}
	err := storage.WithTx(ctx, s.writer, func(tx storage.Tx) error {
		if err := tx.CreateAccount(ctx, a); err != nil {
			return err
		}
		if !in.OpeningBalance.IsPositive() {
			return nil
		}
		if _, err := tx.AppendEntry(ctx, ledger.Entry{
			ID:          uuid.New(),
			AccountID:   a.ID,
			Amount:      in.OpeningBalance,
			Type:        ledger.EntryCredit,
			Category:    ledger.CategoryOpeningBalance,
			Description: "Opening balance",
			CreatedAt:   now,
		}); err != nil {
			return err
		}
		updated, err := tx.AdjustBalance(ctx, a.ID, in.OpeningBalance)
		if err != nil {
			return err
		}
		a = updated
		return nil
	})
	if err != nil {
		return ledger.Account{}, err
	}
	return a, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (ledger.Account, error) {
	if id == uuid.Nil {
		return ledger.Account{}, errs.Invalid("account_id", "is required")
	}
	return s.repo.GetAccount(ctx, id)
}

func (s *service) List(ctx context.Context) ([]ledger.Account, error) {
	return s.repo.ListAccounts(ctx)
}
