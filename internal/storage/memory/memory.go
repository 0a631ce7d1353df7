// Package memory provides an in-memory Store used for development and tests.
// A transaction holds the store's write lock from BeginTx until Commit or
// Rollback, so writers are serialised and readers never see staged changes.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tinoosan/loanledger/internal/errs"
	"github.com/tinoosan/loanledger/internal/ledger"
	"github.com/tinoosan/loanledger/internal/storage"
)

// entryKey orders an account's entries by (CreatedAt, ID).
type entryKey struct {
	At time.Time
	ID uuid.UUID
}

// Store keeps accounts, entries and loans in maps guarded by an RWMutex.
type Store struct {
	mu       sync.RWMutex
	accounts map[uuid.UUID]ledger.Account
	entries  map[uuid.UUID]ledger.Entry
	// Per-account sorted index of entries
	entryKeysByAccount map[uuid.UUID][]entryKey
	loans              map[uuid.UUID]ledger.Loan
	loansByAccount     map[uuid.UUID][]uuid.UUID
}

// New constructs an empty in-memory store.
func New() *Store {
	s := &Store{}
	s.Reset()
	return s
}

// Reset drops all data.
func (s *Store) Reset() {
	s.mu.Lock()
	s.accounts = map[uuid.UUID]ledger.Account{}
	s.entries = map[uuid.UUID]ledger.Entry{}
	s.entryKeysByAccount = map[uuid.UUID][]entryKey{}
	s.loans = map[uuid.UUID]ledger.Loan{}
	s.loansByAccount = map[uuid.UUID][]uuid.UUID{}
	s.mu.Unlock()
}

// Seed helpers for local dev/tests. They bypass the ledger and write rows as given.
func (s *Store) SeedAccount(a ledger.Account) {
	s.mu.Lock()
	s.accounts[a.ID] = cloneAccount(a)
	s.mu.Unlock()
}

func (s *Store) SeedLoan(l ledger.Loan) {
	s.mu.Lock()
	s.putLoanLocked(l)
	s.mu.Unlock()
}

// Ready always succeeds.
func (s *Store) Ready(context.Context) error { return nil }

// --- reads ---

func (s *Store) GetAccount(_ context.Context, id uuid.UUID) (ledger.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[id]
	if !ok {
		return ledger.Account{}, errs.ErrAccountNotFound
	}
	return cloneAccount(a), nil
}

func (s *Store) ListAccounts(_ context.Context) ([]ledger.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ledger.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		out = append(out, cloneAccount(a))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (s *Store) ListEntries(_ context.Context, accountID uuid.UUID) ([]ledger.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := s.entryKeysByAccount[accountID]
	out := make([]ledger.Entry, 0, len(keys))
	for _, k := range keys {
		if e, ok := s.entries[k.ID]; ok {
			e.Metadata = e.Metadata.Clone()
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *Store) GetLoan(_ context.Context, id uuid.UUID) (ledger.Loan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.loans[id]
	if !ok {
		return ledger.Loan{}, errs.ErrLoanNotFound
	}
	return cloneLoan(l), nil
}

func (s *Store) ListLoansByAccount(_ context.Context, accountID uuid.UUID) ([]ledger.Loan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.loansByAccount[accountID]
	out := make([]ledger.Loan, 0, len(ids))
	for _, id := range ids {
		out = append(out, cloneLoan(s.loans[id]))
	}
	return out, nil
}

func (s *Store) ListDueLoans(_ context.Context, asOf time.Time) ([]ledger.Loan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ledger.Loan, 0)
	for _, l := range s.loans {
		if l.IsDue(asOf) {
			out = append(out, cloneLoan(l))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].NextDueDate.Equal(*out[j].NextDueDate) {
			return out[i].NextDueDate.Before(*out[j].NextDueDate)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

// --- transactions ---

// BeginTx takes the write lock; it is released by Commit or Rollback.
func (s *Store) BeginTx(ctx context.Context) (storage.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	return &tx{s: s}, nil
}

type tx struct {
	s    *Store
	undo []func()
	done bool
}

func (t *tx) GetAccountForUpdate(_ context.Context, id uuid.UUID) (ledger.Account, error) {
	a, ok := t.s.accounts[id]
	if !ok {
		return ledger.Account{}, errs.ErrAccountNotFound
	}
	return cloneAccount(a), nil
}

func (t *tx) CreateAccount(_ context.Context, a ledger.Account) error {
	if _, ok := t.s.accounts[a.ID]; ok {
		return errs.ErrConflict
	}
	t.s.accounts[a.ID] = cloneAccount(a)
	t.undo = append(t.undo, func() { delete(t.s.accounts, a.ID) })
	return nil
}

func (t *tx) AdjustBalance(_ context.Context, id uuid.UUID, delta decimal.Decimal) (ledger.Account, error) {
	a, ok := t.s.accounts[id]
	if !ok {
		return ledger.Account{}, errs.ErrAccountNotFound
	}
	prev := a.Balance
	a.Balance = a.Balance.Add(delta)
	t.s.accounts[id] = a
	t.undo = append(t.undo, func() {
		cur := t.s.accounts[id]
		cur.Balance = prev
		t.s.accounts[id] = cur
	})
	return cloneAccount(a), nil
}

func (t *tx) AppendEntry(_ context.Context, e ledger.Entry) (uuid.UUID, error) {
	if _, ok := t.s.accounts[e.AccountID]; !ok {
		return uuid.Nil, errs.ErrAccountNotFound
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	e.Metadata = e.Metadata.Clone()
	t.s.entries[e.ID] = e
	prev := t.s.entryKeysByAccount[e.AccountID]
	t.s.insertEntryIndexLocked(e.AccountID, entryKey{At: e.CreatedAt, ID: e.ID})
	t.undo = append(t.undo, func() {
		delete(t.s.entries, e.ID)
		t.s.entryKeysByAccount[e.AccountID] = prev
	})
	return e.ID, nil
}

func (t *tx) CreateLoan(_ context.Context, l ledger.Loan) error {
	if _, ok := t.s.loans[l.ID]; ok {
		return errs.ErrConflict
	}
	prevIdx := t.s.loansByAccount[l.AccountID]
	t.s.putLoanLocked(l)
	t.undo = append(t.undo, func() {
		delete(t.s.loans, l.ID)
		t.s.loansByAccount[l.AccountID] = prevIdx
	})
	return nil
}

func (t *tx) GetLoanForUpdate(_ context.Context, id uuid.UUID) (ledger.Loan, error) {
	l, ok := t.s.loans[id]
	if !ok {
		return ledger.Loan{}, errs.ErrLoanNotFound
	}
	return cloneLoan(l), nil
}

func (t *tx) UpdateLoan(_ context.Context, l ledger.Loan) error {
	prev, ok := t.s.loans[l.ID]
	if !ok {
		return errs.ErrLoanNotFound
	}
	t.s.loans[l.ID] = cloneLoan(l)
	t.undo = append(t.undo, func() { t.s.loans[l.ID] = prev })
	return nil
}

func (t *tx) Commit(context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	t.undo = nil
	t.s.mu.Unlock()
	return nil
}

func (t *tx) Rollback(context.Context) error {
	if t.done {
		return nil
	}
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.done = true
	t.undo = nil
	t.s.mu.Unlock()
	return nil
}

// --- helpers (caller holds s.mu) ---

func (s *Store) putLoanLocked(l ledger.Loan) {
	if _, exists := s.loans[l.ID]; !exists {
		ids := append([]uuid.UUID(nil), s.loansByAccount[l.AccountID]...)
		s.loansByAccount[l.AccountID] = append(ids, l.ID)
	}
	s.loans[l.ID] = cloneLoan(l)
}

// insertEntryIndexLocked inserts k into the per-account index, keeping order asc by (At, ID).
// The slice is copied so undo closures can restore the previous one.
func (s *Store) insertEntryIndexLocked(accountID uuid.UUID, k entryKey) {
	keys := s.entryKeysByAccount[accountID]
	i := sort.Search(len(keys), func(i int) bool {
		if keys[i].At.After(k.At) {
			return true
		}
		if keys[i].At.Equal(k.At) {
			return keys[i].ID.String() > k.ID.String()
		}
		return false
	})
	out := make([]entryKey, 0, len(keys)+1)
	out = append(out, keys[:i]...)
	out = append(out, k)
	out = append(out, keys[i:]...)
	s.entryKeysByAccount[accountID] = out
}

func cloneAccount(a ledger.Account) ledger.Account {
	a.Metadata = a.Metadata.Clone()
	return a
}

func cloneLoan(l ledger.Loan) ledger.Loan {
	if l.NextDueDate != nil {
		d := *l.NextDueDate
		l.NextDueDate = &d
	}
	if l.LastPaymentDate != nil {
		d := *l.LastPaymentDate
		l.LastPaymentDate = &d
	}
	return l
}
