package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinoosan/loanledger/internal/errs"
	"github.com/tinoosan/loanledger/internal/events"
	"github.com/tinoosan/loanledger/internal/ledger"
	"github.com/tinoosan/loanledger/internal/service/loan"
	"github.com/tinoosan/loanledger/internal/storage/memory"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

type captured struct {
	mu     sync.Mutex
	events []events.Event
}

func (c *captured) Publish(_ context.Context, e events.Event) error {
	c.mu.Lock()
	c.events = append(c.events, e)
	c.mu.Unlock()
	return nil
}

type env struct {
	store *memory.Store
	now   time.Time
	svc   loan.Service
	acc   ledger.Account
}

func newEnv(t *testing.T, balance string) *env {
	t.Helper()
	e := &env{store: memory.New(), now: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
	e.acc = ledger.Account{ID: uuid.New(), Name: "Main", Currency: "USD", Balance: decimal.RequireFromString(balance)}
	e.store.SeedAccount(e.acc)
	e.svc = loan.New(e.store, e.store, loan.WithClock(func() time.Time { return e.now }), loan.WithLogger(quiet))
	return e
}

func (e *env) seed(emi string, due time.Time) ledger.Loan {
	l := ledger.Loan{
		ID: uuid.New(), AccountID: e.acc.ID, Lender: "Bank",
		Principal: decimal.RequireFromString(emi).Mul(decimal.NewFromInt(6)),
		StartDate: ledger.AddDays(due, -30), EndDate: ledger.AddDays(due, 150),
		IntervalDays: 30, TotalInstallments: 6, EMI: decimal.RequireFromString(emi),
		NextDueDate: ledger.DatePtr(due), Status: ledger.LoanActive,
	}
	e.store.SeedLoan(l)
	return l
}

func (e *env) scheduler(t *testing.T, opts ...Option) *Scheduler {
	t.Helper()
	base := []Option{
		WithClock(func() time.Time { return e.now }),
		WithLogger(quiet),
		WithRegisterer(prometheus.NewRegistry()),
	}
	s, err := New(e.svc, append(base, opts...)...)
	require.NoError(t, err)
	return s
}

func TestRunPaysDueLoansFromPriorDueDate(t *testing.T) {
	e := newEnv(t, "1000")
	today := ledger.Day(e.now)
	due := e.seed("100", today)
	late := e.seed("100", ledger.AddDays(today, -10))
	future := e.seed("100", ledger.AddDays(today, 1))

	pub := &captured{}
	res, err := e.scheduler(t, WithPublisher(pub)).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Succeeded)
	assert.Zero(t, res.Failed)
	assert.Equal(t, today, res.AsOf)

	got, _ := e.svc.Get(context.Background(), due.ID)
	assert.Equal(t, 1, got.CompletedInstallments)
	assert.Equal(t, ledger.AddDays(today, 30), *got.NextDueDate)
	got, _ = e.svc.Get(context.Background(), late.ID)
	assert.Equal(t, ledger.AddDays(today, 20), *got.NextDueDate)
	got, _ = e.svc.Get(context.Background(), future.ID)
	assert.Zero(t, got.CompletedInstallments)

	a, _ := e.store.GetAccount(context.Background(), e.acc.ID)
	assert.Equal(t, "800.00", a.Balance.StringFixed(2))

	require.Len(t, pub.events, 1)
	assert.Equal(t, events.SchedulerRunComplete, pub.events[0].Type)
	payload, ok := pub.events[0].Data.(events.RunPayload)
	require.True(t, ok)
	assert.Equal(t, 2, payload.Succeeded)
}

func TestInsufficientFundsIsIsolated(t *testing.T) {
	e := newEnv(t, "150")
	today := ledger.Day(e.now)
	small := e.seed("100", today)
	big := e.seed("500", today)

	res, err := e.scheduler(t, WithWorkers(1)).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Succeeded)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, big.ID, res.Failures[0].LoanID)
	assert.ErrorIs(t, res.Failures[0].Err, errs.ErrInsufficientFunds)

	got, _ := e.svc.Get(context.Background(), big.ID)
	assert.Zero(t, got.CompletedInstallments)
	assert.Equal(t, today, *got.NextDueDate)
	got, _ = e.svc.Get(context.Background(), small.ID)
	assert.Equal(t, 1, got.CompletedInstallments)

	// the unpaid loan is overdue the next day and is retried
	e.now = e.now.AddDate(0, 0, 1)
	overdue, err := e.svc.IsOverdue(context.Background(), big.ID)
	require.NoError(t, err)
	assert.True(t, overdue)
	res, err = e.scheduler(t).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
}

type stubLoans struct {
	due     []ledger.Loan
	results map[uuid.UUID]error
	block   chan struct{}
	entered chan struct{}
	listErr error
}

func (s *stubLoans) DueLoans(context.Context, time.Time) ([]ledger.Loan, error) {
	if s.entered != nil {
		close(s.entered)
	}
	if s.block != nil {
		<-s.block
	}
	return s.due, s.listErr
}

func (s *stubLoans) ApplyScheduledPayment(_ context.Context, id uuid.UUID, _ time.Time) (loan.Payment, error) {
	return loan.Payment{}, s.results[id]
}

func TestRunClassifiesResults(t *testing.T) {
	ok, skipped, failed := uuid.New(), uuid.New(), uuid.New()
	stub := &stubLoans{
		due: []ledger.Loan{{ID: ok}, {ID: skipped}, {ID: failed}},
		results: map[uuid.UUID]error{
			skipped: loan.ErrNotDue,
			failed:  errors.New("boom"),
		},
	}
	reg := prometheus.NewRegistry()
	s, err := New(stub, WithLogger(quiet), WithRegisterer(reg), WithWorkers(0))
	require.NoError(t, err)

	res, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Succeeded)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, failed, res.Failures[0].LoanID)

	families, err := reg.Gather()
	require.NoError(t, err)
	counts := map[string]float64{}
	for _, mf := range families {
		if mf.GetName() != "loanledger_scheduler_payments_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			counts[m.GetLabel()[0].GetValue()] = m.GetCounter().GetValue()
		}
	}
	assert.Equal(t, map[string]float64{"success": 1, "skipped": 1, "failed": 1}, counts)
}

func TestRunListError(t *testing.T) {
	stub := &stubLoans{listErr: fmt.Errorf("db down")}
	s, err := New(stub, WithLogger(quiet), WithRegisterer(prometheus.NewRegistry()))
	require.NoError(t, err)
	_, err = s.RunOnce(context.Background())
	assert.Error(t, err)
}

func TestRunsDoNotOverlap(t *testing.T) {
	stub := &stubLoans{block: make(chan struct{}), entered: make(chan struct{})}
	s, err := New(stub, WithLogger(quiet), WithRegisterer(prometheus.NewRegistry()))
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := s.RunOnce(context.Background())
		done <- err
	}()
	<-stub.entered

	_, err = s.RunOnce(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	close(stub.block)
	require.NoError(t, <-done)

	stub.entered = nil
	_, err = s.RunOnce(context.Background())
	assert.NoError(t, err)
}

func TestNewRejectsBadSpec(t *testing.T) {
	_, err := New(&stubLoans{}, WithSpec("not a cron"), WithRegisterer(prometheus.NewRegistry()))
	assert.Error(t, err)
}

func TestRunDateUsesLocation(t *testing.T) {
	e := newEnv(t, "1000")
	// 23:30 UTC on June 1 is already June 2 in Tokyo
	e.now = time.Date(2025, 6, 1, 23, 30, 0, 0, time.UTC)
	tokyo := time.FixedZone("JST", 9*60*60)
	l := e.seed("100", time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC))

	res, err := e.scheduler(t, WithLocation(tokyo)).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC), res.AsOf)
	assert.Equal(t, 1, res.Succeeded)
	got, _ := e.svc.Get(context.Background(), l.ID)
	assert.Equal(t, 1, got.CompletedInstallments)
}

func TestManualPaymentAfterRunKeepsDueDateMonotonic(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, "1000")
	// 11:00 UTC on June 1 is already June 2 at UTC+14
	e.now = time.Date(2025, 6, 1, 11, 0, 0, 0, time.UTC)
	kiritimati := time.FixedZone("LINT", 14*60*60)
	e.svc = loan.New(e.store, e.store,
		loan.WithClock(func() time.Time { return e.now }),
		loan.WithLocation(kiritimati),
		loan.WithLogger(quiet),
	)
	l := e.seed("100", time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC))

	res, err := e.scheduler(t, WithLocation(kiritimati)).RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, res.Succeeded)
	afterRun, err := e.svc.Get(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 7, 2, 0, 0, 0, 0, time.UTC), *afterRun.NextDueDate)
	assert.Equal(t, time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC), *afterRun.LastPaymentDate)

	p, err := e.svc.PayEMI(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC), *p.Loan.LastPaymentDate)
	assert.False(t, p.Loan.NextDueDate.Before(*afterRun.NextDueDate), "next due date moved backwards")
	assert.Equal(t, time.Date(2025, 7, 2, 0, 0, 0, 0, time.UTC), *p.Loan.NextDueDate)
}

func TestStartStop(t *testing.T) {
	s, err := New(&stubLoans{}, WithLogger(quiet), WithRegisterer(prometheus.NewRegistry()))
	require.NoError(t, err)
	s.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, s.Stop(ctx))
}
