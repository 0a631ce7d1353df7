// Package scheduler applies due EMIs on a cron schedule.
//
// Each run lists the loans due as of the run date and pays them through
// loan.Service.ApplyScheduledPayment with a bounded worker pool. A failure on
// one loan never stops the others; runs never overlap.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/tinoosan/loanledger/internal/events"
	"github.com/tinoosan/loanledger/internal/ledger"
	"github.com/tinoosan/loanledger/internal/service/loan"
)

// ErrAlreadyRunning is returned by RunOnce while another run is in progress.
var ErrAlreadyRunning = errors.New("scheduler run already in progress")

// Loans is the part of loan.Service the scheduler drives.
type Loans interface {
	DueLoans(ctx context.Context, asOf time.Time) ([]ledger.Loan, error)
	ApplyScheduledPayment(ctx context.Context, loanID uuid.UUID, asOf time.Time) (loan.Payment, error)
}

// Failure records a loan whose payment could not be applied.
type Failure struct {
	LoanID uuid.UUID `json:"loan_id"`
	Err    error     `json:"-"`
}

// RunResult counts the outcome of one run.
type RunResult struct {
	AsOf      time.Time
	Succeeded int
	Failed    int
	Skipped   int
	Failures  []Failure
	Duration  time.Duration
}

type Scheduler struct {
	loans       Loans
	publisher   events.Publisher
	logger      *slog.Logger
	now         func() time.Time
	loc         *time.Location
	spec        string
	workers     int
	loanTimeout time.Duration
	registerer  prometheus.Registerer

	running atomic.Bool
	cron    *cron.Cron
	metrics *metrics
}

type Option func(*Scheduler)

// WithSpec sets the cron expression (five fields, or descriptors like @daily).
func WithSpec(spec string) Option { return func(s *Scheduler) { s.spec = spec } }

// WithLocation sets the zone the cron expression and the run date are evaluated in.
func WithLocation(loc *time.Location) Option { return func(s *Scheduler) { s.loc = loc } }

func WithWorkers(n int) Option                      { return func(s *Scheduler) { s.workers = n } }
func WithLoanTimeout(d time.Duration) Option        { return func(s *Scheduler) { s.loanTimeout = d } }
func WithPublisher(p events.Publisher) Option       { return func(s *Scheduler) { s.publisher = p } }
func WithLogger(l *slog.Logger) Option              { return func(s *Scheduler) { s.logger = l } }
func WithClock(now func() time.Time) Option         { return func(s *Scheduler) { s.now = now } }
func WithRegisterer(r prometheus.Registerer) Option { return func(s *Scheduler) { s.registerer = r } }

// New builds a scheduler and registers its job; it does not start it.
func New(loans Loans, opts ...Option) (*Scheduler, error) {
	s := &Scheduler{
		loans:       loans,
		publisher:   events.Noop{},
		logger:      slog.Default(),
		now:         time.Now,
		loc:         time.UTC,
		spec:        "0 0 * * *",
		workers:     4,
		loanTimeout: 10 * time.Second,
		registerer:  prometheus.DefaultRegisterer,
	}
	for _, o := range opts {
		o(s)
	}
	if s.workers < 1 {
		s.workers = 1
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	s.metrics = newMetrics(s.registerer)

	s.cron = cron.New(
		cron.WithLocation(s.loc),
		cron.WithChain(cron.SkipIfStillRunning(cronLogger{s.logger})),
	)
	if _, err := s.cron.AddFunc(s.spec, s.tick); err != nil {
		return nil, fmt.Errorf("scheduler spec %q: %w", s.spec, err)
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.logger.Info("scheduler started", "spec", s.spec, "tz", s.loc.String(), "workers", s.workers)
	s.cron.Start()
}

// Stop stops the cron and waits for a running job until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop().Done()
	select {
	case <-done:
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) tick() {
	if _, err := s.RunOnce(context.Background()); err != nil {
		s.logger.Error("scheduler run failed", "err", err)
	}
}

// RunOnce pays every loan due as of now (in the scheduler's zone).
func (s *Scheduler) RunOnce(ctx context.Context) (RunResult, error) {
	if !s.running.CompareAndSwap(false, true) {
		s.metrics.runs.WithLabelValues("overlap").Inc()
		return RunResult{}, ErrAlreadyRunning
	}
	defer s.running.Store(false)

	start := time.Now()
	asOf := ledger.Day(s.now().In(s.loc))
	res := RunResult{AsOf: asOf}

	due, err := s.loans.DueLoans(ctx, asOf)
	if err != nil {
		s.metrics.runs.WithLabelValues("error").Inc()
		return res, fmt.Errorf("list due loans: %w", err)
	}
	s.logger.Info("scheduler run started", "as_of", asOf.Format(time.DateOnly), "due", len(due))

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(s.workers)
	for _, l := range due {
		id := l.ID
		g.Go(func() error {
			lctx, cancel := context.WithTimeout(ctx, s.loanTimeout)
			defer cancel()
			_, err := s.loans.ApplyScheduledPayment(lctx, id, asOf)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				res.Succeeded++
				s.metrics.payments.WithLabelValues("success").Inc()
			case errors.Is(err, loan.ErrNotDue):
				res.Skipped++
				s.metrics.payments.WithLabelValues("skipped").Inc()
			default:
				res.Failed++
				res.Failures = append(res.Failures, Failure{LoanID: id, Err: err})
				s.metrics.payments.WithLabelValues("failed").Inc()
				s.logger.Warn("scheduled payment failed", "loan_id", id, "err", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(res.Failures, func(i, j int) bool {
		return res.Failures[i].LoanID.String() < res.Failures[j].LoanID.String()
	})
	res.Duration = time.Since(start)
	s.metrics.runs.WithLabelValues("completed").Inc()
	s.metrics.duration.Observe(res.Duration.Seconds())

	s.logger.Info("scheduler run completed",
		"as_of", asOf.Format(time.DateOnly),
		"succeeded", res.Succeeded, "failed", res.Failed, "skipped", res.Skipped,
		"duration", res.Duration)
	e := events.New(events.SchedulerRunComplete, asOf.Format(time.DateOnly), events.RunPayload{
		AsOf: asOf, Succeeded: res.Succeeded, Failed: res.Failed, Skipped: res.Skipped, Duration: res.Duration,
	}, s.now())
	if err := s.publisher.Publish(ctx, e); err != nil {
		s.logger.Warn("event publish failed", "type", e.Type, "err", err)
	}
	return res, nil
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct{ l *slog.Logger }

func (c cronLogger) Info(msg string, kv ...any) { c.l.Debug("cron: "+msg, kv...) }
func (c cronLogger) Error(err error, msg string, kv ...any) {
	c.l.Error("cron: "+msg, append(kv, "err", err)...)
}
