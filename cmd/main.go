package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tinoosan/loanledger/internal/config"
	"github.com/tinoosan/loanledger/internal/events"
	"github.com/tinoosan/loanledger/internal/events/kafka"
	httpapi "github.com/tinoosan/loanledger/internal/httpapi/v1"
	"github.com/tinoosan/loanledger/internal/ledger"
	"github.com/tinoosan/loanledger/internal/lock"
	"github.com/tinoosan/loanledger/internal/scheduler"
	"github.com/tinoosan/loanledger/internal/service/account"
	"github.com/tinoosan/loanledger/internal/service/journal"
	"github.com/tinoosan/loanledger/internal/service/loan"
	"github.com/tinoosan/loanledger/internal/storage"
	"github.com/tinoosan/loanledger/internal/storage/memory"
	pgstore "github.com/tinoosan/loanledger/internal/storage/postgres"
	"github.com/tinoosan/loanledger/internal/storage/sqlite"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()
	logger := buildLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	var closers []func()
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}()

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		logger.Error("failed to open storage", "backend", cfg.Backend(), "err", err)
		os.Exit(1)
	}
	closers = append(closers, closeStore)
	logger.Info("storage backend: " + cfg.Backend())

	var locker lock.Locker = lock.NewKeyed()
	if cfg.RedisAddr != "" {
		client, err := lock.Connect(ctx, cfg.RedisAddr)
		if err != nil {
			logger.Error("failed to connect to redis", "addr", cfg.RedisAddr, "err", err)
			os.Exit(1)
		}
		closers = append(closers, func() { _ = client.Close() })
		locker = lock.NewRedis(client, cfg.LockTTL, lock.WithLogger(logger))
		logger.Info("loan locks: redis", "addr", cfg.RedisAddr)
	}

	var publisher events.Publisher = events.Log{Logger: logger}
	if len(cfg.KafkaBrokers) > 0 {
		kp := kafka.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		closers = append(closers, func() { _ = kp.Close() })
		publisher = kp
		logger.Info("events: kafka", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}

	accounts := account.New(store, store)
	loans := loan.New(store, store,
		loan.WithLocker(locker),
		loan.WithPublisher(publisher),
		loan.WithLogger(logger),
		loan.WithLocation(cfg.Location()),
	)

	if cfg.DevSeed || cfg.Backend() == "memory" {
		if err := devSeed(ctx, logger, cfg.Backend(), accounts, loans); err != nil {
			logger.Error("dev seed failed", "err", err)
		}
	}

	svcs := httpapi.Services{Accounts: accounts, Journal: journal.New(store), Loans: loans}
	var sched *scheduler.Scheduler
	if cfg.SchedulerEnabled {
		sched, err = scheduler.New(loans,
			scheduler.WithSpec(cfg.SchedulerCron),
			scheduler.WithLocation(cfg.Location()),
			scheduler.WithWorkers(cfg.SchedulerWorkers),
			scheduler.WithLoanTimeout(cfg.SchedulerLoanTimeout),
			scheduler.WithPublisher(publisher),
			scheduler.WithLogger(logger),
		)
		if err != nil {
			logger.Error("invalid scheduler config", "err", err)
			os.Exit(1)
		}
		svcs.Runner = sched
		sched.Start()
	}

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           httpapi.New(svcs, store, logger).Handler(),
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("loan ledger listening", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		logger.Error("server error", "err", err)
	}

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctxShutdown); err != nil {
		logger.Error("server shutdown error", "err", err)
	}
	if sched != nil {
		if err := sched.Stop(ctxShutdown); err != nil {
			logger.Error("scheduler shutdown error", "err", err)
		}
	}
}

func openStore(ctx context.Context, cfg config.Config) (storage.Store, func(), error) {
	switch cfg.Backend() {
	case "postgres":
		pg, err := pgstore.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return pg, pg.Close, nil
	case "sqlite":
		db, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return db, func() { _ = db.Close() }, nil
	default:
		return memory.New(), func() {}, nil
	}
}

// devSeed creates a funded account with one monthly loan and prints their ids.
func devSeed(ctx context.Context, l *slog.Logger, backend string, accounts account.Service, loans loan.Service) error {
	acc, err := accounts.Create(ctx, account.CreateInput{
		Name:           "Checking",
		Currency:       "USD",
		OpeningBalance: decimal.NewFromInt(5000),
	})
	if err != nil {
		return fmt.Errorf("seed account: %w", err)
	}
	ln, err := loans.Disburse(ctx, loan.DisburseInput{
		AccountID:         acc.ID,
		Lender:            "Acme Finance",
		Principal:         decimal.NewFromInt(12000),
		AnnualRate:        decimal.NewFromInt(12),
		IntervalDays:      30,
		TotalInstallments: 12,
	})
	if err != nil {
		return fmt.Errorf("seed loan: %w", err)
	}
	l.Info("DEV seed ("+backend+")", "account_id", acc.ID.String(), "loan_id", ln.ID.String(), "emi", ln.EMI.StringFixed(2))
	printDevSeedBanner(acc, ln)
	return nil
}

// printDevSeedBanner prints a simple banner to stdout for easy copy/paste of IDs
func printDevSeedBanner(acc ledger.Account, ln ledger.Loan) {
	fmt.Println("==================== DEV SEED ====================")
	fmt.Printf("account_id: %s\n", acc.ID)
	fmt.Printf("loan_id:    %s\n", ln.ID)
	fmt.Printf("emi:        %s every %d days, first due %s\n", ln.EMI.StringFixed(2), ln.IntervalDays, ln.NextDueDate.Format(time.DateOnly))
	fmt.Println("==================================================")
}

// parseLogLevel maps config values to slog.Leveler
func parseLogLevel(s string) slog.Leveler {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error", "err":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func buildLogger(level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(level)}
	if strings.EqualFold(strings.TrimSpace(format), "text") {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
