// Package v1 wires the HTTP surface of the loan ledger.
// Handlers stay thin and delegate business rules to the service layer.
package v1

import (
	"log/slog"
	"net/http"

	chi "github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/tinoosan/loanledger/internal/service/account"
	"github.com/tinoosan/loanledger/internal/service/journal"
	"github.com/tinoosan/loanledger/internal/service/loan"
)

// Services groups the domain services the API serves.
type Services struct {
	Accounts account.Service
	Journal  journal.Service
	Loans    loan.Service
	// Runner is optional; without it POST /v1/scheduler/run answers 503.
	Runner Runner
}

// Server wires handlers and middleware using Chi.
type Server struct {
	accounts account.Service
	journal  journal.Service
	loans    loan.Service
	runner   Runner
	ready    ReadyChecker
	log      *slog.Logger
	rt       *chi.Mux
}

// New constructs the HTTP server with routes and middleware.
func New(svcs Services, ready ReadyChecker, logger *slog.Logger) *Server {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(requestLogger(logger))
	r.Use(recoverer(logger))
	r.Use(metricsMiddleware)

	s := &Server{
		accounts: svcs.Accounts,
		journal:  svcs.Journal,
		loans:    svcs.Loans,
		runner:   svcs.Runner,
		ready:    ready,
		log:      logger,
		rt:       r,
	}
	s.routes()
	return s
}

// Handler exposes the configured http.Handler.
func (s *Server) Handler() http.Handler { return s.rt }

func (s *Server) routes() {
	// Loans
	s.rt.With(s.validatePostLoan()).Post("/v1/loans", s.postLoan)
	s.rt.With(s.loanID()).Get("/v1/loans/{id}", s.getLoan)
	s.rt.With(s.loanID()).Post("/v1/loans/{id}/payments", s.payEMI)
	s.rt.With(s.loanID()).Post("/v1/loans/{id}/default", s.markDefault)
	s.rt.With(s.loanID()).Get("/v1/loans/{id}/schedule", s.getSchedule)
	s.rt.With(s.loanID()).Get("/v1/loans/{id}/outstanding", s.getLoanOutstanding)

	// Accounts
	s.rt.With(s.validatePostAccount()).Post("/v1/accounts", s.postAccount)
	s.rt.Get("/v1/accounts", s.listAccounts)
	s.rt.Route("/v1/accounts/{id}", func(r chi.Router) {
		r.Use(s.accountID())
		r.Get("/", s.getAccount)
		r.Get("/entries", s.listEntries)
		r.Get("/reconciliation", s.getReconciliation)
		r.Get("/loans", s.listAccountLoans)
		r.Get("/loans/upcoming", s.getUpcoming)
		r.Get("/loans/overdue", s.getOverdue)
		r.Get("/loans/outstanding", s.getTotalOutstanding)
	})

	s.rt.Post("/v1/scheduler/run", s.runScheduler)

	s.rt.Get("/v1/dictionary/frequencies", s.getFrequencies)
	s.rt.Get("/v1/dictionary/categories", s.getCategories)

	// Health (unversioned)
	s.rt.Get("/healthz", s.healthz)
	s.rt.Get("/readyz", s.readyz)
	s.rt.Handle("/metrics", metricsHandler())
}
