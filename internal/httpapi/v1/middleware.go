package v1

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tinoosan/loanledger/internal/errs"
	"github.com/tinoosan/loanledger/internal/meta"
	"github.com/tinoosan/loanledger/internal/service/account"
	"github.com/tinoosan/loanledger/internal/service/loan"
)

type ctxKey string

const (
	ctxKeyPostLoan    ctxKey = "validatedPostLoan"
	ctxKeyPostAccount ctxKey = "validatedPostAccount"
	ctxKeyLoanID      ctxKey = "loanID"
	ctxKeyAccountID   ctxKey = "accountID"
)

// decodeJSON strictly decodes the body into v, writing 415/400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if !requireJSON(w, r) {
		return false
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		badRequest(w, "invalid JSON: "+err.Error())
		return false
	}
	return true
}

// validatePostLoan parses POST /v1/loans and stores the DisburseInput.
// Business rules are left to the loan service.
func (s *Server) validatePostLoan() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var req postLoanRequest
			if !decodeJSON(w, r, &req) {
				return
			}
			in, err := toDisburseInput(req)
			if err != nil {
				s.writeServiceErr(w, r, err)
				return
			}
			ctx := context.WithValue(r.Context(), ctxKeyPostLoan, in)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// validatePostAccount parses POST /v1/accounts and runs the service's create checks.
func (s *Server) validatePostAccount() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var req postAccountRequest
			if !decodeJSON(w, r, &req) {
				return
			}
			in := account.CreateInput{
				Name:           req.Name,
				Currency:       req.Currency,
				OpeningBalance: req.OpeningBalance,
				Metadata:       meta.New(req.Metadata),
			}
			if err := s.accounts.ValidateCreate(in); err != nil {
				s.writeServiceErr(w, r, err)
				return
			}
			ctx := context.WithValue(r.Context(), ctxKeyPostAccount, in)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (s *Server) loanID() func(http.Handler) http.Handler    { return uuidParam("id", ctxKeyLoanID) }
func (s *Server) accountID() func(http.Handler) http.Handler { return uuidParam("id", ctxKeyAccountID) }

// uuidParam parses a path parameter as a UUID, answering 400 when malformed.
func uuidParam(name string, key ctxKey) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := uuid.Parse(chi.URLParam(r, name))
			if err != nil {
				badRequest(w, "invalid "+name)
				return
			}
			ctx := context.WithValue(r.Context(), key, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func toDisburseInput(req postLoanRequest) (loan.DisburseInput, error) {
	in := loan.DisburseInput{
		AccountID:         req.AccountID,
		Lender:            req.Lender,
		Principal:         req.Principal,
		AnnualRate:        req.AnnualRate,
		TermDays:          req.TermDays,
		IntervalDays:      req.IntervalDays,
		TotalInstallments: req.TotalInstallments,
		EMI:               req.EMI,
	}
	var err error
	if in.StartDate, err = parseDate("start_date", req.StartDate); err != nil {
		return in, err
	}
	if in.EndDate, err = parseDate("end_date", req.EndDate); err != nil {
		return in, err
	}
	return in, nil
}

func parseDate(field string, raw *string) (*time.Time, error) {
	if raw == nil || *raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.DateOnly, *raw)
	if err != nil {
		return nil, errs.Invalid(field, "must be YYYY-MM-DD")
	}
	return &t, nil
}
