package v1

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/tinoosan/loanledger/internal/amount"
	"github.com/tinoosan/loanledger/internal/ledger"
	"github.com/tinoosan/loanledger/internal/service/account"
	"github.com/tinoosan/loanledger/internal/service/journal"
	"github.com/tinoosan/loanledger/internal/slug"
)

// POST /v1/accounts
func (s *Server) postAccount(w http.ResponseWriter, r *http.Request) {
	in, _ := r.Context().Value(ctxKeyPostAccount).(account.CreateInput)
	a, err := s.accounts.Create(r.Context(), in)
	if err != nil {
		s.writeServiceErr(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/accounts/"+a.ID.String())
	toJSON(w, http.StatusCreated, toAccountResponse(a))
}

// GET /v1/accounts
func (s *Server) listAccounts(w http.ResponseWriter, r *http.Request) {
	accs, err := s.accounts.List(r.Context())
	if err != nil {
		s.writeServiceErr(w, r, err)
		return
	}
	toJSON(w, http.StatusOK, listResponse[accountResponse]{Items: mapSlice(accs, toAccountResponse)})
}

// GET /v1/accounts/{id}
func (s *Server) getAccount(w http.ResponseWriter, r *http.Request) {
	id, _ := r.Context().Value(ctxKeyAccountID).(uuid.UUID)
	a, err := s.accounts.Get(r.Context(), id)
	if err != nil {
		s.writeServiceErr(w, r, err)
		return
	}
	toJSON(w, http.StatusOK, toAccountResponse(a))
}

// GET /v1/accounts/{id}/entries?category=&loan_id=
// category accepts labels too ("Loan EMI" matches loan_emi).
func (s *Server) listEntries(w http.ResponseWriter, r *http.Request) {
	id, _ := r.Context().Value(ctxKeyAccountID).(uuid.UUID)
	q := r.URL.Query()
	f := journal.Filter{Category: ledger.Category(slug.Slugify(q.Get("category")))}
	if raw := q.Get("loan_id"); raw != "" {
		loanID, err := uuid.Parse(raw)
		if err != nil {
			badRequest(w, "invalid loan_id")
			return
		}
		f.LoanID = loanID
	}
	entries, err := s.journal.ListEntries(r.Context(), id, f)
	if err != nil {
		s.writeServiceErr(w, r, err)
		return
	}
	toJSON(w, http.StatusOK, listResponse[entryResponse]{Items: mapSlice(entries, toEntryResponse)})
}

// GET /v1/accounts/{id}/reconciliation
func (s *Server) getReconciliation(w http.ResponseWriter, r *http.Request) {
	id, _ := r.Context().Value(ctxKeyAccountID).(uuid.UUID)
	rec, err := s.journal.Reconcile(r.Context(), id)
	if err != nil {
		s.writeServiceErr(w, r, err)
		return
	}
	toJSON(w, http.StatusOK, toReconciliationResponse(rec))
}

// GET /v1/accounts/{id}/loans returns the loan summary for the account.
func (s *Server) listAccountLoans(w http.ResponseWriter, r *http.Request) {
	id, _ := r.Context().Value(ctxKeyAccountID).(uuid.UUID)
	sums, err := s.loans.Summary(r.Context(), id)
	if err != nil {
		s.writeServiceErr(w, r, err)
		return
	}
	toJSON(w, http.StatusOK, listResponse[summaryResponse]{Items: mapSlice(sums, toSummaryResponse)})
}

// GET /v1/accounts/{id}/loans/upcoming
func (s *Server) getUpcoming(w http.ResponseWriter, r *http.Request) {
	id, _ := r.Context().Value(ctxKeyAccountID).(uuid.UUID)
	up, err := s.loans.Upcoming(r.Context(), id)
	if err != nil {
		s.writeServiceErr(w, r, err)
		return
	}
	toJSON(w, http.StatusOK, listResponse[upcomingResponse]{Items: mapSlice(up, toUpcomingResponse)})
}

// GET /v1/accounts/{id}/loans/overdue
func (s *Server) getOverdue(w http.ResponseWriter, r *http.Request) {
	id, _ := r.Context().Value(ctxKeyAccountID).(uuid.UUID)
	loans, err := s.loans.Overdue(r.Context(), id)
	if err != nil {
		s.writeServiceErr(w, r, err)
		return
	}
	toJSON(w, http.StatusOK, listResponse[loanResponse]{Items: mapSlice(loans, toLoanResponse)})
}

// GET /v1/accounts/{id}/loans/outstanding
func (s *Server) getTotalOutstanding(w http.ResponseWriter, r *http.Request) {
	id, _ := r.Context().Value(ctxKeyAccountID).(uuid.UUID)
	total, err := s.loans.TotalOutstanding(r.Context(), id)
	if err != nil {
		s.writeServiceErr(w, r, err)
		return
	}
	toJSON(w, http.StatusOK, outstandingResponse{AccountID: &id, Amount: amount.String(total)})
}
