package v1

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/tinoosan/loanledger/internal/amount"
	"github.com/tinoosan/loanledger/internal/service/loan"
)

// POST /v1/loans
func (s *Server) postLoan(w http.ResponseWriter, r *http.Request) {
	in, _ := r.Context().Value(ctxKeyPostLoan).(loan.DisburseInput)
	l, err := s.loans.Disburse(r.Context(), in)
	if err != nil {
		s.writeServiceErr(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/loans/"+l.ID.String())
	toJSON(w, http.StatusCreated, toLoanResponse(l))
}

// GET /v1/loans/{id}
func (s *Server) getLoan(w http.ResponseWriter, r *http.Request) {
	id, _ := r.Context().Value(ctxKeyLoanID).(uuid.UUID)
	l, err := s.loans.Get(r.Context(), id)
	if err != nil {
		s.writeServiceErr(w, r, err)
		return
	}
	toJSON(w, http.StatusOK, toLoanResponse(l))
}

// POST /v1/loans/{id}/payments records a manual EMI payment.
func (s *Server) payEMI(w http.ResponseWriter, r *http.Request) {
	id, _ := r.Context().Value(ctxKeyLoanID).(uuid.UUID)
	p, err := s.loans.PayEMI(r.Context(), id)
	if err != nil {
		s.writeServiceErr(w, r, err)
		return
	}
	toJSON(w, http.StatusCreated, toPaymentResponse(p))
}

// POST /v1/loans/{id}/default
func (s *Server) markDefault(w http.ResponseWriter, r *http.Request) {
	id, _ := r.Context().Value(ctxKeyLoanID).(uuid.UUID)
	l, err := s.loans.MarkDefault(r.Context(), id)
	if err != nil {
		s.writeServiceErr(w, r, err)
		return
	}
	toJSON(w, http.StatusOK, toLoanResponse(l))
}

// GET /v1/loans/{id}/schedule
func (s *Server) getSchedule(w http.ResponseWriter, r *http.Request) {
	id, _ := r.Context().Value(ctxKeyLoanID).(uuid.UUID)
	rows, err := s.loans.Schedule(r.Context(), id)
	if err != nil {
		s.writeServiceErr(w, r, err)
		return
	}
	toJSON(w, http.StatusOK, listResponse[installmentResponse]{Items: mapSlice(rows, toInstallmentResponse)})
}

// GET /v1/loans/{id}/outstanding
func (s *Server) getLoanOutstanding(w http.ResponseWriter, r *http.Request) {
	id, _ := r.Context().Value(ctxKeyLoanID).(uuid.UUID)
	out, err := s.loans.Outstanding(r.Context(), id)
	if err != nil {
		s.writeServiceErr(w, r, err)
		return
	}
	overdue, err := s.loans.IsOverdue(r.Context(), id)
	if err != nil {
		s.writeServiceErr(w, r, err)
		return
	}
	toJSON(w, http.StatusOK, outstandingResponse{LoanID: &id, Overdue: &overdue, Amount: amount.String(out)})
}
