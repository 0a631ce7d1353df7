package v1

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tinoosan/loanledger/internal/amortization"
	"github.com/tinoosan/loanledger/internal/amount"
	"github.com/tinoosan/loanledger/internal/dictionary"
	"github.com/tinoosan/loanledger/internal/ledger"
	"github.com/tinoosan/loanledger/internal/scheduler"
	"github.com/tinoosan/loanledger/internal/service/journal"
	"github.com/tinoosan/loanledger/internal/service/loan"
)

// Amounts are accepted as JSON strings or numbers and always returned as
// strings with two decimals. Dates are YYYY-MM-DD.

type postLoanRequest struct {
	AccountID         uuid.UUID        `json:"account_id"`
	Lender            string           `json:"lender"`
	Principal         decimal.Decimal  `json:"principal"`
	AnnualRate        decimal.Decimal  `json:"annual_rate"`
	StartDate         *string          `json:"start_date,omitempty"`
	EndDate           *string          `json:"end_date,omitempty"`
	TermDays          int              `json:"term_days,omitempty"`
	IntervalDays      int              `json:"interval_days"`
	TotalInstallments int              `json:"total_installments,omitempty"`
	EMI               *decimal.Decimal `json:"emi,omitempty"`
}

type postAccountRequest struct {
	Name           string            `json:"name"`
	Currency       string            `json:"currency"`
	OpeningBalance decimal.Decimal   `json:"opening_balance"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

type loanResponse struct {
	ID                    uuid.UUID         `json:"id"`
	AccountID             uuid.UUID         `json:"account_id"`
	Lender                string            `json:"lender"`
	Principal             string            `json:"principal"`
	AnnualRate            string            `json:"annual_rate"`
	StartDate             string            `json:"start_date"`
	EndDate               string            `json:"end_date"`
	IntervalDays          int               `json:"interval_days"`
	Frequency             string            `json:"frequency"`
	TotalInstallments     int               `json:"total_installments"`
	CompletedInstallments int               `json:"completed_installments"`
	EMI                   string            `json:"emi"`
	Outstanding           string            `json:"outstanding"`
	NextDueDate           *string           `json:"next_due_date"`
	LastPaymentDate       *string           `json:"last_payment_date"`
	Status                ledger.LoanStatus `json:"status"`
	CreatedAt             time.Time         `json:"created_at"`
	UpdatedAt             time.Time         `json:"updated_at"`
}

type paymentResponse struct {
	Loan        loanResponse `json:"loan"`
	EntryID     uuid.UUID    `json:"entry_id"`
	Amount      string       `json:"amount"`
	Installment int          `json:"installment"`
	Balance     string       `json:"balance"`
}

type accountResponse struct {
	ID        uuid.UUID         `json:"id"`
	Name      string            `json:"name"`
	Currency  string            `json:"currency"`
	Balance   string            `json:"balance"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

type entryResponse struct {
	ID          uuid.UUID         `json:"id"`
	AccountID   uuid.UUID         `json:"account_id"`
	Type        ledger.EntryType  `json:"type"`
	Category    ledger.Category   `json:"category"`
	Amount      string            `json:"amount"`
	Description string            `json:"description"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

type reconciliationResponse struct {
	AccountID  uuid.UUID `json:"account_id"`
	Balance    string    `json:"balance"`
	LedgerSum  string    `json:"ledger_sum"`
	Difference string    `json:"difference"`
	Entries    int       `json:"entries"`
	Balanced   bool      `json:"balanced"`
}

type summaryResponse struct {
	LoanID            uuid.UUID         `json:"loan_id"`
	Lender            string            `json:"lender"`
	EMI               string            `json:"emi"`
	Frequency         string            `json:"frequency"`
	NextDueDate       *string           `json:"next_due_date"`
	Status            ledger.LoanStatus `json:"status"`
	Completed         int               `json:"completed_installments"`
	Total             int               `json:"total_installments"`
	Outstanding       string            `json:"outstanding"`
	CompletionPercent string            `json:"completion_percent"`
	Overdue           bool              `json:"overdue"`
}

type upcomingResponse struct {
	LoanID  uuid.UUID `json:"loan_id"`
	Lender  string    `json:"lender"`
	Amount  string    `json:"amount"`
	DueDate string    `json:"due_date"`
}

type outstandingResponse struct {
	AccountID *uuid.UUID `json:"account_id,omitempty"`
	LoanID    *uuid.UUID `json:"loan_id,omitempty"`
	Overdue   *bool      `json:"overdue,omitempty"`
	Amount    string     `json:"outstanding"`
}

type installmentResponse struct {
	Number    int    `json:"number"`
	DueDate   string `json:"due_date"`
	Payment   string `json:"payment"`
	Interest  string `json:"interest"`
	Principal string `json:"principal"`
	Balance   string `json:"balance"`
}

type runFailure struct {
	LoanID uuid.UUID `json:"loan_id"`
	Error  string    `json:"error"`
}

type runResponse struct {
	AsOf      string       `json:"as_of"`
	Succeeded int          `json:"succeeded"`
	Failed    int          `json:"failed"`
	Skipped   int          `json:"skipped"`
	Failures  []runFailure `json:"failures"`
}

type listResponse[T any] struct {
	Items []T `json:"items"`
}

func dateString(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.DateOnly)
	return &s
}

func toLoanResponse(l ledger.Loan) loanResponse {
	return loanResponse{
		ID:                    l.ID,
		AccountID:             l.AccountID,
		Lender:                l.Lender,
		Principal:             amount.String(l.Principal),
		AnnualRate:            l.AnnualRate.String(),
		StartDate:             l.StartDate.Format(time.DateOnly),
		EndDate:               l.EndDate.Format(time.DateOnly),
		IntervalDays:          l.IntervalDays,
		Frequency:             dictionary.FrequencyLabel(l.IntervalDays),
		TotalInstallments:     l.TotalInstallments,
		CompletedInstallments: l.CompletedInstallments,
		EMI:                   amount.String(l.EMI),
		Outstanding:           amount.String(l.Outstanding()),
		NextDueDate:           dateString(l.NextDueDate),
		LastPaymentDate:       dateString(l.LastPaymentDate),
		Status:                l.Status,
		CreatedAt:             l.CreatedAt,
		UpdatedAt:             l.UpdatedAt,
	}
}

func toPaymentResponse(p loan.Payment) paymentResponse {
	return paymentResponse{
		Loan:        toLoanResponse(p.Loan),
		EntryID:     p.EntryID,
		Amount:      amount.String(p.Amount),
		Installment: p.Installment,
		Balance:     amount.String(p.Balance),
	}
}

func toAccountResponse(a ledger.Account) accountResponse {
	return accountResponse{
		ID:        a.ID,
		Name:      a.Name,
		Currency:  a.Currency,
		Balance:   amount.String(a.Balance),
		Metadata:  a.Metadata,
		CreatedAt: a.CreatedAt,
	}
}

func toEntryResponse(e ledger.Entry) entryResponse {
	return entryResponse{
		ID:          e.ID,
		AccountID:   e.AccountID,
		Type:        e.Type,
		Category:    e.Category,
		Amount:      amount.String(e.Amount),
		Description: e.Description,
		Metadata:    e.Metadata,
		CreatedAt:   e.CreatedAt,
	}
}

func toReconciliationResponse(r journal.Reconciliation) reconciliationResponse {
	return reconciliationResponse{
		AccountID:  r.AccountID,
		Balance:    amount.String(r.Balance),
		LedgerSum:  amount.String(r.LedgerSum),
		Difference: amount.String(r.Difference),
		Entries:    r.Entries,
		Balanced:   r.Balanced,
	}
}

func toSummaryResponse(s loan.Summary) summaryResponse {
	return summaryResponse{
		LoanID:            s.LoanID,
		Lender:            s.Lender,
		EMI:               amount.String(s.EMI),
		Frequency:         s.Frequency,
		NextDueDate:       dateString(s.NextDueDate),
		Status:            s.Status,
		Completed:         s.Completed,
		Total:             s.Total,
		Outstanding:       amount.String(s.Outstanding),
		CompletionPercent: amount.String(s.CompletionPercent),
		Overdue:           s.Overdue,
	}
}

func toUpcomingResponse(u loan.UpcomingEMI) upcomingResponse {
	return upcomingResponse{LoanID: u.LoanID, Lender: u.Lender, Amount: amount.String(u.Amount), DueDate: u.DueDate.Format(time.DateOnly)}
}

func toInstallmentResponse(i amortization.Installment) installmentResponse {
	return installmentResponse{
		Number:    i.Number,
		DueDate:   i.DueDate.Format(time.DateOnly),
		Payment:   amount.String(i.Payment),
		Interest:  amount.String(i.Interest),
		Principal: amount.String(i.Principal),
		Balance:   amount.String(i.Balance),
	}
}

func toRunResponse(r scheduler.RunResult) runResponse {
	out := runResponse{
		AsOf:      r.AsOf.Format(time.DateOnly),
		Succeeded: r.Succeeded,
		Failed:    r.Failed,
		Skipped:   r.Skipped,
		Failures:  make([]runFailure, 0, len(r.Failures)),
	}
	for _, f := range r.Failures {
		out.Failures = append(out.Failures, runFailure{LoanID: f.LoanID, Error: f.Err.Error()})
	}
	return out
}

func mapSlice[T, R any](in []T, f func(T) R) []R {
	out := make([]R, 0, len(in))
	for _, v := range in {
		out = append(out, f(v))
	}
	return out
}
