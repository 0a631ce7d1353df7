package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tinoosan/loanledger/internal/amount"
	"github.com/tinoosan/loanledger/internal/meta"
)

// EntryType is the direction an entry moves an account balance.
type EntryType string

const (
	// EntryCredit increases the account balance.
	EntryCredit EntryType = "CREDIT"
	// EntryDebit decreases the account balance.
	EntryDebit EntryType = "DEBIT"
)

// Category classifies why an entry was posted. Values are slugs.
type Category string

const (
	CategoryOpeningBalance   Category = "opening_balance"
	CategoryLoanDisbursement Category = "loan_disbursement"
	CategoryLoanEMI          Category = "loan_emi"
)

// Metadata keys stamped onto loan entries.
const (
	MetaLoanID      = "loan_id"
	MetaInstallment = "installment"
	MetaSource      = "source"
)

// LoanStatus is the lifecycle state of a loan.
type LoanStatus string

const (
	LoanActive    LoanStatus = "ACTIVE"
	LoanClosed    LoanStatus = "CLOSED"
	LoanDefaulted LoanStatus = "DEFAULTED"
)

// Valid reports whether s is a known status.
func (s LoanStatus) Valid() bool {
	switch s {
	case LoanActive, LoanClosed, LoanDefaulted:
		return true
	}
	return false
}

// Account is a financial account that loans draw on and repay from.
type Account struct {
	ID        uuid.UUID
	Name      string
	Currency  string
	Balance   decimal.Decimal
	Metadata  meta.Metadata `json:"metadata,omitempty"`
	CreatedAt time.Time
}

// Entry is one immutable ledger line against an account. Amount is always
// positive; Type carries the direction.
type Entry struct {
	ID          uuid.UUID
	AccountID   uuid.UUID
	Amount      decimal.Decimal
	Type        EntryType
	Category    Category
	Description string
	Metadata    meta.Metadata `json:"metadata,omitempty"`
	CreatedAt   time.Time
}

// SignedAmount returns Amount negated for debits.
func (e Entry) SignedAmount() decimal.Decimal {
	if e.Type == EntryDebit {
		return e.Amount.Neg()
	}
	return e.Amount
}

// Loan is an installment obligation against an account. Dates are calendar
// days (see Day).
type Loan struct {
	ID                    uuid.UUID
	AccountID             uuid.UUID
	Lender                string
	Principal             decimal.Decimal
	AnnualRate            decimal.Decimal
	StartDate             time.Time
	EndDate               time.Time
	IntervalDays          int
	TotalInstallments     int
	CompletedInstallments int
	EMI                   decimal.Decimal
	NextDueDate           *time.Time
	LastPaymentDate       *time.Time
	Status                LoanStatus
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// Remaining is the number of installments left to pay.
func (l Loan) Remaining() int {
	if r := l.TotalInstallments - l.CompletedInstallments; r > 0 {
		return r
	}
	return 0
}

// IsCompleted reports whether every installment has been paid.
func (l Loan) IsCompleted() bool { return l.CompletedInstallments >= l.TotalInstallments }

// IsDue reports whether the loan is active and its next installment falls on or before today.
func (l Loan) IsDue(today time.Time) bool {
	return l.Status == LoanActive && l.NextDueDate != nil && !l.NextDueDate.After(Day(today))
}

// IsOverdue reports whether the loan is active and its next installment is strictly before today.
func (l Loan) IsOverdue(today time.Time) bool {
	return l.Status == LoanActive && l.NextDueDate != nil && l.NextDueDate.Before(Day(today))
}

// Outstanding is the EMI times the remaining installments; zero once closed or complete.
func (l Loan) Outstanding() decimal.Decimal {
	if l.Status == LoanClosed || l.IsCompleted() {
		return decimal.Zero
	}
	return amount.Round(l.EMI.Mul(decimal.NewFromInt(int64(l.Remaining()))))
}

// CompletionPercent is completed/total as a percentage with two places.
func (l Loan) CompletionPercent() decimal.Decimal {
	if l.TotalInstallments <= 0 {
		return decimal.Zero
	}
	done := decimal.NewFromInt(int64(l.CompletedInstallments)).Mul(decimal.NewFromInt(100))
	return done.DivRound(decimal.NewFromInt(int64(l.TotalInstallments)), amount.Places)
}

// Day truncates t to midnight UTC of its calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// AddDays returns the calendar day n days after t.
func AddDays(t time.Time, n int) time.Time { return Day(t).AddDate(0, 0, n) }

// DaysBetween returns the whole days from a to b.
func DaysBetween(a, b time.Time) int {
	return int(Day(b).Sub(Day(a)).Hours() / 24)
}

// DatePtr returns a pointer to Day(t).
func DatePtr(t time.Time) *time.Time { d := Day(t); return &d }
