package ledger

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleLoan() Loan {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	return Loan{
		EMI:               decimal.RequireFromString("100.00"),
		TotalInstallments: 4,
		IntervalDays:      30,
		StartDate:         start,
		NextDueDate:       DatePtr(start.AddDate(0, 0, 30)),
		Status:            LoanActive,
	}
}

func TestLoanOutstandingAndCompletion(t *testing.T) {
	l := sampleLoan()
	l.CompletedInstallments = 1
	assert.Equal(t, "300.00", l.Outstanding().StringFixed(2))
	assert.Equal(t, "300.00", l.Outstanding().StringFixed(2), "outstanding must be idempotent")
	assert.Equal(t, "25.00", l.CompletionPercent().StringFixed(2))
	assert.Equal(t, 3, l.Remaining())

	l.CompletedInstallments = 4
	l.Status = LoanClosed
	assert.True(t, l.Outstanding().IsZero())
	assert.Equal(t, 0, l.Remaining())
}

func TestLoanDueAndOverdue(t *testing.T) {
	l := sampleLoan()
	due := *l.NextDueDate

	assert.False(t, l.IsDue(due.AddDate(0, 0, -1)))
	assert.True(t, l.IsDue(due.Add(15*time.Hour)))
	assert.False(t, l.IsOverdue(due), "due today is not overdue")
	assert.True(t, l.IsOverdue(due.AddDate(0, 0, 1)))

	l.Status = LoanDefaulted
	assert.False(t, l.IsOverdue(due.AddDate(0, 0, 1)))
	l.Status = LoanActive
	l.NextDueDate = nil
	assert.False(t, l.IsDue(due))
}

func TestEntrySignedAmount(t *testing.T) {
	e := Entry{Amount: decimal.RequireFromString("12.50"), Type: EntryDebit}
	require.Equal(t, "-12.50", e.SignedAmount().StringFixed(2))
	e.Type = EntryCredit
	require.Equal(t, "12.50", e.SignedAmount().StringFixed(2))
}

func TestDayHelpers(t *testing.T) {
	a := time.Date(2025, 3, 1, 23, 59, 0, 0, time.UTC)
	b := time.Date(2025, 3, 31, 0, 1, 0, 0, time.UTC)
	assert.Equal(t, 30, DaysBetween(a, b))
	assert.Equal(t, time.Date(2025, 3, 8, 0, 0, 0, 0, time.UTC), AddDays(a, 7))
	assert.True(t, LoanDefaulted.Valid())
	assert.False(t, LoanStatus("PAUSED").Valid())
}
