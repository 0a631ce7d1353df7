package dictionary

import (
	"strconv"

	"github.com/tinoosan/loanledger/internal/ledger"
)

// FrequencyDef names a common repayment interval.
type FrequencyDef struct {
	IntervalDays int    `json:"interval_days"`
	Code         string `json:"code"`
	Label        string `json:"label"`
}

var frequencies = []FrequencyDef{
	{IntervalDays: 1, Code: "daily", Label: "Daily"},
	{IntervalDays: 7, Code: "weekly", Label: "Weekly"},
	{IntervalDays: 14, Code: "bi_weekly", Label: "Bi-weekly"},
	{IntervalDays: 15, Code: "semi_monthly", Label: "Semi-monthly"},
	{IntervalDays: 30, Code: "monthly", Label: "Monthly"},
	{IntervalDays: 90, Code: "quarterly", Label: "Quarterly"},
}

// Frequencies returns the named intervals in ascending order.
func Frequencies() []FrequencyDef {
	out := make([]FrequencyDef, len(frequencies))
	copy(out, frequencies)
	return out
}

// FrequencyLabel describes an interval for humans, e.g. "Monthly" or "Every 45 days".
func FrequencyLabel(intervalDays int) string {
	for _, f := range frequencies {
		if f.IntervalDays == intervalDays {
			return f.Label
		}
	}
	return "Every " + strconv.Itoa(intervalDays) + " days"
}

// CategoryDef labels an entry category.
type CategoryDef struct {
	Code  ledger.Category `json:"code"`
	Label string          `json:"label"`
}

var categories = []CategoryDef{
	{Code: ledger.CategoryOpeningBalance, Label: "Opening Balance"},
	{Code: ledger.CategoryLoanDisbursement, Label: "Loan Disbursement"},
	{Code: ledger.CategoryLoanEMI, Label: "Loan EMI"},
}

// Categories returns the entry categories the engine posts.
func Categories() []CategoryDef {
	out := make([]CategoryDef, len(categories))
	copy(out, categories)
	return out
}

// CategoryLabel returns the label for c, or c itself when unknown.
func CategoryLabel(c ledger.Category) string {
	for _, d := range categories {
		if d.Code == c {
			return d.Label
		}
	}
	return string(c)
}
