// Package amortization computes fixed installment amounts and their
// interest/principal breakdown for loans repaid every N days.
package amortization

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tinoosan/loanledger/internal/amount"
	"github.com/tinoosan/loanledger/internal/errs"
	"github.com/tinoosan/loanledger/internal/ledger"
)

// RatePrecision is the number of decimal digits kept for the per-period rate.
const RatePrecision int32 = 10

// MaxInstallments caps the installment count of a single loan: 100 years of
// monthly payments.
const MaxInstallments = 1200

// growthPrecision bounds the digits carried through compounding.
const growthPrecision = RatePrecision + 8

var (
	daysPerYear = decimal.NewFromInt(365)
	hundred     = decimal.NewFromInt(100)
	one         = decimal.NewFromInt(1)
)

// PeriodRate converts an annual percentage rate into the fractional rate for
// one interval of intervalDays.
func PeriodRate(annualRate decimal.Decimal, intervalDays int) decimal.Decimal {
	periodsPerYear := daysPerYear.DivRound(decimal.NewFromInt(int64(intervalDays)), 16)
	return annualRate.DivRound(periodsPerYear.Mul(hundred), RatePrecision)
}

func validate(principal, annualRate decimal.Decimal, n, intervalDays int) error {
	switch {
	case !principal.IsPositive():
		return errs.Invalid("principal", "must be greater than zero")
	case annualRate.IsNegative():
		return errs.Invalid("annual_rate", "must not be negative")
	case n <= 0:
		return errs.Invalid("total_installments", "must be greater than zero")
	case n > MaxInstallments:
		return errs.Invalid("total_installments", fmt.Sprintf("must not exceed %d", MaxInstallments))
	case intervalDays <= 0:
		return errs.Invalid("interval_days", "must be greater than zero")
	}
	return nil
}

// EMI returns the equal installment that repays principal at annualRate
// (percent) over n installments spaced intervalDays apart, rounded half-up to
// two places.
func EMI(principal, annualRate decimal.Decimal, n, intervalDays int) (decimal.Decimal, error) {
	if err := validate(principal, annualRate, n, intervalDays); err != nil {
		return decimal.Zero, err
	}
	count := decimal.NewFromInt(int64(n))
	if annualRate.IsZero() {
		return principal.DivRound(count, amount.Places), nil
	}
	i := PeriodRate(annualRate, intervalDays)
	growth := compound(one.Add(i), n)
	denom := growth.Sub(one)
	if !denom.IsPositive() {
		// rate too small to register at RatePrecision
		return principal.DivRound(count, amount.Places), nil
	}
	return principal.Mul(i).Mul(growth).DivRound(denom, amount.Places), nil
}

// compound returns base^n by repeated multiplication, truncated to
// growthPrecision digits at each step.
func compound(base decimal.Decimal, n int) decimal.Decimal {
	out := one
	for k := 0; k < n; k++ {
		out = out.Mul(base).Truncate(growthPrecision)
	}
	return out
}

// Installment is one row of a repayment schedule.
type Installment struct {
	Number    int             `json:"number"`
	DueDate   time.Time       `json:"due_date"`
	Payment   decimal.Decimal `json:"payment"`
	Interest  decimal.Decimal `json:"interest"`
	Principal decimal.Decimal `json:"principal"`
	Balance   decimal.Decimal `json:"balance"`
}

// Schedule splits each installment of a loan into interest and principal.
// The final row absorbs rounding drift so the balance lands on zero.
func Schedule(l ledger.Loan) ([]Installment, error) {
	if err := validate(l.Principal, l.AnnualRate, l.TotalInstallments, l.IntervalDays); err != nil {
		return nil, err
	}
	if !l.EMI.IsPositive() {
		return nil, errs.Invalid("emi", "must be greater than zero")
	}
	i := PeriodRate(l.AnnualRate, l.IntervalDays)
	balance := l.Principal
	due := ledger.Day(l.StartDate)
	rows := make([]Installment, 0, l.TotalInstallments)
	for k := 1; k <= l.TotalInstallments; k++ {
		due = ledger.AddDays(due, l.IntervalDays)
		interest := amount.Round(balance.Mul(i))
		principalPart := l.EMI.Sub(interest)
		if k == l.TotalInstallments || principalPart.GreaterThan(balance) {
			principalPart = balance
		}
		if principalPart.IsNegative() {
			principalPart = decimal.Zero
		}
		balance = balance.Sub(principalPart)
		rows = append(rows, Installment{
			Number:    k,
			DueDate:   due,
			Payment:   interest.Add(principalPart),
			Interest:  interest,
			Principal: principalPart,
			Balance:   balance,
		})
	}
	return rows, nil
}
