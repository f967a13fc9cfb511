// Package calculator turns a program cost and its reductions into an
// installment schedule. It performs no I/O.
package calculator

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

const (
	// Scale is the currency precision used for every stored amount
	Scale = 2

	// DepositWindowDays is how long the up-front deposit stays payable
	DepositWindowDays = 15

	// MaxInstallments caps the monthly cadence of a single plan
	MaxInstallments = 120
)

var (
	ErrInvalidPlan = errors.New("invalid payment plan")

	// Epsilon is the tolerance for comparing money sums
	Epsilon = decimal.New(1, -Scale)

	depositRate = decimal.NewFromFloat(0.20)
	hundred     = decimal.NewFromInt(100)
)

// PlanInput holds everything needed to compute a schedule
type PlanInput struct {
	ProgramCost      decimal.Decimal
	DiscountPercent  decimal.Decimal
	AgreementPercent decimal.Decimal
	InstallmentCount int
	IncludeDeposit   bool

	// Amounts optionally fixes each monthly installment. It must hold exactly
	// InstallmentCount entries summing to the amount left after the deposit.
	Amounts []decimal.Decimal
}

// ScheduledInstallment is one computed slice of the plan
type ScheduledInstallment struct {
	Sequence  int
	Label     string
	StartDate time.Time
	DueDate   time.Time
	Amount    decimal.Decimal
}

// Schedule is the result of Compute
type Schedule struct {
	FinalAmount   decimal.Decimal
	DepositAmount decimal.Decimal
	Installments  []ScheduledInstallment
}

// Total sums the scheduled amounts
func (s Schedule) Total() decimal.Decimal {
	total := decimal.Zero
	for _, inst := range s.Installments {
		total = total.Add(inst.Amount)
	}
	return total
}

// Round rounds to currency precision
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(Scale)
}

// WithinEpsilon reports whether a and b differ by at most one cent
func WithinEpsilon(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(Epsilon)
}

// FinalAmount applies the discount and agreement percentages to cost,
// floored at zero and rounded to currency precision.
func FinalAmount(cost, discountPercent, agreementPercent decimal.Decimal) decimal.Decimal {
	discount := cost.Mul(discountPercent).Div(hundred)
	agreement := cost.Mul(agreementPercent).Div(hundred)
	final := cost.Sub(discount).Sub(agreement)
	if final.IsNegative() {
		return decimal.Zero
	}
	return Round(final)
}

// SplitEvenly divides total into n parts truncated to currency precision.
// The last part absorbs the remainder so the parts always sum to total.
func SplitEvenly(total decimal.Decimal, n int) []decimal.Decimal {
	if n < 1 {
		return nil
	}
	total = Round(total)
	base := total.DivRound(decimal.NewFromInt(int64(n)), Scale+4).Truncate(Scale)
	parts := make([]decimal.Decimal, n)
	for i := 0; i < n-1; i++ {
		parts[i] = base
	}
	parts[n-1] = total.Sub(base.Mul(decimal.NewFromInt(int64(n - 1))))
	return parts
}

// MonthWindow returns the first instant and the last second of the month
// offset months after now's month, in now's location.
func MonthWindow(now time.Time, offset int) (start, end time.Time) {
	start = time.Date(now.Year(), now.Month()+time.Month(offset), 1, 0, 0, 0, 0, now.Location())
	end = start.AddDate(0, 1, 0).Add(-time.Second)
	return start, end
}

// Validate checks the input without computing anything
func (in PlanInput) Validate() error {
	if in.InstallmentCount < 1 {
		return fmt.Errorf("%w: installment count must be at least 1", ErrInvalidPlan)
	}
	if in.InstallmentCount > MaxInstallments {
		return fmt.Errorf("%w: installment count must be at most %d", ErrInvalidPlan, MaxInstallments)
	}
	if !in.ProgramCost.IsPositive() {
		return fmt.Errorf("%w: program cost must be greater than zero", ErrInvalidPlan)
	}
	if !validPercent(in.DiscountPercent) {
		return fmt.Errorf("%w: discount percent must be between 0 and 100", ErrInvalidPlan)
	}
	if !validPercent(in.AgreementPercent) {
		return fmt.Errorf("%w: agreement percent must be between 0 and 100", ErrInvalidPlan)
	}
	if in.Amounts != nil && len(in.Amounts) != in.InstallmentCount {
		return fmt.Errorf("%w: expected %d installment amounts, got %d", ErrInvalidPlan, in.InstallmentCount, len(in.Amounts))
	}
	for i, a := range in.Amounts {
		if a.IsNegative() {
			return fmt.Errorf("%w: installment amount %d is negative", ErrInvalidPlan, i+1)
		}
	}
	return nil
}

func validPercent(p decimal.Decimal) bool {
	return !p.IsNegative() && p.LessThanOrEqual(hundred)
}

// Compute builds the schedule for in as of now
func Compute(in PlanInput, now time.Time) (Schedule, error) {
	if err := in.Validate(); err != nil {
		return Schedule{}, err
	}

	final := FinalAmount(in.ProgramCost, in.DiscountPercent, in.AgreementPercent)
	sched := Schedule{FinalAmount: final, DepositAmount: decimal.Zero}

	distributable := final
	if in.IncludeDeposit {
		deposit := Round(final.Mul(depositRate))
		sched.DepositAmount = deposit
		distributable = final.Sub(deposit)
		sched.Installments = append(sched.Installments, ScheduledInstallment{
			Sequence:  0,
			Label:     "Deposit",
			StartDate: now,
			DueDate:   now.AddDate(0, 0, DepositWindowDays),
			Amount:    deposit,
		})
	}

	amounts, err := monthlyAmounts(in, distributable)
	if err != nil {
		return Schedule{}, err
	}

	for i, amount := range amounts {
		start, due := MonthWindow(now, i+1)
		sched.Installments = append(sched.Installments, ScheduledInstallment{
			Sequence:  i + 1,
			Label:     fmt.Sprintf("Installment %d of %d", i+1, in.InstallmentCount),
			StartDate: start,
			DueDate:   due,
			Amount:    amount,
		})
	}

	return sched, nil
}

func monthlyAmounts(in PlanInput, distributable decimal.Decimal) ([]decimal.Decimal, error) {
	if in.Amounts == nil {
		return SplitEvenly(distributable, in.InstallmentCount), nil
	}

	amounts := make([]decimal.Decimal, len(in.Amounts))
	sum := decimal.Zero
	for i, a := range in.Amounts {
		amounts[i] = Round(a)
		sum = sum.Add(amounts[i])
	}
	if !WithinEpsilon(sum, distributable) {
		return nil, fmt.Errorf("%w: installment amounts sum to %s, expected %s",
			ErrInvalidPlan, sum.StringFixed(Scale), distributable.StringFixed(Scale))
	}

	// a sub-cent difference goes to the last installment
	last := len(amounts) - 1
	amounts[last] = amounts[last].Add(distributable.Sub(sum))
	if amounts[last].IsNegative() {
		return nil, fmt.Errorf("%w: last installment would be negative", ErrInvalidPlan)
	}
	return amounts, nil
}
