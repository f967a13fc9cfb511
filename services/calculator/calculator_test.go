package calculator

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, time.January, 10, 14, 30, 0, 0, time.UTC)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestComputeEvenSplitWithoutDeposit(t *testing.T) {
	sched, err := Compute(PlanInput{
		ProgramCost:      d("15000"),
		InstallmentCount: 6,
	}, fixedNow)
	require.NoError(t, err)

	require.Len(t, sched.Installments, 6)
	for i, inst := range sched.Installments {
		assert.True(t, inst.Amount.Equal(d("2500.00")), "installment %d = %s", i, inst.Amount)
		assert.Equal(t, i+1, inst.Sequence)
	}
	assert.True(t, sched.FinalAmount.Equal(d("15000")))
	assert.True(t, sched.DepositAmount.IsZero())
}

func TestComputeDiscountWithDeposit(t *testing.T) {
	sched, err := Compute(PlanInput{
		ProgramCost:      d("10000"),
		DiscountPercent:  d("10"),
		InstallmentCount: 3,
		IncludeDeposit:   true,
	}, fixedNow)
	require.NoError(t, err)

	assert.True(t, sched.FinalAmount.Equal(d("9000")))
	require.Len(t, sched.Installments, 4)

	deposit := sched.Installments[0]
	assert.Equal(t, 0, deposit.Sequence)
	assert.True(t, deposit.Amount.Equal(d("1800")))
	assert.Equal(t, fixedNow.AddDate(0, 0, 15), deposit.DueDate)

	for _, inst := range sched.Installments[1:] {
		assert.True(t, inst.Amount.Equal(d("2400")), "got %s", inst.Amount)
	}
	assert.True(t, sched.Total().Equal(d("9000")))
}

func TestComputeMonthlyDueDatesAreMonthEnds(t *testing.T) {
	sched, err := Compute(PlanInput{ProgramCost: d("1200"), InstallmentCount: 3}, fixedNow)
	require.NoError(t, err)

	want := []time.Time{
		time.Date(2026, time.February, 28, 23, 59, 59, 0, time.UTC),
		time.Date(2026, time.March, 31, 23, 59, 59, 0, time.UTC),
		time.Date(2026, time.April, 30, 23, 59, 59, 0, time.UTC),
	}
	for i, inst := range sched.Installments {
		assert.Equal(t, want[i], inst.DueDate)
		assert.Equal(t, 1, inst.StartDate.Day())
	}
}

func TestComputeRemainderGoesToLastInstallment(t *testing.T) {
	sched, err := Compute(PlanInput{ProgramCost: d("1000"), InstallmentCount: 3}, fixedNow)
	require.NoError(t, err)

	assert.True(t, sched.Installments[0].Amount.Equal(d("333.33")))
	assert.True(t, sched.Installments[1].Amount.Equal(d("333.33")))
	assert.True(t, sched.Installments[2].Amount.Equal(d("333.34")))
}

func TestComputeSumMatchesFinalAmount(t *testing.T) {
	costs := []string{"0.07", "1", "99.99", "1234.56", "15000", "77777.77", "100000.01"}
	percents := []string{"0", "3.5", "12.25", "33.33", "50"}

	for _, cost := range costs {
		for _, disc := range percents {
			for _, agr := range percents {
				for count := 1; count <= 13; count++ {
					for _, deposit := range []bool{false, true} {
						in := PlanInput{
							ProgramCost:      d(cost),
							DiscountPercent:  d(disc),
							AgreementPercent: d(agr),
							InstallmentCount: count,
							IncludeDeposit:   deposit,
						}
						sched, err := Compute(in, fixedNow)
						require.NoError(t, err)
						require.True(t, WithinEpsilon(sched.Total(), sched.FinalAmount),
							"cost=%s disc=%s agr=%s n=%d deposit=%v total=%s final=%s",
							cost, disc, agr, count, deposit, sched.Total(), sched.FinalAmount)
						for _, inst := range sched.Installments {
							require.False(t, inst.Amount.IsNegative())
						}
					}
				}
			}
		}
	}
}

func TestFinalAmountFlooredAtZero(t *testing.T) {
	assert.True(t, FinalAmount(d("1000"), d("60"), d("50")).IsZero())
	assert.True(t, FinalAmount(d("1000"), d("10"), d("15")).Equal(d("750")))
}

func TestComputeExplicitAmounts(t *testing.T) {
	in := PlanInput{
		ProgramCost:      d("3000"),
		InstallmentCount: 3,
		Amounts:          []decimal.Decimal{d("500"), d("1000"), d("1500")},
	}
	sched, err := Compute(in, fixedNow)
	require.NoError(t, err)
	assert.True(t, sched.Installments[2].Amount.Equal(d("1500")))
	assert.True(t, sched.Total().Equal(d("3000")))

	in.Amounts = []decimal.Decimal{d("500"), d("1000"), d("1400")}
	_, err = Compute(in, fixedNow)
	assert.True(t, errors.Is(err, ErrInvalidPlan))

	in.Amounts = []decimal.Decimal{d("1500"), d("1500")}
	_, err = Compute(in, fixedNow)
	assert.True(t, errors.Is(err, ErrInvalidPlan))
}

func TestComputeRejectsInvalidInput(t *testing.T) {
	cases := map[string]PlanInput{
		"zero count":         {ProgramCost: d("1000"), InstallmentCount: 0},
		"too many":           {ProgramCost: d("1000"), InstallmentCount: MaxInstallments + 1},
		"zero cost":          {ProgramCost: decimal.Zero, InstallmentCount: 3},
		"negative cost":      {ProgramCost: d("-5"), InstallmentCount: 3},
		"discount over 100":  {ProgramCost: d("1000"), InstallmentCount: 3, DiscountPercent: d("101")},
		"negative agreement": {ProgramCost: d("1000"), InstallmentCount: 3, AgreementPercent: d("-1")},
		"negative amount": {ProgramCost: d("1000"), InstallmentCount: 2,
			Amounts: []decimal.Decimal{d("1100"), d("-100")}},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Compute(in, fixedNow)
			assert.True(t, errors.Is(err, ErrInvalidPlan), "got %v", err)
		})
	}
}

func TestSplitEvenly(t *testing.T) {
	parts := SplitEvenly(d("0.05"), 3)
	require.Len(t, parts, 3)
	assert.True(t, parts[0].Equal(d("0.01")))
	assert.True(t, parts[2].Equal(d("0.03")))
	assert.Nil(t, SplitEvenly(d("10"), 0))
}
