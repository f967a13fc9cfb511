package services

import (
	"context"
	"testing"
	"time"

	"github.com/sahilchouksey/tuition-api/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanSummary(t *testing.T) {
	f := newBillingFixture(t)
	plan := f.evenPlan(t, "6000", 3)

	_, err := f.settlements.RecordManualPayment(context.Background(), ManualPaymentRequest{InstallmentID: plan.Installments[0].ID, Amount: dec("2000")})
	require.NoError(t, err)
	_, err = f.settlements.RecordManualPayment(context.Background(), ManualPaymentRequest{InstallmentID: plan.Installments[1].ID, Amount: dec("500")})
	require.NoError(t, err)

	// an unconfirmed attempt never counts
	pending := &model.Settlement{
		InstallmentID:     plan.Installments[2].ID,
		Amount:            dec("2000"),
		Currency:          "BOB",
		Method:            model.SettlementMethodQR,
		Status:            model.SettlementRequested,
		ExternalReference: "TUI-PENDING",
		RequestedAt:       time.Now().UTC(),
	}
	require.NoError(t, f.db.Create(pending).Error)

	summary, err := f.ledger.PlanSummary(context.Background(), plan.ID)
	require.NoError(t, err)
	require.Len(t, summary.Installments, 3)
	assertMoney(t, "6000", summary.TotalAmount)
	assertMoney(t, "2500", summary.PaidAmount)
	assertMoney(t, "3500", summary.RemainingAmount)
	assert.False(t, summary.Complete)

	assert.Equal(t, model.InstallmentPaid, summary.Installments[0].Status)
	assert.Equal(t, model.InstallmentPartiallyPaid, summary.Installments[1].Status)
	assertMoney(t, "1500", summary.Installments[1].Remaining)
	assert.Equal(t, model.InstallmentPending, summary.Installments[2].Status)
	assertMoney(t, "0", summary.Installments[2].Paid)

	_, err = f.settlements.RecordManualPayment(context.Background(), ManualPaymentRequest{InstallmentID: plan.Installments[2].ID, Amount: dec("2000")})
	require.NoError(t, err)
	_, err = f.settlements.RecordManualPayment(context.Background(), ManualPaymentRequest{InstallmentID: plan.Installments[1].ID, Amount: dec("1500")})
	require.NoError(t, err)

	summary, err = f.ledger.PlanSummary(context.Background(), plan.ID)
	require.NoError(t, err)
	assert.True(t, summary.Complete)
	assertMoney(t, "0", summary.RemainingAmount)
}

func TestInstallmentBalanceOverdue(t *testing.T) {
	f := newBillingFixture(t)
	plan := f.evenPlan(t, "3000", 1)
	inst := plan.Installments[0]

	f.ledger.now = func() time.Time { return inst.DueDate.Add(time.Hour) }

	balance, err := f.ledger.InstallmentBalance(context.Background(), inst.ID)
	require.NoError(t, err)
	assert.True(t, balance.Overdue)
	assert.Equal(t, model.InstallmentOverdue, balance.Status)
	assertMoney(t, "3000", balance.Remaining)

	_, err = f.ledger.InstallmentBalance(context.Background(), 4242)
	assert.ErrorIs(t, err, ErrInstallmentNotFound)

	_, err = f.ledger.PlanSummary(context.Background(), 4242)
	assert.ErrorIs(t, err, ErrPlanNotFound)
}

func TestBalanceOfClampsRemaining(t *testing.T) {
	inst := &model.Installment{Amount: dec("100"), DueDate: time.Now().Add(time.Hour)}
	b := BalanceOf(inst, dec("100"), time.Now())
	assert.True(t, b.FullyPaid)
	assertMoney(t, "0", b.Remaining)
}
