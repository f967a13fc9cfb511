package services

import (
	"context"
	"testing"
	"time"

	"github.com/sahilchouksey/tuition-api/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeneratePlanEvenSplit(t *testing.T) {
	f := newBillingFixture(t)
	enrollment := createEnrollment(t, f.db, "15000")

	plan, err := f.plans.GeneratePlan(context.Background(), GeneratePlanRequest{
		EnrollmentID:     enrollment.ID,
		InstallmentCount: 6,
	})
	require.NoError(t, err)

	assertMoney(t, "15000", plan.TotalAmount)
	assert.Equal(t, "BOB", plan.Currency)
	assert.Nil(t, plan.AgreementID)

	stored, err := f.plans.GetPlan(context.Background(), plan.ID)
	require.NoError(t, err)
	require.Len(t, stored.Installments, 6)
	for i, inst := range stored.Installments {
		assert.Equal(t, i+1, inst.Sequence)
		assertMoney(t, "2500", inst.Amount)
	}
	assertMoney(t, "15000", stored.ScheduledTotal())
}

func TestGeneratePlanWithDiscountAndDeposit(t *testing.T) {
	f := newBillingFixture(t)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	f.plans.now = func() time.Time { return now }
	enrollment := createEnrollment(t, f.db, "10000")

	plan, err := f.plans.GeneratePlan(context.Background(), GeneratePlanRequest{
		EnrollmentID:     enrollment.ID,
		DiscountPercent:  decimal.NewFromInt(10),
		InstallmentCount: 3,
		IncludeDeposit:   true,
	})
	require.NoError(t, err)
	assertMoney(t, "9000", plan.TotalAmount)

	stored, err := f.plans.GetPlan(context.Background(), plan.ID)
	require.NoError(t, err)
	require.Len(t, stored.Installments, 4)

	deposit := stored.Installments[0]
	assert.Equal(t, 0, deposit.Sequence)
	assertMoney(t, "1800", deposit.Amount)
	assert.WithinDuration(t, now.AddDate(0, 0, 15), deposit.DueDate, time.Second)

	for _, inst := range stored.Installments[1:] {
		assertMoney(t, "2400", inst.Amount)
	}
	assert.WithinDuration(t, time.Date(2026, 4, 30, 23, 59, 59, 0, time.UTC), stored.Installments[1].DueDate, time.Second)
}

func TestGeneratePlanInvalidCountPersistsNothing(t *testing.T) {
	f := newBillingFixture(t)
	enrollment := createEnrollment(t, f.db, "10000")

	_, err := f.plans.GeneratePlan(context.Background(), GeneratePlanRequest{
		EnrollmentID:     enrollment.ID,
		InstallmentCount: 0,
	})
	require.ErrorIs(t, err, ErrInvalidPlan)

	var plans, installments int64
	f.db.Model(&model.PaymentPlan{}).Count(&plans)
	f.db.Model(&model.Installment{}).Count(&installments)
	assert.Zero(t, plans)
	assert.Zero(t, installments)
}

func TestGeneratePlanRejectsSecondPlan(t *testing.T) {
	f := newBillingFixture(t)
	plan := f.evenPlan(t, "6000", 3)

	_, err := f.plans.GeneratePlan(context.Background(), GeneratePlanRequest{
		EnrollmentID:     plan.EnrollmentID,
		InstallmentCount: 2,
	})
	assert.ErrorIs(t, err, ErrPlanExists)
}

func TestGeneratePlanUnknownEnrollment(t *testing.T) {
	f := newBillingFixture(t)
	_, err := f.plans.GeneratePlan(context.Background(), GeneratePlanRequest{EnrollmentID: 999, InstallmentCount: 2})
	assert.ErrorIs(t, err, ErrEnrollmentNotFound)
}

func TestGeneratePlanUsesFirstMatchingAgreement(t *testing.T) {
	f := newBillingFixture(t)
	enrollment := createEnrollment(t, f.db, "10000")

	programID := enrollment.ProgramID
	first := &model.Agreement{InstitutionID: 1, ProgramID: &programID, Name: "Convenio A", Percent: decimal.NewFromInt(15), Active: true}
	second := &model.Agreement{InstitutionID: 1, Name: "Convenio B", Percent: decimal.NewFromInt(20), Active: true}
	inactive := &model.Agreement{InstitutionID: 1, Name: "Convenio C", Percent: decimal.NewFromInt(50), Active: false}
	require.NoError(t, f.db.Create(inactive).Error)
	require.NoError(t, f.db.Create(first).Error)
	require.NoError(t, f.db.Create(second).Error)

	plan, err := f.plans.GeneratePlan(context.Background(), GeneratePlanRequest{
		EnrollmentID:     enrollment.ID,
		InstallmentCount: 2,
	})
	require.NoError(t, err)
	require.NotNil(t, plan.AgreementID)
	assert.Equal(t, first.ID, *plan.AgreementID)
	assertMoney(t, "15", plan.AgreementPercent)
	assertMoney(t, "8500", plan.TotalAmount)
}

func TestGeneratePlanExplicitAgreementPercent(t *testing.T) {
	f := newBillingFixture(t)
	enrollment := createEnrollment(t, f.db, "10000")
	require.NoError(t, f.db.Create(&model.Agreement{InstitutionID: 1, Name: "Convenio", Percent: decimal.NewFromInt(15), Active: true}).Error)

	override := decimal.NewFromInt(5)
	plan, err := f.plans.GeneratePlan(context.Background(), GeneratePlanRequest{
		EnrollmentID:     enrollment.ID,
		AgreementPercent: &override,
		InstallmentCount: 1,
	})
	require.NoError(t, err)
	assert.Nil(t, plan.AgreementID)
	assertMoney(t, "9500", plan.TotalAmount)
}

func TestRegeneratePlan(t *testing.T) {
	f := newBillingFixture(t)
	plan := f.evenPlan(t, "12000", 6)

	updated, err := f.plans.RegeneratePlan(context.Background(), GeneratePlanRequest{
		EnrollmentID:     plan.EnrollmentID,
		InstallmentCount: 4,
	})
	require.NoError(t, err)
	assert.Equal(t, plan.ID, updated.ID)
	assert.Equal(t, 4, updated.InstallmentCount)

	stored, err := f.plans.GetPlan(context.Background(), plan.ID)
	require.NoError(t, err)
	require.Len(t, stored.Installments, 4)
	assertMoney(t, "3000", stored.Installments[0].Amount)

	_, err = f.settlements.RecordManualPayment(context.Background(), ManualPaymentRequest{
		InstallmentID: stored.Installments[0].ID,
		Amount:        dec("100"),
	})
	require.NoError(t, err)

	_, err = f.plans.RegeneratePlan(context.Background(), GeneratePlanRequest{
		EnrollmentID:     plan.EnrollmentID,
		InstallmentCount: 2,
	})
	assert.ErrorIs(t, err, ErrPlanLocked)
}

func TestDeleteInstallment(t *testing.T) {
	f := newBillingFixture(t)
	plan := f.evenPlan(t, "9000", 3)

	require.NoError(t, f.plans.DeleteInstallment(context.Background(), plan.Installments[2].ID))

	stored, err := f.plans.GetPlan(context.Background(), plan.ID)
	require.NoError(t, err)
	require.Len(t, stored.Installments, 2)
	assertMoney(t, "6000", stored.TotalAmount)
	assert.Equal(t, 2, stored.InstallmentCount)
	assert.True(t, stored.TotalAmount.Equal(stored.ScheduledTotal()))

	_, err = f.settlements.RecordManualPayment(context.Background(), ManualPaymentRequest{
		InstallmentID: plan.Installments[0].ID,
		Amount:        dec("500"),
	})
	require.NoError(t, err)

	assert.ErrorIs(t, f.plans.DeleteInstallment(context.Background(), plan.Installments[0].ID), ErrInstallmentLocked)
	assert.ErrorIs(t, f.plans.DeleteInstallment(context.Background(), plan.Installments[1].ID), ErrPlanLocked)
	assert.ErrorIs(t, f.plans.DeleteInstallment(context.Background(), 9999), ErrInstallmentNotFound)
}
