package services

import (
	"errors"

	"github.com/sahilchouksey/tuition-api/services/calculator"
)

// Billing errors. Callers match them with errors.Is; handlers map each one
// to a stable error code.
var (
	ErrInvalidPlan            = calculator.ErrInvalidPlan
	ErrPlanExists             = errors.New("enrollment already has a payment plan")
	ErrPlanLocked             = errors.New("payment plan has settlements and can no longer change")
	ErrInstallmentLocked      = errors.New("installment has settlements and cannot be deleted")
	ErrAlreadyPaid            = errors.New("installment is already fully paid")
	ErrInsufficientRemaining  = errors.New("amount exceeds the installment's remaining balance")
	ErrInvalidAmount          = errors.New("amount must be greater than zero")
	ErrGatewayUnavailable     = errors.New("payment gateway is unavailable")
	ErrGatewayRequest         = errors.New("payment gateway request failed")
	ErrReconciliationMismatch = errors.New("gateway data does not match the stored settlement")
	ErrInvalidTransition      = errors.New("settlement is already in a final state")
	ErrSettlementNotFound     = errors.New("settlement not found")
	ErrInstallmentNotFound    = errors.New("installment not found")
	ErrPlanNotFound           = errors.New("payment plan not found")
	ErrEnrollmentNotFound     = errors.New("enrollment not found")
	ErrNotificationNotFound   = errors.New("notification not found")
)
