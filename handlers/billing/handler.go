package billing

import (
	"errors"
	"log/slog"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/tuition-api/services"
	"github.com/sahilchouksey/tuition-api/utils/response"
	"github.com/sahilchouksey/tuition-api/utils/validation"
)

// BillingHandler exposes payment plans, balances and settlements
type BillingHandler struct {
	plans       *services.PlanService
	ledger      *services.LedgerService
	settlements *services.SettlementService
	validator   *validation.Validator
	debug       bool
}

// NewBillingHandler creates a new billing handler. With debug set, error
// responses carry the underlying error text.
func NewBillingHandler(plans *services.PlanService, ledger *services.LedgerService, settlements *services.SettlementService, debug bool) *BillingHandler {
	return &BillingHandler{
		plans:       plans,
		ledger:      ledger,
		settlements: settlements,
		validator:   validation.NewValidator(),
		debug:       debug,
	}
}

type errorKind struct {
	target  error
	status  int
	code    string
	message string
}

// Checked in order; the first match wins.
var errorKinds = []errorKind{
	{services.ErrInvalidPlan, fiber.StatusUnprocessableEntity, "INVALID_PLAN", "Invalid payment plan"},
	{services.ErrInvalidAmount, fiber.StatusUnprocessableEntity, "INVALID_AMOUNT", "Amount must be greater than zero"},
	{services.ErrAlreadyPaid, fiber.StatusConflict, "ALREADY_PAID", "Installment is already fully paid"},
	{services.ErrInsufficientRemaining, fiber.StatusConflict, "INSUFFICIENT_REMAINING", "Amount exceeds the remaining balance"},
	{services.ErrPlanExists, fiber.StatusConflict, "PLAN_EXISTS", "Enrollment already has a payment plan"},
	{services.ErrPlanLocked, fiber.StatusConflict, "PLAN_LOCKED", "Payment plan has settlements and can no longer change"},
	{services.ErrInstallmentLocked, fiber.StatusConflict, "INSTALLMENT_LOCKED", "Installment has settlements and cannot be deleted"},
	{services.ErrReconciliationMismatch, fiber.StatusConflict, "RECONCILIATION_MISMATCH", "Gateway data does not match the settlement"},
	{services.ErrInvalidTransition, fiber.StatusConflict, "INVALID_TRANSITION", "Settlement is already in a final state"},
	{services.ErrGatewayUnavailable, fiber.StatusServiceUnavailable, "GATEWAY_UNAVAILABLE", "Payment gateway is unavailable"},
	{services.ErrGatewayRequest, fiber.StatusBadGateway, "GATEWAY_REQUEST_FAILED", "Payment gateway request failed"},
	{services.ErrEnrollmentNotFound, fiber.StatusNotFound, "NOT_FOUND", "Enrollment not found"},
	{services.ErrPlanNotFound, fiber.StatusNotFound, "NOT_FOUND", "Payment plan not found"},
	{services.ErrInstallmentNotFound, fiber.StatusNotFound, "NOT_FOUND", "Installment not found"},
	{services.ErrSettlementNotFound, fiber.StatusNotFound, "NOT_FOUND", "Settlement not found"},
}

// fail maps a service error to its response envelope
func (h *BillingHandler) fail(c *fiber.Ctx, err error) error {
	for _, k := range errorKinds {
		if errors.Is(err, k.target) {
			return h.errorResponse(c, k.status, k.message, k.code, err)
		}
	}

	slog.Error("billing request failed", "method", c.Method(), "path", c.Path(), "error", err)
	return h.errorResponse(c, fiber.StatusInternalServerError, "Internal server error", "INTERNAL_ERROR", err)
}

func (h *BillingHandler) errorResponse(c *fiber.Ctx, status int, message, code string, err error) error {
	if h.debug {
		return response.ErrorWithDetails(c, status, message, code, err.Error())
	}
	return response.Error(c, status, message, code)
}

func paramID(c *fiber.Ctx, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Params(name), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}
