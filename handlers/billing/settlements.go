package billing

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/tuition-api/model"
	"github.com/sahilchouksey/tuition-api/services"
	"github.com/sahilchouksey/tuition-api/utils/middleware"
	"github.com/sahilchouksey/tuition-api/utils/response"
	"github.com/sahilchouksey/tuition-api/utils/validation"
	"github.com/shopspring/decimal"
)

// ManualPaymentRequest is the body of a manual payment. PayerKind and
// PayerID are optional; the enrolled student is assumed otherwise.
type ManualPaymentRequest struct {
	Amount    decimal.Decimal `json:"amount" validate:"gt=0"`
	PayerKind string          `json:"payer_kind,omitempty" validate:"omitempty,oneof=student teacher admin"`
	PayerID   uint            `json:"payer_id,omitempty" validate:"required_with=PayerKind"`
	Notes     string          `json:"notes,omitempty" validate:"max=1000"`
}

// MarkFailedRequest is the body of a manual failure
type MarkFailedRequest struct {
	Reason string `json:"reason" validate:"required,min=3,max=500"`
}

// RequestQR handles POST /api/v1/installments/:id/qr
func (h *BillingHandler) RequestQR(c *fiber.Ctx) error {
	payer, ok := middleware.GetPayer(c)
	if !ok {
		return response.Unauthorized(c, "User not authenticated")
	}

	installmentID, ok := paramID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid installment ID")
	}

	result, err := h.settlements.RequestQR(c.Context(), installmentID, payer)
	if err != nil {
		return h.fail(c, err)
	}

	if result.Reused {
		return response.SuccessWithMessage(c, "Active QR reused", result)
	}
	return response.Created(c, result)
}

// RecordManualPayment handles POST /api/v1/installments/:id/manual-payments
func (h *BillingHandler) RecordManualPayment(c *fiber.Ctx) error {
	verifier, ok := middleware.GetPayer(c)
	if !ok {
		return response.Unauthorized(c, "User not authenticated")
	}

	installmentID, ok := paramID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid installment ID")
	}

	var req ManualPaymentRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	var payer model.PayerIdentity
	if req.PayerKind != "" {
		kind, _ := model.ParsePayerKind(req.PayerKind)
		payer = model.PayerIdentity{Kind: kind, ID: req.PayerID}
	}

	settlement, err := h.settlements.RecordManualPayment(c.Context(), services.ManualPaymentRequest{
		InstallmentID: installmentID,
		Amount:        req.Amount,
		Verifier:      verifier,
		Payer:         payer,
		Notes:         validation.SanitizeString(req.Notes),
	})
	if err != nil {
		return h.fail(c, err)
	}

	return response.Created(c, settlement)
}

// PollStatus handles GET /api/v1/settlements/:id/status
func (h *BillingHandler) PollStatus(c *fiber.Ctx) error {
	settlementID, ok := paramID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid settlement ID")
	}

	result, err := h.settlements.PollStatus(c.Context(), settlementID)
	if err != nil {
		return h.fail(c, err)
	}

	return response.Success(c, result)
}

// MarkFailed handles POST /api/v1/settlements/:id/fail
func (h *BillingHandler) MarkFailed(c *fiber.Ctx) error {
	settlementID, ok := paramID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid settlement ID")
	}

	var req MarkFailedRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	settlement, err := h.settlements.MarkFailed(c.Context(), settlementID, validation.SanitizeString(req.Reason))
	if err != nil {
		return h.fail(c, err)
	}

	return response.SuccessWithMessage(c, "Settlement marked as failed", settlement)
}
