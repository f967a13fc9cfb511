package billing

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/tuition-api/services"
	"github.com/sahilchouksey/tuition-api/utils/response"
	"github.com/shopspring/decimal"
)

// PlanRequest is the body of plan generation and regeneration
type PlanRequest struct {
	DiscountPercent  decimal.Decimal   `json:"discount_percent" validate:"gte=0,lte=100"`
	AgreementPercent *decimal.Decimal  `json:"agreement_percent,omitempty" validate:"omitempty,gte=0,lte=100"`
	InstallmentCount int               `json:"installment_count" validate:"required,min=1,max=120"`
	IncludeDeposit   bool              `json:"include_deposit"`
	Amounts          []decimal.Decimal `json:"amounts,omitempty" validate:"omitempty,dive,gt=0"`
}

func (r PlanRequest) toService(enrollmentID uint) services.GeneratePlanRequest {
	return services.GeneratePlanRequest{
		EnrollmentID:     enrollmentID,
		DiscountPercent:  r.DiscountPercent,
		AgreementPercent: r.AgreementPercent,
		InstallmentCount: r.InstallmentCount,
		IncludeDeposit:   r.IncludeDeposit,
		Amounts:          r.Amounts,
	}
}

func (h *BillingHandler) parsePlanRequest(c *fiber.Ctx) (uint, *PlanRequest, error) {
	enrollmentID, ok := paramID(c, "id")
	if !ok {
		return 0, nil, response.BadRequest(c, "Invalid enrollment ID")
	}

	var req PlanRequest
	if err := c.BodyParser(&req); err != nil {
		return 0, nil, response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return 0, nil, response.ValidationError(c, err)
	}
	return enrollmentID, &req, nil
}

// GeneratePlan handles POST /api/v1/enrollments/:id/payment-plan
func (h *BillingHandler) GeneratePlan(c *fiber.Ctx) error {
	enrollmentID, req, err := h.parsePlanRequest(c)
	if req == nil {
		return err
	}

	plan, err := h.plans.GeneratePlan(c.Context(), req.toService(enrollmentID))
	if err != nil {
		return h.fail(c, err)
	}

	return response.Created(c, plan)
}

// RegeneratePlan handles PUT /api/v1/enrollments/:id/payment-plan
func (h *BillingHandler) RegeneratePlan(c *fiber.Ctx) error {
	enrollmentID, req, err := h.parsePlanRequest(c)
	if req == nil {
		return err
	}

	plan, err := h.plans.RegeneratePlan(c.Context(), req.toService(enrollmentID))
	if err != nil {
		return h.fail(c, err)
	}

	return response.SuccessWithMessage(c, "Payment plan regenerated", plan)
}

// GetPlanSummary handles GET /api/v1/payment-plans/:id
func (h *BillingHandler) GetPlanSummary(c *fiber.Ctx) error {
	planID, ok := paramID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid payment plan ID")
	}

	summary, err := h.ledger.PlanSummary(c.Context(), planID)
	if err != nil {
		return h.fail(c, err)
	}

	return response.Success(c, summary)
}

// DeleteInstallment handles DELETE /api/v1/installments/:id
func (h *BillingHandler) DeleteInstallment(c *fiber.Ctx) error {
	installmentID, ok := paramID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid installment ID")
	}

	if err := h.plans.DeleteInstallment(c.Context(), installmentID); err != nil {
		return h.fail(c, err)
	}

	return response.SuccessWithMessage(c, "Installment deleted", nil)
}

// GetInstallmentBalance handles GET /api/v1/installments/:id/balance
func (h *BillingHandler) GetInstallmentBalance(c *fiber.Ctx) error {
	installmentID, ok := paramID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid installment ID")
	}

	balance, err := h.ledger.InstallmentBalance(c.Context(), installmentID)
	if err != nil {
		return h.fail(c, err)
	}

	return response.Success(c, balance)
}
