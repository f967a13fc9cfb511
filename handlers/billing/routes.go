package billing

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/tuition-api/model"
	"github.com/sahilchouksey/tuition-api/utils/middleware"
)

// RegisterRoutes mounts the billing endpoints on the /api/v1 group
func (h *BillingHandler) RegisterRoutes(v1 fiber.Router, authMiddleware *middleware.AuthMiddleware) {
	// Gateway callbacks are public; the reference is checked against our own records
	v1.Post("/webhooks/pagofacil", h.PagoFacilCallback)

	required := authMiddleware.Required()
	adminOnly := authMiddleware.RequireKind(model.PayerKindAdmin)

	enrollments := v1.Group("/enrollments", required)
	enrollments.Post("/:id/payment-plan", adminOnly, h.GeneratePlan)
	enrollments.Put("/:id/payment-plan", adminOnly, h.RegeneratePlan)

	v1.Get("/payment-plans/:id", required, h.GetPlanSummary)

	installments := v1.Group("/installments", required)
	installments.Delete("/:id", adminOnly, h.DeleteInstallment)
	installments.Get("/:id/balance", h.GetInstallmentBalance)
	installments.Post("/:id/qr", h.RequestQR)
	installments.Post("/:id/manual-payments", adminOnly, h.RecordManualPayment)

	settlements := v1.Group("/settlements", required)
	settlements.Get("/:id/status", h.PollStatus)
	settlements.Post("/:id/fail", adminOnly, h.MarkFailed)
}
