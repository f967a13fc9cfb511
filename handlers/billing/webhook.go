package billing

import (
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/tuition-api/services"
	"github.com/sahilchouksey/tuition-api/services/pagofacil"
)

// Headers never stored with a gateway event
var skippedHeaders = map[string]bool{
	"authorization": true,
	"cookie":        true,
}

// PagoFacilCallback handles POST /api/v1/webhooks/pagofacil.
// Outcomes the gateway cannot fix by retrying (unknown reference, amount
// mismatch, final settlement) are acknowledged; storage failures are not,
// so the callback is delivered again.
func (h *BillingHandler) PagoFacilCallback(c *fiber.Ctx) error {
	raw := append([]byte(nil), c.Body()...)

	var payload pagofacil.CallbackPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		slog.Warn("malformed gateway callback", "error", err, "ip", c.IP())
		return c.Status(fiber.StatusBadRequest).JSON(pagofacil.Nack("invalid payload"))
	}

	result, err := h.settlements.HandleCallback(c.Context(), services.CallbackRequest{
		Payload: payload,
		Raw:     raw,
		Headers: callbackHeaders(c),
	})
	switch {
	case err == nil:
		slog.Info("gateway callback handled",
			"reference", payload.Reference(),
			"event_id", result.EventID,
			"status", result.Status,
			"confirmed", result.Confirmed,
		)
		return c.JSON(pagofacil.Ack("ok"))
	case errors.Is(err, services.ErrReconciliationMismatch),
		errors.Is(err, services.ErrInvalidTransition):
		return c.JSON(pagofacil.Ack("recorded"))
	default:
		slog.Error("gateway callback failed", "reference", payload.Reference(), "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(pagofacil.Nack("temporary failure"))
	}
}

func callbackHeaders(c *fiber.Ctx) map[string]string {
	headers := make(map[string]string)
	for k, v := range c.GetReqHeaders() {
		if skippedHeaders[strings.ToLower(k)] || len(v) == 0 {
			continue
		}
		headers[k] = strings.Join(v, ", ")
	}
	return headers
}
