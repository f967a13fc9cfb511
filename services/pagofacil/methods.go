package pagofacil

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
)

// PaymentMethod is one entry of the enabled-services listing
type PaymentMethod struct {
	ID   FlexInt `json:"paymentMethodId"`
	Name string  `json:"paymentMethodName"`
}

// ListPaymentMethods returns the methods enabled for our commerce account
func (c *Client) ListPaymentMethods(ctx context.Context) ([]PaymentMethod, error) {
	var methods []PaymentMethod
	if err := c.doAuthorized(ctx, http.MethodGet, endpointListMethods, nil, &methods); err != nil {
		return nil, err
	}
	return methods, nil
}

// SelectQRMethod picks the first method whose name mentions QR, falling back
// to the first listed one. ok is false when the list is empty.
func SelectQRMethod(methods []PaymentMethod) (id int, ok bool) {
	for _, m := range methods {
		if strings.Contains(strings.ToUpper(m.Name), "QR") {
			return int(m.ID), true
		}
	}
	if len(methods) > 0 {
		return int(methods[0].ID), true
	}
	return 0, false
}

// ResolvePaymentMethodID returns the QR payment method id, cached for
// MethodCacheTTL. When the lookup fails it answers the configured default
// without caching it, so the next call tries the gateway again.
func (c *Client) ResolvePaymentMethodID(ctx context.Context) int {
	session, err := c.store.Load(ctx)
	if err == nil && session.MethodValid(c.now()) {
		return session.MethodID
	}

	methods, err := c.ListPaymentMethods(ctx)
	if err != nil {
		slog.Warn("payment method lookup failed, using default", "default_method_id", c.defaultMethodID, "error", err)
		return c.defaultMethodID
	}

	id, ok := SelectQRMethod(methods)
	if !ok {
		slog.Warn("gateway listed no payment methods, using default", "default_method_id", c.defaultMethodID)
		return c.defaultMethodID
	}

	// reload so a token refreshed during the listing is not overwritten
	session, err = c.store.Load(ctx)
	if err != nil {
		session = Session{}
	}
	session.MethodID = id
	session.MethodExpiresAt = c.now().Add(MethodCacheTTL)
	if err := c.store.Save(ctx, session); err != nil {
		slog.Warn("failed to cache payment method", "error", err)
	}
	return id
}
