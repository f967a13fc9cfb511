package pagofacil

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/sahilchouksey/tuition-api/utils/metrics"
)

type loginValues struct {
	AccessToken      string  `json:"accessToken"`
	ExpiresInMinutes FlexInt `json:"expiresInMinutes"`
}

// Authenticate logs in with the static service credentials and caches the
// token until its reported lifetime minus TokenSafetyMargin.
func (c *Client) Authenticate(ctx context.Context) (string, error) {
	headers := map[string]string{
		"tcTokenService": c.tokenService,
		"tcTokenSecret":  c.tokenSecret,
	}

	var values loginValues
	if err := c.doRequest(ctx, http.MethodPost, endpointLogin, headers, nil, &values); err != nil {
		return "", fmt.Errorf("%w: %v", ErrAuth, err)
	}
	if values.AccessToken == "" {
		return "", fmt.Errorf("%w: login response has no accessToken", ErrAuth)
	}

	lifetime := time.Duration(values.ExpiresInMinutes)*time.Minute - TokenSafetyMargin
	session, err := c.store.Load(ctx)
	if err != nil {
		slog.Warn("failed to load gateway session", "error", err)
		session = Session{}
	}
	session.AccessToken = values.AccessToken
	session.TokenExpiresAt = c.now().Add(lifetime)
	if err := c.store.Save(ctx, session); err != nil {
		slog.Warn("failed to cache gateway token", "error", err)
	}

	metrics.GatewayLogins.Inc()
	slog.Info("authenticated with payment gateway", "expires_in_minutes", int(values.ExpiresInMinutes))
	return values.AccessToken, nil
}

// GetAccessToken returns the cached token while it is valid and logs in
// otherwise. Concurrent refreshes share a single login call.
func (c *Client) GetAccessToken(ctx context.Context) (string, error) {
	session, err := c.store.Load(ctx)
	if err != nil {
		slog.Warn("failed to load gateway session", "error", err)
	} else if session.TokenValid(c.now()) {
		return session.AccessToken, nil
	}

	token, err, _ := c.refresh.Do("token", func() (interface{}, error) {
		return c.Authenticate(ctx)
	})
	if err != nil {
		return "", err
	}
	return token.(string), nil
}

// InvalidateToken forgets the cached token but keeps the payment method
func (c *Client) InvalidateToken(ctx context.Context) error {
	session, err := c.store.Load(ctx)
	if err != nil {
		return c.store.Clear(ctx)
	}
	session.AccessToken = ""
	session.TokenExpiresAt = time.Time{}
	return c.store.Save(ctx, session)
}
