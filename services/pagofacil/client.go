// Package pagofacil is a client for the PagoFacil QR payment gateway.
package pagofacil

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sahilchouksey/tuition-api/utils/metrics"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultTimeout bounds every gateway call
	DefaultTimeout = 30 * time.Second
	// DefaultMethodID is used when the enabled-method lookup itself fails
	DefaultMethodID = 4
	// TokenSafetyMargin is subtracted from the reported token lifetime
	TokenSafetyMargin = 5 * time.Minute
	// MethodCacheTTL is how long a resolved payment method id is reused
	MethodCacheTTL = 24 * time.Hour

	endpointLogin            = "/login"
	endpointListMethods      = "/list-enabled-services"
	endpointGenerateQR       = "/generate-qr"
	endpointQueryTransaction = "/query-transaction"
)

var (
	// ErrAuth is returned when the gateway rejects our service credentials
	// or answers the login with an unusable payload.
	ErrAuth = errors.New("pagofacil: authentication failed")
)

// Client handles all PagoFacil API interactions
type Client struct {
	baseURL         string
	tokenService    string
	tokenSecret     string
	defaultMethodID int
	httpClient      *http.Client
	store           SessionStore
	limiter         *RateLimiter
	refresh         singleflight.Group
	now             func() time.Time
}

// Config holds configuration for the PagoFacil client
type Config struct {
	BaseURL         string
	TokenService    string
	TokenSecret     string
	DefaultMethodID int
	Timeout         time.Duration
	Store           SessionStore       // defaults to an in-process store
	RateLimiter     *RateLimiterConfig // optional
	HTTPClient      *http.Client       // optional, mainly for tests
	Now             func() time.Time   // optional clock
}

// NewClient creates a new PagoFacil API client
func NewClient(config Config) *Client {
	if config.Timeout == 0 {
		config.Timeout = DefaultTimeout
	}
	if config.DefaultMethodID == 0 {
		config.DefaultMethodID = DefaultMethodID
	}
	if config.Store == nil {
		config.Store = NewMemorySessionStore()
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.Timeout}
	}

	var limiter *RateLimiter
	if config.RateLimiter != nil {
		limiter = NewRateLimiter(*config.RateLimiter)
	}

	return &Client{
		baseURL:         strings.TrimRight(config.BaseURL, "/"),
		tokenService:    config.TokenService,
		tokenSecret:     config.TokenSecret,
		defaultMethodID: config.DefaultMethodID,
		httpClient:      httpClient,
		store:           config.Store,
		limiter:         limiter,
		now:             config.Now,
	}
}

// envelope is the wrapper every gateway response uses
type envelope struct {
	Error   FlexInt         `json:"error"`
	Status  FlexInt         `json:"status"`
	Message string          `json:"message"`
	Values  json.RawMessage `json:"values"`
}

// APIError represents a failed gateway call, either at HTTP level
// (StatusCode outside 2xx) or at application level (Code != 0).
type APIError struct {
	Endpoint   string
	StatusCode int
	Code       int
	Message    string
}

// Error implements the error interface
func (e *APIError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("pagofacil %s: error %d: %s", e.Endpoint, e.Code, e.Message)
	}
	return fmt.Sprintf("pagofacil %s: status %d: %s", e.Endpoint, e.StatusCode, e.Message)
}

// IsUnauthorized reports whether err is a 401 from the gateway
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized
}

// doRequest performs one call and decodes envelope.values into result.
// headers are added on top of the JSON content headers.
func (c *Client) doRequest(ctx context.Context, method, endpoint string, headers map[string]string, body interface{}, result interface{}) (err error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter wait cancelled: %w", err)
		}
	}

	start := time.Now()
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		metrics.GatewayRequests.WithLabelValues(endpoint, outcome).Inc()
		metrics.GatewayLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	}()

	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("pagofacil %s: request failed: %w", endpoint, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		slog.Debug("gateway error response", "endpoint", endpoint, "status", resp.StatusCode, "body", string(respBody))
		apiErr := &APIError{Endpoint: endpoint, StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		var env envelope
		if json.Unmarshal(respBody, &env) == nil && env.Message != "" {
			apiErr.Message = env.Message
		}
		return apiErr
	}

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return fmt.Errorf("pagofacil %s: failed to decode response: %w", endpoint, err)
	}
	if env.Error != 0 {
		return &APIError{Endpoint: endpoint, StatusCode: resp.StatusCode, Code: int(env.Error), Message: env.Message}
	}

	if result != nil {
		if len(env.Values) == 0 || string(env.Values) == "null" {
			return fmt.Errorf("pagofacil %s: response has no values", endpoint)
		}
		if err := json.Unmarshal(env.Values, result); err != nil {
			return fmt.Errorf("pagofacil %s: failed to decode values: %w", endpoint, err)
		}
	}

	return nil
}

// doAuthorized runs a bearer-authenticated call. A 401 drops the cached
// token and the call is retried once with a fresh login.
func (c *Client) doAuthorized(ctx context.Context, method, endpoint string, body interface{}, result interface{}) error {
	token, err := c.GetAccessToken(ctx)
	if err != nil {
		return err
	}

	err = c.doRequest(ctx, method, endpoint, bearer(token), body, result)
	if !IsUnauthorized(err) {
		return err
	}

	slog.Warn("gateway rejected access token, re-authenticating", "endpoint", endpoint)
	if err := c.InvalidateToken(ctx); err != nil {
		slog.Warn("failed to clear gateway session", "error", err)
	}
	token, err = c.GetAccessToken(ctx)
	if err != nil {
		return err
	}
	return c.doRequest(ctx, method, endpoint, bearer(token), body, result)
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

// FlexInt decodes numbers that the gateway sometimes sends as strings
type FlexInt int

func (f *FlexInt) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("invalid integer %q", s)
	}
	*f = FlexInt(n)
	return nil
}

// FlexString decodes identifiers that may arrive as JSON numbers
type FlexString string

func (f *FlexString) UnmarshalJSON(b []byte) error {
	s := string(b)
	if s == "null" {
		*f = ""
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var out string
		if err := json.Unmarshal(b, &out); err != nil {
			return err
		}
		*f = FlexString(out)
		return nil
	}
	*f = FlexString(s)
	return nil
}

func (f FlexString) String() string { return string(f) }

// rawValues keeps the undecoded values next to the typed view
type rawValues struct {
	raw json.RawMessage
}

func (r *rawValues) UnmarshalJSON(b []byte) error {
	r.raw = append(r.raw[:0], b...)
	return nil
}
