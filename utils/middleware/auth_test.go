package middleware

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/tuition-api/model"
	"github.com/sahilchouksey/tuition-api/utils/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestApp(t *testing.T) (*fiber.App, *auth.JWTManager) {
	t.Helper()
	jwtManager := auth.NewJWTManager(auth.JWTConfig{Secret: "secret", Expiry: time.Hour, Issuer: "tuition-api"})
	mw := NewAuthMiddleware(jwtManager)

	app := fiber.New()
	app.Get("/me", mw.Required(), func(c *fiber.Ctx) error {
		payer, ok := GetPayer(c)
		if !ok {
			return c.SendStatus(fiber.StatusInternalServerError)
		}
		return c.SendString(payer.String())
	})
	app.Get("/admin", mw.Required(), mw.RequireKind(model.PayerKindAdmin), func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	return app, jwtManager
}

func get(t *testing.T, app *fiber.App, path, token string) int {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp.StatusCode
}

func TestRequiredResolvesPayer(t *testing.T) {
	app, jwtManager := newTestApp(t)
	token, _, err := jwtManager.GenerateAccessToken(model.StudentPayer(5))
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusOK, get(t, app, "/me", token))
	assert.Equal(t, fiber.StatusUnauthorized, get(t, app, "/me", ""))
	assert.Equal(t, fiber.StatusUnauthorized, get(t, app, "/me", "garbage"))
}

func TestRequireKind(t *testing.T) {
	app, jwtManager := newTestApp(t)

	student, _, err := jwtManager.GenerateAccessToken(model.StudentPayer(5))
	require.NoError(t, err)
	admin, _, err := jwtManager.GenerateAccessToken(model.AdminPayer(1))
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusForbidden, get(t, app, "/admin", student))
	assert.Equal(t, fiber.StatusOK, get(t, app, "/admin", admin))
}
