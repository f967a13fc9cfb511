package handlers

import (
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/tuition-api/database"
	"github.com/sahilchouksey/tuition-api/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleCheckHealth(t *testing.T) {
	store, err := database.StartSQLite(filepath.Join(t.TempDir(), "health.db"), nil)
	require.NoError(t, err)

	app := fiber.New()
	app.Get("/ping", utils.MakeHTTPHandleFunc(HandleCheckHealth, store))

	resp, err := app.Test(httptest.NewRequest("GET", "/ping", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	require.NoError(t, store.Close())
	resp, err = app.Test(httptest.NewRequest("GET", "/ping", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
}
