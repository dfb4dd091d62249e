package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"gallery/internal/config"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecurityMiddleware(t *testing.T) {
	srv := &Server{config: &config.Config{Env: "test"}}
	app := fiber.New()
	srv.SetupMiddleware(app)
	app.Get("/test", func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/test", nil))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Content-Type-Options"))
	assert.NotEmpty(t, resp.Header.Get("X-Frame-Options"))
	// Images are embedded cross-origin by the web client.
	assert.Equal(t, "cross-origin", resp.Header.Get("Cross-Origin-Resource-Policy"))
	assert.NotEmpty(t, resp.Header.Get(fiber.HeaderXRequestID))
}

func TestSetupMiddleware_RecoversPanics(t *testing.T) {
	srv := &Server{config: &config.Config{Env: "test"}}
	app := fiber.New()
	srv.SetupMiddleware(app)
	app.Get("/boom", func(c *fiber.Ctx) error {
		panic("boom")
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/boom", nil))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
}

func TestGetFeatureFlags(t *testing.T) {
	h := newHarness(t)

	resp := h.request(http.MethodGet, "/api/feature-flags", nil, "", "u1")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[map[string]map[string]any](t, resp)
	assert.Contains(t, body, "raw")
	assert.Contains(t, body, "evaluated")
}
