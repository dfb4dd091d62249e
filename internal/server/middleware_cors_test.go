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

const frontendOrigin = "http://localhost:5173"

// limitedApp mounts only the global middleware chain in front of a trivial
// handler, with the limiter active.
func limitedApp(t *testing.T, origins string) *fiber.App {
	t.Helper()
	srv := &Server{config: &config.Config{AllowedOrigins: origins}}
	app := fiber.New()
	srv.SetupMiddleware(app)
	app.All("/api/images", func(c *fiber.Ctx) error {
		c.Set("X-Provider-ID", "pollinations-default")
		return c.SendStatus(fiber.StatusOK)
	})
	return app
}

func send(t *testing.T, app *fiber.App, method, origin string, headers map[string]string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(method, "/api/images", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func exhaustLimiter(t *testing.T, app *fiber.App) {
	t.Helper()
	for i := 0; i < globalRequestsPerWindow; i++ {
		require.Equal(t, fiber.StatusOK, send(t, app, http.MethodPost, frontendOrigin, nil).StatusCode, "request %d", i)
	}
}

func TestCORS_Origins(t *testing.T) {
	tests := []struct {
		name    string
		config  string
		origin  string
		allowed bool
	}{
		{"default dev frontend", "", frontendOrigin, true},
		{"default alt port", "", "http://localhost:3000", true},
		{"default rejects others", "", "https://evil.example", false},
		{"configured list", "https://gallery.example,https://admin.gallery.example", "https://admin.gallery.example", true},
		{"configured list excludes dev", "https://gallery.example", frontendOrigin, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := send(t, limitedApp(t, tt.config), http.MethodGet, tt.origin, nil)
			assert.Equal(t, fiber.StatusOK, resp.StatusCode)
			if tt.allowed {
				assert.Equal(t, tt.origin, resp.Header.Get("Access-Control-Allow-Origin"))
				assert.Equal(t, "true", resp.Header.Get("Access-Control-Allow-Credentials"))
			} else {
				assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
			}
		})
	}
}

func TestCORS_ExposesGalleryHeaders(t *testing.T) {
	resp := send(t, limitedApp(t, ""), http.MethodGet, frontendOrigin, nil)
	exposed := resp.Header.Get("Access-Control-Expose-Headers")
	assert.Contains(t, exposed, "X-Provider-ID")
	assert.Contains(t, exposed, "X-Trace-ID")
}

func TestLimiter_RejectionKeepsCORSHeaders(t *testing.T) {
	app := limitedApp(t, "")
	exhaustLimiter(t, app)

	resp := send(t, app, http.MethodPost, frontendOrigin, nil)
	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, frontendOrigin, resp.Header.Get("Access-Control-Allow-Origin"))

	body := decode[struct {
		Code string `json:"code"`
	}](t, resp)
	assert.Equal(t, "RATE_LIMITED", body.Code)
}

func TestLimiter_PreflightStillAnswered(t *testing.T) {
	app := limitedApp(t, "")
	exhaustLimiter(t, app)

	resp := send(t, app, http.MethodOptions, frontendOrigin, map[string]string{
		"Access-Control-Request-Method":  http.MethodPost,
		"Access-Control-Request-Headers": "authorization,content-type",
	})
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)
	assert.Equal(t, frontendOrigin, resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Methods"), http.MethodPost)
}

func TestLimiter_SkippedInTestEnv(t *testing.T) {
	srv := &Server{config: &config.Config{Env: "test"}}
	app := fiber.New()
	srv.SetupMiddleware(app)
	app.Get("/api/images", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	for i := 0; i <= globalRequestsPerWindow; i++ {
		resp := send(t, app, http.MethodGet, "", nil)
		require.Equal(t, fiber.StatusOK, resp.StatusCode)
	}
}
