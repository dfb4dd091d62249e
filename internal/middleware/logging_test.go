package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"gallery/internal/observability"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := Logger
	Logger = observability.NewLogger("production", &buf)
	t.Cleanup(func() { Logger = prev })
	return &buf
}

func TestContextMiddleware_CopiesLocals(t *testing.T) {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("requestid", "req-7")
		c.Locals("userID", "user-7")
		return c.Next()
	})
	app.Use(ContextMiddleware())
	app.Get("/", func(c *fiber.Ctx) error {
		s := observability.ScopeFrom(c.UserContext())
		return c.JSON(fiber.Map{"rid": s.RequestID, "uid": s.UserID, "tid": s.TraceID})
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, map[string]string{"rid": "req-7", "uid": "user-7", "tid": ""}, body)
}

func TestStructuredLogger_Levels(t *testing.T) {
	tests := []struct {
		path  string
		level string
	}{
		{"/ok", "INFO"},
		{"/missing", "WARN"},
		{"/boom", "ERROR"},
	}

	buf := captureLogs(t)
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("requestid", "req-1")
		return c.Next()
	})
	app.Use(ContextMiddleware(), StructuredLogger())
	app.Get("/ok", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })
	app.Get("/boom", func(c *fiber.Ctx) error { return fiber.ErrBadGateway })

	for _, tt := range tests {
		buf.Reset()
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, tt.path, nil))
		require.NoError(t, err)
		_ = resp.Body.Close()

		var line map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &line), tt.path)
		assert.Equal(t, tt.level, line["level"], tt.path)
		assert.Equal(t, "req-1", line["request_id"], tt.path)
		assert.Equal(t, tt.path, line["path"])
	}
}
