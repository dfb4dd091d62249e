package middleware

import (
	"log/slog"
	"time"

	"gallery/internal/observability"

	"github.com/gofiber/fiber/v2"
)

// Logger is the structured logger shared by the HTTP layer and the services
// it drives.
var Logger = observability.Log

// ContextMiddleware copies the request, user and trace ids from Fiber locals
// into the user context so service-layer log lines carry them.
func ContextMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		scope := observability.RequestScope{UserID: UserID(c)}
		scope.RequestID, _ = c.Locals("requestid").(string)
		scope.TraceID, _ = c.Locals("traceID").(string)
		c.SetUserContext(observability.WithScope(c.UserContext(), scope))
		return c.Next()
	}
}

// StructuredLogger writes one access line per request. Server errors log at
// error level, client errors at warn.
func StructuredLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if fe, ok := err.(*fiber.Error); ok {
			status = fe.Code
		}
		attrs := []any{
			slog.Int("status", status),
			slog.String("method", c.Method()),
			slog.String("route", c.Route().Path),
			slog.String("path", c.Path()),
			slog.String("ip", c.IP()),
			slog.Duration("latency", time.Since(start)),
		}
		if err != nil {
			attrs = append(attrs, slog.String("error", err.Error()))
		}

		level := slog.LevelInfo
		switch {
		case status >= fiber.StatusInternalServerError:
			level = slog.LevelError
		case status >= fiber.StatusBadRequest:
			level = slog.LevelWarn
		}
		Logger.Log(c.UserContext(), level, "request", attrs...)
		return err
	}
}
