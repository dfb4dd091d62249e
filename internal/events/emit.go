package events

import (
	"context"
	"log/slog"

	"gallery/internal/middleware"
	"gallery/internal/observability"
)

// Emit publishes e best-effort. Failures are logged and counted, never returned.
func Emit(ctx context.Context, p Publisher, e Event) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, e); err != nil {
		observability.EventPublishFailures.WithLabelValues(busName(p), string(e.Type)).Inc()
		middleware.Logger.WarnContext(ctx, "event publish failed",
			slog.String("type", string(e.Type)),
			slog.String("image_id", e.ImageID),
			slog.String("error", err.Error()),
		)
	}
}

func busName(p Publisher) string {
	switch p.(type) {
	case *RedisBus:
		return "redis"
	case *NATSBus:
		return "nats"
	case Nop:
		return "none"
	default:
		return "other"
	}
}
