// Package events publishes gallery interaction events to a message bus.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"gallery/internal/middleware"
)

// Type names what happened.
type Type string

const (
	TypeImageCreated   Type = "image.created"
	TypeImageLiked     Type = "image.liked"
	TypeImageUnliked   Type = "image.unliked"
	TypeCommentAdded   Type = "comment.added"
	TypeCommentDeleted Type = "comment.deleted"
)

// Event is the payload delivered to subscribers.
type Event struct {
	Type       Type      `json:"type"`
	ImageID    string    `json:"image_id,omitempty"`
	UserID     string    `json:"user_id,omitempty"`
	CommentID  string    `json:"comment_id,omitempty"`
	LikeCount  *int      `json:"like_count,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Subject is the bus subject (NATS) or channel (Redis) for an event type.
func Subject(t Type) string {
	return "gallery." + string(t)
}

// Wildcards matching every gallery event on each bus.
const (
	natsWildcard  = "gallery.>"
	redisWildcard = "gallery.*"
)

// Publisher delivers events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Bus is a Publisher that can also deliver events back to the process.
type Bus interface {
	Publisher
	// Subscribe calls handler for every gallery event until ctx is done.
	Subscribe(ctx context.Context, handler func(Event)) error
	Close() error
}

func encode(e Event) ([]byte, error) {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	return b, nil
}

// dispatch decodes one message and hands it to handler, containing panics so
// a bad handler cannot kill the subscription loop.
func dispatch(source string, data []byte, handler func(Event)) {
	defer func() {
		if r := recover(); r != nil {
			middleware.Logger.Error("panic in event handler",
				slog.String("bus", source),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
		}
	}()

	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		middleware.Logger.Warn("dropping malformed event", slog.String("bus", source), slog.String("error", err.Error()))
		return
	}
	handler(e)
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error         { return nil }
func (Nop) Subscribe(context.Context, func(Event)) error { return nil }
func (Nop) Close() error                                 { return nil }
