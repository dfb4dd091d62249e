// Package observability provides logging, metrics, and tracing.
package observability

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sort"
)

// Log is the process logger. Records written with a *Context method pick up
// the request scope stored in the context.
var Log = NewLogger(os.Getenv("APP_ENV"), os.Stdout)

// NewLogger writes JSON in production and logfmt-style text elsewhere.
func NewLogger(env string, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	var h slog.Handler = slog.NewTextHandler(w, opts)
	if env == "production" {
		h = slog.NewJSONHandler(w, opts)
	}
	return slog.New(scopeHandler{h})
}

// RequestScope identifies the request a log line belongs to.
type RequestScope struct {
	RequestID string
	UserID    string
	TraceID   string
}

type scopeKey struct{}

// WithScope merges the non-empty fields of s into the scope already on ctx.
func WithScope(ctx context.Context, s RequestScope) context.Context {
	cur := ScopeFrom(ctx)
	if s.RequestID != "" {
		cur.RequestID = s.RequestID
	}
	if s.UserID != "" {
		cur.UserID = s.UserID
	}
	if s.TraceID != "" {
		cur.TraceID = s.TraceID
	}
	return context.WithValue(ctx, scopeKey{}, cur)
}

// ScopeFrom returns the scope on ctx, or the zero scope.
func ScopeFrom(ctx context.Context) RequestScope {
	s, _ := ctx.Value(scopeKey{}).(RequestScope)
	return s
}

type scopeHandler struct {
	slog.Handler
}

func (h scopeHandler) Handle(ctx context.Context, r slog.Record) error {
	s := ScopeFrom(ctx)
	for _, a := range [...]slog.Attr{
		slog.String("request_id", s.RequestID),
		slog.String("user_id", s.UserID),
		slog.String("trace_id", s.TraceID),
	} {
		if a.Value.String() != "" {
			r.AddAttrs(a)
		}
	}
	return h.Handler.Handle(ctx, r)
}

func (h scopeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return scopeHandler{h.Handler.WithAttrs(attrs)}
}

func (h scopeHandler) WithGroup(name string) slog.Handler {
	return scopeHandler{h.Handler.WithGroup(name)}
}

// Fields are extra key/values attached to a log line, emitted in key order.
type Fields map[string]any

func (f Fields) attrs(head ...any) []any {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := append(make([]any, 0, len(head)+len(keys)), head...)
	for _, k := range keys {
		out = append(out, slog.Any(k, f[k]))
	}
	return out
}

// RepoLogger records writes against one table.
type RepoLogger struct {
	logger *slog.Logger
}

// NewRepoLogger logs through Log with the table attached.
func NewRepoLogger(table string) *RepoLogger {
	return &RepoLogger{logger: Log.With(slog.String("table", table))}
}

func (l *RepoLogger) Created(ctx context.Context, f Fields) {
	l.logger.InfoContext(ctx, "row created", f.attrs(slog.String("operation", "create"))...)
}

func (l *RepoLogger) Deleted(ctx context.Context, f Fields) {
	l.logger.InfoContext(ctx, "row deleted", f.attrs(slog.String("operation", "delete"))...)
}

// Failed logs an operation that returned err.
func (l *RepoLogger) Failed(ctx context.Context, operation string, err error) {
	l.logger.ErrorContext(ctx, "repository operation failed",
		slog.String("operation", operation),
		slog.String("error", err.Error()),
	)
}

// ServiceLogger records outcomes of one service's methods.
type ServiceLogger struct {
	logger *slog.Logger
}

// NewServiceLogger tags every line with service. A nil logger means Log.
func NewServiceLogger(service string, logger *slog.Logger) *ServiceLogger {
	if logger == nil {
		logger = Log
	}
	return &ServiceLogger{logger: logger.With(slog.String("service", service))}
}

func (l *ServiceLogger) Done(ctx context.Context, method string, f Fields) {
	l.logger.InfoContext(ctx, "service call", f.attrs(slog.String("method", method))...)
}

func (l *ServiceLogger) Failed(ctx context.Context, method string, err error, f Fields) {
	l.logger.WarnContext(ctx, "service call failed",
		f.attrs(slog.String("method", method), slog.String("error", err.Error()))...)
}
