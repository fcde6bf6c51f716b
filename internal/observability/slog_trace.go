package observability

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"github.com/geocoder89/tourhub/internal/actorctx"
)

type requestIDKey struct{}

// WithRequestID stores the request id so every log line written with ctx carries it.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func RequestIDFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestIDKey{}).(string)
	return id, ok && id != ""
}

// TraceHandler decorates records with correlation ids found on the context:
// trace_id and span_id of the active span, the request_id, and the user_id of
// the authenticated actor. Keys the caller already set are left alone.
type TraceHandler struct {
	next slog.Handler
	// keys bound through WithAttrs outside any group
	bound   map[string]struct{}
	inGroup bool
}

func NewTraceHandler(next slog.Handler) *TraceHandler {
	return &TraceHandler{next: next}
}

func (h *TraceHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *TraceHandler) Handle(ctx context.Context, r slog.Record) error {
	if ctx == nil {
		return h.next.Handle(ctx, r)
	}

	present := make(map[string]struct{}, r.NumAttrs())
	r.Attrs(func(a slog.Attr) bool {
		present[a.Key] = struct{}{}
		return true
	})

	add := func(key, value string) {
		if _, ok := present[key]; ok {
			return
		}
		if _, ok := h.bound[key]; ok {
			return
		}
		r.AddAttrs(slog.String(key, value))
	}

	if sc := trace.SpanFromContext(ctx).SpanContext(); sc.IsValid() {
		add("trace_id", sc.TraceID().String())
		add("span_id", sc.SpanID().String())
	}
	if id, ok := RequestIDFrom(ctx); ok {
		add("request_id", id)
	}
	if id, ok := actorctx.UserIDFrom(ctx); ok {
		add("user_id", id)
	}

	return h.next.Handle(ctx, r)
}

func (h *TraceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	bound := h.bound
	if !h.inGroup && len(attrs) > 0 {
		bound = make(map[string]struct{}, len(h.bound)+len(attrs))
		for k := range h.bound {
			bound[k] = struct{}{}
		}
		for _, a := range attrs {
			bound[a.Key] = struct{}{}
		}
	}
	return &TraceHandler{next: h.next.WithAttrs(attrs), bound: bound, inGroup: h.inGroup}
}

func (h *TraceHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &TraceHandler{next: h.next.WithGroup(name), bound: h.bound, inGroup: true}
}
