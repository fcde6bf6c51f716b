package observability

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/samber/oops"
)

func NewLogger(env string) *slog.Logger {
	return newLogger(env, os.Stdout)
}

func newLogger(env string, w io.Writer) *slog.Logger {
	level := slog.LevelInfo

	if env == "dev" {
		level = slog.LevelDebug
	}

	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	})

	return slog.New(NewTraceHandler(handler))
}

// LogError logs err at error level, flattening oops domain and context
// into attributes when present.
func LogError(ctx context.Context, log *slog.Logger, msg string, err error, args ...any) {
	if err == nil {
		return
	}

	attrs := append([]any{"err", err.Error()}, args...)

	if oopsErr, ok := oops.AsOops(err); ok {
		if domain := oopsErr.Domain(); domain != "" {
			attrs = append(attrs, "err_domain", domain)
		}
		for k, v := range oopsErr.Context() {
			attrs = append(attrs, "err_"+k, v)
		}
	}

	log.ErrorContext(ctx, msg, attrs...)
}
