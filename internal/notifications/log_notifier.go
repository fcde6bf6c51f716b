package notifications

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

var ErrProviderDown = errors.New("provider down (simulated)")

type LogNotifierConfig struct {
	SimulateFailure bool
	Delay           time.Duration
}

// LogNotifier "delivers" messages by logging them. Used in dev and tests.
type LogNotifier struct {
	log *slog.Logger
	cfg LogNotifierConfig
}

func NewLogNotifier(log *slog.Logger, cfg LogNotifierConfig) *LogNotifier {
	if log == nil {
		log = slog.Default()
	}
	return &LogNotifier{log: log, cfg: cfg}
}

func (n *LogNotifier) Send(ctx context.Context, msg Message) error {
	if n.cfg.Delay > 0 {
		select {
		case <-time.After(n.cfg.Delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if n.cfg.SimulateFailure {
		return ErrProviderDown
	}

	// body carries the reset link; only its size is logged
	n.log.InfoContext(ctx, "notification.sent",
		"to", msg.To,
		"subject", msg.Subject,
		"body_bytes", len(msg.Body),
	)
	return nil
}
