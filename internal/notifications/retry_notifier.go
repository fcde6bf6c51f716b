package notifications

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"
)

type RetryConfig struct {
	Retries   int           // extra attempts after the first; 0 disables retrying
	BaseDelay time.Duration // delay before the first retry, doubled each time
	MaxDelay  time.Duration
}

// RetryNotifier resends a failed message with capped exponential backoff.
// A done ctx ends the loop with ctx.Err().
type RetryNotifier struct {
	inner Notifier
	cfg   RetryConfig
}

func NewRetryNotifier(inner Notifier, cfg RetryConfig) *RetryNotifier {
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 200 * time.Millisecond
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 2 * time.Second
	}

	return &RetryNotifier{inner: inner, cfg: cfg}
}

func (n *RetryNotifier) Send(ctx context.Context, msg Message) error {
	return retry.Do(ctx, n.backoff(), func(ctx context.Context) error {
		if err := n.inner.Send(ctx, msg); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
}

func (n *RetryNotifier) backoff() retry.Backoff {
	b := retry.NewExponential(n.cfg.BaseDelay)
	b = retry.WithJitterPercent(10, b)
	b = retry.WithCappedDuration(n.cfg.MaxDelay, b)
	return retry.WithMaxRetries(uint64(n.cfg.Retries), b)
}
