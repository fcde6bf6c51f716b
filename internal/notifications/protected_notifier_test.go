package notifications

import (
	"context"
	"errors"
	"testing"
	"time"
)

type flakyNotifier struct {
	err   error
	calls int
}

func (f *flakyNotifier) Send(ctx context.Context, msg Message) error {
	f.calls++
	return f.err
}

func TestProtectedNotifier_OpensAfterThreshold(t *testing.T) {
	inner := &flakyNotifier{err: errors.New("smtp down")}
	n := NewProtectedNotifier(inner, ProtectedNotifierConfig{FailureThreshold: 2, Cooldown: time.Minute})

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := n.Send(ctx, Message{To: "a@example.com"}); err == nil {
			t.Fatalf("call %d: expected error", i)
		}
	}

	if err := n.Send(ctx, Message{To: "a@example.com"}); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if inner.calls != 2 {
		t.Fatalf("expected inner to be called twice, got %d", inner.calls)
	}
	if n.State() != "open" {
		t.Fatalf("expected open state, got %s", n.State())
	}
}

func TestProtectedNotifier_HalfOpenRecovers(t *testing.T) {
	inner := &flakyNotifier{err: errors.New("smtp down")}
	n := NewProtectedNotifier(inner, ProtectedNotifierConfig{FailureThreshold: 1, Cooldown: time.Minute})

	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	n.now = func() time.Time { return clock }

	ctx := context.Background()
	_ = n.Send(ctx, Message{})

	clock = clock.Add(2 * time.Minute)
	inner.err = nil

	if err := n.Send(ctx, Message{}); err != nil {
		t.Fatalf("expected trial call to succeed, got %v", err)
	}
	if n.State() != "closed" {
		t.Fatalf("expected closed state, got %s", n.State())
	}
}

func TestProtectedNotifier_HalfOpenFailureReopens(t *testing.T) {
	inner := &flakyNotifier{err: errors.New("smtp down")}
	n := NewProtectedNotifier(inner, ProtectedNotifierConfig{FailureThreshold: 1, Cooldown: time.Minute})

	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	n.now = func() time.Time { return clock }

	ctx := context.Background()
	_ = n.Send(ctx, Message{})

	clock = clock.Add(2 * time.Minute)
	_ = n.Send(ctx, Message{})

	if err := n.Send(ctx, Message{}); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen after failed trial, got %v", err)
	}
}

func TestLogNotifier_SimulatedFailure(t *testing.T) {
	n := NewLogNotifier(nil, LogNotifierConfig{SimulateFailure: true})

	if err := n.Send(context.Background(), Message{To: "a@example.com"}); !errors.Is(err, ErrProviderDown) {
		t.Fatalf("expected ErrProviderDown, got %v", err)
	}
}
