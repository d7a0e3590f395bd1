package stream

import (
	"context"
	"testing"
	"time"
)

func TestClampJitterRatio(t *testing.T) {
	if got := ClampJitterRatio(-0.1); got != 0 {
		t.Fatalf("expected clamp to 0, got %f", got)
	}
	if got := ClampJitterRatio(1.5); got != 1 {
		t.Fatalf("expected clamp to 1, got %f", got)
	}
	if got := ClampJitterRatio(0.4); got != 0.4 {
		t.Fatalf("expected passthrough 0.4, got %f", got)
	}
}

func TestJitteredDelay(t *testing.T) {
	base := 5 * time.Second
	if got := JitteredDelay(base, 0, 0.9); got != base {
		t.Fatalf("expected no jitter delay %s, got %s", base, got)
	}
	if got := JitteredDelay(base, 0.2, 0); got != 4*time.Second {
		t.Fatalf("expected min jitter delay 4s, got %s", got)
	}
	if got := JitteredDelay(base, 0.2, 0.5); got != 5*time.Second {
		t.Fatalf("expected midpoint jitter delay 5s, got %s", got)
	}
	if got := JitteredDelay(base, 0.2, 1); got != 6*time.Second {
		t.Fatalf("expected max jitter delay 6s, got %s", got)
	}
	if got := JitteredDelay(0, 0.5, 0.5); got != 0 {
		t.Fatalf("expected zero base to stay zero, got %s", got)
	}
}

func TestWaitWithContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := waitWithContext(ctx, time.Hour); err == nil {
		t.Fatalf("expected cancelled wait to fail")
	}
	if err := waitWithContext(context.Background(), 0); err != nil {
		t.Fatalf("expected zero delay to return immediately, got %v", err)
	}
}
