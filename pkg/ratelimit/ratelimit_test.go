package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestAllowExhaustsBucket(t *testing.T) {
	l := New(2, 0.001)
	if !l.Allow() || !l.Allow() {
		t.Fatal("first two requests should pass")
	}
	if l.Allow() {
		t.Fatal("third request should be limited")
	}
}

func TestAllowRefills(t *testing.T) {
	l := New(1, 100)
	if !l.Allow() {
		t.Fatal("first request should pass")
	}
	time.Sleep(20 * time.Millisecond)
	if !l.Allow() {
		t.Fatal("bucket should refill at 100 tokens/s")
	}
}

func TestWaitBlocksUntilToken(t *testing.T) {
	l := New(1, 50)
	if err := l.Wait(context.Background()); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	start := time.Now()
	if err := l.Wait(context.Background()); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if time.Since(start) < 10*time.Millisecond {
		t.Fatal("second Wait should have blocked for a refill")
	}
}

func TestWaitHonorsContext(t *testing.T) {
	l := New(1, 0.001)
	l.Allow()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := l.Wait(ctx); err != context.DeadlineExceeded {
		t.Fatalf("Wait = %v, want context.DeadlineExceeded", err)
	}
}
