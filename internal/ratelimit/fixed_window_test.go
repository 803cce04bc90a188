package ratelimit

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestClient(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: srv.Addr()}), srv
}

func TestFixedWindowLimiter(t *testing.T) {
	client, _ := newTestClient(t)
	limiter, err := NewFixedWindowLimiter(client, "test:ratelimit", 2, time.Second)
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	if !limiter.Allow("user-1") {
		t.Fatalf("first request should pass")
	}
	if !limiter.Allow("user-1") {
		t.Fatalf("second request should pass")
	}
	if limiter.Allow("user-1") {
		t.Fatalf("third request should be blocked")
	}
	if !limiter.Allow("user-2") {
		t.Fatalf("other keys get their own budget")
	}
}

func TestFixedWindowLimiterFailClosed(t *testing.T) {
	client, srv := newTestClient(t)
	limiter, err := NewFixedWindowLimiter(client, "test:ratelimit", 1, time.Second)
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	srv.Close()
	if limiter.Allow("user-1") {
		t.Fatalf("limiter should fail closed on redis errors")
	}
}

func TestFixedWindowLimiterRequiresClient(t *testing.T) {
	if limiter, err := NewFixedWindowLimiter(nil, "test:ratelimit", 1, time.Second); err == nil || limiter != nil {
		t.Fatalf("expected constructor error for nil client")
	}
}
