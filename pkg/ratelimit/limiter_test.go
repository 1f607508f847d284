package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func throttled(retryAfter string) *http.Response {
	resp := &http.Response{StatusCode: http.StatusTooManyRequests, Header: http.Header{}}
	if retryAfter != "" {
		resp.Header.Set("Retry-After", retryAfter)
	}
	return resp
}

func TestLimiter_NoCooldownAllows(t *testing.T) {
	l := NewLimiter(Config{}, zerolog.Nop())

	if err := l.Wait(context.Background()); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
}

func TestLimiter_ObserveIgnoresOtherStatuses(t *testing.T) {
	l := NewLimiter(Config{}, zerolog.Nop())
	ctx := context.Background()

	for _, code := range []int{http.StatusOK, http.StatusInternalServerError, http.StatusNotFound} {
		if err := l.Observe(ctx, &http.Response{StatusCode: code, Header: http.Header{}}); err != nil {
			t.Fatalf("Observe(%d) error = %v", code, err)
		}
	}
	if err := l.Observe(ctx, nil); err != nil {
		t.Fatalf("Observe(nil) error = %v", err)
	}

	if err := l.Wait(ctx); err != nil {
		t.Errorf("Wait() error = %v, want nil", err)
	}
}

func TestLimiter_LocalCooldown(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	l := NewLimiter(Config{}, zerolog.Nop())
	l.now = func() time.Time { return now }
	ctx := context.Background()

	if err := l.Observe(ctx, throttled("10")); err != nil {
		t.Fatalf("Observe() error = %v", err)
	}

	if err := l.Wait(ctx); !errors.Is(err, ErrBlocked) {
		t.Fatalf("Wait() error = %v, want ErrBlocked", err)
	}

	now = now.Add(11 * time.Second)
	if err := l.Wait(ctx); err != nil {
		t.Errorf("Wait() after cooldown error = %v", err)
	}
}

func TestLimiter_SharedCooldown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx := context.Background()
	first := NewLimiter(Config{Redis: client}, zerolog.Nop())
	second := NewLimiter(Config{Redis: client}, zerolog.Nop())

	if err := first.Observe(ctx, throttled("30")); err != nil {
		t.Fatalf("Observe() error = %v", err)
	}

	if !mr.Exists(RedisKeyBlockedUntil) {
		t.Fatal("cooldown not stored in redis")
	}
	if ttl := mr.TTL(RedisKeyBlockedUntil); ttl != 30*time.Second {
		t.Errorf("redis TTL = %v, want 30s", ttl)
	}

	state, err := second.GetState(ctx)
	if err != nil {
		t.Fatalf("GetState() error = %v", err)
	}
	if !state.Blocked(time.Now()) {
		t.Error("second limiter should observe the shared cooldown")
	}
	if err := second.Wait(ctx); !errors.Is(err, ErrBlocked) {
		t.Errorf("Wait() error = %v, want ErrBlocked", err)
	}
}

func TestLimiter_RedisDownFallsBackToLocal(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	l := NewLimiter(Config{Redis: client}, zerolog.Nop())
	mr.Close()

	if _, err := l.GetState(context.Background()); err == nil {
		t.Error("GetState() should fail with redis down")
	}
	if err := l.Wait(context.Background()); err != nil {
		t.Errorf("Wait() error = %v, want local state to allow", err)
	}
}

func TestLimiter_TokenBucket(t *testing.T) {
	l := NewLimiter(Config{RequestsPerSecond: 1, Burst: 1}, zerolog.Nop())

	if err := l.Wait(context.Background()); err != nil {
		t.Fatalf("first Wait() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := l.Wait(ctx); err == nil {
		t.Error("second Wait() should fail before a token is available")
	}
}
