package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type fakeLimiter struct {
	counts  map[string]int64
	limit   int64
	failErr error
}

func (f *fakeLimiter) FixedWindowAllow(_ context.Context, scope string, limit int64, _ time.Duration) (bool, int64, error) {
	if f.failErr != nil {
		return false, 0, f.failErr
	}
	if f.counts == nil {
		f.counts = map[string]int64{}
	}
	f.counts[scope]++
	return f.counts[scope] <= limit, f.counts[scope], nil
}

func TestRateLimitBlocksOverLimit(t *testing.T) {
	limiter := &fakeLimiter{}
	policy := NewRateLimitPolicy("cart-writes", time.Minute, 2)
	mw := RateLimit(policy, limiter, nil)

	var calls int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	})

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		resp := httptest.NewRecorder()
		mw(handler).ServeHTTP(resp, req)
		if i < 2 && resp.Code != http.StatusOK {
			t.Fatalf("request %d expected 200 got %d", i, resp.Code)
		}
		if i == 2 && resp.Code != http.StatusTooManyRequests {
			t.Fatalf("request %d expected 429 got %d", i, resp.Code)
		}
	}
	if calls != 2 {
		t.Fatalf("expected handler to run twice, ran %d times", calls)
	}
}

func TestRateLimitSeparatesClients(t *testing.T) {
	limiter := &fakeLimiter{}
	policy := NewRateLimitPolicy("cart-writes", time.Minute, 1)
	mw := RateLimit(policy, limiter, nil)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	for _, addr := range []string{"10.0.0.1:1", "10.0.0.2:1"} {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", nil)
		req.RemoteAddr = addr
		resp := httptest.NewRecorder()
		mw(handler).ServeHTTP(resp, req)
		if resp.Code != http.StatusOK {
			t.Fatalf("client %s expected 200 got %d", addr, resp.Code)
		}
	}
}

func TestRateLimitFailsOpen(t *testing.T) {
	limiter := &fakeLimiter{failErr: errors.New("redis down")}
	policy := NewRateLimitPolicy("cart-writes", time.Minute, 1)
	mw := RateLimit(policy, limiter, nil)

	var calls int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	resp := httptest.NewRecorder()
	mw(handler).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK || calls != 1 {
		t.Fatalf("limiter failure must not block the request (status %d, calls %d)", resp.Code, calls)
	}
}

func TestClientIPPrefersForwardedHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.9:1234"
	req.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.9")
	if got := clientIP(req); got != "203.0.113.5" {
		t.Fatalf("expected forwarded ip, got %q", got)
	}
}
