package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func loginRequest(remoteAddr string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, authPath, strings.NewReader("username=alice&password=wrong"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.RemoteAddr = remoteAddr
	return req
}

func TestRateLimiterDisabledByDefault(t *testing.T) {
	rl := newRateLimiter(RateLimitConfig{})
	for i := 0; i < 100; i++ {
		if !rl.AllowRequest() {
			t.Fatal("expected unlimited requests")
		}
		allowed, _, err := rl.AllowLogin(context.Background(), "192.0.2.1")
		if err != nil || !allowed {
			t.Fatalf("expected unlimited logins, got %v %v", allowed, err)
		}
	}
}

func TestRateLimiterGlobalBurst(t *testing.T) {
	rl := newRateLimiter(RateLimitConfig{GlobalRPS: 0.001, GlobalBurst: 2})
	if !rl.AllowRequest() || !rl.AllowRequest() {
		t.Fatal("expected burst to be allowed")
	}
	if rl.AllowRequest() {
		t.Fatal("expected request beyond burst to be rejected")
	}
}

func TestRateLimiterLoginPerIP(t *testing.T) {
	rl := newRateLimiter(RateLimitConfig{LoginLimit: 2, LoginWindow: time.Minute})
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if allowed, _, _ := rl.AllowLogin(ctx, "192.0.2.1"); !allowed {
			t.Fatalf("attempt %d should be allowed", i+1)
		}
	}
	allowed, retryAfter, err := rl.AllowLogin(ctx, "192.0.2.1")
	if err != nil || allowed {
		t.Fatalf("expected third attempt to be throttled, got %v %v", allowed, err)
	}
	if retryAfter <= 0 || retryAfter > 30*time.Second {
		t.Fatalf("unexpected retry after %v", retryAfter)
	}
	if allowed, _, _ := rl.AllowLogin(ctx, "192.0.2.2"); !allowed {
		t.Fatal("other clients must keep their own budget")
	}

	now = now.Add(31 * time.Second)
	if allowed, _, _ := rl.AllowLogin(ctx, "192.0.2.1"); !allowed {
		t.Fatal("expected budget to refill")
	}
}

func TestRateLimiterForgetsIdleClients(t *testing.T) {
	rl := newRateLimiter(RateLimitConfig{LoginLimit: 1, LoginWindow: time.Minute})
	now := time.Now()
	rl.now = func() time.Time { return now }

	_, _, _ = rl.AllowLogin(context.Background(), "192.0.2.1")
	now = now.Add(3 * time.Minute)
	_, _, _ = rl.AllowLogin(context.Background(), "192.0.2.2")

	rl.loginMu.Lock()
	defer rl.loginMu.Unlock()
	if _, ok := rl.logins["192.0.2.1"]; ok {
		t.Fatal("expected idle client to be evicted")
	}
}

func TestRateLimitMiddlewareThrottlesLoginOnly(t *testing.T) {
	srv, _ := newTestServer(t, Config{RateLimit: RateLimitConfig{LoginLimit: 1, LoginWindow: time.Hour}})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, loginRequest("192.0.2.1:1000"))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected first attempt to reach the handler, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, loginRequest("192.0.2.1:1001"))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header")
	}

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/version/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected other routes to stay open, got %d", rec.Code)
	}
}

func TestRateLimitMiddlewareIgnoresSpoofedHeadersByDefault(t *testing.T) {
	srv, _ := newTestServer(t, Config{RateLimit: RateLimitConfig{LoginLimit: 1, LoginWindow: time.Hour}})

	for i, spoofed := range []string{"203.0.113.1", "203.0.113.2"} {
		req := loginRequest("192.0.2.1:1000")
		req.Header.Set("X-Forwarded-For", spoofed)
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		if i == 1 && rec.Code != http.StatusTooManyRequests {
			t.Fatalf("expected spoofed header to be ignored, got %d", rec.Code)
		}
	}
}

func TestRateLimitMiddlewareHonorsTrustedForwardedHeaders(t *testing.T) {
	srv, _ := newTestServer(t, Config{TrustProxy: true, RateLimit: RateLimitConfig{LoginLimit: 1, LoginWindow: time.Hour}})

	for _, forwarded := range []string{"203.0.113.1", "203.0.113.2"} {
		req := loginRequest("192.0.2.1:1000")
		req.Header.Set("X-Forwarded-For", forwarded)
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		if rec.Code == http.StatusTooManyRequests {
			t.Fatalf("expected distinct forwarded clients to be limited separately")
		}
	}
}
