package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRateLimiterAllowsWithinWindow(t *testing.T) {
	limiter := NewLoginRateLimiter(3, time.Minute)
	now := time.Now().UTC()

	for i := 0; i < 3; i++ {
		if allowed, _ := limiter.allow("10.0.0.1", now); !allowed {
			t.Fatalf("attempt %d blocked below the limit", i+1)
		}
	}

	allowed, retryAfter := limiter.allow("10.0.0.1", now)
	if allowed {
		t.Fatalf("attempt over the limit allowed")
	}
	if retryAfter < time.Second || retryAfter > time.Minute {
		t.Fatalf("unexpected retryAfter %v", retryAfter)
	}
}

func TestRateLimiterWindowRollsOver(t *testing.T) {
	limiter := NewLoginRateLimiter(1, time.Minute)
	now := time.Now().UTC()

	if allowed, _ := limiter.allow("10.0.0.1", now); !allowed {
		t.Fatalf("first attempt blocked")
	}
	if allowed, _ := limiter.allow("10.0.0.1", now.Add(30*time.Second)); allowed {
		t.Fatalf("second attempt in the same window allowed")
	}
	if allowed, _ := limiter.allow("10.0.0.1", now.Add(time.Minute)); !allowed {
		t.Fatalf("attempt in the next window blocked")
	}
}

func TestRateLimiterTracksClientsIndependently(t *testing.T) {
	limiter := NewLoginRateLimiter(1, time.Minute)
	now := time.Now().UTC()

	if allowed, _ := limiter.allow("10.0.0.1", now); !allowed {
		t.Fatalf("first client blocked")
	}
	if allowed, _ := limiter.allow("10.0.0.2", now); !allowed {
		t.Fatalf("second client throttled by the first client's hits")
	}
}

func TestRateLimiterMiddleware(t *testing.T) {
	limiter := NewLoginRateLimiter(1, time.Minute)
	handler := limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	send := func(ip string) *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
		r.Header.Set("X-Forwarded-For", ip)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		return w
	}

	if w := send("10.0.0.1"); w.Code != http.StatusOK {
		t.Fatalf("first request: expected 200, got %d", w.Code)
	}

	w := send("10.0.0.1")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: expected 429, got %d", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Fatalf("429 response missing Retry-After")
	}

	if w := send("10.0.0.9"); w.Code != http.StatusOK {
		t.Fatalf("other client: expected 200, got %d", w.Code)
	}
}

func TestClientIPPrefersForwardedHeader(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	r.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	if got := clientIP(r); got != "203.0.113.7" {
		t.Fatalf("clientIP = %q, want first forwarded address", got)
	}

	r = httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	if got := clientIP(r); got != r.RemoteAddr {
		t.Fatalf("clientIP = %q, want RemoteAddr %q", got, r.RemoteAddr)
	}
}
