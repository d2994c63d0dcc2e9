package auth

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// LoginRateLimiter throttles login attempts per client IP with a fixed
// window. It supplements the per-account lockout: the lockout protects a
// single account, this caps what one address can spray across accounts.
type LoginRateLimiter struct {
	mu        sync.Mutex
	maxHits   int
	window    time.Duration
	byIP      map[string]*ipWindow
	maxMemory int
}

type ipWindow struct {
	startedAt time.Time
	hits      int
}

func NewLoginRateLimiter(maxHits int, window time.Duration) *LoginRateLimiter {
	if maxHits <= 0 {
		maxHits = 10
	}
	if window <= 0 {
		window = time.Minute
	}

	return &LoginRateLimiter{
		maxHits:   maxHits,
		window:    window,
		byIP:      make(map[string]*ipWindow),
		maxMemory: 5000,
	}
}

func (l *LoginRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, retryAfter := l.allow(clientIP(r), time.Now().UTC())
		if !allowed {
			w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())))
			writeFailure(w, http.StatusTooManyRequests, "too many login attempts")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (l *LoginRateLimiter) allow(ip string, now time.Time) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	win := l.byIP[ip]
	if win == nil || now.Sub(win.startedAt) >= l.window {
		l.evictStale(now)
		l.byIP[ip] = &ipWindow{startedAt: now, hits: 1}
		return true, 0
	}

	win.hits++
	if win.hits <= l.maxHits {
		return true, 0
	}

	retryAfter := win.startedAt.Add(l.window).Sub(now)
	if retryAfter < time.Second {
		retryAfter = time.Second
	}
	return false, retryAfter
}

func (l *LoginRateLimiter) evictStale(now time.Time) {
	if len(l.byIP) <= l.maxMemory {
		return
	}
	threshold := now.Add(-l.window)
	for key, win := range l.byIP {
		if win.startedAt.Before(threshold) {
			delete(l.byIP, key)
		}
	}
}

func clientIP(r *http.Request) string {
	forwarded := strings.TrimSpace(r.Header.Get("X-Forwarded-For"))
	if forwarded != "" {
		if ip := strings.TrimSpace(strings.Split(forwarded, ",")[0]); ip != "" {
			return ip
		}
	}

	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}

	return "unknown"
}
