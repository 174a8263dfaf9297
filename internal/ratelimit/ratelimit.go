package ratelimit

import (
	"net/http"
	"strings"
	"sync"
	"time"
)

const maxStoreSize = 10000

type entry struct {
	count   int
	resetAt time.Time
}

// Limiter is a fixed-window, per-key in-memory rate limiter. Expired entries
// are pruned lazily once the store grows past maxStoreSize.
type Limiter struct {
	mu      sync.Mutex
	store   map[string]*entry
	limit   int
	window  time.Duration
	nowFunc func() time.Time
}

type Result struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

func NewLimiter(limit int, window time.Duration) *Limiter {
	return &Limiter{
		store:   make(map[string]*entry),
		limit:   limit,
		window:  window,
		nowFunc: time.Now,
	}
}

func (l *Limiter) Check(key string) Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowFunc()

	if len(l.store) > maxStoreSize {
		for k, e := range l.store {
			if !e.resetAt.After(now) {
				delete(l.store, k)
			}
		}
	}

	current, ok := l.store[key]
	if !ok || !current.resetAt.After(now) {
		l.store[key] = &entry{count: 1, resetAt: now.Add(l.window)}
		return Result{Allowed: true, Remaining: l.limit - 1, RetryAfter: l.window}
	}

	if current.count >= l.limit {
		return Result{Allowed: false, Remaining: 0, RetryAfter: current.resetAt.Sub(now)}
	}

	current.count++
	return Result{
		Allowed:    true,
		Remaining:  l.limit - current.count,
		RetryAfter: current.resetAt.Sub(now),
	}
}

// ClientIP extracts the caller's address from proxy headers, falling back to
// "unknown" so that unidentifiable clients share one bucket.
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		if first := strings.TrimSpace(strings.Split(forwarded, ",")[0]); first != "" {
			return first
		}
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-Ip")); realIP != "" {
		return realIP
	}
	return "unknown"
}
