package middleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RealIP extracts the client's address, preferring X-Real-IP, then the
// first hop of X-Forwarded-For, and falling back to RemoteAddr.
func RealIP(r *http.Request) string {
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if i := strings.IndexByte(xff, ','); i > 0 {
			return strings.TrimSpace(xff[:i])
		}
		return strings.TrimSpace(xff)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// ByIP keys rate limits on the client address.
func ByIP(r *http.Request) string {
	return RealIP(r)
}

// ByTarget keys rate limits on the client address plus the {id} path
// value, so PIN guesses against one member do not lock out another.
func ByTarget(r *http.Request) string {
	return RealIP(r) + "|" + r.PathValue("id")
}

// bucket refills continuously at limit tokens per window.
type bucket struct {
	tokens float64
	last   time.Time
	limit  int
	window time.Duration
}

func (b *bucket) refill(now time.Time) {
	elapsed := now.Sub(b.last)
	if elapsed <= 0 {
		return
	}
	b.tokens = min(float64(b.limit), b.tokens+float64(b.limit)*elapsed.Seconds()/b.window.Seconds())
	b.last = now
}

// RateLimiter is an in-memory token bucket per key. A burst of limit
// requests is allowed, after which one more is allowed every window/limit.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
}

func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// Allow takes a token for key. When none is left it returns false and how
// long until the next token.
func (rl *RateLimiter) Allow(key string, limit int, window time.Duration) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	b, ok := rl.buckets[key]
	if !ok {
		rl.buckets[key] = &bucket{tokens: float64(limit - 1), last: now, limit: limit, window: window}
		return true, 0
	}

	b.refill(now)
	if b.tokens >= 1 {
		b.tokens--
		return true, 0
	}
	perToken := window.Seconds() / float64(limit)
	return false, time.Duration((1 - b.tokens) * perToken * float64(time.Second))
}

// Cleanup drops buckets that have refilled completely.
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for key, b := range rl.buckets {
		b.refill(now)
		if b.tokens >= float64(b.limit) {
			delete(rl.buckets, key)
		}
	}
}

// RunCleanup calls Cleanup every interval until ctx is done.
func (rl *RateLimiter) RunCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.Cleanup()
		}
	}
}

// RateLimit rejects requests with 429 once keyFunc's bucket is empty.
func RateLimit(limiter *RateLimiter, keyFunc func(*http.Request) string, limit int, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, wait := limiter.Allow(keyFunc(r), limit, window)
			if !ok {
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
				writeError(w, http.StatusTooManyRequests, "too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
