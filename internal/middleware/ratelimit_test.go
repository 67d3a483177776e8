package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestLimiter() (*RateLimiter, *time.Time) {
	now := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	rl := NewRateLimiter()
	rl.now = func() time.Time { return now }
	return rl, &now
}

func TestRateLimiterAllow(t *testing.T) {
	rl, _ := newTestLimiter()

	for i := 0; i < 5; i++ {
		if ok, _ := rl.Allow("key", 5, time.Minute); !ok {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	ok, wait := rl.Allow("key", 5, time.Minute)
	if ok {
		t.Error("6th request should be denied")
	}
	if wait != 12*time.Second {
		t.Errorf("wait = %v, want 12s", wait)
	}
	if ok, _ := rl.Allow("other", 5, time.Minute); !ok {
		t.Error("keys should be counted separately")
	}
}

func TestRateLimiterRefill(t *testing.T) {
	rl, now := newTestLimiter()

	for i := 0; i < 3; i++ {
		rl.Allow("key", 3, time.Minute)
	}
	if ok, _ := rl.Allow("key", 3, time.Minute); ok {
		t.Error("should be blocked with an empty bucket")
	}

	// One token back every 20s.
	*now = now.Add(20 * time.Second)
	if ok, _ := rl.Allow("key", 3, time.Minute); !ok {
		t.Error("one token should have refilled")
	}
	if ok, _ := rl.Allow("key", 3, time.Minute); ok {
		t.Error("only one token should have refilled")
	}

	*now = now.Add(time.Hour)
	for i := 0; i < 3; i++ {
		if ok, _ := rl.Allow("key", 3, time.Minute); !ok {
			t.Fatalf("full bucket: request %d denied", i+1)
		}
	}
}

func TestRateLimiterCleanup(t *testing.T) {
	rl, now := newTestLimiter()

	rl.Allow("refilled", 5, time.Second)
	rl.Allow("draining", 5, time.Hour)
	*now = now.Add(time.Minute)

	rl.Cleanup()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if _, ok := rl.buckets["refilled"]; ok {
		t.Error("full bucket should have been dropped")
	}
	if _, ok := rl.buckets["draining"]; !ok {
		t.Error("partly used bucket should remain")
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	rl, _ := newTestLimiter()
	keyFunc := func(r *http.Request) string { return "test" }

	handler := RateLimit(rl, keyFunc, 2, time.Minute)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest("POST", "/", nil))
		if rec.Code != http.StatusOK {
			t.Errorf("request %d: status = %d, want %d", i+1, rec.Code, http.StatusOK)
		}
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("POST", "/", nil))
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("3rd request: status = %d, want %d", rec.Code, http.StatusTooManyRequests)
	}
	if got := rec.Header().Get("Retry-After"); got != "30" {
		t.Errorf("Retry-After = %q, want 30", got)
	}
}

func TestRealIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"remote addr", nil, "10.0.0.1:5000", "10.0.0.1"},
		{"x-real-ip", map[string]string{"X-Real-IP": "1.2.3.4"}, "10.0.0.1:5000", "1.2.3.4"},
		{"forwarded chain", map[string]string{"X-Forwarded-For": "5.6.7.8, 10.0.0.2"}, "10.0.0.1:5000", "5.6.7.8"},
		{"no port", nil, "10.0.0.1", "10.0.0.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			if got := RealIP(r); got != tt.want {
				t.Errorf("RealIP = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestByTarget(t *testing.T) {
	r := httptest.NewRequest("POST", "/api/members/3/pin/verify", nil)
	r.RemoteAddr = "10.0.0.1:5000"
	r.SetPathValue("id", "3")
	if got := ByTarget(r); got != "10.0.0.1|3" {
		t.Errorf("ByTarget = %q", got)
	}
}
