package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRateLimiterBlocksBurstPerClient(t *testing.T) {
	limiter := NewRateLimiter(RateLimit{RequestsPerSecond: 1, Burst: 2}, nil)
	now := time.Unix(1_700_000_000, 0)
	limiter.clockNow = func() time.Time { return now }
	handler := limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	call := func(ip string) int {
		req := httptest.NewRequest(http.MethodGet, "/v1/exchanges", nil)
		req.Header.Set("X-Real-IP", ip)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr.Code
	}
	for i := 0; i < 2; i++ {
		if code := call("10.0.0.1"); code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, code)
		}
	}
	if code := call("10.0.0.1"); code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after burst, got %d", code)
	}
	if code := call("10.0.0.2"); code != http.StatusOK {
		t.Fatalf("other client should not be limited, got %d", code)
	}
	now = now.Add(time.Second)
	if code := call("10.0.0.1"); code != http.StatusOK {
		t.Fatalf("expected refill after one second, got %d", code)
	}
}

func TestRateLimiterEvictsIdleClients(t *testing.T) {
	limiter := NewRateLimiter(RateLimit{RequestsPerSecond: 1, Burst: 1, EntryTTL: time.Minute}, nil)
	now := time.Unix(1_700_000_000, 0)
	limiter.clockNow = func() time.Time { return now }
	limiter.allow("a")
	now = now.Add(2 * time.Minute)
	limiter.allow("b")
	if _, ok := limiter.visitors["a"]; ok {
		t.Fatalf("idle client not evicted")
	}
}

func TestClientIDPrefersForwardedHeaders(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:5000"
	if got := clientID(req); got != "192.0.2.1" {
		t.Fatalf("unexpected remote id %q", got)
	}
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	if got := clientID(req); got != "203.0.113.7" {
		t.Fatalf("unexpected forwarded id %q", got)
	}
}
