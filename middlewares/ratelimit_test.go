package middlewares

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

func request(h http.Handler, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/jobs/video", nil)
	req.RemoteAddr = ip + ":5123"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRateLimitPerIP(t *testing.T) {
	h := RateLimit(3, time.Hour)(okHandler())

	for i := range 3 {
		if rec := request(h, "10.0.0.1"); rec.Code != http.StatusNoContent {
			t.Fatalf("Request %d should pass, got %d", i+1, rec.Code)
		}
	}

	rec := request(h, "10.0.0.1")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("Expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("Missing Retry-After")
	}

	if rec := request(h, "10.0.0.2"); rec.Code != http.StatusNoContent {
		t.Errorf("Other clients must not be limited, got %d", rec.Code)
	}
}

func TestRateLimiterRefillsAndForgetsIdleVisitors(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	rl := NewRateLimiter(2, time.Minute)
	rl.now = func() time.Time { return now }
	rl.lastSweep.Store(now.UnixNano())

	rl.Allow("a")
	rl.Allow("a")
	if ok, wait := rl.Allow("a"); ok || wait <= 0 {
		t.Fatalf("Expected third request to be limited, got %v %v", ok, wait)
	}

	now = now.Add(30 * time.Second)
	if ok, _ := rl.Allow("a"); !ok {
		t.Error("Expected one token back after half the window")
	}

	now = now.Add(2 * time.Minute)
	rl.Allow("b")
	if _, ok := rl.visitors.Get("a"); ok {
		t.Error("Idle visitor should have been swept")
	}
}

func TestApiKey(t *testing.T) {
	h := ApiKey("secret")(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without key, got %d", rec.Code)
	}

	req.Header.Set("X-API-KEY", "secret")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Errorf("Expected pass with key, got %d", rec.Code)
	}

	open := ApiKey("")(okHandler())
	rec = httptest.NewRecorder()
	open.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusNoContent {
		t.Errorf("Empty key should disable the check, got %d", rec.Code)
	}
}
