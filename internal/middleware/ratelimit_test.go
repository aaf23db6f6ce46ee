package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func testRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		GeneralRate:     rate.Limit(1),
		GeneralBurst:    2,
		MutationRate:    rate.Limit(1),
		MutationBurst:   1,
		CleanupInterval: time.Minute,
	}
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

// TestGeneralMiddleware_AllowsWithinBurst はバースト内のリクエストが通ることを検証する。
func TestGeneralMiddleware_AllowsWithinBurst(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig())
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(okHandler())

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/users", nil)
		req.RemoteAddr = "198.51.100.1:1234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("request %d: status = %d, want 200", i, rec.Code)
		}
	}
}

// TestGeneralMiddleware_RejectsOverBurst はバースト超過が429になることを検証する。
func TestGeneralMiddleware_RejectsOverBurst(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig())
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(okHandler())

	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/users", nil)
		req.RemoteAddr = "198.51.100.1:1234"
		last = httptest.NewRecorder()
		handler.ServeHTTP(last, req)
	}

	if last.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", last.Code)
	}
	if last.Header().Get("Retry-After") == "" {
		t.Error("Retry-After header missing")
	}
}

// TestMiddleware_PerClientIsolation はクライアントIPごとに独立して制限されることを検証する。
func TestMiddleware_PerClientIsolation(t *testing.T) {
	rl := NewRateLimiter(testRateLimiterConfig())
	defer rl.Stop()

	handler := rl.MutationMiddleware()(okHandler())

	// 1つ目のクライアントはバーストを使い切る
	req1 := httptest.NewRequest(http.MethodPost, "/api/enrollments", nil)
	req1.RemoteAddr = "198.51.100.1:1234"
	rec1 := httptest.NewRecorder()
	handler.ServeHTTP(rec1, req1)

	rec1b := httptest.NewRecorder()
	handler.ServeHTTP(rec1b, req1)
	if rec1b.Code != http.StatusTooManyRequests {
		t.Errorf("first client second request: status = %d, want 429", rec1b.Code)
	}

	// 2つ目のクライアントは影響を受けない
	req2 := httptest.NewRequest(http.MethodPost, "/api/enrollments", nil)
	req2.RemoteAddr = "203.0.113.9:4321"
	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, req2)
	if rec2.Code != http.StatusOK {
		t.Errorf("second client: status = %d, want 200", rec2.Code)
	}

	if rl.MutationLimiterCount() != 2 {
		t.Errorf("MutationLimiterCount = %d, want 2", rl.MutationLimiterCount())
	}
}

// TestClientIP_XForwardedFor はX-Forwarded-Forの先頭IPが使われることを検証する。
func TestClientIP_XForwardedFor(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")

	if got := clientIP(req); got != "203.0.113.9" {
		t.Errorf("clientIP = %q, want %q", got, "203.0.113.9")
	}
}

// TestClientIP_RemoteAddr はX-Forwarded-ForなしでRemoteAddrのホスト部が使われることを検証する。
func TestClientIP_RemoteAddr(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "198.51.100.1:1234"

	if got := clientIP(req); got != "198.51.100.1" {
		t.Errorf("clientIP = %q, want %q", got, "198.51.100.1")
	}
}
