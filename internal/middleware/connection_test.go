package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

type stubChecker struct {
	connected bool
}

func (s *stubChecker) IsConnected() bool { return s.connected }

// TestConnectionGuard_Blocks は未接続時に503とCONNECTION_REQUIREDが返ることを検証する。
func TestConnectionGuard_Blocks(t *testing.T) {
	reached := false
	handler := NewConnectionGuardMiddleware(&stubChecker{connected: false})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reached = true
		}))

	req := httptest.NewRequest(http.MethodGet, "/api/users", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
	if reached {
		t.Error("handler should not be reached when disconnected")
	}

	var body ErrorResponseBody
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body.Code != "CONNECTION_REQUIRED" {
		t.Errorf("code = %q, want CONNECTION_REQUIRED", body.Code)
	}
}

// TestConnectionGuard_PassesThrough は接続済みでハンドラーに到達することを検証する。
func TestConnectionGuard_PassesThrough(t *testing.T) {
	handler := NewConnectionGuardMiddleware(&stubChecker{connected: true})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

	req := httptest.NewRequest(http.MethodGet, "/api/users", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}
