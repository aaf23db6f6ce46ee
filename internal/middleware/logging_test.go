package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

type stubStatusRecorder struct {
	statuses []int
}

func (s *stubStatusRecorder) RecordHTTPStatus(statusCode int) {
	s.statuses = append(s.statuses, statusCode)
}

// TestLoggingMiddleware_LogsRequest はリクエストログの内容を検証する。
func TestLoggingMiddleware_LogsRequest(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	recorder := &stubStatusRecorder{}

	handler := NewLoggingMiddleware(logger, recorder)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusCreated)
		}))

	req := httptest.NewRequest(http.MethodPost, "/api/enrollments", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log output is not valid JSON: %v", err)
	}
	if entry["msg"] != "http_request" {
		t.Errorf("msg = %v, want http_request", entry["msg"])
	}
	if entry["method"] != "POST" {
		t.Errorf("method = %v, want POST", entry["method"])
	}
	if entry["status"] != float64(201) {
		t.Errorf("status = %v, want 201", entry["status"])
	}
	if entry["request_id"] == "" || entry["request_id"] == nil {
		t.Error("request_id missing from log entry")
	}

	if len(recorder.statuses) != 1 || recorder.statuses[0] != 201 {
		t.Errorf("recorded statuses = %v, want [201]", recorder.statuses)
	}
}

// TestLoggingMiddleware_ErrorLevel は5xxがerrorレベルで記録されることを検証する。
func TestLoggingMiddleware_ErrorLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	handler := NewLoggingMiddleware(logger, nil)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log output is not valid JSON: %v", err)
	}
	if entry["level"] != "ERROR" {
		t.Errorf("level = %v, want ERROR", entry["level"])
	}
}
