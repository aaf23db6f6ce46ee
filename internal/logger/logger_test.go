package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
)

// TestSetup はJSON形式でログが出力されることを検証する。
func TestSetup(t *testing.T) {
	var buf bytes.Buffer
	l := Setup(&buf)

	l.Info("connection established", slog.String("component", "store"))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log output is not valid JSON: %v", err)
	}
	if entry["msg"] != "connection established" {
		t.Errorf("msg = %v, want %q", entry["msg"], "connection established")
	}
	if entry["component"] != "store" {
		t.Errorf("component = %v, want %q", entry["component"], "store")
	}
}

// TestSetup_DebugSuppressed はInfoレベル未満のログが抑制されることを検証する。
func TestSetup_DebugSuppressed(t *testing.T) {
	var buf bytes.Buffer
	l := Setup(&buf)

	l.Debug("should not appear")

	if buf.Len() != 0 {
		t.Errorf("debug log should be suppressed, got %q", buf.String())
	}
}
