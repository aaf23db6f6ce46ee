package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// TestCollector_RecordsAndExposes は記録したメトリクスが/metrics出力に現れることを検証する。
func TestCollector_RecordsAndExposes(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordEnroll("enroll", true)
	c.RecordEnroll("enroll", false)
	c.RecordMirror("mirror_add", false)
	c.ObserveGraphRequest("add_member", 204, 150*time.Millisecond)
	c.RecordHTTPStatus(200)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	body := rec.Body.String()
	for _, want := range []string{
		`enrollman_enroll_total{operation="enroll",result="success"} 1`,
		`enrollman_enroll_total{operation="enroll",result="failure"} 1`,
		`enrollman_mirror_total{operation="mirror_add",result="failure"} 1`,
		`enrollman_graph_status_total{operation="add_member",status_code="204"} 1`,
		`enrollman_http_requests_total{status_code="200"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

// TestCollector_GraphLatencyHistogram はレイテンシヒストグラムが観測されることを検証する。
func TestCollector_GraphLatencyHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.ObserveGraphRequest("resolve_site", 200, 80*time.Millisecond)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, req)

	if !strings.Contains(rec.Body.String(), `enrollman_graph_latency_seconds_count{operation="resolve_site"} 1`) {
		t.Error("latency histogram count not found in metrics output")
	}
}
