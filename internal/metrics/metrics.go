// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector は登録操作とGraphリクエストのメトリクスを収集する。
// reconcile.Recorderとgraph.RequestObserverの両方を実装する。
type Collector struct {
	enrollTotal  *prometheus.CounterVec
	mirrorTotal  *prometheus.CounterVec
	graphLatency *prometheus.HistogramVec
	graphStatus  *prometheus.CounterVec
	httpRequests *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		enrollTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "enrollman_enroll_total",
			Help: "主系への登録書き込みの合計数（操作・結果別）",
		}, []string{"operation", "result"}),
		mirrorTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "enrollman_mirror_total",
			Help: "SharePointミラー書き込みの合計数（操作・結果別）",
		}, []string{"operation", "result"}),
		graphLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "enrollman_graph_latency_seconds",
			Help:    "Graph APIリクエストのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		graphStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "enrollman_graph_status_total",
			Help: "Graph APIのHTTPステータスコード別のレスポンス数",
		}, []string{"operation", "status_code"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "enrollman_http_requests_total",
			Help: "APIのHTTPステータスコード別のリクエスト数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.enrollTotal,
		c.mirrorTotal,
		c.graphLatency,
		c.graphStatus,
		c.httpRequests,
	)

	return c
}

// resultLabel は成功・失敗のラベル値を返す。
func resultLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

// RecordEnroll は主系への書き込み結果を記録する。
func (c *Collector) RecordEnroll(operation string, success bool) {
	c.enrollTotal.WithLabelValues(operation, resultLabel(success)).Inc()
}

// RecordMirror はミラー書き込みの結果を記録する。
func (c *Collector) RecordMirror(operation string, success bool) {
	c.mirrorTotal.WithLabelValues(operation, resultLabel(success)).Inc()
}

// ObserveGraphRequest はGraphリクエストの操作名、ステータス、所要時間を記録する。
func (c *Collector) ObserveGraphRequest(operation string, status int, duration time.Duration) {
	c.graphLatency.WithLabelValues(operation).Observe(duration.Seconds())
	c.graphStatus.WithLabelValues(operation, strconv.Itoa(status)).Inc()
}

// RecordHTTPStatus はAPI応答のHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpRequests.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
