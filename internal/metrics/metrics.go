// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Oracle呼び出しの結果ラベル。
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ミドルウェア、サービス層、ワーカーから利用する。
type MetricsCollector interface {
	RecordHTTPStatus(statusCode int)
	RecordOracleRequest(operation, outcome string)
	RecordOracleLatency(operation string, duration time.Duration)
	RecordTarotDraw(spreadType string)
	RecordTarotFallback()
	RecordPaymentEvent(event string)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	httpStatus     *prometheus.CounterVec
	oracleRequests *prometheus.CounterVec
	oracleLatency  *prometheus.HistogramVec
	tarotDraws     *prometheus.CounterVec
	tarotFallback  prometheus.Counter
	payments       *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ethergreen_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		oracleRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ethergreen_oracle_requests_total",
			Help: "AIプロバイダ呼び出しの合計数",
		}, []string{"operation", "outcome"}),
		oracleLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ethergreen_oracle_latency_seconds",
			Help:    "AIプロバイダ呼び出しのレイテンシ（秒）",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 60},
		}, []string{"operation"}),
		tarotDraws: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ethergreen_tarot_draws_total",
			Help: "スプレッド別のタロットドロー数",
		}, []string{"spread_type"}),
		tarotFallback: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ethergreen_tarot_fallback_total",
			Help: "固定文の解釈にフォールバックした回数",
		}),
		payments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ethergreen_payments_total",
			Help: "決済イベント別の件数",
		}, []string{"event"}),
	}

	reg.MustRegister(
		c.httpStatus,
		c.oracleRequests,
		c.oracleLatency,
		c.tarotDraws,
		c.tarotFallback,
		c.payments,
	)

	return c
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordOracleRequest はAIプロバイダ呼び出しの結果を記録する。
func (c *Collector) RecordOracleRequest(operation, outcome string) {
	c.oracleRequests.WithLabelValues(operation, outcome).Inc()
}

// RecordOracleLatency はAIプロバイダ呼び出しのレイテンシを記録する。
func (c *Collector) RecordOracleLatency(operation string, duration time.Duration) {
	c.oracleLatency.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordTarotDraw はタロットドローを記録する。
func (c *Collector) RecordTarotDraw(spreadType string) {
	c.tarotDraws.WithLabelValues(spreadType).Inc()
}

// RecordTarotFallback は解釈のフォールバックを記録する。
func (c *Collector) RecordTarotFallback() {
	c.tarotFallback.Inc()
}

// RecordPaymentEvent は決済イベント（checkout_created, paid, expired, webhook_rejected）を記録する。
func (c *Collector) RecordPaymentEvent(event string) {
	c.payments.WithLabelValues(event).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var _ MetricsCollector = (*Collector)(nil)
