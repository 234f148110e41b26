// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"reflect"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 生成処理の種類
const (
	KindText  = "text"
	KindImage = "image"
)

// 処理結果のラベル値
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ミドルウェアやサービス層から利用する。
type MetricsCollector interface {
	RecordHTTPRequest(method string, statusCode int)
	RecordGeneration(kind, outcome string, duration time.Duration)
	RecordCardSave(outcome string)
	RecordStorageDeleteFailure()
}

// nopCollector は何も記録しないMetricsCollector。
type nopCollector struct{}

func (nopCollector) RecordHTTPRequest(string, int)                  {}
func (nopCollector) RecordGeneration(string, string, time.Duration) {}
func (nopCollector) RecordCardSave(string)                          {}
func (nopCollector) RecordStorageDeleteFailure()                    {}

// OrNop はmcがnil（nilポインタを包んだインターフェースを含む）なら何も記録しない実装を返す。
func OrNop(mc MetricsCollector) MetricsCollector {
	if mc == nil {
		return nopCollector{}
	}
	if v := reflect.ValueOf(mc); v.Kind() == reflect.Pointer && v.IsNil() {
		return nopCollector{}
	}
	return mc
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	httpRequests          *prometheus.CounterVec
	generations           *prometheus.CounterVec
	generationLatency     *prometheus.HistogramVec
	cardSaves             *prometheus.CounterVec
	storageDeleteFailures prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "greetcard_http_requests_total",
			Help: "HTTPメソッド・ステータスコード別のリクエスト数",
		}, []string{"method", "status"}),
		generations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "greetcard_generation_total",
			Help: "テキスト・画像生成の呼び出し回数",
		}, []string{"kind", "outcome"}),
		generationLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "greetcard_generation_latency_seconds",
			Help: "生成APIのレイテンシ（秒）",
			// 画像生成は最大2分程度かかる
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 60, 90, 120},
		}, []string{"kind"}),
		cardSaves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "greetcard_card_saves_total",
			Help: "カード保存の結果別件数",
		}, []string{"outcome"}),
		storageDeleteFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "greetcard_storage_delete_failures_total",
			Help: "履歴削除時に無視されたストレージ削除失敗の合計数",
		}),
	}

	reg.MustRegister(
		c.httpRequests,
		c.generations,
		c.generationLatency,
		c.cardSaves,
		c.storageDeleteFailures,
	)

	return c
}

// RecordHTTPRequest はHTTPリクエストの処理結果を記録する。
func (c *Collector) RecordHTTPRequest(method string, statusCode int) {
	c.httpRequests.WithLabelValues(method, strconv.Itoa(statusCode)).Inc()
}

// RecordGeneration は生成APIの呼び出し結果とレイテンシを記録する。
func (c *Collector) RecordGeneration(kind, outcome string, duration time.Duration) {
	c.generations.WithLabelValues(kind, outcome).Inc()
	c.generationLatency.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordCardSave はカード保存の結果を記録する。
func (c *Collector) RecordCardSave(outcome string) {
	c.cardSaves.WithLabelValues(outcome).Inc()
}

// RecordStorageDeleteFailure はストレージオブジェクト削除の失敗を記録する。
func (c *Collector) RecordStorageDeleteFailure() {
	c.storageDeleteFailures.Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var _ MetricsCollector = (*Collector)(nil)
