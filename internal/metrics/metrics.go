// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector はPrometheusメトリクスを収集する実装。
// 認証サービス、ライドサービス、クリーンアップワーカーのMetricsRecorder
// インターフェースをすべて満たす。
type Collector struct {
	signups         *prometheus.CounterVec
	logins          *prometheus.CounterVec
	rateLimited     *prometheus.CounterVec
	ridesCreated    prometheus.Counter
	ridesUpdated    prometheus.Counter
	ridesDeleted    prometheus.Counter
	expiredRemoved  prometheus.Counter
	cleanupFailures prometheus.Counter
	httpStatus      *prometheus.CounterVec
	requestLatency  prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		signups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rideboard_signups_total",
			Help: "サインアップ試行の結果別合計数",
		}, []string{"outcome"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rideboard_logins_total",
			Help: "ログイン試行の結果別合計数",
		}, []string{"outcome"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rideboard_rate_limited_total",
			Help: "レート制限で拒否された試行の操作別合計数",
		}, []string{"class"}),
		ridesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rideboard_rides_created_total",
			Help: "作成されたライドの合計数",
		}),
		ridesUpdated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rideboard_rides_updated_total",
			Help: "更新されたライドの合計数",
		}),
		ridesDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rideboard_rides_deleted_total",
			Help: "所有者によって削除されたライドの合計数",
		}),
		expiredRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rideboard_expired_rides_removed_total",
			Help: "クリーンアップジョブが削除した出発済みライドの合計数",
		}),
		cleanupFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rideboard_cleanup_failures_total",
			Help: "クリーンアップジョブの個別削除失敗の合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rideboard_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "rideboard_request_latency_seconds",
			Help:    "HTTPリクエスト処理のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.signups,
		c.logins,
		c.rateLimited,
		c.ridesCreated,
		c.ridesUpdated,
		c.ridesDeleted,
		c.expiredRemoved,
		c.cleanupFailures,
		c.httpStatus,
		c.requestLatency,
	)

	return c
}

// RecordSignup はサインアップ試行の結果を記録する。
func (c *Collector) RecordSignup(outcome string) {
	c.signups.WithLabelValues(outcome).Inc()
}

// RecordLogin はログイン試行の結果を記録する。
func (c *Collector) RecordLogin(outcome string) {
	c.logins.WithLabelValues(outcome).Inc()
}

// RecordRateLimited はレート制限による拒否を記録する。
func (c *Collector) RecordRateLimited(class string) {
	c.rateLimited.WithLabelValues(class).Inc()
}

// RecordRideCreated はライド作成を記録する。
func (c *Collector) RecordRideCreated() {
	c.ridesCreated.Inc()
}

// RecordRideUpdated はライド更新を記録する。
func (c *Collector) RecordRideUpdated() {
	c.ridesUpdated.Inc()
}

// RecordRideDeleted はライド削除を記録する。
func (c *Collector) RecordRideDeleted() {
	c.ridesDeleted.Inc()
}

// RecordExpiredRidesRemoved はクリーンアップで削除された
// 出発済みライド数を記録する。
func (c *Collector) RecordExpiredRidesRemoved(count int) {
	c.expiredRemoved.Add(float64(count))
}

// RecordCleanupFailures はクリーンアップの個別削除失敗数を記録する。
func (c *Collector) RecordCleanupFailures(count int) {
	c.cleanupFailures.Add(float64(count))
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRequestLatency はリクエスト処理のレイテンシを記録する。
func (c *Collector) RecordRequestLatency(duration time.Duration) {
	c.requestLatency.Observe(duration.Seconds())
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
