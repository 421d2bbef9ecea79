package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/hitoshi/rideboard/internal/auth"
	"github.com/hitoshi/rideboard/internal/middleware"
	"github.com/hitoshi/rideboard/internal/ride"
	"github.com/hitoshi/rideboard/internal/worker/cleanup"
)

// Collectorは各サービスのメトリクスレコーダーインターフェースを満たすことを検証
func TestCollector_ImplementsRecorderInterfaces(t *testing.T) {
	var _ auth.MetricsRecorder = (*Collector)(nil)
	var _ ride.MetricsRecorder = (*Collector)(nil)
	var _ cleanup.MetricsRecorder = (*Collector)(nil)
	var _ middleware.HTTPMetricsRecorder = (*Collector)(nil)
}

// TestCollector_AuthCounters は認証メトリクスがラベル別に
// カウントされることを検証する。
func TestCollector_AuthCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordSignup("success")
	c.RecordSignup("success")
	c.RecordSignup("invalid_domain")
	c.RecordLogin("rate_limited")
	c.RecordRateLimited("login")

	if got := testutil.ToFloat64(c.signups.WithLabelValues("success")); got != 2 {
		t.Errorf("signups{success} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.signups.WithLabelValues("invalid_domain")); got != 1 {
		t.Errorf("signups{invalid_domain} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.logins.WithLabelValues("rate_limited")); got != 1 {
		t.Errorf("logins{rate_limited} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.rateLimited.WithLabelValues("login")); got != 1 {
		t.Errorf("rate_limited{login} = %v, want 1", got)
	}
}

// TestCollector_RideCounters はライド操作メトリクスを検証する。
func TestCollector_RideCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordRideCreated()
	c.RecordRideCreated()
	c.RecordRideUpdated()
	c.RecordRideDeleted()
	c.RecordExpiredRidesRemoved(5)
	c.RecordCleanupFailures(2)

	if got := testutil.ToFloat64(c.ridesCreated); got != 2 {
		t.Errorf("rides_created = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.ridesUpdated); got != 1 {
		t.Errorf("rides_updated = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.ridesDeleted); got != 1 {
		t.Errorf("rides_deleted = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.expiredRemoved); got != 5 {
		t.Errorf("expired_rides_removed = %v, want 5", got)
	}
	if got := testutil.ToFloat64(c.cleanupFailures); got != 2 {
		t.Errorf("cleanup_failures = %v, want 2", got)
	}
}

// TestCollector_HTTPMetrics はHTTPステータスとレイテンシの記録を検証する。
func TestCollector_HTTPMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(429)
	c.RecordRequestLatency(50 * time.Millisecond)

	if got := testutil.ToFloat64(c.httpStatus.WithLabelValues("200")); got != 2 {
		t.Errorf("http_status{200} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.httpStatus.WithLabelValues("429")); got != 1 {
		t.Errorf("http_status{429} = %v, want 1", got)
	}
}

// TestSetupMetricsRoute は/metricsエンドポイントがPrometheus形式で
// メトリクスを公開することを検証する。
func TestSetupMetricsRoute(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordRideCreated()

	handler := SetupMetricsRoute(reg)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Result().StatusCode)
	}
	body := w.Body.String()
	if !strings.Contains(body, "rideboard_rides_created_total 1") {
		t.Errorf("metrics output missing rides_created counter:\n%s", body)
	}
}
