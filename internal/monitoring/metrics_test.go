package monitoring

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsCounters(t *testing.T) {
	m := NewMetrics("test")

	m.ObserveTrade("BUY", "executed", 10*time.Millisecond)
	m.ObserveTrade("BUY", "executed", 12*time.Millisecond)
	m.ObserveTrade("SELL", "INSUFFICIENT_SHARES", time.Millisecond)
	m.ObserveCacheRequest("hit")
	m.ObserveUpstreamFetch("http", "success", 50*time.Millisecond)
	m.SetStreamClients(3)
	m.ObserveStreamDrop("quote")

	assert.Equal(t, 3.0, testutil.ToFloat64(m.streamClients))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.streamDropped.WithLabelValues("quote")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.tradeCount.WithLabelValues("BUY", "executed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.tradeCount.WithLabelValues("SELL", "INSUFFICIENT_SHARES")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheRequests.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.upstreamFetch.WithLabelValues("http", "success")))
}

func TestMetricsInstancesDoNotCollide(t *testing.T) {
	a := NewMetrics("test")
	b := NewMetrics("test")

	a.ObserveCacheRequest("miss")
	assert.Equal(t, 0.0, testutil.ToFloat64(b.cacheRequests.WithLabelValues("miss")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveRequest("/x", http.MethodGet, 200, time.Millisecond)
		m.ObserveTrade("BUY", "executed", time.Millisecond)
		m.ObserveCacheRequest("hit")
		m.UpdateSystemMetrics()
	})
}

func TestMetricsHandler(t *testing.T) {
	m := NewMetrics("papertrade")
	m.ObserveRequest("/api/v1/portfolio", http.MethodGet, 200, time.Millisecond)

	rec := httptest.NewRecorder()
	m.MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `papertrade_http_requests_total{handler="/api/v1/portfolio",method="GET",status="200"} 1`))
}
