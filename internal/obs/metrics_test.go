package obs

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsRecord(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.ObserveAction("insert_coin", "succeeded", 10*time.Millisecond)
	m.ObserveAction("insert_coin", "succeeded", 10*time.Millisecond)
	m.ObserveSessionRequest("dispense", "api_error", time.Millisecond)
	m.NotificationShown("error")
	m.SetBacklog(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ActionsTotal.WithLabelValues("insert_coin", "succeeded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionRequests.WithLabelValues("dispense", "api_error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NotificationsShown.WithLabelValues("error")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.ActionBacklog))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveAction("cancel", "failed", time.Second)
		m.ObserveSessionRequest("cancel", "ok", time.Second)
		m.NotificationShown("info")
		m.SetBacklog(1)
		m.ObserveHTTP("GET", "/", "200", time.Second)
	})
}
