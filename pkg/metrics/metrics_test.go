package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Record(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.CheckIn("manual")
	m.CheckIn("manual")
	m.CheckIn("sensor")
	m.CheckOut()
	m.Reject("already_in_location")
	m.ObserveQuery("self_current", time.Now())
	m.ObserveLockWait(time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.CheckIns.WithLabelValues("manual")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CheckIns.WithLabelValues("sensor")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CheckOuts))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Rejections.WithLabelValues("already_in_location")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Queries.WithLabelValues("self_current")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.LockWait))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.CheckIn("manual")
		m.CheckOut()
		m.Reject("x")
		m.ObserveQuery("x", time.Now())
		m.ObserveLockWait(time.Second)
	})
}
