package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestTrackerRecordsOutcome(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	assert.NoError(t, m.Track("quotation:expire_sweep").End(nil))
	boom := errors.New("boom")
	assert.ErrorIs(t, m.Track("quotation:expire_sweep").End(boom), boom)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("quotation:expire_sweep", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("quotation:expire_sweep", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("quotation:expire_sweep")))
}

func TestAddSwept(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.AddSwept("idempotency:cleanup", 3)
	m.AddSwept("idempotency:cleanup", 0)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.swept.WithLabelValues("idempotency:cleanup")))

	var nilMetrics *Metrics
	nilMetrics.AddSwept("idempotency:cleanup", 1)
	assert.NoError(t, nilMetrics.Track("x").End(nil))
}
