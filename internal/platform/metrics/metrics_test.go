package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.StepCompleted("parents_recorded", "ok")
		m.RecordOpened("couple_prenatal")
		m.ObserveRequest("GET", "/health", "2xx", time.Millisecond)
		m.Login("ok")
	})
}

func TestMetrics_CountsSteps(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.StepCompleted("evaluation_recorded", "ok")
	m.StepCompleted("evaluation_recorded", "ok")
	m.StepCompleted("evaluation_recorded", "invalid")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.WorkflowSteps.WithLabelValues("evaluation_recorded", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.WorkflowSteps.WithLabelValues("evaluation_recorded", "invalid")))
}
