package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the service's Prometheus collectors. A nil *Metrics is a
// valid no-op recorder.
type Metrics struct {
	// Workflow steps by step name and outcome (ok, invalid, forbidden, error)
	WorkflowSteps *prometheus.CounterVec

	// Records opened by consultation motive
	RecordsOpened *prometheus.CounterVec

	// HTTP request latency by method, route and status class
	RequestDuration *prometheus.HistogramVec

	LoginAttempts *prometheus.CounterVec
}

// New registers all collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		WorkflowSteps: f.NewCounterVec(prometheus.CounterOpts{
			Name: "genetica_workflow_steps_total",
			Help: "Workflow step submissions by step and outcome",
		}, []string{"step", "outcome"}),

		RecordsOpened: f.NewCounterVec(prometheus.CounterOpts{
			Name: "genetica_records_opened_total",
			Help: "Clinical records opened by consultation motive",
		}, []string{"motive"}),

		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "genetica_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"method", "route", "status"}),

		LoginAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "genetica_login_attempts_total",
			Help: "Password login attempts by result",
		}, []string{"result"}),
	}
}

func (m *Metrics) StepCompleted(step, outcome string) {
	if m != nil {
		m.WorkflowSteps.WithLabelValues(step, outcome).Inc()
	}
}

func (m *Metrics) RecordOpened(motive string) {
	if m != nil {
		m.RecordsOpened.WithLabelValues(motive).Inc()
	}
}

func (m *Metrics) ObserveRequest(method, route, status string, d time.Duration) {
	if m != nil {
		m.RequestDuration.WithLabelValues(method, route, status).Observe(d.Seconds())
	}
}

func (m *Metrics) Login(result string) {
	if m != nil {
		m.LoginAttempts.WithLabelValues(result).Inc()
	}
}
