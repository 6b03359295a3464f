package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker/v2"

	"github.com/kirillkom/oq-testgen/internal/core/domain"
)

// WorkflowMetrics implements ports.WorkflowObserver on top of an existing registry.
type WorkflowMetrics struct {
	service string

	specialistTotal    *prometheus.CounterVec
	specialistDuration *prometheus.HistogramVec
	specialistAttempts *prometheus.HistogramVec
	outcomeTotal       *prometheus.CounterVec
	outcomeDuration    *prometheus.HistogramVec
	escalationTotal    *prometheus.CounterVec
	failureTotal       *prometheus.CounterVec
	breakerState       *prometheus.GaugeVec
}

func NewWorkflowMetrics(service string, registerer prometheus.Registerer) *WorkflowMetrics {
	m := &WorkflowMetrics{
		service: service,
		specialistTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "specialist",
				Name:      "results_total",
				Help:      "Specialist results by role and status.",
			},
			[]string{"service", "role", "status"},
		),
		specialistDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "specialist",
				Name:      "duration_seconds",
				Help:      "Specialist duration across all attempts.",
				Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 20, 30, 60, 120},
			},
			[]string{"service", "role"},
		),
		specialistAttempts: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "specialist",
				Name:      "attempts",
				Help:      "Attempts used per specialist request.",
				Buckets:   []float64{0, 1, 2, 3, 4, 5},
			},
			[]string{"service", "role"},
		),
		outcomeTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "workflow",
				Name:      "outcomes_total",
				Help:      "Workflow outcomes by status and category.",
			},
			[]string{"service", "status", "category"},
		),
		outcomeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "workflow",
				Name:      "duration_seconds",
				Help:      "End-to-end workflow duration by status.",
				Buckets:   []float64{1, 5, 10, 30, 60, 120, 180, 300},
			},
			[]string{"service", "status"},
		),
		escalationTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "workflow",
				Name:      "escalations_total",
				Help:      "Escalation reasons.",
			},
			[]string{"service", "reason"},
		),
		failureTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "workflow",
				Name:      "failures_total",
				Help:      "Fatal workflow failures by the stage they happened in.",
			},
			[]string{"service", "stage"},
		),
		breakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "resilience",
				Name:      "breaker_state",
				Help:      "Circuit breaker state (0 closed, 1 half-open, 2 open).",
			},
			[]string{"service", "operation"},
		),
	}

	registerer.MustRegister(
		m.specialistTotal,
		m.specialistDuration,
		m.specialistAttempts,
		m.outcomeTotal,
		m.outcomeDuration,
		m.escalationTotal,
		m.failureTotal,
		m.breakerState,
	)
	return m
}

func (m *WorkflowMetrics) ObserveSpecialistResult(result domain.SpecialistResult) {
	role := string(result.Role)
	m.specialistTotal.WithLabelValues(m.service, role, string(result.Status)).Inc()
	m.specialistDuration.WithLabelValues(m.service, role).Observe(result.Duration.Seconds())
	m.specialistAttempts.WithLabelValues(m.service, role).Observe(float64(result.Attempts))
}

func (m *WorkflowMetrics) ObserveOutcome(outcome *domain.AggregatedOutcome, duration time.Duration) {
	status := string(outcome.Status)
	m.outcomeTotal.WithLabelValues(m.service, status, string(outcome.Assignment.Category)).Inc()
	m.outcomeDuration.WithLabelValues(m.service, status).Observe(duration.Seconds())
	if outcome.Escalation != nil {
		for _, reason := range outcome.Escalation.Reasons {
			m.escalationTotal.WithLabelValues(m.service, string(reason)).Inc()
		}
	}
}

func (m *WorkflowMetrics) ObserveFailure(stage domain.WorkflowState, duration time.Duration) {
	m.failureTotal.WithLabelValues(m.service, string(stage)).Inc()
	m.outcomeDuration.WithLabelValues(m.service, string(domain.StateFailed)).Observe(duration.Seconds())
}

// ObserveBreakerState matches resilience.StateObserver.
func (m *WorkflowMetrics) ObserveBreakerState(operation string, _, to gobreaker.State) {
	var v float64
	switch to {
	case gobreaker.StateHalfOpen:
		v = 1
	case gobreaker.StateOpen:
		v = 2
	}
	m.breakerState.WithLabelValues(m.service, operation).Set(v)
}
