// Package metrics exports session lifecycle activity as Prometheus metrics.
package metrics

import (
	"context"

	lifecycle "github.com/goliatone/go-auth-lifecycle"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "lifecycle"

var statuses = []lifecycle.Status{
	lifecycle.StatusAnonymous,
	lifecycle.StatusPendingVerification,
	lifecycle.StatusAuthenticated,
	lifecycle.StatusAuthenticatedAdmin,
}

// Metrics holds the lifecycle collectors and implements lifecycle.ActivitySink.
type Metrics struct {
	// Events counts every activity event by type
	Events *prometheus.CounterVec
	// Failures counts failed operations by operation and error kind
	Failures *prometheus.CounterVec
	// Transitions counts session status changes
	Transitions *prometheus.CounterVec
	// Status is 1 for the current session status and 0 for the others
	Status *prometheus.GaugeVec
}

var _ lifecycle.ActivitySink = (*Metrics)(nil)

// NewMetrics creates the collectors and registers them with registry.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)

	m := &Metrics{
		Events: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "activity_events_total",
				Help:      "Total number of session lifecycle activity events",
			},
			[]string{"event"},
		),
		Failures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operation_failures_total",
				Help:      "Total number of failed lifecycle operations",
			},
			[]string{"operation", "kind"},
		),
		Transitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "status_transitions_total",
				Help:      "Total number of session status transitions",
			},
			[]string{"from", "to"},
		),
		Status: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "session_status",
				Help:      "Current session status (1 for the active status)",
			},
			[]string{"status"},
		),
	}

	m.setStatus(lifecycle.StatusAnonymous)
	return m
}

// Record implements lifecycle.ActivitySink.
func (m *Metrics) Record(_ context.Context, event lifecycle.ActivityEvent) error {
	if m == nil {
		return nil
	}

	m.Events.WithLabelValues(string(event.EventType)).Inc()

	if event.ErrorKind != lifecycle.KindNone {
		m.Failures.WithLabelValues(operationLabel(event), string(event.ErrorKind)).Inc()
	}

	if event.EventType == lifecycle.ActivityEventStatusChanged && event.ToStatus != "" {
		m.Transitions.WithLabelValues(string(event.FromStatus), string(event.ToStatus)).Inc()
		m.setStatus(event.ToStatus)
	}
	return nil
}

func (m *Metrics) setStatus(current lifecycle.Status) {
	for _, status := range statuses {
		value := 0.0
		if status == current {
			value = 1
		}
		m.Status.WithLabelValues(string(status)).Set(value)
	}
}

func operationLabel(event lifecycle.ActivityEvent) string {
	if event.Operation != "" {
		return event.Operation
	}
	return "unknown"
}
