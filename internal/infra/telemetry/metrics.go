package telemetry

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "portal"

// Metrics holds the domain counters exported on /metrics.
type Metrics struct {
	transitions   *prometheus.CounterVec
	notifications *prometheus.CounterVec
	provisioning  *prometheus.CounterVec
}

// NewMetrics registers the domain counters with reg, reusing collectors that
// are already registered.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	transitions, err := registerCounterVec(reg, prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "moderation",
		Name:      "actions_total",
		Help:      "Moderation actions by action and outcome.",
	}, []string{"action", "outcome"})
	if err != nil {
		return nil, err
	}

	notifications, err := registerCounterVec(reg, prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "notifications",
		Name:      "dispatched_total",
		Help:      "Notification dispatch attempts by template and outcome.",
	}, []string{"template", "outcome"})
	if err != nil {
		return nil, err
	}

	provisioning, err := registerCounterVec(reg, prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "provisioning",
		Name:      "events_total",
		Help:      "Account provisioning events.",
	}, []string{"event"})
	if err != nil {
		return nil, err
	}

	return &Metrics{
		transitions:   transitions,
		notifications: notifications,
		provisioning:  provisioning,
	}, nil
}

// ObserveModeration counts a moderation action.
func (m *Metrics) ObserveModeration(action, outcome string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(action, outcome).Inc()
}

// ObserveNotification counts a dispatch attempt.
func (m *Metrics) ObserveNotification(template string, delivered bool) {
	if m == nil {
		return
	}
	outcome := "delivered"
	if !delivered {
		outcome = "failed"
	}
	m.notifications.WithLabelValues(template, outcome).Inc()
}

// ObserveProvisioning counts a provisioning event.
func (m *Metrics) ObserveProvisioning(event string) {
	if m == nil {
		return
	}
	m.provisioning.WithLabelValues(event).Inc()
}

func registerCounterVec(reg prometheus.Registerer, opts prometheus.CounterOpts, labels []string) (*prometheus.CounterVec, error) {
	vec := prometheus.NewCounterVec(opts, labels)
	if err := reg.Register(vec); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
		}
		return nil, err
	}
	return vec, nil
}
