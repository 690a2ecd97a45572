package booking

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Transitions      *prometheus.CounterVec
	DispatchFailures *prometheus.CounterVec
	Bookings         *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "groombook",
			Subsystem: "appointments",
			Name:      "transitions_total",
			Help:      "Appointment transition attempts by action and result",
		}, []string{"action", "result"}),
		DispatchFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "groombook",
			Subsystem: "appointments",
			Name:      "notification_dispatch_failures_total",
			Help:      "Notifications that failed to persist after a stored transition",
		}, []string{"type"}),
		Bookings: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "groombook",
			Subsystem: "appointments",
			Name:      "bookings_total",
			Help:      "Appointment booking attempts by result",
		}, []string{"result"}),
	}
}

func (m *Metrics) transition(action, result string) {
	if m != nil {
		m.Transitions.WithLabelValues(action, result).Inc()
	}
}

func (m *Metrics) dispatchFailure(t string) {
	if m != nil {
		m.DispatchFailures.WithLabelValues(t).Inc()
	}
}

func (m *Metrics) booking(result string) {
	if m != nil {
		m.Bookings.WithLabelValues(result).Inc()
	}
}
