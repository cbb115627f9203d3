// Package observability holds the Prometheus collectors for the scheduling
// core. All methods are safe on a nil *Metrics so callers can run without
// instrumentation.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry      *prometheus.Registry
	created       prometheus.Counter
	conflicts     *prometheus.CounterVec
	notifications *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		created: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "therapia_appointments_created_total",
			Help: "Appointments successfully booked.",
		}),
		conflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "therapia_appointment_conflicts_total",
			Help: "Bookings rejected because the therapist slot was taken.",
		}, []string{"operation"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "therapia_appointment_notifications_total",
			Help: "Appointment notification attempts by kind and result.",
		}, []string{"kind", "result"}),
	}
	m.registry.MustRegister(
		m.created,
		m.conflicts,
		m.notifications,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) AppointmentCreated() {
	if m == nil {
		return
	}
	m.created.Inc()
}

func (m *Metrics) SlotConflict(operation string) {
	if m == nil {
		return
	}
	m.conflicts.WithLabelValues(operation).Inc()
}

// Notification records one send attempt. kind is "confirmation" or
// "cancellation".
func (m *Metrics) Notification(kind string, err error) {
	if m == nil {
		return
	}
	result := "sent"
	if err != nil {
		result = "failed"
	}
	m.notifications.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
