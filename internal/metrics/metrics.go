// Package metrics exposes Prometheus collectors for the reconcile loop.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/luki/nutetra/internal/sensor"
)

// Metrics holds the dashboard collectors.
type Metrics struct {
	value         *prometheus.GaugeVec
	status        *prometheus.GaugeVec
	updates       *prometheus.CounterVec
	staleDropped  prometheus.Counter
	notifications *prometheus.CounterVec
	pollErrors    prometheus.Counter
	reconcile     prometheus.Histogram
}

// New creates the collectors and registers them with reg. A nil reg uses
// the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		value: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "nutetra_sensor_value",
			Help: "Latest raw value per sensor channel.",
		}, []string{"channel"}),
		status: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "nutetra_sensor_status",
			Help: "Channel status: 0 in range, 1 unevaluated, 2 out of range, 3 disconnected.",
		}, []string{"channel"}),
		updates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nutetra_updates_total",
			Help: "Reading updates consumed, by producer.",
		}, []string{"source"}),
		staleDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nutetra_stale_dropped_total",
			Help: "Readings discarded because a newer one was already held.",
		}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nutetra_notifications_total",
			Help: "Notifications sent, by level.",
		}, []string{"level"}),
		pollErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "nutetra_poll_errors_total",
			Help: "Failed or rejected polls of the controller.",
		}),
		reconcile: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "nutetra_reconcile_seconds",
			Help:    "Time spent handling one update.",
			Buckets: prometheus.ExponentialBuckets(0.00001, 4, 8),
		}),
	}
	reg.MustRegister(m.value, m.status, m.updates, m.staleDropped, m.notifications, m.pollErrors, m.reconcile)
	return m
}

// ObserveStates records value and status gauges for a snapshot.
// Disconnected channels drop their value series.
func (m *Metrics) ObserveStates(states []sensor.ChannelState) {
	for _, s := range states {
		ch := string(s.Channel)
		m.status.WithLabelValues(ch).Set(float64(s.Status))
		if s.HasValue {
			m.value.WithLabelValues(ch).Set(s.Value)
		} else {
			m.value.DeleteLabelValues(ch)
		}
	}
}

func (m *Metrics) IncUpdate(source string) { m.updates.WithLabelValues(source).Inc() }

func (m *Metrics) AddStale(n int) {
	if n > 0 {
		m.staleDropped.Add(float64(n))
	}
}

func (m *Metrics) IncNotification(level string) { m.notifications.WithLabelValues(level).Inc() }

func (m *Metrics) IncPollError() { m.pollErrors.Inc() }

func (m *Metrics) ObserveReconcile(d time.Duration) { m.reconcile.Observe(d.Seconds()) }
