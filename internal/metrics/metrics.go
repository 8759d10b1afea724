// Package metrics exposes Prometheus collectors for the presence engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "relay"

// Metrics is nil-safe: every method is a no-op on a nil receiver so
// components can run without instrumentation in tests.
type Metrics struct {
	connections prometheus.Gauge
	rooms       prometheus.Gauge
	joins       prometheus.Counter
	messages    prometheus.Counter
	deliveries  prometheus.Counter
	dropped     prometheus.Counter
	rejected    *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		connections: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "connections_active",
			Help: "Live signal connections.",
		}),
		rooms: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "rooms_active",
			Help: "Rooms with at least one member.",
		}),
		joins: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "joins_total",
			Help: "Accepted join requests.",
		}),
		messages: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "messages_total",
			Help: "Chat messages accepted for broadcast.",
		}),
		deliveries: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "deliveries_total",
			Help: "Frames enqueued to recipients.",
		}),
		dropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "deliveries_dropped_total",
			Help: "Frames a recipient could not accept.",
		}),
		rejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "joins_rejected_total",
			Help: "Join requests rejected, by reason.",
		}, []string{"reason"}),
	}
}

// Handler exposes the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func (m *Metrics) ConnectionOpened() {
	if m != nil {
		m.connections.Inc()
	}
}

func (m *Metrics) ConnectionClosed() {
	if m != nil {
		m.connections.Dec()
	}
}

func (m *Metrics) SetRooms(n int) {
	if m != nil {
		m.rooms.Set(float64(n))
	}
}

func (m *Metrics) Joined() {
	if m != nil {
		m.joins.Inc()
	}
}

func (m *Metrics) JoinRejected(reason string) {
	if m != nil {
		m.rejected.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) MessageAccepted() {
	if m != nil {
		m.messages.Inc()
	}
}

func (m *Metrics) Delivered(sent, dropped int) {
	if m != nil {
		m.deliveries.Add(float64(sent))
		m.dropped.Add(float64(dropped))
	}
}
