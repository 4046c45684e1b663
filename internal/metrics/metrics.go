package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the server collectors on a private registry so tests can
// build as many instances as they like.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequests     *prometheus.CounterVec
	HTTPDuration     *prometheus.HistogramVec
	PushConnections  prometheus.Gauge
	PushRooms        prometheus.Gauge
	PushBroadcasts   *prometheus.CounterVec
	StoreFailures    *prometheus.CounterVec
	StaleSessionsCut prometheus.Counter
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "focusroom_http_requests_total",
			Help: "HTTP requests by route and status",
		}, []string{"method", "route", "status"}),
		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "focusroom_http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		PushConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "focusroom_push_connections",
			Help: "Open push channel connections",
		}),
		PushRooms: factory.NewGauge(prometheus.GaugeOpts{
			Name: "focusroom_push_rooms",
			Help: "Rooms with at least one push connection",
		}),
		PushBroadcasts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "focusroom_push_broadcasts_total",
			Help: "Push events broadcast by type",
		}, []string{"event"}),
		StoreFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "focusroom_push_store_failures_total",
			Help: "Durable writes from the push channel that failed",
		}, []string{"op"}),
		StaleSessionsCut: factory.NewCounter(prometheus.CounterOpts{
			Name: "focusroom_stale_sessions_closed_total",
			Help: "Open sessions closed as incomplete by a newer start",
		}),
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.PushConnections.Inc()
}

func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.PushConnections.Dec()
}

func (m *Metrics) RoomOpened() {
	if m == nil {
		return
	}
	m.PushRooms.Inc()
}

func (m *Metrics) RoomClosed() {
	if m == nil {
		return
	}
	m.PushRooms.Dec()
}

func (m *Metrics) Broadcast(event string) {
	if m == nil {
		return
	}
	m.PushBroadcasts.WithLabelValues(event).Inc()
}

func (m *Metrics) StoreFailure(op string) {
	if m == nil {
		return
	}
	m.StoreFailures.WithLabelValues(op).Inc()
}

func (m *Metrics) StaleSessionClosed() {
	if m == nil {
		return
	}
	m.StaleSessionsCut.Inc()
}
