package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector is everything the server reports.
type Collector interface {
	RecordActiveRooms(n int)
	RecordActiveConnections(n int)
	RecordEvent(eventType string)
	RecordRoundResult(result, resolvedBy string)
	RecordInboundMessage(messageType string, outcome string)
	RecordImageLookup(kind string, outcome string)
	RecordPublish(eventType string, success bool)
}

// NoOpCollector is used when metrics are disabled.
type NoOpCollector struct{}

func (NoOpCollector) RecordActiveRooms(int)               {}
func (NoOpCollector) RecordActiveConnections(int)         {}
func (NoOpCollector) RecordEvent(string)                  {}
func (NoOpCollector) RecordRoundResult(string, string)    {}
func (NoOpCollector) RecordInboundMessage(string, string) {}
func (NoOpCollector) RecordImageLookup(string, string)    {}
func (NoOpCollector) RecordPublish(string, bool)          {}

// PrometheusCollector implements Collector on its own registry.
type PrometheusCollector struct {
	registry *prometheus.Registry

	activeRooms       prometheus.Gauge
	activeConnections prometheus.Gauge
	events            *prometheus.CounterVec
	rounds            *prometheus.CounterVec
	inbound           *prometheus.CounterVec
	imageLookups      *prometheus.CounterVec
	publishes         *prometheus.CounterVec
}

func NewPrometheusCollector(namespace string) *PrometheusCollector {
	c := &PrometheusCollector{
		registry: prometheus.NewRegistry(),
		activeRooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_rooms",
			Help:      "Rooms currently held in memory.",
		}),
		activeConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_connections",
			Help:      "Open websocket connections.",
		}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "room_events_total",
			Help:      "Room events emitted, by type.",
		}, []string{"type"}),
		rounds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rounds_resolved_total",
			Help:      "Resolved rounds, by result and resolution.",
		}, []string{"result", "resolved_by"}),
		inbound: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inbound_messages_total",
			Help:      "Client messages received, by type and outcome.",
		}, []string{"type", "outcome"}),
		imageLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "image_lookups_total",
			Help:      "Image lookups, by kind and outcome.",
		}, []string{"kind", "outcome"}),
		publishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bus_publishes_total",
			Help:      "Room events relayed to the message bus, by type and status.",
		}, []string{"type", "status"}),
	}

	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.activeRooms,
		c.activeConnections,
		c.events,
		c.rounds,
		c.inbound,
		c.imageLookups,
		c.publishes,
	)
	return c
}

func (c *PrometheusCollector) RecordActiveRooms(n int) {
	c.activeRooms.Set(float64(n))
}

func (c *PrometheusCollector) RecordActiveConnections(n int) {
	c.activeConnections.Set(float64(n))
}

func (c *PrometheusCollector) RecordEvent(eventType string) {
	c.events.WithLabelValues(eventType).Inc()
}

func (c *PrometheusCollector) RecordRoundResult(result, resolvedBy string) {
	c.rounds.WithLabelValues(result, resolvedBy).Inc()
}

func (c *PrometheusCollector) RecordInboundMessage(messageType, outcome string) {
	c.inbound.WithLabelValues(messageType, outcome).Inc()
}

func (c *PrometheusCollector) RecordImageLookup(kind, outcome string) {
	c.imageLookups.WithLabelValues(kind, outcome).Inc()
}

func (c *PrometheusCollector) RecordPublish(eventType string, success bool) {
	status := "success"
	if !success {
		status = "failure"
	}
	c.publishes.WithLabelValues(eventType, status).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (c *PrometheusCollector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mainly for tests.
func (c *PrometheusCollector) Registry() *prometheus.Registry {
	return c.registry
}
