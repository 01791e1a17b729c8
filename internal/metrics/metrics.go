// Package metrics holds the Prometheus collectors of the realtime layer.
// Label sets are kept small: event names and store operations are fixed
// vocabularies, user and conversation ids never become labels.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// SessionsActive gauges authenticated websocket sessions.
	SessionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chat_sessions_active",
		Help: "Number of authenticated websocket sessions.",
	})

	// EventsTotal counts inbound client events by name.
	EventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_events_total",
		Help: "Inbound client events by event name.",
	}, []string{"event"})

	// FanoutDeliveries counts envelopes queued to sessions, by target kind
	// (room, user, broadcast) and outcome (sent, dropped).
	FanoutDeliveries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_fanout_deliveries_total",
		Help: "Events queued to sessions by target kind and outcome.",
	}, []string{"kind", "outcome"})

	// BackendFallbacks counts durable-store calls served by the local store.
	BackendFallbacks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_backend_fallbacks_total",
		Help: "Durable backend failures served by the local fallback store.",
	}, []string{"store", "op"})

	// DroppedSends counts send-message requests abandoned without broadcast.
	DroppedSends = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_dropped_sends_total",
		Help: "send-message requests dropped, by reason.",
	}, []string{"reason"})
)

func init() {
	prometheus.MustRegister(SessionsActive, EventsTotal, FanoutDeliveries, BackendFallbacks, DroppedSends)
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
