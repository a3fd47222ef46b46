// Package metrics provides Prometheus instrumentation for the chat core.
// It exposes gauges for connection and session counts, counters for message
// and presence-write throughput, and a histogram for snapshot rebuilds.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectionsTotal tracks the current number of active WebSocket connections.
	ConnectionsTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "meetchat_connections_total",
		Help: "Current number of active WebSocket connections",
	})

	// ActiveSessions tracks the current number of open chat sessions.
	ActiveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "meetchat_active_sessions",
		Help: "Current number of open chat sessions",
	})

	// MessagesTotal counts message operations, labeled by outcome:
	// "sent", "blank", "rejected", "failed", or "deleted".
	MessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "meetchat_messages_total",
		Help: "Total number of message operations by outcome",
	}, []string{"outcome"})

	// PresenceWritesTotal counts presence flag writes, labeled by state
	// ("online", "offline") and result ("ok", "failed").
	PresenceWritesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "meetchat_presence_writes_total",
		Help: "Total number of presence flag writes",
	}, []string{"state", "result"})

	// RebuildLatency records how long a full message-view rebuild takes,
	// from snapshot receipt to ordered view.
	RebuildLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "meetchat_rebuild_latency_seconds",
		Help:    "Message view rebuild latency in seconds",
		Buckets: []float64{.0001, .0005, .001, .005, .01, .025, .05, .1},
	})

	// RebuildSize records the number of messages in each rebuilt view.
	RebuildSize = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "meetchat_rebuild_size_messages",
		Help:    "Number of messages per rebuilt view",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
	})
)

func init() {
	prometheus.MustRegister(
		ConnectionsTotal,
		ActiveSessions,
		MessagesTotal,
		PresenceWritesTotal,
		RebuildLatency,
		RebuildSize,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
