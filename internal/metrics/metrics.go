// Package metrics holds the prometheus collectors for the sync server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Collector struct {
	SessionsConnected prometheus.Gauge
	Intents           *prometheus.CounterVec
	Broadcasts        *prometheus.CounterVec
	SendFailures      prometheus.Counter
}

// New registers the collectors on reg and returns them.
func New(reg prometheus.Registerer) *Collector {
	c := &Collector{
		SessionsConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "taskboard_sessions_connected",
			Help: "Number of currently connected sessions",
		}),
		Intents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taskboard_intents_total",
			Help: "Mutation intents received, by kind and outcome",
		}, []string{"kind", "outcome"}),
		Broadcasts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taskboard_broadcast_events_total",
			Help: "Events fanned out to sessions, by event name",
		}, []string{"event"}),
		SendFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "taskboard_send_failures_total",
			Help: "Per-session deliveries that failed or overflowed",
		}),
	}
	reg.MustRegister(c.SessionsConnected, c.Intents, c.Broadcasts, c.SendFailures)
	return c
}

// Nop returns collectors that are not registered anywhere, for tests and
// callers that do not scrape.
func Nop() *Collector {
	return New(prometheus.NewRegistry())
}
