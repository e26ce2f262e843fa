// Package metrics holds the prometheus collectors shared by the control plane.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "opctl"

var (
	TerminalSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "terminal_sessions",
		Help:      "Number of authenticated terminal sessions.",
	})
	BroadcastFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "broadcast_failures_total",
		Help:      "Per-session deliveries that failed during a broadcast.",
	})
	SessionsEvicted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "terminal_sessions_evicted_total",
		Help:      "Sessions removed after repeated delivery failures.",
	})
	LogLinesCaptured = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "log_lines_captured_total",
		Help:      "Log lines appended to the history buffer.",
	})
	AuthFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "auth_failures_total",
		Help:      "Rejected authentication attempts by surface.",
	}, []string{"surface"})
	CommandsDispatched = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "terminal_commands_total",
		Help:      "Commands handed to the host context from terminal sessions.",
	})
	ControlRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "control_requests_total",
		Help:      "Control API requests by operation and status code.",
	}, []string{"op", "code"})
)

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
