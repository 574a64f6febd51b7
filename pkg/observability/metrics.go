package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Transport call outcomes, used as the "event" label.
const (
	CallAttempt = "attempt"
	CallRetry   = "retry"
	CallSuccess = "success"
	CallAbort   = "abort"
)

// Metrics groups all Prometheus instruments used by the service.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Turns              *prometheus.CounterVec
	TurnDuration       prometheus.Histogram
	StepVisits         *prometheus.CounterVec
	RoutingViolations  prometheus.Counter
	TransportCalls     *prometheus.CounterVec
	DirectoryRefreshes *prometheus.CounterVec
	ActiveSessions     prometheus.Gauge
}

// NewMetrics creates the instruments and registers them on reg.
// Tests pass a fresh prometheus.NewRegistry() to avoid global collisions.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	m := &Metrics{
		Turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Completed conversation turns by classified intent.",
		}, []string{"intent"}),
		TurnDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_duration_ms",
			Help:      "Wall time of a conversation turn in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}),
		StepVisits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "step_visits_total",
			Help:      "Executed steps by name and reported token.",
		}, []string{"step", "token"}),
		RoutingViolations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "routing_violations_total",
			Help:      "Signals rejected by the routing table.",
		}),
		TransportCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transport_calls_total",
			Help:      "Record service calls by event (attempt, retry, success, abort).",
		}, []string{"event"}),
		DirectoryRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "directory_refreshes_total",
			Help:      "Lookup directory refreshes by outcome.",
		}, []string{"outcome"}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Conversations currently held by the store.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.Turns,
			m.TurnDuration,
			m.StepVisits,
			m.RoutingViolations,
			m.TransportCalls,
			m.DirectoryRefreshes,
			m.ActiveSessions,
		)
	}
	return m
}

// ObserveCall counts one transport event.
func (m *Metrics) ObserveCall(event string) {
	if m == nil {
		return
	}
	m.TransportCalls.WithLabelValues(event).Inc()
}

// ObserveRefresh counts one directory refresh.
func (m *Metrics) ObserveRefresh(ok bool) {
	if m == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "failed"
	}
	m.DirectoryRefreshes.WithLabelValues(outcome).Inc()
}

// ObserveStep counts one executed step.
func (m *Metrics) ObserveStep(step, token string) {
	if m == nil {
		return
	}
	m.StepVisits.WithLabelValues(step, token).Inc()
}

// ObserveViolation counts one rejected transition.
func (m *Metrics) ObserveViolation() {
	if m == nil {
		return
	}
	m.RoutingViolations.Inc()
}

// ObserveTurn counts a finished turn.
func (m *Metrics) ObserveTurn(intent string, d time.Duration) {
	if m == nil {
		return
	}
	m.Turns.WithLabelValues(intent).Inc()
	m.TurnDuration.Observe(float64(d.Milliseconds()))
}

// SetActiveSessions reports the store size.
func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.ActiveSessions.Set(float64(n))
}

// Handler serves the given gatherer in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
