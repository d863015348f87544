package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mirrorcast/internal/relay"
	"mirrorcast/internal/session"
)

// Metrics holds Prometheus collectors for the mirror daemon.
type Metrics struct {
	registry         *prometheus.Registry
	pollsTotal       *prometheus.CounterVec
	sessionsTotal    *prometheus.CounterVec
	transitionsTotal *prometheus.CounterVec
	sessionState     *prometheus.GaugeVec
	relayRestarts    prometheus.Counter
	relayFailures    *prometheus.CounterVec
	relayFPS         prometheus.Gauge
	relayBitrate     prometheus.Gauge
	relayCPU         prometheus.Gauge
	relayRSS         prometheus.Gauge
	requestsTotal    prometheus.Counter
	errorsTotal      prometheus.Counter
}

var trackedStates = []session.State{
	session.StateIdle,
	session.StateResolving,
	session.StateRelaying,
	session.StateProvisioning,
	session.StateAwaitingReady,
	session.StatePublishing,
	session.StateLive,
	session.StateEnding,
	session.StateCompleted,
	session.StateFailed,
}

// New creates and registers Prometheus metrics for the daemon.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		pollsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mirrorcast_source_polls_total",
			Help: "Source status polls by result (live, offline, error)",
		}, []string{"result"}),
		sessionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mirrorcast_sessions_total",
			Help: "Finished mirror sessions by outcome and failure cause",
		}, []string{"outcome", "cause"}),
		transitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mirrorcast_session_transitions_total",
			Help: "Session state changes by target state",
		}, []string{"state"}),
		sessionState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mirrorcast_session_state",
			Help: "1 for the current session state, 0 otherwise",
		}, []string{"state"}),
		relayRestarts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mirrorcast_relay_restarts_total",
			Help: "Supervised relay restarts",
		}),
		relayFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mirrorcast_relay_failures_total",
			Help: "Classified relay failure lines by kind",
		}, []string{"kind"}),
		relayFPS: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mirrorcast_relay_fps",
			Help: "Latest relay frames per second",
		}),
		relayBitrate: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mirrorcast_relay_bitrate_kbits",
			Help: "Latest relay output bitrate in kbit/s",
		}),
		relayCPU: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mirrorcast_relay_cpu_percent",
			Help: "Latest sampled relay process CPU usage",
		}),
		relayRSS: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mirrorcast_relay_rss_bytes",
			Help: "Latest sampled relay process resident memory",
		}),
		requestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mirrorcast_api_requests_total",
			Help: "Total number of HTTP requests received",
		}),
		errorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mirrorcast_api_errors_total",
			Help: "Total number of HTTP responses with error status (4xx or 5xx)",
		}),
	}

	registry.MustRegister(
		m.pollsTotal,
		m.sessionsTotal,
		m.transitionsTotal,
		m.sessionState,
		m.relayRestarts,
		m.relayFailures,
		m.relayFPS,
		m.relayBitrate,
		m.relayCPU,
		m.relayRSS,
		m.requestsTotal,
		m.errorsTotal,
	)
	m.setState(session.StateIdle)
	return m
}

// Registry exposes the private registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// PollSucceeded counts a successful source poll.
func (m *Metrics) PollSucceeded(live bool) {
	result := "offline"
	if live {
		result = "live"
	}
	m.pollsTotal.WithLabelValues(result).Inc()
}

// PollFailed counts a failed source poll.
func (m *Metrics) PollFailed() {
	m.pollsTotal.WithLabelValues("error").Inc()
}

// SessionChanged records a session state change.
func (m *Metrics) SessionChanged(from, to session.State, failureCause string) {
	if from == to {
		return
	}
	m.transitionsTotal.WithLabelValues(string(to)).Inc()
	m.setState(to)
	switch to {
	case session.StateCompleted:
		m.sessionsTotal.WithLabelValues("completed", "").Inc()
	case session.StateFailed:
		m.sessionsTotal.WithLabelValues("failed", failureCause).Inc()
	}
	if to.Terminal() {
		m.relayFPS.Set(0)
		m.relayBitrate.Set(0)
		m.relayCPU.Set(0)
		m.relayRSS.Set(0)
	}
}

func (m *Metrics) setState(current session.State) {
	for _, state := range trackedStates {
		value := 0.0
		if state == current {
			value = 1
		}
		m.sessionState.WithLabelValues(string(state)).Set(value)
	}
}

// RelayEvent records relay telemetry.
func (m *Metrics) RelayEvent(evt relay.Event) {
	switch evt.Kind {
	case relay.EventProgress:
		m.relayFPS.Set(evt.Stats.FPS)
		m.relayBitrate.Set(evt.Stats.BitrateKbs)
		if evt.Stats.PID != 0 {
			m.relayCPU.Set(evt.Stats.CPUPercent)
			m.relayRSS.Set(float64(evt.Stats.RSSBytes))
		}
	case relay.EventFailure:
		m.relayFailures.WithLabelValues(string(evt.Failure)).Inc()
	case relay.EventRestarting:
		m.relayRestarts.Inc()
	}
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	m.requestsTotal.Inc()
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	m.errorsTotal.Inc()
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values.
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	inner := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		inner.ServeHTTP(w, r)
	})
}
