// Package metrics exports bridge counters to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/GriffinCanCode/voicebridge/internal/resilience"
	"github.com/GriffinCanCode/voicebridge/internal/telemetry"
)

// Namespace prefixes every metric name.
const Namespace = "voicebridge"

// Collector is a telemetry sink backed by Prometheus collectors.
type Collector struct {
	reg *prometheus.Registry

	sessionsStarted  prometheus.Counter
	sessionsActive   prometheus.Gauge
	sessionsClosed   *prometheus.CounterVec
	sessionDuration  prometheus.Histogram
	stateTransitions *prometheus.CounterVec
	framesRelayed    *prometheus.CounterVec
	framesDropped    *prometheus.CounterVec
	decodeErrors     *prometheus.CounterVec
	remoteErrors     prometheus.Counter
	turns            prometheus.Counter
	breakerState     prometheus.Gauge
}

// New registers the bridge collectors plus the Go and process collectors on a fresh registry.
func New() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Collector{
		reg: reg,
		sessionsStarted: f.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "sessions_started_total",
			Help:      "Call sessions accepted.",
		}),
		sessionsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "sessions_active",
			Help:      "Call sessions not yet closed.",
		}),
		sessionsClosed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "sessions_closed_total",
			Help:      "Call sessions closed, by reason code.",
		}, []string{"reason"}),
		sessionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "session_duration_seconds",
			Help:      "Call session lifetime.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}),
		stateTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "state_transitions_total",
			Help:      "Session state machine transitions.",
		}, []string{"from", "to"}),
		framesRelayed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "frames_relayed_total",
			Help:      "Audio frames relayed between legs.",
		}, []string{"direction"}),
		framesDropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "frames_dropped_total",
			Help:      "Oldest frames dropped from full relay buffers.",
		}, []string{"direction"}),
		decodeErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "decode_errors_total",
			Help:      "Frames or events discarded as undecodable.",
		}, []string{"direction"}),
		remoteErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "remote_errors_total",
			Help:      "Error events sent by the realtime endpoint.",
		}),
		turns: f.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "turns_total",
			Help:      "Completed AI responses.",
		}),
		breakerState: f.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "dial_breaker_state",
			Help:      "Realtime dial circuit breaker: 0 closed, 1 open, 2 half-open.",
		}),
	}
}

// Emit implements telemetry.Sink.
func (c *Collector) Emit(e telemetry.Event) {
	switch e.Kind {
	case telemetry.KindSessionStarted:
		c.sessionsStarted.Inc()
		c.sessionsActive.Inc()
	case telemetry.KindStateChange:
		c.stateTransitions.WithLabelValues(e.From, e.To).Inc()
	case telemetry.KindFrameRelayed:
		c.framesRelayed.WithLabelValues(string(e.Direction)).Inc()
	case telemetry.KindFrameDropped:
		c.framesDropped.WithLabelValues(string(e.Direction)).Inc()
	case telemetry.KindDecodeError:
		c.decodeErrors.WithLabelValues(string(e.Direction)).Inc()
	case telemetry.KindRemoteError:
		c.remoteErrors.Inc()
	case telemetry.KindTurnComplete:
		c.turns.Inc()
	case telemetry.KindSessionClosed:
		c.sessionsActive.Dec()
		c.sessionsClosed.WithLabelValues(e.Reason).Inc()
		c.sessionDuration.Observe(e.Duration.Seconds())
	}
}

// BreakerHook reports dial breaker transitions; pass it to Breaker.WithHook.
func (c *Collector) BreakerHook(_, to resilience.State) {
	c.breakerState.Set(float64(to))
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{Registry: c.reg})
}
