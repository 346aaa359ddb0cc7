// Package metrics exposes dispatch progress as Prometheus metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tokenflood/internal/dispatch"
)

const namespace = "tokenflood"

// Metrics records dispatch events. It implements dispatch.Observer.
type Metrics struct {
	registry *prometheus.Registry

	launched       *prometheus.CounterVec
	outcomes       *prometheus.CounterVec
	latency        *prometheus.HistogramVec
	probeLatency   *prometheus.HistogramVec
	probeFailures  *prometheus.CounterVec
	trips          *prometheus.CounterVec
	inFlight       prometheus.Gauge
	targetRate     prometheus.Gauge
	phaseErrorRate *prometheus.GaugeVec
}

// New registers all instruments on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	latencyBuckets := prometheus.ExponentialBuckets(50, 2, 12)

	return &Metrics{
		registry: reg,
		launched: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_launched_total",
			Help:      "Completion requests launched",
		}, []string{"group"}),
		outcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "request_outcomes_total",
			Help:      "Completion request outcomes by kind and failure type",
		}, []string{"group", "outcome", "failure"}),
		latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_latency_milliseconds",
			Help:      "End-to-end latency of successful completion requests",
			Buckets:   latencyBuckets,
		}, []string{"group"}),
		probeLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "probe_latency_milliseconds",
			Help:      "Network latency measured by probes",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}, []string{"group"}),
		probeFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "probe_failures_total",
			Help:      "Failed latency probes",
		}, []string{"group"}),
		trips: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "circuit_trips_total",
			Help:      "Phases stopped by the error rate limit",
		}, []string{"group"}),
		inFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "requests_in_flight",
			Help:      "Launched completion requests that have not finished",
		}),
		targetRate: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "target_requests_per_second",
			Help:      "Target rate of the running phase",
		}),
		phaseErrorRate: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "phase_error_rate",
			Help:      "Error window rate when the phase finished",
		}, []string{"group"}),
	}
}

// Registry is the registry holding every instrument.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) PhaseStarted(plan dispatch.Plan) {
	m.targetRate.Set(plan.RequestsPerSecond)
}

func (m *Metrics) Launched(plan dispatch.Plan, _ int) {
	m.inFlight.Inc()
	m.launched.WithLabelValues(plan.GroupID).Inc()
}

func (m *Metrics) Completed(plan dispatch.Plan, o dispatch.Outcome) {
	m.inFlight.Dec()
	failure := ""
	if o.Kind == dispatch.OutcomeFailure {
		failure = o.Failure.String()
	}
	m.outcomes.WithLabelValues(plan.GroupID, o.Kind.String(), failure).Inc()
	if o.Kind == dispatch.OutcomeSuccess {
		m.latency.WithLabelValues(plan.GroupID).Observe(float64(o.Result.LatencyMs))
	}
}

func (m *Metrics) ProbeCompleted(plan dispatch.Plan, p dispatch.ProbeOutcome) {
	if p.Err != nil {
		m.probeFailures.WithLabelValues(plan.GroupID).Inc()
		return
	}
	m.probeLatency.WithLabelValues(plan.GroupID).Observe(float64(p.LatencyMs))
}

func (m *Metrics) Tripped(plan dispatch.Plan, _ float64) {
	m.trips.WithLabelValues(plan.GroupID).Inc()
}

func (m *Metrics) PhaseFinished(plan dispatch.Plan, res *dispatch.Result) {
	m.phaseErrorRate.WithLabelValues(plan.GroupID).Set(res.ErrorRate)
	if skipped := res.Count(dispatch.OutcomeSkipped); skipped > 0 {
		m.outcomes.WithLabelValues(plan.GroupID, dispatch.OutcomeSkipped.String(), "").Add(float64(skipped))
	}
	m.targetRate.Set(0)
}
