// Package metrics instruments the verification engine with Prometheus
// counters for probe outcomes, cache effectiveness and circuit breaker
// activity.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	ProbeOutcomes  *prometheus.CounterVec
	ProbeDuration  prometheus.Histogram
	ProbeRetries   prometheus.Counter
	CacheHits      *prometheus.CounterVec
	CacheMisses    *prometheus.CounterVec
	BreakerOpens   prometheus.Counter
	BreakerShorted prometheus.Counter
	InFlightProbes prometheus.Gauge
}

// New registers the engine metrics on the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers the engine metrics on the given registerer. Tests use
// a throwaway registry to avoid duplicate registration panics.
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ProbeOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "contact_verifier_probe_outcomes_total",
			Help: "Total number of mailbox probes by terminal outcome",
		}, []string{"outcome"}),
		ProbeDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "contact_verifier_probe_duration_seconds",
			Help:    "Wall time of mailbox probes including retries",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		ProbeRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "contact_verifier_probe_retries_total",
			Help: "Total number of probe retries after transient failures",
		}),
		CacheHits: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "contact_verifier_cache_hits_total",
			Help: "Total number of cache hits by kind",
		}, []string{"kind"}),
		CacheMisses: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "contact_verifier_cache_misses_total",
			Help: "Total number of cache misses by kind",
		}, []string{"kind"}),
		BreakerOpens: factory.NewCounter(prometheus.CounterOpts{
			Name: "contact_verifier_breaker_opens_total",
			Help: "Total number of circuit breaker open transitions",
		}),
		BreakerShorted: factory.NewCounter(prometheus.CounterOpts{
			Name: "contact_verifier_breaker_shorted_probes_total",
			Help: "Total number of probes answered Unknown because the domain circuit was open",
		}),
		InFlightProbes: factory.NewGauge(prometheus.GaugeOpts{
			Name: "contact_verifier_probes_in_flight",
			Help: "Current number of probe sessions in flight",
		}),
	}
}
