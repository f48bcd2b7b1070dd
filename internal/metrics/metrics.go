// Package metrics exposes the Prometheus collectors for the detection
// pipeline and moderation gate.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles every collector the pipeline reports into.
type Metrics struct {
	RequestsInspected  *prometheus.CounterVec
	FindingsDetected   *prometheus.CounterVec
	VerdictsIssued     *prometheus.CounterVec
	MeasuresApplied    *prometheus.CounterVec
	HoneypotHits       prometheus.Counter
	CommentsModerated  *prometheus.CounterVec
	BlockedIdentities  prometheus.Gauge
	TrackedIdentities  prometheus.Gauge
	ModerationQueueLen prometheus.Gauge
	InspectDuration    prometheus.Histogram
}

// New registers all collectors on the given registry.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsInspected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "blogshield",
			Name:      "requests_inspected_total",
			Help:      "Requests processed by the detection pipeline.",
		}, []string{"method"}),
		FindingsDetected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "blogshield",
			Name:      "findings_total",
			Help:      "Attack findings by type.",
		}, []string{"attack_type", "severity"}),
		VerdictsIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "blogshield",
			Name:      "verdicts_total",
			Help:      "Pipeline verdicts by kind.",
		}, []string{"verdict"}),
		MeasuresApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "blogshield",
			Name:      "measures_total",
			Help:      "Counter-measures applied by action.",
		}, []string{"action"}),
		HoneypotHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "blogshield",
			Name:      "honeypot_hits_total",
			Help:      "Requests that reached a decoy route.",
		}),
		CommentsModerated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "blogshield",
			Name:      "comments_moderated_total",
			Help:      "Moderation gate outcomes.",
		}, []string{"status"}),
		BlockedIdentities: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "blogshield",
			Name:      "blocked_identities",
			Help:      "Identities currently blocked.",
		}),
		TrackedIdentities: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "blogshield",
			Name:      "tracked_identities",
			Help:      "Identities with an active threat profile.",
		}),
		ModerationQueueLen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "blogshield",
			Name:      "moderation_queue_length",
			Help:      "Comments waiting for manual review.",
		}),
		InspectDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "blogshield",
			Name:      "inspect_duration_seconds",
			Help:      "Wall time of a single request inspection.",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		m.RequestsInspected,
		m.FindingsDetected,
		m.VerdictsIssued,
		m.MeasuresApplied,
		m.HoneypotHits,
		m.CommentsModerated,
		m.BlockedIdentities,
		m.TrackedIdentities,
		m.ModerationQueueLen,
		m.InspectDuration,
	)
	return m
}
