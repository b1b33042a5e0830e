// Package metrics exposes operational visibility via
// github.com/prometheus/client_golang (grounded on montge-stratux's and
// 99souls-ariadne's go.mod, both of which require it for this kind of
// service). It is strictly additive: the CSV auditor (internal/audit)
// remains the audit-of-record (spec §4.7); these collectors exist only
// for dashboards and alerting, gated by the same metrics_enabled flag.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Collectors bundles every gauge/counter/histogram the process registers.
type Collectors struct {
	FleetSize            prometheus.Gauge
	PacketsIngested      *prometheus.CounterVec
	PacketsDropped       *prometheus.CounterVec
	SitrepDuration       prometheus.Histogram
	SitrepFailuresTotal  prometheus.Counter
	AuditorRecall        prometheus.Gauge
	AuditorFactuality    prometheus.Gauge
	AuditorHallucination prometheus.Gauge
	AuditorSafety        prometheus.Gauge
	BridgeConnections    prometheus.Gauge
}

// New builds the collector set and registers it against reg. Passing
// prometheus.NewRegistry() (rather than the global DefaultRegisterer)
// keeps tests hermetic and lets cmd/agcs mount an isolated /metrics
// handler.
func New(reg prometheus.Registerer) *Collectors {
	c := &Collectors{
		FleetSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "agcs",
			Name:      "fleet_size",
			Help:      "Number of distinct asset records currently held in the fleet table.",
		}),
		PacketsIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agcs",
			Name:      "packets_ingested_total",
			Help:      "Telemetry packets successfully decoded, by topic family.",
		}, []string{"topic_family"}),
		PacketsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agcs",
			Name:      "packets_dropped_total",
			Help:      "Telemetry packets dropped as malformed, by topic family.",
		}, []string{"topic_family"}),
		SitrepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "agcs",
			Name:      "sitrep_call_duration_seconds",
			Help:      "Wall-clock duration of each SITREP LLM call, successful or not.",
			Buckets:   prometheus.DefBuckets,
		}),
		SitrepFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "agcs",
			Name:      "sitrep_failures_total",
			Help:      "SITREP ticks that ended in a timeout or LLM error.",
		}),
		AuditorRecall: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "agcs",
			Name:      "auditor_recall",
			Help:      "Most recent SITREP's asset-recall score (0..1).",
		}),
		AuditorFactuality: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "agcs",
			Name:      "auditor_factuality",
			Help:      "Most recent SITREP's battery-factuality score (0..1).",
		}),
		AuditorHallucination: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "agcs",
			Name:      "auditor_hallucination",
			Help:      "Most recent SITREP's hallucination flag (0 or 1).",
		}),
		AuditorSafety: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "agcs",
			Name:      "auditor_safety",
			Help:      "Most recent SITREP's safety flag (0 or 1).",
		}),
		BridgeConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "agcs",
			Name:      "bridge_connections",
			Help:      "Number of live feed viewer websocket connections currently registered.",
		}),
	}

	reg.MustRegister(
		c.FleetSize,
		c.PacketsIngested,
		c.PacketsDropped,
		c.SitrepDuration,
		c.SitrepFailuresTotal,
		c.AuditorRecall,
		c.AuditorFactuality,
		c.AuditorHallucination,
		c.AuditorSafety,
		c.BridgeConnections,
	)
	return c
}

// ObserveAuditRow updates the auditor gauges from one scored SITREP
// attempt (internal/audit.Row, kept decoupled by a minimal shape here to
// avoid a metrics->audit import for four float fields).
func (c *Collectors) ObserveAuditRow(recall, factuality float64, hallucination, safety int) {
	c.AuditorRecall.Set(recall)
	c.AuditorFactuality.Set(factuality)
	c.AuditorHallucination.Set(float64(hallucination))
	c.AuditorSafety.Set(float64(safety))
}
