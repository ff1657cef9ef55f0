// Package metrics defines the Prometheus collectors exported by a Verifier.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "emailfinder"

// Metrics groups the verification collectors.
type Metrics struct {
	Verifications *prometheus.CounterVec   // by status and bucket
	Probes        *prometheus.CounterVec   // SMTP sessions by kind and outcome
	ProbeDuration *prometheus.HistogramVec // SMTP session wall time by kind
	DNSLookups    *prometheus.CounterVec   // by record type and result
}

// New creates the collectors and registers them with reg. A nil reg leaves
// them unregistered; they still count, which keeps call sites unconditional.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verifications_total",
			Help:      "Completed address verifications by final status.",
		}, []string{"status", "bucket"}),
		Probes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "smtp_probes_total",
			Help:      "SMTP probe sessions by kind (candidate, catchall) and outcome.",
		}, []string{"kind", "outcome"}),
		ProbeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "smtp_probe_duration_seconds",
			Help:      "Wall time of SMTP probe sessions, including host gate waits.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
		}, []string{"kind"}),
		DNSLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dns_lookups_total",
			Help:      "DNS lookups by record type and result (found, absent).",
		}, []string{"type", "result"}),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.Verifications, m.Probes, m.ProbeDuration, m.DNSLookups} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Nop returns unregistered collectors.
func Nop() *Metrics {
	m, _ := New(nil)
	return m
}
