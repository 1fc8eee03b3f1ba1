// Package metrics provides observability for the registration module.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks registration throughput, match quality, and audit gaps.
type Metrics struct {
	Submitted       prometheus.Counter
	Approved        prometheus.Counter
	Rejected        prometheus.Counter
	MatchScore      prometheus.Histogram
	AuditGaps       prometheus.Gauge
	SubmitDuration  prometheus.Histogram
	AdvanceDuration prometheus.Histogram
}

func New() *Metrics {
	return &Metrics{
		Submitted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "civreg_registrations_submitted_total",
			Help: "Total number of registration submissions accepted",
		}),
		Approved: promauto.NewCounter(prometheus.CounterOpts{
			Name: "civreg_registrations_approved_total",
			Help: "Total number of registrations approved",
		}),
		Rejected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "civreg_registrations_rejected_total",
			Help: "Total number of registrations rejected",
		}),
		MatchScore: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "civreg_identity_match_score",
			Help:    "Distribution of identity registry match scores",
			Buckets: []float64{0, 10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		}),
		AuditGaps: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "civreg_registration_audit_gaps",
			Help: "Registration transitions whose audit entry is still pending retry",
		}),
		SubmitDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "civreg_registration_submit_duration_seconds",
			Help:    "Duration of Submit operations including the registry match",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
		AdvanceDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "civreg_registration_advance_duration_seconds",
			Help:    "Duration of stage advancement operations",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

// ObserveSubmit records the duration of a Submit operation.
func (m *Metrics) ObserveSubmit(start time.Time) {
	m.SubmitDuration.Observe(time.Since(start).Seconds())
}

// ObserveAdvance records the duration of an Advance operation.
func (m *Metrics) ObserveAdvance(start time.Time) {
	m.AdvanceDuration.Observe(time.Since(start).Seconds())
}
