// Package metrics provides observability for the document module.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks document request throughput and issuance latency.
type Metrics struct {
	Requested       *prometheus.CounterVec
	Approved        *prometheus.CounterVec
	Rejected        *prometheus.CounterVec
	AuditGaps       prometheus.Gauge
	ApproveDuration prometheus.Histogram
}

func New() *Metrics {
	return &Metrics{
		Requested: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "civreg_documents_requested_total",
			Help: "Total number of document requests created",
		}, []string{"doc_type"}),
		Approved: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "civreg_documents_approved_total",
			Help: "Total number of document requests approved",
		}, []string{"doc_type"}),
		Rejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "civreg_documents_rejected_total",
			Help: "Total number of document requests rejected",
		}, []string{"doc_type"}),
		AuditGaps: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "civreg_document_audit_gaps",
			Help: "Document decisions whose audit entry is still pending retry",
		}),
		ApproveDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "civreg_document_approve_duration_seconds",
			Help:    "Duration of document approvals including artifact composition",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
	}
}

// ObserveApprove records the duration of an approval.
func (m *Metrics) ObserveApprove(start time.Time) {
	m.ApproveDuration.Observe(time.Since(start).Seconds())
}
