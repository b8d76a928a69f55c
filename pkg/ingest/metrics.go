package ingest

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/japaniel/contractsort/pkg/metadata"
	"github.com/japaniel/contractsort/pkg/registry"
)

// Metrics holds Prometheus metrics for the ingestion pipeline.
//
// Metrics:
//   - contractsort_documents_processed_total{status} - documents by outcome (final, supporting, failed)
//   - contractsort_signature_verdicts_total{reason} - signature verdicts by reason code
//   - contractsort_document_types_total{type} - documents by detected type
//   - contractsort_registry_commit_seconds - registry commit latency
//   - contractsort_registry_commit_failures_total - failed registry commits
type Metrics struct {
	DocumentsProcessed *prometheus.CounterVec
	SignatureVerdicts  *prometheus.CounterVec
	DocumentTypes      *prometheus.CounterVec
	CommitDuration     prometheus.Histogram
	CommitFailures     prometheus.Counter
}

// NewMetrics creates the pipeline metrics and registers them on reg.
// Use a fresh prometheus.NewRegistry per process or test; registering twice
// on the same registry panics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		DocumentsProcessed: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "contractsort_documents_processed_total",
				Help: "Total number of documents processed",
			},
			[]string{"status"}, // "final", "supporting" or "failed"
		),
		SignatureVerdicts: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "contractsort_signature_verdicts_total",
				Help: "Total number of signature verdicts by reason code",
			},
			[]string{"reason"},
		),
		DocumentTypes: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "contractsort_document_types_total",
				Help: "Total number of documents by detected type",
			},
			[]string{"type"},
		),
		CommitDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "contractsort_registry_commit_seconds",
				Help:    "Duration of registry commits in seconds",
				Buckets: prometheus.ExponentialBuckets(0.0005, 4, 8),
			},
		),
		CommitFailures: f.NewCounter(
			prometheus.CounterOpts{
				Name: "contractsort_registry_commit_failures_total",
				Help: "Total number of failed registry commits",
			},
		),
	}
}

const statusFailed = "failed"

func (m *Metrics) observeRecord(rec metadata.Record) {
	if m == nil {
		return
	}
	m.DocumentsProcessed.WithLabelValues(string(rec.Status)).Inc()
	m.SignatureVerdicts.WithLabelValues(string(rec.Signature.Reason)).Inc()
	m.DocumentTypes.WithLabelValues(string(rec.DocumentType)).Inc()
}

func (m *Metrics) observeFailure() {
	if m == nil {
		return
	}
	m.DocumentsProcessed.WithLabelValues(statusFailed).Inc()
}

// CommitHook returns a registry hook that records commit latency.
func (m *Metrics) CommitHook() registry.CommitHook {
	return func(_ int, elapsed time.Duration, err error) {
		if m == nil {
			return
		}
		m.CommitDuration.Observe(elapsed.Seconds())
		if err != nil {
			m.CommitFailures.Inc()
		}
	}
}
