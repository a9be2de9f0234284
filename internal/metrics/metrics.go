package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the aggregation pipeline.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	FetchAttempts *prometheus.CounterVec
	FetchDuration *prometheus.HistogramVec

	SourceOutcomes *prometheus.CounterVec
	ItemsUpserted  *prometheus.CounterVec

	Runs        *prometheus.CounterVec
	RunDuration prometheus.Histogram

	RetentionDeleted prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		FetchAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "coinaggregator_fetch_attempts_total",
			Help: "Outbound page fetch attempts by source and outcome",
		}, []string{"source", "outcome"}), // outcome: "ok", "retry", "failed", "disallowed"

		FetchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "coinaggregator_fetch_duration_seconds",
			Help:    "Duration of single page fetch attempts",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"source"}),

		SourceOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "coinaggregator_source_outcomes_total",
			Help: "Per-source aggregation outcomes",
		}, []string{"source", "status"}),

		ItemsUpserted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "coinaggregator_items_upserted_total",
			Help: "Catalog items written per source",
		}, []string{"source"}),

		Runs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "coinaggregator_runs_total",
			Help: "Aggregation runs by result",
		}, []string{"result"}), // result: "success", "partial", "skipped", "failed"

		RunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "coinaggregator_run_duration_seconds",
			Help:    "Wall time of full aggregation runs",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),

		RetentionDeleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "coinaggregator_retention_deleted_total",
			Help: "Catalog items removed by the retention sweep",
		}),
	}
}

func (m *Metrics) ObserveFetch(source, outcome string, d time.Duration) {
	if m != nil {
		m.FetchAttempts.WithLabelValues(source, outcome).Inc()
		m.FetchDuration.WithLabelValues(source).Observe(d.Seconds())
	}
}

func (m *Metrics) IncrementFetch(source, outcome string) {
	if m != nil {
		m.FetchAttempts.WithLabelValues(source, outcome).Inc()
	}
}

func (m *Metrics) RecordSourceOutcome(source, status string, items int) {
	if m != nil {
		m.SourceOutcomes.WithLabelValues(source, status).Inc()
		if items > 0 {
			m.ItemsUpserted.WithLabelValues(source).Add(float64(items))
		}
	}
}

func (m *Metrics) RecordRun(result string, d time.Duration) {
	if m != nil {
		m.Runs.WithLabelValues(result).Inc()
		if d > 0 {
			m.RunDuration.Observe(d.Seconds())
		}
	}
}

func (m *Metrics) AddRetentionDeleted(n int64) {
	if m != nil && n > 0 {
		m.RetentionDeleted.Add(float64(n))
	}
}
