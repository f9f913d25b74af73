package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	translateAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlagent_translate_attempts_total",
			Help: "Translator attempts by outcome (ok, timeout, service_error, no_statement).",
		},
		[]string{"outcome"},
	)
	translateLatencySeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sqlagent_translate_latency_seconds",
			Help:    "Latency of a single translator attempt.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 15, 30},
		},
	)
	validateVerdictsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlagent_validate_verdicts_total",
			Help: "Statement validator verdicts (allowed, non_read, unknown_identifier, injection_risk).",
		},
		[]string{"verdict"},
	)
	executeOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlagent_execute_outcomes_total",
			Help: "Query execution outcomes (ok, timeout, row_limit, backend_error).",
		},
		[]string{"outcome"},
	)
	executeLatencySeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sqlagent_execute_latency_seconds",
			Help:    "Query execution latency against the backend.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
	)
	executeRowsReturned = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sqlagent_execute_rows_returned",
			Help:    "Row counts returned by successful executions.",
			Buckets: []float64{0, 1, 5, 10, 50, 100, 250, 500, 1000},
		},
	)
	asksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlagent_asks_total",
			Help: "Completed ask pipelines by terminal stage and result.",
		},
		[]string{"stage", "result"},
	)
	schemaSnapshotTables = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sqlagent_schema_snapshot_tables",
			Help: "Table count of the most recent schema snapshot.",
		},
	)
	schemaSnapshotTruncated = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sqlagent_schema_snapshot_truncated",
			Help: "Whether the most recent schema snapshot was truncated (1) or complete (0).",
		},
	)
	historyArchivedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sqlagent_history_archived_total",
			Help: "History entries written to archive objects before pruning.",
		},
	)
	historyPrunedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sqlagent_history_pruned_total",
			Help: "History entries deleted by retention pruning.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		translateAttemptsTotal,
		translateLatencySeconds,
		validateVerdictsTotal,
		executeOutcomesTotal,
		executeLatencySeconds,
		executeRowsReturned,
		asksTotal,
		schemaSnapshotTables,
		schemaSnapshotTruncated,
		historyArchivedTotal,
		historyPrunedTotal,
	)
}

func ObserveTranslateAttempt(outcome string, elapsed time.Duration) {
	translateAttemptsTotal.WithLabelValues(outcome).Inc()
	translateLatencySeconds.Observe(elapsed.Seconds())
}

func ObserveValidateVerdict(verdict string) {
	validateVerdictsTotal.WithLabelValues(verdict).Inc()
}

func ObserveExecution(outcome string, rows int, elapsed time.Duration) {
	executeOutcomesTotal.WithLabelValues(outcome).Inc()
	executeLatencySeconds.Observe(elapsed.Seconds())
	if outcome == "ok" {
		executeRowsReturned.Observe(float64(rows))
	}
}

func ObserveAsk(stage string, ok bool) {
	result := "error"
	if ok {
		result = "ok"
	}
	asksTotal.WithLabelValues(stage, result).Inc()
}

func SetSchemaSnapshotInfo(tables int, truncated bool) {
	schemaSnapshotTables.Set(float64(tables))
	if truncated {
		schemaSnapshotTruncated.Set(1)
	} else {
		schemaSnapshotTruncated.Set(0)
	}
}

func ObserveHistoryPrune(archived, deleted int) {
	if archived > 0 {
		historyArchivedTotal.Add(float64(archived))
	}
	if deleted > 0 {
		historyPrunedTotal.Add(float64(deleted))
	}
}
