package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initIngestMetrics() {
	r.IngestFilesTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "cdrgraph_ingest_files_total",
			Help: "Total number of ingested files by record type and outcome",
		},
		[]string{"file_type", "status"},
	)

	r.IngestRowsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "cdrgraph_ingest_rows_total",
			Help: "Total number of rows extracted",
		},
		[]string{"file_type"},
	)

	r.IngestWarningsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "cdrgraph_ingest_warnings_total",
			Help: "Total number of skipped nodes and relationships",
		},
		[]string{"kind"},
	)

	r.IngestBatchDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cdrgraph_ingest_batch_duration_seconds",
			Help:    "Time from detection to the last committed write group",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"file_type"},
	)

	r.GraphNodesWritten = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "cdrgraph_graph_nodes_merged_total",
			Help: "Total number of node merges sent to the graph",
		},
		[]string{"label"},
	)

	r.GraphEdgesWritten = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "cdrgraph_graph_relationships_merged_total",
			Help: "Total number of relationship merges sent to the graph",
		},
		[]string{"group"},
	)

	r.GraphWriteFailures = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "cdrgraph_graph_write_failures_total",
			Help: "Total number of failed batch writes",
		},
		[]string{"phase", "retryable"},
	)

	r.SessionsActive = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "cdrgraph_sessions_active",
			Help: "Number of upload sessions held in memory",
		},
	)
}
