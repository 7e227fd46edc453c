package metrics

import (
	"strconv"
	"time"
)

// RecordHTTPRequest records an HTTP request with its duration
func (r *Registry) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	r.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	r.HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// RecordIngest records a successfully written file
func (r *Registry) RecordIngest(fileType string, rows int, nodesByLabel, edgesByGroup map[string]int, duration time.Duration) {
	r.IngestFilesTotal.WithLabelValues(fileType, "success").Inc()
	r.IngestRowsTotal.WithLabelValues(fileType).Add(float64(rows))
	r.IngestBatchDuration.WithLabelValues(fileType).Observe(duration.Seconds())
	for label, n := range nodesByLabel {
		r.GraphNodesWritten.WithLabelValues(label).Add(float64(n))
	}
	for group, n := range edgesByGroup {
		r.GraphEdgesWritten.WithLabelValues(group).Add(float64(n))
	}
}

// RecordRejected records a file whose columns matched no record type
func (r *Registry) RecordRejected() {
	r.IngestFilesTotal.WithLabelValues("UNKNOWN", "rejected").Inc()
}

// RecordWarning records one skipped node or relationship
func (r *Registry) RecordWarning(kind string) {
	r.IngestWarningsTotal.WithLabelValues(kind).Inc()
}

// RecordWriteFailure records a batch write that stopped at phase
func (r *Registry) RecordWriteFailure(fileType, phase string, retryable bool) {
	r.IngestFilesTotal.WithLabelValues(fileType, "failed").Inc()
	r.GraphWriteFailures.WithLabelValues(phase, strconv.FormatBool(retryable)).Inc()
}

// SetActiveSessions sets the current session count
func (r *Registry) SetActiveSessions(n int) {
	r.SessionsActive.Set(float64(n))
}
