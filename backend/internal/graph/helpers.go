package graph

import (
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// ============================================================================
// Helper Functions
// ============================================================================

// quoteIdentifier backtick-quotes a label or relationship type for Cypher.
func quoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func constraintName(label string) string {
	return strings.ToLower(label) + "_id_unique"
}

// propsParam converts properties to a driver-friendly parameter map.
func propsParam(props map[string]string) map[string]any {
	out := make(map[string]any, len(props))
	for k, v := range props {
		out[k] = v
	}
	return out
}

// storeError carries the driver's retry classification to the Writer.
type storeError struct {
	err       error
	retryable bool
}

func (e *storeError) Error() string   { return e.err.Error() }
func (e *storeError) Unwrap() error   { return e.err }
func (e *storeError) Retryable() bool { return e.retryable }

func wrapStoreError(err error) error {
	if err == nil {
		return nil
	}
	return &storeError{err: err, retryable: isRetryableStoreError(err)}
}

// isRetryableStoreError treats connectivity and transient server errors as
// retryable. Client errors such as constraint violations are not.
func isRetryableStoreError(err error) bool {
	if neo4j.IsRetryable(err) {
		return true
	}
	if neo4j.IsConnectivityError(err) {
		return true
	}
	if neo4jErr, ok := err.(*neo4j.Neo4jError); ok {
		return neo4jErr.Classification() != "ClientError"
	}
	return true
}

func getStringFromRecord(record *neo4j.Record, key string) string {
	val, ok := record.Get(key)
	if !ok || val == nil {
		return ""
	}
	if str, ok := val.(string); ok {
		return str
	}
	return ""
}

func getInt64FromRecord(record *neo4j.Record, key string) int64 {
	val, ok := record.Get(key)
	if !ok || val == nil {
		return 0
	}
	if i, ok := val.(int64); ok {
		return i
	}
	if i, ok := val.(int); ok {
		return int64(i)
	}
	return 0
}
