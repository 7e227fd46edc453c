// Package schema canonicalizes column headers and classifies a table into
// one of the supported telecom record types.
package schema

import (
	"strings"
)

// RecordType identifies the kind of telecom record a table holds.
type RecordType string

const (
	// CDR is a call detail record: one row per call event.
	CDR RecordType = "CDR"
	// TD is the tower/roaming variant of CDR, marked by a ROAMING_A column.
	TD RecordType = "TD"
	// IPDR is an internet protocol detail record: one row per data session.
	IPDR RecordType = "IPDR"
	// Unknown means no signature matched.
	Unknown RecordType = "UNKNOWN"
)

// Known reports whether the type has an extractor.
func (t RecordType) Known() bool {
	return t == CDR || t == TD || t == IPDR
}

func (t RecordType) String() string { return string(t) }

// Column names used for detection.
const (
	ColAParty     = "A_PARTY"
	ColBParty     = "B_PARTY"
	ColCallType   = "CALL_TYPE"
	ColIMEIA      = "IMEI_A"
	ColIMSIA      = "IMSI_A"
	ColRoamingA   = "ROAMING_A"
	ColSourceIP   = "SOURCE_IP_ADDRESS"
	ColNATIP      = "TRANSLATED_IP_ADDRESS"
	ColDestIP     = "DESTINATION_IP_ADDRESS"
	ColSessionDur = "SESSION_DURATION"
)

var (
	callSignature = []string{ColAParty, ColBParty, ColCallType, ColIMEIA, ColIMSIA}
	ipdrSignature = []string{ColSourceIP, ColNATIP, ColDestIP, ColSessionDur}
)

// NormalizedRow maps normalized column names to cell values. Values are never
// nil; blank cells are stored as the empty string.
type NormalizedRow map[string]string

// Get returns the value for a column, or "" when the column is absent.
func (r NormalizedRow) Get(column string) string {
	return r[column]
}

// Normalize trims surrounding whitespace, replaces spaces with underscores and
// upper-cases the result. Normalize(Normalize(x)) == Normalize(x).
func Normalize(column string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(column), " ", "_"))
}

// NormalizeColumns normalizes every header cell, keeping order.
func NormalizeColumns(columns []string) []string {
	out := make([]string, len(columns))
	for i, c := range columns {
		out[i] = Normalize(c)
	}
	return out
}

// ColumnSet is a set of normalized column names.
type ColumnSet map[string]struct{}

// NewColumnSet normalizes the given headers into a set.
func NewColumnSet(columns []string) ColumnSet {
	set := make(ColumnSet, len(columns))
	for _, c := range columns {
		set[Normalize(c)] = struct{}{}
	}
	return set
}

// Has reports whether the column is present.
func (s ColumnSet) Has(column string) bool {
	_, ok := s[column]
	return ok
}

func (s ColumnSet) containsAll(columns []string) bool {
	for _, c := range columns {
		if !s.Has(c) {
			return false
		}
	}
	return true
}

func (s ColumnSet) containsAny(columns []string) bool {
	for _, c := range columns {
		if s.Has(c) {
			return true
		}
	}
	return false
}

// Detect classifies a column set. Call records need every signature column;
// IPDR needs only one of its signature columns, so a truncated call table
// carrying a stray IP column is classified IPDR.
func Detect(columns ColumnSet) RecordType {
	switch {
	case columns.containsAll(callSignature):
		if columns.Has(ColRoamingA) {
			return TD
		}
		return CDR
	case columns.containsAny(ipdrSignature):
		return IPDR
	default:
		return Unknown
	}
}

// DetectColumns normalizes raw headers and classifies them.
func DetectColumns(columns []string) RecordType {
	return Detect(NewColumnSet(columns))
}
