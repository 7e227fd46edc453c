package graph

import (
	"context"
	"fmt"
	"strings"
)

// ============================================================================
// Telecom Graph Types
// ============================================================================

// Node labels
const (
	LabelParty         = "Party"
	LabelIMEI          = "IMEI"
	LabelIMSI          = "IMSI"
	LabelTower         = "Tower"
	LabelLocation      = "Location"
	LabelCoordinates   = "Coordinates"
	LabelPrivateIP     = "PrivateIP"
	LabelPublicIP      = "PublicIP"
	LabelDestinationIP = "DestinationIP"
	LabelGateway       = "Gateway"
	LabelAccessPoint   = "AccessPoint"
)

// Labels lists every node label the extractors produce.
var Labels = []string{
	LabelParty, LabelIMEI, LabelIMSI, LabelTower, LabelLocation, LabelCoordinates,
	LabelPrivateIP, LabelPublicIP, LabelDestinationIP, LabelGateway, LabelAccessPoint,
}

// Relationship types
const (
	RelCall           = "CALL"
	RelUsedIMEI       = "USED_IMEI"
	RelUsedIMSI       = "USED_IMSI"
	RelStartedAt      = "STARTED_AT"
	RelEndedAt        = "ENDED_AT"
	RelHasLocation    = "HAS_LOCATION"
	RelLocatedAt      = "LOCATED_AT"
	RelUsedPrivateIP  = "USED_PRIVATE_IP"
	RelNATTo          = "NAT_TO"
	RelConnectedTo    = "CONNECTED_TO"
	RelViaGateway     = "VIA_GATEWAY"
	RelUsedAPN        = "USED_APN"
	RelConnectedFrom  = "CONNECTED_FROM"
	RelDisconnectedAt = "DISCONNECTED_AT"
)

// NodeRef identifies a graph node. It is comparable, so two refs with the
// same label and id are the same map key.
type NodeRef struct {
	Label string `json:"label"`
	ID    string `json:"id"`
}

func (n NodeRef) String() string {
	return n.Label + ":" + n.ID
}

// EdgeDescriptor describes one relationship produced by an extractor.
type EdgeDescriptor struct {
	FromLabel  string            `json:"from_label"`
	FromID     string            `json:"from_id"`
	RelType    string            `json:"rel_type"`
	ToLabel    string            `json:"to_label"`
	ToID       string            `json:"to_id"`
	Properties map[string]string `json:"properties,omitempty"`
}

// Key returns the write group the descriptor belongs to.
func (e EdgeDescriptor) Key() EdgeKey {
	return EdgeKey{FromLabel: e.FromLabel, RelType: e.RelType, ToLabel: e.ToLabel}
}

// Validate reports which of the descriptor's fields are missing.
func (e EdgeDescriptor) Validate() error {
	var missing []string
	for _, f := range []struct{ name, value string }{
		{"from_label", e.FromLabel},
		{"from_id", e.FromID},
		{"rel_type", e.RelType},
		{"to_label", e.ToLabel},
		{"to_id", e.ToID},
	} {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("malformed relationship descriptor: missing %s", strings.Join(missing, ", "))
	}
	return nil
}

// EdgeKey groups relationships that are written by one batched statement.
type EdgeKey struct {
	FromLabel string `json:"from_label"`
	RelType   string `json:"rel_type"`
	ToLabel   string `json:"to_label"`
}

func (k EdgeKey) String() string {
	return fmt.Sprintf("%s-%s->%s", k.FromLabel, k.RelType, k.ToLabel)
}

// Relationship is one entry of a relationship write group.
type Relationship struct {
	From  string            `json:"from"`
	To    string            `json:"to"`
	Props map[string]string `json:"props"`
}

// Store is the write boundary of the graph database. Both operations must be
// idempotent: MergeNodes creates missing nodes and leaves existing ones alone;
// MergeRelationships matches both endpoints by id, merges one relationship of
// relType between them and replaces its properties with each entry's props in
// order, so the last entry for a pair wins.
type Store interface {
	MergeNodes(ctx context.Context, label string, ids []string) error
	MergeRelationships(ctx context.Context, key EdgeKey, rels []Relationship) error
}
