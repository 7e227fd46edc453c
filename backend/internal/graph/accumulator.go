package graph

import (
	"go.uber.org/zap"

	"cdr-graph/backend/pkg/logger"
)

// WarningKind classifies a dropped item.
type WarningKind string

const (
	// WarningMalformedRelationship marks a relationship descriptor with missing fields.
	WarningMalformedRelationship WarningKind = "malformed_relationship"
	// WarningEmptyNode marks a node reference without label or id.
	WarningEmptyNode WarningKind = "empty_node"
)

// Warning records an item that was skipped while the batch carried on.
type Warning struct {
	Row     int         `json:"row"`
	Kind    WarningKind `json:"kind"`
	Message string      `json:"message"`
}

// NodeSet holds unique ids in first-seen order.
type NodeSet struct {
	ids   []string
	index map[string]struct{}
}

func newNodeSet() *NodeSet {
	return &NodeSet{index: make(map[string]struct{})}
}

// Add inserts id and reports whether it was new.
func (s *NodeSet) Add(id string) bool {
	if _, ok := s.index[id]; ok {
		return false
	}
	s.index[id] = struct{}{}
	s.ids = append(s.ids, id)
	return true
}

// Len returns the number of ids.
func (s *NodeSet) Len() int { return len(s.ids) }

// IDs returns a copy of the ids in insertion order.
func (s *NodeSet) IDs() []string {
	return append([]string(nil), s.ids...)
}

// NodeGroup is every id of one label in a batch.
type NodeGroup struct {
	Label string
	IDs   []string
}

// EdgeGroup is every relationship entry of one (from label, type, to label) triple.
type EdgeGroup struct {
	Key           EdgeKey
	Relationships []Relationship
}

// Batch is the deduplicated, grouped content of one uploaded file.
type Batch struct {
	Nodes    []NodeGroup
	Edges    []EdgeGroup
	Warnings []Warning
}

// NodeCount returns the number of unique nodes.
func (b *Batch) NodeCount() int {
	n := 0
	for _, g := range b.Nodes {
		n += len(g.IDs)
	}
	return n
}

// EdgeCount returns the number of relationship entries, duplicates included.
func (b *Batch) EdgeCount() int {
	n := 0
	for _, g := range b.Edges {
		n += len(g.Relationships)
	}
	return n
}

// NodesByLabel returns unique node counts per label.
func (b *Batch) NodesByLabel() map[string]int {
	out := make(map[string]int, len(b.Nodes))
	for _, g := range b.Nodes {
		out[g.Label] = len(g.IDs)
	}
	return out
}

// EdgesByGroup returns entry counts keyed by EdgeKey.String().
func (b *Batch) EdgesByGroup() map[string]int {
	out := make(map[string]int, len(b.Edges))
	for _, g := range b.Edges {
		out[g.Key.String()] = len(g.Relationships)
	}
	return out
}

// Accumulator folds per-row extraction output into one batch. Node identity
// is (label, id) within the batch only. Relationship entries are grouped by
// EdgeKey and kept in arrival order; repeated endpoint pairs are not merged.
// An Accumulator is not safe for concurrent use.
type Accumulator struct {
	nodes      map[string]*NodeSet
	labelOrder []string
	edges      map[EdgeKey][]Relationship
	edgeOrder  []EdgeKey
	warnings   []Warning
	logger     *zap.Logger
}

// NewAccumulator creates an empty accumulator. A nil logger uses the global one.
func NewAccumulator(log *zap.Logger) *Accumulator {
	if log == nil {
		log = logger.Get()
	}
	return &Accumulator{
		nodes:  make(map[string]*NodeSet),
		edges:  make(map[EdgeKey][]Relationship),
		logger: log,
	}
}

// AddRow adds the extraction output of one row.
func (a *Accumulator) AddRow(row int, nodes []NodeRef, edges []EdgeDescriptor) {
	for _, n := range nodes {
		a.AddNode(row, n)
	}
	for _, e := range edges {
		a.AddEdge(row, e)
	}
}

// AddNode adds a node reference, ignoring repeats.
func (a *Accumulator) AddNode(row int, n NodeRef) {
	if n.Label == "" || n.ID == "" {
		a.warn(row, WarningEmptyNode, "node reference without label or id: "+n.String())
		return
	}
	set, ok := a.nodes[n.Label]
	if !ok {
		set = newNodeSet()
		a.nodes[n.Label] = set
		a.labelOrder = append(a.labelOrder, n.Label)
	}
	set.Add(n.ID)
}

// AddEdge appends a relationship entry to its group. Malformed descriptors
// are dropped with a warning.
func (a *Accumulator) AddEdge(row int, e EdgeDescriptor) {
	if err := e.Validate(); err != nil {
		a.warn(row, WarningMalformedRelationship, err.Error())
		return
	}
	key := e.Key()
	if _, ok := a.edges[key]; !ok {
		a.edgeOrder = append(a.edgeOrder, key)
	}
	a.edges[key] = append(a.edges[key], Relationship{
		From:  e.FromID,
		To:    e.ToID,
		Props: copyProps(e.Properties),
	})
}

// Merge folds other into a: node sets are unioned and relationship lists are
// appended after a's entries. Merging partial accumulators in row order
// gives the same batch as sequential accumulation.
func (a *Accumulator) Merge(other *Accumulator) {
	for _, label := range other.labelOrder {
		for _, id := range other.nodes[label].ids {
			a.AddNode(0, NodeRef{Label: label, ID: id})
		}
	}
	for _, key := range other.edgeOrder {
		if _, ok := a.edges[key]; !ok {
			a.edgeOrder = append(a.edgeOrder, key)
		}
		a.edges[key] = append(a.edges[key], other.edges[key]...)
	}
	a.warnings = append(a.warnings, other.warnings...)
}

// Nodes returns the id set for a label, or nil.
func (a *Accumulator) Nodes(label string) *NodeSet {
	return a.nodes[label]
}

// Warnings returns the warnings collected so far.
func (a *Accumulator) Warnings() []Warning {
	return append([]Warning(nil), a.warnings...)
}

// Batch snapshots the accumulated groups in first-seen order.
func (a *Accumulator) Batch() *Batch {
	b := &Batch{
		Nodes:    make([]NodeGroup, 0, len(a.labelOrder)),
		Edges:    make([]EdgeGroup, 0, len(a.edgeOrder)),
		Warnings: a.Warnings(),
	}
	for _, label := range a.labelOrder {
		b.Nodes = append(b.Nodes, NodeGroup{Label: label, IDs: a.nodes[label].IDs()})
	}
	for _, key := range a.edgeOrder {
		rels := append([]Relationship(nil), a.edges[key]...)
		b.Edges = append(b.Edges, EdgeGroup{Key: key, Relationships: rels})
	}
	return b
}

func (a *Accumulator) warn(row int, kind WarningKind, msg string) {
	a.warnings = append(a.warnings, Warning{Row: row, Kind: kind, Message: msg})
	a.logger.Warn("Skipping graph item",
		zap.Int("row", row),
		zap.String("kind", string(kind)),
		zap.String("reason", msg),
	)
}

func copyProps(props map[string]string) map[string]string {
	out := make(map[string]string, len(props))
	for k, v := range props {
		out[k] = v
	}
	return out
}
