package graph

import (
	"context"
	"sort"
	"sync"
)

type relationshipID struct {
	FromLabel string
	From      string
	RelType   string
	ToLabel   string
	To        string
}

// MemoryStore is an in-process Store with the same merge semantics as the
// Neo4j repository. It backs dry runs and tests.
type MemoryStore struct {
	mu    sync.RWMutex
	nodes map[string]map[string]struct{}
	rels  map[relationshipID]map[string]string
	// Skipped counts relationship entries whose endpoints did not exist.
	skipped int
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nodes: make(map[string]map[string]struct{}),
		rels:  make(map[relationshipID]map[string]string),
	}
}

// Ping fails only when ctx is done.
func (m *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

// MergeNodes implements Store.
func (m *MemoryStore) MergeNodes(ctx context.Context, label string, ids []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	set, ok := m.nodes[label]
	if !ok {
		set = make(map[string]struct{}, len(ids))
		m.nodes[label] = set
	}
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return nil
}

// MergeRelationships implements Store. Entries are applied in order, so a
// repeated endpoint pair ends with the last entry's properties.
func (m *MemoryStore) MergeRelationships(ctx context.Context, key EdgeKey, rels []Relationship) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range rels {
		if !m.hasNodeLocked(key.FromLabel, r.From) || !m.hasNodeLocked(key.ToLabel, r.To) {
			m.skipped++
			continue
		}
		id := relationshipID{FromLabel: key.FromLabel, From: r.From, RelType: key.RelType, ToLabel: key.ToLabel, To: r.To}
		m.rels[id] = copyProps(r.Props)
	}
	return nil
}

// HasNode reports whether (label, id) exists.
func (m *MemoryStore) HasNode(label, id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.hasNodeLocked(label, id)
}

func (m *MemoryStore) hasNodeLocked(label, id string) bool {
	_, ok := m.nodes[label][id]
	return ok
}

// Relationship returns the stored properties of one relationship.
func (m *MemoryStore) Relationship(key EdgeKey, from, to string) (map[string]string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	props, ok := m.rels[relationshipID{FromLabel: key.FromLabel, From: from, RelType: key.RelType, ToLabel: key.ToLabel, To: to}]
	if !ok {
		return nil, false
	}
	return copyProps(props), true
}

// NodeIDs returns the sorted ids stored under a label.
func (m *MemoryStore) NodeIDs(label string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.nodes[label]))
	for id := range m.nodes[label] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// CountNodes returns node counts per label.
func (m *MemoryStore) CountNodes(ctx context.Context) (map[string]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]int64, len(m.nodes))
	for label, set := range m.nodes {
		out[label] = int64(len(set))
	}
	return out, nil
}

// CountRelationships returns relationship counts per type.
func (m *MemoryStore) CountRelationships(ctx context.Context) (map[string]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]int64)
	for id := range m.rels {
		out[id.RelType]++
	}
	return out, nil
}

// Skipped returns how many relationship entries found no endpoints.
func (m *MemoryStore) Skipped() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.skipped
}
