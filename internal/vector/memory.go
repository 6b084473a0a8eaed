package vector

import (
	"context"
	"slices"
	"sort"
	"sync"
)

type memoryEntry struct {
	id  int64
	vec []float32
}

// MemoryIndex scans every stored vector on each query. Entries stay in insertion
// order, so equal scores rank the older entry first.
type MemoryIndex struct {
	mu         sync.RWMutex
	dimensions int
	entries    []memoryEntry
	slot       map[int64]int
}

// NewMemoryIndex creates an empty brute-force index.
func NewMemoryIndex(dimensions int) (*MemoryIndex, error) {
	if err := validDimensions(dimensions); err != nil {
		return nil, err
	}
	return &MemoryIndex{dimensions: dimensions, slot: make(map[int64]int)}, nil
}

func (m *MemoryIndex) Type() string { return string(IndexTypeMemory) }

// Upsert stores a copy of vec under id. Replacing keeps the entry's original position.
func (m *MemoryIndex) Upsert(_ context.Context, id int64, vec []float32) error {
	if err := checkDimensions("upsert", len(vec), m.dimensions); err != nil {
		return err
	}
	owned := slices.Clone(vec)

	m.mu.Lock()
	defer m.mu.Unlock()
	if i, ok := m.slot[id]; ok {
		m.entries[i].vec = owned
		return nil
	}
	m.slot[id] = len(m.entries)
	m.entries = append(m.entries, memoryEntry{id: id, vec: owned})
	return nil
}

// Search ranks every entry by cosine similarity to query and returns the best k.
func (m *MemoryIndex) Search(_ context.Context, query []float32, k int) ([]*VectorResult, error) {
	if err := checkDimensions("search", len(query), m.dimensions); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if k <= 0 || len(m.entries) == 0 {
		return nil, nil
	}

	scored := make([]*VectorResult, 0, len(m.entries))
	for _, e := range m.entries {
		scored = append(scored, &VectorResult{ID: e.id, Score: Cosine(query, e.vec)})
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	return scored[:min(k, len(scored))], nil
}

// Remove drops the given ids and compacts the remaining entries. Unknown ids are ignored.
func (m *MemoryIndex) Remove(_ context.Context, ids ...int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	before := len(m.entries)
	for _, id := range ids {
		delete(m.slot, id)
	}
	if len(m.slot) == before {
		return nil
	}
	m.entries = slices.DeleteFunc(m.entries, func(e memoryEntry) bool {
		_, keep := m.slot[e.id]
		return !keep
	})
	for i, e := range m.entries {
		m.slot[e.id] = i
	}
	return nil
}

// Reset drops every vector.
func (m *MemoryIndex) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = nil
	clear(m.slot)
	return nil
}

// Size returns the number of stored vectors.
func (m *MemoryIndex) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func (m *MemoryIndex) Close() error { return nil }
