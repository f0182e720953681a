package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/alfred-dev/incentive-core/vector"
)

// Store is the read-only retrieval backend the core depends on. A real
// deployment backs this with a database exposing vector similarity
// search (e.g. pgvector); schema and migrations are a declared
// non-goal. This package only ships Memory, an in-process fake used by
// tests and by cmd/matchctl's demonstration wiring.
type Store interface {
	GetIncentive(ctx context.Context, id string) (*Incentive, error)
	GetCompany(ctx context.Context, id string) (*Company, error)
	// Nearest returns the k rows with the largest similarity to query
	// among stored vectors of the given entity kind, ordered by
	// similarity descending, ties broken by entity id ascending.
	Nearest(ctx context.Context, kind EntityKind, query Embedding, k int) ([]Neighbor, error)
	JoinCompanyWithEmbedding(ctx context.Context, ids []string) ([]CompanyWithEmbedding, error)
}

// ErrNotFound is returned by Memory (and expected of real
// implementations) when an entity id doesn't exist.
var ErrNotFound = fmt.Errorf("store: not found")

// Memory is a simple in-process Store backed by maps, guarded by a
// single RWMutex since it exists for tests and small demos, not
// throughput.
type Memory struct {
	mu         sync.RWMutex
	incentives map[string]*Incentive
	companies  map[string]*Company
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		incentives: make(map[string]*Incentive),
		companies:  make(map[string]*Company),
	}
}

// PutIncentive inserts or replaces an incentive.
func (m *Memory) PutIncentive(inc Incentive) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := inc
	m.incentives[inc.ID] = &cp
}

// PutCompany inserts or replaces a company.
func (m *Memory) PutCompany(c Company) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := c
	m.companies[c.ID] = &cp
}

func (m *Memory) GetIncentive(_ context.Context, id string) (*Incentive, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inc, ok := m.incentives[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *inc
	return &cp, nil
}

func (m *Memory) GetCompany(_ context.Context, id string) (*Company, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.companies[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *Memory) Nearest(_ context.Context, kind EntityKind, query Embedding, k int) ([]Neighbor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var items []vector.Item
	switch kind {
	case EntityIncentive:
		for id, inc := range m.incentives {
			if inc.Embedding == nil {
				continue
			}
			items = append(items, vector.Item{ID: id, Vector: inc.Embedding})
		}
	case EntityCompany:
		for id, c := range m.companies {
			if c.Embedding == nil {
				continue
			}
			items = append(items, vector.Item{ID: id, Vector: c.Embedding})
		}
	default:
		return nil, fmt.Errorf("store: unknown entity kind %q", kind)
	}

	// vector.BruteForce already sorts deterministically, but map
	// iteration order is random so we stabilize the input first too,
	// keeping behavior reproducible independent of BruteForce's own
	// tie-break guarantee.
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })

	scored := vector.BruteForce(query, items, k)
	out := make([]Neighbor, len(scored))
	for i, s := range scored {
		out[i] = Neighbor{EntityID: s.ID, Similarity: s.Similarity}
	}
	return out, nil
}

func (m *Memory) JoinCompanyWithEmbedding(_ context.Context, ids []string) ([]CompanyWithEmbedding, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]CompanyWithEmbedding, 0, len(ids))
	for _, id := range ids {
		c, ok := m.companies[id]
		if !ok {
			continue
		}
		out = append(out, CompanyWithEmbedding{Company: *c, Embedding: c.Embedding})
	}
	return out, nil
}
