package graph

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"
)

// MemoryStore is an in-process graph store. It backs tests and deployments
// that have no external graph engine configured.
type MemoryStore struct {
	mu    sync.Mutex
	nodes map[string]Node
	edges map[string]Edge
}

// NewMemoryStore creates an empty in-memory graph store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nodes: make(map[string]Node),
		edges: make(map[string]Edge),
	}
}

// UpsertNode merges a node by id.
func (s *MemoryStore) UpsertNode(ctx context.Context, node Node) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	// Merge semantics: a bare upsert never clobbers existing properties.
	if existing, ok := s.nodes[node.ID]; ok && len(node.Properties) == 0 {
		node.Properties = existing.Properties
	}
	s.nodes[node.ID] = node
	return nil
}

// UpsertEdge merges an edge by id.
func (s *MemoryStore) UpsertEdge(ctx context.Context, edge Edge) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.edges[edge.ID] = edge
	return nil
}

// CountNodesByType counts nodes of one type.
func (s *MemoryStore) CountNodesByType(ctx context.Context, nodeType string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	for _, node := range s.nodes {
		if node.Type == nodeType {
			count++
		}
	}
	return count, nil
}

// SumEdgeAmounts totals edge amounts for one relation.
func (s *MemoryStore) SumEdgeAmounts(ctx context.Context, relation string) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	total := decimal.Zero
	for _, edge := range s.edges {
		if edge.Type == relation {
			total = total.Add(edge.Amount)
		}
	}
	return total, nil
}

// DeleteAll drops the whole mirror. Used before a rebuild.
func (s *MemoryStore) DeleteAll(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes = make(map[string]Node)
	s.edges = make(map[string]Edge)
	return nil
}

// node returns a node by id. Test helper.
func (s *MemoryStore) node(id string) (Node, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	node, ok := s.nodes[id]
	return node, ok
}

// NodeCount reports the total node count. Test helper.
func (s *MemoryStore) NodeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.nodes)
}

// EdgeCount reports the total edge count. Test helper.
func (s *MemoryStore) EdgeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.edges)
}
