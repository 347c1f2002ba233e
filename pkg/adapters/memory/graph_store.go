package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/aretw0/netviz/pkg/domain"
)

// GraphStore implements ports.GraphStore in memory.
type GraphStore struct {
	data map[string]domain.SavedGraph
	mu   sync.RWMutex
}

// NewGraphStore creates an empty saved-graph store.
func NewGraphStore() *GraphStore {
	return &GraphStore{data: make(map[string]domain.SavedGraph)}
}

// Save stores a copy of the graph.
func (s *GraphStore) Save(ctx context.Context, name string, graph *domain.SavedGraph) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[name] = copySaved(*graph)
	return nil
}

// Load returns a copy of the named graph.
func (s *GraphStore) Load(ctx context.Context, name string) (*domain.SavedGraph, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.data[name]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := copySaved(g)
	return &out, nil
}

// Delete removes the named graph.
func (s *GraphStore) Delete(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, name)
	return nil
}

// List returns saved graph names in lexical order.
func (s *GraphStore) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.data))
	for name := range s.data {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func copySaved(g domain.SavedGraph) domain.SavedGraph {
	return domain.SavedGraph{
		Triplets: append([]domain.SavedTriplet(nil), g.Triplets...),
		Nodes:    append([]domain.SavedNode(nil), g.Nodes...),
	}
}
