package memory

import (
	"context"
	"sync"

	"github.com/aretw0/netviz/pkg/domain"
)

// Store implements ports.TripletStore in memory.
// Safe for concurrent use.
type Store struct {
	data map[domain.FactKey]domain.Fact
	mu   sync.RWMutex
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		data: make(map[domain.FactKey]domain.Fact),
	}
}

// Get returns copies of every matching fact.
func (s *Store) Get(ctx context.Context, pattern domain.Pattern) ([]domain.Fact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Exact lookups skip the scan.
	if pattern.Subject != "" && pattern.Predicate != "" && pattern.Object != "" {
		f, ok := s.data[domain.FactKey{Subject: pattern.Subject, Predicate: pattern.Predicate, Object: pattern.Object}]
		if !ok {
			return nil, nil
		}
		return []domain.Fact{f.Clone()}, nil
	}

	var out []domain.Fact
	for _, f := range s.data {
		if pattern.Matches(f) {
			out = append(out, f.Clone())
		}
	}
	return out, nil
}

// Put stores copies of the facts so callers can't mutate store state by reference.
func (s *Store) Put(ctx context.Context, facts ...domain.Fact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range facts {
		s.data[f.Key()] = f.Clone()
	}
	return nil
}

// Delete removes the facts.
func (s *Store) Delete(ctx context.Context, facts ...domain.Fact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range facts {
		delete(s.data, f.Key())
	}
	return nil
}

// Len returns the number of stored facts.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
