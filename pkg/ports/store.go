package ports

import (
	"context"

	"github.com/aretw0/netviz/pkg/domain"
)

// TripletStore is the durable fact store.
// Facts are identified by their key; putting an existing key overwrites it.
type TripletStore interface {
	// Get returns every fact matching the pattern. An empty pattern scans the whole store.
	Get(ctx context.Context, pattern domain.Pattern) ([]domain.Fact, error)

	// Put persists one or more facts.
	Put(ctx context.Context, facts ...domain.Fact) error

	// Delete removes one or more facts. Missing facts are ignored.
	Delete(ctx context.Context, facts ...domain.Fact) error
}

// GraphStore persists saved graphs by name.
type GraphStore interface {
	Save(ctx context.Context, name string, graph *domain.SavedGraph) error

	// Load returns domain.ErrNotFound if the name does not exist.
	Load(ctx context.Context, name string) (*domain.SavedGraph, error)

	Delete(ctx context.Context, name string) error
	List(ctx context.Context) ([]string, error)
}
