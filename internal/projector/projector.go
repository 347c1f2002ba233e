// Package projector derives the visual edge list from the fact store.
//
// The edge list is never patched: every projection starts from an unfiltered scan, so
// correctness never depends on tracking deltas.
package projector

import (
	"context"
	"fmt"
	"sort"

	"github.com/aretw0/netviz/pkg/domain"
	"github.com/aretw0/netviz/pkg/ports"
)

// Lookup resolves node hashes to their current visual index.
type Lookup interface {
	IndexOf(hash string) (int, bool)
}

// ColorFunc resolves the edge color of a predicate.
type ColorFunc func(domain.Predicate) string

// Result is one projection.
type Result struct {
	Edges []domain.Edge
	// Dangling holds facts whose subject or object is not registered.
	// They are a consistency bug upstream and never become edges.
	Dangling []domain.Fact
}

// Projector scans a store for projection.
type Projector struct {
	store ports.TripletStore
}

// New creates a Projector over store.
func New(store ports.TripletStore) *Projector {
	return &Projector{store: store}
}

// Scan returns every stored fact.
func (p *Projector) Scan(ctx context.Context) ([]domain.Fact, error) {
	facts, err := p.store.Get(ctx, domain.Pattern{})
	if err != nil {
		return nil, fmt.Errorf("scan triplet store: %w", err)
	}
	return facts, nil
}

// Project maps every fact to {source, target, edgeData}. Output order is sorted by
// fact key, so the same store and registry always yield the same list. A nil color
// func leaves edge colors empty.
func Project(facts []domain.Fact, lookup Lookup, color ColorFunc) Result {
	sorted := make([]domain.Fact, len(facts))
	copy(sorted, facts)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Key().String() < sorted[j].Key().String()
	})

	res := Result{Edges: make([]domain.Edge, 0, len(sorted))}
	for _, f := range sorted {
		si, sok := lookup.IndexOf(f.Subject.Hash)
		ti, tok := lookup.IndexOf(f.Object.Hash)
		if !sok || !tok {
			res.Dangling = append(res.Dangling, f)
			continue
		}
		e := domain.Edge{
			Source:      f.Subject.Hash,
			Target:      f.Object.Hash,
			SourceIndex: si,
			TargetIndex: ti,
			Data:        f.Predicate,
		}
		if color != nil {
			e.Color = color(f.Predicate)
		}
		res.Edges = append(res.Edges, e)
	}
	return res
}
