package projector_test

import (
	"context"
	"errors"
	"testing"

	"github.com/aretw0/netviz/internal/projector"
	"github.com/aretw0/netviz/pkg/adapters/memory"
	"github.com/aretw0/netviz/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapLookup map[string]int

func (m mapLookup) IndexOf(hash string) (int, bool) {
	i, ok := m[hash]
	return i, ok
}

type failingStore struct{ memory.Store }

func (f *failingStore) Get(ctx context.Context, p domain.Pattern) ([]domain.Fact, error) {
	return nil, errors.New("disk gone")
}

func TestProject(t *testing.T) {
	facts := []domain.Fact{
		domain.NewFact("b", "likes", "a"),
		domain.NewFact("a", "likes", "b"),
		domain.NewFact("a", "knows", "ghost"),
	}
	lookup := mapLookup{"a": 0, "b": 1}
	color := func(p domain.Predicate) string { return "red-" + p.Type }

	res := projector.Project(facts, lookup, color)

	require.Len(t, res.Edges, 2)
	assert.Equal(t, domain.Edge{
		Source: "a", Target: "b", SourceIndex: 0, TargetIndex: 1,
		Data: domain.Predicate{Type: "likes"}, Color: "red-likes",
	}, res.Edges[0])
	assert.Equal(t, "b", res.Edges[1].Source)

	require.Len(t, res.Dangling, 1)
	assert.Equal(t, "ghost", res.Dangling[0].Object.Hash)
}

func TestProject_Deterministic(t *testing.T) {
	lookup := mapLookup{"a": 0, "b": 1, "c": 2}
	one := []domain.Fact{domain.NewFact("a", "x", "b"), domain.NewFact("c", "y", "a"), domain.NewFact("b", "z", "c")}
	two := []domain.Fact{one[2], one[0], one[1]}

	assert.Equal(t, projector.Project(one, lookup, nil), projector.Project(two, lookup, nil))
}

func TestProjector_ScanThenProject(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	require.NoError(t, store.Put(ctx, domain.NewFact("a", "likes", "b"), domain.NewFact("b", "likes", "c")))

	p := projector.New(store)
	facts, err := p.Scan(ctx)
	require.NoError(t, err)
	res := projector.Project(facts, mapLookup{"a": 0, "b": 1, "c": 2}, nil)

	assert.Len(t, res.Edges, 2, "projection has the cardinality of the store")
	assert.Empty(t, res.Dangling)
}

func TestProjector_ScanError(t *testing.T) {
	p := projector.New(&failingStore{})
	_, err := p.Scan(context.Background())
	assert.ErrorContains(t, err, "disk gone")
}
