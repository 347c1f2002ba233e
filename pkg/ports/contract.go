package ports

import (
	"context"
	"sort"
	"testing"

	"github.com/aretw0/netviz/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunTripletStoreContract runs a suite of tests to verify that a TripletStore implementation
// adheres to the defined interface contract. The store must be empty.
func RunTripletStoreContract(t *testing.T, store TripletStore) {
	ctx := context.Background()

	likes := domain.NewFact("a", "likes", "b")
	likes.Predicate.Data = map[string]any{"weight": 2.0}
	likes.Subject.Shortname = domain.Label{"Alice"}
	knows := domain.NewFact("a", "knows", "c")
	back := domain.NewFact("b", "likes", "a")

	t.Run("Put and Get exact", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, likes))

		got, err := store.Get(ctx, domain.PatternFor(likes.Key()))
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, likes.Key(), got[0].Key())
		assert.Equal(t, 2.0, got[0].Predicate.Data["weight"])
		assert.Equal(t, domain.Label{"Alice"}, got[0].Subject.Shortname)
	})

	t.Run("Get missing", func(t *testing.T) {
		got, err := store.Get(ctx, domain.PatternFor(domain.FactKey{Subject: "x", Predicate: "y", Object: "z"}))
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("Put overwrites same key", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, likes))

		got, err := store.Get(ctx, domain.PatternFor(likes.Key()))
		require.NoError(t, err)
		assert.Len(t, got, 1)
	})

	t.Run("Batch put and partial patterns", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, knows, back))

		tests := []struct {
			name    string
			pattern domain.Pattern
			want    []string
		}{
			{"by subject", domain.Pattern{Subject: "a"}, []string{keyOf(knows), keyOf(likes)}},
			{"by object", domain.Pattern{Object: "a"}, []string{keyOf(back)}},
			{"by predicate", domain.Pattern{Predicate: "likes"}, []string{keyOf(likes), keyOf(back)}},
			{"subject and predicate", domain.Pattern{Subject: "a", Predicate: "knows"}, []string{keyOf(knows)}},
			{"predicate and object", domain.Pattern{Predicate: "likes", Object: "b"}, []string{keyOf(likes)}},
			{"subject and object", domain.Pattern{Subject: "b", Object: "a"}, []string{keyOf(back)}},
			{"unfiltered", domain.Pattern{}, []string{keyOf(knows), keyOf(likes), keyOf(back)}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				got, err := store.Get(ctx, tt.pattern)
				require.NoError(t, err)
				assert.ElementsMatch(t, tt.want, keysOf(got))
			})
		}
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Delete(ctx, likes, back))

		got, err := store.Get(ctx, domain.Pattern{})
		require.NoError(t, err)
		assert.Equal(t, []string{keyOf(knows)}, keysOf(got))
	})

	t.Run("Delete missing is a no-op", func(t *testing.T) {
		require.NoError(t, store.Delete(ctx, likes))
		require.NoError(t, store.Delete(ctx, knows))

		got, err := store.Get(ctx, domain.Pattern{})
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func keyOf(f domain.Fact) string {
	return f.Key().String()
}

func keysOf(facts []domain.Fact) []string {
	keys := make([]string, 0, len(facts))
	for _, f := range facts {
		keys = append(keys, keyOf(f))
	}
	sort.Strings(keys)
	return keys
}
