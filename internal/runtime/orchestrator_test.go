package runtime_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/netviz/internal/runtime"
	"github.com/aretw0/netviz/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddTriplet_RegistersEndpoints(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.orch.AddTriplet(ctx, fact("a", "likes", "b")))

	assert.True(t, f.orch.HasNode("a"))
	assert.True(t, f.orch.HasNode("b"))
	links := f.orch.Links()
	require.Len(t, links, 1)
	assert.Equal(t, "a", links[0].Source)
	assert.Equal(t, "b", links[0].Target)
	assert.Equal(t, 0, links[0].SourceIndex)
	assert.Equal(t, 1, links[0].TargetIndex)
	assert.Equal(t, "likes", links[0].Data.Type)
	assert.Equal(t, runtime.DefaultEdgeColor, links[0].Color)
}

func TestAddTriplet_KeepsShortnameAndData(t *testing.T) {
	f := newFixture(t)
	in := fact("a", "likes", "b")
	in.Subject.Shortname = domain.Label{"Alice", "Smith"}
	in.Predicate.Data = map[string]any{"since": 2019}

	require.NoError(t, f.orch.AddTriplet(context.Background(), in))

	nodes := f.orch.Nodes()
	require.Len(t, nodes, 2)
	assert.Equal(t, domain.Label{"Alice", "Smith"}, nodes[0].Shortname)
	assert.Equal(t, 2019, f.orch.Links()[0].Data.Data["since"])
}

func TestAddTriplet_DuplicateRejected(t *testing.T) {
	var rejected []*domain.RejectEvent
	f := newFixture(t, runtime.WithLifecycleHooks(domain.LifecycleHooks{
		OnRejected: func(ctx context.Context, e *domain.RejectEvent) { rejected = append(rejected, e) },
	}))
	ctx := context.Background()

	require.NoError(t, f.orch.AddTriplet(ctx, fact("a", "likes", "b")))
	f.log.reset()

	err := f.orch.AddTriplet(ctx, fact("a", "likes", "b"))
	assert.ErrorIs(t, err, domain.ErrDuplicateFact)

	var opErr *domain.OpError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, "addTriplet", opErr.Op)
	assert.Equal(t, 1, f.store.Len())
	assert.Len(t, f.orch.Links(), 1)
	assert.Empty(t, f.log.list(), "a rejected duplicate never suspends the solver")
	require.Len(t, rejected, 1)
	assert.Equal(t, "addTriplet", rejected[0].Op)
}

func TestAddTriplet_ConcurrentDuplicates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const n = 32
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = f.orch.AddTriplet(ctx, fact("a", "likes", "b"))
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, domain.ErrDuplicateFact)
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, f.store.Len())
	assert.Len(t, f.orch.Links(), 1)
}

func TestAddTriplet_ConcurrentDistinctFacts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, f.orch.AddTriplet(ctx, fact("hub", "links", fmt.Sprintf("n%d", i))))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 20, f.store.Len())
	assert.Len(t, f.orch.Nodes(), 21)
	assert.Len(t, f.orch.Links(), 20)
}

func TestAddTriplet_Validation(t *testing.T) {
	tests := []struct {
		name string
		fact domain.Fact
	}{
		{"missing subject hash", domain.Fact{Predicate: domain.Predicate{Type: "likes"}, Object: domain.NodeRef{Hash: "b"}}},
		{"missing object hash", domain.Fact{Subject: domain.NodeRef{Hash: "a"}, Predicate: domain.Predicate{Type: "likes"}}},
		{"missing predicate type", fact("a", "", "b")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			err := f.orch.AddTriplet(context.Background(), tt.fact)
			assert.ErrorIs(t, err, domain.ErrValidation)
			assert.Zero(t, f.store.Len())
			assert.Empty(t, f.orch.Nodes())
			assert.Empty(t, f.log.list())
		})
	}
}

func TestAddEdge(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown endpoint is a no-op", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.orch.AddNodes(ctx, domain.NodeInput{Hash: "a"}))
		f.log.reset()

		require.NoError(t, f.orch.AddEdge(ctx, fact("a", "likes", "never-added")))

		assert.Len(t, f.orch.Nodes(), 1)
		assert.Empty(t, f.orch.Links())
		assert.Zero(t, f.store.Len())
		assert.Empty(t, f.log.list())
	})

	t.Run("registered endpoints are linked", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.orch.AddNodes(ctx, domain.NodeInput{Hash: "a"}, domain.NodeInput{Hash: "b"}))

		require.NoError(t, f.orch.AddEdge(ctx, fact("a", "likes", "b")))
		assert.Len(t, f.orch.Links(), 1)

		err := f.orch.AddEdge(ctx, fact("a", "likes", "b"))
		assert.ErrorIs(t, err, domain.ErrDuplicateFact)
	})
}

func TestAddNodes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.orch.AddNodes(ctx,
		domain.NodeInput{Hash: "a"},
		domain.NodeInput{Shortname: domain.Label{"no hash"}},
		domain.NodeInput{Hash: "b", X: ptr(1), Y: ptr(2)},
		domain.NodeInput{Hash: "a", X: ptr(99)},
	)
	assert.ErrorIs(t, err, domain.ErrValidation)

	nodes := f.orch.Nodes()
	require.Len(t, nodes, 2)
	assert.Equal(t, 450.0, nodes[0].X, "defaults to the center of the area")
	assert.Equal(t, 300.0, nodes[0].Y)
	assert.Equal(t, 1.0, nodes[1].X)
	assert.Equal(t, 2.0, nodes[1].Y)
	assert.Greater(t, nodes[0].Width, 0.0)

	f.log.reset()
	require.NoError(t, f.orch.AddNodes(ctx, domain.NodeInput{Hash: "a"}))
	assert.Empty(t, f.log.list(), "re-adding known nodes runs no cycle")
}

func TestRemoveNode(t *testing.T) {
	ctx := context.Background()

	t.Run("deletes referencing facts", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.orch.AddTriplet(ctx, fact("a", "likes", "b")))
		require.NoError(t, f.orch.AddTriplet(ctx, fact("a", "likes", "c")))
		require.NoError(t, f.orch.AddTriplet(ctx, fact("b", "likes", "c")))

		done := false
		require.NoError(t, f.orch.RemoveNode(ctx, "a", func() { done = true }))

		assert.True(t, done)
		assert.False(t, f.orch.HasNode("a"))
		assert.Equal(t, 1, f.store.Len())
		links := f.orch.Links()
		require.Len(t, links, 1)
		for _, l := range links {
			assert.NotEqual(t, "a", l.Source)
			assert.NotEqual(t, "a", l.Target)
		}
		// indices shifted down after the splice
		assert.Equal(t, 0, links[0].SourceIndex)
		assert.Equal(t, 1, links[0].TargetIndex)
	})

	t.Run("incoming facts and self loops", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.orch.AddTriplet(ctx, fact("x", "likes", "a")))
		require.NoError(t, f.orch.AddTriplet(ctx, fact("a", "likes", "a")))

		require.NoError(t, f.orch.RemoveNode(ctx, "a", nil))
		assert.Zero(t, f.store.Len())
		assert.Empty(t, f.orch.Links())
		assert.True(t, f.orch.HasNode("x"))
	})

	t.Run("node without facts", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.orch.AddNodes(ctx, domain.NodeInput{Hash: "lonely"}))
		require.NoError(t, f.orch.RemoveNode(ctx, "lonely", nil))
		assert.Empty(t, f.orch.Nodes())
	})

	t.Run("unknown hash", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.store.Put(ctx, fact("ghost", "likes", "b")))

		err := f.orch.RemoveNode(ctx, "ghost", nil)
		assert.ErrorIs(t, err, domain.ErrNoSuchNode)
		assert.ErrorIs(t, err, domain.ErrReference)
		assert.Equal(t, 1, f.store.Len(), "no store mutation")
	})

	t.Run("prunes group membership", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.orch.AddNodes(ctx, domain.NodeInput{Hash: "a"}, domain.NodeInput{Hash: "b"}, domain.NodeInput{Hash: "c"}))
		_, err := f.orch.MergeIntoGroup(ctx, "a", "b")
		require.NoError(t, err)
		_, err = f.orch.MergeIntoGroup(ctx, "a", "c")
		require.NoError(t, err)

		require.NoError(t, f.orch.RemoveNode(ctx, "a", nil))
		groups := f.orch.Groups()
		require.Len(t, groups, 1)
		assert.ElementsMatch(t, []string{"b", "c"}, groups[0].Members)
		assert.ElementsMatch(t, []int{0, 1}, groups[0].Leaves)
	})
}

func TestMergeIntoGroup(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.orch.AddNodes(ctx, domain.NodeInput{Hash: "a"}, domain.NodeInput{Hash: "b"}, domain.NodeInput{Hash: "c"}))

	first, err := f.orch.MergeIntoGroup(ctx, "a", "b")
	require.NoError(t, err)
	second, err := f.orch.MergeIntoGroup(ctx, "c", "b")
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	groups := f.orch.Groups()
	require.Len(t, groups, 2)
	byID := map[string]domain.Group{}
	for _, g := range groups {
		byID[g.ID] = g
	}
	assert.Equal(t, []string{"a"}, byID[first].Members, "b left a's cell")
	assert.ElementsMatch(t, []string{"b", "c"}, byID[second].Members)
	assert.ElementsMatch(t, []int{1, 2}, byID[second].Leaves)

	t.Run("errors leave the partition alone", func(t *testing.T) {
		f.log.reset()
		_, err := f.orch.MergeIntoGroup(ctx, "a", "missing")
		assert.ErrorIs(t, err, domain.ErrReference)
		_, err = f.orch.MergeIntoGroup(ctx, "missing", "a")
		assert.ErrorIs(t, err, domain.ErrReference)
		_, err = f.orch.MergeIntoGroup(ctx, "a", "a")
		assert.ErrorIs(t, err, domain.ErrValidation)

		assert.Len(t, f.orch.Groups(), 2)
		assert.Empty(t, f.log.list())
	})
}

func TestCycle_HookAndSolverOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.orch.AddTriplet(ctx, fact("a", "likes", "b")))
	assert.Equal(t, []string{"stop", "structural:addTriplet", "reprojected:addTriplet", "restart"}, f.log.list())

	snap := f.solver.last()
	assert.Len(t, snap.Nodes, 2)
	assert.Len(t, snap.Links, 1)
	assert.Equal(t, f.orch.Snapshot().Generation, snap.Generation)

	f.log.reset()
	require.NoError(t, f.orch.RemoveNode(ctx, "a", func() { f.log.add("done") }))
	assert.Equal(t, []string{"stop", "structural:removeNode", "reprojected:removeNode", "restart", "done"}, f.log.list())
}

func TestCycle_EventCounts(t *testing.T) {
	var before, after []*domain.CycleEvent
	f := newFixture(t, runtime.WithLifecycleHooks(domain.LifecycleHooks{
		OnStructuralChange: func(ctx context.Context, e *domain.CycleEvent) { before = append(before, e) },
		OnReprojected:      func(ctx context.Context, e *domain.CycleEvent) { after = append(after, e) },
	}))

	require.NoError(t, f.orch.AddTriplet(context.Background(), fact("a", "likes", "b")))
	require.Len(t, before, 1)
	require.Len(t, after, 1)
	assert.Zero(t, before[0].Nodes)
	assert.Equal(t, 2, after[0].Nodes)
	assert.Equal(t, 1, after[0].Links)
	assert.Equal(t, before[0].CycleID, after[0].CycleID)
	assert.NotEmpty(t, before[0].CycleID)
}

func TestStoreError_Resync(t *testing.T) {
	ctx := context.Background()

	t.Run("failed duplicate check mutates nothing", func(t *testing.T) {
		f := newFixture(t)
		f.store.set(func(s *flakyStore) { s.failGet = true })

		err := f.orch.AddTriplet(ctx, fact("a", "likes", "b"))
		assert.ErrorIs(t, err, domain.ErrStore)
		assert.ErrorIs(t, err, errDisk)
		assert.False(t, f.orch.NeedsResync())
		assert.Zero(t, f.store.Len())
	})

	t.Run("failed put marks resync", func(t *testing.T) {
		f := newFixture(t)
		f.store.set(func(s *flakyStore) { s.failPut = true })

		err := f.orch.AddTriplet(ctx, fact("a", "likes", "b"))
		assert.ErrorIs(t, err, domain.ErrStore)
		assert.True(t, f.orch.NeedsResync())
		assert.False(t, f.orch.HasNode("a"))
	})

	t.Run("failed reprojection is reconciled by Resync", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.orch.AddTriplet(ctx, fact("a", "likes", "b")))
		f.store.set(func(s *flakyStore) { s.failScan = true })

		err := f.orch.AddTriplet(ctx, fact("b", "likes", "c"))
		assert.ErrorIs(t, err, domain.ErrStore)
		assert.True(t, f.orch.NeedsResync())
		assert.Len(t, f.orch.Links(), 1, "last good facts are projected")

		f.store.set(func(s *flakyStore) { s.failScan = false })
		require.NoError(t, f.orch.Resync(ctx))
		assert.False(t, f.orch.NeedsResync())
		assert.Len(t, f.orch.Links(), 2)
	})

	t.Run("failed delete keeps the node", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.orch.AddTriplet(ctx, fact("a", "likes", "b")))
		f.store.set(func(s *flakyStore) { s.failDelete = true })

		err := f.orch.RemoveNode(ctx, "a", nil)
		assert.ErrorIs(t, err, domain.ErrStore)
		assert.True(t, f.orch.HasNode("a"))
		assert.True(t, f.orch.NeedsResync())
	})

	t.Run("graph keeps serving after errors", func(t *testing.T) {
		f := newFixture(t)
		f.store.set(func(s *flakyStore) { s.failPut = true })
		require.Error(t, f.orch.AddTriplet(ctx, fact("a", "likes", "b")))

		f.store.set(func(s *flakyStore) { s.failPut = false })
		require.NoError(t, f.orch.AddTriplet(ctx, fact("a", "likes", "b")))
		assert.False(t, f.orch.NeedsResync(), "the next cycle reconciles")
		assert.Len(t, f.orch.Links(), 1)
	})
}

func TestResync_LoadsDurableStore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.Put(ctx, fact("a", "likes", "b"), fact("b", "likes", "c")))

	require.NoError(t, f.orch.Resync(ctx))
	assert.Len(t, f.orch.Nodes(), 3)
	assert.Len(t, f.orch.Links(), 2)
}

func TestDanglingFact(t *testing.T) {
	var dangling []domain.Fact
	f := newFixture(t, runtime.WithLifecycleHooks(domain.LifecycleHooks{
		OnDanglingFact: func(ctx context.Context, e *domain.DanglingEvent) { dangling = append(dangling, e.Fact) },
	}))
	ctx := context.Background()
	require.NoError(t, f.store.Put(ctx, fact("a", "likes", "ghost")))

	require.NoError(t, f.orch.AddNodes(ctx, domain.NodeInput{Hash: "a"}))

	assert.Empty(t, f.orch.Links())
	require.Len(t, dangling, 1)
	assert.Equal(t, "ghost", dangling[0].Object.Hash)
}

func TestMarkers_OncePerColor(t *testing.T) {
	assets := &countingAssets{}
	colors := map[string]string{"likes": "red", "hates": "blue"}
	f := newFixture(t,
		runtime.WithAssetFactory(assets),
		runtime.WithColorFunc(func(p domain.Predicate) string { return colors[p.Type] }),
	)
	ctx := context.Background()

	require.NoError(t, f.orch.AddTriplet(ctx, fact("a", "likes", "b")))
	require.NoError(t, f.orch.AddTriplet(ctx, fact("b", "likes", "c")))
	require.NoError(t, f.orch.AddTriplet(ctx, fact("c", "hates", "a")))
	_ = f.orch.AddTriplet(ctx, fact("c", "hates", "a"))

	assert.Equal(t, []string{"red", "blue"}, assets.colors)
	assert.Equal(t, "red", f.orch.Links()[0].Color)
	assert.Equal(t, "blue", f.orch.Links()[2].Color)
}

func TestMarkers_FailureRetried(t *testing.T) {
	assets := &countingAssets{fail: true}
	f := newFixture(t, runtime.WithAssetFactory(assets))
	ctx := context.Background()

	require.NoError(t, f.orch.AddTriplet(ctx, fact("a", "likes", "b")), "marker failure does not abort ingestion")
	assets.mu.Lock()
	assets.fail = false
	assets.mu.Unlock()
	require.NoError(t, f.orch.AddTriplet(ctx, fact("b", "likes", "c")))

	assert.Equal(t, []string{runtime.DefaultEdgeColor}, assets.colors)
}

func TestUpdatePositions_GenerationGuard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.orch.AddTriplet(ctx, fact("a", "likes", "b")))
	gen := f.orch.Snapshot().Generation

	assert.True(t, f.orch.UpdatePositions(ctx, gen, []domain.Position{{Hash: "b", X: 10, Y: 20}}))
	assert.False(t, f.orch.UpdatePositions(ctx, gen-1, []domain.Position{{Hash: "b", X: 99, Y: 99}}))

	nodes := f.orch.Nodes()
	assert.Equal(t, 10.0, nodes[1].X)
	assert.Equal(t, 20.0, nodes[1].Y)

	// positions survive the next cycle
	require.NoError(t, f.orch.AddNodes(ctx, domain.NodeInput{Hash: "c"}))
	assert.Equal(t, 10.0, f.orch.Nodes()[1].X)
	assert.False(t, f.orch.UpdatePositions(ctx, gen, nil), "older generation after a new cycle")
}

func TestRecenter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.orch.AddNodes(ctx,
		domain.NodeInput{Hash: "a", X: ptr(100), Y: ptr(100)},
		domain.NodeInput{Hash: "b", X: ptr(200), Y: ptr(100)},
	))

	f.orch.Recenter()
	nodes := f.orch.Nodes()
	assert.InDelta(t, 450.0, (nodes[0].X+nodes[1].X)/2, 1e-9)
	assert.InDelta(t, 300.0, nodes[0].Y, 1e-9)
	assert.InDelta(t, 100.0, nodes[1].X-nodes[0].X, 1e-9, "relative layout preserved")
}

func TestLayoutOptions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.orch.AddNodes(ctx, domain.NodeInput{Hash: "a"}))

	require.NoError(t, f.orch.SetFlowDirection(ctx, domain.FlowRight))
	require.NoError(t, f.orch.SetEdgeLength(ctx, 80))
	opts := f.orch.Options()
	assert.Equal(t, domain.FlowRight, opts.FlowDirection)
	assert.Equal(t, 80.0, opts.EdgeLength)
	assert.Equal(t, opts, f.solver.last().Options)

	assert.ErrorIs(t, f.orch.SetFlowDirection(ctx, "z"), domain.ErrValidation)
	assert.ErrorIs(t, f.orch.SetEdgeLength(ctx, 0), domain.ErrValidation)
	assert.Equal(t, domain.FlowRight, f.orch.Options().FlowDirection)

	f.log.reset()
	require.NoError(t, f.orch.Restart(ctx))
	assert.Equal(t, []string{"stop", "structural:restart", "reprojected:restart", "restart"}, f.log.list())
}

func TestSaveAndRestoreGraph(t *testing.T) {
	ctx := context.Background()
	src := newFixture(t)
	require.NoError(t, src.orch.AddNodes(ctx, domain.NodeInput{Hash: "a", X: ptr(5), Y: ptr(6)}))
	require.NoError(t, src.orch.AddTriplet(ctx, fact("a", "likes", "b")))
	require.NoError(t, src.orch.AddTriplet(ctx, fact("b", "knows", "c")))

	saved, err := src.orch.SaveGraph(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.SavedTriplet{
		{Subject: "a", Predicate: "likes", Object: "b"},
		{Subject: "b", Predicate: "knows", Object: "c"},
	}, saved.Triplets)
	require.Len(t, saved.Nodes, 3)
	assert.Equal(t, domain.SavedNode{Hash: "a", X: 5, Y: 6}, saved.Nodes[0])

	dst := newFixture(t)
	require.NoError(t, dst.orch.AddTriplet(ctx, fact("a", "likes", "b")))
	require.NoError(t, dst.orch.RestoreGraph(ctx, saved), "existing triplets are skipped")

	assert.Equal(t, 2, dst.store.Len())
	assert.Len(t, dst.orch.Nodes(), 3)
	assert.Len(t, dst.orch.Links(), 2)
}

func TestSaveGraph_StoreError(t *testing.T) {
	f := newFixture(t)
	f.store.set(func(s *flakyStore) { s.failScan = true })
	_, err := f.orch.SaveGraph(context.Background())
	assert.ErrorIs(t, err, domain.ErrStore)
}

func TestClosed(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.orch.Close())
	ctx := context.Background()

	assert.ErrorIs(t, f.orch.AddTriplet(ctx, fact("a", "likes", "b")), domain.ErrClosed)
	assert.ErrorIs(t, f.orch.AddNodes(ctx, domain.NodeInput{Hash: "a"}), domain.ErrClosed)
	_, err := f.orch.MergeIntoGroup(ctx, "a", "b")
	assert.ErrorIs(t, err, domain.ErrClosed)
	assert.ErrorIs(t, f.orch.Restart(ctx), domain.ErrClosed)
}

func TestNew_InvalidOptions(t *testing.T) {
	opts := domain.DefaultLayoutOptions()
	opts.Width = 0
	_, err := runtime.New(newFlakyStore(), runtime.WithLayoutOptions(opts))
	assert.True(t, errors.Is(err, domain.ErrValidation))
}

func TestSnapshot_IsACopy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.orch.AddTriplet(ctx, fact("a", "likes", "b")))

	snap := f.orch.Snapshot()
	snap.Nodes[0].Hash = "mutated"
	snap.Links[0].Source = "mutated"

	assert.Equal(t, "a", f.orch.Nodes()[0].Hash)
	assert.Equal(t, "a", f.orch.Links()[0].Source)
}

// finishes fails the test when fn blocks for longer than a second.
func finishes(t *testing.T, fn func() error) error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- fn() }()
	select {
	case err := <-done:
		return err
	case <-time.After(time.Second):
		t.Fatal("operation deadlocked")
		return nil
	}
}

func TestCycle_HooksMayReadTheCache(t *testing.T) {
	var f *fixture
	var sawA, sawB bool
	var dangling []string
	f = newFixture(t, runtime.WithLifecycleHooks(domain.LifecycleHooks{
		OnStructuralChange: func(ctx context.Context, e *domain.CycleEvent) {
			sawA = f.orch.HasNode("a")
			_ = f.orch.Options()
		},
		OnReprojected: func(ctx context.Context, e *domain.CycleEvent) {
			sawB = f.orch.HasNode("b")
		},
		OnDanglingFact: func(ctx context.Context, e *domain.DanglingEvent) {
			dangling = append(dangling, e.Fact.Object.Hash)
			_ = f.orch.HasNode(e.Fact.Object.Hash)
		},
	}))
	ctx := context.Background()

	require.NoError(t, finishes(t, func() error { return f.orch.AddTriplet(ctx, fact("a", "likes", "b")) }))
	assert.False(t, sawA, "structural change fires before the mutation")
	assert.True(t, sawB, "reprojected fires after it")

	require.NoError(t, f.store.Put(ctx, fact("a", "likes", "ghost")))
	require.NoError(t, finishes(t, func() error { return f.orch.Restart(ctx) }))
	assert.Equal(t, []string{"ghost"}, dangling)
}

func TestReject_HookMayRetry(t *testing.T) {
	var f *fixture
	var retries int
	f = newFixture(t, runtime.WithLifecycleHooks(domain.LifecycleHooks{
		OnRejected: func(ctx context.Context, e *domain.RejectEvent) {
			if retries == 0 {
				retries++
				_ = f.orch.AddTriplet(ctx, fact("a", "likes", "b"))
				_ = f.orch.RemoveNode(ctx, "missing", nil)
			}
		},
	}))
	ctx := context.Background()
	require.NoError(t, f.orch.AddTriplet(ctx, fact("a", "likes", "b")))

	err := finishes(t, func() error { return f.orch.AddTriplet(ctx, fact("a", "likes", "b")) })
	assert.ErrorIs(t, err, domain.ErrDuplicateFact)
	assert.Equal(t, 1, retries)

	err = finishes(t, func() error {
		return f.orch.RemoveNode(ctx, "a", func() { _ = f.orch.RemoveNode(ctx, "a", nil) })
	})
	require.NoError(t, err)
	assert.False(t, f.orch.HasNode("a"))
}

func TestMergeIntoGroup_RepeatRunsNoCycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.orch.AddNodes(ctx, domain.NodeInput{Hash: "a"}, domain.NodeInput{Hash: "b"}))

	id, err := f.orch.MergeIntoGroup(ctx, "a", "b")
	require.NoError(t, err)
	f.log.reset()

	again, err := f.orch.MergeIntoGroup(ctx, "b", "a")
	require.NoError(t, err)
	assert.Equal(t, id, again)
	assert.Empty(t, f.log.list())
	assert.Len(t, f.orch.Groups(), 1)
}

func TestAddTriplet_RejectsControlCharacters(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	for _, in := range []domain.Fact{fact("a\x1fb", "c", "d"), fact("a", "b\x1fc", "d"), fact("a", "b", "c\x00")} {
		assert.ErrorIs(t, f.orch.AddTriplet(ctx, in), domain.ErrValidation)
	}
	assert.Zero(t, f.store.Len())
	assert.Empty(t, f.orch.Nodes())
}
