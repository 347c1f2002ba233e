package runtime_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/aretw0/netviz/internal/runtime"
	"github.com/aretw0/netviz/pkg/adapters/memory"
	"github.com/aretw0/netviz/pkg/domain"
	"github.com/stretchr/testify/require"
)

var errDisk = errors.New("disk gone")

// flakyStore is a memory store whose operations can be made to fail.
type flakyStore struct {
	*memory.Store

	mu         sync.Mutex
	failGet    bool // pattern gets
	failScan   bool // unfiltered gets
	failPut    bool
	failDelete bool
}

func newFlakyStore() *flakyStore {
	return &flakyStore{Store: memory.NewStore()}
}

func (f *flakyStore) set(fn func(f *flakyStore)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *flakyStore) Get(ctx context.Context, p domain.Pattern) ([]domain.Fact, error) {
	f.mu.Lock()
	fail := (p.IsZero() && f.failScan) || (!p.IsZero() && f.failGet)
	f.mu.Unlock()
	if fail {
		return nil, errDisk
	}
	return f.Store.Get(ctx, p)
}

func (f *flakyStore) Put(ctx context.Context, facts ...domain.Fact) error {
	f.mu.Lock()
	fail := f.failPut
	f.mu.Unlock()
	if fail {
		return errDisk
	}
	return f.Store.Put(ctx, facts...)
}

func (f *flakyStore) Delete(ctx context.Context, facts ...domain.Fact) error {
	f.mu.Lock()
	fail := f.failDelete
	f.mu.Unlock()
	if fail {
		return errDisk
	}
	return f.Store.Delete(ctx, facts...)
}

// trace records solver calls and hook invocations in one ordered log.
type trace struct {
	mu     sync.Mutex
	events []string
}

func (t *trace) add(e string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, e)
}

func (t *trace) list() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.events...)
}

func (t *trace) reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = nil
}

type fakeSolver struct {
	log   *trace
	mu    sync.Mutex
	snaps []domain.Snapshot
}

func (s *fakeSolver) Stop() { s.log.add("stop") }

func (s *fakeSolver) Restart(ctx context.Context, snap domain.Snapshot) error {
	s.mu.Lock()
	s.snaps = append(s.snaps, snap)
	s.mu.Unlock()
	s.log.add("restart")
	return nil
}

func (s *fakeSolver) last() domain.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snaps[len(s.snaps)-1]
}

type countingAssets struct {
	mu     sync.Mutex
	colors []string
	fail   bool
}

func (a *countingAssets) CreateMarker(ctx context.Context, color string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.fail {
		return errors.New("no canvas")
	}
	a.colors = append(a.colors, color)
	return nil
}

type fixture struct {
	store  *flakyStore
	log    *trace
	solver *fakeSolver
	orch   *runtime.Orchestrator
}

func newFixture(t *testing.T, opts ...runtime.Option) *fixture {
	t.Helper()
	log := &trace{}
	f := &fixture{
		store:  newFlakyStore(),
		log:    log,
		solver: &fakeSolver{log: log},
	}
	hooks := domain.LifecycleHooks{
		OnStructuralChange: func(ctx context.Context, e *domain.CycleEvent) { log.add("structural:" + e.Op) },
		OnReprojected:      func(ctx context.Context, e *domain.CycleEvent) { log.add("reprojected:" + e.Op) },
	}
	all := append([]runtime.Option{runtime.WithSolver(f.solver), runtime.WithLifecycleHooks(hooks)}, opts...)
	orch, err := runtime.New(f.store, all...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = orch.Close() })
	f.orch = orch
	return f
}

func fact(s, p, o string) domain.Fact {
	return domain.NewFact(s, p, o)
}

func ptr(v float64) *float64 { return &v }
