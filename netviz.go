package netviz

import (
	"context"
	"log/slog"
	"time"

	"github.com/aretw0/netviz/internal/layout"
	"github.com/aretw0/netviz/internal/logging"
	"github.com/aretw0/netviz/internal/runtime"
	"github.com/aretw0/netviz/pkg/adapters/memory"
	"github.com/aretw0/netviz/pkg/domain"
	"github.com/aretw0/netviz/pkg/lock"
	"github.com/aretw0/netviz/pkg/ports"
	"go.opentelemetry.io/otel/trace"
)

// EdgeColorFunc resolves the color of an edge from its predicate.
type EdgeColorFunc func(domain.Predicate) string

// ColorsFromMap returns an EdgeColorFunc that looks the predicate type up in colors.
// A string "color" field on the predicate wins over the map; unknown types get fallback.
func ColorsFromMap(colors map[string]string, fallback string) EdgeColorFunc {
	if fallback == "" {
		fallback = runtime.DefaultEdgeColor
	}
	return func(p domain.Predicate) string {
		if c, ok := p.Data["color"].(string); ok && c != "" {
			return c
		}
		if c, ok := colors[p.Type]; ok && c != "" {
			return c
		}
		return fallback
	}
}

// Graph is the high-level entry point: one independent graph instance over one
// triplet store.
type Graph struct {
	orch   *runtime.Orchestrator
	solver *layout.Solver
	store  ports.TripletStore

	hooks      domain.LifecycleHooks
	logger     *slog.Logger
	tracer     trace.Tracer
	locker     ports.DistributedLocker
	lockTTL    time.Duration
	layoutOpts *domain.LayoutOptions
	color      EdgeColorFunc
	assets     ports.AssetFactory
	solverOpts []layout.Option
	noLayout   bool
}

// Option defines a functional option for configuring the Graph.
type Option func(*Graph)

// WithStore sets the triplet store. The default is an in-memory store.
func WithStore(store ports.TripletStore) Option {
	return func(g *Graph) {
		g.store = store
	}
}

// WithLocker serializes fact and node keys across processes as well.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(g *Graph) {
		g.locker = locker
	}
}

// WithLockTTL sets the expiry of distributed locks.
func WithLockTTL(ttl time.Duration) Option {
	return func(g *Graph) {
		g.lockTTL = ttl
	}
}

// WithLifecycleHooks registers observability hooks. Multiple calls are merged.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(g *Graph) {
		g.hooks = g.hooks.Merge(hooks)
	}
}

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Graph) {
		g.logger = logger
	}
}

// WithTracer sets the OpenTelemetry tracer. The default is the global provider's.
func WithTracer(tracer trace.Tracer) Option {
	return func(g *Graph) {
		g.tracer = tracer
	}
}

// WithLayoutOptions sets the layout area and solver options.
func WithLayoutOptions(opts domain.LayoutOptions) Option {
	return func(g *Graph) {
		g.layoutOpts = &opts
	}
}

// WithEdgeColors colors edges by predicate type.
func WithEdgeColors(colors map[string]string, fallback string) Option {
	return func(g *Graph) {
		g.color = ColorsFromMap(colors, fallback)
	}
}

// WithEdgeColorFunc sets a custom edge color resolver.
func WithEdgeColorFunc(fn EdgeColorFunc) Option {
	return func(g *Graph) {
		g.color = fn
	}
}

// WithAssetFactory receives one CreateMarker call per distinct edge color.
func WithAssetFactory(assets ports.AssetFactory) Option {
	return func(g *Graph) {
		g.assets = assets
	}
}

// WithSolverTiming tunes the built-in layout solver.
func WithSolverTiming(interval time.Duration, maxTicks int) Option {
	return func(g *Graph) {
		g.solverOpts = append(g.solverOpts, layout.WithInterval(interval), layout.WithMaxTicks(maxTicks))
	}
}

// WithSolverThreshold sets the largest per-tick displacement at which the
// built-in solver counts as converged.
func WithSolverThreshold(threshold float64) Option {
	return func(g *Graph) {
		g.solverOpts = append(g.solverOpts, layout.WithThreshold(threshold))
	}
}

// WithoutLayout disables the built-in layout solver; positions only change through
// UpdatePositions.
func WithoutLayout() Option {
	return func(g *Graph) {
		g.noLayout = true
	}
}

// New creates a Graph. The visual cache starts empty; call Resync to project facts
// already present in a durable store.
func New(opts ...Option) (*Graph, error) {
	g := &Graph{}
	for _, opt := range opts {
		opt(g)
	}
	if g.store == nil {
		g.store = memory.NewStore()
	}
	if g.logger == nil {
		g.logger = logging.NewNop()
	}

	lockOpts := []lock.Option{lock.WithLogger(g.logger)}
	if g.locker != nil {
		lockOpts = append(lockOpts, lock.WithLocker(g.locker))
	}
	if g.lockTTL > 0 {
		lockOpts = append(lockOpts, lock.WithTTL(g.lockTTL))
	}

	runtimeOpts := []runtime.Option{
		runtime.WithLockManager(lock.NewManager(lockOpts...)),
		runtime.WithLifecycleHooks(g.hooks),
		runtime.WithLogger(g.logger),
		runtime.WithTracer(g.tracer),
		runtime.WithAssetFactory(g.assets),
	}
	if g.layoutOpts != nil {
		runtimeOpts = append(runtimeOpts, runtime.WithLayoutOptions(*g.layoutOpts))
	}
	if g.color != nil {
		runtimeOpts = append(runtimeOpts, runtime.WithColorFunc(func(p domain.Predicate) string { return g.color(p) }))
	}
	if !g.noLayout {
		solverOpts := append([]layout.Option{
			layout.WithLifecycleHooks(g.hooks),
			layout.WithLogger(g.logger),
		}, g.solverOpts...)
		g.solver = layout.New(solverOpts...)
		runtimeOpts = append(runtimeOpts, runtime.WithSolver(g.solver))
	}

	orch, err := runtime.New(g.store, runtimeOpts...)
	if err != nil {
		return nil, err
	}
	g.orch = orch
	if g.solver != nil {
		g.solver.SetSink(orch)
	}
	return g, nil
}

// Store returns the underlying triplet store.
func (g *Graph) Store() ports.TripletStore { return g.store }

// AddNode registers one or more nodes. Inputs without a hash are reported in the
// returned error; the others are still added. Known hashes are skipped.
func (g *Graph) AddNode(ctx context.Context, nodes ...domain.NodeInput) error {
	return g.orch.AddNodes(ctx, nodes...)
}

// AddTriplet persists a fact and registers both endpoints.
// A fact already in the store fails with domain.ErrDuplicateFact.
func (g *Graph) AddTriplet(ctx context.Context, fact domain.Fact) error {
	return g.orch.AddTriplet(ctx, fact)
}

// AddEdge persists a fact between two registered nodes. If either endpoint is not
// registered the call does nothing and returns nil.
func (g *Graph) AddEdge(ctx context.Context, fact domain.Fact) error {
	return g.orch.AddEdge(ctx, fact)
}

// RemoveNode deletes every fact that references hash, then the node itself.
// onDone may be nil.
func (g *Graph) RemoveNode(ctx context.Context, hash string, onDone func()) error {
	return g.orch.RemoveNode(ctx, hash, onDone)
}

// MergeIntoGroup moves member into anchor's group and returns the group id.
func (g *Graph) MergeIntoGroup(ctx context.Context, anchor, member string) (string, error) {
	return g.orch.MergeIntoGroup(ctx, anchor, member)
}

// HasNode reports whether hash is a registered node.
func (g *Graph) HasNode(hash string) bool { return g.orch.HasNode(hash) }

// SaveGraph serializes stored facts and node positions.
func (g *Graph) SaveGraph(ctx context.Context) (*domain.SavedGraph, error) {
	return g.orch.SaveGraph(ctx)
}

// RestoreGraph replays a saved graph; facts already stored are skipped.
func (g *Graph) RestoreGraph(ctx context.Context, saved *domain.SavedGraph) error {
	return g.orch.RestoreGraph(ctx, saved)
}

// Resync reloads the visual cache from the store.
func (g *Graph) Resync(ctx context.Context) error { return g.orch.Resync(ctx) }

// NeedsResync reports whether a store failure left the cache behind the store.
func (g *Graph) NeedsResync() bool { return g.orch.NeedsResync() }

// Restart re-runs layout from the current positions.
func (g *Graph) Restart(ctx context.Context) error { return g.orch.Restart(ctx) }

// Recenter moves the drawing to the middle of the layout area.
func (g *Graph) Recenter() { g.orch.Recenter() }

// SetFlowDirection switches the flow axis to "x" or "y".
func (g *Graph) SetFlowDirection(ctx context.Context, dir string) error {
	return g.orch.SetFlowDirection(ctx, dir)
}

// SetEdgeLength changes the ideal link length.
func (g *Graph) SetEdgeLength(ctx context.Context, length float64) error {
	return g.orch.SetEdgeLength(ctx, length)
}

// SetLayoutOptions replaces all layout options and restarts layout.
func (g *Graph) SetLayoutOptions(ctx context.Context, opts domain.LayoutOptions) error {
	return g.orch.SetLayoutOptions(ctx, opts)
}

// LayoutOptions returns the current layout options.
func (g *Graph) LayoutOptions() domain.LayoutOptions { return g.orch.Options() }

// UpdatePositions accepts positions from an external solver for the given generation.
func (g *Graph) UpdatePositions(ctx context.Context, generation uint64, positions []domain.Position) bool {
	return g.orch.UpdatePositions(ctx, generation, positions)
}

// Snapshot returns a copy of the current nodes, links and groups.
func (g *Graph) Snapshot() domain.Snapshot { return g.orch.Snapshot() }

// Nodes, Links and Groups read the last published snapshot.
func (g *Graph) Nodes() []domain.Node   { return g.orch.Nodes() }
func (g *Graph) Links() []domain.Edge   { return g.orch.Links() }
func (g *Graph) Groups() []domain.Group { return g.orch.Groups() }

// Close stops the layout solver. The store is left open; it belongs to the caller.
func (g *Graph) Close() error {
	return g.orch.Close()
}
