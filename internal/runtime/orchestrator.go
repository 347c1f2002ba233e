package runtime

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"

	"github.com/aretw0/netviz/internal/groups"
	"github.com/aretw0/netviz/internal/logging"
	"github.com/aretw0/netviz/internal/projector"
	"github.com/aretw0/netviz/internal/registry"
	"github.com/aretw0/netviz/pkg/domain"
	"github.com/aretw0/netviz/pkg/lock"
	"github.com/aretw0/netviz/pkg/ports"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// DefaultEdgeColor is used when no color function is configured.
const DefaultEdgeColor = "black"

const tracerName = "github.com/aretw0/netviz/internal/runtime"

// Orchestrator owns the derived visual cache (nodes, links, groups) and sequences every
// mutation against the triplet store and the layout solver.
//
// Lock order: per-key locks from the lock manager, then cycleMu, then mu, then posMu.
// Hooks run with only the per-key locks and cycleMu held, so they may read the graph.
type Orchestrator struct {
	store     ports.TripletStore
	projector *projector.Projector
	locks     *lock.Manager
	solver    ports.LayoutSolver
	assets    ports.AssetFactory
	color     projector.ColorFunc
	hooks     domain.LifecycleHooks
	logger    *slog.Logger
	tracer    trace.Tracer

	cycleMu sync.Mutex

	mu         sync.Mutex
	registry   *registry.Registry
	partition  groups.Partition
	links      []domain.Edge
	lastFacts  []domain.Fact
	opts       domain.LayoutOptions
	generation uint64

	colorMu sync.Mutex
	colors  map[string]struct{}

	posMu    sync.Mutex
	snapshot atomic.Pointer[domain.Snapshot]

	needsResync atomic.Bool
	closed      atomic.Bool
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLockManager shares a lock manager, e.g. one backed by a distributed locker.
func WithLockManager(m *lock.Manager) Option {
	return func(o *Orchestrator) {
		if m != nil {
			o.locks = m
		}
	}
}

// WithSolver sets the layout solver that is stopped and restarted around each cycle.
func WithSolver(s ports.LayoutSolver) Option {
	return func(o *Orchestrator) {
		if s != nil {
			o.solver = s
		}
	}
}

// WithAssetFactory sets the factory asked for one marker per distinct edge color.
func WithAssetFactory(a ports.AssetFactory) Option {
	return func(o *Orchestrator) {
		o.assets = a
	}
}

// WithColorFunc sets how a predicate resolves to an edge color.
func WithColorFunc(fn projector.ColorFunc) Option {
	return func(o *Orchestrator) {
		if fn != nil {
			o.color = fn
		}
	}
}

// WithLayoutOptions sets the initial layout area and solver options.
func WithLayoutOptions(opts domain.LayoutOptions) Option {
	return func(o *Orchestrator) {
		o.opts = opts
	}
}

// WithLifecycleHooks registers lifecycle hooks. Multiple calls are merged.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(o *Orchestrator) {
		o.hooks = o.hooks.Merge(hooks)
	}
}

// WithLogger sets the logger for rejections, dangling facts and cycle summaries.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithTracer sets the tracer that spans every operation and cycle.
func WithTracer(tracer trace.Tracer) Option {
	return func(o *Orchestrator) {
		if tracer != nil {
			o.tracer = tracer
		}
	}
}

type nopSolver struct{}

func (nopSolver) Stop()                                          {}
func (nopSolver) Restart(context.Context, domain.Snapshot) error { return nil }

// New creates an orchestrator over store. The visual cache starts empty; call Resync
// to project facts already present in a durable store.
func New(store ports.TripletStore, opts ...Option) (*Orchestrator, error) {
	o := &Orchestrator{
		store:  store,
		locks:  lock.NewManager(),
		solver: nopSolver{},
		color:  func(domain.Predicate) string { return DefaultEdgeColor },
		logger: logging.NewNop(),
		tracer: otel.Tracer(tracerName),
		opts:   domain.DefaultLayoutOptions(),
		colors: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}
	if err := o.opts.Validate(); err != nil {
		return nil, err
	}
	o.projector = projector.New(store)
	o.registry = registry.New(o.opts)
	o.snapshot.Store(&domain.Snapshot{Options: o.opts})
	return o, nil
}

// Close stops the solver. Later operations fail with domain.ErrClosed.
func (o *Orchestrator) Close() error {
	if o.closed.Swap(true) {
		return nil
	}
	o.solver.Stop()
	return nil
}

// NeedsResync reports whether a store failure left the cache possibly divergent.
func (o *Orchestrator) NeedsResync() bool {
	return o.needsResync.Load()
}

// HasNode reports whether hash is registered.
func (o *Orchestrator) HasNode(hash string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.registry.Has(hash)
}

// Options returns the current layout options.
func (o *Orchestrator) Options() domain.LayoutOptions {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.opts
}

// Snapshot returns a copy of the last published snapshot, including the latest
// solver positions.
func (o *Orchestrator) Snapshot() domain.Snapshot {
	return cloneSnapshot(*o.snapshot.Load())
}

// Nodes, Links and Groups read the last published snapshot.
func (o *Orchestrator) Nodes() []domain.Node   { return o.Snapshot().Nodes }
func (o *Orchestrator) Links() []domain.Edge   { return o.Snapshot().Links }
func (o *Orchestrator) Groups() []domain.Group { return o.Snapshot().Groups }

// UpdatePositions implements ports.PositionSink. Positions computed for an older
// generation are dropped and false is returned.
func (o *Orchestrator) UpdatePositions(ctx context.Context, generation uint64, positions []domain.Position) bool {
	o.posMu.Lock()
	defer o.posMu.Unlock()

	cur := o.snapshot.Load()
	if cur == nil || cur.Generation != generation {
		return false
	}
	next := *cur
	next.Nodes = make([]domain.Node, len(cur.Nodes))
	copy(next.Nodes, cur.Nodes)

	var byHash map[string]int
	for i, p := range positions {
		j := i
		if j >= len(next.Nodes) || next.Nodes[j].Hash != p.Hash {
			if byHash == nil {
				byHash = make(map[string]int, len(next.Nodes))
				for k, n := range next.Nodes {
					byHash[n.Hash] = k
				}
			}
			var ok bool
			if j, ok = byHash[p.Hash]; !ok {
				continue
			}
		}
		next.Nodes[j].X, next.Nodes[j].Y = p.X, p.Y
	}
	o.snapshot.Store(&next)
	return true
}

// Recenter translates all positions so the bounding box of the nodes is centered
// in the layout area.
func (o *Orchestrator) Recenter() {
	o.posMu.Lock()
	defer o.posMu.Unlock()

	cur := o.snapshot.Load()
	if cur == nil || len(cur.Nodes) == 0 {
		return
	}
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, n := range cur.Nodes {
		minX = math.Min(minX, n.X-n.Width/2)
		maxX = math.Max(maxX, n.X+n.Width/2)
		minY = math.Min(minY, n.Y-n.Height/2)
		maxY = math.Max(maxY, n.Y+n.Height/2)
	}
	cx, cy := cur.Options.Center()
	dx, dy := cx-(minX+maxX)/2, cy-(minY+maxY)/2

	next := *cur
	next.Nodes = make([]domain.Node, len(cur.Nodes))
	for i, n := range cur.Nodes {
		n.X += dx
		n.Y += dy
		next.Nodes[i] = n
	}
	o.snapshot.Store(&next)
}

func cloneSnapshot(s domain.Snapshot) domain.Snapshot {
	out := s
	out.Nodes = make([]domain.Node, len(s.Nodes))
	for i, n := range s.Nodes {
		n.Shortname = append(domain.Label(nil), n.Shortname...)
		out.Nodes[i] = n
	}
	out.Links = make([]domain.Edge, len(s.Links))
	copy(out.Links, s.Links)
	out.Groups = make([]domain.Group, len(s.Groups))
	for i, g := range s.Groups {
		g.Members = append([]string(nil), g.Members...)
		g.Leaves = append([]int(nil), g.Leaves...)
		out.Groups[i] = g
	}
	return out
}
