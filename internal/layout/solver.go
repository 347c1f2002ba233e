package layout

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/netviz/internal/logging"
	"github.com/aretw0/netviz/pkg/domain"
	"github.com/aretw0/netviz/pkg/ports"
	"github.com/google/uuid"
)

const (
	DefaultInterval  = 16 * time.Millisecond
	DefaultMaxTicks  = 300
	DefaultThreshold = 0.5
)

// Solver is an in-process ports.LayoutSolver.
// Each Restart runs one tick loop in its own goroutine; positions are published to the
// sink after every tick, and on convergence one routing pass fires OnLayoutSettled.
// The hook runs after the loop has finished, so it may call back into Stop or Restart.
type Solver struct {
	sink      ports.PositionSink
	hooks     domain.LifecycleHooks
	logger    *slog.Logger
	interval  time.Duration
	maxTicks  int
	threshold float64

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

type Option func(*Solver)

// WithSink sets where positions are published.
func WithSink(sink ports.PositionSink) Option {
	return func(s *Solver) { s.sink = sink }
}

// WithLifecycleHooks sets the hooks fired on convergence.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(s *Solver) { s.hooks = hooks }
}

// WithLogger sets the logger for settle and supersede messages.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Solver) { s.logger = logger }
}

// WithInterval sets the delay between ticks.
func WithInterval(d time.Duration) Option {
	return func(s *Solver) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithMaxTicks bounds a single run.
func WithMaxTicks(n int) Option {
	return func(s *Solver) {
		if n > 0 {
			s.maxTicks = n
		}
	}
}

// WithThreshold sets the displacement under which a run counts as converged.
func WithThreshold(v float64) Option {
	return func(s *Solver) {
		if v > 0 {
			s.threshold = v
		}
	}
}

// New creates a stopped solver.
func New(opts ...Option) *Solver {
	s := &Solver{
		logger:    logging.NewNop(),
		interval:  DefaultInterval,
		maxTicks:  DefaultMaxTicks,
		threshold: DefaultThreshold,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetSink binds the sink after construction. The graph that owns the solver is
// usually also its sink.
func (s *Solver) SetSink(sink ports.PositionSink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sink = sink
}

// Stop halts the running loop and waits for its goroutine to exit.
func (s *Solver) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *Solver) stopLocked() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.cancel, s.done = nil, nil
}

// Restart stops any previous run and starts ticking over snap.
// The loop outlives ctx's deadline but not its cancellation values; it is stopped
// only by Stop or by the next Restart.
func (s *Solver) Restart(ctx context.Context, snap domain.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()

	if len(snap.Nodes) == 0 {
		return nil
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	s.cancel, s.done = cancel, done
	sink := s.sink

	go func() {
		settled := s.run(runCtx, snap, sink)
		close(done)
		if settled != nil && s.hooks.OnLayoutSettled != nil {
			s.hooks.OnLayoutSettled(context.WithoutCancel(runCtx), settled)
		}
	}()
	return nil
}

// run ticks until convergence and returns the settled event, or nil when the run
// was stopped or superseded.
func (s *Solver) run(ctx context.Context, snap domain.Snapshot, sink ports.PositionSink) *domain.LayoutEvent {
	w := newWorld(snap)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	ticks := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		moved := w.tick()
		ticks++
		if sink != nil && !sink.UpdatePositions(ctx, snap.Generation, w.positions()) {
			s.logger.Debug("Layout run superseded", "generation", snap.Generation, "ticks", ticks)
			return nil
		}
		if moved < s.threshold || ticks >= s.maxTicks {
			break
		}
	}

	nodes := make([]domain.Node, len(snap.Nodes))
	copy(nodes, snap.Nodes)
	for i, b := range w.bodies {
		nodes[i].X, nodes[i].Y = b.x, b.y
	}
	routes := Route(nodes, snap.Links)

	s.logger.Debug("Layout settled", "generation", snap.Generation, "ticks", ticks)
	return &domain.LayoutEvent{
		EventBase: domain.EventBase{
			Timestamp: time.Now(),
			Type:      domain.EventLayoutSettled,
			CycleID:   uuid.NewString(),
		},
		Generation: snap.Generation,
		Ticks:      ticks,
		Routes:     routes,
	}
}
