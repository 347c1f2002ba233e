package runtime

import (
	"context"
	"time"

	"github.com/aretw0/netviz/internal/projector"
	"github.com/aretw0/netviz/pkg/domain"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// cycle runs one Suspended -> Mutating -> Reprojecting -> Restarting pass.
//
// check runs under mu before the solver is touched; returning false (with or without an
// error) aborts the cycle with no hook fired. mutate may only change the registry and
// the partition. Cycles are serialized by cycleMu; mu is held only while the cache is
// read or changed, never while a hook runs. The caller must hold neither.
func (o *Orchestrator) cycle(ctx context.Context, op string, check func() (bool, error), mutate func()) error {
	o.cycleMu.Lock()
	defer o.cycleMu.Unlock()

	if check != nil {
		o.mu.Lock()
		ok, err := check()
		o.mu.Unlock()
		if !ok {
			return err
		}
	}

	cycleID := uuid.NewString()
	ctx, span := o.tracer.Start(ctx, "netviz.cycle", trace.WithAttributes(
		attribute.String("netviz.op", op),
		attribute.String("netviz.cycle_id", cycleID),
	))
	defer span.End()

	// Suspended: no solver goroutine reads the previous snapshot past this point.
	o.solver.Stop()
	o.mu.Lock()
	o.syncPositions()
	before := o.cycleEvent(domain.EventStructuralChange, op, cycleID)
	o.mu.Unlock()
	o.emit(ctx, o.hooks.OnStructuralChange, before)

	o.mu.Lock()
	if mutate != nil {
		mutate()
	}
	dangling, projErr := o.reproject(ctx, cycleID)
	snap := o.publish()
	after := o.cycleEvent(domain.EventReprojected, op, cycleID)
	o.mu.Unlock()

	if projErr != nil {
		span.RecordError(projErr)
		span.SetStatus(codes.Error, "reprojection failed")
	}
	if o.hooks.OnDanglingFact != nil {
		for _, f := range dangling {
			o.hooks.OnDanglingFact(ctx, &domain.DanglingEvent{
				EventBase: o.base(domain.EventDanglingFact, cycleID),
				Fact:      f,
			})
		}
	}
	o.emit(ctx, o.hooks.OnReprojected, after)

	if err := o.solver.Restart(ctx, snap); err != nil {
		o.logger.Warn("Layout restart failed", "op", op, "cycle_id", cycleID, "err", err)
	}

	o.logger.Debug("Cycle complete",
		"op", op,
		"cycle_id", cycleID,
		"generation", snap.Generation,
		"nodes", len(snap.Nodes),
		"links", len(snap.Links),
		"groups", len(snap.Groups),
	)
	return projErr
}

// reproject replaces the link list from a full store scan and returns the facts that
// did not resolve. When the scan fails the last good fact set is projected against the
// current registry instead, so links never point at removed nodes, and the graph is
// marked for resync. Must hold mu.
func (o *Orchestrator) reproject(ctx context.Context, cycleID string) ([]domain.Fact, error) {
	facts, err := o.projector.Scan(ctx)
	if err != nil {
		o.needsResync.Store(true)
		o.links = projector.Project(o.lastFacts, o.registry, o.color).Edges
		return nil, err
	}

	if o.needsResync.Load() {
		for _, f := range facts {
			o.registry.AddRef(f.Subject)
			o.registry.AddRef(f.Object)
		}
		o.needsResync.Store(false)
	}
	o.lastFacts = facts

	res := projector.Project(facts, o.registry, o.color)
	o.links = res.Edges
	for _, f := range res.Dangling {
		k := f.Key()
		o.logger.Warn("Dangling fact skipped",
			"subject", k.Subject,
			"predicate", k.Predicate,
			"object", k.Object,
			"cycle_id", cycleID,
		)
	}
	return res.Dangling, nil
}

// publish bumps the generation and swaps in a fresh snapshot. Must hold mu.
func (o *Orchestrator) publish() domain.Snapshot {
	o.generation++
	snap := domain.Snapshot{
		Generation: o.generation,
		Nodes:      o.registry.Nodes(),
		Links:      append([]domain.Edge(nil), o.links...),
		Groups:     o.partition.Groups(o.registry),
		Options:    o.opts,
	}

	o.posMu.Lock()
	stored := snap
	o.snapshot.Store(&stored)
	o.posMu.Unlock()
	return snap
}

// syncPositions copies solver positions from the current snapshot back into the
// registry. Must hold mu with the solver stopped.
func (o *Orchestrator) syncPositions() {
	cur := o.snapshot.Load()
	if cur == nil {
		return
	}
	for _, n := range cur.Nodes {
		o.registry.SetPosition(n.Hash, n.X, n.Y)
	}
}

// cycleEvent captures the cache sizes for a hook. Must hold mu.
func (o *Orchestrator) cycleEvent(typ domain.EventType, op, cycleID string) *domain.CycleEvent {
	return &domain.CycleEvent{
		EventBase:  o.base(typ, cycleID),
		Op:         op,
		Generation: o.generation,
		Nodes:      o.registry.Len(),
		Links:      len(o.links),
		Groups:     o.partition.Len(),
	}
}

func (o *Orchestrator) emit(ctx context.Context, hook func(context.Context, *domain.CycleEvent), e *domain.CycleEvent) {
	if hook != nil {
		hook(ctx, e)
	}
}

func (o *Orchestrator) base(typ domain.EventType, cycleID string) domain.EventBase {
	return domain.EventBase{Timestamp: time.Now(), Type: typ, CycleID: cycleID}
}

// reject logs, traces and reports an aborted operation, and returns it as an OpError.
// Callers must have released every lock, since OnRejected may retry the operation.
func (o *Orchestrator) reject(ctx context.Context, op string, kind error, key string, cause error) error {
	err := domain.NewOpError(op, kind, key, cause)
	o.logger.Warn("Operation rejected", "op", op, "key", key, "err", err)

	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
	span.SetStatus(codes.Error, kind.Error())

	if o.hooks.OnRejected != nil {
		o.hooks.OnRejected(ctx, &domain.RejectEvent{
			EventBase: o.base(domain.EventRejected, ""),
			Op:        op,
			Key:       key,
			Err:       err,
		})
	}
	return err
}

// ensureMarker asks the asset factory for a marker the first time a color is seen.
// A failed request is logged and retried on the next fact with that color.
func (o *Orchestrator) ensureMarker(ctx context.Context, color string) {
	if o.assets == nil || color == "" {
		return
	}
	o.colorMu.Lock()
	defer o.colorMu.Unlock()
	if _, seen := o.colors[color]; seen {
		return
	}
	if err := o.assets.CreateMarker(ctx, color); err != nil {
		o.logger.Warn("Marker creation failed", "color", color, "err", err)
		return
	}
	o.colors[color] = struct{}{}
}
