package runtime

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/aretw0/netviz/internal/validator"
	"github.com/aretw0/netviz/pkg/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

func nodeLock(hash string) string       { return "node:" + hash }
func factLock(k domain.FactKey) string { return "fact:" + k.String() }

func describe(k domain.FactKey) string {
	return fmt.Sprintf("%s -%s-> %s", k.Subject, k.Predicate, k.Object)
}

func (o *Orchestrator) start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("netviz.op", op))
	return o.tracer.Start(ctx, "netviz."+op, trace.WithAttributes(attrs...))
}

// AddNodes registers nodes that are not registered yet. Inputs without a hash are
// reported in the returned error; the remaining inputs are still added.
func (o *Orchestrator) AddNodes(ctx context.Context, inputs ...domain.NodeInput) error {
	const op = "addNode"
	ctx, span := o.start(ctx, op, attribute.Int("netviz.count", len(inputs)))
	defer span.End()

	if o.closed.Load() {
		return o.reject(ctx, op, domain.ErrClosed, "", nil)
	}

	var errs []error
	valid := make([]domain.NodeInput, 0, len(inputs))
	for i := range inputs {
		if err := validator.ValidateNode(&inputs[i]); err != nil {
			errs = append(errs, o.reject(ctx, op, domain.ErrValidation, fmt.Sprintf("#%d", i), err))
			continue
		}
		valid = append(valid, inputs[i])
	}
	if len(valid) == 0 {
		return errors.Join(errs...)
	}

	err := o.cycle(ctx, op,
		func() (bool, error) {
			for _, in := range valid {
				if !o.registry.Has(in.Hash) {
					return true, nil
				}
			}
			return false, nil
		},
		func() {
			for _, in := range valid {
				o.registry.Add(in)
			}
		},
	)
	if err != nil {
		errs = append(errs, o.reject(ctx, op, domain.ErrStore, "", err))
	}
	return errors.Join(errs...)
}

// AddTriplet validates and persists a fact, registers both endpoints and runs a cycle.
func (o *Orchestrator) AddTriplet(ctx context.Context, fact domain.Fact) error {
	return o.ingest(ctx, "addTriplet", fact, true)
}

// AddEdge is AddTriplet for facts between registered nodes only. If either endpoint
// is unknown the call does nothing.
func (o *Orchestrator) AddEdge(ctx context.Context, fact domain.Fact) error {
	return o.ingest(ctx, "addEdge", fact, false)
}

func (o *Orchestrator) ingest(ctx context.Context, op string, fact domain.Fact, register bool) error {
	ctx, span := o.start(ctx, op)
	defer span.End()

	if o.closed.Load() {
		return o.reject(ctx, op, domain.ErrClosed, "", nil)
	}
	if err := validator.ValidateFact(&fact); err != nil {
		return o.reject(ctx, op, domain.ErrValidation, "", err)
	}

	key := fact.Key()
	desc := describe(key)
	span.SetAttributes(
		attribute.String("netviz.subject", key.Subject),
		attribute.String("netviz.predicate", key.Predicate),
		attribute.String("netviz.object", key.Object),
	)

	endpointsKnown := func() bool {
		return o.registry.Has(key.Subject) && o.registry.Has(key.Object)
	}

	// Rejections are recorded under the locks and reported once they are released.
	var failKind, failCause error
	keys := []string{factLock(key), nodeLock(key.Subject), nodeLock(key.Object)}
	lockErr := o.locks.WithLocks(ctx, keys, func(ctx context.Context) error {
		if !register {
			o.mu.Lock()
			known := endpointsKnown()
			o.mu.Unlock()
			if !known {
				o.logger.Debug("Edge endpoint not registered, skipping", "key", desc)
				return nil
			}
		}

		existing, err := o.store.Get(ctx, domain.PatternFor(key))
		if err != nil {
			failKind, failCause = domain.ErrStore, err
			return nil
		}
		if len(existing) > 0 {
			failKind = domain.ErrDuplicateFact
			return nil
		}

		o.ensureMarker(ctx, o.color(fact.Predicate))

		if err := o.store.Put(ctx, fact); err != nil {
			o.needsResync.Store(true)
			failKind, failCause = domain.ErrStore, err
			return nil
		}

		err = o.cycle(ctx, op, nil, func() {
			if register {
				o.registry.AddRef(fact.Subject)
				o.registry.AddRef(fact.Object)
			}
		})
		if err != nil {
			failKind, failCause = domain.ErrStore, err
		}
		return nil
	})
	switch {
	case lockErr != nil:
		return o.reject(ctx, op, domain.ErrStore, desc, lockErr)
	case failKind != nil:
		return o.reject(ctx, op, failKind, desc, failCause)
	}
	return nil
}

// RemoveNode deletes every fact referencing hash, then removes the node and runs a
// cycle. onDone, if set, runs after the node is gone and links are reprojected.
func (o *Orchestrator) RemoveNode(ctx context.Context, hash string, onDone func()) error {
	const op = "removeNode"
	ctx, span := o.start(ctx, op, attribute.String("netviz.hash", hash))
	defer span.End()

	if o.closed.Load() {
		return o.reject(ctx, op, domain.ErrClosed, hash, nil)
	}
	if !o.HasNode(hash) {
		return o.reject(ctx, op, domain.ErrNoSuchNode, hash, nil)
	}

	var failKind, failCause error
	lockErr := o.locks.WithLock(ctx, nodeLock(hash), func(ctx context.Context) error {
		// Re-check under the node lock; a concurrent remove may have won.
		if !o.HasNode(hash) {
			failKind = domain.ErrNoSuchNode
			return nil
		}

		var asSubject, asObject []domain.Fact
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			asSubject, err = o.store.Get(gctx, domain.Pattern{Subject: hash})
			return err
		})
		g.Go(func() error {
			var err error
			asObject, err = o.store.Get(gctx, domain.Pattern{Object: hash})
			return err
		})
		if err := g.Wait(); err != nil {
			failKind, failCause = domain.ErrStore, err
			return nil
		}

		if doomed := uniqueFacts(asSubject, asObject); len(doomed) > 0 {
			if err := o.store.Delete(ctx, doomed...); err != nil {
				o.needsResync.Store(true)
				failKind, failCause = domain.ErrStore, err
				return nil
			}
		}

		err := o.cycle(ctx, op,
			func() (bool, error) {
				if !o.registry.Has(hash) {
					return false, domain.ErrNoSuchNode
				}
				return true, nil
			},
			func() {
				_ = o.registry.Remove(hash)
				o.partition.Remove(hash)
			},
		)
		switch {
		case errors.Is(err, domain.ErrNoSuchNode):
			failKind = domain.ErrNoSuchNode
		case err != nil:
			failKind, failCause = domain.ErrStore, err
		}
		return nil
	})
	switch {
	case lockErr != nil:
		return o.reject(ctx, op, domain.ErrStore, hash, lockErr)
	case failKind != nil:
		return o.reject(ctx, op, failKind, hash, failCause)
	}
	if onDone != nil {
		onDone()
	}
	return nil
}

// uniqueFacts concatenates fact lists, dropping repeated keys (self-loops show up
// as both subject and object).
func uniqueFacts(lists ...[]domain.Fact) []domain.Fact {
	seen := make(map[domain.FactKey]struct{})
	var out []domain.Fact
	for _, l := range lists {
		for _, f := range l {
			k := f.Key()
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, f)
		}
	}
	return out
}

// MergeIntoGroup moves member into anchor's group, creating the group if anchor has
// none. It returns the id of the group member ended up in. Merging a member that
// already shares anchor's group runs no cycle.
func (o *Orchestrator) MergeIntoGroup(ctx context.Context, anchor, member string) (string, error) {
	const op = "mergeIntoGroup"
	ctx, span := o.start(ctx, op,
		attribute.String("netviz.anchor", anchor),
		attribute.String("netviz.member", member),
	)
	defer span.End()

	if o.closed.Load() {
		return "", o.reject(ctx, op, domain.ErrClosed, "", nil)
	}

	key := anchor + " <- " + member
	var groupID string
	var checkErr error
	err := o.cycle(ctx, op,
		func() (bool, error) {
			switch {
			case !o.registry.Has(anchor):
				checkErr = fmt.Errorf("anchor %q is not registered", anchor)
				return false, domain.ErrReference
			case !o.registry.Has(member):
				checkErr = fmt.Errorf("member %q is not registered", member)
				return false, domain.ErrReference
			case anchor == member:
				checkErr = fmt.Errorf("cannot merge %q into itself", anchor)
				return false, domain.ErrValidation
			}
			if cell, ok := o.partition.CellOf(anchor); ok {
				if other, _ := o.partition.CellOf(member); other == cell {
					groupID = cell
					return false, nil
				}
			}
			return true, nil
		},
		func() {
			// Both checks above make Merge infallible here.
			groupID, _ = o.partition.Merge(anchor, member)
		},
	)
	switch {
	case checkErr != nil:
		return "", o.reject(ctx, op, err, key, checkErr)
	case err != nil:
		return groupID, o.reject(ctx, op, domain.ErrStore, key, err)
	}
	return groupID, nil
}

// Restart re-runs a full cycle without mutating anything.
func (o *Orchestrator) Restart(ctx context.Context) error {
	const op = "restart"
	ctx, span := o.start(ctx, op)
	defer span.End()

	if o.closed.Load() {
		return o.reject(ctx, op, domain.ErrClosed, "", nil)
	}
	if err := o.cycle(ctx, op, nil, nil); err != nil {
		return o.reject(ctx, op, domain.ErrStore, "", err)
	}
	return nil
}

// Resync re-registers every node referenced by a stored fact and reprojects links.
// It is the recovery path after an ErrStore and the way to load a durable store.
func (o *Orchestrator) Resync(ctx context.Context) error {
	const op = "resync"
	ctx, span := o.start(ctx, op)
	defer span.End()

	if o.closed.Load() {
		return o.reject(ctx, op, domain.ErrClosed, "", nil)
	}
	o.needsResync.Store(true)
	if err := o.cycle(ctx, op, nil, nil); err != nil {
		return o.reject(ctx, op, domain.ErrStore, "", err)
	}
	for _, e := range o.Links() {
		o.ensureMarker(ctx, e.Color)
	}
	return nil
}

// SetLayoutOptions replaces the layout options, re-measures nodes and restarts layout.
func (o *Orchestrator) SetLayoutOptions(ctx context.Context, opts domain.LayoutOptions) error {
	const op = "setLayoutOptions"
	ctx, span := o.start(ctx, op)
	defer span.End()

	if o.closed.Load() {
		return o.reject(ctx, op, domain.ErrClosed, "", nil)
	}
	if err := opts.Validate(); err != nil {
		return o.reject(ctx, op, domain.ErrValidation, "", err)
	}
	err := o.cycle(ctx, op, nil, func() {
		o.opts = opts
		o.registry.SetOptions(opts)
	})
	if err != nil {
		return o.reject(ctx, op, domain.ErrStore, "", err)
	}
	return nil
}

// SetFlowDirection switches the flow axis ("x" or "y") and restarts layout.
func (o *Orchestrator) SetFlowDirection(ctx context.Context, dir string) error {
	opts := o.Options()
	opts.FlowDirection = dir
	return o.SetLayoutOptions(ctx, opts)
}

// SetEdgeLength changes the ideal link length and restarts layout.
func (o *Orchestrator) SetEdgeLength(ctx context.Context, length float64) error {
	opts := o.Options()
	opts.EdgeLength = length
	return o.SetLayoutOptions(ctx, opts)
}

// SaveGraph serializes every stored fact as hashes and predicate types, plus node
// positions.
func (o *Orchestrator) SaveGraph(ctx context.Context) (*domain.SavedGraph, error) {
	const op = "saveGraph"
	ctx, span := o.start(ctx, op)
	defer span.End()

	facts, err := o.projector.Scan(ctx)
	if err != nil {
		return nil, o.reject(ctx, op, domain.ErrStore, "", err)
	}
	sort.Slice(facts, func(i, j int) bool {
		return facts[i].Key().String() < facts[j].Key().String()
	})

	saved := &domain.SavedGraph{
		Triplets: make([]domain.SavedTriplet, 0, len(facts)),
		Nodes:    []domain.SavedNode{},
	}
	for _, f := range facts {
		k := f.Key()
		saved.Triplets = append(saved.Triplets, domain.SavedTriplet{
			Subject:   k.Subject,
			Predicate: k.Predicate,
			Object:    k.Object,
		})
	}
	for _, n := range o.Nodes() {
		saved.Nodes = append(saved.Nodes, domain.SavedNode{Hash: n.Hash, X: n.X, Y: n.Y})
	}
	return saved, nil
}

// RestoreGraph replays saved nodes with their positions, then saved triplets.
// Triplets already in the store are skipped.
func (o *Orchestrator) RestoreGraph(ctx context.Context, saved *domain.SavedGraph) error {
	if saved == nil {
		return nil
	}
	var errs []error
	if len(saved.Nodes) > 0 {
		inputs := make([]domain.NodeInput, len(saved.Nodes))
		for i, n := range saved.Nodes {
			x, y := n.X, n.Y
			inputs[i] = domain.NodeInput{Hash: n.Hash, X: &x, Y: &y}
		}
		if err := o.AddNodes(ctx, inputs...); err != nil {
			errs = append(errs, err)
		}
	}
	for _, t := range saved.Triplets {
		err := o.AddTriplet(ctx, domain.NewFact(t.Subject, t.Predicate, t.Object))
		if err != nil && !errors.Is(err, domain.ErrDuplicateFact) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
