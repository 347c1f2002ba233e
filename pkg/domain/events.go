package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventStructuralChange EventType = "structural_change"
	EventReprojected      EventType = "reprojected"
	EventRejected         EventType = "rejected"
	EventDanglingFact     EventType = "dangling_fact"
	EventLayoutSettled    EventType = "layout_settled"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	CycleID   string    `json:"cycle_id"` // correlates the events of one mutation cycle
}

// CycleEvent is emitted around the mutation window of one public operation.
type CycleEvent struct {
	EventBase
	Op         string `json:"op"`
	Generation uint64 `json:"generation"`
	Nodes      int    `json:"nodes"`
	Links      int    `json:"links"`
	Groups     int    `json:"groups"`
}

// RejectEvent reports a public operation that was aborted.
type RejectEvent struct {
	EventBase
	Op  string `json:"op"`
	Key string `json:"key,omitempty"`
	Err error  `json:"-"`
}

// DanglingEvent reports a stored fact whose endpoints are not registered.
type DanglingEvent struct {
	EventBase
	Fact Fact `json:"fact"`
}

// LayoutEvent reports a solver run that converged and routed its edges.
type LayoutEvent struct {
	EventBase
	Generation uint64      `json:"generation"`
	Ticks      int         `json:"ticks"`
	Routes     []EdgeRoute `json:"routes"`
}

// LifecycleHooks defines callbacks for rendering collaborators and observability.
//
// OnStructuralChange runs before any collection is mutated; collaborators must halt
// iteration over the previous snapshot. OnReprojected runs after link reprojection with
// the new collection sizes, immediately before the solver restart.
//
// OnStructuralChange, OnReprojected and OnDanglingFact run on the mutating goroutine
// while its cycle is in progress. They may read the graph but must not call a
// mutation synchronously; hand it to another goroutine instead. OnRejected and
// OnLayoutSettled run with no graph locks held and may call any operation.
type LifecycleHooks struct {
	OnStructuralChange func(context.Context, *CycleEvent)
	OnReprojected      func(context.Context, *CycleEvent)
	OnRejected         func(context.Context, *RejectEvent)
	OnDanglingFact     func(context.Context, *DanglingEvent)
	OnLayoutSettled    func(context.Context, *LayoutEvent)
}

// Merge returns hooks that call h first and then other for every event.
func (h LifecycleHooks) Merge(other LifecycleHooks) LifecycleHooks {
	return LifecycleHooks{
		OnStructuralChange: chain(h.OnStructuralChange, other.OnStructuralChange),
		OnReprojected:      chain(h.OnReprojected, other.OnReprojected),
		OnRejected:         chain(h.OnRejected, other.OnRejected),
		OnDanglingFact:     chain(h.OnDanglingFact, other.OnDanglingFact),
		OnLayoutSettled:    chain(h.OnLayoutSettled, other.OnLayoutSettled),
	}
}

func chain[E any](a, b func(context.Context, E)) func(context.Context, E) {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	return func(ctx context.Context, e E) {
		a(ctx, e)
		b(ctx, e)
	}
}
