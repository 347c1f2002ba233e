package observability

import (
	"context"
	"log/slog"

	"github.com/aretw0/netviz/pkg/domain"
)

// LogHooks logs every lifecycle event on logger. Cycle and layout events go to
// Debug; dangling facts go to Warn. Rejections are logged by the graph itself.
func LogHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnStructuralChange: func(ctx context.Context, e *domain.CycleEvent) {
			logger.DebugContext(ctx, "structural_change", "op", e.Op, "cycle", e.CycleID)
		},
		OnReprojected: func(ctx context.Context, e *domain.CycleEvent) {
			logger.DebugContext(ctx, "reprojected",
				"op", e.Op,
				"cycle", e.CycleID,
				"generation", e.Generation,
				"nodes", e.Nodes,
				"links", e.Links,
				"groups", e.Groups,
			)
		},
		OnDanglingFact: func(ctx context.Context, e *domain.DanglingEvent) {
			logger.WarnContext(ctx, "dangling_fact",
				"subject", e.Fact.Subject.Hash,
				"predicate", e.Fact.Predicate.Type,
				"object", e.Fact.Object.Hash,
			)
		},
		OnLayoutSettled: func(ctx context.Context, e *domain.LayoutEvent) {
			logger.DebugContext(ctx, "layout_settled",
				"generation", e.Generation,
				"ticks", e.Ticks,
				"routes", len(e.Routes),
			)
		},
	}
}
