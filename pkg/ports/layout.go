package ports

import (
	"context"

	"github.com/aretw0/netviz/pkg/domain"
)

// LayoutSolver is the external position engine.
type LayoutSolver interface {
	// Stop halts the tick loop. When it returns, the solver no longer reads the
	// previous snapshot.
	Stop()

	// Restart hands the solver a new snapshot and resumes ticking.
	Restart(ctx context.Context, snap domain.Snapshot) error
}

// AssetFactory creates rendering assets that depend on edge color.
type AssetFactory interface {
	CreateMarker(ctx context.Context, color string) error
}

// PositionSink receives positions computed by a solver run.
type PositionSink interface {
	UpdatePositions(ctx context.Context, generation uint64, positions []domain.Position) bool
}
