package repository

import (
	"context"
	"time"

	"elevation_service/internal/domain/model"
)

// ElevationRepository persists elevation samples keyed by quantized coordinate.
type ElevationRepository interface {
	// UpsertBatch writes samples, replacing any sample with the same quantized key.
	UpsertBatch(ctx context.Context, samples []model.ElevationSample) error

	// Nearby returns up to limit samples inside the square of half-width radius
	// around c, ordered by Manhattan distance to c.
	Nearby(ctx context.Context, c model.Coordinate, radius float64, limit int) ([]model.ElevationSample, error)

	// Within returns every sample inside the bounds.
	Within(ctx context.Context, b model.Bounds) ([]model.ElevationSample, error)

	Count(ctx context.Context) (int, error)

	// Coverage returns the bounding box of all samples, nil when empty.
	Coverage(ctx context.Context) (*model.Bounds, error)
}

type ClaimParams struct {
	Now       time.Time
	Cooldown  time.Duration
	MaxErrors int
	WorkerID  string
}

// WorkUnitRepository is the durable work queue.
type WorkUnitRepository interface {
	// InsertUnits adds units that do not exist yet and reports how many were added.
	InsertUnits(ctx context.Context, units []model.WorkUnit) (int, error)

	// ClaimNext atomically moves the most urgent eligible unit to in_progress.
	// Returns model.ErrNoPendingUnit when nothing is eligible.
	ClaimNext(ctx context.Context, p ClaimParams) (*model.WorkUnit, error)

	Complete(ctx context.Context, unitID string, at time.Time) (*model.WorkUnit, error)
	Fail(ctx context.Context, unitID string, at time.Time, maxErrors int, reason string) (*model.WorkUnit, error)
	Get(ctx context.Context, unitID string) (*model.WorkUnit, error)
	CountByStatus(ctx context.Context) (map[model.UnitStatus]int, error)
	ListByStatus(ctx context.Context, status model.UnitStatus, limit int) ([]model.WorkUnit, error)

	// Release hands one in_progress unit back to pending without counting an
	// error.
	Release(ctx context.Context, unitID string) (*model.WorkUnit, error)

	// ReleaseStale returns in_progress units claimed before the cutoff to pending.
	ReleaseStale(ctx context.Context, claimedBefore time.Time) (int, error)
}

type ProfileRepository interface {
	Save(ctx context.Context, p *model.RoadElevationProfile) error
	Get(ctx context.Context, segmentID string) (*model.RoadElevationProfile, error)
}

// RoadSource yields cyclable roads inside a bounding box.
type RoadSource interface {
	GetRoads(ctx context.Context, b model.Bounds) ([]model.RoadSegment, error)
}
