package core

import (
	"context"

	"elevation_service/internal/domain/model"
)

// Provider is one external elevation API.
type Provider interface {
	Name() string
	BatchSize() int
	Accuracy() model.Accuracy
	Lookup(ctx context.Context, coords []model.Coordinate) ([]model.ProviderPoint, error)
}

// ElevationFetcher resolves coordinates against the external providers.
type ElevationFetcher interface {
	Fetch(ctx context.Context, coords []model.Coordinate) ([]model.FetchResult, error)
}

type ProfileCache interface {
	Get(ctx context.Context, segmentID string) (*model.RoadElevationProfile, bool, error)
	Set(ctx context.Context, p *model.RoadElevationProfile) error
}

type EventPublisher interface {
	Publish(ctx context.Context, ev model.UnitEvent) error
}

type TileSink interface {
	PutTile(ctx context.Context, tile model.Tile) error
}
