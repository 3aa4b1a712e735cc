package core

import (
	"context"
	"fmt"
	"math"
	"sort"

	"elevation_service/internal/domain/model"
	"elevation_service/internal/domain/repository"

	"go.uber.org/zap"
)

// BuildTiles groups samples by tile key and aggregates each group. Tiles are
// ordered by key.
func BuildTiles(samples []model.ElevationSample, size float64) []model.Tile {
	byKey := make(map[model.TileKey]*model.Tile)
	sums := make(map[model.TileKey]float64)
	for _, s := range samples {
		key := model.TileKeyFor(s.Coordinate(), size)
		t, ok := byKey[key]
		if !ok {
			t = &model.Tile{
				Key:          key,
				Size:         size,
				Bounds:       key.Bounds(size),
				MinElevation: math.Inf(1),
				MaxElevation: math.Inf(-1),
			}
			byKey[key] = t
		}
		t.Count++
		t.MinElevation = math.Min(t.MinElevation, s.Elevation)
		t.MaxElevation = math.Max(t.MaxElevation, s.Elevation)
		t.Points = append(t.Points, [3]float64{s.Lat, s.Lng, s.Elevation})
		sums[key] += s.Elevation
	}

	tiles := make([]model.Tile, 0, len(byKey))
	for key, t := range byKey {
		t.AvgElevation = round2(sums[key] / float64(t.Count))
		tiles = append(tiles, *t)
	}
	sort.Slice(tiles, func(i, j int) bool {
		if tiles[i].Key.Y != tiles[j].Key.Y {
			return tiles[i].Key.Y < tiles[j].Key.Y
		}
		return tiles[i].Key.X < tiles[j].Key.X
	})
	return tiles
}

// TileExporter writes tile aggregates of stored samples to a sink.
type TileExporter struct {
	samples repository.ElevationRepository
	sink    TileSink
	size    float64
	logger  *zap.Logger
}

func NewTileExporter(samples repository.ElevationRepository, sink TileSink, size float64, logger *zap.Logger) *TileExporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TileExporter{samples: samples, sink: sink, size: size, logger: logger}
}

// Export aggregates every sample inside b and uploads one object per tile.
func (e *TileExporter) Export(ctx context.Context, b model.Bounds) (int, error) {
	samples, err := e.samples.Within(ctx, b)
	if err != nil {
		return 0, err
	}

	tiles := BuildTiles(samples, e.size)
	for i, t := range tiles {
		if err := e.sink.PutTile(ctx, t); err != nil {
			return i, fmt.Errorf("tile %s: %w", t.Key, err)
		}
	}
	e.logger.Info("exported tiles",
		zap.Int("tiles", len(tiles)),
		zap.Int("samples", len(samples)),
		zap.Float64("size", e.size),
	)
	return len(tiles), nil
}
