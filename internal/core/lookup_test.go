package core

import (
	"context"
	"testing"

	"elevation_service/internal/domain/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupExactQuantizedCoordinate(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	inserted := []model.ElevationSample{
		measured(51.5074, -0.1278, 11),
		measured(51.5075, -0.1278, 12),
		measured(51.5074, -0.1277, 13),
		measured(46.5, 8.0, 2500),
	}
	require.NoError(t, store.UpsertBatch(ctx, inserted))

	for _, s := range inserted {
		r, err := store.Lookup(ctx, s.Coordinate().Quantized())
		require.NoError(t, err)
		assert.Equal(t, model.TierExact, r.Tier)
		assert.Equal(t, s.Elevation, r.Elevation, s.Coordinate().String())
		assert.Equal(t, "test", r.Source)
		assert.True(t, r.Measured())
	}
}

func TestLookupExactBandPicksClosest(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	require.NoError(t, store.UpsertBatch(ctx, []model.ElevationSample{
		measured(10.0000, 10.0000, 1),
		measured(10.0001, 10.0000, 2),
	}))

	r, err := store.Lookup(ctx, model.Coordinate{Lat: 10.00008, Lng: 10})
	require.NoError(t, err)
	assert.Equal(t, model.TierExact, r.Tier)
	assert.Equal(t, 2.0, r.Elevation)
}

func TestLookupInterpolatesWithThreeNeighbours(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	require.NoError(t, store.UpsertBatch(ctx, []model.ElevationSample{
		measured(10.003, 10.000, 100),
		measured(10.000, 10.003, 200),
		measured(9.997, 10.000, 300),
	}))

	r, err := store.Lookup(ctx, model.Coordinate{Lat: 10, Lng: 10})
	require.NoError(t, err)
	assert.Equal(t, model.TierInterpolated, r.Tier)
	assert.InDelta(t, 200, r.Elevation, 1e-6)
	assert.True(t, r.Measured())
}

func TestLookupNearestWithFewNeighbours(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	require.NoError(t, store.UpsertBatch(ctx, []model.ElevationSample{
		measured(10.002, 10.0, 100),
		measured(10.006, 10.0, 300),
	}))

	r, err := store.Lookup(ctx, model.Coordinate{Lat: 10, Lng: 10})
	require.NoError(t, err)
	assert.Equal(t, model.TierNearest, r.Tier)
	assert.Equal(t, 100.0, r.Elevation)
}

func TestLookupFallsBackToRegionalEstimate(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	tests := []struct {
		name string
		at   model.Coordinate
		want float64
	}{
		{"alps", model.Coordinate{Lat: 46.5, Lng: 8}, 800},
		{"himalayas", model.Coordinate{Lat: 28, Lng: 87}, 4000},
		{"rockies", model.Coordinate{Lat: 40, Lng: -110}, 1500},
		{"pacific", model.Coordinate{Lat: -20, Lng: 150}, 0},
		{"atlantic", model.Coordinate{Lat: 40, Lng: -40}, 0},
		{"default land", model.Coordinate{Lat: 51.5, Lng: -0.1}, 200},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := store.Lookup(ctx, tt.at)
			require.NoError(t, err)
			assert.Equal(t, model.TierEstimated, r.Tier)
			assert.Equal(t, tt.want, r.Elevation)
			assert.Equal(t, model.SourceEstimated, r.Source)
			assert.Equal(t, model.AccuracyLow, r.Accuracy)
			assert.False(t, r.Measured())
		})
	}
}

func TestLookupBatchKeepsOrder(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)
	require.NoError(t, store.UpsertBatch(ctx, []model.ElevationSample{measured(1, 1, 5)}))

	got, err := store.LookupBatch(ctx, []model.Coordinate{{Lat: 40, Lng: -40}, {Lat: 1, Lng: 1}})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, model.TierEstimated, got[0].Tier)
	assert.Equal(t, 5.0, got[1].Elevation)
}

func TestRegionTableIsPluggable(t *testing.T) {
	table := RegionTable{
		Regions: []RegionEstimate{{Name: "plateau", Bounds: model.Bounds{MinLat: 0, MaxLat: 1, MinLon: 0, MaxLon: 1}, Elevation: 1234}},
		Default: 7,
	}
	store := NewElevationStore(nil, table, DefaultLookupOptions(), nil)
	assert.Equal(t, 1234.0, store.estimate(model.Coordinate{Lat: 0.5, Lng: 0.5}).Elevation)
	assert.Equal(t, 7.0, store.estimate(model.Coordinate{Lat: 5, Lng: 5}).Elevation)
}
