package core

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"elevation_service/internal/domain/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// metersPerDegreeLat matches the haversine earth radius.
const metersPerDegreeLat = 6371000.0 * math.Pi / 180

func northbound(lengthMeters float64) model.RoadSegment {
	return model.RoadSegment{
		OSMWayID: 99,
		RoadType: "secondary",
		Surface:  "asphalt",
		Coordinates: []model.Coordinate{
			{Lat: 45, Lng: 7},
			{Lat: 45 + lengthMeters/metersPerDegreeLat, Lng: 7},
		},
		LengthMeters: lengthMeters,
	}
}

func newTestBuilder(t *testing.T, p *fakeProvider) (*ProfileBuilder, *ElevationStore) {
	t.Helper()
	store, _ := newTestStore(t)
	return NewProfileBuilder(store, newTestFetcher(t, p), nil), store
}

func TestBuildProfileFlatRoad(t *testing.T) {
	p := &fakeProvider{name: "p", batchSize: 100, elevation: constant(50)}
	b, _ := newTestBuilder(t, p)

	profile, err := b.Build(context.Background(), northbound(1000), 15)
	require.NoError(t, err)

	assert.Equal(t, "seg_99_15m", profile.SegmentID)
	assert.InDelta(t, 1000, profile.LengthMeters, 1e-6)
	assert.Len(t, profile.Samples, 68)
	assert.Zero(t, profile.TotalAscent)
	assert.Zero(t, profile.TotalDescent)
	assert.Zero(t, profile.MaxGradient)
	assert.Zero(t, profile.AvgGradient)
	assert.Equal(t, 50.0, profile.MinElevation)
	assert.Equal(t, 50.0, profile.MaxElevation)
	assert.Equal(t, 100.0, profile.SuitabilityScore)
}

func TestBuildProfileTenPercentGrade(t *testing.T) {
	road := northbound(100)
	start := road.Coordinates[0].Lat
	p := &fakeProvider{name: "p", batchSize: 100, elevation: func(c model.Coordinate) *float64 {
		v := (c.Lat - start) * metersPerDegreeLat * 0.1
		return &v
	}}
	b, _ := newTestBuilder(t, p)

	profile, err := b.Build(context.Background(), road, 100)
	require.NoError(t, err)
	require.Len(t, profile.Samples, 2)

	require.NotNil(t, profile.Samples[0].Gradient)
	assert.Equal(t, 10.0, *profile.Samples[0].Gradient)
	assert.Nil(t, profile.Samples[1].Gradient, "last sample has no following interval")
	assert.Equal(t, 10.0, profile.MaxGradient)
	assert.Equal(t, 10.0, profile.AvgGradient)
	assert.InDelta(t, 10, profile.TotalAscent, 0.01)
	require.NotNil(t, profile.Samples[0].LocalMaxGradient)
	assert.Equal(t, 10.0, *profile.Samples[0].LocalMaxGradient)

	// 100 - 5 for a >6% max grade - 20 for a >8% average grade.
	assert.Equal(t, 75.0, profile.SuitabilityScore)
}

func TestBuildProfileLocalMaxLooksAhead(t *testing.T) {
	road := northbound(100)
	start := road.Coordinates[0].Lat
	// Flat for 80 m, then a 20 m ramp.
	p := &fakeProvider{name: "p", batchSize: 100, elevation: func(c model.Coordinate) *float64 {
		d := (c.Lat - start) * metersPerDegreeLat
		v := 0.0
		if d > 80.5 {
			v = 4
		}
		return &v
	}}
	b, _ := newTestBuilder(t, p)

	profile, err := b.Build(context.Background(), road, 10)
	require.NoError(t, err)
	require.Len(t, profile.Samples, 11)

	local := func(i int) float64 {
		require.NotNil(t, profile.Samples[i].LocalMaxGradient)
		return *profile.Samples[i].LocalMaxGradient
	}
	assert.Equal(t, 0.0, local(3), "window 3..7 is flat")
	assert.Equal(t, 40.0, local(4), "window 4..8 reaches the ramp")
	assert.Equal(t, 40.0, local(8))
	assert.Equal(t, 0.0, local(9))
	assert.Nil(t, profile.Samples[10].LocalMaxGradient)
	assert.Equal(t, 40.0, profile.MaxGradient)
	assert.Equal(t, 4.0, profile.TotalAscent)
}

func TestBuildProfileDescentAndAscent(t *testing.T) {
	road := northbound(60)
	start := road.Coordinates[0].Lat
	p := &fakeProvider{name: "p", batchSize: 100, elevation: func(c model.Coordinate) *float64 {
		d := math.Round((c.Lat - start) * metersPerDegreeLat)
		v := map[float64]float64{0: 100, 20: 104, 40: 98, 60: 101}[d]
		return &v
	}}
	b, _ := newTestBuilder(t, p)

	profile, err := b.Build(context.Background(), road, 20)
	require.NoError(t, err)
	require.Len(t, profile.Samples, 4)
	assert.Equal(t, 7.0, profile.TotalAscent)
	assert.Equal(t, 6.0, profile.TotalDescent)
	assert.Equal(t, 98.0, profile.MinElevation)
	assert.Equal(t, 104.0, profile.MaxElevation)
	assert.Equal(t, 20.0, profile.MaxGradient, "steepest climb")
	assert.Equal(t, 1.67, profile.AvgGradient)
	assert.Equal(t, -30.0, *profile.Samples[1].Gradient)
	require.NotNil(t, profile.Samples[0].LocalMaxGradient)
	assert.Equal(t, 30.0, *profile.Samples[0].LocalMaxGradient, "lookahead uses absolute grades")
}

func TestBuildProfileDownhillKeepsSignedGradients(t *testing.T) {
	road := northbound(100)
	start := road.Coordinates[0].Lat
	p := &fakeProvider{name: "p", batchSize: 100, elevation: func(c model.Coordinate) *float64 {
		v := 50 - (c.Lat-start)*metersPerDegreeLat*0.12
		return &v
	}}
	b, _ := newTestBuilder(t, p)

	profile, err := b.Build(context.Background(), road, 100)
	require.NoError(t, err)
	assert.Equal(t, -12.0, profile.MaxGradient)
	assert.Equal(t, -12.0, profile.AvgGradient)
	assert.InDelta(t, 12, profile.TotalDescent, 0.01)
	assert.Equal(t, 100.0, profile.SuitabilityScore)
}

func TestBuildProfileTwiceIsStable(t *testing.T) {
	road := northbound(500)
	road.Coordinates = append(road.Coordinates, model.Coordinate{Lat: road.Coordinates[1].Lat, Lng: 7.004})
	p := &fakeProvider{name: "p", batchSize: 100, elevation: func(c model.Coordinate) *float64 {
		v := 100 + math.Sin(c.Lat*5000)*20 + (c.Lng-7)*1000
		return &v
	}}
	b, _ := newTestBuilder(t, p)
	ctx := context.Background()

	first, err := b.Build(ctx, road, 15)
	require.NoError(t, err)
	fetched := len(p.Calls())

	second, err := b.Build(ctx, road, 15)
	require.NoError(t, err)

	assert.Equal(t, fetched, len(p.Calls()), "second build is served from the store")
	assert.Equal(t, first.MinElevation, second.MinElevation)
	assert.Equal(t, first.MaxElevation, second.MaxElevation)
	assert.Equal(t, first.TotalAscent, second.TotalAscent)
	assert.Equal(t, first.TotalDescent, second.TotalDescent)
}

func TestBuildProfileTwiceIsStableBelowGridSpacing(t *testing.T) {
	road := northbound(200)
	start := road.Coordinates[0].Lat
	// 5 m samples are closer than the 1e-4 degree grid, so some share a key.
	p := &fakeProvider{name: "p", batchSize: 100, elevation: func(c model.Coordinate) *float64 {
		d := (c.Lat - start) * metersPerDegreeLat
		v := 100 + 5*math.Sin(d/3)
		return &v
	}}
	b, _ := newTestBuilder(t, p)
	ctx := context.Background()

	first, err := b.Build(ctx, road, 5)
	require.NoError(t, err)
	require.Len(t, first.Samples, 41)
	fetched := len(p.Calls())

	second, err := b.Build(ctx, road, 5)
	require.NoError(t, err)

	assert.Equal(t, fetched, len(p.Calls()), "second build is served from the store")
	assert.Equal(t, first.MinElevation, second.MinElevation)
	assert.Equal(t, first.MaxElevation, second.MaxElevation)
	assert.Equal(t, first.TotalAscent, second.TotalAscent)
	assert.Equal(t, first.TotalDescent, second.TotalDescent)
	for i := range first.Samples {
		assert.Equal(t, first.Samples[i].Elevation, second.Samples[i].Elevation, "sample %d", i)
	}
}

func TestBuildProfileFetchesMissesInOneBatch(t *testing.T) {
	ctx := context.Background()
	p := &fakeProvider{name: "p", batchSize: 100, elevation: constant(7)}
	b, store := newTestBuilder(t, p)

	profile, err := b.Build(ctx, northbound(100), 10)
	require.NoError(t, err)
	require.Len(t, profile.Samples, 11)

	calls := p.Calls()
	require.Len(t, calls, 1)
	assert.Len(t, calls[0], 11)
	assert.Equal(t, 7.0, profile.Samples[1].Elevation)
	assert.Equal(t, "p", profile.Samples[1].Source)

	r, err := store.Lookup(ctx, profile.Samples[5].Coordinate())
	require.NoError(t, err)
	assert.Equal(t, model.TierExact, r.Tier, "fetched samples are written back")
	assert.Equal(t, 7.0, r.Elevation)
}

func TestBuildProfileUsesStoredSamples(t *testing.T) {
	ctx := context.Background()
	p := &fakeProvider{name: "p", batchSize: 100, elevation: constant(7)}
	b, store := newTestBuilder(t, p)

	require.NoError(t, store.UpsertBatch(ctx, []model.ElevationSample{
		measured(45, 7, 3),
		measured(45.002, 7, 3),
		measured(45, 7.002, 3),
	}))

	profile, err := b.Build(ctx, northbound(100), 15)
	require.NoError(t, err)

	assert.Empty(t, p.Calls(), "a road within reach of stored samples needs no fetch")
	acquired := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, s := range profile.Samples {
		assert.InDelta(t, 3.0, s.Elevation, 1e-9)
		assert.Equal(t, "test", s.Source)
		assert.True(t, s.AcquiredAt.Equal(acquired), "acquisition time of the stored sample is kept, got %s", s.AcquiredAt)
	}
}

func TestBuildProfileFetchesWhenOnlyOneSampleIsNear(t *testing.T) {
	ctx := context.Background()
	p := &fakeProvider{name: "p", batchSize: 100, elevation: constant(7)}
	b, store := newTestBuilder(t, p)

	require.NoError(t, store.UpsertBatch(ctx, []model.ElevationSample{measured(45.003, 7, 500)}))

	profile, err := b.Build(ctx, northbound(30), 15)
	require.NoError(t, err)

	require.Len(t, p.Calls(), 1)
	assert.Len(t, p.Calls()[0], len(profile.Samples))
	for _, s := range profile.Samples {
		assert.Equal(t, 7.0, s.Elevation)
	}
}

func TestBuildProfileKeepsEstimateForNoData(t *testing.T) {
	p := &fakeProvider{name: "p", batchSize: 100, elevation: func(model.Coordinate) *float64 { return nil }}
	b, _ := newTestBuilder(t, p)

	profile, err := b.Build(context.Background(), northbound(30), 15)
	require.NoError(t, err)
	for _, s := range profile.Samples {
		assert.Equal(t, model.SourceEstimated, s.Source)
		assert.Equal(t, model.AccuracyLow, s.Accuracy)
	}
}

func TestBuildProfileProviderFailure(t *testing.T) {
	p := &fakeProvider{name: "p", batchSize: 100, err: &model.ProviderError{Provider: "p", StatusCode: 502, Err: errors.New("bad gateway")}}
	b, _ := newTestBuilder(t, p)

	_, err := b.Build(context.Background(), northbound(30), 15)
	assert.ErrorIs(t, err, model.ErrProviderFailure)
	assert.True(t, IsProviderFailure(err))
}

func TestBuildProfileRejectsBadInput(t *testing.T) {
	p := &fakeProvider{name: "p", batchSize: 100, elevation: constant(1)}
	b, _ := newTestBuilder(t, p)
	ctx := context.Background()

	road := northbound(100)
	road.Coordinates = road.Coordinates[:1]
	_, err := b.Build(ctx, road, 15)
	assert.ErrorIs(t, err, model.ErrInsufficientGeometry)

	_, err = b.Build(ctx, model.RoadSegment{OSMWayID: 1}, 15)
	assert.ErrorIs(t, err, model.ErrInsufficientGeometry)

	_, err = b.Build(ctx, northbound(100), 0)
	assert.ErrorIs(t, err, model.ErrInvalidInterval)

	assert.Empty(t, p.Calls())
}
