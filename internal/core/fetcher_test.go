package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"elevation_service/internal/domain/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func line(n int) []model.Coordinate {
	coords := make([]model.Coordinate, n)
	for i := range coords {
		coords[i] = model.Coordinate{Lat: float64(i) * 0.001, Lng: 0}
	}
	return coords
}

func TestFetchPreservesOrderAndMarksNoData(t *testing.T) {
	p := &fakeProvider{name: "primary", batchSize: 3, elevation: func(c model.Coordinate) *float64 {
		if c.Lat > 0.0035 && c.Lat < 0.0045 {
			return nil
		}
		v := c.Lat * 1000
		return &v
	}}
	f := newTestFetcher(t, p)

	coords := line(7)
	results, err := f.Fetch(context.Background(), coords)
	require.NoError(t, err)
	require.Len(t, results, 7)

	assert.Len(t, p.Calls(), 3)
	for i, r := range results {
		assert.Equal(t, coords[i], r.Coordinate)
		if i == 4 {
			assert.Equal(t, model.FetchNoData, r.Status)
			assert.Zero(t, r.Elevation)
			continue
		}
		assert.Equal(t, model.FetchMeasured, r.Status)
		assert.InDelta(t, float64(i), r.Elevation, 1e-9)
		assert.Equal(t, "primary", r.Source)
		assert.Equal(t, model.AccuracyMedium, r.Accuracy)
	}
}

func TestFetchFallsBackToNextProvider(t *testing.T) {
	failing := &fakeProvider{name: "primary", batchSize: 10, err: &model.ProviderError{Provider: "primary", StatusCode: 503, Err: errors.New("down")}}
	backup := &fakeProvider{name: "backup", batchSize: 10, elevation: constant(42)}
	unused := &fakeProvider{name: "third", batchSize: 10, elevation: constant(1)}
	f := newTestFetcher(t, failing, backup, unused)

	results, err := f.Fetch(context.Background(), line(4))
	require.NoError(t, err)
	for _, r := range results {
		assert.Equal(t, 42.0, r.Elevation)
		assert.Equal(t, "backup", r.Source)
	}
	assert.Len(t, failing.Calls(), 1)
	assert.Len(t, backup.Calls(), 1)
	assert.Empty(t, unused.Calls(), "providers after the first success are not consulted")
}

func TestFetchAllProvidersFail(t *testing.T) {
	a := &fakeProvider{name: "a", batchSize: 2, err: &model.ProviderError{Provider: "a", Err: errors.New("timeout")}}
	b := &fakeProvider{name: "b", batchSize: 2, err: &model.ProviderError{Provider: "b", StatusCode: 500, Err: errors.New("boom")}}
	f := newTestFetcher(t, a, b)

	results, err := f.Fetch(context.Background(), line(3))
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrProviderFailure)

	var batchErr *model.BatchError
	require.True(t, errors.As(err, &batchErr))
	assert.Equal(t, 2, batchErr.Total)
	assert.Len(t, batchErr.Failed, 2)

	require.Len(t, results, 3)
	for _, r := range results {
		assert.Equal(t, model.FetchFailed, r.Status)
	}
	assert.Len(t, a.Calls(), 2, "no retries beyond the fallback chain")
}

// flakyProvider fails its first call only.
type flakyProvider struct {
	fakeProvider
	failed bool
}

func (p *flakyProvider) Lookup(ctx context.Context, coords []model.Coordinate) ([]model.ProviderPoint, error) {
	if !p.failed {
		p.failed = true
		return nil, &model.ProviderError{Provider: p.name, Err: errors.New("flaky")}
	}
	return p.fakeProvider.Lookup(ctx, coords)
}

func TestFetchPartialFailure(t *testing.T) {
	p := &flakyProvider{fakeProvider: fakeProvider{name: "flaky", batchSize: 2, elevation: constant(5)}}
	f, err := NewFetcher([]RankedProvider{{Provider: p, RPS: 1000}}, nil)
	require.NoError(t, err)

	results, err := f.Fetch(context.Background(), line(4))
	var batchErr *model.BatchError
	require.True(t, errors.As(err, &batchErr))
	assert.Contains(t, batchErr.Failed, 0)
	assert.NotContains(t, batchErr.Failed, 1)

	assert.Equal(t, model.FetchFailed, results[0].Status)
	assert.Equal(t, model.FetchFailed, results[1].Status)
	assert.Equal(t, model.FetchMeasured, results[2].Status)
	assert.Equal(t, model.FetchMeasured, results[3].Status)
}

func TestFetchUsesSmallestBatchSize(t *testing.T) {
	big := &fakeProvider{name: "big", batchSize: 100, elevation: constant(1)}
	small := &fakeProvider{name: "small", batchSize: 4, elevation: constant(2)}
	f := newTestFetcher(t, big, small)
	assert.Equal(t, 4, f.BatchSize())

	_, err := f.Fetch(context.Background(), line(10))
	require.NoError(t, err)
	calls := big.Calls()
	require.Len(t, calls, 3)
	assert.Len(t, calls[2], 2)
}

func TestFetchEnforcesMinimumInterval(t *testing.T) {
	p := &fakeProvider{name: "slow", batchSize: 1, elevation: constant(1)}
	f, err := NewFetcher([]RankedProvider{{Provider: p, RPS: 20}}, nil)
	require.NoError(t, err)

	start := time.Now()
	_, err = f.Fetch(context.Background(), line(4))
	require.NoError(t, err)

	// Four calls at 20/s need at least three 50ms gaps.
	assert.GreaterOrEqual(t, time.Since(start), 140*time.Millisecond)
	assert.Len(t, p.Calls(), 4)
}

func TestFetchStopsOnCancelledContext(t *testing.T) {
	p := &fakeProvider{name: "p", batchSize: 1, elevation: constant(1)}
	f, err := NewFetcher([]RankedProvider{{Provider: p, RPS: 0.001}}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	results, err := f.Fetch(ctx, line(3))
	require.Error(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, model.FetchMeasured, results[0].Status)
	assert.Equal(t, model.FetchFailed, results[1].Status)
	assert.Len(t, p.Calls(), 1)
}

func TestNewFetcherValidates(t *testing.T) {
	_, err := NewFetcher(nil, nil)
	assert.Error(t, err)

	_, err = NewFetcher([]RankedProvider{{Provider: &fakeProvider{name: "x", batchSize: 1}, RPS: 0}}, nil)
	assert.Error(t, err)
}
