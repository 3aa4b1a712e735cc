package core

import (
	"context"
	"sync"
	"testing"
	"time"

	"elevation_service/internal/domain/model"
	"elevation_service/internal/domain/repository"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := repository.Open(context.Background(), "sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestStore(t *testing.T) (*ElevationStore, *repository.SQLElevationRepository) {
	t.Helper()
	repo := repository.NewSQLElevationRepository(newTestDB(t))
	return NewElevationStore(repo, DefaultRegionTable(), DefaultLookupOptions(), nil), repo
}

func measured(lat, lng, elevation float64) model.ElevationSample {
	return model.ElevationSample{
		Lat:        lat,
		Lng:        lng,
		Elevation:  elevation,
		Source:     "test",
		Accuracy:   model.AccuracyHigh,
		AcquiredAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// fakeProvider answers with elevation(c), or fails with err.
type fakeProvider struct {
	name      string
	batchSize int
	elevation func(c model.Coordinate) *float64
	err       error

	mu    sync.Mutex
	calls [][]model.Coordinate
}

func (p *fakeProvider) Name() string             { return p.name }
func (p *fakeProvider) BatchSize() int           { return p.batchSize }
func (p *fakeProvider) Accuracy() model.Accuracy { return model.AccuracyMedium }

func (p *fakeProvider) Lookup(ctx context.Context, coords []model.Coordinate) ([]model.ProviderPoint, error) {
	p.mu.Lock()
	p.calls = append(p.calls, append([]model.Coordinate(nil), coords...))
	p.mu.Unlock()

	if p.err != nil {
		return nil, p.err
	}
	out := make([]model.ProviderPoint, len(coords))
	for i, c := range coords {
		out[i] = model.ProviderPoint{Lat: c.Lat, Lng: c.Lng, Elevation: p.elevation(c)}
	}
	return out, nil
}

func (p *fakeProvider) Calls() [][]model.Coordinate {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func constant(v float64) func(model.Coordinate) *float64 {
	return func(model.Coordinate) *float64 { return &v }
}

func newTestFetcher(t *testing.T, providers ...*fakeProvider) *Fetcher {
	t.Helper()
	ranked := make([]RankedProvider, len(providers))
	for i, p := range providers {
		ranked[i] = RankedProvider{Provider: p, RPS: 1000}
	}
	f, err := NewFetcher(ranked, nil)
	require.NoError(t, err)
	return f
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []model.UnitEvent
}

func (p *recordingPublisher) Publish(ctx context.Context, ev model.UnitEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) Events() []model.UnitEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]model.UnitEvent(nil), p.events...)
}

// manualClock is a settable clock for scheduler tests.
type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}
