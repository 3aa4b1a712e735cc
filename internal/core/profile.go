package core

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"elevation_service/internal/domain/model"

	"go.uber.org/zap"
)

// lookaheadIntervals is the window of localMaxGradient.
const lookaheadIntervals = 5

// ProfileBuilder samples a road and derives its gradient metrics.
type ProfileBuilder struct {
	store   *ElevationStore
	fetcher ElevationFetcher
	now     func() time.Time
	logger  *zap.Logger
}

func NewProfileBuilder(store *ElevationStore, fetcher ElevationFetcher, logger *zap.Logger) *ProfileBuilder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProfileBuilder{store: store, fetcher: fetcher, now: time.Now, logger: logger}
}

// Build produces the elevation profile of road sampled every interval meters.
// Store misses are fetched in one call and written back to the store.
func (b *ProfileBuilder) Build(ctx context.Context, road model.RoadSegment, interval float64) (*model.RoadElevationProfile, error) {
	if len(road.Coordinates) < 2 {
		return nil, fmt.Errorf("way %d: %w", road.OSMWayID, model.ErrInsufficientGeometry)
	}
	if interval <= 0 || math.IsNaN(interval) || math.IsInf(interval, 0) {
		return nil, fmt.Errorf("interval %g: %w", interval, model.ErrInvalidInterval)
	}

	points := SamplePolyline(road.Coordinates, interval)
	samples, err := b.resolve(ctx, road.OSMWayID, points)
	if err != nil {
		return nil, err
	}

	p := &model.RoadElevationProfile{
		SegmentID:      model.SegmentID(road.OSMWayID, interval),
		OSMWayID:       road.OSMWayID,
		RoadType:       road.RoadType,
		Surface:        road.Surface,
		LengthMeters:   points[len(points)-1].Distance,
		SampleInterval: interval,
		Samples:        samples,
		CreatedAt:      b.now().UTC(),
	}
	applyGradients(p)
	p.SuitabilityScore = SuitabilityScore(p.MaxGradient, p.AvgGradient, road.Surface, road.RoadType)
	return p, nil
}

func (b *ProfileBuilder) resolve(ctx context.Context, wayID int64, points []RoadPoint) ([]model.ProfileSample, error) {
	coords := make([]model.Coordinate, len(points))
	for i, p := range points {
		coords[i] = p.Coordinate
	}

	resolved, err := b.store.LookupBatch(ctx, coords)
	if err != nil {
		return nil, err
	}

	var missIdx []int
	for i, r := range resolved {
		if needsFetch(r) {
			missIdx = append(missIdx, i)
		}
	}

	builtAt := b.now().UTC()
	if len(missIdx) > 0 {
		stored, err := b.fetchMisses(ctx, wayID, resolved, missIdx, builtAt)
		if err != nil {
			return nil, err
		}
		// Nearby points share a quantized key, so the profile is read back
		// from the store to match what the next build will see.
		if stored > 0 {
			if resolved, err = b.store.LookupBatch(ctx, coords); err != nil {
				return nil, err
			}
		}
	}

	samples := make([]model.ProfileSample, len(points))
	for i, r := range resolved {
		acquiredAt := builtAt
		if r.AcquiredAt != nil {
			acquiredAt = *r.AcquiredAt
		}
		samples[i] = model.ProfileSample{
			ElevationSample: model.ElevationSample{
				Lat:        r.Lat,
				Lng:        r.Lng,
				Elevation:  r.Elevation,
				Source:     r.Source,
				Accuracy:   r.Accuracy,
				AcquiredAt: acquiredAt,
			},
			DistanceAlongRoad: points[i].Distance,
		}
	}
	return samples, nil
}

// needsFetch reports whether a road sample should be measured. A single
// nearby sample is too coarse for gradients.
func needsFetch(r model.Resolution) bool {
	return r.Tier == model.TierEstimated || r.Tier == model.TierNearest
}

// fetchMisses resolves the missing points in one fetch and stores what was
// measured, returning the number of stored samples. Points the providers
// have no data for keep their current value. A provider failure is returned
// after the measured part is stored.
func (b *ProfileBuilder) fetchMisses(ctx context.Context, wayID int64, resolved []model.Resolution, missIdx []int, at time.Time) (int, error) {
	missing := make([]model.Coordinate, len(missIdx))
	for k, i := range missIdx {
		missing[k] = resolved[i].Coordinate
	}

	results, fetchErr := b.fetcher.Fetch(ctx, missing)
	if fetchErr != nil && len(results) != len(missing) {
		return 0, fmt.Errorf("way %d: fetch %d points: %w", wayID, len(missing), fetchErr)
	}

	var fresh []model.ElevationSample
	noData := 0
	for _, r := range results {
		switch r.Status {
		case model.FetchMeasured:
			fresh = append(fresh, model.ElevationSample{
				Lat:        r.Lat,
				Lng:        r.Lng,
				Elevation:  r.Elevation,
				Source:     r.Source,
				Accuracy:   r.Accuracy,
				AcquiredAt: at,
			})
		case model.FetchNoData:
			noData++
		}
	}

	if len(fresh) > 0 {
		if err := b.store.UpsertBatch(ctx, fresh); err != nil {
			return 0, err
		}
	}
	if noData > 0 {
		b.logger.Warn("providers have no data for road samples, keeping current values",
			zap.Int64("way_id", wayID),
			zap.Int("points", noData),
			zap.Error(model.ErrNoData),
		)
	}
	if fetchErr != nil {
		return len(fresh), fmt.Errorf("way %d: fetch %d points: %w", wayID, len(missing), fetchErr)
	}
	return len(fresh), nil
}

// applyGradients fills per-interval gradients and the profile roll-ups. The
// maximum and average gradients are signed, so descents lower them; the
// lookahead maximum is absolute.
func applyGradients(p *model.RoadElevationProfile) {
	s := p.Samples
	p.MinElevation, p.MaxElevation = s[0].Elevation, s[0].Elevation

	var sumGradient float64
	defined := 0
	for i := range s {
		p.MinElevation = math.Min(p.MinElevation, s[i].Elevation)
		p.MaxElevation = math.Max(p.MaxElevation, s[i].Elevation)
		if i == len(s)-1 {
			break
		}

		delta := s[i+1].Elevation - s[i].Elevation
		if delta > 0 {
			p.TotalAscent += delta
		} else {
			p.TotalDescent -= delta
		}

		run := s[i+1].DistanceAlongRoad - s[i].DistanceAlongRoad
		if run <= 0 {
			continue
		}
		g := round2(delta / run * 100)
		s[i].Gradient = &g

		if defined == 0 || g > p.MaxGradient {
			p.MaxGradient = g
		}
		sumGradient += g
		defined++
	}
	if defined > 0 {
		p.AvgGradient = round2(sumGradient / float64(defined))
	}

	for i := range s {
		var local *float64
		for j := i; j < i+lookaheadIntervals && j < len(s)-1; j++ {
			if s[j].Gradient == nil {
				continue
			}
			abs := math.Abs(*s[j].Gradient)
			if local == nil || abs > *local {
				local = &abs
			}
		}
		s[i].LocalMaxGradient = local
	}

	p.TotalAscent = round2(p.TotalAscent)
	p.TotalDescent = round2(p.TotalDescent)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// IsProviderFailure reports whether err comes from the external providers.
func IsProviderFailure(err error) bool {
	return errors.Is(err, model.ErrProviderFailure)
}
