package core

import (
	"context"
	"fmt"
	"time"

	"elevation_service/internal/domain/model"
	"elevation_service/internal/domain/repository"

	"go.uber.org/zap"
)

type LookupOptions struct {
	ExactRadius    float64
	NeighborRadius float64
	NeighborLimit  int
	// MinInterpolationPoints is the neighbour count from which IDW is used
	// instead of the single closest sample.
	MinInterpolationPoints int
}

func DefaultLookupOptions() LookupOptions {
	return LookupOptions{
		ExactRadius:            0.0001,
		NeighborRadius:         0.01,
		NeighborLimit:          4,
		MinInterpolationPoints: 3,
	}
}

// ElevationStore answers point lookups from stored samples only. It never
// calls a provider.
type ElevationStore struct {
	repo      repository.ElevationRepository
	estimator RegionalEstimator
	opts      LookupOptions
	logger    *zap.Logger
}

func NewElevationStore(repo repository.ElevationRepository, estimator RegionalEstimator, opts LookupOptions, logger *zap.Logger) *ElevationStore {
	if estimator == nil {
		estimator = DefaultRegionTable()
	}
	if opts.MinInterpolationPoints <= 0 {
		opts.MinInterpolationPoints = 3
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ElevationStore{repo: repo, estimator: estimator, opts: opts, logger: logger}
}

func (s *ElevationStore) UpsertBatch(ctx context.Context, samples []model.ElevationSample) error {
	if err := s.repo.UpsertBatch(ctx, samples); err != nil {
		return fmt.Errorf("failed to store %d samples: %w", len(samples), err)
	}
	return nil
}

// Lookup resolves one coordinate: exact band, then neighbourhood
// interpolation, then the regional estimate. Errors come only from storage.
func (s *ElevationStore) Lookup(ctx context.Context, c model.Coordinate) (model.Resolution, error) {
	exact, err := s.repo.Nearby(ctx, c, s.opts.ExactRadius, 1)
	if err != nil {
		return model.Resolution{}, err
	}
	if len(exact) > 0 {
		return model.Resolution{
			Coordinate: c,
			Elevation:  exact[0].Elevation,
			Tier:       model.TierExact,
			Source:     exact[0].Source,
			Accuracy:   exact[0].Accuracy,
			AcquiredAt: &exact[0].AcquiredAt,
		}, nil
	}

	neighbors, err := s.repo.Nearby(ctx, c, s.opts.NeighborRadius, s.opts.NeighborLimit)
	if err != nil {
		return model.Resolution{}, err
	}
	if len(neighbors) >= s.opts.MinInterpolationPoints {
		return model.Resolution{
			Coordinate: c,
			Elevation:  InverseDistanceWeight(c, neighbors),
			Tier:       model.TierInterpolated,
			Source:     neighbors[0].Source,
			Accuracy:   worstAccuracy(neighbors),
			AcquiredAt: newestAcquisition(neighbors),
		}, nil
	}
	if len(neighbors) > 0 {
		return model.Resolution{
			Coordinate: c,
			Elevation:  neighbors[0].Elevation,
			Tier:       model.TierNearest,
			Source:     neighbors[0].Source,
			Accuracy:   neighbors[0].Accuracy,
			AcquiredAt: &neighbors[0].AcquiredAt,
		}, nil
	}

	s.logger.Debug("no samples near coordinate, using regional estimate", zap.Stringer("coordinate", c))
	return s.estimate(c), nil
}

func newestAcquisition(samples []model.ElevationSample) *time.Time {
	newest := samples[0].AcquiredAt
	for _, s := range samples[1:] {
		if s.AcquiredAt.After(newest) {
			newest = s.AcquiredAt
		}
	}
	return &newest
}

func (s *ElevationStore) estimate(c model.Coordinate) model.Resolution {
	return model.Resolution{
		Coordinate: c,
		Elevation:  s.estimator.Estimate(c),
		Tier:       model.TierEstimated,
		Source:     model.SourceEstimated,
		Accuracy:   model.AccuracyLow,
	}
}

func (s *ElevationStore) LookupBatch(ctx context.Context, coords []model.Coordinate) ([]model.Resolution, error) {
	out := make([]model.Resolution, len(coords))
	for i, c := range coords {
		r, err := s.Lookup(ctx, c)
		if err != nil {
			return nil, fmt.Errorf("lookup %s: %w", c, err)
		}
		out[i] = r
	}
	return out, nil
}
