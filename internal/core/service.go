package core

import (
	"context"
	"errors"
	"fmt"

	"elevation_service/internal/domain/model"
	"elevation_service/internal/domain/repository"

	"go.uber.org/zap"
)

// healthCoordinate is a coordinate used by Health.
var healthCoordinate = model.Coordinate{Lat: 51.5074, Lng: -0.1278}

// failedUnitsListed caps the failed units returned by Stats.
const failedUnitsListed = 50

// ElevationService is the serving API over the store, the profile builder
// and the work queue.
type ElevationService struct {
	store          *ElevationStore
	samples        repository.ElevationRepository
	builder        *ProfileBuilder
	profiles       repository.ProfileRepository
	cache          ProfileCache
	scheduler      *Scheduler
	sampleInterval float64
	logger         *zap.Logger
}

func NewElevationService(
	store *ElevationStore,
	samples repository.ElevationRepository,
	builder *ProfileBuilder,
	profiles repository.ProfileRepository,
	cache ProfileCache,
	scheduler *Scheduler,
	sampleInterval float64,
	logger *zap.Logger,
) *ElevationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ElevationService{
		store:          store,
		samples:        samples,
		builder:        builder,
		profiles:       profiles,
		cache:          cache,
		scheduler:      scheduler,
		sampleInterval: sampleInterval,
		logger:         logger,
	}
}

func (s *ElevationService) LookupBatch(ctx context.Context, coords []model.Coordinate) ([]model.Resolution, error) {
	return s.store.LookupBatch(ctx, coords)
}

// GetProfile returns the stored profile of road at interval, building and
// saving it on first request. A zero interval uses the default.
func (s *ElevationService) GetProfile(ctx context.Context, road model.RoadSegment, interval float64) (*model.RoadElevationProfile, error) {
	if interval == 0 {
		interval = s.sampleInterval
	}
	if interval <= 0 {
		return nil, model.ErrInvalidInterval
	}

	p, err := s.ProfileByID(ctx, model.SegmentID(road.OSMWayID, interval))
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, model.ErrProfileNotFound) {
		return nil, err
	}
	return s.BuildProfile(ctx, road, interval)
}

// BuildProfile always recomputes the profile and replaces the stored one.
func (s *ElevationService) BuildProfile(ctx context.Context, road model.RoadSegment, interval float64) (*model.RoadElevationProfile, error) {
	if interval == 0 {
		interval = s.sampleInterval
	}
	p, err := s.builder.Build(ctx, road, interval)
	if err != nil {
		return nil, err
	}
	if err := s.profiles.Save(ctx, p); err != nil {
		return nil, err
	}
	s.cacheProfile(ctx, p)
	s.logger.Info("built road profile",
		zap.String("segment_id", p.SegmentID),
		zap.Int("samples", len(p.Samples)),
		zap.Float64("suitability", p.SuitabilityScore),
	)
	return p, nil
}

// ProfileByID looks in the cache, then in the profile table.
func (s *ElevationService) ProfileByID(ctx context.Context, segmentID string) (*model.RoadElevationProfile, error) {
	if s.cache != nil {
		p, ok, err := s.cache.Get(ctx, segmentID)
		if err != nil {
			s.logger.Warn("profile cache read failed", zap.String("segment_id", segmentID), zap.Error(err))
		} else if ok {
			return p, nil
		}
	}

	p, err := s.profiles.Get(ctx, segmentID)
	if err != nil {
		return nil, err
	}
	s.cacheProfile(ctx, p)
	return p, nil
}

func (s *ElevationService) cacheProfile(ctx context.Context, p *model.RoadElevationProfile) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, p); err != nil {
		s.logger.Warn("profile cache write failed", zap.String("segment_id", p.SegmentID), zap.Error(err))
	}
}

func (s *ElevationService) Stats(ctx context.Context) (*model.AcquisitionStats, error) {
	counts, failed, err := s.scheduler.Counts(ctx, failedUnitsListed)
	if err != nil {
		return nil, fmt.Errorf("failed to count units: %w", err)
	}
	n, err := s.samples.Count(ctx)
	if err != nil {
		return nil, err
	}
	coverage, err := s.samples.Coverage(ctx)
	if err != nil {
		return nil, err
	}
	return &model.AcquisitionStats{
		Units:       counts,
		Samples:     n,
		Coverage:    coverage,
		FailedUnits: failed,
	}, nil
}

// Health performs a lookup to prove the store is readable.
func (s *ElevationService) Health(ctx context.Context) (model.Resolution, error) {
	return s.store.Lookup(ctx, healthCoordinate)
}
