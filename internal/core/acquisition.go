package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"elevation_service/internal/domain/model"
	"elevation_service/internal/domain/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type WorkerOptions struct {
	PollInterval   time.Duration
	UnitDelay      time.Duration
	ErrorDelay     time.Duration
	SampleInterval float64
}

func DefaultWorkerOptions() WorkerOptions {
	return WorkerOptions{
		PollInterval:   60 * time.Second,
		UnitDelay:      time.Second,
		ErrorDelay:     5 * time.Second,
		SampleInterval: 15,
	}
}

// WorkerStats counts what one worker has done since it started.
type WorkerStats struct {
	UnitsCompleted int `json:"units_completed"`
	UnitsFailed    int `json:"units_failed"`
	UnitsExhausted int `json:"units_exhausted"`
	PointsFetched  int `json:"points_fetched"`
	PointsStored   int `json:"points_stored"`
	PointsNoData   int `json:"points_no_data"`
	Profiles       int `json:"profiles"`
}

// Worker runs the acquisition loop: claim, fetch, store, settle.
type Worker struct {
	id        string
	scheduler *Scheduler
	fetcher   ElevationFetcher
	store     *ElevationStore
	builder   *ProfileBuilder
	profiles  repository.ProfileRepository
	opts      WorkerOptions
	logger    *zap.Logger

	mu    sync.Mutex
	stats WorkerStats
}

func NewWorker(
	scheduler *Scheduler,
	fetcher ElevationFetcher,
	store *ElevationStore,
	builder *ProfileBuilder,
	profiles repository.ProfileRepository,
	opts WorkerOptions,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	id := "worker-" + uuid.NewString()
	return &Worker{
		id:        id,
		scheduler: scheduler,
		fetcher:   fetcher,
		store:     store,
		builder:   builder,
		profiles:  profiles,
		opts:      opts,
		logger:    logger.With(zap.String("worker_id", id)),
	}
}

func (w *Worker) ID() string { return w.id }

func (w *Worker) Stats() WorkerStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

func (w *Worker) record(f func(s *WorkerStats)) {
	w.mu.Lock()
	f(&w.stats)
	w.mu.Unlock()
}

// ProcessNext claims and processes a single unit. It reports false when no
// unit was eligible. Unit failures are settled through the scheduler; only
// queue errors are returned.
func (w *Worker) ProcessNext(ctx context.Context) (bool, error) {
	unit, err := w.scheduler.Claim(ctx, w.id)
	if IsNoWork(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("claim: %w", err)
	}

	logger := w.logger.With(
		zap.String("unit_id", unit.ID),
		zap.String("kind", string(unit.Kind)),
		zap.Int("priority", unit.Priority),
	)
	started := time.Now()

	var procErr error
	switch unit.Kind {
	case model.KindGrid:
		procErr = w.processGrid(ctx, unit)
	case model.KindRoad:
		procErr = w.processRoad(ctx, unit)
	default:
		procErr = fmt.Errorf("unknown unit kind %q", unit.Kind)
	}

	// Settling must outlive a cancelled worker.
	settleCtx := context.WithoutCancel(ctx)
	if procErr != nil && ctx.Err() != nil {
		// Stopped mid-unit: the attempt says nothing about the unit.
		if _, err := w.scheduler.Release(settleCtx, unit.ID); err != nil {
			return true, fmt.Errorf("release unit %s: %w", unit.ID, err)
		}
		logger.Info("unit handed back on shutdown", zap.NamedError("interrupted", procErr))
		return true, nil
	}
	if procErr != nil {
		_, err := w.scheduler.Fail(settleCtx, unit.ID, procErr)
		if errors.Is(err, model.ErrWorkUnitExhausted) {
			w.record(func(s *WorkerStats) { s.UnitsFailed++; s.UnitsExhausted++ })
			return true, nil
		}
		if err != nil {
			return true, fmt.Errorf("record failure of unit %s: %w", unit.ID, err)
		}
		w.record(func(s *WorkerStats) { s.UnitsFailed++ })
		logger.Warn("unit attempt failed", zap.Error(procErr), zap.Duration("took", time.Since(started)))
		return true, nil
	}

	if _, err := w.scheduler.Complete(settleCtx, unit.ID); err != nil {
		return true, fmt.Errorf("complete unit %s: %w", unit.ID, err)
	}
	w.record(func(s *WorkerStats) { s.UnitsCompleted++ })
	logger.Info("unit completed", zap.Duration("took", time.Since(started)))
	return true, nil
}

func (w *Worker) processGrid(ctx context.Context, unit *model.WorkUnit) error {
	coords := GridSamplePoints(unit.Bounds, unit.Priority)
	results, fetchErr := w.fetcher.Fetch(ctx, coords)

	now := time.Now().UTC()
	samples := make([]model.ElevationSample, 0, len(results))
	noData := 0
	for _, r := range results {
		switch r.Status {
		case model.FetchMeasured:
			samples = append(samples, model.ElevationSample{
				Lat:        r.Lat,
				Lng:        r.Lng,
				Elevation:  r.Elevation,
				Source:     r.Source,
				Accuracy:   r.Accuracy,
				AcquiredAt: now,
			})
		case model.FetchNoData:
			noData++
		}
	}

	// Partial results are kept even when the unit will be retried.
	if len(samples) > 0 {
		if err := w.store.UpsertBatch(ctx, samples); err != nil {
			return err
		}
	}
	w.record(func(s *WorkerStats) {
		s.PointsFetched += len(coords)
		s.PointsStored += len(samples)
		s.PointsNoData += noData
	})

	if fetchErr != nil {
		return fmt.Errorf("fetch %d points in %+v: %w", len(coords), unit.Bounds, fetchErr)
	}
	return nil
}

func (w *Worker) processRoad(ctx context.Context, unit *model.WorkUnit) error {
	if unit.Road == nil {
		return fmt.Errorf("road unit %s has no road payload", unit.ID)
	}
	p, err := w.builder.Build(ctx, *unit.Road, w.opts.SampleInterval)
	if err != nil {
		return err
	}
	if err := w.profiles.Save(ctx, p); err != nil {
		return err
	}
	w.record(func(s *WorkerStats) { s.Profiles++ })
	return nil
}

// Run processes units until ctx is cancelled, polling when the queue is
// empty.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("worker started")
	for {
		processed, err := w.ProcessNext(ctx)

		delay := w.opts.UnitDelay
		switch {
		case ctx.Err() != nil:
			w.logger.Info("worker stopped", zap.Any("stats", w.Stats()))
			return nil
		case err != nil:
			w.logger.Error("acquisition step failed", zap.Error(err))
			delay = w.opts.ErrorDelay
		case !processed:
			delay = w.opts.PollInterval
		}

		if !sleep(ctx, delay) {
			w.logger.Info("worker stopped", zap.Any("stats", w.Stats()))
			return nil
		}
	}
}

// RunWorkers releases stale claims and then runs the workers until ctx is
// cancelled or one of them fails.
func RunWorkers(ctx context.Context, scheduler *Scheduler, workers []*Worker) error {
	if _, err := scheduler.ReleaseStale(ctx); err != nil {
		return fmt.Errorf("release stale units: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, w := range workers {
		w := w
		g.Go(func() error {
			return w.Run(ctx)
		})
	}
	return g.Wait()
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
