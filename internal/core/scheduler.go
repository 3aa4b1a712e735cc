package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"elevation_service/internal/domain/model"
	"elevation_service/internal/domain/repository"

	"go.uber.org/zap"
)

type SchedulerOptions struct {
	MaxErrors     int
	RetryCooldown time.Duration
	// StaleAfter is how long a claim may stay in progress before
	// ReleaseStale hands the unit back. Zero disables release.
	StaleAfter time.Duration
}

func DefaultSchedulerOptions() SchedulerOptions {
	return SchedulerOptions{
		MaxErrors:     5,
		RetryCooldown: time.Hour,
		StaleAfter:    30 * time.Minute,
	}
}

// Scheduler is the priority work queue over persisted work units.
type Scheduler struct {
	units  repository.WorkUnitRepository
	events EventPublisher
	opts   SchedulerOptions
	now    func() time.Time
	logger *zap.Logger
}

func NewScheduler(units repository.WorkUnitRepository, events EventPublisher, opts SchedulerOptions, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		units:  units,
		events: events,
		opts:   opts,
		now:    time.Now,
		logger: logger,
	}
}

// Enqueue stores new units as pending; units that already exist are left
// untouched.
func (s *Scheduler) Enqueue(ctx context.Context, units []model.WorkUnit) (int, error) {
	n, err := s.units.InsertUnits(ctx, units)
	if err != nil {
		return 0, fmt.Errorf("failed to enqueue units: %w", err)
	}
	s.logger.Info("enqueued work units", zap.Int("offered", len(units)), zap.Int("added", n))
	return n, nil
}

// Claim hands the most urgent eligible unit to workerID. It returns
// model.ErrNoPendingUnit when nothing is eligible.
func (s *Scheduler) Claim(ctx context.Context, workerID string) (*model.WorkUnit, error) {
	return s.units.ClaimNext(ctx, repository.ClaimParams{
		Now:       s.now(),
		Cooldown:  s.opts.RetryCooldown,
		MaxErrors: s.opts.MaxErrors,
		WorkerID:  workerID,
	})
}

func (s *Scheduler) Complete(ctx context.Context, unitID string) (*model.WorkUnit, error) {
	unit, err := s.units.Complete(ctx, unitID, s.now())
	if err != nil {
		return nil, err
	}
	s.publish(ctx, model.EventUnitCompleted, unit)
	return unit, nil
}

// Fail records a failed attempt. When the unit runs out of attempts it is
// returned together with model.ErrWorkUnitExhausted.
func (s *Scheduler) Fail(ctx context.Context, unitID string, cause error) (*model.WorkUnit, error) {
	reason := "unknown error"
	if cause != nil {
		reason = cause.Error()
	}

	unit, err := s.units.Fail(ctx, unitID, s.now(), s.opts.MaxErrors, reason)
	if err != nil {
		return nil, err
	}

	if unit.Status == model.StatusFailed {
		s.logger.Error("work unit exhausted its retries",
			zap.String("unit_id", unit.ID),
			zap.String("kind", string(unit.Kind)),
			zap.Int("error_count", unit.ErrorCount),
			zap.String("last_error", unit.LastError),
		)
		s.publish(ctx, model.EventUnitExhausted, unit)
		return unit, fmt.Errorf("unit %s after %d errors: %w", unit.ID, unit.ErrorCount, model.ErrWorkUnitExhausted)
	}

	s.logger.Warn("work unit failed, will retry",
		zap.String("unit_id", unit.ID),
		zap.Int("error_count", unit.ErrorCount),
		zap.Duration("cooldown", s.opts.RetryCooldown),
		zap.String("error", reason),
	)
	return unit, nil
}

// Release hands a claimed unit back to the queue without charging its error
// budget. Workers use it when they are stopped mid-unit.
func (s *Scheduler) Release(ctx context.Context, unitID string) (*model.WorkUnit, error) {
	unit, err := s.units.Release(ctx, unitID)
	if err != nil {
		return nil, err
	}
	s.logger.Info("released work unit", zap.String("unit_id", unitID))
	return unit, nil
}

// ReleaseStale returns units whose claim is older than StaleAfter to pending.
func (s *Scheduler) ReleaseStale(ctx context.Context) (int, error) {
	if s.opts.StaleAfter <= 0 {
		return 0, nil
	}
	n, err := s.units.ReleaseStale(ctx, s.now().Add(-s.opts.StaleAfter))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Warn("released stale work units", zap.Int("count", n))
	}
	return n, nil
}

// Counts returns the number of units per status and up to failedLimit
// failed units.
func (s *Scheduler) Counts(ctx context.Context, failedLimit int) (map[model.UnitStatus]int, []model.WorkUnit, error) {
	counts, err := s.units.CountByStatus(ctx)
	if err != nil {
		return nil, nil, err
	}
	if failedLimit <= 0 || counts[model.StatusFailed] == 0 {
		return counts, nil, nil
	}
	failed, err := s.units.ListByStatus(ctx, model.StatusFailed, failedLimit)
	if err != nil {
		return nil, nil, err
	}
	return counts, failed, nil
}

func (s *Scheduler) publish(ctx context.Context, t model.UnitEventType, unit *model.WorkUnit) {
	if s.events == nil {
		return
	}
	ev := model.UnitEvent{
		Type:       t,
		UnitID:     unit.ID,
		Kind:       unit.Kind,
		Priority:   unit.Priority,
		ErrorCount: unit.ErrorCount,
		LastError:  unit.LastError,
		At:         s.now(),
	}
	if err := s.events.Publish(ctx, ev); err != nil {
		s.logger.Warn("failed to publish unit event",
			zap.String("unit_id", unit.ID),
			zap.String("event", string(t)),
			zap.Error(err),
		)
	}
}

// IsNoWork reports whether err means the queue has nothing eligible.
func IsNoWork(err error) bool {
	return errors.Is(err, model.ErrNoPendingUnit)
}
