package core

import (
	"context"
	"errors"
	"fmt"
	"math"

	"elevation_service/internal/domain/model"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RankedProvider pairs a provider with its request rate.
type RankedProvider struct {
	Provider Provider
	RPS      float64
}

type limitedProvider struct {
	Provider
	limiter *rate.Limiter
}

// Fetcher splits coordinates into batches and resolves each batch with the
// first provider in rank order that answers. Each provider has one limiter
// shared by every caller of the Fetcher.
type Fetcher struct {
	providers []limitedProvider
	batchSize int
	logger    *zap.Logger
}

func NewFetcher(providers []RankedProvider, logger *zap.Logger) (*Fetcher, error) {
	if len(providers) == 0 {
		return nil, errors.New("fetcher needs at least one provider")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	f := &Fetcher{logger: logger}
	for _, p := range providers {
		if p.RPS <= 0 {
			return nil, fmt.Errorf("provider %s: rate must be positive", p.Provider.Name())
		}
		if p.Provider.BatchSize() <= 0 {
			return nil, fmt.Errorf("provider %s: batch size must be positive", p.Provider.Name())
		}
		f.providers = append(f.providers, limitedProvider{
			Provider: p.Provider,
			limiter:  rate.NewLimiter(rate.Limit(p.RPS), 1),
		})
		if f.batchSize == 0 || p.Provider.BatchSize() < f.batchSize {
			f.batchSize = p.Provider.BatchSize()
		}
	}
	return f, nil
}

func (f *Fetcher) BatchSize() int { return f.batchSize }

// Fetch returns one result per coordinate, in input order. When some batches
// fail on every provider their entries are marked failed and a
// *model.BatchError is returned alongside the results.
func (f *Fetcher) Fetch(ctx context.Context, coords []model.Coordinate) ([]model.FetchResult, error) {
	results := make([]model.FetchResult, len(coords))
	for i, c := range coords {
		results[i] = model.FetchResult{Coordinate: c, Status: model.FetchFailed}
	}

	total := (len(coords) + f.batchSize - 1) / f.batchSize
	batchErr := &model.BatchError{Failed: make(map[int]error), Total: total}

	for b := 0; b < total; b++ {
		start := b * f.batchSize
		end := min(start+f.batchSize, len(coords))
		batch := coords[start:end]

		points, p, err := f.fetchBatch(ctx, batch)
		if err != nil {
			f.logger.Error("batch failed on every provider",
				zap.Int("batch", b),
				zap.Int("batches", total),
				zap.Int("points", len(batch)),
				zap.Stringer("first", batch[0]),
				zap.Stringer("last", batch[len(batch)-1]),
				zap.Error(err),
			)
			batchErr.Failed[b] = err
			if ctx.Err() != nil {
				for rest := b + 1; rest < total; rest++ {
					batchErr.Failed[rest] = ctx.Err()
				}
				return results, batchErr
			}
			continue
		}

		for j, pt := range points {
			r := &results[start+j]
			r.Source = p.Name()
			if pt.Elevation == nil || math.IsNaN(*pt.Elevation) || math.IsInf(*pt.Elevation, 0) {
				r.Status = model.FetchNoData
				continue
			}
			r.Status = model.FetchMeasured
			r.Elevation = *pt.Elevation
			r.Accuracy = p.Accuracy()
		}
	}

	if len(batchErr.Failed) > 0 {
		return results, batchErr
	}
	return results, nil
}

// fetchBatch walks the ranked providers until one answers. It never retries
// a provider.
func (f *Fetcher) fetchBatch(ctx context.Context, batch []model.Coordinate) ([]model.ProviderPoint, Provider, error) {
	var errs []error
	for _, p := range f.providers {
		if err := p.limiter.Wait(ctx); err != nil {
			errs = append(errs, fmt.Errorf("provider %s: rate limit wait: %w", p.Name(), err))
			return nil, nil, errors.Join(errs...)
		}

		points, err := p.Lookup(ctx, batch)
		if err == nil && len(points) != len(batch) {
			err = &model.ProviderError{
				Provider: p.Name(),
				Err:      fmt.Errorf("%d results for %d locations", len(points), len(batch)),
			}
		}
		if err != nil {
			f.logger.Warn("provider failed, falling back",
				zap.String("provider", p.Name()),
				zap.Int("points", len(batch)),
				zap.Error(err),
			)
			errs = append(errs, err)
			continue
		}
		return points, p.Provider, nil
	}
	return nil, nil, fmt.Errorf("all %d providers failed: %w", len(f.providers), errors.Join(errs...))
}
