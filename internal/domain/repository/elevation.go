package repository

import (
	"context"
	"database/sql"
	"fmt"

	"elevation_service/internal/domain/model"

	"github.com/jmoiron/sqlx"
)

type SQLElevationRepository struct {
	db *sqlx.DB
}

func NewSQLElevationRepository(db *sqlx.DB) *SQLElevationRepository {
	return &SQLElevationRepository{db: db}
}

type sampleRow struct {
	Lat        float64 `db:"lat"`
	Lng        float64 `db:"lng"`
	Elevation  float64 `db:"elevation"`
	Source     string  `db:"source"`
	Accuracy   string  `db:"accuracy"`
	AcquiredAt int64   `db:"acquired_at"`
}

func (r sampleRow) toModel() model.ElevationSample {
	return model.ElevationSample{
		Lat:        r.Lat,
		Lng:        r.Lng,
		Elevation:  r.Elevation,
		Source:     r.Source,
		Accuracy:   model.Accuracy(r.Accuracy),
		AcquiredAt: fromMillis(r.AcquiredAt),
	}
}

const upsertSampleQuery = `
	INSERT INTO elevation_samples (lat_key, lng_key, lat, lng, elevation, source, accuracy, acquired_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (lat_key, lng_key) DO UPDATE SET
		lat = excluded.lat,
		lng = excluded.lng,
		elevation = excluded.elevation,
		source = excluded.source,
		accuracy = excluded.accuracy,
		acquired_at = excluded.acquired_at`

func (r *SQLElevationRepository) UpsertBatch(ctx context.Context, samples []model.ElevationSample) error {
	if len(samples) == 0 {
		return nil
	}
	for _, s := range samples {
		if err := s.Validate(); err != nil {
			return err
		}
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin sample upsert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, tx.Rebind(upsertSampleQuery))
	if err != nil {
		return fmt.Errorf("failed to prepare sample upsert: %w", err)
	}
	defer stmt.Close()

	for _, s := range samples {
		latKey, lngKey := s.Coordinate().Key()
		snapped := s.Coordinate().Quantized()
		if _, err := stmt.ExecContext(ctx,
			latKey, lngKey,
			snapped.Lat, snapped.Lng,
			s.Elevation, s.Source, string(s.Accuracy), toMillis(s.AcquiredAt),
		); err != nil {
			return fmt.Errorf("failed to upsert sample %s: %w", s.Coordinate(), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit sample upsert: %w", err)
	}
	return nil
}

func (r *SQLElevationRepository) Nearby(ctx context.Context, c model.Coordinate, radius float64, limit int) ([]model.ElevationSample, error) {
	const query = `
		SELECT lat, lng, elevation, source, accuracy, acquired_at
		FROM elevation_samples
		WHERE lat BETWEEN ? AND ?
		AND lng BETWEEN ? AND ?
		ORDER BY ABS(lat - ?) + ABS(lng - ?) ASC, lat_key ASC, lng_key ASC
		LIMIT ?`

	var rows []sampleRow
	err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query),
		c.Lat-radius, c.Lat+radius,
		c.Lng-radius, c.Lng+radius,
		c.Lat, c.Lng,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query samples near %s: %w", c, err)
	}
	return toSamples(rows), nil
}

func (r *SQLElevationRepository) Within(ctx context.Context, b model.Bounds) ([]model.ElevationSample, error) {
	const query = `
		SELECT lat, lng, elevation, source, accuracy, acquired_at
		FROM elevation_samples
		WHERE lat BETWEEN ? AND ?
		AND lng BETWEEN ? AND ?
		ORDER BY lat_key ASC, lng_key ASC`

	var rows []sampleRow
	err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), b.MinLat, b.MaxLat, b.MinLon, b.MaxLon)
	if err != nil {
		return nil, fmt.Errorf("failed to query samples within bounds: %w", err)
	}
	return toSamples(rows), nil
}

func (r *SQLElevationRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM elevation_samples`); err != nil {
		return 0, fmt.Errorf("failed to count samples: %w", err)
	}
	return n, nil
}

func (r *SQLElevationRepository) Coverage(ctx context.Context) (*model.Bounds, error) {
	var row struct {
		MinLat sql.NullFloat64 `db:"min_lat"`
		MaxLat sql.NullFloat64 `db:"max_lat"`
		MinLng sql.NullFloat64 `db:"min_lng"`
		MaxLng sql.NullFloat64 `db:"max_lng"`
	}
	const query = `
		SELECT MIN(lat) AS min_lat, MAX(lat) AS max_lat, MIN(lng) AS min_lng, MAX(lng) AS max_lng
		FROM elevation_samples`
	if err := r.db.GetContext(ctx, &row, query); err != nil {
		return nil, fmt.Errorf("failed to query coverage: %w", err)
	}
	if !row.MinLat.Valid {
		return nil, nil
	}
	return &model.Bounds{
		MinLat: row.MinLat.Float64,
		MaxLat: row.MaxLat.Float64,
		MinLon: row.MinLng.Float64,
		MaxLon: row.MaxLng.Float64,
	}, nil
}

func toSamples(rows []sampleRow) []model.ElevationSample {
	samples := make([]model.ElevationSample, len(rows))
	for i, row := range rows {
		samples[i] = row.toModel()
	}
	return samples
}
