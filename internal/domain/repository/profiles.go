package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"elevation_service/internal/domain/model"

	"github.com/jmoiron/sqlx"
)

type SQLProfileRepository struct {
	db *sqlx.DB
}

func NewSQLProfileRepository(db *sqlx.DB) *SQLProfileRepository {
	return &SQLProfileRepository{db: db}
}

type profileRow struct {
	model.RoadElevationProfile
	SamplesJSON string `db:"samples"`
	CreatedAtMs int64  `db:"created_at"`
}

// Save stores a finished profile, replacing an earlier profile of the same segment.
func (r *SQLProfileRepository) Save(ctx context.Context, p *model.RoadElevationProfile) error {
	const query = `
		INSERT INTO road_profiles (
			segment_id, osm_way_id, road_type, surface,
			length_meters, sample_interval,
			min_elevation, max_elevation, total_ascent, total_descent,
			max_gradient, avg_gradient, suitability_score,
			samples, created_at
		) VALUES (
			?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?
		)
		ON CONFLICT (segment_id) DO UPDATE SET
			osm_way_id = excluded.osm_way_id,
			road_type = excluded.road_type,
			surface = excluded.surface,
			length_meters = excluded.length_meters,
			sample_interval = excluded.sample_interval,
			min_elevation = excluded.min_elevation,
			max_elevation = excluded.max_elevation,
			total_ascent = excluded.total_ascent,
			total_descent = excluded.total_descent,
			max_gradient = excluded.max_gradient,
			avg_gradient = excluded.avg_gradient,
			suitability_score = excluded.suitability_score,
			samples = excluded.samples,
			created_at = excluded.created_at`

	samplesJSON, err := json.Marshal(p.Samples)
	if err != nil {
		return fmt.Errorf("failed to marshal samples: %w", err)
	}

	_, err = r.db.ExecContext(ctx, r.db.Rebind(query),
		p.SegmentID, p.OSMWayID, p.RoadType, p.Surface,
		p.LengthMeters, p.SampleInterval,
		p.MinElevation, p.MaxElevation, p.TotalAscent, p.TotalDescent,
		p.MaxGradient, p.AvgGradient, p.SuitabilityScore,
		string(samplesJSON), toMillis(p.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save profile %s: %w", p.SegmentID, err)
	}
	return nil
}

func (r *SQLProfileRepository) Get(ctx context.Context, segmentID string) (*model.RoadElevationProfile, error) {
	const query = `
		SELECT segment_id, osm_way_id, road_type, surface,
			length_meters, sample_interval,
			min_elevation, max_elevation, total_ascent, total_descent,
			max_gradient, avg_gradient, suitability_score,
			samples, created_at
		FROM road_profiles
		WHERE segment_id = ?`

	var row profileRow
	err := r.db.GetContext(ctx, &row, r.db.Rebind(query), segmentID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("segment %s: %w", segmentID, model.ErrProfileNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load profile %s: %w", segmentID, err)
	}

	p := row.RoadElevationProfile
	if err := json.Unmarshal([]byte(row.SamplesJSON), &p.Samples); err != nil {
		return nil, fmt.Errorf("failed to decode samples of profile %s: %w", segmentID, err)
	}
	p.CreatedAt = fromMillis(row.CreatedAtMs)
	return &p, nil
}
