package repository

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS elevation_samples (
		lat_key     BIGINT NOT NULL,
		lng_key     BIGINT NOT NULL,
		lat         DOUBLE PRECISION NOT NULL,
		lng         DOUBLE PRECISION NOT NULL,
		elevation   DOUBLE PRECISION NOT NULL,
		source      TEXT NOT NULL,
		accuracy    TEXT NOT NULL,
		acquired_at BIGINT NOT NULL,
		PRIMARY KEY (lat_key, lng_key)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_elevation_samples_location ON elevation_samples (lat, lng)`,
	`CREATE TABLE IF NOT EXISTS work_units (
		unit_id         TEXT PRIMARY KEY,
		kind            TEXT NOT NULL,
		min_lat         DOUBLE PRECISION NOT NULL DEFAULT 0,
		max_lat         DOUBLE PRECISION NOT NULL DEFAULT 0,
		min_lng         DOUBLE PRECISION NOT NULL DEFAULT 0,
		max_lng         DOUBLE PRECISION NOT NULL DEFAULT 0,
		road_ref        BIGINT,
		payload         TEXT,
		priority        INTEGER NOT NULL,
		status          TEXT NOT NULL,
		last_attempt_at BIGINT,
		completed_at    BIGINT,
		error_count     INTEGER NOT NULL DEFAULT 0,
		last_error      TEXT,
		claimed_by      TEXT,
		created_at      BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_work_units_queue ON work_units (status, priority, last_attempt_at)`,
	`CREATE TABLE IF NOT EXISTS road_profiles (
		segment_id        TEXT PRIMARY KEY,
		osm_way_id        BIGINT NOT NULL,
		road_type         TEXT NOT NULL,
		surface           TEXT NOT NULL,
		length_meters     DOUBLE PRECISION NOT NULL,
		sample_interval   DOUBLE PRECISION NOT NULL,
		min_elevation     DOUBLE PRECISION NOT NULL,
		max_elevation     DOUBLE PRECISION NOT NULL,
		total_ascent      DOUBLE PRECISION NOT NULL,
		total_descent     DOUBLE PRECISION NOT NULL,
		max_gradient      DOUBLE PRECISION NOT NULL,
		avg_gradient      DOUBLE PRECISION NOT NULL,
		suitability_score DOUBLE PRECISION NOT NULL,
		samples           TEXT NOT NULL,
		created_at        BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_road_profiles_way ON road_profiles (osm_way_id)`,
}

// Open connects to the database and applies the schema. driver is
// "postgres" or "sqlite3".
func Open(ctx context.Context, driver, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", driver, err)
	}

	if driver == "sqlite3" {
		// sqlite allows a single writer; an in-memory database also lives
		// on exactly one connection.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	if err := Migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func Migrate(ctx context.Context, db *sqlx.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// ParseBBox parses "minLat,minLng,maxLat,maxLng".
func ParseBBox(bbox string) (minLat, minLon, maxLat, maxLon float64, err error) {
	parts := strings.Split(bbox, ",")
	if len(parts) != 4 {
		return 0, 0, 0, 0, fmt.Errorf("bbox must have 4 components, got %d", len(parts))
	}

	vals := make([]float64, 4)
	names := []string{"minLat", "minLng", "maxLat", "maxLng"}
	for i, part := range parts {
		vals[i], err = strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return 0, 0, 0, 0, fmt.Errorf("invalid %s: %w", names[i], err)
		}
	}
	minLat, minLon, maxLat, maxLon = vals[0], vals[1], vals[2], vals[3]

	if minLat < -90 || minLat > 90 || maxLat < -90 || maxLat > 90 {
		return 0, 0, 0, 0, fmt.Errorf("latitude out of range [-90, 90]")
	}
	if minLon < -180 || minLon > 180 || maxLon < -180 || maxLon > 180 {
		return 0, 0, 0, 0, fmt.Errorf("longitude out of range [-180, 180]")
	}
	if minLat > maxLat || minLon > maxLon {
		return 0, 0, 0, 0, fmt.Errorf("minLat must be <= maxLat and minLng must be <= maxLng")
	}

	return minLat, minLon, maxLat, maxLon, nil
}
