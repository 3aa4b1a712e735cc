package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"elevation_service/internal/domain/model"

	"github.com/jmoiron/sqlx"
)

// claimAttempts bounds how often ClaimNext retries after losing a race for
// the same candidate to another worker.
const claimAttempts = 5

var errClaimRace = errors.New("unit claimed concurrently")

type SQLWorkUnitRepository struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewSQLWorkUnitRepository(db *sqlx.DB) *SQLWorkUnitRepository {
	return &SQLWorkUnitRepository{db: db, now: time.Now}
}

const unitColumns = `unit_id, kind, min_lat, max_lat, min_lng, max_lng, road_ref, payload,
	priority, status, last_attempt_at, completed_at, error_count, last_error, claimed_by`

type unitRow struct {
	ID            string         `db:"unit_id"`
	Kind          string         `db:"kind"`
	MinLat        float64        `db:"min_lat"`
	MaxLat        float64        `db:"max_lat"`
	MinLng        float64        `db:"min_lng"`
	MaxLng        float64        `db:"max_lng"`
	RoadRef       sql.NullInt64  `db:"road_ref"`
	Payload       sql.NullString `db:"payload"`
	Priority      int            `db:"priority"`
	Status        string         `db:"status"`
	LastAttemptAt sql.NullInt64  `db:"last_attempt_at"`
	CompletedAt   sql.NullInt64  `db:"completed_at"`
	ErrorCount    int            `db:"error_count"`
	LastError     sql.NullString `db:"last_error"`
	ClaimedBy     sql.NullString `db:"claimed_by"`
}

func (r unitRow) toModel() (*model.WorkUnit, error) {
	u := &model.WorkUnit{
		ID:   r.ID,
		Kind: model.UnitKind(r.Kind),
		Bounds: model.Bounds{
			MinLat: r.MinLat,
			MaxLat: r.MaxLat,
			MinLon: r.MinLng,
			MaxLon: r.MaxLng,
		},
		RoadRef:    r.RoadRef.Int64,
		Priority:   r.Priority,
		Status:     model.UnitStatus(r.Status),
		ErrorCount: r.ErrorCount,
		LastError:  r.LastError.String,
		ClaimedBy:  r.ClaimedBy.String,
	}
	if r.LastAttemptAt.Valid {
		t := fromMillis(r.LastAttemptAt.Int64)
		u.LastAttemptAt = &t
	}
	if r.CompletedAt.Valid {
		t := fromMillis(r.CompletedAt.Int64)
		u.CompletedAt = &t
	}
	if r.Payload.Valid && r.Payload.String != "" {
		var road model.RoadSegment
		if err := json.Unmarshal([]byte(r.Payload.String), &road); err != nil {
			return nil, fmt.Errorf("failed to decode road payload of unit %s: %w", r.ID, err)
		}
		u.Road = &road
	}
	return u, nil
}

func (r *SQLWorkUnitRepository) InsertUnits(ctx context.Context, units []model.WorkUnit) (int, error) {
	if len(units) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin unit insert: %w", err)
	}
	defer tx.Rollback()

	const query = `
		INSERT INTO work_units (unit_id, kind, min_lat, max_lat, min_lng, max_lng, road_ref, payload,
			priority, status, error_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?)
		ON CONFLICT (unit_id) DO NOTHING`
	stmt, err := tx.PreparexContext(ctx, tx.Rebind(query))
	if err != nil {
		return 0, fmt.Errorf("failed to prepare unit insert: %w", err)
	}
	defer stmt.Close()

	created := toMillis(r.now())
	inserted := 0
	for _, u := range units {
		var roadRef sql.NullInt64
		var payload sql.NullString
		if u.Road != nil {
			data, err := json.Marshal(u.Road)
			if err != nil {
				return 0, fmt.Errorf("failed to encode road payload of unit %s: %w", u.ID, err)
			}
			payload = sql.NullString{String: string(data), Valid: true}
		}
		if u.RoadRef != 0 {
			roadRef = sql.NullInt64{Int64: u.RoadRef, Valid: true}
		}

		res, err := stmt.ExecContext(ctx,
			u.ID, string(u.Kind),
			u.Bounds.MinLat, u.Bounds.MaxLat, u.Bounds.MinLon, u.Bounds.MaxLon,
			roadRef, payload,
			u.Priority, string(model.StatusPending), created,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to insert unit %s: %w", u.ID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("failed to read insert result: %w", err)
		}
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit unit insert: %w", err)
	}
	return inserted, nil
}

func (r *SQLWorkUnitRepository) ClaimNext(ctx context.Context, p ClaimParams) (*model.WorkUnit, error) {
	for attempt := 0; attempt < claimAttempts; attempt++ {
		unit, err := r.tryClaim(ctx, p)
		if errors.Is(err, errClaimRace) {
			continue
		}
		return unit, err
	}
	return nil, model.ErrNoPendingUnit
}

// tryClaim selects the best candidate and flips it to in_progress only if it
// is still pending, so two claimers can never both win the same unit.
func (r *SQLWorkUnitRepository) tryClaim(ctx context.Context, p ClaimParams) (*model.WorkUnit, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin claim: %w", err)
	}
	defer tx.Rollback()

	selectQuery := `SELECT ` + unitColumns + `
		FROM work_units
		WHERE status = ?
		AND error_count < ?
		AND (last_attempt_at IS NULL OR last_attempt_at <= ?)
		ORDER BY priority ASC, (last_attempt_at IS NULL) DESC, last_attempt_at ASC, unit_id ASC
		LIMIT 1`

	var row unitRow
	err = tx.GetContext(ctx, &row, tx.Rebind(selectQuery),
		string(model.StatusPending),
		p.MaxErrors,
		toMillis(p.Now.Add(-p.Cooldown)),
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNoPendingUnit
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select next unit: %w", err)
	}

	const updateQuery = `
		UPDATE work_units
		SET status = ?, last_attempt_at = ?, claimed_by = ?
		WHERE unit_id = ? AND status = ?`
	res, err := tx.ExecContext(ctx, tx.Rebind(updateQuery),
		string(model.StatusInProgress), toMillis(p.Now), p.WorkerID,
		row.ID, string(model.StatusPending),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to claim unit %s: %w", row.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to read claim result: %w", err)
	}
	if n == 0 {
		return nil, errClaimRace
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit claim of unit %s: %w", row.ID, err)
	}

	row.Status = string(model.StatusInProgress)
	row.LastAttemptAt = sql.NullInt64{Int64: toMillis(p.Now), Valid: true}
	row.ClaimedBy = sql.NullString{String: p.WorkerID, Valid: true}
	return row.toModel()
}

func (r *SQLWorkUnitRepository) Complete(ctx context.Context, unitID string, at time.Time) (*model.WorkUnit, error) {
	const query = `
		UPDATE work_units
		SET status = ?, completed_at = ?, last_attempt_at = ?, claimed_by = NULL
		WHERE unit_id = ? AND status IN (?, ?)`
	res, err := r.db.ExecContext(ctx, r.db.Rebind(query),
		string(model.StatusCompleted), toMillis(at), toMillis(at),
		unitID, string(model.StatusPending), string(model.StatusInProgress),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to complete unit %s: %w", unitID, err)
	}
	return r.afterTransition(ctx, unitID, res)
}

func (r *SQLWorkUnitRepository) Fail(ctx context.Context, unitID string, at time.Time, maxErrors int, reason string) (*model.WorkUnit, error) {
	const query = `
		UPDATE work_units
		SET error_count = error_count + 1,
			status = CASE WHEN error_count + 1 >= ? THEN ? ELSE ? END,
			last_attempt_at = ?,
			last_error = ?,
			claimed_by = NULL
		WHERE unit_id = ? AND status IN (?, ?)`
	res, err := r.db.ExecContext(ctx, r.db.Rebind(query),
		maxErrors, string(model.StatusFailed), string(model.StatusPending),
		toMillis(at), reason,
		unitID, string(model.StatusPending), string(model.StatusInProgress),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to record failure of unit %s: %w", unitID, err)
	}
	return r.afterTransition(ctx, unitID, res)
}

func (r *SQLWorkUnitRepository) afterTransition(ctx context.Context, unitID string, res sql.Result) (*model.WorkUnit, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to read update result: %w", err)
	}
	unit, err := r.Get(ctx, unitID)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return unit, fmt.Errorf("unit %s is %s: %w", unitID, unit.Status, model.ErrInvalidTransition)
	}
	return unit, nil
}

func (r *SQLWorkUnitRepository) Get(ctx context.Context, unitID string) (*model.WorkUnit, error) {
	var row unitRow
	query := `SELECT ` + unitColumns + ` FROM work_units WHERE unit_id = ?`
	err := r.db.GetContext(ctx, &row, r.db.Rebind(query), unitID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("unit %s: %w", unitID, model.ErrUnitNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load unit %s: %w", unitID, err)
	}
	return row.toModel()
}

func (r *SQLWorkUnitRepository) CountByStatus(ctx context.Context) (map[model.UnitStatus]int, error) {
	var rows []struct {
		Status string `db:"status"`
		N      int    `db:"n"`
	}
	if err := r.db.SelectContext(ctx, &rows, `SELECT status, COUNT(*) AS n FROM work_units GROUP BY status`); err != nil {
		return nil, fmt.Errorf("failed to count units: %w", err)
	}

	counts := make(map[model.UnitStatus]int, len(rows))
	for _, row := range rows {
		counts[model.UnitStatus(row.Status)] = row.N
	}
	return counts, nil
}

func (r *SQLWorkUnitRepository) ListByStatus(ctx context.Context, status model.UnitStatus, limit int) ([]model.WorkUnit, error) {
	query := `SELECT ` + unitColumns + `
		FROM work_units
		WHERE status = ?
		ORDER BY priority ASC, unit_id ASC
		LIMIT ?`

	var rows []unitRow
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), string(status), limit); err != nil {
		return nil, fmt.Errorf("failed to list %s units: %w", status, err)
	}

	units := make([]model.WorkUnit, 0, len(rows))
	for _, row := range rows {
		u, err := row.toModel()
		if err != nil {
			return nil, err
		}
		units = append(units, *u)
	}
	return units, nil
}

func (r *SQLWorkUnitRepository) Release(ctx context.Context, unitID string) (*model.WorkUnit, error) {
	const query = `
		UPDATE work_units
		SET status = ?, claimed_by = NULL
		WHERE unit_id = ? AND status = ?`
	res, err := r.db.ExecContext(ctx, r.db.Rebind(query),
		string(model.StatusPending), unitID, string(model.StatusInProgress),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to release unit %s: %w", unitID, err)
	}
	return r.afterTransition(ctx, unitID, res)
}

func (r *SQLWorkUnitRepository) ReleaseStale(ctx context.Context, claimedBefore time.Time) (int, error) {
	const query = `
		UPDATE work_units
		SET status = ?, claimed_by = NULL
		WHERE status = ? AND last_attempt_at < ?`
	res, err := r.db.ExecContext(ctx, r.db.Rebind(query),
		string(model.StatusPending), string(model.StatusInProgress), toMillis(claimedBefore),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to release stale units: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read release result: %w", err)
	}
	return int(n), nil
}
