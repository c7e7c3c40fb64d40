package pipeline

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/yepShinjo/ml-forecasting/internal/domain"
)

const runSchema = `
	CREATE TABLE IF NOT EXISTS forecast_runs (
		id                        TEXT PRIMARY KEY,
		source                    TEXT NOT NULL,
		granularity               TEXT NOT NULL,
		status                    TEXT NOT NULL,
		total_keys                INT NOT NULL DEFAULT 0,
		forecasted                INT NOT NULL DEFAULT 0,
		fallback_insufficient     INT NOT NULL DEFAULT 0,
		fallback_forecast_failure INT NOT NULL DEFAULT 0,
		omitted                   INT NOT NULL DEFAULT 0,
		started_at                TIMESTAMPTZ NOT NULL,
		completed_at              TIMESTAMPTZ,
		error_message             TEXT NOT NULL DEFAULT ''
	);
	CREATE TABLE IF NOT EXISTS forecast_run_omissions (
		id           BIGSERIAL PRIMARY KEY,
		run_id       TEXT NOT NULL REFERENCES forecast_runs(id) ON DELETE CASCADE,
		location_id  BIGINT NOT NULL,
		item_id      BIGINT NOT NULL,
		variation_id BIGINT NOT NULL,
		reason       TEXT NOT NULL,
		detail       TEXT NOT NULL DEFAULT ''
	);
`

// Repository handles database operations for run tracking
type Repository struct {
	db *sqlx.DB
}

// NewRepository creates a new run tracking repository
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// EnsureSchema creates the run tracking tables when missing
func (r *Repository) EnsureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, runSchema)
	return err
}

// CreateRun inserts a new run record
func (r *Repository) CreateRun(ctx context.Context, run *Run) error {
	query := `
		INSERT INTO forecast_runs (id, source, granularity, status, started_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.db.ExecContext(ctx, query,
		run.ID, run.Source, run.Granularity, run.Status, run.StartedAt,
	)
	return err
}

// UpdateRun stores the status and tallies of an existing run
func (r *Repository) UpdateRun(ctx context.Context, run *Run) error {
	query := `
		UPDATE forecast_runs
		SET status = $1, total_keys = $2, forecasted = $3, fallback_insufficient = $4,
		    fallback_forecast_failure = $5, omitted = $6, completed_at = $7, error_message = $8
		WHERE id = $9
	`

	_, err := r.db.ExecContext(ctx, query,
		run.Status, run.TotalKeys, run.Forecasted, run.FallbackInsufficient,
		run.FallbackForecastFailure, run.Omitted, run.CompletedAt, run.ErrorMessage, run.ID,
	)
	return err
}

// GetRun retrieves a run by ID, returning nil when it does not exist
func (r *Repository) GetRun(ctx context.Context, id string) (*Run, error) {
	query := `
		SELECT id, source, granularity, status, total_keys, forecasted,
		       fallback_insufficient, fallback_forecast_failure, omitted,
		       started_at, completed_at, error_message
		FROM forecast_runs
		WHERE id = $1
	`

	run := &Run{}
	err := r.db.GetContext(ctx, run, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return run, nil
}

// InsertOmissions records the audit trail of keys left out of a run
func (r *Repository) InsertOmissions(ctx context.Context, runID string, omissions []domain.Omission) error {
	if len(omissions) == 0 {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO forecast_run_omissions (run_id, location_id, item_id, variation_id, reason, detail)
		VALUES ($1, $2, $3, $4, $5, $6)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, o := range omissions {
		if _, err := stmt.ExecContext(ctx, runID,
			o.Key.LocationID, o.Key.ItemID, o.Key.VariationID, o.Reason, o.Detail,
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetOmissions lists the omissions recorded for a run
func (r *Repository) GetOmissions(ctx context.Context, runID string) ([]domain.Omission, error) {
	rows, err := r.db.QueryxContext(ctx, `
		SELECT location_id, item_id, variation_id, reason, detail
		FROM forecast_run_omissions
		WHERE run_id = $1
		ORDER BY id
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var omissions []domain.Omission
	for rows.Next() {
		var o domain.Omission
		if err := rows.Scan(&o.Key.LocationID, &o.Key.ItemID, &o.Key.VariationID, &o.Reason, &o.Detail); err != nil {
			return nil, err
		}
		omissions = append(omissions, o)
	}

	return omissions, rows.Err()
}

// GetRunStats retrieves aggregate statistics for runs started since the given time
func (r *Repository) GetRunStats(ctx context.Context, since time.Time) (*RunMetrics, error) {
	query := `
		SELECT
			COUNT(*) AS runs,
			COUNT(CASE WHEN status = $1 THEN 1 END) AS failed_runs,
			COALESCE(SUM(forecasted), 0) AS forecasted,
			COALESCE(SUM(fallback_forecast_failure), 0) AS fallback_forecast_failure,
			MAX(completed_at) AS last_completed_at
		FROM forecast_runs
		WHERE started_at >= $2
	`

	metrics := &RunMetrics{}
	if err := r.db.GetContext(ctx, metrics, query, StatusFailed, since); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &RunMetrics{}, nil
		}
		return nil, err
	}

	return metrics, nil
}
