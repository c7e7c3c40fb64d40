package repository

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/yepShinjo/ml-forecasting/internal/domain"
	"github.com/yepShinjo/ml-forecasting/internal/repository/postgres"
)

const insertChunkSize = 500

const resultSchema = `
	CREATE TABLE IF NOT EXISTS forecast_results (
		id              BIGSERIAL PRIMARY KEY,
		run_id          TEXT NOT NULL,
		location_id     BIGINT NOT NULL,
		item_id         BIGINT NOT NULL,
		variation_id    BIGINT NOT NULL,
		reorder_level   BIGINT NOT NULL,
		replenish_level BIGINT NOT NULL,
		enough_history  BOOLEAN NOT NULL,
		z_score         DOUBLE PRECISION NOT NULL,
		demand_lt       DOUBLE PRECISION NOT NULL,
		sigma_lt        DOUBLE PRECISION NOT NULL,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	ALTER TABLE forecast_results ADD COLUMN IF NOT EXISTS method TEXT NOT NULL DEFAULT '';
	ALTER TABLE forecast_results ADD COLUMN IF NOT EXISTS item_name TEXT NOT NULL DEFAULT '';
	ALTER TABLE forecast_results ADD COLUMN IF NOT EXISTS variation_name TEXT NOT NULL DEFAULT '';
	CREATE INDEX IF NOT EXISTS idx_forecast_results_run ON forecast_results (run_id);

	CREATE TABLE IF NOT EXISTS location_item_levels (
		location_id                BIGINT NOT NULL,
		item_id                    BIGINT NOT NULL,
		variation_id               BIGINT NOT NULL,
		forecasted_reorder_level   BIGINT,
		forecasted_replenish_level BIGINT,
		created_at                 TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at                 TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (location_id, item_id, variation_id)
	);
	ALTER TABLE location_item_levels ADD COLUMN IF NOT EXISTS method TEXT NOT NULL DEFAULT '';
`

const upsertLevelsSuffix = `
	ON CONFLICT (location_id, item_id, variation_id) DO UPDATE SET
		forecasted_reorder_level = EXCLUDED.forecasted_reorder_level,
		forecasted_replenish_level = EXCLUDED.forecasted_replenish_level,
		method = EXCLUDED.method,
		updated_at = NOW()
`

// ResultRepository is the result sink: an append-only fact table plus the
// current-levels projection.
type ResultRepository interface {
	EnsureSchema(ctx context.Context) error
	AppendResults(ctx context.Context, runID string, results []domain.ReplenishmentResult) error
	UpsertCurrentLevels(ctx context.Context, results []domain.ReplenishmentResult) error
	ListCurrentLevels(ctx context.Context, filter domain.LevelsFilter) ([]domain.CurrentLevel, error)
	Ping(ctx context.Context) error
}

type resultRepository struct {
	db *postgres.DB
}

func NewResultRepository(db *postgres.DB) ResultRepository {
	return &resultRepository{db: db}
}

func (r *resultRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, resultSchema); err != nil {
		return fmt.Errorf("error ensuring result schema: %w", err)
	}
	return nil
}

func (r *resultRepository) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %s: %v", domain.ErrSourceUnavailable, r.db.Name, err)
	}
	return nil
}

// AppendResults inserts the run's results in one transaction.
func (r *resultRepository) AppendResults(ctx context.Context, runID string, results []domain.ReplenishmentResult) error {
	if len(results) == 0 {
		return nil
	}

	return r.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		for _, chunk := range chunks(results, insertChunkSize) {
			query, args, err := appendResultsQuery(runID, chunk)
			if err != nil {
				return fmt.Errorf("error building results insert: %w", err)
			}
			if _, err := tx.ExecContext(ctx, query, args...); err != nil {
				return fmt.Errorf("error appending results: %w", err)
			}
		}
		return nil
	})
}

// UpsertCurrentLevels writes the latest levels for every result key.
func (r *resultRepository) UpsertCurrentLevels(ctx context.Context, results []domain.ReplenishmentResult) error {
	if len(results) == 0 {
		return nil
	}

	return r.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		for _, chunk := range chunks(results, insertChunkSize) {
			query, args, err := upsertLevelsQuery(chunk)
			if err != nil {
				return fmt.Errorf("error building levels upsert: %w", err)
			}
			if _, err := tx.ExecContext(ctx, query, args...); err != nil {
				return fmt.Errorf("error upserting current levels: %w", err)
			}
		}
		return nil
	})
}

func (r *resultRepository) ListCurrentLevels(ctx context.Context, filter domain.LevelsFilter) ([]domain.CurrentLevel, error) {
	query, args, err := listLevelsQuery(filter)
	if err != nil {
		return nil, fmt.Errorf("error building levels query: %w", err)
	}

	var levels []domain.CurrentLevel
	if err := r.db.SelectContext(ctx, &levels, query, args...); err != nil {
		return nil, fmt.Errorf("error listing current levels: %w", err)
	}
	return levels, nil
}

func appendResultsQuery(runID string, results []domain.ReplenishmentResult) (string, []interface{}, error) {
	builder := sq.
		Insert("forecast_results").
		Columns(
			"run_id", "location_id", "item_id", "variation_id", "item_name", "variation_name",
			"reorder_level", "replenish_level", "enough_history", "z_score",
			"demand_lt", "sigma_lt", "method",
		).
		PlaceholderFormat(sq.Dollar)

	for _, res := range results {
		builder = builder.Values(
			runID, res.LocationID, res.ItemID, res.VariationID, res.ItemName, res.VariationName,
			res.ReorderLevel, res.ReplenishLevel, res.EnoughHistory, res.ZScore,
			res.DemandLT, res.SigmaLT, string(res.Method),
		)
	}

	return builder.ToSql()
}

func upsertLevelsQuery(results []domain.ReplenishmentResult) (string, []interface{}, error) {
	builder := sq.
		Insert("location_item_levels").
		Columns(
			"location_id", "item_id", "variation_id",
			"forecasted_reorder_level", "forecasted_replenish_level", "method",
		).
		Suffix(upsertLevelsSuffix).
		PlaceholderFormat(sq.Dollar)

	for _, res := range results {
		builder = builder.Values(
			res.LocationID, res.ItemID, res.VariationID,
			res.ReorderLevel, res.ReplenishLevel, string(res.Method),
		)
	}

	return builder.ToSql()
}

func listLevelsQuery(filter domain.LevelsFilter) (string, []interface{}, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	builder := sq.
		Select(
			"location_id", "item_id", "variation_id",
			"COALESCE(forecasted_reorder_level, 0) AS forecasted_reorder_level",
			"COALESCE(forecasted_replenish_level, 0) AS forecasted_replenish_level",
			"method", "updated_at",
		).
		From("location_item_levels").
		OrderBy("location_id", "item_id", "variation_id").
		Limit(uint64(limit)).
		PlaceholderFormat(sq.Dollar)

	if len(filter.LocationIDs) > 0 {
		builder = builder.Where(sq.Eq{"location_id": filter.LocationIDs})
	}
	if len(filter.ItemIDs) > 0 {
		builder = builder.Where(sq.Eq{"item_id": filter.ItemIDs})
	}
	if filter.Offset > 0 {
		builder = builder.Offset(uint64(filter.Offset))
	}

	return builder.ToSql()
}

func chunks[T any](items []T, size int) [][]T {
	var out [][]T
	for size < len(items) {
		items, out = items[size:], append(out, items[:size])
	}
	return append(out, items)
}
