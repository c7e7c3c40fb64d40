package repository

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/yepShinjo/ml-forecasting/internal/domain"
)

// SalesFilter narrows the rows extracted from a POS database.
type SalesFilter struct {
	LocationIDs []int64
	Since       time.Time // Zero means no lower bound
}

// SalesRepository extracts sale lines from a POS schema and serves them as a
// sales source.
type SalesRepository struct {
	db     *sqlx.DB
	name   string
	filter SalesFilter
}

func NewSalesRepository(db *sqlx.DB, name string, filter SalesFilter) *SalesRepository {
	return &SalesRepository{db: db, name: name, filter: filter}
}

func (r *SalesRepository) Name() string {
	return r.name
}

// LoadSales returns every sale line, returns included, ordered by sale time.
func (r *SalesRepository) LoadSales(ctx context.Context) ([]domain.SaleRow, error) {
	query, args, err := salesQuery(r.filter)
	if err != nil {
		return nil, fmt.Errorf("error building sales query: %w", err)
	}

	var rows []domain.SaleRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("%w: loading sales from %s: %v", domain.ErrSourceUnavailable, r.name, err)
	}

	return rows, nil
}

func salesQuery(filter SalesFilter) (string, []interface{}, error) {
	builder := sq.
		Select(
			"s.sale_time",
			"s.location_id",
			"si.item_id",
			"COALESCE(si.item_variation_id, 0) AS item_variation_id",
			"COALESCE(i.name, '') AS item_name",
			"COALESCE(v.name, '') AS variation_name",
			"si.quantity_purchased",
		).
		From("sales_items si").
		Join("sales s ON s.sale_id = si.sale_id").
		LeftJoin("items i ON i.item_id = si.item_id").
		LeftJoin("item_variations v ON v.id = si.item_variation_id").
		OrderBy("s.sale_time", "si.item_id").
		PlaceholderFormat(sq.Dollar)

	if len(filter.LocationIDs) > 0 {
		builder = builder.Where(sq.Eq{"s.location_id": filter.LocationIDs})
	}
	if !filter.Since.IsZero() {
		builder = builder.Where(sq.GtOrEq{"s.sale_time": filter.Since})
	}

	return builder.ToSql()
}
