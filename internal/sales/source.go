package sales

import (
	"context"

	"github.com/yepShinjo/ml-forecasting/internal/domain"
)

// Source delivers transaction-level sale rows for one dataset (a database,
// a set of exports).
type Source interface {
	Name() string
	LoadSales(ctx context.Context) ([]domain.SaleRow, error)
}

// Static serves rows that are already in memory.
type Static struct {
	SourceName string
	Rows       []domain.SaleRow
}

func (s Static) Name() string { return s.SourceName }

func (s Static) LoadSales(context.Context) ([]domain.SaleRow, error) {
	return s.Rows, nil
}
