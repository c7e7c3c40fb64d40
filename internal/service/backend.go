package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/yepShinjo/ml-forecasting/internal/domain"
	"github.com/yepShinjo/ml-forecasting/internal/pipeline"
	"github.com/yepShinjo/ml-forecasting/internal/repository"
	"github.com/yepShinjo/ml-forecasting/internal/repository/postgres"
	"github.com/yepShinjo/ml-forecasting/internal/sales"
)

// RunStore tracks runs and the keys they omitted.
type RunStore interface {
	EnsureSchema(ctx context.Context) error
	CreateRun(ctx context.Context, run *pipeline.Run) error
	UpdateRun(ctx context.Context, run *pipeline.Run) error
	GetRun(ctx context.Context, id string) (*pipeline.Run, error)
	InsertOmissions(ctx context.Context, runID string, omissions []domain.Omission) error
	GetOmissions(ctx context.Context, runID string) ([]domain.Omission, error)
	GetRunStats(ctx context.Context, since time.Time) (*pipeline.RunMetrics, error)
}

// Backend groups the collaborators of a run against one data set. Runs and
// Results are optional; without them a run only produces CSV output.
type Backend struct {
	Sales   sales.Source
	Runs    RunStore
	Results repository.ResultRepository
}

// BackendProvider resolves a database name to its backend. An empty name
// selects the configured default database.
type BackendProvider interface {
	Backend(ctx context.Context, database string) (*Backend, error)
	ListDatabases(ctx context.Context) ([]string, error)
}

// PostgresBackends builds backends from a connection pool, creating the run
// and result tables the first time each database is used.
type PostgresBackends struct {
	pool     *postgres.Pool
	filter   repository.SalesFilter
	excluded []string

	mu    sync.Mutex
	ready map[string]bool
}

func NewPostgresBackends(pool *postgres.Pool, filter repository.SalesFilter, excluded []string) *PostgresBackends {
	return &PostgresBackends{pool: pool, filter: filter, excluded: excluded, ready: make(map[string]bool)}
}

// ListDatabases lists the databases on the server of the default database.
func (p *PostgresBackends) ListDatabases(ctx context.Context) ([]string, error) {
	db, err := p.pool.Get(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSourceUnavailable, err)
	}
	return repository.ListDatabases(ctx, db.DB, p.excluded)
}

func (p *PostgresBackends) Backend(ctx context.Context, database string) (*Backend, error) {
	db, err := p.pool.Get(ctx, database)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSourceUnavailable, err)
	}

	backend := &Backend{
		Sales:   repository.NewSalesRepository(db.DB, db.Name, p.filter),
		Runs:    pipeline.NewRepository(db.DB),
		Results: repository.NewResultRepository(db),
	}

	if err := p.ensureSchema(ctx, db.Name, backend); err != nil {
		return nil, fmt.Errorf("%w: preparing %s: %v", domain.ErrSourceUnavailable, db.Name, err)
	}

	return backend, nil
}

func (p *PostgresBackends) ensureSchema(ctx context.Context, name string, backend *Backend) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ready[name] {
		return nil
	}
	if err := backend.Runs.EnsureSchema(ctx); err != nil {
		return err
	}
	if err := backend.Results.EnsureSchema(ctx); err != nil {
		return err
	}
	p.ready[name] = true
	return nil
}
