package postgres

import (
	"context"
	"fmt"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
	"github.com/yepShinjo/ml-forecasting/internal/config"
	"golang.org/x/sync/semaphore"
)

type DB struct {
	*sqlx.DB
	Name string
	sem  *semaphore.Weighted
}

// DriverName maps DB_DRIVER to a registered database/sql driver.
func DriverName(driver string) (string, error) {
	switch driver {
	case "", "postgres", "pq":
		return "postgres", nil
	case "pgx":
		return "pgx", nil
	}
	return "", fmt.Errorf("unsupported database driver %q", driver)
}

// Open connects to one database on the configured server.
func Open(ctx context.Context, cfg config.DatabaseConfig, dbName string) (*DB, error) {
	driver, err := DriverName(cfg.Driver)
	if err != nil {
		return nil, err
	}
	if dbName == "" {
		dbName = cfg.DBName
	}

	db, err := sqlx.ConnectContext(ctx, driver, cfg.DSN(dbName))
	if err != nil {
		return nil, fmt.Errorf("could not connect to %s: %w", dbName, err)
	}

	maxOpen := cfg.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 25
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ops := cfg.MaxConcurrentOps
	if ops <= 0 {
		ops = 10
	}

	return &DB{DB: db, Name: dbName, sem: semaphore.NewWeighted(ops)}, nil
}

// WithTx executes a function within a transaction
func (db *DB) WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	// Acquire semaphore
	if err := db.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("could not acquire semaphore: %w", err)
	}
	defer db.sem.Release(1)

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.Error().Err(rbErr).Str("database", db.Name).Msg("could not rollback transaction")
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("could not commit transaction: %w", err)
	}

	return nil
}

// Pool keeps one connection pool per database name.
type Pool struct {
	cfg config.DatabaseConfig

	mu  sync.Mutex
	dbs map[string]*DB
}

func NewPool(cfg config.DatabaseConfig) *Pool {
	return &Pool{cfg: cfg, dbs: make(map[string]*DB)}
}

// Get returns the pool for dbName, connecting on first use.
func (p *Pool) Get(ctx context.Context, dbName string) (*DB, error) {
	if dbName == "" {
		dbName = p.cfg.DBName
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if db, ok := p.dbs[dbName]; ok {
		return db, nil
	}

	db, err := Open(ctx, p.cfg, dbName)
	if err != nil {
		return nil, err
	}
	p.dbs[dbName] = db
	return db, nil
}

// Close closes every pool.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	for name, db := range p.dbs {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing %s: %w", name, err)
		}
		delete(p.dbs, name)
	}
	return firstErr
}
