package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/yepShinjo/ml-forecasting/internal/cache"
	"github.com/yepShinjo/ml-forecasting/internal/domain"
	"github.com/yepShinjo/ml-forecasting/internal/forecast"
	"github.com/yepShinjo/ml-forecasting/internal/pipeline"
	"github.com/yepShinjo/ml-forecasting/internal/pipeline/replenishment"
	"github.com/yepShinjo/ml-forecasting/internal/repository"
	"github.com/yepShinjo/ml-forecasting/internal/sales"
	"github.com/yepShinjo/ml-forecasting/internal/storage"
)

var (
	// ErrInvalidRequest marks caller input that cannot be used.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrRunNotFound is returned when a run id is unknown.
	ErrRunNotFound = errors.New("run not found")
	// ErrNoBackend is returned for database operations when none is configured.
	ErrNoBackend = errors.New("no database configured")
)

// Options configures the service.
type Options struct {
	Engine        replenishment.Options
	Pipeline      pipeline.PipelineConfig // OutputDir "" disables CSV output
	UpsertLevels  bool
	StoragePrefix string
}

// RunRequest selects the database and, optionally, the granularity of a run.
type RunRequest struct {
	Database    string `json:"database"`
	Granularity string `json:"granularity"`
}

// RunDetail is a tracked run with its omission audit.
type RunDetail struct {
	Run       *pipeline.Run     `json:"run"`
	Omissions []domain.Omission `json:"omissions"`
}

type ReplenishmentService struct {
	forecaster forecast.Forecaster
	backends   BackendProvider
	levels     cache.LevelsCache
	store      storage.ObjectStorage
	opts       Options
}

// NewReplenishmentService wires a service. backends and store may be nil.
func NewReplenishmentService(
	f forecast.Forecaster,
	backends BackendProvider,
	levels cache.LevelsCache,
	store storage.ObjectStorage,
	opts Options,
) *ReplenishmentService {
	if levels == nil {
		levels = cache.NewNoopLevelsCache()
	}
	if opts.Pipeline.Name == "" {
		opts.Pipeline.Name = "replenishment"
	}
	return &ReplenishmentService{
		forecaster: f,
		backends:   backends,
		levels:     levels,
		store:      store,
		opts:       opts,
	}
}

// RunDatabase runs the engine against one database and persists the outcome.
func (s *ReplenishmentService) RunDatabase(ctx context.Context, req RunRequest) (*domain.RunOutput, error) {
	opts, err := s.engineOptions(req.Granularity)
	if err != nil {
		return nil, err
	}

	backend, err := s.backend(ctx, req.Database)
	if err != nil {
		return nil, err
	}

	return s.Run(ctx, backend, opts)
}

// ListDatabases returns the databases runs can target.
func (s *ReplenishmentService) ListDatabases(ctx context.Context) ([]string, error) {
	if s.backends == nil {
		return nil, ErrNoBackend
	}
	return s.backends.ListDatabases(ctx)
}

// RunDatabases selects databases by arg ("-1" all, "N" the first N, or a
// name) and runs them, parallel at a time. A failing database does not stop
// the others.
func (s *ReplenishmentService) RunDatabases(ctx context.Context, arg string, parallel int) ([]pipeline.SourceOutcome, error) {
	available, err := s.ListDatabases(ctx)
	if err != nil {
		return nil, err
	}
	selected, err := repository.SelectDatabases(available, arg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	cfg := s.opts.Pipeline
	cfg.SourceParallel = parallel
	orchestrator := pipeline.NewOrchestrator(cfg)

	return orchestrator.Run(ctx, selected, func(ctx context.Context, database string) (*domain.RunSummary, error) {
		out, err := s.RunDatabase(ctx, RunRequest{Database: database})
		if out == nil {
			return nil, err
		}
		return &out.Summary, err
	}), nil
}

// RunSource runs the engine against a standalone source. Output goes to CSV only.
func (s *ReplenishmentService) RunSource(ctx context.Context, src sales.Source) (*domain.RunOutput, error) {
	return s.Run(ctx, &Backend{Sales: src}, s.opts.Engine)
}

// Run executes one complete run. Unreachable sources or sinks abort before any
// key is processed. Otherwise the output is always returned, together with the
// cancellation or persistence error when there was one.
func (s *ReplenishmentService) Run(ctx context.Context, backend *Backend, opts replenishment.Options) (*domain.RunOutput, error) {
	engine := replenishment.NewEngine(s.forecaster, opts)
	source := backend.Sales.Name()

	run := &pipeline.Run{
		ID:          uuid.NewString(),
		Source:      source,
		Granularity: string(engine.Options().Granularity),
		Status:      pipeline.StatusProcessing,
		StartedAt:   time.Now(),
	}
	logger := log.With().Str("run_id", run.ID).Str("source", source).Logger()

	// 1. Sinks must be reachable before anything is computed
	if backend.Results != nil {
		if err := backend.Results.Ping(ctx); err != nil {
			return nil, fmt.Errorf("%w: result sink for %s: %v", domain.ErrSourceUnavailable, source, err)
		}
	}
	if backend.Runs != nil {
		if err := backend.Runs.CreateRun(ctx, run); err != nil {
			return nil, fmt.Errorf("%w: run tracking for %s: %v", domain.ErrSourceUnavailable, source, err)
		}
	}

	// 2. Load sales
	rows, err := backend.Sales.LoadSales(ctx)
	if err != nil {
		if !errors.Is(err, domain.ErrSourceUnavailable) {
			err = fmt.Errorf("%w: %v", domain.ErrSourceUnavailable, err)
		}
		s.finishRun(context.WithoutCancel(ctx), backend, run, nil, err)
		return nil, err
	}
	logger.Info().Int("rows", len(rows)).Msg("sales loaded")

	// 3. Compute
	out, runErr := engine.Run(ctx, rows)
	out.Summary.RunID = run.ID
	out.Summary.Source = source

	// 4. Persist what was computed, even for a cancelled run
	persistCtx := context.WithoutCancel(ctx)
	persistErr := s.persist(persistCtx, backend, run, out, logger)

	// 5. Close the run record
	finalErr := runErr
	if finalErr == nil && persistErr != nil {
		finalErr = fmt.Errorf("persisting run %s: %w", run.ID, persistErr)
	}
	s.finishRun(persistCtx, backend, run, &out.Summary, finalErr)

	return out, finalErr
}

func (s *ReplenishmentService) persist(
	ctx context.Context,
	backend *Backend,
	run *pipeline.Run,
	out *domain.RunOutput,
	logger zerolog.Logger,
) error {
	var errs []error

	if backend.Results != nil {
		if err := backend.Results.AppendResults(ctx, run.ID, out.Results); err != nil {
			errs = append(errs, err)
		}
		if s.opts.UpsertLevels && hasLocation(out.Summary.Granularity) {
			if err := backend.Results.UpsertCurrentLevels(ctx, out.Results); err != nil {
				errs = append(errs, err)
			}
		}
		if err := s.levels.InvalidateDatabase(ctx, run.Source); err != nil {
			logger.Warn().Err(err).Msg("levels cache invalidation failed")
		}
	}

	if backend.Runs != nil {
		if err := backend.Runs.InsertOmissions(ctx, run.ID, out.Summary.Omissions); err != nil {
			errs = append(errs, err)
		}
	}

	if s.opts.Pipeline.OutputDir != "" {
		writer := pipeline.NewStreamingWriter(
			s.opts.Pipeline,
			run.Source,
			run.StartedAt,
			storage.UploadCallback(s.store, s.opts.StoragePrefix, run.Source),
		)
		if err := writer.Add(out.Results...); err != nil {
			errs = append(errs, err)
		} else if err := writer.Finalize(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (s *ReplenishmentService) finishRun(ctx context.Context, backend *Backend, run *pipeline.Run, summary *domain.RunSummary, runErr error) {
	completed := time.Now()
	run.CompletedAt = &completed
	run.Status = pipeline.StatusCompleted
	if runErr != nil {
		run.Status = pipeline.StatusFailed
		run.ErrorMessage = runErr.Error()
	}
	if summary != nil {
		run.TotalKeys = summary.TotalKeys
		run.Forecasted = summary.Forecasted
		run.FallbackInsufficient = summary.FallbackInsufficient
		run.FallbackForecastFailure = summary.FallbackForecastFailure
		run.Omitted = summary.Omitted
	}

	if backend.Runs == nil {
		return
	}
	if err := backend.Runs.UpdateRun(ctx, run); err != nil {
		log.Error().Err(err).Str("run_id", run.ID).Msg("failed to update run")
	}
}

// GetRun returns a tracked run and its omissions.
func (s *ReplenishmentService) GetRun(ctx context.Context, database, id string) (*RunDetail, error) {
	backend, err := s.backend(ctx, database)
	if err != nil {
		return nil, err
	}

	run, err := backend.Runs.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, ErrRunNotFound
	}

	omissions, err := backend.Runs.GetOmissions(ctx, id)
	if err != nil {
		return nil, err
	}
	if omissions == nil {
		omissions = make([]domain.Omission, 0)
	}

	return &RunDetail{Run: run, Omissions: omissions}, nil
}

// RunStats aggregates the runs started in the last days.
func (s *ReplenishmentService) RunStats(ctx context.Context, database string, days int) (*pipeline.RunMetrics, error) {
	if days <= 0 {
		days = 30
	}
	backend, err := s.backend(ctx, database)
	if err != nil {
		return nil, err
	}
	return backend.Runs.GetRunStats(ctx, time.Now().AddDate(0, 0, -days))
}

// ListLevels returns current levels, served from cache when possible. Entries
// are keyed by the resolved database name so run invalidation reaches them.
func (s *ReplenishmentService) ListLevels(ctx context.Context, database string, filter domain.LevelsFilter) ([]domain.CurrentLevel, error) {
	backend, err := s.backend(ctx, database)
	if err != nil {
		return nil, err
	}
	if backend.Sales != nil {
		database = backend.Sales.Name()
	}

	if levels, ok, err := s.levels.GetLevels(ctx, database, filter); err == nil && ok {
		return levels, nil
	} else if err != nil {
		log.Warn().Err(err).Msg("levels: cache get failed")
	}

	levels, err := backend.Results.ListCurrentLevels(ctx, filter)
	if err != nil {
		return nil, err
	}
	if levels == nil {
		levels = make([]domain.CurrentLevel, 0)
	}

	if err := s.levels.SetLevels(ctx, database, filter, levels); err != nil {
		log.Warn().Err(err).Msg("levels: cache set failed")
	}

	return levels, nil
}

func (s *ReplenishmentService) backend(ctx context.Context, database string) (*Backend, error) {
	if s.backends == nil {
		return nil, ErrNoBackend
	}
	return s.backends.Backend(ctx, database)
}

func (s *ReplenishmentService) engineOptions(granularity string) (replenishment.Options, error) {
	opts := s.opts.Engine
	if granularity == "" {
		return opts, nil
	}
	g, err := domain.ParseGranularity(granularity)
	if err != nil {
		return opts, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	opts.Granularity = g
	return opts, nil
}

// hasLocation reports whether keys of g identify a location, which the
// current-levels projection requires.
func hasLocation(g domain.Granularity) bool {
	return g == domain.GranularityLocationItem || g == domain.GranularityLocationItemVariation
}
