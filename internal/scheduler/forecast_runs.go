package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog/log"
	"github.com/yepShinjo/ml-forecasting/internal/pipeline"
)

// RunFunc runs the scheduled databases.
type RunFunc func(ctx context.Context, target string, parallel int) ([]pipeline.SourceOutcome, error)

// Config holds the schedule settings.
type Config struct {
	Enabled  bool
	Cron     string
	Target   string // "-1", "N" or a database name
	Parallel int
	Location *time.Location
}

// ForecastRuns triggers replenishment runs on a cron schedule. A tick that
// fires while the previous run is still going is skipped.
type ForecastRuns struct {
	scheduler *gocron.Scheduler
	config    Config
	run       RunFunc

	mu                sync.Mutex
	running           bool
	lastStartedAt     time.Time
	lastCompletedAt   time.Time
	lastFailedSources int
}

// Status describes the most recent scheduled run.
type Status struct {
	Running           bool      `json:"running"`
	LastStartedAt     time.Time `json:"last_started_at"`
	LastCompletedAt   time.Time `json:"last_completed_at"`
	LastFailedSources int       `json:"last_failed_sources"`
}

func NewForecastRuns(cfg Config, run RunFunc) *ForecastRuns {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Target == "" {
		cfg.Target = "-1"
	}
	if cfg.Parallel < 1 {
		cfg.Parallel = 1
	}

	return &ForecastRuns{
		scheduler: gocron.NewScheduler(cfg.Location),
		config:    cfg,
		run:       run,
	}
}

// Start schedules the job and stops the scheduler when ctx is cancelled.
func (f *ForecastRuns) Start(ctx context.Context) error {
	if !f.config.Enabled {
		log.Info().Msg("scheduled forecast runs disabled")
		return nil
	}

	if _, err := f.scheduler.Cron(f.config.Cron).Do(func() {
		f.RunNow(ctx)
	}); err != nil {
		return fmt.Errorf("error scheduling forecast runs: %w", err)
	}

	f.scheduler.StartAsync()
	log.Info().Str("cron", f.config.Cron).Str("target", f.config.Target).Msg("scheduled forecast runs started")

	go func() {
		<-ctx.Done()
		log.Info().Msg("stopping scheduled forecast runs")
		f.scheduler.Stop()
	}()

	return nil
}

// RunNow runs the target once unless a run is already in progress. It
// reports whether the run happened.
func (f *ForecastRuns) RunNow(ctx context.Context) bool {
	f.mu.Lock()
	if f.running {
		f.mu.Unlock()
		log.Info().Msg("forecast run already in progress, skipping")
		return false
	}
	f.running = true
	f.lastStartedAt = time.Now()
	f.mu.Unlock()

	failed := 0
	defer func() {
		f.mu.Lock()
		f.running = false
		f.lastCompletedAt = time.Now()
		f.lastFailedSources = failed
		f.mu.Unlock()
	}()

	outcomes, err := f.run(ctx, f.config.Target, f.config.Parallel)
	if err != nil {
		log.Error().Err(err).Str("target", f.config.Target).Msg("scheduled forecast run failed")
		failed = -1
		return true
	}

	for _, o := range outcomes {
		if o.Err != nil {
			failed++
		}
	}
	log.Info().
		Int("sources", len(outcomes)).
		Int("failed", failed).
		Msg("scheduled forecast run finished")

	return true
}

func (f *ForecastRuns) Status() Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return Status{
		Running:           f.running,
		LastStartedAt:     f.lastStartedAt,
		LastCompletedAt:   f.lastCompletedAt,
		LastFailedSources: f.lastFailedSources,
	}
}
