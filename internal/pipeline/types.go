package pipeline

import (
	"runtime"
	"time"
)

// PipelineConfig holds configuration for a pipeline instance
type PipelineConfig struct {
	Name           string
	WorkerCount    int           // Number of concurrent key workers
	BatchSize      int           // Number of results to buffer before flushing to CSV
	FlushInterval  time.Duration // Max time to wait before flushing
	OutputDir      string        // Directory for result CSVs
	SourceParallel int           // Number of sources processed at once by the Orchestrator
	ProgressEvery  int           // Log progress every N keys (0 disables)
}

// DefaultPipelineConfig returns sensible defaults
func DefaultPipelineConfig(name string) PipelineConfig {
	return PipelineConfig{
		Name:           name,
		WorkerCount:    runtime.NumCPU(),
		BatchSize:      500,
		FlushInterval:  time.Minute,
		OutputDir:      "data/forecasts",
		SourceParallel: 1,
		ProgressEvery:  250,
	}
}

// RunStatus represents the current state of a forecast run
type RunStatus string

const (
	StatusPending    RunStatus = "pending"
	StatusProcessing RunStatus = "processing"
	StatusCompleted  RunStatus = "completed"
	StatusFailed     RunStatus = "failed"
)

// Run tracks a single execution of the engine against one source
type Run struct {
	ID                      string     `json:"id" db:"id"`
	Source                  string     `json:"source" db:"source"`
	Granularity             string     `json:"granularity" db:"granularity"`
	Status                  RunStatus  `json:"status" db:"status"`
	TotalKeys               int        `json:"total_keys" db:"total_keys"`
	Forecasted              int        `json:"forecasted" db:"forecasted"`
	FallbackInsufficient    int        `json:"fallback_insufficient_history" db:"fallback_insufficient"`
	FallbackForecastFailure int        `json:"fallback_forecast_failure" db:"fallback_forecast_failure"`
	Omitted                 int        `json:"omitted" db:"omitted"`
	StartedAt               time.Time  `json:"started_at" db:"started_at"`
	CompletedAt             *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	ErrorMessage            string     `json:"error_message,omitempty" db:"error_message"`
}

// RunMetrics holds aggregate run statistics for monitoring
type RunMetrics struct {
	Runs                    int64      `db:"runs"`
	FailedRuns              int64      `db:"failed_runs"`
	Forecasted              int64      `db:"forecasted"`
	FallbackForecastFailure int64      `db:"fallback_forecast_failure"`
	LastCompletedAt         *time.Time `db:"last_completed_at"`
}
