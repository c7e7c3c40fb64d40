package replenishment

import (
	"runtime"
	"time"

	"github.com/yepShinjo/ml-forecasting/internal/domain"
)

// Options configures one engine run.
type Options struct {
	Granularity  domain.Granularity
	WindowMonths int // Trailing window, ending at the latest date in the whole dataset
	TopN         int // Keep only keys of the N best-selling items (0 = unlimited)
	History      HistoryPolicy
	ZTable       ZTable
	Estimator    EstimatorConfig
	WorkerCount  int
}

// DefaultOptions returns the reference policy: 12-month window, 20 days / 4 weeks,
// 7-day lead time.
func DefaultOptions() Options {
	return Options{
		Granularity:  domain.GranularityLocationItemVariation,
		WindowMonths: 12,
		History:      DefaultHistoryPolicy(),
		ZTable:       DefaultZTable(),
		Estimator:    DefaultEstimatorConfig(),
		WorkerCount:  runtime.NumCPU(),
	}
}

// EstimatorConfig holds the demand estimator constants.
type EstimatorConfig struct {
	LeadTimeDays    int
	MinSigma        float64       // Sigma reported by the moving-average fallback
	IntervalDivisor float64       // Converts forecaster interval width to one sigma
	TailDays        int           // Observations averaged by the fallback
	Timeout         time.Duration // Per forecaster call (0 = no extra deadline)
}

// DefaultEstimatorConfig matches a Prophet-style forecaster with ~99.9% intervals.
func DefaultEstimatorConfig() EstimatorConfig {
	return EstimatorConfig{
		LeadTimeDays:    7,
		MinSigma:        1,
		IntervalDivisor: 3.29,
		TailDays:        7,
		Timeout:         60 * time.Second,
	}
}

// Estimate is the lead-time demand and its uncertainty for one key.
type Estimate struct {
	DemandLT     float64
	SigmaLT      float64
	Method       domain.EstimationMethod
	FailureCause error // Set on the forecast-failure path only
}

// Levels are the integer outputs of the level calculator.
type Levels struct {
	SafetyStock    float64
	ReorderLevel   int64
	ReplenishLevel int64
}
