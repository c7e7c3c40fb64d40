package config

import (
	"github.com/rs/zerolog/log"
	"github.com/yepShinjo/ml-forecasting/internal/domain"
	"github.com/yepShinjo/ml-forecasting/internal/pipeline/replenishment"
)

// EngineOptions converts the forecast settings into engine options. Invalid
// values are logged and replaced by the defaults.
func (c ForecastConfig) EngineOptions() replenishment.Options {
	opts := replenishment.DefaultOptions()

	granularity, err := domain.ParseGranularity(c.Granularity)
	if err != nil {
		log.Warn().Err(err).Msg("using default granularity")
	} else {
		opts.Granularity = granularity
	}

	if c.WindowMonths > 0 {
		opts.WindowMonths = c.WindowMonths
	}
	if c.TopN > 0 {
		opts.TopN = c.TopN
	}
	if c.Workers > 0 {
		opts.WorkerCount = c.Workers
	}
	if c.MinDays > 0 {
		opts.History.MinDays = c.MinDays
	}
	if c.MinWeeks > 0 {
		opts.History.MinWeeks = c.MinWeeks
	}

	bands, err := replenishment.ParseZBands(c.ZThresholds)
	switch {
	case err != nil:
		log.Warn().Err(err).Str("thresholds", c.ZThresholds).Msg("using default z thresholds")
	case len(bands) > 0:
		opts.ZTable.Bands = bands
	}
	if c.ZMax > 0 {
		opts.ZTable.MaxZ = c.ZMax
	}
	if c.ZDefault > 0 {
		opts.ZTable.DefaultZ = c.ZDefault
	}

	if c.LeadTimeDays > 0 {
		opts.Estimator.LeadTimeDays = c.LeadTimeDays
	}
	if c.MinSigma >= 0 {
		opts.Estimator.MinSigma = c.MinSigma
	}
	if c.IntervalDivisor > 0 {
		opts.Estimator.IntervalDivisor = c.IntervalDivisor
	}
	if c.TailDays > 0 {
		opts.Estimator.TailDays = c.TailDays
	}
	if c.ForecasterTimeoutSeconds > 0 {
		opts.Estimator.Timeout = c.ForecasterTimeout()
	}

	return opts
}
