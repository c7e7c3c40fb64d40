package replenishment

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/yepShinjo/ml-forecasting/internal/domain"
	"github.com/yepShinjo/ml-forecasting/internal/forecast"
	"github.com/yepShinjo/ml-forecasting/internal/pipeline"
)

// Engine computes replenishment levels for every key of a sales dataset.
type Engine struct {
	opts       Options
	estimator  *DemandEstimator
	calculator *LevelCalculator
	worker     *pipeline.Worker

	beforeKey func(domain.EntityKey) // test hook, runs inside the per-key boundary
}

// NewEngine creates an engine around a forecaster.
func NewEngine(f forecast.Forecaster, opts Options) *Engine {
	if opts.ZTable.Bands == nil && opts.ZTable.MaxZ == 0 {
		opts.ZTable = DefaultZTable()
	}
	if opts.History == (HistoryPolicy{}) {
		opts.History = DefaultHistoryPolicy()
	}
	if opts.Granularity == "" {
		opts.Granularity = domain.GranularityLocationItemVariation
	}

	cfg := pipeline.DefaultPipelineConfig("replenishment")
	if opts.WorkerCount > 0 {
		cfg.WorkerCount = opts.WorkerCount
	}

	return &Engine{
		opts:       opts,
		estimator:  NewDemandEstimator(f, opts.Estimator),
		calculator: NewLevelCalculator(),
		worker:     pipeline.NewWorker(cfg),
	}
}

// Options returns the effective options.
func (e *Engine) Options() Options {
	return e.opts
}

// errKeyCancelled marks a key whose forecast was cut short by run cancellation.
var errKeyCancelled = errors.New("key cancelled during forecast")

type keyOutcome struct {
	result  *domain.ReplenishmentResult
	omitted *domain.Omission
}

// Run computes one result per key. Results are ordered by key. When ctx is
// cancelled, keys not yet started and keys whose forecast was interrupted are
// recorded as cancelled omissions and the partial output is returned together
// with ctx.Err(). A cancel that lands after every key finished is not an error.
func (e *Engine) Run(ctx context.Context, rows []domain.SaleRow) (*domain.RunOutput, error) {
	started := time.Now()

	// 1. Aggregate once; the window cutoff is fixed for the whole run
	agg := Aggregate(rows, AggregateOptions{
		Granularity:  e.opts.Granularity,
		WindowMonths: e.opts.WindowMonths,
		TopN:         e.opts.TopN,
	})

	out := &domain.RunOutput{
		Results: make([]domain.ReplenishmentResult, 0, len(agg.Keys)),
		Summary: domain.RunSummary{
			Granularity: e.opts.Granularity,
			LatestDate:  agg.LatestDate,
			Cutoff:      agg.Cutoff,
			TotalKeys:   len(agg.Keys) + len(agg.Dropped),
			StartedAt:   started,
		},
	}
	out.Summary.ReturnRows, out.Summary.ReturnUnits = agg.ReturnTotals()

	for _, key := range agg.Dropped {
		out.Summary.Omit(domain.Omission{
			Key:    key,
			Reason: domain.OmissionDataQuality,
			Detail: domain.ErrDataQuality.Error(),
		})
	}

	// 2. Pre-index history quality and volatility before fan-out
	history := make(map[domain.EntityKey]domain.HistoryQualityRecord, len(agg.Keys))
	volatility := make(map[domain.EntityKey]domain.VolatilityRecord, len(agg.Keys))
	for _, key := range agg.Keys {
		history[key] = ClassifyHistory(key, agg.Series[key], e.opts.History)
		if rec, ok := ScoreVolatility(key, agg.Series[key], e.opts.ZTable); ok {
			volatility[key] = rec
		}
	}

	// 3. Fan out; each slot is written by exactly one worker
	outcomes := make([]keyOutcome, len(agg.Keys))
	scheduled := e.worker.ProcessBatch(ctx, len(agg.Keys), func(ctx context.Context, workerID, i int) {
		key := agg.Keys[i]
		res, err := e.processKey(ctx, key, agg, history, volatility)
		if errors.Is(err, errKeyCancelled) {
			outcomes[i].omitted = &domain.Omission{Key: key, Reason: domain.OmissionCancelled}
			return
		}
		if err != nil {
			log.Error().
				Stack().
				Err(err).
				Str("key", key.String()).
				Int("worker", workerID).
				Msg("key omitted after computation error")
			outcomes[i].omitted = &domain.Omission{
				Key:    key,
				Reason: domain.OmissionComputationError,
				Detail: err.Error(),
			}
			return
		}
		outcomes[i].result = &res
	})

	// 4. Assemble in key order
	interrupted := false
	for i, key := range agg.Keys {
		switch {
		case !scheduled[i]:
			interrupted = true
			out.Summary.Omit(domain.Omission{Key: key, Reason: domain.OmissionCancelled})
		case outcomes[i].omitted != nil:
			if outcomes[i].omitted.Reason == domain.OmissionCancelled {
				interrupted = true
			}
			out.Summary.Omit(*outcomes[i].omitted)
		case outcomes[i].result != nil:
			out.Results = append(out.Results, *outcomes[i].result)
			out.Summary.Count(*outcomes[i].result)
		}
	}
	out.Summary.CompletedAt = time.Now()

	log.Info().
		Str("granularity", string(e.opts.Granularity)).
		Time("cutoff", agg.Cutoff).
		Int("keys", out.Summary.TotalKeys).
		Int("forecasted", out.Summary.Forecasted).
		Int("fallback_insufficient", out.Summary.FallbackInsufficient).
		Int("fallback_forecast_failure", out.Summary.FallbackForecastFailure).
		Int("omitted", out.Summary.Omitted).
		Dur("elapsed", out.Summary.CompletedAt.Sub(started)).
		Msg("replenishment run finished")

	if interrupted {
		return out, ctx.Err()
	}
	return out, nil
}

func (e *Engine) processKey(
	ctx context.Context,
	key domain.EntityKey,
	agg *Aggregation,
	history map[domain.EntityKey]domain.HistoryQualityRecord,
	volatility map[domain.EntityKey]domain.VolatilityRecord,
) (res domain.ReplenishmentResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.WithStack(fmt.Errorf("%w: panic: %v", domain.ErrComputation, r))
		}
	}()

	if e.beforeKey != nil {
		e.beforeKey(key)
	}

	quality, ok := history[key]
	if !ok {
		return res, errors.WithStack(fmt.Errorf("%w: key %s was never classified", domain.ErrComputation, key))
	}

	z := e.opts.ZTable.DefaultZ
	if rec, ok := volatility[key]; ok {
		z = rec.ZScore
	}

	est := e.estimator.Estimate(ctx, key, agg.Series[key], quality.EnoughHistory)
	if est.FailureCause != nil && ctx.Err() != nil && errors.Is(est.FailureCause, ctx.Err()) {
		return res, errKeyCancelled
	}
	if est.FailureCause != nil {
		log.Warn().
			Err(est.FailureCause).
			Str("key", key.String()).
			Msg("forecast failed, using moving average")
	}

	return e.calculator.Result(key, agg.Names[key], quality.EnoughHistory, z, est), nil
}
