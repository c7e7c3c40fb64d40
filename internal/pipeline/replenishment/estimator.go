package replenishment

import (
	"context"
	"fmt"

	"github.com/yepShinjo/ml-forecasting/internal/domain"
	"github.com/yepShinjo/ml-forecasting/internal/forecast"
)

// DemandEstimator produces lead-time demand either from the forecaster or from
// the moving-average fallback.
type DemandEstimator struct {
	forecaster forecast.Forecaster
	config     EstimatorConfig
}

// NewDemandEstimator creates an estimator. A nil forecaster behaves as one that
// always fails, so every sufficient key takes the forecast-failure path.
func NewDemandEstimator(f forecast.Forecaster, cfg EstimatorConfig) *DemandEstimator {
	if f == nil {
		f = forecast.Unavailable{}
	}
	if cfg.LeadTimeDays <= 0 {
		cfg.LeadTimeDays = DefaultEstimatorConfig().LeadTimeDays
	}
	if cfg.IntervalDivisor <= 0 {
		cfg.IntervalDivisor = DefaultEstimatorConfig().IntervalDivisor
	}
	if cfg.TailDays <= 0 {
		cfg.TailDays = DefaultEstimatorConfig().TailDays
	}
	return &DemandEstimator{forecaster: f, config: cfg}
}

// Estimate runs the per-key state machine. It never returns an error: forecaster
// problems are reported through Estimate.Method and Estimate.FailureCause.
func (e *DemandEstimator) Estimate(ctx context.Context, key domain.EntityKey, points []domain.DailySalesPoint, enoughHistory bool) Estimate {
	if !enoughHistory {
		return e.fallback(points, domain.MethodFallbackInsufficient, nil)
	}

	est, err := e.forecast(ctx, key, points)
	if err != nil {
		return e.fallback(points, domain.MethodFallbackForecastFailure, err)
	}
	return est
}

func (e *DemandEstimator) fallback(points []domain.DailySalesPoint, method domain.EstimationMethod, cause error) Estimate {
	return Estimate{
		DemandLT:     tailAverage(points, e.config.TailDays) * float64(e.config.LeadTimeDays),
		SigmaLT:      e.config.MinSigma,
		Method:       method,
		FailureCause: cause,
	}
}

// tailAverage is the mean quantity of the last n observed days, or 1 when
// there are none.
func tailAverage(points []domain.DailySalesPoint, n int) float64 {
	if len(points) == 0 {
		return 1
	}
	if len(points) > n {
		points = points[len(points)-n:]
	}

	var sum int64
	for _, p := range points {
		sum += p.Quantity
	}
	return float64(sum) / float64(len(points))
}

func (e *DemandEstimator) forecast(ctx context.Context, key domain.EntityKey, points []domain.DailySalesPoint) (est Estimate, err error) {
	if e.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.config.Timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: forecaster panic: %v", domain.ErrForecastFailure, r)
		}
	}()

	history := make([]forecast.Observation, len(points))
	for i, p := range points {
		history[i] = forecast.Observation{Date: p.Date, Quantity: float64(p.Quantity)}
	}

	L := e.config.LeadTimeDays
	preds, err := e.forecaster.Forecast(ctx, forecast.Request{
		Key:         key.String(),
		History:     history,
		HorizonDays: L,
	})
	if err != nil {
		return Estimate{}, fmt.Errorf("%w: %w", domain.ErrForecastFailure, err)
	}
	if len(preds) < L {
		return Estimate{}, fmt.Errorf("%w: got %d predictions, need %d", domain.ErrForecastFailure, len(preds), L)
	}

	// Last L predictions cover the lead time after the final observed date
	var demand, upper, lower float64
	for _, p := range preds[len(preds)-L:] {
		if !finite(p.Point) || !finite(p.Lower) || !finite(p.Upper) {
			return Estimate{}, fmt.Errorf("%w: non-finite prediction on %s", domain.ErrForecastFailure, p.Date.Format("2006-01-02"))
		}
		demand += p.Point
		upper += p.Upper
		lower += p.Lower
	}

	return Estimate{
		DemandLT: nonNegative(demand),
		SigmaLT:  nonNegative((upper - lower) / e.config.IntervalDivisor),
		Method:   domain.MethodForecast,
	}, nil
}
