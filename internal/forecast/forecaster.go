package forecast

import (
	"context"
	"errors"
	"time"
)

// ErrForecasterUnavailable is returned by Unavailable for every call.
var ErrForecasterUnavailable = errors.New("forecaster not configured")

// Observation is one day of history sent to the forecaster.
type Observation struct {
	Date     time.Time
	Quantity float64
}

// Request asks for HorizonDays predictions past the last observation.
type Request struct {
	Key         string
	History     []Observation
	HorizonDays int
}

// Prediction is a forecaster output point with its interval bounds.
type Prediction struct {
	Date  time.Time `json:"date"`
	Point float64   `json:"point"`
	Lower float64   `json:"lower"`
	Upper float64   `json:"upper"`
}

// Forecaster produces probabilistic daily demand forecasts.
// Implementations may return in-sample points before the horizon; callers use the tail.
type Forecaster interface {
	Forecast(ctx context.Context, req Request) ([]Prediction, error)
}

// Func adapts a plain function to the Forecaster interface.
type Func func(ctx context.Context, req Request) ([]Prediction, error)

func (f Func) Forecast(ctx context.Context, req Request) ([]Prediction, error) {
	return f(ctx, req)
}

// Unavailable is used when no forecasting service is configured.
type Unavailable struct{}

func (Unavailable) Forecast(context.Context, Request) ([]Prediction, error) {
	return nil, ErrForecasterUnavailable
}
