package domain

import "errors"

var (
	// ErrDataQuality marks a key with no usable history in the window.
	ErrDataQuality = errors.New("no usable sales history")
	// ErrForecastFailure marks a forecaster call that could not be used.
	ErrForecastFailure = errors.New("forecast failed")
	// ErrComputation marks an unexpected failure while processing one key.
	ErrComputation = errors.New("computation error")
	// ErrSourceUnavailable marks a sales source or result sink that cannot be reached.
	ErrSourceUnavailable = errors.New("source unavailable")
)
