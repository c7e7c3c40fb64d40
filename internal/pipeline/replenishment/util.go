package replenishment

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// dateOf returns the calendar date of t, read in t's own location, as midnight UTC.
// Dates built this way compare equal with == regardless of the source zone.
func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// subtractMonths moves t back n calendar months, clamping to the end of the
// target month (Mar 31 - 1 month = Feb 28/29).
func subtractMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m-time.Month(n), 1, 0, 0, 0, 0, t.Location())
	last := first.AddDate(0, 1, -1).Day()
	if d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, 0, 0, 0, 0, t.Location())
}

// meanStd returns the mean and the sample (n-1) standard deviation.
// ok is false when fewer than two values are given.
func meanStd(values []float64) (mean, std float64, ok bool) {
	n := len(values)
	if n == 0 {
		return 0, 0, false
	}

	var sum float64
	for _, v := range values {
		sum += v
	}
	mean = sum / float64(n)
	if n < 2 {
		return mean, 0, false
	}

	var sq float64
	for _, v := range values {
		d := v - mean
		sq += d * d
	}
	return mean, math.Sqrt(sq / float64(n-1)), true
}

// roundLevel rounds half to even and clamps at zero.
func roundLevel(v decimal.Decimal) int64 {
	if v.IsNegative() {
		return 0
	}
	return v.RoundBank(0).IntPart()
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func nonNegative(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}
