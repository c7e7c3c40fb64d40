package replenishment

import (
	"context"
	"time"

	"github.com/yepShinjo/ml-forecasting/internal/domain"
	"github.com/yepShinjo/ml-forecasting/internal/forecast"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func sale(at time.Time, loc, item, variation, qty int64) domain.SaleRow {
	return domain.SaleRow{
		SoldAt:      at,
		LocationID:  loc,
		ItemID:      item,
		VariationID: variation,
		Quantity:    qty,
	}
}

// dailyRows returns one sale of qty per consecutive day starting at from.
func dailyRows(from time.Time, days int, loc, item, variation, qty int64) []domain.SaleRow {
	rows := make([]domain.SaleRow, 0, days)
	for i := 0; i < days; i++ {
		rows = append(rows, sale(from.AddDate(0, 0, i).Add(10*time.Hour), loc, item, variation, qty))
	}
	return rows
}

func points(key domain.EntityKey, dates []time.Time, qty int64) []domain.DailySalesPoint {
	out := make([]domain.DailySalesPoint, len(dates))
	for i, d := range dates {
		out[i] = domain.DailySalesPoint{Key: key, Date: d, Quantity: qty}
	}
	return out
}

// flatForecaster predicts the same point and band for every requested day.
func flatForecaster(point, lower, upper float64) forecast.Forecaster {
	return forecast.Func(func(_ context.Context, req forecast.Request) ([]forecast.Prediction, error) {
		last := req.History[len(req.History)-1].Date
		preds := make([]forecast.Prediction, req.HorizonDays)
		for i := range preds {
			preds[i] = forecast.Prediction{
				Date:  last.AddDate(0, 0, i+1),
				Point: point,
				Lower: lower,
				Upper: upper,
			}
		}
		return preds, nil
	})
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.WorkerCount = 4
	opts.Estimator.Timeout = time.Second
	return opts
}
