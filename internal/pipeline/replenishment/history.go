package replenishment

import (
	"github.com/yepShinjo/ml-forecasting/internal/domain"
)

// HistoryPolicy sets the coverage a series needs before a forecaster is trusted.
type HistoryPolicy struct {
	MinDays  int
	MinWeeks int
}

// DefaultHistoryPolicy requires 20 distinct days over at least 4 distinct ISO weeks.
func DefaultHistoryPolicy() HistoryPolicy {
	return HistoryPolicy{MinDays: 20, MinWeeks: 4}
}

type isoWeek struct {
	year, week int
}

// ClassifyHistory counts distinct days, ISO weeks and ISO years in a key's
// windowed series. Weeks are paired with their ISO year so week 1 of two
// different years never collapses into one.
func ClassifyHistory(key domain.EntityKey, points []domain.DailySalesPoint, policy HistoryPolicy) domain.HistoryQualityRecord {
	days := make(map[int64]struct{}, len(points))
	weeks := make(map[isoWeek]struct{})
	years := make(map[int]struct{})

	for _, p := range points {
		days[p.Date.Unix()] = struct{}{}
		y, w := p.Date.ISOWeek()
		weeks[isoWeek{y, w}] = struct{}{}
		years[y] = struct{}{}
	}

	rec := domain.HistoryQualityRecord{
		Key:           key,
		DistinctDays:  len(days),
		DistinctWeeks: len(weeks),
		DistinctYears: len(years),
	}
	rec.EnoughHistory = rec.DistinctDays >= policy.MinDays && rec.DistinctWeeks >= policy.MinWeeks

	return rec
}
