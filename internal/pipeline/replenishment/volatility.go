package replenishment

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/yepShinjo/ml-forecasting/internal/domain"
)

// ZBand maps every cv strictly below UpperCV to Z.
type ZBand struct {
	UpperCV float64
	Z       float64
}

// ZTable selects a service-level multiplier from a coefficient of variation.
// Bands are evaluated in ascending UpperCV order, first match wins.
type ZTable struct {
	Bands    []ZBand
	MaxZ     float64 // cv above every band, or undefined cv
	DefaultZ float64 // Key with no volatility record
}

// DefaultZTable is the 95% / 97.5% / 99% service-level table.
func DefaultZTable() ZTable {
	return ZTable{
		Bands: []ZBand{
			{UpperCV: 0.5, Z: 1.65},
			{UpperCV: 1.0, Z: 2.0},
		},
		MaxZ:     2.33,
		DefaultZ: 1.65,
	}
}

// Select returns the z-score for a cv. An undefined cv maps to MaxZ.
func (t ZTable) Select(cv float64, defined bool) float64 {
	if !defined {
		return t.MaxZ
	}
	for _, b := range t.Bands {
		if cv < b.UpperCV {
			return b.Z
		}
	}
	return t.MaxZ
}

// ParseZBands parses "0.5:1.65,1.0:2.0" into bands sorted by UpperCV.
func ParseZBands(s string) ([]ZBand, error) {
	var bands []ZBand
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		cvStr, zStr, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("invalid z band %q: expected cv:z", part)
		}
		cv, err := strconv.ParseFloat(strings.TrimSpace(cvStr), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid cv in z band %q: %w", part, err)
		}
		z, err := strconv.ParseFloat(strings.TrimSpace(zStr), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid z in z band %q: %w", part, err)
		}
		if z < 0 {
			return nil, fmt.Errorf("invalid z band %q: z must not be negative", part)
		}
		bands = append(bands, ZBand{UpperCV: cv, Z: z})
	}

	sort.Slice(bands, func(i, j int) bool { return bands[i].UpperCV < bands[j].UpperCV })
	return bands, nil
}

// ScoreVolatility computes the dispersion of a key's daily quantities.
// ok is false when the series has fewer than two points and std is undefined.
func ScoreVolatility(key domain.EntityKey, points []domain.DailySalesPoint, table ZTable) (domain.VolatilityRecord, bool) {
	values := make([]float64, len(points))
	for i, p := range points {
		values[i] = float64(p.Quantity)
	}

	mean, std, ok := meanStd(values)
	if !ok {
		return domain.VolatilityRecord{}, false
	}

	rec := domain.VolatilityRecord{Key: key, Mean: mean, Std: std}
	if mean > 0 {
		rec.CV = std / mean
		rec.CVDefined = true
	}
	rec.ZScore = table.Select(rec.CV, rec.CVDefined)

	return rec, true
}
