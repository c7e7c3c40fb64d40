package replenishment

import (
	"sort"
	"time"

	"github.com/yepShinjo/ml-forecasting/internal/domain"
)

// ReturnsAudit tallies the return rows removed for a key.
type ReturnsAudit struct {
	Rows  int
	Units int64
}

// AggregateOptions controls how raw rows are turned into daily series.
type AggregateOptions struct {
	Granularity  domain.Granularity
	WindowMonths int
	TopN         int
}

// Aggregation is the immutable input shared by every key of a run.
type Aggregation struct {
	LatestDate time.Time
	Cutoff     time.Time
	Keys       []domain.EntityKey // Keys with at least one point in the window, sorted
	Series     map[domain.EntityKey][]domain.DailySalesPoint
	Names      map[domain.EntityKey]EntityNames
	Returns    map[domain.EntityKey]ReturnsAudit
	Dropped    []domain.EntityKey // Keys with raw rows but nothing in the window, sorted
}

// EntityNames carries display names through to the result.
type EntityNames struct {
	Item      string
	Variation string
}

// ReturnTotals sums the returns audit over all keys.
func (a *Aggregation) ReturnTotals() (rows int, units int64) {
	for _, r := range a.Returns {
		rows += r.Rows
		units += r.Units
	}
	return rows, units
}

// Aggregate builds one DailySalesPoint per key and calendar date. Return rows
// are removed before summing. Only dates inside the trailing window ending at
// the latest sale date across the whole dataset are kept.
func Aggregate(rows []domain.SaleRow, opts AggregateOptions) *Aggregation {
	agg := &Aggregation{
		Series:  make(map[domain.EntityKey][]domain.DailySalesPoint),
		Names:   make(map[domain.EntityKey]EntityNames),
		Returns: make(map[domain.EntityKey]ReturnsAudit),
	}

	// 1. Global latest date over sale rows, returns excluded
	for _, row := range rows {
		if row.Quantity < 0 {
			continue
		}
		if d := dateOf(row.SoldAt); d.After(agg.LatestDate) {
			agg.LatestDate = d
		}
	}
	windowed := !agg.LatestDate.IsZero()
	if windowed {
		months := opts.WindowMonths
		if months <= 0 {
			months = 12
		}
		agg.Cutoff = subtractMonths(agg.LatestDate, months)
	}

	// 2. Sum positive quantities per key and date
	type dayKey struct {
		key  domain.EntityKey
		date time.Time
	}
	daily := make(map[dayKey]int64)
	seen := make(map[domain.EntityKey]bool)
	for _, row := range rows {
		key := opts.Granularity.KeyOf(row)
		seen[key] = true
		if _, ok := agg.Names[key]; !ok && (row.ItemName != "" || row.VariationName != "") {
			agg.Names[key] = EntityNames{Item: row.ItemName, Variation: row.VariationName}
		}

		if row.Quantity < 0 {
			audit := agg.Returns[key]
			audit.Rows++
			audit.Units += -row.Quantity
			agg.Returns[key] = audit
			continue
		}

		d := dateOf(row.SoldAt)
		if !windowed || d.Before(agg.Cutoff) {
			continue
		}
		daily[dayKey{key, d}] += row.Quantity
	}

	for dk, qty := range daily {
		agg.Series[dk.key] = append(agg.Series[dk.key], domain.DailySalesPoint{
			Key:      dk.key,
			Date:     dk.date,
			Quantity: qty,
		})
	}
	for key, points := range agg.Series {
		sort.Slice(points, func(i, j int) bool { return points[i].Date.Before(points[j].Date) })
		agg.Keys = append(agg.Keys, key)
	}

	// 3. Keys seen in the data but absent from the window
	for key := range seen {
		if _, ok := agg.Series[key]; !ok {
			agg.Dropped = append(agg.Dropped, key)
		}
	}
	sortKeys(agg.Dropped)

	// 4. Optional volume cap by item
	if opts.TopN > 0 {
		agg.Keys = topItems(agg.Keys, agg.Series, opts.TopN)
		keep := make(map[domain.EntityKey]bool, len(agg.Keys))
		for _, k := range agg.Keys {
			keep[k] = true
		}
		for k := range agg.Series {
			if !keep[k] {
				delete(agg.Series, k)
			}
		}
	}

	sortKeys(agg.Keys)
	return agg
}

// topItems keeps the keys belonging to the n items with the highest windowed
// quantity. Ties go to the lower item id.
func topItems(keys []domain.EntityKey, series map[domain.EntityKey][]domain.DailySalesPoint, n int) []domain.EntityKey {
	totals := make(map[int64]int64)
	for _, k := range keys {
		for _, p := range series[k] {
			totals[k.ItemID] += p.Quantity
		}
	}

	items := make([]int64, 0, len(totals))
	for id := range totals {
		items = append(items, id)
	}
	sort.Slice(items, func(i, j int) bool {
		if totals[items[i]] != totals[items[j]] {
			return totals[items[i]] > totals[items[j]]
		}
		return items[i] < items[j]
	})
	if len(items) > n {
		items = items[:n]
	}

	keep := make(map[int64]bool, len(items))
	for _, id := range items {
		keep[id] = true
	}

	out := keys[:0]
	for _, k := range keys {
		if keep[k.ItemID] {
			out = append(out, k)
		}
	}
	return out
}

func sortKeys(keys []domain.EntityKey) {
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
}
