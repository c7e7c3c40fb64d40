package domain

import (
	"fmt"
	"strings"
	"time"
)

// SaleRow is a single transaction line as delivered by a sales source.
// Negative quantities are returns.
type SaleRow struct {
	SoldAt        time.Time `json:"sold_at" db:"sale_time"`
	LocationID    int64     `json:"location_id" db:"location_id"`
	ItemID        int64     `json:"item_id" db:"item_id"`
	VariationID   int64     `json:"variation_id" db:"item_variation_id"`
	ItemName      string    `json:"item_name" db:"item_name"`
	VariationName string    `json:"variation_name" db:"variation_name"`
	Quantity      int64     `json:"quantity" db:"quantity_purchased"`
}

// EntityKey identifies the entity a replenishment decision is made for.
// Fields that the active granularity ignores are zero.
type EntityKey struct {
	LocationID  int64 `json:"location_id"`
	ItemID      int64 `json:"item_id"`
	VariationID int64 `json:"variation_id"`
}

func (k EntityKey) String() string {
	return fmt.Sprintf("%d:%d:%d", k.LocationID, k.ItemID, k.VariationID)
}

// Less orders keys by location, item, then variation.
func (k EntityKey) Less(o EntityKey) bool {
	if k.LocationID != o.LocationID {
		return k.LocationID < o.LocationID
	}
	if k.ItemID != o.ItemID {
		return k.ItemID < o.ItemID
	}
	return k.VariationID < o.VariationID
}

// Granularity selects which sale attributes make up an EntityKey.
type Granularity string

const (
	GranularityItem                  Granularity = "item"
	GranularityItemVariation         Granularity = "item_variation"
	GranularityLocationItem          Granularity = "location_item"
	GranularityLocationItemVariation Granularity = "location_item_variation"
)

// ParseGranularity accepts the canonical names plus a few short aliases.
func ParseGranularity(s string) (Granularity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "item":
		return GranularityItem, nil
	case "item_variation", "variation":
		return GranularityItemVariation, nil
	case "location_item", "location":
		return GranularityLocationItem, nil
	case "location_item_variation", "", "full":
		return GranularityLocationItemVariation, nil
	}
	return "", fmt.Errorf("unknown granularity %q", s)
}

// KeyOf projects a sale row onto the entity key for this granularity.
func (g Granularity) KeyOf(row SaleRow) EntityKey {
	switch g {
	case GranularityItem:
		return EntityKey{ItemID: row.ItemID}
	case GranularityItemVariation:
		return EntityKey{ItemID: row.ItemID, VariationID: row.VariationID}
	case GranularityLocationItem:
		return EntityKey{LocationID: row.LocationID, ItemID: row.ItemID}
	default:
		return EntityKey{LocationID: row.LocationID, ItemID: row.ItemID, VariationID: row.VariationID}
	}
}

// DailySalesPoint is the summed positive quantity for one key on one calendar date.
type DailySalesPoint struct {
	Key      EntityKey `json:"key"`
	Date     time.Time `json:"date"`
	Quantity int64     `json:"quantity"`
}

// HistoryQualityRecord describes how much of the trailing window a key covers.
type HistoryQualityRecord struct {
	Key           EntityKey `json:"key"`
	DistinctDays  int       `json:"distinct_days"`
	DistinctWeeks int       `json:"distinct_weeks"`
	DistinctYears int       `json:"distinct_years"`
	EnoughHistory bool      `json:"enough_history"`
}

// VolatilityRecord holds the demand dispersion of a key and the z-score it maps to.
// CVDefined is false when the mean is zero.
type VolatilityRecord struct {
	Key       EntityKey `json:"key"`
	Mean      float64   `json:"mean"`
	Std       float64   `json:"std"`
	CV        float64   `json:"cv"`
	CVDefined bool      `json:"cv_defined"`
	ZScore    float64   `json:"z_score"`
}

// ReplenishmentResult is the per-key output of a run. It is never mutated after creation.
type ReplenishmentResult struct {
	Key            EntityKey        `json:"-" db:"-"`
	LocationID     int64            `json:"location_id" db:"location_id"`
	ItemID         int64            `json:"item_id" db:"item_id"`
	VariationID    int64            `json:"variation_id" db:"variation_id"`
	ItemName       string           `json:"item_name" db:"item_name"`
	VariationName  string           `json:"variation_name" db:"variation_name"`
	ReorderLevel   int64            `json:"reorder_level" db:"reorder_level"`
	ReplenishLevel int64            `json:"replenish_level" db:"replenish_level"`
	EnoughHistory  bool             `json:"enough_history" db:"enough_history"`
	ZScore         float64          `json:"z_score" db:"z_score"`
	DemandLT       float64          `json:"demand_lt" db:"demand_lt"`
	SigmaLT        float64          `json:"sigma_lt" db:"sigma_lt"`
	Method         EstimationMethod `json:"method" db:"method"`
}

// CurrentLevel is a row of the mutable current-levels projection.
type CurrentLevel struct {
	LocationID     int64     `json:"location_id" db:"location_id"`
	ItemID         int64     `json:"item_id" db:"item_id"`
	VariationID    int64     `json:"variation_id" db:"variation_id"`
	ReorderLevel   int64     `json:"reorder_level" db:"forecasted_reorder_level"`
	ReplenishLevel int64     `json:"replenish_level" db:"forecasted_replenish_level"`
	Method         string    `json:"method" db:"method"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}
