package replenishment

import (
	"github.com/shopspring/decimal"
	"github.com/yepShinjo/ml-forecasting/internal/domain"
)

// LevelCalculator turns a demand estimate into reorder and replenish levels.
type LevelCalculator struct{}

// NewLevelCalculator creates a new level calculator
func NewLevelCalculator() *LevelCalculator {
	return &LevelCalculator{}
}

// Calculate computes the integer levels for one key.
// Fallback estimates carry no safety stock: their sigma is a placeholder,
// not a measured uncertainty.
func (lc *LevelCalculator) Calculate(est Estimate, z float64) Levels {
	levels := Levels{}

	demand := decimal.NewFromFloat(nonNegative(est.DemandLT))

	// 1. Safety stock = z × sigma over the lead time
	safety := decimal.Zero
	if !est.Method.IsFallback() {
		safety = decimal.NewFromFloat(z).Mul(decimal.NewFromFloat(nonNegative(est.SigmaLT)))
	}
	levels.SafetyStock = safety.InexactFloat64()

	// 2. Reorder level = lead-time demand + safety stock
	levels.ReorderLevel = roundLevel(demand.Add(safety))

	// 3. Replenish level = reorder level + one more lead time of demand
	levels.ReplenishLevel = roundLevel(decimal.NewFromInt(levels.ReorderLevel).Add(demand))

	return levels
}

// Result assembles the immutable per-key output record.
func (lc *LevelCalculator) Result(key domain.EntityKey, names EntityNames, enough bool, z float64, est Estimate) domain.ReplenishmentResult {
	levels := lc.Calculate(est, z)
	return domain.ReplenishmentResult{
		Key:            key,
		LocationID:     key.LocationID,
		ItemID:         key.ItemID,
		VariationID:    key.VariationID,
		ItemName:       names.Item,
		VariationName:  names.Variation,
		ReorderLevel:   levels.ReorderLevel,
		ReplenishLevel: levels.ReplenishLevel,
		EnoughHistory:  enough,
		ZScore:         z,
		DemandLT:       est.DemandLT,
		SigmaLT:        est.SigmaLT,
		Method:         est.Method,
	}
}
