package models

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// AggregationResult is derived on every request and never persisted.
// MarketAverage is nil only when there were no observations.
type AggregationResult struct {
	MarketAverage        *int64
	AdjustmentMultiplier float64
	AdjustedPrice        *int64
	SaleWithMargin       *int64
	Filtered             []PriceObservation
}

// AdjustmentPercent is the multiplier expressed as a signed percentage.
func (r AggregationResult) AdjustmentPercent() int {
	return int(math.Round((r.AdjustmentMultiplier - 1) * 100))
}

// TierAttempt records what one tier produced.
type TierAttempt struct {
	Tier         Tier
	Query        VehicleQuery
	Observations int
}

// Valuation is the full answer for one pricing request.
type Valuation struct {
	ID        uuid.UUID
	Query     VehicleQuery
	Factors   ConditionFactors
	Tier      Tier
	Attempts  []TierAttempt
	Providers []*ProviderResult
	Result    AggregationResult
	CreatedAt time.Time
}
