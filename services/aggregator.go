package services

import (
	"math"
	"sort"
	"time"

	"vehicle-pricer/config"
	"vehicle-pricer/models"
	"vehicle-pricer/utils"
)

// iqrFence is the Tukey fence width in IQR units.
const iqrFence = 1.5

// Aggregator turns a combined observation set into a market estimate.
type Aggregator struct {
	adj    config.Adjustment
	now    func() time.Time
	logger *utils.Logger
}

func NewAggregator(adj config.Adjustment, logger *utils.Logger) *Aggregator {
	return &Aggregator{adj: adj, now: time.Now, logger: logger}
}

// FilterOutliers drops values outside [Q1-1.5·IQR, Q3+1.5·IQR]. Q1 and Q3
// are the values at 1-based ranks ⌊n/4⌋ and ⌊3n/4⌋ of the sorted set.
// Sets smaller than four are returned sorted but unfiltered, and a filter
// that would remove everything falls back to the full set.
func FilterOutliers(obs []models.PriceObservation) []models.PriceObservation {
	sorted := make([]models.PriceObservation, len(obs))
	copy(sorted, obs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	n := len(sorted)
	if n < 4 {
		return sorted
	}

	q1 := float64(sorted[n/4-1])
	q3 := float64(sorted[3*n/4-1])
	iqr := q3 - q1
	lower, upper := q1-iqrFence*iqr, q3+iqrFence*iqr

	kept := make([]models.PriceObservation, 0, n)
	for _, v := range sorted {
		if f := float64(v); f >= lower && f <= upper {
			kept = append(kept, v)
		}
	}
	if len(kept) == 0 {
		return sorted
	}
	return kept
}

// Multiplier sums the per-factor contributions around 1 and clamps the
// result to the configured bounds.
func (a *Aggregator) Multiplier(f models.ConditionFactors) float64 {
	adj := a.adj
	m := 1.0

	if adj.MileageStep > 0 {
		diff := float64(max(f.Mileage, 0) - adj.MileageReference)
		steps := diff / float64(adj.MileageStep)
		if steps > 0 {
			m -= steps * adj.MileagePenaltyPerStep
		} else {
			m += -steps * adj.MileageBonusPerStep
		}
	}

	m -= float64(max(f.PartsChanged, 0)) * adj.PartsChangedPenalty
	m -= float64(max(f.PaintRepairs, 0)) * adj.PaintRepairPenalty

	if adj.AccidentCostStep > 0 && f.AccidentCost > 0 {
		m -= float64(f.AccidentCost) / float64(adj.AccidentCostStep) * adj.AccidentPenaltyPerStep
	}

	switch f.Transmission {
	case models.TransmissionAutomatic:
		m += adj.AutomaticPremium
	case models.TransmissionSemiAutomatic:
		m += adj.SemiAutomaticPremium
	}

	if f.Year > 0 {
		age := float64(a.now().Year() - f.Year)
		m += math.Max(-adj.AgeCap, math.Min(-age*adj.AgePenaltyPerYear, adj.AgeCap))
	}

	if math.IsNaN(m) {
		return 1
	}
	return math.Max(adj.MinMultiplier, math.Min(m, adj.MaxMultiplier))
}

// Aggregate filters outliers, averages what remains and applies the
// condition multiplier and sale margin. The input slice is not modified.
func (a *Aggregator) Aggregate(obs []models.PriceObservation, f models.ConditionFactors) models.AggregationResult {
	result := models.AggregationResult{
		AdjustmentMultiplier: a.Multiplier(f),
		Filtered:             []models.PriceObservation{},
	}
	if len(obs) == 0 {
		return result
	}

	base := FilterOutliers(obs)
	var sum float64
	for _, v := range base {
		sum += float64(v)
	}
	avg := int64(math.Round(sum / float64(len(base))))
	adjusted := int64(math.Round(float64(avg) * result.AdjustmentMultiplier))
	sale := int64(math.Round(float64(adjusted) * a.adj.SaleMargin))

	result.MarketAverage = &avg
	result.AdjustedPrice = &adjusted
	result.SaleWithMargin = &sale
	result.Filtered = base

	if a.logger != nil {
		a.logger.Debug("[aggregate] %d observations, %d retained, average %d, multiplier %.3f",
			len(obs), len(base), avg, result.AdjustmentMultiplier)
	}
	return result
}
