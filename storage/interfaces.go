// Package storage archives valuation runs for later offline analysis. The
// engine never reads the archive back.
package storage

import (
	"context"
	"strconv"

	"vehicle-pricer/models"
)

// Archive is the interface any archive backend must satisfy.
type Archive interface {
	Record(ctx context.Context, v *models.Valuation) error
	Close() error
}

// ObservationRow is one archived price with its provenance.
type ObservationRow struct {
	RunID        string
	Source       string
	URL          string
	Tier         string
	Category     string
	Brand        string
	Model        string
	Version      string
	MinYear      int
	MaxYear      int
	Transmission string
	Mileage      int
	Price        models.PriceObservation
	Kept         bool
	Average      int64
}

// Rows flattens a valuation into one row per observation. Kept marks
// prices that survived outlier filtering.
func Rows(v *models.Valuation) []ObservationRow {
	kept := make(map[models.PriceObservation]int, len(v.Result.Filtered))
	for _, p := range v.Result.Filtered {
		kept[p]++
	}
	var avg int64
	if v.Result.MarketAverage != nil {
		avg = *v.Result.MarketAverage
	}

	var rows []ObservationRow
	for _, pr := range v.Providers {
		q := v.Query
		if len(v.Attempts) > 0 {
			q = v.Attempts[len(v.Attempts)-1].Query
		}
		for _, p := range pr.Observations {
			row := ObservationRow{
				RunID:        v.ID.String(),
				Source:       pr.Source,
				URL:          pr.URL,
				Tier:         pr.Tier.String(),
				Category:     q.Category,
				Brand:        q.Brand,
				Model:        q.Model,
				Version:      q.Version,
				MinYear:      q.MinYear,
				MaxYear:      q.MaxYear,
				Transmission: string(q.Transmission),
				Mileage:      q.Mileage,
				Price:        p,
				Average:      avg,
			}
			if kept[p] > 0 {
				kept[p]--
				row.Kept = true
			}
			rows = append(rows, row)
		}
	}
	return rows
}

func itoa(n int) string { return strconv.Itoa(n) }
