package models

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// Transmission is the gearbox class of a vehicle.
type Transmission string

const (
	TransmissionAny           Transmission = ""
	TransmissionManual        Transmission = "manual"
	TransmissionAutomatic     Transmission = "automatic"
	TransmissionSemiAutomatic Transmission = "semi-automatic"
)

// ParseTransmission accepts English names and the Turkish spellings used by
// the marketplaces. Unknown input maps to TransmissionAny.
func ParseTransmission(s string) Transmission {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "manual", "manuel", "düz", "duz":
		return TransmissionManual
	case "automatic", "auto", "otomatik":
		return TransmissionAutomatic
	case "semi-automatic", "semi", "yari-otomatik", "yarı-otomatik", "yarı otomatik":
		return TransmissionSemiAutomatic
	}
	return TransmissionAny
}

const mileageBucketSize = 5000

// MileageBucket rounds km to the nearest bucket. Cache keys and remote
// mileage filters both use the bucketed value.
func MileageBucket(km int) int {
	if km <= 0 {
		return 0
	}
	return ((km + mileageBucketSize/2) / mileageBucketSize) * mileageBucketSize
}

// VehicleQuery describes the vehicle being priced. It is a value type:
// narrower or wider queries are derived as copies.
type VehicleQuery struct {
	Category     string
	Brand        string
	Model        string
	Version      string
	MinYear      int
	MaxYear      int
	Transmission Transmission
	Mileage      int
}

// ExactYear reports whether the query targets one single model year.
func (q VehicleQuery) ExactYear() (int, bool) {
	if q.MinYear > 0 && q.MinYear == q.MaxYear {
		return q.MinYear, true
	}
	return 0, false
}

// HasFilters reports whether any filter beyond brand and model is set.
func (q VehicleQuery) HasFilters() bool {
	return q.MinYear > 0 || q.MaxYear > 0 || q.Transmission != TransmissionAny || q.Mileage > 0
}

// WithYearRange returns a copy of q restricted to [min, max].
func (q VehicleQuery) WithYearRange(min, max int) VehicleQuery {
	q.MinYear, q.MaxYear = min, max
	return q
}

// Stripped returns a copy keeping only category, brand and model.
func (q VehicleQuery) Stripped() VehicleQuery {
	return VehicleQuery{Category: q.Category, Brand: q.Brand, Model: q.Model}
}

// Validate rejects queries that cannot be sent to any source.
func (q VehicleQuery) Validate() error {
	if strings.TrimSpace(q.Brand) == "" || strings.TrimSpace(q.Model) == "" {
		return eris.Wrap(ErrInvalidQuery, "brand and model are required")
	}
	if q.MinYear < 0 || q.MaxYear < 0 || (q.MaxYear > 0 && q.MinYear > q.MaxYear) {
		return eris.Wrapf(ErrInvalidQuery, "bad year range %d-%d", q.MinYear, q.MaxYear)
	}
	if q.Mileage < 0 {
		return eris.Wrapf(ErrInvalidQuery, "negative mileage %d", q.Mileage)
	}
	return nil
}

// Label is the human readable vehicle name used in logs and reports.
func (q VehicleQuery) Label() string {
	parts := []string{q.Brand, q.Model}
	if q.Version != "" {
		parts = append(parts, q.Version)
	}
	return strings.Join(parts, " ")
}

// ParseYearRange parses "YYYY" or "YYYY-YYYY". The bounds are ordered, so
// "2021-2018" yields 2018, 2021. An empty string yields zero bounds.
func ParseYearRange(s string) (int, int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, 0, nil
	}

	parts := strings.Split(s, "-")
	if len(parts) > 2 {
		return 0, 0, eris.Wrapf(ErrInvalidQuery, "year %q", s)
	}

	years := make([]int, 0, 2)
	for _, p := range parts {
		y, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || y < 1900 || y > 2100 {
			return 0, 0, eris.Wrapf(ErrInvalidQuery, "year %q", s)
		}
		years = append(years, y)
	}

	if len(years) == 1 {
		return years[0], years[0], nil
	}
	return min(years[0], years[1]), max(years[0], years[1]), nil
}

// ConditionFactors are the independent inputs to the adjustment multiplier.
type ConditionFactors struct {
	Mileage      int
	PartsChanged int
	PaintRepairs int
	AccidentCost int64
	Transmission Transmission
	Year         int
}
