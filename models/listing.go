package models

import "time"

// PriceObservation is one normalized listing price in whole currency units.
type PriceObservation = int64

// Tier identifies which step of the query-widening strategy produced a result.
type Tier int

const (
	TierExact Tier = iota
	TierYearExpanded
	TierFilterStripped
)

func (t Tier) String() string {
	switch t {
	case TierExact:
		return "exact"
	case TierYearExpanded:
		return "year-expanded"
	case TierFilterStripped:
		return "filter-stripped"
	}
	return "unknown"
}

// ProviderResult is what one Listing Source returned for one query.
// Observations are de-duplicated at extraction time.
type ProviderResult struct {
	Source       string             `json:"source"`
	URL          string             `json:"url"`
	Observations []PriceObservation `json:"observations"`
	Tier         Tier               `json:"tier"`
	Failure      FailureKind        `json:"failure,omitempty"`
	FetchedAt    time.Time          `json:"fetched_at"`
}

// EmptyResult builds a degraded result carrying only provenance.
func EmptyResult(source, url string, failure FailureKind) *ProviderResult {
	return &ProviderResult{
		Source:       source,
		URL:          url,
		Observations: []PriceObservation{},
		Failure:      failure,
		FetchedAt:    time.Now(),
	}
}

func (r *ProviderResult) Empty() bool { return len(r.Observations) == 0 }

// Expanded reports whether the result came from the ±1 year tier.
func (r *ProviderResult) Expanded() bool { return r.Tier == TierYearExpanded }

// Fallback reports whether the result came from the filter-stripped tier.
func (r *ProviderResult) Fallback() bool { return r.Tier == TierFilterStripped }

// WithTier returns a copy of r tagged with t.
func (r *ProviderResult) WithTier(t Tier) *ProviderResult {
	cp := *r
	cp.Observations = append([]PriceObservation(nil), r.Observations...)
	cp.Tier = t
	return &cp
}

// CountObservations sums observations across results.
func CountObservations(results []*ProviderResult) int {
	n := 0
	for _, r := range results {
		n += len(r.Observations)
	}
	return n
}

// CatalogEntry is one brand, model or version in a catalog listing.
type CatalogEntry struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Count int    `json:"count,omitempty"`
	URL   string `json:"url,omitempty"`
}
