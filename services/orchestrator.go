package services

import (
	"context"

	"github.com/rotisserie/eris"

	"vehicle-pricer/models"
	"vehicle-pricer/scraper"
	"vehicle-pricer/utils"
)

// Collection is the outcome of one orchestrated lookup.
type Collection struct {
	// Tier is the tier whose results make up Providers.
	Tier      models.Tier
	Providers []*models.ProviderResult
	Attempts  []models.TierAttempt
}

// Observations flattens the working set in provider order.
func (c *Collection) Observations() []models.PriceObservation {
	out := make([]models.PriceObservation, 0, models.CountObservations(c.Providers))
	for _, p := range c.Providers {
		out = append(out, p.Observations...)
	}
	return out
}

// Orchestrator drives the listing sources through the widening tiers:
// exact, then ±1 year for single-year queries, then brand and model only.
type Orchestrator struct {
	sources []scraper.ListingSource
	limit   int
	logger  *utils.Logger
}

// NewOrchestrator creates an Orchestrator. limit caps the sources queried
// at once.
func NewOrchestrator(sources []scraper.ListingSource, limit int, logger *utils.Logger) *Orchestrator {
	return &Orchestrator{sources: sources, limit: limit, logger: logger}
}

// Collect runs the tiers until one yields observations. When every tier
// comes back empty it returns ErrNoObservations together with the
// collection of the last tier tried.
func (o *Orchestrator) Collect(ctx context.Context, q models.VehicleQuery) (*Collection, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if len(o.sources) == 0 {
		return nil, eris.New("no listing sources configured")
	}

	col := &Collection{}

	try := func(tier models.Tier, tq models.VehicleQuery) (bool, error) {
		results, err := o.runTier(ctx, tier, tq)
		if err != nil {
			return false, err
		}
		n := models.CountObservations(results)
		col.Tier = tier
		col.Providers = results
		col.Attempts = append(col.Attempts, models.TierAttempt{Tier: tier, Query: tq, Observations: n})
		o.logger.Info("[orchestrator] tier %s: %d prices from %d sources", tier, n, len(results))
		return n > 0, nil
	}

	if ok, err := try(models.TierExact, q); err != nil || ok {
		return col, err
	}

	if year, exact := q.ExactYear(); exact {
		if ok, err := try(models.TierYearExpanded, q.WithYearRange(year-1, year+1)); err != nil || ok {
			return col, err
		}
	}

	if stripped := q.Stripped(); stripped != q {
		if ok, err := try(models.TierFilterStripped, stripped); err != nil || ok {
			return col, err
		}
	}

	return col, eris.Wrapf(models.ErrNoObservations, "%s", q.Label())
}

// runTier queries every source with tq. Results keep the source order and
// are tagged with the tier. Any source error is fatal for the run.
func (o *Orchestrator) runTier(ctx context.Context, tier models.Tier, tq models.VehicleQuery) ([]*models.ProviderResult, error) {
	outcomes := utils.MapBounded(ctx, o.sources, o.limit, func(ctx context.Context, src scraper.ListingSource) (*models.ProviderResult, error) {
		return src.Fetch(ctx, tq)
	})

	results := make([]*models.ProviderResult, 0, len(outcomes))
	for _, out := range outcomes {
		if out.Err != nil {
			return nil, eris.Wrapf(out.Err, "tier %s", tier)
		}
		if out.Value == nil {
			continue
		}
		results = append(results, out.Value.WithTier(tier))
	}
	return results, nil
}
