package scraper

import (
	"context"

	"vehicle-pricer/cache"
	"vehicle-pricer/models"
	"vehicle-pricer/utils"
)

// CachedSource memoizes a source's results in the price store.
type CachedSource struct {
	name   string
	inner  ListingSource
	store  cache.Store[models.ProviderResult]
	logger *utils.Logger
}

// Cached puts store in front of inner. Results carrying a Failure are not
// stored, so a blocked fetch is retried on the next request; a genuinely
// empty answer is cached like any other.
func Cached(name string, inner ListingSource, store cache.Store[models.ProviderResult], logger *utils.Logger) *CachedSource {
	return &CachedSource{name: name, inner: inner, store: store, logger: logger}
}

func (c *CachedSource) Fetch(ctx context.Context, q models.VehicleQuery) (*models.ProviderResult, error) {
	key := cache.PriceKey(c.name, q)

	hit, ok, err := c.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if ok {
		c.logger.Debug("[%s] cache hit %s", c.name, key)
		return &hit, nil
	}

	res, err := c.inner.Fetch(ctx, q)
	if err != nil || res == nil {
		return res, err
	}
	if res.Failure == models.FailureNone {
		if err := c.store.Set(ctx, key, *res); err != nil {
			c.logger.Warn("[%s] cache set %s: %v", c.name, key, err)
		}
	}
	return res, nil
}
