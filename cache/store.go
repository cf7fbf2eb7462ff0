// Package cache memoizes catalog and price lookups behind a TTL contract:
// Get returns a value only while now < ExpiresAt, stale entries behave as
// misses and are overwritten by the next Set.
package cache

import (
	"context"
	"time"

	"vehicle-pricer/models"
)

// CacheEntry is a value together with its expiry.
type CacheEntry[T any] struct {
	Value     T         `json:"value"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Fresh reports whether the entry is still valid at now.
func (e CacheEntry[T]) Fresh(now time.Time) bool {
	return now.Before(e.ExpiresAt)
}

// Store is a keyed TTL store. A miss is (zero, false, nil); an error means
// the backend returned something that could not be trusted.
type Store[T any] interface {
	Get(ctx context.Context, key string) (T, bool, error)
	Set(ctx context.Context, key string, value T) error
}

// Clock returns the current time. Tests substitute a fake.
type Clock func() time.Time

// Caches groups the four independent stores of the engine.
type Caches struct {
	Brands   Store[[]models.CatalogEntry]
	Models   Store[[]models.CatalogEntry]
	Versions Store[[]models.CatalogEntry]
	Prices   Store[models.ProviderResult]
}

// NewMemory builds in-process stores with the given TTLs.
func NewMemory(catalogTTL, priceTTL time.Duration, clock Clock) *Caches {
	return &Caches{
		Brands:   NewMemoryStore[[]models.CatalogEntry](catalogTTL, clock),
		Models:   NewMemoryStore[[]models.CatalogEntry](catalogTTL, clock),
		Versions: NewMemoryStore[[]models.CatalogEntry](catalogTTL, clock),
		Prices:   NewMemoryStore[models.ProviderResult](priceTTL, clock),
	}
}
