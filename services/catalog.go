package services

import (
	"context"

	"vehicle-pricer/cache"
	"vehicle-pricer/models"
	"vehicle-pricer/scraper"
	"vehicle-pricer/utils"
)

// CatalogService answers brand, model and version lookups from the cache,
// falling through to the provider on a miss.
type CatalogService struct {
	source   string
	provider scraper.CatalogSource
	caches   *cache.Caches
	logger   *utils.Logger
}

// NewCatalogService creates a CatalogService. source names the provider in
// cache keys.
func NewCatalogService(source string, provider scraper.CatalogSource, caches *cache.Caches, logger *utils.Logger) *CatalogService {
	return &CatalogService{source: source, provider: provider, caches: caches, logger: logger}
}

func (s *CatalogService) Brands(ctx context.Context, category string) ([]models.CatalogEntry, error) {
	return s.lookup(ctx, s.caches.Brands, cache.BrandKey(s.source, category), func() ([]models.CatalogEntry, error) {
		return s.provider.Brands(ctx, category)
	})
}

func (s *CatalogService) Models(ctx context.Context, category, brand string) ([]models.CatalogEntry, error) {
	return s.lookup(ctx, s.caches.Models, cache.ModelKey(s.source, category, brand), func() ([]models.CatalogEntry, error) {
		return s.provider.Models(ctx, category, brand)
	})
}

// Versions may return a single entry with an empty ID, meaning the model is
// priced at model level.
func (s *CatalogService) Versions(ctx context.Context, category, brand, model string) ([]models.CatalogEntry, error) {
	return s.lookup(ctx, s.caches.Versions, cache.VersionKey(s.source, category, brand, model), func() ([]models.CatalogEntry, error) {
		return s.provider.Versions(ctx, category, brand, model)
	})
}

// lookup serves key from store or resolves it. Only complete, non-empty
// answers are cached; a provider that fails but still hands back fallback
// entries gets those entries returned uncached.
func (s *CatalogService) lookup(ctx context.Context, store cache.Store[[]models.CatalogEntry], key string, resolve func() ([]models.CatalogEntry, error)) ([]models.CatalogEntry, error) {
	cached, ok, err := store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if ok {
		s.logger.Debug("[catalog] cache hit %s", key)
		return cached, nil
	}

	entries, err := resolve()
	if err != nil {
		if len(entries) > 0 {
			s.logger.Warn("[catalog] %s: serving fallback entries: %v", key, err)
			return entries, nil
		}
		return nil, err
	}

	if len(entries) > 0 {
		if err := store.Set(ctx, key, entries); err != nil {
			s.logger.Warn("[catalog] cache write %s: %v", key, err)
		}
	}
	return entries, nil
}
