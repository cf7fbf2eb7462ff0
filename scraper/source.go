// Package scraper defines the capabilities the engine consumes from external
// marketplaces and the decorators every source is wrapped in.
package scraper

import (
	"context"

	"vehicle-pricer/models"
)

// ListingSource queries one marketplace for comparable listing prices.
//
// Ordinary failures (network, anti-bot, unexpected markup) are reported as
// an empty result with Failure set. The error return is reserved for
// conditions the caller must not ignore, such as a corrupt cache.
type ListingSource interface {
	Fetch(ctx context.Context, q models.VehicleQuery) (*models.ProviderResult, error)
}

// CatalogSource enumerates the brand/model/version hierarchy of a site.
type CatalogSource interface {
	Brands(ctx context.Context, category string) ([]models.CatalogEntry, error)
	Models(ctx context.Context, category, brand string) ([]models.CatalogEntry, error)
	Versions(ctx context.Context, category, brand, model string) ([]models.CatalogEntry, error)
}

// SourceFunc adapts a function to ListingSource.
type SourceFunc func(ctx context.Context, q models.VehicleQuery) (*models.ProviderResult, error)

func (f SourceFunc) Fetch(ctx context.Context, q models.VehicleQuery) (*models.ProviderResult, error) {
	return f(ctx, q)
}
