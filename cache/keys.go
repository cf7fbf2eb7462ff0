package cache

import (
	"strconv"
	"strings"

	"vehicle-pricer/models"
)

func join(parts ...string) string {
	for i, p := range parts {
		parts[i] = strings.ToLower(strings.TrimSpace(p))
	}
	return strings.Join(parts, ":")
}

// BrandKey identifies a brand catalog.
func BrandKey(source, category string) string {
	return join(source, category)
}

// ModelKey identifies a brand's model catalog.
func ModelKey(source, category, brand string) string {
	return join(source, category, brand)
}

// VersionKey identifies a model's version catalog.
func VersionKey(source, category, brand, model string) string {
	return join(source, category, brand, model)
}

// PriceKey covers every query dimension that changes a source's answer,
// so differently filtered queries never share an entry.
func PriceKey(source string, q models.VehicleQuery) string {
	return join(
		source,
		q.Category,
		q.Brand,
		q.Model,
		q.Version,
		strconv.Itoa(q.MinYear),
		strconv.Itoa(q.MaxYear),
		string(q.Transmission),
		strconv.Itoa(models.MileageBucket(q.Mileage)),
	)
}
