package marketplace

import (
	"context"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"

	"vehicle-pricer/models"
	"vehicle-pricer/scraper/document"
	"vehicle-pricer/services"
	"vehicle-pricer/utils"
)

const maxModels = 60

var (
	advertSlugRegexp = regexp.MustCompile(`(?i)/ilan/([a-z0-9.-]+)/([a-z0-9-]+)`)
	brandTextRegexp  = regexp.MustCompile(`^(.*?)\s*\(?([\d.,]+)\)?$`)
	brandPrefixRe    = regexp.MustCompile(`(?i)^İkinci El\s+`)
	brandSuffixRe    = regexp.MustCompile(`(?i)\s+Fiyatlar[ıi]$`)
)

// Catalog enumerates brands, models and versions from arabam.com's
// category pages.
type Catalog struct {
	fetcher Fetcher
	base    string
	limit   int
	logger  *utils.Logger
}

// NewCatalog creates a Catalog. concurrency bounds the version-page fan-out.
func NewCatalog(fetcher Fetcher, concurrency int, logger *utils.Logger) *Catalog {
	return &Catalog{fetcher: fetcher, base: arabamBase, limit: concurrency, logger: logger}
}

func (c *Catalog) absolute(href string) string {
	if strings.HasPrefix(href, "http") {
		return href
	}
	return c.base + href
}

func validate(slugs ...string) error {
	for _, s := range slugs {
		if !services.ValidSlug(s) {
			return eris.Wrapf(models.ErrInvalidQuery, "slug %q", s)
		}
	}
	return nil
}

func sortByName(entries []models.CatalogEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return strings.ToLower(entries[i].Name) < strings.ToLower(entries[j].Name)
	})
}

// Brands lists the brands of a category. Brand aliases such as
// "mercedes-benz-amg" are dropped when their root slug is also listed.
func (c *Catalog) Brands(ctx context.Context, category string) ([]models.CatalogEntry, error) {
	category = categoryOrDefault(category)
	if err := validate(category); err != nil {
		return nil, err
	}

	candidates := []string{
		c.base + "/ikinci-el/" + category,
		c.base + "/ikinci-el/tum-markalar",
	}

	var (
		found   []models.CatalogEntry
		lastErr error
	)
	for _, u := range candidates {
		page, err := c.fetcher.Fetch(ctx, u)
		if err != nil {
			c.logger.Warn("[catalog] brands from %s: %v", u, err)
			lastErr = err
			continue
		}
		if found = c.parseBrands(page, category); len(found) > 0 {
			break
		}
	}
	if len(found) == 0 {
		if lastErr == nil {
			lastErr = eris.Wrapf(models.ErrParse, "no brands for %s", category)
		}
		return nil, lastErr
	}

	roots := make(map[string]bool, len(found))
	for _, b := range found {
		roots[b.ID] = true
	}
	brands := make([]models.CatalogEntry, 0, len(found))
	for _, b := range found {
		root, _, alias := strings.Cut(b.ID, "-")
		if alias && roots[root] {
			continue
		}
		brands = append(brands, b)
	}
	sortByName(brands)
	return brands, nil
}

func (c *Catalog) parseBrands(page *document.Page, category string) []models.CatalogEntry {
	pathRe := regexp.MustCompile(`(?i)/ikinci-el/` + regexp.QuoteMeta(category) + `/([a-z0-9-]+)$`)
	seen := utils.NewKeySet()
	var out []models.CatalogEntry

	page.Doc.Find(`a[href*="/ikinci-el/` + category + `/"]`).Each(func(_ int, a *goquery.Selection) {
		href := c.absolute(strings.TrimSpace(a.AttrOr("href", "")))
		m := pathRe.FindStringSubmatch(href)
		if m == nil {
			return
		}
		slug := strings.ToLower(m[1])
		if strings.Contains(slug, "sahibinden") || !seen.Add(slug) {
			return
		}

		var name string
		var count int
		if spans := a.Find("span"); spans.Length() >= 2 {
			name = strings.TrimSpace(spans.First().Text())
			count = services.ParseCount(spans.Last().Text())
		} else {
			text := strings.TrimSpace(whitespaceRegexp.ReplaceAllString(a.Text(), " "))
			if tm := brandTextRegexp.FindStringSubmatch(text); tm != nil {
				name = strings.TrimSpace(tm[1])
				count = services.ParseCount(tm[2])
			} else {
				name = text
			}
		}
		name = strings.TrimSpace(brandSuffixRe.ReplaceAllString(brandPrefixRe.ReplaceAllString(name, ""), ""))
		if name == "" {
			name = services.SlugToTitle(slug)
		}
		out = append(out, models.CatalogEntry{ID: slug, Name: name, Count: count, URL: href})
	})

	if len(out) > 0 {
		return out
	}

	loose := regexp.MustCompile(`(?i)/ikinci-el/` + regexp.QuoteMeta(category) + `/([a-z0-9-]+)`)
	for _, m := range loose.FindAllStringSubmatch(page.HTML, -1) {
		slug := strings.ToLower(m[1])
		if strings.Contains(slug, "sahibinden") || !seen.Add(slug) {
			continue
		}
		out = append(out, models.CatalogEntry{
			ID:   slug,
			Name: services.SlugToTitle(slug),
			URL:  c.base + "/ikinci-el/" + category + "/" + slug,
		})
	}
	return out
}

// Models lists a brand's models, at most 60.
func (c *Catalog) Models(ctx context.Context, category, brand string) ([]models.CatalogEntry, error) {
	category = categoryOrDefault(category)
	brand = strings.ToLower(strings.TrimSpace(brand))
	if err := validate(category, brand); err != nil {
		return nil, err
	}

	candidates := []string{
		c.base + "/ikinci-el/" + category + "/" + brand,
		c.base + "/ikinci-el?searchText=" + url.QueryEscape(strings.ReplaceAll(brand, "-", " ")),
	}

	var (
		sources []models.CatalogEntry
		lastErr error
	)
	for _, u := range candidates {
		page, err := c.fetcher.Fetch(ctx, u)
		if err != nil {
			c.logger.Warn("[catalog] models from %s: %v", u, err)
			lastErr = err
			continue
		}
		if sources = c.parseModels(page, category, brand); len(sources) > 0 {
			break
		}
	}
	if len(sources) == 0 {
		if lastErr == nil {
			lastErr = eris.Wrapf(models.ErrParse, "no models for %s", brand)
		}
		return nil, lastErr
	}

	prefix := brand + "-"
	seen := utils.NewKeySet()
	out := make([]models.CatalogEntry, 0, len(sources))
	for _, s := range sources {
		modelSlug := strings.TrimPrefix(s.ID, prefix)
		if modelSlug == "" || !seen.Add(modelSlug) {
			continue
		}
		out = append(out, models.CatalogEntry{
			ID:    modelSlug,
			Name:  services.PrettifySlug(modelSlug),
			Count: s.Count,
			URL:   s.URL,
		})
		if len(out) == maxModels {
			break
		}
	}
	sortByName(out)
	return out, nil
}

// parseModels returns entries whose ID is the full "{brand}-{model}" slug.
func (c *Catalog) parseModels(page *document.Page, category, brand string) []models.CatalogEntry {
	pathRe := regexp.MustCompile(`(?i)/ikinci-el/` + regexp.QuoteMeta(category) + `/([a-z0-9-]+)(?:$|[/?#])`)
	prefix := brand + "-"
	seen := utils.NewKeySet()
	var out []models.CatalogEntry

	page.Doc.Find(`a[href*="/ikinci-el/` + category + `/"]`).Each(func(_ int, a *goquery.Selection) {
		href := c.absolute(strings.TrimSpace(a.AttrOr("href", "")))
		m := pathRe.FindStringSubmatch(href)
		if m == nil {
			return
		}
		slug := strings.ToLower(m[1])
		if !strings.HasPrefix(slug, prefix) || strings.HasSuffix(slug, "-sahibinden") || !seen.Add(slug) {
			return
		}
		out = append(out, models.CatalogEntry{
			ID:    slug,
			Count: services.ParseCount(whitespaceRegexp.ReplaceAllString(a.Text(), " ")),
			URL:   strings.ToLower(href),
		})
	})
	if len(out) > 0 {
		return out
	}

	loose := regexp.MustCompile(`(?i)href=["']?(?:https://www\.arabam\.com)?/ikinci-el/` + regexp.QuoteMeta(category) +
		`/(` + regexp.QuoteMeta(brand) + `-[a-z0-9]+(?:-[a-z0-9]+)*)`)
	for _, m := range loose.FindAllStringSubmatch(page.HTML, -1) {
		slug := strings.ToLower(m[1])
		if strings.HasSuffix(slug, "-sahibinden") || !seen.Add(slug) {
			continue
		}
		out = append(out, models.CatalogEntry{ID: slug, URL: c.base + "/ikinci-el/" + category + "/" + slug})
	}
	return out
}

type versionSlug struct {
	slug  string
	count int
}

// Versions lists a model's versions. Each version found on the model page
// is expanded through its own page, fetched concurrently. When nothing can
// be found a single model-level entry (empty ID) is returned.
func (c *Catalog) Versions(ctx context.Context, category, brand, model string) ([]models.CatalogEntry, error) {
	category = categoryOrDefault(category)
	brand = strings.ToLower(strings.TrimSpace(brand))
	model = strings.ToLower(strings.TrimSpace(model))
	if err := validate(category, brand, model); err != nil {
		return nil, err
	}

	modelLevel := []models.CatalogEntry{{ID: "", Name: services.PrettifySlug(model)}}
	modelPath := c.base + "/ikinci-el/" + category + "/" + brand + "-" + model

	page, err := c.fetcher.Fetch(ctx, modelPath)
	if err != nil {
		return modelLevel, err
	}

	top := c.parseVersions(page, category, brand, model)
	if len(top) == 0 {
		top = advertVersions(page.HTML, brand, model)
	}

	expanded := utils.MapBounded(ctx, top, c.limit, func(ctx context.Context, v versionSlug) ([]versionSlug, error) {
		sub, err := c.fetcher.Fetch(ctx, modelPath+"-"+v.slug)
		if err != nil {
			return nil, err
		}
		var kept []versionSlug
		for _, s := range c.parseVersions(sub, category, brand, model) {
			if s.slug == v.slug || strings.HasPrefix(s.slug, v.slug+"-") {
				kept = append(kept, s)
			}
		}
		return kept, nil
	})

	seen := utils.NewKeySet()
	var out []models.CatalogEntry
	add := func(v versionSlug) {
		if seen.Add(v.slug) {
			out = append(out, models.CatalogEntry{ID: v.slug, Name: services.PrettifySlug(v.slug), Count: v.count})
		}
	}
	for i, res := range expanded {
		if res.Err != nil {
			c.logger.Debug("[catalog] version page %s: %v", top[i].slug, res.Err)
		}
		if len(res.Value) == 0 {
			add(top[i])
			continue
		}
		for _, s := range res.Value {
			add(s)
		}
	}

	if len(out) == 0 {
		return modelLevel, nil
	}
	return out, nil
}

func (c *Catalog) parseVersions(page *document.Page, category, brand, model string) []versionSlug {
	pathRe := regexp.MustCompile(`(?i)/ikinci-el/` + regexp.QuoteMeta(category) + `/([a-z0-9-]+)(?:$|[/?#])`)
	prefix := brand + "-" + model + "-"
	seen := utils.NewKeySet()
	var out []versionSlug

	page.Doc.Find(`a[href*="/ikinci-el/"]`).Each(func(_ int, a *goquery.Selection) {
		href := c.absolute(strings.TrimSpace(a.AttrOr("href", "")))
		m := pathRe.FindStringSubmatch(href)
		if m == nil {
			return
		}
		slug := strings.ToLower(m[1])
		if !strings.HasPrefix(slug, prefix) || strings.HasSuffix(slug, "-sahibinden") {
			return
		}
		v := services.TrimListingSlug(slug[len(prefix):])
		if v == "" || !seen.Add(v) {
			return
		}
		out = append(out, versionSlug{slug: v, count: services.ParseCount(whitespaceRegexp.ReplaceAllString(a.Text(), " "))})
	})
	if len(out) > 0 {
		return out
	}

	loose := regexp.MustCompile(`(?i)` + regexp.QuoteMeta(prefix) + `([a-z0-9]+(?:-[a-z0-9]+)*)`)
	for _, m := range loose.FindAllStringSubmatch(page.HTML, -1) {
		v := services.TrimListingSlug(strings.ToLower(m[1]))
		if v != "" && seen.Add(v) {
			out = append(out, versionSlug{slug: v})
		}
	}
	return out
}

// advertVersions derives versions from advert links such as
// /ilan/galeriden-satilik-opel-corsa-1-4-twinport-enjoy/.../12345.
func advertVersions(html, brand, model string) []versionSlug {
	marker := brand + "-" + model + "-"
	seen := utils.NewKeySet()
	var out []versionSlug
	for _, m := range advertSlugRegexp.FindAllStringSubmatch(html, -1) {
		advert := strings.ToLower(m[1])
		idx := strings.Index(advert, marker)
		if idx < 0 {
			continue
		}
		v := services.TrimListingSlug(advert[idx+len(marker):])
		if v != "" && seen.Add(v) {
			out = append(out, versionSlug{slug: v})
		}
	}
	return out
}
