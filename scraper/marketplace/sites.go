// Package marketplace implements ListingSource and CatalogSource for the
// Turkish used-car marketplaces. Each site is a profile (URL builder,
// selectors, fetch strategy) driven by one generic adapter.
package marketplace

import (
	"math"
	"net/url"
	"strconv"
	"strings"

	"vehicle-pricer/models"
	"vehicle-pricer/services"
)

// Strategy selects how a site is fetched.
type Strategy int

const (
	// StrategyDocument uses plain HTTP only.
	StrategyDocument Strategy = iota
	// StrategyDocumentFirst escalates to the browser when the document is
	// blocked or has no listing container.
	StrategyDocumentFirst
	// StrategyBrowserFirst renders in the browser and falls back to plain
	// HTTP when the browser yields nothing.
	StrategyBrowserFirst
	// StrategyBrowser renders in the browser only.
	StrategyBrowser
)

func (s Strategy) String() string {
	switch s {
	case StrategyDocument:
		return "document"
	case StrategyDocumentFirst:
		return "document-first"
	case StrategyBrowserFirst:
		return "browser-first"
	case StrategyBrowser:
		return "browser"
	}
	return "unknown"
}

// Selectors locate listings inside a document. An empty Container means
// the whole body; an empty Price means the price is scanned from the item
// text.
type Selectors struct {
	Container string
	Item      string
	Price     string
	Title     string
}

// Site is one marketplace profile.
type Site struct {
	Name     string
	Strategy Strategy
	Selectors

	// ReadySelector is what the browser waits for before capturing.
	ReadySelector string
	// WarmupURL is visited before each browser attempt so the session
	// looks like a person arriving from the home page.
	WarmupURL        string
	ChallengeMarkers []string
	Headers          map[string]string
	// RetryEmpty retries browser renders that produced no prices.
	RetryEmpty bool
	// Band overrides the default plausibility band when set.
	Band  *services.PriceBand
	Limit int

	BuildURL func(q models.VehicleQuery) string
	// ModelURL, when set, is tried for version queries that came back
	// empty.
	ModelURL func(q models.VehicleQuery) string
}

var commonChallengeMarkers = []string{"cf-chl-", "Just a moment...", "Access Denied"}

// Sites returns every known profile keyed by name.
func Sites() map[string]Site {
	return map[string]Site{
		"arabam":     Arabam(),
		"sahibinden": Sahibinden(),
		"carvak":     Carvak(),
		"otokoc":     Otokoc(),
		"otoplus":    Otoplus(),
		"borusan":    Borusan(),
	}
}

const arabamBase = "https://www.arabam.com"

func Arabam() Site {
	return Site{
		Name:     "arabam",
		Strategy: StrategyDocumentFirst,
		Selectors: Selectors{
			Container: "#listing-list, .listing-list, .searchResultsTable",
			Item:      "tr.listing-list-item, .searchResultsItem, .listing-item",
			Price:     ".price, .listing-list-item-price, .searchResultsPriceValue",
		},
		ReadySelector:    "#listing-list, .listing-list",
		ChallengeMarkers: commonChallengeMarkers,
		Limit:            80,
		BuildURL:         arabamURL,
		ModelURL:         arabamModelURL,
	}
}

func categoryOrDefault(c string) string {
	if c = strings.TrimSpace(strings.ToLower(c)); c != "" {
		return c
	}
	return "otomobil"
}

func slugPath(q models.VehicleQuery, withVersion bool) string {
	path := q.Brand + "-" + q.Model
	if withVersion {
		if v := strings.Trim(q.Version, "-"); v != "" {
			path += "-" + v
		}
	}
	return strings.ToLower(path)
}

func kmBand(km int, below, above float64) (int, int) {
	b := models.MileageBucket(km)
	return int(math.Round(float64(b) * below)), int(math.Round(float64(b) * above))
}

func arabamGear(t models.Transmission) string {
	switch t {
	case models.TransmissionManual:
		return "Düz"
	case models.TransmissionAutomatic:
		return "Otomatik"
	case models.TransmissionSemiAutomatic:
		return "Yarı Otomatik"
	}
	return ""
}

func arabamParams(q models.VehicleQuery, withKm bool) url.Values {
	params := url.Values{}
	if q.MinYear > 0 {
		params.Set("minYear", strconv.Itoa(q.MinYear))
	}
	if q.MaxYear > 0 {
		params.Set("maxYear", strconv.Itoa(q.MaxYear))
	}
	if withKm && q.Mileage > 0 {
		lo, hi := kmBand(q.Mileage, 0.70, 1.30)
		params.Set("minKm", strconv.Itoa(lo))
		params.Set("maxKm", strconv.Itoa(hi))
	}
	if g := arabamGear(q.Transmission); g != "" {
		params.Set("transmissionName", g)
	}
	return params
}

func withQuery(base string, params url.Values) string {
	if len(params) == 0 {
		return base
	}
	return base + "?" + params.Encode()
}

func arabamURL(q models.VehicleQuery) string {
	base := arabamBase + "/ikinci-el/" + categoryOrDefault(q.Category) + "/" + slugPath(q, true)
	return withQuery(base, arabamParams(q, true))
}

// arabamModelURL drops the version and the mileage band.
func arabamModelURL(q models.VehicleQuery) string {
	base := arabamBase + "/ikinci-el/" + categoryOrDefault(q.Category) + "/" + slugPath(q, false)
	return withQuery(base, arabamParams(q, false))
}

const sahibindenBase = "https://www.sahibinden.com"

var sahibindenCategories = map[string]string{
	"otomobil":          "otomobil",
	"arazi-suv-pick-up": "arazi-suv-pickup",
	"minivan-panelvan":  "minivan-van",
	"ticari-araclar":    "ticari-araclar",
	"motosiklet":        "motosiklet",
	"motorlu-araclar":   "motorlu-araclar",
}

func Sahibinden() Site {
	return Site{
		Name:     "sahibinden",
		Strategy: StrategyBrowserFirst,
		Selectors: Selectors{
			Container: "#searchResultsTable, .searchResultsTable, .searchResults",
			Item:      ".searchResultsItem, .search-result-item, .listing-item",
			Price:     ".searchResultsPriceValue, .price-value, .listing-price, .price",
		},
		ReadySelector:    ".searchResultsItem",
		WarmupURL:        sahibindenBase + "/",
		ChallengeMarkers: append([]string{"Captcha", "Olağandışı"}, commonChallengeMarkers...),
		Headers: map[string]string{
			"Accept-Language": "tr-TR,tr;q=0.9,en;q=0.8",
			"Cache-Control":   "no-cache",
			"Pragma":          "no-cache",
		},
		RetryEmpty: true,
		Limit:      50,
		BuildURL:   sahibindenURL,
	}
}

func sahibindenURL(q models.VehicleQuery) string {
	cat, ok := sahibindenCategories[categoryOrDefault(q.Category)]
	if !ok {
		cat = "otomobil"
	}
	base := sahibindenBase + "/" + cat + "/" + slugPath(q, true)

	// sahibinden expects the filters in this order
	var params []string
	if q.MinYear > 0 && q.MaxYear > 0 {
		params = append(params, "a5_min="+strconv.Itoa(q.MinYear), "a5_max="+strconv.Itoa(q.MaxYear))
	}
	if q.Mileage > 0 {
		lo, hi := kmBand(q.Mileage, 0.75, 1.25)
		params = append(params, "a10_min="+strconv.Itoa(lo), "a10_max="+strconv.Itoa(hi))
	}
	switch q.Transmission {
	case models.TransmissionManual:
		params = append(params, "a4_type=4094")
	case models.TransmissionAutomatic:
		params = append(params, "a4_type=4095")
	case models.TransmissionSemiAutomatic:
		params = append(params, "a4_type=215206")
	}
	if len(params) == 0 {
		return base
	}
	return base + "?" + strings.Join(params, "&")
}

var storefrontCategories = map[string]string{
	"otomobil":          "otomobil",
	"arazi-suv-pick-up": "suv",
	"minivan-panelvan":  "minivan",
}

func storefrontCategory(c string) string {
	if p, ok := storefrontCategories[categoryOrDefault(c)]; ok {
		return p
	}
	return "otomobil"
}

// searchText is the free-text query the storefronts understand.
func searchText(q models.VehicleQuery) string {
	parts := []string{q.Brand, q.Model}
	if q.MinYear > 0 {
		parts = append(parts, strconv.Itoa(q.MinYear))
	}
	switch q.Transmission {
	case models.TransmissionManual:
		parts = append(parts, "düz")
	case models.TransmissionAutomatic:
		parts = append(parts, "otomatik")
	case models.TransmissionSemiAutomatic:
		parts = append(parts, "yari otomatik")
	}
	return strings.Join(parts, " ")
}

func storefront(name string, sel Selectors, build func(q models.VehicleQuery) string) Site {
	return Site{
		Name:             name,
		Strategy:         StrategyBrowser,
		Selectors:        sel,
		ReadySelector:    sel.Item,
		ChallengeMarkers: commonChallengeMarkers,
		Limit:            50,
		BuildURL:         build,
	}
}

func Carvak() Site {
	return storefront("carvak", Selectors{
		Item:  `aui-product-card, .product-card, [data-testid="product-card"]`,
		Title: ".product-title, .card-title, h2, h3",
		Price: "aui-price-product, .price, .amount",
	}, func(q models.VehicleQuery) string {
		return "https://www.carvak.com/tr/satilik-arac/" + storefrontCategory(q.Category) +
			"?q=" + url.QueryEscape(searchText(q))
	})
}

func Otokoc() Site {
	return storefront("otokoc", Selectors{
		Item:  ".product-card, .vehicle-card, .cars-list-item",
		Title: ".card-title, .product-name, h3, h2, .vehicle-title",
	}, func(q models.VehicleQuery) string {
		return "https://www.otokocikinciel.com/ikinci-el-araba-modelleri?searchText=" + url.QueryEscape(searchText(q))
	})
}

func Otoplus() Site {
	return storefront("otoplus", Selectors{
		Item:  ".vehicle-card, .car-card, .search-result-card",
		Title: ".card-header, .vehicle-title, strong",
		Price: ".vehicle-price, .price",
	}, func(q models.VehicleQuery) string {
		return "https://www.otoplus.com/al/" + storefrontCategory(q.Category) +
			"?searchText=" + url.QueryEscape(searchText(q))
	})
}

func Borusan() Site {
	return storefront("borusan", Selectors{
		Item:  ".vehicle-card, .car-card",
		Title: ".card-title, .vehicle-name, h3",
	}, func(q models.VehicleQuery) string {
		return "https://borusannext.com/araba-al/" + storefrontCategory(q.Category) +
			"?model_search=" + url.QueryEscape(searchText(q))
	})
}
