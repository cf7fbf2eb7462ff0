package marketplace

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rotisserie/eris"

	"vehicle-pricer/models"
	"vehicle-pricer/scraper/browser"
	"vehicle-pricer/scraper/document"
	"vehicle-pricer/services"
	"vehicle-pricer/utils"
)

const arabamListing = `<html><body>
<table id="listing-list">
  <tr class="listing-list-item">
    <td>Opel Corsa 1.4 Twinport Enjoy</td>
    <td>2020</td>
    <td>45.000 km</td>
    <td>Düz</td>
    <td class="listing-list-item-price">875.000 TL</td>
  </tr>
  <tr class="listing-list-item">
    <td>Opel Corsa 1.4 Enjoy</td>
    <td>2020</td>
    <td>Manuel</td>
    <td class="listing-list-item-price">890.000 TL</td>
  </tr>
  <tr class="listing-list-item">
    <td>Opel Corsa</td>
    <td>2017</td>
    <td>Düz</td>
    <td class="listing-list-item-price">640.000 TL</td>
  </tr>
  <tr class="listing-list-item">
    <td>Opel Corsa</td>
    <td>2020</td>
    <td>Otomatik</td>
    <td class="listing-list-item-price">990.000 TL</td>
  </tr>
  <tr class="listing-list-item">
    <td>Opel Corsa</td>
    <td>2020</td>
    <td>Düz</td>
    <td class="listing-list-item-price">875.000 TL</td>
  </tr>
  <tr class="listing-list-item">
    <td>Opel Corsa</td>
    <td>2020</td>
    <td>Düz</td>
    <td class="listing-list-item-price">Fiyat sorunuz</td>
  </tr>
</table>
<div class="similar">Benzer ilan 455.000 TL</div>
</body></html>`

const emptyArabamListing = `<html><body><table id="listing-list"></table></body></html>`

var corsaQuery = models.VehicleQuery{
	Category:     "otomobil",
	Brand:        "opel",
	Model:        "corsa",
	MinYear:      2020,
	MaxYear:      2020,
	Transmission: models.TransmissionManual,
	Mileage:      90000,
}

func testNormalizer() *services.Normalizer {
	return services.NewNormalizer(services.PriceBand{Min: 50000, Max: 20000000})
}

func noSleep(context.Context, time.Duration) error { return nil }

type fakeFetcher struct {
	mu    sync.Mutex
	pages map[string]string
	errs  map[string]error
	calls []string
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) (*document.Page, error) {
	f.mu.Lock()
	f.calls = append(f.calls, url)
	f.mu.Unlock()

	if err, ok := f.errs[url]; ok {
		return nil, err
	}
	if html, ok := f.pages[url]; ok {
		return document.Parse(url, html)
	}
	return nil, eris.Wrapf(models.ErrTransport, "%s: status 404", url)
}

type fakeRenderer struct {
	mu    sync.Mutex
	html  func(url string) string
	calls []string
}

func (r *fakeRenderer) Render(_ context.Context, req browser.RenderRequest) (string, error) {
	r.mu.Lock()
	r.calls = append(r.calls, req.URL)
	r.mu.Unlock()
	return r.html(req.URL), nil
}

func parsePage(t *testing.T, html string) *document.Page {
	t.Helper()
	page, err := document.Parse("https://example.test/list", html)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return page
}

func TestArabamURL(t *testing.T) {
	q := corsaQuery
	q.Version = "1-4-twinport"

	got := arabamURL(q)
	want := "https://www.arabam.com/ikinci-el/otomobil/opel-corsa-1-4-twinport?" +
		"maxKm=117000&maxYear=2020&minKm=63000&minYear=2020&transmissionName=D%C3%BCz"
	if got != want {
		t.Errorf("arabamURL:\n got %s\nwant %s", got, want)
	}

	got = arabamModelURL(q)
	want = "https://www.arabam.com/ikinci-el/otomobil/opel-corsa?maxYear=2020&minYear=2020&transmissionName=D%C3%BCz"
	if got != want {
		t.Errorf("arabamModelURL:\n got %s\nwant %s", got, want)
	}

	bare := models.VehicleQuery{Brand: "opel", Model: "corsa"}
	if got := arabamURL(bare); got != "https://www.arabam.com/ikinci-el/otomobil/opel-corsa" {
		t.Errorf("arabamURL without filters: got %s", got)
	}
}

func TestSahibindenURL(t *testing.T) {
	q := corsaQuery
	q.Category = "arazi-suv-pick-up"
	q.Transmission = models.TransmissionSemiAutomatic

	got := sahibindenURL(q)
	want := "https://www.sahibinden.com/arazi-suv-pickup/opel-corsa?a5_min=2020&a5_max=2020&a10_min=67500&a10_max=112500&a4_type=215206"
	if got != want {
		t.Errorf("sahibindenURL:\n got %s\nwant %s", got, want)
	}
}

func TestStorefrontURLs(t *testing.T) {
	q := corsaQuery
	tests := []struct {
		site Site
		want string
	}{
		{Carvak(), "https://www.carvak.com/tr/satilik-arac/otomobil?q=opel+corsa+2020+d%C3%BCz"},
		{Otokoc(), "https://www.otokocikinciel.com/ikinci-el-araba-modelleri?searchText=opel+corsa+2020+d%C3%BCz"},
		{Otoplus(), "https://www.otoplus.com/al/otomobil?searchText=opel+corsa+2020+d%C3%BCz"},
		{Borusan(), "https://borusannext.com/araba-al/otomobil?model_search=opel+corsa+2020+d%C3%BCz"},
	}
	for _, tt := range tests {
		if got := tt.site.BuildURL(q); got != tt.want {
			t.Errorf("%s:\n got %s\nwant %s", tt.site.Name, got, tt.want)
		}
	}
}

func TestSitesRegistry(t *testing.T) {
	sites := Sites()
	for _, name := range []string{"arabam", "sahibinden", "carvak", "otokoc", "otoplus", "borusan"} {
		site, ok := sites[name]
		if !ok {
			t.Errorf("site %s missing", name)
			continue
		}
		if site.Name != name || site.BuildURL == nil {
			t.Errorf("site %s is incomplete", name)
		}
	}
}

func TestExtractFiltersItems(t *testing.T) {
	obs, err := Extract(parsePage(t, arabamListing), Arabam(), testNormalizer(), FilterFor(corsaQuery), 80)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	want := []models.PriceObservation{875000, 890000}
	if len(obs) != len(want) || obs[0] != want[0] || obs[1] != want[1] {
		t.Errorf("Extract: got %v, want %v", obs, want)
	}
}

func TestExtractRespectsLimit(t *testing.T) {
	q := models.VehicleQuery{Brand: "opel", Model: "corsa"}
	obs, err := Extract(parsePage(t, arabamListing), Arabam(), testNormalizer(), FilterFor(q), 2)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(obs) != 2 {
		t.Errorf("Extract with limit 2: got %v", obs)
	}
}

func TestExtractMissingContainer(t *testing.T) {
	_, err := Extract(parsePage(t, `<html><body><p>Aradığınız sayfa bulunamadı</p></body></html>`),
		Arabam(), testNormalizer(), FilterFor(corsaQuery), 80)
	if !eris.Is(err, models.ErrParse) {
		t.Errorf("expected ErrParse, got %v", err)
	}
}

func TestExtractDetectsChallenge(t *testing.T) {
	html := `<html><body><h1>Olağandışı bir erişim tespit ettik</h1><div class="searchResultsItem"></div></body></html>`
	_, err := Extract(parsePage(t, html), Sahibinden(), testNormalizer(), FilterFor(corsaQuery), 50)
	if !eris.Is(err, models.ErrBlocked) {
		t.Errorf("expected ErrBlocked, got %v", err)
	}
}

func TestExtractTextFallbackChecksContext(t *testing.T) {
	filler := strings.Repeat("lorem ", 40)
	html := `<html><body><div id="results">` +
		`<p>Opel Corsa 2020 düz vites 700.000 TL</p>` +
		`<p>` + filler + `</p>` +
		`<p>Renault Clio 2020 düz 650.000 TL</p>` +
		`</div></body></html>`
	site := Site{Name: "test", Selectors: Selectors{Container: "#results", Item: ".row", Price: ".p"}}

	obs, err := Extract(parsePage(t, html), site, testNormalizer(), FilterFor(corsaQuery), 80)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(obs) != 1 || obs[0] != 700000 {
		t.Errorf("text fallback: got %v, want [700000]", obs)
	}
}

func TestExtractStorefrontCards(t *testing.T) {
	html := `<html><body>
<div class="vehicle-card">
  <h3>Opel Corsa 1.2</h3>
  <p>2020 · Düz</p>
  <p>Fiyat 812.500 ₺</p>
</div>
<div class="vehicle-card">
  <h3>Fiat Egea</h3>
  <p>2020 · Düz</p>
  <p>Fiyat 700.000 ₺</p>
</div>
<div class="vehicle-card">
  <h3>Opel Corsa</h3>
  <p>2019 · Düz</p>
  <p>Fiyat 760.000 ₺</p>
</div>
</body></html>`

	obs, err := Extract(parsePage(t, html), Borusan(), testNormalizer(), FilterFor(corsaQuery), 50)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(obs) != 1 || obs[0] != 812500 {
		t.Errorf("storefront cards: got %v, want [812500]", obs)
	}
}

func TestFilterYearRange(t *testing.T) {
	f := Filter{MinYear: 2019, MaxYear: 2021}
	tests := []struct {
		text string
		want bool
	}{
		{"opel corsa 2020", true},
		{"opel corsa 2017", false},
		{"opel corsa", true},
		{"2015 model, 2021 muayeneli", true},
	}
	for _, tt := range tests {
		if got := f.Keep(tt.text); got != tt.want {
			t.Errorf("Keep(%q) = %v; want %v", tt.text, got, tt.want)
		}
	}
}

func TestSourceEscalatesWhenBlocked(t *testing.T) {
	q := corsaQuery
	url := arabamURL(q)
	fetcher := &fakeFetcher{errs: map[string]error{url: eris.Wrap(models.ErrBlocked, "status 403")}}
	renderer := &fakeRenderer{html: func(string) string { return arabamListing }}

	src := NewSource(Arabam(), fetcher, renderer, testNormalizer(),
		Options{Limit: 80, BlockRetries: 2, Sleep: noSleep}, utils.NewNopLogger())
	res, err := src.Fetch(context.Background(), q)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(res.Observations) != 2 || res.Failure != models.FailureNone {
		t.Errorf("escalated result: got %+v", res)
	}
	if len(renderer.calls) != 1 || renderer.calls[0] != url {
		t.Errorf("renderer calls: got %v", renderer.calls)
	}
}

func TestSourceFallsBackToModelLevel(t *testing.T) {
	q := corsaQuery
	q.Version = "1-4-twinport"
	fetcher := &fakeFetcher{pages: map[string]string{
		arabamURL(q):      emptyArabamListing,
		arabamModelURL(q): arabamListing,
	}}

	src := NewSource(Arabam(), fetcher, nil, testNormalizer(), Options{Limit: 80}, utils.NewNopLogger())
	res, err := src.Fetch(context.Background(), q)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if res.URL != arabamModelURL(q) {
		t.Errorf("URL: got %s, want the model-level URL", res.URL)
	}
	if len(res.Observations) != 2 {
		t.Errorf("Observations: got %v", res.Observations)
	}
}

func TestSourceDegradesToEmpty(t *testing.T) {
	src := NewSource(Arabam(), &fakeFetcher{}, nil, testNormalizer(), Options{Limit: 80}, utils.NewNopLogger())
	res, err := src.Fetch(context.Background(), corsaQuery)
	if err != nil {
		t.Fatalf("Fetch must not fail for transport errors: %v", err)
	}
	if !res.Empty() || res.Failure != models.FailureTransport || res.Source != "arabam" {
		t.Errorf("degraded result: got %+v", res)
	}
}

func TestSourceRetriesChallengeThenFallsBack(t *testing.T) {
	q := corsaQuery
	renderer := &fakeRenderer{html: func(string) string {
		return `<html><body>Captcha doğrulaması gerekli</body></html>`
	}}
	fetcher := &fakeFetcher{errs: map[string]error{sahibindenURL(q): eris.Wrap(models.ErrBlocked, "status 429")}}

	src := NewSource(Sahibinden(), fetcher, renderer, testNormalizer(),
		Options{Limit: 80, BlockRetries: 3, Sleep: noSleep}, utils.NewNopLogger())
	res, err := src.Fetch(context.Background(), q)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !res.Empty() || res.Failure != models.FailureBlocked {
		t.Errorf("challenged result: got %+v", res)
	}
	// three attempts, each a warm-up plus the search page
	if len(renderer.calls) != 6 {
		t.Errorf("renderer calls: got %d, want 6", len(renderer.calls))
	}
	if len(fetcher.calls) != 1 {
		t.Errorf("document fallback calls: got %d, want 1", len(fetcher.calls))
	}
}

func TestBrowserOnlySiteWithoutBrowser(t *testing.T) {
	src := NewSource(Carvak(), &fakeFetcher{}, nil, testNormalizer(), Options{Limit: 80}, utils.NewNopLogger())
	res, _ := src.Fetch(context.Background(), corsaQuery)
	if res.Failure != models.FailureTransport {
		t.Errorf("Failure: got %q, want transport", res.Failure)
	}
}

const brandsPage = `<html><body>
<a href="/ikinci-el/otomobil/opel"><span>Opel</span><span>(12.345)</span></a>
<a href="/ikinci-el/otomobil/renault">İkinci El Renault Fiyatları 9.870</a>
<a href="/ikinci-el/otomobil/mercedes-benz">Mercedes-Benz (4.321)</a>
<a href="/ikinci-el/otomobil/opel-corsa">Opel Corsa</a>
<a href="/ikinci-el/otomobil/sahibinden">Sahibinden</a>
<a href="https://www.arabam.com/ikinci-el/otomobil/alfa-romeo">Alfa Romeo</a>
</body></html>`

func TestCatalogBrands(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string]string{arabamBase + "/ikinci-el/otomobil": brandsPage}}
	brands, err := NewCatalog(fetcher, 2, utils.NewNopLogger()).Brands(context.Background(), "otomobil")
	if err != nil {
		t.Fatalf("Brands: %v", err)
	}

	wantIDs := []string{"alfa-romeo", "mercedes-benz", "opel", "renault"}
	if len(brands) != len(wantIDs) {
		t.Fatalf("Brands: got %+v", brands)
	}
	for i, id := range wantIDs {
		if brands[i].ID != id {
			t.Errorf("brands[%d].ID = %q; want %q", i, brands[i].ID, id)
		}
	}
	if brands[3].Name != "Renault" || brands[3].Count != 9870 {
		t.Errorf("renault entry: got %+v", brands[3])
	}
	if brands[2].Name != "Opel" || brands[2].Count != 12345 {
		t.Errorf("opel entry: got %+v", brands[2])
	}
}

func TestCatalogBrandsFallsThroughCandidates(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string]string{arabamBase + "/ikinci-el/tum-markalar": brandsPage}}
	brands, err := NewCatalog(fetcher, 2, utils.NewNopLogger()).Brands(context.Background(), "otomobil")
	if err != nil || len(brands) != 4 {
		t.Errorf("Brands via second candidate: got %d entries, err %v", len(brands), err)
	}
}

func TestCatalogModels(t *testing.T) {
	page := `<html><body>
<a href="/ikinci-el/otomobil/opel-corsa">Corsa (1.234)</a>
<a href="/ikinci-el/otomobil/opel-astra?sort=price">Astra 987</a>
<a href="/ikinci-el/otomobil/opel-corsa-sahibinden">Corsa Sahibinden</a>
<a href="/ikinci-el/otomobil/renault-clio">Clio</a>
<a href="/ikinci-el/otomobil/opel-corsa">Corsa again</a>
</body></html>`
	fetcher := &fakeFetcher{pages: map[string]string{arabamBase + "/ikinci-el/otomobil/opel": page}}

	got, err := NewCatalog(fetcher, 2, utils.NewNopLogger()).Models(context.Background(), "otomobil", "opel")
	if err != nil {
		t.Fatalf("Models: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Models: got %+v", got)
	}
	if got[0].ID != "astra" || got[0].Count != 987 || got[1].ID != "corsa" || got[1].Count != 1234 {
		t.Errorf("Models: got %+v", got)
	}
}

func TestCatalogModelsRejectsBadSlug(t *testing.T) {
	_, err := NewCatalog(&fakeFetcher{}, 2, utils.NewNopLogger()).Models(context.Background(), "otomobil", "../admin")
	if !eris.Is(err, models.ErrInvalidQuery) {
		t.Errorf("expected ErrInvalidQuery, got %v", err)
	}
}

func TestCatalogVersionsExpandsSubPages(t *testing.T) {
	model := arabamBase + "/ikinci-el/otomobil/opel-corsa"
	fetcher := &fakeFetcher{pages: map[string]string{
		model: `<html><body>
<a href="/ikinci-el/otomobil/opel-corsa-1-4-twinport">1.4 Twinport (320)</a>
<a href="/ikinci-el/otomobil/opel-corsa-1-3-cdti">1.3 CDTI (120)</a>
</body></html>`,
		model + "-1-4-twinport": `<html><body>
<a href="/ikinci-el/otomobil/opel-corsa-1-4-twinport-enjoy">Enjoy (200)</a>
<a href="/ikinci-el/otomobil/opel-corsa-1-4-twinport-essentia">Essentia (120)</a>
<a href="/ikinci-el/otomobil/opel-corsa-1-3-cdti">1.3 CDTI</a>
</body></html>`,
	}}

	got, err := NewCatalog(fetcher, 2, utils.NewNopLogger()).Versions(context.Background(), "otomobil", "opel", "corsa")
	if err != nil {
		t.Fatalf("Versions: %v", err)
	}

	want := []models.CatalogEntry{
		{ID: "1-4-twinport-enjoy", Name: "1.4 Twinport Enjoy", Count: 200},
		{ID: "1-4-twinport-essentia", Name: "1.4 Twinport Essentia", Count: 120},
		{ID: "1-3-cdti", Name: "1.3 CDTI", Count: 120},
	}
	if len(got) != len(want) {
		t.Fatalf("Versions: got %+v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Versions[%d] = %+v; want %+v", i, got[i], want[i])
		}
	}
}

func TestCatalogVersionsModelLevelFallback(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string]string{
		arabamBase + "/ikinci-el/otomobil/opel-corsa": `<html><body><p>Sonuç yok</p></body></html>`,
	}}
	got, err := NewCatalog(fetcher, 2, utils.NewNopLogger()).Versions(context.Background(), "otomobil", "opel", "corsa")
	if err != nil {
		t.Fatalf("Versions: %v", err)
	}
	if len(got) != 1 || got[0].ID != "" || got[0].Name != "Corsa" {
		t.Errorf("model-level fallback: got %+v", got)
	}
}

func TestAdvertVersions(t *testing.T) {
	html := `<a href="/ilan/galeriden-satilik-opel-corsa-1-4-twinport-enjoy/opel-corsa/28373312">a</a>
<a href="/ilan/sahibinden-opel-corsa-1-3-cdti-essentia-hatasiz/ilan/28373313">b</a>
<a href="/ilan/renault-clio-1-5-dci/clio/1">c</a>`

	got := advertVersions(html, "opel", "corsa")
	if len(got) != 2 || got[0].slug != "1-4-twinport-enjoy" || got[1].slug != "1-3-cdti-essentia" {
		t.Errorf("advertVersions: got %+v", got)
	}
}
