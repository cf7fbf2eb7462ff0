package marketplace

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"

	"vehicle-pricer/models"
	"vehicle-pricer/scraper/document"
	"vehicle-pricer/services"
)

var (
	yearTokenRegexp  = regexp.MustCompile(`\b(19\d{2}|20\d{2})\b`)
	whitespaceRegexp = regexp.MustCompile(`\s+`)
)

// contextWindow is how many bytes around a free-text amount are checked
// against the brand and transmission filters.
const contextWindow = 100

// Filter rejects listings whose text contradicts the query.
type Filter struct {
	Brand        string
	MinYear      int
	MaxYear      int
	Transmission models.Transmission
}

// FilterFor derives the item filter of a query.
func FilterFor(q models.VehicleQuery) Filter {
	return Filter{
		Brand:        strings.ToLower(strings.ReplaceAll(q.Brand, "-", " ")),
		MinYear:      q.MinYear,
		MaxYear:      q.MaxYear,
		Transmission: q.Transmission,
	}
}

// yearOK keeps items that mention no year or at least one year in range.
func (f Filter) yearOK(text string) bool {
	if f.MinYear == 0 && f.MaxYear == 0 {
		return true
	}
	years := yearTokenRegexp.FindAllString(text, -1)
	if len(years) == 0 {
		return true
	}
	for _, y := range years {
		n, _ := strconv.Atoi(y)
		if (f.MinYear == 0 || n >= f.MinYear) && (f.MaxYear == 0 || n <= f.MaxYear) {
			return true
		}
	}
	return false
}

// gearOK drops items that clearly state the other gearbox.
func (f Filter) gearOK(text string) bool {
	manual := strings.Contains(text, "manuel") || strings.Contains(text, "düz")
	automatic := strings.Contains(text, "otomatik")
	switch f.Transmission {
	case models.TransmissionManual:
		return !automatic || manual
	case models.TransmissionAutomatic, models.TransmissionSemiAutomatic:
		return !manual || automatic
	}
	return true
}

func (f Filter) brandOK(text string) bool {
	if f.Brand == "" {
		return true
	}
	if strings.Contains(text, f.Brand) {
		return true
	}
	// "alfa romeo" cards are often titled "Alfa" or "Romeo Giulia"
	first, _, _ := strings.Cut(f.Brand, " ")
	return strings.Contains(text, first)
}

// Keep applies the year and transmission filters to lower-cased text.
func (f Filter) Keep(text string) bool {
	return f.yearOK(text) && f.gearOK(text)
}

// Challenged reports whether html is an anti-bot interstitial.
func Challenged(html string, markers []string) bool {
	for _, m := range markers {
		if m != "" && strings.Contains(html, m) {
			return true
		}
	}
	return false
}

func normalizeText(s string) string {
	return strings.ToLower(strings.TrimSpace(whitespaceRegexp.ReplaceAllString(s, " ")))
}

// Extract pulls price observations out of a page.
//
// Items inside the site's container are filtered and their price cells
// normalized. When no item yields a price, "NNN.NNN TL" amounts in the
// container text are used instead, each checked against the filter on the
// text surrounding it.
func Extract(page *document.Page, site Site, n *services.Normalizer, f Filter, limit int) ([]models.PriceObservation, error) {
	if Challenged(page.HTML, site.ChallengeMarkers) {
		return nil, eris.Wrapf(models.ErrBlocked, "%s: challenge page at %s", site.Name, page.URL)
	}

	root := page.Doc.Find("body")
	if site.Container != "" {
		root = page.Doc.Find(site.Container).First()
		if root.Length() == 0 {
			return nil, eris.Wrapf(models.ErrParse, "%s: no %q in %s", site.Name, site.Container, page.URL)
		}
	}

	collector := n.NewCollector(limit)

	if site.Item != "" {
		root.Find(site.Item).EachWithBreak(func(_ int, item *goquery.Selection) bool {
			text := normalizeText(item.Text())
			if !f.Keep(text) {
				return true
			}
			if site.Title != "" {
				title := text
				if t := item.Find(site.Title).First(); t.Length() > 0 {
					title = normalizeText(t.Text())
				}
				if !f.brandOK(title) {
					return true
				}
			}

			if site.Price != "" {
				collector.Add(item.Find(site.Price).First().Text())
			} else if amounts := services.ScanAmounts(item.Text()); len(amounts) > 0 {
				collector.Add(amounts[0].Raw)
			}
			return !collector.Full()
		})
	}

	if collector.Len() == 0 {
		text := root.Text()
		for _, a := range services.ScanAmounts(text) {
			if collector.Full() {
				break
			}
			lo := max(0, a.Offset-contextWindow)
			hi := min(len(text), a.Offset+len(a.Raw)+contextWindow)
			window := strings.ToLower(text[lo:hi])
			if !f.brandOK(window) || !f.gearOK(window) {
				continue
			}
			collector.Add(a.Raw)
		}
	}

	return collector.Values(), nil
}
