package services

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	validSlugRegexp = regexp.MustCompile(`^[a-z0-9-]+$`)
	digitsRegexp    = regexp.MustCompile(`^\d+$`)
	countRegexp     = regexp.MustCompile(`\(?\s*([\d.,]+)\s*\)?\s*$`)
)

// tokenSpellings maps lower-cased slug tokens to their marketing spelling.
var tokenSpellings = map[string]string{
	"dci":     "dCi",
	"tce":     "TCe",
	"tdi":     "TDI",
	"tsi":     "TSI",
	"mpi":     "MPI",
	"hdi":     "HDI",
	"cdti":    "CDTI",
	"ecog":    "Eco-G",
	"bluedci": "Blue dCi",
	"ehev":    "e:HEV",
	"epower":  "e-POWER",
	"suv":     "SUV",
	"gt":      "GT",
}

// slugStopWords end the meaningful part of a listing or version slug.
var slugStopWords = map[string]struct{}{
	"satilik": {}, "ikinci": {}, "el": {}, "otomobil": {}, "temiz": {},
	"kullanilmis": {}, "hatasiz": {}, "sahibinden": {}, "yeni": {},
	"galeriden": {}, "yetkili": {}, "bayiden": {}, "galerist": {},
	"bayi": {}, "galeri": {}, "ultimate": {}, "gs": {},
}

// ValidSlug reports whether s is a lower-case URL path token.
func ValidSlug(s string) bool {
	return validSlugRegexp.MatchString(s)
}

func splitSlug(slug string) []string {
	return strings.FieldsFunc(slug, func(r rune) bool { return r == '-' })
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + strings.ToLower(s[size:])
}

// SlugToTitle turns "alfa-romeo" into "Alfa Romeo".
func SlugToTitle(slug string) string {
	parts := splitSlug(slug)
	for i, p := range parts {
		parts[i] = capitalize(p)
	}
	return strings.Join(parts, " ")
}

func prettifyToken(token string) string {
	lower := strings.ToLower(token)
	if spelled, ok := tokenSpellings[lower]; ok {
		return spelled
	}
	if digitsRegexp.MatchString(lower) {
		return lower
	}
	return capitalize(lower)
}

// PrettifySlug renders a model or version slug as a display label.
// Adjacent numeric tokens become an engine displacement:
//
//	"1-4-twinport-enjoy" → "1.4 Twinport Enjoy"
//	"1-5-bluedci-touch"  → "1.5 Blue dCi Touch"
func PrettifySlug(slug string) string {
	var out []string
	prevNumeric := false
	for _, token := range splitSlug(slug) {
		lower := strings.ToLower(token)
		numeric := digitsRegexp.MatchString(lower)
		if numeric && prevNumeric {
			out[len(out)-1] += "." + lower
			prevNumeric = false
			continue
		}
		out = append(out, prettifyToken(lower))
		prevNumeric = numeric
	}
	return strings.Join(out, " ")
}

// TrimListingSlug keeps the leading tokens of a slug up to the first stop
// word or long numeric id.
//
//	"1-4-twinport-enjoy-sahibinden-temiz" → "1-4-twinport-enjoy"
//	"1-3-cdti-essentia-28373312"          → "1-3-cdti-essentia"
func TrimListingSlug(slug string) string {
	var kept []string
	for _, part := range splitSlug(slug) {
		if digitsRegexp.MatchString(part) && len(part) >= 5 {
			break
		}
		if _, stop := slugStopWords[strings.ToLower(part)]; stop {
			break
		}
		kept = append(kept, part)
	}
	return strings.Join(kept, "-")
}

// ParseCount reads a trailing listing count such as "Corsa (1.234)".
// Missing or unreadable counts are 0.
func ParseCount(text string) int {
	m := countRegexp.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return 0
	}
	digits := strings.NewReplacer(".", "", ",", "").Replace(m[1])
	n, err := strconv.Atoi(digits)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
