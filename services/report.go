package services

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"vehicle-pricer/models"
)

// PrintValuation writes a human readable report of v to w.
func PrintValuation(w io.Writer, v *models.Valuation) {
	sep := strings.Repeat("═", 54)
	thin := strings.Repeat("─", 54)

	fmt.Fprintf(w, "\n\033[1;35m%s\033[0m\n", sep)
	fmt.Fprintf(w, "\033[1;35m  🚗 %s\033[0m\n", strings.ToUpper(v.Query.Label()))
	fmt.Fprintf(w, "\033[1;35m%s\033[0m\n\n", sep)

	fmt.Fprintf(w, "\033[1;33m  Query\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	fmt.Fprintf(w, "  Category     : %s\n", orDash(v.Query.Category))
	fmt.Fprintf(w, "  Years        : %s\n", yearLabel(v.Query))
	fmt.Fprintf(w, "  Transmission : %s\n", gearLabel(v.Query.Transmission))
	fmt.Fprintf(w, "  Mileage      : %s km\n", groupThousands(int64(v.Query.Mileage)))
	fmt.Fprintf(w, "  Run          : %s\n", v.ID)
	fmt.Fprintln(w)

	fmt.Fprintf(w, "\033[1;33m  Sources (%s tier)\033[0m\n", v.Tier)
	fmt.Fprintf(w, "  %s\n", thin)
	if len(v.Providers) == 0 {
		fmt.Fprintf(w, "  No sources answered\n")
	}
	for _, p := range v.Providers {
		status := ""
		if p.Failure != models.FailureNone {
			status = " \033[1;31m" + string(p.Failure) + "\033[0m"
		}
		bar := strings.Repeat("█", min(len(p.Observations), 40))
		fmt.Fprintf(w, "  %-12s %s (%d)%s\n", truncate(p.Source, 12), bar, len(p.Observations), status)
	}
	if len(v.Attempts) > 1 {
		fmt.Fprintf(w, "  Tiers tried  :")
		for _, a := range v.Attempts {
			fmt.Fprintf(w, " %s=%d", a.Tier, a.Observations)
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintln(w)

	r := v.Result
	fmt.Fprintf(w, "\033[1;33m  Estimate\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	if r.MarketAverage == nil {
		fmt.Fprintf(w, "  No price data available\n")
	} else {
		total := models.CountObservations(v.Providers)
		fmt.Fprintf(w, "  Prices used    : \033[1m%d\033[0m of %d\n", len(r.Filtered), total)
		if len(r.Filtered) > 0 {
			fmt.Fprintf(w, "  Range          : %s – %s\n",
				formatLira(r.Filtered[0]), formatLira(r.Filtered[len(r.Filtered)-1]))
		}
		fmt.Fprintf(w, "  Market average : \033[1;32m%s\033[0m\n", formatLira(*r.MarketAverage))
		fmt.Fprintf(w, "  Condition      : %+d%%\n", r.AdjustmentPercent())
		fmt.Fprintf(w, "  Adjusted price : \033[1;32m%s\033[0m\n", formatLira(*r.AdjustedPrice))
		fmt.Fprintf(w, "  Sale price     : \033[1;36m%s\033[0m\n", formatLira(*r.SaleWithMargin))
	}

	fmt.Fprintf(w, "\n\033[1;35m%s\033[0m\n\n", sep)
}

// PrintCatalog writes a catalog listing to w.
func PrintCatalog(w io.Writer, title string, entries []models.CatalogEntry) {
	thin := strings.Repeat("─", 54)

	fmt.Fprintf(w, "\n\033[1;33m  %s\033[0m\n", title)
	fmt.Fprintf(w, "  %s\n", thin)
	if len(entries) == 0 {
		fmt.Fprintf(w, "  Nothing found\n\n")
		return
	}
	for _, e := range entries {
		id := e.ID
		if id == "" {
			id = "(model level)"
		}
		count := ""
		if e.Count > 0 {
			count = groupThousands(int64(e.Count))
		}
		fmt.Fprintf(w, "  %-28s %-22s %8s\n", truncate(e.Name, 28), truncate(id, 22), count)
	}
	fmt.Fprintln(w)
}

func yearLabel(q models.VehicleQuery) string {
	switch {
	case q.MinYear == 0 && q.MaxYear == 0:
		return "any"
	case q.MinYear == q.MaxYear:
		return strconv.Itoa(q.MinYear)
	}
	return fmt.Sprintf("%d-%d", q.MinYear, q.MaxYear)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// groupThousands formats 1250000 as "1.250.000".
func groupThousands(n int64) string {
	s := strconv.FormatInt(n, 10)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}

func formatLira(n int64) string {
	return groupThousands(n) + " TL"
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return string(r[:max-3]) + "..."
}
