package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"

	"vehicle-pricer/cache"
	"vehicle-pricer/config"
	"vehicle-pricer/models"
	"vehicle-pricer/scraper"
	"vehicle-pricer/scraper/browser"
	"vehicle-pricer/scraper/document"
	"vehicle-pricer/scraper/marketplace"
	"vehicle-pricer/services"
	"vehicle-pricer/storage"
	"vehicle-pricer/utils"
)

type cliArgs struct {
	catalog  string
	category string
	brand    string
	model    string
	version  string
	year     string
	gear     string
	km       int
	parts    int
	paint    int
	accident int64
	sources  string
}

func parseArgs() cliArgs {
	var a cliArgs
	flag.StringVar(&a.catalog, "catalog", "", "list the catalog instead of pricing: brands, models or versions")
	flag.StringVar(&a.category, "category", "otomobil", "vehicle category slug")
	flag.StringVar(&a.brand, "brand", "", "brand slug, e.g. opel")
	flag.StringVar(&a.model, "model", "", "model slug, e.g. corsa")
	flag.StringVar(&a.version, "version", "", "version slug, e.g. 1-4-twinport-enjoy")
	flag.StringVar(&a.year, "year", "", "model year YYYY or range YYYY-YYYY")
	flag.StringVar(&a.gear, "gear", "", "transmission: manual, automatic or semi-automatic")
	flag.IntVar(&a.km, "km", 0, "mileage")
	flag.IntVar(&a.parts, "parts", 0, "number of replaced parts")
	flag.IntVar(&a.paint, "paint", 0, "number of repainted parts")
	flag.Int64Var(&a.accident, "accident", 0, "accident repair cost")
	flag.StringVar(&a.sources, "sources", "", "comma separated sources, overrides SOURCES")
	flag.Parse()
	return a
}

func main() {
	os.Exit(run())
}

func run() int {
	args := parseArgs()
	cfg := config.Load()
	logger := utils.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	if args.sources != "" {
		cfg.Sources = strings.Split(strings.ToLower(args.sources), ",")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("=== Vehicle pricer starting ===")
	logger.Info("Config: sources %v | concurrency %d | rate %dms | browser %v | cache %s",
		cfg.Sources, cfg.ConcurrencyLimit, cfg.RateLimitMs, cfg.BrowserEnabled, cfg.CacheBackend)

	caches := buildCaches(ctx, cfg, logger)

	fetcher := document.NewFetcher(document.Options{
		Timeout:  cfg.RequestTimeout,
		Interval: time.Duration(cfg.RateLimitMs) * time.Millisecond,
		Attempts: 2,
		Backoff:  time.Second,
	}, logger)

	if args.catalog != "" {
		return runCatalog(ctx, args, fetcher, caches, cfg, logger)
	}

	var renderer marketplace.Renderer
	if cfg.BrowserEnabled {
		session := browser.NewSession(browser.Options{
			Headless:     cfg.BrowserHeadless,
			ChromeBin:    cfg.ChromeBin,
			ReadyTimeout: cfg.BrowserReadyTimeout,
			Settle:       cfg.BrowserSettle,
		}, logger)
		defer session.Close()
		renderer = session
	}

	q, factors, err := buildQuery(args)
	if err != nil {
		logger.Error("Invalid query: %v", err)
		return 1
	}

	sources, err := buildSources(cfg, fetcher, renderer, caches, logger)
	if err != nil {
		logger.Error("%v", err)
		return 1
	}

	recorders, closeAll := buildRecorders(ctx, cfg, logger)
	defer closeAll()

	orchestrator := services.NewOrchestrator(sources, cfg.ConcurrencyLimit, logger)
	aggregator := services.NewAggregator(cfg.Adjustment, logger)
	valuations := services.NewValuationService(orchestrator, aggregator, logger, recorders...)

	v, err := valuations.Evaluate(ctx, q, factors)
	if v != nil {
		services.PrintValuation(os.Stdout, v)
	}
	switch {
	case err == nil:
		return 0
	case eris.Is(err, models.ErrNoObservations):
		logger.Error("No prices found for %s in any tier", q.Label())
	case eris.Is(err, models.ErrInvalidQuery):
		logger.Error("Invalid query: %v", err)
	default:
		logger.Error("Valuation failed: %v", eris.ToString(err, false))
	}
	return 1
}

func buildQuery(args cliArgs) (models.VehicleQuery, models.ConditionFactors, error) {
	minYear, maxYear, err := models.ParseYearRange(args.year)
	if err != nil {
		return models.VehicleQuery{}, models.ConditionFactors{}, err
	}
	gear := models.ParseTransmission(args.gear)
	if args.gear != "" && gear == models.TransmissionAny {
		return models.VehicleQuery{}, models.ConditionFactors{}, eris.Wrapf(models.ErrInvalidQuery, "transmission %q", args.gear)
	}

	q := models.VehicleQuery{
		Category:     strings.ToLower(strings.TrimSpace(args.category)),
		Brand:        strings.ToLower(strings.TrimSpace(args.brand)),
		Model:        strings.ToLower(strings.TrimSpace(args.model)),
		Version:      strings.ToLower(strings.TrimSpace(args.version)),
		MinYear:      minYear,
		MaxYear:      maxYear,
		Transmission: gear,
		Mileage:      args.km,
	}
	f := models.ConditionFactors{
		PartsChanged: args.parts,
		PaintRepairs: args.paint,
		AccidentCost: args.accident,
	}
	return q, f, q.Validate()
}

func buildCaches(ctx context.Context, cfg *config.Config, logger *utils.Logger) *cache.Caches {
	if cfg.CacheBackend != "redis" {
		return cache.NewMemory(cfg.CatalogTTL, cfg.PriceTTL, nil)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("[cache] redis at %s unreachable (%v), using memory", cfg.RedisAddr, err)
		_ = client.Close()
		return cache.NewMemory(cfg.CatalogTTL, cfg.PriceTTL, nil)
	}
	logger.Info("[cache] using redis at %s", cfg.RedisAddr)
	return cache.NewRedis(client, cfg.CatalogTTL, cfg.PriceTTL, logger)
}

// buildSources wraps every enabled site as Guard(Cached(adapter)).
func buildSources(cfg *config.Config, fetcher *document.Fetcher, renderer marketplace.Renderer, caches *cache.Caches, logger *utils.Logger) ([]scraper.ListingSource, error) {
	sites := marketplace.Sites()
	normalizer := services.NewNormalizer(services.PriceBand{Min: cfg.PriceMin, Max: cfg.PriceMax})
	opts := marketplace.Options{
		Limit:        cfg.MaxObservations,
		BlockRetries: cfg.BlockRetries,
		BlockBackoff: cfg.BlockBackoff,
		ReadyTimeout: cfg.BrowserReadyTimeout,
		Settle:       cfg.BrowserSettle,
	}

	var sources []scraper.ListingSource
	for _, name := range cfg.Sources {
		name = strings.TrimSpace(name)
		site, ok := sites[name]
		if !ok {
			logger.Warn("Unknown source %q skipped", name)
			continue
		}
		adapter := marketplace.NewSource(site, fetcher, renderer, normalizer, opts, logger)
		cached := scraper.Cached(name, adapter, caches.Prices, logger)
		sources = append(sources, scraper.Guard(name, cached, cfg.SourceTimeout, logger))
	}
	if len(sources) == 0 {
		return nil, eris.Errorf("no usable sources in %v", cfg.Sources)
	}
	return sources, nil
}

func buildRecorders(ctx context.Context, cfg *config.Config, logger *utils.Logger) ([]services.Recorder, func()) {
	var (
		recorders []services.Recorder
		archives  []storage.Archive
	)

	if cfg.ArchiveCSVPath != "" {
		w, err := storage.NewCSVWriter(cfg.ArchiveCSVPath)
		if err != nil {
			logger.Error("Failed to open CSV archive: %v", err)
		} else {
			archives = append(archives, w)
			logger.Info("Archiving observations to %s", cfg.ArchiveCSVPath)
		}
	}

	if cfg.ArchivePostgres {
		pg, err := storage.NewPostgresWriter(ctx, cfg.DSN())
		if err != nil {
			logger.Error("Failed to connect to PostgreSQL: %v", err)
			logger.Error("Make sure Docker is running: docker compose up -d")
		} else {
			archives = append(archives, pg)
			logger.Info("Archiving observations to PostgreSQL (table: price_observations)")
		}
	}

	for _, a := range archives {
		recorders = append(recorders, a)
	}
	return recorders, func() {
		for _, a := range archives {
			if err := a.Close(); err != nil {
				logger.Warn("Closing archive: %v", err)
			}
		}
	}
}

func runCatalog(ctx context.Context, args cliArgs, fetcher *document.Fetcher, caches *cache.Caches, cfg *config.Config, logger *utils.Logger) int {
	provider := marketplace.NewCatalog(fetcher, cfg.ConcurrencyLimit, logger)
	catalog := services.NewCatalogService("arabam", provider, caches, logger)

	var (
		entries []models.CatalogEntry
		title   string
		err     error
	)
	switch args.catalog {
	case "brands":
		title = "Brands in " + args.category
		entries, err = catalog.Brands(ctx, args.category)
	case "models":
		title = "Models of " + args.brand
		entries, err = catalog.Models(ctx, args.category, args.brand)
	case "versions":
		title = "Versions of " + args.brand + " " + args.model
		entries, err = catalog.Versions(ctx, args.category, args.brand, args.model)
	default:
		logger.Error("Unknown catalog %q (want brands, models or versions)", args.catalog)
		return 1
	}
	if err != nil {
		logger.Error("Catalog lookup failed: %v", err)
		return 1
	}

	services.PrintCatalog(os.Stdout, title, entries)
	fmt.Printf("  %d entries\n\n", len(entries))
	return 0
}
