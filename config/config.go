package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Adjustment holds the condition-adjustment coefficients.
type Adjustment struct {
	MinMultiplier float64
	MaxMultiplier float64

	MileageReference      int
	MileageStep           int
	MileagePenaltyPerStep float64
	MileageBonusPerStep   float64

	PartsChangedPenalty float64
	PaintRepairPenalty  float64

	AccidentCostStep       int64
	AccidentPenaltyPerStep float64

	AutomaticPremium     float64
	SemiAutomaticPremium float64

	AgePenaltyPerYear float64
	AgeCap            float64

	SaleMargin float64
}

// Config holds all application configuration loaded from environment variables.
type Config struct {
	RequestTimeout   time.Duration
	SourceTimeout    time.Duration
	ConcurrencyLimit int
	RateLimitMs      int
	MaxObservations  int
	Sources          []string

	CatalogTTL time.Duration
	PriceTTL   time.Duration

	PriceMin int64
	PriceMax int64

	BrowserEnabled      bool
	BrowserHeadless     bool
	ChromeBin           string
	BrowserSettle       time.Duration
	BrowserReadyTimeout time.Duration
	BlockRetries        int
	BlockBackoff        time.Duration

	CacheBackend  string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	ArchiveCSVPath   string
	ArchivePostgres  bool
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	LogLevel string

	Adjustment Adjustment
}

// Load reads the .env file and returns a populated Config struct.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}
	return FromEnv()
}

// FromEnv builds a Config from the current process environment only.
func FromEnv() *Config {
	return &Config{
		RequestTimeout:   getEnvDuration("REQUEST_TIMEOUT", 12*time.Second),
		SourceTimeout:    getEnvDuration("SOURCE_TIMEOUT", 90*time.Second),
		ConcurrencyLimit: getEnvInt("CONCURRENCY_LIMIT", 3),
		RateLimitMs:      getEnvInt("RATE_LIMIT_MS", 500),
		MaxObservations:  getEnvInt("MAX_OBSERVATIONS", 80),
		Sources:          getEnvList("SOURCES", []string{"arabam", "sahibinden"}),

		CatalogTTL: getEnvDuration("CATALOG_TTL", time.Hour),
		PriceTTL:   getEnvDuration("PRICE_TTL", 15*time.Minute),

		PriceMin: int64(getEnvInt("PRICE_MIN", 50000)),
		PriceMax: int64(getEnvInt("PRICE_MAX", 20000000)),

		BrowserEnabled:      getEnvBool("BROWSER_ENABLED", true),
		BrowserHeadless:     getEnvBool("BROWSER_HEADLESS", true),
		ChromeBin:           getEnv("CHROME_BIN", ""),
		BrowserSettle:       getEnvDuration("BROWSER_SETTLE", 2*time.Second),
		BrowserReadyTimeout: getEnvDuration("BROWSER_READY_TIMEOUT", 10*time.Second),
		BlockRetries:        getEnvInt("BLOCK_RETRIES", 3),
		BlockBackoff:        getEnvDuration("BLOCK_BACKOFF", 5*time.Second),

		CacheBackend:  strings.ToLower(getEnv("CACHE_BACKEND", "memory")),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		ArchiveCSVPath:   getEnv("ARCHIVE_CSV_PATH", ""),
		ArchivePostgres:  getEnvBool("ARCHIVE_POSTGRES", false),
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "pricer"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "pricer123"),
		PostgresDB:       getEnv("POSTGRES_DB", "vehicle_prices"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		LogLevel: getEnv("LOG_LEVEL", "info"),

		Adjustment: Adjustment{
			MinMultiplier: getEnvFloat("ADJ_MIN", 0.6),
			MaxMultiplier: getEnvFloat("ADJ_MAX", 1.3),

			MileageReference:      getEnvInt("ADJ_MILEAGE_REF", 100000),
			MileageStep:           getEnvInt("ADJ_MILEAGE_STEP", 10000),
			MileagePenaltyPerStep: getEnvFloat("ADJ_MILEAGE_PENALTY", 0.01),
			MileageBonusPerStep:   getEnvFloat("ADJ_MILEAGE_BONUS", 0.005),

			PartsChangedPenalty: getEnvFloat("ADJ_PARTS_PENALTY", 0.01),
			PaintRepairPenalty:  getEnvFloat("ADJ_PAINT_PENALTY", 0.005),

			AccidentCostStep:       int64(getEnvInt("ADJ_ACCIDENT_STEP", 10000)),
			AccidentPenaltyPerStep: getEnvFloat("ADJ_ACCIDENT_PENALTY", 0.01),

			AutomaticPremium:     getEnvFloat("ADJ_AUTOMATIC_PREMIUM", 0.03),
			SemiAutomaticPremium: getEnvFloat("ADJ_SEMI_AUTOMATIC_PREMIUM", 0.01),

			AgePenaltyPerYear: getEnvFloat("ADJ_AGE_PENALTY", 0.005),
			AgeCap:            getEnvFloat("ADJ_AGE_CAP", 0.20),

			SaleMargin: getEnvFloat("SALE_MARGIN", 1.10),
		},
	}
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	return "host=" + c.PostgresHost +
		" port=" + c.PostgresPort +
		" user=" + c.PostgresUser +
		" password=" + c.PostgresPassword +
		" dbname=" + c.PostgresDB +
		" sslmode=" + c.PostgresSSLMode
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		f, err := strconv.ParseFloat(val, 64)
		if err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		b, err := strconv.ParseBool(val)
		if err == nil {
			return b
		}
	}
	return fallback
}

// getEnvDuration accepts Go durations ("15m") or plain milliseconds ("12000").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	if d, err := time.ParseDuration(val); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(val); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if p := strings.ToLower(strings.TrimSpace(part)); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
