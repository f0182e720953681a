package config

import (
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds everything the core needs to construct its
// collaborators: the retrieval backend, the model endpoint, the two
// EUR budget caps, and the cache/price TTLs.
type Config struct {
	Env string

	// StoreDSN is handed opaquely to whatever Store implementation the
	// deployment wires in; the core never parses it itself.
	StoreDSN string

	ModelAPIKey  string
	ModelAPIBase string

	// RequestBudgetEUR is loaded from REQUEST_BUDGET_EUR. Nothing in
	// this repository reads it: modelclient uses
	// budget.DefaultRequestBudgetEUR whenever a call sets no budget of
	// its own.
	RequestBudgetEUR float64
	// DocumentBudgetEUR is the default per-document-tag cumulative cap.
	DocumentBudgetEUR float64

	// CacheDBPath is the SQLite file backing the response cache and
	// the persisted price/rate records.
	CacheDBPath string

	PriceCacheTTL        time.Duration
	ExchangeRateCacheTTL time.Duration
	ModelTimeout         time.Duration
	PriceFetchTimeout    time.Duration
	HardCapOutputTokens  int
	MatchWorkerPoolSize  int
	LogLevel             string
}

// Load reads configuration from environment variables and an optional
// .env file.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Env:                  getEnv("ENV", "development"),
		StoreDSN:             getEnv("STORE_DSN", ""),
		ModelAPIKey:          getEnv("MODEL_API_KEY", ""),
		ModelAPIBase:         getEnv("MODEL_API_BASE", ""),
		RequestBudgetEUR:     getEnvFloat("REQUEST_BUDGET_EUR", 0.30),
		DocumentBudgetEUR:    getEnvFloat("DOCUMENT_BUDGET_EUR", 0.30),
		CacheDBPath:          getEnv("CACHE_DB_PATH", "./data/incentive_cache.db"),
		PriceCacheTTL:        time.Duration(getEnvInt("PRICE_CACHE_TTL_HOURS", 24)) * time.Hour,
		ExchangeRateCacheTTL: time.Duration(getEnvInt("EXCHANGE_RATE_CACHE_TTL_HOURS", 12)) * time.Hour,
		ModelTimeout:         time.Duration(getEnvInt("MODEL_TIMEOUT_SEC", 30)) * time.Second,
		PriceFetchTimeout:    time.Duration(getEnvInt("PRICE_FETCH_TIMEOUT_SEC", 15)) * time.Second,
		HardCapOutputTokens:  getEnvInt("HARD_CAP_OUTPUT_TOKENS", 800),
		MatchWorkerPoolSize:  getEnvInt("MATCH_WORKER_POOL_SIZE", runtime.GOMAXPROCS(0)),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
	}
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool { return c.Env == "development" }

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}
