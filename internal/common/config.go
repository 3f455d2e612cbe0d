// Package common provides shared utilities for b3cast
package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	toml "github.com/pelletier/go-toml/v2"
)

// Config holds all configuration for b3cast
type Config struct {
	Environment string           `toml:"environment"`
	Exchange    ExchangeConfig   `toml:"exchange"`
	Clients     ClientsConfig    `toml:"clients"`
	MarketData  MarketDataConfig `toml:"market_data"`
	Cache       CacheConfig      `toml:"cache"`
	Validator   ValidatorConfig  `toml:"validator"`
	Forecast    ForecastConfig   `toml:"forecast"`
	Scheduler   SchedulerConfig  `toml:"scheduler"`
	Logging     LoggingConfig    `toml:"logging"`
}

// ExchangeConfig describes the exchange whose instruments are catalogued.
type ExchangeConfig struct {
	Code            string   `toml:"code" validate:"required,alphanum"`      // EODHD exchange code ("SA" for B3)
	Suffix          string   `toml:"suffix" validate:"required,startswith=."` // Provider ticker suffix (".SA")
	Timezone        string   `toml:"timezone" validate:"required"`            // Canonical timezone for history dates
	FallbackSymbols []string `toml:"fallback_symbols" validate:"min=1,dive,required"`
	SymbolTypes     []string `toml:"symbol_types"` // Empty means every instrument type
}

// Location loads the exchange timezone, falling back to UTC when the zone database lacks it.
func (c *ExchangeConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ClientsConfig holds API client configurations
type ClientsConfig struct {
	EODHD EODHDConfig `toml:"eodhd"`
	Yahoo YahooConfig `toml:"yahoo"`
}

// EODHDConfig holds EODHD API configuration
type EODHDConfig struct {
	BaseURL   string `toml:"base_url" validate:"required,url"`
	APIKey    string `toml:"api_key"`
	RateLimit int    `toml:"rate_limit" validate:"gte=1"`
	Timeout   string `toml:"timeout"`
}

// GetTimeout parses and returns the timeout duration
func (c *EODHDConfig) GetTimeout() time.Duration {
	return parseDuration(c.Timeout, 30*time.Second)
}

// YahooConfig holds Yahoo Finance chart API configuration
type YahooConfig struct {
	BaseURL   string `toml:"base_url" validate:"required,url"`
	RateLimit int    `toml:"rate_limit" validate:"gte=1"`
	Timeout   string `toml:"timeout"`
	UserAgent string `toml:"user_agent"`
}

// GetTimeout parses and returns the timeout duration
func (c *YahooConfig) GetTimeout() time.Duration {
	return parseDuration(c.Timeout, 30*time.Second)
}

// MarketDataConfig selects the provider used for metadata and price history.
type MarketDataConfig struct {
	Provider string `toml:"provider" validate:"oneof=yahoo eodhd"`
}

// CacheConfig holds TTLs for the in-process cache
type CacheConfig struct {
	CatalogTTL   string `toml:"catalog_ttl"`
	FallbackTTL  string `toml:"fallback_ttl"`
	ValidatorTTL string `toml:"validator_ttl"`
	ForecastTTL  string `toml:"forecast_ttl"` // "0" disables forecast caching
}

// GetCatalogTTL returns the lifetime of a live symbol catalog
func (c *CacheConfig) GetCatalogTTL() time.Duration {
	return parseDuration(c.CatalogTTL, FreshnessCatalog)
}

// GetFallbackTTL returns the lifetime of a fallback symbol list
func (c *CacheConfig) GetFallbackTTL() time.Duration {
	return parseDuration(c.FallbackTTL, FreshnessFallbackCatalog)
}

// GetValidatorTTL returns how long a probe outcome is remembered
func (c *CacheConfig) GetValidatorTTL() time.Duration {
	return parseDuration(c.ValidatorTTL, FreshnessProbe)
}

// GetForecastTTL returns how long a forecast is reused; zero disables reuse
func (c *CacheConfig) GetForecastTTL() time.Duration {
	return parseDuration(c.ForecastTTL, 0)
}

// ValidatorConfig holds ticker probe settings
type ValidatorConfig struct {
	Concurrency int `toml:"concurrency" validate:"gte=1,lte=16"`
}

// SeasonalityConfig toggles one Fourier seasonality term
type SeasonalityConfig struct {
	Enabled bool `toml:"enabled"`
	Order   int  `toml:"order" validate:"gte=0,lte=50"`
}

// ForecastConfig holds model hyperparameters
type ForecastConfig struct {
	HorizonDays           int               `toml:"horizon_days" validate:"gte=1"`
	MinHistoryPoints      int               `toml:"min_history_points" validate:"gte=2"`
	IntervalWidth         float64           `toml:"interval_width" validate:"gt=0,lt=1"`
	Changepoints          int               `toml:"changepoints" validate:"gte=0"`
	ChangepointRange      float64           `toml:"changepoint_range" validate:"gt=0,lte=1"`
	ChangepointPriorScale float64           `toml:"changepoint_prior_scale" validate:"gt=0"`
	SeasonalityPriorScale float64           `toml:"seasonality_prior_scale" validate:"gt=0"`
	FitTimeout            string            `toml:"fit_timeout"`
	Yearly                SeasonalityConfig `toml:"yearly"`
	Weekly                SeasonalityConfig `toml:"weekly"`
	Daily                 SeasonalityConfig `toml:"daily"`
}

// GetFitTimeout parses and returns the model fitting deadline
func (c *ForecastConfig) GetFitTimeout() time.Duration {
	return parseDuration(c.FitTimeout, 60*time.Second)
}

// SchedulerConfig holds background job schedules
type SchedulerConfig struct {
	CatalogWarm string `toml:"catalog_warm"` // cron spec; empty disables
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `toml:"level" validate:"oneof=debug info warn error"`
}

// NewDefaultConfig returns a Config with sensible defaults
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Exchange: ExchangeConfig{
			Code:            "SA",
			Suffix:          ".SA",
			Timezone:        "America/Sao_Paulo",
			FallbackSymbols: []string{"PETR4.SA", "VALE3.SA", "ITUB4.SA", "BBDC4.SA", "ABEV3.SA"},
			SymbolTypes:     []string{"Common Stock", "Preferred Stock", "ETF"},
		},
		Clients: ClientsConfig{
			EODHD: EODHDConfig{
				BaseURL:   "https://eodhd.com/api",
				RateLimit: 10,
				Timeout:   "30s",
			},
			Yahoo: YahooConfig{
				BaseURL:   "https://query1.finance.yahoo.com",
				RateLimit: 4,
				Timeout:   "30s",
				UserAgent: "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36",
			},
		},
		MarketData: MarketDataConfig{Provider: "yahoo"},
		Cache: CacheConfig{
			CatalogTTL:   "24h",
			FallbackTTL:  "5m",
			ValidatorTTL: "6h",
			ForecastTTL:  "0",
		},
		Validator: ValidatorConfig{Concurrency: 8},
		Forecast: ForecastConfig{
			HorizonDays:           365,
			MinHistoryPoints:      2,
			IntervalWidth:         0.80,
			Changepoints:          25,
			ChangepointRange:      0.8,
			ChangepointPriorScale: 0.05,
			SeasonalityPriorScale: 10.0,
			FitTimeout:            "60s",
			Yearly:                SeasonalityConfig{Enabled: true, Order: 10},
			Weekly:                SeasonalityConfig{Enabled: true, Order: 3},
			Daily:                 SeasonalityConfig{Enabled: true, Order: 4},
		},
		Scheduler: SchedulerConfig{CatalogWarm: "0 */6 * * *"},
		Logging:   LoggingConfig{Level: "info"},
	}
}

// LoadConfig loads configuration from files with environment overrides.
// A .env file in the working directory is loaded first when present.
func LoadConfig(paths ...string) (*Config, error) {
	_ = godotenv.Load()

	config := NewDefaultConfig()

	// Later files override earlier ones
	for _, path := range paths {
		if path == "" {
			continue
		}

		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("B3CAST_ENV"); env != "" {
		config.Environment = env
	}

	if level := os.Getenv("B3CAST_LOG_LEVEL"); level != "" {
		config.Logging.Level = strings.ToLower(level)
	}

	if provider := os.Getenv("B3CAST_PROVIDER"); provider != "" {
		config.MarketData.Provider = strings.ToLower(provider)
	}

	if n := os.Getenv("B3CAST_VALIDATOR_CONCURRENCY"); n != "" {
		if v, err := strconv.Atoi(n); err == nil {
			config.Validator.Concurrency = v
		}
	}

	if ttl := os.Getenv("B3CAST_CATALOG_TTL"); ttl != "" {
		config.Cache.CatalogTTL = ttl
	}

	if tz := os.Getenv("B3CAST_TIMEZONE"); tz != "" {
		config.Exchange.Timezone = tz
	}

	for _, name := range []string{"EODHD_API_KEY", "B3CAST_EODHD_API_KEY"} {
		if key := os.Getenv(name); key != "" {
			config.Clients.EODHD.APIKey = key
			break
		}
	}
}

var validate = validator.New()

// Validate checks struct constraints and cross-field rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if _, err := time.LoadLocation(c.Exchange.Timezone); err != nil {
		return fmt.Errorf("invalid configuration: exchange.timezone %q: %w", c.Exchange.Timezone, err)
	}
	for _, s := range c.Exchange.FallbackSymbols {
		if !strings.HasSuffix(s, c.Exchange.Suffix) {
			return fmt.Errorf("invalid configuration: fallback symbol %q lacks suffix %q", s, c.Exchange.Suffix)
		}
	}
	return nil
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	if s == "0" {
		return 0
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
