// Package config loads the repricer configuration from a YAML file with
// environment variable overrides. Environment always wins, so a deployment
// can share one config file and differ only in its env.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/pinchworks/repricer/internal/model"
	"github.com/pinchworks/repricer/internal/pricing"
)

// Config is the top-level server configuration.
type Config struct {
	Port            string        `yaml:"port"`
	DatabaseURL     string        `yaml:"database_url"`
	RedisURL        string        `yaml:"redis_url"`
	CacheTTLSeconds int           `yaml:"cache_ttl_seconds"`
	Pricing         PricingConfig `yaml:"pricing"`
}

// PricingConfig is the default evaluation configuration applied to offer
// batches that carry no per-request override.
type PricingConfig struct {
	Strategy                string  `yaml:"strategy"`     // e.g. "fixed:1", "percent:5", "gentle", "clean", "humanized:3"
	FloorPolicy             string  `yaml:"floor_policy"` // "none", "vendor", "doman"
	UndercutSelf            bool    `yaml:"undercut_self"`
	MinimumPrice            int64   `yaml:"minimum_price"`
	OutlierDetection        bool    `yaml:"outlier_detection"`
	OutlierThresholdPercent float64 `yaml:"outlier_threshold_percent"`
	OutlierSearchWindow     int     `yaml:"outlier_search_window"` // 1..9
	MaxCutPercent           float64 `yaml:"max_cut_percent"`       // 0 disables the cap
}

// Load reads the configuration file at path, applies environment
// overrides and defaults, and validates the result. An empty path skips
// the file and configures from environment and defaults alone.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.Port, "PORT")
	setString(&c.DatabaseURL, "DATABASE_URL")
	setString(&c.RedisURL, "REDIS_URL")
	setInt(&c.CacheTTLSeconds, "CACHE_TTL_SECONDS")

	setString(&c.Pricing.Strategy, "PRICING_STRATEGY")
	setString(&c.Pricing.FloorPolicy, "PRICING_FLOOR_POLICY")
	setBool(&c.Pricing.UndercutSelf, "PRICING_UNDERCUT_SELF")
	setInt64(&c.Pricing.MinimumPrice, "PRICING_MINIMUM_PRICE")
	setBool(&c.Pricing.OutlierDetection, "PRICING_OUTLIER_DETECTION")
	setFloat(&c.Pricing.OutlierThresholdPercent, "PRICING_OUTLIER_THRESHOLD_PERCENT")
	setInt(&c.Pricing.OutlierSearchWindow, "PRICING_OUTLIER_SEARCH_WINDOW")
	setFloat(&c.Pricing.MaxCutPercent, "PRICING_MAX_CUT_PERCENT")
}

// ApplyDefaults fills in zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.Port == "" {
		c.Port = "8080"
	}
	if c.CacheTTLSeconds == 0 {
		c.CacheTTLSeconds = 30
	}
	if c.Pricing.Strategy == "" {
		c.Pricing.Strategy = "fixed:1"
	}
	if c.Pricing.FloorPolicy == "" {
		c.Pricing.FloorPolicy = "none"
	}
	if c.Pricing.OutlierThresholdPercent == 0 {
		c.Pricing.OutlierThresholdPercent = 50
	}
	if c.Pricing.OutlierSearchWindow == 0 {
		c.Pricing.OutlierSearchWindow = 3
	}
}

// Validate checks field ranges and that the pricing strings parse.
func (c *Config) Validate() error {
	if _, err := pricing.ParseStrategy(c.Pricing.Strategy); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if _, err := pricing.ParseFloorPolicy(c.Pricing.FloorPolicy); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if w := c.Pricing.OutlierSearchWindow; w < 1 || w > 9 {
		return fmt.Errorf("config: outlier_search_window must be 1..9, got %d", w)
	}
	if t := c.Pricing.OutlierThresholdPercent; t < 0 || t > 100 {
		return fmt.Errorf("config: outlier_threshold_percent must be 0..100, got %g", t)
	}
	if m := c.Pricing.MaxCutPercent; m < 0 || m > 100 {
		return fmt.Errorf("config: max_cut_percent must be 0..100, got %g", m)
	}
	if c.Pricing.MinimumPrice < 0 {
		return fmt.Errorf("config: minimum_price must not be negative, got %d", c.Pricing.MinimumPrice)
	}
	return nil
}

// Evaluation builds the default evaluation configuration. Call after
// Validate: the pricing strings must parse.
func (c *Config) Evaluation() (model.EvaluationConfig, error) {
	strat, err := pricing.ParseStrategy(c.Pricing.Strategy)
	if err != nil {
		return model.EvaluationConfig{}, err
	}
	policy, err := pricing.ParseFloorPolicy(c.Pricing.FloorPolicy)
	if err != nil {
		return model.EvaluationConfig{}, err
	}

	return model.EvaluationConfig{
		Strategy:                strat,
		UndercutSelf:            c.Pricing.UndercutSelf,
		FloorPolicy:             policy,
		MinimumPrice:            c.Pricing.MinimumPrice,
		OutlierDetection:        c.Pricing.OutlierDetection,
		OutlierThresholdPercent: c.Pricing.OutlierThresholdPercent,
		OutlierSearchWindow:     c.Pricing.OutlierSearchWindow,
		MaxCutPercent:           c.Pricing.MaxCutPercent,
	}, nil
}

// --- env helpers ---

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			*dst = parsed
		}
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			*dst = parsed
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = parsed
		}
	}
}

func setFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = parsed
		}
	}
}
