package config

import (
	"fmt"
	"net"
	"time"

	"dario.cat/mergo"
)

// MinRequestTimeout is the floor applied to every storefront request.
const MinRequestTimeout = 30 * time.Second

// MaxConcurrency bounds the per-item fetcher.
const MaxConcurrency = 8

// Config holds scraper configuration.
type Config struct {
	Timeout         time.Duration
	MaxRetries      int
	RetryBackoff    time.Duration
	RetryBackoffMax time.Duration

	MaxPages         int
	MaxEmptyPages    int
	WooMaxEmptyPages int
	ShopifyPageDelay time.Duration
	WooPageDelay     time.Duration
	VariationDelay   time.Duration

	Concurrency int
	ItemDelay   time.Duration

	HeartbeatInterval time.Duration
	ListenAddr        string
	MetricsAddr       string

	OutputFile   string
	OutputFormat string // csv, json, or dual
	Verbose      bool
}

// DefaultConfig returns conservative defaults that keep storefronts from
// throttling the scraper.
func DefaultConfig() *Config {
	return &Config{
		Timeout:           MinRequestTimeout,
		MaxRetries:        3,
		RetryBackoff:      500 * time.Millisecond,
		RetryBackoffMax:   8 * time.Second,
		MaxPages:          1000,
		MaxEmptyPages:     3,
		WooMaxEmptyPages:  2,
		ShopifyPageDelay:  800 * time.Millisecond,
		WooPageDelay:      200 * time.Millisecond,
		VariationDelay:    150 * time.Millisecond,
		Concurrency:       4,
		ItemDelay:         100 * time.Millisecond,
		HeartbeatInterval: 15 * time.Second,
		ListenAddr:        ":8080",
		OutputFile:        "-",
		OutputFormat:      "json",
	}
}

// Resolve fills every zero-valued field of cfg from DefaultConfig and
// validates the result. A nil cfg yields the defaults.
func Resolve(cfg *Config) (*Config, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	if err := mergo.Merge(cfg, DefaultConfig()); err != nil {
		return nil, fmt.Errorf("merge defaults: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ClampConcurrency bounds n to [1, MaxConcurrency].
func ClampConcurrency(n int) int {
	if n < 1 {
		return 1
	}
	if n > MaxConcurrency {
		return MaxConcurrency
	}
	return n
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("retry backoff cannot be negative")
	}
	if c.RetryBackoffMax < 0 {
		return fmt.Errorf("retry backoff max cannot be negative")
	}
	if c.RetryBackoffMax > 0 && c.RetryBackoff > c.RetryBackoffMax {
		return fmt.Errorf("retry backoff (%s) cannot exceed retry backoff max (%s)", c.RetryBackoff, c.RetryBackoffMax)
	}
	if c.MaxPages <= 0 {
		return fmt.Errorf("max pages must be positive")
	}
	if c.MaxEmptyPages <= 0 || c.WooMaxEmptyPages <= 0 {
		return fmt.Errorf("max empty pages must be positive")
	}
	if c.ShopifyPageDelay < 0 || c.WooPageDelay < 0 || c.VariationDelay < 0 || c.ItemDelay < 0 {
		return fmt.Errorf("delays cannot be negative")
	}
	if c.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be positive")
	}
	if c.Concurrency > MaxConcurrency {
		return fmt.Errorf("concurrency cannot exceed %d", MaxConcurrency)
	}
	if c.HeartbeatInterval <= 0 {
		return fmt.Errorf("heartbeat interval must be positive")
	}
	if c.ListenAddr != "" {
		if _, _, err := net.SplitHostPort(c.ListenAddr); err != nil {
			return fmt.Errorf("invalid listen address %q: %w", c.ListenAddr, err)
		}
	}
	if c.OutputFile == "" {
		return fmt.Errorf("output file cannot be empty")
	}
	if c.OutputFormat != "csv" && c.OutputFormat != "json" && c.OutputFormat != "dual" {
		return fmt.Errorf("output format must be csv, json, or dual")
	}
	return nil
}
