package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads variables from the given .env files (or ./.env) without
// overriding the process environment. A missing file is not an error.
func LoadDotEnv(paths ...string) error {
	err := godotenv.Load(paths...)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("load .env: %w", err)
}

// EnvString returns the trimmed value of key and whether it was set.
func EnvString(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	return value, value != ""
}

// EnvInt parses key as an integer.
func EnvInt(key string) (int, bool, error) {
	value, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", key, err)
	}
	return n, true, nil
}

// EnvDuration parses key as a time.Duration ("800ms", "2s").
func EnvDuration(key string) (time.Duration, bool, error) {
	value, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", key, err)
	}
	return d, true, nil
}

// ApplyEnv overrides cfg with SCRAPER_* environment variables.
func ApplyEnv(cfg *Config) error {
	ints := map[string]*int{
		"SCRAPER_MAX_RETRIES": &cfg.MaxRetries,
		"SCRAPER_MAX_PAGES":   &cfg.MaxPages,
		"SCRAPER_CONCURRENCY": &cfg.Concurrency,
	}
	for key, dst := range ints {
		value, ok, err := EnvInt(key)
		if err != nil {
			return err
		}
		if ok {
			*dst = value
		}
	}

	durations := map[string]*time.Duration{
		"SCRAPER_TIMEOUT":            &cfg.Timeout,
		"SCRAPER_RETRY_BACKOFF":      &cfg.RetryBackoff,
		"SCRAPER_SHOPIFY_PAGE_DELAY": &cfg.ShopifyPageDelay,
		"SCRAPER_WOO_PAGE_DELAY":     &cfg.WooPageDelay,
		"SCRAPER_ITEM_DELAY":         &cfg.ItemDelay,
		"SCRAPER_HEARTBEAT":          &cfg.HeartbeatInterval,
	}
	for key, dst := range durations {
		value, ok, err := EnvDuration(key)
		if err != nil {
			return err
		}
		if ok {
			*dst = value
		}
	}

	if value, ok := EnvString("SCRAPER_LISTEN_ADDR"); ok {
		cfg.ListenAddr = value
	}
	if value, ok := EnvString("SCRAPER_METRICS_ADDR"); ok {
		cfg.MetricsAddr = value
	}
	return nil
}
