package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aluiziolira/go-scrape-stores/config"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:           "scraper",
	Short:         "scraper discovers and normalizes Shopify and WooCommerce catalogs.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		slog.Error("command failed", "error", err)
		stop()
		os.Exit(1)
	}
}

// setup loads .env, applies SCRAPER_* overrides over the defaults and
// installs the process logger.
func setup() (*config.Config, *slog.Logger, error) {
	if err := config.LoadDotEnv(); err != nil {
		return nil, nil, err
	}
	cfg := &config.Config{}
	if err := config.ApplyEnv(cfg); err != nil {
		return nil, nil, fmt.Errorf("environment: %w", err)
	}
	cfg, err := config.Resolve(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	cfg.Verbose = cfg.Verbose || verbose

	logger := newLogger(cfg.Verbose)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

// newLogger writes to stderr so stdout stays free for scraped records:
// tint on a terminal, JSON otherwise.
func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	if isTerminal(os.Stderr) {
		return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		}))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
