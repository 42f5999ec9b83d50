package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/aluiziolira/go-scrape-stores/config"
	"github.com/aluiziolira/go-scrape-stores/models"
	"github.com/aluiziolira/go-scrape-stores/pipeline"
	"github.com/aluiziolira/go-scrape-stores/scraper"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

type scrapeFlags struct {
	platform   string
	page       int
	limit      int
	collection string
	format     string
	output     string
	metrics    string
	stream     bool
}

func init() {
	rootCmd.AddCommand(
		newScrapeCmd(models.ModeProducts, "products <store-url>", "Scrape a store's products"),
		newScrapeCmd(models.ModeCollections, "collections <store-url>", "Scrape a store's collections or categories"),
	)
}

func newScrapeCmd(mode models.Mode, use, short string) *cobra.Command {
	f := &scrapeFlags{}
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			if f.format != "" {
				cfg.OutputFormat = strings.ToLower(f.format)
			}
			if f.output != "" {
				cfg.OutputFile = f.output
			}
			if f.metrics != "" {
				cfg.MetricsAddr = f.metrics
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			req := scraper.Request{
				URL:        args[0],
				Platform:   models.Platform(f.platform),
				Mode:       mode,
				Collection: f.collection,
				Page:       f.page,
				Limit:      f.limit,
			}
			return runScrape(cmd.Context(), cfg, logger, req, f.stream)
		},
	}

	cmd.Flags().StringVar(&f.platform, "platform", "", "Store platform: shopify or woocommerce (detected when empty)")
	cmd.Flags().IntVar(&f.page, "page", 1, "Result page to return")
	cmd.Flags().IntVar(&f.limit, "limit", 250, "Items per result page")
	cmd.Flags().StringVar(&f.format, "format", "", "Output format: csv, json, or dual")
	cmd.Flags().StringVarP(&f.output, "output", "o", "", "Output file path, - for stdout")
	cmd.Flags().StringVar(&f.metrics, "metrics-addr", "", "Prometheus metrics listen address during the run (e.g. :9090)")
	if mode == models.ModeProducts {
		cmd.Flags().StringVar(&f.collection, "collection", "", "Only products of this collection handle")
		cmd.Flags().BoolVar(&f.stream, "stream", false, "Write products as they are discovered instead of one result page")
	}
	return cmd
}

// runScrape scrapes and writes the outcome. Streaming writes every product
// of every batch; otherwise only the requested page is written.
func runScrape(ctx context.Context, cfg *config.Config, logger *slog.Logger, req scraper.Request, streaming bool) error {
	s, err := scraper.New(cfg, scraper.WithLogger(logger))
	if err != nil {
		return err
	}

	writer, err := pipeline.NewWriter(cfg.OutputFormat, cfg.OutputFile)
	if err != nil {
		return fmt.Errorf("creating writer: %w", err)
	}
	defer func() {
		if err := writer.Close(); err != nil {
			logger.Error("close writer", "error", err)
		}
	}()

	if cfg.MetricsAddr != "" {
		stop := startMetricsServer(cfg.MetricsAddr, s, logger)
		defer stop()
	}

	p := pipeline.NewPipeline(writer, 64)
	p.Start(2)
	if cfg.Verbose {
		p.StartMetricsReporting(logger, 10*time.Second)
	}

	start := time.Now()
	var result *models.ScrapeResult
	if streaming {
		sink := scraper.SinkFunc(func(ev models.ProgressEvent) {
			switch ev.Type {
			case models.EventBatch:
				if err := p.Process(ev.Products...); err != nil {
					logger.Warn("dropping batch", "error", err)
				}
			case models.EventPaginating, models.EventRateLimited:
				logger.Info(ev.Message, "page", ev.Page, "retry_after_ms", ev.RetryAfterMs)
			}
		})
		result, err = s.Stream(ctx, req, sink)
	} else {
		result, err = s.Scrape(ctx, req)
	}
	if err != nil {
		_ = p.Close()
		return fmt.Errorf("scraping failed: %w", err)
	}

	if !streaming {
		if err := p.Process(result.Products...); err != nil {
			_ = p.Close()
			return err
		}
	}
	if err := p.Close(); err != nil {
		return fmt.Errorf("pipeline shutdown failed: %w", err)
	}
	if len(result.Collections) > 0 {
		if err := writer.WriteCollections(result.Collections); err != nil {
			return fmt.Errorf("writing collections: %w", err)
		}
	}

	if p.Written() > 0 || len(result.Collections) > 0 {
		if err := writer.Validate(); err != nil {
			return fmt.Errorf("output validation failed: %w", err)
		}
	} else {
		logger.Warn("nothing to write", "store", result.Store)
	}

	printSummary(result, p.GetMetrics(), time.Since(start), cfg.OutputFile)
	return nil
}

// startMetricsServer exposes the scraper registry for the duration of a CLI
// run and returns its shutdown func.
func startMetricsServer(addr string, s *scraper.Scraper, logger *slog.Logger) func() {
	server := &http.Server{
		Addr:              addr,
		Handler:           promhttp.HandlerFor(s.Metrics.Registry, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	logger.Info("metrics server enabled", "addr", addr)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			logger.Error("metrics server shutdown failed", "error", err)
		}
	}
}

func printSummary(result *models.ScrapeResult, metrics map[string]interface{}, duration time.Duration, outputFile string) {
	separator := "--------------------------------------------------"
	out := os.Stderr
	fmt.Fprintln(out, "\n"+separator)
	fmt.Fprintln(out, "Scrape complete")
	fmt.Fprintf(out, "  Store:         %s\n", result.Store)
	fmt.Fprintf(out, "  Total items:   %d\n", result.Total)
	fmt.Fprintf(out, "  Page:          %d/%d (%d per page, more: %t)\n", result.CurrentPage, result.TotalPages, result.ItemsPerPage, result.HasMore)
	if written, ok := metrics["processed_products"].(int64); ok {
		fmt.Fprintf(out, "  Written:       %d products, %d collections\n", written, len(result.Collections))
	}
	if valErrors, ok := metrics["validation_errors"].(map[string]int); ok && len(valErrors) > 0 {
		fmt.Fprintf(out, "  Validation:    %v\n", valErrors)
	}
	fmt.Fprintf(out, "  Duration:      %v\n", duration.Round(time.Millisecond))
	fmt.Fprintf(out, "  Output file:   %s\n", outputFile)
	fmt.Fprintln(out, separator)
}
