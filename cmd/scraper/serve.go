package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/aluiziolira/go-scrape-stores/config"
	"github.com/aluiziolira/go-scrape-stores/models"
	"github.com/aluiziolira/go-scrape-stores/scraper"
	"github.com/aluiziolira/go-scrape-stores/stream"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

func init() {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve scrapes over HTTP with Server-Sent Events progress",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.ListenAddr = addr
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			return serve(cmd.Context(), cfg, logger)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from SCRAPER_LISTEN_ADDR or :8080)")
	rootCmd.AddCommand(cmd)
}

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	s, err := scraper.New(cfg, scraper.WithLogger(logger))
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           newRouter(s, cfg, logger),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", cfg.ListenAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

type api struct {
	scraper   *scraper.Scraper
	heartbeat time.Duration
	logger    *slog.Logger
}

func newRouter(s *scraper.Scraper, cfg *config.Config, logger *slog.Logger) http.Handler {
	a := &api{scraper: s, heartbeat: cfg.HeartbeatInterval, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "Last-Event-ID"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.Metrics.Registry, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/scrape", a.scrape)
		r.Get("/scrape/stream", a.stream)
	})
	return r
}

func (a *api) scrape(w http.ResponseWriter, r *http.Request) {
	req, err := requestFromQuery(r)
	if err != nil {
		writeError(w, err)
		return
	}
	result, err := a.scraper.Scrape(r.Context(), req)
	if err != nil {
		a.logger.Warn("scrape request failed", "url", req.URL, "error", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// stream validates up front so bad requests still get a JSON 400; once the
// event stream is open every outcome arrives as an event.
func (a *api) stream(w http.ResponseWriter, r *http.Request) {
	req, err := requestFromQuery(r)
	if err == nil {
		_, err = req.Target()
	}
	if err != nil {
		writeError(w, err)
		return
	}

	sw, err := stream.NewWriter(w)
	if err != nil {
		writeError(w, err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	heartbeatDone := make(chan struct{})
	go func() {
		defer close(heartbeatDone)
		sw.Heartbeat(ctx, a.heartbeat)
	}()

	_, err = a.scraper.Stream(ctx, req, sw)
	// The response must not be touched once the handler returns.
	cancel()
	<-heartbeatDone
	if err != nil {
		a.logger.Info("stream ended with error", "url", req.URL, "error", err)
	}
	if err := sw.Err(); err != nil {
		a.logger.Debug("client went away", "error", err)
	}
}

func requestFromQuery(r *http.Request) (scraper.Request, error) {
	q := r.URL.Query()
	req := scraper.Request{
		URL:        q.Get("url"),
		Platform:   models.Platform(q.Get("platform")),
		Mode:       models.Mode(q.Get("mode")),
		Collection: q.Get("collection"),
		Page:       1,
		Limit:      250,
	}
	for name, dst := range map[string]*int{"page": &req.Page, "limit": &req.Limit} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return req, scraper.ValidationError{Field: name, Value: raw, Reason: "must be an integer"}
		}
		*dst = n
	}
	return req, nil
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var (
		validation  scraper.ValidationError
		unsupported scraper.PlatformUnsupportedError
		discovery   scraper.DiscoveryError
	)
	switch {
	case errors.As(err, &validation):
		status = http.StatusBadRequest
	case errors.As(err, &unsupported):
		status = http.StatusUnprocessableEntity
	case errors.As(err, &discovery):
		status = http.StatusBadGateway
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}
