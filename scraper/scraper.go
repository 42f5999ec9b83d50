// Package scraper discovers, deduplicates and normalizes the catalog of a
// Shopify or WooCommerce storefront.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/aluiziolira/go-scrape-stores/client"
	"github.com/aluiziolira/go-scrape-stores/config"
	"github.com/aluiziolira/go-scrape-stores/models"
	"github.com/aluiziolira/go-scrape-stores/parser"
	"github.com/aluiziolira/go-scrape-stores/pipeline"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
)

// docCacheSize bounds the per-scrape cache of robots.txt and sitemap bodies.
const docCacheSize = 128

// Request is what a caller asks for. Platform may be empty to detect it.
type Request struct {
	URL        string
	Platform   models.Platform
	Mode       models.Mode
	Collection string
	Page       int
	Limit      int
}

// Target validates r and normalizes its URL to the store origin.
func (r Request) Target() (models.ScrapeTarget, error) {
	raw := strings.TrimSpace(r.URL)
	if raw == "" {
		return models.ScrapeTarget{}, ValidationError{Field: "url", Reason: "is required"}
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return models.ScrapeTarget{}, ValidationError{Field: "url", Value: r.URL, Reason: err.Error()}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return models.ScrapeTarget{}, ValidationError{Field: "url", Value: r.URL, Reason: "scheme must be http or https"}
	}
	if u.Host == "" || strings.ContainsAny(u.Host, " \t") {
		return models.ScrapeTarget{}, ValidationError{Field: "url", Value: r.URL, Reason: "missing host"}
	}

	platform := models.Platform(strings.ToLower(strings.TrimSpace(string(r.Platform))))
	switch platform {
	case "", models.PlatformShopify, models.PlatformWooCommerce:
	default:
		return models.ScrapeTarget{}, ValidationError{Field: "platform", Value: string(r.Platform), Reason: "must be shopify or woocommerce"}
	}

	mode := models.Mode(strings.ToLower(strings.TrimSpace(string(r.Mode))))
	switch mode {
	case "":
		mode = models.ModeProducts
	case models.ModeProducts, models.ModeCollections:
	default:
		return models.ScrapeTarget{}, ValidationError{Field: "mode", Value: string(r.Mode), Reason: "must be products or collections"}
	}

	if r.Page < 1 {
		return models.ScrapeTarget{}, ValidationError{Field: "page", Value: fmt.Sprint(r.Page), Reason: "must be at least 1"}
	}
	if r.Limit < 1 {
		return models.ScrapeTarget{}, ValidationError{Field: "limit", Value: fmt.Sprint(r.Limit), Reason: "must be at least 1"}
	}

	collection := strings.Trim(strings.TrimSpace(r.Collection), "/")
	if strings.ContainsAny(collection, "/?#") {
		return models.ScrapeTarget{}, ValidationError{Field: "collection", Value: r.Collection, Reason: "must be a single handle"}
	}

	return models.ScrapeTarget{
		Origin:     strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host),
		Platform:   platform,
		Mode:       mode,
		Collection: collection,
		Page:       r.Page,
		Limit:      r.Limit,
	}, nil
}

// Scraper runs scrapes. It holds no per-scrape state and is safe for
// concurrent use.
type Scraper struct {
	cfg     *config.Config
	client  *client.Client
	Metrics *Metrics
	logger  *slog.Logger

	transport http.RoundTripper
	newID     func() string
}

// Option configures a Scraper.
type Option func(*Scraper)

// WithLogger sets the logger; scrape logs carry scrape_id and store.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scraper) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithTransport routes every request, JSON and HTML alike, through rt.
func WithTransport(rt http.RoundTripper) Option {
	return func(s *Scraper) {
		s.transport = rt
	}
}

// WithMetrics shares a metrics bundle between scrapers.
func WithMetrics(m *Metrics) Option {
	return func(s *Scraper) {
		if m != nil {
			s.Metrics = m
		}
	}
}

// New builds a scraper. A nil cfg means config.DefaultConfig().
func New(cfg *config.Config, opts ...Option) (*Scraper, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	copied := *cfg
	if err := copied.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	s := &Scraper{
		cfg:     &copied,
		Metrics: NewMetrics(),
		logger:  slog.Default(),
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}

	clientOpts := []client.Option{client.WithRecorder(s.Metrics)}
	if s.transport != nil {
		clientOpts = append(clientOpts, client.WithTransport(s.transport))
	}
	s.client = client.New(s.cfg, clientOpts...)
	return s, nil
}

// Scrape runs a scrape to completion without progress events.
func (s *Scraper) Scrape(ctx context.Context, req Request) (*models.ScrapeResult, error) {
	return s.scrape(ctx, req, nil)
}

// Stream runs a scrape and reports progress to sink, ending with exactly one
// complete or error event unless ctx is cancelled first. Streaming scrapes
// skip the sitemap extension so partial results keep flowing.
func (s *Scraper) Stream(ctx context.Context, req Request, sink Sink) (*models.ScrapeResult, error) {
	if sink == nil {
		sink = SinkFunc(func(models.ProgressEvent) {})
	}
	return s.scrape(ctx, req, sink)
}

func (s *Scraper) scrape(ctx context.Context, req Request, sink Sink) (*models.ScrapeResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	target, err := req.Target()
	if err != nil {
		s.Metrics.IncError("validation")
		return nil, err
	}

	r := s.newRun(ctx, target, sink)
	start := time.Now()
	r.emit.status(models.EventStarting, "scraping "+target.Origin)
	r.logger.Info("scrape started", "platform", target.Platform, "mode", target.Mode, "collection", target.Collection)

	result, err := r.execute(ctx)
	platform := string(r.target.Platform)
	if err != nil {
		label := errorTypeLabel(err)
		r.logger.Error("scrape failed", "error", err, "category", label)
		s.Metrics.IncError(label)
		s.Metrics.ObserveScrape(platform, string(target.Mode), "error", time.Since(start))
		r.emit.emit(models.ProgressEvent{Type: models.EventError, Error: err.Error()})
		return nil, err
	}

	r.logger.Info("scrape finished", "total", result.Total, "returned", len(result.Products)+len(result.Collections), "duration", time.Since(start))
	s.Metrics.ObserveScrape(platform, string(target.Mode), "ok", time.Since(start))
	r.emit.emit(models.ProgressEvent{Type: models.EventComplete, Total: result.Total, Result: result})
	return result, nil
}

// run is the state of one invocation. Strategies receive it by pointer;
// nothing in it outlives the call.
type run struct {
	target    models.ScrapeTarget
	cfg       *config.Config
	client    *client.Client
	transport http.RoundTripper
	metrics   *Metrics
	logger    *slog.Logger
	emit      *emitter

	addMu       sync.Mutex
	products    *pipeline.Catalog[models.Product]
	collections *pipeline.Catalog[models.Collection]
	docs        *lru.Cache[string, []byte]

	streaming bool
	capped    bool
	earlyStop bool

	sitemapRan    bool
	sitemapFailed bool
	sitemapCount  int

	jsonAttempts  int
	jsonTransport int
	lastTransport error
}

func (s *Scraper) newRun(ctx context.Context, target models.ScrapeTarget, sink Sink) *run {
	id := s.newID()
	docs, _ := lru.New[string, []byte](docCacheSize)
	return &run{
		target:      target,
		cfg:         s.cfg,
		client:      s.client,
		transport:   s.client.Transport(),
		metrics:     s.Metrics,
		logger:      s.logger.With("scrape_id", id, "store", target.Origin),
		emit:        newEmitter(ctx, sink, id),
		products:    pipeline.NewProductCatalog(),
		collections: pipeline.NewCollectionCatalog(),
		docs:        docs,
		streaming:   sink != nil,
	}
}

func (r *run) execute(ctx context.Context) (*models.ScrapeResult, error) {
	detected := r.target.Platform == ""
	if detected {
		platform, err := r.detectPlatform(ctx)
		if err != nil {
			return nil, err
		}
		r.target.Platform = platform
		r.logger.Info("platform detected", "platform", platform)
	}

	// WooCommerce stores are probed before fetching starts; the probe shares
	// the testing phase with platform detection.
	var endpoint wooEndpoint
	if r.target.Platform == models.PlatformWooCommerce && r.target.Mode == models.ModeProducts {
		if !detected {
			r.emit.status(models.EventTesting, "probing WooCommerce endpoints")
		}
		var err error
		if endpoint, err = r.detectWoo(ctx); err != nil {
			return nil, err
		}
		r.logger.Info("woocommerce endpoint selected", "endpoint", endpoint.path)
	}

	r.emit.status(models.EventFetching, fmt.Sprintf("fetching %s %s", r.target.Platform, r.target.Mode))

	var err error
	switch {
	case r.target.Platform == models.PlatformShopify && r.target.Mode == models.ModeCollections:
		r.shopifyCollections(ctx)
	case r.target.Platform == models.PlatformShopify:
		err = r.shopifyProducts(ctx)
	case r.target.Mode == models.ModeCollections:
		r.wooCollections(ctx)
	default:
		err = r.wooProducts(ctx, endpoint)
	}
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.emit.status(models.EventProcessing, "preparing results")
	return r.result(), nil
}

// result slices the merged catalog to the requested page.
func (r *run) result() *models.ScrapeResult {
	res := &models.ScrapeResult{
		Store:        r.target.Origin,
		CurrentPage:  r.target.Page,
		ItemsPerPage: r.target.Limit,
	}
	if r.target.Mode == models.ModeCollections {
		all := r.collections.Items()
		res.Collections, res.HasMore, res.TotalPages = pipeline.Paginate(all, r.target.Page, r.target.Limit)
		res.Total = len(all)
		return res
	}
	all := r.products.Items()
	res.Products, res.HasMore, res.TotalPages = pipeline.Paginate(all, r.target.Page, r.target.Limit)
	res.Total = len(all)
	return res
}

// detectPlatform asks for one product in the Shopify listing shape and
// falls back to WooCommerce.
func (r *run) detectPlatform(ctx context.Context) (models.Platform, error) {
	r.emit.status(models.EventTesting, "detecting platform")
	resp, err := r.get(ctx, r.target.Origin+"/products.json?limit=1", client.WithRetries(1))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return models.PlatformWooCommerce, nil
	}
	if _, err := parser.ParseShopifyProducts(resp.Body); err == nil {
		return models.PlatformShopify, nil
	}
	return models.PlatformWooCommerce, nil
}

// get issues a GET through the shared client and turns 429 answers into
// rate_limited events.
func (r *run) get(ctx context.Context, rawURL string, opts ...client.RequestOption) (*client.Response, error) {
	hook := client.WithRateLimitHook(func(rl client.RateLimit) {
		r.metrics.IncRateLimited()
		r.logger.Warn("rate limited", "url", rl.URL, "attempt", rl.Attempt, "wait", rl.Wait)
		r.emit.emit(models.ProgressEvent{
			Type:         models.EventRateLimited,
			Message:      "rate limited, backing off",
			RetryAfterMs: rl.Wait.Milliseconds(),
		})
	})
	opts = append(opts[:len(opts):len(opts)], hook)
	return r.client.Get(ctx, rawURL, opts...)
}

// getDoc fetches a document once per scrape.
func (r *run) getDoc(ctx context.Context, rawURL string) ([]byte, error) {
	if body, ok := r.docs.Get(rawURL); ok {
		return body, nil
	}
	resp, err := r.get(ctx, rawURL, client.WithRetries(min(r.cfg.MaxRetries, 1)))
	if err != nil {
		return nil, err
	}
	r.docs.Add(rawURL, resp.Body)
	return resp.Body, nil
}

// noteJSONFailure tracks catalog endpoints failing below HTTP so an
// unreachable store is reported as such.
func (r *run) noteJSONFailure(err error) {
	if transportFailure(err) {
		r.jsonTransport++
		r.lastTransport = err
	}
}

// strategy is one discovery step. run reports stop=true when discovery
// must end, which is how an early stop propagates.
type strategy struct {
	name string
	when func(r *run) bool
	run  func(ctx context.Context, r *run) (stop bool, err error)
}

// cascade evaluates strategies in order. Failures are logged and skipped;
// cancellation aborts.
func (r *run) cascade(ctx context.Context, strategies []strategy) error {
	for _, st := range strategies {
		if err := ctx.Err(); err != nil {
			return err
		}
		logger := r.logger.With("strategy", st.name)
		if st.when != nil && !st.when(r) {
			r.metrics.IncStrategy(st.name, "skipped")
			continue
		}

		before := r.products.Len() + r.collections.Len()
		stop, err := st.run(ctx, r)
		added := r.products.Len() + r.collections.Len() - before
		r.metrics.AddItems(st.name, added)

		switch {
		case err != nil && ctx.Err() != nil:
			return ctx.Err()
		case err != nil:
			r.metrics.IncStrategy(st.name, "failed")
			logger.Warn("strategy failed", "error", err)
		case added > 0:
			r.metrics.IncStrategy(st.name, "items")
			logger.Info("strategy finished", "added", added)
		default:
			r.metrics.IncStrategy(st.name, "empty")
			logger.Debug("strategy found nothing new")
		}
		if stop {
			logger.Info("discovery stopped", "early_stop", r.earlyStop)
			return nil
		}
	}
	return nil
}

func isCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
