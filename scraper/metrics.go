package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the scraper. It satisfies
// client.Recorder so request telemetry lands on the same registry.
type Metrics struct {
	Registry          *prometheus.Registry
	RequestsTotal     *prometheus.CounterVec
	RequestDuration   prometheus.Histogram
	ItemsScrapedTotal *prometheus.CounterVec
	RetriesTotal      prometheus.Counter
	ErrorsTotal       *prometheus.CounterVec
	RateLimitedTotal  prometheus.Counter
	StrategyRuns      *prometheus.CounterVec
	ScrapesTotal      *prometheus.CounterVec
	ScrapeDuration    *prometheus.HistogramVec
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_requests_total",
			Help: "Total HTTP requests issued by the scraper.",
		},
		[]string{"phase"},
	)
	requestDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scraper_request_duration_seconds",
			Help:    "HTTP request latency for scraper requests.",
			Buckets: prometheus.DefBuckets,
		},
	)
	itemsScraped := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_items_scraped_total",
			Help: "Total number of new catalog items accepted, by strategy.",
		},
		[]string{"strategy"},
	)
	retries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_retries_total",
			Help: "Total number of retry attempts scheduled.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_errors_total",
			Help: "Total number of scraper errors by type.",
		},
		[]string{"error_type"},
	)
	rateLimited := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_rate_limited_total",
			Help: "Total number of HTTP 429 answers received.",
		},
	)
	strategyRuns := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_strategy_runs_total",
			Help: "Discovery strategy runs by strategy and outcome.",
		},
		[]string{"strategy", "outcome"},
	)
	scrapes := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_scrapes_total",
			Help: "Completed scrape invocations by platform, mode and outcome.",
		},
		[]string{"platform", "mode", "outcome"},
	)
	scrapeDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scraper_scrape_duration_seconds",
			Help:    "Wall time of whole scrape invocations.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"platform"},
	)

	registry.MustRegister(requests, requestDuration, itemsScraped, retries, errorsTotal,
		rateLimited, strategyRuns, scrapes, scrapeDuration)

	return &Metrics{
		Registry:          registry,
		RequestsTotal:     requests,
		RequestDuration:   requestDuration,
		ItemsScrapedTotal: itemsScraped,
		RetriesTotal:      retries,
		ErrorsTotal:       errorsTotal,
		RateLimitedTotal:  rateLimited,
		StrategyRuns:      strategyRuns,
		ScrapesTotal:      scrapes,
		ScrapeDuration:    scrapeDuration,
	}
}

// IncRequest increments the requests total counter.
func (m *Metrics) IncRequest(phase string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(phase).Inc()
}

// ObserveDuration records an HTTP request duration.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.Observe(d.Seconds())
}

// AddItems counts catalog items accepted from a strategy.
func (m *Metrics) AddItems(strategy string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ItemsScrapedTotal.WithLabelValues(strategy).Add(float64(n))
}

// IncRetries increments the retries counter.
func (m *Metrics) IncRetries() {
	if m == nil {
		return
	}
	m.RetriesTotal.Inc()
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}

// IncRateLimited counts one HTTP 429.
func (m *Metrics) IncRateLimited() {
	if m == nil {
		return
	}
	m.RateLimitedTotal.Inc()
}

// IncStrategy records a strategy outcome: "items", "empty", "skipped" or "failed".
func (m *Metrics) IncStrategy(strategy, outcome string) {
	if m == nil {
		return
	}
	m.StrategyRuns.WithLabelValues(strategy, outcome).Inc()
}

// ObserveScrape records a finished invocation.
func (m *Metrics) ObserveScrape(platform, mode, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.ScrapesTotal.WithLabelValues(platform, mode, outcome).Inc()
	m.ScrapeDuration.WithLabelValues(platform).Observe(d.Seconds())
}
