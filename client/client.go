// Package client issues storefront GET requests with rotating browser
// identities, retry with exponential backoff, and Retry-After aware waits on
// HTTP 429.
package client

import (
	"context"
	"math/rand/v2"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aluiziolira/go-scrape-stores/config"
	"github.com/go-resty/resty/v2"
)

const (
	rateLimitFloor    = time.Second
	rateLimitJitterLo = 1500 * time.Millisecond
	rateLimitJitterHi = 2200 * time.Millisecond
	rateLimitStep     = 250 * time.Millisecond
)

// Recorder receives request telemetry. The scraper's Prometheus metrics
// implement it.
type Recorder interface {
	IncRequest(phase string)
	ObserveDuration(d time.Duration)
	IncRetries()
	IncError(errorType string)
}

// RateLimit describes one HTTP 429 answer and the wait chosen for it.
type RateLimit struct {
	URL     string
	Attempt int
	Wait    time.Duration
}

// Response is a successful (status < 400) storefront answer.
type Response struct {
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Client is safe for concurrent use by many scrapes.
type Client struct {
	http       *resty.Client
	maxRetries int
	backoff    time.Duration
	backoffMax time.Duration
	recorder   Recorder

	sleep  func(ctx context.Context, d time.Duration) error
	jitter func(lo, hi time.Duration) time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithTransport replaces the HTTP transport, mainly for tests.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		c.http.SetTransport(rt)
	}
}

// WithRecorder attaches request telemetry.
func WithRecorder(r Recorder) Option {
	return func(c *Client) {
		if r != nil {
			c.recorder = r
		}
	}
}

// New builds a client from cfg. The request timeout never drops below
// config.MinRequestTimeout.
func New(cfg *config.Config, opts ...Option) *Client {
	timeout := max(cfg.Timeout, config.MinRequestTimeout)

	rc := resty.New().
		SetTimeout(timeout).
		SetRetryCount(0).
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(10))

	c := &Client{
		http:       rc,
		maxRetries: cfg.MaxRetries,
		backoff:    cfg.RetryBackoff,
		backoffMax: cfg.RetryBackoffMax,
		recorder:   nopRecorder{},
		sleep:      Sleep,
		jitter:     randomBetween,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Transport exposes the underlying transport so other collectors (colly)
// share it.
func (c *Client) Transport() http.RoundTripper {
	if rt := c.http.GetClient().Transport; rt != nil {
		return rt
	}
	return http.DefaultTransport
}

type request struct {
	headers     map[string]string
	maxRetries  int
	backoff     time.Duration
	onRateLimit func(RateLimit)
}

// RequestOption tunes a single Get.
type RequestOption func(*request)

// WithHeaders overrides or adds request headers.
func WithHeaders(h map[string]string) RequestOption {
	return func(r *request) {
		r.headers = h
	}
}

// WithRetries sets how many times a failed request is retried.
func WithRetries(n int) RequestOption {
	return func(r *request) {
		r.maxRetries = max(n, 0)
	}
}

// WithBackoff sets the initial backoff; attempt n waits backoff*2^n.
func WithBackoff(d time.Duration) RequestOption {
	return func(r *request) {
		r.backoff = d
	}
}

// WithRateLimitHook is called every time the storefront answers 429.
func WithRateLimitHook(fn func(RateLimit)) RequestOption {
	return func(r *request) {
		r.onRateLimit = fn
	}
}

// Get fetches url, retrying failures. When retries run out the last error
// is returned; it wraps a *StatusError when an HTTP status caused it.
func (c *Client) Get(ctx context.Context, url string, opts ...RequestOption) (*Response, error) {
	req := request{maxRetries: c.maxRetries, backoff: c.backoff}
	for _, opt := range opts {
		opt(&req)
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		resp, wait, err := c.attempt(ctx, url, req, attempt)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if attempt >= req.maxRetries || ctx.Err() != nil {
			return nil, lastErr
		}
		c.recorder.IncRetries()
		if err := c.sleep(ctx, wait); err != nil {
			return nil, lastErr
		}
	}
}

func (c *Client) attempt(ctx context.Context, url string, req request, attempt int) (*Response, time.Duration, error) {
	start := time.Now()
	c.recorder.IncRequest("started")

	r := c.http.R().
		SetContext(ctx).
		SetHeaders(baseHeaders).
		SetHeader("User-Agent", RandomUserAgent())
	if len(req.headers) > 0 {
		r.SetHeaders(req.headers)
	}

	res, err := r.Get(url)
	c.recorder.ObserveDuration(time.Since(start))
	if err != nil {
		classified := classifyError(err, 0, url)
		c.recorder.IncError(Label(classified))
		return nil, c.backoffDelay(req.backoff, attempt), classified
	}

	if res.StatusCode() >= http.StatusBadRequest {
		classified := classifyError(nil, res.StatusCode(), url)
		c.recorder.IncError(Label(classified))
		if res.StatusCode() != http.StatusTooManyRequests {
			return nil, c.backoffDelay(req.backoff, attempt), classified
		}
		wait := c.rateLimitDelay(res.Header().Get("Retry-After"), attempt)
		if req.onRateLimit != nil {
			req.onRateLimit(RateLimit{URL: url, Attempt: attempt + 1, Wait: wait})
		}
		return nil, wait, classified
	}

	c.recorder.IncRequest("succeeded")
	return &Response{
		URL:        url,
		StatusCode: res.StatusCode(),
		Header:     res.Header(),
		Body:       res.Body(),
	}, 0, nil
}

func (c *Client) backoffDelay(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	delay := base
	for i := 0; i < attempt; i++ {
		delay *= 2
		if c.backoffMax > 0 && delay >= c.backoffMax {
			return c.backoffMax
		}
	}
	return delay
}

func (c *Client) rateLimitDelay(retryAfter string, attempt int) time.Duration {
	wait, ok := parseRetryAfter(retryAfter, time.Now())
	if ok {
		wait = max(wait, rateLimitFloor)
	} else {
		wait = c.jitter(rateLimitJitterLo, rateLimitJitterHi)
	}
	return wait + time.Duration(attempt)*rateLimitStep
}

// parseRetryAfter accepts delta-seconds or an HTTP date.
func parseRetryAfter(value string, now time.Time) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if secs, err := strconv.ParseFloat(value, 64); err == nil && secs >= 0 {
		return time.Duration(secs * float64(time.Second)), true
	}
	if at, err := http.ParseTime(value); err == nil {
		return max(at.Sub(now), 0), true
	}
	return 0, false
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func randomBetween(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + rand.N(hi-lo)
}

type nopRecorder struct{}

func (nopRecorder) IncRequest(string)             {}
func (nopRecorder) ObserveDuration(time.Duration) {}
func (nopRecorder) IncRetries()                   {}
func (nopRecorder) IncError(string)               {}
