package client

import (
	"context"
	"errors"
	"net"
	"net/http"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/aluiziolira/go-scrape-stores/config"
	"github.com/jarcoal/httpmock"
)

const testURL = "http://shop.test/products.json"

type recordedSleeps struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (r *recordedSleeps) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.waits = append(r.waits, d)
	r.mu.Unlock()
	return ctx.Err()
}

func newTestClient(t *testing.T, transport http.RoundTripper) (*Client, *recordedSleeps) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.RetryBackoff = 100 * time.Millisecond
	cfg.RetryBackoffMax = 0
	c := New(cfg, WithTransport(transport))
	sleeps := &recordedSleeps{}
	c.sleep = sleeps.sleep
	return c, sleeps
}

func TestGetReturnsBody(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", testURL, httpmock.NewStringResponder(200, `{"products":[]}`))

	c, _ := newTestClient(t, transport)
	resp, err := c.Get(context.Background(), testURL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if resp.StatusCode != 200 || string(resp.Body) != `{"products":[]}` {
		t.Fatalf("unexpected response %d %q", resp.StatusCode, resp.Body)
	}
}

func TestGetRetriesThenReturnsLastError(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", testURL, httpmock.NewStringResponder(503, "unavailable"))

	c, sleeps := newTestClient(t, transport)
	_, err := c.Get(context.Background(), testURL, WithRetries(3))
	if err == nil {
		t.Fatal("expected error")
	}

	if got := transport.GetTotalCallCount(); got != 4 {
		t.Fatalf("attempts = %d, want 4", got)
	}
	var server ErrServer
	if !errors.As(err, &server) {
		t.Fatalf("error %v is not ErrServer", err)
	}
	if StatusCode(err) != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", StatusCode(err))
	}

	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond}
	if !slices.Equal(sleeps.waits, want) {
		t.Fatalf("waits = %v, want %v", sleeps.waits, want)
	}
}

func TestGetRetryAfterHeader(t *testing.T) {
	transport := httpmock.NewMockTransport()
	calls := 0
	transport.RegisterResponder("GET", testURL, func(req *http.Request) (*http.Response, error) {
		calls++
		if calls == 1 {
			resp := httpmock.NewStringResponse(http.StatusTooManyRequests, "slow down")
			resp.Header.Set("Retry-After", "2")
			return resp, nil
		}
		return httpmock.NewStringResponse(200, "ok"), nil
	})

	c, sleeps := newTestClient(t, transport)
	var hooks []RateLimit
	resp, err := c.Get(context.Background(), testURL, WithRetries(3), WithRateLimitHook(func(rl RateLimit) {
		hooks = append(hooks, rl)
	}))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(resp.Body) != "ok" {
		t.Fatalf("body = %q", resp.Body)
	}
	if len(sleeps.waits) != 1 || sleeps.waits[0] < 2*time.Second {
		t.Fatalf("waits = %v, want one wait >= 2s", sleeps.waits)
	}
	if len(hooks) != 1 || hooks[0].Attempt != 1 || hooks[0].Wait != sleeps.waits[0] {
		t.Fatalf("rate limit hooks = %+v", hooks)
	}
}

func TestRateLimitDelay(t *testing.T) {
	c, _ := newTestClient(t, httpmock.NewMockTransport())
	c.jitter = func(lo, hi time.Duration) time.Duration { return lo }

	tests := []struct {
		name       string
		retryAfter string
		attempt    int
		want       time.Duration
	}{
		{name: "seconds", retryAfter: "2", want: 2 * time.Second},
		{name: "floor", retryAfter: "0", want: time.Second},
		{name: "fractional floor", retryAfter: "0.2", want: time.Second},
		{name: "missing uses jitter window", retryAfter: "", want: 1500 * time.Millisecond},
		{name: "garbage uses jitter window", retryAfter: "soon", want: 1500 * time.Millisecond},
		{name: "per attempt increment", retryAfter: "2", attempt: 2, want: 2*time.Second + 500*time.Millisecond},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.rateLimitDelay(tt.retryAfter, tt.attempt); got != tt.want {
				t.Fatalf("rateLimitDelay(%q, %d) = %v, want %v", tt.retryAfter, tt.attempt, got, tt.want)
			}
		})
	}
}

func TestParseRetryAfterDate(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	got, ok := parseRetryAfter(now.Add(5*time.Second).Format(http.TimeFormat), now)
	if !ok || got != 5*time.Second {
		t.Fatalf("parseRetryAfter(date) = %v, %v", got, ok)
	}
}

func TestRandomBetweenStaysInWindow(t *testing.T) {
	for i := 0; i < 200; i++ {
		d := randomBetween(rateLimitJitterLo, rateLimitJitterHi)
		if d < rateLimitJitterLo || d >= rateLimitJitterHi {
			t.Fatalf("jitter %v outside [%v, %v)", d, rateLimitJitterLo, rateLimitJitterHi)
		}
	}
}

func TestBackoffCapped(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.RetryBackoff = 200 * time.Millisecond
	cfg.RetryBackoffMax = 500 * time.Millisecond
	c := New(cfg)

	if delay := c.backoffDelay(cfg.RetryBackoff, 4); delay != cfg.RetryBackoffMax {
		t.Fatalf("delay %v, want cap %v", delay, cfg.RetryBackoffMax)
	}
	if delay := c.backoffDelay(cfg.RetryBackoff, 0); delay != cfg.RetryBackoff {
		t.Fatalf("first delay %v, want %v", delay, cfg.RetryBackoff)
	}
}

func TestTimeoutFloor(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Timeout = time.Second
	c := New(cfg)
	if got := c.http.GetClient().Timeout; got != config.MinRequestTimeout {
		t.Fatalf("timeout = %v, want %v", got, config.MinRequestTimeout)
	}
}

func TestGetSendsIdentityHeaders(t *testing.T) {
	transport := httpmock.NewMockTransport()
	var seen http.Header
	transport.RegisterResponder("GET", testURL, func(req *http.Request) (*http.Response, error) {
		seen = req.Header.Clone()
		return httpmock.NewStringResponse(200, "{}"), nil
	})

	c, _ := newTestClient(t, transport)
	if _, err := c.Get(context.Background(), testURL, WithHeaders(map[string]string{"Accept": "application/xml"})); err != nil {
		t.Fatalf("get: %v", err)
	}
	if !slices.Contains(UserAgents(), seen.Get("User-Agent")) {
		t.Fatalf("user agent %q not from pool", seen.Get("User-Agent"))
	}
	if seen.Get("Accept") != "application/xml" {
		t.Fatalf("accept override lost: %q", seen.Get("Accept"))
	}
	if seen.Get("Accept-Language") == "" {
		t.Fatal("base headers missing")
	}
}

func TestGetStopsOnCancelledContext(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", testURL, httpmock.NewStringResponder(500, ""))

	c, _ := newTestClient(t, transport)
	ctx, cancel := context.WithCancel(context.Background())
	c.sleep = func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	}
	if _, err := c.Get(ctx, testURL, WithRetries(5)); err == nil {
		t.Fatal("expected error")
	}
	if got := transport.GetTotalCallCount(); got != 1 {
		t.Fatalf("attempts = %d, want 1", got)
	}
}

func TestLabel(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		statusCode int
		expected   string
	}{
		{name: "nil", err: nil, statusCode: 0, expected: "unknown"},
		{name: "context timeout", err: context.DeadlineExceeded, expected: "timeout"},
		{name: "net timeout", err: &net.DNSError{IsTimeout: true}, expected: "timeout"},
		{name: "connection", err: &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, expected: "connection"},
		{name: "forbidden", statusCode: http.StatusForbidden, expected: "forbidden"},
		{name: "not found", statusCode: http.StatusNotFound, expected: "not_found"},
		{name: "rate limited", statusCode: http.StatusTooManyRequests, expected: "rate_limited"},
		{name: "server", statusCode: http.StatusBadGateway, expected: "server"},
		{name: "bad request", statusCode: http.StatusBadRequest, expected: "status"},
		{name: "other", err: errors.New("some other error"), expected: "other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Label(classifyError(tt.err, tt.statusCode, testURL)); got != tt.expected {
				t.Fatalf("Label(classifyError(%v, %d)) = %q, want %q", tt.err, tt.statusCode, got, tt.expected)
			}
		})
	}
}

func TestIsTransient(t *testing.T) {
	if !IsTransient(classifyError(nil, 503, testURL)) {
		t.Fatal("503 should be transient")
	}
	if IsTransient(classifyError(nil, 400, testURL)) {
		t.Fatal("400 should not be transient")
	}
	if StatusCode(classifyError(nil, 400, testURL)) != 400 {
		t.Fatal("400 status lost")
	}
}
