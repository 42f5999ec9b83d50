package scraper

import (
	"context"
	"errors"
	"slices"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aluiziolira/go-scrape-stores/models"
)

func newTestRun(t *testing.T, sink Sink) *run {
	t.Helper()
	s, _ := newTestScraper(t)
	return s.newRun(context.Background(), models.ScrapeTarget{
		Origin:   shop,
		Platform: models.PlatformShopify,
		Mode:     models.ModeProducts,
		Page:     1,
		Limit:    250,
	}, sink)
}

func TestFetchEachDeduplicatesAndSkips(t *testing.T) {
	r := newTestRun(t, nil)
	r.products.Add(models.Product{ID: "1", Handle: "known"})

	var mu sync.Mutex
	var fetched []string
	added, err := r.fetchEach(context.Background(), "test", []string{"a", "known", "b", "a", " ", "c", "bad"}, r.products.HasHandle,
		func(_ context.Context, key string) ([]models.Product, error) {
			mu.Lock()
			fetched = append(fetched, key)
			mu.Unlock()
			if key == "bad" {
				return nil, errors.New("decode failed")
			}
			return []models.Product{{Handle: key}}, nil
		})
	if err != nil {
		t.Fatalf("fetchEach: %v", err)
	}

	sort.Strings(fetched)
	if !slices.Equal(fetched, []string{"a", "b", "bad", "c"}) {
		t.Fatalf("fetched %v", fetched)
	}
	if added != 3 || r.products.Len() != 4 {
		t.Fatalf("added = %d, catalog = %d; want 3 and 4", added, r.products.Len())
	}
}

func TestFetchEachBoundsConcurrency(t *testing.T) {
	r := newTestRun(t, nil)
	r.cfg.Concurrency = 3

	keys := make([]string, 24)
	for i := range keys {
		keys[i] = string(rune('a' + i))
	}

	var inFlight, peak atomic.Int32
	_, err := r.fetchEach(context.Background(), "test", keys, nil, func(_ context.Context, key string) ([]models.Product, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		inFlight.Add(-1)
		return []models.Product{{Handle: key}}, nil
	})
	if err != nil {
		t.Fatalf("fetchEach: %v", err)
	}
	if got := peak.Load(); got > 3 || got < 1 {
		t.Fatalf("peak concurrency = %d, want 1..3", got)
	}
	if r.products.Len() != len(keys) {
		t.Fatalf("catalog = %d, want %d", r.products.Len(), len(keys))
	}
}

func TestFetchEachReportsProgress(t *testing.T) {
	sink := &recordingSink{}
	r := newTestRun(t, sink)
	r.cfg.Concurrency = 1

	keys := make([]string, 25)
	for i := range keys {
		keys[i] = string(rune('A' + i))
	}
	_, err := r.fetchEach(context.Background(), "test", keys, nil, func(context.Context, string) ([]models.Product, error) {
		return nil, nil
	})
	if err != nil {
		t.Fatalf("fetchEach: %v", err)
	}

	var pages []int
	for _, ev := range sink.events {
		if ev.Type == models.EventPaginating {
			pages = append(pages, ev.Page)
		}
	}
	if !slices.Equal(pages, []int{10, 20}) {
		t.Fatalf("progress pages = %v, want [10 20]", pages)
	}
}

func TestFetchEachBatchTotalsNeverDecrease(t *testing.T) {
	sink := &recordingSink{}
	r := newTestRun(t, sink)
	r.cfg.Concurrency = 8

	keys := make([]string, 200)
	for i := range keys {
		keys[i] = "item-" + strconv.Itoa(i)
	}
	added, err := r.fetchEach(context.Background(), "test", keys, nil,
		func(_ context.Context, key string) ([]models.Product, error) {
			return []models.Product{{Handle: key}}, nil
		})
	if err != nil {
		t.Fatalf("fetchEach: %v", err)
	}
	if added != len(keys) {
		t.Fatalf("added = %d, want %d", added, len(keys))
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	last := 0
	for _, ev := range sink.events {
		if ev.Type != models.EventBatch {
			continue
		}
		if ev.Total <= last {
			t.Fatalf("batch total went from %d to %d", last, ev.Total)
		}
		last = ev.Total
	}
	if last != len(keys) {
		t.Fatalf("final batch total = %d, want %d", last, len(keys))
	}
}

func TestFetchEachStopsOnCancel(t *testing.T) {
	r := newTestRun(t, nil)
	ctx, cancel := context.WithCancel(context.Background())

	var calls atomic.Int32
	_, err := r.fetchEach(ctx, "test", []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"}, nil,
		func(ctx context.Context, key string) ([]models.Product, error) {
			calls.Add(1)
			cancel()
			return nil, ctx.Err()
		})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if n := calls.Load(); n >= 10 {
		t.Fatalf("fetched every key after cancel (%d calls)", n)
	}
}

func TestHandleFromURL(t *testing.T) {
	tests := []struct {
		raw  string
		kind string
		want string
	}{
		{raw: "https://shop.test/products/linen-shirt", kind: "products", want: "linen-shirt"},
		{raw: "https://shop.test/en/products/linen-shirt?variant=1", kind: "products", want: "linen-shirt"},
		{raw: "https://shop.test/products/linen-shirt.js", kind: "products", want: "linen-shirt"},
		{raw: "https://shop.test/collections/summer/products/hat", kind: "collections", want: "summer"},
		{raw: "https://shop.test/collections/summer/products/hat", kind: "products", want: "hat"},
		{raw: "https://shop.test/products/caf%C3%A9", kind: "products", want: "café"},
		{raw: "https://shop.test/products/", kind: "products", want: ""},
		{raw: "https://shop.test/pages/about", kind: "products", want: ""},
	}
	for _, tt := range tests {
		if got := handleFromURL(tt.raw, tt.kind); got != tt.want {
			t.Errorf("handleFromURL(%q, %q) = %q, want %q", tt.raw, tt.kind, got, tt.want)
		}
	}
}

func TestChildSitemapMatches(t *testing.T) {
	tests := []struct {
		loc  string
		kind string
		want bool
	}{
		{loc: "https://shop.test/sitemap_products_1.xml?from=1&to=2", kind: "products", want: true},
		{loc: "https://shop.test/sitemap_collections_1.xml", kind: "collections", want: true},
		{loc: "https://shop.test/sitemap_collections_1.xml", kind: "products", want: false},
		{loc: "https://shop.test/sitemap_pages_1.xml", kind: "products", want: false},
		{loc: "https://shop.test/product-sitemap.xml", kind: "products", want: true},
	}
	for _, tt := range tests {
		if got := childSitemapMatches(tt.loc, tt.kind); got != tt.want {
			t.Errorf("childSitemapMatches(%q, %q) = %v, want %v", tt.loc, tt.kind, got, tt.want)
		}
	}
}
