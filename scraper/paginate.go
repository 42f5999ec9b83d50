package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aluiziolira/go-scrape-stores/client"
	"github.com/aluiziolira/go-scrape-stores/models"
)

// earlyStopPages is how many consecutive zero-item pages on an empty
// catalog mean the store has nothing to offer.
const earlyStopPages = 3

// pager describes one paginated endpoint.
type pager struct {
	name     string
	urls     func(page int) []string
	add      func(ctx context.Context, body []byte) (raw, fresh int, err error)
	size     func() int
	maxEmpty int
	delay    time.Duration
}

type pageOutcome struct {
	pages     int
	fresh     int
	capped    bool
	earlyStop bool
}

var errAllBadRequest = errors.New("every url shape answered 400")

// paginate walks pages sequentially until the catalog stops growing, the
// platform caps pagination or the page ceiling is reached. A failure on the
// first page fails the walk; later failures count as empty pages.
func (r *run) paginate(ctx context.Context, p pager) (pageOutcome, error) {
	var out pageOutcome
	emptyRun, zeroRun := 0, 0

	for page := 1; page <= r.cfg.MaxPages; page++ {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		if page > 1 {
			r.emit.page(page, fmt.Sprintf("%s page %d", p.name, page))
		}

		body, err := r.fetchPage(ctx, p.urls(page))
		out.pages = page
		if errors.Is(err, errAllBadRequest) {
			if page == 1 {
				return out, err
			}
			out.capped = true
			r.logger.Info("pagination capped by platform", "strategy", p.name, "page", page)
			break
		}
		if err != nil && isCanceled(err) {
			return out, err
		}

		raw, fresh := 0, 0
		if err == nil {
			raw, fresh, err = p.add(ctx, body)
		}
		if err != nil {
			if page == 1 {
				return out, err
			}
			r.logger.Debug("page failed", "strategy", p.name, "page", page, "error", err)
		}
		out.fresh += fresh

		if raw == 0 {
			zeroRun++
		} else {
			zeroRun = 0
		}
		if zeroRun >= earlyStopPages && p.size() == 0 {
			out.earlyStop = true
			r.logger.Info("no products on consecutive pages, stopping early", "strategy", p.name, "page", page)
			break
		}

		if fresh == 0 {
			emptyRun++
		} else {
			emptyRun = 0
		}
		if emptyRun >= p.maxEmpty {
			break
		}

		if page < r.cfg.MaxPages {
			if err := client.Sleep(ctx, p.delay); err != nil {
				return out, err
			}
		}
	}
	return out, nil
}

// fetchPage tries each URL shape in order. errAllBadRequest means the
// platform refused every shape with HTTP 400.
func (r *run) fetchPage(ctx context.Context, urls []string) ([]byte, error) {
	var lastErr error
	allBadRequest := len(urls) > 0
	for _, u := range urls {
		resp, err := r.get(ctx, u)
		if err == nil {
			return resp.Body, nil
		}
		if isCanceled(err) && ctx.Err() != nil {
			return nil, err
		}
		lastErr = err
		if client.StatusCode(err) != http.StatusBadRequest {
			allBadRequest = false
		}
	}
	if allBadRequest {
		return nil, fmt.Errorf("%w: %w", errAllBadRequest, lastErr)
	}
	return nil, lastErr
}

// shopifyPageURLs yields the default and widened shapes for page n of base.
func shopifyPageURLs(base string) func(int) []string {
	return func(n int) []string {
		return []string{
			withQuery(base, fmt.Sprintf("page=%d", n)),
			withQuery(base, fmt.Sprintf("limit=250&page=%d", n)),
		}
	}
}

func withQuery(base, query string) string {
	if strings.Contains(base, "?") {
		return base + "&" + query
	}
	return base + "?" + query
}

// productAdder merges normalized products and reports them as a batch.
// Merge and emit happen under addMu so batch totals never go backwards when
// fetcher workers add concurrently.
func (r *run) productAdder(items []models.Product) int {
	r.addMu.Lock()
	defer r.addMu.Unlock()
	fresh, size := r.products.Merge(items...)
	r.emit.products(size, fresh)
	return len(fresh)
}

func (r *run) collectionAdder(items []models.Collection) int {
	r.addMu.Lock()
	defer r.addMu.Unlock()
	fresh, size := r.collections.Merge(items...)
	r.emit.collections(size, fresh)
	return len(fresh)
}
