package scraper

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/aluiziolira/go-scrape-stores/config"
	"github.com/aluiziolira/go-scrape-stores/models"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// progressEvery is how often the fetcher reports its position.
const progressEvery = 10

type fetchTask struct {
	index int
	key   string
}

// fetchEach fetches every key with a bounded worker pool and merges the
// products into the catalog. Keys are deduplicated, keys for which skip
// reports true are never fetched, and failed keys are dropped. It returns
// the number of new products.
func (r *run) fetchEach(ctx context.Context, name string, keys []string, skip func(string) bool,
	fetch func(ctx context.Context, key string) ([]models.Product, error)) (int, error) {
	pending := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		if skip != nil && skip(k) {
			continue
		}
		pending = append(pending, k)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	workers := min(config.ClampConcurrency(r.cfg.Concurrency), len(pending))
	limit := rate.Inf
	if r.cfg.ItemDelay > 0 {
		limit = rate.Every(r.cfg.ItemDelay)
	}
	limiter := rate.NewLimiter(limit, 1)
	r.logger.Info("fetching items", "strategy", name, "items", len(pending), "workers", workers)

	tasks := make(chan fetchTask)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(tasks)
		for i, k := range pending {
			select {
			case tasks <- fetchTask{index: i, key: k}:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	var added atomic.Int64
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for task := range tasks {
				if err := limiter.Wait(gctx); err != nil {
					return err
				}
				if task.index > 0 && task.index%progressEvery == 0 {
					r.emit.page(task.index, fmt.Sprintf("%s %d/%d", name, task.index, len(pending)))
				}
				items, err := fetch(gctx, task.key)
				if err != nil {
					r.logger.Debug("item fetch failed", "strategy", name, "key", task.key, "error", err)
					continue
				}
				added.Add(int64(r.productAdder(items)))
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil && ctx.Err() != nil {
		return int(added.Load()), ctx.Err()
	}
	return int(added.Load()), nil
}
