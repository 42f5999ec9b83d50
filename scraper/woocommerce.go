package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/aluiziolira/go-scrape-stores/client"
	"github.com/aluiziolira/go-scrape-stores/models"
	"github.com/aluiziolira/go-scrape-stores/parser"
)

const wooPerPage = 100

// wooEndpoint is one candidate product listing of a WordPress store.
// shopifyShape marks /products.json, which some WooCommerce plugins serve
// in the Shopify listing format.
type wooEndpoint struct {
	name         string
	path         string
	shopifyShape bool
}

var wooEndpoints = []wooEndpoint{
	{name: "woo-store-api", path: "/wp-json/wc/store/products"},
	{name: "woo-v3", path: "/wp-json/wc/v3/products"},
	{name: "woo-wp-v2", path: "/wp-json/wp/v2/products"},
	{name: "woo-products-json", path: "/products.json", shopifyShape: true},
}

func (e wooEndpoint) probeURL(origin string) string {
	if e.shopifyShape {
		return origin + e.path + "?limit=1"
	}
	return origin + e.path + "?per_page=1"
}

func (e wooEndpoint) pageURLs(origin string) func(int) []string {
	return func(n int) []string {
		if e.shopifyShape {
			return []string{fmt.Sprintf("%s%s?limit=%d&page=%d", origin, e.path, wooPerPage, n)}
		}
		return []string{fmt.Sprintf("%s%s?page=%d&per_page=%d", origin, e.path, n, wooPerPage)}
	}
}

// wooProducts paginates the listing endpoint chosen by detectWoo.
func (r *run) wooProducts(ctx context.Context, endpoint wooEndpoint) error {
	variations := &variationFetcher{r: r}
	return r.cascade(ctx, []strategy{{
		name: endpoint.name,
		run: func(ctx context.Context, r *run) (bool, error) {
			out, err := r.paginate(ctx, pager{
				name: endpoint.name,
				urls: endpoint.pageURLs(r.target.Origin),
				add: func(ctx context.Context, body []byte) (int, int, error) {
					if endpoint.shopifyShape {
						return r.addShopifyPage(ctx, body)
					}
					return r.addWooPage(ctx, body, variations)
				},
				size:     r.products.Len,
				maxEmpty: r.cfg.WooMaxEmptyPages,
				delay:    r.cfg.WooPageDelay,
			})
			if err != nil {
				return false, err
			}
			r.earlyStop = out.earlyStop
			return out.earlyStop, nil
		},
	}})
}

// detectWoo probes the listing endpoints in order. When none is usable it
// tells a WordPress install without the Store API apart from a store that
// is not WordPress at all.
func (r *run) detectWoo(ctx context.Context) (wooEndpoint, error) {
	origin := r.target.Origin
	transport := 0
	var lastErr error

	for _, e := range wooEndpoints {
		resp, err := r.get(ctx, e.probeURL(origin), client.WithRetries(1))
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return wooEndpoint{}, ctxErr
			}
			if transportFailure(err) {
				transport++
			}
			lastErr = err
			r.logger.Debug("probe failed", "endpoint", e.path, "error", err)
			continue
		}
		if e.shopifyShape {
			_, err = parser.ParseShopifyProducts(resp.Body)
		} else {
			_, err = parser.ParseWooProducts(resp.Body)
		}
		if err == nil {
			return e, nil
		}
		lastErr = err
		r.logger.Debug("probe not usable", "endpoint", e.path, "error", err)
	}

	if r.wordPressAnswers(ctx) {
		return wooEndpoint{}, PlatformUnsupportedError{Store: origin, Reason: ReasonStoreAPIDisabled, Err: lastErr}
	}
	if err := ctx.Err(); err != nil {
		return wooEndpoint{}, err
	}
	if transport == len(wooEndpoints) {
		return wooEndpoint{}, PlatformUnsupportedError{Store: origin, Reason: ReasonUnreachable, Err: lastErr}
	}
	return wooEndpoint{}, PlatformUnsupportedError{Store: origin, Reason: ReasonNotWooCommerce, Err: lastErr}
}

// wordPressAnswers reports whether /wp-json/wp/v2/posts returns a JSON array.
func (r *run) wordPressAnswers(ctx context.Context) bool {
	resp, err := r.get(ctx, r.target.Origin+"/wp-json/wp/v2/posts?per_page=1", client.WithRetries(1))
	if err != nil {
		return false
	}
	var posts []json.RawMessage
	return json.Unmarshal(resp.Body, &posts) == nil
}

func (r *run) addWooPage(ctx context.Context, body []byte, variations *variationFetcher) (int, int, error) {
	raw, err := parser.ParseWooProducts(body)
	if err != nil {
		return 0, 0, err
	}
	products := make([]models.Product, 0, len(raw))
	for _, p := range raw {
		if err := ctx.Err(); err != nil {
			return 0, 0, err
		}
		products = append(products, parser.NormalizeWoo(p, variations.resolve(ctx, p), r.target.Origin))
	}
	return len(raw), r.productAdder(products), nil
}

// variationFetcher materializes variations listed by id only, pausing
// VariationDelay between requests.
type variationFetcher struct {
	r       *run
	fetched int
}

// resolve returns the variations of p. Nil means the default variant is
// built from the parent product.
func (f *variationFetcher) resolve(ctx context.Context, p parser.WooProduct) []parser.WooVariation {
	if embedded := p.EmbeddedVariations(); len(embedded) > 0 {
		return embedded
	}
	if !p.IsVariable() || len(p.BareVariationIDs()) == 0 {
		return nil
	}
	if f.r.products.Has(string(p.ID), p.Slug) {
		return nil
	}

	if f.fetched > 0 {
		if err := client.Sleep(ctx, f.r.cfg.VariationDelay); err != nil {
			return nil
		}
	}
	f.fetched++

	u := f.r.target.Origin + "/wp-json/wc/store/products/" + url.PathEscape(string(p.ID)) + "/variations"
	resp, err := f.r.get(ctx, u, client.WithRetries(min(f.r.cfg.MaxRetries, 1)))
	if err != nil {
		f.r.logger.Debug("variation fetch failed", "product", p.ID, "error", err)
		return nil
	}
	variations, err := parser.ParseWooVariations(resp.Body)
	if err != nil {
		f.r.logger.Debug("variation decode failed", "product", p.ID, "error", err)
		return nil
	}
	return variations
}

// wooCollections lists product categories. Failures end in an empty result.
func (r *run) wooCollections(ctx context.Context) {
	err := r.cascade(ctx, []strategy{{
		name: "woo-categories",
		run: func(ctx context.Context, r *run) (bool, error) {
			_, err := r.paginate(ctx, pager{
				name: "woo-categories",
				urls: func(n int) []string {
					return []string{fmt.Sprintf("%s/wp-json/wc/store/products/categories?page=%d&per_page=%d", r.target.Origin, n, wooPerPage)}
				},
				add: func(_ context.Context, body []byte) (int, int, error) {
					raw, err := parser.ParseWooCategories(body)
					if err != nil {
						return 0, 0, err
					}
					collections := make([]models.Collection, 0, len(raw))
					for _, c := range raw {
						collections = append(collections, parser.NormalizeWooCategory(c, r.target.Origin))
					}
					return len(raw), r.collectionAdder(collections), nil
				},
				size:     r.collections.Len,
				maxEmpty: r.cfg.WooMaxEmptyPages,
				delay:    r.cfg.WooPageDelay,
			})
			return false, err
		},
	}})
	if err != nil {
		r.logger.Warn("category discovery aborted", "error", err)
	}
}
