package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/aluiziolira/go-scrape-stores/client"
	"github.com/aluiziolira/go-scrape-stores/models"
	"github.com/aluiziolira/go-scrape-stores/parser"
)

// shopifyProducts runs the Shopify product cascade.
func (r *run) shopifyProducts(ctx context.Context) error {
	origin := r.target.Origin
	filtered := r.target.Collection != ""
	empty := func(r *run) bool { return r.products.Len() == 0 }

	strategies := []strategy{
		{
			name: "collection-json",
			when: func(r *run) bool { return filtered },
			run:  shopifyListing("collection-json", r.collectionProductsURL(r.target.Collection)),
		},
		{name: "products-json", when: empty, run: shopifyListing("products-json", origin+"/products.json")},
		{name: "all-collection-json", when: empty, run: shopifyListing("all-collection-json", origin+"/collections/all/products.json")},
		{name: "widen-first-page", run: widenFirstPage},
		{
			name: "sitemap-products",
			when: func(r *run) bool { return r.capped && !r.streaming && !filtered && !r.earlyStop },
			run:  sitemapProducts,
		},
		{
			name: "collection-crawl",
			when: func(r *run) bool {
				return r.capped && !filtered && (!r.sitemapRan || r.sitemapFailed || r.sitemapCount < r.products.Len())
			},
			run: crawlCollections,
		},
		{
			name: "html-scrape",
			when: func(r *run) bool { return r.products.Len() == 0 && !r.earlyStop },
			run:  func(ctx context.Context, r *run) (bool, error) { return r.scrapeHTMLProducts(ctx) },
		},
	}

	if err := r.cascade(ctx, strategies); err != nil {
		return err
	}
	if r.products.Len() == 0 && r.jsonAttempts > 0 && r.jsonTransport == r.jsonAttempts {
		return DiscoveryError{Store: origin, Err: r.lastTransport}
	}
	return nil
}

func (r *run) collectionProductsURL(handle string) string {
	return r.target.Origin + "/collections/" + url.PathEscape(handle) + "/products.json"
}

// shopifyListing paginates one products.json style endpoint.
func shopifyListing(name, endpoint string) func(context.Context, *run) (bool, error) {
	return func(ctx context.Context, r *run) (bool, error) {
		r.jsonAttempts++
		out, err := r.paginate(ctx, pager{
			name:     name,
			urls:     shopifyPageURLs(endpoint),
			add:      r.addShopifyPage,
			size:     r.products.Len,
			maxEmpty: r.cfg.MaxEmptyPages,
			delay:    r.cfg.ShopifyPageDelay,
		})
		if err != nil {
			r.noteJSONFailure(err)
			return false, err
		}
		r.capped = r.capped || out.capped
		if out.earlyStop {
			r.earlyStop = true
			return true, nil
		}
		return false, nil
	}
}

func (r *run) addShopifyPage(_ context.Context, body []byte) (int, int, error) {
	raw, err := parser.ParseShopifyProducts(body)
	if err != nil {
		return 0, 0, err
	}
	return len(raw), r.productAdder(r.normalizeShopify(raw)), nil
}

func (r *run) normalizeShopify(raw []parser.ShopifyProduct) []models.Product {
	products := make([]models.Product, 0, len(raw))
	for _, p := range raw {
		products = append(products, parser.NormalizeShopify(p, r.target.Origin))
	}
	return products
}

// widenFirstPage re-reads page one with the largest page size, which
// recovers items a smaller default page hides.
func widenFirstPage(ctx context.Context, r *run) (bool, error) {
	endpoints := []string{r.target.Origin + "/products.json", r.target.Origin + "/collections/all/products.json"}
	if r.target.Collection != "" {
		endpoints = []string{r.collectionProductsURL(r.target.Collection)}
	}

	var errs []error
	for _, endpoint := range endpoints {
		resp, err := r.get(ctx, withQuery(endpoint, "limit=250&page=1"))
		if err != nil {
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			errs = append(errs, err)
			continue
		}
		if _, _, err := r.addShopifyPage(ctx, resp.Body); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == len(endpoints) {
		return false, errors.Join(errs...)
	}
	return false, nil
}

// sitemapProducts fetches /products/{handle}.js for every sitemap handle
// the catalog does not hold yet.
func sitemapProducts(ctx context.Context, r *run) (bool, error) {
	r.sitemapRan = true
	handles, err := r.sitemapHandles(ctx, "products")
	if err != nil {
		r.sitemapFailed = true
		return false, err
	}
	r.sitemapCount = len(handles)
	r.emit.status(models.EventFetching, fmt.Sprintf("fetching %d products from sitemap", len(handles)))

	_, err = r.fetchEach(ctx, "sitemap-products", handles, r.products.HasHandle, r.fetchProductJS)
	return false, err
}

func (r *run) fetchProductJS(ctx context.Context, handle string) ([]models.Product, error) {
	resp, err := r.get(ctx, r.target.Origin+"/products/"+url.PathEscape(handle)+".js", client.WithRetries(min(r.cfg.MaxRetries, 1)))
	if err != nil {
		return nil, err
	}
	js, err := parser.ParseShopifyJSProduct(resp.Body)
	if err != nil {
		return nil, err
	}
	return []models.Product{parser.NormalizeShopify(js.ToProduct(), r.target.Origin)}, nil
}

// crawlCollections pulls the first wide page of every collection. Handles
// come from the collections sitemap, else from collections.json.
func crawlCollections(ctx context.Context, r *run) (bool, error) {
	handles, err := r.sitemapHandles(ctx, "collections")
	if err != nil && isCanceled(err) {
		return false, err
	}
	if len(handles) == 0 {
		handles, err = r.collectionHandlesFromJSON(ctx)
		if err != nil {
			return false, err
		}
	}
	r.emit.status(models.EventFetching, fmt.Sprintf("crawling %d collections", len(handles)))

	_, err = r.fetchEach(ctx, "collection-crawl", handles, nil, func(ctx context.Context, handle string) ([]models.Product, error) {
		resp, err := r.get(ctx, withQuery(r.collectionProductsURL(handle), "limit=250"))
		if err != nil {
			return nil, err
		}
		raw, err := parser.ParseShopifyProducts(resp.Body)
		if err != nil {
			return nil, err
		}
		return r.normalizeShopify(raw), nil
	})
	return false, err
}

func (r *run) collectionHandlesFromJSON(ctx context.Context) ([]string, error) {
	resp, err := r.get(ctx, r.target.Origin+"/collections.json?limit=250&page=1")
	if err != nil {
		return nil, err
	}
	raw, err := parser.ParseShopifyCollections(resp.Body)
	if err != nil {
		return nil, err
	}
	handles := make([]string, 0, len(raw))
	for _, c := range raw {
		if c.Handle != "" {
			handles = append(handles, c.Handle)
		}
	}
	return handles, nil
}

// shopifyCollections lists collections. Every failure ends in an empty
// result, never an error.
func (r *run) shopifyCollections(ctx context.Context) {
	empty := func(r *run) bool { return r.collections.Len() == 0 }
	strategies := []strategy{
		{name: "collections-json", run: collectionsJSON},
		{name: "sitemap-collections", when: empty, run: sitemapCollections},
		{
			name: "html-collections",
			when: empty,
			run:  func(ctx context.Context, r *run) (bool, error) { return r.scrapeHTMLCollections(ctx) },
		},
	}
	if err := r.cascade(ctx, strategies); err != nil {
		r.logger.Warn("collection discovery aborted", "error", err)
	}
}

func collectionsJSON(ctx context.Context, r *run) (bool, error) {
	out, err := r.paginate(ctx, pager{
		name: "collections-json",
		urls: func(page int) []string {
			return []string{fmt.Sprintf("%s/collections.json?limit=250&page=%d", r.target.Origin, page)}
		},
		add: func(_ context.Context, body []byte) (int, int, error) {
			raw, err := parser.ParseShopifyCollections(body)
			if err != nil {
				return 0, 0, err
			}
			collections := make([]models.Collection, 0, len(raw))
			for _, c := range raw {
				collections = append(collections, parser.NormalizeShopifyCollection(c, r.target.Origin))
			}
			return len(raw), r.collectionAdder(collections), nil
		},
		size:     r.collections.Len,
		maxEmpty: r.cfg.MaxEmptyPages,
		delay:    r.cfg.ShopifyPageDelay,
	})
	if err != nil {
		return false, err
	}
	if out.earlyStop {
		r.earlyStop = true
		return true, nil
	}
	return false, nil
}

func sitemapCollections(ctx context.Context, r *run) (bool, error) {
	handles, err := r.sitemapHandles(ctx, "collections")
	if err != nil {
		return false, err
	}
	collections := make([]models.Collection, 0, len(handles))
	for _, h := range handles {
		if h == "all" {
			continue
		}
		collections = append(collections, parser.CollectionFromHandle(h, "", r.target.Origin))
	}
	r.collectionAdder(collections)
	return false, nil
}
