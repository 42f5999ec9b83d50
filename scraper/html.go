package scraper

import (
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/aluiziolira/go-scrape-stores/client"
	"github.com/aluiziolira/go-scrape-stores/config"
	"github.com/aluiziolira/go-scrape-stores/models"
	"github.com/aluiziolira/go-scrape-stores/parser"
	"github.com/gocolly/colly/v2"
)

const productCardSelector = "li.grid__item, .product-card, .card-wrapper, .product-item, .grid-product, .product, article, li"

var (
	cardTitleSelectors  = []string{".card__heading", ".product-card__title", ".product-item__title", ".grid-product__title", ".product-title", ".product__title", "h2", "h3"}
	cardPriceSelectors  = []string{".price-item--sale", ".price-item--regular", ".price__current", ".product-price", ".price", ".money"}
	cardVendorSelectors = []string{".card__vendor", ".product-card__vendor", ".product-item__vendor", ".grid-product__vendor", ".vendor"}
	htmlProductPaths    = []string{"/collections/all", "/collections/featured", "/collections/new-arrivals"}
)

// newCollector builds a synchronous colly collector sharing the client's
// transport. Requests issued after ctx is done are aborted.
func (r *run) newCollector(ctx context.Context) *colly.Collector {
	c := colly.NewCollector(colly.UserAgent(client.RandomUserAgent()))
	c.WithTransport(r.transport)
	c.SetRequestTimeout(max(r.cfg.Timeout, config.MinRequestTimeout))

	c.OnRequest(func(req *colly.Request) {
		if ctx.Err() != nil {
			req.Abort()
			return
		}
		req.Headers.Set("Accept", "text/html,application/xhtml+xml")
		req.Headers.Set("Accept-Language", "en-US,en;q=0.9")
		r.metrics.IncRequest("started")
	})
	c.OnResponse(func(resp *colly.Response) {
		r.metrics.IncRequest("succeeded")
	})
	c.OnError(func(resp *colly.Response, err error) {
		r.metrics.IncError("html")
		if resp != nil && resp.Request != nil {
			r.logger.Debug("html fetch failed", "url", resp.Request.URL.String(), "status", resp.StatusCode, "error", err)
		}
	})
	return c
}

// scrapeHTMLProducts reads product cards off collection pages. Markup that
// does not match yields nothing; it never fails.
func (r *run) scrapeHTMLProducts(ctx context.Context) (bool, error) {
	paths := htmlProductPaths
	if r.target.Collection != "" {
		paths = append([]string{"/collections/" + r.target.Collection}, paths...)
	}

	var cards []parser.HTMLCard
	seen := make(map[string]struct{})

	c := r.newCollector(ctx)
	c.OnHTML(`a[href*="/products/"]`, func(e *colly.HTMLElement) {
		handle := handleFromURL(e.Request.AbsoluteURL(e.Attr("href")), "products")
		if handle == "" {
			return
		}
		if _, dup := seen[handle]; dup {
			return
		}
		seen[handle] = struct{}{}

		card := e.DOM.Closest(productCardSelector)
		if card.Length() == 0 {
			card = e.DOM.Parent()
		}
		title := firstText(card, cardTitleSelectors)
		if title == "" {
			title = strings.TrimSpace(e.Attr("title"))
		}
		if title == "" {
			title = strings.TrimSpace(e.DOM.Text())
		}
		image := imageSource(card)
		if image != "" && !strings.HasPrefix(image, "//") {
			image = e.Request.AbsoluteURL(image)
		}
		cards = append(cards, parser.HTMLCard{
			Handle: handle,
			Title:  title,
			Vendor: firstText(card, cardVendorSelectors),
			Price:  parser.PriceFromText(firstText(card, cardPriceSelectors)),
			Image:  image,
		})
	})

	for _, path := range paths {
		if ctx.Err() != nil {
			break
		}
		if err := c.Visit(r.target.Origin + path); err != nil {
			r.logger.Debug("html page skipped", "path", path, "error", err)
		}
	}

	products := make([]models.Product, 0, len(cards))
	for _, card := range cards {
		products = append(products, parser.NormalizeHTMLCard(card, r.target.Origin))
	}
	r.productAdder(products)
	return false, nil
}

// scrapeHTMLCollections reads collection links off the /collections page.
func (r *run) scrapeHTMLCollections(ctx context.Context) (bool, error) {
	var collections []models.Collection
	seen := make(map[string]struct{})

	c := r.newCollector(ctx)
	c.OnHTML(`a[href*="/collections/"]`, func(e *colly.HTMLElement) {
		href := e.Request.AbsoluteURL(e.Attr("href"))
		if strings.Contains(href, "/products/") {
			return
		}
		handle := handleFromURL(href, "collections")
		if handle == "" || handle == "all" {
			return
		}
		if _, dup := seen[handle]; dup {
			return
		}
		seen[handle] = struct{}{}

		title := strings.Join(strings.Fields(e.DOM.Text()), " ")
		if heading := firstText(e.DOM, cardTitleSelectors); heading != "" {
			title = heading
		}
		collection := parser.CollectionFromHandle(handle, title, r.target.Origin)
		if src := imageSource(e.DOM); src != "" {
			if !strings.HasPrefix(src, "//") {
				src = e.Request.AbsoluteURL(src)
			}
			collection.Image = &models.Image{Src: parser.AbsoluteImage(src), Alt: collection.Title}
		}
		collections = append(collections, collection)
	})

	if err := c.Visit(r.target.Origin + "/collections"); err != nil {
		r.logger.Debug("html collections skipped", "error", err)
	}
	r.collectionAdder(collections)
	return false, nil
}

func firstText(sel *goquery.Selection, selectors []string) string {
	for _, s := range selectors {
		text := strings.Join(strings.Fields(sel.Find(s).First().Text()), " ")
		if text != "" {
			return text
		}
	}
	return ""
}

// imageSource prefers src, then the lazy-loading attributes themes use.
func imageSource(sel *goquery.Selection) string {
	img := sel.Find("img").First()
	for _, attr := range []string{"src", "data-src", "data-srcset", "srcset"} {
		v, ok := img.Attr(attr)
		if !ok || strings.TrimSpace(v) == "" {
			continue
		}
		if fields := strings.Fields(strings.Split(v, ",")[0]); len(fields) > 0 {
			return fields[0]
		}
	}
	return ""
}
