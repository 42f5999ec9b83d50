package scraper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/temoto/robotstxt"
)

// maxSitemapDepth bounds sitemap index recursion.
const maxSitemapDepth = 3

var errNoSitemap = errors.New("no sitemap reachable")

// sitemapRoots returns the sitemaps declared in robots.txt, else /sitemap.xml.
func (r *run) sitemapRoots(ctx context.Context) []string {
	fallback := []string{r.target.Origin + "/sitemap.xml"}
	body, err := r.getDoc(ctx, r.target.Origin+"/robots.txt")
	if err != nil {
		return fallback
	}
	robots, err := robotstxt.FromBytes(body)
	if err != nil || len(robots.Sitemaps) == 0 {
		return fallback
	}
	return robots.Sitemaps
}

// sitemapHandles collects the handles of every /{kind}/{handle} page listed
// in the store's sitemaps. kind is "products" or "collections".
func (r *run) sitemapHandles(ctx context.Context, kind string) ([]string, error) {
	w := sitemapWalk{
		run:     r,
		kind:    kind,
		visited: make(map[string]struct{}),
		seen:    make(map[string]struct{}),
	}
	for _, root := range r.sitemapRoots(ctx) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		w.walk(ctx, root, 0)
	}
	if w.fetched == 0 {
		return nil, fmt.Errorf("%w: %v", errNoSitemap, w.lastErr)
	}
	r.logger.Debug("sitemap walked", "kind", kind, "documents", w.fetched, "handles", len(w.handles))
	return w.handles, nil
}

type sitemapWalk struct {
	run     *run
	kind    string
	visited map[string]struct{}
	seen    map[string]struct{}
	handles []string
	fetched int
	lastErr error
}

func (w *sitemapWalk) walk(ctx context.Context, loc string, depth int) {
	if depth > maxSitemapDepth || ctx.Err() != nil {
		return
	}
	if _, ok := w.visited[loc]; ok {
		return
	}
	w.visited[loc] = struct{}{}

	body, err := w.run.getDoc(ctx, loc)
	if err != nil {
		w.lastErr = err
		return
	}
	doc, err := xmlquery.Parse(bytes.NewReader(body))
	if err != nil {
		w.lastErr = fmt.Errorf("parse sitemap %s: %w", loc, err)
		return
	}
	w.fetched++

	for _, node := range xmlquery.Find(doc, "//*[local-name()='sitemap']/*[local-name()='loc']") {
		child := strings.TrimSpace(node.InnerText())
		if child != "" && childSitemapMatches(child, w.kind) {
			w.walk(ctx, child, depth+1)
		}
	}
	for _, node := range xmlquery.Find(doc, "//*[local-name()='url']/*[local-name()='loc']") {
		handle := handleFromURL(strings.TrimSpace(node.InnerText()), w.kind)
		if handle == "" {
			continue
		}
		if _, dup := w.seen[handle]; dup {
			continue
		}
		w.seen[handle] = struct{}{}
		w.handles = append(w.handles, handle)
	}
}

// childSitemapMatches keeps sitemap_products_1.xml style children of an
// index and drops pages, blogs and the other kind.
func childSitemapMatches(loc, kind string) bool {
	u, err := url.Parse(loc)
	if err != nil {
		return false
	}
	name := strings.ToLower(u.Path)
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	return strings.Contains(name, strings.TrimSuffix(kind, "s"))
}

// handleFromURL returns the path segment following /{kind}/, so
// https://shop/en/products/linen-shirt yields "linen-shirt" for "products".
func handleFromURL(raw, kind string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := 0; i+1 < len(parts); i++ {
		if parts[i] != kind {
			continue
		}
		handle, err := url.PathUnescape(parts[i+1])
		if err != nil {
			return ""
		}
		return strings.TrimSuffix(strings.TrimSpace(handle), ".js")
	}
	return ""
}
