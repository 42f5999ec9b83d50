package pipeline

import (
	"strings"
	"sync"

	"github.com/aluiziolira/go-scrape-stores/models"
)

// KeyFunc returns the platform id and handle identifying an item.
type KeyFunc[T any] func(T) (id, handle string)

// Catalog accumulates items for one scrape, keeping the first item seen for
// each identity. An item is known by its id and by its handle, so an item
// that only carries a handle is rejected once any earlier item claimed that
// handle. Safe for concurrent use.
type Catalog[T any] struct {
	mu    sync.Mutex
	key   KeyFunc[T]
	seen  map[string]struct{}
	items []T
}

// NewCatalog builds an empty catalog.
func NewCatalog[T any](key KeyFunc[T]) *Catalog[T] {
	return &Catalog[T]{
		key:  key,
		seen: make(map[string]struct{}),
	}
}

// NewProductCatalog builds a catalog keyed by product id and handle.
func NewProductCatalog() *Catalog[models.Product] {
	return NewCatalog(func(p models.Product) (string, string) { return p.ID, p.Handle })
}

// NewCollectionCatalog builds a catalog keyed by collection id and handle.
func NewCollectionCatalog() *Catalog[models.Collection] {
	return NewCatalog(func(c models.Collection) (string, string) { return c.ID, c.Handle })
}

// Add merges items and returns the ones that were new. Items without any
// identity are dropped.
func (c *Catalog[T]) Add(items ...T) []T {
	fresh, _ := c.Merge(items...)
	return fresh
}

// Merge is Add that also reports the catalog size right after the merge.
func (c *Catalog[T]) Merge(items ...T) (fresh []T, size int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, item := range items {
		keys := identityKeys(c.key(item))
		if len(keys) == 0 || c.seenAny(keys) {
			continue
		}
		for _, k := range keys {
			c.seen[k] = struct{}{}
		}
		c.items = append(c.items, item)
		fresh = append(fresh, item)
	}
	return fresh, len(c.items)
}

// Has reports whether an item with the given id or handle was accepted.
func (c *Catalog[T]) Has(id, handle string) bool {
	keys := identityKeys(id, handle)
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(keys) > 0 && c.seenAny(keys)
}

// HasHandle reports whether the handle is already claimed.
func (c *Catalog[T]) HasHandle(handle string) bool {
	return c.Has("", handle)
}

// Len returns the number of accepted items.
func (c *Catalog[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Items returns a copy of the accepted items in arrival order.
func (c *Catalog[T]) Items() []T {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]T, len(c.items))
	copy(out, c.items)
	return out
}

func (c *Catalog[T]) seenAny(keys []string) bool {
	for _, k := range keys {
		if _, ok := c.seen[k]; ok {
			return true
		}
	}
	return false
}

func identityKeys(id, handle string) []string {
	var keys []string
	if id = strings.TrimSpace(id); id != "" {
		keys = append(keys, "id:"+id)
	}
	if handle = strings.TrimSpace(handle); handle != "" {
		keys = append(keys, "handle:"+strings.ToLower(handle))
	}
	return keys
}
