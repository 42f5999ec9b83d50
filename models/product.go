// Package models defines data structures for the scraper.
package models

// Platform identifies the storefront family being scraped.
type Platform string

const (
	PlatformShopify     Platform = "shopify"
	PlatformWooCommerce Platform = "woocommerce"
)

// Mode selects what a scrape returns.
type Mode string

const (
	ModeProducts    Mode = "products"
	ModeCollections Mode = "collections"
)

// ScrapeTarget is the validated, immutable description of one scrape.
type ScrapeTarget struct {
	Origin     string
	Platform   Platform
	Mode       Mode
	Collection string
	Page       int
	Limit      int
}

// Image is a product or collection picture.
type Image struct {
	Src string `json:"src"`
	Alt string `json:"alt,omitempty"`
}

// Timestamps carries the source timestamps verbatim.
type Timestamps struct {
	Created   string `json:"created,omitempty"`
	Updated   string `json:"updated,omitempty"`
	Published string `json:"published,omitempty"`
}

// Product is the canonical product shape shared by every platform.
type Product struct {
	ID             string     `json:"id"`
	Title          string     `json:"title"`
	Handle         string     `json:"handle"`
	Vendor         string     `json:"vendor"`
	ProductType    string     `json:"productType"`
	SKU            string     `json:"sku"`
	Price          string     `json:"price"`
	CompareAtPrice string     `json:"compareAtPrice,omitempty"`
	Currency       string     `json:"currency,omitempty"`
	Images         []Image    `json:"images"`
	Description    string     `json:"description"`
	Tags           []string   `json:"tags"`
	Timestamps     Timestamps `json:"timestamps"`
	Available      bool       `json:"available"`
	URL            string     `json:"url"`
	Variants       []Variant  `json:"variants"`
}

// Variant is one purchasable option of a Product.
type Variant struct {
	ID               string `json:"id"`
	Title            string `json:"title"`
	Option1          string `json:"option1,omitempty"`
	Option2          string `json:"option2,omitempty"`
	Option3          string `json:"option3,omitempty"`
	Option1Name      string `json:"option1Name,omitempty"`
	Option2Name      string `json:"option2Name,omitempty"`
	Option3Name      string `json:"option3Name,omitempty"`
	Price            string `json:"price"`
	CompareAtPrice   string `json:"compareAtPrice,omitempty"`
	SKU              string `json:"sku"`
	Barcode          string `json:"barcode,omitempty"`
	Available        bool   `json:"available"`
	InventoryQty     *int   `json:"inventoryQuantity,omitempty"`
	InventoryPolicy  string `json:"inventoryPolicy,omitempty"`
	Weight           string `json:"weight,omitempty"`
	WeightUnit       string `json:"weightUnit,omitempty"`
	RequiresShipping bool   `json:"requiresShipping"`
	Taxable          bool   `json:"taxable"`
	Image            string `json:"image,omitempty"`
}

// Collection is the canonical collection (Shopify) or category (WooCommerce).
type Collection struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Handle       string     `json:"handle"`
	Description  string     `json:"description"`
	Image        *Image     `json:"image,omitempty"`
	ProductCount int        `json:"productCount"`
	Timestamps   Timestamps `json:"timestamps"`
	URL          string     `json:"url"`
}

// ScrapeResult is the caller-visible page of a scrape.
type ScrapeResult struct {
	Products     []Product    `json:"products,omitempty"`
	Collections  []Collection `json:"collections,omitempty"`
	Total        int          `json:"total"`
	HasMore      bool         `json:"hasMore"`
	Store        string       `json:"store"`
	TotalPages   int          `json:"totalPages"`
	CurrentPage  int          `json:"currentPage"`
	ItemsPerPage int          `json:"itemsPerPage"`
}
