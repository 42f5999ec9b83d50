package parser

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// ShopifyJSProduct is the shape served by /products/{handle}.js. Prices are
// integer cents and tags may be a comma separated string.
type ShopifyJSProduct struct {
	ID            ID                 `json:"id"`
	Title         string             `json:"title"`
	Handle        string             `json:"handle"`
	Description   string             `json:"description"`
	Vendor        string             `json:"vendor"`
	Type          string             `json:"type"`
	Tags          TagList            `json:"tags"`
	CreatedAt     string             `json:"created_at"`
	PublishedAt   string             `json:"published_at"`
	Images        []string           `json:"images"`
	FeaturedImage string             `json:"featured_image"`
	Options       []ShopifyOption    `json:"options"`
	Variants      []ShopifyJSVariant `json:"variants"`
}

// ShopifyJSVariant is a variant of a .js product.
type ShopifyJSVariant struct {
	ID                  ID     `json:"id"`
	Title               string `json:"title"`
	Option1             string `json:"option1"`
	Option2             string `json:"option2"`
	Option3             string `json:"option3"`
	SKU                 string `json:"sku"`
	Barcode             string `json:"barcode"`
	Price               Cents  `json:"price"`
	CompareAtPrice      *Cents `json:"compare_at_price"`
	Available           *bool  `json:"available"`
	Weight              *Cents `json:"weight"`
	InventoryManagement string `json:"inventory_management"`
	InventoryPolicy     string `json:"inventory_policy"`
	RequiresShipping    *bool  `json:"requires_shipping"`
	Taxable             *bool  `json:"taxable"`
	FeaturedImage       *struct {
		Src string `json:"src"`
	} `json:"featured_image"`
}

// ParseShopifyJSProduct decodes a /products/{handle}.js document.
func ParseShopifyJSProduct(body []byte) (ShopifyJSProduct, error) {
	var p ShopifyJSProduct
	if err := json.Unmarshal(body, &p); err != nil {
		return p, fmt.Errorf("decode product js: %w", err)
	}
	if p.ID == "" && p.Handle == "" {
		return p, fmt.Errorf("decode product js: missing id and handle")
	}
	return p, nil
}

// ToProduct adapts the .js shape to the products.json shape so both go
// through NormalizeShopify.
func (p ShopifyJSProduct) ToProduct() ShopifyProduct {
	out := ShopifyProduct{
		ID:          p.ID,
		Title:       p.Title,
		Handle:      p.Handle,
		BodyHTML:    p.Description,
		Vendor:      p.Vendor,
		ProductType: p.Type,
		CreatedAt:   p.CreatedAt,
		PublishedAt: p.PublishedAt,
		Tags:        p.Tags,
		Options:     p.Options,
	}

	for _, src := range p.Images {
		out.Images = append(out.Images, ShopifyImage{Src: src})
	}
	if len(out.Images) == 0 && p.FeaturedImage != "" {
		out.Images = append(out.Images, ShopifyImage{Src: p.FeaturedImage})
	}

	for _, v := range p.Variants {
		variant := ShopifyVariant{
			ID:               v.ID,
			Title:            v.Title,
			Option1:          v.Option1,
			Option2:          v.Option2,
			Option3:          v.Option3,
			SKU:              v.SKU,
			Barcode:          v.Barcode,
			Price:            Decimal(CentsToDecimal(v.Price)),
			Available:        v.Available,
			InventoryPolicy:  v.InventoryPolicy,
			RequiresShipping: v.RequiresShipping,
			Taxable:          v.Taxable,
		}
		if v.CompareAtPrice != nil && *v.CompareAtPrice > 0 {
			variant.CompareAtPrice = Decimal(CentsToDecimal(*v.CompareAtPrice))
		}
		if v.Weight != nil {
			variant.Grams = Decimal(strconv.FormatInt(int64(*v.Weight), 10))
		}
		if v.FeaturedImage != nil {
			variant.FeaturedImage = &ShopifyImage{Src: v.FeaturedImage.Src}
		}
		out.Variants = append(out.Variants, variant)
	}
	return out
}
