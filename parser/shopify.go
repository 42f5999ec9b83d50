package parser

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aluiziolira/go-scrape-stores/models"
)

// ShopifyProduct is one entry of a Shopify products.json listing.
type ShopifyProduct struct {
	ID          ID               `json:"id"`
	Title       string           `json:"title"`
	Handle      string           `json:"handle"`
	BodyHTML    string           `json:"body_html"`
	Vendor      string           `json:"vendor"`
	ProductType string           `json:"product_type"`
	CreatedAt   string           `json:"created_at"`
	UpdatedAt   string           `json:"updated_at"`
	PublishedAt string           `json:"published_at"`
	Tags        TagList          `json:"tags"`
	Variants    []ShopifyVariant `json:"variants"`
	Images      []ShopifyImage   `json:"images"`
	Options     []ShopifyOption  `json:"options"`
}

// ShopifyVariant is a products.json variant.
type ShopifyVariant struct {
	ID                ID            `json:"id"`
	Title             string        `json:"title"`
	Option1           string        `json:"option1"`
	Option2           string        `json:"option2"`
	Option3           string        `json:"option3"`
	SKU               string        `json:"sku"`
	Barcode           string        `json:"barcode"`
	Price             Decimal       `json:"price"`
	CompareAtPrice    Decimal       `json:"compare_at_price"`
	Available         *bool         `json:"available"`
	InventoryQuantity *int          `json:"inventory_quantity"`
	InventoryPolicy   string        `json:"inventory_policy"`
	Grams             Decimal       `json:"grams"`
	Weight            Decimal       `json:"weight"`
	WeightUnit        string        `json:"weight_unit"`
	RequiresShipping  *bool         `json:"requires_shipping"`
	Taxable           *bool         `json:"taxable"`
	FeaturedImage     *ShopifyImage `json:"featured_image"`
}

// ShopifyImage is a product or collection image.
type ShopifyImage struct {
	ID  ID     `json:"id"`
	Src string `json:"src"`
	Alt string `json:"alt"`
}

// ShopifyOption is a product option; older payloads send bare names.
type ShopifyOption struct {
	Name   string   `json:"name"`
	Values []string `json:"values"`
}

func (o *ShopifyOption) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		return json.Unmarshal(b, &o.Name)
	}
	type plain ShopifyOption
	return json.Unmarshal(b, (*plain)(o))
}

// ShopifyCollection is one entry of collections.json.
type ShopifyCollection struct {
	ID            ID            `json:"id"`
	Title         string        `json:"title"`
	Handle        string        `json:"handle"`
	Description   string        `json:"description"`
	PublishedAt   string        `json:"published_at"`
	UpdatedAt     string        `json:"updated_at"`
	Image         *ShopifyImage `json:"image"`
	ProductsCount int           `json:"products_count"`
}

// ParseShopifyProducts decodes a {"products": [...]} listing.
func ParseShopifyProducts(body []byte) ([]ShopifyProduct, error) {
	var payload struct {
		Products *[]ShopifyProduct `json:"products"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode products listing: %w", err)
	}
	if payload.Products == nil {
		return nil, fmt.Errorf("decode products listing: no products key")
	}
	return *payload.Products, nil
}

// ParseShopifyCollections decodes a {"collections": [...]} listing.
func ParseShopifyCollections(body []byte) ([]ShopifyCollection, error) {
	var payload struct {
		Collections *[]ShopifyCollection `json:"collections"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode collections listing: %w", err)
	}
	if payload.Collections == nil {
		return nil, fmt.Errorf("decode collections listing: no collections key")
	}
	return *payload.Collections, nil
}

// NormalizeShopify maps a products.json entry onto the canonical product.
func NormalizeShopify(p ShopifyProduct, origin string) models.Product {
	title := titleOrDefault(p.Title)
	handle := handleOrSlug(p.Handle, title)

	optionName := func(i int) string {
		if i < len(p.Options) {
			return p.Options[i].Name
		}
		return ""
	}

	variants := make([]models.Variant, 0, len(p.Variants))
	for _, v := range p.Variants {
		weight, unit := string(v.Weight), v.WeightUnit
		if weight == "" && v.Grams != "" {
			weight, unit = string(v.Grams), "g"
		}
		image := ""
		if v.FeaturedImage != nil {
			image = AbsoluteImage(v.FeaturedImage.Src)
		}
		variants = append(variants, models.Variant{
			ID:               string(v.ID),
			Title:            v.Title,
			Option1:          v.Option1,
			Option2:          v.Option2,
			Option3:          v.Option3,
			Option1Name:      optionName(0),
			Option2Name:      optionName(1),
			Option3Name:      optionName(2),
			Price:            string(v.Price),
			CompareAtPrice:   string(v.CompareAtPrice),
			SKU:              v.SKU,
			Barcode:          v.Barcode,
			Available:        boolOr(v.Available, true),
			InventoryQty:     v.InventoryQuantity,
			InventoryPolicy:  v.InventoryPolicy,
			Weight:           weight,
			WeightUnit:       unit,
			RequiresShipping: boolOr(v.RequiresShipping, true),
			Taxable:          boolOr(v.Taxable, true),
			Image:            image,
		})
	}

	images := make([]models.Image, 0, len(p.Images))
	for _, img := range p.Images {
		if src := AbsoluteImage(img.Src); src != "" {
			images = append(images, models.Image{Src: src, Alt: img.Alt})
		}
	}

	price, compareAt := "0", ""
	if len(variants) > 0 {
		if variants[0].Price != "" {
			price = variants[0].Price
		}
		compareAt = variants[0].CompareAtPrice
	}

	tags := []string(p.Tags)
	if tags == nil {
		tags = []string{}
	}

	return models.Product{
		ID:             string(p.ID),
		Title:          title,
		Handle:         handle,
		Vendor:         p.Vendor,
		ProductType:    p.ProductType,
		SKU:            pickSKU(variants),
		Price:          price,
		CompareAtPrice: compareAt,
		Images:         images,
		Description:    StripHTML(p.BodyHTML),
		Tags:           tags,
		Timestamps: models.Timestamps{
			Created:   p.CreatedAt,
			Updated:   p.UpdatedAt,
			Published: p.PublishedAt,
		},
		Available: anyAvailable(variants),
		URL:       strings.TrimRight(origin, "/") + "/products/" + handle,
		Variants:  variants,
	}
}

// NormalizeShopifyCollection maps a collections.json entry.
func NormalizeShopifyCollection(c ShopifyCollection, origin string) models.Collection {
	title := strings.TrimSpace(c.Title)
	handle := handleOrSlug(c.Handle, title)
	var image *models.Image
	if c.Image != nil && c.Image.Src != "" {
		image = &models.Image{Src: AbsoluteImage(c.Image.Src), Alt: c.Image.Alt}
	}
	return models.Collection{
		ID:           string(c.ID),
		Title:        title,
		Handle:       handle,
		Description:  StripHTML(c.Description),
		Image:        image,
		ProductCount: c.ProductsCount,
		Timestamps: models.Timestamps{
			Updated:   c.UpdatedAt,
			Published: c.PublishedAt,
		},
		URL: strings.TrimRight(origin, "/") + "/collections/" + handle,
	}
}
