package parser

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html"
	"strconv"
	"strings"

	"github.com/aluiziolira/go-scrape-stores/models"
)

// WooProduct covers the Store API, the v3 REST API and the wp/v2 post shape.
// Store API prices sit under Prices in minor units; v3 prices are top-level
// decimal strings.
type WooProduct struct {
	ID               ID                `json:"id"`
	Name             Text              `json:"name"`
	Title            Text              `json:"title"`
	Slug             string            `json:"slug"`
	Permalink        string            `json:"permalink"`
	Link             string            `json:"link"`
	Type             string            `json:"type"`
	Description      Text              `json:"description"`
	ShortDescription Text              `json:"short_description"`
	Content          Text              `json:"content"`
	SKU              string            `json:"sku"`
	Prices           *WooPrices        `json:"prices"`
	Price            Decimal           `json:"price"`
	RegularPrice     Decimal           `json:"regular_price"`
	SalePrice        Decimal           `json:"sale_price"`
	StockStatus      string            `json:"stock_status"`
	IsInStock        *bool             `json:"is_in_stock"`
	StockQuantity    *int              `json:"stock_quantity"`
	Backorders       string            `json:"backorders"`
	Weight           Decimal           `json:"weight"`
	ShippingRequired *bool             `json:"shipping_required"`
	TaxStatus        string            `json:"tax_status"`
	Images           []WooImage        `json:"images"`
	Categories       []WooTerm         `json:"categories"`
	Tags             []WooTerm         `json:"tags"`
	Brands           []WooTerm         `json:"brands"`
	Variations       []json.RawMessage `json:"variations"`
	DateCreated      string            `json:"date_created"`
	DateModified     string            `json:"date_modified"`
	Date             string            `json:"date"`
	Modified         string            `json:"modified"`
}

// WooPrices is the Store API price block.
type WooPrices struct {
	Price        Decimal `json:"price"`
	RegularPrice Decimal `json:"regular_price"`
	SalePrice    Decimal `json:"sale_price"`
	CurrencyCode string  `json:"currency_code"`
}

// WooImage is a product, variation or category image.
type WooImage struct {
	ID  ID     `json:"id"`
	Src string `json:"src"`
	Alt string `json:"alt"`
}

// WooTerm is a category, tag or brand reference.
type WooTerm struct {
	ID   ID     `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// WooVariation is a materialized variation.
type WooVariation struct {
	ID            ID                 `json:"id"`
	Name          Text               `json:"name"`
	SKU           string             `json:"sku"`
	Prices        *WooPrices         `json:"prices"`
	Price         Decimal            `json:"price"`
	RegularPrice  Decimal            `json:"regular_price"`
	SalePrice     Decimal            `json:"sale_price"`
	StockStatus   string             `json:"stock_status"`
	IsInStock     *bool              `json:"is_in_stock"`
	StockQuantity *int               `json:"stock_quantity"`
	Backorders    string             `json:"backorders"`
	Weight        Decimal            `json:"weight"`
	Attributes    []WooVariationAttr `json:"attributes"`
	Variation     []WooVariationAttr `json:"variation"`
	Image         *WooImage          `json:"image"`
	Images        []WooImage         `json:"images"`
}

func (v WooVariation) hasPrice() bool {
	return v.Prices != nil || v.Price != "" || v.RegularPrice != ""
}

// WooVariationAttr is a name/value pair; the Store API uses value, v3 option.
type WooVariationAttr struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Option string `json:"option"`
}

func (a WooVariationAttr) value() string {
	if a.Value != "" {
		return a.Value
	}
	return a.Option
}

// WooCategory is a product category from the Store API.
type WooCategory struct {
	ID          ID        `json:"id"`
	Name        Text      `json:"name"`
	Slug        string    `json:"slug"`
	Description Text      `json:"description"`
	Count       int       `json:"count"`
	Image       *WooImage `json:"image"`
	Permalink   string    `json:"permalink"`
	Link        string    `json:"link"`
}

// ParseWooProducts decodes a JSON array of products. It fails unless every
// element looks like a product (has an id plus a name, title or slug).
func ParseWooProducts(body []byte) ([]WooProduct, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(bytes.TrimSpace(body), &raw); err != nil {
		return nil, fmt.Errorf("decode woocommerce products: %w", err)
	}
	products := make([]WooProduct, 0, len(raw))
	for i, item := range raw {
		var p WooProduct
		if err := json.Unmarshal(item, &p); err != nil {
			return nil, fmt.Errorf("decode woocommerce product %d: %w", i, err)
		}
		if p.ID == "" || (p.Name == "" && p.Title == "" && p.Slug == "") {
			return nil, fmt.Errorf("decode woocommerce products: element %d is not a product", i)
		}
		products = append(products, p)
	}
	return products, nil
}

// ParseWooVariations decodes a variations listing.
func ParseWooVariations(body []byte) ([]WooVariation, error) {
	var variations []WooVariation
	if err := json.Unmarshal(body, &variations); err != nil {
		return nil, fmt.Errorf("decode woocommerce variations: %w", err)
	}
	return variations, nil
}

// ParseWooCategories decodes a categories listing.
func ParseWooCategories(body []byte) ([]WooCategory, error) {
	var categories []WooCategory
	if err := json.Unmarshal(body, &categories); err != nil {
		return nil, fmt.Errorf("decode woocommerce categories: %w", err)
	}
	return categories, nil
}

// IsVariable reports whether the product declares variations.
func (p WooProduct) IsVariable() bool {
	return p.Type == "variable"
}

// BareVariationIDs returns the ids of variations that still need to be
// fetched: plain numbers (v3) or reference objects without prices (Store API).
func (p WooProduct) BareVariationIDs() []string {
	var ids []string
	for _, raw := range p.Variations {
		raw = bytes.TrimSpace(raw)
		if len(raw) == 0 {
			continue
		}
		if raw[0] == '{' {
			var v WooVariation
			if err := json.Unmarshal(raw, &v); err == nil && v.ID != "" && !v.hasPrice() {
				ids = append(ids, string(v.ID))
			}
			continue
		}
		var id ID
		if err := json.Unmarshal(raw, &id); err == nil && id != "" {
			ids = append(ids, string(id))
		}
	}
	return ids
}

// EmbeddedVariations returns the fully materialized variations carried inline.
func (p WooProduct) EmbeddedVariations() []WooVariation {
	var out []WooVariation
	for _, raw := range p.Variations {
		raw = bytes.TrimSpace(raw)
		if len(raw) == 0 || raw[0] != '{' {
			continue
		}
		var v WooVariation
		if err := json.Unmarshal(raw, &v); err == nil && v.hasPrice() {
			out = append(out, v)
		}
	}
	return out
}

// NormalizeWoo maps a WooCommerce product onto the canonical product.
// Without variations a single "Default Title" variant is built from the
// product's own price and stock fields.
func NormalizeWoo(p WooProduct, variations []WooVariation, origin string) models.Product {
	name := string(p.Name)
	if name == "" {
		name = string(p.Title)
	}
	title := titleOrDefault(name)
	handle := handleOrSlug(p.Slug, title)

	price, compareAt := wooPrices(p.Prices, p.Price, p.RegularPrice, p.SalePrice)
	parentAvailable := wooInStock(p.StockStatus, p.IsInStock)
	requiresShipping := boolOr(p.ShippingRequired, true)
	taxable := p.TaxStatus == "" || p.TaxStatus == "taxable"

	var variants []models.Variant
	if len(variations) == 0 {
		variants = []models.Variant{{
			ID:               string(p.ID),
			Title:            DefaultVariantTitle,
			Option1:          DefaultVariantTitle,
			Option1Name:      "Title",
			Price:            price,
			CompareAtPrice:   compareAt,
			SKU:              p.SKU,
			Available:        parentAvailable,
			InventoryQty:     p.StockQuantity,
			InventoryPolicy:  inventoryPolicy(p.Backorders),
			Weight:           string(p.Weight),
			WeightUnit:       weightUnit(p.Weight),
			RequiresShipping: requiresShipping,
			Taxable:          taxable,
		}}
	} else {
		for _, v := range variations {
			variants = append(variants, wooVariant(v, price, compareAt, parentAvailable, requiresShipping, taxable))
		}
	}

	images := make([]models.Image, 0, len(p.Images))
	for _, img := range p.Images {
		if img.Src != "" {
			images = append(images, models.Image{Src: img.Src, Alt: img.Alt})
		}
	}

	tags := make([]string, 0, len(p.Tags))
	for _, tag := range p.Tags {
		tags = append(tags, tag.Name)
	}

	description := string(p.Description)
	if strings.TrimSpace(description) == "" {
		description = string(p.Content)
	}
	if strings.TrimSpace(description) == "" {
		description = string(p.ShortDescription)
	}

	currency := ""
	if p.Prices != nil {
		currency = p.Prices.CurrencyCode
	}
	url := p.Permalink
	if url == "" {
		url = p.Link
	}
	if url == "" {
		url = strings.TrimRight(origin, "/") + "/product/" + handle
	}
	created, updated := p.DateCreated, p.DateModified
	if created == "" {
		created = p.Date
	}
	if updated == "" {
		updated = p.Modified
	}

	return models.Product{
		ID:             string(p.ID),
		Title:          title,
		Handle:         handle,
		Vendor:         firstTerm(p.Brands),
		ProductType:    firstTerm(p.Categories),
		SKU:            pickSKU(variants),
		Price:          variants[0].Price,
		CompareAtPrice: variants[0].CompareAtPrice,
		Currency:       currency,
		Images:         images,
		Description:    StripHTML(description),
		Tags:           tags,
		Timestamps: models.Timestamps{
			Created:   created,
			Updated:   updated,
			Published: created,
		},
		Available: anyAvailable(variants),
		URL:       url,
		Variants:  variants,
	}
}

func wooVariant(v WooVariation, parentPrice, parentCompareAt string, parentAvailable, requiresShipping, taxable bool) models.Variant {
	price, compareAt := wooPrices(v.Prices, v.Price, v.RegularPrice, v.SalePrice)
	if !v.hasPrice() {
		price, compareAt = parentPrice, parentCompareAt
	}

	available := parentAvailable
	if v.StockStatus != "" || v.IsInStock != nil {
		available = wooInStock(v.StockStatus, v.IsInStock)
	}

	attrs := v.Attributes
	if len(attrs) == 0 {
		attrs = v.Variation
	}
	variant := models.Variant{
		ID:               string(v.ID),
		Price:            price,
		CompareAtPrice:   compareAt,
		SKU:              v.SKU,
		Available:        available,
		InventoryQty:     v.StockQuantity,
		InventoryPolicy:  inventoryPolicy(v.Backorders),
		Weight:           string(v.Weight),
		WeightUnit:       weightUnit(v.Weight),
		RequiresShipping: requiresShipping,
		Taxable:          taxable,
	}
	var values []string
	for i, attr := range attrs {
		value := attr.value()
		values = append(values, value)
		switch i {
		case 0:
			variant.Option1, variant.Option1Name = value, attr.Name
		case 1:
			variant.Option2, variant.Option2Name = value, attr.Name
		case 2:
			variant.Option3, variant.Option3Name = value, attr.Name
		}
	}
	variant.Title = strings.Join(values, " / ")
	if variant.Title == "" {
		variant.Title = titleOrDefault(string(v.Name))
	}
	if v.Image != nil && v.Image.Src != "" {
		variant.Image = v.Image.Src
	} else if len(v.Images) > 0 {
		variant.Image = v.Images[0].Src
	}
	return variant
}

// wooPrices returns (price, compareAt). Store API minor units are divided by
// 100; v3 decimal strings pass through.
func wooPrices(prices *WooPrices, price, regular, sale Decimal) (string, string) {
	if prices != nil && prices.Price != "" {
		current := MinorToDecimal(string(prices.Price))
		compareAt := ""
		if prices.RegularPrice != "" && prices.RegularPrice != prices.Price {
			compareAt = MinorToDecimal(string(prices.RegularPrice))
		}
		return current, compareAt
	}

	current := string(price)
	if current == "" {
		current = string(sale)
	}
	if current == "" {
		current = string(regular)
	}
	if current == "" {
		current = "0"
	}
	compareAt := ""
	if regular != "" && string(regular) != current {
		compareAt = string(regular)
	}
	return current, compareAt
}

func wooInStock(status string, isInStock *bool) bool {
	if status != "" {
		return status == "instock"
	}
	return boolOr(isInStock, false)
}

func inventoryPolicy(backorders string) string {
	switch backorders {
	case "":
		return ""
	case "no":
		return "deny"
	default:
		return "continue"
	}
}

func weightUnit(weight Decimal) string {
	if weight == "" {
		return ""
	}
	if _, err := strconv.ParseFloat(string(weight), 64); err != nil {
		return ""
	}
	return "kg"
}

func firstTerm(terms []WooTerm) string {
	for _, t := range terms {
		if name := strings.TrimSpace(t.Name); name != "" {
			return name
		}
	}
	return ""
}

// NormalizeWooCategory maps a product category onto the canonical collection.
func NormalizeWooCategory(c WooCategory, origin string) models.Collection {
	title := strings.TrimSpace(html.UnescapeString(string(c.Name)))
	handle := handleOrSlug(c.Slug, title)
	var image *models.Image
	if c.Image != nil && c.Image.Src != "" {
		image = &models.Image{Src: c.Image.Src, Alt: c.Image.Alt}
	}
	url := c.Permalink
	if url == "" {
		url = c.Link
	}
	if url == "" {
		url = strings.TrimRight(origin, "/") + "/product-category/" + handle
	}
	return models.Collection{
		ID:           string(c.ID),
		Title:        title,
		Handle:       handle,
		Description:  StripHTML(string(c.Description)),
		Image:        image,
		ProductCount: c.Count,
		URL:          url,
	}
}
