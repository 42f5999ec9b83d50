package parser

import (
	"encoding/json"
	"testing"

	"github.com/aluiziolira/go-scrape-stores/models"
	"github.com/google/go-cmp/cmp"
)

func TestValidateProduct(t *testing.T) {
	tests := []struct {
		name    string
		product *models.Product
		wantErr bool
	}{
		{name: "with id", product: &models.Product{ID: "1"}, wantErr: false},
		{name: "with handle", product: &models.Product{Handle: "shirt"}, wantErr: false},
		{name: "neither", product: &models.Product{Title: "Shirt"}, wantErr: true},
		{name: "nil", product: nil, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateProduct(tt.product)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateProduct() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{input: "Hello, World!", expected: "hello-world"},
		{input: "  Blue   Shirt  ", expected: "blue-shirt"},
		{input: "Already-a--slug", expected: "already-a-slug"},
		{input: "Café au lait", expected: "caf-au-lait"},
		{input: "snake_case", expected: "snakecase"},
		{input: "", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := Slugify(tt.input); got != tt.expected {
				t.Errorf("Slugify(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestMinorToDecimal(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{input: "12345", expected: "123.45"},
		{input: "5", expected: "0.05"},
		{input: "100", expected: "1.00"},
		{input: "0", expected: "0.00"},
		{input: "", expected: "0.00"},
		{input: "-250", expected: "-2.50"},
		{input: "1999.0", expected: "19.99"},
		{input: "abc", expected: "0.00"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := MinorToDecimal(tt.input); got != tt.expected {
				t.Errorf("MinorToDecimal(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestStripHTML(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "paragraphs", input: "<p>Soft <strong>cotton</strong></p>", expected: "Soft cotton"},
		{name: "entities", input: "Fish &amp; Chips", expected: "Fish & Chips"},
		{name: "whitespace", input: "  a \n\n b  ", expected: "a b"},
		{name: "empty", input: "   ", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripHTML(tt.input); got != tt.expected {
				t.Errorf("StripHTML(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestFlexibleValues(t *testing.T) {
	var payload struct {
		NumID   ID      `json:"num_id"`
		StrID   ID      `json:"str_id"`
		NumDec  Decimal `json:"num_dec"`
		StrDec  Decimal `json:"str_dec"`
		NullDec Decimal `json:"null_dec"`
		Cents   Cents   `json:"cents"`
		Tags    TagList `json:"tags"`
		TagArr  TagList `json:"tag_arr"`
		Plain   Text    `json:"plain"`
		Render  Text    `json:"render"`
	}
	body := `{
		"num_id": 7891234567890,
		"str_id": "42",
		"num_dec": 19.99,
		"str_dec": " 5.00 ",
		"null_dec": null,
		"cents": 2499,
		"tags": "summer, sale, ,cotton",
		"tag_arr": ["a", "b"],
		"plain": "hello",
		"render": {"rendered": "<p>hi</p>"}
	}`
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if payload.NumID != "7891234567890" {
		t.Errorf("NumID = %q", payload.NumID)
	}
	if payload.StrID != "42" {
		t.Errorf("StrID = %q", payload.StrID)
	}
	if payload.NumDec != "19.99" || payload.StrDec != "5.00" || payload.NullDec != "" {
		t.Errorf("decimals = %q %q %q", payload.NumDec, payload.StrDec, payload.NullDec)
	}
	if payload.Cents != 2499 {
		t.Errorf("Cents = %d", payload.Cents)
	}
	if diff := cmp.Diff(TagList{"summer", "sale", "cotton"}, payload.Tags); diff != "" {
		t.Errorf("Tags mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(TagList{"a", "b"}, payload.TagArr); diff != "" {
		t.Errorf("TagArr mismatch (-want +got):\n%s", diff)
	}
	if payload.Plain != "hello" || payload.Render != "<p>hi</p>" {
		t.Errorf("texts = %q %q", payload.Plain, payload.Render)
	}
}

func TestNormalizeShopify(t *testing.T) {
	body := []byte(`{"products": [{
		"id": 101,
		"title": "Linen Shirt",
		"handle": "linen-shirt",
		"body_html": "<p>Breathable <em>linen</em></p>",
		"vendor": "Acme",
		"product_type": "Shirts",
		"created_at": "2024-01-01T00:00:00Z",
		"updated_at": "2024-02-01T00:00:00Z",
		"published_at": "2024-01-02T00:00:00Z",
		"tags": ["summer", "linen"],
		"options": [{"name": "Size", "values": ["S", "M"]}],
		"images": [{"src": "//cdn.shop.test/a.jpg", "alt": "front"}],
		"variants": [
			{"id": 1, "title": "S", "option1": "S", "price": "49.00", "compare_at_price": "59.00", "sku": "", "available": false, "grams": 200},
			{"id": 2, "title": "M", "option1": "M", "price": "49.00", "sku": "LS-M", "available": true}
		]
	}]}`)

	products, err := ParseShopifyProducts(body)
	if err != nil {
		t.Fatalf("ParseShopifyProducts() error = %v", err)
	}
	if len(products) != 1 {
		t.Fatalf("got %d products, want 1", len(products))
	}
	got := NormalizeShopify(products[0], "https://shop.test")

	if got.ID != "101" || got.Handle != "linen-shirt" || got.Title != "Linen Shirt" {
		t.Errorf("identity = %q %q %q", got.ID, got.Handle, got.Title)
	}
	if got.Price != "49.00" || got.CompareAtPrice != "59.00" {
		t.Errorf("price = %q compareAt = %q", got.Price, got.CompareAtPrice)
	}
	if got.SKU != "LS-M" {
		t.Errorf("SKU = %q, want first non-empty variant sku", got.SKU)
	}
	if !got.Available {
		t.Error("Available = false, want true (one variant available)")
	}
	if got.Description != "Breathable linen" {
		t.Errorf("Description = %q", got.Description)
	}
	if got.URL != "https://shop.test/products/linen-shirt" {
		t.Errorf("URL = %q", got.URL)
	}
	if diff := cmp.Diff([]models.Image{{Src: "https://cdn.shop.test/a.jpg", Alt: "front"}}, got.Images); diff != "" {
		t.Errorf("Images mismatch (-want +got):\n%s", diff)
	}
	if got.Currency != "" {
		t.Errorf("Currency = %q, want empty", got.Currency)
	}
	if len(got.Variants) != 2 {
		t.Fatalf("got %d variants, want 2", len(got.Variants))
	}
	first := got.Variants[0]
	if first.Option1Name != "Size" || first.Weight != "200" || first.WeightUnit != "g" {
		t.Errorf("first variant = %+v", first)
	}
	if !first.RequiresShipping || !first.Taxable {
		t.Error("shipping/taxable should default to true")
	}
}

func TestNormalizeShopifyVariantless(t *testing.T) {
	products, err := ParseShopifyProducts([]byte(`{"products": [{"id": 5, "title": "", "handle": ""}]}`))
	if err != nil {
		t.Fatalf("ParseShopifyProducts() error = %v", err)
	}
	got := NormalizeShopify(products[0], "https://shop.test/")

	if got.Variants == nil || len(got.Variants) != 0 {
		t.Errorf("Variants = %#v, want empty non-nil slice", got.Variants)
	}
	if got.Available {
		t.Error("Available = true, want false")
	}
	if got.Price != "0" {
		t.Errorf("Price = %q, want \"0\"", got.Price)
	}
	if got.Title != UntitledProduct {
		t.Errorf("Title = %q", got.Title)
	}
	if got.Handle != "untitled-product" {
		t.Errorf("Handle = %q", got.Handle)
	}
	if got.Tags == nil {
		t.Error("Tags should be an empty slice, not nil")
	}

	out, err := json.Marshal(got)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(out, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if v, ok := decoded["variants"].([]any); !ok || len(v) != 0 {
		t.Errorf("variants JSON = %v, want []", decoded["variants"])
	}
}

func TestParseShopifyProductsMissingKey(t *testing.T) {
	if _, err := ParseShopifyProducts([]byte(`{"items": []}`)); err == nil {
		t.Error("expected error for payload without products key")
	}
	if _, err := ParseShopifyProducts([]byte(`<html>`)); err == nil {
		t.Error("expected error for non-JSON payload")
	}
	products, err := ParseShopifyProducts([]byte(`{"products": []}`))
	if err != nil || len(products) != 0 {
		t.Errorf("empty listing: products=%v err=%v", products, err)
	}
}

func TestShopifyJSProduct(t *testing.T) {
	body := []byte(`{
		"id": 9,
		"title": "Mug",
		"handle": "mug",
		"description": "<p>Ceramic</p>",
		"vendor": "Acme",
		"type": "Kitchen",
		"tags": "gift, ceramic",
		"images": ["//cdn.shop.test/mug.jpg"],
		"options": ["Color"],
		"variants": [
			{"id": 91, "title": "White", "option1": "White", "price": 1999, "compare_at_price": 0, "available": true, "weight": 350},
			{"id": 92, "title": "Black", "option1": "Black", "price": 2099, "compare_at_price": 2500, "available": false}
		]
	}`)

	js, err := ParseShopifyJSProduct(body)
	if err != nil {
		t.Fatalf("ParseShopifyJSProduct() error = %v", err)
	}
	got := NormalizeShopify(js.ToProduct(), "https://shop.test")

	if got.Price != "19.99" {
		t.Errorf("Price = %q, want 19.99", got.Price)
	}
	if got.CompareAtPrice != "" {
		t.Errorf("CompareAtPrice = %q, want empty for zero compare-at", got.CompareAtPrice)
	}
	if got.Variants[1].CompareAtPrice != "25.00" || got.Variants[1].Price != "20.99" {
		t.Errorf("second variant prices = %q / %q", got.Variants[1].Price, got.Variants[1].CompareAtPrice)
	}
	if diff := cmp.Diff([]string{"gift", "ceramic"}, got.Tags); diff != "" {
		t.Errorf("Tags mismatch (-want +got):\n%s", diff)
	}
	if got.Variants[0].Option1Name != "Color" {
		t.Errorf("Option1Name = %q", got.Variants[0].Option1Name)
	}
	if got.Images[0].Src != "https://cdn.shop.test/mug.jpg" {
		t.Errorf("image = %q", got.Images[0].Src)
	}
	if got.Description != "Ceramic" {
		t.Errorf("Description = %q", got.Description)
	}
}

func TestParseWooProducts(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    int
		wantErr bool
	}{
		{name: "store api", body: `[{"id": 1, "name": "Cap"}]`, want: 1},
		{name: "wp v2", body: `[{"id": 2, "title": {"rendered": "Cap"}, "slug": "cap"}]`, want: 1},
		{name: "empty array", body: `[]`, want: 0},
		{name: "not products", body: `[{"foo": 1}]`, wantErr: true},
		{name: "object", body: `{"code": "rest_no_route"}`, wantErr: true},
		{name: "html", body: `<!doctype html>`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseWooProducts([]byte(tt.body))
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseWooProducts() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && len(got) != tt.want {
				t.Errorf("got %d products, want %d", len(got), tt.want)
			}
		})
	}
}

func TestNormalizeWooStoreAPI(t *testing.T) {
	body := []byte(`[{
		"id": 77,
		"name": "Canvas Tote",
		"slug": "canvas-tote",
		"permalink": "https://woo.test/product/canvas-tote/",
		"type": "simple",
		"description": "<p>Sturdy canvas</p>",
		"sku": "TOTE-1",
		"prices": {"price": "12345", "regular_price": "15000", "sale_price": "12345", "currency_code": "USD"},
		"is_in_stock": true,
		"images": [{"id": 1, "src": "https://woo.test/tote.jpg", "alt": ""}],
		"categories": [{"id": 3, "name": "Bags", "slug": "bags"}],
		"tags": [{"id": 4, "name": "eco", "slug": "eco"}],
		"brands": [{"id": 5, "name": "Acme", "slug": "acme"}],
		"variations": []
	}]`)

	products, err := ParseWooProducts(body)
	if err != nil {
		t.Fatalf("ParseWooProducts() error = %v", err)
	}
	got := NormalizeWoo(products[0], nil, "https://woo.test")

	if got.Price != "123.45" || got.CompareAtPrice != "150.00" {
		t.Errorf("price = %q compareAt = %q", got.Price, got.CompareAtPrice)
	}
	if got.Currency != "USD" || got.Vendor != "Acme" || got.ProductType != "Bags" {
		t.Errorf("currency/vendor/type = %q %q %q", got.Currency, got.Vendor, got.ProductType)
	}
	if !got.Available {
		t.Error("Available = false, want true")
	}
	if got.URL != "https://woo.test/product/canvas-tote/" {
		t.Errorf("URL = %q", got.URL)
	}
	if diff := cmp.Diff([]string{"eco"}, got.Tags); diff != "" {
		t.Errorf("Tags mismatch (-want +got):\n%s", diff)
	}
	if len(got.Variants) != 1 {
		t.Fatalf("got %d variants, want 1 default variant", len(got.Variants))
	}
	v := got.Variants[0]
	if v.Title != DefaultVariantTitle || v.Price != "123.45" || v.SKU != "TOTE-1" {
		t.Errorf("default variant = %+v", v)
	}
}

func TestNormalizeWooV3PassesPricesThrough(t *testing.T) {
	body := []byte(`[{"id": 8, "name": "Hat", "price": "19.99", "regular_price": "24.99", "sale_price": "19.99", "stock_status": "outofstock", "variations": []}]`)
	products, err := ParseWooProducts(body)
	if err != nil {
		t.Fatalf("ParseWooProducts() error = %v", err)
	}
	got := NormalizeWoo(products[0], nil, "https://woo.test")

	if got.Price != "19.99" || got.CompareAtPrice != "24.99" {
		t.Errorf("price = %q compareAt = %q", got.Price, got.CompareAtPrice)
	}
	if got.Available {
		t.Error("Available = true, want false for outofstock")
	}
	if got.Handle != "hat" {
		t.Errorf("Handle = %q, want slug from title", got.Handle)
	}
	if got.URL != "https://woo.test/product/hat" {
		t.Errorf("URL = %q", got.URL)
	}
}

func TestWooVariations(t *testing.T) {
	products, err := ParseWooProducts([]byte(`[
		{"id": 1, "name": "v3", "type": "variable", "variations": [11, 12]},
		{"id": 2, "name": "store", "type": "variable", "variations": [{"id": 21, "attributes": [{"name": "Size", "value": "S"}]}]},
		{"id": 3, "name": "inline", "type": "variable", "variations": [{"id": 31, "price": "5.00", "attributes": [{"name": "Size", "option": "L"}]}]}
	]`))
	if err != nil {
		t.Fatalf("ParseWooProducts() error = %v", err)
	}

	if diff := cmp.Diff([]string{"11", "12"}, products[0].BareVariationIDs()); diff != "" {
		t.Errorf("v3 ids mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"21"}, products[1].BareVariationIDs()); diff != "" {
		t.Errorf("store ids mismatch (-want +got):\n%s", diff)
	}
	if ids := products[2].BareVariationIDs(); len(ids) != 0 {
		t.Errorf("inline product should have no bare ids, got %v", ids)
	}
	if embedded := products[2].EmbeddedVariations(); len(embedded) != 1 {
		t.Errorf("got %d embedded variations, want 1", len(embedded))
	}

	variations, err := ParseWooVariations([]byte(`[
		{"id": 11, "prices": {"price": "1000", "regular_price": "1000"}, "is_in_stock": false, "attributes": [{"name": "Size", "value": "S"}, {"name": "Color", "value": "Red"}]},
		{"id": 12, "prices": {"price": "1100", "regular_price": "1200"}, "is_in_stock": true, "attributes": [{"name": "Size", "value": "M"}, {"name": "Color", "value": "Red"}]}
	]`))
	if err != nil {
		t.Fatalf("ParseWooVariations() error = %v", err)
	}
	got := NormalizeWoo(products[0], variations, "https://woo.test")

	if len(got.Variants) != 2 {
		t.Fatalf("got %d variants, want 2", len(got.Variants))
	}
	if got.Variants[0].Title != "S / Red" || got.Variants[0].Option2Name != "Color" {
		t.Errorf("first variant = %+v", got.Variants[0])
	}
	if got.Variants[0].CompareAtPrice != "" || got.Variants[1].CompareAtPrice != "12.00" {
		t.Errorf("compare-at = %q / %q", got.Variants[0].CompareAtPrice, got.Variants[1].CompareAtPrice)
	}
	if got.Price != "10.00" {
		t.Errorf("Price = %q, want first variant price", got.Price)
	}
	if !got.Available {
		t.Error("Available = false, want true")
	}
}

func TestNormalizeWooCategory(t *testing.T) {
	categories, err := ParseWooCategories([]byte(`[{"id": 3, "name": "Bags &amp; Totes", "slug": "bags", "description": "<p>All bags</p>", "count": 12, "image": {"src": "https://woo.test/bags.jpg"}}]`))
	if err != nil {
		t.Fatalf("ParseWooCategories() error = %v", err)
	}
	got := NormalizeWooCategory(categories[0], "https://woo.test")
	want := models.Collection{
		ID:           "3",
		Title:        "Bags & Totes",
		Handle:       "bags",
		Description:  "All bags",
		Image:        &models.Image{Src: "https://woo.test/bags.jpg"},
		ProductCount: 12,
		URL:          "https://woo.test/product-category/bags",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("NormalizeWooCategory() mismatch (-want +got):\n%s", diff)
	}
}
