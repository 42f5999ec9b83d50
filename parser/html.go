package parser

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/aluiziolira/go-scrape-stores/models"
)

// HTMLCard is what a storefront product card shows: no ids, no variants.
type HTMLCard struct {
	Handle string
	Title  string
	Vendor string
	Price  string
	Image  string
}

var priceText = regexp.MustCompile(`\d[\d.,]*`)

// PriceFromText pulls a decimal price out of display text such as
// "$1,299.00", "1.299,00 €" or "From 25". It returns "" when no number is found.
func PriceFromText(s string) string {
	match := strings.TrimRight(priceText.FindString(s), ".,")
	if match == "" {
		return ""
	}

	lastDot := strings.LastIndex(match, ".")
	lastComma := strings.LastIndex(match, ",")
	decimalSep := -1
	switch {
	case lastDot >= 0 && lastComma >= 0:
		decimalSep = max(lastDot, lastComma)
	case lastComma >= 0 && len(match)-lastComma-1 == 2:
		decimalSep = lastComma
	case lastDot >= 0 && len(match)-lastDot-1 != 3:
		decimalSep = lastDot
	}

	var whole, frac strings.Builder
	for i, r := range match {
		if r < '0' || r > '9' {
			continue
		}
		if decimalSep >= 0 && i > decimalSep {
			frac.WriteRune(r)
		} else {
			whole.WriteRune(r)
		}
	}
	w := strings.TrimLeft(whole.String(), "0")
	if w == "" {
		w = "0"
	}
	f := frac.String()
	switch {
	case len(f) == 0:
		f = "00"
	case len(f) == 1:
		f += "0"
	case len(f) > 2:
		f = f[:2]
	}
	return w + "." + f
}

// HumanizeHandle turns "summer-sale" into "Summer Sale".
func HumanizeHandle(handle string) string {
	words := strings.FieldsFunc(handle, func(r rune) bool { return r == '-' || r == '_' })
	for i, w := range words {
		runes := []rune(w)
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}

// NormalizeHTMLCard maps a scraped product card. Cards expose no variants,
// so the product carries none and is not marked available.
func NormalizeHTMLCard(c HTMLCard, origin string) models.Product {
	title := strings.TrimSpace(c.Title)
	if title == "" {
		title = HumanizeHandle(c.Handle)
	}
	title = titleOrDefault(title)
	handle := handleOrSlug(c.Handle, title)

	price := c.Price
	if price == "" {
		price = "0"
	}
	images := []models.Image{}
	if src := AbsoluteImage(c.Image); src != "" {
		images = append(images, models.Image{Src: src, Alt: title})
	}
	return models.Product{
		Title:    title,
		Handle:   handle,
		Vendor:   strings.TrimSpace(c.Vendor),
		Price:    price,
		Images:   images,
		Tags:     []string{},
		URL:      strings.TrimRight(origin, "/") + "/products/" + handle,
		Variants: []models.Variant{},
	}
}

// CollectionFromHandle builds a collection known only by its handle, as
// found in sitemaps and collection list pages.
func CollectionFromHandle(handle, title, origin string) models.Collection {
	handle = strings.TrimSpace(handle)
	title = strings.TrimSpace(title)
	if title == "" {
		title = HumanizeHandle(handle)
	}
	return models.Collection{
		Title:  title,
		Handle: handle,
		URL:    strings.TrimRight(origin, "/") + "/collections/" + handle,
	}
}
