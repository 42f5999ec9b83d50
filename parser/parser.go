// Package parser maps raw Shopify and WooCommerce payloads onto the
// canonical models.
package parser

import (
	"fmt"
	"html"
	"strconv"
	"strings"
	"unicode"

	"github.com/aluiziolira/go-scrape-stores/models"
	"github.com/kennygrant/sanitize"
)

// UntitledProduct replaces a missing product title.
const UntitledProduct = "Untitled Product"

// DefaultVariantTitle names the variant synthesized for simple products.
const DefaultVariantTitle = "Default Title"

// ValidateProduct ensures a normalized product can be identified.
func ValidateProduct(p *models.Product) error {
	if p == nil {
		return fmt.Errorf("product is nil")
	}
	if strings.TrimSpace(p.ID) == "" && strings.TrimSpace(p.Handle) == "" {
		return fmt.Errorf("product %q has neither id nor handle", p.Title)
	}
	return nil
}

// Slugify lowercases s, drops everything but ASCII letters, digits, spaces
// and hyphens, turns spaces into hyphens and collapses repeats.
func Slugify(s string) string {
	var b strings.Builder
	lastHyphen := true
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		case r == '-' || unicode.IsSpace(r):
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	return strings.TrimRight(b.String(), "-")
}

// MinorToDecimal converts integer minor units ("12345") to a two-decimal
// string ("123.45"). Values that are not integers are parsed as floats.
func MinorToDecimal(minor string) string {
	minor = strings.TrimSpace(minor)
	if minor == "" {
		return "0.00"
	}
	if n, err := strconv.ParseInt(minor, 10, 64); err == nil {
		return centsString(n)
	}
	f, err := strconv.ParseFloat(minor, 64)
	if err != nil {
		return "0.00"
	}
	return strconv.FormatFloat(f/100, 'f', 2, 64)
}

// CentsToDecimal converts an integer cent amount to a two-decimal string.
func CentsToDecimal(c Cents) string {
	return centsString(int64(c))
}

func centsString(n int64) string {
	sign := ""
	if n < 0 {
		sign = "-"
		n = -n
	}
	return fmt.Sprintf("%s%d.%02d", sign, n/100, n%100)
}

// StripHTML turns an HTML fragment into plain, single-spaced text.
func StripHTML(s string) string {
	if strings.TrimSpace(s) == "" {
		return ""
	}
	return strings.Join(strings.Fields(html.UnescapeString(sanitize.HTML(s))), " ")
}

// AbsoluteImage turns protocol-relative CDN paths ("//cdn...") into https URLs.
func AbsoluteImage(src string) string {
	src = strings.TrimSpace(src)
	if strings.HasPrefix(src, "//") {
		return "https:" + src
	}
	return src
}

func titleOrDefault(title string) string {
	title = strings.TrimSpace(html.UnescapeString(title))
	if title == "" {
		return UntitledProduct
	}
	return title
}

func handleOrSlug(handle, title string) string {
	if handle = strings.TrimSpace(handle); handle != "" {
		return handle
	}
	return Slugify(title)
}

// pickSKU returns the first non-empty variant SKU, else the first variant's.
func pickSKU(variants []models.Variant) string {
	for _, v := range variants {
		if v.SKU != "" {
			return v.SKU
		}
	}
	if len(variants) > 0 {
		return variants[0].SKU
	}
	return ""
}

func anyAvailable(variants []models.Variant) bool {
	for _, v := range variants {
		if v.Available {
			return true
		}
	}
	return false
}

func boolOr(b *bool, fallback bool) bool {
	if b == nil {
		return fallback
	}
	return *b
}
