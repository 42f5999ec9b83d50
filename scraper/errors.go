package scraper

import (
	"context"
	"errors"
	"fmt"

	"github.com/aluiziolira/go-scrape-stores/client"
)

// ValidationError rejects a request before any network call.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e ValidationError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

// UnsupportedReason tells why a store cannot be scraped as WooCommerce.
type UnsupportedReason string

const (
	ReasonNotWooCommerce   UnsupportedReason = "not_woocommerce"
	ReasonStoreAPIDisabled UnsupportedReason = "store_api_disabled"
	ReasonUnreachable      UnsupportedReason = "unreachable"
)

// PlatformUnsupportedError reports that no product endpoint answered usefully.
type PlatformUnsupportedError struct {
	Store  string
	Reason UnsupportedReason
	Err    error
}

func (e PlatformUnsupportedError) Error() string {
	var msg string
	switch e.Reason {
	case ReasonStoreAPIDisabled:
		msg = "WordPress site found but the WooCommerce Store API is disabled"
	case ReasonUnreachable:
		msg = "site unreachable"
	default:
		msg = "not a WooCommerce store"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Store, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Store, msg)
}

func (e PlatformUnsupportedError) Unwrap() error {
	return e.Err
}

// DiscoveryError means every catalog endpoint of a Shopify store failed
// below HTTP and the HTML fallback found nothing.
type DiscoveryError struct {
	Store string
	Err   error
}

func (e DiscoveryError) Error() string {
	return fmt.Sprintf("%s: store unreachable: %v", e.Store, e.Err)
}

func (e DiscoveryError) Unwrap() error {
	return e.Err
}

// errorTypeLabel maps terminal errors to a metrics label, deferring to the
// client's request classification.
func errorTypeLabel(err error) string {
	var validation ValidationError
	if errors.As(err, &validation) {
		return "validation"
	}
	var unsupported PlatformUnsupportedError
	if errors.As(err, &unsupported) {
		return string(unsupported.Reason)
	}
	var discovery DiscoveryError
	if errors.As(err, &discovery) {
		return "unreachable"
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	return client.Label(err)
}

// transportFailure reports whether a request error happened below HTTP.
func transportFailure(err error) bool {
	return err != nil && client.StatusCode(err) == 0 && !errors.Is(err, context.Canceled)
}
