package merchant

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ShopHeader is set by the upstream Shopify session layer.
const ShopHeader = "X-Shopify-Shop-Domain"

// MaxShopLength keeps identifiers within DNS label limits plus the myshopify suffix.
const MaxShopLength = 63 + len(".myshopify.com")

// shopRules accepts lowercase *.myshopify.com host names; Valid additionally
// requires a single label in front of the suffix.
const shopRules = "required,lowercase,fqdn,endswith=.myshopify.com"

var validate = validator.New()

// Resolver extracts the merchant's shop domain from a request.
// Returns empty string if none is present, error if the value is malformed.
type Resolver func(r *http.Request) (string, error)

// Valid reports whether shop is a permanent *.myshopify.com domain.
func Valid(shop string) bool {
	if len(shop) > MaxShopLength || strings.Count(shop, ".") != 2 {
		return false
	}
	return validate.Var(shop, shopRules) == nil
}

// Normalize lowercases and trims a shop domain.
func Normalize(shop string) string {
	return strings.ToLower(strings.TrimSpace(shop))
}

// NewHeaderResolver reads the shop from a header.
// Defaults to ShopHeader if headerName is empty.
func NewHeaderResolver(headerName string) Resolver {
	if headerName == "" {
		headerName = ShopHeader
	}

	return func(r *http.Request) (string, error) {
		value := Normalize(r.Header.Get(headerName))
		if value == "" {
			return "", nil
		}
		if !Valid(value) {
			return "", fmt.Errorf("%w: header value %q", ErrInvalidShop, value)
		}
		return value, nil
	}
}

// NewQueryResolver reads the shop from a query parameter, as Shopify does on
// app launch and billing return URLs.
func NewQueryResolver(param string) Resolver {
	if param == "" {
		param = "shop"
	}

	return func(r *http.Request) (string, error) {
		value := Normalize(r.URL.Query().Get(param))
		if value == "" {
			return "", nil
		}
		if !Valid(value) {
			return "", fmt.Errorf("%w: query value %q", ErrInvalidShop, value)
		}
		return value, nil
	}
}

// NewCompositeResolver tries resolvers in order and returns the first non-empty result.
func NewCompositeResolver(resolvers ...Resolver) Resolver {
	return func(r *http.Request) (string, error) {
		var errs []error
		for _, resolve := range resolvers {
			shop, err := resolve(r)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if shop != "" {
				return shop, nil
			}
		}
		if len(errs) > 0 {
			return "", errors.Join(errs...)
		}
		return "", nil
	}
}
