// Package merchant resolves which Shopify store a request belongs to.
//
// The shop's permanent *.myshopify.com domain is the merchant identifier used
// by every other package. Authentication itself happens upstream; this
// package only reads and validates the identity it left on the request.
package merchant
