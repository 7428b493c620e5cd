package billing

import "errors"

var (
	ErrShopMismatch     = errors.New("charge belongs to a different shop")
	ErrNoUsageLineItem  = errors.New("subscription has no usage line item")
	ErrMissingOrder     = errors.New("order id is required")
	ErrMissingChargeID  = errors.New("charge id is required")
	ErrNotBillableState = errors.New("subscription is not active")
)
