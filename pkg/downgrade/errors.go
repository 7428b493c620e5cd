package downgrade

import "errors"

var (
	ErrNotDowngrade    = errors.New("requested plan is not a downgrade")
	ErrMissingMerchant = errors.New("merchant id is required")
	ErrNegativeLimit   = errors.New("product limit cannot be negative")
)
