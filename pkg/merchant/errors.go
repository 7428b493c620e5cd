package merchant

import "errors"

var ErrInvalidShop = errors.New("invalid shop domain")
