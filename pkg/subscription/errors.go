package subscription

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound             = errors.New("subscription not found")
	ErrInvalidStatus        = errors.New("invalid subscription status")
	ErrInvalidTransition    = errors.New("invalid subscription status transition")
	ErrStatusChanged        = errors.New("subscription status changed concurrently")
	ErrMissingMerchantID    = errors.New("merchant id is required")
	ErrProductNotFound      = errors.New("published product not found")
	ErrProductLimitReached  = errors.New("product publishing limit reached")
	ErrAlreadyPublished     = errors.New("product already published")
	ErrNoActiveSubscription = errors.New("no active subscription")
	ErrChangeRequestMissing = errors.New("plan change request not found")

	// ErrPersistence matches every *PersistenceError.
	ErrPersistence = errors.New("subscription store failure")
)

// PersistenceError wraps a backing-store fault together with the operation that hit it.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("subscription store: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrPersistence) hold for any PersistenceError.
func (e *PersistenceError) Is(target error) bool {
	return target == ErrPersistence
}

// IsPersistenceError reports whether err carries a backing-store fault.
func IsPersistenceError(err error) bool {
	return errors.Is(err, ErrPersistence)
}
