package billing

import (
	"errors"
	"fmt"
)

var (
	ErrProvider           = errors.New("billing provider error")
	ErrUsageRecord        = errors.New("usage record rejected")
	ErrInvalidShopDomain  = errors.New("invalid shop domain")
	ErrMissingAccessToken = errors.New("shop access token not available")
	ErrMissingReturnURL   = errors.New("return URL is required")
	ErrNoConfirmationURL  = errors.New("no confirmation URL returned from provider")
	ErrChargeNotFound     = errors.New("charge not found at provider")
)

// ProviderError carries a provider rejection or transport failure.
// Message is the provider's own text when it sent one.
type ProviderError struct {
	Op         string
	Message    string
	Field      []string
	StatusCode int   // HTTP status when the call reached the provider
	Err        error // transport or decoding cause, if any
}

func (e *ProviderError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("billing: %s: %s", e.Op, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("billing: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("billing: %s: status %d", e.Op, e.StatusCode)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrProvider) hold for any ProviderError.
func (e *ProviderError) Is(target error) bool { return target == ErrProvider }

// UsageRecordError reports a failed usage record submission.
// Whether to retry is left to the caller; StatusCode and Message say what happened.
type UsageRecordError struct {
	LineItemID string
	Message    string
	Field      []string
	StatusCode int
	Err        error
}

func (e *UsageRecordError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	return fmt.Sprintf("billing: usage record for %s: %s", e.LineItemID, msg)
}

func (e *UsageRecordError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrUsageRecord) hold for any UsageRecordError.
func (e *UsageRecordError) Is(target error) bool { return target == ErrUsageRecord }
