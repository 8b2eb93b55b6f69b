package genmedia

import (
	"errors"

	"github.com/feitianbubu/genmedia/providers"
)

// Common errors
var (
	ErrUnknownProvider      = errors.New("unknown provider")
	ErrInvalidConfiguration = providers.ErrInvalidConfiguration
	ErrTimedOut             = providers.ErrTimedOut
)

// Typed errors surface unchanged from the vendor clients, so callers only
// ever import this package.

// APIError represents an error returned by a vendor API, either an HTTP
// failure or a vendor-level error code carried inside a 2xx response
type APIError = providers.APIError

// ValidationError represents a request validation error
type ValidationError = providers.ValidationError

// UnsupportedOperationError is returned when a caller invokes a capability
// the provider does not have
type UnsupportedOperationError = providers.UnsupportedOperationError

// DownloadError represents a failed result fetch after generation succeeded
type DownloadError = providers.DownloadError

// IsRetryableError determines if an error is worth retrying
func IsRetryableError(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		// Retry on server errors (5xx) and rate limiting (429)
		return apiErr.StatusCode >= 500 || apiErr.StatusCode == 429
	}
	return errors.Is(err, ErrTimedOut)
}

// IsUnsupported reports whether the error is a missing-capability failure
func IsUnsupported(err error) bool {
	var unsupportedErr *UnsupportedOperationError
	return errors.As(err, &unsupportedErr)
}
