package errors

import (
	"context"
	"errors"
)

// CheckContext returns an error if the context is canceled or timed out.
// This provides a standardized way to check and wrap context errors.
func CheckContext(ctx context.Context, operation string) error {
	if err := ctx.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return Wrap(err, Timeout, operation+" timed out")
		}
		return Wrap(err, Canceled, operation+" canceled")
	}
	return nil
}

// CodeOf extracts the ErrorCode from an error chain, or Unknown if the
// chain contains no coded error.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code()
	}
	return Unknown
}

// IsProviderError reports whether the error represents a failed provider
// call (including rate limits, auth failures and timeouts) rather than a
// configuration or storage problem.
func IsProviderError(err error) bool {
	switch CodeOf(err) {
	case ProviderFailed, RateLimitExceeded, AuthFailed, Timeout, InvalidResponse:
		return true
	}
	return false
}
