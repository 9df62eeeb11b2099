package panel

import (
	"context"
	"errors"
	"fmt"
	"net"
)

var (
	ErrClientNotFound   = errors.New("client credential not found on panel")
	ErrPanelNotFound    = errors.New("panel not found in pool")
	ErrNoPanelAvailable = errors.New("no panel available for assignment")
	ErrLoginFailed      = errors.New("panel login failed")
	ErrCircuitOpen      = errors.New("panel circuit breaker is open")
	ErrInvalidResponse  = errors.New("invalid panel response")
)

// RetryableError marks a failure as transient: network errors, timeouts,
// rate limits and 5xx responses. The provisioning queue retries these with
// backoff up to its attempt budget.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("retryable panel error: %v", e.Err)
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// PermanentError marks a failure the panel will keep rejecting, such as a
// semantically invalid credential spec. The subscription is cancelled instead
// of retried.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("permanent panel error: %v", e.Err)
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Retryable wraps err as transient. Returns nil for nil input.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &RetryableError{Err: err}
}

// Permanent wraps err as terminal. Returns nil for nil input.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsRetryable reports whether the error should be retried with backoff.
// Unclassified network and context-deadline failures count as retryable so a
// lost response is never treated as success.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var re *RetryableError
	if errors.As(err, &re) {
		return true
	}
	var pe *PermanentError
	if errors.As(err, &pe) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// IsPermanent reports whether the error is a terminal rejection.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}
