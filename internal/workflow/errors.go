package workflow

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// FailureKind classifies a delivery failure at the point it occurs, so
// retriability never depends on matching error message text.
type FailureKind int

const (
	// KindTimeout covers attempt deadlines and network timeouts.
	KindTimeout FailureKind = iota
	// KindConnectionFailed covers dial and transport-level errors.
	KindConnectionFailed
	// KindHTTPStatus covers non-2xx responses; StatusCode carries the code.
	KindHTTPStatus
	// KindAuthConfigMissing covers unusable webhook auth configuration.
	KindAuthConfigMissing
)

func (k FailureKind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindConnectionFailed:
		return "connection_failed"
	case KindHTTPStatus:
		return "http_status"
	case KindAuthConfigMissing:
		return "auth_config_missing"
	default:
		return "unknown"
	}
}

// DeliveryError is a classified webhook delivery failure.
type DeliveryError struct {
	Kind       FailureKind
	StatusCode int
	Err        error
}

func (e *DeliveryError) Error() string {
	switch e.Kind {
	case KindTimeout:
		return fmt.Sprintf("webhook request timed out: %v", e.Err)
	case KindHTTPStatus:
		return fmt.Sprintf("webhook returned HTTP %d", e.StatusCode)
	case KindAuthConfigMissing:
		return fmt.Sprintf("webhook auth configuration incomplete: %v", e.Err)
	default:
		return fmt.Sprintf("webhook connection failed: %v", e.Err)
	}
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// classify wraps a transport error from an attempt into a DeliveryError.
func classify(err error) *DeliveryError {
	if errors.Is(err, context.DeadlineExceeded) {
		return &DeliveryError{Kind: KindTimeout, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &DeliveryError{Kind: KindTimeout, Err: err}
	}
	return &DeliveryError{Kind: KindConnectionFailed, Err: err}
}

// IsRetriable reports whether the classified failure warrants another
// attempt: connection errors, timeouts, and HTTP 408/425/429/5xx.
func IsRetriable(err error) bool {
	var delivery *DeliveryError
	if !errors.As(err, &delivery) {
		return false
	}
	switch delivery.Kind {
	case KindTimeout, KindConnectionFailed:
		return true
	case KindHTTPStatus:
		return retriableStatus(delivery.StatusCode)
	default:
		return false
	}
}

func retriableStatus(code int) bool {
	switch code {
	case 408, 425, 429:
		return true
	}
	return code >= 500 && code <= 599
}

// sleepWithContext blocks for the given duration, returning early if the
// context is cancelled.
func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
