package broker

import (
	"context"
	"errors"
	"fmt"
)

// ErrTransient marks broker failures worth retrying (network hiccups,
// throttling, timeouts). Wrap with Transientf or compare with IsTransient.
var ErrTransient = errors.New("transient broker error")

// Transientf wraps a formatted error as transient.
func Transientf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrTransient}, args...)...)
}

// IsTransient reports whether err should be retried. Context deadline
// expiry counts as transient: the call may succeed on the next attempt.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient) || errors.Is(err, context.DeadlineExceeded)
}
