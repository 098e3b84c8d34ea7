package dispatch

import (
	"context"
	"time"

	"github.com/shyamanurag/trading-system-new-sub000/pkg/broker"
)

// Outcome classifies a dispatch attempt.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeRetryable
	OutcomeFatal
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "SUCCESS"
	case OutcomeRetryable:
		return "RETRYABLE"
	default:
		return "FATAL"
	}
}

// Classify maps a broker error to an outcome.
func Classify(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeSuccess
	case broker.IsTransient(err):
		return OutcomeRetryable
	default:
		return OutcomeFatal
	}
}

// RetryPolicy bounds how many times a transient failure is retried and how
// long to back off between attempts. Backoff doubles per attempt.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
}

// DefaultRetryPolicy matches the engine defaults.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, Backoff: 500 * time.Millisecond}
}

// Do runs fn until success, a fatal error, attempt exhaustion, or context
// cancellation. It returns the last error and its outcome.
func (p RetryPolicy) Do(ctx context.Context, fn func() error) (Outcome, error) {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	backoff := p.Backoff

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn()
		outcome := Classify(err)
		if outcome != OutcomeRetryable {
			return outcome, err
		}
		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return OutcomeRetryable, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return OutcomeRetryable, err
}
