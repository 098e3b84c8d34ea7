package dispatch

import (
	"time"

	"golang.org/x/time/rate"
)

// Governor throttles the rate at which new-entry orders are released to the
// broker, enforcing the regulatory ceiling. Refill is continuous, so
// admissions do not burst at second boundaries. Management actions never
// pass through the governor.
type Governor struct {
	lim *rate.Limiter
}

// NewGovernor creates a governor admitting up to perSecond entries per
// second with a burst of at most one second's worth.
func NewGovernor(perSecond float64) *Governor {
	burst := int(perSecond)
	if burst < 1 {
		burst = 1
	}
	return &Governor{lim: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

// Admit reports whether one more new-entry dispatch may proceed at now.
// Denied items are queued for retry, not discarded.
func (g *Governor) Admit(now time.Time) bool {
	return g.lim.AllowN(now, 1)
}
