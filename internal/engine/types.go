package engine

import (
	"context"
	"time"

	"github.com/shyamanurag/trading-system-new-sub000/internal/lifecycle"
	"github.com/shyamanurag/trading-system-new-sub000/internal/strategy"
)

// SignalSource supplies one batch of proposed signals per cycle. Strategy
// internals are external collaborators; the engine only consumes output.
type SignalSource interface {
	PendingSignals(ctx context.Context) ([]strategy.Signal, error)
}

// RegimeSource supplies the classifier's current market regime.
type RegimeSource interface {
	CurrentRegime(ctx context.Context) (strategy.MarketRegime, error)
}

// MarketData supplies current per-instrument readings from the external
// market-data cache.
type MarketData interface {
	Tick(instrument string) (lifecycle.Tick, bool)
}

// Config carries the driver-level settings. Trading thresholds live with
// the components they govern.
type Config struct {
	CycleInterval    time.Duration
	SignalTTL        time.Duration
	DefaultStopPct   float64 // protective stop for new entries, percent of fill
	DefaultTargetPct float64 // profit target for new entries, percent of fill
}
