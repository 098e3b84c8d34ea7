package lifecycle

import (
	"time"

	"github.com/shyamanurag/trading-system-new-sub000/internal/strategy"
)

// Position is the authoritative unit the lifecycle manager owns. Created on
// dispatch confirmation of an opening signal, mutated every monitoring tick,
// removed on full-exit confirmation.
type Position struct {
	Instrument  string
	StrategyID  string
	Direction   strategy.Direction
	Quantity    float64
	OriginalQty float64 // size at open, before scaling and partial exits
	ScaledQty   float64 // cumulative quantity added by scaling
	AvgEntry    float64
	StopLoss    float64
	Target      float64
	OpenedAt    time.Time
	BookedTiers map[float64]bool // profit tier trigger pct -> booked
	LastPrice   float64
	Recovered   bool // synthesized by reconciliation, not opened by a signal
}

// UnrealizedPnL returns the open profit in currency units at price.
func (p *Position) UnrealizedPnL(price float64) float64 {
	if p.Direction == strategy.DirectionShort {
		return (p.AvgEntry - price) * p.Quantity
	}
	return (price - p.AvgEntry) * p.Quantity
}

// ProfitPct returns the open profit as a percentage of entry price,
// positive when the position is in profit.
func (p *Position) ProfitPct(price float64) float64 {
	if p.AvgEntry == 0 {
		return 0
	}
	pct := (price - p.AvgEntry) / p.AvgEntry * 100
	if p.Direction == strategy.DirectionShort {
		pct = -pct
	}
	return pct
}

// StopHit reports whether price has crossed the protective stop.
func (p *Position) StopHit(price float64) bool {
	if p.StopLoss == 0 {
		return false
	}
	if p.Direction == strategy.DirectionShort {
		return price >= p.StopLoss
	}
	return price <= p.StopLoss
}

// TargetHit reports whether price has reached the profit target.
func (p *Position) TargetHit(price float64) bool {
	if p.Target == 0 {
		return false
	}
	if p.Direction == strategy.DirectionShort {
		return price <= p.Target
	}
	return price >= p.Target
}

// BetterStop reports whether candidate is more favorable than the current
// stop. Stops only ever tighten in the position's favor.
func (p *Position) BetterStop(candidate float64) bool {
	if candidate <= 0 {
		return false
	}
	if p.StopLoss == 0 {
		return true
	}
	if p.Direction == strategy.DirectionShort {
		return candidate < p.StopLoss
	}
	return candidate > p.StopLoss
}

// TierBooked reports whether a profit tier has already fired.
func (p *Position) TierBooked(triggerPct float64) bool {
	return p.BookedTiers[triggerPct]
}

// BookTier marks a profit tier as fired. Idempotent.
func (p *Position) BookTier(triggerPct float64) {
	if p.BookedTiers == nil {
		p.BookedTiers = make(map[float64]bool)
	}
	p.BookedTiers[triggerPct] = true
}

// UnbookTier clears a booked tier so its reduction can be re-emitted.
// Used when the partial-exit dispatch never reached the broker.
func (p *Position) UnbookTier(triggerPct float64) {
	delete(p.BookedTiers, triggerPct)
}

// ExitSide returns the order side that reduces this position.
func (p *Position) ExitSide() strategy.Direction {
	return p.Direction.Opposite()
}

// Clone returns a deep copy safe to mutate independently.
func (p *Position) Clone() *Position {
	cp := *p
	if p.BookedTiers != nil {
		cp.BookedTiers = make(map[float64]bool, len(p.BookedTiers))
		for k, v := range p.BookedTiers {
			cp.BookedTiers[k] = v
		}
	}
	return &cp
}
