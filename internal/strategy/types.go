package strategy

import "time"

// Direction denotes the side of exposure a signal proposes.
type Direction string

const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
)

// Opposite returns the other direction.
func (d Direction) Opposite() Direction {
	if d == DirectionLong {
		return DirectionShort
	}
	return DirectionLong
}

// Signal is a strategy's proposal to open or adjust exposure on an
// instrument. Signals are immutable once created and consumed exactly once:
// either approved and dispatched, or rejected.
type Signal struct {
	ID          string
	Instrument  string
	StrategyID  string
	Direction   Direction
	Quantity    float64
	Price       float64 // reference price at generation time
	Confidence  float64 // 0-10
	GeneratedAt time.Time
	TTL         time.Duration // 0 means use the engine default
}

// Expired reports whether the signal is older than its TTL at now.
func (s Signal) Expired(now time.Time, defaultTTL time.Duration) bool {
	ttl := s.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if ttl <= 0 {
		return false
	}
	return now.Sub(s.GeneratedAt) > ttl
}

// Regime classifies the current market character.
type Regime string

const (
	RegimeTrendingUp   Regime = "TRENDING_UP"
	RegimeTrendingDown Regime = "TRENDING_DOWN"
	RegimeRanging      Regime = "RANGING"
	RegimeChoppy       Regime = "CHOPPY"
	RegimeVolatile     Regime = "VOLATILE_RANGING"
)

// MarketRegime is the classifier's output consumed by the arbitrator.
// Its computation is external; the engine only reads it.
type MarketRegime struct {
	Regime     Regime
	Confidence float64
	AsOf       time.Time
}

// Stale reports whether the regime reading is older than maxAge at now.
func (r MarketRegime) Stale(now time.Time, maxAge time.Duration) bool {
	if r.Regime == "" {
		return true
	}
	if maxAge <= 0 {
		return false
	}
	return now.Sub(r.AsOf) > maxAge
}
