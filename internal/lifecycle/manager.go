package lifecycle

import (
	"log"
	"math"
	"time"

	"github.com/shyamanurag/trading-system-new-sub000/internal/closure"
	"github.com/shyamanurag/trading-system-new-sub000/internal/events"
	"github.com/shyamanurag/trading-system-new-sub000/internal/strategy"
)

// ProfitTier books a fraction of the position once profit reaches the
// trigger percentage. Each tier fires at most once per position.
type ProfitTier struct {
	TriggerPct   float64
	BookFraction float64
}

// Config holds all lifecycle evaluation thresholds. Numbers here are
// configuration defaults, not engine constants.
type Config struct {
	// Emergency stop: unconditional full exit, checked before anything else.
	EmergencyLossAbs float64 // absolute currency loss (₹)
	EmergencyLossPct float64 // percentage loss on entry

	// Partial profit booking.
	Tiers []ProfitTier

	// Closure-phase overrides.
	GradualTierFactor   float64 // GRADUAL/URGENT multiply tier triggers (<1 books earlier)
	UrgentFractionBoost float64 // URGENT multiplies booked fractions (>1 books more)
	UrgentLossPct       float64 // URGENT force-closes losers beyond this

	// Stop tightening.
	BreakevenTriggerPct float64 // profit pct that moves the stop to breakeven-plus
	BreakevenBufferPct  float64 // buffer beyond entry, in percent of entry
	VolTightenThreshold float64 // realized volatility (pct) that triggers extra tightening
	VolLockFraction     float64 // fraction of the open move locked under high volatility
	AgeTightenAfter     time.Duration
	AgeLockStep         float64 // fraction of the move locked per elapsed AgeTightenAfter
	AgeLockMax          float64 // cap on the age-based locked fraction

	// Scaling.
	ScaleMaxAge      time.Duration
	ScaleMomentumPct float64 // minimum profit pct before scaling
	ScaleVolumeRatio float64 // minimum volume confirmation ratio
	ScaleMaxFraction float64 // cumulative scale cap as fraction of original size
}

// DefaultConfig returns the stock lifecycle thresholds.
func DefaultConfig() Config {
	return Config{
		EmergencyLossAbs:    2500,
		EmergencyLossPct:    2.5,
		Tiers:               []ProfitTier{{TriggerPct: 15, BookFraction: 0.5}, {TriggerPct: 25, BookFraction: 0.5}},
		GradualTierFactor:   0.6,
		UrgentFractionBoost: 1.5,
		UrgentLossPct:       0.75,
		BreakevenTriggerPct: 8,
		BreakevenBufferPct:  0.5,
		VolTightenThreshold: 3,
		VolLockFraction:     0.5,
		AgeTightenAfter:     45 * time.Minute,
		AgeLockStep:         0.2,
		AgeLockMax:          0.8,
		ScaleMaxAge:         10 * time.Minute,
		ScaleMomentumPct:    5,
		ScaleVolumeRatio:    1.5,
		ScaleMaxFraction:    0.5,
	}
}

// Tick is the market reading a position is evaluated against.
type Tick struct {
	Price       float64
	VolumeRatio float64 // current volume over recent average; 0 when unknown
	Volatility  float64 // realized volatility in percent; 0 when unknown
}

// Manager evaluates open positions against stop, target, time, and
// volatility rules and emits management actions. It mutates the passed
// position copy (stop level, booked tiers, last price); quantity changes
// are applied by the driver only after dispatch confirmation.
type Manager struct {
	cfg Config
	bus *events.Bus
}

// NewManager creates a lifecycle manager. bus may be nil.
func NewManager(cfg Config, bus *events.Bus) *Manager {
	return &Manager{cfg: cfg, bus: bus}
}

// Evaluate runs the management rule chain for one position at one tick.
// The first matching terminal rule wins for full exits; non-terminal rules
// (tier booking, stop tightening, scaling) may stack in a single tick.
func (m *Manager) Evaluate(pos *Position, tick Tick, phase closure.Phase, now time.Time) []Action {
	if pos == nil || pos.Quantity <= 0 || tick.Price <= 0 {
		return nil
	}
	defer func() { pos.LastPrice = tick.Price }()

	pnl := pos.UnrealizedPnL(tick.Price)
	profitPct := pos.ProfitPct(tick.Price)

	// 1. Emergency stop runs regardless of closure phase.
	if pnl < 0 {
		loss := -pnl
		if (m.cfg.EmergencyLossAbs > 0 && loss >= m.cfg.EmergencyLossAbs) ||
			(m.cfg.EmergencyLossPct > 0 && -profitPct >= m.cfg.EmergencyLossPct) {
			log.Printf("lifecycle: EMERGENCY STOP %s loss=%.2f (%.2f%%)", pos.Instrument, loss, -profitPct)
			m.publish(events.TopicCriticalAlert, pos.Instrument, "emergency stop triggered")
			return []Action{m.fullExit(pos, tick.Price, ReasonEmergencyStop)}
		}
	}

	// Session end: everything closes, profitable or not.
	if phase == closure.PhaseImmediate {
		return []Action{m.fullExit(pos, tick.Price, ReasonSessionClose)}
	}

	// URGENT force-closes losers beyond a small threshold.
	if phase == closure.PhaseUrgent && profitPct < 0 && -profitPct >= m.cfg.UrgentLossPct {
		return []Action{m.fullExit(pos, tick.Price, ReasonUrgentLoss)}
	}

	// 2. Protective stop and target.
	if pos.StopHit(tick.Price) {
		return []Action{m.fullExit(pos, tick.Price, ReasonStopLossHit)}
	}
	if pos.TargetHit(tick.Price) {
		return []Action{m.fullExit(pos, tick.Price, ReasonTargetHit)}
	}

	var actions []Action

	// 3. Partial profit tiers. Every emitted partial exit must result in a
	// real quantity reduction dispatch; booking the tier here keeps it
	// idempotent even if the dispatch is retried.
	remaining := pos.Quantity
	for _, tier := range m.cfg.Tiers {
		trigger := tier.TriggerPct
		fraction := tier.BookFraction
		if phase == closure.PhaseGradual || phase == closure.PhaseUrgent {
			trigger *= m.cfg.GradualTierFactor
		}
		if phase == closure.PhaseUrgent {
			fraction = math.Min(1, fraction*m.cfg.UrgentFractionBoost)
		}
		if profitPct < trigger || pos.TierBooked(tier.TriggerPct) {
			continue
		}
		qty := fraction * remaining
		if qty <= 0 {
			continue
		}
		pos.BookTier(tier.TriggerPct)
		remaining -= qty
		actions = append(actions, Action{
			Instrument:  pos.Instrument,
			StrategyID:  pos.StrategyID,
			Direction:   pos.Direction,
			Kind:        ActionPartialExit,
			Quantity:    qty,
			Price:       tick.Price,
			TierTrigger: tier.TriggerPct,
			Reason:      ReasonProfitTier,
			Priority:    true,
		})
	}

	// 4. Monotonic stop tightening.
	if newStop, ok := m.tightenedStop(pos, tick, profitPct, now); ok {
		pos.StopLoss = newStop
		actions = append(actions, Action{
			Instrument: pos.Instrument,
			StrategyID: pos.StrategyID,
			Direction:  pos.Direction,
			Kind:       ActionAdjustStop,
			Price:      tick.Price,
			NewStop:    newStop,
			Reason:     ReasonStopTightened,
			Priority:   true,
		})
	}

	// 5. Scaling into young, confirmed winners. Only in NORMAL phase: the
	// arbitrator already blocks new exposure once closure begins.
	if phase == closure.PhaseNormal {
		if qty := m.scaleQty(pos, tick, profitPct, now); qty > 0 {
			actions = append(actions, Action{
				Instrument: pos.Instrument,
				StrategyID: pos.StrategyID,
				Direction:  pos.Direction,
				Kind:       ActionScale,
				Quantity:   qty,
				Price:      tick.Price,
				Reason:     ReasonScaleIn,
				Priority:   true,
			})
		}
	}

	return actions
}

// tightenedStop returns the most favorable stop candidate that improves on
// the current stop. Candidates never loosen an existing stop.
func (m *Manager) tightenedStop(pos *Position, tick Tick, profitPct float64, now time.Time) (float64, bool) {
	if profitPct <= 0 {
		return 0, false
	}

	var candidates []float64

	// Breakeven plus buffer once profit clears the trigger.
	if m.cfg.BreakevenTriggerPct > 0 && profitPct >= m.cfg.BreakevenTriggerPct {
		candidates = append(candidates, m.stopAtLockedFraction(pos, tick.Price, 0, m.cfg.BreakevenBufferPct))
	}

	// Elevated realized volatility locks in part of the open move.
	if m.cfg.VolTightenThreshold > 0 && tick.Volatility >= m.cfg.VolTightenThreshold {
		candidates = append(candidates, m.stopAtLockedFraction(pos, tick.Price, m.cfg.VolLockFraction, 0))
	}

	// Aging positions lock progressively more.
	if m.cfg.AgeTightenAfter > 0 {
		steps := float64(now.Sub(pos.OpenedAt) / m.cfg.AgeTightenAfter)
		if steps >= 1 {
			lock := math.Min(m.cfg.AgeLockMax, m.cfg.AgeLockStep*steps)
			candidates = append(candidates, m.stopAtLockedFraction(pos, tick.Price, lock, 0))
		}
	}

	best := 0.0
	for _, c := range candidates {
		if pos.BetterStop(c) && (best == 0 || pos.directionFavors(c, best)) {
			best = c
		}
	}
	return best, best != 0
}

// stopAtLockedFraction computes a stop that locks `fraction` of the move
// from entry to price, offset by bufferPct of the entry price.
func (m *Manager) stopAtLockedFraction(pos *Position, price, fraction, bufferPct float64) float64 {
	buffer := pos.AvgEntry * bufferPct / 100
	if pos.Direction == strategy.DirectionShort {
		move := pos.AvgEntry - price
		return pos.AvgEntry - move*fraction - buffer
	}
	move := price - pos.AvgEntry
	return pos.AvgEntry + move*fraction + buffer
}

// directionFavors reports whether a is a tighter stop than b for this
// position's direction.
func (p *Position) directionFavors(a, b float64) bool {
	if p.Direction == strategy.DirectionShort {
		return a < b
	}
	return a > b
}

// scaleQty returns the additional quantity to add, or 0 when scaling rules
// do not apply. The cumulative add is capped at ScaleMaxFraction of the
// original size.
func (m *Manager) scaleQty(pos *Position, tick Tick, profitPct float64, now time.Time) float64 {
	if m.cfg.ScaleMaxFraction <= 0 {
		return 0
	}
	if now.Sub(pos.OpenedAt) > m.cfg.ScaleMaxAge {
		return 0
	}
	if profitPct < m.cfg.ScaleMomentumPct {
		return 0
	}
	if tick.VolumeRatio < m.cfg.ScaleVolumeRatio {
		return 0
	}
	headroom := pos.OriginalQty*m.cfg.ScaleMaxFraction - pos.ScaledQty
	if headroom <= 1e-9 {
		return 0
	}
	return headroom
}

func (m *Manager) fullExit(pos *Position, price float64, reason Reason) Action {
	return Action{
		Instrument: pos.Instrument,
		StrategyID: pos.StrategyID,
		Direction:  pos.Direction,
		Kind:       ActionFullExit,
		Quantity:   pos.Quantity,
		Price:      price,
		Reason:     reason,
		Priority:   true,
	}
}

func (m *Manager) publish(topic events.Topic, instrument string, detail string) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(topic, map[string]string{"instrument": instrument, "detail": detail})
}
