package arbitration

import (
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/shyamanurag/trading-system-new-sub000/internal/closure"
	"github.com/shyamanurag/trading-system-new-sub000/internal/events"
	"github.com/shyamanurag/trading-system-new-sub000/internal/ownership"
	"github.com/shyamanurag/trading-system-new-sub000/internal/strategy"
)

// AdmissionGate is an additional predicate a collaborator (e.g. the daily
// loss limit) supplies; when it denies, all new approvals are vetoed.
type AdmissionGate interface {
	Allow() (bool, string)
}

// PositionBook reports open exposure. An instrument that already carries a
// position never admits a second entry, whatever strategy proposes it.
type PositionBook interface {
	Has(instrument string) bool
}

// Rejection explains why a signal was not approved.
type Rejection struct {
	Signal strategy.Signal
	Reason string
}

// Arbitrator turns a batch of proposed signals into a conflict-free,
// priority-ordered subset. On approval it writes the ownership record for
// the winning instrument/strategy pair.
type Arbitrator struct {
	matrix       *strategy.PriorityMatrix // nil degrades to pass-through
	ledger       *ownership.Ledger
	positions    PositionBook  // may be nil
	gate         AdmissionGate // may be nil
	bus          *events.Bus   // may be nil
	ttl          time.Duration
	regimeMaxAge time.Duration
}

// New creates an arbitrator. A nil matrix puts it permanently in degraded
// pass-through mode.
func New(matrix *strategy.PriorityMatrix, ledger *ownership.Ledger, positions PositionBook, gate AdmissionGate, bus *events.Bus, signalTTL, regimeMaxAge time.Duration) *Arbitrator {
	return &Arbitrator{
		matrix:       matrix,
		ledger:       ledger,
		positions:    positions,
		gate:         gate,
		bus:          bus,
		ttl:          signalTTL,
		regimeMaxAge: regimeMaxAge,
	}
}

// Arbitrate filters, resolves, and approves signals for one cycle. The
// returned slice is ordered deterministically: higher priority first, then
// higher confidence, then earlier creation, then strategy id.
func (a *Arbitrator) Arbitrate(signals []strategy.Signal, regime strategy.MarketRegime, phase closure.Phase, now time.Time) ([]strategy.Signal, []Rejection) {
	if len(signals) == 0 {
		return nil, nil
	}

	var rejections []Rejection
	reject := func(s strategy.Signal, reason string) {
		rejections = append(rejections, Rejection{Signal: s, Reason: reason})
		log.Printf("arbitration: rejected %s %s %s: %s", s.StrategyID, s.Direction, s.Instrument, reason)
		if a.bus != nil {
			a.bus.Publish(events.TopicSignalRejected, Rejection{Signal: s, Reason: reason})
		}
	}

	// New exposure is never admitted once closure begins.
	if phase != closure.PhaseNormal {
		for _, s := range signals {
			reject(s, fmt.Sprintf("closure phase %s blocks new entries", phase))
		}
		return nil, rejections
	}

	if a.gate != nil {
		if ok, reason := a.gate.Allow(); !ok {
			for _, s := range signals {
				reject(s, "admission gate: "+reason)
			}
			return nil, rejections
		}
	}

	// Stale-input filters apply even in degraded mode.
	candidates := signals[:0:0]
	for _, s := range signals {
		if s.Expired(now, a.ttl) {
			reject(s, "signal expired")
			continue
		}
		// One position per instrument. A repeat signal from the owning
		// strategy would otherwise sail through the ownership check and
		// double the broker exposure.
		if a.positions != nil && a.positions.Has(s.Instrument) {
			reject(s, "instrument already has an open position")
			continue
		}
		if owner, age, ok := a.ledger.Owner(s.Instrument, now); ok && owner != s.StrategyID && age < a.ledger.Timeout() {
			reject(s, fmt.Sprintf("instrument owned by %s (age %s)", owner, age.Round(time.Second)))
			continue
		}
		candidates = append(candidates, s)
	}
	if len(candidates) == 0 {
		return nil, rejections
	}

	// Without a usable priority table the arbitrator degrades to
	// pass-through rather than blocking all trading. Loudly.
	degraded := a.matrix == nil || a.matrix.Regimes() == 0 || regime.Stale(now, a.regimeMaxAge)
	if degraded {
		log.Printf("arbitration: DEGRADED pass-through mode (regime=%q stale=%v matrix=%v), %d signals approved without conflict resolution",
			regime.Regime, regime.Stale(now, a.regimeMaxAge), a.matrix != nil, len(candidates))
		approved := a.acquireAll(candidates, now, reject)
		return approved, rejections
	}

	// Drop strategies disabled for this regime.
	prioritized := candidates[:0:0]
	for _, s := range candidates {
		p, ok := a.matrix.Priority(regime.Regime, s.StrategyID)
		if !ok || p == 0 {
			reject(s, fmt.Sprintf("strategy disabled in regime %s", regime.Regime))
			continue
		}
		prioritized = append(prioritized, s)
	}

	// Group by instrument and resolve directional conflicts.
	groups := make(map[string][]strategy.Signal)
	var order []string
	for _, s := range prioritized {
		if _, seen := groups[s.Instrument]; !seen {
			order = append(order, s.Instrument)
		}
		groups[s.Instrument] = append(groups[s.Instrument], s)
	}
	sort.Strings(order)

	var approved []strategy.Signal
	for _, instrument := range order {
		group := groups[instrument]
		winners := group
		if conflicting(group) {
			a.sortByPrecedence(group, regime.Regime)
			winner := group[0]
			winners = []strategy.Signal{winner}
			for _, loser := range group[1:] {
				reject(loser, fmt.Sprintf("lost conflict on %s to %s", instrument, winner.StrategyID))
			}
			wp, _ := a.matrix.Priority(regime.Regime, winner.StrategyID)
			log.Printf("arbitration: conflict on %s resolved for %s %s (priority=%d confidence=%.1f)",
				instrument, winner.StrategyID, winner.Direction, wp, winner.Confidence)
			if a.bus != nil {
				a.bus.Publish(events.TopicConflictResolved, winner)
			}
		}
		approved = append(approved, winners...)
	}

	a.sortByPrecedence(approved, regime.Regime)
	approved = a.acquireAll(approved, now, reject)
	return approved, rejections
}

// acquireAll writes ownership for each approval, dropping any signal whose
// claim races with an existing owner.
func (a *Arbitrator) acquireAll(signals []strategy.Signal, now time.Time, reject func(strategy.Signal, string)) []strategy.Signal {
	approved := signals[:0:0]
	for _, s := range signals {
		if !a.ledger.Acquire(s.Instrument, s.StrategyID, now) {
			reject(s, "ownership acquire failed")
			continue
		}
		approved = append(approved, s)
		if a.bus != nil {
			a.bus.Publish(events.TopicSignalApproved, s)
		}
	}
	return approved
}

// conflicting reports whether a group proposes both directions.
func conflicting(group []strategy.Signal) bool {
	if len(group) < 2 {
		return false
	}
	first := group[0].Direction
	for _, s := range group[1:] {
		if s.Direction != first {
			return true
		}
	}
	return false
}

// sortByPrecedence orders signals by the documented tie-break chain:
// regime priority, confidence, creation time, strategy id. The final key
// exists only to make the ordering total and reproducible.
func (a *Arbitrator) sortByPrecedence(signals []strategy.Signal, regime strategy.Regime) {
	sort.SliceStable(signals, func(i, j int) bool {
		pi, _ := a.matrix.Priority(regime, signals[i].StrategyID)
		pj, _ := a.matrix.Priority(regime, signals[j].StrategyID)
		if pi != pj {
			return pi > pj
		}
		if signals[i].Confidence != signals[j].Confidence {
			return signals[i].Confidence > signals[j].Confidence
		}
		if !signals[i].GeneratedAt.Equal(signals[j].GeneratedAt) {
			return signals[i].GeneratedAt.Before(signals[j].GeneratedAt)
		}
		return signals[i].StrategyID < signals[j].StrategyID
	})
}
