package arbitration

import (
	"testing"
	"time"

	"github.com/shyamanurag/trading-system-new-sub000/internal/closure"
	"github.com/shyamanurag/trading-system-new-sub000/internal/ownership"
	"github.com/shyamanurag/trading-system-new-sub000/internal/strategy"
)

func testMatrix() *strategy.PriorityMatrix {
	return strategy.NewPriorityMatrix(map[string]map[string]int{
		"TRENDING_UP": {
			"momentum_surfer": 8,
			"range_fader":     3,
			"mean_reverter":   5,
			"disabled_strat":  0,
		},
	})
}

func newTestArbitrator(gate AdmissionGate) (*Arbitrator, *ownership.Ledger) {
	ledger := ownership.NewLedger(5 * time.Minute)
	a := New(testMatrix(), ledger, nil, gate, nil, 2*time.Minute, time.Minute)
	return a, ledger
}

func freshRegime(now time.Time) strategy.MarketRegime {
	return strategy.MarketRegime{Regime: strategy.RegimeTrendingUp, Confidence: 8, AsOf: now}
}

func sig(id, instrument, strat string, dir strategy.Direction, conf float64, at time.Time) strategy.Signal {
	return strategy.Signal{
		ID: id, Instrument: instrument, StrategyID: strat,
		Direction: dir, Quantity: 10, Price: 100,
		Confidence: conf, GeneratedAt: at,
	}
}

func TestConflictResolvedByPriority(t *testing.T) {
	a, ledger := newTestArbitrator(nil)
	now := time.Now()

	// Higher priority wins even against higher confidence.
	buy := sig("s1", "RELIANCE", "momentum_surfer", strategy.DirectionLong, 7.0, now)
	sell := sig("s2", "RELIANCE", "range_fader", strategy.DirectionShort, 8.5, now)

	approved, rejected := a.Arbitrate([]strategy.Signal{sell, buy}, freshRegime(now), closure.PhaseNormal, now)
	if len(approved) != 1 || approved[0].ID != "s1" {
		t.Fatalf("approved %v, expected only s1", approved)
	}
	if len(rejected) != 1 || rejected[0].Signal.ID != "s2" {
		t.Fatalf("rejected %v, expected s2", rejected)
	}
	if owner, _, _ := ledger.Owner("RELIANCE", now); owner != "momentum_surfer" {
		t.Fatalf("winner should own the instrument, owner=%q", owner)
	}
}

func TestConflictTieBreakChain(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name   string
		a, b   strategy.Signal
		winner string
	}{
		{
			name:   "confidence breaks equal priority",
			a:      sig("a", "TCS", "mean_reverter", strategy.DirectionLong, 6.0, now),
			b:      sig("b", "TCS", "mean_reverter", strategy.DirectionShort, 7.5, now),
			winner: "b",
		},
		{
			name:   "earlier signal breaks equal confidence",
			a:      sig("a", "TCS", "mean_reverter", strategy.DirectionLong, 6.0, now.Add(-time.Second)),
			b:      sig("b", "TCS", "mean_reverter", strategy.DirectionShort, 6.0, now),
			winner: "a",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			arb, _ := newTestArbitrator(nil)
			approved, _ := arb.Arbitrate([]strategy.Signal{tt.a, tt.b}, freshRegime(now), closure.PhaseNormal, now)
			if len(approved) != 1 || approved[0].ID != tt.winner {
				t.Fatalf("approved %v, expected %s", approved, tt.winner)
			}
		})
	}
}

func TestArbitrationIsDeterministic(t *testing.T) {
	now := time.Now()
	batch := []strategy.Signal{
		sig("a", "INFY", "range_fader", strategy.DirectionLong, 5, now),
		sig("b", "RELIANCE", "momentum_surfer", strategy.DirectionLong, 7, now),
		sig("c", "TCS", "mean_reverter", strategy.DirectionShort, 6, now),
	}
	reversed := []strategy.Signal{batch[2], batch[1], batch[0]}

	arb1, _ := newTestArbitrator(nil)
	arb2, _ := newTestArbitrator(nil)
	got1, _ := arb1.Arbitrate(batch, freshRegime(now), closure.PhaseNormal, now)
	got2, _ := arb2.Arbitrate(reversed, freshRegime(now), closure.PhaseNormal, now)

	if len(got1) != len(got2) {
		t.Fatalf("approval counts differ: %d vs %d", len(got1), len(got2))
	}
	for i := range got1 {
		if got1[i].ID != got2[i].ID {
			t.Fatalf("order differs at %d: %s vs %s", i, got1[i].ID, got2[i].ID)
		}
	}
	// Highest priority first.
	if got1[0].StrategyID != "momentum_surfer" {
		t.Fatalf("highest priority should lead the batch, got %s", got1[0].StrategyID)
	}
}

func TestExpiredSignalsAlwaysRejected(t *testing.T) {
	a, _ := newTestArbitrator(nil)
	now := time.Now()

	stale := sig("old", "SBIN", "momentum_surfer", strategy.DirectionLong, 9, now.Add(-3*time.Minute))
	approved, rejected := a.Arbitrate([]strategy.Signal{stale}, freshRegime(now), closure.PhaseNormal, now)
	if len(approved) != 0 || len(rejected) != 1 {
		t.Fatalf("stale signal should be rejected, approved=%v", approved)
	}
}

func TestOwnedInstrumentBlocksRivalSignal(t *testing.T) {
	a, ledger := newTestArbitrator(nil)
	now := time.Now()
	ledger.Acquire("RELIANCE", "trend_rider", now)

	rival := sig("r", "RELIANCE", "momentum_surfer", strategy.DirectionLong, 9, now)
	approved, _ := a.Arbitrate([]strategy.Signal{rival}, freshRegime(now), closure.PhaseNormal, now.Add(time.Second))
	if len(approved) != 0 {
		t.Fatalf("rival signal on owned instrument should be rejected, got %v", approved)
	}

	// Same owner proposing again passes the ownership filter.
	own := sig("o", "RELIANCE", "momentum_surfer", strategy.DirectionLong, 9, now.Add(6*time.Minute))
	approved, _ = a.Arbitrate([]strategy.Signal{own}, freshRegime(now.Add(6*time.Minute)), closure.PhaseNormal, now.Add(6*time.Minute))
	if len(approved) != 1 {
		t.Fatal("timed-out claim should not block a new signal")
	}
}

type openBook map[string]bool

func (b openBook) Has(instrument string) bool { return b[instrument] }

func TestOpenPositionBlocksRepeatEntry(t *testing.T) {
	ledger := ownership.NewLedger(5 * time.Minute)
	a := New(testMatrix(), ledger, openBook{"RELIANCE": true}, nil, nil, 2*time.Minute, time.Minute)
	now := time.Now()
	ledger.Acquire("RELIANCE", "momentum_surfer", now)

	// The owning strategy proposing again passes the ownership filter but
	// must still be rejected: the instrument already carries a position.
	repeat := sig("r", "RELIANCE", "momentum_surfer", strategy.DirectionLong, 9, now)
	fresh := sig("f", "TCS", "momentum_surfer", strategy.DirectionLong, 7, now)
	approved, rejected := a.Arbitrate([]strategy.Signal{repeat, fresh}, freshRegime(now), closure.PhaseNormal, now)
	if len(approved) != 1 || approved[0].ID != "f" {
		t.Fatalf("approved %v, expected only the unheld instrument", approved)
	}
	if len(rejected) != 1 || rejected[0].Signal.ID != "r" {
		t.Fatalf("rejected %v, expected the repeat entry", rejected)
	}

	// The check holds in degraded mode too.
	stale := strategy.MarketRegime{Regime: strategy.RegimeTrendingUp, AsOf: now.Add(-5 * time.Minute)}
	approved, _ = a.Arbitrate([]strategy.Signal{repeat}, stale, closure.PhaseNormal, now)
	if len(approved) != 0 {
		t.Fatal("degraded pass-through must not duplicate an open position")
	}
}

func TestClosurePhaseBlocksNewEntries(t *testing.T) {
	a, _ := newTestArbitrator(nil)
	now := time.Now()
	s := sig("s", "TCS", "momentum_surfer", strategy.DirectionLong, 8, now)

	for _, phase := range []closure.Phase{closure.PhaseGradual, closure.PhaseUrgent, closure.PhaseImmediate} {
		approved, rejected := a.Arbitrate([]strategy.Signal{s}, freshRegime(now), phase, now)
		if len(approved) != 0 || len(rejected) != 1 {
			t.Fatalf("phase %s must reject all signals", phase)
		}
	}
}

func TestDisabledStrategyDropped(t *testing.T) {
	a, _ := newTestArbitrator(nil)
	now := time.Now()
	s := sig("s", "TCS", "disabled_strat", strategy.DirectionLong, 9, now)

	approved, rejected := a.Arbitrate([]strategy.Signal{s}, freshRegime(now), closure.PhaseNormal, now)
	if len(approved) != 0 || len(rejected) != 1 {
		t.Fatal("priority-zero strategy must be dropped")
	}
}

func TestStaleRegimeDegradesToPassThrough(t *testing.T) {
	a, _ := newTestArbitrator(nil)
	now := time.Now()
	staleRegime := strategy.MarketRegime{Regime: strategy.RegimeTrendingUp, AsOf: now.Add(-5 * time.Minute)}

	// Conflicting pair: degraded mode approves both, skipping resolution.
	buy := sig("b", "RELIANCE", "momentum_surfer", strategy.DirectionLong, 7, now)
	sell := sig("s", "TCS", "unknown_strategy", strategy.DirectionShort, 6, now)
	approved, _ := a.Arbitrate([]strategy.Signal{buy, sell}, staleRegime, closure.PhaseNormal, now)
	if len(approved) != 2 {
		t.Fatalf("degraded mode should pass both signals through, got %d", len(approved))
	}

	// TTL still applies in degraded mode.
	expired := sig("e", "SBIN", "momentum_surfer", strategy.DirectionLong, 7, now.Add(-3*time.Minute))
	approved, rejected := a.Arbitrate([]strategy.Signal{expired}, staleRegime, closure.PhaseNormal, now)
	if len(approved) != 0 || len(rejected) != 1 {
		t.Fatal("expired signal must be rejected even in degraded mode")
	}
}

func TestNilMatrixDegrades(t *testing.T) {
	ledger := ownership.NewLedger(5 * time.Minute)
	a := New(nil, ledger, nil, nil, nil, 2*time.Minute, time.Minute)
	now := time.Now()

	s := sig("s", "TCS", "anything", strategy.DirectionLong, 5, now)
	approved, _ := a.Arbitrate([]strategy.Signal{s}, freshRegime(now), closure.PhaseNormal, now)
	if len(approved) != 1 {
		t.Fatal("nil matrix should pass signals through")
	}
}

type closedGate struct{ reason string }

func (g closedGate) Allow() (bool, string) { return false, g.reason }

func TestAdmissionGateVetoesBatch(t *testing.T) {
	a, _ := newTestArbitrator(closedGate{reason: "daily loss limit reached"})
	now := time.Now()

	s := sig("s", "TCS", "momentum_surfer", strategy.DirectionLong, 8, now)
	approved, rejected := a.Arbitrate([]strategy.Signal{s}, freshRegime(now), closure.PhaseNormal, now)
	if len(approved) != 0 || len(rejected) != 1 {
		t.Fatal("gate denial must veto every signal")
	}
}
