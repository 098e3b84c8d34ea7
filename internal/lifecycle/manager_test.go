package lifecycle

import (
	"testing"
	"time"

	"github.com/shyamanurag/trading-system-new-sub000/internal/closure"
	"github.com/shyamanurag/trading-system-new-sub000/internal/strategy"
)

func longPosition(now time.Time) *Position {
	return &Position{
		Instrument:  "RELIANCE",
		StrategyID:  "momentum_surfer",
		Direction:   strategy.DirectionLong,
		Quantity:    100,
		OriginalQty: 100,
		AvgEntry:    1000,
		StopLoss:    985,
		Target:      1100,
		OpenedAt:    now,
	}
}

func kinds(actions []Action) []ActionKind {
	out := make([]ActionKind, 0, len(actions))
	for _, a := range actions {
		out = append(out, a.Kind)
	}
	return out
}

func TestEmergencyStopOverridesEverything(t *testing.T) {
	now := time.Now()
	m := NewManager(DefaultConfig(), nil)

	tests := []struct {
		name  string
		price float64
		phase closure.Phase
	}{
		// 1000 -> 974 is a 2.6% loss, past the 2.5% threshold.
		{"pct threshold in normal phase", 974, closure.PhaseNormal},
		{"pct threshold during closure", 974, closure.PhaseGradual},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pos := longPosition(now)
			actions := m.Evaluate(pos, Tick{Price: tt.price}, tt.phase, now)
			if len(actions) != 1 || actions[0].Kind != ActionFullExit || actions[0].Reason != ReasonEmergencyStop {
				t.Fatalf("expected single emergency full exit, got %v", actions)
			}
			if actions[0].Quantity != 100 || !actions[0].Priority {
				t.Fatalf("emergency exit must close full size with priority, got %+v", actions[0])
			}
		})
	}
}

func TestEmergencyStopAbsoluteLoss(t *testing.T) {
	now := time.Now()
	m := NewManager(DefaultConfig(), nil)

	// 10 shares at 50000: a 250-point drop is only a 0.5% loss, but the
	// absolute trigger fires at 2500 rupees regardless.
	pos := &Position{
		Instrument: "HDFCBANK", StrategyID: "trend_rider",
		Direction: strategy.DirectionLong,
		Quantity:  10, OriginalQty: 10, AvgEntry: 50000, OpenedAt: now,
	}
	actions := m.Evaluate(pos, Tick{Price: 49750}, closure.PhaseNormal, now)
	if len(actions) != 1 || actions[0].Reason != ReasonEmergencyStop {
		t.Fatalf("absolute loss trigger should fire, got %v", actions)
	}
}

func TestStopAndTargetExits(t *testing.T) {
	now := time.Now()
	m := NewManager(DefaultConfig(), nil)

	pos := longPosition(now)
	actions := m.Evaluate(pos, Tick{Price: 984}, closure.PhaseNormal, now)
	if len(actions) != 1 || actions[0].Reason != ReasonStopLossHit {
		t.Fatalf("expected stop exit, got %v", actions)
	}

	pos = longPosition(now)
	actions = m.Evaluate(pos, Tick{Price: 1101}, closure.PhaseNormal, now)
	if len(actions) != 1 || actions[0].Reason != ReasonTargetHit {
		t.Fatalf("expected target exit, got %v", actions)
	}
}

func TestShortPositionStopDirection(t *testing.T) {
	now := time.Now()
	m := NewManager(DefaultConfig(), nil)
	pos := &Position{
		Instrument: "INFY", StrategyID: "range_fader",
		Direction: strategy.DirectionShort,
		Quantity:  50, OriginalQty: 50, AvgEntry: 1500,
		StopLoss: 1520, Target: 1400, OpenedAt: now,
	}
	actions := m.Evaluate(pos, Tick{Price: 1521}, closure.PhaseNormal, now)
	if len(actions) != 1 || actions[0].Reason != ReasonStopLossHit {
		t.Fatalf("short stop at rising price should fire, got %v", actions)
	}
	if actions[0].Direction != strategy.DirectionShort {
		t.Fatalf("action must carry the position direction, got %s", actions[0].Direction)
	}
}

func TestProfitTierFiresOnceAndReducesRealQuantity(t *testing.T) {
	now := time.Now()
	cfg := DefaultConfig()
	cfg.Tiers = []ProfitTier{{TriggerPct: 15, BookFraction: 0.5}}
	m := NewManager(cfg, nil)

	pos := longPosition(now)
	pos.Target = 2000 // keep target out of the way

	actions := m.Evaluate(pos, Tick{Price: 1160}, closure.PhaseNormal, now)
	var partial *Action
	for i := range actions {
		if actions[i].Kind == ActionPartialExit {
			partial = &actions[i]
		}
	}
	if partial == nil {
		t.Fatalf("expected a partial exit at 16%% profit, got %v", kinds(actions))
	}
	if partial.Quantity != 50 {
		t.Fatalf("tier must reduce half the position, got qty=%.2f", partial.Quantity)
	}

	// Same tick again: the tier is booked, no second partial exit.
	actions = m.Evaluate(pos, Tick{Price: 1160}, closure.PhaseNormal, now)
	for _, a := range actions {
		if a.Kind == ActionPartialExit {
			t.Fatalf("booked tier fired twice: %+v", a)
		}
	}
}

func TestSecondTierBooksFromRemainder(t *testing.T) {
	now := time.Now()
	m := NewManager(DefaultConfig(), nil)

	pos := longPosition(now)
	pos.Target = 2000
	pos.BookTier(15)
	pos.Quantity = 50 // first tier already reduced

	actions := m.Evaluate(pos, Tick{Price: 1260}, closure.PhaseNormal, now)
	var partial *Action
	for i := range actions {
		if actions[i].Kind == ActionPartialExit {
			partial = &actions[i]
		}
	}
	if partial == nil {
		t.Fatalf("second tier should fire at 26%%, got %v", kinds(actions))
	}
	if partial.Quantity != 25 {
		t.Fatalf("second tier books half the remainder, got %.2f", partial.Quantity)
	}
}

func TestGradualPhaseBooksTiersEarlier(t *testing.T) {
	now := time.Now()
	cfg := DefaultConfig()
	cfg.Tiers = []ProfitTier{{TriggerPct: 15, BookFraction: 0.5}}
	m := NewManager(cfg, nil)

	// 10% profit: under the normal 15% trigger, over the gradual 9% one.
	pos := longPosition(now)
	pos.Target = 2000
	actions := m.Evaluate(pos, Tick{Price: 1100}, closure.PhaseGradual, now)
	found := false
	for _, a := range actions {
		if a.Kind == ActionPartialExit {
			found = true
		}
	}
	if !found {
		t.Fatalf("gradual phase should lower the tier trigger, got %v", kinds(actions))
	}
}

func TestUrgentLossForcesClose(t *testing.T) {
	now := time.Now()
	m := NewManager(DefaultConfig(), nil)

	pos := longPosition(now)
	pos.StopLoss = 950 // below the current price
	// 1% loss: under the emergency threshold, over the urgent one.
	actions := m.Evaluate(pos, Tick{Price: 990}, closure.PhaseUrgent, now)
	if len(actions) != 1 || actions[0].Reason != ReasonUrgentLoss {
		t.Fatalf("urgent phase should close the loser, got %v", actions)
	}
}

func TestImmediatePhaseClosesEverything(t *testing.T) {
	now := time.Now()
	m := NewManager(DefaultConfig(), nil)

	pos := longPosition(now)
	actions := m.Evaluate(pos, Tick{Price: 1050}, closure.PhaseImmediate, now)
	if len(actions) != 1 || actions[0].Reason != ReasonSessionClose {
		t.Fatalf("immediate phase must close profitable positions too, got %v", actions)
	}
}

func TestStopTighteningIsMonotonic(t *testing.T) {
	now := time.Now()
	m := NewManager(DefaultConfig(), nil)

	pos := longPosition(now)
	pos.Target = 2000

	// 10% profit clears the 8% breakeven trigger: stop moves to entry+buffer.
	actions := m.Evaluate(pos, Tick{Price: 1100}, closure.PhaseNormal, now)
	var adjusted bool
	for _, a := range actions {
		if a.Kind == ActionAdjustStop {
			adjusted = true
			if a.NewStop != 1005 {
				t.Fatalf("breakeven stop should be entry+0.5%%=1005, got %.2f", a.NewStop)
			}
		}
	}
	if !adjusted {
		t.Fatalf("expected a stop adjustment, got %v", kinds(actions))
	}
	if pos.StopLoss != 1005 {
		t.Fatalf("position stop should carry the tightened level, got %.2f", pos.StopLoss)
	}

	// Price retreats: the stop never loosens.
	actions = m.Evaluate(pos, Tick{Price: 1081}, closure.PhaseNormal, now)
	for _, a := range actions {
		if a.Kind == ActionAdjustStop {
			t.Fatalf("stop must not loosen on retreat, emitted %+v", a)
		}
	}
	if pos.StopLoss != 1005 {
		t.Fatalf("stop changed on retreat: %.2f", pos.StopLoss)
	}
}

func TestVolatilityTightensStop(t *testing.T) {
	now := time.Now()
	m := NewManager(DefaultConfig(), nil)

	pos := longPosition(now)
	pos.Target = 2000
	// 6% profit, volatility above threshold: lock half the move -> 1030.
	actions := m.Evaluate(pos, Tick{Price: 1060, Volatility: 3.5}, closure.PhaseNormal, now)
	var got float64
	for _, a := range actions {
		if a.Kind == ActionAdjustStop {
			got = a.NewStop
		}
	}
	if got != 1030 {
		t.Fatalf("volatility lock should move stop to 1030, got %.2f", got)
	}
}

func TestScalingCapsAtHalfOriginal(t *testing.T) {
	now := time.Now()
	m := NewManager(DefaultConfig(), nil)

	pos := longPosition(now)
	pos.Target = 2000
	tick := Tick{Price: 1060, VolumeRatio: 2.0} // 6% profit, confirmed volume

	actions := m.Evaluate(pos, tick, closure.PhaseNormal, now.Add(5*time.Minute))
	var scale *Action
	for i := range actions {
		if actions[i].Kind == ActionScale {
			scale = &actions[i]
		}
	}
	if scale == nil {
		t.Fatalf("expected a scale action, got %v", kinds(actions))
	}
	if scale.Quantity != 50 {
		t.Fatalf("scale headroom should be 50%% of original=50, got %.2f", scale.Quantity)
	}

	// Already fully scaled: no further adds.
	pos.ScaledQty = 50
	actions = m.Evaluate(pos, tick, closure.PhaseNormal, now.Add(6*time.Minute))
	for _, a := range actions {
		if a.Kind == ActionScale {
			t.Fatalf("scaling past the cap: %+v", a)
		}
	}
}

func TestNoScalingOnOldOrUnconfirmedPositions(t *testing.T) {
	now := time.Now()
	m := NewManager(DefaultConfig(), nil)

	tests := []struct {
		name string
		tick Tick
		at   time.Time
	}{
		{"too old", Tick{Price: 1060, VolumeRatio: 2.0}, now.Add(11 * time.Minute)},
		{"weak volume", Tick{Price: 1060, VolumeRatio: 1.0}, now.Add(5 * time.Minute)},
		{"weak momentum", Tick{Price: 1020, VolumeRatio: 2.0}, now.Add(5 * time.Minute)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pos := longPosition(now)
			pos.Target = 2000
			for _, a := range m.Evaluate(pos, tt.tick, closure.PhaseNormal, tt.at) {
				if a.Kind == ActionScale {
					t.Fatalf("unexpected scale action: %+v", a)
				}
			}
		})
	}
}

func TestEvaluateSkipsEmptyAndBadInput(t *testing.T) {
	now := time.Now()
	m := NewManager(DefaultConfig(), nil)

	if got := m.Evaluate(nil, Tick{Price: 100}, closure.PhaseNormal, now); got != nil {
		t.Fatalf("nil position should produce nothing, got %v", got)
	}
	pos := longPosition(now)
	if got := m.Evaluate(pos, Tick{Price: 0}, closure.PhaseNormal, now); got != nil {
		t.Fatalf("zero price should produce nothing, got %v", got)
	}
}
