package risk

import (
	"strings"
	"testing"
)

func TestGateClosesAtLossLimit(t *testing.T) {
	tr := NewDailyTracker(25000)

	tr.RecordExit(-10000)
	tr.RecordExit(5000) // profits do not offset the loss counter
	if ok, _ := tr.Allow(); !ok {
		t.Fatal("gate should stay open under the limit")
	}

	tr.RecordExit(-15000)
	ok, reason := tr.Allow()
	if ok {
		t.Fatal("gate must close at the limit")
	}
	if !strings.Contains(reason, "daily loss limit") {
		t.Fatalf("reason=%q", reason)
	}

	pnl, losses, trades := tr.Metrics()
	if pnl != -20000 || losses != 25000 || trades != 3 {
		t.Fatalf("metrics pnl=%.2f losses=%.2f trades=%d", pnl, losses, trades)
	}
}

func TestResetReopensGate(t *testing.T) {
	tr := NewDailyTracker(1000)
	tr.RecordExit(-1000)
	if ok, _ := tr.Allow(); ok {
		t.Fatal("gate should be closed")
	}

	tr.Reset()
	if ok, _ := tr.Allow(); !ok {
		t.Fatal("reset should reopen the gate for the new session")
	}
}

func TestZeroLimitDisablesGate(t *testing.T) {
	tr := NewDailyTracker(0)
	tr.RecordExit(-1e9)
	if ok, _ := tr.Allow(); !ok {
		t.Fatal("zero limit disables the gate")
	}
}
