package ownership

import (
	"testing"
	"time"
)

func TestAcquireIsExclusive(t *testing.T) {
	l := NewLedger(5 * time.Minute)
	now := time.Now()

	if !l.Acquire("RELIANCE", "momentum_surfer", now) {
		t.Fatal("first acquire should succeed")
	}
	if l.Acquire("RELIANCE", "range_fader", now.Add(time.Second)) {
		t.Fatal("second strategy must not acquire an owned instrument")
	}

	owner, _, ok := l.Owner("RELIANCE", now)
	if !ok || owner != "momentum_surfer" {
		t.Fatalf("Owner()=%q ok=%v, expected momentum_surfer", owner, ok)
	}
}

func TestReacquireByOwnerRefreshesClaim(t *testing.T) {
	l := NewLedger(5 * time.Minute)
	now := time.Now()

	l.Acquire("TCS", "trend_rider", now)
	later := now.Add(4 * time.Minute)
	if !l.Acquire("TCS", "trend_rider", later) {
		t.Fatal("owner re-acquire should succeed")
	}

	// The refresh resets the age, so a rival is still blocked 4 minutes on.
	if l.Acquire("TCS", "range_fader", later.Add(4*time.Minute)) {
		t.Fatal("refreshed claim should still block rivals inside the timeout")
	}
}

func TestTimedOutClaimCanBeTakenOver(t *testing.T) {
	l := NewLedger(5 * time.Minute)
	now := time.Now()

	l.Acquire("INFY", "momentum_surfer", now)
	if !l.Acquire("INFY", "range_fader", now.Add(5*time.Minute)) {
		t.Fatal("claim at the timeout boundary should be claimable")
	}
	owner, _, _ := l.Owner("INFY", now.Add(5*time.Minute))
	if owner != "range_fader" {
		t.Fatalf("owner after takeover = %q", owner)
	}
}

func TestReleaseAndUnownedRelease(t *testing.T) {
	l := NewLedger(time.Minute)
	now := time.Now()

	l.Acquire("SBIN", "mean_reverter", now)
	l.Release("SBIN")
	if _, _, ok := l.Owner("SBIN", now); ok {
		t.Fatal("released instrument should have no owner")
	}
	l.Release("SBIN") // no-op
}

func TestSweepReleasesStaleOwnerlessClaims(t *testing.T) {
	l := NewLedger(5 * time.Minute)
	now := time.Now()

	l.Acquire("RELIANCE", "momentum_surfer", now) // stale, no position
	l.Acquire("TCS", "trend_rider", now)          // stale, but position open
	l.Acquire("INFY", "range_fader", now.Add(4*time.Minute))

	hasPosition := func(instrument string) bool { return instrument == "TCS" }
	released := l.Sweep(now.Add(5*time.Minute), hasPosition)

	if len(released) != 1 || released[0] != "RELIANCE" {
		t.Fatalf("Sweep released %v, expected [RELIANCE]", released)
	}
	if _, _, ok := l.Owner("TCS", now); !ok {
		t.Fatal("claim backing an open position must survive the sweep")
	}
	if _, _, ok := l.Owner("INFY", now); !ok {
		t.Fatal("fresh claim must survive the sweep")
	}
}
