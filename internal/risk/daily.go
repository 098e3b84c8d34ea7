package risk

import (
	"fmt"
	"log"
	"sync"
)

// DailyTracker accumulates realized intraday P&L and vetoes all new
// arbitrator approvals once the daily loss limit is breached. It implements
// the admission gate the arbitrator consults.
type DailyTracker struct {
	mu           sync.RWMutex
	maxDailyLoss float64 // 0 disables the limit
	realizedPnL  float64
	losses       float64
	trades       int
}

// NewDailyTracker creates a tracker with the given loss limit in currency
// units.
func NewDailyTracker(maxDailyLoss float64) *DailyTracker {
	return &DailyTracker{maxDailyLoss: maxDailyLoss}
}

// RecordExit books the realized P&L of a closed or reduced position.
func (t *DailyTracker) RecordExit(pnl float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.trades++
	t.realizedPnL += pnl
	if pnl < 0 {
		t.losses += -pnl
	}
}

// Allow reports whether new entries may still be admitted today.
func (t *DailyTracker) Allow() (bool, string) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.maxDailyLoss > 0 && t.losses >= t.maxDailyLoss {
		return false, fmt.Sprintf("daily loss limit breached: %.2f/%.2f", t.losses, t.maxDailyLoss)
	}
	return true, ""
}

// Metrics returns a snapshot of today's counters.
func (t *DailyTracker) Metrics() (pnl, losses float64, trades int) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.realizedPnL, t.losses, t.trades
}

// Reset clears the daily counters; called at session open.
func (t *DailyTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	log.Printf("risk: daily metrics reset. Prev: PnL=%.2f Trades=%d Losses=%.2f",
		t.realizedPnL, t.trades, t.losses)
	t.realizedPnL = 0
	t.losses = 0
	t.trades = 0
}
