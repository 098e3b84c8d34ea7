package ownership

import (
	"sync"
	"time"
)

// Record tracks which strategy currently owns trading decisions for an
// instrument.
type Record struct {
	Instrument string
	StrategyID string
	AcquiredAt time.Time
}

// Age returns how long the record has been held at now.
func (r Record) Age(now time.Time) time.Duration {
	return now.Sub(r.AcquiredAt)
}

// Ledger enforces exclusive per-instrument ownership. At most one strategy
// owns an instrument at a time; a claim older than the timeout may be taken
// over, which self-heals missed release events. Mutations are serialized
// under a single lock; reads return copies.
type Ledger struct {
	mu      sync.RWMutex
	timeout time.Duration
	records map[string]Record
}

// NewLedger creates a ledger with the given ownership timeout.
func NewLedger(timeout time.Duration) *Ledger {
	return &Ledger{
		timeout: timeout,
		records: make(map[string]Record),
	}
}

// Acquire claims an instrument for a strategy. It fails when a different
// strategy holds a claim younger than the timeout. Re-acquiring by the
// current owner refreshes the claim.
func (l *Ledger) Acquire(instrument, strategyID string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.records[instrument]
	if ok && rec.StrategyID != strategyID && now.Sub(rec.AcquiredAt) < l.timeout {
		return false
	}

	l.records[instrument] = Record{
		Instrument: instrument,
		StrategyID: strategyID,
		AcquiredAt: now,
	}
	return true
}

// ForceAcquire claims an instrument unconditionally. Used by reconciliation
// when adopting broker-reported positions the engine did not open.
func (l *Ledger) ForceAcquire(instrument, strategyID string, now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records[instrument] = Record{
		Instrument: instrument,
		StrategyID: strategyID,
		AcquiredAt: now,
	}
}

// Release drops the claim on an instrument. Releasing an unowned instrument
// is a no-op.
func (l *Ledger) Release(instrument string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.records, instrument)
}

// Owner returns the owning strategy and claim age for an instrument.
func (l *Ledger) Owner(instrument string, now time.Time) (strategyID string, age time.Duration, ok bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	rec, ok := l.records[instrument]
	if !ok {
		return "", 0, false
	}
	return rec.StrategyID, now.Sub(rec.AcquiredAt), true
}

// Timeout returns the configured ownership timeout.
func (l *Ledger) Timeout() time.Duration {
	return l.timeout
}

// Snapshot returns a copy of all current records.
func (l *Ledger) Snapshot() []Record {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Record, 0, len(l.records))
	for _, rec := range l.records {
		out = append(out, rec)
	}
	return out
}

// Sweep releases records older than the timeout whose instrument no longer
// has an open position, returning the released instruments. hasPosition is
// consulted per record.
func (l *Ledger) Sweep(now time.Time, hasPosition func(instrument string) bool) []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	var released []string
	for instrument, rec := range l.records {
		if now.Sub(rec.AcquiredAt) < l.timeout {
			continue
		}
		if hasPosition != nil && hasPosition(instrument) {
			continue
		}
		delete(l.records, instrument)
		released = append(released, instrument)
	}
	return released
}
