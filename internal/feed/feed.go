package feed

import (
	"context"
	"sync"

	"github.com/shyamanurag/trading-system-new-sub000/internal/lifecycle"
	"github.com/shyamanurag/trading-system-new-sub000/internal/strategy"
)

// Intake is the buffered hand-off between upstream strategy processes and
// the driver. Strategies push signals at any time; the driver drains the
// accumulated batch once per cycle.
type Intake struct {
	mu      sync.Mutex
	pending []strategy.Signal
}

func NewIntake() *Intake {
	return &Intake{}
}

// Push appends a signal to the next cycle's batch.
func (in *Intake) Push(sig strategy.Signal) {
	in.mu.Lock()
	in.pending = append(in.pending, sig)
	in.mu.Unlock()
}

// PendingSignals drains and returns everything pushed since the last drain.
func (in *Intake) PendingSignals(ctx context.Context) ([]strategy.Signal, error) {
	in.mu.Lock()
	batch := in.pending
	in.pending = nil
	in.mu.Unlock()
	return batch, nil
}

// RegimeState holds the latest market regime classification.
type RegimeState struct {
	mu     sync.RWMutex
	regime strategy.MarketRegime
}

func NewRegimeState() *RegimeState {
	return &RegimeState{}
}

func (r *RegimeState) Set(regime strategy.MarketRegime) {
	r.mu.Lock()
	r.regime = regime
	r.mu.Unlock()
}

func (r *RegimeState) CurrentRegime(ctx context.Context) (strategy.MarketRegime, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.regime, nil
}

// PriceBook holds the latest tick per instrument for lifecycle evaluation.
type PriceBook struct {
	mu    sync.RWMutex
	ticks map[string]lifecycle.Tick
}

func NewPriceBook() *PriceBook {
	return &PriceBook{ticks: make(map[string]lifecycle.Tick)}
}

func (b *PriceBook) SetTick(instrument string, tick lifecycle.Tick) {
	b.mu.Lock()
	b.ticks[instrument] = tick
	b.mu.Unlock()
}

func (b *PriceBook) Tick(instrument string) (lifecycle.Tick, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	t, ok := b.ticks[instrument]
	return t, ok
}
