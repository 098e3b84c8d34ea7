package monitor

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// EngineMetrics tracks cycle-level performance and decision counters.
type EngineMetrics struct {
	CycleLatency    *LatencyHistogram
	DispatchLatency *LatencyHistogram

	signalsSeen      uint64
	signalsApproved  uint64
	signalsRejected  uint64
	actionsEmitted   uint64
	orphansRecovered uint64
	phantomsDropped  uint64
	dispatchFailures uint64
}

// NewEngineMetrics creates a metrics instance.
func NewEngineMetrics() *EngineMetrics {
	return &EngineMetrics{
		CycleLatency:    NewLatencyHistogram(1000),
		DispatchLatency: NewLatencyHistogram(1000),
	}
}

func (m *EngineMetrics) AddSignalsSeen(n int)     { atomic.AddUint64(&m.signalsSeen, uint64(n)) }
func (m *EngineMetrics) AddSignalsApproved(n int) { atomic.AddUint64(&m.signalsApproved, uint64(n)) }
func (m *EngineMetrics) AddSignalsRejected(n int) { atomic.AddUint64(&m.signalsRejected, uint64(n)) }
func (m *EngineMetrics) AddActions(n int)         { atomic.AddUint64(&m.actionsEmitted, uint64(n)) }
func (m *EngineMetrics) AddOrphans(n int)         { atomic.AddUint64(&m.orphansRecovered, uint64(n)) }
func (m *EngineMetrics) AddPhantoms(n int)        { atomic.AddUint64(&m.phantomsDropped, uint64(n)) }
func (m *EngineMetrics) IncDispatchFailures()     { atomic.AddUint64(&m.dispatchFailures, 1) }

// Counters returns a snapshot of all decision counters.
func (m *EngineMetrics) Counters() map[string]uint64 {
	return map[string]uint64{
		"signals_seen":      atomic.LoadUint64(&m.signalsSeen),
		"signals_approved":  atomic.LoadUint64(&m.signalsApproved),
		"signals_rejected":  atomic.LoadUint64(&m.signalsRejected),
		"actions_emitted":   atomic.LoadUint64(&m.actionsEmitted),
		"orphans_recovered": atomic.LoadUint64(&m.orphansRecovered),
		"phantoms_dropped":  atomic.LoadUint64(&m.phantomsDropped),
		"dispatch_failures": atomic.LoadUint64(&m.dispatchFailures),
	}
}

// LatencyHistogram tracks latency samples with a sliding window.
type LatencyHistogram struct {
	mu      sync.Mutex
	samples []float64
	maxSize int
}

// NewLatencyHistogram creates a sliding window histogram.
func NewLatencyHistogram(size int) *LatencyHistogram {
	if size <= 0 {
		size = 1000
	}
	return &LatencyHistogram{maxSize: size}
}

// Record adds a latency sample.
func (h *LatencyHistogram) Record(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.samples = append(h.samples, float64(d.Microseconds())/1000.0)
	if len(h.samples) > h.maxSize {
		h.samples = h.samples[len(h.samples)-h.maxSize:]
	}
}

// LatencyStats summarizes a histogram in milliseconds.
type LatencyStats struct {
	Count int
	Avg   float64
	P50   float64
	P95   float64
	Max   float64
}

// Stats computes summary statistics over the current window.
func (h *LatencyHistogram) Stats() LatencyStats {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := len(h.samples)
	if n == 0 {
		return LatencyStats{}
	}

	sorted := make([]float64, n)
	copy(sorted, h.samples)
	sort.Float64s(sorted)

	var sum float64
	for _, s := range sorted {
		sum += s
	}

	return LatencyStats{
		Count: n,
		Avg:   sum / float64(n),
		P50:   sorted[n/2],
		P95:   sorted[(n*95)/100],
		Max:   sorted[n-1],
	}
}
