package dispatch

import (
	"sync"
	"time"

	"github.com/shyamanurag/trading-system-new-sub000/internal/strategy"
)

// PendingQueue holds rate-limited opening signals for retry on later
// cycles. Bounded FIFO: on overflow the oldest entry is dropped.
type PendingQueue struct {
	mu      sync.Mutex
	items   []strategy.Signal
	cap     int
	dropped uint64
}

// NewPendingQueue creates a queue with the given capacity.
func NewPendingQueue(capacity int) *PendingQueue {
	if capacity <= 0 {
		capacity = 64
	}
	return &PendingQueue{cap: capacity}
}

// Push appends a signal, evicting the oldest entry when full. Returns the
// evicted signal when one was dropped.
func (q *PendingQueue) Push(s strategy.Signal) (strategy.Signal, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var evicted strategy.Signal
	var dropped bool
	if len(q.items) >= q.cap {
		evicted = q.items[0]
		q.items = q.items[1:]
		q.dropped++
		dropped = true
	}
	q.items = append(q.items, s)
	return evicted, dropped
}

// PopReady removes and returns all queued signals still within TTL at now;
// expired entries are discarded and returned separately.
func (q *PendingQueue) PopReady(now time.Time, defaultTTL time.Duration) (ready, expired []strategy.Signal) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, s := range q.items {
		if s.Expired(now, defaultTTL) {
			expired = append(expired, s)
			continue
		}
		ready = append(ready, s)
	}
	q.items = q.items[:0]
	return ready, expired
}

// Len returns the number of queued signals.
func (q *PendingQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Dropped returns how many signals were evicted on overflow.
func (q *PendingQueue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
