package strategy

// PriorityMatrix maps (regime, strategy) to an integer priority 0-10.
// A priority of 0 disables the strategy for that regime. The matrix is
// built once from configuration and read-only afterwards, so no locking.
type PriorityMatrix struct {
	priorities map[Regime]map[string]int
}

// NewPriorityMatrix builds a matrix from configuration rows. Values are
// clamped into the 0-10 range.
func NewPriorityMatrix(rows map[string]map[string]int) *PriorityMatrix {
	m := &PriorityMatrix{priorities: make(map[Regime]map[string]int, len(rows))}
	for regime, strategies := range rows {
		entry := make(map[string]int, len(strategies))
		for id, p := range strategies {
			if p < 0 {
				p = 0
			}
			if p > 10 {
				p = 10
			}
			entry[id] = p
		}
		m.priorities[Regime(regime)] = entry
	}
	return m
}

// Priority returns the priority of a strategy under a regime. The second
// return is false when the regime or the strategy has no entry; callers
// treat unknown strategies as disabled.
func (m *PriorityMatrix) Priority(regime Regime, strategyID string) (int, bool) {
	if m == nil {
		return 0, false
	}
	row, ok := m.priorities[regime]
	if !ok {
		return 0, false
	}
	p, ok := row[strategyID]
	return p, ok
}

// Regimes returns the number of regimes the matrix covers.
func (m *PriorityMatrix) Regimes() int {
	if m == nil {
		return 0
	}
	return len(m.priorities)
}
