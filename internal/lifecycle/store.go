package lifecycle

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"

	"github.com/shyamanurag/trading-system-new-sub000/internal/strategy"
	"github.com/shyamanurag/trading-system-new-sub000/pkg/db"
)

// Store keeps the authoritative in-memory set of open positions while
// persisting to the database for crash recovery. The driver loop is the
// sole writer inside a cycle; readers get copies.
type Store struct {
	mu        sync.RWMutex
	positions map[string]*Position
	db        *db.Database // nil disables persistence
}

// NewStore creates a position store. database may be nil.
func NewStore(database *db.Database) *Store {
	return &Store{
		positions: make(map[string]*Position),
		db:        database,
	}
}

// Load seeds in-memory state from the database on startup.
func (s *Store) Load(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	rows, err := s.db.ListPositions(ctx)
	if err != nil {
		return fmt.Errorf("load positions: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range rows {
		p := fromRow(r)
		s.positions[p.Instrument] = p
	}
	if len(rows) > 0 {
		log.Printf("position store: recovered %d open positions from disk", len(rows))
	}
	return nil
}

// Get returns a copy of the position for an instrument.
func (s *Store) Get(instrument string) (*Position, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.positions[instrument]
	if !ok {
		return nil, false
	}
	return p.Clone(), true
}

// Has reports whether an instrument has an open position.
func (s *Store) Has(instrument string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.positions[instrument]
	return ok
}

// List returns copies of all open positions.
func (s *Store) List() []Position {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Position, 0, len(s.positions))
	for _, p := range s.positions {
		out = append(out, *p.Clone())
	}
	return out
}

// Len returns the number of open positions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.positions)
}

// Insert adds a new position. Fails if the instrument already has one:
// ownership guarantees at most one position per instrument.
func (s *Store) Insert(ctx context.Context, p *Position) error {
	if p.Quantity <= 0 {
		return fmt.Errorf("insert position %s: non-positive quantity %.4f", p.Instrument, p.Quantity)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.positions[p.Instrument]; exists {
		return fmt.Errorf("insert position %s: instrument already has an open position", p.Instrument)
	}
	s.positions[p.Instrument] = p.Clone()
	s.persist(ctx, p)
	return nil
}

// Update overwrites the stored record for a position's instrument. Used by
// the driver to persist stop adjustments and tier bookings computed during
// evaluation.
func (s *Store) Update(ctx context.Context, p *Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.positions[p.Instrument]; !exists {
		return fmt.Errorf("update position %s: not found", p.Instrument)
	}
	s.positions[p.Instrument] = p.Clone()
	s.persist(ctx, p)
	return nil
}

// Reduce subtracts qty after a confirmed partial exit. The position is
// removed when the remainder is negligible; the bool reports full closure.
func (s *Store) Reduce(ctx context.Context, instrument string, qty float64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.positions[instrument]
	if !ok {
		return false, fmt.Errorf("reduce position %s: not found", instrument)
	}
	p.Quantity -= qty
	if p.Quantity <= 1e-9 {
		delete(s.positions, instrument)
		if s.db != nil {
			if err := s.db.DeletePosition(ctx, instrument); err != nil {
				log.Printf("position store: delete %s: %v", instrument, err)
			}
		}
		return true, nil
	}
	s.persist(ctx, p)
	return false, nil
}

// Scale adds qty filled at price after a confirmed scale-in, re-averaging
// the entry price.
func (s *Store) Scale(ctx context.Context, instrument string, qty, price float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.positions[instrument]
	if !ok {
		return fmt.Errorf("scale position %s: not found", instrument)
	}
	total := p.Quantity + qty
	p.AvgEntry = (p.AvgEntry*p.Quantity + price*qty) / total
	p.Quantity = total
	p.ScaledQty += qty
	s.persist(ctx, p)
	return nil
}

// Remove drops a position after a confirmed full exit (or a phantom drop).
func (s *Store) Remove(ctx context.Context, instrument string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.positions, instrument)
	if s.db != nil {
		if err := s.db.DeletePosition(ctx, instrument); err != nil {
			log.Printf("position store: delete %s: %v", instrument, err)
		}
	}
}

// persist writes through to the database. Callers hold the write lock; the
// write targets local SQLite, not the network.
func (s *Store) persist(ctx context.Context, p *Position) {
	if s.db == nil {
		return
	}
	if err := s.db.UpsertPosition(ctx, toRow(p)); err != nil {
		log.Printf("position store: persist %s: %v", p.Instrument, err)
	}
}

func toRow(p *Position) db.PositionRow {
	return db.PositionRow{
		Instrument:  p.Instrument,
		StrategyID:  p.StrategyID,
		Direction:   string(p.Direction),
		Quantity:    p.Quantity,
		OriginalQty: p.OriginalQty,
		ScaledQty:   p.ScaledQty,
		AvgEntry:    p.AvgEntry,
		StopLoss:    p.StopLoss,
		Target:      p.Target,
		OpenedAt:    p.OpenedAt,
		BookedTiers: encodeTiers(p.BookedTiers),
		LastPrice:   p.LastPrice,
		Recovered:   p.Recovered,
	}
}

func fromRow(r db.PositionRow) *Position {
	return &Position{
		Instrument:  r.Instrument,
		StrategyID:  r.StrategyID,
		Direction:   strategy.Direction(r.Direction),
		Quantity:    r.Quantity,
		OriginalQty: r.OriginalQty,
		ScaledQty:   r.ScaledQty,
		AvgEntry:    r.AvgEntry,
		StopLoss:    r.StopLoss,
		Target:      r.Target,
		OpenedAt:    r.OpenedAt,
		BookedTiers: decodeTiers(r.BookedTiers),
		LastPrice:   r.LastPrice,
		Recovered:   r.Recovered,
	}
}

func encodeTiers(tiers map[float64]bool) string {
	if len(tiers) == 0 {
		return ""
	}
	parts := make([]string, 0, len(tiers))
	for pct, booked := range tiers {
		if booked {
			parts = append(parts, strconv.FormatFloat(pct, 'f', -1, 64))
		}
	}
	return strings.Join(parts, ",")
}

func decodeTiers(s string) map[float64]bool {
	if s == "" {
		return nil
	}
	out := make(map[float64]bool)
	for _, part := range strings.Split(s, ",") {
		if pct, err := strconv.ParseFloat(strings.TrimSpace(part), 64); err == nil {
			out[pct] = true
		}
	}
	return out
}
