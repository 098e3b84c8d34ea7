package db

import "time"

// PositionRow mirrors one row of the positions table. Booked profit tiers
// are stored as a comma-separated list of trigger percentages.
type PositionRow struct {
	Instrument  string
	StrategyID  string
	Direction   string
	Quantity    float64
	OriginalQty float64
	ScaledQty   float64
	AvgEntry    float64
	StopLoss    float64
	Target      float64
	OpenedAt    time.Time
	BookedTiers string
	LastPrice   float64
	Recovered   bool
}

// OrderRow records a dispatched order for post-hoc reconstruction.
type OrderRow struct {
	ID         string
	OrderRef   string
	Instrument string
	StrategyID string
	Side       string
	OrderType  string
	Qty        float64
	Price      float64
	Status     string
	Reason     string
	CreatedAt  time.Time
}

// AuditRow records one audit event (reconciliation fix, conflict
// resolution, phase transition, dispatch failure).
type AuditRow struct {
	ID         int64
	Topic      string
	Instrument string
	Detail     string
	CreatedAt  time.Time
}
