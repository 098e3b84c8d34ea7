package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// PaperGateway fills orders locally against its own position book. Used in
// dry-run mode and in tests. Failure injection lets tests exercise the
// dispatcher's retry and escalation paths.
type PaperGateway struct {
	mu        sync.Mutex
	positions map[string]Position
	orders    []OrderRequest

	failNext     int  // next N submits fail transiently
	failTerminal bool // when set, injected failures are terminal instead
}

// NewPaperGateway creates an empty paper broker.
func NewPaperGateway() *PaperGateway {
	return &PaperGateway{positions: make(map[string]Position)}
}

// FailNext makes the next n SubmitOrder calls fail. terminal selects a
// non-retryable failure instead of a transient one.
func (g *PaperGateway) FailNext(n int, terminal bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failNext = n
	g.failTerminal = terminal
}

// SubmitOrder fills the order immediately at the request price.
func (g *PaperGateway) SubmitOrder(ctx context.Context, req OrderRequest) (OrderResult, error) {
	if err := ctx.Err(); err != nil {
		return OrderResult{}, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.failNext > 0 {
		g.failNext--
		if g.failTerminal {
			return OrderResult{Status: StatusRejected}, fmt.Errorf("paper broker: order rejected")
		}
		return OrderResult{}, Transientf("paper broker: injected failure")
	}

	if req.Qty <= 0 {
		return OrderResult{Status: StatusRejected}, fmt.Errorf("paper broker: non-positive quantity %.4f", req.Qty)
	}

	g.orders = append(g.orders, req)

	pos := g.positions[req.Instrument]
	signed := req.Qty
	if req.Side == SideSell {
		signed = -req.Qty
	}

	newQty := pos.Quantity + signed
	avg := pos.AvgPrice
	// Only entries in the position's direction move the average price.
	if pos.Quantity == 0 || (pos.Quantity > 0) == (signed > 0) {
		total := pos.Quantity*pos.AvgPrice + signed*req.Price
		if newQty != 0 {
			avg = total / newQty
		}
	}

	if newQty == 0 {
		delete(g.positions, req.Instrument)
	} else {
		g.positions[req.Instrument] = Position{
			Instrument: req.Instrument,
			Quantity:   newQty,
			AvgPrice:   avg,
			UpdatedAt:  time.Now(),
		}
	}

	return OrderResult{
		OrderRef:  uuid.NewString(),
		Status:    StatusFilled,
		FilledQty: req.Qty,
		AvgPrice:  req.Price,
	}, nil
}

// GetPositions returns the paper position book.
func (g *PaperGateway) GetPositions(ctx context.Context) ([]Position, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Position, 0, len(g.positions))
	for _, p := range g.positions {
		out = append(out, p)
	}
	return out, nil
}

// SetPosition seeds a holding directly, bypassing order flow. Test helper
// for reconciliation scenarios.
func (g *PaperGateway) SetPosition(instrument string, qty, avgPrice float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if qty == 0 {
		delete(g.positions, instrument)
		return
	}
	g.positions[instrument] = Position{
		Instrument: instrument,
		Quantity:   qty,
		AvgPrice:   avgPrice,
		UpdatedAt:  time.Now(),
	}
}

// Orders returns all accepted order requests, oldest first.
func (g *PaperGateway) Orders() []OrderRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]OrderRequest, len(g.orders))
	copy(out, g.orders)
	return out
}
