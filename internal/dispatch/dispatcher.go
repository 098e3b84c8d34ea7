package dispatch

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/shyamanurag/trading-system-new-sub000/internal/events"
	"github.com/shyamanurag/trading-system-new-sub000/internal/lifecycle"
	"github.com/shyamanurag/trading-system-new-sub000/internal/strategy"
	"github.com/shyamanurag/trading-system-new-sub000/pkg/broker"
	"github.com/shyamanurag/trading-system-new-sub000/pkg/db"
)

// Dispatcher is the single choke point between the engine and the broker.
// Opening signals pass the rate governor or are queued for the next cycle;
// lifecycle management actions bypass the governor entirely. It is the only
// component that performs blocking broker I/O, bounded per call.
type Dispatcher struct {
	gw       broker.Gateway
	governor *Governor
	queue    *PendingQueue
	retry    RetryPolicy
	bus      *events.Bus  // may be nil
	db       *db.Database // may be nil
	timeout  time.Duration
	ttl      time.Duration // default signal TTL for queued retries
}

// Opened pairs a successfully dispatched opening signal with its fill.
type Opened struct {
	Signal strategy.Signal
	Result broker.OrderResult
}

// NewDispatcher wires the dispatcher.
func NewDispatcher(gw broker.Gateway, governor *Governor, retry RetryPolicy, bus *events.Bus, database *db.Database, callTimeout, signalTTL time.Duration, queueCap int) *Dispatcher {
	if callTimeout <= 0 {
		callTimeout = 5 * time.Second
	}
	return &Dispatcher{
		gw:       gw,
		governor: governor,
		queue:    NewPendingQueue(queueCap),
		retry:    retry,
		bus:      bus,
		db:       database,
		timeout:  callTimeout,
		ttl:      signalTTL,
	}
}

// Queue exposes the pending queue for inspection.
func (d *Dispatcher) Queue() *PendingQueue { return d.queue }

// FetchPositions retrieves the broker's holdings for reconciliation. All
// broker I/O stays inside the dispatcher, bounded by the per-call timeout.
func (d *Dispatcher) FetchPositions(ctx context.Context) ([]broker.Position, error) {
	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	positions, err := d.gw.GetPositions(callCtx)
	if err != nil {
		return nil, fmt.Errorf("fetch broker positions: %w", err)
	}
	return positions, nil
}

// DispatchSignal sends an approved opening signal. When the governor denies
// admission the signal is queued and admitted=false is returned with no
// error; nothing was sent.
func (d *Dispatcher) DispatchSignal(ctx context.Context, sig strategy.Signal, now time.Time) (broker.OrderResult, bool, error) {
	if !d.governor.Admit(now) {
		if evicted, dropped := d.queue.Push(sig); dropped {
			log.Printf("dispatch: pending queue full, dropped oldest signal %s %s", evicted.StrategyID, evicted.Instrument)
		}
		log.Printf("dispatch: rate ceiling reached, queued %s %s for next cycle", sig.StrategyID, sig.Instrument)
		return broker.OrderResult{}, false, nil
	}

	res, err := d.submitSignal(ctx, sig)
	return res, true, err
}

// FlushPending retries queued signals, oldest first, still under the rate
// governor. Signals that expire in the queue or fail their submit are
// consumed and returned in the second slice so the caller can release the
// ownership claims they were holding.
func (d *Dispatcher) FlushPending(ctx context.Context, now time.Time) ([]Opened, []strategy.Signal) {
	ready, dead := d.queue.PopReady(now, d.ttl)
	for _, s := range dead {
		log.Printf("dispatch: queued signal %s %s expired before admission", s.StrategyID, s.Instrument)
		if d.bus != nil {
			d.bus.Publish(events.TopicSignalRejected, s)
		}
	}

	var opened []Opened
	for i, s := range ready {
		if !d.governor.Admit(now) {
			// Still throttled: requeue the remainder in order.
			for _, rest := range ready[i:] {
				d.queue.Push(rest)
			}
			break
		}
		res, err := d.submitSignal(ctx, s)
		if err != nil {
			dead = append(dead, s)
			continue
		}
		opened = append(opened, Opened{Signal: s, Result: res})
	}
	return opened, dead
}

func (d *Dispatcher) submitSignal(ctx context.Context, sig strategy.Signal) (broker.OrderResult, error) {
	side := broker.SideBuy
	if sig.Direction == strategy.DirectionShort {
		side = broker.SideSell
	}
	req := broker.OrderRequest{
		Instrument: sig.Instrument,
		Side:       side,
		Type:       broker.OrderTypeMarket,
		Qty:        sig.Quantity,
		Price:      sig.Price,
		ClientID:   uuid.NewString(),
	}

	res, outcome, err := d.submit(ctx, req)
	d.recordOrder(ctx, req, res, sig.StrategyID, "ENTRY", outcome)
	if err != nil {
		log.Printf("dispatch: entry %s %s %s failed (%s): %v", sig.StrategyID, side, sig.Instrument, outcome, err)
		if d.bus != nil {
			d.bus.Publish(events.TopicDispatchFailure, fmt.Sprintf("entry %s: %v", sig.Instrument, err))
		}
		return res, err
	}
	log.Printf("dispatch: entry %s %s %.2f %s @ %.2f ref=%s", sig.StrategyID, side, sig.Quantity, sig.Instrument, res.AvgPrice, res.OrderRef)
	return res, nil
}

// DispatchAction sends a lifecycle management action, bypassing the rate
// governor. Stop adjustments are enforced in-process and only recorded; all
// other kinds become reduce-only (or scale) market orders. A terminal
// failure on a full exit raises a critical alert: the position stays in the
// authoritative set and is retried next cycle.
func (d *Dispatcher) DispatchAction(ctx context.Context, act lifecycle.Action) (broker.OrderResult, error) {
	if act.Kind == lifecycle.ActionAdjustStop {
		// The engine itself enforces the protective stop each tick; the
		// adjustment is auditable but needs no broker round-trip.
		stopSide := broker.SideSell
		if act.Direction == strategy.DirectionShort {
			stopSide = broker.SideBuy
		}
		d.recordOrder(ctx, broker.OrderRequest{
			Instrument: act.Instrument,
			Side:       stopSide,
			Type:       broker.OrderTypeStopLoss,
			Qty:        act.Quantity,
			StopPrice:  act.NewStop,
			ClientID:   uuid.NewString(),
			ReduceOnly: true,
		}, broker.OrderResult{Status: broker.StatusNew}, act.StrategyID, string(act.Reason), OutcomeSuccess)
		return broker.OrderResult{Status: broker.StatusNew}, nil
	}

	var side broker.Side
	reduceOnly := true
	switch act.Kind {
	case lifecycle.ActionScale:
		// Scaling adds exposure in the position's direction.
		reduceOnly = false
		side = broker.SideBuy
		if act.Direction == strategy.DirectionShort {
			side = broker.SideSell
		}
	default:
		// Exits trade against the position's direction.
		side = broker.SideSell
		if act.Direction == strategy.DirectionShort {
			side = broker.SideBuy
		}
	}

	req := broker.OrderRequest{
		Instrument: act.Instrument,
		Side:       side,
		Type:       broker.OrderTypeMarket,
		Qty:        act.Quantity,
		Price:      act.Price,
		ClientID:   uuid.NewString(),
		ReduceOnly: reduceOnly,
	}

	res, outcome, err := d.submit(ctx, req)
	d.recordOrder(ctx, req, res, act.StrategyID, string(act.Reason), outcome)
	if err != nil {
		log.Printf("dispatch: action %s %s %s failed (%s): %v", act.Kind, act.Instrument, act.Reason, outcome, err)
		if d.bus != nil {
			d.bus.Publish(events.TopicDispatchFailure, fmt.Sprintf("%s %s: %v", act.Kind, act.Instrument, err))
			if act.Kind == lifecycle.ActionFullExit {
				// Position integrity cannot be guaranteed until this exit
				// lands; never silently dropped.
				d.bus.Publish(events.TopicCriticalAlert, fmt.Sprintf(
					"UNRESOLVED EXIT: %s %s qty=%.2f reason=%s: %v",
					act.Instrument, act.Kind, act.Quantity, act.Reason, err))
			}
		}
		return res, err
	}

	log.Printf("dispatch: action %s %s %.2f %s reason=%s ref=%s",
		act.Kind, side, act.Quantity, act.Instrument, act.Reason, res.OrderRef)
	return res, nil
}

// submit performs one broker call chain with per-call timeout and bounded
// retry on transient failures.
func (d *Dispatcher) submit(ctx context.Context, req broker.OrderRequest) (broker.OrderResult, Outcome, error) {
	var res broker.OrderResult
	outcome, err := d.retry.Do(ctx, func() error {
		callCtx, cancel := context.WithTimeout(ctx, d.timeout)
		defer cancel()
		var callErr error
		res, callErr = d.gw.SubmitOrder(callCtx, req)
		return callErr
	})
	if err != nil {
		return res, outcome, fmt.Errorf("submit %s %s: %w", req.Side, req.Instrument, err)
	}
	return res, outcome, nil
}

func (d *Dispatcher) recordOrder(ctx context.Context, req broker.OrderRequest, res broker.OrderResult, strategyID, reason string, outcome Outcome) {
	if d.db == nil {
		return
	}
	status := string(res.Status)
	if outcome != OutcomeSuccess {
		status = "FAILED_" + outcome.String()
	}
	row := db.OrderRow{
		ID:         req.ClientID,
		OrderRef:   res.OrderRef,
		Instrument: req.Instrument,
		StrategyID: strategyID,
		Side:       string(req.Side),
		OrderType:  string(req.Type),
		Qty:        req.Qty,
		Price:      req.Price,
		Status:     status,
		Reason:     reason,
	}
	if err := d.db.InsertOrder(ctx, row); err != nil {
		log.Printf("dispatch: order log write failed: %v", err)
	}
}
