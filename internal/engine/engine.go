package engine

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/shyamanurag/trading-system-new-sub000/internal/arbitration"
	"github.com/shyamanurag/trading-system-new-sub000/internal/closure"
	"github.com/shyamanurag/trading-system-new-sub000/internal/dispatch"
	"github.com/shyamanurag/trading-system-new-sub000/internal/events"
	"github.com/shyamanurag/trading-system-new-sub000/internal/lifecycle"
	"github.com/shyamanurag/trading-system-new-sub000/internal/monitor"
	"github.com/shyamanurag/trading-system-new-sub000/internal/ownership"
	"github.com/shyamanurag/trading-system-new-sub000/internal/reconciliation"
	"github.com/shyamanurag/trading-system-new-sub000/internal/risk"
	"github.com/shyamanurag/trading-system-new-sub000/internal/strategy"
	"github.com/shyamanurag/trading-system-new-sub000/pkg/db"
)

// Engine is the periodic driver. Each cycle runs, in strict order:
// reconciliation, lifecycle evaluation, signal arbitration, dispatch. The
// driver goroutine is the sole writer of the ownership ledger and position
// store within a cycle; a new cycle never starts before the previous one
// completes.
type Engine struct {
	cfg Config

	signals strategySourceSet

	store      *lifecycle.Store
	ledger     *ownership.Ledger
	arbitrator *arbitration.Arbitrator
	manager    *lifecycle.Manager
	phases     *closure.Controller
	reconciler *reconciliation.Service
	dispatcher *dispatch.Dispatcher
	tracker    *risk.DailyTracker
	bus        *events.Bus
	metrics    *monitor.EngineMetrics
	db         *db.Database // audit trail; may be nil

	lastPhase closure.Phase
}

type strategySourceSet struct {
	signals SignalSource
	regime  RegimeSource
	market  MarketData
}

// Deps bundles the engine's collaborators.
type Deps struct {
	Signals    SignalSource
	Regime     RegimeSource
	Market     MarketData
	Store      *lifecycle.Store
	Ledger     *ownership.Ledger
	Arbitrator *arbitration.Arbitrator
	Manager    *lifecycle.Manager
	Phases     *closure.Controller
	Reconciler *reconciliation.Service
	Dispatcher *dispatch.Dispatcher
	Tracker    *risk.DailyTracker
	Bus        *events.Bus
	Metrics    *monitor.EngineMetrics
	DB         *db.Database
}

// New wires the driver.
func New(cfg Config, deps Deps) *Engine {
	if cfg.CycleInterval <= 0 {
		cfg.CycleInterval = 5 * time.Second
	}
	return &Engine{
		cfg:        cfg,
		signals:    strategySourceSet{signals: deps.Signals, regime: deps.Regime, market: deps.Market},
		store:      deps.Store,
		ledger:     deps.Ledger,
		arbitrator: deps.Arbitrator,
		manager:    deps.Manager,
		phases:     deps.Phases,
		reconciler: deps.Reconciler,
		dispatcher: deps.Dispatcher,
		tracker:    deps.Tracker,
		bus:        deps.Bus,
		metrics:    deps.Metrics,
		db:         deps.DB,
		lastPhase:  closure.PhaseNormal,
	}
}

// Run drives cycles at the configured cadence until ctx is canceled. An
// in-flight cycle completes before Run returns, so dispatches are never
// abandoned mid-call.
func (e *Engine) Run(ctx context.Context) {
	log.Printf("engine: driver started (cycle interval %v)", e.cfg.CycleInterval)
	ticker := time.NewTicker(e.cfg.CycleInterval)
	defer ticker.Stop()

	// Cycles run to completion even when the stop arrives mid-cycle:
	// aborting a broker call halfway leaves a position ambiguous.
	cycleCtx := context.WithoutCancel(ctx)

	e.RunCycle(cycleCtx, time.Now())
	for {
		select {
		case <-ctx.Done():
			log.Println("engine: stop requested, no new cycles")
			return
		case now := <-ticker.C:
			e.RunCycle(cycleCtx, now)
		}
	}
}

// RunCycle executes one full cycle at the given wall-clock instant.
func (e *Engine) RunCycle(ctx context.Context, now time.Time) {
	start := time.Now()
	defer func() {
		if e.metrics != nil {
			e.metrics.CycleLatency.Record(time.Since(start))
		}
	}()

	phase := e.phases.PhaseAt(now)
	if phase != e.lastPhase {
		log.Printf("engine: closure phase %s -> %s", e.lastPhase, phase)
		if e.bus != nil {
			e.bus.Publish(events.TopicPhaseTransition, fmt.Sprintf("%s -> %s", e.lastPhase, phase))
		}
		e.audit(ctx, events.TopicPhaseTransition, "", fmt.Sprintf("%s -> %s", e.lastPhase, phase))
		e.lastPhase = phase
	}

	e.reconcile(ctx, now)
	e.evaluatePositions(ctx, phase, now)

	// Stale ownership with no matching position self-heals here.
	for _, instrument := range e.ledger.Sweep(now, e.store.Has) {
		log.Printf("engine: released stale ownership of %s", instrument)
	}

	e.arbitrateAndDispatch(ctx, phase, now)
}

// reconcile syncs the authoritative set against the broker. A fetch
// failure degrades the cycle (skip reconciliation) rather than blocking
// position management.
func (e *Engine) reconcile(ctx context.Context, now time.Time) {
	brokerPositions, err := e.dispatcher.FetchPositions(ctx)
	if err != nil {
		log.Printf("engine: reconciliation skipped: %v", err)
		return
	}
	report := e.reconciler.Reconcile(ctx, brokerPositions, now)
	if e.metrics != nil {
		e.metrics.AddOrphans(len(report.Recovered))
		e.metrics.AddPhantoms(len(report.Dropped))
	}
}

// evaluatePositions runs the lifecycle rule chain over every open position
// and applies the resulting management actions. Positions are disjoint so
// per-position evaluation order does not matter.
func (e *Engine) evaluatePositions(ctx context.Context, phase closure.Phase, now time.Time) {
	for _, snapshot := range e.store.List() {
		pos := snapshot
		tick, ok := e.signals.market.Tick(pos.Instrument)
		if !ok {
			log.Printf("engine: no market data for %s, skipping evaluation", pos.Instrument)
			continue
		}

		actions := e.manager.Evaluate(&pos, tick, phase, now)
		// Persist evaluation-side mutations (stop level, booked tiers)
		// before dispatching so a crash cannot re-fire a booked tier.
		if err := e.store.Update(ctx, &pos); err != nil {
			log.Printf("engine: persist evaluation of %s: %v", pos.Instrument, err)
		}

		if e.metrics != nil && len(actions) > 0 {
			e.metrics.AddActions(len(actions))
		}
		for _, act := range actions {
			e.applyAction(ctx, act, &pos)
		}
	}
}

// applyAction dispatches one management action and, on confirmation,
// applies its effect to the authoritative set. Failed full exits keep the
// position so the next cycle retries them.
func (e *Engine) applyAction(ctx context.Context, act lifecycle.Action, pos *lifecycle.Position) {
	if e.bus != nil {
		e.bus.Publish(events.TopicManagementAction, act)
	}
	log.Printf("engine: action %s %s qty=%.2f reason=%s", act.Kind, act.Instrument, act.Quantity, act.Reason)

	start := time.Now()
	res, err := e.dispatcher.DispatchAction(ctx, act)
	if e.metrics != nil {
		e.metrics.DispatchLatency.Record(time.Since(start))
	}
	if err != nil {
		if e.metrics != nil {
			e.metrics.IncDispatchFailures()
		}
		// The tier was booked (and persisted) before this dispatch. With no
		// fill there is nothing reduced; clear the booking or the reduction
		// would never be re-emitted.
		if act.Kind == lifecycle.ActionPartialExit && act.TierTrigger > 0 {
			if cur, ok := e.store.Get(act.Instrument); ok {
				cur.UnbookTier(act.TierTrigger)
				if uerr := e.store.Update(ctx, cur); uerr != nil {
					log.Printf("engine: unbook tier %.0f on %s: %v", act.TierTrigger, act.Instrument, uerr)
				}
			}
		}
		return
	}

	switch act.Kind {
	case lifecycle.ActionFullExit:
		fill := res.AvgPrice
		if fill == 0 {
			fill = act.Price
		}
		e.tracker.RecordExit(pos.UnrealizedPnL(fill))
		e.store.Remove(ctx, act.Instrument)
		e.ledger.Release(act.Instrument)
		e.audit(ctx, events.TopicManagementAction, act.Instrument,
			fmt.Sprintf("full exit qty=%.2f reason=%s fill=%.2f", act.Quantity, act.Reason, fill))

	case lifecycle.ActionPartialExit:
		fill := res.AvgPrice
		if fill == 0 {
			fill = act.Price
		}
		exited := *pos
		exited.Quantity = act.Quantity
		e.tracker.RecordExit(exited.UnrealizedPnL(fill))
		closed, err := e.store.Reduce(ctx, act.Instrument, act.Quantity)
		if err != nil {
			log.Printf("engine: reduce %s: %v", act.Instrument, err)
			return
		}
		if closed {
			e.ledger.Release(act.Instrument)
		}

	case lifecycle.ActionScale:
		fill := res.AvgPrice
		if fill == 0 {
			fill = act.Price
		}
		if err := e.store.Scale(ctx, act.Instrument, act.Quantity, fill); err != nil {
			log.Printf("engine: scale %s: %v", act.Instrument, err)
		}

	case lifecycle.ActionAdjustStop:
		// Stop already tightened on the stored position by Update.
	}
}

// arbitrateAndDispatch collects the cycle's signal batch, arbitrates it,
// and releases approvals through the rate-governed dispatcher.
func (e *Engine) arbitrateAndDispatch(ctx context.Context, phase closure.Phase, now time.Time) {
	// Queued entries from earlier cycles go first; they are oldest.
	opened, dead := e.dispatcher.FlushPending(ctx, now)
	for _, o := range opened {
		e.openPosition(ctx, o, now)
	}
	// A queued signal held its ownership claim; once it expires or fails
	// the instrument goes back to the next proposer.
	for _, s := range dead {
		if owner, _, ok := e.ledger.Owner(s.Instrument, now); ok && owner == s.StrategyID {
			e.ledger.Release(s.Instrument)
		}
	}

	batch, err := e.signals.signals.PendingSignals(ctx)
	if err != nil {
		log.Printf("engine: signal collection failed: %v", err)
		return
	}
	if e.metrics != nil {
		e.metrics.AddSignalsSeen(len(batch))
	}
	if len(batch) == 0 {
		return
	}

	regime, err := e.signals.regime.CurrentRegime(ctx)
	if err != nil {
		// Arbitration handles the zero regime as degraded pass-through.
		log.Printf("engine: regime unavailable: %v", err)
		regime = strategy.MarketRegime{}
	}

	approved, rejected := e.arbitrator.Arbitrate(batch, regime, phase, now)
	if e.metrics != nil {
		e.metrics.AddSignalsApproved(len(approved))
		e.metrics.AddSignalsRejected(len(rejected))
	}

	for _, sig := range approved {
		start := time.Now()
		res, admitted, err := e.dispatcher.DispatchSignal(ctx, sig, now)
		if e.metrics != nil {
			e.metrics.DispatchLatency.Record(time.Since(start))
		}
		if err != nil {
			// The signal is consumed; free the instrument for the next
			// proposer.
			if e.metrics != nil {
				e.metrics.IncDispatchFailures()
			}
			e.ledger.Release(sig.Instrument)
			continue
		}
		if !admitted {
			continue // queued; ownership holds until it dispatches or expires
		}
		e.openPosition(ctx, dispatch.Opened{Signal: sig, Result: res}, now)
	}
}

// openPosition records a confirmed entry fill in the authoritative set.
func (e *Engine) openPosition(ctx context.Context, opened dispatch.Opened, now time.Time) {
	sig := opened.Signal
	fill := opened.Result.AvgPrice
	if fill == 0 {
		fill = sig.Price
	}
	qty := opened.Result.FilledQty
	if qty == 0 {
		qty = sig.Quantity
	}

	stop := fill * (1 - e.cfg.DefaultStopPct/100)
	target := fill * (1 + e.cfg.DefaultTargetPct/100)
	if sig.Direction == strategy.DirectionShort {
		stop = fill * (1 + e.cfg.DefaultStopPct/100)
		target = fill * (1 - e.cfg.DefaultTargetPct/100)
	}

	pos := &lifecycle.Position{
		Instrument:  sig.Instrument,
		StrategyID:  sig.StrategyID,
		Direction:   sig.Direction,
		Quantity:    qty,
		OriginalQty: qty,
		AvgEntry:    fill,
		StopLoss:    stop,
		Target:      target,
		OpenedAt:    now,
		LastPrice:   fill,
	}
	if err := e.store.Insert(ctx, pos); err != nil {
		log.Printf("engine: record opened position %s: %v", sig.Instrument, err)
		return
	}
	log.Printf("engine: opened %s %s %.2f @ %.2f (stop %.2f, target %.2f) for %s",
		sig.Direction, sig.Instrument, qty, fill, stop, target, sig.StrategyID)
}

func (e *Engine) audit(ctx context.Context, topic events.Topic, instrument, detail string) {
	if e.db == nil {
		return
	}
	if err := e.db.InsertAudit(ctx, string(topic), instrument, detail); err != nil {
		log.Printf("engine: audit write failed: %v", err)
	}
}
