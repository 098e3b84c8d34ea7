package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/shyamanurag/trading-system-new-sub000/internal/arbitration"
	"github.com/shyamanurag/trading-system-new-sub000/internal/closure"
	"github.com/shyamanurag/trading-system-new-sub000/internal/dispatch"
	"github.com/shyamanurag/trading-system-new-sub000/internal/engine"
	"github.com/shyamanurag/trading-system-new-sub000/internal/events"
	"github.com/shyamanurag/trading-system-new-sub000/internal/feed"
	"github.com/shyamanurag/trading-system-new-sub000/internal/lifecycle"
	"github.com/shyamanurag/trading-system-new-sub000/internal/monitor"
	"github.com/shyamanurag/trading-system-new-sub000/internal/ownership"
	"github.com/shyamanurag/trading-system-new-sub000/internal/reconciliation"
	"github.com/shyamanurag/trading-system-new-sub000/internal/risk"
	"github.com/shyamanurag/trading-system-new-sub000/internal/strategy"
	"github.com/shyamanurag/trading-system-new-sub000/pkg/broker"
	"github.com/shyamanurag/trading-system-new-sub000/pkg/config"
	"github.com/shyamanurag/trading-system-new-sub000/pkg/db"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	log.Println("=== signal arbitration engine starting ===")

	ec, err := config.LoadEngineConfig(cfg.EngineConfigPath)
	if err != nil {
		log.Fatalf("engine config: %v", err)
	}
	log.Printf("engine config loaded from %s (rate limit %.1f/s, %d profit tiers)",
		cfg.EngineConfigPath, ec.RateLimitPerSec, len(ec.ProfitTiers))

	// Closure boundaries are validated up front; a misordered schedule
	// must never reach the trading day.
	phases, err := closure.NewController(ec.Closure.Gradual, ec.Closure.Urgent, ec.Closure.Immediate, ec.Closure.Timezone)
	if err != nil {
		log.Fatalf("closure schedule: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	database, err := db.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("db init failed: %v", err)
	}
	defer database.Close()
	if err := database.ApplyMigrations(ctx); err != nil {
		log.Fatalf("db migrations failed: %v", err)
	}

	store := lifecycle.NewStore(database)
	if err := store.Load(ctx); err != nil {
		log.Fatalf("position recovery failed: %v", err)
	}
	log.Printf("recovered %d open positions from %s", store.Len(), cfg.DBPath)

	bus := events.NewBus()
	ledger := ownership.NewLedger(time.Duration(ec.OwnershipTimeoutSec) * time.Second)
	tracker := risk.NewDailyTracker(ec.MaxDailyLoss)
	matrix := strategy.NewPriorityMatrix(ec.Priorities)

	signalTTL := time.Duration(ec.SignalTTLSec) * time.Second
	regimeMaxAge := time.Duration(ec.RegimeMaxAgeSec) * time.Second
	arbitrator := arbitration.New(matrix, ledger, store, tracker, bus, signalTTL, regimeMaxAge)

	var gw broker.Gateway
	if cfg.DryRun {
		log.Println("DRY RUN mode: paper gateway, no orders leave the process")
		gw = broker.NewPaperGateway()
	} else {
		// Live adapters plug in here; refuse to start without one rather
		// than silently paper-trade a live session.
		log.Fatal("no live broker gateway configured; set DRY_RUN=true")
	}

	governor := dispatch.NewGovernor(ec.RateLimitPerSec)
	retry := dispatch.RetryPolicy{
		MaxAttempts: ec.DispatchRetries,
		Backoff:     time.Duration(ec.DispatchBackoffMs) * time.Millisecond,
	}
	dispatcher := dispatch.NewDispatcher(gw, governor, retry, bus, database,
		cfg.BrokerCallTimeout, signalTTL, ec.PendingQueueSize)

	manager := lifecycle.NewManager(lifecycleConfig(ec), bus)
	reconciler := reconciliation.NewService(store, ledger, bus, database, ec.OrphanStopPct, ec.OrphanTargetPct)
	metrics := monitor.NewEngineMetrics()

	mon := &monitor.Monitor{Bus: bus, Sink: monitor.LogSink{}}
	mon.Start(ctx)

	intake := feed.NewIntake()
	regimes := feed.NewRegimeState()
	prices := feed.NewPriceBook()

	eng := engine.New(engine.Config{
		CycleInterval:    cfg.CycleInterval,
		SignalTTL:        signalTTL,
		DefaultStopPct:   ec.DefaultStopPct,
		DefaultTargetPct: ec.DefaultTargetPct,
	}, engine.Deps{
		Signals:    intake,
		Regime:     regimes,
		Market:     prices,
		Store:      store,
		Ledger:     ledger,
		Arbitrator: arbitrator,
		Manager:    manager,
		Phases:     phases,
		Reconciler: reconciler,
		Dispatcher: dispatcher,
		Tracker:    tracker,
		Bus:        bus,
		Metrics:    metrics,
		DB:         database,
	})

	// Session boundaries: reset the daily loss tracker at open, stop the
	// driver after the close window.
	scheduler := cron.New(cron.WithSeconds())
	if _, err := scheduler.AddFunc(cfg.SessionOpenCron, func() {
		tracker.Reset()
		log.Println("session open: daily risk counters reset")
	}); err != nil {
		log.Fatalf("session open schedule: %v", err)
	}
	if _, err := scheduler.AddFunc(cfg.SessionCloseCron, func() {
		log.Println("session close: stopping driver")
		cancel()
	}); err != nil {
		log.Fatalf("session close schedule: %v", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		s := <-sig
		log.Printf("received %s, shutting down", s)
		cancel()
	}()

	eng.Run(ctx)

	for k, v := range metrics.Counters() {
		log.Printf("final %s=%d", k, v)
	}
	cyc := metrics.CycleLatency.Stats()
	dsp := metrics.DispatchLatency.Stats()
	log.Printf("cycle latency ms: avg=%.2f p50=%.2f p95=%.2f max=%.2f (%d samples)",
		cyc.Avg, cyc.P50, cyc.P95, cyc.Max, cyc.Count)
	log.Printf("dispatch latency ms: avg=%.2f p50=%.2f p95=%.2f max=%.2f (%d samples)",
		dsp.Avg, dsp.P50, dsp.P95, dsp.Max, dsp.Count)
	pnl, losses, trades := tracker.Metrics()
	log.Printf("session pnl=%.2f losses=%.2f trades=%d", pnl, losses, trades)
	log.Println("=== engine stopped ===")
}

func lifecycleConfig(ec config.EngineConfig) lifecycle.Config {
	tiers := make([]lifecycle.ProfitTier, 0, len(ec.ProfitTiers))
	for _, t := range ec.ProfitTiers {
		tiers = append(tiers, lifecycle.ProfitTier{TriggerPct: t.TriggerPct, BookFraction: t.BookFraction})
	}
	return lifecycle.Config{
		EmergencyLossAbs:    ec.EmergencyStopAbs,
		EmergencyLossPct:    ec.EmergencyStopPct,
		Tiers:               tiers,
		GradualTierFactor:   ec.GradualTierFactor,
		UrgentFractionBoost: ec.UrgentFractionBoost,
		UrgentLossPct:       ec.UrgentLossPct,
		BreakevenTriggerPct: ec.BreakevenTriggerPct,
		BreakevenBufferPct:  ec.BreakevenBufferPct,
		VolTightenThreshold: ec.VolTightenThreshold,
		VolLockFraction:     ec.VolLockFraction,
		AgeTightenAfter:     time.Duration(ec.AgeTightenAfterMin) * time.Minute,
		AgeLockStep:         ec.AgeLockStep,
		AgeLockMax:          ec.AgeLockMax,
		ScaleMaxAge:         time.Duration(ec.ScaleMaxAgeMin) * time.Minute,
		ScaleMomentumPct:    ec.ScaleMomentumPct,
		ScaleVolumeRatio:    ec.ScaleVolumeRatio,
		ScaleMaxFraction:    ec.ScaleMaxFraction,
	}
}
