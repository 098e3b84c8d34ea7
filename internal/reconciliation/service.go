package reconciliation

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/shyamanurag/trading-system-new-sub000/internal/events"
	"github.com/shyamanurag/trading-system-new-sub000/internal/lifecycle"
	"github.com/shyamanurag/trading-system-new-sub000/internal/ownership"
	"github.com/shyamanurag/trading-system-new-sub000/internal/strategy"
	"github.com/shyamanurag/trading-system-new-sub000/pkg/broker"
	"github.com/shyamanurag/trading-system-new-sub000/pkg/db"
)

// RecoveredOwner is the strategy id assigned to positions adopted from the
// broker with no internal record.
const RecoveredOwner = "ORPHAN_RECOVERY"

const qtyEpsilon = 1e-6

// Service diffs the engine's position set against the broker's reported
// holdings. The broker is the source of truth: orphans (broker-only) are
// adopted with conservative protective levels, phantoms (internal-only) are
// dropped on the assumption the closure already happened out-of-band. This
// is the only writer allowed to insert or remove positions outside the
// normal open/close dispatch path.
type Service struct {
	store  *lifecycle.Store
	ledger *ownership.Ledger
	bus    *events.Bus  // may be nil
	db     *db.Database // may be nil; audit trail

	orphanStopPct   float64
	orphanTargetPct float64
}

// Report summarizes one reconciliation pass.
type Report struct {
	Recovered []lifecycle.Position
	Dropped   []string
}

// NewService creates a reconciliation service with the given conservative
// protective percentages for adopted orphans.
func NewService(store *lifecycle.Store, ledger *ownership.Ledger, bus *events.Bus, database *db.Database, orphanStopPct, orphanTargetPct float64) *Service {
	if orphanStopPct <= 0 {
		orphanStopPct = 5
	}
	if orphanTargetPct <= 0 {
		orphanTargetPct = 10
	}
	return &Service{
		store:           store,
		ledger:          ledger,
		bus:             bus,
		db:              database,
		orphanStopPct:   orphanStopPct,
		orphanTargetPct: orphanTargetPct,
	}
}

// Reconcile runs one diff pass against the broker's holdings, before
// arbitration and lifecycle evaluation in the driver's cycle.
func (s *Service) Reconcile(ctx context.Context, brokerPositions []broker.Position, now time.Time) Report {
	var report Report

	seen := make(map[string]bool, len(brokerPositions))
	for _, bp := range brokerPositions {
		if math.Abs(bp.Quantity) < qtyEpsilon {
			continue
		}
		seen[bp.Instrument] = true
		if s.store.Has(bp.Instrument) {
			continue
		}

		pos := s.adopt(bp, now)
		if err := s.store.Insert(ctx, pos); err != nil {
			log.Printf("reconciliation: adopt %s failed: %v", bp.Instrument, err)
			continue
		}
		s.ledger.ForceAcquire(bp.Instrument, RecoveredOwner, now)
		report.Recovered = append(report.Recovered, *pos)

		detail := fmt.Sprintf("orphan adopted qty=%.2f avg=%.2f stop=%.2f target=%.2f",
			pos.Quantity, pos.AvgEntry, pos.StopLoss, pos.Target)
		log.Printf("reconciliation: %s %s", bp.Instrument, detail)
		s.audit(ctx, events.TopicOrphanRecovered, bp.Instrument, detail)
	}

	for _, pos := range s.store.List() {
		if seen[pos.Instrument] {
			continue
		}
		s.store.Remove(ctx, pos.Instrument)
		s.ledger.Release(pos.Instrument)
		report.Dropped = append(report.Dropped, pos.Instrument)

		detail := fmt.Sprintf("phantom dropped qty=%.2f (broker reports flat)", pos.Quantity)
		log.Printf("reconciliation: %s %s", pos.Instrument, detail)
		s.audit(ctx, events.TopicPhantomDropped, pos.Instrument, detail)
	}

	return report
}

// adopt synthesizes a position for a broker holding, with a conservative
// emergency stop and target around the broker's average price.
func (s *Service) adopt(bp broker.Position, now time.Time) *lifecycle.Position {
	dir := strategy.DirectionLong
	qty := bp.Quantity
	if qty < 0 {
		dir = strategy.DirectionShort
		qty = -qty
	}

	stop := bp.AvgPrice * (1 - s.orphanStopPct/100)
	target := bp.AvgPrice * (1 + s.orphanTargetPct/100)
	if dir == strategy.DirectionShort {
		stop = bp.AvgPrice * (1 + s.orphanStopPct/100)
		target = bp.AvgPrice * (1 - s.orphanTargetPct/100)
	}

	return &lifecycle.Position{
		Instrument:  bp.Instrument,
		StrategyID:  RecoveredOwner,
		Direction:   dir,
		Quantity:    qty,
		OriginalQty: qty,
		AvgEntry:    bp.AvgPrice,
		StopLoss:    stop,
		Target:      target,
		OpenedAt:    now,
		LastPrice:   bp.AvgPrice,
		Recovered:   true,
	}
}

func (s *Service) audit(ctx context.Context, topic events.Topic, instrument, detail string) {
	if s.bus != nil {
		s.bus.Publish(topic, map[string]string{"instrument": instrument, "detail": detail})
	}
	if s.db != nil {
		if err := s.db.InsertAudit(ctx, string(topic), instrument, detail); err != nil {
			log.Printf("reconciliation: audit write failed: %v", err)
		}
	}
}
