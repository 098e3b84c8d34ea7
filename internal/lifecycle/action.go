package lifecycle

import "github.com/shyamanurag/trading-system-new-sub000/internal/strategy"

// ActionKind identifies what a management action does to a position.
type ActionKind string

const (
	ActionPartialExit ActionKind = "PARTIAL_EXIT"
	ActionScale       ActionKind = "SCALE"
	ActionAdjustStop  ActionKind = "ADJUST_STOP"
	ActionFullExit    ActionKind = "FULL_EXIT"
)

// Reason codes carried on management actions for the audit trail.
type Reason string

const (
	ReasonEmergencyStop Reason = "EMERGENCY_STOP"
	ReasonStopLossHit   Reason = "STOP_LOSS_HIT"
	ReasonTargetHit     Reason = "TARGET_HIT"
	ReasonProfitTier    Reason = "PROFIT_TIER"
	ReasonStopTightened Reason = "STOP_TIGHTENED"
	ReasonScaleIn       Reason = "SCALE_IN"
	ReasonUrgentLoss    Reason = "URGENT_LOSS_CLOSE"
	ReasonSessionClose  Reason = "SESSION_CLOSE"
)

// Action is a lifecycle-driven order, distinct from a new strategy signal.
// Priority actions bypass the dispatcher's rate governor: a late protective
// exit is worse than a momentary rate excess.
type Action struct {
	Instrument  string
	StrategyID  string
	Direction   strategy.Direction // direction of the position being managed
	Kind        ActionKind
	Quantity    float64 // delta for partial exits and scales, full size for exits
	Price       float64 // reference price when the action was emitted
	NewStop     float64 // ADJUST_STOP only
	TierTrigger float64 // PARTIAL_EXIT from a profit tier: the booked trigger pct
	Reason      Reason
	Priority    bool
}
