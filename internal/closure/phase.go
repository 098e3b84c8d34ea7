package closure

import (
	"fmt"
	"time"
)

// Phase is the session-time-driven escalation state governing end-of-day
// risk reduction.
type Phase int

const (
	PhaseNormal Phase = iota
	PhaseGradual
	PhaseUrgent
	PhaseImmediate
)

func (p Phase) String() string {
	switch p {
	case PhaseNormal:
		return "NORMAL"
	case PhaseGradual:
		return "GRADUAL"
	case PhaseUrgent:
		return "URGENT"
	case PhaseImmediate:
		return "IMMEDIATE"
	default:
		return "UNKNOWN"
	}
}

// Controller derives the closure phase from wall-clock session time against
// three configured boundaries T0 < T1 < T2 (minutes of day in the session
// timezone). It holds no state beyond the thresholds.
type Controller struct {
	t0, t1, t2 int // minutes of day
	loc        *time.Location
}

// NewController parses "HH:MM" boundary times in the given timezone and
// validates their ordering. A violated ordering is a configuration error
// and must refuse startup.
func NewController(gradual, urgent, immediate, timezone string) (*Controller, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("closure timezone %q: %w", timezone, err)
	}

	t0, err := parseMinuteOfDay(gradual)
	if err != nil {
		return nil, fmt.Errorf("closure gradual time: %w", err)
	}
	t1, err := parseMinuteOfDay(urgent)
	if err != nil {
		return nil, fmt.Errorf("closure urgent time: %w", err)
	}
	t2, err := parseMinuteOfDay(immediate)
	if err != nil {
		return nil, fmt.Errorf("closure immediate time: %w", err)
	}

	if !(t0 < t1 && t1 < t2) {
		return nil, fmt.Errorf("closure times must be strictly increasing: %s < %s < %s violated",
			gradual, urgent, immediate)
	}

	return &Controller{t0: t0, t1: t1, t2: t2, loc: loc}, nil
}

// PhaseAt returns the closure phase for the given wall-clock instant.
func (c *Controller) PhaseAt(now time.Time) Phase {
	local := now.In(c.loc)
	minute := local.Hour()*60 + local.Minute()

	switch {
	case minute < c.t0:
		return PhaseNormal
	case minute < c.t1:
		return PhaseGradual
	case minute < c.t2:
		return PhaseUrgent
	default:
		return PhaseImmediate
	}
}

func parseMinuteOfDay(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("parse %q as HH:MM: %w", s, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}
