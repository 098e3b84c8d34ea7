package monitor

// AlertSink receives operator-facing alerts raised by the monitor. The
// stock implementation logs; a pager or chat hook plugs in here.
type AlertSink interface {
	Send(message string) error
}
