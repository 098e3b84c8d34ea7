package monitor

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/shyamanurag/trading-system-new-sub000/internal/events"
)

// Monitor watches the critical alert and dispatch failure streams and
// routes them to an operator-facing sink. Critical alerts cover unresolved
// exit failures and emergency stops.
type Monitor struct {
	Bus  *events.Bus
	Sink AlertSink
}

// Start subscribes and forwards until ctx is canceled.
func (m *Monitor) Start(ctx context.Context) {
	if m.Bus == nil || m.Sink == nil {
		log.Println("monitor not fully configured; skipping")
		return
	}

	critical, unsubCritical := m.Bus.Subscribe(events.TopicCriticalAlert, 50)
	failures, unsubFailures := m.Bus.Subscribe(events.TopicDispatchFailure, 50)

	go func() {
		defer unsubCritical()
		defer unsubFailures()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-critical:
				if !ok {
					return
				}
				m.send("CRITICAL", msg)
			case msg, ok := <-failures:
				if !ok {
					return
				}
				m.send("DISPATCH", msg)
			}
		}
	}()
}

func (m *Monitor) send(level string, msg any) {
	line := fmt.Sprintf("[%s] %s %s", time.Now().Format(time.RFC3339), level, toString(msg))
	if err := m.Sink.Send(line); err != nil {
		log.Printf("monitor: alert delivery failed: %v", err)
	}
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}

// LogSink delivers alerts to the process log. The default sink when no
// external channel is configured.
type LogSink struct{}

func (LogSink) Send(message string) error {
	log.Printf("ALERT %s", message)
	return nil
}
