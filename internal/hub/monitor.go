package hub

import (
	"log/slog"
	"time"
)

// Monitor keeps otherwise-idle popout and tracking channels alive against
// the transport's inactivity timeout and detects dead transports by send
// failure. A successful probe proves only that the transport has not
// errored yet; the monitor does not time out on missing pongs (the pong
// reply is discarded by the router).
type Monitor struct {
	interval time.Duration
	drop     func(ch *Channel, reason string)
}

func newMonitor(interval time.Duration, drop func(ch *Channel, reason string)) *Monitor {
	return &Monitor{interval: interval, drop: drop}
}

// Watch starts the recurring probe for a channel. The probe stops exactly
// once: on the channel's termination or on the first failed send,
// whichever comes first.
func (m *Monitor) Watch(ch *Channel) {
	go m.run(ch)
}

func (m *Monitor) run(ch *Channel) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ch.done:
			return
		case <-ticker.C:
			if err := ch.port.Send(controlMsg{Action: ActionPing}); err != nil {
				slog.Debug("liveness probe failed", "channel", ch.id, "kind", ch.kind.String(), "error", err)
				m.drop(ch, "probe send failed")
				return
			}
			ch.touch()
		}
	}
}
