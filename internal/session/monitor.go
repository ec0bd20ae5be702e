package session

import (
	"context"
	"time"
)

// monitor enforces the call-duration and silence ceilings on a fixed tick.
// It never touches the hot path; closure goes through the same shutdown as
// every other terminal event.
func (c *Controller) monitor(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.MonitorTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.closed:
			return
		case <-ticker.C:
			now := time.Now()

			c.mu.Lock()
			started := c.startedAt
			c.mu.Unlock()

			if !started.IsZero() && now.Sub(started) >= c.cfg.MaxCallDuration {
				c.log.Info("max call duration reached",
					"call_id", c.CallID(), "elapsed", now.Sub(started))
				c.closeWithHangup(EndMaxDuration, nil)
				return
			}

			if idle := now.Sub(c.audioState.LastActivity()); idle >= c.cfg.SilenceTimeout {
				c.log.Info("silence timeout reached",
					"call_id", c.CallID(), "idle", idle)
				c.closeWithHangup(EndSilenceTimeout, nil)
				return
			}

			c.log.Debug("call health",
				"call_id", c.CallID(),
				"state", c.State(),
				"recognizer", c.supervisor.Health().Status,
				"spill_bytes", c.ingress.SpillBytes())
		}
	}
}
