package server

import (
	"log/slog"
	"time"

	"signalcore/internal/conn"
)

// pongWait bounds how long the reader will wait for a pong before the
// read loop gives up; only a pong refreshes the read deadline, other
// inbound frames do not. It is a fixed constant (twice the default
// heartbeat interval) and does not follow a configured HeartbeatInterval.
const pongWait = 60 * time.Second

// runHeartbeat runs for the lifetime of one connection: every interval,
// if the connection answered the previous ping it sends another;
// otherwise it counts a miss, and after maxMissed consecutive misses it
// terminates the transport and returns, relying on readPump's own
// cleanup to run.
func (rt *Runtime) runHeartbeat(c *conn.Connection, t *transport) {
	interval := rt.cfg.HeartbeatInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	maxMissed := rt.cfg.HeartbeatMaxMissed
	if maxMissed <= 0 {
		maxMissed = 3
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.closed:
			return
		case <-ticker.C:
			shouldPing, missed, exceeded := c.CheckHeartbeat(maxMissed)
			if exceeded {
				rt.logger.Warn("heartbeat expired, terminating connection",
					slog.String("clientId", c.ClientID()), slog.Int("missed", missed))
				t.Close(1001, "going away")
				return
			}
			if !shouldPing {
				continue
			}
			if err := t.sendPing(); err != nil {
				rt.logger.Debug("ping failed", slog.String("clientId", c.ClientID()), slog.Any("error", err))
				return
			}
		}
	}
}
