package server

import (
	"context"
	"log/slog"
	"time"
)

// Shutdown stops accepting new upgrades, sends close 1001 to every open
// connection, and waits up to drain for them to finish closing before
// returning.
func (rt *Runtime) Shutdown(drain time.Duration) {
	rt.draining.Store(true)
	rt.logger.Info("shutdown: draining connections", slog.Int("count", rt.Registry.Count()), slog.Duration("drain", drain))

	ctx, cancel := context.WithTimeout(context.Background(), drain)
	defer cancel()
	rt.Registry.Shutdown(ctx)

	deadline := time.Now().Add(drain)
	for rt.Registry.Count() > 0 && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
	rt.logger.Info("shutdown complete", slog.Int("remaining", rt.Registry.Count()))
}
