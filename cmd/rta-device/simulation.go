package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/georgejecook/roku-test-automation/pkg/interaction"
	"github.com/georgejecook/roku-test-automation/pkg/model"
)

// runSimulation increments global.tick every interval until ctx is done.
// Observers of the field fire on each step.
func runSimulation(ctx context.Context, device *interaction.Server, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	tick := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tick++
			if err := device.SetValue(model.BaseGlobal, "tick", model.Int(tick)); err != nil {
				logger.Warn("simulation step failed", "error", err)
				return
			}
			logger.Debug("simulation tick", "tick", tick)
		}
	}
}
