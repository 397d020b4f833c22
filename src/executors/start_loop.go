package executors

import (
	"context"
	"time"

	logger "github.com/sirupsen/logrus"

	"papershort/src/engine"
)

// StartLoop drives the engine on a fixed period until the context is
// cancelled. Cycle overlap is the engine's problem: a tick that lands while
// the previous cycle still runs is rejected there, not queued here.
func StartLoop(ctx context.Context, eng *engine.Engine) error {
	config := GetConfig()

	ticker := time.NewTicker(config.LoopPeriod)
	defer ticker.Stop()

	logger.WithField("period", config.LoopPeriod).Info("scan loop started")

	if config.RunAtStart {
		runOnce(ctx, eng)
	}

	for {
		select {
		case <-ctx.Done():
			logger.Info("scan loop stopped")
			return nil

		case <-ticker.C:
			runOnce(ctx, eng)
		}
	}
}

func runOnce(ctx context.Context, eng *engine.Engine) {
	result := eng.RunCycle(ctx, engine.TriggerTimer)
	if !result.Executed {
		logger.WithField("reason", result.Reason).Warn("timer cycle did not execute")
	}
}
