// Package maintenance runs periodic background tasks as Go tickers. Today that
// is pruning of reminder cooldown records that can no longer suppress a
// reminder.
package maintenance

import (
	"context"
	"log/slog"
	"time"
)

// Config controls maintenance task intervals. Zero duration disables a task.
type Config struct {
	PruneInterval time.Duration // Cooldown pruning
	Retention     time.Duration // Cooldowns older than this are dropped
	Cooldown      time.Duration // Orphaned cooldowns older than this are dropped
}

// DefaultConfig returns sensible production defaults.
func DefaultConfig() Config {
	return Config{
		PruneInterval: 6 * time.Hour,
		Retention:     30 * 24 * time.Hour,
		Cooldown:      60 * time.Minute,
	}
}

// Start launches all configured maintenance tickers. Blocks until ctx is
// cancelled. Intended to be called with `go`.
func Start(ctx context.Context, p Pruner, cfg Config, logger *slog.Logger) {
	logger.Info("Maintenance tickers started",
		"prune", cfg.PruneInterval,
		"retention", cfg.Retention)

	if cfg.PruneInterval > 0 {
		t := time.NewTicker(cfg.PruneInterval)
		defer t.Stop()
		go runLoop(ctx, t.C, func() {
			if _, err := PruneCooldowns(ctx, p, cfg, time.Now(), logger); err != nil {
				logger.Warn("Cooldown prune failed", "error", err)
			}
		})
	}

	<-ctx.Done()
	logger.Info("Maintenance tickers stopped")
}

func runLoop(ctx context.Context, ch <-chan time.Time, fn func()) {
	for {
		select {
		case <-ch:
			fn()
		case <-ctx.Done():
			return
		}
	}
}
