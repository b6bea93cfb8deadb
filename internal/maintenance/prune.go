package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Pruner deletes stale cooldown records.
type Pruner interface {
	Prune(ctx context.Context, olderThan, orphanedBefore time.Time) (int64, error)
}

// PruneCooldowns removes cooldowns older than the retention, and cooldowns
// without a binding once they are older than the reminder cooldown. Neither
// set can suppress a reminder any more. A retention shorter than the cooldown
// is raised to the cooldown.
func PruneCooldowns(ctx context.Context, p Pruner, cfg Config, now time.Time, logger *slog.Logger) (int64, error) {
	retention := max(cfg.Retention, cfg.Cooldown)

	start := time.Now()
	n, err := p.Prune(ctx, now.Add(-retention), now.Add(-cfg.Cooldown))
	dur := time.Since(start).Round(time.Millisecond)
	if err != nil {
		return n, fmt.Errorf("prune cooldowns: %w", err)
	}
	if n > 0 {
		logger.Info("Pruned cooldowns", "count", n, "duration", dur)
	} else {
		logger.Debug("No cooldowns to prune", "duration", dur)
	}
	return n, nil
}
