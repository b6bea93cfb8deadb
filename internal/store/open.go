package store

import (
	"context"
	"fmt"

	"github.com/Alexey3476/CoC-Telegramm/internal/config"
	"github.com/Alexey3476/CoC-Telegramm/internal/db"
)

// Open returns the backend selected by cfg: Postgres when DATABASE_URL is set,
// SQLite at DATABASE_PATH otherwise.
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	if cfg.UsesPostgres() {
		pool, err := db.New(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		return NewPostgres(pool), nil
	}

	s, err := OpenSQLite(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	return s, nil
}
