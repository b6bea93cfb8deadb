// Package db provides a pgxpool-based connection pool with schema setup,
// prepared statement registration and health checking.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Alexey3476/CoC-Telegramm/internal/config"
)

// Pool wraps pgxpool.Pool with application-specific helpers.
type Pool struct {
	*pgxpool.Pool
}

// New creates and validates a new connection pool and applies the schema.
func New(ctx context.Context, cfg *config.Config) (*Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	poolCfg.MinConns = int32(cfg.DBPoolMinConns)
	poolCfg.MaxConns = int32(cfg.DBPoolMaxConns)
	poolCfg.MaxConnLifetime = cfg.DBPoolMaxLife
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// Tables must exist before statements referencing them can be prepared.
	if err := applySchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	pool.Close()

	// Register prepared statements on every new connection.
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return registerPreparedStatements(ctx, conn)
	}
	pool, err = pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Pool{Pool: pool}, nil
}

// HealthCheck runs a trivial query to verify the database is reachable.
func (p *Pool) HealthCheck(ctx context.Context) error {
	var n int
	return p.QueryRow(ctx, "health_check").Scan(&n)
}

// applySchema creates the bindings and cooldown tables. Idempotent.
func applySchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS bindings (
			id BIGSERIAL PRIMARY KEY,
			telegram_user_id BIGINT NOT NULL,
			telegram_username TEXT,
			telegram_full_name TEXT NOT NULL,
			coc_player_tag TEXT NOT NULL,
			group_id BIGINT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_bindings_user_group
			ON bindings (telegram_user_id, group_id)`,
		`CREATE INDEX IF NOT EXISTS idx_bindings_group ON bindings (group_id)`,
		`CREATE TABLE IF NOT EXISTS reminder_cooldowns (
			telegram_user_id BIGINT NOT NULL,
			group_id BIGINT NOT NULL,
			last_reminded_at BIGINT NOT NULL,
			PRIMARY KEY (telegram_user_id, group_id)
		)`,
	}
	for _, s := range stmts {
		if _, err := pool.Exec(ctx, s); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// registerPreparedStatements registers all statements the store uses.
func registerPreparedStatements(ctx context.Context, conn *pgx.Conn) error {
	stmts := map[string]string{
		// Health
		"health_check": "SELECT 1",

		// Bindings
		"upsert_binding": `
			INSERT INTO bindings (telegram_user_id, telegram_username, telegram_full_name, coc_player_tag, group_id, created_at)
			VALUES ($1, $2, $3, $4, $5, NOW())
			ON CONFLICT (telegram_user_id, group_id) DO UPDATE SET
				telegram_username = excluded.telegram_username,
				telegram_full_name = excluded.telegram_full_name,
				coc_player_tag = excluded.coc_player_tag,
				created_at = excluded.created_at`,
		"delete_binding":      "DELETE FROM bindings WHERE telegram_user_id = $1 AND group_id = $2",
		"binding_group_ids":   "SELECT DISTINCT group_id FROM bindings ORDER BY group_id",
		"bindings_by_group":   "SELECT telegram_user_id, telegram_username, telegram_full_name, coc_player_tag, group_id, created_at FROM bindings WHERE group_id = $1 ORDER BY telegram_user_id",
		"binding_by_user":     "SELECT telegram_user_id, telegram_username, telegram_full_name, coc_player_tag, group_id, created_at FROM bindings WHERE telegram_user_id = $1 AND group_id = $2",
		"cooldowns_by_group":  "SELECT telegram_user_id, last_reminded_at FROM reminder_cooldowns WHERE group_id = $1",
		"upsert_cooldown":     "INSERT INTO reminder_cooldowns (telegram_user_id, group_id, last_reminded_at) VALUES ($1, $2, $3) ON CONFLICT (telegram_user_id, group_id) DO UPDATE SET last_reminded_at = excluded.last_reminded_at",
		"prune_old_cooldowns": "DELETE FROM reminder_cooldowns WHERE last_reminded_at < $1",
		"prune_orphan_cooldowns": `
			DELETE FROM reminder_cooldowns c
			WHERE c.last_reminded_at < $1
			  AND NOT EXISTS (
				SELECT 1 FROM bindings b
				WHERE b.telegram_user_id = c.telegram_user_id AND b.group_id = c.group_id
			  )`,
	}

	for name, sql := range stmts {
		if _, err := conn.Prepare(ctx, name, sql); err != nil {
			return fmt.Errorf("prepare %q: %w", name, err)
		}
	}
	return nil
}
