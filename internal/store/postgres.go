package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Alexey3476/CoC-Telegramm/internal/db"
)

// Postgres is the Store backend on a pgx pool. Queries use the prepared
// statements registered by db.New.
type Postgres struct {
	pool *db.Pool
}

// NewPostgres wraps a connected pool.
func NewPostgres(pool *db.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Close releases the pool.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

// Ping verifies the database is reachable.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.HealthCheck(ctx)
}

// Binding operations

func (p *Postgres) Upsert(ctx context.Context, b Binding) error {
	b = normalize(b)
	if err := validate(b); err != nil {
		return err
	}
	var username *string
	if b.Username != "" {
		username = &b.Username
	}
	if _, err := p.pool.Exec(ctx, "upsert_binding",
		b.UserID, username, b.DisplayName, b.PlayerTag, b.GroupID); err != nil {
		return fmt.Errorf("upsert binding: %w", err)
	}
	return nil
}

func (p *Postgres) Remove(ctx context.Context, userID, groupID int64) (bool, error) {
	tag, err := p.pool.Exec(ctx, "delete_binding", userID, groupID)
	if err != nil {
		return false, fmt.Errorf("remove binding: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (p *Postgres) Get(ctx context.Context, userID, groupID int64) (*Binding, error) {
	b, err := scanPgBinding(p.pool.QueryRow(ctx, "binding_by_user", userID, groupID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get binding: %w", err)
	}
	return b, nil
}

func (p *Postgres) GroupIDs(ctx context.Context) ([]int64, error) {
	rows, err := p.pool.Query(ctx, "binding_group_ids")
	if err != nil {
		return nil, fmt.Errorf("list group ids: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("scan group ids: %w", err)
	}
	return ids, nil
}

func (p *Postgres) ListByGroup(ctx context.Context, groupID int64) ([]Binding, error) {
	rows, err := p.pool.Query(ctx, "bindings_by_group", groupID)
	if err != nil {
		return nil, fmt.Errorf("list bindings: %w", err)
	}
	defer rows.Close()

	var bindings []Binding
	for rows.Next() {
		b, err := scanPgBinding(rows)
		if err != nil {
			return nil, fmt.Errorf("scan binding: %w", err)
		}
		bindings = append(bindings, *b)
	}
	return bindings, rows.Err()
}

// Cooldown operations

func (p *Postgres) Cooldowns(ctx context.Context, groupID int64) (map[int64]time.Time, error) {
	rows, err := p.pool.Query(ctx, "cooldowns_by_group", groupID)
	if err != nil {
		return nil, fmt.Errorf("list cooldowns: %w", err)
	}
	defer rows.Close()

	cooldowns := make(map[int64]time.Time)
	for rows.Next() {
		var userID, ts int64
		if err := rows.Scan(&userID, &ts); err != nil {
			return nil, fmt.Errorf("scan cooldown: %w", err)
		}
		cooldowns[userID] = time.Unix(ts, 0).UTC()
	}
	return cooldowns, rows.Err()
}

func (p *Postgres) Bump(ctx context.Context, groupID int64, userIDs []int64, at time.Time) error {
	if len(userIDs) == 0 {
		return nil
	}
	ts := at.Unix()
	batch := &pgx.Batch{}
	for _, id := range userIDs {
		batch.Queue("upsert_cooldown", id, groupID, ts)
	}

	return pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("bump cooldowns group=%d: %w", groupID, err)
		}
		return nil
	})
}

func (p *Postgres) Prune(ctx context.Context, olderThan, orphanedBefore time.Time) (int64, error) {
	aged, err := p.pool.Exec(ctx, "prune_old_cooldowns", olderThan.Unix())
	if err != nil {
		return 0, fmt.Errorf("prune cooldowns: %w", err)
	}
	orphaned, err := p.pool.Exec(ctx, "prune_orphan_cooldowns", orphanedBefore.Unix())
	if err != nil {
		return aged.RowsAffected(), fmt.Errorf("prune orphaned cooldowns: %w", err)
	}
	return aged.RowsAffected() + orphaned.RowsAffected(), nil
}

func scanPgBinding(row pgx.Row) (*Binding, error) {
	var (
		b        Binding
		username *string
	)
	if err := row.Scan(&b.UserID, &username, &b.DisplayName, &b.PlayerTag, &b.GroupID, &b.BoundAt); err != nil {
		return nil, err
	}
	if username != nil {
		b.Username = *username
	}
	return &b, nil
}
