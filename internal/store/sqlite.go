package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLite is the embedded Store backend.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite creates or opens a SQLite database at path and applies the
// schema. WAL mode lets command handlers read while the reminder cycle writes.
func OpenSQLite(path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	// SQLite allows a single writer; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQLite{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLite) migrate() error {
	stmts := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		`CREATE TABLE IF NOT EXISTS bindings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			telegram_user_id INTEGER NOT NULL,
			telegram_username TEXT,
			telegram_full_name TEXT NOT NULL,
			coc_player_tag TEXT NOT NULL,
			group_id INTEGER NOT NULL,
			created_at INTEGER NOT NULL
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_bindings_user_group
			ON bindings (telegram_user_id, group_id)`,
		`CREATE TABLE IF NOT EXISTS reminder_cooldowns (
			telegram_user_id INTEGER NOT NULL,
			group_id INTEGER NOT NULL,
			last_reminded_at INTEGER NOT NULL,
			PRIMARY KEY (telegram_user_id, group_id)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Binding operations

func (s *SQLite) Upsert(ctx context.Context, b Binding) error {
	b = normalize(b)
	if err := validate(b); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bindings (telegram_user_id, telegram_username, telegram_full_name, coc_player_tag, group_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (telegram_user_id, group_id) DO UPDATE SET
			telegram_username = excluded.telegram_username,
			telegram_full_name = excluded.telegram_full_name,
			coc_player_tag = excluded.coc_player_tag,
			created_at = excluded.created_at`,
		b.UserID, nullString(b.Username), b.DisplayName, b.PlayerTag, b.GroupID, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert binding: %w", err)
	}
	return nil
}

func (s *SQLite) Remove(ctx context.Context, userID, groupID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM bindings WHERE telegram_user_id = ? AND group_id = ?`, userID, groupID)
	if err != nil {
		return false, fmt.Errorf("remove binding: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("remove binding: %w", err)
	}
	return n > 0, nil
}

func (s *SQLite) Get(ctx context.Context, userID, groupID int64) (*Binding, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT telegram_user_id, telegram_username, telegram_full_name, coc_player_tag, group_id, created_at
		FROM bindings WHERE telegram_user_id = ? AND group_id = ?`, userID, groupID)
	b, err := scanSQLiteBinding(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get binding: %w", err)
	}
	return b, nil
}

func (s *SQLite) GroupIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT group_id FROM bindings ORDER BY group_id`)
	if err != nil {
		return nil, fmt.Errorf("list group ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan group id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLite) ListByGroup(ctx context.Context, groupID int64) ([]Binding, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT telegram_user_id, telegram_username, telegram_full_name, coc_player_tag, group_id, created_at
		FROM bindings WHERE group_id = ? ORDER BY telegram_user_id`, groupID)
	if err != nil {
		return nil, fmt.Errorf("list bindings: %w", err)
	}
	defer rows.Close()

	var bindings []Binding
	for rows.Next() {
		b, err := scanSQLiteBinding(rows)
		if err != nil {
			return nil, fmt.Errorf("scan binding: %w", err)
		}
		bindings = append(bindings, *b)
	}
	return bindings, rows.Err()
}

// Cooldown operations

func (s *SQLite) Cooldowns(ctx context.Context, groupID int64) (map[int64]time.Time, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT telegram_user_id, last_reminded_at FROM reminder_cooldowns WHERE group_id = ?`, groupID)
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

func (s *SQLite) Bump(ctx context.Context, groupID int64, userIDs []int64, at time.Time) error {
	if len(userIDs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin bump: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO reminder_cooldowns (telegram_user_id, group_id, last_reminded_at)
		VALUES (?, ?, ?)
		ON CONFLICT (telegram_user_id, group_id) DO UPDATE SET
			last_reminded_at = excluded.last_reminded_at`)
	if err != nil {
		return fmt.Errorf("prepare bump: %w", err)
	}
	defer stmt.Close()

	ts := at.Unix()
	for _, id := range userIDs {
		if _, err := stmt.ExecContext(ctx, id, groupID, ts); err != nil {
			return fmt.Errorf("bump cooldown user=%d group=%d: %w", id, groupID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit bump: %w", err)
	}
	return nil
}

func (s *SQLite) Prune(ctx context.Context, olderThan, orphanedBefore time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM reminder_cooldowns WHERE last_reminded_at < ?`, olderThan.Unix())
	if err != nil {
		return 0, fmt.Errorf("prune cooldowns: %w", err)
	}
	aged, _ := res.RowsAffected()

	res, err = s.db.ExecContext(ctx, `
		DELETE FROM reminder_cooldowns
		WHERE last_reminded_at < ?
		  AND NOT EXISTS (
			SELECT 1 FROM bindings b
			WHERE b.telegram_user_id = reminder_cooldowns.telegram_user_id
			  AND b.group_id = reminder_cooldowns.group_id
		  )`, orphanedBefore.Unix())
	if err != nil {
		return aged, fmt.Errorf("prune orphaned cooldowns: %w", err)
	}
	orphaned, _ := res.RowsAffected()
	return aged + orphaned, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteBinding(row rowScanner) (*Binding, error) {
	var (
		b        Binding
		username sql.NullString
		boundAt  int64
	)
	if err := row.Scan(&b.UserID, &username, &b.DisplayName, &b.PlayerTag, &b.GroupID, &boundAt); err != nil {
		return nil, err
	}
	b.Username = username.String
	b.BoundAt = time.Unix(boundAt, 0).UTC()
	return &b, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
