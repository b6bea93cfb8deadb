// Package store persists the two relations the reminder engine depends on:
// bindings of chat users to player tags, and per-group reminder cooldowns.
//
// Both relations are keyed by (user_id, group_id) and written with atomic
// upserts, so concurrent writers only conflict on the same row. Two backends
// implement Store: Postgres (pgx) and SQLite (go-sqlite3).
package store

import (
	"context"
	"errors"
	"time"

	"github.com/Alexey3476/CoC-Telegramm/internal/coc"
)

// ErrNotFound is returned when a requested binding does not exist.
var ErrNotFound = errors.New("store: not found")

// Binding ties a chat user, within one group, to a player tag.
type Binding struct {
	UserID      int64
	GroupID     int64
	DisplayName string
	Username    string // optional, informational
	PlayerTag   string // normalized
	BoundAt     time.Time
}

// BindingRegistry is the durable store of bindings. At most one binding exists
// per (UserID, GroupID).
type BindingRegistry interface {
	// Upsert creates or replaces the binding for (b.UserID, b.GroupID). The
	// player tag is normalized before it is written.
	Upsert(ctx context.Context, b Binding) error

	// Remove deletes the binding and reports whether one existed.
	Remove(ctx context.Context, userID, groupID int64) (bool, error)

	// Get returns a single binding or ErrNotFound.
	Get(ctx context.Context, userID, groupID int64) (*Binding, error)

	// GroupIDs returns every group with at least one binding.
	GroupIDs(ctx context.Context) ([]int64, error)

	// ListByGroup returns all bindings of a group.
	ListByGroup(ctx context.Context, groupID int64) ([]Binding, error)
}

// CooldownStore records when each user was last reminded in each group.
type CooldownStore interface {
	// Cooldowns returns user_id -> last reminded time for a group.
	Cooldowns(ctx context.Context, groupID int64) (map[int64]time.Time, error)

	// Bump sets the last reminded time of every user in userIDs to at, in a
	// single transaction.
	Bump(ctx context.Context, groupID int64, userIDs []int64, at time.Time) error

	// Prune deletes cooldowns last bumped before olderThan, and cooldowns
	// without a matching binding last bumped before orphanedBefore.
	Prune(ctx context.Context, olderThan, orphanedBefore time.Time) (int64, error)
}

// Store is a full persistence backend.
type Store interface {
	BindingRegistry
	CooldownStore
	Ping(ctx context.Context) error
	Close() error
}

func normalize(b Binding) Binding {
	b.PlayerTag = coc.NormalizeTag(b.PlayerTag)
	return b
}

func validate(b Binding) error {
	if b.PlayerTag == "" {
		return errors.New("store: binding requires a player tag")
	}
	if b.UserID == 0 || b.GroupID == 0 {
		return errors.New("store: binding requires user and group ids")
	}
	return nil
}
