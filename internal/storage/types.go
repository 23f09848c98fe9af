package storage

import (
	"context"
	"errors"
	"time"

	"remindbot/internal/reminder"
)

// Store is the persistence contract consumed by the reminder core.
//
// A successful Add or Patch is visible to every GetAll issued after it
// returns. Failures that leave the backend unreachable wrap
// reminder.ErrStoreUnavailable and guarantee nothing was applied.
type Store interface {
	GetAll(ctx context.Context) ([]reminder.Reminder, error)
	FindByID(ctx context.Context, id string) (reminder.Reminder, bool, error)
	Add(ctx context.Context, r reminder.Reminder) error
	// Patch merges p into the stored record. ok is false when id is absent.
	// A failed p.IfDueAt precondition returns reminder.ErrConflict.
	Patch(ctx context.Context, id string, p reminder.Patch) (r reminder.Reminder, ok bool, err error)
	Remove(ctx context.Context, id string) (bool, error)
	Close() error
}

// Config configures storage.
//
// Driver values: "memory", "file", "sqlite", "postgres", "redis", "discord".
type Config struct {
	Driver string

	// file, sqlite
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default

	// postgres
	DSN string

	// redis
	RedisURL string
	Key      string

	// discord
	Token     string
	ChannelID string

	// OpenTimeout bounds the cold load (and reconciliation write).
	OpenTimeout time.Duration
}

// errNoChange aborts a mutation that would not alter the record set.
var errNoChange = errors.New("storage: no change")
