// Package database provides storage backends for visitor sessions and the
// upstream page cache.
package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bryan-buckman/unitview/internal/model"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("not found")

// MinWarmIntervalMinutes is the shortest allowed cache warm interval.
const MinWarmIntervalMinutes = 5

// Store defines the interface for database operations.
// Both SQLite and PostgreSQL implementations satisfy this interface.
type Store interface {
	Close() error

	// DatabaseType returns the name of the database backend ("SQLite" or "PostgreSQL").
	DatabaseType() string

	// SupportsHighConcurrency returns true if the database can handle
	// many concurrent write operations (e.g., PostgreSQL).
	// SQLite returns false due to write locking limitations.
	SupportsHighConcurrency() bool

	// Session operations
	GetSessionValue(ctx context.Context, sid, key string) (string, error)
	SetSessionValue(ctx context.Context, sid, key, value string) error
	DeleteSessionValue(ctx context.Context, sid, key string) error
	ClearSession(ctx context.Context, sid string) error
	PurgeSessions(ctx context.Context, idleSince time.Time) (int64, error)

	// Page cache operations
	GetPage(ctx context.Context, path string) (*model.CachedPage, error)
	PutPage(ctx context.Context, page *model.CachedPage) error
	ListPages(ctx context.Context) ([]model.CachedPage, error)
	DeletePagesBefore(ctx context.Context, t time.Time) (int64, error)

	// Settings operations
	GetSetting(key string) (string, error)
	SetSetting(key, value string) error
	GetWarmInterval() (int, error)
}

// Open picks the backend from dsn: a postgres:// URL opens PostgreSQL,
// anything else is an SQLite path.
func Open(dsn string) (Store, error) {
	if isPostgres(dsn) {
		db, err := NewPostgres(dsn)
		if err != nil {
			return nil, err
		}
		return db, nil
	}
	db, err := New(dsn)
	if err != nil {
		return nil, err
	}
	return db, nil
}

func isPostgres(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

// warmInterval converts a stored setting to minutes, with a floor.
func warmInterval(val string, err error) int {
	if err != nil {
		return 15 // default
	}
	var mins int
	fmt.Sscanf(val, "%d", &mins)
	if mins < MinWarmIntervalMinutes {
		mins = MinWarmIntervalMinutes
	}
	return mins
}
