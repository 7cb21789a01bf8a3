// Package database provides SQLite storage for sessions and cached pages.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/bryan-buckman/unitview/internal/model"
	_ "modernc.org/sqlite"
)

// DB wraps the SQLite connection.
type DB struct {
	conn *sql.DB
}

// Ensure DB implements Store interface.
var _ Store = (*DB)(nil)

// New opens or creates an SQLite database at the given path.
func New(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// Enable WAL mode for better concurrency.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set wal mode: %w", err)
	}
	// A single writer avoids SQLITE_BUSY under concurrent requests.
	conn.SetMaxOpenConns(1)
	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// DatabaseType returns the database backend name.
func (db *DB) DatabaseType() string {
	return "SQLite"
}

// SupportsHighConcurrency returns false for SQLite.
func (db *DB) SupportsHighConcurrency() bool {
	return false
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS session_entries (
		sid TEXT NOT NULL,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		updated_at DATETIME NOT NULL,
		PRIMARY KEY (sid, key)
	);
	CREATE TABLE IF NOT EXISTS page_cache (
		path TEXT PRIMARY KEY,
		html TEXT NOT NULL,
		fetched_at DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	-- Default cache warm interval.
	INSERT OR IGNORE INTO settings (key, value) VALUES ('warm_interval_minutes', '15');
	CREATE INDEX IF NOT EXISTS idx_session_entries_updated_at ON session_entries(updated_at);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// --- Session Methods ---

// GetSessionValue returns one session value, or ErrNotFound.
func (db *DB) GetSessionValue(ctx context.Context, sid, key string) (string, error) {
	var val string
	err := db.conn.QueryRowContext(ctx,
		"SELECT value FROM session_entries WHERE sid = ? AND key = ?", sid, key).Scan(&val)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return val, err
}

// SetSessionValue upserts one session value.
func (db *DB) SetSessionValue(ctx context.Context, sid, key, value string) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO session_entries (sid, key, value, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(sid, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		sid, key, value, time.Now().UTC())
	return err
}

// DeleteSessionValue removes one session value. Missing keys are not an error.
func (db *DB) DeleteSessionValue(ctx context.Context, sid, key string) error {
	_, err := db.conn.ExecContext(ctx, "DELETE FROM session_entries WHERE sid = ? AND key = ?", sid, key)
	return err
}

// ClearSession removes every value of a session.
func (db *DB) ClearSession(ctx context.Context, sid string) error {
	_, err := db.conn.ExecContext(ctx, "DELETE FROM session_entries WHERE sid = ?", sid)
	return err
}

// PurgeSessions deletes entries not written since idleSince.
func (db *DB) PurgeSessions(ctx context.Context, idleSince time.Time) (int64, error) {
	res, err := db.conn.ExecContext(ctx, "DELETE FROM session_entries WHERE updated_at < ?", idleSince.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// --- Page Cache Methods ---

// GetPage returns the cached page for path, or ErrNotFound.
func (db *DB) GetPage(ctx context.Context, path string) (*model.CachedPage, error) {
	var p model.CachedPage
	err := db.conn.QueryRowContext(ctx,
		"SELECT path, html, fetched_at FROM page_cache WHERE path = ?", path).
		Scan(&p.Path, &p.HTML, &p.FetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// PutPage stores or replaces a cached page.
func (db *DB) PutPage(ctx context.Context, page *model.CachedPage) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO page_cache (path, html, fetched_at) VALUES (?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET html = excluded.html, fetched_at = excluded.fetched_at`,
		page.Path, page.HTML, page.FetchedAt.UTC())
	return err
}

// ListPages returns cached pages without their HTML, newest first.
func (db *DB) ListPages(ctx context.Context) ([]model.CachedPage, error) {
	rows, err := db.conn.QueryContext(ctx, "SELECT path, fetched_at FROM page_cache ORDER BY fetched_at DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var pages []model.CachedPage
	for rows.Next() {
		var p model.CachedPage
		if err := rows.Scan(&p.Path, &p.FetchedAt); err != nil {
			return nil, err
		}
		pages = append(pages, p)
	}
	return pages, rows.Err()
}

// DeletePagesBefore evicts pages fetched before t.
func (db *DB) DeletePagesBefore(ctx context.Context, t time.Time) (int64, error) {
	res, err := db.conn.ExecContext(ctx, "DELETE FROM page_cache WHERE fetched_at < ?", t.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// --- Settings Methods ---

// GetSetting retrieves a setting value.
func (db *DB) GetSetting(key string) (string, error) {
	var val string
	err := db.conn.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&val)
	return val, err
}

// SetSetting saves a setting.
func (db *DB) SetSetting(key, value string) error {
	_, err := db.conn.Exec("INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = ?", key, value, value)
	return err
}

// GetWarmInterval returns the cache warm interval in minutes.
func (db *DB) GetWarmInterval() (int, error) {
	return warmInterval(db.GetSetting(model.SettingWarmIntervalMinutes)), nil
}
