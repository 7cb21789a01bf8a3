// Package persist defines the two key-value stores the listing view reads and
// writes: a durable store with per-entry expiry and a per-visitor session store.
package persist

import (
	"sync"
	"time"
)

// DurableStore holds flags that outlive the browser session.
type DurableStore interface {
	Get(key string) (string, bool)
	Set(key, value string, ttlDays int)
}

// SessionStore holds view state for one visitor.
type SessionStore interface {
	Get(key string) (string, bool)
	Set(key, value string)
	Remove(key string)
}

// Session keys.
const (
	KeyScrollTop       = "scrollTop"
	KeyScrollLeft      = "scrollLeft"
	KeyUnitType        = "unitType"
	KeyActiveSortField = "activeSortField"
	KeyActiveSortOrder = "activeSortOrder"
)

// FlagTTLDays is the lifetime of visited and favorited flags.
const FlagTTLDays = 365

// VisitedKey is the durable key of a unit's visited flag.
func VisitedKey(slug string) string { return "visited_" + slug }

// FavoritedKey is the durable key of an item's favorited flag.
func FavoritedKey(id string) string { return "favorited_" + id }

// Flag reads a boolean flag; anything but "true" is false.
func Flag(s DurableStore, key string) bool {
	v, ok := s.Get(key)
	return ok && v == "true"
}

// SetFlag writes a boolean flag with the standard lifetime.
func SetFlag(s DurableStore, key string, on bool) {
	v := "false"
	if on {
		v = "true"
	}
	s.Set(key, v, FlagTTLDays)
}

type durableEntry struct {
	value   string
	expires time.Time
}

// MemoryDurable is an in-process DurableStore.
type MemoryDurable struct {
	mu      sync.Mutex
	entries map[string]durableEntry
	now     func() time.Time
}

// NewMemoryDurable creates an empty store. now may be nil.
func NewMemoryDurable(now func() time.Time) *MemoryDurable {
	if now == nil {
		now = time.Now
	}
	return &MemoryDurable{entries: make(map[string]durableEntry), now: now}
}

func (m *MemoryDurable) Get(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return "", false
	}
	if !m.now().Before(e.expires) {
		delete(m.entries, key)
		return "", false
	}
	return e.value, true
}

func (m *MemoryDurable) Set(key, value string, ttlDays int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = durableEntry{value: value, expires: m.now().AddDate(0, 0, ttlDays)}
}

// MemorySession is an in-process SessionStore.
type MemorySession struct {
	mu      sync.Mutex
	entries map[string]string
}

// NewMemorySession creates an empty store.
func NewMemorySession() *MemorySession {
	return &MemorySession{entries: make(map[string]string)}
}

func (m *MemorySession) Get(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.entries[key]
	return v, ok
}

func (m *MemorySession) Set(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = value
}

func (m *MemorySession) Remove(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
}

// Clear drops every entry, like origin-level storage clearing.
func (m *MemorySession) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]string)
}
