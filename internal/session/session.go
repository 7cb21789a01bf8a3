// Package session keeps per-visitor view state behind a pluggable backend.
// A visitor is identified by the sid cookie; Store binds one sid to the
// persist.SessionStore the listing view expects.
package session

import (
	"context"
	"errors"
	"sync"

	"github.com/bryan-buckman/unitview/internal/persist"
	"go.uber.org/zap"
)

// ErrNotFound is returned by backends for a missing key.
var ErrNotFound = errors.New("session key not found")

// Backend stores string values per session id.
type Backend interface {
	Get(ctx context.Context, sid, key string) (string, error)
	Set(ctx context.Context, sid, key, value string) error
	Remove(ctx context.Context, sid, key string) error
	Clear(ctx context.Context, sid string) error
}

// Store is the session of one visitor.
type Store struct {
	ctx context.Context
	b   Backend
	sid string
	log *zap.Logger
}

var _ persist.SessionStore = (*Store)(nil)

// For binds backend b to visitor sid. ctx bounds every backend call.
func For(ctx context.Context, b Backend, sid string, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{ctx: ctx, b: b, sid: sid, log: log}
}

// ID returns the session id.
func (s *Store) ID() string { return s.sid }

// Get reads a value. Backend failures read as absent.
func (s *Store) Get(key string) (string, bool) {
	v, err := s.b.Get(s.ctx, s.sid, key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.log.Warn("session read failed", zap.String("key", key), zap.Error(err))
		}
		return "", false
	}
	return v, true
}

func (s *Store) Set(key, value string) {
	if err := s.b.Set(s.ctx, s.sid, key, value); err != nil {
		s.log.Warn("session write failed", zap.String("key", key), zap.Error(err))
	}
}

func (s *Store) Remove(key string) {
	if err := s.b.Remove(s.ctx, s.sid, key); err != nil {
		s.log.Warn("session remove failed", zap.String("key", key), zap.Error(err))
	}
}

// Clear drops the whole session.
func (s *Store) Clear() error {
	return s.b.Clear(s.ctx, s.sid)
}

// Memory is an in-process Backend.
type Memory struct {
	mu   sync.Mutex
	data map[string]map[string]string
}

// NewMemory creates an empty in-process backend.
func NewMemory() *Memory {
	return &Memory{data: make(map[string]map[string]string)}
}

func (m *Memory) Get(_ context.Context, sid, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[sid][key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (m *Memory) Set(_ context.Context, sid, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries, ok := m.data[sid]
	if !ok {
		entries = make(map[string]string)
		m.data[sid] = entries
	}
	entries[key] = value
	return nil
}

func (m *Memory) Remove(_ context.Context, sid, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data[sid], key)
	return nil
}

func (m *Memory) Clear(_ context.Context, sid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, sid)
	return nil
}

// Len returns the number of live sessions.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data)
}
