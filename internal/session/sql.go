package session

import (
	"context"
	"errors"

	"github.com/bryan-buckman/unitview/internal/database"
)

// SQL stores sessions in the session_entries table of a database.Store.
type SQL struct {
	db database.Store
}

// NewSQL wraps a database store.
func NewSQL(db database.Store) *SQL {
	return &SQL{db: db}
}

func (s *SQL) Get(ctx context.Context, sid, key string) (string, error) {
	v, err := s.db.GetSessionValue(ctx, sid, key)
	if errors.Is(err, database.ErrNotFound) {
		return "", ErrNotFound
	}
	return v, err
}

func (s *SQL) Set(ctx context.Context, sid, key, value string) error {
	return s.db.SetSessionValue(ctx, sid, key, value)
}

func (s *SQL) Remove(ctx context.Context, sid, key string) error {
	return s.db.DeleteSessionValue(ctx, sid, key)
}

func (s *SQL) Clear(ctx context.Context, sid string) error {
	return s.db.ClearSession(ctx, sid)
}
