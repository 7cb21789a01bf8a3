package cms

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bryan-buckman/unitview/internal/database"
	"github.com/bryan-buckman/unitview/internal/model"
	"go.uber.org/zap"
)

// Cache serves upstream pages, refetching once they are older than the TTL.
// A stale copy is served when the refetch fails.
type Cache struct {
	src   Source
	store database.Store // optional second tier
	ttl   time.Duration
	now   func() time.Time
	log   *zap.Logger

	mu  sync.Mutex
	mem map[string]model.CachedPage
}

// NewCache creates a cache in front of src. store may be nil.
func NewCache(src Source, store database.Store, ttl time.Duration, log *zap.Logger) *Cache {
	if log == nil {
		log = zap.NewNop()
	}
	return &Cache{
		src:   src,
		store: store,
		ttl:   ttl,
		now:   time.Now,
		log:   log,
		mem:   make(map[string]model.CachedPage),
	}
}

// Get returns the HTML of path.
func (c *Cache) Get(ctx context.Context, path string) (string, error) {
	now := c.now()
	cached, ok := c.lookup(ctx, path)
	if ok && cached.Fresh(now, c.ttl) {
		return cached.HTML, nil
	}
	page, err := c.Refresh(ctx, path)
	if err != nil {
		if ok {
			c.log.Warn("serving stale page", zap.String("path", path), zap.Error(err))
			return cached.HTML, nil
		}
		return "", err
	}
	return page.HTML, nil
}

// Refresh fetches path from upstream and stores it in every tier.
func (c *Cache) Refresh(ctx context.Context, path string) (model.CachedPage, error) {
	body, err := c.src.Fetch(ctx, path)
	if err != nil {
		return model.CachedPage{}, err
	}
	page := model.CachedPage{Path: path, HTML: string(body), FetchedAt: c.now()}
	c.mu.Lock()
	c.mem[path] = page
	c.mu.Unlock()
	if c.store != nil {
		if err := c.store.PutPage(ctx, &page); err != nil {
			c.log.Warn("persist cached page failed", zap.String("path", path), zap.Error(err))
		}
	}
	return page, nil
}

func (c *Cache) lookup(ctx context.Context, path string) (model.CachedPage, bool) {
	c.mu.Lock()
	page, ok := c.mem[path]
	c.mu.Unlock()
	if ok || c.store == nil {
		return page, ok
	}
	stored, err := c.store.GetPage(ctx, path)
	if err != nil {
		if !errors.Is(err, database.ErrNotFound) {
			c.log.Warn("read cached page failed", zap.String("path", path), zap.Error(err))
		}
		return model.CachedPage{}, false
	}
	c.mu.Lock()
	c.mem[path] = *stored
	c.mu.Unlock()
	return *stored, true
}

// Evict drops pages fetched before the cutoff from every tier.
func (c *Cache) Evict(ctx context.Context, before time.Time) (int64, error) {
	var n int64
	c.mu.Lock()
	for path, page := range c.mem {
		if page.FetchedAt.Before(before) {
			delete(c.mem, path)
			n++
		}
	}
	c.mu.Unlock()
	if c.store != nil {
		stored, err := c.store.DeletePagesBefore(ctx, before)
		if err != nil {
			return n, fmt.Errorf("evict stored pages: %w", err)
		}
		if stored > n {
			n = stored
		}
	}
	return n, nil
}

// Len returns the number of pages held in memory.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.mem)
}
