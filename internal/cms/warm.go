package cms

import (
	"context"
	"net/url"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bryan-buckman/unitview/internal/database"
	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Concurrency settings
const (
	// MaxConcurrencyPostgres is the number of parallel refreshes when pages persist to PostgreSQL
	MaxConcurrencyPostgres = 8
	// MaxConcurrencySQLite is the number of parallel refreshes for SQLite (limited due to locking)
	MaxConcurrencySQLite = 1
)

// WarmResult summarizes one warm pass.
type WarmResult struct {
	Pages  int `json:"pages"`
	Failed int `json:"failed"`
}

// Warmer refreshes the listing pages named by the collection feed.
type Warmer struct {
	cache       *Cache
	parser      *gofeed.Parser
	feedURL     string
	host        string
	extra       []string
	concurrency int
	log         *zap.Logger
}

// NewWarmer creates a warmer. extra paths are warmed on every pass along with
// the feed's items. store decides the refresh concurrency and may be nil.
func NewWarmer(cache *Cache, feedURL string, extra []string, store database.Store, log *zap.Logger) *Warmer {
	if log == nil {
		log = zap.NewNop()
	}
	concurrency := MaxConcurrencyPostgres
	if store != nil && !store.SupportsHighConcurrency() {
		concurrency = MaxConcurrencySQLite
	}
	host := ""
	if u, err := url.Parse(feedURL); err == nil {
		host = u.Host
	}
	return &Warmer{
		cache:       cache,
		parser:      gofeed.NewParser(),
		feedURL:     feedURL,
		host:        host,
		extra:       extra,
		concurrency: concurrency,
		log:         log,
	}
}

// Discover lists the page paths to warm: the extra paths plus the link of
// every feed item on the feed's host. Duplicates are dropped.
func (w *Warmer) Discover(ctx context.Context) ([]string, error) {
	seen := make(map[string]bool)
	var paths []string
	add := func(p string) {
		if p != "" && !seen[p] {
			seen[p] = true
			paths = append(paths, p)
		}
	}
	for _, p := range w.extra {
		add(p)
	}
	if w.feedURL == "" {
		return paths, nil
	}

	parsed, err := w.parser.ParseURLWithContext(w.feedURL, ctx)
	if err != nil {
		return paths, err
	}
	var fromFeed []string
	for _, item := range parsed.Items {
		u, err := url.Parse(item.Link)
		if err != nil || (u.Host != "" && u.Host != w.host) {
			continue
		}
		fromFeed = append(fromFeed, u.Path)
	}
	sort.Strings(fromFeed)
	for _, p := range fromFeed {
		add(p)
	}
	return paths, nil
}

// WarmAll refreshes every discovered page. Individual failures are counted,
// not returned.
func (w *Warmer) WarmAll(ctx context.Context) (WarmResult, error) {
	paths, err := w.Discover(ctx)
	if err != nil {
		w.log.Warn("collection feed unavailable", zap.String("feed", w.feedURL), zap.Error(err))
	}
	if len(paths) == 0 {
		return WarmResult{}, err
	}
	w.log.Info("warming pages", zap.Int("pages", len(paths)), zap.Int("concurrency", w.concurrency))

	var ok, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.concurrency)
	for _, p := range paths {
		g.Go(func() error {
			if _, err := w.cache.Refresh(gctx, p); err != nil {
				w.log.Warn("warm page failed", zap.String("path", p), zap.Error(err))
				failed.Add(1)
				return nil
			}
			ok.Add(1)
			return nil
		})
	}
	g.Wait()
	return WarmResult{Pages: int(ok.Load()), Failed: int(failed.Load())}, ctx.Err()
}

// Poller runs WarmAll on an interval.
type Poller struct {
	warmer   *Warmer
	db       database.Store
	interval time.Duration
	log      *zap.Logger
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewPoller creates a background poller. With a database the interval is
// read from its settings on every pass; otherwise interval is used.
func NewPoller(w *Warmer, db database.Store, interval time.Duration, log *zap.Logger) *Poller {
	if log == nil {
		log = zap.NewNop()
	}
	return &Poller{
		warmer:   w,
		db:       db,
		interval: interval,
		log:      log,
		stopChan: make(chan struct{}),
	}
}

func (p *Poller) nextInterval() time.Duration {
	if p.db != nil {
		if mins, err := p.db.GetWarmInterval(); err == nil {
			return time.Duration(mins) * time.Minute
		}
	}
	if p.interval < database.MinWarmIntervalMinutes*time.Minute {
		return database.MinWarmIntervalMinutes * time.Minute
	}
	return p.interval
}

// Start begins the polling loop.
func (p *Poller) Start() {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for {
			interval := p.nextInterval()
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			res, err := p.warmer.WarmAll(ctx)
			cancel()
			if err != nil {
				p.log.Error("warm pass failed", zap.Error(err))
			} else {
				p.log.Info("warm pass done",
					zap.Int("pages", res.Pages),
					zap.Int("failed", res.Failed),
					zap.Duration("next", interval))
			}

			select {
			case <-p.stopChan:
				return
			case <-time.After(interval):
			}
		}
	}()
}

// Stop stops the poller gracefully.
func (p *Poller) Stop() {
	close(p.stopChan)
	p.wg.Wait()
}
