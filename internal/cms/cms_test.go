package cms

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bryan-buckman/unitview/internal/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeSource struct {
	mu    sync.Mutex
	calls map[string]int
	fail  bool
}

func (f *fakeSource) Fetch(_ context.Context, path string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[path]++
	if f.fail {
		return nil, errors.New("upstream down")
	}
	return []byte(fmt.Sprintf("<p>%s #%d</p>", path, f.calls[path])), nil
}

func (f *fakeSource) count(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[path]
}

func TestCacheTTLAndStaleFallback(t *testing.T) {
	src := &fakeSource{}
	c := NewCache(src, nil, time.Minute, zaptest.NewLogger(t))
	now := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	html, err := c.Get(ctx, "/units/studio")
	require.NoError(t, err)
	assert.Equal(t, "<p>/units/studio #1</p>", html)

	html, _ = c.Get(ctx, "/units/studio")
	assert.Equal(t, "<p>/units/studio #1</p>", html)
	assert.Equal(t, 1, src.count("/units/studio"))

	now = now.Add(2 * time.Minute)
	html, _ = c.Get(ctx, "/units/studio")
	assert.Equal(t, "<p>/units/studio #2</p>", html)

	now = now.Add(2 * time.Minute)
	src.fail = true
	html, err = c.Get(ctx, "/units/studio")
	require.NoError(t, err)
	assert.Equal(t, "<p>/units/studio #2</p>", html, "stale copy served")

	_, err = c.Get(ctx, "/never-fetched")
	assert.Error(t, err)
}

func TestCacheSecondTier(t *testing.T) {
	db, err := database.New(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	ctx := context.Background()

	first := NewCache(&fakeSource{}, db, time.Hour, zaptest.NewLogger(t))
	_, err = first.Get(ctx, "/favorites")
	require.NoError(t, err)

	src := &fakeSource{}
	second := NewCache(src, db, time.Hour, zaptest.NewLogger(t))
	html, err := second.Get(ctx, "/favorites")
	require.NoError(t, err)
	assert.Equal(t, "<p>/favorites #1</p>", html)
	assert.Zero(t, src.count("/favorites"), "served from the database")

	n, err := second.Evict(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	assert.Zero(t, second.Len())
}

func TestFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintf(w, "<html><body>%s</body></html>", r.URL.Path)
	}))
	defer srv.Close()

	f, err := NewFetcher(srv.URL, 5*time.Second, zaptest.NewLogger(t))
	require.NoError(t, err)

	body, err := f.Fetch(context.Background(), "/units/studio")
	require.NoError(t, err)
	assert.Contains(t, string(body), "/units/studio")

	body, err = f.Fetch(context.Background(), "/units/studio")
	require.NoError(t, err, "revisits are allowed")
	assert.NotEmpty(t, body)

	_, err = f.Fetch(context.Background(), "/missing")
	assert.ErrorIs(t, err, ErrUpstream)

	_, err = NewFetcher("not a url", 0, nil)
	assert.Error(t, err)
}

const feed = `<?xml version="1.0"?>
<rss version="2.0"><channel><title>Units</title>
<item><title>101</title><link>%[1]s/units/studio/unit-101</link></item>
<item><title>102</title><link>%[1]s/units/studio/unit-102</link></item>
<item><title>dup</title><link>%[1]s/units/studio/unit-101</link></item>
<item><title>elsewhere</title><link>https://other.example/units/x</link></item>
</channel></rss>`

func TestWarmer(t *testing.T) {
	var srvURL string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprintf(w, feed, srvURL)
	}))
	defer srv.Close()
	srvURL = srv.URL

	src := &fakeSource{}
	cache := NewCache(src, nil, time.Hour, zaptest.NewLogger(t))
	w := NewWarmer(cache, srv.URL+"/units/rss.xml", []string{"/favorites"}, nil, zaptest.NewLogger(t))

	paths, err := w.Discover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"/favorites", "/units/studio/unit-101", "/units/studio/unit-102"}, paths)

	res, err := w.WarmAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, WarmResult{Pages: 3}, res)
	assert.Equal(t, 3, cache.Len())
}

func TestWarmerCountsFailures(t *testing.T) {
	cache := NewCache(&fakeSource{fail: true}, nil, time.Hour, zaptest.NewLogger(t))
	w := NewWarmer(cache, "", []string{"/a", "/b"}, nil, zaptest.NewLogger(t))

	res, err := w.WarmAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, WarmResult{Failed: 2}, res)
}
