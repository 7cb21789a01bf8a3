// Package cms fetches listing pages from the upstream CMS site, caches them
// and keeps the cache warm from the site's collection feed.
package cms

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
)

// Rate limit settings
const (
	// MaxConcurrencyPerDomain limits parallel requests to the upstream host
	MaxConcurrencyPerDomain = 2
	// DelayBetweenDomainRequests is the minimum delay between requests to the same host
	DelayBetweenDomainRequests = 250 * time.Millisecond
)

// UserAgent identifies the fetcher to the upstream site.
const UserAgent = "unitview/1.0 (+https://github.com/bryan-buckman/unitview)"

// ErrUpstream is returned when the upstream answers with an error status.
var ErrUpstream = errors.New("upstream error")

// domainLimiter controls rate limiting per domain to avoid overwhelming hosts.
type domainLimiter struct {
	mu          sync.Mutex
	semaphores  map[string]chan struct{}
	lastRequest map[string]time.Time
	delay       time.Duration
}

func newDomainLimiter(delay time.Duration) *domainLimiter {
	return &domainLimiter{
		semaphores:  make(map[string]chan struct{}),
		lastRequest: make(map[string]time.Time),
		delay:       delay,
	}
}

// acquire gets a slot for the domain, blocking if necessary.
// It also enforces the minimum delay between requests to the same domain.
func (dl *domainLimiter) acquire(ctx context.Context, domain string) error {
	dl.mu.Lock()
	sem, ok := dl.semaphores[domain]
	if !ok {
		sem = make(chan struct{}, MaxConcurrencyPerDomain)
		dl.semaphores[domain] = sem
	}
	dl.mu.Unlock()

	select {
	case sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	dl.mu.Lock()
	lastReq := dl.lastRequest[domain]
	dl.mu.Unlock()

	if !lastReq.IsZero() {
		if elapsed := time.Since(lastReq); elapsed < dl.delay {
			select {
			case <-time.After(dl.delay - elapsed):
			case <-ctx.Done():
				<-sem
				return ctx.Err()
			}
		}
	}
	return nil
}

// release returns a slot for the domain and records the request time.
func (dl *domainLimiter) release(domain string) {
	dl.mu.Lock()
	defer dl.mu.Unlock()

	dl.lastRequest[domain] = time.Now()
	if sem, ok := dl.semaphores[domain]; ok {
		<-sem
	}
}

// Source yields the raw HTML of an upstream page.
type Source interface {
	Fetch(ctx context.Context, path string) ([]byte, error)
}

// Fetcher downloads pages from one upstream site.
type Fetcher struct {
	base      *url.URL
	collector *colly.Collector
	limiter   *domainLimiter
	log       *zap.Logger
}

// NewFetcher creates a fetcher restricted to the host of baseURL.
func NewFetcher(baseURL string, timeout time.Duration, log *zap.Logger) (*Fetcher, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse upstream url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("upstream url %q must be absolute", baseURL)
	}
	if log == nil {
		log = zap.NewNop()
	}
	c := colly.NewCollector(
		colly.AllowedDomains(base.Hostname()),
		colly.UserAgent(UserAgent),
		colly.AllowURLRevisit(),
	)
	if timeout > 0 {
		c.SetRequestTimeout(timeout)
	}
	return &Fetcher{
		base:      base,
		collector: c,
		limiter:   newDomainLimiter(DelayBetweenDomainRequests),
		log:       log,
	}, nil
}

// URL resolves a page path against the upstream base.
func (f *Fetcher) URL(path string) string {
	ref, err := url.Parse(path)
	if err != nil {
		return f.base.String()
	}
	return f.base.ResolveReference(ref).String()
}

// Fetch downloads one page.
func (f *Fetcher) Fetch(ctx context.Context, path string) ([]byte, error) {
	domain := f.base.Host
	if err := f.limiter.acquire(ctx, domain); err != nil {
		return nil, fmt.Errorf("rate limit cancelled for %s: %w", path, err)
	}
	defer f.limiter.release(domain)

	target := f.URL(path)
	c := f.collector.Clone()
	c.Context = ctx

	var body []byte
	var fetchErr error
	c.OnResponse(func(r *colly.Response) {
		body = r.Body
	})
	c.OnError(func(r *colly.Response, err error) {
		fetchErr = fmt.Errorf("%w: %s: status %d: %v", ErrUpstream, target, r.StatusCode, err)
	})

	start := time.Now()
	if err := c.Visit(target); err != nil && fetchErr == nil {
		fetchErr = fmt.Errorf("fetch %s: %w", target, err)
	}
	if fetchErr != nil {
		return nil, fetchErr
	}
	f.log.Debug("fetched upstream page",
		zap.String("url", target),
		zap.Int("bytes", len(body)),
		zap.Duration("took", time.Since(start)))
	return body, nil
}
