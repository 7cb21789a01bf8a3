package persist

import (
	"net/http"
	"net/url"
	"sync"
	"time"
)

// CookieJar is a DurableStore over the cookies of one HTTP exchange. Reads
// see the request cookies overlaid with writes made during the same exchange;
// writes are emitted as Set-Cookie headers on the response.
type CookieJar struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	written map[string]string
	req     map[string]string
	now     func() time.Time
	path    string
}

// NewCookieJar binds a jar to one request/response pair.
func NewCookieJar(w http.ResponseWriter, r *http.Request) *CookieJar {
	j := &CookieJar{
		w:       w,
		written: make(map[string]string),
		req:     make(map[string]string),
		now:     time.Now,
		path:    "/",
	}
	for _, c := range r.Cookies() {
		v, err := url.QueryUnescape(c.Value)
		if err != nil {
			v = c.Value
		}
		j.req[c.Name] = v
	}
	return j
}

func (j *CookieJar) Get(key string) (string, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if v, ok := j.written[key]; ok {
		return v, true
	}
	v, ok := j.req[key]
	return v, ok
}

func (j *CookieJar) Set(key, value string, ttlDays int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.written[key] = value
	maxAge := ttlDays * 24 * 60 * 60
	http.SetCookie(j.w, &http.Cookie{
		Name:     key,
		Value:    url.QueryEscape(value),
		Path:     j.path,
		Expires:  j.now().Add(time.Duration(maxAge) * time.Second),
		MaxAge:   maxAge,
		SameSite: http.SameSiteLaxMode,
	})
}
