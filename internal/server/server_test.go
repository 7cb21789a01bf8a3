package server

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bryan-buckman/unitview/internal/cms"
	"github.com/bryan-buckman/unitview/internal/database"
	"github.com/bryan-buckman/unitview/internal/doorway"
	"github.com/bryan-buckman/unitview/internal/format"
	"github.com/bryan-buckman/unitview/internal/page"
	"github.com/bryan-buckman/unitview/internal/persist"
	"github.com/bryan-buckman/unitview/internal/session"
	"github.com/bryan-buckman/unitview/internal/tracking"
	"github.com/PuerkitoBio/goquery"
	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var fixedNow = time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

const controls = `
<div class="centroid-sidebar"></div>
<a class="dropdown-link" data-filter="all">All</a>
<a class="dropdown-link" data-filter="now">Now</a>
<a class="dropdown-link" data-filter="thirtydays">30</a>
<a class="dropdown-link" data-filter="sixtydays">60</a>
<a class="dropdown-link" data-filter="ninetydays">90</a>
<a class="floor-plan-link" data-floor-plan="all">All</a>
<a class="floor-plan-link" data-floor-plan="A1">A1</a>
<a class="floor-plan-link" data-floor-plan="B2">B2</a>
<a class="sort-link" data-sort="price"><span class="arrow"></span></a>
<a class="sort-link" data-sort="sqft"><span class="arrow"></span></a>
<button class="knock-contact">Contact</button>`

func item(id, slug, plan, date, price, sqft string) string {
	return `<div class="collection-item mix" data-id="` + id + `" data-slug="` + slug +
		`" data-floor-plan="` + plan + `" data-available-date="` + date +
		`" data-price="` + price + `" data-sqft="` + sqft + `">` +
		`<a class="unit" href="/units/studio/` + slug + `"><span class="eye"></span></a>` +
		`<span class="price">` + price + `</span><span class="available-date">` + date + `</span>` +
		`<div class="heart-wrapper" data-id="` + id + `"><span class="heart"></span></div></div>`
}

var gridPage = `<html><body>` + controls + `<div id="mix-container">` +
	item("u1", "unit-101", "A1", "2026-10-20", "1500", "700") +
	item("u2", "unit-102", "A1", "2026-12-01", "1200", "900") +
	item("u3", "unit-103", "B2", "2027-03-01", "1800", "650") +
	`</div></body></html>`

// pages serves fixed HTML by path.
type pages map[string]string

func (p pages) Get(_ context.Context, path string) (string, error) {
	html, ok := p[path]
	if !ok {
		return "", fmt.Errorf("%w: %s returned 404", cms.ErrUpstream, path)
	}
	return html, nil
}

type fixture struct {
	srv      *Server
	tracker  *tracking.Recorder
	sessions *session.Memory
	cookies  map[string]*http.Cookie
}

func newFixture(t *testing.T, mutate func(*Options)) *fixture {
	t.Helper()
	f := &fixture{
		tracker:  &tracking.Recorder{},
		sessions: session.NewMemory(),
		cookies:  make(map[string]*http.Cookie),
	}
	opts := Options{
		Pages: pages{
			"/units/studio":          gridPage,
			"/units/studio/unit-101": gridPage,
			"/plain":                 `<html><body><p>About us</p></body></html>`,
			"/":                      gridPage,
		},
		Sessions: f.sessions,
		Tracker:  f.tracker,
		Doorway: doorway.NewURLRegistry(map[string]string{
			doorway.OpenContact: "https://doorway.example/contact",
		}),
		Dates:  format.NewParser(time.UTC),
		Logger: zaptest.NewLogger(t),
		Now:    func() time.Time { return fixedNow },
	}
	if mutate != nil {
		mutate(&opts)
	}
	srv, err := New(opts)
	require.NoError(t, err)
	f.srv = srv
	return f
}

// do sends a request as the same browser, carrying cookies across calls.
func (f *fixture) do(t *testing.T, method, target string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if form != nil {
		req = httptest.NewRequest(method, target, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	for _, c := range f.cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	for _, c := range rec.Result().Cookies() {
		f.cookies[c.Name] = c
	}
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, sonic.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Options{Sessions: session.NewMemory()})
	assert.Error(t, err)
	_, err = New(Options{Pages: pages{}})
	assert.Error(t, err)
}

func TestPageRenderIssuesSession(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodGet, "/units/studio/unit-101?vw=500", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	body := rec.Body.String()
	assert.Contains(t, body, "$1,500")
	assert.Contains(t, body, "Oct 20th")
	assert.Contains(t, body, `href="/units/studio/unit-102#mix-container"`)
	assert.Contains(t, body, `data-doorway-action="openContact"`)

	sid, ok := f.cookies[sessionCookie]
	require.True(t, ok, "session cookie issued")
	assert.Len(t, sid.Value, 36)
	assert.True(t, f.cookies["visited_unit-101"] != nil, "active unit marked visited")

	// The same browser keeps its id.
	f.do(t, http.MethodGet, "/units/studio", nil)
	assert.Equal(t, sid.Value, f.cookies[sessionCookie].Value)
}

func TestPageWithoutGridIsServed(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodGet, "/plain", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "About us")
}

func TestPageUpstreamFailure(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodGet, "/missing", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	pd := decode(t, rec)
	assert.Equal(t, float64(http.StatusBadGateway), pd["status"])
	assert.Equal(t, "/missing", pd["instance"])
}

func TestFilterEndpoint(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodPost, "/api/filter", url.Values{
		"group": {"floorplan"},
		"value": {"A1"},
		"path":  {"/units/studio"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	out := decode(t, rec)
	assert.Equal(t, "floorplan", out["group"])
	assert.Equal(t, "A1", out["active"])
	assert.Equal(t, float64(2), out["total_show"])
	assert.Equal(t, float64(1), out["total_hide"])
	assert.Contains(t, out["html"], `id="mix-container"`)

	events := f.tracker.Events()
	require.Len(t, events, 1)
	assert.Equal(t, tracking.EventFilter, events[0].Type)
	assert.Equal(t, "floorplan=A1", events[0].Value)
	assert.Equal(t, f.cookies[sessionCookie].Value, events[0].Session)
}

func TestFilterErrors(t *testing.T) {
	f := newFixture(t, nil)
	tests := []struct {
		name   string
		form   url.Values
		status int
	}{
		{"missing value", url.Values{"path": {"/units/studio"}}, http.StatusBadRequest},
		{"unknown group", url.Values{"group": {"color"}, "value": {"red"}}, http.StatusBadRequest},
		{"unknown filter", url.Values{"group": {"category"}, "value": {"someday"}, "path": {"/units/studio"}}, http.StatusBadRequest},
		{"disabled control", url.Values{"group": {"category"}, "value": {"sixtydays"}, "path": {"/units/studio"}}, http.StatusConflict},
		{"no control", url.Values{"group": {"floorplan"}, "value": {"Z9"}, "path": {"/units/studio"}}, http.StatusNotFound},
		{"no grid", url.Values{"group": {"category"}, "value": {"all"}, "path": {"/plain"}}, http.StatusConflict},
		{"missing path", url.Values{"group": {"category"}, "value": {"all"}}, http.StatusBadRequest},
		{"absolute path", url.Values{"value": {"all"}, "path": {"https://evil.example/"}}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/api/filter", tt.form)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
		})
	}
	assert.Empty(t, f.tracker.Events())
}

func TestSortPersistsAcrossRequests(t *testing.T) {
	f := newFixture(t, nil)
	form := url.Values{"field": {"price"}, "path": {"/units/studio"}, "top": {"120"}}

	rec := f.do(t, http.MethodPost, "/api/sort", form)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "price:asc", decode(t, rec)["sort"])

	rec = f.do(t, http.MethodPost, "/api/sort", form)
	require.Equal(t, http.StatusOK, rec.Code)
	out := decode(t, rec)
	assert.Equal(t, "price:desc", out["sort"])
	html := out["html"].(string)
	assert.Less(t, strings.Index(html, `data-id="u3"`), strings.Index(html, `data-id="u1"`))
	assert.Less(t, strings.Index(html, `data-id="u1"`), strings.Index(html, `data-id="u2"`))

	// The saved sort is applied when the page loads again.
	page := f.do(t, http.MethodGet, "/units/studio", nil).Body.String()
	assert.Less(t, strings.Index(page, `data-id="u3"`), strings.Index(page, `data-id="u2"`))
	assert.Contains(t, page, `data-scroll-top="120"`)

	rec = f.do(t, http.MethodPost, "/api/sort", url.Values{"field": {"color"}, "path": {"/units/studio"}})
	assert.Equal(t, http.StatusNotFound, rec.Code, "no sort button for the field")
	rec = f.do(t, http.MethodPost, "/api/sort", url.Values{"field": {"Price!"}, "path": {"/units/studio"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFavoriteToggle(t *testing.T) {
	f := newFixture(t, nil)
	form := url.Values{"id": {"u2"}, "path": {"/units/studio"}}

	rec := f.do(t, http.MethodPost, "/api/favorite", form)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, decode(t, rec)["favorited"])
	require.NotNil(t, f.cookies["favorited_u2"])
	assert.Equal(t, "true", f.cookies["favorited_u2"].Value)

	rec = f.do(t, http.MethodPost, "/api/favorite", form)
	assert.Equal(t, false, decode(t, rec)["favorited"])

	rec = f.do(t, http.MethodPost, "/api/favorite", url.Values{"id": {"nope"}, "path": {"/units/studio"}})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	assert.Len(t, f.tracker.Events(), 2)
}

func TestVisitAndScroll(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodPost, "/api/visit", url.Values{"slug": {"unit-103"}})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, f.cookies["visited_unit-103"])

	// First load remembers the unit type, so later loads restore the scroll.
	f.do(t, http.MethodGet, "/units/studio", nil)
	rec = f.do(t, http.MethodPost, "/api/scroll", url.Values{"top": {"42.5"}, "event": {"beforeunload"}})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	got, err := f.sessions.Get(context.Background(), f.cookies[sessionCookie].Value, "scrollTop")
	require.NoError(t, err)
	assert.Equal(t, "42.5", got)

	page := f.do(t, http.MethodGet, "/units/studio", nil).Body.String()
	assert.Contains(t, page, `data-scroll-top="42.5"`)
}

func TestResize(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodPost, "/api/resize", url.Values{"vw": {"375"}, "path": {"/units/studio"}})
	require.Equal(t, http.StatusOK, rec.Code)
	out := decode(t, rec)
	assert.Equal(t, float64(3), out["adjusted"])
	assert.Equal(t, true, out["mobile"])

	rec = f.do(t, http.MethodPost, "/api/resize", url.Values{"vw": {"1440"}, "path": {"/units/studio"}})
	assert.Equal(t, false, decode(t, rec)["mobile"])
}

func TestDoorwayEndpoint(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodPost, "/api/doorway/openContact", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	out := decode(t, rec)
	assert.Equal(t, "https://doorway.example/contact", out["url"])

	rec = f.do(t, http.MethodPost, "/api/doorway/openScheduling", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestItems(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodGet, "/api/items?path=/units/studio", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	out := decode(t, rec)
	items := out["items"].([]any)
	require.Len(t, items, 3)
	first := items[0].(map[string]any)
	assert.Equal(t, "u1", first["id"])
	assert.Equal(t, "2026-10-20", first["available_date"])
	assert.Equal(t, "now", first["category"])
	assert.Equal(t, float64(1500), first["price"])
}

func TestSettings(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodGet, "/api/settings", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	db, err := database.New(filepath.Join(t.TempDir(), "unitview.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	f = newFixture(t, func(o *Options) { o.DB = db })

	rec = f.do(t, http.MethodGet, "/api/settings", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(15), decode(t, rec)["warm_interval"])

	rec = f.do(t, http.MethodPost, "/api/settings", url.Values{"warm_interval": {"1"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(database.MinWarmIntervalMinutes), decode(t, rec)["warm_interval"])

	rec = f.do(t, http.MethodPost, "/api/settings", url.Values{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthAndWarmDisabled(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode(t, rec)["status"])

	rec = f.do(t, http.MethodPost, "/api/warm", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestViewportWidth(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/units/studio?vw=800", nil)
	assert.Equal(t, 800, viewportWidth(r))
	r.Header.Set("Sec-CH-Viewport-Width", "390")
	assert.Equal(t, 390, viewportWidth(r))

	r = httptest.NewRequest(http.MethodGet, "/units/studio?vw=wide", nil)
	assert.Equal(t, 0, viewportWidth(r))
}

// hiddenInFragment lists the ids of grid items a returned fragment hides.
func hiddenInFragment(t *testing.T, html string) []string {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	var ids []string
	doc.Find(".collection-item").Each(func(_ int, s *goquery.Selection) {
		if page.Hidden(s) {
			ids = append(ids, s.AttrOr("data-id", ""))
		}
	})
	return ids
}

func TestSortKeepsActiveFilter(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodPost, "/api/filter", url.Values{
		"group": {"floorplan"}, "value": {"A1"}, "path": {"/units/studio"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []string{"u3"}, hiddenInFragment(t, decode(t, rec)["html"].(string)))

	rec = f.do(t, http.MethodPost, "/api/sort", url.Values{
		"field":        {"price"},
		"path":         {"/units/studio"},
		"filter_group": {"floorplan"},
		"filter_value": {"A1"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	html := decode(t, rec)["html"].(string)
	assert.Equal(t, []string{"u3"}, hiddenInFragment(t, html), "B2 unit stays filtered out")
	assert.Less(t, strings.Index(html, `data-id="u2"`), strings.Index(html, `data-id="u1"`))

	rec = f.do(t, http.MethodPost, "/api/favorite", url.Values{
		"id":           {"u1"},
		"path":         {"/units/studio"},
		"filter_group": {"floorplan"},
		"filter_value": {"A1"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []string{"u3"}, hiddenInFragment(t, decode(t, rec)["html"].(string)))

	rec = f.do(t, http.MethodPost, "/api/sort", url.Values{
		"field":        {"price"},
		"path":         {"/units/studio"},
		"filter_group": {"floorplan"},
		"filter_value": {"Z9"},
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestInteractionsRequirePath(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodPost, "/api/sort", url.Values{"field": {"price"}, "path": {"/units/studio"}})
	require.Equal(t, http.StatusOK, rec.Code)

	for _, tc := range []struct {
		target string
		form   url.Values
	}{
		{"/api/favorite", url.Values{"id": {"u2"}}},
		{"/api/sort", url.Values{"field": {"sqft"}}},
		{"/api/filter", url.Values{"value": {"all"}}},
		{"/api/resize", url.Values{"vw": {"375"}}},
	} {
		rec := f.do(t, http.MethodPost, tc.target, tc.form)
		assert.Equal(t, http.StatusBadRequest, rec.Code, tc.target)
	}
	rec = f.do(t, http.MethodGet, "/api/items", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	sid := f.cookies[sessionCookie].Value
	field, err := f.sessions.Get(context.Background(), sid, persist.KeyActiveSortField)
	require.NoError(t, err, "saved sort survives path-less requests")
	assert.Equal(t, "price", field)
	unitType, err := f.sessions.Get(context.Background(), sid, persist.KeyUnitType)
	require.NoError(t, err)
	assert.Equal(t, "units", unitType)
}
