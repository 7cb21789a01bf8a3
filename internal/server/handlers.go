package server

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	scalargo "github.com/bdpiprava/scalar-go"
	"github.com/bryan-buckman/unitview/internal/database"
	"github.com/bryan-buckman/unitview/internal/listing"
	"github.com/bryan-buckman/unitview/internal/model"
	"github.com/bryan-buckman/unitview/internal/page"
	"github.com/gorilla/schema"
	"go.uber.org/zap"
)

var decoder = newDecoder()

func newDecoder() *schema.Decoder {
	d := schema.NewDecoder()
	d.IgnoreUnknownKeys(true)
	return d
}

// decodeQuery fills dst from the query string and any form body.
func decodeQuery(r *http.Request, dst any) error {
	if err := r.ParseForm(); err != nil {
		return err
	}
	return decoder.Decode(dst, r.Form)
}

// validPath checks the page path an interaction names. Empty paths are rejected.
func validPath(p string) (string, error) {
	if p == "" {
		return "", errors.New("path is required")
	}
	if !strings.HasPrefix(p, "/") || strings.HasPrefix(p, "//") {
		return "", fmt.Errorf("path %q must be site-relative", p)
	}
	return p, nil
}

// loadedView is a listing view over one fetched page, bound to the visitor
// that asked for it.
type loadedView struct {
	*listing.View
	visitor *visitor
	summary listing.Summary
}

// buildView parses html and runs the load pass for the visitor.
func (s *Server) buildView(w http.ResponseWriter, r *http.Request, path, html string, width int) (*loadedView, error) {
	doc, err := page.ParseString(html)
	if err != nil {
		return nil, fmt.Errorf("parse page %s: %w", path, err)
	}
	vis := s.visitor(r.Context(), w, r)
	v := listing.New(doc, listing.Options{
		Path:          path,
		ViewportWidth: width,
		Durable:       vis.durable,
		Session:       vis.session,
		Doorway:       s.opts.Doorway,
		Dates:         s.opts.Dates,
		Now:           s.opts.Now,
		Logger:        s.log.With(zap.String("sid", vis.id), zap.String("path", path)),
	})
	return &loadedView{View: v, visitor: vis, summary: v.Init()}, nil
}

// loadView fetches path and builds its view. Callers must Close the view.
func (s *Server) loadView(w http.ResponseWriter, r *http.Request, path string, width int) (*loadedView, error) {
	html, err := s.opts.Pages.Get(r.Context(), path)
	if err != nil {
		return nil, err
	}
	return s.buildView(w, r, path, html, width)
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	width := viewportWidth(r)

	html, err := s.opts.Pages.Get(r.Context(), path)
	if err != nil {
		pageRenders.WithLabelValues("upstream_error").Inc()
		s.log.Error("fetch page failed", zap.String("path", path), zap.Error(err))
		writeError(w, r, err)
		return
	}
	lv, err := s.buildView(w, r, path, html, width)
	if err != nil {
		pageRenders.WithLabelValues("passthrough").Inc()
		s.log.Warn("serving page unmodified", zap.String("path", path), zap.Error(err))
		writeHTML(w, html)
		return
	}
	defer lv.Close()

	out, err := lv.Document().Render()
	if err != nil {
		pageRenders.WithLabelValues("passthrough").Inc()
		s.log.Warn("render failed, serving page unmodified", zap.String("path", path), zap.Error(err))
		writeHTML(w, html)
		return
	}
	pageRenders.WithLabelValues("augmented").Inc()
	writeHTML(w, out)
}

// viewportWidth reads the client's viewport width from client hints or the
// vw query parameter. 0 means unknown.
func viewportWidth(r *http.Request) int {
	for _, v := range []string{
		r.Header.Get("Sec-CH-Viewport-Width"),
		r.Header.Get("Viewport-Width"),
		r.URL.Query().Get("vw"),
	} {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
			return n
		}
	}
	return 0
}

func writeHTML(w http.ResponseWriter, html string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(html))
}

type itemsRequest struct {
	Path string `schema:"path,required"`
}

// itemResponse is one collection item as the page shows it.
type itemResponse struct {
	ID            string   `json:"id"`
	Slug          string   `json:"slug,omitempty"`
	FloorPlan     string   `json:"floor_plan,omitempty"`
	Category      string   `json:"category,omitempty"`
	AvailableDate string   `json:"available_date,omitempty"`
	Price         *float64 `json:"price,omitempty"`
	Sqft          *float64 `json:"sqft,omitempty"`
	Visible       bool     `json:"visible"`
}

func (s *Server) handleItems(w http.ResponseWriter, r *http.Request) {
	var req itemsRequest
	if err := decodeQuery(r, &req); err != nil {
		writeBadRequest(w, r, err.Error())
		return
	}
	path, err := validPath(req.Path)
	if err != nil {
		writeBadRequest(w, r, err.Error())
		return
	}
	lv, err := s.loadView(w, r, path, 0)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer lv.Close()

	items := []itemResponse{}
	lv.Document().Update(func(root *goquery.Selection) {
		root.Find(".collection-item").Each(func(_ int, sel *goquery.Selection) {
			it := model.ItemFromAttrs(sel.Attr, s.opts.Dates.ParseDate)
			it.Visible = !page.Hidden(sel)
			resp := itemResponse{
				ID:        it.ID,
				Slug:      it.Slug,
				FloorPlan: it.FloorPlan,
				Category:  sel.AttrOr("data-category", ""),
				Price:     finite(it.Price),
				Sqft:      finite(it.Sqft),
				Visible:   it.Visible,
			}
			if it.AvailableDate != nil {
				resp.AvailableDate = it.AvailableDate.Format(time.DateOnly)
			}
			items = append(items, resp)
		})
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"path":    path,
		"summary": lv.summary,
		"items":   items,
	})
}

// finite drops values JSON cannot carry.
func finite(v *float64) *float64 {
	if v == nil || math.IsInf(*v, 0) || math.IsNaN(*v) {
		return nil
	}
	return v
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleDocs(w http.ResponseWriter, r *http.Request) {
	html, err := scalargo.NewV2(
		scalargo.WithSpecDir(s.opts.DocsDir),
		scalargo.WithMetaDataOpts(
			scalargo.WithTitle("unitview API"),
		),
	)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, err.Error(), r.URL.Path)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, html)
}

func (s *Server) handleWarm(w http.ResponseWriter, r *http.Request) {
	if s.opts.Warmer == nil {
		writeProblem(w, http.StatusNotFound, "cache warming is not configured", r.URL.Path)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()
	res, err := s.opts.Warmer.WarmAll(ctx)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "pages": res.Pages, "failed": res.Failed})
}

type settingsRequest struct {
	WarmInterval int `schema:"warm_interval,required"`
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	if s.opts.DB == nil {
		writeProblem(w, http.StatusNotFound, "no database configured", r.URL.Path)
		return
	}
	interval, err := s.opts.DB.GetWarmInterval()
	if err != nil {
		s.log.Warn("read warm interval", zap.Error(err))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"warm_interval": interval,
		"database":      s.opts.DB.DatabaseType(),
	})
}

func (s *Server) handleSaveSettings(w http.ResponseWriter, r *http.Request) {
	if s.opts.DB == nil {
		writeProblem(w, http.StatusNotFound, "no database configured", r.URL.Path)
		return
	}
	var req settingsRequest
	if err := decodeQuery(r, &req); err != nil {
		writeBadRequest(w, r, err.Error())
		return
	}
	if req.WarmInterval < database.MinWarmIntervalMinutes {
		req.WarmInterval = database.MinWarmIntervalMinutes
	}
	if err := s.opts.DB.SetSetting(model.SettingWarmIntervalMinutes, strconv.Itoa(req.WarmInterval)); err != nil {
		s.log.Error("save settings", zap.Error(err))
		writeProblem(w, http.StatusInternalServerError, "failed to save settings", r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "warm_interval": req.WarmInterval})
}
