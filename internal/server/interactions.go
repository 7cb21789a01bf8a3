package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/bryan-buckman/unitview/internal/doorway"
	"github.com/bryan-buckman/unitview/internal/grid"
	"github.com/bryan-buckman/unitview/internal/listing"
	"github.com/bryan-buckman/unitview/internal/model"
	"github.com/bryan-buckman/unitview/internal/persist"
	"github.com/bryan-buckman/unitview/internal/tracking"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// track publishes an interaction. Failures never fail the request.
func (s *Server) track(r *http.Request, kind, sid, path, value string) {
	ev := tracking.Event{Type: kind, Session: sid, Path: path, Value: value, At: s.opts.Now()}
	if err := s.opts.Tracker.Track(r.Context(), ev); err != nil {
		s.log.Warn("track event", zap.String("type", kind), zap.Error(err))
	}
}

// gridFragment renders the grid container after an interaction.
func gridFragment(lv *loadedView) string {
	html, err := lv.Document().Fragment(grid.DefaultContainer)
	if err != nil {
		return ""
	}
	return html
}

type filterRequest struct {
	Group string `schema:"group"`
	Value string `schema:"value,required"`
	Path  string `schema:"path,required"`
}

type filterResponse struct {
	Group      string `json:"group"`
	Value      string `json:"value"`
	Active     string `json:"active"`
	TotalShow  int    `json:"total_show"`
	TotalHide  int    `json:"total_hide"`
	Superseded bool   `json:"superseded"`
	HTML       string `json:"html"`
}

func (s *Server) handleFilter(w http.ResponseWriter, r *http.Request) {
	var req filterRequest
	if err := decodeQuery(r, &req); err != nil {
		writeBadRequest(w, r, err.Error())
		return
	}
	g, ok := listing.ParseFilterGroup(req.Group)
	if !ok {
		writeBadRequest(w, r, fmt.Sprintf("unknown filter group %q", req.Group))
		return
	}
	path, err := validPath(req.Path)
	if err != nil {
		writeBadRequest(w, r, err.Error())
		return
	}
	lv, err := s.loadView(w, r, path, 0)
	if err != nil {
		countInteraction(tracking.EventFilter, err)
		writeError(w, r, err)
		return
	}
	defer lv.Close()

	start := time.Now()
	fut, err := lv.Filter(g, req.Value)
	if err != nil {
		countInteraction(tracking.EventFilter, err)
		writeError(w, r, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.opts.FilterTimeout)
	defer cancel()
	state, err := fut.Wait(ctx)
	filterSeconds.Observe(time.Since(start).Seconds())
	countInteraction(tracking.EventFilter, err)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.track(r, tracking.EventFilter, lv.visitor.id, path, g.String()+"="+req.Value)

	writeJSON(w, http.StatusOK, filterResponse{
		Group:      g.String(),
		Value:      req.Value,
		Active:     lv.Controller().Active(g),
		TotalShow:  state.TotalShow,
		TotalHide:  state.TotalHide,
		Superseded: state.Superseded,
		HTML:       gridFragment(lv),
	})
}

// reapplyFilter restores the filter the visitor's grid shows. Each request
// rebuilds the page from the CMS, so interactions that return grid HTML
// carry it as filter_group and filter_value. "all" and empty values leave
// the grid unfiltered.
func (s *Server) reapplyFilter(ctx context.Context, lv *loadedView, group, value string) error {
	if !lv.summary.Grid || value == "" || value == model.FilterAll {
		return nil
	}
	g, ok := listing.ParseFilterGroup(group)
	if !ok {
		return fmt.Errorf("%w: group %q", model.ErrUnknownFilter, group)
	}
	fut, err := lv.Filter(g, value)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, s.opts.FilterTimeout)
	defer cancel()
	_, err = fut.Wait(ctx)
	return err
}

type sortRequest struct {
	Field       string   `schema:"field,required"`
	Path        string   `schema:"path,required"`
	Top         *float64 `schema:"top"`
	Left        *float64 `schema:"left"`
	FilterGroup string   `schema:"filter_group"`
	FilterValue string   `schema:"filter_value"`
}

func (s *Server) handleSort(w http.ResponseWriter, r *http.Request) {
	var req sortRequest
	if err := decodeQuery(r, &req); err != nil {
		writeBadRequest(w, r, err.Error())
		return
	}
	path, err := validPath(req.Path)
	if err != nil {
		writeBadRequest(w, r, err.Error())
		return
	}
	var scroll *model.ScrollState
	if req.Top != nil || req.Left != nil {
		scroll = &model.ScrollState{}
		if req.Top != nil {
			scroll.Top = *req.Top
		}
		if req.Left != nil {
			scroll.Left = *req.Left
		}
	}

	lv, err := s.loadView(w, r, path, 0)
	if err != nil {
		countInteraction(tracking.EventSort, err)
		writeError(w, r, err)
		return
	}
	defer lv.Close()

	if err := s.reapplyFilter(r.Context(), lv, req.FilterGroup, req.FilterValue); err != nil {
		countInteraction(tracking.EventSort, err)
		writeError(w, r, err)
		return
	}
	state, err := lv.Sort(req.Field, scroll)
	countInteraction(tracking.EventSort, err)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.track(r, tracking.EventSort, lv.visitor.id, path, state.String())

	writeJSON(w, http.StatusOK, map[string]any{
		"sort":  state.String(),
		"field": string(state.Field),
		"order": string(state.Order),
		"html":  gridFragment(lv),
	})
}

type favoriteRequest struct {
	ID          string `schema:"id,required"`
	Path        string `schema:"path,required"`
	FilterGroup string `schema:"filter_group"`
	FilterValue string `schema:"filter_value"`
}

func (s *Server) handleFavorite(w http.ResponseWriter, r *http.Request) {
	var req favoriteRequest
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
		countInteraction(tracking.EventFavorite, err)
		writeError(w, r, err)
		return
	}
	defer lv.Close()

	if err := s.reapplyFilter(r.Context(), lv, req.FilterGroup, req.FilterValue); err != nil {
		countInteraction(tracking.EventFavorite, err)
		writeError(w, r, err)
		return
	}
	on, err := lv.ToggleFavorite(req.ID)
	countInteraction(tracking.EventFavorite, err)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.track(r, tracking.EventFavorite, lv.visitor.id, path, req.ID)

	resp := map[string]any{"id": req.ID, "favorited": on, "html": gridFragment(lv)}
	if f := lv.Favorites(); f != nil {
		resp["visible"] = f.Visible()
	}
	writeJSON(w, http.StatusOK, resp)
}

type visitRequest struct {
	Slug string `schema:"slug,required"`
}

// handleVisit records a click on a unit link. The flag lives in the
// visitor's cookies, so no page is loaded.
func (s *Server) handleVisit(w http.ResponseWriter, r *http.Request) {
	var req visitRequest
	if err := decodeQuery(r, &req); err != nil {
		writeBadRequest(w, r, err.Error())
		return
	}
	vis := s.visitor(r.Context(), w, r)
	persist.SetFlag(vis.durable, persist.VisitedKey(req.Slug), true)
	countInteraction(tracking.EventVisit, nil)
	s.track(r, tracking.EventVisit, vis.id, "", req.Slug)
	writeJSON(w, http.StatusOK, map[string]any{"slug": req.Slug, "visited": true})
}

type scrollRequest struct {
	Top   float64 `schema:"top"`
	Left  float64 `schema:"left"`
	Event string  `schema:"event"`
}

func (s *Server) handleScroll(w http.ResponseWriter, r *http.Request) {
	var req scrollRequest
	if err := decodeQuery(r, &req); err != nil {
		writeBadRequest(w, r, err.Error())
		return
	}
	vis := s.visitor(r.Context(), w, r)
	st := model.ScrollState{Top: req.Top, Left: req.Left}
	listing.SaveScroll(vis.session, st)
	s.log.Debug("scroll saved",
		zap.String("event", req.Event),
		zap.String("direction", st.Direction()))
	w.WriteHeader(http.StatusNoContent)
}

type resizeRequest struct {
	VW   int    `schema:"vw,required"`
	Path string `schema:"path,required"`
}

func (s *Server) handleResize(w http.ResponseWriter, r *http.Request) {
	var req resizeRequest
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

	n := lv.Resize(req.VW)
	writeJSON(w, http.StatusOK, map[string]any{
		"vw":       req.VW,
		"adjusted": n,
		"mobile":   req.VW > 0 && req.VW <= listing.MobileBreakpoint,
	})
}

func (s *Server) handleDoorway(w http.ResponseWriter, r *http.Request) {
	action := chi.URLParam(r, "action")
	vis := s.visitor(r.Context(), w, r)
	res, err := doorway.Invoke(s.opts.Doorway, action)
	countInteraction(tracking.EventDoorway, err)
	if err != nil {
		s.log.Error("doorway action failed", zap.String("action", action), zap.Error(err))
		writeError(w, r, err)
		return
	}
	s.track(r, tracking.EventDoorway, vis.id, "", action)
	writeJSON(w, http.StatusOK, res)
}
