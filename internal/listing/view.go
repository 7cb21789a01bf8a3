// Package listing coordinates the interactive behavior of a listing page:
// price and date formatting, the filter and sort controls of the unit grid,
// favorite and visited flags, the favorites-only page and scroll memory.
//
// A View covers one page life. Init performs the load pass; the remaining
// exported methods are the page's event handlers.
package listing

import (
	"errors"
	"fmt"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/bryan-buckman/unitview/internal/doorway"
	"github.com/bryan-buckman/unitview/internal/format"
	"github.com/bryan-buckman/unitview/internal/grid"
	"github.com/bryan-buckman/unitview/internal/model"
	"github.com/bryan-buckman/unitview/internal/page"
	"github.com/bryan-buckman/unitview/internal/persist"
	"go.uber.org/zap"
)

// Options are the collaborators of a View.
type Options struct {
	// Path is the URL path of the page.
	Path string
	// ViewportWidth in CSS pixels; 0 when unknown.
	ViewportWidth int

	Durable persist.DurableStore
	Session persist.SessionStore
	Doorway doorway.Dispatcher
	Dates   *format.Parser
	Now     func() time.Time
	Logger  *zap.Logger

	// NewGrid mounts the grid engine. Nil mounts grid.New on #mix-container.
	NewGrid func(doc *page.Document) (Grid, error)
}

// Summary reports what the load pass did.
type Summary struct {
	UnitType        string `json:"unit_type"`
	UnitTypeChanged bool   `json:"unit_type_changed"`
	FavoritesPage   bool   `json:"favorites_page"`
	Grid            bool   `json:"grid"`
	Prices          int    `json:"prices"`
	Dates           int    `json:"dates"`
	ScrollRestored  bool   `json:"scroll_restored"`
	ActiveVisited   bool   `json:"active_visited"`
	MobileLinks     int    `json:"mobile_links"`
	DoorwayButtons  int    `json:"doorway_buttons"`
	VisibleFavorite int    `json:"visible_favorites"`
}

// View is the coordinator for one page life.
type View struct {
	doc     *page.Document
	path    string
	width   int
	durable persist.DurableStore
	session persist.SessionStore
	doorway doorway.Dispatcher
	dates   *format.Parser
	now     func() time.Time
	log     *zap.Logger
	newGrid func(doc *page.Document) (Grid, error)

	favoritesPage bool
	controller    *Controller
	favorites     *Favorites
	grid          Grid
}

// New prepares a View. Nothing touches the document until Init.
func New(doc *page.Document, opts Options) *View {
	v := &View{
		doc:     doc,
		path:    opts.Path,
		width:   opts.ViewportWidth,
		durable: opts.Durable,
		session: opts.Session,
		doorway: opts.Doorway,
		dates:   opts.Dates,
		now:     opts.Now,
		log:     opts.Logger,
		newGrid: opts.NewGrid,
	}
	if v.durable == nil {
		v.durable = persist.NewMemoryDurable(nil)
	}
	if v.session == nil {
		v.session = persist.NewMemorySession()
	}
	if v.dates == nil {
		v.dates = format.NewParser(nil)
	}
	if v.now == nil {
		v.now = time.Now
	}
	if v.log == nil {
		v.log = zap.NewNop()
	}
	v.log = v.log.With(zap.String("path", v.path))
	if v.newGrid == nil {
		log := v.log
		v.newGrid = func(doc *page.Document) (Grid, error) {
			return grid.New(doc, grid.Options{Logger: log})
		}
	}
	return v
}

// Init runs the load pass: format, reset or restore view state, mount the
// grid controls, sync the flags and apply the favorites page.
func (v *View) Init() Summary {
	var sum Summary
	sum.UnitType, _ = UnitType(v.path)

	v.doc.Update(func(root *goquery.Selection) {
		sum.Prices, sum.Dates = FormatListing(root, v.dates)
		v.favoritesPage = root.Find("body").HasClass("favorites")
	})
	sum.FavoritesPage = v.favoritesPage

	sum.UnitTypeChanged = v.UnitTypeChanged()
	if sum.UnitTypeChanged {
		clearSort(v.session)
		clearScroll(v.session)
		saveUnitType(v.session, v.path)
	} else if st, ok := SavedScroll(v.session); ok {
		v.doc.Update(func(root *goquery.Selection) {
			sum.ScrollRestored = restoreScroll(root, st)
		})
	}

	v.doc.Update(func(root *goquery.Selection) {
		sum.MobileLinks = adjustLinksForMobile(root, v.width)
	})

	g, err := v.newGrid(v.doc)
	switch {
	case err == nil:
		v.grid = g
	case v.favoritesPage:
		v.log.Info("favorites page detected, skipping grid")
	case errors.Is(err, grid.ErrNoContainer):
		v.log.Error("grid container not found", zap.Error(err))
	default:
		v.log.Error("mount grid", zap.Error(err))
	}
	sum.Grid = v.grid != nil
	v.controller = newController(v, v.grid)
	v.controller.init(sum.UnitTypeChanged)

	if v.favoritesPage {
		v.favorites = &Favorites{v: v}
	}

	v.doc.Update(func(root *goquery.Selection) {
		sum.DoorwayButtons = tagDoorwayButtons(root)
		sum.ActiveVisited = v.setActiveUnitAsVisited(root)
		root.Find("a.unit").Each(func(_ int, link *goquery.Selection) {
			v.markVisitedIndicator(link)
		})
		seen := make(map[string]bool)
		root.Find(".heart-wrapper").Each(func(_ int, heart *goquery.Selection) {
			id, ok := heart.Attr("data-id")
			if !ok || seen[id] {
				return
			}
			seen[id] = true
			v.updateFavoriteIndicators(root, id, false)
		})
		if v.favorites != nil {
			v.favorites.apply(root)
			sum.VisibleFavorite = v.favorites.visible
		}
	})

	scroll, _ := SavedScroll(v.session)
	v.log.Debug("listing view ready",
		zap.String("unit_type", sum.UnitType),
		zap.String("scroll_direction", scroll.Direction()),
		zap.Bool("unit_type_changed", v.UnitTypeChanged()))
	return sum
}

// UnitTypeChanged reports whether the page's unit type differs from the
// one remembered in the session.
func (v *View) UnitTypeChanged() bool {
	return unitTypeChanged(v.session, v.path)
}

// Controller returns the filter/sort controller. It is nil before Init.
func (v *View) Controller() *Controller {
	return v.controller
}

// Favorites returns the favorites view, or nil when this is not the favorites page.
func (v *View) Favorites() *Favorites {
	return v.favorites
}

// Filter handles a click on a filter control.
func (v *View) Filter(g FilterGroup, value string) (*grid.Future, error) {
	return v.controller.Filter(g, value)
}

// Sort handles a click on a sort control. scroll, when known, is saved too.
func (v *View) Sort(field string, scroll *model.ScrollState) (model.SortState, error) {
	return v.controller.Sort(field, scroll)
}

// ToggleFavorite flips the favorited flag of id and returns the new value.
func (v *View) ToggleFavorite(id string) (bool, error) {
	var on bool
	var err error
	v.doc.Update(func(root *goquery.Selection) {
		if heartsFor(root, id).Length() == 0 {
			err = fmt.Errorf("%w: favorite %q", ErrNoControl, id)
			return
		}
		was := persist.Flag(v.durable, persist.FavoritedKey(id))
		persist.SetFlag(v.durable, persist.FavoritedKey(id), !was)
		on = v.updateFavoriteIndicators(root, id, v.favoritesPage)
	})
	if err != nil {
		return false, err
	}
	v.log.Info("favorite toggled", zap.String("id", id), zap.Bool("favorited", on))
	return on, nil
}

// VisitUnit records a click on the link of unit slug. It reports whether a
// link for that unit is on the page.
func (v *View) VisitUnit(slug string) bool {
	persist.SetFlag(v.durable, persist.VisitedKey(slug), true)
	found := false
	v.doc.Update(func(root *goquery.Selection) {
		holders := bySlug(root, slug)
		found = holders.Length() > 0
		links := holders.Find("a.unit").AddSelection(holders.Filter("a.unit"))
		links.Each(func(_ int, link *goquery.Selection) {
			v.markVisitedIndicator(link)
		})
	})
	return found
}

// SaveScroll records the sidebar offsets, as on touchstart and beforeunload.
func (v *View) SaveScroll(st model.ScrollState) {
	SaveScroll(v.session, st)
}

// Resize re-applies the mobile link adjustment for a new viewport width.
func (v *View) Resize(width int) int {
	v.width = width
	n := 0
	v.doc.Update(func(root *goquery.Selection) {
		n = adjustLinksForMobile(root, width)
	})
	return n
}

// Doorway runs a named knock action. Unknown actions are logged and returned
// as doorway.ErrUnknownAction.
func (v *View) Doorway(action string) (doorway.Result, error) {
	res, err := doorway.Invoke(v.doorway, action)
	if err != nil {
		v.log.Error("doorway action failed", zap.String("action", action), zap.Error(err))
		return doorway.Result{}, err
	}
	return res, nil
}

// Document returns the page being coordinated.
func (v *View) Document() *page.Document {
	return v.doc
}

// Close waits for pending grid work.
func (v *View) Close() {
	if c, ok := v.grid.(interface{ Close() }); ok {
		c.Close()
	}
}
