package listing

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/bryan-buckman/unitview/internal/grid"
	"github.com/bryan-buckman/unitview/internal/model"
	"github.com/bryan-buckman/unitview/internal/page"
	"go.uber.org/zap"
)

var (
	// ErrNoGrid is returned for grid interactions on a page without a grid container.
	ErrNoGrid = errors.New("no grid on this page")
	// ErrNoControl is returned when no control on the page is bound to the value.
	ErrNoControl = errors.New("no control bound to value")
	// ErrDisabled is returned when the bound control is disabled.
	ErrDisabled = errors.New("control is disabled")
)

// FilterGroup identifies one set of mutually exclusive filter controls.
type FilterGroup int

const (
	GroupCategory FilterGroup = iota
	GroupFloorPlan
)

func (g FilterGroup) String() string {
	if g == GroupFloorPlan {
		return "floorplan"
	}
	return "category"
}

// ParseFilterGroup parses "category" or "floorplan".
func ParseFilterGroup(s string) (FilterGroup, bool) {
	switch s {
	case "category", "":
		return GroupCategory, true
	case "floorplan", "floor-plan":
		return GroupFloorPlan, true
	}
	return 0, false
}

type groupSpec struct {
	controls string // control selector
	attr     string // control attribute carrying the bound value
	itemAttr string // item attribute the filter selects on
}

var groupSpecs = [...]groupSpec{
	GroupCategory:  {controls: ".dropdown-link", attr: "data-filter", itemAttr: "data-category"},
	GroupFloorPlan: {controls: ".floor-plan-link", attr: "data-floor-plan", itemAttr: "data-floor-plan"},
}

// Grid is the filter/sort capability the controller delegates to.
type Grid interface {
	Filter(selector string) *grid.Future
	Sort(spec string) error
}

// Controller owns the filter and sort controls of a grid page.
type Controller struct {
	v    *View
	grid Grid

	// Counts from the last categorize pass.
	Categories map[model.AvailabilityCategory]int
	FloorPlans map[string]int

	mu     sync.Mutex
	seq    [len(groupSpecs)]uint64
	active [len(groupSpecs)]string
}

func newController(v *View, g Grid) *Controller {
	return &Controller{
		v:          v,
		grid:       g,
		Categories: make(map[model.AvailabilityCategory]int),
		FloorPlans: make(map[string]int),
	}
}

// init restores the saved sort, tags items with their availability category
// and enables only the controls that can match something.
func (c *Controller) init(unitTypeChanged bool) {
	if c.grid == nil {
		return
	}
	if !unitTypeChanged {
		if state, ok := SavedSort(c.v.session); ok {
			if err := c.grid.Sort(state.String()); err != nil {
				c.v.log.Warn("restore sort failed", zap.String("sort", state.String()), zap.Error(err))
			} else {
				c.v.doc.Update(func(root *goquery.Selection) { updateSortButtons(root, state) })
			}
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.v.doc.Update(func(root *goquery.Selection) {
		c.categorize(root)
		c.countFloorPlans(root)
		c.bindCategoryControls(root)
		c.bindFloorPlanControls(root)
	})
	c.v.log.Debug("filter counts",
		zap.Any("categories", c.Categories),
		zap.Any("floor_plans", c.FloorPlans))
}

// visibleItems yields collection items whose unit is not hidden by a CMS condition.
func visibleItems(root *goquery.Selection, fn func(item *goquery.Selection)) {
	root.Find(".collection-item").Each(func(_ int, item *goquery.Selection) {
		unit := item.Find(".unit").First()
		if unit.Length() == 0 || unit.HasClass("w-condition-invisible") {
			return
		}
		fn(item)
	})
}

func (c *Controller) categorize(root *goquery.Selection) {
	now := c.v.now()
	visibleItems(root, func(item *goquery.Selection) {
		raw, ok := item.Attr("data-available-date")
		if !ok || raw == "" {
			return
		}
		date, ok := c.v.dates.ParseDate(raw)
		if !ok {
			return
		}
		cat := model.Categorize(model.DaysUntil(date, now))
		item.SetAttr("data-category", string(cat))
		c.Categories[cat]++
	})
}

func (c *Controller) countFloorPlans(root *goquery.Selection) {
	visibleItems(root, func(item *goquery.Selection) {
		if fp, ok := item.Attr("data-floor-plan"); ok {
			c.FloorPlans[fp]++
		}
	})
}

func (c *Controller) bindCategoryControls(root *goquery.Selection) {
	root.Find(groupSpecs[GroupCategory].controls).Each(func(_ int, link *goquery.Selection) {
		raw, _ := link.Attr("data-filter")
		f, err := model.ParseCategoryFilter(raw)
		switch {
		case err != nil:
			c.v.log.Warn("ignoring filter control", zap.Error(err))
			page.Disable(link)
		case f.All:
			page.Enable(link)
		case c.Categories[f.Category] == 0:
			page.Disable(link)
		default:
			page.Enable(link)
		}
	})
	setActive(root, GroupCategory, model.FilterAll)
	c.active[GroupCategory] = model.FilterAll
}

func (c *Controller) bindFloorPlanControls(root *goquery.Selection) {
	root.Find(groupSpecs[GroupFloorPlan].controls).Each(func(_ int, link *goquery.Selection) {
		fp, _ := link.Attr("data-floor-plan")
		if fp == model.FilterAll || c.FloorPlans[fp] > 0 {
			page.Enable(link)
		} else {
			page.Disable(link)
		}
	})
	setActive(root, GroupFloorPlan, model.FilterAll)
	c.active[GroupFloorPlan] = model.FilterAll
}

// setActive highlights the controls of group bound to value and clears the rest.
func setActive(root *goquery.Selection, g FilterGroup, value string) {
	spec := groupSpecs[g]
	controls := root.Find(spec.controls)
	controls.RemoveClass("active")
	if value == "" {
		return
	}
	controls.FilterFunction(func(_ int, s *goquery.Selection) bool {
		return page.Matches(s, spec.attr, value)
	}).AddClass("active")
}

// selector resolves a control value into a grid filter selector.
func selector(g FilterGroup, value string) (string, error) {
	if value == model.FilterAll {
		return grid.SelectAll, nil
	}
	if g == GroupCategory {
		f, err := model.ParseCategoryFilter(value)
		if err != nil {
			return "", err
		}
		value = string(f.Category)
	} else if strings.ContainsAny(value, `"\`) || value == "" {
		return "", fmt.Errorf("%w: floor plan %q", model.ErrUnknownFilter, value)
	}
	return fmt.Sprintf(`[%s="%s"]`, groupSpecs[g].itemAttr, value), nil
}

// Filter handles a click on a filter control. The clicked control is
// highlighted before the grid finishes; the returned future resolves when it
// does. If the grid fails and no newer click has happened since, the
// highlight moves back to the control that was active before.
func (c *Controller) Filter(g FilterGroup, value string) (*grid.Future, error) {
	if c.grid == nil {
		return nil, ErrNoGrid
	}
	sel, err := selector(g, value)
	if err != nil {
		return nil, err
	}

	spec := groupSpecs[g]
	c.mu.Lock()
	var found, disabled bool
	c.v.doc.Update(func(root *goquery.Selection) {
		bound := root.Find(spec.controls).FilterFunction(func(_ int, s *goquery.Selection) bool {
			return page.Matches(s, spec.attr, value)
		})
		found = bound.Length() > 0
		disabled = found && page.Disabled(bound)
		if found && !disabled {
			setActive(root, g, value)
		}
	})
	if !found || disabled {
		c.mu.Unlock()
		if !found {
			return nil, fmt.Errorf("%w: %s %q", ErrNoControl, g, value)
		}
		return nil, fmt.Errorf("%w: %s %q", ErrDisabled, g, value)
	}
	c.seq[g]++
	seq := c.seq[g]
	prev := c.active[g]
	c.active[g] = value
	c.mu.Unlock()

	c.v.log.Info("filtering", zap.Stringer("group", g), zap.String("selector", sel))
	fut := c.grid.Filter(sel)
	fut.Then(func(state grid.State, err error) {
		c.reconcile(g, seq, prev, state, err)
	})
	return fut, nil
}

func (c *Controller) reconcile(g FilterGroup, seq uint64, prev string, state grid.State, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	latest := seq == c.seq[g]
	if err != nil {
		c.v.log.Error("filter application error", zap.Stringer("group", g), zap.Error(err))
		if latest {
			c.active[g] = prev
			c.v.doc.Update(func(root *goquery.Selection) { setActive(root, g, prev) })
		}
		return
	}
	c.v.log.Info("filter applied",
		zap.Stringer("group", g),
		zap.Int("shown", state.TotalShow),
		zap.Bool("latest", latest))
}

// Active returns the highlighted value of a filter group.
func (c *Controller) Active(g FilterGroup) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active[g]
}

// Sort handles a click on the sort control for field. Clicking the active
// field flips its order; any other field starts ascending.
func (c *Controller) Sort(field string, scroll *model.ScrollState) (model.SortState, error) {
	if c.grid == nil {
		return model.SortState{}, ErrNoGrid
	}
	f, err := model.ParseSortField(field)
	if err != nil {
		return model.SortState{}, err
	}

	state := model.SortState{Field: f, Order: model.OrderAsc}
	found := false
	c.v.doc.Update(func(root *goquery.Selection) {
		root.Find(".sort-link").EachWithBreak(func(_ int, btn *goquery.Selection) bool {
			if sortLinkField(btn) != f {
				return true
			}
			found = true
			if btn.HasClass("active") {
				cur, ok := model.ParseSortOrder(btn.AttrOr("data-order", string(model.OrderAsc)))
				if !ok {
					cur = model.OrderAsc
				}
				state.Order = cur.Flip()
			}
			return false
		})
	})
	if !found {
		return model.SortState{}, fmt.Errorf("%w: sort %q", ErrNoControl, field)
	}

	if err := c.grid.Sort(state.String()); err != nil {
		return model.SortState{}, fmt.Errorf("sort %s: %w", state, err)
	}
	c.v.doc.Update(func(root *goquery.Selection) { updateSortButtons(root, state) })
	SaveSort(c.v.session, state)
	if scroll != nil {
		SaveScroll(c.v.session, *scroll)
	}
	return state, nil
}

func sortLinkField(btn *goquery.Selection) model.SortField {
	raw, _ := btn.Attr("data-sort")
	field, _, _ := strings.Cut(raw, ":")
	return model.SortField(field)
}

// updateSortButtons marks the control of the active field and resets the others.
func updateSortButtons(root *goquery.Selection, state model.SortState) {
	root.Find(".sort-link").Each(func(_ int, btn *goquery.Selection) {
		arrow := btn.Find(".arrow")
		arrow.RemoveClass(string(model.OrderAsc), string(model.OrderDesc))
		if sortLinkField(btn) != state.Field {
			btn.RemoveClass("active")
			btn.SetAttr("data-order", string(model.OrderAsc))
			return
		}
		btn.AddClass("active")
		btn.SetAttr("data-order", string(state.Order))
		arrow.AddClass(string(state.Order))
	})
}
