package listing

import (
	"sort"

	"github.com/PuerkitoBio/goquery"
	"github.com/bryan-buckman/unitview/internal/model"
	"github.com/bryan-buckman/unitview/internal/page"
	"github.com/bryan-buckman/unitview/internal/persist"
	"go.uber.org/zap"
)

const (
	favoriteItems      = ".collection-item.mix"
	placeholderID      = "no-favorites-message"
	placeholderMessage = "You haven't favorited any apartments yet. Click the hearts to save your favorites."
)

// Favorites shows only favorited items on the favorites page.
type Favorites struct {
	v *View
	// visible counts items with a favorite control that are currently shown.
	visible int
}

// Visible returns the number of favorited items on display.
func (f *Favorites) Visible() int {
	return f.visible
}

// apply runs the full visibility pass, the zero-visible guard and the
// manual sort. Caller holds the document.
func (f *Favorites) apply(root *goquery.Selection) {
	items := root.Find(favoriteItems)
	f.visible = 0
	var shown []*goquery.Selection
	items.Each(func(_ int, item *goquery.Selection) {
		heart := item.Find(".heart-wrapper").First()
		if heart.Length() == 0 {
			return
		}
		id, _ := heart.Attr("data-id")
		if persist.Flag(f.v.durable, persist.FavoritedKey(id)) {
			page.Show(item)
			f.visible++
			shown = append(shown, item)
		} else {
			page.Hide(item)
		}
	})
	if items.Length() > 0 {
		f.guard(items.First().Parent())
	}

	if state, ok := SavedSort(f.v.session); ok && len(shown) > 1 {
		sortItems(shown, state)
		page.AppendInOrder(shown[0].Parent(), shown)
	}
	f.v.log.Debug("favorites applied", zap.Int("visible", f.visible))
}

// sortItems orders items with the manual comparator.
func sortItems(items []*goquery.Selection, state model.SortState) {
	attr := state.Field.Attr()
	sort.Slice(items, func(i, j int) bool {
		a, _ := items[i].Attr(attr)
		b, _ := items[j].Attr(attr)
		return model.Less(state.Field, state.Order, a, b)
	})
}

// toggled re-applies visibility for the items carrying id, without touching
// any other item. Caller holds the document.
func (f *Favorites) toggled(root *goquery.Selection, id string, favorited bool) {
	var parent *goquery.Selection
	root.Find(".heart-wrapper").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return page.Matches(s, "data-id", id)
	}).Each(func(_ int, heart *goquery.Selection) {
		item := heart.Closest(favoriteItems)
		if item.Length() == 0 {
			return
		}
		wasVisible := !page.Hidden(item)
		if favorited {
			page.Show(item)
			if !wasVisible {
				f.visible++
			}
		} else {
			page.Hide(item)
			if wasVisible {
				f.visible--
			}
		}
		parent = item.Parent()
	})
	if parent != nil {
		f.guard(parent)
	}
}

// guard shows the placeholder while nothing is visible and hides it otherwise.
// The placeholder is created at most once, as the first child of parent.
func (f *Favorites) guard(parent *goquery.Selection) {
	msg := parent.Closest("html").Find("#" + placeholderID)
	if f.visible > 0 {
		if msg.Length() > 0 {
			page.SetStyle(msg, "display", "none")
		}
		return
	}
	if msg.Length() == 0 {
		parent.PrependHtml(`<div id="` + placeholderID + `" style="text-align: left; padding: 1rem; font-size: 1rem;">` +
			placeholderMessage + `</div>`)
		msg = parent.Children().First()
		f.v.log.Info("no favorites, placeholder created")
	}
	page.SetStyle(msg, "display", "")
}
