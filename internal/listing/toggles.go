package listing

import (
	"github.com/PuerkitoBio/goquery"
	"github.com/bryan-buckman/unitview/internal/page"
	"github.com/bryan-buckman/unitview/internal/persist"
)

func bySlug(root *goquery.Selection, slug string) *goquery.Selection {
	return root.Find("[data-slug]").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return page.Matches(s, "data-slug", slug)
	})
}

func heartsFor(root *goquery.Selection, id string) *goquery.Selection {
	return root.Find(".heart-wrapper").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return page.Matches(s, "data-id", id)
	})
}

// markVisitedIndicator sets the eye icon of a unit link from its durable flag.
func (v *View) markVisitedIndicator(link *goquery.Selection) {
	holder := link.Closest("[data-slug]")
	if holder.Length() == 0 {
		return
	}
	slug, _ := holder.Attr("data-slug")
	eye := link.Find(".eye-wrapper .eye")
	if persist.Flag(v.durable, persist.VisitedKey(slug)) {
		eye.AddClass("visited")
	} else {
		eye.RemoveClass("visited")
	}
}

// setActiveUnitAsVisited marks the unit whose detail page is open as visited.
func (v *View) setActiveUnitAsVisited(root *goquery.Selection) bool {
	slug := UnitSlug(v.path)
	active := bySlug(root, slug)
	if slug == "" || active.Length() == 0 {
		return false
	}
	persist.SetFlag(v.durable, persist.VisitedKey(slug), true)
	active.Find(".eye-wrapper .eye").AddClass("visited")
	return true
}

// updateFavoriteIndicators syncs every heart sharing id with its flag. On the
// favorites page it also reapplies visibility for those items.
func (v *View) updateFavoriteIndicators(root *goquery.Selection, id string, incremental bool) bool {
	on := persist.Flag(v.durable, persist.FavoritedKey(id))
	hearts := heartsFor(root, id).Find(".heart, .mainheart")
	if on {
		hearts.AddClass("selected")
	} else {
		hearts.RemoveClass("selected")
	}
	if incremental && v.favorites != nil {
		v.favorites.toggled(root, id, on)
	}
	return on
}
