package listing

import (
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/bryan-buckman/unitview/internal/doorway"
	"github.com/bryan-buckman/unitview/internal/model"
)

// MobileBreakpoint is the widest viewport treated as mobile.
const MobileBreakpoint = 767

const gridAnchor = "#mix-container"

// adjustLinksForMobile makes unit links jump to the grid on small screens.
// An unknown width (0) leaves links untouched.
func adjustLinksForMobile(root *goquery.Selection, width int) int {
	if width <= 0 || width > MobileBreakpoint {
		return 0
	}
	changed := 0
	root.Find(".unit").Each(func(_ int, link *goquery.Selection) {
		href, ok := link.Attr("href")
		if !ok || strings.Contains(href, gridAnchor) {
			return
		}
		link.SetAttr("href", href+gridAnchor)
		changed++
	})
	return changed
}

// tagDoorwayButtons records on each knock button the action it triggers.
func tagDoorwayButtons(root *goquery.Selection) int {
	n := 0
	for _, b := range doorway.Bindings {
		root.Find(b.Selector).Each(func(_ int, btn *goquery.Selection) {
			btn.SetAttr("data-doorway-action", b.Action)
			n++
		})
	}
	return n
}

const scrollContainer = ".centroid-sidebar"

// restoreScroll exposes the saved offsets on the sidebar for the page to apply.
func restoreScroll(root *goquery.Selection, st model.ScrollState) bool {
	sidebar := root.Find(scrollContainer).First()
	if sidebar.Length() == 0 {
		return false
	}
	sidebar.SetAttr("data-scroll-top", strconv.FormatFloat(st.Top, 'f', -1, 64))
	sidebar.SetAttr("data-scroll-left", strconv.FormatFloat(st.Left, 'f', -1, 64))
	return true
}
