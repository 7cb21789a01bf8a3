package listing

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/bryan-buckman/unitview/internal/format"
)

// FormatListing rewrites .price text as whole dollars and .available-date
// text as "Jan 2nd". Text that does not parse is left alone, which also makes
// a second pass a no-op.
func FormatListing(root *goquery.Selection, dates *format.Parser) (prices, dateCount int) {
	root.Find(".price").Each(func(_ int, s *goquery.Selection) {
		if out, ok := format.Price(s.Text()); ok {
			s.SetText(out)
			prices++
		}
	})
	root.Find(".available-date").Each(func(_ int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		if text == "" {
			return
		}
		if out, ok := dates.Date(text); ok {
			s.SetText(out)
			dateCount++
		}
	})
	return prices, dateCount
}
