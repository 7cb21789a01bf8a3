// Package model defines shared data structures.
package model

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ListingItem represents one rendered unit row/card of the CMS collection grid.
type ListingItem struct {
	ID            string
	FloorPlan     string
	AvailableDate *time.Time // nullable when the CMS left the field empty
	Price         *float64
	Sqft          *float64
	Slug          string // last path segment of the unit's detail page
	Visible       bool
}

// AvailabilityCategory buckets a unit by how soon it can be moved into.
type AvailabilityCategory string

const (
	CategoryNow        AvailabilityCategory = "now"
	CategoryThirtyDays AvailabilityCategory = "thirtydays"
	CategorySixtyDays  AvailabilityCategory = "sixtydays"
	CategoryNinetyDays AvailabilityCategory = "ninetydays"
)

// Categories lists every category in ascending availability order.
var Categories = []AvailabilityCategory{CategoryNow, CategoryThirtyDays, CategorySixtyDays, CategoryNinetyDays}

// Categorize maps a day difference to its availability bucket.
func Categorize(days int) AvailabilityCategory {
	switch {
	case days <= 30:
		return CategoryNow
	case days <= 60:
		return CategoryThirtyDays
	case days <= 90:
		return CategorySixtyDays
	default:
		return CategoryNinetyDays
	}
}

// DaysUntil returns floor((date - today) / 1 day).
func DaysUntil(date, today time.Time) int {
	return int(math.Floor(date.Sub(today).Hours() / 24))
}

// ParseCategory parses a category name as written in a data-filter attribute.
func ParseCategory(s string) (AvailabilityCategory, bool) {
	for _, c := range Categories {
		if string(c) == s {
			return c, true
		}
	}
	return "", false
}

// FilterAll is the control value that clears a filter.
const FilterAll = "all"

// CategoryFilter is the parsed value of a move-in filter control.
type CategoryFilter struct {
	All      bool
	Category AvailabilityCategory
}

// ErrUnknownFilter is returned for a filter value no control can bind to.
var ErrUnknownFilter = errors.New("unknown filter value")

// ParseCategoryFilter parses a data-filter attribute value.
func ParseCategoryFilter(s string) (CategoryFilter, error) {
	s = strings.TrimSpace(s)
	if s == FilterAll {
		return CategoryFilter{All: true}, nil
	}
	c, ok := ParseCategory(s)
	if !ok {
		return CategoryFilter{}, fmt.Errorf("%w: %q", ErrUnknownFilter, s)
	}
	return CategoryFilter{Category: c}, nil
}

// SortOrder is the direction of a sort.
type SortOrder string

const (
	OrderAsc  SortOrder = "asc"
	OrderDesc SortOrder = "desc"
)

// ParseSortOrder parses "asc" or "desc".
func ParseSortOrder(s string) (SortOrder, bool) {
	switch SortOrder(s) {
	case OrderAsc, OrderDesc:
		return SortOrder(s), true
	}
	return "", false
}

// Flip returns the opposite order.
func (o SortOrder) Flip() SortOrder {
	if o == OrderAsc {
		return OrderDesc
	}
	return OrderAsc
}

// SortField names the data-<field> attribute a sort reads.
type SortField string

const (
	FieldPrice SortField = "price"
	FieldSqft  SortField = "sqft"
)

// ErrInvalidSort is returned when a sort spec cannot be parsed.
var ErrInvalidSort = errors.New("invalid sort")

// ParseSortField validates an attribute-safe field name.
func ParseSortField(s string) (SortField, error) {
	if s == "" {
		return "", fmt.Errorf("%w: empty field", ErrInvalidSort)
	}
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '-') {
			return "", fmt.Errorf("%w: field %q", ErrInvalidSort, s)
		}
	}
	return SortField(s), nil
}

// Numeric reports whether the field compares as a number.
func (f SortField) Numeric() bool {
	return f == FieldPrice || f == FieldSqft
}

// Attr returns the data attribute holding the field's value.
func (f SortField) Attr() string {
	return "data-" + string(f)
}

// SortState is the persisted sort selection.
type SortState struct {
	Field SortField
	Order SortOrder
}

// String renders the state as "field:order".
func (s SortState) String() string {
	return string(s.Field) + ":" + string(s.Order)
}

// ParseSortSpec parses "field:order". A missing order means ascending.
func ParseSortSpec(spec string) (SortState, error) {
	field, order, hasOrder := strings.Cut(strings.TrimSpace(spec), ":")
	f, err := ParseSortField(field)
	if err != nil {
		return SortState{}, err
	}
	if !hasOrder {
		return SortState{Field: f, Order: OrderAsc}, nil
	}
	o, ok := ParseSortOrder(order)
	if !ok {
		return SortState{}, fmt.Errorf("%w: order %q", ErrInvalidSort, order)
	}
	return SortState{Field: f, Order: o}, nil
}

// ScrollState is the persisted offset of the sidebar scroll container.
type ScrollState struct {
	Top  float64
	Left float64
}

// Direction reports "vertical" when either offset is set, else "horizontal".
func (s ScrollState) Direction() string {
	if s.Top > 0 || s.Left > 0 {
		return "vertical"
	}
	return "horizontal"
}

// Less is the manual sort comparator used where no grid engine is mounted.
// Ascending places a after b when a > b; descending inverts. Numeric fields
// compare parsed floats, so a missing value never sorts before anything.
func Less(field SortField, order SortOrder, a, b string) bool {
	if order == OrderDesc {
		a, b = b, a
	}
	if field.Numeric() {
		return parseLeadingFloat(a) < parseLeadingFloat(b)
	}
	return a < b
}

// ParseFloat parses the leading number in s the way lenient HTML attribute
// parsing does ("2500abc" is 2500). ok is false when no number leads s.
func ParseFloat(s string) (float64, bool) {
	v := parseLeadingFloat(s)
	return v, !math.IsNaN(v)
}

func parseLeadingFloat(s string) float64 {
	s = strings.TrimSpace(s)
	end := 0
	seenDigit, seenDot, seenExp := false, false, false
scan:
	for end < len(s) {
		c := s[end]
		switch {
		case c >= '0' && c <= '9':
			seenDigit = true
		case (c == '+' || c == '-') && (end == 0 || s[end-1] == 'e' || s[end-1] == 'E'):
		case c == '.' && !seenDot && !seenExp:
			seenDot = true
		case (c == 'e' || c == 'E') && seenDigit && !seenExp:
			seenExp = true
		default:
			break scan
		}
		end++
	}
	for end > 0 {
		v, err := strconv.ParseFloat(s[:end], 64)
		if err == nil || errors.Is(err, strconv.ErrRange) {
			// Out-of-range literals are ±Inf, not a shorter number.
			return v
		}
		end--
	}
	return math.NaN()
}

// CachedPage is an upstream CMS page as last fetched.
type CachedPage struct {
	Path      string
	HTML      string
	FetchedAt time.Time
}

// Fresh reports whether the page was fetched less than ttl before now.
func (p CachedPage) Fresh(now time.Time, ttl time.Duration) bool {
	return now.Sub(p.FetchedAt) < ttl
}

// Settings key constants.
const (
	SettingWarmIntervalMinutes = "warm_interval_minutes"
)

// ItemFromAttrs builds a ListingItem from the data attributes of a rendered
// collection item. parseDate decides which date strings are valid.
func ItemFromAttrs(attr func(name string) (string, bool), parseDate func(string) (time.Time, bool)) ListingItem {
	var item ListingItem
	item.ID, _ = attr("data-id")
	item.FloorPlan, _ = attr("data-floor-plan")
	item.Slug, _ = attr("data-slug")
	if v, ok := attr("data-available-date"); ok && parseDate != nil {
		if d, ok := parseDate(v); ok {
			item.AvailableDate = &d
		}
	}
	if v, ok := attr(FieldPrice.Attr()); ok {
		if f, ok := ParseFloat(v); ok {
			item.Price = &f
		}
	}
	if v, ok := attr(FieldSqft.Attr()); ok {
		if f, ok := ParseFloat(v); ok {
			item.Sqft = &f
		}
	}
	return item
}
