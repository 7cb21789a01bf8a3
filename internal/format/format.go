// Package format turns raw CMS field text into display strings.
package format

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/bryan-buckman/unitview/internal/model"
	"github.com/dustin/go-humanize"
)

// Currency formats v as whole US dollars, rounding half away from zero.
// Infinite values render as "$∞".
func Currency(v float64) string {
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	if math.IsInf(v, 0) {
		return sign + "$∞"
	}
	rounded := math.Round(v)
	if rounded == 0 {
		// -0.4 rounds to zero and must not render as "-$0".
		sign = ""
	}
	return sign + "$" + humanize.Commaf(rounded)
}

// Price reformats price text. ok is false when the text does not start with
// a number, in which case the caller keeps the original text.
func Price(text string) (string, bool) {
	v, ok := model.ParseFloat(text)
	if !ok {
		return text, false
	}
	return Currency(v), true
}

// OrdinalSuffix returns the English ordinal suffix for a day of month.
func OrdinalSuffix(day int) string {
	if n := day % 100; n >= 11 && n <= 13 {
		return "th"
	}
	switch day % 10 {
	case 1:
		return "st"
	case 2:
		return "nd"
	case 3:
		return "rd"
	default:
		return "th"
	}
}

// Parser parses CMS date strings as calendar dates in a fixed location.
type Parser struct {
	Location *time.Location
}

// NewParser returns a parser for loc, or for time.Local when loc is nil.
func NewParser(loc *time.Location) *Parser {
	if loc == nil {
		loc = time.Local
	}
	return &Parser{Location: loc}
}

// ParseDate parses text into midnight of its calendar day.
func (p *Parser) ParseDate(text string) (time.Time, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return time.Time{}, false
	}
	// Bare numbers are prices or counts, never dates.
	if _, err := strconv.ParseFloat(text, 64); err == nil {
		return time.Time{}, false
	}
	t, err := dateparse.ParseIn(text, p.Location)
	if err != nil {
		return time.Time{}, false
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, p.Location), true
}

// Date formats text as "Jan 2nd". ok is false for empty or unparseable text.
func (p *Parser) Date(text string) (string, bool) {
	t, ok := p.ParseDate(text)
	if !ok {
		return text, false
	}
	return t.Format("Jan") + " " + strconv.Itoa(t.Day()) + OrdinalSuffix(t.Day()), true
}
