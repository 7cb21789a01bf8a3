package format

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCurrency(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{2500, "$2,500"},
		{2500.75, "$2,501"},
		{2500.5, "$2,501"},
		{999.49, "$999"},
		{0, "$0"},
		{-0.4, "$0"},
		{-12.5, "-$13"},
		{1234567, "$1,234,567"},
		{1e19, "$10,000,000,000,000,000,000"},
		{-1e20, "-$100,000,000,000,000,000,000"},
		{math.Inf(1), "$∞"},
		{math.Inf(-1), "-$∞"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Currency(tt.in), "Currency(%v)", tt.in)
	}
}

func TestPrice(t *testing.T) {
	got, ok := Price("2500")
	assert.True(t, ok)
	assert.Equal(t, "$2,500", got)

	got, ok = Price("  1850.25 ")
	assert.True(t, ok)
	assert.Equal(t, "$1,850", got)

	got, ok = Price("2500 / month")
	assert.True(t, ok)
	assert.Equal(t, "$2,500", got)

	// Beyond int64 range and beyond float64 range.
	big := map[string]string{
		"99999999999999999999": "$100,000,000,000,000,000,000",
		"1e19":                 "$10,000,000,000,000,000,000",
		"1e400":                "$∞",
		"-1e400":               "-$∞",
	}
	for in, want := range big {
		got, ok := Price(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}

	for _, in := range []string{"Call for pricing", "", "$2,500", "-"} {
		got, ok := Price(in)
		assert.False(t, ok, in)
		assert.Equal(t, in, got, "non-numeric text must be returned untouched")
	}
}

func TestOrdinalSuffix(t *testing.T) {
	want := map[int]string{
		1: "st", 2: "nd", 3: "rd", 4: "th", 10: "th",
		11: "th", 12: "th", 13: "th", 14: "th", 20: "th",
		21: "st", 22: "nd", 23: "rd", 24: "th", 30: "th", 31: "st",
	}
	for day, suffix := range want {
		assert.Equal(t, suffix, OrdinalSuffix(day), "day %d", day)
	}
}

func TestParserDate(t *testing.T) {
	p := NewParser(time.UTC)

	tests := []struct {
		in   string
		want string
	}{
		{"2024-09-01", "Sep 1st"},
		{"2024-09-02", "Sep 2nd"},
		{"2024-09-03", "Sep 3rd"},
		{"2024-09-11", "Sep 11th"},
		{"2024-09-22", "Sep 22nd"},
		{"September 15, 2024", "Sep 15th"},
		{"10/31/2024", "Oct 31st"},
	}
	for _, tt := range tests {
		got, ok := p.Date(tt.in)
		require.True(t, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestParserDateSkipsUnparseable(t *testing.T) {
	p := NewParser(time.UTC)
	for _, in := range []string{"", "   ", "soon", "2500"} {
		got, ok := p.Date(in)
		assert.False(t, ok, in)
		assert.Equal(t, in, got)
	}
}

func TestParseDateIsCalendarDay(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skip("tzdata not available")
	}
	p := NewParser(ny)
	d, ok := p.ParseDate("2024-03-01")
	require.True(t, ok)
	assert.Equal(t, 1, d.Day())
	assert.Equal(t, time.March, d.Month())
	assert.Equal(t, 0, d.Hour())
}
