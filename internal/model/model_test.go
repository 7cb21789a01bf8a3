package model

import (
	"math"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCategorize(t *testing.T) {
	tests := []struct {
		days int
		want AvailabilityCategory
	}{
		{-5, CategoryNow},
		{0, CategoryNow},
		{30, CategoryNow},
		{31, CategoryThirtyDays},
		{60, CategoryThirtyDays},
		{61, CategorySixtyDays},
		{90, CategorySixtyDays},
		{91, CategoryNinetyDays},
		{400, CategoryNinetyDays},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Categorize(tt.days), "days=%d", tt.days)
	}
}

func TestDaysUntilFloors(t *testing.T) {
	today := time.Date(2024, 9, 1, 15, 0, 0, 0, time.UTC)
	assert.Equal(t, 30, DaysUntil(time.Date(2024, 10, 1, 16, 0, 0, 0, time.UTC), today))
	assert.Equal(t, 29, DaysUntil(time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC), today))
	assert.Equal(t, -1, DaysUntil(time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC), today))
}

func TestParseCategoryFilter(t *testing.T) {
	f, err := ParseCategoryFilter("all")
	require.NoError(t, err)
	assert.True(t, f.All)

	f, err = ParseCategoryFilter("sixtydays")
	require.NoError(t, err)
	assert.Equal(t, CategorySixtyDays, f.Category)

	_, err = ParseCategoryFilter("tomorrow")
	assert.ErrorIs(t, err, ErrUnknownFilter)
}

func TestParseSortSpec(t *testing.T) {
	s, err := ParseSortSpec("price:desc")
	require.NoError(t, err)
	assert.Equal(t, SortState{Field: FieldPrice, Order: OrderDesc}, s)
	assert.Equal(t, "price:desc", s.String())

	s, err = ParseSortSpec("available-date")
	require.NoError(t, err)
	assert.Equal(t, OrderAsc, s.Order)

	for _, bad := range []string{"", ":asc", "price:up", `price"]:asc`, "Price:asc"} {
		_, err := ParseSortSpec(bad)
		assert.ErrorIs(t, err, ErrInvalidSort, bad)
	}
}

func TestLess(t *testing.T) {
	prices := []string{"1200", "900"}
	sort.Slice(prices, func(i, j int) bool { return Less(FieldPrice, OrderAsc, prices[i], prices[j]) })
	assert.Equal(t, []string{"900", "1200"}, prices)

	sort.Slice(prices, func(i, j int) bool { return Less(FieldPrice, OrderDesc, prices[i], prices[j]) })
	assert.Equal(t, []string{"1200", "900"}, prices)

	// Non-numeric fields compare as strings, so "1200" < "900".
	names := []string{"900", "1200"}
	sort.Slice(names, func(i, j int) bool { return Less("unit", OrderAsc, names[i], names[j]) })
	assert.Equal(t, []string{"1200", "900"}, names)
}

func TestParseFloat(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"2500", 2500, true},
		{" 2500.75 ", 2500.75, true},
		{"2500abc", 2500, true},
		{"-12.5", -12.5, true},
		{"1e3", 1000, true},
		{"1e", 1, true},
		{".5", 0.5, true},
		{"$2,500", 0, false},
		{"", 0, false},
		{"-", 0, false},
		{"1e400", math.Inf(1), true},
		{"-1e400 / month", math.Inf(-1), true},
		{"99999999999999999999", 1e20, true},
	}
	for _, tt := range tests {
		got, ok := ParseFloat(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		if tt.ok {
			assert.Equal(t, tt.want, got, tt.in)
		}
	}
}

func TestItemFromAttrs(t *testing.T) {
	attrs := map[string]string{
		"data-id":             "a1",
		"data-floor-plan":     "studio",
		"data-slug":           "unit-101",
		"data-available-date": "2024-10-01",
		"data-price":          "1850",
		"data-sqft":           "n/a",
	}
	parse := func(s string) (time.Time, bool) {
		t, err := time.Parse("2006-01-02", s)
		return t, err == nil
	}
	item := ItemFromAttrs(func(name string) (string, bool) {
		v, ok := attrs[name]
		return v, ok
	}, parse)

	assert.Equal(t, "a1", item.ID)
	assert.Equal(t, "studio", item.FloorPlan)
	assert.Equal(t, "unit-101", item.Slug)
	require.NotNil(t, item.AvailableDate)
	assert.Equal(t, 1, item.AvailableDate.Day())
	require.NotNil(t, item.Price)
	assert.Equal(t, 1850.0, *item.Price)
	assert.Nil(t, item.Sqft)
}
