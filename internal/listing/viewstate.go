package listing

import (
	"strconv"
	"strings"

	"github.com/bryan-buckman/unitview/internal/model"
	"github.com/bryan-buckman/unitview/internal/persist"
)

// UnitSlug returns the last segment of a URL path.
func UnitSlug(path string) string {
	parts := strings.Split(path, "/")
	return parts[len(parts)-1]
}

// UnitType returns the second-to-last segment of a URL path. It is absent
// when the path has a single segment.
func UnitType(path string) (string, bool) {
	parts := strings.Split(path, "/")
	if len(parts) <= 1 {
		return "", false
	}
	return parts[len(parts)-2], true
}

// unitTypeChanged compares the path's unit type with the remembered one.
func unitTypeChanged(s persist.SessionStore, path string) bool {
	current, hasCurrent := UnitType(path)
	stored, hasStored := s.Get(persist.KeyUnitType)
	if hasCurrent != hasStored {
		return true
	}
	return current != stored
}

func saveUnitType(s persist.SessionStore, path string) {
	if t, ok := UnitType(path); ok {
		s.Set(persist.KeyUnitType, t)
		return
	}
	s.Remove(persist.KeyUnitType)
}

// SavedSort reads the persisted sort. ok is false unless both halves are
// present and valid.
func SavedSort(s persist.SessionStore) (model.SortState, bool) {
	field, okF := s.Get(persist.KeyActiveSortField)
	order, okO := s.Get(persist.KeyActiveSortOrder)
	if !okF || !okO || field == "" || order == "" {
		return model.SortState{}, false
	}
	state, err := model.ParseSortSpec(field + ":" + order)
	if err != nil {
		return model.SortState{}, false
	}
	return state, true
}

// SaveSort persists a sort selection.
func SaveSort(s persist.SessionStore, state model.SortState) {
	s.Set(persist.KeyActiveSortField, string(state.Field))
	s.Set(persist.KeyActiveSortOrder, string(state.Order))
}

func clearSort(s persist.SessionStore) {
	s.Remove(persist.KeyActiveSortField)
	s.Remove(persist.KeyActiveSortOrder)
}

// SavedScroll reads the persisted sidebar offsets.
func SavedScroll(s persist.SessionStore) (model.ScrollState, bool) {
	var st model.ScrollState
	top, okT := s.Get(persist.KeyScrollTop)
	left, okL := s.Get(persist.KeyScrollLeft)
	if !okT && !okL {
		return st, false
	}
	if okT {
		st.Top, _ = strconv.ParseFloat(top, 64)
	}
	if okL {
		st.Left, _ = strconv.ParseFloat(left, 64)
	}
	return st, true
}

// SaveScroll persists the sidebar offsets.
func SaveScroll(s persist.SessionStore, st model.ScrollState) {
	s.Set(persist.KeyScrollTop, strconv.FormatFloat(st.Top, 'f', -1, 64))
	s.Set(persist.KeyScrollLeft, strconv.FormatFloat(st.Left, 'f', -1, 64))
}

func clearScroll(s persist.SessionStore) {
	s.Remove(persist.KeyScrollTop)
	s.Remove(persist.KeyScrollLeft)
}
