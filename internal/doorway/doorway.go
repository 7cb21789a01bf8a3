// Package doorway dispatches the named contact and scheduling actions that
// the site's "knock" buttons trigger.
package doorway

import (
	"errors"
	"fmt"
	"sort"
)

// Well-known action names.
const (
	OpenContact    = "openContact"
	OpenScheduling = "openScheduling"
)

// Binding ties the buttons matched by Selector to an action.
type Binding struct {
	Selector string
	Action   string
}

// Bindings are the button groups a listing page can carry.
var Bindings = []Binding{
	{Selector: ".knock-contact, .utility-nav.contact", Action: OpenContact},
	{Selector: ".knock-schedule", Action: OpenScheduling},
}

// ErrUnknownAction is returned when a dispatcher has no action of that name.
var ErrUnknownAction = errors.New("unknown doorway action")

// Result tells the caller where the action leads.
type Result struct {
	Action string `json:"action"`
	URL    string `json:"url,omitempty"`
}

// Action is a zero-argument doorway action.
type Action func() (Result, error)

// Dispatcher exposes named actions.
type Dispatcher interface {
	Lookup(name string) (Action, bool)
}

// Invoke runs the named action, or returns ErrUnknownAction.
func Invoke(d Dispatcher, name string) (Result, error) {
	if d == nil {
		return Result{}, fmt.Errorf("%w: %s (no dispatcher)", ErrUnknownAction, name)
	}
	act, ok := d.Lookup(name)
	if !ok || act == nil {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownAction, name)
	}
	return act()
}

// Registry is a Dispatcher backed by a map.
type Registry map[string]Action

func (r Registry) Lookup(name string) (Action, bool) {
	act, ok := r[name]
	return act, ok
}

// Names lists the registered actions in order.
func (r Registry) Names() []string {
	names := make([]string, 0, len(r))
	for n := range r {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// NewURLRegistry builds actions that resolve to fixed URLs. Empty URLs are skipped.
func NewURLRegistry(urls map[string]string) Registry {
	r := make(Registry, len(urls))
	for name, u := range urls {
		if u == "" {
			continue
		}
		name, u := name, u
		r[name] = func() (Result, error) {
			return Result{Action: name, URL: u}, nil
		}
	}
	return r
}
