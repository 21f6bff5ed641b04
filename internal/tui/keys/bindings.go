// Package keys maps key events to named actions per view.
package keys

import "github.com/gdamore/tcell/v2"

// Action is a handler bound to a single key. Visible actions contribute
// their Description to the status-bar hint line.
type Action struct {
	Key         tcell.Key
	Rune        rune
	Description string
	Handler     func()
	Visible     bool
}

// Matches reports whether ev triggers this action.
func (a *Action) Matches(ev *tcell.EventKey) bool {
	if a.Key != tcell.KeyRune {
		return ev.Key() == a.Key
	}
	return ev.Key() == tcell.KeyRune && ev.Rune() == a.Rune
}

type binding struct {
	name   string
	action *Action
}

// Registry holds keybindings in registration order. Global bindings
// apply on every page; view bindings only while their page is frontmost.
// View bindings win over global ones so a page can shadow a key.
type Registry struct {
	global []binding
	views  map[string][]binding
}

func NewRegistry() *Registry {
	return &Registry{views: make(map[string][]binding)}
}

// AddGlobal registers a binding active on every page.
func (r *Registry) AddGlobal(name string, action *Action) {
	r.global = append(r.global, binding{name, action})
}

// AddView registers a binding active only on the named page.
func (r *Registry) AddView(view, name string, action *Action) {
	r.views[view] = append(r.views[view], binding{name, action})
}

// Hints returns the visible action descriptions for a view, view
// bindings first, in registration order.
func (r *Registry) Hints(view string) []string {
	var hints []string
	for _, b := range r.views[view] {
		if b.action.Visible {
			hints = append(hints, b.action.Description)
		}
	}
	for _, b := range r.global {
		if b.action.Visible {
			hints = append(hints, b.action.Description)
		}
	}
	return hints
}

// HandleEvent dispatches ev to the first matching action for the view.
// It reports whether a handler ran.
func (r *Registry) HandleEvent(view string, ev *tcell.EventKey) bool {
	for _, b := range r.views[view] {
		if b.action.Matches(ev) {
			b.action.Handler()
			return true
		}
	}
	for _, b := range r.global {
		if b.action.Matches(ev) {
			b.action.Handler()
			return true
		}
	}
	return false
}
