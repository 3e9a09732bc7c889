// Package routing decides where an inbound call goes.
//
// It is decision-only: no provider calls, no side effects. The table is
// immutable after construction and safe to share across sessions.
package routing

import (
	"fmt"

	"phone-assistant/internal/config"
)

// Route maps one keypad signal to a transfer destination.
type Route struct {
	// Signal is the DTMF digit selecting this route.
	Signal string

	// Label is the department name used in spoken announcements.
	Label string

	// Destination is the transfer target, resolved from config at startup.
	Destination string
}

// Table is a static signal -> route mapping.
//
// Misconfiguration (duplicate signal, empty destination) is rejected at
// construction so a broken route can never be discovered mid-call.
type Table struct {
	routes  []Route
	bySignal map[string]Route
}

func NewTable(departments []config.Department) (*Table, error) {
	if len(departments) == 0 {
		return nil, fmt.Errorf("routing: no departments configured")
	}

	t := &Table{bySignal: make(map[string]Route, len(departments))}
	for _, d := range departments {
		if d.Signal == "" {
			return nil, fmt.Errorf("routing: department %q has no signal", d.Label)
		}
		if d.Number == "" {
			return nil, fmt.Errorf("routing: department %q (signal %s) has no destination", d.Label, d.Signal)
		}
		if _, dup := t.bySignal[d.Signal]; dup {
			return nil, fmt.Errorf("routing: duplicate signal %q", d.Signal)
		}
		r := Route{Signal: d.Signal, Label: d.Label, Destination: d.Number}
		t.bySignal[r.Signal] = r
		t.routes = append(t.routes, r)
	}
	return t, nil
}

// Resolve is a pure O(1) lookup.
func (t *Table) Resolve(signal string) (Route, bool) {
	r, ok := t.bySignal[signal]
	return r, ok
}

// Routes returns all routes in construction order. The greeting is generated
// from this slice, keeping the table the single source of truth for what the
// caller is told.
func (t *Table) Routes() []Route {
	out := make([]Route, len(t.routes))
	copy(out, t.routes)
	return out
}
