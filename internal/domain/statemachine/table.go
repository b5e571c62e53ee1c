package statemachine

import (
	"fmt"
	"sort"

	"github.com/GriffinCanCode/readerfleet/internal/domain/view"
)

// Action names a requested interaction; actions label transition edges
type Action string

// HandlerKind names the handler variant that performs a transition
type HandlerKind string

// Transition is a legal edge of the view graph
type Transition struct {
	From    view.View   `json:"from"`
	Action  Action      `json:"action"`
	Targets []view.View `json:"targets"`
	Handler HandlerKind `json:"handler"`
}

// Accepts reports whether v is one of the transition's legal destinations
func (t *Transition) Accepts(v view.View) bool {
	for _, target := range t.Targets {
		if v.Matches(target) {
			return true
		}
	}
	return false
}

// SelfLoop reports whether the transition keeps the source view
func (t *Transition) SelfLoop() bool {
	return len(t.Targets) == 1 && t.Targets[0].Identity == t.From.Identity
}

type key struct {
	identity view.Identity
	sub      view.SubState
	action   Action
}

// Table is the immutable transition graph. It is safe for concurrent use.
type Table struct {
	byKey   map[key]*Transition
	actions map[Action]bool
	all     []*Transition
}

// New validates defs and builds a table. hasHandler reports whether a
// handler kind is registered; every transition must resolve to one.
func New(defs []Transition, hasHandler func(HandlerKind) bool) (*Table, error) {
	t := &Table{
		byKey:   make(map[key]*Transition, len(defs)),
		actions: make(map[Action]bool),
	}

	for i := range defs {
		def := defs[i]

		if !def.From.Identity.Known() {
			return nil, fmt.Errorf("transition %q: source %s is not a known view", def.Action, def.From)
		}
		if def.Action == "" {
			return nil, fmt.Errorf("transition from %s has no action", def.From)
		}
		if len(def.Targets) == 0 {
			return nil, fmt.Errorf("transition %s --%s--> has no targets", def.From, def.Action)
		}
		for _, target := range def.Targets {
			if !target.Identity.Known() {
				return nil, fmt.Errorf("transition %s --%s--> dangling target %s", def.From, def.Action, target)
			}
		}
		if def.Handler == "" || hasHandler == nil || !hasHandler(def.Handler) {
			return nil, fmt.Errorf("transition %s --%s--> handler %q not registered", def.From, def.Action, def.Handler)
		}

		k := key{identity: def.From.Identity, sub: def.From.SubState, action: def.Action}
		if _, dup := t.byKey[k]; dup {
			return nil, fmt.Errorf("duplicate transition %s --%s-->", def.From, def.Action)
		}

		tr := &Transition{
			From:    def.From,
			Action:  def.Action,
			Targets: append([]view.View(nil), def.Targets...),
			Handler: def.Handler,
		}
		t.byKey[k] = tr
		t.actions[def.Action] = true
		t.all = append(t.all, tr)
	}

	// A wildcard and a sub-state entry for the same action would make
	// dispatch depend on lookup order.
	for k := range t.byKey {
		if k.sub == view.AnySubState {
			continue
		}
		if _, clash := t.byKey[key{identity: k.identity, action: k.action}]; clash {
			return nil, fmt.Errorf("transition %s/%s --%s--> overlaps wildcard source", k.identity, k.sub, k.action)
		}
	}

	return t, nil
}

// Lookup returns the transition for action from the current view. The
// exact sub-state is tried first, then the wildcard source.
func (t *Table) Lookup(current view.View, action Action) (*Transition, bool) {
	if current.SubState != view.AnySubState {
		if tr, ok := t.byKey[key{identity: current.Identity, sub: current.SubState, action: action}]; ok {
			return tr, true
		}
	}
	tr, ok := t.byKey[key{identity: current.Identity, action: action}]
	return tr, ok
}

// Can reports whether action is legal from current
func (t *Table) Can(current view.View, action Action) bool {
	_, ok := t.Lookup(current, action)
	return ok
}

// Knows reports whether action appears anywhere in the table
func (t *Table) Knows(action Action) bool {
	return t.actions[action]
}

// Actions lists the actions legal from current, sorted
func (t *Table) Actions(current view.View) []Action {
	var out []Action
	for _, tr := range t.all {
		if current.Matches(tr.From) {
			out = append(out, tr.Action)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Transitions returns every transition in definition order
func (t *Table) Transitions() []Transition {
	out := make([]Transition, 0, len(t.all))
	for _, tr := range t.all {
		c := *tr
		c.Targets = append([]view.View(nil), tr.Targets...)
		out = append(out, c)
	}
	return out
}
