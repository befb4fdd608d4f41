package trigger

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/escaped-rooms/roomctl/pkg/vars"
)

// ActionValidator checks an action's type tag and config at load time.
// The engine's executor registry implements this.
type ActionValidator interface {
	ValidateAction(actionType string, cfg json.RawMessage) error
}

// TypeLookup resolves a variable name to its declared type.
// The variable store implements this shape via a small adapter.
type TypeLookup func(name string) (t string, ok bool)

// Quarantined records a trigger rejected at load time, kept for diagnostics
// so an operator can see what was dropped and why.
type Quarantined struct {
	Trigger Trigger
	Reason  string
}

// Registry is the ordered collection of a room's triggers. Triggers load from
// persisted room configuration when the room activates; malformed entries are
// quarantined at load rather than failing deep inside dispatch. The registry
// is torn down with its room: nothing survives across sessions.
type Registry struct {
	mu          sync.RWMutex
	roomID      string
	triggers    []Trigger
	byVariable  map[string][]int // indexes into triggers, definition order
	quarantined []Quarantined
}

// NewRegistry creates an empty registry for a room.
func NewRegistry(roomID string) *Registry {
	return &Registry{
		roomID:     roomID,
		byVariable: make(map[string][]int),
	}
}

// Load validates and installs a trigger list, replacing any previous one.
// It returns one ConfigurationError per quarantined trigger; the valid
// remainder is always installed.
func (r *Registry) Load(raw []Trigger, lookup TypeLookup, actions ActionValidator) []error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.triggers = nil
	r.byVariable = make(map[string][]int)
	r.quarantined = nil

	var errs []error
	for _, t := range raw {
		if reason := r.vet(t, lookup, actions); reason != "" {
			r.quarantined = append(r.quarantined, Quarantined{Trigger: t, Reason: reason})
			errs = append(errs, &ConfigurationError{TriggerID: t.ID, Detail: reason})
			continue
		}
		idx := len(r.triggers)
		r.triggers = append(r.triggers, t)
		r.byVariable[t.WatchedVariable] = append(r.byVariable[t.WatchedVariable], idx)
	}
	return errs
}

// vet returns a non-empty reason when a trigger must be quarantined.
// A non-coercible comparand is deliberately NOT a quarantine reason: such a
// trigger stays loaded and simply never matches (fail-safe false at runtime).
func (r *Registry) vet(t Trigger, lookup TypeLookup, actions ActionValidator) string {
	if t.ID == "" {
		return "missing trigger id"
	}
	if t.WatchedVariable == "" {
		return "missing watched variable"
	}
	if !KnownOperator(t.Condition.Operator) {
		return fmt.Sprintf("unknown operator %q", t.Condition.Operator)
	}
	// Operator/type compatibility is checkable only when the watched variable
	// already exists; variables created later are vetted at evaluation time.
	if lookup != nil {
		if typ, ok := lookup(t.WatchedVariable); ok {
			if err := OperatorFor(vars.Type(typ), t.Condition.Operator); err != nil {
				return err.Error()
			}
		}
	}
	for i, a := range t.Actions {
		if a.Type == "" {
			return fmt.Sprintf("action %d: missing type", i)
		}
		if actions != nil {
			if err := actions.ValidateAction(a.Type, a.Config); err != nil {
				return fmt.Sprintf("action %d (%s): %v", i, a.Type, err)
			}
		}
	}
	return ""
}

// Matching returns the enabled triggers watching a variable, in definition
// order. The returned slice is a copy and safe to iterate while actions
// mutate other variables.
func (r *Registry) Matching(variable string) []Trigger {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Trigger
	for _, idx := range r.byVariable[variable] {
		if r.triggers[idx].Enabled {
			out = append(out, r.triggers[idx])
		}
	}
	return out
}

// All returns every loaded trigger in definition order.
func (r *Registry) All() []Trigger {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Trigger, len(r.triggers))
	copy(out, r.triggers)
	return out
}

// Quarantine returns the triggers rejected by the last Load.
func (r *Registry) Quarantine() []Quarantined {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Quarantined, len(r.quarantined))
	copy(out, r.quarantined)
	return out
}

// Len returns the number of loaded (non-quarantined) triggers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.triggers)
}

