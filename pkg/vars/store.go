package vars

import (
	"fmt"
	"sort"
	"sync"
)

// Variable is a named, typed piece of room state.
type Variable struct {
	Name    string `json:"name"`
	Type    Type   `json:"type"`
	Value   any    `json:"value"`
	System  bool   `json:"system,omitempty"`
	Version int64  `json:"version"`
}

// ChangeEvent records one accepted variable write.
type ChangeEvent struct {
	RoomID   string `json:"roomId"`
	Name     string `json:"variableName"`
	OldValue any    `json:"oldValue"`
	NewValue any    `json:"newValue"`
	CausedBy Origin `json:"causedBy"`
	Depth    int    `json:"depth"`
}

// ValidationError reports a value that does not fit a variable's declared type,
// or a write that violates a variable's protection rules.
type ValidationError struct {
	Name   string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("variable %q: %s", e.Name, e.Reason)
}

// NotFoundError reports a reference to a variable that does not exist.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("variable %q not found", e.Name)
}

// Store holds the variables of a single room. All mutation goes through one
// mutex so operator, API, trigger and timer writes are serialized and each
// accepted write yields exactly one well-ordered ChangeEvent.
type Store struct {
	mu     sync.Mutex
	roomID string
	vars   map[string]*Variable
}

// NewStore creates an empty variable store for a room.
func NewStore(roomID string) *Store {
	return &Store{
		roomID: roomID,
		vars:   make(map[string]*Variable),
	}
}

// RoomID returns the room this store belongs to.
func (s *Store) RoomID() string { return s.roomID }

// Define creates a variable. The initial value is coerced against the declared
// type. Defining an existing name fails: names are unique per room.
func (s *Store) Define(name string, t Type, value any, system bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if name == "" {
		return &ValidationError{Name: name, Reason: "name must not be empty"}
	}
	if _, exists := s.vars[name]; exists {
		return &ValidationError{Name: name, Reason: "already defined"}
	}
	if value == nil {
		value = Zero(t)
	}
	coerced, err := Coerce(t, value)
	if err != nil {
		return &ValidationError{Name: name, Reason: err.Error()}
	}
	s.vars[name] = &Variable{
		Name:   name,
		Type:   t,
		Value:  coerced,
		System: system,
	}
	return nil
}

// Get returns a copy of a variable.
func (s *Store) Get(name string) (Variable, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.vars[name]
	if !ok {
		return Variable{}, &NotFoundError{Name: name}
	}
	return *v, nil
}

// Type returns a variable's declared type.
func (s *Store) Type(name string) (Type, error) {
	v, err := s.Get(name)
	if err != nil {
		return "", err
	}
	return v.Type, nil
}

// Set writes a value. The value is coerced against the variable's declared
// type; a write that does not change the stored value is a no-op and returns
// (nil, nil). System variables accept writes only from the timer subsystem.
func (s *Store) Set(name string, value any, causedBy Origin, depth int) (*ChangeEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.vars[name]
	if !ok {
		return nil, &NotFoundError{Name: name}
	}
	if v.System && causedBy != OriginTimer {
		return nil, &ValidationError{Name: name, Reason: "system variable is read-only"}
	}
	coerced, err := Coerce(v.Type, value)
	if err != nil {
		return nil, &ValidationError{Name: name, Reason: err.Error()}
	}
	if Equal(v.Type, v.Value, coerced) {
		return nil, nil
	}

	old := v.Value
	v.Value = coerced
	v.Version++

	return &ChangeEvent{
		RoomID:   s.roomID,
		Name:     name,
		OldValue: old,
		NewValue: coerced,
		CausedBy: causedBy,
		Depth:    depth,
	}, nil
}

// Delete removes a custom variable. System variables cannot be deleted.
func (s *Store) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.vars[name]
	if !ok {
		return &NotFoundError{Name: name}
	}
	if v.System {
		return &ValidationError{Name: name, Reason: "system variable cannot be deleted"}
	}
	delete(s.vars, name)
	return nil
}

// List returns a snapshot of all variables, sorted by name.
func (s *Store) List() []Variable {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Variable, 0, len(s.vars))
	for _, v := range s.vars {
		out = append(out, *v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
