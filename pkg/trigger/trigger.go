// Package trigger defines the declarative automation rules of a room: a
// watched variable, a condition over its value, and an ordered action list.
package trigger

import (
	"encoding/json"
	"fmt"
)

// Operator is a condition operator. The set is fixed; there is no scripting
// language behind conditions.
type Operator string

const (
	OpEquals         Operator = "equals"
	OpNotEquals      Operator = "not_equals"
	OpGreaterThan    Operator = "greater_than"
	OpGreaterOrEqual Operator = "greater_than_or_equal"
	OpLessThan       Operator = "less_than"
	OpLessOrEqual    Operator = "less_than_or_equal"
	OpContains       Operator = "contains"
	OpChanged        Operator = "changed"
)

// KnownOperator reports whether op is part of the fixed operator set.
func KnownOperator(op Operator) bool {
	switch op {
	case OpEquals, OpNotEquals, OpGreaterThan, OpGreaterOrEqual,
		OpLessThan, OpLessOrEqual, OpContains, OpChanged:
		return true
	}
	return false
}

// Condition pairs an operator with a typed comparand literal.
// The comparand is ignored for the "changed" operator.
type Condition struct {
	Operator  Operator `json:"operator"`
	Comparand any      `json:"comparand,omitempty"`
}

// Action is one configured side effect. Config is decoded by the executor
// registered for Type; the trigger layer treats it as opaque.
type Action struct {
	Type   string          `json:"type"`
	Config json.RawMessage `json:"config"`
}

// Trigger is one watched-variable rule persisted in room configuration.
type Trigger struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	WatchedVariable string    `json:"watchedVariable"`
	Condition       Condition `json:"condition"`
	Actions         []Action  `json:"actions"`
	Enabled         bool      `json:"enabled"`
}

// ConfigurationError reports a malformed trigger or action definition:
// an unknown action type, an operator invalid for the watched variable's
// type, or a comparand that cannot be coerced.
type ConfigurationError struct {
	TriggerID string
	Detail    string
}

func (e *ConfigurationError) Error() string {
	if e.TriggerID == "" {
		return fmt.Sprintf("trigger config: %s", e.Detail)
	}
	return fmt.Sprintf("trigger %q: %s", e.TriggerID, e.Detail)
}
