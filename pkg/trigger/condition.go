package trigger

import (
	"strings"

	"github.com/escaped-rooms/roomctl/pkg/vars"
)

// Evaluate applies a condition operator to a variable's current value. It is
// pure and never panics: a comparand that cannot be coerced into the declared
// type yields (false, *ConfigurationError) so a misauthored trigger simply
// never matches. "changed" is true for every accepted write.
func Evaluate(value any, op Operator, comparand any, t vars.Type) (bool, error) {
	if op == OpChanged {
		return true, nil
	}
	if !KnownOperator(op) {
		return false, &ConfigurationError{Detail: "unknown operator " + string(op)}
	}
	if err := OperatorFor(t, op); err != nil {
		return false, err
	}

	switch op {
	case OpEquals, OpNotEquals:
		cmp, err := vars.Coerce(t, comparand)
		if err != nil {
			return false, &ConfigurationError{Detail: "comparand: " + err.Error()}
		}
		eq := vars.Equal(t, value, cmp)
		if op == OpNotEquals {
			return !eq, nil
		}
		return eq, nil

	case OpGreaterThan, OpGreaterOrEqual, OpLessThan, OpLessOrEqual:
		cmp, err := vars.Coerce(vars.TypeNumber, comparand)
		if err != nil {
			return false, &ConfigurationError{Detail: "comparand: " + err.Error()}
		}
		v, vok := value.(float64)
		c := cmp.(float64)
		if !vok {
			return false, &ConfigurationError{Detail: "ordered comparison on non-number value"}
		}
		switch op {
		case OpGreaterThan:
			return v > c, nil
		case OpGreaterOrEqual:
			return v >= c, nil
		case OpLessThan:
			return v < c, nil
		default:
			return v <= c, nil
		}

	case OpContains:
		switch t {
		case vars.TypeString:
			cmp, err := vars.Coerce(vars.TypeString, comparand)
			if err != nil {
				return false, &ConfigurationError{Detail: "comparand: " + err.Error()}
			}
			v, ok := value.(string)
			if !ok {
				return false, nil
			}
			return strings.Contains(v, cmp.(string)), nil
		case vars.TypeArray:
			arr, ok := value.([]any)
			if !ok {
				return false, nil
			}
			// Membership test against the raw comparand: array elements
			// are untyped, so no coercion applies.
			for _, el := range arr {
				if deepEqual(el, comparand) {
					return true, nil
				}
			}
			return false, nil
		}
	}
	return false, nil
}

// OperatorFor reports whether an operator is valid for a variable type.
// Violations are configuration errors caught at load time, not runtime
// evaluation failures.
func OperatorFor(t vars.Type, op Operator) error {
	if op == OpChanged {
		return nil
	}
	bad := func() error {
		return &ConfigurationError{Detail: "operator " + string(op) + " is not valid for type " + string(t)}
	}
	switch t {
	case vars.TypeNumber:
		switch op {
		case OpEquals, OpNotEquals, OpGreaterThan, OpGreaterOrEqual, OpLessThan, OpLessOrEqual:
			return nil
		}
		return bad()
	case vars.TypeString:
		switch op {
		case OpEquals, OpNotEquals, OpContains:
			return nil
		}
		return bad()
	case vars.TypeBoolean:
		switch op {
		case OpEquals, OpNotEquals:
			return nil
		}
		return bad()
	case vars.TypeArray:
		switch op {
		case OpEquals, OpContains:
			return nil
		}
		return bad()
	case vars.TypeObject:
		if op == OpEquals {
			return nil
		}
		return bad()
	}
	return bad()
}

func deepEqual(a, b any) bool {
	// Numbers arrive as float64 from JSON but test values may be ints.
	if af, ok := toFloat(a); ok {
		if bf, ok := toFloat(b); ok {
			return af == bf
		}
		return false
	}
	switch av := a.(type) {
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !deepEqual(av[i], bv[i]) {
				return false
			}
		}
		return true
	case map[string]any:
		bv, ok := b.(map[string]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			if !deepEqual(v, bv[k]) {
				return false
			}
		}
		return true
	default:
		return a == b
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
