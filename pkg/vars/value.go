package vars

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
)

// Type is the declared type of a room variable.
type Type string

const (
	TypeString  Type = "string"
	TypeNumber  Type = "number"
	TypeBoolean Type = "boolean"
	TypeArray   Type = "array"
	TypeObject  Type = "object"
)

// ParseType validates a type name from persisted config or an API request.
func ParseType(s string) (Type, error) {
	switch Type(strings.ToLower(strings.TrimSpace(s))) {
	case TypeString:
		return TypeString, nil
	case TypeNumber:
		return TypeNumber, nil
	case TypeBoolean:
		return TypeBoolean, nil
	case TypeArray:
		return TypeArray, nil
	case TypeObject:
		return TypeObject, nil
	default:
		return "", fmt.Errorf("unknown variable type %q", s)
	}
}

// Origin identifies what caused a variable write.
type Origin string

const (
	OriginOperator Origin = "operator"
	OriginAPI      Origin = "api"
	OriginTrigger  Origin = "trigger"
	OriginTimer    Origin = "timer"
)

// Coerce normalizes a raw value (typically fresh from a JSON decode) into the
// canonical representation for t: string, float64, bool, []any or map[string]any.
// It accepts the common editor-form sloppiness the original server tolerated:
// numeric strings for numbers, "true"/"false" strings for booleans, and numbers
// for strings. Anything else fails.
func Coerce(t Type, raw any) (any, error) {
	switch t {
	case TypeString:
		switch v := raw.(type) {
		case string:
			return v, nil
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64), nil
		case int:
			return strconv.Itoa(v), nil
		case bool:
			return strconv.FormatBool(v), nil
		}
	case TypeNumber:
		switch v := raw.(type) {
		case float64:
			return v, nil
		case int:
			return float64(v), nil
		case int64:
			return float64(v), nil
		case json.Number:
			f, err := v.Float64()
			if err != nil {
				return nil, fmt.Errorf("value %q is not a number", v.String())
			}
			return f, nil
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				return nil, fmt.Errorf("value %q is not a number", v)
			}
			return f, nil
		}
	case TypeBoolean:
		switch v := raw.(type) {
		case bool:
			return v, nil
		case string:
			switch strings.ToLower(strings.TrimSpace(v)) {
			case "true":
				return true, nil
			case "false":
				return false, nil
			}
			return nil, fmt.Errorf("value %q is not a boolean", v)
		}
	case TypeArray:
		if v, ok := raw.([]any); ok {
			return v, nil
		}
	case TypeObject:
		if v, ok := raw.(map[string]any); ok {
			return v, nil
		}
	}
	return nil, fmt.Errorf("value of kind %s does not fit type %s", kindName(raw), t)
}

// Equal reports whether two canonical values of type t are the same.
// Arrays compare element-wise in order; objects compare structurally.
func Equal(t Type, a, b any) bool {
	switch t {
	case TypeNumber:
		af, aok := a.(float64)
		bf, bok := b.(float64)
		if !aok || !bok {
			return false
		}
		// NaN never equals anything, including itself; treat two NaNs as equal
		// so a repeated bad write stays a no-op.
		if math.IsNaN(af) && math.IsNaN(bf) {
			return true
		}
		return af == bf
	case TypeArray, TypeObject:
		return reflect.DeepEqual(a, b)
	default:
		return a == b
	}
}

// Zero returns the zero value for a variable type.
func Zero(t Type) any {
	switch t {
	case TypeString:
		return ""
	case TypeNumber:
		return float64(0)
	case TypeBoolean:
		return false
	case TypeArray:
		return []any{}
	case TypeObject:
		return map[string]any{}
	}
	return nil
}

func kindName(v any) string {
	if v == nil {
		return "null"
	}
	switch v.(type) {
	case string:
		return "string"
	case float64, int, int64, json.Number:
		return "number"
	case bool:
		return "boolean"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	}
	return reflect.TypeOf(v).String()
}
