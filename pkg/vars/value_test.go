package vars

import (
	"reflect"
	"testing"
)

func TestCoerce(t *testing.T) {
	tests := []struct {
		typ     Type
		raw     any
		want    any
		wantErr bool
	}{
		{TypeString, "abc", "abc", false},
		{TypeString, 3.5, "3.5", false},
		{TypeString, true, "true", false},
		{TypeNumber, 42.0, 42.0, false},
		{TypeNumber, 7, 7.0, false},
		{TypeNumber, "15", 15.0, false},
		{TypeNumber, " 2.5 ", 2.5, false},
		{TypeNumber, "not a number", nil, true},
		{TypeNumber, true, nil, true},
		{TypeBoolean, true, true, false},
		{TypeBoolean, "false", false, false},
		{TypeBoolean, "TRUE", true, false},
		{TypeBoolean, "yes", nil, true},
		{TypeBoolean, 1.0, nil, true},
		{TypeArray, []any{"a", 1.0}, []any{"a", 1.0}, false},
		{TypeArray, "a,b", nil, true},
		{TypeObject, map[string]any{"k": "v"}, map[string]any{"k": "v"}, false},
		{TypeObject, []any{}, nil, true},
		{TypeNumber, nil, nil, true},
	}

	for _, tt := range tests {
		got, err := Coerce(tt.typ, tt.raw)
		if tt.wantErr {
			if err == nil {
				t.Errorf("Coerce(%s, %#v): expected error, got %#v", tt.typ, tt.raw, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("Coerce(%s, %#v): unexpected error %v", tt.typ, tt.raw, err)
			continue
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("Coerce(%s, %#v) = %#v, want %#v", tt.typ, tt.raw, got, tt.want)
		}
	}
}

func TestEqual(t *testing.T) {
	tests := []struct {
		typ  Type
		a, b any
		want bool
	}{
		{TypeNumber, 1.0, 1.0, true},
		{TypeNumber, 1.0, 2.0, false},
		{TypeString, "x", "x", true},
		{TypeBoolean, true, false, false},
		{TypeArray, []any{1.0, "a"}, []any{1.0, "a"}, true},
		{TypeArray, []any{1.0, "a"}, []any{"a", 1.0}, false},
		{TypeObject, map[string]any{"a": 1.0}, map[string]any{"a": 1.0}, true},
		{TypeObject, map[string]any{"a": 1.0}, map[string]any{"a": 2.0}, false},
	}
	for _, tt := range tests {
		if got := Equal(tt.typ, tt.a, tt.b); got != tt.want {
			t.Errorf("Equal(%s, %#v, %#v) = %v, want %v", tt.typ, tt.a, tt.b, got, tt.want)
		}
	}
}

func TestParseType(t *testing.T) {
	if _, err := ParseType("Number"); err != nil {
		t.Errorf("ParseType should be case-insensitive: %v", err)
	}
	if _, err := ParseType("integer"); err == nil {
		t.Error("ParseType should reject unknown types")
	}
}
