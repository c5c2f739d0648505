package verify

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cgast/canarygate/pkg/spec"
)

func TestCoerce(t *testing.T) {
	tests := []struct {
		name    string
		value   any
		typ     spec.ValueType
		want    any
		wantErr bool
	}{
		{"number from float", 42.5, spec.TypeNumber, 42.5, false},
		{"number from string", "0.25", spec.TypeNumber, 0.25, false},
		{"number from padded string", " 7 ", spec.TypeNumber, 7.0, false},
		{"number from int", 3, spec.TypeNumber, 3.0, false},
		{"number from bool", true, spec.TypeNumber, 1.0, false},
		{"number from text", "abc", spec.TypeNumber, nil, true},
		{"number from null", nil, spec.TypeNumber, nil, true},
		{"number from object", map[string]any{"a": 1.0}, spec.TypeNumber, nil, true},
		{"string from string", "ok", spec.TypeString, "ok", false},
		{"string from float", 5.0, spec.TypeString, "5", false},
		{"string from fraction", 0.5, spec.TypeString, "0.5", false},
		{"string from bool", false, spec.TypeString, "false", false},
		{"string from null", nil, spec.TypeString, "null", false},
		{"string from array", []any{1.0, "a"}, spec.TypeString, `[1,"a"]`, false},
		{"bool passthrough", true, spec.TypeBoolean, true, false},
		{"bool from false string", "False", spec.TypeBoolean, false, false},
		{"bool from zero string", "0", spec.TypeBoolean, false, false},
		{"bool from empty string", "", spec.TypeBoolean, false, false},
		{"bool from other string", "no", spec.TypeBoolean, true, false},
		{"bool from zero", 0.0, spec.TypeBoolean, false, false},
		{"bool from number", 2.0, spec.TypeBoolean, true, false},
		{"bool from null", nil, spec.TypeBoolean, false, false},
		{"bool from empty list", []any{}, spec.TypeBoolean, false, false},
		{"json passthrough", map[string]any{"a": 1.0}, spec.TypeJSON, map[string]any{"a": 1.0}, false},
		{"unknown type", 1.0, spec.ValueType("date"), nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Coerce(tt.value, tt.typ)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCoerceWithDefault(t *testing.T) {
	got, defaulted, err := CoerceWithDefault("n/a", spec.TypeNumber, 0)
	require.NoError(t, err)
	assert.True(t, defaulted)
	assert.Equal(t, 0.0, got)

	got, defaulted, err = CoerceWithDefault("12", spec.TypeNumber, 0)
	require.NoError(t, err)
	assert.False(t, defaulted)
	assert.Equal(t, 12.0, got)

	_, _, err = CoerceWithDefault("n/a", spec.TypeNumber, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConversion))
	assert.Contains(t, err.Error(), "cannot convert n/a to number and no default provided")

	_, _, err = CoerceWithDefault("n/a", spec.TypeNumber, "also n/a")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConversion))
	assert.Contains(t, err.Error(), "default also n/a cannot be converted to number")
	assert.NotContains(t, err.Error(), "no default provided")
}

func TestCoerceExpected(t *testing.T) {
	tests := []struct {
		name  string
		value any
		typ   spec.ValueType
		want  any
	}{
		{"quoted number", "10", spec.TypeNumber, 10.0},
		{"int number", 10, spec.TypeNumber, 10.0},
		{"quoted true", "true", spec.TypeBoolean, true},
		{"quoted false", "False", spec.TypeBoolean, false},
		{"bool", false, spec.TypeBoolean, false},
		{"number as string", 200, spec.TypeString, "200"},
		{"json untouched", map[string]any{"a": 1.0}, spec.TypeJSON, map[string]any{"a": 1.0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CoerceExpected(tt.value, tt.typ)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := CoerceExpected("yes please", spec.TypeBoolean)
	assert.Error(t, err)
	_, err = CoerceExpected("ten", spec.TypeNumber)
	assert.Error(t, err)
}
