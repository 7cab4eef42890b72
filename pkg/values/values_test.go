package values

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEquals(t *testing.T) {
	tests := []struct {
		name     string
		a, b     any
		expected bool
	}{
		{"same int", int64(1), int64(1), true},
		{"int and float", int64(1), float64(1), true},
		{"int and string", 1, "1", true},
		{"different", "a", "b", false},
		{"nil and nil", nil, nil, true},
		{"nil and empty", nil, "", false},
		{"slices", []any{1, 2}, []any{1, 2}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Equals(tt.a, tt.b))
		})
	}
}

func TestCompare(t *testing.T) {
	assert.Equal(t, -1, Compare(2, 10))
	assert.Equal(t, 1, Compare("b", "a"))
	assert.Equal(t, 0, Compare("3", 3.0))
	assert.Equal(t, 1, Compare("10", "9"))
}

func TestToString(t *testing.T) {
	assert.Equal(t, "", ToString(nil))
	assert.Equal(t, "2.5", ToString(2.5))
	assert.Equal(t, "100", ToString(float64(100)))
	assert.Equal(t, "7", ToString(int64(7)))
}

func TestTruthy(t *testing.T) {
	assert.False(t, Truthy(nil))
	assert.False(t, Truthy(""))
	assert.False(t, Truthy(0.0))
	assert.True(t, Truthy("0"))
	assert.True(t, Truthy(map[string]any{}))
	assert.True(t, Truthy(int64(3)))
}
