package expression

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluate(t *testing.T) {
	row := map[string]any{
		"price":  int64(10),
		"qty":    float64(3),
		"name":   "Widget",
		"note":   nil,
		"tags":   []any{"a", "b"},
		"status": "active",
	}
	params := map[string]any{"rate": 0.5, "prefix": "SKU-"}

	tests := []struct {
		name     string
		expr     string
		expected any
	}{
		{"arithmetic precedence", "column.price + column.qty * 2", float64(16)},
		{"parentheses", "(column.price + column.qty) * 2", float64(26)},
		{"params", "column.price * params.rate", float64(5)},
		{"concat", "params.prefix + column.name", "SKU-Widget"},
		{"number and string concat", "column.name + '-' + column.price", "Widget-10"},
		{"index access", "column['name']", "Widget"},
		{"nested index", "column.tags[1]", "b"},
		{"length", "column.tags.length", float64(2)},
		{"comparison", "column.price > 5", true},
		{"equality", "column.status == 'active'", true},
		{"strict equality", "column.price === '10'", false},
		{"loose equality", "column.price == '10'", true},
		{"logical", "column.price > 5 && column.qty < 2", false},
		{"or returns operand", "column.note || 'n/a'", "n/a"},
		{"not", "!column.note", true},
		{"ternary", "column.qty > 2 ? 'many' : 'few'", "many"},
		{"nested ternary", "column.qty > 5 ? 'a' : column.qty > 2 ? 'b' : 'c'", "b"},
		{"unary minus", "-column.price + 1", float64(-9)},
		{"functions", "upper(column.name) + len(column.tags)", "WIDGET2"},
		{"round", "round(column.qty / 2)", float64(2)},
		{"coalesce", "coalesce(column.note, column.status)", "active"},
		{"max", "max(1, column.price, 3)", int64(10)},
		{"double quoted", `"a\"b"`, `a"b`},
		{"row alias", "row.name", "Widget"},
		{"booleans", "true && !false", true},
		{"null literal", "null", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Evaluate(tt.expr, row, params)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestEvaluateErrors(t *testing.T) {
	row := map[string]any{"a": "x", "n": nil}

	tests := []struct {
		name string
		expr string
	}{
		{"empty", "   "},
		{"syntax", "column.a +"},
		{"unknown identifier", "process.exit"},
		{"disallowed function", "eval('1')"},
		{"division by zero", "1 / 0"},
		{"not a number", "column.a * 2"},
		{"member of null", "column.n.deep"},
		{"statement", "column.a = 1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Evaluate(tt.expr, row, nil)
			assert.Error(t, err)
		})
	}
}

func TestCompileReuse(t *testing.T) {
	p, err := Compile("column.v * 2")
	require.NoError(t, err)

	for i, expected := range []float64{2, 4, 6} {
		got, err := p.Eval(map[string]any{"v": i + 1}, nil)
		require.NoError(t, err)
		assert.Equal(t, expected, got)
	}
}
