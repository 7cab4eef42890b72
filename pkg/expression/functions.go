package expression

import (
	"fmt"
	"math"
	"strings"

	"github.com/zamasskin/datashift/pkg/values"
)

type function func(args []any) (any, error)

// functions 식에서 호출 가능한 함수 목록
var functions = map[string]function{
	"upper": stringFn(strings.ToUpper),
	"lower": stringFn(strings.ToLower),
	"trim":  stringFn(strings.TrimSpace),
	"len":   lengthFn,
	"concat": func(args []any) (any, error) {
		var sb strings.Builder
		for _, a := range args {
			sb.WriteString(values.ToString(a))
		}
		return sb.String(), nil
	},
	"round": numberFn(math.Round),
	"floor": numberFn(math.Floor),
	"ceil":  numberFn(math.Ceil),
	"abs":   numberFn(math.Abs),
	"min":   extremumFn(-1),
	"max":   extremumFn(1),
	"coalesce": func(args []any) (any, error) {
		for _, a := range args {
			if a != nil {
				return a, nil
			}
		}
		return nil, nil
	},
	"if": func(args []any) (any, error) {
		if len(args) != 3 {
			return nil, fmt.Errorf("if expects 3 arguments, got %d", len(args))
		}
		if values.Truthy(args[0]) {
			return args[1], nil
		}
		return args[2], nil
	},
	"number": func(args []any) (any, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("number expects 1 argument, got %d", len(args))
		}
		f, ok := numeric(args[0])
		if !ok {
			return nil, fmt.Errorf("%v is not a number", args[0])
		}
		return f, nil
	},
	"string": func(args []any) (any, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("string expects 1 argument, got %d", len(args))
		}
		return values.ToString(args[0]), nil
	},
}

func stringFn(fn func(string) string) function {
	return func(args []any) (any, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("expected 1 argument, got %d", len(args))
		}
		return fn(values.ToString(args[0])), nil
	}
}

func numberFn(fn func(float64) float64) function {
	return func(args []any) (any, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("expected 1 argument, got %d", len(args))
		}
		f, ok := numeric(args[0])
		if !ok {
			return nil, fmt.Errorf("%v is not a number", args[0])
		}
		return fn(f), nil
	}
}

func extremumFn(sign int) function {
	return func(args []any) (any, error) {
		if len(args) == 0 {
			return nil, fmt.Errorf("expected at least 1 argument")
		}
		best := args[0]
		for _, a := range args[1:] {
			if values.Compare(a, best)*sign > 0 {
				best = a
			}
		}
		return best, nil
	}
}

func lengthFn(args []any) (any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("len expects 1 argument, got %d", len(args))
	}
	switch v := args[0].(type) {
	case nil:
		return float64(0), nil
	case []any:
		return float64(len(v)), nil
	case map[string]any:
		return float64(len(v)), nil
	default:
		return float64(len([]rune(values.ToString(v)))), nil
	}
}
