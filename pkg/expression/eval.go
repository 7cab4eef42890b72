package expression

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/zamasskin/datashift/pkg/values"
)

// Program 파싱된 식
type Program struct {
	src  string
	root *Expression
}

// Compile 식을 한 번 파싱해 행마다 재사용
func Compile(src string) (*Program, error) {
	if strings.TrimSpace(src) == "" {
		return nil, fmt.Errorf("expression is empty")
	}
	root, err := Parse(src)
	if err != nil {
		return nil, fmt.Errorf("parse expression %q: %w", src, err)
	}
	return &Program{src: src, root: root}, nil
}

// Eval 식 평가, column(row)과 params만 바인딩됨
func (p *Program) Eval(row, params map[string]any) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			result, err = nil, fmt.Errorf("evaluate %q: %v", p.src, r)
		}
	}()

	env := &env{row: row, params: params}
	return env.expression(p.root)
}

// Evaluate 파싱과 평가를 한 번에 수행
func Evaluate(src string, row, params map[string]any) (any, error) {
	p, err := Compile(src)
	if err != nil {
		return nil, err
	}
	return p.Eval(row, params)
}

type env struct {
	row    map[string]any
	params map[string]any
}

func (e *env) expression(x *Expression) (any, error) {
	return e.ternary(x.Ternary)
}

func (e *env) ternary(x *Ternary) (any, error) {
	cond, err := e.or(x.Cond)
	if err != nil {
		return nil, err
	}
	if x.Then == nil {
		return cond, nil
	}
	if values.Truthy(cond) {
		return e.expression(x.Then)
	}
	return e.expression(x.Else)
}

func (e *env) or(x *OrExpr) (any, error) {
	v, err := e.and(x.Left)
	if err != nil {
		return nil, err
	}
	for _, next := range x.Rest {
		if values.Truthy(v) {
			return v, nil
		}
		if v, err = e.and(next); err != nil {
			return nil, err
		}
	}
	return v, nil
}

func (e *env) and(x *AndExpr) (any, error) {
	v, err := e.equality(x.Left)
	if err != nil {
		return nil, err
	}
	for _, next := range x.Rest {
		if !values.Truthy(v) {
			return v, nil
		}
		if v, err = e.equality(next); err != nil {
			return nil, err
		}
	}
	return v, nil
}

func (e *env) equality(x *EqualityExpr) (any, error) {
	v, err := e.comparison(x.Left)
	if err != nil {
		return nil, err
	}
	for _, rest := range x.Rest {
		right, err := e.comparison(rest.Right)
		if err != nil {
			return nil, err
		}
		switch rest.Op {
		case "==":
			v = values.Equals(v, right)
		case "!=":
			v = !values.Equals(v, right)
		case "===":
			v = strictEquals(v, right)
		case "!==":
			v = !strictEquals(v, right)
		}
	}
	return v, nil
}

// strictEquals 숫자는 값으로, 나머지는 타입까지 비교
func strictEquals(a, b any) bool {
	af, aNum := number(a)
	bf, bNum := number(b)
	if aNum && bNum {
		return af == bf
	}
	if aNum != bNum {
		return false
	}
	return values.Equals(a, b)
}

func (e *env) comparison(x *ComparisonExpr) (any, error) {
	v, err := e.additive(x.Left)
	if err != nil {
		return nil, err
	}
	for _, rest := range x.Rest {
		right, err := e.additive(rest.Right)
		if err != nil {
			return nil, err
		}
		c := values.Compare(v, right)
		switch rest.Op {
		case "<":
			v = c < 0
		case "<=":
			v = c <= 0
		case ">":
			v = c > 0
		case ">=":
			v = c >= 0
		}
	}
	return v, nil
}

func (e *env) additive(x *AdditiveExpr) (any, error) {
	v, err := e.multiplicative(x.Left)
	if err != nil {
		return nil, err
	}
	for _, rest := range x.Rest {
		right, err := e.multiplicative(rest.Right)
		if err != nil {
			return nil, err
		}
		if rest.Op == "+" {
			_, ls := v.(string)
			_, rs := right.(string)
			if ls || rs {
				v = values.ToString(v) + values.ToString(right)
				continue
			}
		}
		if v, err = arithmetic(rest.Op, v, right); err != nil {
			return nil, err
		}
	}
	return v, nil
}

func (e *env) multiplicative(x *MultiplicativeExpr) (any, error) {
	v, err := e.unary(x.Left)
	if err != nil {
		return nil, err
	}
	for _, rest := range x.Rest {
		right, err := e.unary(rest.Right)
		if err != nil {
			return nil, err
		}
		if v, err = arithmetic(rest.Op, v, right); err != nil {
			return nil, err
		}
	}
	return v, nil
}

func arithmetic(op string, a, b any) (any, error) {
	af, ok := numeric(a)
	if !ok {
		return nil, fmt.Errorf("%v is not a number", a)
	}
	bf, ok := numeric(b)
	if !ok {
		return nil, fmt.Errorf("%v is not a number", b)
	}

	switch op {
	case "+":
		return af + bf, nil
	case "-":
		return af - bf, nil
	case "*":
		return af * bf, nil
	case "/":
		if bf == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		return af / bf, nil
	case "%":
		if bf == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		return math.Mod(af, bf), nil
	}
	return nil, fmt.Errorf("unknown operator %q", op)
}

// numeric 산술용 변환, nil은 0
func numeric(v any) (float64, bool) {
	if v == nil {
		return 0, true
	}
	return values.ToFloat64(v)
}

// number 문자열을 제외한 숫자 타입 판정
func number(v any) (float64, bool) {
	switch v.(type) {
	case string, bool, nil:
		return 0, false
	}
	return values.ToFloat64(v)
}

func (e *env) unary(x *UnaryExpr) (any, error) {
	if x.Op == nil {
		return e.postfix(x.Postfix)
	}

	v, err := e.unary(x.Operand)
	if err != nil {
		return nil, err
	}
	switch *x.Op {
	case "!":
		return !values.Truthy(v), nil
	case "-":
		f, ok := numeric(v)
		if !ok {
			return nil, fmt.Errorf("%v is not a number", v)
		}
		return -f, nil
	default:
		f, ok := numeric(v)
		if !ok {
			return nil, fmt.Errorf("%v is not a number", v)
		}
		return f, nil
	}
}

func (e *env) postfix(x *PostfixExpr) (any, error) {
	v, err := e.primary(x.Primary)
	if err != nil {
		return nil, err
	}

	for _, acc := range x.Accessors {
		var key any
		if acc.Member != nil {
			key = *acc.Member
		} else {
			if key, err = e.expression(acc.Index); err != nil {
				return nil, err
			}
		}
		if v, err = member(v, key); err != nil {
			return nil, err
		}
	}
	return v, nil
}

// member 맵 키, 슬라이스/문자열 인덱스, length 접근
func member(target, key any) (any, error) {
	name := values.ToString(key)

	switch t := target.(type) {
	case nil:
		return nil, fmt.Errorf("cannot read property %q of null", name)
	case map[string]any:
		return t[name], nil
	case []any:
		if name == "length" {
			return float64(len(t)), nil
		}
		idx, err := strconv.Atoi(name)
		if err != nil || idx < 0 || idx >= len(t) {
			return nil, nil
		}
		return t[idx], nil
	case string:
		if name == "length" {
			return float64(len([]rune(t))), nil
		}
		idx, err := strconv.Atoi(name)
		runes := []rune(t)
		if err != nil || idx < 0 || idx >= len(runes) {
			return nil, nil
		}
		return string(runes[idx]), nil
	}
	return nil, nil
}

func (e *env) primary(x *Primary) (any, error) {
	switch {
	case x.Number != nil:
		return *x.Number, nil
	case x.String != nil:
		return unquote(*x.String)
	case x.Bool != nil:
		return *x.Bool == "true", nil
	case x.Null:
		return nil, nil
	case x.Call != nil:
		return e.call(x.Call)
	case x.Ident != nil:
		switch *x.Ident {
		case "column", "row":
			return e.row, nil
		case "params":
			return e.params, nil
		}
		return nil, fmt.Errorf("%s is not defined", *x.Ident)
	case x.Sub != nil:
		return e.expression(x.Sub)
	}
	return nil, fmt.Errorf("empty expression")
}

func (e *env) call(x *Call) (any, error) {
	fn, ok := functions[x.Name]
	if !ok {
		return nil, fmt.Errorf("function %s is not allowed", x.Name)
	}

	args := make([]any, len(x.Args))
	for i, a := range x.Args {
		v, err := e.expression(a)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	return fn(args)
}

// unquote 작은/큰따옴표 문자열 리터럴 해제
func unquote(s string) (string, error) {
	if len(s) < 2 {
		return "", fmt.Errorf("invalid string literal %s", s)
	}
	if s[0] == '\'' {
		body := s[1 : len(s)-1]
		body = strings.ReplaceAll(body, `\'`, `'`)
		body = strings.ReplaceAll(body, `"`, `\"`)
		s = `"` + body + `"`
	}
	return strconv.Unquote(s)
}
