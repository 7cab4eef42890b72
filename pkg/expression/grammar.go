// Package expression 행 단위 계산식 파서와 평가기
//
// 허용되는 문법은 리터럴, column/params 멤버 접근, 산술, 문자열 연결, 비교,
// 논리 연산, 삼항 연산자, 허용 목록의 함수 호출뿐이다.
package expression

import (
	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

type (
	// Expression 최상위 식
	// 우선순위 (낮음 -> 높음):
	// 1. 삼항 (?:)
	// 2. ||
	// 3. &&
	// 4. 동등 (==, !=, ===, !==)
	// 5. 비교 (<, <=, >, >=)
	// 6. 덧셈/뺄셈
	// 7. 곱셈/나눗셈/나머지
	// 8. 단항 (!, -, +)
	// 9. 후위 (.member, [index])
	// 10. 기본 (리터럴, 식별자, 함수, 괄호)
	Expression struct {
		Ternary *Ternary `parser:"@@"`
	}

	Ternary struct {
		Cond *OrExpr     `parser:"@@"`
		Then *Expression `parser:"( '?' @@"`
		Else *Expression `parser:"  ':' @@ )?"`
	}

	OrExpr struct {
		Left *AndExpr   `parser:"@@"`
		Rest []*AndExpr `parser:"( '||' @@ )*"`
	}

	AndExpr struct {
		Left *EqualityExpr   `parser:"@@"`
		Rest []*EqualityExpr `parser:"( '&&' @@ )*"`
	}

	EqualityExpr struct {
		Left *ComparisonExpr `parser:"@@"`
		Rest []EqualityRest  `parser:"@@*"`
	}

	EqualityRest struct {
		Op    string          `parser:"@('===' | '!==' | '==' | '!=')"`
		Right *ComparisonExpr `parser:"@@"`
	}

	ComparisonExpr struct {
		Left *AdditiveExpr    `parser:"@@"`
		Rest []ComparisonRest `parser:"@@*"`
	}

	ComparisonRest struct {
		Op    string        `parser:"@('<=' | '>=' | '<' | '>')"`
		Right *AdditiveExpr `parser:"@@"`
	}

	AdditiveExpr struct {
		Left *MultiplicativeExpr `parser:"@@"`
		Rest []AdditiveRest      `parser:"@@*"`
	}

	AdditiveRest struct {
		Op    string              `parser:"@('+' | '-')"`
		Right *MultiplicativeExpr `parser:"@@"`
	}

	MultiplicativeExpr struct {
		Left *UnaryExpr           `parser:"@@"`
		Rest []MultiplicativeRest `parser:"@@*"`
	}

	MultiplicativeRest struct {
		Op    string     `parser:"@('*' | '/' | '%')"`
		Right *UnaryExpr `parser:"@@"`
	}

	UnaryExpr struct {
		Op      *string      `parser:"  ( @('!' | '-' | '+')"`
		Operand *UnaryExpr   `parser:"    @@ )"`
		Postfix *PostfixExpr `parser:"| @@"`
	}

	PostfixExpr struct {
		Primary   *Primary   `parser:"@@"`
		Accessors []Accessor `parser:"@@*"`
	}

	// Accessor .name 또는 [expr]
	Accessor struct {
		Member *string     `parser:"  '.' @Ident"`
		Index  *Expression `parser:"| '[' @@ ']'"`
	}

	Primary struct {
		Number *float64    `parser:"  @Number"`
		String *string     `parser:"| @String"`
		Bool   *string     `parser:"| @('true' | 'false')"`
		Null   bool        `parser:"| @('null' | 'undefined')"`
		Call   *Call       `parser:"| @@"`
		Ident  *string     `parser:"| @Ident"`
		Sub    *Expression `parser:"| '(' @@ ')'"`
	}

	// Call 허용 목록 함수 호출
	Call struct {
		Name string        `parser:"@Ident '('"`
		Args []*Expression `parser:"( @@ ( ',' @@ )* )? ')'"`
	}
)

var (
	expressionLexer = lexer.MustSimple([]lexer.SimpleRule{
		{Name: "String", Pattern: `"([^"\\]|\\.)*"|'([^'\\]|\\.)*'`},
		{Name: "Number", Pattern: `\d+(\.\d+)?([eE][+-]?\d+)?`},
		{Name: "Ident", Pattern: `[a-zA-Z_$][a-zA-Z0-9_$]*`},
		{Name: "Operator", Pattern: `===|!==|==|!=|<=|>=|&&|\|\|`},
		{Name: "Punct", Pattern: `[-+*/%<>!?:.,()\[\]]`},
		{Name: "Whitespace", Pattern: `\s+`},
	})

	parser = participle.MustBuild[Expression](
		participle.Lexer(expressionLexer),
		participle.Elide("Whitespace"),
		participle.UseLookahead(2),
	)
)

// Parse 식 문자열 파싱
func Parse(src string) (*Expression, error) {
	return parser.ParseString("", src)
}
