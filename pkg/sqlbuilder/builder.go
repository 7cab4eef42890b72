// Package sqlbuilder 구조화된 쿼리 정의를 SQL 문자열로 변환
package sqlbuilder

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/zamasskin/datashift/pkg/types"
)

var placeholderToken = regexp.MustCompile(`^\{[A-Za-z0-9_.]+\}$`)

var joinTypes = map[string]string{
	"":      "INNER",
	"inner": "INNER",
	"left":  "LEFT",
	"right": "RIGHT",
	"full":  "FULL",
}

var comparisonOps = map[string]string{
	"=":    "=",
	"==":   "=",
	"!=":   "!=",
	"<>":   "<>",
	"<":    "<",
	"<=":   "<=",
	">":    ">",
	">=":   ">=",
	"like": "LIKE",
}

// Build SQLBuilder 정의로 SELECT 문 생성
func Build(q *types.SQLBuilderParams) (string, error) {
	if q == nil {
		return "", fmt.Errorf("sql builder params are required")
	}
	if strings.TrimSpace(q.Table) == "" {
		return "", fmt.Errorf("sql builder table is required")
	}

	var sb strings.Builder

	sb.WriteString("SELECT ")
	if len(q.Selects) > 0 {
		sb.WriteString(strings.Join(q.Selects, ", "))
	} else {
		sb.WriteString("*")
	}

	sb.WriteString(" FROM ")
	sb.WriteString(q.Table)
	if q.Alias != "" {
		sb.WriteString(" ")
		sb.WriteString(q.Alias)
	}

	baseAlias := q.Alias
	if baseAlias == "" {
		baseAlias = q.Table
	}

	for _, join := range q.Joins {
		clause, err := buildJoin(baseAlias, join)
		if err != nil {
			return "", err
		}
		sb.WriteString(" ")
		sb.WriteString(clause)
	}

	where, err := buildWhere(q.Where)
	if err != nil {
		return "", fmt.Errorf("where: %w", err)
	}
	if where != "" {
		sb.WriteString(" WHERE ")
		sb.WriteString(where)
	}

	if len(q.Group) > 0 {
		sb.WriteString(" GROUP BY ")
		sb.WriteString(strings.Join(q.Group, ", "))
	}

	having, err := buildWhere(q.Having)
	if err != nil {
		return "", fmt.Errorf("having: %w", err)
	}
	if having != "" {
		sb.WriteString(" HAVING ")
		sb.WriteString(having)
	}

	if len(q.Orders) > 0 {
		orders := make([]string, 0, len(q.Orders))
		for _, o := range q.Orders {
			dir := strings.ToUpper(strings.TrimSpace(o.Direction))
			switch dir {
			case "":
				orders = append(orders, o.Column)
			case "ASC", "DESC":
				orders = append(orders, o.Column+" "+dir)
			default:
				return "", fmt.Errorf("invalid order direction %q", o.Direction)
			}
		}
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(orders, ", "))
	}

	return sb.String(), nil
}

func buildJoin(baseAlias string, join types.Join) (string, error) {
	joinType, ok := joinTypes[strings.ToLower(strings.TrimSpace(join.Type))]
	if !ok {
		return "", fmt.Errorf("invalid join type %q", join.Type)
	}
	if join.Table == "" {
		return "", fmt.Errorf("join table is required")
	}

	joinAlias := join.Alias
	if joinAlias == "" {
		joinAlias = join.Table
	}

	var sb strings.Builder
	sb.WriteString(joinType)
	sb.WriteString(" JOIN ")
	sb.WriteString(join.Table)
	if join.Alias != "" {
		sb.WriteString(" ")
		sb.WriteString(join.Alias)
	}

	for i, cond := range join.On {
		op, err := comparisonOperator(cond.Operator)
		if err != nil {
			return "", err
		}
		if i == 0 {
			sb.WriteString(" ON ")
		} else {
			sb.WriteString(" ")
			sb.WriteString(connective(cond.Cond))
			sb.WriteString(" ")
		}
		fmt.Fprintf(&sb, "%s.%s %s %s.%s", baseAlias, cond.TableColumn, op, joinAlias, cond.AliasColumn)
	}

	return sb.String(), nil
}

// buildWhere fields는 AND, $and는 등호 조건 AND, $or는 괄호로 묶은 OR
func buildWhere(node *types.WhereNode) (string, error) {
	if node == nil {
		return "", nil
	}

	var clauses []string

	for _, f := range node.Fields {
		clause, err := buildField(f)
		if err != nil {
			return "", err
		}
		clauses = append(clauses, clause)
	}

	for _, group := range node.And {
		clauses = append(clauses, equalityClauses(group)...)
	}

	var ors []string
	for _, group := range node.Or {
		ors = append(ors, equalityClauses(group)...)
	}
	if len(ors) > 0 {
		clauses = append(clauses, "("+strings.Join(ors, " OR ")+")")
	}

	return strings.Join(clauses, " AND "), nil
}

func buildField(f types.WhereField) (string, error) {
	if f.Key == "" {
		return "", fmt.Errorf("where field key is required")
	}

	op := strings.ToLower(strings.Join(strings.Fields(f.Op), " "))
	switch op {
	case "in", "not in":
		values := f.Values
		if len(values) == 0 {
			if list, ok := f.Value.([]any); ok {
				values = list
			}
		}
		if len(values) == 0 {
			return "", fmt.Errorf("%s requires at least one value for %s", strings.ToUpper(op), f.Key)
		}
		parts := make([]string, len(values))
		for i, v := range values {
			parts[i] = operand(v)
		}
		return fmt.Sprintf("%s %s (%s)", f.Key, strings.ToUpper(op), strings.Join(parts, ", ")), nil
	case "is null", "is not null":
		return fmt.Sprintf("%s %s", f.Key, strings.ToUpper(op)), nil
	case "not like":
		return fmt.Sprintf("%s NOT LIKE %s", f.Key, operand(f.Value)), nil
	}

	sqlOp, err := comparisonOperator(op)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s %s %s", f.Key, sqlOp, operand(f.Value)), nil
}

func equalityClauses(group map[string]any) []string {
	keys := make([]string, 0, len(group))
	for k := range group {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	clauses := make([]string, 0, len(keys))
	for _, k := range keys {
		clauses = append(clauses, fmt.Sprintf("%s = %s", k, operand(group[k])))
	}
	return clauses
}

// operand 단일 {path} 토큰은 플레이스홀더 해석을 위해 그대로 출력
func operand(v any) string {
	if s, ok := v.(string); ok && placeholderToken.MatchString(s) {
		return s
	}
	return Literal(v)
}

func comparisonOperator(op string) (string, error) {
	op = strings.ToLower(strings.TrimSpace(op))
	if op == "" {
		return "=", nil
	}
	sqlOp, ok := comparisonOps[op]
	if !ok {
		return "", fmt.Errorf("unsupported operator %q", op)
	}
	return sqlOp, nil
}

func connective(cond string) string {
	if strings.EqualFold(strings.TrimSpace(cond), "or") {
		return "OR"
	}
	return "AND"
}
