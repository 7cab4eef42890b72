package sqlexec

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/pkg/errors"

	"github.com/zamasskin/datashift/pkg/types"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

var saveOperators = map[string]string{
	"":     "=",
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

// ApplySaveMapping 결과 행을 대상 테이블에 UPDATE 후 없으면 INSERT
// 생성된 ID가 있으면 row["<mapping.id>.ID"]에 기록, 저장된 행 수 반환
func (e *Executor) ApplySaveMapping(ctx context.Context, kind types.SourceType, config map[string]any, mapping *types.SaveMapping, rows []types.Row) (int, error) {
	switch kind {
	case types.SourceTypeMySQL, types.SourceTypePostgres, types.SourceTypeSQLite, types.SourceTypeClickHouse:
	default:
		return 0, errors.Wrapf(ErrUnsupportedSaveType, "%q", kind)
	}

	plan, err := newSavePlan(kind, mapping)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}

	c, err := e.open(ctx, kind, config)
	if err != nil {
		return 0, err
	}
	defer c.Close()

	saved := 0
	for _, row := range rows {
		ok, err := plan.apply(ctx, c, row)
		if err != nil {
			return saved, errors.Wrapf(err, "save mapping %s into %s", mapping.ID, mapping.Table)
		}
		if ok {
			saved++
		}
	}
	return saved, nil
}

// savePlan 매핑 하나에 대해 미리 검증하고 만든 SQL 조각
type savePlan struct {
	kind    types.SourceType
	mapping *types.SaveMapping
	ops     []string
}

func newSavePlan(kind types.SourceType, mapping *types.SaveMapping) (*savePlan, error) {
	if mapping == nil {
		return nil, errors.New("save mapping is required")
	}
	if !identifierPattern.MatchString(mapping.Table) {
		return nil, errors.Wrapf(ErrInvalidIdentifier, "table %q", mapping.Table)
	}
	if len(mapping.SavedMapping) == 0 {
		return nil, errors.Errorf("save mapping %s has no columns", mapping.ID)
	}
	for _, m := range mapping.SavedMapping {
		if !identifierPattern.MatchString(m.TableColumn) {
			return nil, errors.Wrapf(ErrInvalidIdentifier, "column %q", m.TableColumn)
		}
	}

	ops := make([]string, len(mapping.UpdateOn))
	for i, u := range mapping.UpdateOn {
		if !identifierPattern.MatchString(u.TableColumn) {
			return nil, errors.Wrapf(ErrInvalidIdentifier, "column %q", u.TableColumn)
		}
		op, ok := saveOperators[strings.ToLower(strings.TrimSpace(u.Operator))]
		if !ok {
			return nil, errors.Wrapf(ErrInvalidOperator, "%q", u.Operator)
		}
		ops[i] = op
	}

	return &savePlan{kind: kind, mapping: mapping, ops: ops}, nil
}

// placeholder 1부터 시작하는 위치의 바인딩 기호
func (p *savePlan) placeholder(pos int) string {
	if p.kind == types.SourceTypePostgres {
		return fmt.Sprintf("$%d", pos)
	}
	return "?"
}

// setClause col = ?, ... 와 값 목록
func (p *savePlan) setClause(row types.Row, start int) (string, []any) {
	parts := make([]string, len(p.mapping.SavedMapping))
	args := make([]any, len(p.mapping.SavedMapping))
	for i, m := range p.mapping.SavedMapping {
		parts[i] = fmt.Sprintf("%s = %s", m.TableColumn, p.placeholder(start+i))
		args[i] = row[m.ResultColumn]
	}
	return strings.Join(parts, ", "), args
}

// whereClause updateOn 조건, 첫 조건의 연결자는 무시
func (p *savePlan) whereClause(row types.Row, start int) (string, []any) {
	var sb strings.Builder
	args := make([]any, len(p.mapping.UpdateOn))
	for i, u := range p.mapping.UpdateOn {
		if i > 0 {
			if strings.EqualFold(strings.TrimSpace(u.Cond), "or") {
				sb.WriteString(" OR ")
			} else {
				sb.WriteString(" AND ")
			}
		}
		fmt.Fprintf(&sb, "%s %s %s", u.TableColumn, p.ops[i], p.placeholder(start+i))
		args[i] = row[u.AliasColumn]
	}
	return sb.String(), args
}

func (p *savePlan) apply(ctx context.Context, c conn, row types.Row) (bool, error) {
	if len(p.mapping.UpdateOn) > 0 {
		updated, err := p.update(ctx, c, row)
		if err != nil || updated {
			return updated, err
		}
	}
	return p.insert(ctx, c, row)
}

func (p *savePlan) update(ctx context.Context, c conn, row types.Row) (bool, error) {
	table := p.mapping.Table

	if p.kind == types.SourceTypeClickHouse {
		// 행 단위 UPDATE가 없으므로 존재 여부 확인 후 ALTER TABLE ... UPDATE
		where, whereArgs := p.whereClause(row, 1)
		n, err := countWith(ctx, c, fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", table, where), whereArgs)
		if err != nil {
			return false, err
		}
		if n == 0 {
			return false, nil
		}

		set, setArgs := p.setClause(row, 1)
		query := fmt.Sprintf("ALTER TABLE %s UPDATE %s WHERE %s", table, set, where)
		if _, err := c.Exec(ctx, query, append(setArgs, whereArgs...)); err != nil {
			return false, err
		}
		return true, nil
	}

	set, setArgs := p.setClause(row, 1)
	where, whereArgs := p.whereClause(row, len(setArgs)+1)
	res, err := c.Exec(ctx, fmt.Sprintf("UPDATE %s SET %s WHERE %s", table, set, where), append(setArgs, whereArgs...))
	if err != nil {
		return false, err
	}
	return res.RowsAffected > 0, nil
}

func (p *savePlan) insert(ctx context.Context, c conn, row types.Row) (bool, error) {
	columns := make([]string, len(p.mapping.SavedMapping))
	marks := make([]string, len(p.mapping.SavedMapping))
	args := make([]any, len(p.mapping.SavedMapping))
	for i, m := range p.mapping.SavedMapping {
		columns[i] = m.TableColumn
		marks[i] = p.placeholder(i + 1)
		args[i] = row[m.ResultColumn]
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", p.mapping.Table, strings.Join(columns, ", "), strings.Join(marks, ", "))

	switch p.kind {
	case types.SourceTypePostgres:
		result, err := c.Query(ctx, query+" RETURNING *", args)
		if err != nil {
			return false, err
		}
		if len(result.Rows) > 0 {
			if id := identityOf(result.Rows[0]); id != nil {
				row[p.mapping.InsertIDKey()] = id
			}
		}
		return true, nil
	case types.SourceTypeClickHouse:
		if _, err := c.Exec(ctx, query, args); err != nil {
			return false, err
		}
		return true, nil
	default:
		res, err := c.Exec(ctx, query, args)
		if err != nil {
			return false, err
		}
		if res.LastInsertID > 0 {
			row[p.mapping.InsertIDKey()] = res.LastInsertID
		}
		return res.RowsAffected > 0, nil
	}
}

// identityOf RETURNING * 결과에서 id 컬럼 값
func identityOf(row types.Row) any {
	for k, v := range row {
		if strings.EqualFold(k, "id") {
			return v
		}
	}
	return nil
}
