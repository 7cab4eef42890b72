package stage

import (
	"context"
	"fmt"
	"sort"

	"github.com/zamasskin/datashift/pkg/expression"
	"github.com/zamasskin/datashift/pkg/types"
)

// ModificationStage 데이터셋 컬럼 삭제/이름 변경/추가
type ModificationStage struct{}

// NewModificationStage 수정 스테이지 생성
func NewModificationStage() *ModificationStage {
	return &ModificationStage{}
}

func (s *ModificationStage) Execute(_ context.Context, cfg types.FetchConfig, prior []types.StageResult, _ Hint) (types.StageResult, error) {
	p := cfg.Modification
	if p == nil {
		return types.StageResult{}, fmt.Errorf("stage %s: modification params are missing", cfg.ID)
	}

	source, err := findDataset(prior, p.DatasetID)
	if err != nil {
		return types.StageResult{}, fmt.Errorf("stage %s: %w", cfg.ID, err)
	}

	rows := make([]types.Row, len(source.Rows))
	for i, r := range source.Rows {
		clone := make(types.Row, len(r))
		for k, v := range r {
			clone[k] = v
		}
		rows[i] = clone
	}
	columns := append([]string(nil), source.Meta.Columns...)

	// 1. 삭제
	columns = dropColumns(rows, columns, p.DropColumns)
	// 2. 이름 변경
	columns = renameColumns(rows, columns, p.RenameColumns)
	// 3. 추가
	columns = addColumns(rows, columns, p.NewColumns, paramsOf(prior))

	return types.NewArrayColumnsResult(cfg.ID, cfg.ID.String(), rows, columns), nil
}

func dropColumns(rows []types.Row, columns, drop []string) []string {
	if len(drop) == 0 {
		return columns
	}

	dropped := make(map[string]bool, len(drop))
	for _, c := range drop {
		dropped[c] = true
	}
	for _, row := range rows {
		for c := range dropped {
			delete(row, c)
		}
	}

	kept := columns[:0]
	for _, c := range columns {
		if !dropped[c] {
			kept = append(kept, c)
		}
	}
	return kept
}

// renameColumns 키 이름 순서로 적용, from == to 는 건너뜀
func renameColumns(rows []types.Row, columns []string, renames map[string]string) []string {
	if len(renames) == 0 {
		return columns
	}

	froms := make([]string, 0, len(renames))
	for from := range renames {
		froms = append(froms, from)
	}
	sort.Strings(froms)

	for _, from := range froms {
		to := renames[from]
		if to == "" || from == to {
			continue
		}

		for _, row := range rows {
			if v, ok := row[from]; ok {
				row[to] = v
				delete(row, from)
			}
		}

		renamed := make([]string, 0, len(columns))
		for _, c := range columns {
			switch c {
			case from:
				c = to
			case to:
				continue
			}
			renamed = append(renamed, c)
		}
		columns = renamed
	}
	return columns
}

var defaultPrefixes = map[types.ColumnValueType]string{
	types.ColumnValueReference:  "ref",
	types.ColumnValueLiteral:    "literal",
	types.ColumnValueTemplate:   "template",
	types.ColumnValueExpression: "expr",
}

func addColumns(rows []types.Row, columns []string, newColumns []types.NewColumn, params map[string]any) []string {
	existing := make(map[string]bool, len(columns)+len(newColumns))
	for _, c := range columns {
		existing[c] = true
	}

	for i, nc := range newColumns {
		name := nc.Name
		if name == "" {
			prefix, ok := defaultPrefixes[nc.Value.Type]
			if !ok {
				prefix = "new"
			}
			name = fmt.Sprintf("%s_%d", prefix, i+1)
		}
		name = uniqueName(name, existing)
		existing[name] = true
		columns = append(columns, name)

		compute := columnValue(nc.Value, params)
		for _, row := range rows {
			row[name] = compute(row)
		}
	}
	return columns
}

// uniqueName 기존 컬럼과 겹치면 _2, _3 ... 접미사
func uniqueName(name string, existing map[string]bool) string {
	if !existing[name] {
		return name
	}
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s_%d", name, n)
		if !existing[candidate] {
			return candidate
		}
	}
}

// columnValue 행마다 값을 계산하는 함수, 평가 실패는 nil
func columnValue(cv types.ColumnValue, params map[string]any) func(types.Row) any {
	switch cv.Type {
	case types.ColumnValueReference:
		return func(row types.Row) any {
			return row[cv.Column]
		}
	case types.ColumnValueLiteral:
		return func(types.Row) any {
			return cv.Value
		}
	case types.ColumnValueTemplate:
		return func(row types.Row) any {
			out, err := RenderTemplate(cv.Template, row, params)
			if err != nil {
				return nil
			}
			return out
		}
	case types.ColumnValueExpression:
		program, err := expression.Compile(cv.Expression)
		if err != nil {
			return func(types.Row) any { return nil }
		}
		return func(row types.Row) any {
			v, err := program.Eval(row, params)
			if err != nil {
				return nil
			}
			return v
		}
	default:
		return func(types.Row) any { return nil }
	}
}
