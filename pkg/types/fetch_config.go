package types

import (
	"encoding/json"
	"fmt"
)

// StageType 데이터셋(스테이지) 종류
type StageType string

const (
	StageTypeSQL          StageType = "sql"
	StageTypeSQLBuilder   StageType = "sql_builder"
	StageTypeMerge        StageType = "merge"
	StageTypeModification StageType = "modification"
)

// FetchConfig 마이그레이션의 한 스테이지 정의
// Type에 따라 SQL, SQLBuilder, Merge, Modification 중 정확히 하나가 설정됨
type FetchConfig struct {
	ID   ID        `json:"id"`
	Type StageType `json:"type"`
	Page int       `json:"page,omitempty"` // 1부터 시작, 0이면 페이지네이션 없음

	SQL          *SQLParams          `json:"-"`
	SQLBuilder   *SQLBuilderParams   `json:"-"`
	Merge        *MergeParams        `json:"-"`
	Modification *ModificationParams `json:"-"`
}

// SQLParams 원시 SQL 스테이지 파라미터
type SQLParams struct {
	SourceID int64  `json:"sourceId"`
	Query    string `json:"query"`
}

// SQLBuilderParams 쿼리 빌더 스테이지 파라미터
type SQLBuilderParams struct {
	SourceID int64      `json:"sourceId"`
	Table    string     `json:"table"`
	Alias    string     `json:"alias,omitempty"`
	Selects  []string   `json:"selects,omitempty"`
	Joins    []Join     `json:"joins,omitempty"`
	Where    *WhereNode `json:"where,omitempty"`
	Having   *WhereNode `json:"having,omitempty"`
	Group    []string   `json:"group,omitempty"`
	Orders   []Order    `json:"orders,omitempty"`
}

// Join 조인 정의
type Join struct {
	Type  string          `json:"type"` // inner, left, right, full
	Table string          `json:"table"`
	Alias string          `json:"alias"`
	On    []JoinCondition `json:"on"`
}

// JoinCondition 조인 조건 (<base>.<tableColumn> <op> <alias>.<aliasColumn>)
type JoinCondition struct {
	TableColumn string `json:"tableColumn"`
	AliasColumn string `json:"aliasColumn"`
	Operator    string `json:"operator"`
	Cond        string `json:"cond,omitempty"` // and, or (첫 조건은 무시)
}

// WhereNode WHERE/HAVING 트리
type WhereNode struct {
	Fields []WhereField     `json:"fields,omitempty"`
	And    []map[string]any `json:"$and,omitempty"`
	Or     []map[string]any `json:"$or,omitempty"`
}

// WhereField 단일 조건
type WhereField struct {
	Key    string `json:"key"`
	Op     string `json:"op"`
	Value  any    `json:"value,omitempty"`
	Values []any  `json:"values,omitempty"`
}

// Order 정렬 정의
type Order struct {
	Column    string `json:"column"`
	Direction string `json:"direction,omitempty"`
}

// MergeParams 두 데이터셋 병합 파라미터
type MergeParams struct {
	DatasetLeftID  ID               `json:"datasetLeftId"`
	DatasetRightID ID               `json:"datasetRightId"`
	On             []MergeCondition `json:"on"`
}

// MergeCondition 병합 조건 (leftRow[tableColumn] <op> rightRow[aliasColumn])
type MergeCondition struct {
	TableColumn string `json:"tableColumn"`
	AliasColumn string `json:"aliasColumn"`
	Operator    string `json:"operator"`
	Cond        string `json:"cond,omitempty"`
}

// ModificationParams 컬럼 수정 파라미터
type ModificationParams struct {
	DatasetID     ID                `json:"datasetId"`
	NewColumns    []NewColumn       `json:"newColumns,omitempty"`
	DropColumns   []string          `json:"dropColumns,omitempty"`
	RenameColumns map[string]string `json:"renameColumns,omitempty"`
}

// NewColumn 추가할 컬럼
type NewColumn struct {
	Name  string      `json:"name,omitempty"`
	Value ColumnValue `json:"value"`
}

// ColumnValueType 새 컬럼 값 종류
type ColumnValueType string

const (
	ColumnValueReference  ColumnValueType = "reference"
	ColumnValueLiteral    ColumnValueType = "literal"
	ColumnValueTemplate   ColumnValueType = "template"
	ColumnValueExpression ColumnValueType = "expression"
)

// ColumnValue 행 단위 컬럼 값 정의
type ColumnValue struct {
	Type       ColumnValueType `json:"type"`
	Column     string          `json:"column,omitempty"`     // reference
	Value      any             `json:"value,omitempty"`      // literal
	Template   string          `json:"template,omitempty"`   // template
	Expression string          `json:"expression,omitempty"` // expression
}

type fetchConfigEnvelope struct {
	ID     ID              `json:"id"`
	Type   StageType       `json:"type"`
	Page   int             `json:"page,omitempty"`
	Params json.RawMessage `json:"params"`
}

// UnmarshalJSON type 태그에 따라 params 디코딩
func (f *FetchConfig) UnmarshalJSON(data []byte) error {
	var env fetchConfigEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}

	*f = FetchConfig{ID: env.ID, Type: env.Type, Page: env.Page}

	params := env.Params
	if len(params) == 0 {
		params = []byte("{}")
	}

	switch env.Type {
	case StageTypeSQL:
		f.SQL = &SQLParams{}
		return json.Unmarshal(params, f.SQL)
	case StageTypeSQLBuilder:
		f.SQLBuilder = &SQLBuilderParams{}
		return json.Unmarshal(params, f.SQLBuilder)
	case StageTypeMerge:
		f.Merge = &MergeParams{}
		return json.Unmarshal(params, f.Merge)
	case StageTypeModification:
		f.Modification = &ModificationParams{}
		return json.Unmarshal(params, f.Modification)
	default:
		return fmt.Errorf("unknown fetch config type: %q", env.Type)
	}
}

// MarshalJSON params 블록을 포함한 원래 형태로 인코딩
func (f FetchConfig) MarshalJSON() ([]byte, error) {
	var params any
	switch f.Type {
	case StageTypeSQL:
		params = f.SQL
	case StageTypeSQLBuilder:
		params = f.SQLBuilder
	case StageTypeMerge:
		params = f.Merge
	case StageTypeModification:
		params = f.Modification
	default:
		return nil, fmt.Errorf("unknown fetch config type: %q", f.Type)
	}

	raw, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	return json.Marshal(fetchConfigEnvelope{ID: f.ID, Type: f.Type, Page: f.Page, Params: raw})
}
