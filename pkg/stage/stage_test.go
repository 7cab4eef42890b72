package stage

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zamasskin/datashift/pkg/placeholder"
	"github.com/zamasskin/datashift/pkg/sqlexec"
	"github.com/zamasskin/datashift/pkg/types"
)

// fakeSources 메모리 DataSource 목록
type fakeSources map[int64]*types.DataSource

func (f fakeSources) FindDataSource(_ context.Context, id int64) (*types.DataSource, error) {
	return f[id], nil
}

// recordingQuerier 실행된 SQL 기록
type recordingQuerier struct {
	sql    string
	vars   []any
	limit  int
	offset int
	result *sqlexec.Result
}

func (q *recordingQuerier) Execute(_ context.Context, _ types.SourceType, _ map[string]any, sql string, vars []any, limit, offset int) (*sqlexec.Result, error) {
	q.sql, q.vars, q.limit, q.offset = sql, vars, limit, offset
	if q.result == nil {
		return &sqlexec.Result{Rows: []types.Row{}, Columns: []string{}}, nil
	}
	return q.result, nil
}

func sqliteSource(t *testing.T) fakeSources {
	t.Helper()

	path := filepath.Join(t.TempDir(), "stage.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	for _, stmt := range []string{
		"CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT, city TEXT)",
		"INSERT INTO users (id, name, city) VALUES (1, 'alice', 'Berlin'), (2, 'bob', 'Paris'), (3, 'carol', 'Berlin')",
	} {
		_, err := db.Exec(stmt)
		require.NoError(t, err)
	}

	return fakeSources{1: {ID: 1, Type: types.SourceTypeSQLite, Config: map[string]any{"file": path}}}
}

func dataset(id types.ID, rows []types.Row, columns ...string) types.StageResult {
	return types.NewArrayColumnsResult(id, id.String(), rows, columns)
}

func TestPaginate(t *testing.T) {
	limit, offset := Paginate(0, Hint{})
	assert.Equal(t, 0, limit)
	assert.Equal(t, 0, offset)

	limit, offset = Paginate(3, Hint{})
	assert.Equal(t, DefaultPageSize, limit)
	assert.Equal(t, 1000, offset)

	limit, offset = Paginate(2, Hint{Limit: 10})
	assert.Equal(t, 10, limit)
	assert.Equal(t, 10, offset)

	limit, offset = Paginate(0, Hint{Limit: 5, Offset: 15})
	assert.Equal(t, 5, limit)
	assert.Equal(t, 15, offset)
}

func TestSQLStageResolvesPlaceholders(t *testing.T) {
	d := NewDispatcher(sqliteSource(t), sqlexec.New())
	prior := []types.StageResult{types.NewParamsResult(map[string]any{"city": "Berlin"})}

	cfg := types.FetchConfig{ID: "s1", Type: types.StageTypeSQL, SQL: &types.SQLParams{
		SourceID: 1,
		Query:    "SELECT id, name FROM users WHERE city = {params.city} ORDER BY id",
	}}

	result, err := d.Execute(context.Background(), cfg, prior, Hint{})
	require.NoError(t, err)
	assert.Equal(t, types.DataTypeArrayColumns, result.DataType)
	assert.Equal(t, types.ID("s1"), result.DatasetID)
	assert.Equal(t, []string{"id", "name"}, result.Meta.Columns)
	require.Len(t, result.Rows, 2)
	assert.Equal(t, "carol", result.Rows[1]["name"])

	// 이전 데이터셋의 컬럼 값 참조
	prior = append(prior, result)
	next := types.FetchConfig{ID: "s2", Type: types.StageTypeSQL, SQL: &types.SQLParams{
		SourceID: 1,
		Query:    "SELECT name FROM users WHERE id = {s1.id.1}",
	}}
	result, err = d.Execute(context.Background(), next, prior, Hint{})
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
	assert.Equal(t, "carol", result.Rows[0]["name"])
}

func TestSQLStageColumnListExpandsForIn(t *testing.T) {
	d := NewDispatcher(sqliteSource(t), sqlexec.New())
	prior := []types.StageResult{
		types.NewParamsResult(nil),
		dataset("s1", []types.Row{{"id": int64(1)}, {"id": int64(3)}}, "id"),
		dataset("empty", []types.Row{}, "id"),
	}

	cfg := types.FetchConfig{ID: "s2", Type: types.StageTypeSQL, SQL: &types.SQLParams{
		SourceID: 1,
		Query:    "SELECT name FROM users WHERE id IN ({s1.id}) ORDER BY id",
	}}
	result, err := d.Execute(context.Background(), cfg, prior, Hint{})
	require.NoError(t, err)
	require.Len(t, result.Rows, 2)
	assert.Equal(t, "alice", result.Rows[0]["name"])
	assert.Equal(t, "carol", result.Rows[1]["name"])

	cfg.SQL.Query = "SELECT name FROM users WHERE id IN ({empty.id})"
	result, err = d.Execute(context.Background(), cfg, prior, Hint{})
	require.NoError(t, err)
	assert.Empty(t, result.Rows)
}

func TestStyleFor(t *testing.T) {
	assert.Equal(t, placeholder.StyleDollar, StyleFor(types.SourceTypePostgres))
	assert.Equal(t, placeholder.StyleInline, StyleFor(types.SourceTypeClickHouse))
	assert.Equal(t, placeholder.StyleQuestion, StyleFor(types.SourceTypeMySQL))
	assert.Equal(t, placeholder.StyleQuestion, StyleFor(types.SourceTypeSQLite))
}

func TestSQLStagePaging(t *testing.T) {
	q := &recordingQuerier{}
	s := NewSQLStage(fakeSources{9: {ID: 9, Type: types.SourceTypePostgres}}, q)

	cfg := types.FetchConfig{ID: "p", Type: types.StageTypeSQL, Page: 2, SQL: &types.SQLParams{SourceID: 9, Query: "SELECT * FROM t WHERE a = {params.a}"}}
	_, err := s.Execute(context.Background(), cfg, []types.StageResult{types.NewParamsResult(map[string]any{"a": 1})}, Hint{})
	require.NoError(t, err)

	assert.Equal(t, "SELECT * FROM t WHERE a = $1", q.sql)
	assert.Equal(t, []any{1}, q.vars)
	assert.Equal(t, DefaultPageSize, q.limit)
	assert.Equal(t, DefaultPageSize, q.offset)
}

func TestSQLStageMissingSource(t *testing.T) {
	s := NewSQLStage(fakeSources{}, &recordingQuerier{})
	cfg := types.FetchConfig{ID: "x", Type: types.StageTypeSQL, SQL: &types.SQLParams{SourceID: 5, Query: "SELECT 1"}}

	_, err := s.Execute(context.Background(), cfg, nil, Hint{})
	assert.True(t, errors.Is(err, ErrSourceNotFound))
}

func TestSQLBuilderStageDelegates(t *testing.T) {
	d := NewDispatcher(sqliteSource(t), sqlexec.New())
	prior := []types.StageResult{types.NewParamsResult(map[string]any{"min": 2})}

	cfg := types.FetchConfig{ID: "b", Type: types.StageTypeSQLBuilder, SQLBuilder: &types.SQLBuilderParams{
		SourceID: 1,
		Table:    "users",
		Alias:    "u",
		Selects:  []string{"u.id", "u.name"},
		Where:    &types.WhereNode{Fields: []types.WhereField{{Key: "u.id", Op: ">=", Value: "{params.min}"}}},
		Orders:   []types.Order{{Column: "u.id", Direction: "desc"}},
	}}

	result, err := d.Execute(context.Background(), cfg, prior, Hint{})
	require.NoError(t, err)
	require.Len(t, result.Rows, 2)
	assert.Equal(t, int64(3), result.Rows[0]["id"])
}

func TestMergeInnerJoin(t *testing.T) {
	prior := []types.StageResult{
		types.NewParamsResult(nil),
		dataset("left", []types.Row{{"id": 1}, {"id": 2}}, "id"),
		dataset("right", []types.Row{{"uid": 1, "v": "a"}, {"uid": 3, "v": "b"}}, "uid", "v"),
	}
	cfg := types.FetchConfig{ID: "m", Type: types.StageTypeMerge, Merge: &types.MergeParams{
		DatasetLeftID:  "left",
		DatasetRightID: "right",
		On:             []types.MergeCondition{{TableColumn: "id", AliasColumn: "uid", Operator: "="}},
	}}

	result, err := NewMergeStage().Execute(context.Background(), cfg, prior, Hint{})
	require.NoError(t, err)
	assert.Equal(t, []types.Row{{"id": 1, "uid": 1, "v": "a"}}, result.Rows)
	assert.Equal(t, []string{"id", "uid", "v"}, result.Meta.Columns)
	assert.Equal(t, types.ID("m"), result.DatasetID)
}

func TestMergeRightWinsAndConnectives(t *testing.T) {
	prior := []types.StageResult{
		dataset("l", []types.Row{{"k": 1, "name": "left", "n": 5}}, "k", "name", "n"),
		dataset("r", []types.Row{{"k": 2, "name": "right", "m": 5}, {"k": 1, "name": "other", "m": 9}}, "k", "name", "m"),
	}
	cfg := types.FetchConfig{ID: "m", Type: types.StageTypeMerge, Merge: &types.MergeParams{
		DatasetLeftID:  "l",
		DatasetRightID: "r",
		On: []types.MergeCondition{
			{TableColumn: "k", AliasColumn: "k", Operator: "=", Cond: "or"},
			{TableColumn: "n", AliasColumn: "m", Operator: "=", Cond: "or"},
		},
	}}

	result, err := NewMergeStage().Execute(context.Background(), cfg, prior, Hint{})
	require.NoError(t, err)
	require.Len(t, result.Rows, 2)
	assert.Equal(t, "right", result.Rows[0]["name"])
	assert.Equal(t, "other", result.Rows[1]["name"])
}

func TestMergeMissingDataset(t *testing.T) {
	cfg := types.FetchConfig{ID: "m", Type: types.StageTypeMerge, Merge: &types.MergeParams{
		DatasetLeftID:  "nope",
		DatasetRightID: "r",
		On:             []types.MergeCondition{{TableColumn: "a", AliasColumn: "b"}},
	}}

	_, err := NewMergeStage().Execute(context.Background(), cfg, []types.StageResult{dataset("r", nil)}, Hint{})
	assert.True(t, errors.Is(err, ErrStageNotFound))
}

func TestModificationColumnNaming(t *testing.T) {
	prior := []types.StageResult{
		types.NewParamsResult(nil),
		dataset("src", []types.Row{{"a": 1, "b": 2}, {"a": 3, "b": 4}}, "a", "b"),
	}
	cfg := types.FetchConfig{ID: "mod", Type: types.StageTypeModification, Modification: &types.ModificationParams{
		DatasetID:   "src",
		DropColumns: []string{"b"},
		NewColumns: []types.NewColumn{
			{Name: "new_1", Value: types.ColumnValue{Type: types.ColumnValueLiteral, Value: "x"}},
			{Name: "new_1", Value: types.ColumnValue{Type: types.ColumnValueLiteral, Value: "y"}},
		},
	}}

	result, err := NewModificationStage().Execute(context.Background(), cfg, prior, Hint{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "new_1", "new_1_2"}, result.Meta.Columns)
	for _, row := range result.Rows {
		_, hasB := row["b"]
		assert.False(t, hasB)
		assert.Equal(t, "x", row["new_1"])
		assert.Equal(t, "y", row["new_1_2"])
	}

	// 원본 데이터셋은 변경되지 않음
	_, ok := prior[1].Rows[0]["b"]
	assert.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, prior[1].Meta.Columns)
}

func TestModificationRenameAndAdd(t *testing.T) {
	prior := []types.StageResult{
		types.NewParamsResult(map[string]any{"rate": 2, "label": "EUR"}),
		dataset("src", []types.Row{
			{"price": int64(10), "title": "pen"},
			{"price": "oops", "title": "cup"},
		}, "price", "title"),
	}
	cfg := types.FetchConfig{ID: "mod", Type: types.StageTypeModification, Modification: &types.ModificationParams{
		DatasetID:     "src",
		RenameColumns: map[string]string{"title": "name", "price": "price"},
		NewColumns: []types.NewColumn{
			{Value: types.ColumnValue{Type: types.ColumnValueReference, Column: "name"}},
			{Value: types.ColumnValue{Type: types.ColumnValueTemplate, Template: "{{name}}: {price} {params.label}"}},
			{Value: types.ColumnValue{Type: types.ColumnValueExpression, Expression: "column.price * params.rate"}},
			{Value: types.ColumnValue{Type: types.ColumnValueLiteral, Value: true}},
		},
	}}

	result, err := NewModificationStage().Execute(context.Background(), cfg, prior, Hint{})
	require.NoError(t, err)
	assert.Equal(t, []string{"price", "name", "ref_1", "template_2", "expr_3", "literal_4"}, result.Meta.Columns)

	first := result.Rows[0]
	assert.Equal(t, "pen", first["ref_1"])
	assert.Equal(t, "pen: 10 EUR", first["template_2"])
	assert.Equal(t, float64(20), first["expr_3"])
	assert.Equal(t, true, first["literal_4"])

	// 계산 실패는 nil
	assert.Nil(t, result.Rows[1]["expr_3"])
}

func TestModificationMissingDataset(t *testing.T) {
	cfg := types.FetchConfig{ID: "mod", Type: types.StageTypeModification, Modification: &types.ModificationParams{DatasetID: "ghost"}}
	_, err := NewModificationStage().Execute(context.Background(), cfg, nil, Hint{})
	assert.True(t, errors.Is(err, ErrStageNotFound))
}

func TestDispatcherUnknownType(t *testing.T) {
	d := NewDispatcher(fakeSources{}, &recordingQuerier{})
	_, err := d.Execute(context.Background(), types.FetchConfig{ID: "x", Type: "shell"}, nil, Hint{})
	assert.True(t, errors.Is(err, ErrUnknownStageType))
}

func TestRenderTemplate(t *testing.T) {
	row := map[string]any{"name": "Ann", "m1.ID": int64(7)}
	params := map[string]any{"env": "prod"}

	out, err := RenderTemplate("{{name}}/{m1.ID}/{{params.env}}/{missing}", row, params)
	require.NoError(t, err)
	assert.Equal(t, "Ann/7/prod/", out)

	out, err = RenderTemplate("<{{name}}>", map[string]any{"name": "a&b"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "<a&b>", out)
}
