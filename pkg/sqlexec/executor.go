// Package sqlexec MySQL, PostgreSQL, SQLite, ClickHouse에 대한 SQL 실행기
//
// 호출마다 새 연결을 열고 모든 경로에서 닫는다.
package sqlexec

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/zamasskin/datashift/pkg/types"
)

// DefaultConnectTimeout MySQL/PostgreSQL/ClickHouse 접속 타임아웃
const DefaultConnectTimeout = 3 * time.Second

// Result 쿼리 결과
type Result struct {
	Rows    []types.Row
	Columns []string
}

// Executor SQL 실행기
type Executor struct {
	connectTimeout time.Duration
}

// Option 실행기 옵션
type Option func(*Executor)

// WithConnectTimeout 접속 타임아웃 변경 (SQLite에는 적용되지 않음)
func WithConnectTimeout(d time.Duration) Option {
	return func(e *Executor) {
		e.connectTimeout = d
	}
}

// New 새 실행기 생성
func New(opts ...Option) *Executor {
	e := &Executor{connectTimeout: DefaultConnectTimeout}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute SQL 실행 후 행과 컬럼 반환
// limit>0 또는 offset>0이면 서브쿼리로 감싸 페이지네이션 적용
func (e *Executor) Execute(ctx context.Context, kind types.SourceType, config map[string]any, sql string, vars []any, limit, offset int) (*Result, error) {
	query, err := PrepareSQL(sql)
	if err != nil {
		return nil, err
	}
	query = WrapPagination(kind, query, limit, offset)

	c, err := e.open(ctx, kind, config)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	result, err := c.Query(ctx, query, vars)
	if err != nil {
		return nil, errors.Wrapf(err, "%s query failed", kind)
	}
	return result, nil
}

// CountSQL SELECT COUNT(*) FROM (<sql>) AS sub 결과 반환
func (e *Executor) CountSQL(ctx context.Context, kind types.SourceType, config map[string]any, sql string, vars []any) (int64, error) {
	query, err := PrepareSQL(sql)
	if err != nil {
		return 0, err
	}

	c, err := e.open(ctx, kind, config)
	if err != nil {
		return 0, err
	}
	defer c.Close()

	return countWith(ctx, c, fmt.Sprintf("SELECT COUNT(*) FROM (%s) AS sub", query), vars)
}

func countWith(ctx context.Context, c conn, query string, vars []any) (int64, error) {
	result, err := c.Query(ctx, query, vars)
	if err != nil {
		return 0, errors.Wrap(err, "count query failed")
	}
	if len(result.Rows) == 0 || len(result.Columns) == 0 {
		return 0, nil
	}

	n, ok := toInt64(result.Rows[0][result.Columns[0]])
	if !ok {
		return 0, errors.Errorf("unexpected count value %v", result.Rows[0][result.Columns[0]])
	}
	return n, nil
}

// PrepareSQL 빈 SQL 거부, 끝의 세미콜론 제거
func PrepareSQL(sql string) (string, error) {
	query := strings.TrimSpace(sql)
	for strings.HasSuffix(query, ";") {
		query = strings.TrimSpace(strings.TrimSuffix(query, ";"))
	}
	if query == "" {
		return "", errors.WithStack(ErrEmptySQL)
	}
	return query, nil
}

// WrapPagination SELECT * FROM (<sql>) AS sub [LIMIT n] [OFFSET m]
// limit 없이 offset만 있으면 MySQL/SQLite 문법에 맞게 최대 LIMIT를 채움
func WrapPagination(kind types.SourceType, sql string, limit, offset int) string {
	if limit <= 0 && offset <= 0 {
		return sql
	}

	var sb strings.Builder
	sb.WriteString("SELECT * FROM (")
	sb.WriteString(sql)
	sb.WriteString(") AS sub")

	switch {
	case limit > 0:
		fmt.Fprintf(&sb, " LIMIT %d", limit)
	case kind == types.SourceTypeSQLite:
		sb.WriteString(" LIMIT -1")
	case kind == types.SourceTypeMySQL:
		sb.WriteString(" LIMIT 18446744073709551615")
	}
	if offset > 0 {
		fmt.Fprintf(&sb, " OFFSET %d", offset)
	}
	return sb.String()
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case uint64:
		return int64(n), true
	case uint32:
		return int64(n), true
	case float64:
		return int64(n), true
	case string:
		var i int64
		_, err := fmt.Sscan(n, &i)
		return i, err == nil
	}
	return 0, false
}
