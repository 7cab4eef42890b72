package sqlexec

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/zamasskin/datashift/pkg/types"

	_ "modernc.org/sqlite"
)

// conn 호출 하나 동안만 유지되는 엔진 연결
type conn interface {
	Query(ctx context.Context, query string, args []any) (*Result, error)
	Exec(ctx context.Context, query string, args []any) (execResult, error)
	Close() error
}

type execResult struct {
	RowsAffected int64
	LastInsertID int64
}

// open 엔진별 새 연결 생성 (풀링 없음)
func (e *Executor) open(ctx context.Context, kind types.SourceType, config map[string]any) (conn, error) {
	if !kind.IsValid() {
		return nil, errors.Wrapf(ErrUnsupportedType, "%q", kind)
	}

	cfg, err := ParseConnConfig(kind, config)
	if err != nil {
		return nil, err
	}

	switch kind {
	case types.SourceTypeMySQL:
		return e.openMySQL(ctx, cfg)
	case types.SourceTypePostgres:
		return e.openPostgres(ctx, cfg)
	case types.SourceTypeSQLite:
		return openSQLite(ctx, cfg)
	case types.SourceTypeClickHouse:
		return e.openClickHouse(ctx, cfg)
	}
	return nil, errors.Wrapf(ErrUnsupportedType, "%q", kind)
}

func (e *Executor) openMySQL(ctx context.Context, cfg *ConnConfig) (conn, error) {
	mc := mysql.NewConfig()
	mc.Net = "tcp"
	mc.Addr = cfg.Addr()
	mc.User = cfg.User
	mc.Passwd = cfg.Password
	mc.DBName = cfg.Database
	mc.Timeout = e.connectTimeout
	mc.ParseTime = true
	// UPDATE 결과를 변경된 행이 아닌 일치한 행 수로 받아야 중복 INSERT가 생기지 않음
	mc.ClientFoundRows = true

	connector, err := mysql.NewConnector(mc)
	if err != nil {
		return nil, errors.Wrap(err, "invalid mysql config")
	}
	return pingSQL(ctx, types.SourceTypeMySQL, sql.OpenDB(connector), e.connectTimeout)
}

func (e *Executor) openPostgres(ctx context.Context, cfg *ConnConfig) (conn, error) {
	params := []string{
		"host=" + pqQuote(cfg.Host),
		fmt.Sprintf("port=%d", cfg.Port),
		"sslmode=" + pqQuote(cfg.SSLMode),
	}
	if cfg.User != "" {
		params = append(params, "user="+pqQuote(cfg.User))
	}
	if cfg.Password != "" {
		params = append(params, "password="+pqQuote(cfg.Password))
	}
	if cfg.Database != "" {
		params = append(params, "dbname="+pqQuote(cfg.Database))
	}
	if e.connectTimeout > 0 {
		params = append(params, fmt.Sprintf("connect_timeout=%d", int(e.connectTimeout.Seconds())))
	}

	connector, err := pq.NewConnector(strings.Join(params, " "))
	if err != nil {
		return nil, errors.Wrap(err, "invalid postgres config")
	}
	return pingSQL(ctx, types.SourceTypePostgres, sql.OpenDB(connector), e.connectTimeout)
}

func openSQLite(ctx context.Context, cfg *ConnConfig) (conn, error) {
	db, err := sql.Open("sqlite", cfg.File)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open sqlite file %s", cfg.File)
	}
	return pingSQL(ctx, types.SourceTypeSQLite, db, 0)
}

func pingSQL(ctx context.Context, kind types.SourceType, db *sql.DB, timeout time.Duration) (conn, error) {
	db.SetMaxOpenConns(1)

	pingCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "failed to connect to %s", kind)
	}
	return &sqlConn{db: db}, nil
}

// pqQuote libpq 키워드/값 형식 인용
func pqQuote(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

// sqlConn database/sql 기반 연결 (MySQL, PostgreSQL, SQLite)
type sqlConn struct {
	db *sql.DB
}

func (c *sqlConn) Query(ctx context.Context, query string, args []any) (*Result, error) {
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, errors.WithStack(err)
	}

	result := &Result{Rows: []types.Row{}, Columns: columns}
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, errors.WithStack(err)
		}

		row := make(types.Row, len(columns))
		for i, col := range columns {
			row[col] = normalizeValue(values[i])
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WithStack(err)
	}

	return result, nil
}

func (c *sqlConn) Exec(ctx context.Context, query string, args []any) (execResult, error) {
	res, err := c.db.ExecContext(ctx, query, args...)
	if err != nil {
		return execResult{}, errors.WithStack(err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return execResult{}, errors.WithStack(err)
	}

	// PostgreSQL은 LastInsertId를 지원하지 않음
	id, _ := res.LastInsertId()
	return execResult{RowsAffected: affected, LastInsertID: id}, nil
}

func (c *sqlConn) Close() error {
	return c.db.Close()
}

func (e *Executor) openClickHouse(ctx context.Context, cfg *ConnConfig) (conn, error) {
	database := cfg.Database
	if database == "" {
		database = "default"
	}
	user := cfg.User
	if user == "" {
		user = "default"
	}

	chConn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr()},
		Auth: clickhouse.Auth{
			Database: database,
			Username: user,
			Password: cfg.Password,
		},
		DialTimeout: e.connectTimeout,
	})
	if err != nil {
		return nil, errors.Wrap(err, "invalid clickhouse config")
	}

	if err := chConn.Ping(ctx); err != nil {
		chConn.Close()
		return nil, errors.Wrap(err, "failed to connect to clickhouse")
	}

	return &clickhouseConn{conn: chConn}, nil
}

// clickhouseConn 네이티브 ClickHouse 연결, 파라미터 바인딩 없이 인라인된 SQL만 실행
type clickhouseConn struct {
	conn driver.Conn
}

func (c *clickhouseConn) Query(ctx context.Context, query string, args []any) (*Result, error) {
	query, err := InlineClickHouse(query, args)
	if err != nil {
		return nil, err
	}

	rows, err := c.conn.Query(ctx, query)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer rows.Close()

	columns := rows.Columns()
	columnTypes := rows.ColumnTypes()

	result := &Result{Rows: []types.Row{}, Columns: columns}
	for rows.Next() {
		dest := make([]any, len(columnTypes))
		for i, ct := range columnTypes {
			dest[i] = reflect.New(ct.ScanType()).Interface()
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, errors.WithStack(err)
		}

		row := make(types.Row, len(columns))
		for i, col := range columns {
			row[col] = normalizeValue(reflect.ValueOf(dest[i]).Elem().Interface())
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WithStack(err)
	}

	return result, nil
}

func (c *clickhouseConn) Exec(ctx context.Context, query string, args []any) (execResult, error) {
	query, err := InlineClickHouse(query, args)
	if err != nil {
		return execResult{}, err
	}
	if err := c.conn.Exec(ctx, query); err != nil {
		return execResult{}, errors.WithStack(err)
	}
	return execResult{}, nil
}

func (c *clickhouseConn) Close() error {
	return c.conn.Close()
}

// normalizeValue 드라이버 값을 JSON 친화적인 값으로 변환
func normalizeValue(v any) any {
	switch val := v.(type) {
	case []byte:
		return string(val)
	case *string:
		if val == nil {
			return nil
		}
		return *val
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		return normalizeValue(rv.Elem().Interface())
	}
	return v
}
