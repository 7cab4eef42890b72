package services

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"modernc.org/sqlite"

	"github.com/zamasskin/datashift/pkg/types"
)

// FailureReport 실패한 실행의 진단 정보
type FailureReport struct {
	Err         error
	Trigger     types.Trigger
	MigrationID int64
	RunID       int64
	Params      map[string]any
	Progress    []int
}

type stackTracer interface {
	StackTrace() errors.StackTrace
}

// withStack 스택이 없는 오류에만 현재 위치 스택을 붙임
func withStack(err error) error {
	var st stackTracer
	if errors.As(err, &st) {
		return err
	}
	return errors.WithStack(err)
}

// stackOf %+v 형식 스택과 sha256 해시
func stackOf(err error) (string, string) {
	stack := fmt.Sprintf("%+v", withStack(err))
	sum := sha256.Sum256([]byte(stack))
	return stack, hex.EncodeToString(sum[:])
}

// driverCode 드라이버별 오류 코드 추출, 없으면 빈 문자열
func driverCode(err error) string {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return "mysql:" + strconv.Itoa(int(mysqlErr.Number))
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return "postgres:" + string(pqErr.Code)
	}

	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		return "sqlite:" + strconv.Itoa(sqliteErr.Code())
	}

	var chErr *clickhouse.Exception
	if errors.As(err, &chErr) {
		return "clickhouse:" + strconv.Itoa(int(chErr.Code))
	}

	return ""
}

// shortMessage 실행 기록에 남길 한 줄 메시지
func shortMessage(err error) string {
	const limit = 500
	msg := err.Error()
	if len(msg) > limit {
		return msg[:limit] + "..."
	}
	return msg
}
