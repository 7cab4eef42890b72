// Package placeholder SQL 안의 {path} 토큰을 드라이버 플레이스홀더로 변환
package placeholder

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/zamasskin/datashift/pkg/types"
)

// Style 플레이스홀더 형식
type Style int

const (
	// StyleQuestion ? (SQLite, MySQL, 드라이버 중립 기본값)
	StyleQuestion Style = iota
	// StyleDollar $1, $2 ... (PostgreSQL)
	StyleDollar
	// StyleInline ? 하나에 값 하나, 목록도 펼치지 않음 (ClickHouse 리터럴 치환용)
	StyleInline
)

var pathPattern = regexp.MustCompile(`^[A-Za-z0-9_]+(\.[A-Za-z0-9_]+)*$`)

// Result 변환 결과
type Result struct {
	SQL          string
	Values       []any
	Placeholders []string // 발견 순서대로의 경로
}

// Resolve 리터럴 밖의 {dotted.path}를 플레이스홀더로 바꾸고 값을 순서대로 수집
// 작은따옴표('' 이스케이프 포함)와 큰따옴표 안은 건드리지 않음
func Resolve(sql string, source map[string]any, style Style) Result {
	var (
		sb     strings.Builder
		values []any
		paths  []string
	)
	sb.Grow(len(sql))

	n := len(sql)
	for i := 0; i < n; {
		c := sql[i]

		switch c {
		case '\'':
			end := scanSingleQuoted(sql, i)
			sb.WriteString(sql[i:end])
			i = end
			continue
		case '"':
			end := strings.IndexByte(sql[i+1:], '"')
			if end < 0 {
				sb.WriteString(sql[i:])
				i = n
				continue
			}
			sb.WriteString(sql[i : i+end+2])
			i += end + 2
			continue
		case '{':
			end := strings.IndexByte(sql[i+1:], '}')
			if end < 0 {
				// 닫히지 않은 { 는 그대로 복사
				sb.WriteString(sql[i:])
				i = n
				continue
			}
			path := strings.TrimSpace(sql[i+1 : i+1+end])
			if !pathPattern.MatchString(path) {
				sb.WriteByte(c)
				i++
				continue
			}
			paths = append(paths, path)
			values = bind(&sb, values, Lookup(source, path), style)
			i += end + 2
			continue
		}

		sb.WriteByte(c)
		i++
	}

	return Result{SQL: sb.String(), Values: values, Placeholders: paths}
}

// bind 값 하나를 플레이스홀더로 기록
// 컬럼 전체 같은 목록 값은 IN (...) 에 쓰도록 원소마다 플레이스홀더를 만들고, 빈 목록은 NULL
func bind(sb *strings.Builder, values []any, v any, style Style) []any {
	list, ok := v.([]any)
	if !ok || style == StyleInline {
		values = append(values, v)
		writeMarker(sb, len(values), style)
		return values
	}
	if len(list) == 0 {
		sb.WriteString("NULL")
		return values
	}
	for i, item := range list {
		if i > 0 {
			sb.WriteString(", ")
		}
		values = append(values, item)
		writeMarker(sb, len(values), style)
	}
	return values
}

func writeMarker(sb *strings.Builder, n int, style Style) {
	if style == StyleDollar {
		sb.WriteString("$" + strconv.Itoa(n))
		return
	}
	sb.WriteByte('?')
}

// scanSingleQuoted 작은따옴표 리터럴의 끝 다음 위치 반환
func scanSingleQuoted(sql string, start int) int {
	i := start + 1
	for i < len(sql) {
		if sql[i] == '\'' {
			if i+1 < len(sql) && sql[i+1] == '\'' {
				i += 2
				continue
			}
			return i + 1
		}
		i++
	}
	return len(sql)
}

// Lookup 점 표기 경로로 중첩 맵/슬라이스 탐색, 없으면 nil
func Lookup(source map[string]any, path string) any {
	var cur any = source
	for _, seg := range strings.Split(path, ".") {
		switch node := cur.(type) {
		case map[string]any:
			v, ok := node[seg]
			if !ok {
				return nil
			}
			cur = v
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil
			}
			cur = node[idx]
		default:
			return nil
		}
	}
	return cur
}

// Source 누적 결과로 플레이스홀더 해석용 맵 구성
// params 결과는 "params" 키, 데이터셋은 id 키에 {컬럼: 값 목록} 형태로 전치
func Source(results []types.StageResult) map[string]any {
	source := make(map[string]any, len(results))

	for _, r := range results {
		switch r.DataType {
		case types.DataTypeParams:
			params := make(map[string]any, len(r.Params))
			for k, v := range r.Params {
				params[k] = v
			}
			source["params"] = params
		case types.DataTypeArrayColumns:
			source[r.DatasetID.String()] = Columnar(r.Rows, r.Meta.Columns)
		}
	}

	return source
}

// Columnar 행 목록을 컬럼별 값 목록으로 전치, 없는 키는 nil로 채움
func Columnar(rows []types.Row, columns []string) map[string]any {
	keys := make([]string, 0, len(columns))
	seen := make(map[string]bool, len(columns))
	for _, c := range columns {
		if !seen[c] {
			seen[c] = true
			keys = append(keys, c)
		}
	}
	for _, row := range rows {
		for k := range row {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}

	out := make(map[string]any, len(keys))
	for _, k := range keys {
		col := make([]any, len(rows))
		for i, row := range rows {
			col[i] = row[k]
		}
		out[k] = col
	}
	return out
}
