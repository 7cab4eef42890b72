package sqlexec

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const clickHouseDateLayout = "2006-01-02 15:04:05"

// InlineClickHouse 리터럴 밖의 ? 를 ClickHouse 리터럴로 치환
func InlineClickHouse(query string, vars []any) (string, error) {
	if len(vars) == 0 {
		return query, nil
	}

	var sb strings.Builder
	next := 0
	var quote byte

	for i := 0; i < len(query); i++ {
		c := query[i]

		if quote != 0 {
			sb.WriteByte(c)
			switch {
			case c == '\\' && i+1 < len(query):
				i++
				sb.WriteByte(query[i])
			case c == quote:
				quote = 0
			}
			continue
		}

		switch c {
		case '\'', '"', '`':
			quote = c
			sb.WriteByte(c)
		case '?':
			if next >= len(vars) {
				return "", errors.Errorf("not enough variables for placeholders: %d given", len(vars))
			}
			sb.WriteString(ClickHouseLiteral(vars[next]))
			next++
		default:
			sb.WriteByte(c)
		}
	}

	if next != len(vars) {
		return "", errors.Errorf("placeholder count %d does not match %d variables", next, len(vars))
	}
	return sb.String(), nil
}

// ClickHouseLiteral 값을 ClickHouse 리터럴로 변환
func ClickHouseLiteral(v any) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case bool:
		if val {
			return "true"
		}
		return "false"
	case string:
		return quoteClickHouse(val)
	case []byte:
		return quoteClickHouse(string(val))
	case time.Time:
		return "'" + val.Format(clickHouseDateLayout) + "'"
	case json.Number:
		return val.String()
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return "NULL"
		}
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return ClickHouseLiteral(float64(val))
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", val)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		parts := make([]string, rv.Len())
		for i := range parts {
			parts[i] = ClickHouseLiteral(rv.Index(i).Interface())
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case reflect.Pointer:
		if rv.IsNil() {
			return "NULL"
		}
		return ClickHouseLiteral(rv.Elem().Interface())
	}

	return quoteClickHouse(fmt.Sprint(v))
}

func quoteClickHouse(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `'`, `\'`)
	return "'" + s + "'"
}
