package sqlbuilder

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// DateTimeLayout 리터럴 날짜 형식 (YYYY-MM-DD HH:mm:ss)
const DateTimeLayout = "2006-01-02 15:04:05"

// Literal 값을 SQL 리터럴로 이스케이프
func Literal(v any) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case bool:
		if val {
			return "TRUE"
		}
		return "FALSE"
	case string:
		return "'" + strings.ReplaceAll(val, "'", "''") + "'"
	case []byte:
		return Literal(string(val))
	case time.Time:
		return "'" + val.Format(DateTimeLayout) + "'"
	case *time.Time:
		if val == nil {
			return "NULL"
		}
		return Literal(*val)
	case json.Number:
		if f, err := val.Float64(); err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return "NULL"
		}
		return val.String()
	case float64:
		return formatFloat(val)
	case float32:
		return formatFloat(float64(val))
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", val)
	default:
		return Literal(fmt.Sprint(val))
	}
}

func formatFloat(f float64) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "NULL"
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
