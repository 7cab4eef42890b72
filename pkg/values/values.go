// Package values 행 값 비교 및 변환 헬퍼
package values

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// Equals 값 비교, 타입이 다르면 문자열로 비교
func Equals(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if reflect.TypeOf(a) != reflect.TypeOf(b) {
		if af, ok := ToFloat64(a); ok {
			if bf, ok := ToFloat64(b); ok {
				return af == bf
			}
		}
		return ToString(a) == ToString(b)
	}
	return reflect.DeepEqual(a, b)
}

// Compare 크기 비교 (-1, 0, 1), 숫자로 변환되지 않으면 문자열 비교
func Compare(a, b any) int {
	aFloat, aOk := ToFloat64(a)
	bFloat, bOk := ToFloat64(b)

	if !aOk || !bOk {
		return strings.Compare(ToString(a), ToString(b))
	}

	if aFloat < bFloat {
		return -1
	} else if aFloat > bFloat {
		return 1
	}
	return 0
}

// ToFloat64 숫자로 변환
func ToFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// ToString 문자열로 변환
func ToString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case []byte:
		return string(s)
	case float64:
		if math.IsInf(s, 0) || math.IsNaN(s) {
			return fmt.Sprintf("%v", s)
		}
		return strconv.FormatFloat(s, 'f', -1, 64)
	case time.Time:
		return s.Format("2006-01-02 15:04:05")
	}
	return fmt.Sprintf("%v", v)
}

// Truthy 값의 참/거짓 판정 (nil, false, 0, "" 는 거짓)
func Truthy(v any) bool {
	switch b := v.(type) {
	case nil:
		return false
	case bool:
		return b
	case string:
		return b != ""
	}
	if f, ok := ToFloat64(v); ok {
		return f != 0 && !math.IsNaN(f)
	}
	return true
}
