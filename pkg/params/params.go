// Package params 실행 파라미터를 평탄한 값 맵으로 변환
package params

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jinzhu/now"

	"github.com/zamasskin/datashift/pkg/types"
)

// DateLayout 날짜 파라미터 출력 형식
const DateLayout = "2006-01-02 15:04:05"

// Resolve 파라미터 목록을 {key: 값} 맵으로 변환
// 실행 시작 시 한 번만 호출하며 결과 맵은 이후 변경하지 않음
func Resolve(list []types.Param, base time.Time) (map[string]any, error) {
	out := make(map[string]any, len(list))

	for _, p := range list {
		if p.Key == "" {
			return nil, fmt.Errorf("param key is required")
		}

		v, err := resolveOne(p, base)
		if err != nil {
			return nil, fmt.Errorf("param %s: %w", p.Key, err)
		}
		out[p.Key] = v
	}

	return out, nil
}

func resolveOne(p types.Param, base time.Time) (any, error) {
	switch p.Type {
	case types.ParamTypeString:
		if p.Value == nil {
			return "", nil
		}
		if s, ok := p.Value.(string); ok {
			return s, nil
		}
		return fmt.Sprint(p.Value), nil
	case types.ParamTypeNumber:
		return toNumber(p.Value)
	case types.ParamTypeBoolean:
		return toBool(p.Value)
	case types.ParamTypeDate:
		dv := p.Date
		if dv == nil {
			// value에 날짜 정의가 직접 들어온 경우
			raw, err := json.Marshal(p.Value)
			if err != nil {
				return nil, err
			}
			dv = &types.DateValue{}
			if err := json.Unmarshal(raw, dv); err != nil {
				return nil, fmt.Errorf("invalid date value: %w", err)
			}
		}
		t, err := ResolveDate(dv, base)
		if err != nil {
			return nil, err
		}
		return t.Format(DateLayout), nil
	default:
		return nil, fmt.Errorf("unknown param type %q", p.Type)
	}
}

// ResolveDate 날짜 정의를 base 기준으로 계산
func ResolveDate(dv *types.DateValue, base time.Time) (time.Time, error) {
	switch dv.Type {
	case types.DateAdd, types.DateSubtract:
		sign := 1
		if dv.Type == types.DateSubtract {
			sign = -1
		}
		t := base
		for _, op := range dv.Ops {
			var err error
			t, err = shift(t, op.Unit, sign*op.Amount)
			if err != nil {
				return time.Time{}, err
			}
		}
		return t, nil
	case types.DateStartOf, types.DateEndOf:
		offset := 0
		switch dv.Position {
		case "", types.PositionCurrent:
		case types.PositionNext:
			offset = 1
		case types.PositionPrevious:
			offset = -1
		default:
			return time.Time{}, fmt.Errorf("unknown date position %q", dv.Position)
		}
		// 현재 구간의 시작에서 이동해야 월말 넘침이 없음
		t, err := boundary(base, dv.Unit, true)
		if err != nil {
			return time.Time{}, err
		}
		if offset != 0 {
			if t, err = shift(t, dv.Unit, offset); err != nil {
				return time.Time{}, err
			}
		}
		return boundary(t, dv.Unit, dv.Type == types.DateStartOf)
	case types.DateExact:
		return parseExact(dv.Value, base)
	default:
		return time.Time{}, fmt.Errorf("unknown date type %q", dv.Type)
	}
}

func normalizeUnit(unit string) string {
	u := strings.ToLower(strings.TrimSpace(unit))
	return strings.TrimSuffix(u, "s")
}

func shift(t time.Time, unit string, amount int) (time.Time, error) {
	switch normalizeUnit(unit) {
	case "second":
		return t.Add(time.Duration(amount) * time.Second), nil
	case "minute":
		return t.Add(time.Duration(amount) * time.Minute), nil
	case "hour":
		return t.Add(time.Duration(amount) * time.Hour), nil
	case "day":
		return t.AddDate(0, 0, amount), nil
	case "week":
		return t.AddDate(0, 0, 7*amount), nil
	case "month":
		return addMonths(t, amount), nil
	case "quarter":
		return addMonths(t, 3*amount), nil
	case "year":
		return addMonths(t, 12*amount), nil
	default:
		return time.Time{}, fmt.Errorf("unknown date unit %q", unit)
	}
}

// addMonths 월 단위 이동, 대상 월에 없는 날짜는 그 달 마지막 날로 맞춤 (1/31 + 1개월 = 2/28)
func addMonths(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(months), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	if last := first.AddDate(0, 1, -1).Day(); d > last {
		d = last
	}
	return first.AddDate(0, 0, d-1)
}

func boundary(t time.Time, unit string, start bool) (time.Time, error) {
	n := now.With(t)
	switch normalizeUnit(unit) {
	case "minute":
		if start {
			return n.BeginningOfMinute(), nil
		}
		return n.EndOfMinute(), nil
	case "hour":
		if start {
			return n.BeginningOfHour(), nil
		}
		return n.EndOfHour(), nil
	case "day":
		if start {
			return n.BeginningOfDay(), nil
		}
		return n.EndOfDay(), nil
	case "week":
		if start {
			return n.BeginningOfWeek(), nil
		}
		return n.EndOfWeek(), nil
	case "month":
		if start {
			return n.BeginningOfMonth(), nil
		}
		return n.EndOfMonth(), nil
	case "quarter":
		if start {
			return n.BeginningOfQuarter(), nil
		}
		return n.EndOfQuarter(), nil
	case "year":
		if start {
			return n.BeginningOfYear(), nil
		}
		return n.EndOfYear(), nil
	default:
		return time.Time{}, fmt.Errorf("unknown date unit %q", unit)
	}
}

func parseExact(value string, base time.Time) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("exact date value is empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	t, err := now.With(base).Parse(value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid exact date %q: %w", value, err)
	}
	return t, nil
}

func toNumber(v any) (any, error) {
	switch n := v.(type) {
	case nil:
		return float64(0), nil
	case float64, int, int64:
		return n, nil
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, nil
		}
		return n.Float64()
	case string:
		s := strings.TrimSpace(n)
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", n)
		}
		return f, nil
	default:
		return nil, fmt.Errorf("invalid number %v", v)
	}
}

func toBool(v any) (bool, error) {
	switch b := v.(type) {
	case nil:
		return false, nil
	case bool:
		return b, nil
	case string:
		return strconv.ParseBool(strings.TrimSpace(b))
	case float64:
		return b != 0, nil
	default:
		return false, fmt.Errorf("invalid boolean %v", v)
	}
}
