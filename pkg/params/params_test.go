package params

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zamasskin/datashift/pkg/types"
)

var base = time.Date(2024, 5, 15, 13, 45, 30, 0, time.UTC) // 수요일

func TestResolvePrimitives(t *testing.T) {
	out, err := Resolve([]types.Param{
		{Key: "name", Type: types.ParamTypeString, Value: "x"},
		{Key: "limit", Type: types.ParamTypeNumber, Value: "10"},
		{Key: "ratio", Type: types.ParamTypeNumber, Value: 0.5},
		{Key: "on", Type: types.ParamTypeBoolean, Value: "true"},
	}, base)
	require.NoError(t, err)

	assert.Equal(t, map[string]any{
		"name":  "x",
		"limit": int64(10),
		"ratio": 0.5,
		"on":    true,
	}, out)
}

func TestResolveUnknownType(t *testing.T) {
	_, err := Resolve([]types.Param{{Key: "x", Type: "blob"}}, base)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown param type")
}

func TestResolveDate(t *testing.T) {
	tests := []struct {
		name     string
		value    types.DateValue
		expected string
	}{
		{"add", types.DateValue{Type: types.DateAdd, Ops: []types.DateOp{{Amount: 2, Unit: "days"}, {Amount: 1, Unit: "hour"}}}, "2024-05-17 14:45:30"},
		{"subtract", types.DateValue{Type: types.DateSubtract, Ops: []types.DateOp{{Amount: 1, Unit: "month"}}}, "2024-04-15 13:45:30"},
		{"start of day", types.DateValue{Type: types.DateStartOf, Unit: "day"}, "2024-05-15 00:00:00"},
		{"end of previous month", types.DateValue{Type: types.DateEndOf, Unit: "month", Position: types.PositionPrevious}, "2024-04-30 23:59:59"},
		{"start of next year", types.DateValue{Type: types.DateStartOf, Unit: "year", Position: types.PositionNext}, "2025-01-01 00:00:00"},
		{"start of week", types.DateValue{Type: types.DateStartOf, Unit: "week"}, "2024-05-12 00:00:00"},
		{"exact date", types.DateValue{Type: types.DateExact, Value: "2023-12-31"}, "2023-12-31 00:00:00"},
		{"exact rfc3339", types.DateValue{Type: types.DateExact, Value: "2023-12-31T08:30:00Z"}, "2023-12-31 08:30:00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			value := tt.value
			got, err := ResolveDate(&value, base)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got.Format(DateLayout))
		})
	}
}

func TestResolveDateCalendarBoundaries(t *testing.T) {
	var (
		jan31     = time.Date(2026, 1, 31, 13, 45, 30, 0, time.UTC)
		mar31     = time.Date(2026, 3, 31, 13, 45, 30, 0, time.UTC)
		leapMar31 = time.Date(2024, 3, 31, 13, 45, 30, 0, time.UTC)
		leapDay   = time.Date(2024, 2, 29, 13, 45, 30, 0, time.UTC)
		nov30     = time.Date(2024, 11, 30, 13, 45, 30, 0, time.UTC)
		sunday    = time.Date(2024, 5, 12, 9, 0, 0, 0, time.UTC)
		mar1      = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	)
	ops := func(n int, unit string) []types.DateOp { return []types.DateOp{{Amount: n, Unit: unit}} }

	tests := []struct {
		name     string
		base     time.Time
		value    types.DateValue
		expected string
	}{
		{"start of previous month from mar 31", mar31, types.DateValue{Type: types.DateStartOf, Unit: "month", Position: types.PositionPrevious}, "2026-02-01 00:00:00"},
		{"end of previous month from mar 31", mar31, types.DateValue{Type: types.DateEndOf, Unit: "month", Position: types.PositionPrevious}, "2026-02-28 23:59:59"},
		{"start of next month from jan 31", jan31, types.DateValue{Type: types.DateStartOf, Unit: "month", Position: types.PositionNext}, "2026-02-01 00:00:00"},
		{"end of next month from jan 31", jan31, types.DateValue{Type: types.DateEndOf, Unit: "month", Position: types.PositionNext}, "2026-02-28 23:59:59"},
		{"end of next quarter from jan 31", jan31, types.DateValue{Type: types.DateEndOf, Unit: "quarter", Position: types.PositionNext}, "2026-06-30 23:59:59"},
		{"start of previous quarter from leap day", leapDay, types.DateValue{Type: types.DateStartOf, Unit: "quarter", Position: types.PositionPrevious}, "2023-10-01 00:00:00"},
		{"end of current month on leap day", leapDay, types.DateValue{Type: types.DateEndOf, Unit: "month"}, "2024-02-29 23:59:59"},
		{"end of previous day from mar 1", mar1, types.DateValue{Type: types.DateEndOf, Unit: "day", Position: types.PositionPrevious}, "2024-02-29 23:59:59"},
		{"add month to jan 31", jan31, types.DateValue{Type: types.DateAdd, Ops: ops(1, "month")}, "2026-02-28 13:45:30"},
		{"add two months to jan 31", jan31, types.DateValue{Type: types.DateAdd, Ops: ops(2, "months")}, "2026-03-31 13:45:30"},
		{"add month then day to jan 31", jan31, types.DateValue{Type: types.DateAdd, Ops: []types.DateOp{{Amount: 1, Unit: "month"}, {Amount: 1, Unit: "day"}}}, "2026-03-01 13:45:30"},
		{"subtract month from mar 31", mar31, types.DateValue{Type: types.DateSubtract, Ops: ops(1, "month")}, "2026-02-28 13:45:30"},
		{"subtract month from leap mar 31", leapMar31, types.DateValue{Type: types.DateSubtract, Ops: ops(1, "month")}, "2024-02-29 13:45:30"},
		{"add quarter to nov 30", nov30, types.DateValue{Type: types.DateAdd, Ops: ops(1, "quarter")}, "2025-02-28 13:45:30"},
		{"add year to leap day", leapDay, types.DateValue{Type: types.DateAdd, Ops: ops(1, "year")}, "2025-02-28 13:45:30"},
		{"subtract four years from leap day", leapDay, types.DateValue{Type: types.DateSubtract, Ops: ops(4, "years")}, "2020-02-29 13:45:30"},
		{"start of week on sunday", sunday, types.DateValue{Type: types.DateStartOf, Unit: "week"}, "2024-05-12 00:00:00"},
		{"start of previous week on sunday", sunday, types.DateValue{Type: types.DateStartOf, Unit: "week", Position: types.PositionPrevious}, "2024-05-05 00:00:00"},
		{"end of week on sunday", sunday, types.DateValue{Type: types.DateEndOf, Unit: "week"}, "2024-05-18 23:59:59"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			value := tt.value
			got, err := ResolveDate(&value, tt.base)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got.Format(DateLayout))
		})
	}
}

func TestResolveDateParamFromValue(t *testing.T) {
	out, err := Resolve([]types.Param{{
		Key:   "since",
		Type:  types.ParamTypeDate,
		Value: map[string]any{"type": "startOf", "unit": "day", "position": "previous"},
	}}, base)
	require.NoError(t, err)
	assert.Equal(t, "2024-05-14 00:00:00", out["since"])
}

func TestResolveDateErrors(t *testing.T) {
	_, err := ResolveDate(&types.DateValue{Type: types.DateAdd, Ops: []types.DateOp{{Amount: 1, Unit: "fortnight"}}}, base)
	assert.Error(t, err)

	_, err = ResolveDate(&types.DateValue{Type: types.DateStartOf, Unit: "day", Position: "later"}, base)
	assert.Error(t, err)

	_, err = ResolveDate(&types.DateValue{Type: "relative"}, base)
	assert.Error(t, err)
}
