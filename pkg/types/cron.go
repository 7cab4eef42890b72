package types

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// CronType 스케줄 설정 종류
type CronType string

const (
	CronInterval     CronType = "interval"
	CronIntervalTime CronType = "interval-time"
	CronTime         CronType = "time"
)

// CronConfig 마이그레이션 스케줄 설정
// nil이면 스케줄 없음. Days는 0(일요일)~6(토요일), 비어 있으면 매일
type CronConfig struct {
	Type CronType `json:"type"`

	// interval
	Count int    `json:"count,omitempty"`
	Units string `json:"units,omitempty"` // s, m, h

	// interval-time
	TimeUnits int    `json:"timeUnits,omitempty"` // 분 단위 주기
	TimeStart string `json:"timeStart,omitempty"` // HH:mm
	TimeEnd   string `json:"timeEnd,omitempty"`   // HH:mm

	// time
	Time string `json:"time,omitempty"` // HH:mm

	Days []int `json:"days,omitempty"`
}

// Period interval/interval-time 주기
func (c *CronConfig) Period() (time.Duration, error) {
	switch c.Type {
	case CronInterval:
		if c.Count <= 0 {
			return 0, fmt.Errorf("interval count must be positive: %d", c.Count)
		}
		var unit time.Duration
		switch c.Units {
		case "s":
			unit = time.Second
		case "m":
			unit = time.Minute
		case "h":
			unit = time.Hour
		default:
			return 0, fmt.Errorf("unknown interval units: %q", c.Units)
		}
		return time.Duration(c.Count) * unit, nil
	case CronIntervalTime:
		if c.TimeUnits <= 0 {
			return 0, fmt.Errorf("interval-time timeUnits must be positive: %d", c.TimeUnits)
		}
		return time.Duration(c.TimeUnits) * time.Minute, nil
	default:
		return 0, fmt.Errorf("cron type %q has no fixed period", c.Type)
	}
}

// DayAllowed 요일 허용 여부
func (c *CronConfig) DayAllowed(day time.Weekday) bool {
	if len(c.Days) == 0 {
		return true
	}
	for _, d := range c.Days {
		if d == int(day) {
			return true
		}
	}
	return false
}

// Validate 설정 검증
func (c *CronConfig) Validate() error {
	for _, d := range c.Days {
		if d < 0 || d > 6 {
			return fmt.Errorf("invalid day of week: %d", d)
		}
	}

	switch c.Type {
	case CronInterval:
		_, err := c.Period()
		return err
	case CronIntervalTime:
		if _, err := c.Period(); err != nil {
			return err
		}
		if _, err := ParseClock(c.TimeStart); err != nil {
			return fmt.Errorf("timeStart: %w", err)
		}
		if _, err := ParseClock(c.TimeEnd); err != nil {
			return fmt.Errorf("timeEnd: %w", err)
		}
		return nil
	case CronTime:
		if _, err := ParseClock(c.Time); err != nil {
			return fmt.Errorf("time: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("unknown cron type: %q", c.Type)
	}
}

// ParseClock "HH:mm" 또는 "HH:mm:ss"를 자정 기준 오프셋으로 변환
func ParseClock(s string) (time.Duration, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid clock value: %q", s)
	}

	limits := []int{23, 59, 59}
	units := []time.Duration{time.Hour, time.Minute, time.Second}

	var total time.Duration
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || n > limits[i] {
			return 0, fmt.Errorf("invalid clock value: %q", s)
		}
		total += time.Duration(n) * units[i]
	}
	return total, nil
}
