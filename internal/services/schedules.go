package services

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/zamasskin/datashift/pkg/types"
)

// DefaultMaxTimerDelay 타이머 한 번의 최대 지연 (2^31-1 ms)
const DefaultMaxTimerDelay = time.Duration(1<<31-1) * time.Millisecond

// everySchedule 고정 지연 스케줄, cron.Every와 달리 초 단위로 자르지 않음
type everySchedule struct {
	delay time.Duration
}

func (s everySchedule) Next(t time.Time) time.Time {
	return t.Add(s.delay)
}

// timeOfDaySchedule 허용된 요일의 지정 시각마다
// 매 실행 후 현재 시각 기준으로 다음 시각을 다시 계산 (밀린 실행은 따라잡지 않음)
type timeOfDaySchedule struct {
	at   time.Duration
	days func(time.Weekday) bool
}

func (s timeOfDaySchedule) Next(t time.Time) time.Time {
	hours := int(s.at / time.Hour)
	minutes := int(s.at % time.Hour / time.Minute)
	seconds := int(s.at % time.Minute / time.Second)

	for offset := 0; offset <= 7; offset++ {
		candidate := time.Date(t.Year(), t.Month(), t.Day()+offset, hours, minutes, seconds, 0, t.Location())
		if candidate.After(t) && s.days(candidate.Weekday()) {
			return candidate
		}
	}
	// 허용 요일이 없으면 실행하지 않음
	return time.Time{}
}

// splitPeriod 최대 지연보다 긴 주기를 같은 크기의 n 조각으로 나눔
func splitPeriod(period, maxDelay time.Duration) (time.Duration, int) {
	if maxDelay <= 0 || period <= maxDelay {
		return period, 1
	}
	n := int((period + maxDelay - 1) / maxDelay)
	return period / time.Duration(n), n
}

// everyNth n번째 깨어날 때만 실행하는 Job
type everyNth struct {
	n     int64
	count atomic.Int64
	job   cron.Job
}

func (e *everyNth) Run() {
	if e.count.Add(1)%e.n == 0 {
		e.job.Run()
	}
}

// inWindow interval-time 실행 가능 여부: 요일과 [timeStart, timeEnd] 구간, 자정을 넘는 구간 허용
func inWindow(now time.Time, cfg *types.CronConfig) bool {
	if !cfg.DayAllowed(now.Weekday()) {
		return false
	}

	start, err := types.ParseClock(cfg.TimeStart)
	if err != nil {
		return false
	}
	end, err := types.ParseClock(cfg.TimeEnd)
	if err != nil {
		return false
	}

	clock := time.Duration(now.Hour())*time.Hour +
		time.Duration(now.Minute())*time.Minute +
		time.Duration(now.Second())*time.Second

	if start <= end {
		return clock >= start && clock <= end
	}
	return clock >= start || clock <= end
}

// buildSchedule 설정에 맞는 cron 스케줄과 Job 구성
func buildSchedule(cfg *types.CronConfig, maxDelay time.Duration, tick cron.Job) (cron.Schedule, cron.Job, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	switch cfg.Type {
	case types.CronInterval, types.CronIntervalTime:
		period, err := cfg.Period()
		if err != nil {
			return nil, nil, err
		}
		chunk, n := splitPeriod(period, maxDelay)
		if n == 1 {
			return everySchedule{delay: period}, tick, nil
		}
		return everySchedule{delay: chunk}, &everyNth{n: int64(n), job: tick}, nil
	default:
		at, err := types.ParseClock(cfg.Time)
		if err != nil {
			return nil, nil, err
		}
		return timeOfDaySchedule{at: at, days: cfg.DayAllowed}, tick, nil
	}
}

// cronLogger robfig/cron 로그를 slog로 전달
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append([]any{"error", err}, keysAndValues...)...)
}
