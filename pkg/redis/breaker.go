package redis

import (
	"sync"
	"time"
)

type circuitState int

const (
	circuitClosed   circuitState = iota // 정상 동작
	circuitOpen                         // 차단
	circuitHalfOpen                     // 시험 연결
)

// breaker 연속 실패 시 호출을 차단하는 서킷 브레이커
type breaker struct {
	mu sync.Mutex

	failureThreshold int
	successThreshold int
	openTimeout      time.Duration

	current     circuitState
	failures    int
	successes   int
	lastFailure time.Time
	now         func() time.Time
}

func newBreaker(failureThreshold, successThreshold int, openTimeout time.Duration) *breaker {
	if failureThreshold <= 0 {
		failureThreshold = 5
	}
	if successThreshold <= 0 {
		successThreshold = 1
	}
	return &breaker{
		failureThreshold: failureThreshold,
		successThreshold: successThreshold,
		openTimeout:      openTimeout,
		now:              time.Now,
	}
}

func (b *breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.current {
	case circuitOpen:
		if b.now().Sub(b.lastFailure) > b.openTimeout {
			b.current = circuitHalfOpen
			return true
		}
		return false
	default:
		return true
	}
}

func (b *breaker) failure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	b.successes = 0
	b.lastFailure = b.now()

	if b.current == circuitHalfOpen || b.failures >= b.failureThreshold {
		b.current = circuitOpen
	}
}

func (b *breaker) success() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.current {
	case circuitHalfOpen:
		b.successes++
		if b.successes >= b.successThreshold {
			b.current = circuitClosed
			b.failures = 0
			b.successes = 0
		}
	case circuitClosed:
		b.failures = 0
	}
}

func (b *breaker) reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.current = circuitClosed
	b.failures = 0
	b.successes = 0
}

func (b *breaker) state() circuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}
