package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/zamasskin/datashift/pkg/models"
)

// MigrationChannel 마이그레이션 변경 이벤트 채널
const MigrationChannel = "datashift:migrations"

// MigrationEventType 마이그레이션 변경 종류
type MigrationEventType string

const (
	MigrationCreated MigrationEventType = "created"
	MigrationUpdated MigrationEventType = "updated"
	MigrationRemoved MigrationEventType = "removed"
)

// MigrationEvent 스케줄러가 구독하는 변경 이벤트
type MigrationEvent struct {
	Type      MigrationEventType `json:"type"`
	Migration models.Migration   `json:"migration"`
}

// MigrationEventBus 마이그레이션 변경 이벤트 발행/구독
type MigrationEventBus interface {
	Publish(ctx context.Context, event MigrationEvent) error
	Subscribe(handler func(MigrationEvent)) (unsubscribe func())
}

// LocalEventBus 프로세스 내부 이벤트 버스
type LocalEventBus struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[int]func(MigrationEvent)
}

// NewLocalEventBus LocalEventBus 생성
func NewLocalEventBus() *LocalEventBus {
	return &LocalEventBus{handlers: make(map[int]func(MigrationEvent))}
}

// Publish 등록된 핸들러를 동기 호출
func (b *LocalEventBus) Publish(_ context.Context, event MigrationEvent) error {
	b.deliver(event)
	return nil
}

func (b *LocalEventBus) deliver(event MigrationEvent) {
	b.mu.RLock()
	handlers := make([]func(MigrationEvent), 0, len(b.handlers))
	for _, h := range b.handlers {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(event)
	}
}

// Subscribe 핸들러 등록
func (b *LocalEventBus) Subscribe(handler func(MigrationEvent)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.handlers[id] = handler

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.handlers, id)
	}
}

// PubSub Redis 발행/구독 클라이언트
type PubSub interface {
	Publisher
	Subscribe(ctx context.Context, channel string, handler func(payload []byte)) error
	Unsubscribe(channel string) error
}

// RedisEventBus 여러 프로세스가 같은 이벤트를 받도록 Redis 채널로 중계
type RedisEventBus struct {
	local  *LocalEventBus
	client PubSub
	logger *slog.Logger
}

// NewRedisEventBus RedisEventBus 생성
func NewRedisEventBus(client PubSub, logger *slog.Logger) *RedisEventBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisEventBus{
		local:  NewLocalEventBus(),
		client: client,
		logger: logger.With("component", "event_bus"),
	}
}

// Start 채널 구독 시작
func (b *RedisEventBus) Start(ctx context.Context) error {
	return b.client.Subscribe(ctx, MigrationChannel, b.receive)
}

func (b *RedisEventBus) receive(payload []byte) {
	var event MigrationEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		b.logger.Warn("invalid migration event", "error", err)
		return
	}
	b.local.deliver(event)
}

// Publish Redis로 발행, 실패하면 이 프로세스 안에서만 전달
func (b *RedisEventBus) Publish(ctx context.Context, event MigrationEvent) error {
	if err := b.client.Publish(ctx, MigrationChannel, event); err != nil {
		b.local.deliver(event)
		return fmt.Errorf("migration event delivered locally only: %w", err)
	}
	return nil
}

// Subscribe 핸들러 등록
func (b *RedisEventBus) Subscribe(handler func(MigrationEvent)) func() {
	return b.local.Subscribe(handler)
}

// Stop 채널 구독 해제
func (b *RedisEventBus) Stop() error {
	return b.client.Unsubscribe(MigrationChannel)
}
