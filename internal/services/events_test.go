package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zamasskin/datashift/pkg/models"
)

// fakePubSub 채널별 핸들러를 메모리에 보관하는 Redis 대역
type fakePubSub struct {
	mu         sync.Mutex
	handlers   map[string]func([]byte)
	published  map[string][][]byte
	publishErr error
}

func newFakePubSub() *fakePubSub {
	return &fakePubSub{handlers: map[string]func([]byte){}, published: map[string][][]byte{}}
}

func (f *fakePubSub) Publish(_ context.Context, channel string, message any) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	payload, err := json.Marshal(message)
	if err != nil {
		return err
	}

	f.mu.Lock()
	f.published[channel] = append(f.published[channel], payload)
	handler := f.handlers[channel]
	f.mu.Unlock()

	if handler != nil {
		handler(payload)
	}
	return nil
}

func (f *fakePubSub) Subscribe(_ context.Context, channel string, handler func([]byte)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[channel] = handler
	return nil
}

func (f *fakePubSub) Unsubscribe(channel string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.handlers, channel)
	return nil
}

func TestLocalEventBus(t *testing.T) {
	bus := NewLocalEventBus()
	ctx := context.Background()

	var got []MigrationEvent
	unsubscribe := bus.Subscribe(func(e MigrationEvent) { got = append(got, e) })

	require.NoError(t, bus.Publish(ctx, MigrationEvent{Type: MigrationCreated, Migration: models.Migration{ID: 1}}))
	unsubscribe()
	require.NoError(t, bus.Publish(ctx, MigrationEvent{Type: MigrationRemoved, Migration: models.Migration{ID: 1}}))

	require.Len(t, got, 1)
	assert.Equal(t, MigrationCreated, got[0].Type)
}

func TestRedisEventBusRelaysThroughChannel(t *testing.T) {
	client := newFakePubSub()
	bus := NewRedisEventBus(client, nil)
	ctx := context.Background()
	require.NoError(t, bus.Start(ctx))

	var got []MigrationEvent
	bus.Subscribe(func(e MigrationEvent) { got = append(got, e) })

	m := models.Migration{ID: 5, Name: "orders", IsActive: true, CronExpression: models.MustJSON(nil)}
	require.NoError(t, bus.Publish(ctx, MigrationEvent{Type: MigrationUpdated, Migration: m}))

	require.Len(t, client.published[MigrationChannel], 1)
	require.Len(t, got, 1)
	assert.Equal(t, MigrationUpdated, got[0].Type)
	assert.Equal(t, int64(5), got[0].Migration.ID)
	assert.Equal(t, "orders", got[0].Migration.Name)

	// 잘못된 메시지는 무시
	bus.receive([]byte("not json"))
	assert.Len(t, got, 1)

	require.NoError(t, bus.Stop())
	assert.Empty(t, client.handlers)
}

func TestRedisEventBusFallsBackToLocal(t *testing.T) {
	client := newFakePubSub()
	client.publishErr = errors.New("redis unavailable")
	bus := NewRedisEventBus(client, nil)

	var got []MigrationEvent
	bus.Subscribe(func(e MigrationEvent) { got = append(got, e) })

	err := bus.Publish(context.Background(), MigrationEvent{Type: MigrationRemoved, Migration: models.Migration{ID: 3}})
	require.Error(t, err)
	assert.ErrorIs(t, err, client.publishErr)
	require.Len(t, got, 1)
	assert.Equal(t, int64(3), got[0].Migration.ID)
}
