package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	pkgerrors "github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zamasskin/datashift/pkg/models"
	"github.com/zamasskin/datashift/pkg/types"
)

type memoryNotificationStore struct {
	users  []string
	logs   []*models.ErrorLog
	events []models.Event
}

func (s *memoryNotificationStore) CreateErrorLog(_ context.Context, log *models.ErrorLog) error {
	log.ID = int64(len(s.logs) + 1)
	s.logs = append(s.logs, log)
	return nil
}

func (s *memoryNotificationStore) CreateEvents(_ context.Context, events []models.Event) error {
	s.events = append(s.events, events...)
	return nil
}

func (s *memoryNotificationStore) ListUserIDs(context.Context) ([]string, error) {
	return s.users, nil
}

type recordingDispatcher struct {
	batches [][]models.Event
	err     error
}

func (d *recordingDispatcher) Dispatch(_ context.Context, events []models.Event) error {
	d.batches = append(d.batches, events)
	return d.err
}

func TestReportFailure(t *testing.T) {
	store := &memoryNotificationStore{users: []string{"u1", "u2", "u3"}}
	broken := &recordingDispatcher{err: errors.New("offline")}
	ok := &recordingDispatcher{}
	n := NewNotifier(store, NotifierConfig{Environment: "production", Hostname: "worker-1"}, broken, ok)

	cause := &mysql.MySQLError{Number: 1146, Message: "Table 'shop.orders' doesn't exist"}
	entry, err := n.ReportFailure(context.Background(), FailureReport{
		Err:         withStack(fmt.Errorf("stage s1: %w", cause)),
		Trigger:     types.TriggerCron,
		MigrationID: 12,
		RunID:       34,
		Params:      map[string]any{"from": "2026-10-01 00:00:00"},
		Progress:    []int{50},
	})
	require.NoError(t, err)

	require.Len(t, store.logs, 1)
	assert.Same(t, entry, store.logs[0])
	assert.NotEmpty(t, entry.UUID)
	assert.Equal(t, "runner", entry.Source)
	assert.Equal(t, "open", entry.Status)
	assert.Equal(t, "mysql:1146", entry.Code)
	assert.Equal(t, "cron", entry.Trigger)
	assert.Equal(t, "production", entry.Environment)
	assert.Equal(t, "worker-1", entry.Hostname)
	assert.Contains(t, entry.Message, "doesn't exist")
	assert.Contains(t, entry.Stack, "TestReportFailure")
	assert.Len(t, entry.StackHash, 64)

	var errCtx struct {
		Params   map[string]any `json:"params"`
		Progress []int          `json:"progress"`
	}
	require.NoError(t, json.Unmarshal(entry.Context, &errCtx))
	assert.Equal(t, "2026-10-01 00:00:00", errCtx.Params["from"])
	assert.Equal(t, []int{50}, errCtx.Progress)

	require.Len(t, store.events, 3)
	for i, ev := range store.events {
		assert.Equal(t, store.users[i], ev.UserID)
		assert.Equal(t, "error", ev.Type)
		assert.Equal(t, "Migration #12 failed", ev.Title)
		require.NotNil(t, ev.ErrorLogID)
		assert.Equal(t, entry.ID, *ev.ErrorLogID)
		require.NotNil(t, ev.MigrationID)
		assert.Equal(t, int64(12), *ev.MigrationID)
	}

	// 전송 실패는 다른 전송을 막지 않음
	require.Len(t, broken.batches, 1)
	require.Len(t, ok.batches, 1)
	assert.Len(t, ok.batches[0], 3)
}

func TestReportFailureWithoutUsers(t *testing.T) {
	store := &memoryNotificationStore{}
	n := NewNotifier(store, NotifierConfig{})

	entry, err := n.ReportFailure(context.Background(), FailureReport{Err: errors.New("boom"), Trigger: types.TriggerManual})
	require.NoError(t, err)
	assert.Nil(t, entry.MigrationID)
	assert.Nil(t, entry.RunID)
	assert.Empty(t, entry.Code)
	assert.Empty(t, store.events)
}

func TestStackHashIsStableForSameError(t *testing.T) {
	err := pkgerrors.New("same")
	s1, h1 := stackOf(err)
	s2, h2 := stackOf(err)
	assert.Equal(t, s1, s2)
	assert.Equal(t, h1, h2)
}

func TestDriverCode(t *testing.T) {
	assert.Equal(t, "mysql:1062", driverCode(fmt.Errorf("wrap: %w", &mysql.MySQLError{Number: 1062})))
	assert.Equal(t, "postgres:42P01", driverCode(pkgerrors.Wrap(&pq.Error{Code: "42P01"}, "query")))
	assert.Empty(t, driverCode(errors.New("plain")))
}

func TestShortMessage(t *testing.T) {
	assert.Equal(t, "short", shortMessage(errors.New("short")))

	long := shortMessage(errors.New(strings.Repeat("x", 600)))
	assert.Len(t, long, 503)
	assert.True(t, strings.HasSuffix(long, "..."))
}

type fakePublisher struct {
	channels []string
	err      error
}

func (p *fakePublisher) Publish(_ context.Context, channel string, _ any) error {
	p.channels = append(p.channels, channel)
	return p.err
}

func TestRedisDispatcher(t *testing.T) {
	pub := &fakePublisher{}
	d := NewRedisDispatcher(pub)

	events := []models.Event{{UserID: "u1"}, {UserID: "u2"}}
	require.NoError(t, d.Dispatch(context.Background(), events))
	assert.Equal(t, []string{"datashift:events:user:u1", "datashift:events:user:u2"}, pub.channels)

	pub.err = errors.New("down")
	err := d.Dispatch(context.Background(), events)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "user u2")
}

type fakeWriter struct {
	msgs   []kafka.Message
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaDispatcher(t *testing.T) {
	d := NewKafkaDispatcher(KafkaDispatcherConfig{Brokers: []string{"localhost:9092"}, Topic: "datashift.events"})
	w := &fakeWriter{}
	d.writer = w

	require.NoError(t, d.Dispatch(context.Background(), nil))
	assert.Empty(t, w.msgs)

	require.NoError(t, d.Dispatch(context.Background(), []models.Event{{UserID: "u1", Type: "error", Title: "Migration #1 failed"}}))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "u1", string(w.msgs[0].Key))

	var ev models.Event
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &ev))
	assert.Equal(t, "Migration #1 failed", ev.Title)

	require.NoError(t, d.Close())
	assert.True(t, w.closed)

	empty := NewKafkaDispatcher(KafkaDispatcherConfig{})
	assert.Error(t, empty.EnsureTopic(context.Background(), 1, 1))
}
