package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"

	"github.com/segmentio/kafka-go"

	"github.com/zamasskin/datashift/pkg/models"
)

// UserChannelPrefix 사용자별 알림 채널 접두사
const UserChannelPrefix = "datashift:events:user:"

// Publisher Redis pub/sub 발행
type Publisher interface {
	Publish(ctx context.Context, channel string, message any) error
}

// RedisDispatcher 사용자 채널로 알림 발행
type RedisDispatcher struct {
	publisher Publisher
}

// NewRedisDispatcher RedisDispatcher 생성
func NewRedisDispatcher(publisher Publisher) *RedisDispatcher {
	return &RedisDispatcher{publisher: publisher}
}

// Dispatch 이벤트마다 datashift:events:user:<id> 로 발행
func (d *RedisDispatcher) Dispatch(ctx context.Context, events []models.Event) error {
	var errs []error
	for _, ev := range events {
		if err := d.publisher.Publish(ctx, UserChannelPrefix+ev.UserID, ev); err != nil {
			errs = append(errs, fmt.Errorf("user %s: %w", ev.UserID, err))
		}
	}
	return errors.Join(errs...)
}

// messageWriter kafka.Writer 중 사용하는 부분
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaDispatcher 알림을 Kafka 토픽으로 전송
type KafkaDispatcher struct {
	brokers []string
	topic   string
	writer  messageWriter
	logger  *slog.Logger
}

// KafkaDispatcherConfig KafkaDispatcher 설정
type KafkaDispatcherConfig struct {
	Brokers []string
	Topic   string
	Logger  *slog.Logger
}

// NewKafkaDispatcher KafkaDispatcher 생성
func NewKafkaDispatcher(cfg KafkaDispatcherConfig) *KafkaDispatcher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &KafkaDispatcher{
		brokers: cfg.Brokers,
		topic:   cfg.Topic,
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(cfg.Brokers...),
			Topic:                  cfg.Topic,
			Balancer:               &kafka.Hash{},
			AllowAutoTopicCreation: true,
		},
		logger: logger.With("component", "kafka"),
	}
}

// Dispatch 사용자 id를 키로 이벤트 JSON 전송
func (d *KafkaDispatcher) Dispatch(ctx context.Context, events []models.Event) error {
	if len(events) == 0 {
		return nil
	}

	msgs := make([]kafka.Message, 0, len(events))
	for _, ev := range events {
		value, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("failed to marshal event: %w", err)
		}
		msgs = append(msgs, kafka.Message{Key: []byte(ev.UserID), Value: value})
	}

	if err := d.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("failed to write events to %s: %w", d.topic, err)
	}
	return nil
}

// EnsureTopic 토픽이 없으면 컨트롤러 브로커에서 생성
func (d *KafkaDispatcher) EnsureTopic(ctx context.Context, partitions, replication int) error {
	if len(d.brokers) == 0 {
		return fmt.Errorf("no kafka brokers configured")
	}

	conn, err := kafka.DialContext(ctx, "tcp", d.brokers[0])
	if err != nil {
		return fmt.Errorf("failed to connect to kafka: %w", err)
	}
	defer func() { _ = conn.Close() }()

	if parts, err := conn.ReadPartitions(d.topic); err == nil && len(parts) > 0 {
		return nil
	}

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("failed to get controller: %w", err)
	}

	controllerConn, err := kafka.DialContext(ctx, "tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		return fmt.Errorf("failed to connect to controller: %w", err)
	}
	defer func() { _ = controllerConn.Close() }()

	err = controllerConn.CreateTopics(kafka.TopicConfig{
		Topic:             d.topic,
		NumPartitions:     partitions,
		ReplicationFactor: replication,
	})
	if err != nil {
		return fmt.Errorf("failed to create topic: %w", err)
	}

	d.logger.Info("kafka topic created", "topic", d.topic)
	return nil
}

// Close writer 종료
func (d *KafkaDispatcher) Close() error {
	return d.writer.Close()
}
