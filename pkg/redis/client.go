// Package redis 재연결과 서킷 브레이커를 갖춘 pub/sub 클라이언트
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrUnavailable 연결이 없거나 브레이커가 열림
var ErrUnavailable = errors.New("redis not available")

// ConnectionState Redis 연결 상태
type ConnectionState int

const (
	StateConnected ConnectionState = iota
	StateDisconnected
	StateReconnecting
)

func (s ConnectionState) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// Config 클라이언트 설정
type Config struct {
	Addr     string
	Password string
	DB       int

	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64

	FailureThreshold int
	SuccessThreshold int
	OpenTimeout      time.Duration

	HealthInterval time.Duration
	Logger         *slog.Logger
}

// DefaultConfig 기본 설정
func DefaultConfig(addr string) *Config {
	return &Config{
		Addr:              addr,
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
		FailureThreshold:  5,
		SuccessThreshold:  2,
		OpenTimeout:       30 * time.Second,
		HealthInterval:    5 * time.Second,
	}
}

// Client 장애 복구 기능이 있는 Redis 클라이언트
type Client struct {
	config  *Config
	client  *redis.Client
	logger  *slog.Logger
	breaker *breaker

	ctx    context.Context
	cancel context.CancelFunc

	stateMu   sync.RWMutex
	connState ConnectionState

	subMu         sync.Mutex
	subscriptions map[string]context.CancelFunc
}

// New 클라이언트 생성, 첫 연결이 실패해도 백그라운드에서 재연결
func New(config *Config) *Client {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		config: config,
		client: redis.NewClient(&redis.Options{
			Addr:         config.Addr,
			Password:     config.Password,
			DB:           config.DB,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		}),
		logger:        logger.With("component", "redis"),
		breaker:       newBreaker(config.FailureThreshold, config.SuccessThreshold, config.OpenTimeout),
		ctx:           ctx,
		cancel:        cancel,
		connState:     StateDisconnected,
		subscriptions: make(map[string]context.CancelFunc),
	}

	if err := c.ping(); err != nil {
		c.logger.Warn("initial connection failed", "addr", config.Addr, "error", err)
		go c.reconnectLoop()
	} else {
		c.setState(StateConnected)
	}

	go c.healthLoop()
	return c
}

func (c *Client) ping() error {
	ctx, cancel := context.WithTimeout(c.ctx, 5*time.Second)
	defer cancel()
	return c.client.Ping(ctx).Err()
}

func (c *Client) setState(state ConnectionState) {
	c.stateMu.Lock()
	old := c.connState
	c.connState = state
	c.stateMu.Unlock()

	if old != state {
		c.logger.Info("connection state changed", "from", old.String(), "to", state.String())
	}
}

// State 현재 연결 상태
func (c *Client) State() ConnectionState {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.connState
}

func (c *Client) nextBackoff(d time.Duration) time.Duration {
	d = time.Duration(float64(d) * c.config.BackoffMultiplier)
	if d > c.config.MaxBackoff {
		d = c.config.MaxBackoff
	}
	return d
}

func (c *Client) reconnectLoop() {
	c.setState(StateReconnecting)
	backoff := c.config.InitialBackoff

	for attempt := 1; ; attempt++ {
		err := c.ping()
		if err == nil {
			c.setState(StateConnected)
			c.breaker.reset()
			return
		}
		c.logger.Debug("reconnect failed", "attempt", attempt, "error", err)

		select {
		case <-c.ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff = c.nextBackoff(backoff)
	}
}

func (c *Client) healthLoop() {
	interval := c.config.HealthInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			if c.State() != StateConnected {
				continue
			}
			if err := c.ping(); err != nil {
				c.breaker.failure()
				c.setState(StateDisconnected)
				go c.reconnectLoop()
			}
		}
	}
}

// Publish 메시지를 JSON으로 발행
func (c *Client) Publish(ctx context.Context, channel string, message any) error {
	if !c.breaker.allow() || c.State() != StateConnected {
		return fmt.Errorf("%w for publish (state: %s)", ErrUnavailable, c.State())
	}

	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	if err := c.client.Publish(ctx, channel, data).Err(); err != nil {
		c.breaker.failure()
		return err
	}
	c.breaker.success()
	return nil
}

// Subscribe 채널 구독, 연결이 끊기면 자동 재구독
func (c *Client) Subscribe(ctx context.Context, channel string, handler func(payload []byte)) error {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	if _, exists := c.subscriptions[channel]; exists {
		return fmt.Errorf("already subscribed to channel: %s", channel)
	}

	subCtx, cancel := context.WithCancel(ctx)
	c.subscriptions[channel] = cancel
	go c.subscribeLoop(subCtx, channel, handler)
	return nil
}

func (c *Client) subscribeLoop(ctx context.Context, channel string, handler func([]byte)) {
	backoff := c.config.InitialBackoff

	for {
		for c.State() != StateConnected {
			select {
			case <-ctx.Done():
				return
			case <-c.ctx.Done():
				return
			case <-time.After(time.Second):
			}
		}

		pubsub := c.client.Subscribe(ctx, channel)
		ch := pubsub.Channel()

	receive:
		for {
			select {
			case <-ctx.Done():
				_ = pubsub.Close()
				return
			case <-c.ctx.Done():
				_ = pubsub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break receive
				}
				handler([]byte(msg.Payload))
				backoff = c.config.InitialBackoff
			}
		}

		_ = pubsub.Close()
		c.logger.Warn("subscription lost, resubscribing", "channel", channel)

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
			backoff = c.nextBackoff(backoff)
		}
	}
}

// Unsubscribe 구독 취소
func (c *Client) Unsubscribe(channel string) error {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	cancel, exists := c.subscriptions[channel]
	if !exists {
		return fmt.Errorf("not subscribed to channel: %s", channel)
	}
	cancel()
	delete(c.subscriptions, channel)
	return nil
}

// IsHealthy 연결 상태 체크
func (c *Client) IsHealthy() bool {
	return c.State() == StateConnected && c.breaker.state() != circuitOpen
}

// Close 클라이언트 종료
func (c *Client) Close() error {
	c.cancel()

	c.subMu.Lock()
	for _, cancel := range c.subscriptions {
		cancel()
	}
	c.subscriptions = make(map[string]context.CancelFunc)
	c.subMu.Unlock()

	return c.client.Close()
}
