// Package config 서버/CLI 설정 로드
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config 전체 설정
type Config struct {
	Environment string `env:"DATASHIFT_ENV" envDefault:"development" yaml:"environment"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info" yaml:"log_level"`
	LogFormat   string `env:"LOG_FORMAT" envDefault:"text" yaml:"log_format"`

	Database  DatabaseConfig  `envPrefix:"DB_" yaml:"database"`
	Redis     RedisConfig     `envPrefix:"REDIS_" yaml:"redis"`
	Kafka     KafkaConfig     `envPrefix:"KAFKA_" yaml:"kafka"`
	Server    ServerConfig    `yaml:"server"`
	Executor  ExecutorConfig  `yaml:"executor"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
}

// DatabaseConfig 애플리케이션 DB
type DatabaseConfig struct {
	Driver      string `env:"DRIVER" envDefault:"mysql" yaml:"driver"`
	Host        string `env:"HOST" envDefault:"localhost" yaml:"host"`
	Port        int    `env:"PORT" envDefault:"3306" yaml:"port"`
	User        string `env:"USER" envDefault:"datashift" yaml:"user"`
	Password    string `env:"PASSWORD" envDefault:"" yaml:"password"`
	Name        string `env:"NAME" envDefault:"datashift" yaml:"name"`
	Path        string `env:"PATH" envDefault:"datashift.db" yaml:"path"` // sqlite
	AutoMigrate bool   `env:"AUTO_MIGRATE" envDefault:"false" yaml:"auto_migrate"`
	Debug       bool   `env:"DEBUG" envDefault:"false" yaml:"debug"`
}

// RedisConfig 비어 있으면 Redis 없이 동작
type RedisConfig struct {
	Addr     string `env:"ADDR" envDefault:"" yaml:"addr"`
	Password string `env:"PASSWORD" envDefault:"" yaml:"password"`
	DB       int    `env:"DB" envDefault:"0" yaml:"db"`
}

// KafkaConfig 알림 전송용 Kafka
type KafkaConfig struct {
	Brokers []string `env:"BROKERS" envSeparator:"," yaml:"brokers"`
	Topic   string   `env:"TOPIC" envDefault:"datashift.events" yaml:"topic"`
}

// ServerConfig HTTP 서버
type ServerConfig struct {
	Port      int    `env:"PORT" envDefault:"8080" yaml:"port"`
	JWTSecret string `env:"JWT_SECRET" envDefault:"" yaml:"jwt_secret"`
}

// ExecutorConfig SQL 실행기
type ExecutorConfig struct {
	ConnectTimeout time.Duration `env:"SQL_CONNECT_TIMEOUT" envDefault:"3s" yaml:"connect_timeout"`
}

// SchedulerConfig 스케줄러
type SchedulerConfig struct {
	// MaxTimerDelay 한 번에 기다릴 수 있는 최대 지연, 더 긴 주기는 나눠서 대기
	MaxTimerDelay time.Duration `env:"SCHEDULER_MAX_DELAY" envDefault:"2147483647ms" yaml:"max_timer_delay"`
}

// Load .env → 환경변수(기본값 포함) → YAML 파일 순으로 적용
// path가 비어 있거나 파일이 없으면 YAML은 건너뜀
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if path != "" {
		if err := cfg.overlay(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) overlay(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// Validate 설정 검증
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "mysql", "sqlite":
	default:
		return fmt.Errorf("unsupported database driver: %q", c.Database.Driver)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Executor.ConnectTimeout < 0 {
		return fmt.Errorf("invalid connect timeout: %s", c.Executor.ConnectTimeout)
	}
	if c.Scheduler.MaxTimerDelay <= 0 {
		return fmt.Errorf("invalid scheduler max delay: %s", c.Scheduler.MaxTimerDelay)
	}
	return nil
}

// Hostname 오류 기록용 호스트 이름
func Hostname() string {
	name, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return name
}
