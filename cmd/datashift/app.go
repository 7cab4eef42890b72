package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/zamasskin/datashift/internal/services"
	"github.com/zamasskin/datashift/pkg/config"
	"github.com/zamasskin/datashift/pkg/database"
	"github.com/zamasskin/datashift/pkg/pipeline"
	"github.com/zamasskin/datashift/pkg/redis"
	"github.com/zamasskin/datashift/pkg/sqlexec"
	"github.com/zamasskin/datashift/pkg/stage"
)

// shutdownTimeout 종료 처리(실행 취소, 스케줄러 정지)에 허용하는 시간
const shutdownTimeout = 15 * time.Second

// app 명령들이 공유하는 구성 요소
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	db       *database.DB
	store    *database.Store
	executor *sqlexec.Executor
	engine   *pipeline.Engine
	runner   *services.MigrationRunner

	redis  *redis.Client
	kafka  *services.KafkaDispatcher
	closer []func() error
}

// loadConfig 설정 로드 후 플래그 적용
func loadConfig(cmd *cli.Command) (*config.Config, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return nil, err
	}
	if level := cmd.String("log-level"); level != "" {
		cfg.LogLevel = level
	}
	return cfg, nil
}

// newApp 데이터베이스 연결과 실행 파이프라인 구성
func newApp(cfg *config.Config) (*app, error) {
	logger := cfg.NewLogger(os.Stderr)
	slog.SetDefault(logger)

	db, err := database.New(&database.Config{
		Driver:   cfg.Database.Driver,
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		DBName:   cfg.Database.Name,
		Path:     cfg.Database.Path,
		Debug:    cfg.Database.Debug,
	})
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger, db: db}
	a.closer = append(a.closer, db.Close)

	if cfg.Database.AutoMigrate {
		if err := a.migrateSchema(); err != nil {
			_ = a.Close()
			return nil, err
		}
	}

	a.store = database.NewStore(db)
	a.executor = sqlexec.New(sqlexec.WithConnectTimeout(cfg.Executor.ConnectTimeout))
	a.engine = pipeline.New(stage.NewDispatcher(a.store, a.executor))

	var dispatchers []services.Dispatcher
	if cfg.Redis.Addr != "" {
		redisCfg := redis.DefaultConfig(cfg.Redis.Addr)
		redisCfg.Password = cfg.Redis.Password
		redisCfg.DB = cfg.Redis.DB
		redisCfg.Logger = logger
		a.redis = redis.New(redisCfg)
		a.closer = append(a.closer, a.redis.Close)
		dispatchers = append(dispatchers, services.NewRedisDispatcher(a.redis))
	}
	if len(cfg.Kafka.Brokers) > 0 {
		a.kafka = services.NewKafkaDispatcher(services.KafkaDispatcherConfig{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.Topic,
			Logger:  logger,
		})
		a.closer = append(a.closer, a.kafka.Close)
		dispatchers = append(dispatchers, a.kafka)
	}

	notifier := services.NewNotifier(a.store, services.NotifierConfig{
		Environment: cfg.Environment,
		Hostname:    config.Hostname(),
		Logger:      logger,
	}, dispatchers...)

	a.runner = services.NewMigrationRunner(services.RunnerConfig{
		Store:    a.store,
		Sources:  a.store,
		Engine:   a.engine,
		Saver:    a.executor,
		Reporter: notifier,
		Logger:   logger,
	})

	return a, nil
}

// migrateSchema MySQL은 내장 SQL 마이그레이션, 그 외는 AutoMigrate
func (a *app) migrateSchema() error {
	if a.db.Driver() == database.DriverMySQL {
		return a.db.RunMigrations()
	}
	a.logger.Info("applying schema with AutoMigrate", "driver", a.db.Driver())
	return a.db.Migrate()
}

// newEventBus Redis가 있으면 프로세스 간 이벤트 버스, 없으면 로컬 버스
func (a *app) newEventBus(ctx context.Context) services.MigrationEventBus {
	if a.redis == nil {
		return services.NewLocalEventBus()
	}

	bus := services.NewRedisEventBus(a.redis, a.logger)
	if err := bus.Start(ctx); err != nil {
		a.logger.Warn("failed to subscribe to migration events, using local bus", "error", err)
		return services.NewLocalEventBus()
	}
	a.closer = append(a.closer, bus.Stop)
	return bus
}

// cancelActive 중단 신호 처리: 이 프로세스가 실행 중인 run을 canceled로 표시
func (a *app) cancelActive() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if _, err := a.runner.CancelActive(ctx); err != nil {
		a.logger.Error("failed to cancel active runs", "error", err)
	}
}

// Close 역순으로 자원 정리
func (a *app) Close() error {
	var errs []error
	for i := len(a.closer) - 1; i >= 0; i-- {
		if err := a.closer[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closer = nil
	return errors.Join(errs...)
}
