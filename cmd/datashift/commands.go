package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/urfave/cli/v3"

	"github.com/zamasskin/datashift/internal/api"
	"github.com/zamasskin/datashift/internal/services"
	"github.com/zamasskin/datashift/pkg/database"
	"github.com/zamasskin/datashift/pkg/types"
)

// newServeCommand API 서버와 스케줄러 실행
func newServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the HTTP API and the migration scheduler",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "port",
				Usage: "API server port (overrides config)",
			},
			&cli.BoolFlag{
				Name:  "no-scheduler",
				Usage: "Serve the API without running scheduled migrations",
			},
			&cli.IntFlag{
				Name:  "kafka-partitions",
				Usage: "Create the notification topic with this many partitions when missing",
				Value: 0,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if port := int(cmd.Int("port")); port > 0 {
				cfg.Server.Port = port
			}
			if cfg.Server.JWTSecret == "" {
				return fmt.Errorf("JWT_SECRET is required for serve")
			}

			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			if partitions := int(cmd.Int("kafka-partitions")); partitions > 0 && a.kafka != nil {
				if err := a.kafka.EnsureTopic(ctx, partitions, 1); err != nil {
					a.logger.Warn("failed to ensure kafka topic", "error", err)
				}
			}

			bus := a.newEventBus(ctx)

			var scheduler *services.SchedulerService
			if !cmd.Bool("no-scheduler") {
				scheduler = services.NewSchedulerService(a.store, a.runner, bus, &services.SchedulerConfig{
					MaxTimerDelay: cfg.Scheduler.MaxTimerDelay,
					Logger:        a.logger,
				})
				if err := scheduler.Start(ctx); err != nil {
					return err
				}
			}

			server := api.NewServer(api.Config{
				Store:     a.store,
				Runner:    a.runner,
				Previewer: a.engine,
				Bus:       bus,
				Health:    a.db,
				JWTSecret: cfg.Server.JWTSecret,
				Logger:    a.logger,
			})

			serveErr := server.ListenAndServe(ctx, fmt.Sprintf(":%d", cfg.Server.Port))

			// 중단: 진행 중인 run 취소 → 스케줄러 정지 → 백그라운드 실행 종료 대기
			a.logger.Info("shutting down")
			a.cancelActive()
			if scheduler != nil {
				stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				if err := scheduler.Stop(stopCtx); err != nil {
					a.logger.Error("failed to stop scheduler", "error", err)
				}
				cancel()
			}
			a.runner.Wait()

			return serveErr
		},
	}
}

// newRunCommand 마이그레이션 한 번 실행
func newRunCommand() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "Run a migration once and print the outcome",
		ArgsUsage: "<migration-id>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "trigger",
				Usage: "manual or api",
				Value: string(types.TriggerManual),
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 1 {
				return fmt.Errorf("expected exactly one migration id")
			}
			id, err := strconv.ParseInt(cmd.Args().First(), 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid migration id: %q", cmd.Args().First())
			}

			trigger := types.Trigger(cmd.String("trigger"))
			if trigger != types.TriggerManual && trigger != types.TriggerAPI {
				return fmt.Errorf("trigger must be manual or api: %q", trigger)
			}

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			outcome, runErr := a.runner.RunByID(ctx, id, trigger)
			if ctx.Err() != nil {
				a.cancelActive()
			}
			if outcome != nil {
				enc := json.NewEncoder(cmd.Root().Writer)
				enc.SetIndent("", "  ")
				if err := enc.Encode(outcome); err != nil {
					return err
				}
			}
			return runErr
		},
	}
}

// newDBCommand 애플리케이션 DB 스키마 관리
func newDBCommand() *cli.Command {
	return &cli.Command{
		Name:  "db",
		Usage: "Manage the application database schema",
		Commands: []*cli.Command{
			{
				Name:  "migrate",
				Usage: "Apply schema migrations (embedded SQL for MySQL, AutoMigrate for SQLite)",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return withDB(cmd, func(a *app) error {
						return a.migrateSchema()
					})
				},
			},
			{
				Name:  "rollback",
				Usage: "Roll back embedded SQL migrations (MySQL only)",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "steps", Usage: "number of migrations to roll back", Value: 1},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					steps := int(cmd.Int("steps"))
					if steps <= 0 {
						return fmt.Errorf("steps must be positive: %d", steps)
					}
					return withDB(cmd, func(a *app) error {
						return a.db.MigrateDown(steps)
					})
				},
			},
			{
				Name:  "version",
				Usage: "Print the current schema migration version (MySQL only)",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return withDB(cmd, func(a *app) error {
						v, dirty, err := a.db.MigrationVersion()
						if err != nil {
							return err
						}
						fmt.Fprintf(cmd.Root().Writer, "version %d (dirty: %t)\n", v, dirty)
						return nil
					})
				},
			},
		},
	}
}

func withDB(cmd *cli.Command, fn func(a *app) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	// 스키마 명령은 AUTO_MIGRATE와 무관하게 명시적으로만 적용
	cfg.Database.AutoMigrate = false

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	if err := fn(a); err != nil {
		if a.db.Driver() != database.DriverMySQL {
			return fmt.Errorf("%s: %w", a.db.Driver(), err)
		}
		return err
	}
	return nil
}
