// Package api HTTP API 서버
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/zamasskin/datashift/internal/api/handlers"
	"github.com/zamasskin/datashift/internal/api/middleware"
	"github.com/zamasskin/datashift/internal/services"
)

// HealthChecker 준비 상태 확인 대상
type HealthChecker interface {
	Health() error
}

// Store 핸들러가 사용하는 저장소 기능
type Store interface {
	handlers.MigrationStore
	handlers.RunStore
}

// Runner 핸들러가 사용하는 러너 기능
type Runner interface {
	handlers.RunLauncher
	handlers.RunCanceller
}

// Config 서버 의존성
type Config struct {
	Store     Store
	Runner    Runner
	Previewer handlers.Previewer
	Bus       services.MigrationEventBus
	Health    HealthChecker
	JWTSecret string
	Logger    *slog.Logger
}

// Server API 서버
type Server struct {
	router           *gin.Engine
	health           HealthChecker
	jwtSecret        []byte
	logger           *slog.Logger
	migrationHandler *handlers.MigrationHandler
	runHandler       *handlers.RunHandler
	startedAt        time.Time
}

// HealthStatus 헬스 상태
type HealthStatus struct {
	Status    string            `json:"status"`
	Uptime    string            `json:"uptime,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// NewServer 새 서버 생성
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		router:           gin.New(),
		health:           cfg.Health,
		jwtSecret:        []byte(cfg.JWTSecret),
		logger:           logger,
		migrationHandler: handlers.NewMigrationHandler(cfg.Store, cfg.Runner, cfg.Previewer, cfg.Bus, logger),
		runHandler:       handlers.NewRunHandler(cfg.Store, cfg.Runner, logger),
		startedAt:        time.Now(),
	}

	s.setupRoutes()
	return s
}

// setupRoutes 라우트 설정
func (s *Server) setupRoutes() {
	s.router.Use(gin.Recovery())
	s.router.Use(middleware.CORSMiddleware())
	s.router.Use(middleware.RequestIDMiddleware())

	// 헬스체크 (인증 불필요)
	s.router.GET("/health", s.healthz)
	s.router.GET("/ready", s.ready)

	v1 := s.router.Group("/api/v1")
	v1.Use(middleware.AuthMiddleware(s.jwtSecret))
	{
		migrations := v1.Group("/migrations")
		{
			migrations.POST("", s.migrationHandler.Create)
			migrations.GET("/:id", s.migrationHandler.Get)
			migrations.PUT("/:id", s.migrationHandler.Update)
			migrations.DELETE("/:id", s.migrationHandler.Delete)
			migrations.POST("/:id/run", s.migrationHandler.Run)
			migrations.POST("/:id/preview", s.migrationHandler.Preview)
		}

		// 외부 시스템 호출 (api 트리거)
		v1.POST("/hooks/migrations/:id/run", s.migrationHandler.Hook)

		runs := v1.Group("/runs")
		{
			runs.GET("/:id", s.runHandler.Get)
			runs.POST("/:id/stop", s.runHandler.Stop)
		}
	}
}

func (s *Server) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, HealthStatus{
		Status:    "healthy",
		Uptime:    time.Since(s.startedAt).Round(time.Second).String(),
		Timestamp: time.Now(),
	})
}

// ready 데이터베이스 연결 확인
func (s *Server) ready(c *gin.Context) {
	if s.health != nil {
		if err := s.health.Health(); err != nil {
			c.JSON(http.StatusServiceUnavailable, HealthStatus{
				Status:    "not ready",
				Timestamp: time.Now(),
				Checks:    map[string]string{"database": err.Error()},
			})
			return
		}
	}

	c.JSON(http.StatusOK, HealthStatus{
		Status:    "ready",
		Timestamp: time.Now(),
		Checks:    map[string]string{"database": "ok"},
	})
}

// Router 라우터 반환
func (s *Server) Router() *gin.Engine {
	return s.router
}

// ListenAndServe ctx가 끝나면 진행 중인 요청을 기다렸다가 종료
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("api server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("api server stopped")
	return nil
}
