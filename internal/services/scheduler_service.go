// Package services 마이그레이션 실행/스케줄/알림 서비스
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/robfig/cron/v3"

	"github.com/zamasskin/datashift/pkg/models"
	"github.com/zamasskin/datashift/pkg/types"
)

// ScheduleRunner 스케줄러가 사용하는 러너 기능
type ScheduleRunner interface {
	RunByID(ctx context.Context, id int64, trigger types.Trigger) (*Outcome, error)
	IsRunning(ctx context.Context, id int64, trigger types.Trigger) (bool, error)
}

// ScheduleStore 스케줄러가 사용하는 저장소 기능
type ScheduleStore interface {
	ListActiveMigrations(ctx context.Context) ([]models.Migration, error)
	CancelTrigger(ctx context.Context, trigger types.Trigger) (int64, error)
}

// SchedulerConfig 스케줄러 설정
type SchedulerConfig struct {
	MaxTimerDelay time.Duration
	Location      *time.Location
	Logger        *slog.Logger
}

// SchedulerService 마이그레이션마다 하나의 cron 항목 유지
type SchedulerService struct {
	store    ScheduleStore
	runner   ScheduleRunner
	bus      MigrationEventBus
	logger   *slog.Logger
	maxDelay time.Duration
	location *time.Location
	now      func() time.Time

	mu          sync.Mutex
	cron        *cron.Cron
	jobs        map[int64]cron.EntryID
	configs     map[int64]*types.CronConfig
	running     bool
	unsubscribe func()
	ctx         context.Context
	cancel      context.CancelFunc
}

// NewSchedulerService 새 스케줄러 서비스 생성
func NewSchedulerService(store ScheduleStore, runner ScheduleRunner, bus MigrationEventBus, cfg *SchedulerConfig) *SchedulerService {
	if cfg == nil {
		cfg = &SchedulerConfig{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxDelay := cfg.MaxTimerDelay
	if maxDelay <= 0 {
		maxDelay = DefaultMaxTimerDelay
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}

	s := &SchedulerService{
		store:    store,
		runner:   runner,
		bus:      bus,
		logger:   logger.With("component", "scheduler"),
		maxDelay: maxDelay,
		location: loc,
		now:      time.Now,
		jobs:     make(map[int64]cron.EntryID),
		configs:  make(map[int64]*types.CronConfig),
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.cron = s.newCron()
	return s
}

func (s *SchedulerService) newCron() *cron.Cron {
	log := cronLogger{logger: s.logger}
	return cron.New(
		cron.WithLocation(s.location),
		cron.WithLogger(log),
		cron.WithChain(cron.Recover(log)),
	)
}

// Start 활성 마이그레이션 로드 후 이벤트 구독과 cron 시작
func (s *SchedulerService) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.mu.Unlock()

	migrations, err := s.store.ListActiveMigrations(ctx)
	if err != nil {
		s.logger.Warn("failed to load schedules", "error", err)
	}
	for i := range migrations {
		if err := s.Apply(&migrations[i]); err != nil {
			s.logger.Warn("failed to schedule migration", "migration_id", migrations[i].ID, "error", err)
		}
	}

	if s.bus != nil {
		unsubscribe := s.bus.Subscribe(s.HandleEvent)
		s.mu.Lock()
		s.unsubscribe = unsubscribe
		s.mu.Unlock()
	}

	s.cron.Start()
	s.logger.Info("scheduler started", "active_schedules", s.Count())
	return nil
}

// Stop cron 실행 중인 run 취소, 모든 항목 제거, 캐시 초기화
func (s *SchedulerService) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	s.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}

	var errs []error
	if _, err := s.store.CancelTrigger(ctx, types.TriggerCron); err != nil {
		errs = append(errs, fmt.Errorf("failed to cancel cron runs: %w", err))
	}

	s.cancel()
	<-s.cron.Stop().Done()

	s.mu.Lock()
	for id, entryID := range s.jobs {
		s.cron.Remove(entryID)
		delete(s.jobs, id)
	}
	s.configs = make(map[int64]*types.CronConfig)
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.cron = s.newCron()
	s.mu.Unlock()

	s.logger.Info("scheduler stopped")
	return errors.Join(errs...)
}

// HandleEvent 생성/수정은 비교 후 재등록, 삭제는 제거
func (s *SchedulerService) HandleEvent(event MigrationEvent) {
	switch event.Type {
	case MigrationCreated, MigrationUpdated:
		if err := s.Apply(&event.Migration); err != nil {
			s.logger.Warn("failed to reschedule migration", "migration_id", event.Migration.ID, "error", err)
		}
	case MigrationRemoved:
		s.Remove(event.Migration.ID)
	}
}

// Apply 비활성이거나 스케줄이 없으면 제거, 설정이 같고 항목이 있으면 유지, 아니면 재등록
func (s *SchedulerService) Apply(m *models.Migration) error {
	cfg, err := m.Cron()

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.removeLocked(m.ID)
		return fmt.Errorf("invalid cron config: %w", err)
	}
	if !m.IsActive || cfg == nil {
		s.removeLocked(m.ID)
		return nil
	}

	if prev, ok := s.configs[m.ID]; ok && cmp.Equal(prev, cfg) {
		if _, scheduled := s.jobs[m.ID]; scheduled {
			return nil
		}
	}

	s.removeLocked(m.ID)

	id := m.ID
	// 건너뛰기는 tick에만 적용, 긴 주기의 조각 깨어남은 실행 중에도 계속 셈
	tick := cron.NewChain(cron.SkipIfStillRunning(cronLogger{logger: s.logger})).Then(cron.FuncJob(func() { s.tick(id, cfg) }))
	schedule, job, err := buildSchedule(cfg, s.maxDelay, tick)
	if err != nil {
		return err
	}

	s.jobs[id] = s.cron.Schedule(schedule, job)
	s.configs[id] = cfg
	s.logger.Info("migration scheduled", "migration_id", id, "type", cfg.Type)
	return nil
}

// Remove 항목 취소와 캐시 삭제
func (s *SchedulerService) Remove(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(id)
}

func (s *SchedulerService) removeLocked(id int64) {
	if entryID, exists := s.jobs[id]; exists {
		s.cron.Remove(entryID)
		delete(s.jobs, id)
		s.logger.Info("migration unscheduled", "migration_id", id)
	}
	delete(s.configs, id)
}

// tick 실행 조건 확인 후 cron 트리거로 실행, 오류는 로그만
func (s *SchedulerService) tick(id int64, cfg *types.CronConfig) {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	if cfg.Type == types.CronIntervalTime && !inWindow(s.now().In(s.location), cfg) {
		s.logger.Debug("outside schedule window, skipping", "migration_id", id)
		return
	}

	running, err := s.runner.IsRunning(ctx, id, types.TriggerCron)
	if err != nil {
		s.logger.Error("failed to check running state", "migration_id", id, "error", err)
		return
	}
	if running {
		s.logger.Debug("cron run already in progress, skipping", "migration_id", id)
		return
	}

	outcome, err := s.runner.RunByID(ctx, id, types.TriggerCron)
	switch {
	case errors.Is(err, ErrAlreadyRunning):
		s.logger.Debug("cron run already in progress, skipping", "migration_id", id)
	case err != nil:
		s.logger.Error("scheduled run failed", "migration_id", id, "error", err)
	case outcome.Cancelled:
		s.logger.Info("scheduled run canceled", "migration_id", id, "run_id", outcome.RunID)
	}
}

// Count 활성 스케줄 수
func (s *SchedulerService) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// ScheduleInfo 스케줄 정보
type ScheduleInfo struct {
	MigrationID int64      `json:"migration_id"`
	Type        string     `json:"type"`
	NextRunAt   *time.Time `json:"next_run_at,omitempty"`
	PrevRunAt   *time.Time `json:"prev_run_at,omitempty"`
}

// Info 마이그레이션의 스케줄 정보, 없으면 nil
func (s *SchedulerService) Info(id int64) *ScheduleInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	entryID, exists := s.jobs[id]
	if !exists {
		return nil
	}

	entry := s.cron.Entry(entryID)
	info := &ScheduleInfo{MigrationID: id, Type: string(s.configs[id].Type)}
	if !entry.Next.IsZero() {
		info.NextRunAt = &entry.Next
	}
	if !entry.Prev.IsZero() {
		info.PrevRunAt = &entry.Prev
	}
	return info
}
