package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/zamasskin/datashift/pkg/models"
	"github.com/zamasskin/datashift/pkg/types"
)

var (
	// ErrAlreadyRunning 같은 (migration, trigger) 실행이 진행 중
	ErrAlreadyRunning = errors.New("migration is already running")
	// ErrNotFound 레코드 없음
	ErrNotFound = errors.New("record not found")
)

// Store 마이그레이션/실행/알림 저장소
type Store struct {
	db *gorm.DB
}

// NewStore 저장소 생성
func NewStore(db *DB) *Store {
	return &Store{db: db.DB}
}

func notFound(err error, what string, id any) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s %v", ErrNotFound, what, id)
	}
	return err
}

// FindDataSource 데이터 소스 조회, 없으면 nil
func (s *Store) FindDataSource(ctx context.Context, id int64) (*types.DataSource, error) {
	var ds models.DataSource
	err := s.db.WithContext(ctx).Take(&ds, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load data source %d: %w", id, err)
	}
	return ds.ToType()
}

// CreateDataSource 데이터 소스 등록
func (s *Store) CreateDataSource(ctx context.Context, ds *models.DataSource) error {
	return s.db.WithContext(ctx).Create(ds).Error
}

// CreateMigration 마이그레이션 생성
func (s *Store) CreateMigration(ctx context.Context, m *models.Migration) error {
	return s.db.WithContext(ctx).Create(m).Error
}

// UpdateMigration 마이그레이션 전체 갱신
func (s *Store) UpdateMigration(ctx context.Context, m *models.Migration) error {
	if _, err := s.GetMigration(ctx, m.ID); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Model(&models.Migration{ID: m.ID}).
		Select("*").Omit("id", "created_at").Updates(m).Error
}

// DeleteMigration 마이그레이션 삭제
func (s *Store) DeleteMigration(ctx context.Context, id int64) error {
	res := s.db.WithContext(ctx).Delete(&models.Migration{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: migration %d", ErrNotFound, id)
	}
	return nil
}

// GetMigration 마이그레이션 조회
func (s *Store) GetMigration(ctx context.Context, id int64) (*models.Migration, error) {
	var m models.Migration
	if err := s.db.WithContext(ctx).Take(&m, id).Error; err != nil {
		return nil, notFound(err, "migration", id)
	}
	return &m, nil
}

// ListActiveMigrations 활성 마이그레이션 목록
func (s *Store) ListActiveMigrations(ctx context.Context) ([]models.Migration, error) {
	var out []models.Migration
	err := s.db.WithContext(ctx).Where("is_active = ?", true).Order("id").Find(&out).Error
	return out, err
}

// ReserveRun 실행 기록과 잠금을 한 트랜잭션으로 예약
// 잠금을 가진 실행이 더 이상 running이 아니면 조건부 갱신으로 인계
func (s *Store) ReserveRun(ctx context.Context, migrationID int64, trigger types.Trigger, owner string, metadata map[string]any) (*models.MigrationRun, error) {
	meta, err := models.JSON(metadata)
	if err != nil {
		return nil, err
	}

	run := &models.MigrationRun{
		MigrationID: migrationID,
		Status:      string(types.RunStatusRunning),
		Progress:    models.MustJSON([]int{}),
		Trigger:     string(trigger),
		Owner:       owner,
		Metadata:    meta,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var running int64
		err := tx.Model(&models.MigrationRun{}).
			Where("migration_id = ? AND trigger_type = ? AND status = ?", migrationID, string(trigger), types.RunStatusRunning).
			Count(&running).Error
		if err != nil {
			return err
		}
		if running > 0 {
			return ErrAlreadyRunning
		}

		var lock models.MigrationRunLock
		err = tx.Where("migration_id = ? AND trigger_type = ?", migrationID, string(trigger)).Take(&lock).Error
		hasLock := err == nil
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		if err := tx.Create(run).Error; err != nil {
			return err
		}

		if hasLock {
			res := tx.Model(&models.MigrationRunLock{}).
				Where("migration_id = ? AND trigger_type = ? AND run_id = ?", migrationID, string(trigger), lock.RunID).
				Update("run_id", run.ID)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return ErrAlreadyRunning
			}
			return nil
		}

		err = tx.Create(&models.MigrationRunLock{MigrationID: migrationID, Trigger: string(trigger), RunID: run.ID}).Error
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrAlreadyRunning
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return run, nil
}

// ReleaseRun 실행이 잡고 있는 잠금 해제
func (s *Store) ReleaseRun(ctx context.Context, migrationID int64, trigger types.Trigger, runID int64) error {
	return s.db.WithContext(ctx).
		Where("migration_id = ? AND trigger_type = ? AND run_id = ?", migrationID, string(trigger), runID).
		Delete(&models.MigrationRunLock{}).Error
}

// SaveProgress 진행률 저장
func (s *Store) SaveProgress(ctx context.Context, runID int64, progress []int) error {
	data, err := models.JSON(progress)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Model(&models.MigrationRun{}).Where("id = ?", runID).Update("progress", data).Error
}

// RunStatus 실행 상태 재조회
func (s *Store) RunStatus(ctx context.Context, runID int64) (types.RunStatus, error) {
	var run models.MigrationRun
	if err := s.db.WithContext(ctx).Select("status").Take(&run, runID).Error; err != nil {
		return "", notFound(err, "run", runID)
	}
	return types.RunStatus(run.Status), nil
}

// FinishRun running 상태인 실행만 종료 상태로 전환
func (s *Store) FinishRun(ctx context.Context, runID int64, status types.RunStatus, message string) error {
	now := time.Now()
	return s.db.WithContext(ctx).Model(&models.MigrationRun{}).
		Where("id = ? AND status = ?", runID, types.RunStatusRunning).
		Updates(map[string]any{"status": string(status), "error": message, "finished_at": &now}).Error
}

// RequestCancel 외부 중지 요청, 실제로 바뀌었는지 반환
func (s *Store) RequestCancel(ctx context.Context, runID int64) (bool, error) {
	now := time.Now()
	res := s.db.WithContext(ctx).Model(&models.MigrationRun{}).
		Where("id = ? AND status = ?", runID, types.RunStatusRunning).
		Updates(map[string]any{"status": string(types.RunStatusCanceled), "finished_at": &now})
	return res.RowsAffected > 0, res.Error
}

// CancelOwned owner 프로세스의 running 실행을 모두 canceled로
func (s *Store) CancelOwned(ctx context.Context, owner string) (int64, error) {
	now := time.Now()
	res := s.db.WithContext(ctx).Model(&models.MigrationRun{}).
		Where("owner = ? AND status = ?", owner, types.RunStatusRunning).
		Updates(map[string]any{"status": string(types.RunStatusCanceled), "finished_at": &now})
	return res.RowsAffected, res.Error
}

// CancelTrigger 해당 트리거의 running 실행을 모두 canceled로
func (s *Store) CancelTrigger(ctx context.Context, trigger types.Trigger) (int64, error) {
	now := time.Now()
	res := s.db.WithContext(ctx).Model(&models.MigrationRun{}).
		Where("trigger_type = ? AND status = ?", string(trigger), types.RunStatusRunning).
		Updates(map[string]any{"status": string(types.RunStatusCanceled), "finished_at": &now})
	return res.RowsAffected, res.Error
}

// HasRunning (migration, trigger) 실행 여부
func (s *Store) HasRunning(ctx context.Context, migrationID int64, trigger types.Trigger) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.MigrationRun{}).
		Where("migration_id = ? AND trigger_type = ? AND status = ?", migrationID, string(trigger), types.RunStatusRunning).
		Count(&count).Error
	return count > 0, err
}

// GetRun 실행 기록 조회
func (s *Store) GetRun(ctx context.Context, id int64) (*models.MigrationRun, error) {
	var run models.MigrationRun
	if err := s.db.WithContext(ctx).Take(&run, id).Error; err != nil {
		return nil, notFound(err, "run", id)
	}
	return &run, nil
}

// CreateErrorLog 오류 기록 저장
func (s *Store) CreateErrorLog(ctx context.Context, log *models.ErrorLog) error {
	return s.db.WithContext(ctx).Create(log).Error
}

// CreateEvents 사용자 알림 일괄 저장
func (s *Store) CreateEvents(ctx context.Context, events []models.Event) error {
	if len(events) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Create(&events).Error
}

// ListUserIDs 알림 대상 사용자 id
func (s *Store) ListUserIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).Model(&models.User{}).Order("id").Pluck("id", &ids).Error
	return ids, err
}

// CreateUser 사용자 등록
func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	return s.db.WithContext(ctx).Create(u).Error
}
