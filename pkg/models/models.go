package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	"github.com/zamasskin/datashift/pkg/types"
)

// DataSource 데이터 소스 모델
type DataSource struct {
	ID        int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	Name      string         `gorm:"size:255;not null" json:"name"`
	Type      string         `gorm:"size:32;not null" json:"type"`
	Config    datatypes.JSON `gorm:"not null" json:"config"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// TableName 테이블 이름
func (DataSource) TableName() string {
	return "data_sources"
}

// ToType 실행기에서 쓰는 형태로 변환
func (d *DataSource) ToType() (*types.DataSource, error) {
	cfg := map[string]any{}
	if err := decodeJSON(d.Config, &cfg); err != nil {
		return nil, err
	}
	return &types.DataSource{ID: d.ID, Name: d.Name, Type: types.SourceType(d.Type), Config: cfg}, nil
}

// Migration 마이그레이션 정의
type Migration struct {
	ID             int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	Name           string         `gorm:"size:255;not null" json:"name"`
	FetchConfigs   datatypes.JSON `gorm:"not null" json:"fetchConfigs"`
	SaveMappings   datatypes.JSON `gorm:"not null" json:"saveMappings"`
	Params         datatypes.JSON `gorm:"not null" json:"params"`
	CronExpression datatypes.JSON `gorm:"not null" json:"cronExpression"`
	IsActive       bool           `gorm:"default:true;index" json:"isActive"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}

// TableName 테이블 이름
func (Migration) TableName() string {
	return "migrations"
}

// Stages 스테이지 목록 디코딩
func (m *Migration) Stages() ([]types.FetchConfig, error) {
	var out []types.FetchConfig
	return out, decodeJSON(m.FetchConfigs, &out)
}

// Mappings 저장 매핑 디코딩
func (m *Migration) Mappings() ([]types.SaveMapping, error) {
	var out []types.SaveMapping
	return out, decodeJSON(m.SaveMappings, &out)
}

// ParamList 파라미터 정의 디코딩
func (m *Migration) ParamList() ([]types.Param, error) {
	var out []types.Param
	return out, decodeJSON(m.Params, &out)
}

// Cron 스케줄 설정, 없으면 nil
func (m *Migration) Cron() (*types.CronConfig, error) {
	var out *types.CronConfig
	return out, decodeJSON(m.CronExpression, &out)
}

// MigrationRun 마이그레이션 실행 기록
type MigrationRun struct {
	ID          int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	MigrationID int64          `gorm:"not null;index" json:"migrationId"`
	Status      string         `gorm:"size:16;not null;index" json:"status"`
	Progress    datatypes.JSON `gorm:"not null" json:"progress"`
	Trigger     string         `gorm:"column:trigger_type;size:16;not null" json:"trigger"`
	Error       string         `gorm:"type:text" json:"error,omitempty"`
	Owner       string         `gorm:"size:64;index" json:"-"`
	FinishedAt  *time.Time     `json:"finishedAt,omitempty"`
	Metadata    datatypes.JSON `gorm:"not null" json:"metadata"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

// TableName 테이블 이름
func (MigrationRun) TableName() string {
	return "migration_runs"
}

// ProgressList 진행률 디코딩
func (r *MigrationRun) ProgressList() ([]int, error) {
	var out []int
	return out, decodeJSON(r.Progress, &out)
}

// MigrationRunLock (migration, trigger) 당 하나의 실행 예약
type MigrationRunLock struct {
	MigrationID int64     `gorm:"primaryKey;autoIncrement:false"`
	Trigger     string    `gorm:"column:trigger_type;primaryKey;size:16"`
	RunID       int64     `gorm:"not null"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TableName 테이블 이름
func (MigrationRunLock) TableName() string {
	return "migration_run_locks"
}

// ErrorLog 실행 실패 기록
type ErrorLog struct {
	ID          int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	UUID        string         `gorm:"size:36;uniqueIndex;not null" json:"uuid"`
	Source      string         `gorm:"size:32;not null" json:"source"`
	Status      string         `gorm:"size:16;not null" json:"status"`
	Message     string         `gorm:"type:text" json:"message"`
	Code        string         `gorm:"size:64" json:"code,omitempty"`
	Stack       string         `gorm:"type:text" json:"stack,omitempty"`
	StackHash   string         `gorm:"size:64;index" json:"stackHash"`
	Trigger     string         `gorm:"column:trigger_type;size:16" json:"trigger"`
	MigrationID *int64         `gorm:"index" json:"migrationId,omitempty"`
	RunID       *int64         `json:"runId,omitempty"`
	Context     datatypes.JSON `gorm:"not null" json:"context"`
	Environment string         `gorm:"size:32" json:"environment"`
	Hostname    string         `gorm:"size:255" json:"hostname"`
	CreatedAt   time.Time      `json:"createdAt"`
}

// TableName 테이블 이름
func (ErrorLog) TableName() string {
	return "error_logs"
}

// Event 사용자 알림
type Event struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID      string    `gorm:"size:36;not null;index" json:"userId"`
	Type        string    `gorm:"size:16;not null" json:"type"`
	Title       string    `gorm:"size:255" json:"title"`
	Message     string    `gorm:"type:text" json:"message"`
	ErrorLogID  *int64    `json:"errorLogId,omitempty"`
	MigrationID *int64    `json:"migrationId,omitempty"`
	IsRead      bool      `gorm:"default:false" json:"isRead"`
	IsMuted     bool      `gorm:"default:false" json:"isMuted"`
	CreatedAt   time.Time `json:"createdAt"`
}

// TableName 테이블 이름
func (Event) TableName() string {
	return "events"
}

// User 사용자 모델
type User struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	Email     string    `gorm:"size:255;uniqueIndex;not null" json:"email"`
	Name      string    `gorm:"size:255" json:"name,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// TableName 테이블 이름
func (User) TableName() string {
	return "users"
}

// JSON 값을 JSON 컬럼으로 변환, nil도 "null"로 저장
func JSON(v any) (datatypes.JSON, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(data), nil
}

// MustJSON 변환 실패 시 panic
func MustJSON(v any) datatypes.JSON {
	data, err := JSON(v)
	if err != nil {
		panic(err)
	}
	return data
}

func decodeJSON(data datatypes.JSON, out any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, out)
}
