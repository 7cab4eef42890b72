package types

// SourceType 데이터 소스 엔진 종류
type SourceType string

const (
	SourceTypeMySQL      SourceType = "mysql"
	SourceTypePostgres   SourceType = "postgres"
	SourceTypeSQLite     SourceType = "sqlite"
	SourceTypeClickHouse SourceType = "clickhouse"
)

// IsValid 지원하는 엔진인지 확인
func (t SourceType) IsValid() bool {
	switch t {
	case SourceTypeMySQL, SourceTypePostgres, SourceTypeSQLite, SourceTypeClickHouse:
		return true
	}
	return false
}

// Trigger 실행 출처
type Trigger string

const (
	TriggerManual Trigger = "manual"
	TriggerCron   Trigger = "cron"
	TriggerAPI    Trigger = "api"
)

// IsValid 유효한 트리거인지 확인
func (t Trigger) IsValid() bool {
	return t == TriggerManual || t == TriggerCron || t == TriggerAPI
}

// RunStatus 마이그레이션 실행 상태
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusSuccess  RunStatus = "success"
	RunStatusFailed   RunStatus = "failed"
	RunStatusCanceled RunStatus = "canceled"
)

// IsTerminal 종료 상태 여부
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusSuccess || s == RunStatusFailed || s == RunStatusCanceled
}

// DataSource 스테이지와 저장 매핑이 참조하는 데이터 소스
type DataSource struct {
	ID     int64          `json:"id"`
	Name   string         `json:"name,omitempty"`
	Type   SourceType     `json:"type"`
	Config map[string]any `json:"config"`
}
