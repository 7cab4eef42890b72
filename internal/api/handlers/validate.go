package handlers

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"github.com/zamasskin/datashift/pkg/models"
	"github.com/zamasskin/datashift/pkg/types"
)

//go:embed schema/migration.json
var migrationSchemaJSON []byte

var (
	migrationSchemaOnce sync.Once
	migrationSchema     *gojsonschema.Schema
	migrationSchemaErr  error
)

// ValidationError 스키마 또는 의미 검증 실패, Details는 필드별 메시지
type ValidationError struct {
	Details map[string]string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("migration validation failed (%d errors)", len(e.Details))
}

// MigrationRequest 마이그레이션 생성/수정 요청
type MigrationRequest struct {
	Name           string              `json:"name"`
	IsActive       *bool               `json:"isActive"`
	FetchConfigs   []types.FetchConfig `json:"fetchConfigs"`
	SaveMappings   []types.SaveMapping `json:"saveMappings"`
	Params         []types.Param       `json:"params"`
	CronExpression *types.CronConfig   `json:"cronExpression"`
}

// ParseMigrationRequest JSON 스키마 검증 후 디코딩, 스테이지 id 중복과 스케줄 설정 확인
func ParseMigrationRequest(body []byte) (*MigrationRequest, error) {
	migrationSchemaOnce.Do(func() {
		migrationSchema, migrationSchemaErr = gojsonschema.NewSchema(gojsonschema.NewBytesLoader(migrationSchemaJSON))
	})
	if migrationSchemaErr != nil {
		return nil, fmt.Errorf("invalid migration schema: %w", migrationSchemaErr)
	}

	result, err := migrationSchema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return nil, &ValidationError{Details: map[string]string{"body": err.Error()}}
	}
	if !result.Valid() {
		details := make(map[string]string, len(result.Errors()))
		for _, e := range result.Errors() {
			details[errorField(e)] = e.Description()
		}
		return nil, &ValidationError{Details: details}
	}

	var req MigrationRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, &ValidationError{Details: map[string]string{"body": err.Error()}}
	}

	details := map[string]string{}
	seen := make(map[types.ID]bool, len(req.FetchConfigs))
	for i, stage := range req.FetchConfigs {
		if seen[stage.ID] {
			details[fmt.Sprintf("fetchConfigs.%d.id", i)] = fmt.Sprintf("duplicate stage id %q", stage.ID)
		}
		seen[stage.ID] = true
	}
	for i, mapping := range req.SaveMappings {
		if mapping.DatasetID != "" && !seen[mapping.DatasetID] {
			details[fmt.Sprintf("saveMappings.%d.datasetId", i)] = fmt.Sprintf("unknown dataset %q", mapping.DatasetID)
		}
	}
	if req.CronExpression != nil {
		if err := req.CronExpression.Validate(); err != nil {
			details["cronExpression"] = err.Error()
		}
	}
	if len(details) > 0 {
		return nil, &ValidationError{Details: details}
	}

	return &req, nil
}

// errorField required 오류는 상위 객체가 아닌 빠진 속성 경로로 보고
func errorField(e gojsonschema.ResultError) string {
	field := e.Field()
	if e.Type() != "required" {
		return field
	}
	property, ok := e.Details()["property"].(string)
	if !ok {
		return field
	}
	if field == "(root)" {
		return property
	}
	return field + "." + property
}

// Apply 요청 내용을 모델에 반영
func (r *MigrationRequest) Apply(m *models.Migration) error {
	stages := r.FetchConfigs
	if stages == nil {
		stages = []types.FetchConfig{}
	}
	mappings := r.SaveMappings
	if mappings == nil {
		mappings = []types.SaveMapping{}
	}
	params := r.Params
	if params == nil {
		params = []types.Param{}
	}

	var errs []error
	var err error

	m.Name = r.Name
	if m.FetchConfigs, err = models.JSON(stages); err != nil {
		errs = append(errs, err)
	}
	if m.SaveMappings, err = models.JSON(mappings); err != nil {
		errs = append(errs, err)
	}
	if m.Params, err = models.JSON(params); err != nil {
		errs = append(errs, err)
	}
	if m.CronExpression, err = models.JSON(r.CronExpression); err != nil {
		errs = append(errs, err)
	}

	m.IsActive = true
	if r.IsActive != nil {
		m.IsActive = *r.IsActive
	}
	return errors.Join(errs...)
}
