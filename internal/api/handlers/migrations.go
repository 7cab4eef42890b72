// Package handlers HTTP API 핸들러
package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/zamasskin/datashift/internal/api/middleware"
	"github.com/zamasskin/datashift/internal/services"
	"github.com/zamasskin/datashift/pkg/database"
	"github.com/zamasskin/datashift/pkg/models"
	"github.com/zamasskin/datashift/pkg/params"
	"github.com/zamasskin/datashift/pkg/stage"
	"github.com/zamasskin/datashift/pkg/types"
)

// MigrationStore 마이그레이션 저장소
type MigrationStore interface {
	CreateMigration(ctx context.Context, m *models.Migration) error
	UpdateMigration(ctx context.Context, m *models.Migration) error
	DeleteMigration(ctx context.Context, id int64) error
	GetMigration(ctx context.Context, id int64) (*models.Migration, error)
}

// RunLauncher 실행 예약 후 백그라운드 실행
type RunLauncher interface {
	LaunchByID(ctx context.Context, id int64, trigger types.Trigger) (*models.MigrationRun, error)
}

// Previewer 지정 스테이지까지 실행
type Previewer interface {
	Preview(ctx context.Context, stages []types.FetchConfig, initial []types.StageResult, stageID types.ID, hint stage.Hint) (types.StageResult, error)
}

// MigrationHandler 마이그레이션 API 핸들러
type MigrationHandler struct {
	store     MigrationStore
	runner    RunLauncher
	previewer Previewer
	bus       services.MigrationEventBus
	logger    *slog.Logger
}

// NewMigrationHandler 새 마이그레이션 핸들러 생성
func NewMigrationHandler(store MigrationStore, runner RunLauncher, previewer Previewer, bus services.MigrationEventBus, logger *slog.Logger) *MigrationHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &MigrationHandler{
		store:     store,
		runner:    runner,
		previewer: previewer,
		bus:       bus,
		logger:    logger.With("component", "api"),
	}
}

// RunResponse 실행 시작 응답
type RunResponse struct {
	RunID       int64  `json:"runId"`
	MigrationID int64  `json:"migrationId"`
	Status      string `json:"status"`
	Trigger     string `json:"trigger"`
}

// PreviewResponse 데이터셋 미리보기 응답
type PreviewResponse struct {
	DatasetID types.ID       `json:"datasetId"`
	Name      string         `json:"name"`
	Columns   []string       `json:"columns"`
	Rows      []types.Row    `json:"rows"`
	Params    map[string]any `json:"params,omitempty"`
	Page      int            `json:"page"`
	DataType  types.DataType `json:"dataType"`
}

// Create POST /api/v1/migrations
func (h *MigrationHandler) Create(c *gin.Context) {
	req, ok := h.bind(c)
	if !ok {
		return
	}

	m := &models.Migration{}
	if err := req.Apply(m); err != nil {
		middleware.ErrorResponse(c, http.StatusBadRequest, middleware.ErrCodeValidationFailed, err.Error())
		return
	}
	if err := h.store.CreateMigration(c.Request.Context(), m); err != nil {
		h.internalError(c, "failed to create migration", err)
		return
	}

	h.publish(c.Request.Context(), services.MigrationCreated, m)
	middleware.SuccessResponse(c, http.StatusCreated, m)
}

// Get GET /api/v1/migrations/:id
func (h *MigrationHandler) Get(c *gin.Context) {
	m, ok := h.load(c)
	if !ok {
		return
	}
	middleware.SuccessResponse(c, http.StatusOK, m)
}

// Update PUT /api/v1/migrations/:id
func (h *MigrationHandler) Update(c *gin.Context) {
	m, ok := h.load(c)
	if !ok {
		return
	}
	req, ok := h.bind(c)
	if !ok {
		return
	}

	if err := req.Apply(m); err != nil {
		middleware.ErrorResponse(c, http.StatusBadRequest, middleware.ErrCodeValidationFailed, err.Error())
		return
	}
	if err := h.store.UpdateMigration(c.Request.Context(), m); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			middleware.ErrorResponse(c, http.StatusNotFound, middleware.ErrCodeNotFound, "Migration not found")
			return
		}
		h.internalError(c, "failed to update migration", err)
		return
	}

	h.publish(c.Request.Context(), services.MigrationUpdated, m)
	middleware.SuccessResponse(c, http.StatusOK, m)
}

// Delete DELETE /api/v1/migrations/:id
func (h *MigrationHandler) Delete(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	if err := h.store.DeleteMigration(c.Request.Context(), id); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			middleware.ErrorResponse(c, http.StatusNotFound, middleware.ErrCodeNotFound, "Migration not found")
			return
		}
		h.internalError(c, "failed to delete migration", err)
		return
	}

	h.publish(c.Request.Context(), services.MigrationRemoved, &models.Migration{ID: id})
	c.Status(http.StatusNoContent)
}

// Run POST /api/v1/migrations/:id/run
// 수동 실행
func (h *MigrationHandler) Run(c *gin.Context) {
	h.launch(c, types.TriggerManual)
}

// Hook POST /api/v1/hooks/migrations/:id/run
// 외부 시스템 호출 실행
func (h *MigrationHandler) Hook(c *gin.Context) {
	h.launch(c, types.TriggerAPI)
}

func (h *MigrationHandler) launch(c *gin.Context, trigger types.Trigger) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	run, err := h.runner.LaunchByID(c.Request.Context(), id, trigger)
	switch {
	case errors.Is(err, services.ErrAlreadyRunning):
		middleware.ErrorResponse(c, http.StatusConflict, middleware.ErrCodeAlreadyRunning, err.Error())
		return
	case errors.Is(err, database.ErrNotFound):
		middleware.ErrorResponse(c, http.StatusNotFound, middleware.ErrCodeNotFound, "Migration not found")
		return
	case err != nil:
		h.internalError(c, "failed to start run", err)
		return
	}

	middleware.SuccessResponse(c, http.StatusAccepted, RunResponse{
		RunID:       run.ID,
		MigrationID: run.MigrationID,
		Status:      run.Status,
		Trigger:     run.Trigger,
	})
}

// Preview POST /api/v1/migrations/:id/preview?stage=<id>&page=<n>
// 지정 스테이지까지 실행해 결과 한 페이지 반환, 저장 매핑은 적용하지 않음
func (h *MigrationHandler) Preview(c *gin.Context) {
	m, ok := h.load(c)
	if !ok {
		return
	}

	stageID := types.ID(c.Query("stage"))
	if stageID == "" {
		middleware.ErrorResponse(c, http.StatusBadRequest, middleware.ErrCodeValidationFailed, "stage query parameter is required")
		return
	}
	page := 1
	if raw := c.Query("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			middleware.ErrorResponse(c, http.StatusBadRequest, middleware.ErrCodeValidationFailed, "page must be a positive integer")
			return
		}
		page = n
	}

	stages, err := m.Stages()
	if err != nil {
		h.internalError(c, "invalid stored fetch configs", err)
		return
	}
	paramList, err := m.ParamList()
	if err != nil {
		h.internalError(c, "invalid stored params", err)
		return
	}
	resolved, err := params.Resolve(paramList, time.Now())
	if err != nil {
		middleware.ErrorResponse(c, http.StatusBadRequest, middleware.ErrCodeValidationFailed, err.Error())
		return
	}

	hint := stage.Hint{Limit: stage.DefaultPageSize, Offset: (page - 1) * stage.DefaultPageSize}
	result, err := h.previewer.Preview(c.Request.Context(), stages, []types.StageResult{types.NewParamsResult(resolved)}, stageID, hint)
	if err != nil {
		if errors.Is(err, stage.ErrStageNotFound) {
			middleware.ErrorResponse(c, http.StatusNotFound, middleware.ErrCodeNotFound, err.Error())
			return
		}
		h.logger.Warn("preview failed", "migration_id", m.ID, "stage", stageID, "error", err)
		middleware.ErrorResponse(c, http.StatusUnprocessableEntity, middleware.ErrCodeStageFailed, err.Error())
		return
	}

	middleware.SuccessResponse(c, http.StatusOK, PreviewResponse{
		DatasetID: result.DatasetID,
		Name:      result.Meta.Name,
		Columns:   result.Meta.Columns,
		Rows:      result.Rows,
		Params:    result.Params,
		Page:      page,
		DataType:  result.DataType,
	})
}

func (h *MigrationHandler) bind(c *gin.Context) (*MigrationRequest, bool) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		middleware.ErrorResponse(c, http.StatusBadRequest, middleware.ErrCodeInvalidJSON, err.Error())
		return nil, false
	}

	req, err := ParseMigrationRequest(body)
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			middleware.ErrorResponseWithDetails(c, http.StatusBadRequest, middleware.ErrCodeValidationFailed, "Invalid migration", verr.Details)
			return nil, false
		}
		h.internalError(c, "failed to validate migration", err)
		return nil, false
	}
	return req, true
}

func (h *MigrationHandler) load(c *gin.Context) (*models.Migration, bool) {
	id, ok := pathID(c)
	if !ok {
		return nil, false
	}

	m, err := h.store.GetMigration(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			middleware.ErrorResponse(c, http.StatusNotFound, middleware.ErrCodeNotFound, "Migration not found")
			return nil, false
		}
		h.internalError(c, "failed to load migration", err)
		return nil, false
	}
	return m, true
}

// publish 스케줄러 갱신용 이벤트, 실패해도 요청은 성공
func (h *MigrationHandler) publish(ctx context.Context, eventType services.MigrationEventType, m *models.Migration) {
	if h.bus == nil {
		return
	}
	if err := h.bus.Publish(ctx, services.MigrationEvent{Type: eventType, Migration: *m}); err != nil {
		h.logger.Warn("failed to publish migration event", "migration_id", m.ID, "type", eventType, "error", err)
	}
}

func (h *MigrationHandler) internalError(c *gin.Context, msg string, err error) {
	h.logger.Error(msg, "error", err, "request_id", middleware.GetRequestID(c))
	middleware.ErrorResponse(c, http.StatusInternalServerError, middleware.ErrCodeInternalError, msg)
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		middleware.ErrorResponse(c, http.StatusBadRequest, middleware.ErrCodeValidationFailed, "Invalid id")
		return 0, false
	}
	return id, true
}
