package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/zamasskin/datashift/internal/api/middleware"
	"github.com/zamasskin/datashift/pkg/database"
	"github.com/zamasskin/datashift/pkg/models"
	"github.com/zamasskin/datashift/pkg/types"
)

// RunStore 실행 기록 조회
type RunStore interface {
	GetRun(ctx context.Context, id int64) (*models.MigrationRun, error)
}

// RunCanceller 실행 중지 요청
type RunCanceller interface {
	RequestCancel(ctx context.Context, runID int64) (bool, error)
}

// RunHandler 실행 기록 API 핸들러
type RunHandler struct {
	store  RunStore
	runner RunCanceller
	logger *slog.Logger
}

// NewRunHandler 새 실행 핸들러 생성
func NewRunHandler(store RunStore, runner RunCanceller, logger *slog.Logger) *RunHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RunHandler{store: store, runner: runner, logger: logger.With("component", "api")}
}

// RunDetail 실행 기록 응답
type RunDetail struct {
	*models.MigrationRun
	ProgressList []int `json:"progressList"`
}

// Get GET /api/v1/runs/:id
func (h *RunHandler) Get(c *gin.Context) {
	run, ok := h.load(c)
	if !ok {
		return
	}

	progress, err := run.ProgressList()
	if err != nil {
		progress = []int{}
	}
	middleware.SuccessResponse(c, http.StatusOK, RunDetail{MigrationRun: run, ProgressList: progress})
}

// Stop POST /api/v1/runs/:id/stop
// 상태를 canceled로 바꾸면 러너가 다음 스테이지 경계에서 멈춤
func (h *RunHandler) Stop(c *gin.Context) {
	run, ok := h.load(c)
	if !ok {
		return
	}

	stopped, err := h.runner.RequestCancel(c.Request.Context(), run.ID)
	if err != nil {
		h.logger.Error("failed to stop run", "run_id", run.ID, "error", err)
		middleware.ErrorResponse(c, http.StatusInternalServerError, middleware.ErrCodeInternalError, "failed to stop run")
		return
	}
	if !stopped {
		middleware.ErrorResponse(c, http.StatusConflict, middleware.ErrCodeInvalidState, "Run is not running")
		return
	}

	run.Status = string(types.RunStatusCanceled)
	middleware.SuccessResponse(c, http.StatusOK, run)
}

func (h *RunHandler) load(c *gin.Context) (*models.MigrationRun, bool) {
	id, ok := pathID(c)
	if !ok {
		return nil, false
	}

	run, err := h.store.GetRun(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			middleware.ErrorResponse(c, http.StatusNotFound, middleware.ErrCodeNotFound, "Run not found")
			return nil, false
		}
		h.logger.Error("failed to load run", "run_id", id, "error", err)
		middleware.ErrorResponse(c, http.StatusInternalServerError, middleware.ErrCodeInternalError, "failed to load run")
		return nil, false
	}
	return run, true
}
