package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/zamasskin/datashift/pkg/models"
)

const (
	errorSourceRunner = "runner"
	errorStatusOpen   = "open"
	eventTypeError    = "error"
)

// NotificationStore 오류 기록과 알림 저장소
type NotificationStore interface {
	CreateErrorLog(ctx context.Context, log *models.ErrorLog) error
	CreateEvents(ctx context.Context, events []models.Event) error
	ListUserIDs(ctx context.Context) ([]string, error)
}

// Dispatcher 저장된 알림을 외부 전송 계층으로 내보냄
type Dispatcher interface {
	Dispatch(ctx context.Context, events []models.Event) error
}

// Notifier 실패 기록과 사용자 알림
type Notifier struct {
	store       NotificationStore
	dispatchers []Dispatcher
	environment string
	hostname    string
	logger      *slog.Logger
}

// NotifierConfig Notifier 설정
type NotifierConfig struct {
	Environment string
	Hostname    string
	Logger      *slog.Logger
}

// NewNotifier 새 Notifier 생성
func NewNotifier(store NotificationStore, cfg NotifierConfig, dispatchers ...Dispatcher) *Notifier {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		store:       store,
		dispatchers: dispatchers,
		environment: cfg.Environment,
		hostname:    cfg.Hostname,
		logger:      logger.With("component", "notifier"),
	}
}

// ReportFailure ErrorLog 저장, 사용자별 Event 생성 후 전송
// 전송 실패는 로그만 남기고 오류로 반환하지 않음
func (n *Notifier) ReportFailure(ctx context.Context, report FailureReport) (*models.ErrorLog, error) {
	stack, hash := stackOf(report.Err)

	errCtx, err := models.JSON(map[string]any{
		"params":   report.Params,
		"progress": report.Progress,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode error context: %w", err)
	}

	entry := &models.ErrorLog{
		UUID:        uuid.NewString(),
		Source:      errorSourceRunner,
		Status:      errorStatusOpen,
		Message:     report.Err.Error(),
		Code:        driverCode(report.Err),
		Stack:       stack,
		StackHash:   hash,
		Trigger:     string(report.Trigger),
		Context:     errCtx,
		Environment: n.environment,
		Hostname:    n.hostname,
	}
	if report.MigrationID != 0 {
		entry.MigrationID = &report.MigrationID
	}
	if report.RunID != 0 {
		entry.RunID = &report.RunID
	}

	if err := n.store.CreateErrorLog(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to save error log: %w", err)
	}

	userIDs, err := n.store.ListUserIDs(ctx)
	if err != nil {
		return entry, fmt.Errorf("failed to list users: %w", err)
	}

	events := make([]models.Event, 0, len(userIDs))
	for _, userID := range userIDs {
		ev := models.Event{
			UserID:     userID,
			Type:       eventTypeError,
			Title:      fmt.Sprintf("Migration #%d failed", report.MigrationID),
			Message:    shortMessage(report.Err),
			ErrorLogID: &entry.ID,
		}
		if entry.MigrationID != nil {
			ev.MigrationID = entry.MigrationID
		}
		events = append(events, ev)
	}

	if err := n.store.CreateEvents(ctx, events); err != nil {
		return entry, fmt.Errorf("failed to save events: %w", err)
	}

	for _, d := range n.dispatchers {
		if err := d.Dispatch(ctx, events); err != nil {
			n.logger.Warn("event dispatch failed", "dispatcher", fmt.Sprintf("%T", d), "error", err)
		}
	}

	return entry, nil
}
