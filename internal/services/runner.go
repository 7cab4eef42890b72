package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zamasskin/datashift/pkg/database"
	"github.com/zamasskin/datashift/pkg/models"
	"github.com/zamasskin/datashift/pkg/params"
	"github.com/zamasskin/datashift/pkg/pipeline"
	"github.com/zamasskin/datashift/pkg/stage"
	"github.com/zamasskin/datashift/pkg/types"
)

// ErrAlreadyRunning 같은 (migration, trigger) 실행이 진행 중
var ErrAlreadyRunning = database.ErrAlreadyRunning

// RunStore 실행 수명주기 저장소
type RunStore interface {
	GetMigration(ctx context.Context, id int64) (*models.Migration, error)
	ReserveRun(ctx context.Context, migrationID int64, trigger types.Trigger, owner string, metadata map[string]any) (*models.MigrationRun, error)
	ReleaseRun(ctx context.Context, migrationID int64, trigger types.Trigger, runID int64) error
	SaveProgress(ctx context.Context, runID int64, progress []int) error
	RunStatus(ctx context.Context, runID int64) (types.RunStatus, error)
	FinishRun(ctx context.Context, runID int64, status types.RunStatus, message string) error
	RequestCancel(ctx context.Context, runID int64) (bool, error)
	CancelOwned(ctx context.Context, owner string) (int64, error)
	HasRunning(ctx context.Context, migrationID int64, trigger types.Trigger) (bool, error)
}

// Saver 저장 매핑 적용
type Saver interface {
	ApplySaveMapping(ctx context.Context, kind types.SourceType, config map[string]any, mapping *types.SaveMapping, rows []types.Row) (int, error)
}

// FailureReporter 실패 기록
type FailureReporter interface {
	ReportFailure(ctx context.Context, report FailureReport) (*models.ErrorLog, error)
}

// Payload 실행할 마이그레이션 정의
type Payload struct {
	MigrationID  int64
	Trigger      types.Trigger
	Stages       []types.FetchConfig
	SaveMappings []types.SaveMapping
	Params       []types.Param
}

// PayloadFrom 저장된 마이그레이션에서 실행 정의 생성
func PayloadFrom(m *models.Migration, trigger types.Trigger) (*Payload, error) {
	stages, err := m.Stages()
	if err != nil {
		return nil, fmt.Errorf("migration %d: invalid fetch configs: %w", m.ID, err)
	}
	mappings, err := m.Mappings()
	if err != nil {
		return nil, fmt.Errorf("migration %d: invalid save mappings: %w", m.ID, err)
	}
	paramList, err := m.ParamList()
	if err != nil {
		return nil, fmt.Errorf("migration %d: invalid params: %w", m.ID, err)
	}
	return &Payload{MigrationID: m.ID, Trigger: trigger, Stages: stages, SaveMappings: mappings, Params: paramList}, nil
}

// Outcome 실행 결과, 취소는 오류가 아님
type Outcome struct {
	RunID     int64          `json:"runId"`
	OK        bool           `json:"ok"`
	Cancelled bool           `json:"cancelled"`
	Summary   map[string]int `json:"summary"`
	Progress  []int          `json:"progress"`
}

// MigrationRunner 파이프라인 실행과 실행 기록 관리
type MigrationRunner struct {
	store    RunStore
	sources  stage.SourceFinder
	engine   *pipeline.Engine
	saver    Saver
	reporter FailureReporter
	logger   *slog.Logger
	owner    string
	now      func() time.Time

	wg sync.WaitGroup
}

// RunnerConfig MigrationRunner 의존성
type RunnerConfig struct {
	Store    RunStore
	Sources  stage.SourceFinder
	Engine   *pipeline.Engine
	Saver    Saver
	Reporter FailureReporter
	Logger   *slog.Logger
}

// NewMigrationRunner 새 러너 생성, 프로세스마다 고유 owner 부여
func NewMigrationRunner(cfg RunnerConfig) *MigrationRunner {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &MigrationRunner{
		store:    cfg.Store,
		sources:  cfg.Sources,
		engine:   cfg.Engine,
		saver:    cfg.Saver,
		reporter: cfg.Reporter,
		logger:   logger.With("component", "runner"),
		owner:    uuid.NewString(),
		now:      time.Now,
	}
}

// Owner 이 프로세스의 실행 소유자 id
func (r *MigrationRunner) Owner() string {
	return r.owner
}

// Run 예약 후 호출한 고루틴에서 끝까지 실행
func (r *MigrationRunner) Run(ctx context.Context, p *Payload) (*Outcome, error) {
	run, err := r.reserve(ctx, p)
	if err != nil {
		return nil, err
	}
	return r.execute(ctx, run, p)
}

// Launch 예약은 동기로, 실행은 백그라운드로
func (r *MigrationRunner) Launch(ctx context.Context, p *Payload) (*models.MigrationRun, error) {
	run, err := r.reserve(ctx, p)
	if err != nil {
		return nil, err
	}

	bg := context.WithoutCancel(ctx)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if _, err := r.execute(bg, run, p); err != nil {
			r.logger.Error("background run failed", "migration_id", p.MigrationID, "run_id", run.ID, "error", err)
		}
	}()
	return run, nil
}

// Wait 백그라운드 실행이 모두 끝날 때까지 대기
func (r *MigrationRunner) Wait() {
	r.wg.Wait()
}

// RunByID 저장된 마이그레이션을 불러와 실행
func (r *MigrationRunner) RunByID(ctx context.Context, id int64, trigger types.Trigger) (*Outcome, error) {
	p, err := r.load(ctx, id, trigger)
	if err != nil {
		return nil, err
	}
	return r.Run(ctx, p)
}

// LaunchByID 저장된 마이그레이션을 불러와 백그라운드 실행
func (r *MigrationRunner) LaunchByID(ctx context.Context, id int64, trigger types.Trigger) (*models.MigrationRun, error) {
	p, err := r.load(ctx, id, trigger)
	if err != nil {
		return nil, err
	}
	return r.Launch(ctx, p)
}

func (r *MigrationRunner) load(ctx context.Context, id int64, trigger types.Trigger) (*Payload, error) {
	m, err := r.store.GetMigration(ctx, id)
	if err != nil {
		return nil, err
	}
	return PayloadFrom(m, trigger)
}

// IsRunning (migration, trigger) 실행 중 여부
func (r *MigrationRunner) IsRunning(ctx context.Context, id int64, trigger types.Trigger) (bool, error) {
	return r.store.HasRunning(ctx, id, trigger)
}

// RequestCancel 외부 중지 요청, 러너는 다음 스테이지 경계에서 멈춤
func (r *MigrationRunner) RequestCancel(ctx context.Context, runID int64) (bool, error) {
	return r.store.RequestCancel(ctx, runID)
}

// CancelActive 이 프로세스가 실행 중인 모든 run을 canceled로 표시
func (r *MigrationRunner) CancelActive(ctx context.Context) (int64, error) {
	n, err := r.store.CancelOwned(ctx, r.owner)
	if err != nil {
		return 0, fmt.Errorf("failed to cancel active runs: %w", err)
	}
	if n > 0 {
		r.logger.Info("active runs canceled", "count", n)
	}
	return n, nil
}

func (r *MigrationRunner) reserve(ctx context.Context, p *Payload) (*models.MigrationRun, error) {
	if !p.Trigger.IsValid() {
		return nil, fmt.Errorf("invalid trigger: %q", p.Trigger)
	}

	run, err := r.store.ReserveRun(ctx, p.MigrationID, p.Trigger, r.owner, map[string]any{})
	if err != nil {
		if errors.Is(err, ErrAlreadyRunning) {
			return nil, fmt.Errorf("migration %d (%s): %w", p.MigrationID, p.Trigger, err)
		}
		return nil, fmt.Errorf("failed to start run: %w", err)
	}

	r.logger.Info("run started", "migration_id", p.MigrationID, "run_id", run.ID, "trigger", p.Trigger)
	return run, nil
}

// execution 실행 하나의 진행 상태
type execution struct {
	run      *models.MigrationRun
	payload  *Payload
	state    *runState
	params   map[string]any
	progress []int
	summary  map[string]int
}

func (r *MigrationRunner) execute(ctx context.Context, run *models.MigrationRun, p *Payload) (*Outcome, error) {
	// 종료 처리는 취소된 컨텍스트에서도 끝까지 수행
	final := context.WithoutCancel(ctx)
	defer func() {
		if err := r.store.ReleaseRun(final, p.MigrationID, p.Trigger, run.ID); err != nil {
			r.logger.Error("failed to release run lock", "run_id", run.ID, "error", err)
		}
	}()

	ex := &execution{
		run:      run,
		payload:  p,
		state:    newRunState(run.ID, r.store),
		progress: []int{},
		summary:  map[string]int{},
	}

	resolved, err := params.Resolve(p.Params, r.now())
	if err != nil {
		return r.fail(final, ex, err)
	}
	ex.params = resolved

	initial := []types.StageResult{types.NewParamsResult(resolved)}
	last := len(p.Stages) - 1
	index := 0

	for step, err := range r.engine.Execute(ctx, p.Stages, initial, stage.Hint{}) {
		if err != nil {
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				return r.cancel(final, ex)
			}
			return r.fail(final, ex, err)
		}

		ex.progress = step.Meta.ProgressList
		if err := r.store.SaveProgress(final, run.ID, ex.progress); err != nil {
			return r.fail(final, ex, err)
		}

		if stop, err := r.cancelled(ctx, run.ID); err != nil {
			return r.fail(final, ex, err)
		} else if stop {
			return r.cancel(final, ex)
		}

		if step.Result.DataType == types.DataTypeArrayColumns {
			stop, err := r.save(ctx, ex, step.Result, index == last)
			if err != nil {
				return r.fail(final, ex, err)
			}
			if stop {
				return r.cancel(final, ex)
			}
		}
		index++
	}

	if err := ex.state.to(final, types.RunStatusSuccess, ""); err != nil {
		return nil, fmt.Errorf("failed to finish run %d: %w", run.ID, err)
	}

	r.logger.Info("run finished", "migration_id", p.MigrationID, "run_id", run.ID, "summary", ex.summary)
	return &Outcome{RunID: run.ID, OK: true, Summary: ex.summary, Progress: ex.progress}, nil
}

// save 결과를 대상으로 하는 저장 매핑을 선언 순서대로 적용, 매핑마다 취소 확인
// datasetId 가 있으면 그 데이터셋, 없으면 마지막 스테이지 결과가 대상
func (r *MigrationRunner) save(ctx context.Context, ex *execution, result types.StageResult, isLast bool) (bool, error) {
	for i := range ex.payload.SaveMappings {
		mapping := &ex.payload.SaveMappings[i]
		if mapping.DatasetID != "" {
			if mapping.DatasetID != result.DatasetID {
				continue
			}
		} else if !isLast {
			continue
		}

		if stop, err := r.cancelled(ctx, ex.run.ID); err != nil || stop {
			return stop, err
		}

		ds, err := r.sources.FindDataSource(ctx, mapping.SourceID)
		if err != nil {
			return false, fmt.Errorf("save mapping %s: %w", mapping.ID, err)
		}
		if ds == nil {
			return false, fmt.Errorf("save mapping %s: %w: %d", mapping.ID, stage.ErrSourceNotFound, mapping.SourceID)
		}

		n, err := r.saver.ApplySaveMapping(ctx, ds.Type, ds.Config, mapping, result.Rows)
		if err != nil {
			return false, fmt.Errorf("save mapping %s: %w", mapping.ID, err)
		}
		ex.summary[mapping.ID.String()] += n
	}
	return false, nil
}

// cancelled 상태 재조회, running이 아니거나 컨텍스트가 끝났으면 true
func (r *MigrationRunner) cancelled(ctx context.Context, runID int64) (bool, error) {
	if ctx.Err() != nil {
		return true, nil
	}
	status, err := r.store.RunStatus(ctx, runID)
	if err != nil {
		return false, err
	}
	return status != types.RunStatusRunning, nil
}

func (r *MigrationRunner) cancel(ctx context.Context, ex *execution) (*Outcome, error) {
	outcome := &Outcome{RunID: ex.run.ID, Cancelled: true, Summary: ex.summary, Progress: ex.progress}
	// 컨텍스트 취소로 멈춘 경우 상태가 아직 running
	if err := ex.state.to(ctx, types.RunStatusCanceled, ""); err != nil {
		return outcome, fmt.Errorf("failed to mark run %d canceled: %w", ex.run.ID, err)
	}

	r.logger.Info("run canceled", "migration_id", ex.payload.MigrationID, "run_id", ex.run.ID, "progress", ex.progress)
	return outcome, nil
}

// fail 실행을 failed로 기록하고 원래 오류를 그대로 반환
func (r *MigrationRunner) fail(ctx context.Context, ex *execution, cause error) (*Outcome, error) {
	if err := ex.state.to(ctx, types.RunStatusFailed, shortMessage(cause)); err != nil {
		cause = errors.Join(cause, fmt.Errorf("failed to mark run %d failed: %w", ex.run.ID, err))
	}

	r.logger.Error("run failed", "migration_id", ex.payload.MigrationID, "run_id", ex.run.ID, "error", cause)

	if r.reporter != nil {
		_, err := r.reporter.ReportFailure(ctx, FailureReport{
			Err:         withStack(cause),
			Trigger:     ex.payload.Trigger,
			MigrationID: ex.payload.MigrationID,
			RunID:       ex.run.ID,
			Params:      ex.params,
			Progress:    ex.progress,
		})
		if err != nil {
			r.logger.Error("failed to record failure", "run_id", ex.run.ID, "error", err)
		}
	}

	return &Outcome{RunID: ex.run.ID, Summary: ex.summary, Progress: ex.progress}, cause
}
