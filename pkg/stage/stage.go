// Package stage 마이그레이션 스테이지(데이터셋) 실행기
package stage

import (
	"context"
	"errors"
	"fmt"

	"github.com/zamasskin/datashift/pkg/placeholder"
	"github.com/zamasskin/datashift/pkg/sqlexec"
	"github.com/zamasskin/datashift/pkg/types"
)

// DefaultPageSize page 지정 시 기본 페이지 크기
const DefaultPageSize = 500

var (
	// ErrStageNotFound 참조한 데이터셋이 앞선 결과에 없음
	ErrStageNotFound = errors.New("stage not found")
	// ErrUnknownStageType 알 수 없는 스테이지 종류
	ErrUnknownStageType = errors.New("unknown stage type")
	// ErrSourceNotFound 데이터 소스 없음
	ErrSourceNotFound = errors.New("data source not found")
)

// Hint 호출자가 전달하는 페이지네이션 힌트 (미리보기 등)
type Hint struct {
	Limit  int
	Offset int
}

// Executor 스테이지 하나를 실행해 결과 하나를 반환
type Executor interface {
	Execute(ctx context.Context, cfg types.FetchConfig, prior []types.StageResult, hint Hint) (types.StageResult, error)
}

// SourceFinder DataSource 조회
type SourceFinder interface {
	FindDataSource(ctx context.Context, id int64) (*types.DataSource, error)
}

// Querier SQL 실행기
type Querier interface {
	Execute(ctx context.Context, kind types.SourceType, config map[string]any, sql string, vars []any, limit, offset int) (*sqlexec.Result, error)
}

// Dispatcher 스테이지 종류별 실행기 선택
type Dispatcher struct {
	sql          *SQLStage
	sqlBuilder   *SQLBuilderStage
	merge        *MergeStage
	modification *ModificationStage
}

// NewDispatcher 네 가지 스테이지 실행기 구성
func NewDispatcher(sources SourceFinder, querier Querier) *Dispatcher {
	sqlStage := NewSQLStage(sources, querier)
	return &Dispatcher{
		sql:          sqlStage,
		sqlBuilder:   NewSQLBuilderStage(sqlStage),
		merge:        NewMergeStage(),
		modification: NewModificationStage(),
	}
}

// Execute cfg.Type에 맞는 실행기로 위임
func (d *Dispatcher) Execute(ctx context.Context, cfg types.FetchConfig, prior []types.StageResult, hint Hint) (types.StageResult, error) {
	switch cfg.Type {
	case types.StageTypeSQL:
		return d.sql.Execute(ctx, cfg, prior, hint)
	case types.StageTypeSQLBuilder:
		return d.sqlBuilder.Execute(ctx, cfg, prior, hint)
	case types.StageTypeMerge:
		return d.merge.Execute(ctx, cfg, prior, hint)
	case types.StageTypeModification:
		return d.modification.Execute(ctx, cfg, prior, hint)
	default:
		return types.StageResult{}, fmt.Errorf("%w: %q", ErrUnknownStageType, cfg.Type)
	}
}

// Paginate page(1부터)를 limit/offset으로 변환, page가 없으면 힌트 그대로
func Paginate(page int, hint Hint) (limit, offset int) {
	if page <= 0 {
		return hint.Limit, hint.Offset
	}
	limit = hint.Limit
	if limit <= 0 {
		limit = DefaultPageSize
	}
	return limit, (page - 1) * limit
}

// StyleFor 엔진별 플레이스홀더 형식
func StyleFor(kind types.SourceType) placeholder.Style {
	switch kind {
	case types.SourceTypePostgres:
		return placeholder.StyleDollar
	case types.SourceTypeClickHouse:
		return placeholder.StyleInline
	default:
		return placeholder.StyleQuestion
	}
}

func findDataset(prior []types.StageResult, id types.ID) (types.StageResult, error) {
	ds, ok := types.FindDataset(prior, id)
	if !ok {
		return types.StageResult{}, fmt.Errorf("%w: dataset %q", ErrStageNotFound, id)
	}
	return ds, nil
}

// paramsOf 누적 결과의 params 맵
func paramsOf(prior []types.StageResult) map[string]any {
	for _, r := range prior {
		if r.DataType == types.DataTypeParams {
			return r.Params
		}
	}
	return map[string]any{}
}
