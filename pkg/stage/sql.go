package stage

import (
	"context"
	"fmt"

	"github.com/zamasskin/datashift/pkg/placeholder"
	"github.com/zamasskin/datashift/pkg/sqlbuilder"
	"github.com/zamasskin/datashift/pkg/types"
)

// SQLStage 원시 SQL 스테이지
type SQLStage struct {
	sources SourceFinder
	querier Querier
}

// NewSQLStage SQL 스테이지 생성
func NewSQLStage(sources SourceFinder, querier Querier) *SQLStage {
	return &SQLStage{sources: sources, querier: querier}
}

func (s *SQLStage) Execute(ctx context.Context, cfg types.FetchConfig, prior []types.StageResult, hint Hint) (types.StageResult, error) {
	if cfg.SQL == nil {
		return types.StageResult{}, fmt.Errorf("stage %s: sql params are missing", cfg.ID)
	}
	return s.run(ctx, cfg.ID, cfg.SQL.SourceID, cfg.SQL.Query, cfg.Page, prior, hint)
}

// run 플레이스홀더 해석 후 실행, SQLBuilder 스테이지도 이 경로를 사용
func (s *SQLStage) run(ctx context.Context, id types.ID, sourceID int64, query string, page int, prior []types.StageResult, hint Hint) (types.StageResult, error) {
	ds, err := s.sources.FindDataSource(ctx, sourceID)
	if err != nil {
		return types.StageResult{}, fmt.Errorf("stage %s: %w", id, err)
	}
	if ds == nil {
		return types.StageResult{}, fmt.Errorf("stage %s: %w: %d", id, ErrSourceNotFound, sourceID)
	}

	resolved := placeholder.Resolve(query, placeholder.Source(prior), StyleFor(ds.Type))
	limit, offset := Paginate(page, hint)

	result, err := s.querier.Execute(ctx, ds.Type, ds.Config, resolved.SQL, resolved.Values, limit, offset)
	if err != nil {
		return types.StageResult{}, err
	}

	return types.NewArrayColumnsResult(id, id.String(), result.Rows, result.Columns), nil
}

// SQLBuilderStage 쿼리 빌더 스테이지, 만든 SQL을 SQL 스테이지 경로로 실행
type SQLBuilderStage struct {
	sql *SQLStage
}

// NewSQLBuilderStage 쿼리 빌더 스테이지 생성
func NewSQLBuilderStage(sql *SQLStage) *SQLBuilderStage {
	return &SQLBuilderStage{sql: sql}
}

func (s *SQLBuilderStage) Execute(ctx context.Context, cfg types.FetchConfig, prior []types.StageResult, hint Hint) (types.StageResult, error) {
	if cfg.SQLBuilder == nil {
		return types.StageResult{}, fmt.Errorf("stage %s: sql builder params are missing", cfg.ID)
	}

	query, err := sqlbuilder.Build(cfg.SQLBuilder)
	if err != nil {
		return types.StageResult{}, fmt.Errorf("stage %s: %w", cfg.ID, err)
	}
	return s.sql.run(ctx, cfg.ID, cfg.SQLBuilder.SourceID, query, cfg.Page, prior, hint)
}
