// Package pipeline 스테이지를 선언 순서대로 실행하는 엔진
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"math"
	"slices"

	"github.com/zamasskin/datashift/pkg/stage"
	"github.com/zamasskin/datashift/pkg/types"
)

var (
	// ErrMissingParams 첫 결과가 params가 아님
	ErrMissingParams = errors.New("params result must be the first initial result")
)

// Meta 단계별 진행 정보
type Meta struct {
	ProgressList []int `json:"progressList"`
}

// Step 스테이지 하나의 결과와 진행률
type Step struct {
	Result types.StageResult `json:"result"`
	Meta   Meta              `json:"meta"`
}

// Engine 파이프라인 엔진
type Engine struct {
	executor stage.Executor
}

// New 새 엔진 생성
func New(executor stage.Executor) *Engine {
	return &Engine{executor: executor}
}

// Execute 스테이지를 순서대로 실행하며 결과와 진행률을 하나씩 반환
// 재시도 없음, 오류는 그대로 전달하고 중단. 루프를 빠져나오면 이후 스테이지는 실행되지 않음
func (e *Engine) Execute(ctx context.Context, stages []types.FetchConfig, initial []types.StageResult, hint stage.Hint) iter.Seq2[Step, error] {
	return e.run(ctx, stages, initial, func(int) stage.Hint { return hint })
}

// Preview stageID까지 실행하고 해당 스테이지 결과 반환, 힌트는 대상 스테이지에만 적용
func (e *Engine) Preview(ctx context.Context, stages []types.FetchConfig, initial []types.StageResult, stageID types.ID, hint stage.Hint) (types.StageResult, error) {
	target := slices.IndexFunc(stages, func(cfg types.FetchConfig) bool { return cfg.ID == stageID })
	if target < 0 {
		return types.StageResult{}, fmt.Errorf("%w: %q", stage.ErrStageNotFound, stageID)
	}

	hintFor := func(i int) stage.Hint {
		if i == target {
			return hint
		}
		return stage.Hint{}
	}

	var last types.StageResult
	for step, err := range e.run(ctx, stages[:target+1], initial, hintFor) {
		if err != nil {
			return types.StageResult{}, err
		}
		last = step.Result
	}
	return last, nil
}

func (e *Engine) run(ctx context.Context, stages []types.FetchConfig, initial []types.StageResult, hintFor func(int) stage.Hint) iter.Seq2[Step, error] {
	return func(yield func(Step, error) bool) {
		if len(initial) == 0 || initial[0].DataType != types.DataTypeParams {
			yield(Step{}, ErrMissingParams)
			return
		}

		results := slices.Clone(initial)
		progress := make([]int, 0, len(stages))
		total := float64(len(stages))

		for i, cfg := range stages {
			if err := ctx.Err(); err != nil {
				yield(Step{}, err)
				return
			}

			result, err := e.executor.Execute(ctx, cfg, results, hintFor(i))
			if err != nil {
				yield(Step{}, err)
				return
			}

			results = append(results, result)
			progress = append(progress, int(math.Round(float64(i+1)/total*100)))

			if !yield(Step{Result: result, Meta: Meta{ProgressList: slices.Clone(progress)}}, nil) {
				return
			}
		}
	}
}
