package stage

import (
	"context"
	"fmt"
	"strings"

	"github.com/zamasskin/datashift/pkg/types"
	"github.com/zamasskin/datashift/pkg/values"
)

// MergeStage 두 데이터셋의 내부 조인
type MergeStage struct{}

// NewMergeStage 병합 스테이지 생성
func NewMergeStage() *MergeStage {
	return &MergeStage{}
}

func (s *MergeStage) Execute(_ context.Context, cfg types.FetchConfig, prior []types.StageResult, _ Hint) (types.StageResult, error) {
	p := cfg.Merge
	if p == nil {
		return types.StageResult{}, fmt.Errorf("stage %s: merge params are missing", cfg.ID)
	}
	if len(p.On) == 0 {
		return types.StageResult{}, fmt.Errorf("stage %s: merge requires at least one condition", cfg.ID)
	}
	for _, c := range p.On {
		if _, ok := mergeOperators[normalizeOperator(c.Operator)]; !ok {
			return types.StageResult{}, fmt.Errorf("stage %s: unsupported merge operator %q", cfg.ID, c.Operator)
		}
	}

	left, err := findDataset(prior, p.DatasetLeftID)
	if err != nil {
		return types.StageResult{}, fmt.Errorf("stage %s: %w", cfg.ID, err)
	}
	right, err := findDataset(prior, p.DatasetRightID)
	if err != nil {
		return types.StageResult{}, fmt.Errorf("stage %s: %w", cfg.ID, err)
	}

	rows := make([]types.Row, 0)
	for _, l := range left.Rows {
		for _, r := range right.Rows {
			if !matches(l, r, p.On) {
				continue
			}
			merged := make(types.Row, len(l)+len(r))
			for k, v := range l {
				merged[k] = v
			}
			// 키 충돌 시 오른쪽 값 우선
			for k, v := range r {
				merged[k] = v
			}
			rows = append(rows, merged)
		}
	}

	return types.NewArrayColumnsResult(cfg.ID, cfg.ID.String(), rows, unionColumns(left.Meta.Columns, right.Meta.Columns)), nil
}

var mergeOperators = map[string]func(a, b any) bool{
	"=":  values.Equals,
	"!=": func(a, b any) bool { return !values.Equals(a, b) },
	"<":  func(a, b any) bool { return values.Compare(a, b) < 0 },
	"<=": func(a, b any) bool { return values.Compare(a, b) <= 0 },
	">":  func(a, b any) bool { return values.Compare(a, b) > 0 },
	">=": func(a, b any) bool { return values.Compare(a, b) >= 0 },
}

func normalizeOperator(op string) string {
	switch op = strings.TrimSpace(op); op {
	case "", "==", "===":
		return "="
	case "<>", "!==":
		return "!="
	}
	return op
}

// matches 조건을 왼쪽부터 각 조건의 cond로 결합, 첫 조건의 cond는 무시
func matches(left, right types.Row, on []types.MergeCondition) bool {
	var result bool
	for i, c := range on {
		ok := mergeOperators[normalizeOperator(c.Operator)](left[c.TableColumn], right[c.AliasColumn])
		if i == 0 {
			result = ok
			continue
		}
		if strings.EqualFold(strings.TrimSpace(c.Cond), "or") {
			result = result || ok
		} else {
			result = result && ok
		}
	}
	return result
}

func unionColumns(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, c := range list {
			if !seen[c] {
				seen[c] = true
				out = append(out, c)
			}
		}
	}
	return out
}
