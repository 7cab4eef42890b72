package stage

import (
	"regexp"
	"strings"

	"github.com/cbroglie/mustache"

	"github.com/zamasskin/datashift/pkg/placeholder"
	"github.com/zamasskin/datashift/pkg/values"
)

var singleBrace = regexp.MustCompile(`\{([A-Za-z0-9_.]+)\}`)

// RenderTemplate 행 기준 템플릿 렌더링
// {{mustache}} 치환 후 남은 {path}를 행 값으로 치환, params. 접두사는 전역 파라미터 참조
func RenderTemplate(tpl string, row, params map[string]any) (string, error) {
	ctx := make(map[string]any, len(row)+1)
	for k, v := range row {
		ctx[k] = v
	}
	ctx["params"] = params

	out, err := mustache.RenderRaw(tpl, true, ctx)
	if err != nil {
		return "", err
	}

	return singleBrace.ReplaceAllStringFunc(out, func(token string) string {
		path := token[1 : len(token)-1]
		return values.ToString(lookupRow(row, params, path))
	}), nil
}

// lookupRow 행의 정확한 키 우선, 그다음 점 표기 경로
func lookupRow(row, params map[string]any, path string) any {
	if rest, ok := strings.CutPrefix(path, "params."); ok {
		if v, ok := params[rest]; ok {
			return v
		}
		return placeholder.Lookup(params, rest)
	}
	if v, ok := row[path]; ok {
		return v
	}
	return placeholder.Lookup(row, path)
}
