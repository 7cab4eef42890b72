package types

import (
	"encoding/json"
	"fmt"
)

// DataType 스테이지 결과 종류
type DataType string

const (
	DataTypeParams       DataType = "params"
	DataTypeArrayColumns DataType = "array_columns"
)

// Row 결과 행
type Row = map[string]any

// ResultMeta 데이터셋 메타데이터
type ResultMeta struct {
	Name    string   `json:"name"`
	Columns []string `json:"columns"`
}

// StageResult 파이프라인을 흐르는 결과
// params 결과는 Params, array_columns 결과는 DatasetID/Rows/Meta를 사용
type StageResult struct {
	DataType  DataType
	DatasetID ID
	Params    map[string]any
	Rows      []Row
	Meta      ResultMeta
}

// NewParamsResult params 의사 결과 생성
func NewParamsResult(params map[string]any) StageResult {
	if params == nil {
		params = map[string]any{}
	}
	return StageResult{DataType: DataTypeParams, Params: params}
}

// NewArrayColumnsResult 데이터셋 결과 생성
func NewArrayColumnsResult(datasetID ID, name string, rows []Row, columns []string) StageResult {
	if rows == nil {
		rows = []Row{}
	}
	if columns == nil {
		columns = []string{}
	}
	return StageResult{
		DataType:  DataTypeArrayColumns,
		DatasetID: datasetID,
		Rows:      rows,
		Meta:      ResultMeta{Name: name, Columns: columns},
	}
}

// FindDataset datasetID로 array_columns 결과 검색
func FindDataset(results []StageResult, datasetID ID) (StageResult, bool) {
	for _, r := range results {
		if r.DataType == DataTypeArrayColumns && r.DatasetID == datasetID {
			return r, true
		}
	}
	return StageResult{}, false
}

type stageResultJSON struct {
	DataType  DataType    `json:"dataType"`
	DatasetID ID          `json:"datasetId,omitempty"`
	Data      any         `json:"data"`
	Meta      *ResultMeta `json:"meta,omitempty"`
}

// MarshalJSON {dataType, datasetId, data, meta} 형태로 인코딩
func (r StageResult) MarshalJSON() ([]byte, error) {
	switch r.DataType {
	case DataTypeParams:
		return json.Marshal(stageResultJSON{DataType: r.DataType, Data: r.Params})
	case DataTypeArrayColumns:
		meta := r.Meta
		return json.Marshal(stageResultJSON{DataType: r.DataType, DatasetID: r.DatasetID, Data: r.Rows, Meta: &meta})
	default:
		return nil, fmt.Errorf("unknown result data type: %q", r.DataType)
	}
}
