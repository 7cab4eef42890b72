package types

// SaveMapping 결과 행을 대상 테이블에 쓰는 규칙
// DatasetID가 비어 있으면 마지막 스테이지 결과에 적용
type SaveMapping struct {
	ID           ID              `json:"id"`
	SourceID     int64           `json:"sourceId"`
	DatasetID    ID              `json:"datasetId,omitempty"`
	Table        string          `json:"table"`
	SavedMapping []ColumnMapping `json:"savedMapping"`
	UpdateOn     []UpdateOn      `json:"updateOn,omitempty"`
}

// ColumnMapping 대상 컬럼 <- 결과 컬럼
type ColumnMapping struct {
	TableColumn  string `json:"tableColumn"`
	ResultColumn string `json:"resultColumn"`
}

// UpdateOn UPDATE 조건 (table.tableColumn <op> row[aliasColumn])
type UpdateOn struct {
	TableColumn string `json:"tableColumn"`
	AliasColumn string `json:"aliasColumn"`
	Operator    string `json:"operator,omitempty"`
	Cond        string `json:"cond,omitempty"`
}

// InsertIDKey 삽입된 행의 생성 ID를 보관하는 컬럼 이름
func (m *SaveMapping) InsertIDKey() string {
	return m.ID.String() + ".ID"
}
