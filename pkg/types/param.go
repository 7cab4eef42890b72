package types

// ParamType 파라미터 값 종류
type ParamType string

const (
	ParamTypeString  ParamType = "string"
	ParamTypeNumber  ParamType = "number"
	ParamTypeBoolean ParamType = "boolean"
	ParamTypeDate    ParamType = "date"
)

// Param 마이그레이션 실행 파라미터
// date 타입은 Value 대신 Date를 사용
type Param struct {
	Key   string     `json:"key"`
	Type  ParamType  `json:"type"`
	Value any        `json:"value,omitempty"`
	Date  *DateValue `json:"date,omitempty"`
}

// DateValueType 날짜 파라미터 종류
type DateValueType string

const (
	DateAdd      DateValueType = "add"
	DateSubtract DateValueType = "subtract"
	DateStartOf  DateValueType = "startOf"
	DateEndOf    DateValueType = "endOf"
	DateExact    DateValueType = "exact"
)

// DatePosition startOf/endOf 기준 위치
type DatePosition string

const (
	PositionCurrent  DatePosition = "current"
	PositionNext     DatePosition = "next"
	PositionPrevious DatePosition = "previous"
)

// DateValue 날짜 파라미터 정의
type DateValue struct {
	Type     DateValueType `json:"type"`
	Ops      []DateOp      `json:"ops,omitempty"`      // add, subtract
	Unit     string        `json:"unit,omitempty"`     // startOf, endOf
	Position DatePosition  `json:"position,omitempty"` // startOf, endOf
	Value    string        `json:"value,omitempty"`    // exact (ISO 날짜)
}

// DateOp 날짜 연산 단위
type DateOp struct {
	Amount int    `json:"amount"`
	Unit   string `json:"unit"` // seconds, minutes, hours, days, weeks, months, years
}
