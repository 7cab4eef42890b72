package sqlexec

import "github.com/pkg/errors"

var (
	// ErrEmptySQL SQL 텍스트가 비어 있음
	ErrEmptySQL = errors.New("sql text is empty")
	// ErrUnsupportedType 지원하지 않는 데이터 소스 종류
	ErrUnsupportedType = errors.New("unsupported data source type")
	// ErrUnsupportedSaveType 저장을 지원하지 않는 종류
	ErrUnsupportedSaveType = errors.New("type not supported for saving")
	// ErrInvalidIdentifier 허용되지 않는 테이블/컬럼 이름
	ErrInvalidIdentifier = errors.New("invalid identifier")
	// ErrInvalidOperator 허용되지 않는 비교 연산자
	ErrInvalidOperator = errors.New("invalid operator")
)
