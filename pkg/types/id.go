package types

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ID 사용자 지정 식별자 (스테이지, 데이터셋, 저장 매핑)
// JSON에서는 문자열과 숫자 모두 허용
type ID string

// UnmarshalJSON 문자열/숫자 식별자 디코딩
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}

	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var n json.Number
	if err := dec.Decode(&n); err != nil {
		return fmt.Errorf("invalid id %s: %w", string(data), err)
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string {
	return string(id)
}
