package models

import (
	"database/sql/driver"
	"encoding/json"

	"github.com/pkg/errors"
)

// StringMap is a string to string JSON object stored in a jsonb column.
type StringMap map[string]string

func (m StringMap) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

func (m *StringMap) Scan(value interface{}) error {
	if value == nil {
		*m = make(StringMap)
		return nil
	}

	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return errors.Errorf("unsupported type %T for StringMap", value)
	}

	result := make(StringMap)
	if err := json.Unmarshal(data, &result); err != nil {
		return err
	}
	*m = result
	return nil
}
