package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSON is a free-form object column, used for model parameter contracts.
// A NULL or empty column reads back as an empty object.
type JSON map[string]interface{}

func (j JSON) Value() (driver.Value, error) {
	if j == nil {
		return "{}", nil
	}
	return json.Marshal(j)
}

func (j *JSON) Scan(value interface{}) error {
	var raw []byte
	switch v := value.(type) {
	case nil:
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("scan JSON column: unsupported type %T", value)
	}

	out := JSON{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			return err
		}
	}
	*j = out
	return nil
}
