package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSONMap is a free-form key-value bag persisted as JSON text (jsonb in
// Postgres). It backs SkuMaster.ExtraData/Aliases, Store.APIConfig, and
// InventoryEvent.Metadata/RetryEntry.Metadata: all four are kept opaque at
// the storage layer per the "free-form JSON attribute bags" redesign note,
// and parsed only at the point of use by the component that owns the
// defined subset of keys.
type JSONMap map[string]any

// Value implements driver.Valuer.
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]any(m))
}

// Scan implements sql.Scanner.
func (m *JSONMap) Scan(src any) error {
	if src == nil {
		*m = JSONMap{}
		return nil
	}
	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("models: JSONMap.Scan: unsupported type %T", src)
	}
	if len(raw) == 0 {
		*m = JSONMap{}
		return nil
	}
	out := JSONMap{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("models: JSONMap.Scan: %w", err)
	}
	*m = out
	return nil
}

// GetString reads a string-typed key, returning "" if absent or of another
// type.
func (m JSONMap) GetString(key string) string {
	if m == nil {
		return ""
	}
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
