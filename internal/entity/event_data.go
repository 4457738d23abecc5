package entity

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// EventData é o payload JSON livre das associações de bridge e dos
// touchpoints. Gravado como texto JSON (jsonb no Postgres).
type EventData map[string]any

func (d EventData) Value() (driver.Value, error) {
	if d == nil {
		return "{}", nil
	}
	b, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("marshal event data: %w", err)
	}
	return string(b), nil
}

func (d *EventData) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*d = nil
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("event data: unsupported type %T", src)
	}
	if len(raw) == 0 {
		*d = nil
		return nil
	}
	out := EventData{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("unmarshal event data: %w", err)
	}
	*d = out
	return nil
}

// String busca um valor string no caminho de objetos aninhados.
func (d EventData) String(path ...string) string {
	var cur any = map[string]any(d)
	for _, key := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			if em, isEventData := cur.(EventData); isEventData {
				m = em
			} else {
				return ""
			}
		}
		cur, ok = m[key]
		if !ok {
			return ""
		}
	}
	s, _ := cur.(string)
	return s
}
