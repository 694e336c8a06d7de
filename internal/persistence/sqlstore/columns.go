package sqlstore

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang/snappy"
)

// jsonValue writes v as a JSON text parameter; nil values become NULL.
type jsonValue struct{ v any }

func (j jsonValue) Value() (driver.Value, error) {
	b, err := json.Marshal(j.v)
	if err != nil {
		return nil, err
	}
	if string(b) == "null" {
		return nil, nil
	}
	return string(b), nil
}

// jsonScan decodes a JSON column into dst. NULL leaves dst untouched.
type jsonScan struct{ dst any }

func (j jsonScan) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, j.dst)
	case string:
		return json.Unmarshal([]byte(v), j.dst)
	default:
		// Some drivers hand back decoded JSON; normalise through encoding.
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("json column: %w", err)
		}
		return json.Unmarshal(b, j.dst)
	}
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

// timeScan reads timestamps stored natively or as text.
type timeScan struct{ dst *time.Time }

func (t timeScan) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*t.dst = time.Time{}
		return nil
	case time.Time:
		*t.dst = v.UTC()
		return nil
	case string:
		parsed, err := parseTime(v)
		*t.dst = parsed
		return err
	case []byte:
		parsed, err := parseTime(string(v))
		*t.dst = parsed
		return err
	}
	return fmt.Errorf("timestamp column: unsupported type %T", src)
}

// nullTimeScan is timeScan for nullable columns.
type nullTimeScan struct{ dst **time.Time }

func (t nullTimeScan) Scan(src any) error {
	if src == nil {
		*t.dst = nil
		return nil
	}
	var v time.Time
	if err := (timeScan{dst: &v}).Scan(src); err != nil {
		return err
	}
	*t.dst = &v
	return nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func nullString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

// compressed stores JSON documents snappy-encoded.
func compress(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return snappy.Encode(nil, b), nil
}

func decompress(data []byte, dst any) error {
	raw, err := snappy.Decode(nil, data)
	if err != nil {
		return fmt.Errorf("snapshot blob: %w", err)
	}
	return json.Unmarshal(raw, dst)
}
