package types

import (
	"encoding/json"
	"time"
)

// Unix timestamp at millisecond resolution
type UnixMilli int64

func NewUnixMilli(t time.Time) UnixMilli {
	return UnixMilli(t.UTC().UnixMilli())
}

func (u UnixMilli) Time() time.Time {
	return time.UnixMilli(int64(u)).UTC()
}

// A json field that may be absent, null or set. Absent fields leave stored values alone
type Optional[T any] struct {
	Value   *T
	Defined bool
}

// UnmarshalJSON only runs for keys present in the payload
func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	o.Defined = true
	return json.Unmarshal(data, &o.Value)
}

func (o *Optional[T]) MarshalJSON() ([]byte, error) {
	if !o.Defined {
		return nil, nil
	}

	return json.Marshal(o.Value)
}

// Get returns the value with null read as the zero value. ok is false when the field was absent
func (o Optional[T]) Get() (T, bool) {
	var zero T
	if !o.Defined {
		return zero, false
	}
	if o.Value == nil {
		return zero, true
	}
	return *o.Value, true
}

func NewFromVal[T any](v T) Optional[T] {
	return Optional[T]{Defined: true, Value: &v}
}
