package campaignflow

import (
	"bytes"
	"encoding/json"
)

// Field is a tri-state patch value: absent, explicitly null, or set.
// The zero value is absent. JSON decoding maps a missing key to absent
// and a literal null to Null.
type Field[T any] struct {
	present bool
	null    bool
	value   T
}

// Set returns a field carrying v
func Set[T any](v T) Field[T] {
	return Field[T]{present: true, value: v}
}

// Null returns a field that clears the stored value
func Null[T any]() Field[T] {
	return Field[T]{present: true, null: true}
}

// IsAbsent reports whether the patch leaves the stored value untouched
func (f Field[T]) IsAbsent() bool {
	return !f.present
}

// IsNull reports whether the patch clears the stored value
func (f Field[T]) IsNull() bool {
	return f.present && f.null
}

// IsSet reports whether the patch writes a value
func (f Field[T]) IsSet() bool {
	return f.present && !f.null
}

// Value returns the carried value and whether one is set
func (f Field[T]) Value() (T, bool) {
	return f.value, f.IsSet()
}

// Get returns the carried value, or the zero value when not set
func (f Field[T]) Get() T {
	return f.value
}

// UnmarshalJSON implements json.Unmarshaler
func (f *Field[T]) UnmarshalJSON(data []byte) error {
	f.present = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		f.null = true
		var zero T
		f.value = zero
		return nil
	}
	f.null = false
	return json.Unmarshal(data, &f.value)
}

// MarshalJSON implements json.Marshaler; absent fields encode as null
func (f Field[T]) MarshalJSON() ([]byte, error) {
	if !f.IsSet() {
		return []byte("null"), nil
	}
	return json.Marshal(f.value)
}
