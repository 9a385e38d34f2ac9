package typesensei

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
)

// Field is a presence-tracked value. The zero value is NotSet.
//
// Generated models tag every Field with `json:",omitzero"`, so a NotSet
// field is omitted from the encoded document instead of being sent as null.
type Field[T any] struct {
	value T
	set   bool
}

// NewField returns a Field holding v.
func NewField[T any](v T) Field[T] {
	return Field[T]{value: v, set: true}
}

// Unset returns a NotSet Field.
func Unset[T any]() Field[T] {
	return Field[T]{}
}

// FieldFromPtr returns Set(*p), or NotSet for a nil p.
func FieldFromPtr[T any](p *T) Field[T] {
	if p == nil {
		return Field[T]{}
	}
	return NewField(*p)
}

// Set stores v and marks the field as set.
func (f *Field[T]) Set(v T) {
	f.value = v
	f.set = true
}

// Unset clears the value.
func (f *Field[T]) Unset() {
	var zero T
	f.value = zero
	f.set = false
}

// IsSet reports whether a value is present.
func (f Field[T]) IsSet() bool { return f.set }

// IsNotSet reports whether the field was never set or was cleared.
func (f Field[T]) IsNotSet() bool { return !f.set }

// IsZero lets encoding/json omit NotSet fields tagged omitzero.
func (f Field[T]) IsZero() bool { return !f.set }

// Value returns the value and whether it is set.
func (f Field[T]) Value() (T, bool) { return f.value, f.set }

// Get returns the value, or the zero value of T when NotSet.
func (f Field[T]) Get() T { return f.value }

// Ptr returns a pointer to a copy of the value, or nil when NotSet.
func (f Field[T]) Ptr() *T {
	if !f.set {
		return nil
	}
	v := f.value
	return &v
}

// Take moves the value out and resets the field to NotSet.
func (f *Field[T]) Take() (T, bool) {
	v, ok := f.value, f.set
	f.Unset()
	return v, ok
}

// IsInnerNil reports whether f carries nothing to send: it is NotSet or
// explicitly set to nil.
func IsInnerNil[T any](f Field[*T]) bool {
	return !f.set || f.value == nil
}

func (f Field[T]) String() string {
	if !f.set {
		return "NotSet"
	}
	return fmt.Sprintf("Set(%v)", f.value)
}

// MarshalJSON encodes the value. A NotSet field only reaches here when the
// owning struct lacks omitzero, and encodes as null.
func (f Field[T]) MarshalJSON() ([]byte, error) {
	if !f.set {
		return []byte("null"), nil
	}
	return json.Marshal(f.value)
}

var jsonNull = []byte("null")

// UnmarshalJSON marks the field as set. An explicit null sets a nil value
// when T can hold one and leaves the field NotSet otherwise.
func (f *Field[T]) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), jsonNull) {
		if nullable(reflect.TypeFor[T]()) {
			var zero T
			f.Set(zero)
			return nil
		}
		f.Unset()
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	f.Set(v)
	return nil
}

func nullable(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Pointer, reflect.Slice, reflect.Map, reflect.Interface:
		return true
	default:
		return false
	}
}
