package typesensei

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
)

// Meta marks a document struct and carries collection-level options in
// its tag:
//
//	type Book struct {
//		_     typesensei.Meta `typesense:"name=books,rename_all=camelCase"`
//		Title string          `typesense:",sort"`
//	}
type Meta struct{}

// ModelPtr is satisfied by a pointer to a generated model M of document T.
type ModelPtr[T, M any] interface {
	*M
	Load(src T)
	Build() (T, error)
	IsEmpty() bool
}

// QueryPtr is satisfied by a pointer to a generated query type Q.
type QueryPtr[Q any] interface {
	*Q
	QueryNode
}

// MissingFieldError is returned when a model is converted back to its
// document type while a required field is NotSet.
type MissingFieldError struct {
	TypeName string
	Field    string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("field %s is missing in partial object for %s", e.Field, e.TypeName)
}

// Is makes errors.Is(err, ErrMissingField) match.
func (e *MissingFieldError) Is(target error) bool { return target == ErrMissingField }

// Require returns the value of a required model field.
func Require[T any](f Field[T], typeName, field string) (T, error) {
	v, ok := f.Value()
	if !ok {
		return v, &MissingFieldError{TypeName: typeName, Field: field}
	}
	return v, nil
}

// MarshalFlat encodes each part as a JSON object and splices their members
// into one object, in order. Parts encoding to null or {} add nothing, and
// a key already written by an earlier part is skipped.
func MarshalFlat(parts ...any) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	seen := map[string]bool{}
	for _, p := range parts {
		raw, err := json.Marshal(p)
		if err != nil {
			return nil, err
		}
		if bytes.Equal(bytes.TrimSpace(raw), jsonNull) {
			continue
		}
		members, err := objectMembers(raw)
		if err != nil {
			return nil, fmt.Errorf("typesensei: flattened %T does not encode as an object", p)
		}
		for _, m := range members {
			if seen[m.key] {
				continue
			}
			seen[m.key] = true
			if len(seen) > 1 {
				buf.WriteByte(',')
			}
			writeMember(&buf, m)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalFlat distributes the members of an object over parts. Keys in
// own belong to the caller. Every other key goes to the first struct part
// that declares it, and map parts collect the keys no earlier part took.
func UnmarshalFlat(data []byte, own []string, parts ...any) error {
	if bytes.Equal(bytes.TrimSpace(data), jsonNull) {
		return nil
	}
	members, err := objectMembers(data)
	if err != nil {
		return err
	}
	taken := make(map[string]bool, len(own))
	for _, k := range own {
		taken[k] = true
	}

	for _, p := range parts {
		rest := members[:0:0]
		for _, m := range members {
			if !taken[m.key] {
				rest = append(rest, m)
			}
		}
		if len(rest) == 0 {
			return nil
		}

		rv := reflect.ValueOf(p)
		if rv.Kind() == reflect.Pointer && rv.Elem().Kind() == reflect.Map {
			if err := unmarshalMap(rv.Elem(), rest, taken); err != nil {
				return err
			}
			continue
		}

		if err := json.Unmarshal(encodeMembers(rest), p); err != nil {
			return err
		}
		// The keys a part declares are the ones it encodes again.
		raw, err := json.Marshal(p)
		if err != nil {
			return err
		}
		declared, err := objectMembers(raw)
		if err != nil {
			continue
		}
		for _, m := range declared {
			taken[m.key] = true
		}
	}
	return nil
}

func unmarshalMap(m reflect.Value, members []member, taken map[string]bool) error {
	kt := m.Type().Key()
	if kt.Kind() != reflect.String {
		return fmt.Errorf("typesensei: flattened %s must have string keys", m.Type())
	}
	if m.IsNil() {
		m.Set(reflect.MakeMapWithSize(m.Type(), len(members)))
	}
	et := m.Type().Elem()
	for _, mb := range members {
		v := reflect.New(et)
		if err := json.Unmarshal(mb.value, v.Interface()); err != nil {
			return fmt.Errorf("typesensei: flattened key %q: %w", mb.key, err)
		}
		m.SetMapIndex(reflect.ValueOf(mb.key).Convert(kt), v.Elem())
		taken[mb.key] = true
	}
	return nil
}

type member struct {
	key   string
	value json.RawMessage
}

// objectMembers lists the members of a JSON object in document order.
func objectMembers(data []byte) ([]member, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("typesensei: expected a JSON object")
	}
	var out []member
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, _ := tok.(string)
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, err
		}
		out = append(out, member{key: key, value: value})
	}
	return out, nil
}

func encodeMembers(members []member) []byte {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, m := range members {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeMember(&buf, m)
	}
	buf.WriteByte('}')
	return buf.Bytes()
}

func writeMember(buf *bytes.Buffer, m member) {
	key, _ := json.Marshal(m.key)
	buf.Write(key)
	buf.WriteByte(':')
	buf.Write(m.value)
}
