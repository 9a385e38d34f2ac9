// Package schema describes Typesense collection schemas.
package schema

import (
	"errors"
	"fmt"
	"slices"
)

// FieldType is a Typesense field type.
type FieldType string

// Field types accepted by Typesense.
const (
	TypeString      FieldType = "string"
	TypeStringArray FieldType = "string[]"
	TypeInt32       FieldType = "int32"
	TypeInt32Array  FieldType = "int32[]"
	TypeInt64       FieldType = "int64"
	TypeInt64Array  FieldType = "int64[]"
	TypeFloat       FieldType = "float"
	TypeFloatArray  FieldType = "float[]"
	TypeBool        FieldType = "bool"
	TypeBoolArray   FieldType = "bool[]"
	TypeGeopoint    FieldType = "geopoint"
	TypeGeopoints   FieldType = "geopoint[]"
	TypeObject      FieldType = "object"
	TypeObjectArray FieldType = "object[]"
	TypeStringAuto  FieldType = "string*"
	TypeAuto        FieldType = "auto"
)

var knownTypes = map[FieldType]bool{
	TypeString: true, TypeStringArray: true,
	TypeInt32: true, TypeInt32Array: true,
	TypeInt64: true, TypeInt64Array: true,
	TypeFloat: true, TypeFloatArray: true,
	TypeBool: true, TypeBoolArray: true,
	TypeGeopoint: true, TypeGeopoints: true,
	TypeObject: true, TypeObjectArray: true,
	TypeStringAuto: true, TypeAuto: true,
}

// Valid reports whether t is a type Typesense accepts.
func (t FieldType) Valid() bool { return knownTypes[t] }

// Array returns the array variant of a scalar type, or t itself.
func (t FieldType) Array() FieldType {
	switch t {
	case TypeString, TypeInt32, TypeInt64, TypeFloat, TypeBool, TypeGeopoint, TypeObject:
		return t + "[]"
	default:
		return t
	}
}

// IsNumeric reports whether values of t can be a default sorting field.
func (t FieldType) IsNumeric() bool {
	return t == TypeInt32 || t == TypeInt64 || t == TypeFloat
}

// Field is one entry of a collection schema.
type Field struct {
	Type     FieldType `json:"type,omitempty"`
	Name     string    `json:"name"`
	Facet    *bool     `json:"facet,omitempty"`
	Index    *bool     `json:"index,omitempty"`
	Sort     *bool     `json:"sort,omitempty"`
	Optional *bool     `json:"optional,omitempty"`
	Drop     *bool     `json:"drop,omitempty"`
	Infix    *bool     `json:"infix,omitempty"`
	Locale   string    `json:"locale,omitempty"`
	NumDim   int       `json:"num_dim,omitempty"`
}

// Collection is a collection schema as sent to the collections endpoint.
type Collection struct {
	Name                string   `json:"name"`
	Fields              []Field  `json:"fields"`
	DefaultSortingField string   `json:"default_sorting_field,omitempty"`
	EnableNestedFields  bool     `json:"enable_nested_fields,omitempty"`
	SymbolsToIndex      []string `json:"symbols_to_index,omitempty"`
	TokenSeparators     []string `json:"token_separators,omitempty"`
}

// Override is applied uniformly to every field spliced from a sub-schema.
// Nil flags leave the sub-schema's own value in place.
type Override struct {
	Prefix   string
	Facet    *bool
	Index    *bool
	Sort     *bool
	Optional *bool
}

func (o Override) apply(f Field) Field {
	f.Name = o.Prefix + f.Name
	if o.Facet != nil {
		f.Facet = Bool(*o.Facet)
	}
	if o.Index != nil {
		f.Index = Bool(*o.Index)
	}
	if o.Sort != nil {
		f.Sort = Bool(*o.Sort)
	}
	if o.Optional != nil {
		f.Optional = Bool(*o.Optional)
	}
	return f
}

// Extend appends other's fields. The first default sorting field wins.
func (c *Collection) Extend(other Collection) {
	c.Splice(other, Override{})
}

// Splice appends other's fields with the override applied to each of them.
// Nested-field support and symbols carry over from other.
func (c *Collection) Splice(other Collection, o Override) {
	for _, f := range other.Fields {
		c.Fields = append(c.Fields, o.apply(f))
	}
	if c.DefaultSortingField == "" && other.DefaultSortingField != "" {
		c.DefaultSortingField = o.Prefix + other.DefaultSortingField
	}
	c.EnableNestedFields = c.EnableNestedFields || other.EnableNestedFields
	for _, s := range other.SymbolsToIndex {
		if !contains(c.SymbolsToIndex, s) {
			c.SymbolsToIndex = append(c.SymbolsToIndex, s)
		}
	}
}

// Field returns the named field.
func (c *Collection) Field(name string) (Field, bool) {
	for _, f := range c.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Validation errors.
var (
	ErrEmptyName        = errors.New("schema: empty name")
	ErrDuplicateField   = errors.New("schema: duplicate field")
	ErrUnknownType      = errors.New("schema: unknown field type")
	ErrDefaultSortField = errors.New("schema: invalid default sorting field")
)

// Validate checks names, types and the default sorting field.
func (c *Collection) Validate() error {
	if c.Name == "" {
		return ErrEmptyName
	}
	seen := make(map[string]bool, len(c.Fields))
	for _, f := range c.Fields {
		if f.Name == "" {
			return fmt.Errorf("collection %s: %w", c.Name, ErrEmptyName)
		}
		if seen[f.Name] {
			return fmt.Errorf("collection %s: %w: %s", c.Name, ErrDuplicateField, f.Name)
		}
		seen[f.Name] = true
		if !f.Type.Valid() {
			return fmt.Errorf("collection %s: field %s: %w: %q", c.Name, f.Name, ErrUnknownType, f.Type)
		}
	}
	if c.DefaultSortingField != "" {
		f, ok := c.Field(c.DefaultSortingField)
		if !ok {
			return fmt.Errorf("collection %s: %w: %s not declared", c.Name, ErrDefaultSortField, c.DefaultSortingField)
		}
		if !f.Type.IsNumeric() {
			return fmt.Errorf("collection %s: %w: %s is %s", c.Name, ErrDefaultSortField, f.Name, f.Type)
		}
	}
	return nil
}

// Update is the payload of a schema change: new fields to add and
// existing ones to drop.
type Update struct {
	Fields []Field `json:"fields"`
}

// Drop marks a field for removal in an Update.
func Drop(name string) Field {
	return Field{Name: name, Drop: Bool(true)}
}

// Bool returns a pointer to b.
func Bool(b bool) *bool { return &b }

// Clone returns a copy of f that shares no flag with it.
func (f Field) Clone() Field {
	for _, p := range []**bool{&f.Facet, &f.Index, &f.Sort, &f.Optional, &f.Drop, &f.Infix} {
		if *p != nil {
			*p = Bool(**p)
		}
	}
	return f
}

// Clone returns a deep copy of c.
func (c Collection) Clone() Collection {
	fields := make([]Field, len(c.Fields))
	for i, f := range c.Fields {
		fields[i] = f.Clone()
	}
	c.Fields = fields
	c.SymbolsToIndex = slices.Clone(c.SymbolsToIndex)
	c.TokenSeparators = slices.Clone(c.TokenSeparators)
	return c
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
