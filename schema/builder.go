package schema

import (
	"strings"
)

// FieldOption adjusts a field added through a Builder.
type FieldOption func(*Field)

// Facet enables faceting on the field.
func Facet() FieldOption { return func(f *Field) { f.Facet = Bool(true) } }

// NoIndex keeps the field stored but unindexed. Unindexed fields are
// optional.
func NoIndex() FieldOption {
	return func(f *Field) {
		f.Index = Bool(false)
		f.Optional = Bool(true)
	}
}

// Sort enables sorting on the field.
func Sort() FieldOption { return func(f *Field) { f.Sort = Bool(true) } }

// Optional allows documents without the field.
func Optional() FieldOption { return func(f *Field) { f.Optional = Bool(true) } }

// Infix enables infix search on the field.
func Infix() FieldOption { return func(f *Field) { f.Infix = Bool(true) } }

// Locale sets the tokenizer locale of a string field.
func Locale(l string) FieldOption { return func(f *Field) { f.Locale = l } }

// NumDim declares a float[] field as an embedding of n dimensions.
func NumDim(n int) FieldOption { return func(f *Field) { f.NumDim = n } }

// Builder is a fluent builder for collection schemas.
type Builder struct {
	c Collection
}

// New starts building the schema of the named collection.
func New(name string) *Builder {
	return &Builder{c: Collection{Name: name}}
}

// Add adds a field of the given type.
func (b *Builder) Add(name string, t FieldType, opts ...FieldOption) *Builder {
	f := Field{Name: name, Type: t}
	for _, o := range opts {
		o(&f)
	}
	b.c.Fields = append(b.c.Fields, f)
	return b
}

// String adds a string field.
func (b *Builder) String(name string, opts ...FieldOption) *Builder {
	return b.Add(name, TypeString, opts...)
}

// Int32 adds an int32 field.
func (b *Builder) Int32(name string, opts ...FieldOption) *Builder {
	return b.Add(name, TypeInt32, opts...)
}

// Int64 adds an int64 field.
func (b *Builder) Int64(name string, opts ...FieldOption) *Builder {
	return b.Add(name, TypeInt64, opts...)
}

// Float adds a float field.
func (b *Builder) Float(name string, opts ...FieldOption) *Builder {
	return b.Add(name, TypeFloat, opts...)
}

// Bool adds a bool field.
func (b *Builder) Bool(name string, opts ...FieldOption) *Builder {
	return b.Add(name, TypeBool, opts...)
}

// Geopoint adds a geopoint field.
func (b *Builder) Geopoint(name string, opts ...FieldOption) *Builder {
	return b.Add(name, TypeGeopoint, opts...)
}

// Embedding adds a float[] vector field of dim dimensions.
func (b *Builder) Embedding(name string, dim int, opts ...FieldOption) *Builder {
	return b.Add(name, TypeFloatArray, append([]FieldOption{NumDim(dim)}, opts...)...)
}

// Object adds a nested object field and enables nested fields.
func (b *Builder) Object(name string, opts ...FieldOption) *Builder {
	b.c.EnableNestedFields = true
	return b.Add(name, TypeObject, opts...)
}

// Auto adds a field whose type is detected from the documents. Use ".*"
// to accept every undeclared field.
func (b *Builder) Auto(name string, opts ...FieldOption) *Builder {
	return b.Add(name, TypeAuto, opts...)
}

// DefaultSortingField sets the field used when no sort_by is given.
func (b *Builder) DefaultSortingField(name string) *Builder {
	b.c.DefaultSortingField = name
	return b
}

// SymbolsToIndex keeps the given symbols as searchable tokens.
func (b *Builder) SymbolsToIndex(symbols ...string) *Builder {
	b.c.SymbolsToIndex = append(b.c.SymbolsToIndex, symbols...)
	return b
}

// TokenSeparators splits tokens on the given characters.
func (b *Builder) TokenSeparators(separators ...string) *Builder {
	b.c.TokenSeparators = append(b.c.TokenSeparators, separators...)
	return b
}

// Build validates and returns the schema.
func (b *Builder) Build() (Collection, error) {
	if err := b.c.Validate(); err != nil {
		return Collection{}, err
	}
	return b.c, nil
}

// MustBuild calls Build and panics on error.
func (b *Builder) MustBuild() Collection {
	c, err := b.Build()
	if err != nil {
		panic(err)
	}
	return c
}

// String returns a compact debug representation such as
// "books(title:string, year:int32 facet sort) sort=year".
func (c Collection) String() string {
	parts := make([]string, 0, len(c.Fields))
	for _, f := range c.Fields {
		s := f.Name + ":" + string(f.Type)
		for _, flag := range []struct {
			name string
			v    *bool
		}{{"facet", f.Facet}, {"index", f.Index}, {"sort", f.Sort}, {"optional", f.Optional}, {"drop", f.Drop}} {
			switch {
			case flag.v == nil:
			case *flag.v:
				s += " " + flag.name
			default:
				s += " !" + flag.name
			}
		}
		parts = append(parts, s)
	}
	out := c.Name + "(" + strings.Join(parts, ", ") + ")"
	if c.DefaultSortingField != "" {
		out += " sort=" + c.DefaultSortingField
	}
	return out
}
