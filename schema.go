package typesensei

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/kailas-cloud/typesensei/internal/tag"
	"github.com/kailas-cloud/typesensei/schema"
)

// Schemer lets a document type supply its own schema instead of the one
// derived from its struct tags.
type Schemer interface {
	TypesenseSchema() schema.Collection
}

var (
	metaType    = reflect.TypeFor[Meta]()
	schemerType = reflect.TypeFor[Schemer]()

	schemaCache sync.Map // reflect.Type -> schemaEntry
)

type schemaEntry struct {
	c   schema.Collection
	err error
}

// SchemaOf derives the collection schema of T from its `typesense` tags.
// Results are cached per type.
func SchemaOf[T any]() (schema.Collection, error) {
	return DeriveSchema(reflect.TypeFor[T]())
}

// DeriveSchema derives the collection schema of a struct type.
func DeriveSchema(t reflect.Type) (schema.Collection, error) {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if e, ok := schemaCache.Load(t); ok {
		entry := e.(schemaEntry)
		return entry.c.Clone(), entry.err
	}
	c, err := deriveSchema(t, map[reflect.Type]bool{})
	schemaCache.Store(t, schemaEntry{c: c, err: err})
	return c.Clone(), err
}

func deriveSchema(t reflect.Type, visiting map[reflect.Type]bool) (schema.Collection, error) {
	if t.Kind() != reflect.Struct {
		return schema.Collection{}, fmt.Errorf("typesensei: type %s is not a struct", t)
	}
	if c, ok := customSchema(t); ok {
		return c, nil
	}
	if visiting[t] {
		return schema.Collection{}, fmt.Errorf("typesensei: type %s flattens itself", t)
	}
	visiting[t] = true
	defer delete(visiting, t)

	opts, err := structOptions(t)
	if err != nil {
		return schema.Collection{}, err
	}
	c := schema.Collection{
		Name:               opts.Name,
		EnableNestedFields: opts.Nested,
		SymbolsToIndex:     opts.Symbols,
		TokenSeparators:    opts.Separators,
	}
	if c.Name == "" {
		c.Name = tag.CollectionName(t.Name())
	}

	for i := range t.NumField() {
		f := t.Field(i)
		if f.Name == "_" || !f.IsExported() || f.Type == metaType {
			continue
		}
		if err := applyField(&c, f, opts.RenameAll, visiting); err != nil {
			return schema.Collection{}, fmt.Errorf("typesensei: %s.%s: %w", t.Name(), f.Name, err)
		}
	}
	if seen := duplicateName(c.Fields); seen != "" {
		return schema.Collection{}, fmt.Errorf("typesensei: %s: %w: %s", t.Name(), schema.ErrDuplicateField, seen)
	}
	return c, nil
}

// applyField appends the schema entries of one struct field to c.
func applyField(c *schema.Collection, f reflect.StructField, rule tag.Rule, visiting map[reflect.Type]bool) error {
	opt, err := tag.ParseField(f.Tag.Get(tag.Key))
	if err != nil {
		return err
	}
	if opt.Skip {
		return nil
	}
	// Embedded structs are inlined, as encoding/json does.
	if f.Anonymous && !opt.Object && !opt.ObjectArray {
		opt.Flatten = true
	}

	ft := f.Type
	optional := opt.IsOptional()
	if ft.Kind() == reflect.Pointer {
		optional = true
		ft = ft.Elem()
	}

	if opt.Flatten {
		return applyFlatten(c, ft, opt, optional, visiting)
	}

	name := opt.Name
	if name == "" {
		name = rule.Apply(f.Name)
	}
	if name == "id" {
		return nil
	}

	typ, err := fieldType(ft, opt)
	if err != nil {
		return err
	}
	if typ == schema.TypeObject || typ == schema.TypeObjectArray {
		c.EnableNestedFields = true
	}

	sf := schema.Field{
		Type:   typ,
		Name:   name,
		Facet:  opt.Facet,
		Index:  opt.Index,
		Sort:   opt.Sort,
		Infix:  opt.Infix,
		Locale: opt.Locale,
		NumDim: opt.NumDim,
	}
	if optional {
		sf.Optional = schema.Bool(true)
	}
	c.Fields = append(c.Fields, sf)

	if opt.DefaultSort {
		if c.DefaultSortingField != "" {
			return fmt.Errorf("duplicate default_sorting_field, %s already set", c.DefaultSortingField)
		}
		c.DefaultSortingField = name
	}
	return nil
}

func applyFlatten(
	c *schema.Collection, ft reflect.Type, opt tag.Field, optional bool, visiting map[reflect.Type]bool,
) error {
	if opt.Name != "" {
		return errors.New("flattened fields take their names from the flattened type")
	}
	switch ft.Kind() {
	case reflect.Map, reflect.Interface:
		// Dynamic documents: every undeclared field is auto-detected.
		c.Fields = append(c.Fields, schema.Field{Type: schema.TypeAuto, Name: ".*"})
		return nil
	case reflect.Struct:
	default:
		return fmt.Errorf("flatten requires a struct or map type, got %s", ft)
	}

	sub, err := deriveSchema(ft, visiting)
	if err != nil {
		return err
	}
	o := schema.Override{Facet: opt.Facet, Index: opt.Index, Sort: opt.Sort}
	if optional {
		o.Optional = schema.Bool(true)
	}
	c.Splice(sub, o)
	return nil
}

// fieldType resolves the wire type of a non-flattened field and checks the
// object options against the Go type.
func fieldType(ft reflect.Type, opt tag.Field) (schema.FieldType, error) {
	if opt.ObjectArray {
		if ft.Kind() != reflect.Slice && ft.Kind() != reflect.Array {
			return "", fmt.Errorf("object_array requires a slice type, got %s", ft)
		}
		if opt.Type == "" {
			return schema.TypeObjectArray, nil
		}
	}
	if opt.Object && !opt.ObjectArray {
		if ft.Kind() != reflect.Struct && ft.Kind() != reflect.Map {
			return "", fmt.Errorf("object requires a struct type, got %s", ft)
		}
		if opt.Type == "" {
			return schema.TypeObject, nil
		}
	}
	if opt.Type != "" {
		typ := schema.FieldType(opt.Type)
		if !typ.Valid() {
			return "", fmt.Errorf("%w: %q", schema.ErrUnknownType, opt.Type)
		}
		return typ, nil
	}
	typ, ok := schema.TypeFor(ft)
	if !ok {
		return "", fmt.Errorf("no field type for %s", ft)
	}
	return typ, nil
}

func structOptions(t reflect.Type) (tag.Struct, error) {
	for i := range t.NumField() {
		f := t.Field(i)
		if f.Type != metaType {
			continue
		}
		opts, err := tag.ParseStruct(f.Tag.Get(tag.Key))
		if err != nil {
			return tag.Struct{}, fmt.Errorf("typesensei: %s: %w", t.Name(), err)
		}
		return opts, nil
	}
	return tag.Struct{RenameAll: tag.SnakeCase}, nil
}

func customSchema(t reflect.Type) (schema.Collection, bool) {
	switch {
	case t.Implements(schemerType):
		return reflect.Zero(t).Interface().(Schemer).TypesenseSchema(), true
	case reflect.PointerTo(t).Implements(schemerType):
		return reflect.New(t).Interface().(Schemer).TypesenseSchema(), true
	}
	return schema.Collection{}, false
}

func duplicateName(fields []schema.Field) string {
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		if seen[f.Name] {
			return f.Name
		}
		seen[f.Name] = true
	}
	return ""
}
