// Package tag parses `typesense` struct tags. The same grammar drives the
// runtime schema derivation and the code generator.
package tag

import (
	"fmt"
	"strconv"
	"strings"
)

// Key is the struct tag key.
const Key = "typesense"

// Field holds the options of one struct field.
type Field struct {
	Name string // explicit wire name; empty means derived from the identifier
	Skip bool

	Facet *bool
	Index *bool
	Sort  *bool
	Infix *bool

	Optional    bool
	Flatten     bool
	Object      bool
	ObjectArray bool
	DefaultSort bool

	Type   string
	NumDim int
	Locale string
}

// IsOptional reports whether the tag alone makes the field optional.
// Unindexed fields are always optional.
func (f Field) IsOptional() bool {
	return f.Optional || (f.Index != nil && !*f.Index)
}

// ParseField parses a field tag value such as "title,facet,sort".
func ParseField(s string) (Field, error) {
	var f Field
	if s == "-" {
		f.Skip = true
		return f, nil
	}
	name, rest, _ := strings.Cut(s, ",")
	f.Name = name
	if rest == "" {
		return f, nil
	}

	for _, opt := range strings.Split(rest, ",") {
		key, val, hasVal := strings.Cut(strings.TrimSpace(opt), "=")
		switch key {
		case "facet", "index", "sort", "infix":
			b, err := boolOption(key, val, hasVal)
			if err != nil {
				return Field{}, err
			}
			switch key {
			case "facet":
				f.Facet = &b
			case "index":
				f.Index = &b
			case "sort":
				f.Sort = &b
			case "infix":
				f.Infix = &b
			}
		case "optional":
			b, err := boolOption(key, val, hasVal)
			if err != nil {
				return Field{}, err
			}
			f.Optional = b
		case "flatten":
			f.Flatten = true
		case "object":
			f.Object = true
		case "object_array":
			f.ObjectArray = true
		case "default_sorting_field":
			f.DefaultSort = true
		case "type":
			if val == "" {
				return Field{}, fmt.Errorf("option type: empty value")
			}
			f.Type = val
		case "num_dim":
			n, err := strconv.Atoi(val)
			if err != nil || n <= 0 {
				return Field{}, fmt.Errorf("option num_dim: invalid value %q", val)
			}
			f.NumDim = n
		case "locale":
			f.Locale = val
		case "":
		default:
			return Field{}, fmt.Errorf("unknown option %q", key)
		}
	}

	if f.Flatten && (f.Object || f.ObjectArray) {
		return Field{}, fmt.Errorf("flatten cannot be combined with object")
	}
	if f.Object && f.ObjectArray {
		return Field{}, fmt.Errorf("object and object_array are exclusive")
	}
	return f, nil
}

func boolOption(key, val string, hasVal bool) (bool, error) {
	if !hasVal {
		return true, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("option %s: invalid bool %q", key, val)
	}
	return b, nil
}

// Struct holds collection-level options from the Meta marker field.
type Struct struct {
	Name       string
	RenameAll  Rule
	Nested     bool
	Symbols    []string
	Separators []string
}

// ParseStruct parses a marker tag such as "name=books,rename_all=camelCase".
func ParseStruct(s string) (Struct, error) {
	st := Struct{RenameAll: SnakeCase}
	for _, opt := range strings.Split(s, ",") {
		key, val, _ := strings.Cut(strings.TrimSpace(opt), "=")
		switch key {
		case "name":
			st.Name = val
		case "rename_all":
			r, err := ParseRule(val)
			if err != nil {
				return Struct{}, err
			}
			st.RenameAll = r
		case "nested":
			st.Nested = true
		case "symbols":
			st.Symbols = chars(val)
		case "separators":
			st.Separators = chars(val)
		case "":
		default:
			return Struct{}, fmt.Errorf("unknown collection option %q", key)
		}
	}
	return st, nil
}

func chars(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}
