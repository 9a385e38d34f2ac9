package gen

import (
	"fmt"
	"go/ast"
	"go/token"
	"go/types"
	"reflect"
	"slices"
	"sort"
	"strconv"

	"github.com/kailas-cloud/typesensei/internal/tag"
)

type fieldKind int

const (
	kindPlain        fieldKind = iota
	kindFlatten                // flattened generated struct
	kindFlattenParam           // flattened type parameter
	kindFlattenMap             // flattened map catching the remaining keys
	kindObject                 // nested generated struct
	kindObjectArray            // slice of nested generated structs
)

func (k fieldKind) flattened() bool {
	return k == kindFlatten || k == kindFlattenParam || k == kindFlattenMap
}

type typeParam struct {
	Name       string
	Constraint string
	Flatten    bool
}

type field struct {
	GoName   string
	Wire     string
	Kind     fieldKind
	Type     string // source type expression
	Query    string // element type used by the query state
	Target   string // generated type or type parameter behind the field
	Pointer  bool
	Optional bool
	Injected bool
	Pos      token.Pos
}

type typeInfo struct {
	Name   string
	Params []typeParam
	Fields []field
	Pos    token.Pos
}

// hasFlatten reports whether the model needs custom JSON methods.
func (t *typeInfo) hasFlatten() bool {
	return slices.ContainsFunc(t.Fields, func(f field) bool { return f.Kind.flattened() })
}

func (t *typeInfo) hasMapFlatten() bool {
	return slices.ContainsFunc(t.Fields, func(f field) bool { return f.Kind == kindFlattenMap })
}

func (t *typeInfo) generic() bool { return len(t.Params) > 0 }

// Names reserved by the generated methods.
var reserved = map[string]bool{
	"Load": true, "Build": true, "IsEmpty": true, "IntoModel": true,
	"MarshalJSON": true, "UnmarshalJSON": true,
	"Bind": true, "Collect": true, "Q": true,
}

// analyser turns parsed declarations into typeInfo, collecting positioned
// diagnostics instead of stopping at the first one.
type analyser struct {
	pkg      *pkg
	selected map[string]bool
	imports  map[string]string // package name -> path used by generated code
	errs     []error
}

func (a *analyser) errorf(pos token.Pos, format string, args ...any) {
	a.errs = append(a.errs, &Error{Pos: a.pkg.fset.Position(pos), Msg: fmt.Sprintf(format, args...)})
}

// selectTypes picks the requested types, or every struct carrying
// typesense tags when none are requested.
func (a *analyser) selectTypes(names []string) []string {
	a.selected = map[string]bool{}
	if len(names) == 0 {
		for _, name := range a.pkg.order {
			if d := a.pkg.types[name]; hasTags(d) {
				a.selected[name] = true
				names = append(names, name)
			}
		}
		return names
	}
	for _, name := range names {
		d, ok := a.pkg.types[name]
		if !ok {
			a.errs = append(a.errs, fmt.Errorf("type %s not found in package %s", name, a.pkg.name))
			continue
		}
		if _, ok := d.structType(); !ok {
			a.errorf(d.spec.Pos(), "%s is not a struct type", name)
			continue
		}
		a.selected[name] = true
	}
	return names
}

func hasTags(d *declared) bool {
	st, ok := d.structType()
	if !ok {
		return false
	}
	for _, f := range st.Fields.List {
		if _, ok := lookupTag(f); ok {
			return true
		}
	}
	return false
}

func lookupTag(f *ast.Field) (string, bool) {
	if f.Tag == nil {
		return "", false
	}
	raw, err := strconv.Unquote(f.Tag.Value)
	if err != nil {
		return "", false
	}
	return reflect.StructTag(raw).Lookup(tag.Key)
}

func (a *analyser) analyse(name string) *typeInfo {
	d := a.pkg.types[name]
	st, _ := d.structType()
	info := &typeInfo{Name: name, Pos: d.spec.Pos()}

	params := map[string]int{}
	if tps := d.spec.TypeParams; tps != nil {
		for _, fld := range tps.List {
			for _, n := range fld.Names {
				params[n.Name] = len(info.Params)
				info.Params = append(info.Params, typeParam{Name: n.Name, Constraint: types.ExprString(fld.Type)})
				a.useImports(d, fld.Type)
			}
		}
	}

	opts := tag.Struct{RenameAll: tag.SnakeCase}
	for _, f := range st.Fields.List {
		if a.isMeta(d, f) {
			raw, _ := lookupTag(f)
			parsed, err := tag.ParseStruct(raw)
			if err != nil {
				a.errorf(f.Pos(), "%s: %v", name, err)
				continue
			}
			opts = parsed
		}
	}

	wires := map[string]bool{}
	for _, f := range st.Fields.List {
		if a.isMeta(d, f) {
			continue
		}
		raw, _ := lookupTag(f)
		opt, err := tag.ParseField(raw)
		if err != nil {
			a.errorf(f.Pos(), "%s: %v", name, err)
			continue
		}
		if opt.Skip {
			continue
		}

		goNames := fieldNames(f)
		if len(f.Names) == 0 && !opt.Object && !opt.ObjectArray {
			opt.Flatten = true
		}
		for _, goName := range goNames {
			if !ast.IsExported(goName) {
				continue
			}
			if reserved[goName] {
				a.errorf(f.Pos(), "%s.%s: field name collides with a generated method", name, goName)
				continue
			}
			fi, ok := a.classify(d, f, goName, opt, params, info)
			if !ok {
				continue
			}
			if !fi.Kind.flattened() {
				if fi.Wire == "" {
					fi.Wire = opts.RenameAll.Apply(goName)
				}
				if wires[fi.Wire] {
					a.errorf(f.Pos(), "%s: duplicate field name %q", name, fi.Wire)
					continue
				}
				wires[fi.Wire] = true
			}
			info.Fields = append(info.Fields, fi)
		}
	}
	return info
}

// complete checks wire names across flattened types, which needs every
// type analysed, and injects the id field into types where no field,
// flattened or not, maps to "id".
func (a *analyser) complete(infos []*typeInfo) {
	byName := make(map[string]*typeInfo, len(infos))
	for _, t := range infos {
		byName[t.Name] = t
	}
	for _, t := range infos {
		wires := map[string]bool{}
		for _, f := range t.Fields {
			var names []string
			switch f.Kind {
			case kindFlatten:
				names = flatWires(byName, f.Target, map[string]bool{t.Name: true})
			case kindFlattenParam, kindFlattenMap:
				continue
			default:
				names = []string{f.Wire}
			}
			for _, w := range names {
				if wires[w] {
					a.errorf(f.Pos, "%s.%s: duplicate field name %q after flattening", t.Name, f.GoName, w)
					continue
				}
				wires[w] = true
			}
		}

		if wires["id"] {
			continue
		}
		if slices.ContainsFunc(t.Fields, func(f field) bool { return f.GoName == "ID" }) {
			a.errorf(t.Pos, "%s: field ID must be named \"id\" on the wire", t.Name)
			continue
		}
		id := field{GoName: "ID", Wire: "id", Kind: kindPlain, Type: "string", Query: "string", Optional: true, Injected: true}
		t.Fields = append([]field{id}, t.Fields...)
	}
}

// flatWires lists the wire names a flattened type contributes to its
// parent. Injected ids stay with the parent.
func flatWires(byName map[string]*typeInfo, name string, visiting map[string]bool) []string {
	t, ok := byName[name]
	if !ok || visiting[name] {
		return nil
	}
	visiting[name] = true
	defer delete(visiting, name)

	var out []string
	for _, f := range t.Fields {
		switch {
		case f.Injected:
		case f.Kind == kindFlatten:
			out = append(out, flatWires(byName, f.Target, visiting)...)
		case f.Kind.flattened():
		default:
			out = append(out, f.Wire)
		}
	}
	return out
}

func fieldNames(f *ast.Field) []string {
	if len(f.Names) == 0 {
		return []string{embeddedName(f.Type)}
	}
	out := make([]string, len(f.Names))
	for i, n := range f.Names {
		out[i] = n.Name
	}
	return out
}

func embeddedName(e ast.Expr) string {
	switch t := e.(type) {
	case *ast.StarExpr:
		return embeddedName(t.X)
	case *ast.SelectorExpr:
		return t.Sel.Name
	case *ast.IndexExpr:
		return embeddedName(t.X)
	case *ast.IndexListExpr:
		return embeddedName(t.X)
	case *ast.Ident:
		return t.Name
	}
	return ""
}

// isMeta reports whether f is a typesensei.Meta marker field.
func (a *analyser) isMeta(d *declared, f *ast.Field) bool {
	sel, ok := f.Type.(*ast.SelectorExpr)
	if !ok || sel.Sel.Name != "Meta" {
		return false
	}
	x, ok := sel.X.(*ast.Ident)
	return ok && d.imports[x.Name] == runtimeImport
}

func (a *analyser) classify(
	d *declared, f *ast.Field, goName string, opt tag.Field, params map[string]int, info *typeInfo,
) (field, bool) {
	fi := field{GoName: goName, Wire: opt.Name, Type: types.ExprString(f.Type), Pos: f.Pos()}
	expr := f.Type
	if star, ok := expr.(*ast.StarExpr); ok {
		fi.Pointer = true
		expr = star.X
	}
	fi.Optional = fi.Pointer || opt.IsOptional()

	switch {
	case opt.Flatten:
		if opt.Name != "" {
			a.errorf(f.Pos(), "%s.%s: flattened fields take their names from the flattened type", info.Name, goName)
			return fi, false
		}
		switch t := expr.(type) {
		case *ast.Ident:
			if i, ok := params[t.Name]; ok {
				if fi.Pointer {
					a.errorf(f.Pos(), "%s.%s: flattened type parameter cannot be a pointer", info.Name, goName)
					return fi, false
				}
				info.Params[i].Flatten = true
				fi.Kind, fi.Target = kindFlattenParam, t.Name
				return fi, true
			}
			if a.selected[t.Name] {
				fi.Kind, fi.Target = kindFlatten, t.Name
				return fi, true
			}
			if _, ok := a.pkg.types[t.Name]; ok {
				a.errorf(f.Pos(), "%s.%s: flattened type %s is not generated", info.Name, goName, t.Name)
				return fi, false
			}
		case *ast.MapType:
			if fi.Pointer {
				a.errorf(f.Pos(), "%s.%s: flattened map cannot be a pointer", info.Name, goName)
				return fi, false
			}
			if k, ok := t.Key.(*ast.Ident); !ok || k.Name != "string" {
				a.errorf(f.Pos(), "%s.%s: flattened map must have string keys", info.Name, goName)
				return fi, false
			}
			if info.hasMapFlatten() {
				a.errorf(f.Pos(), "%s.%s: only one flattened map is allowed", info.Name, goName)
				return fi, false
			}
			a.useImports(d, f.Type)
			fi.Kind = kindFlattenMap
			return fi, true
		case *ast.IndexExpr, *ast.IndexListExpr:
			a.errorf(f.Pos(), "%s.%s: flattening an instantiated generic type is not supported", info.Name, goName)
			return fi, false
		}
		a.errorf(f.Pos(), "%s.%s: cannot flatten %s", info.Name, goName, fi.Type)
		return fi, false

	case opt.ObjectArray:
		arr, ok := expr.(*ast.ArrayType)
		if !ok || arr.Len != nil || fi.Pointer {
			a.errorf(f.Pos(), "%s.%s: object_array requires a slice", info.Name, goName)
			return fi, false
		}
		if id, ok := arr.Elt.(*ast.Ident); ok && a.selected[id.Name] {
			fi.Kind, fi.Target = kindObjectArray, id.Name
			return fi, true
		}

	case opt.Object:
		if id, ok := expr.(*ast.Ident); ok {
			if a.selected[id.Name] {
				fi.Kind, fi.Target = kindObject, id.Name
				return fi, true
			}
			if _, isParam := params[id.Name]; !isParam && !a.isStructOrMap(id.Name) {
				a.errorf(f.Pos(), "%s.%s: object requires a struct or map type", info.Name, goName)
				return fi, false
			}
		}

	default:
		// Generated structs nest as objects without an explicit option.
		if id, ok := expr.(*ast.Ident); ok && a.selected[id.Name] {
			fi.Kind, fi.Target = kindObject, id.Name
			return fi, true
		}
		if arr, ok := expr.(*ast.ArrayType); ok && arr.Len == nil && !fi.Pointer {
			if id, ok := arr.Elt.(*ast.Ident); ok && a.selected[id.Name] {
				fi.Kind, fi.Target = kindObjectArray, id.Name
				return fi, true
			}
		}
	}

	fi.Kind = kindPlain
	fi.Query = queryType(expr)
	a.useImports(d, f.Type)
	return fi, true
}

func (a *analyser) isStructOrMap(name string) bool {
	d, ok := a.pkg.types[name]
	if !ok {
		// Predeclared identifiers are never objects.
		return false
	}
	switch d.spec.Type.(type) {
	case *ast.StructType, *ast.MapType:
		return true
	}
	return false
}

// queryType is the value type filters compare against: the element type
// of slices and arrays. Byte slices are stored as strings.
func queryType(e ast.Expr) string {
	if arr, ok := e.(*ast.ArrayType); ok {
		if id, ok := arr.Elt.(*ast.Ident); ok && arr.Len == nil && (id.Name == "byte" || id.Name == "uint8") {
			return "string"
		}
		e = arr.Elt
		if star, ok := e.(*ast.StarExpr); ok {
			e = star.X
		}
	}
	return types.ExprString(e)
}

// useImports records the imports referenced by e in the declaring file.
func (a *analyser) useImports(d *declared, e ast.Expr) {
	ast.Inspect(e, func(n ast.Node) bool {
		sel, ok := n.(*ast.SelectorExpr)
		if !ok {
			return true
		}
		if x, ok := sel.X.(*ast.Ident); ok {
			if p, ok := d.imports[x.Name]; ok && p != runtimeImport {
				a.imports[x.Name] = p
			}
		}
		return false
	})
}

// sortedImports returns the collected imports as "name path" pairs.
func (a *analyser) sortedImports() [][2]string {
	out := make([][2]string, 0, len(a.imports))
	for name, p := range a.imports {
		out = append(out, [2]string{name, p})
	}
	sort.Slice(out, func(i, j int) bool { return out[i][1] < out[j][1] })
	return out
}
