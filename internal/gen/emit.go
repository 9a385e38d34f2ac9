package gen

import (
	"bytes"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// emitter accumulates generated source. Formatting is left to go/format.
type emitter struct {
	buf bytes.Buffer
}

func (e *emitter) Printf(format string, args ...any) {
	fmt.Fprintf(&e.buf, format, args...)
}

func (e *emitter) header(pkgName string, imports [][2]string, withJSON bool) {
	e.Printf("// Code generated by typesensei-gen. DO NOT EDIT.\n\n")
	e.Printf("package %s\n\n", pkgName)
	e.Printf("import (\n")
	if withJSON {
		e.Printf("\t\"encoding/json\"\n\n")
	}
	for _, imp := range imports {
		if importName(imp[1]) == imp[0] {
			e.Printf("\t%q\n", imp[1])
		} else {
			e.Printf("\t%s %q\n", imp[0], imp[1])
		}
	}
	e.Printf("\t%q\n", runtimeImport)
	e.Printf(")\n")
}

// names of the generated types and their parameter lists for one source
// type.
type naming struct {
	t *typeInfo
}

func (n naming) model() string { return n.t.Name + "Model" }
func (n naming) query() string { return n.t.Name + "Query" }

func (n naming) jsonAlias() string { return lowerFirst(n.t.Name) + "ModelJSON" }

// source is the instantiated source type, e.g. Page[T].
func (n naming) source() string { return n.t.Name + n.args(func(typeParam) []string { return nil }) }

func (n naming) modelRef() string { return n.model() + n.args(modelExtra) }
func (n naming) queryRef() string { return n.query() + n.args(queryExtra) }
func (n naming) aliasRef() string { return n.jsonAlias() + n.args(modelExtra) }

func (n naming) modelParams() string { return n.params(modelExtraDecl) }
func (n naming) queryParams() string { return n.params(queryExtraDecl) }

func modelExtra(p typeParam) []string {
	if !p.Flatten {
		return nil
	}
	return []string{p.Name + "Model", "P" + p.Name + "Model"}
}

func modelExtraDecl(p typeParam) []string {
	if !p.Flatten {
		return nil
	}
	return []string{
		p.Name + "Model any",
		fmt.Sprintf("P%sModel typesensei.ModelPtr[%s, %sModel]", p.Name, p.Name, p.Name),
	}
}

func queryExtra(p typeParam) []string {
	if !p.Flatten {
		return nil
	}
	return []string{p.Name + "Query", "P" + p.Name + "Query"}
}

func queryExtraDecl(p typeParam) []string {
	if !p.Flatten {
		return nil
	}
	return []string{
		p.Name + "Query any",
		fmt.Sprintf("P%sQuery typesensei.QueryPtr[%sQuery]", p.Name, p.Name),
	}
}

func (n naming) args(extra func(typeParam) []string) string {
	if !n.t.generic() {
		return ""
	}
	var out []string
	for _, p := range n.t.Params {
		out = append(out, p.Name)
		out = append(out, extra(p)...)
	}
	return "[" + strings.Join(out, ", ") + "]"
}

func (n naming) params(extra func(typeParam) []string) string {
	if !n.t.generic() {
		return ""
	}
	var out []string
	for _, p := range n.t.Params {
		out = append(out, p.Name+" "+p.Constraint)
		out = append(out, extra(p)...)
	}
	return "[" + strings.Join(out, ", ") + "]"
}

func lowerFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToLower(r)) + s[size:]
}

// modelFieldType is the type of f inside the generated model.
func modelFieldType(f field) string {
	switch f.Kind {
	case kindFlatten:
		return f.Target + "Model"
	case kindFlattenParam:
		return f.Target + "Model"
	case kindFlattenMap:
		return f.Type
	case kindObject:
		if f.Pointer {
			return "typesensei.Field[*" + f.Target + "Model]"
		}
		return "typesensei.Field[" + f.Target + "Model]"
	case kindObjectArray:
		return "typesensei.Field[[]" + f.Target + "Model]"
	}
	return "typesensei.Field[" + f.Type + "]"
}

// modelValueType is the argument type of the generated setters.
func modelValueType(f field) string {
	t := modelFieldType(f)
	if f.Kind.flattened() {
		return t
	}
	return strings.TrimSuffix(strings.TrimPrefix(t, "typesensei.Field["), "]")
}

func (e *emitter) model(t *typeInfo) {
	n := naming{t}
	model, ref := n.model(), n.modelRef()

	e.Printf("\n// %s is the partial form of %s. Every field tracks whether it is set.\n", model, t.Name)
	e.Printf("type %s%s struct {\n", model, n.modelParams())
	for _, f := range t.Fields {
		if f.Kind.flattened() {
			e.Printf("\t%s %s `json:\"-\"`\n", f.GoName, modelFieldType(f))
			continue
		}
		e.Printf("\t%s %s `json:%s`\n", f.GoName, modelFieldType(f), strconv.Quote(f.Wire+",omitzero"))
	}
	e.Printf("}\n")

	for _, f := range t.Fields {
		e.accessors(n, f)
	}
	e.load(n)
	e.build(n)

	e.Printf("\n// IsEmpty reports whether no field is set.\n")
	e.Printf("func (m %s) IsEmpty() bool {\n", ref)
	var conds []string
	for _, f := range t.Fields {
		switch f.Kind {
		case kindFlatten:
			conds = append(conds, fmt.Sprintf("m.%s.IsEmpty()", f.GoName))
		case kindFlattenParam:
			conds = append(conds, fmt.Sprintf("P%sModel(&m.%s).IsEmpty()", f.Target, f.GoName))
		case kindFlattenMap:
			conds = append(conds, fmt.Sprintf("len(m.%s) == 0", f.GoName))
		default:
			conds = append(conds, fmt.Sprintf("m.%s.IsNotSet()", f.GoName))
		}
	}
	if len(conds) == 0 {
		e.Printf("\treturn true\n}\n")
	} else {
		e.Printf("\treturn %s\n}\n", strings.Join(conds, " &&\n\t\t"))
	}

	if t.hasFlatten() {
		e.flatJSON(n)
	}

	if !t.generic() {
		e.Printf("\n// IntoModel returns the model of src with every field set.\n")
		e.Printf("func (src %s) IntoModel() %s {\n", t.Name, model)
		e.Printf("\tvar m %s\n\tm.Load(src)\n\treturn m\n}\n", model)
	}
}

func (e *emitter) accessors(n naming, f field) {
	ref := n.modelRef()
	vt := modelValueType(f)

	e.Printf("\n// Set%s sets %s.\n", f.GoName, f.wireOrGo())
	if f.Kind.flattened() {
		e.Printf("func (m *%s) Set%s(v %s) { m.%s = v }\n", ref, f.GoName, vt, f.GoName)
	} else {
		e.Printf("func (m *%s) Set%s(v %s) { m.%s.Set(v) }\n", ref, f.GoName, vt, f.GoName)
	}

	e.Printf("\n// Unset%s marks %s as not set.\n", f.GoName, f.wireOrGo())
	if f.Kind.flattened() {
		e.Printf("func (m *%s) Unset%s() {\n\tvar zero %s\n\tm.%s = zero\n}\n", ref, f.GoName, vt, f.GoName)
	} else {
		e.Printf("func (m *%s) Unset%s() { m.%s.Unset() }\n", ref, f.GoName, f.GoName)
	}

	e.Printf("\n// With%s returns a copy of m with %s set.\n", f.GoName, f.wireOrGo())
	e.Printf("func (m %s) With%s(v %s) %s {\n", ref, f.GoName, vt, ref)
	e.Printf("\tm.Set%s(v)\n\treturn m\n}\n", f.GoName)
}

func (f field) wireOrGo() string {
	if f.Wire != "" {
		return f.Wire
	}
	return f.GoName
}

func (e *emitter) load(n naming) {
	t := n.t
	e.Printf("\n// Load sets every field of m from src.\n")
	e.Printf("func (m *%s) Load(src %s) {\n", n.modelRef(), n.source())
	for _, f := range t.Fields {
		if f.Injected {
			continue
		}
		g := f.GoName
		switch f.Kind {
		case kindFlatten:
			if f.Pointer {
				e.Printf("\tif src.%s != nil {\n\t\tm.%s.Load(*src.%s)\n\t}\n", g, g, g)
			} else {
				e.Printf("\tm.%s.Load(src.%s)\n", g, g)
			}
		case kindFlattenParam:
			e.Printf("\tP%sModel(&m.%s).Load(src.%s)\n", f.Target, g, g)
		case kindFlattenMap:
			e.Printf("\tm.%s = src.%s\n", g, g)
		case kindObject:
			if f.Pointer {
				e.Printf("\tif src.%s != nil {\n\t\tv := src.%s.IntoModel()\n\t\tm.%s.Set(&v)\n\t} else {\n\t\tm.%s.Set(nil)\n\t}\n", g, g, g, g)
			} else {
				e.Printf("\tm.%s.Set(src.%s.IntoModel())\n", g, g)
			}
		case kindObjectArray:
			e.Printf("\tif src.%s != nil {\n", g)
			e.Printf("\t\tvs := make([]%sModel, len(src.%s))\n", f.Target, g)
			e.Printf("\t\tfor i := range src.%s {\n\t\t\tvs[i] = src.%s[i].IntoModel()\n\t\t}\n", g, g)
			e.Printf("\t\tm.%s.Set(vs)\n\t} else {\n\t\tm.%s.Set(nil)\n\t}\n", g, g)
		default:
			e.Printf("\tm.%s.Set(src.%s)\n", g, g)
		}
	}
	e.Printf("}\n")
}

func (e *emitter) build(n naming) {
	t := n.t
	src := n.source()
	fail := fmt.Sprintf("return %s{}, err", src)
	missing := func(f field) string {
		return fmt.Sprintf("return %s{}, &typesensei.MissingFieldError{TypeName: %q, Field: %q}", src, t.Name, f.Wire)
	}

	var body emitter
	needErr := false
	for _, f := range t.Fields {
		if f.Injected {
			continue
		}
		g := f.GoName
		switch f.Kind {
		case kindFlatten:
			if f.Pointer {
				body.Printf("\tif !m.%s.IsEmpty() {\n\t\tv, err := m.%s.Build()\n\t\tif err != nil {\n\t\t\t%s\n\t\t}\n\t\tout.%s = &v\n\t}\n", g, g, fail, g)
			} else {
				needErr = true
				body.Printf("\tif out.%s, err = m.%s.Build(); err != nil {\n\t\t%s\n\t}\n", g, g, fail)
			}
		case kindFlattenParam:
			needErr = true
			body.Printf("\tif out.%s, err = P%sModel(&m.%s).Build(); err != nil {\n\t\t%s\n\t}\n", g, f.Target, g, fail)
		case kindFlattenMap:
			body.Printf("\tout.%s = m.%s\n", g, g)
		case kindObject:
			needErr = needErr || !f.Pointer
			switch {
			case f.Pointer:
				body.Printf("\tif p := m.%s.Get(); p != nil {\n\t\tv, err := p.Build()\n\t\tif err != nil {\n\t\t\t%s\n\t\t}\n\t\tout.%s = &v\n\t}\n", g, fail, g)
			case f.Optional:
				body.Printf("\tif v, ok := m.%s.Value(); ok {\n\t\tif out.%s, err = v.Build(); err != nil {\n\t\t\t%s\n\t\t}\n\t}\n", g, g, fail)
			default:
				body.Printf("\tif v, ok := m.%s.Value(); !ok {\n\t\t%s\n\t} else if out.%s, err = v.Build(); err != nil {\n\t\t%s\n\t}\n", g, missing(f), g, fail)
			}
		case kindObjectArray:
			needErr = true
			if f.Optional {
				body.Printf("\tif vs, ok := m.%s.Value(); ok && vs != nil {\n", g)
			} else {
				body.Printf("\tif m.%s.IsNotSet() {\n\t\t%s\n\t}\n", g, missing(f))
				body.Printf("\tif vs := m.%s.Get(); vs != nil {\n", g)
			}
			body.Printf("\t\tout.%s = make([]%s, len(vs))\n", g, f.Target)
			body.Printf("\t\tfor i := range vs {\n\t\t\tif out.%s[i], err = vs[i].Build(); err != nil {\n\t\t\t\t%s\n\t\t\t}\n\t\t}\n\t}\n", g, fail)
		default:
			if f.Optional {
				body.Printf("\tout.%s = m.%s.Get()\n", g, g)
			} else {
				needErr = true
				body.Printf("\tif out.%s, err = typesensei.Require(m.%s, %q, %q); err != nil {\n\t\t%s\n\t}\n", g, g, t.Name, f.Wire, fail)
			}
		}
	}

	e.Printf("\n// Build converts m to a %s. A required field that is not set\n", t.Name)
	e.Printf("// fails with *typesensei.MissingFieldError.\n")
	e.Printf("func (m %s) Build() (%s, error) {\n", n.modelRef(), src)
	e.Printf("\tvar out %s\n", src)
	if needErr {
		e.Printf("\tvar err error\n")
	}
	e.buf.Write(body.buf.Bytes())
	e.Printf("\treturn out, nil\n}\n")
}

func (e *emitter) flatJSON(n naming) {
	t := n.t
	alias := n.aliasRef()
	// A flattened type parameter may declare an id of its own, so an
	// injected id does not claim the key.
	paramFlatten := slices.ContainsFunc(t.Fields, func(f field) bool { return f.Kind == kindFlattenParam })
	var parts, targets, own []string
	for _, f := range t.Fields {
		if f.Kind.flattened() {
			parts = append(parts, "m."+f.GoName)
			targets = append(targets, "&m."+f.GoName)
			continue
		}
		if f.Injected && paramFlatten {
			continue
		}
		own = append(own, strconv.Quote(f.Wire))
	}
	ownExpr := "nil"
	if len(own) > 0 {
		ownExpr = "[]string{" + strings.Join(own, ", ") + "}"
	}

	e.Printf("\ntype %s%s %s\n", n.jsonAlias(), n.modelParams(), n.modelRef())

	e.Printf("\n// MarshalJSON writes the flattened fields inline.\n")
	e.Printf("func (m %s) MarshalJSON() ([]byte, error) {\n", n.modelRef())
	e.Printf("\treturn typesensei.MarshalFlat(%s(m), %s)\n}\n", alias, strings.Join(parts, ", "))

	e.Printf("\n// UnmarshalJSON reads the flattened fields from the same object.\n")
	e.Printf("func (m *%s) UnmarshalJSON(data []byte) error {\n", n.modelRef())
	e.Printf("\tif err := json.Unmarshal(data, (*%s)(m)); err != nil {\n\t\treturn err\n\t}\n", alias)
	e.Printf("\treturn typesensei.UnmarshalFlat(data, %s, %s)\n}\n", ownExpr, strings.Join(targets, ", "))
}

// queryFieldType is the type of f inside the generated query.
func queryFieldType(f field) string {
	switch f.Kind {
	case kindFlatten, kindObject, kindObjectArray:
		return f.Target + "Query"
	case kindFlattenParam:
		return f.Target + "Query"
	case kindFlattenMap:
		return "typesensei.RawQuery"
	}
	return "typesensei.QueryState[" + f.Query + "]"
}

func (e *emitter) query(t *typeInfo) {
	n := naming{t}
	query, ref := n.query(), n.queryRef()

	e.Printf("\n// %s builds search clauses over %s fields. Clauses keep the order\n", query, t.Name)
	e.Printf("// in which they were added.\n")
	e.Printf("type %s%s struct {\n", query, n.queryParams())
	for _, f := range t.Fields {
		e.Printf("\t%s %s\n", f.GoName, queryFieldType(f))
	}
	e.Printf("}\n")

	e.Printf("\n// New%s returns a query bound to a fresh session.\n", query)
	e.Printf("func New%s%s() *%s {\n", query, n.queryParams(), ref)
	e.Printf("\tq := new(%s)\n\tq.Bind(typesensei.NewSession(), \"\")\n\treturn q\n}\n", ref)

	e.Printf("\n// Bind attaches every field to s, naming it under prefix.\n")
	e.Printf("func (q *%s) Bind(s *typesensei.Session, prefix string) {\n", ref)
	for _, f := range t.Fields {
		switch f.Kind {
		case kindFlatten, kindFlattenMap:
			e.Printf("\tq.%s.Bind(s, prefix)\n", f.GoName)
		case kindFlattenParam:
			e.Printf("\tP%sQuery(&q.%s).Bind(s, prefix)\n", f.Target, f.GoName)
		case kindObject, kindObjectArray:
			e.Printf("\tq.%s.Bind(s, prefix+%q)\n", f.GoName, f.Wire+".")
		default:
			e.Printf("\tq.%s.Bind(s, prefix+%q)\n", f.GoName, f.Wire)
		}
	}
	e.Printf("}\n")

	e.Printf("\n// Collect appends the recorded clauses to c.\n")
	e.Printf("func (q *%s) Collect(c *typesensei.Clauses) {\n", ref)
	for _, f := range t.Fields {
		if f.Kind == kindFlattenParam {
			e.Printf("\tP%sQuery(&q.%s).Collect(c)\n", f.Target, f.GoName)
			continue
		}
		e.Printf("\tq.%s.Collect(c)\n", f.GoName)
	}
	e.Printf("}\n")

	e.Printf("\n// Q finalizes the query with the free-text search text.\n")
	e.Printf("func (q *%s) Q(text string) typesensei.SearchQuery {\n", ref)
	e.Printf("\treturn typesensei.Finalize(q, text)\n}\n")
}
