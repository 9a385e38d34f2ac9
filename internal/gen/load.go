package gen

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// declared is a named type found in the package.
type declared struct {
	spec    *ast.TypeSpec
	file    *ast.File
	imports map[string]string // local name -> import path
}

func (d *declared) structType() (*ast.StructType, bool) {
	st, ok := d.spec.Type.(*ast.StructType)
	return st, ok
}

// pkg is the parsed source of one Go package.
type pkg struct {
	name  string
	fset  *token.FileSet
	types map[string]*declared
	order []string
}

var generatedHeader = regexp.MustCompile(`^// Code generated .* DO NOT EDIT\.$`)

// loadPackage parses the non-test Go files of dir, skipping skip and any
// generated file.
func loadPackage(dir, skip string) (*pkg, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read package dir: %w", err)
	}
	p := &pkg{fset: token.NewFileSet(), types: map[string]*declared{}}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") || name == skip {
			continue
		}
		f, err := parser.ParseFile(p.fset, filepath.Join(dir, name), nil, parser.ParseComments)
		if err != nil {
			return nil, err
		}
		if isGenerated(f) {
			continue
		}
		if p.name == "" {
			p.name = f.Name.Name
		} else if p.name != f.Name.Name {
			return nil, fmt.Errorf("%s: package %s, expected %s", name, f.Name.Name, p.name)
		}
		p.collect(f)
	}
	if p.name == "" {
		return nil, fmt.Errorf("no Go files in %s", dir)
	}
	return p, nil
}

func isGenerated(f *ast.File) bool {
	for _, cg := range f.Comments {
		if cg.Pos() >= f.Package {
			return false
		}
		for _, c := range cg.List {
			if generatedHeader.MatchString(c.Text) {
				return true
			}
		}
	}
	return false
}

func (p *pkg) collect(f *ast.File) {
	imports := make(map[string]string, len(f.Imports))
	for _, spec := range f.Imports {
		ipath, err := strconv.Unquote(spec.Path.Value)
		if err != nil {
			continue
		}
		name := importName(ipath)
		if spec.Name != nil {
			name = spec.Name.Name
		}
		imports[name] = ipath
	}

	for _, decl := range f.Decls {
		gd, ok := decl.(*ast.GenDecl)
		if !ok || gd.Tok != token.TYPE {
			continue
		}
		for _, s := range gd.Specs {
			ts := s.(*ast.TypeSpec)
			p.types[ts.Name.Name] = &declared{spec: ts, file: f, imports: imports}
			p.order = append(p.order, ts.Name.Name)
		}
	}
}

var majorVersion = regexp.MustCompile(`^v[0-9]+$`)

// importName guesses the package name of an import path.
func importName(ipath string) string {
	base := path.Base(ipath)
	if majorVersion.MatchString(base) {
		base = path.Base(path.Dir(ipath))
	}
	base = strings.TrimPrefix(base, "go-")
	return strings.ReplaceAll(base, "-", "")
}
