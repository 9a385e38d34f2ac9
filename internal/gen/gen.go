// Package gen generates the Model and Query companions of Go structs
// tagged for Typesense.
//
// For a struct Book it emits BookModel, a partial form of the document
// where every field tracks presence, and BookQuery, which records filter,
// sort and query_by clauses in call order and finalizes them into a
// typesensei.SearchQuery.
package gen

import (
	"errors"
	"fmt"
	"go/format"
	"go/token"
	"os"
	"path/filepath"
)

const runtimeImport = "github.com/kailas-cloud/typesensei"

// DefaultOutput is the file written next to the sources.
const DefaultOutput = "typesense_gen.go"

// Options configure one generator run.
type Options struct {
	Dir    string   // package directory
	Types  []string // types to generate; empty selects every tagged struct
	Output string   // output file name inside Dir
}

// Error is a diagnostic tied to a source position.
type Error struct {
	Pos token.Position
	Msg string
}

func (e *Error) Error() string {
	return e.Pos.String() + ": " + e.Msg
}

// Source returns the formatted companion source for opts.Dir without
// writing it. All diagnostics are joined into the returned error.
func Source(opts Options) ([]byte, error) {
	if opts.Output == "" {
		opts.Output = DefaultOutput
	}
	p, err := loadPackage(opts.Dir, opts.Output)
	if err != nil {
		return nil, err
	}

	a := &analyser{pkg: p, imports: map[string]string{}}
	names := a.selectTypes(opts.Types)
	if len(a.errs) == 0 && len(names) == 0 {
		return nil, fmt.Errorf("package %s: no tagged struct types", p.name)
	}
	var infos []*typeInfo
	for _, name := range names {
		if a.selected[name] {
			infos = append(infos, a.analyse(name))
		}
	}
	if len(a.errs) == 0 {
		a.complete(infos)
	}
	if len(a.errs) > 0 {
		return nil, errors.Join(a.errs...)
	}

	withJSON := false
	for _, t := range infos {
		withJSON = withJSON || t.hasFlatten()
	}

	var e emitter
	e.header(p.name, a.sortedImports(), withJSON)
	for _, t := range infos {
		e.model(t)
		e.query(t)
	}

	out, err := format.Source(e.buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("format generated code: %w", err)
	}
	return out, nil
}

// Generate writes the companion source into opts.Dir and returns the path
// of the written file.
func Generate(opts Options) (string, error) {
	src, err := Source(opts)
	if err != nil {
		return "", err
	}
	name := opts.Output
	if name == "" {
		name = DefaultOutput
	}
	target := filepath.Join(opts.Dir, name)
	if err := os.WriteFile(target, src, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", target, err)
	}
	return target, nil
}
