package registry

import (
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/roach88/admit/internal/dispatch"
	"github.com/roach88/admit/internal/ir"
)

// CompileManifest parses the "app" struct of a manifest into an AppManifest.
// baseDir resolves code_file paths.
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(src)
//	m, err := CompileManifest(v.LookupPath(cue.ParsePath("app")), ".")
func CompileManifest(v cue.Value, baseDir string) (*ir.AppManifest, error) {
	if !v.Exists() {
		return nil, &CompileError{Field: "app", Message: "app is required"}
	}
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	m := &ir.AppManifest{}

	nameVal := v.LookupPath(cue.ParsePath("name"))
	if !nameVal.Exists() {
		return nil, &CompileError{Field: "name", Message: "name is required", Pos: v.Pos()}
	}
	name, err := nameVal.String()
	if err != nil {
		return nil, formatCUEError(err)
	}
	if name == "" {
		return nil, &CompileError{Field: "name", Message: "name must not be empty", Pos: nameVal.Pos()}
	}
	m.Name = name

	m.Modules, err = parseModules(v, baseDir)
	if err != nil {
		return nil, err
	}
	if len(m.Modules) == 0 {
		return nil, &CompileError{Field: "module", Message: "at least one module is required", Pos: v.Pos()}
	}
	return m, nil
}

// CompileSource compiles a single manifest source. Used by tests and by
// callers holding a manifest in memory.
func CompileSource(filename string, src []byte, baseDir string) (*ir.AppManifest, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	return CompileManifest(v.LookupPath(cue.ParsePath("app")), baseDir)
}

// parseModules extracts modules in declaration order and checks that each
// entry type is claimed by at most one module.
func parseModules(app cue.Value, baseDir string) ([]ir.ModuleSpec, error) {
	modVal := app.LookupPath(cue.ParsePath("module"))
	if !modVal.Exists() {
		return nil, nil
	}

	iter, err := modVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var modules []ir.ModuleSpec
	owners := make(map[string]string)
	for iter.Next() {
		modName := iter.Label()
		spec, err := parseModule(modName, iter.Value(), baseDir)
		if err != nil {
			return nil, err
		}
		for _, t := range spec.EntryTypes {
			if prev, dup := owners[t]; dup {
				return nil, &CompileError{
					Field:   fmt.Sprintf("module.%s.entry_types", modName),
					Message: fmt.Sprintf("entry type %q is already claimed by module %q", t, prev),
					Pos:     iter.Value().Pos(),
				}
			}
			owners[t] = modName
		}
		modules = append(modules, spec)
	}
	return modules, nil
}

func parseModule(name string, v cue.Value, baseDir string) (ir.ModuleSpec, error) {
	spec := ir.ModuleSpec{Name: name, Runtime: ir.RuntimeCUE}
	field := func(f string) string { return fmt.Sprintf("module.%s.%s", name, f) }

	if rtVal := v.LookupPath(cue.ParsePath("runtime")); rtVal.Exists() {
		rt, err := rtVal.String()
		if err != nil {
			return spec, formatCUEError(err)
		}
		if rt != ir.RuntimeCUE {
			return spec, &CompileError{Field: field("runtime"), Message: fmt.Sprintf("unsupported runtime %q", rt), Pos: rtVal.Pos()}
		}
		spec.Runtime = rt
	}

	typesVal := v.LookupPath(cue.ParsePath("entry_types"))
	if typesVal.Exists() {
		list, err := typesVal.List()
		if err != nil {
			return spec, formatCUEError(err)
		}
		for list.Next() {
			t, err := list.Value().String()
			if err != nil {
				return spec, formatCUEError(err)
			}
			if !dispatch.ValidTypeName(t) {
				return spec, &CompileError{
					Field:   field("entry_types"),
					Message: fmt.Sprintf("entry type %q must match [A-Za-z_][A-Za-z0-9_]*", t),
					Pos:     list.Value().Pos(),
				}
			}
			spec.EntryTypes = append(spec.EntryTypes, t)
		}
	}

	code, err := parseCode(v, baseDir, field)
	if err != nil {
		return spec, err
	}
	spec.Code = code
	return spec, nil
}

func parseCode(v cue.Value, baseDir string, field func(string) string) ([]byte, error) {
	codeVal := v.LookupPath(cue.ParsePath("code"))
	fileVal := v.LookupPath(cue.ParsePath("code_file"))

	switch {
	case codeVal.Exists() && fileVal.Exists():
		return nil, &CompileError{Field: field("code"), Message: "code and code_file are mutually exclusive", Pos: v.Pos()}
	case codeVal.Exists():
		s, err := codeVal.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		if s == "" {
			return nil, &CompileError{Field: field("code"), Message: "code must not be empty", Pos: codeVal.Pos()}
		}
		return []byte(s), nil
	case fileVal.Exists():
		rel, err := fileVal.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		path := rel
		if !filepath.IsAbs(path) {
			path = filepath.Join(baseDir, rel)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, &CompileError{Field: field("code_file"), Message: fmt.Sprintf("reading %s: %v", rel, err), Pos: fileVal.Pos()}
		}
		if len(data) == 0 {
			return nil, &CompileError{Field: field("code_file"), Message: fmt.Sprintf("%s is empty", rel), Pos: fileVal.Pos()}
		}
		return data, nil
	default:
		return nil, &CompileError{Field: field("code"), Message: "code or code_file is required", Pos: v.Pos()}
	}
}
