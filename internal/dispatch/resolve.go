package dispatch

import (
	"context"
	"fmt"
	"reflect"

	"github.com/roach88/admit/internal/ir"
)

// Registry is the Application Registry of one application: which module
// owns an entry type, and that module's code.
//
// Absence is reported with ok=false. A non-nil error means the backend
// failed and the question could not be answered.
type Registry interface {
	// Name returns the application name.
	Name() string

	// ResolveModuleForType returns the module owning validation for typeName.
	ResolveModuleForType(ctx context.Context, typeName string) (ir.ModuleIdentity, bool, error)

	// FetchCode returns the code of a module.
	FetchCode(ctx context.Context, id ir.ModuleIdentity) (ir.CodeArtifact, bool, error)
}

// Resolve finds the owning module of typeName and fetches its code.
//
// ok=false means no validation logic exists for the type: no owning module,
// the module is gone, or its code is empty.
func Resolve(ctx context.Context, reg Registry, typeName string) (code ir.CodeArtifact, ok bool, err error) {
	if missingRegistry(reg) {
		return ir.CodeArtifact{}, false, newError(ErrCodeMissingRegistry, "resolve requires an application registry", nil)
	}
	id, found, err := reg.ResolveModuleForType(ctx, typeName)
	if err != nil {
		return ir.CodeArtifact{}, false, newError(ErrCodeRegistryLookup,
			fmt.Sprintf("resolving module for type %q", typeName), err)
	}
	if !found {
		return ir.CodeArtifact{}, false, nil
	}

	code, found, err = reg.FetchCode(ctx, id)
	if err != nil {
		return ir.CodeArtifact{}, false, newError(ErrCodeRegistryLookup,
			fmt.Sprintf("fetching code for module %s", id), err)
	}
	if !found || len(code.Code) == 0 {
		return ir.CodeArtifact{}, false, nil
	}
	if code.Module == (ir.ModuleIdentity{}) {
		code.Module = id
	}
	return code, true, nil
}

// missingRegistry reports whether reg is nil, including a nil pointer (or
// other nil reference) stored in the interface.
func missingRegistry(reg Registry) bool {
	if reg == nil {
		return true
	}
	v := reflect.ValueOf(reg)
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return v.IsNil()
	}
	return false
}
