package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"cuelang.org/go/cue/token"

	"github.com/roach88/admit/internal/dispatch"
	"github.com/roach88/admit/internal/registry"
	"github.com/roach88/admit/internal/store"
)

// LoadError is a manifest loading error with its CLI error code.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadManifests compiles the manifest directory dir. Every error it returns
// is a *LoadError.
func LoadManifests(dir string) (*registry.LoadResult, error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("manifest directory not found: %s", dir)}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing manifest directory: %v", err)}
	}
	if !info.IsDir() {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}
	}

	files, err := registry.FindCUEFiles(dir)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}
	}
	if len(files) == 0 {
		return nil, &LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}
	}

	result, err := registry.LoadDir(dir)
	if err != nil {
		return nil, convertCompileError(err)
	}
	return result, nil
}

func convertCompileError(err error) *LoadError {
	if ce, ok := registry.AsCompileError(err); ok {
		return &LoadError{
			Code:    MapFieldToErrorCode(ce.Field),
			Message: ce.Message,
			Pos:     ce.Pos,
		}
	}
	return &LoadError{Code: ErrCodeLoadFailed, Message: err.Error()}
}

// Error code constants, unified across all CLI commands.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed
	ErrCodeWriteFailed = "E007" // File write error
	ErrCodeBadInput    = "E008" // Unreadable or invalid flag input

	// Manifest errors
	ErrCodeAppMissing  = "E101" // No app struct
	ErrCodeAppName     = "E102" // Missing or empty app name
	ErrCodeNoModules   = "E103" // No modules declared
	ErrCodeRuntime     = "E104" // Unsupported module runtime
	ErrCodeEntryTypes  = "E105" // Invalid or duplicate entry type
	ErrCodeModuleCode  = "E106" // Missing, empty or unreadable module code
	ErrCodeModuleFuncs = "E107" // Module code lacks declared validate_ functions

	// Dispatch errors
	ErrCodeDispatch        = "E200" // Unclassified dispatch failure
	ErrCodeMalformedEntry  = "E201"
	ErrCodeMalformedCtx    = "E202"
	ErrCodeInvalidTypeName = "E203"
	ErrCodeRegistryLookup  = "E204"
	ErrCodeAppNotFound     = "E205"

	// Store errors
	ErrCodeStoreOpen       = "E301"
	ErrCodeStoreImport     = "E302"
	ErrCodeStoreRead       = "E303"
	ErrCodeVerdictNotFound = "E304"

	// Scenario and service errors
	ErrCodeScenario = "E401"
	ErrCodeConfig   = "E402"
	ErrCodeServe    = "E403"
)

// MapFieldToErrorCode maps a registry.CompileError field to an error code.
// Module fields are reported as "module.<name>.<field>".
func MapFieldToErrorCode(field string) string {
	switch field {
	case "app":
		return ErrCodeAppMissing
	case "name":
		return ErrCodeAppName
	case "module":
		return ErrCodeNoModules
	case "cue":
		return ErrCodeBuildFailed
	}
	if rest, ok := strings.CutPrefix(field, "module."); ok {
		if i := strings.LastIndexByte(rest, '.'); i >= 0 {
			switch rest[i+1:] {
			case "runtime":
				return ErrCodeRuntime
			case "entry_types":
				return ErrCodeEntryTypes
			case "code", "code_file":
				return ErrCodeModuleCode
			}
		}
	}
	return ErrCodeGeneric
}

// MapDispatchErrorToCode maps a dispatch error to an error code.
func MapDispatchErrorToCode(err error) string {
	var de *dispatch.Error
	if !errors.As(err, &de) {
		return ErrCodeDispatch
	}
	switch de.Code {
	case dispatch.ErrCodeMalformedEntry:
		return ErrCodeMalformedEntry
	case dispatch.ErrCodeMalformedContext:
		return ErrCodeMalformedCtx
	case dispatch.ErrCodeInvalidTypeName:
		return ErrCodeInvalidTypeName
	case dispatch.ErrCodeRegistryLookup:
		return ErrCodeRegistryLookup
	default:
		return ErrCodeDispatch
	}
}

// registrySource selects where a command resolves modules from: a manifest
// directory compiled in-process, or an application imported into a store.
type registrySource struct {
	Manifests string
	Database  string
	App       string
}

func (s registrySource) validate() error {
	switch {
	case s.Manifests != "" && s.App != "":
		return errors.New("--manifests and --app are mutually exclusive")
	case s.Manifests == "" && s.Database == "":
		return errors.New("one of --manifests or --db is required")
	case s.Manifests == "" && s.App == "":
		return errors.New("--app is required with --db")
	}
	return nil
}

// openRegistry resolves the source into a registry. The returned store is
// nil unless --db was given; the caller closes it.
func (s registrySource) openRegistry(ctx context.Context) (dispatch.Registry, *store.Store, error) {
	var st *store.Store
	if s.Database != "" {
		var err error
		st, err = store.Open(s.Database)
		if err != nil {
			return nil, nil, &LoadError{Code: ErrCodeStoreOpen, Message: fmt.Sprintf("failed to open database: %v", err)}
		}
	}

	if s.Manifests != "" {
		result, err := LoadManifests(s.Manifests)
		if err != nil {
			closeStore(st)
			return nil, nil, err
		}
		return registry.NewStatic(result.Manifest), st, nil
	}

	apps, err := st.Apps(ctx)
	if err != nil {
		closeStore(st)
		return nil, nil, &LoadError{Code: ErrCodeStoreRead, Message: fmt.Sprintf("listing applications: %v", err)}
	}
	for _, name := range apps {
		if name == s.App {
			return st.Registry(s.App), st, nil
		}
	}
	closeStore(st)
	return nil, nil, &LoadError{Code: ErrCodeAppNotFound, Message: fmt.Sprintf("application %q is not imported in %s", s.App, s.Database)}
}

func closeStore(st *store.Store) {
	if st != nil {
		_ = st.Close()
	}
}
