package registry

import (
	"context"

	"github.com/roach88/admit/internal/ir"
)

// Static is an immutable in-memory Application Registry built from a
// manifest. Safe for concurrent use.
type Static struct {
	manifest *ir.AppManifest
	owners   map[string]string
	code     map[string]ir.CodeArtifact
}

// NewStatic indexes a compiled manifest. The manifest must not be modified
// afterwards.
func NewStatic(m *ir.AppManifest) *Static {
	s := &Static{
		manifest: m,
		owners:   make(map[string]string),
		code:     make(map[string]ir.CodeArtifact, len(m.Modules)),
	}
	for _, mod := range m.Modules {
		for _, t := range mod.EntryTypes {
			if _, taken := s.owners[t]; !taken {
				s.owners[t] = mod.Name
			}
		}
		s.code[mod.Name] = ir.CodeArtifact{
			Module:  ir.ModuleIdentity{App: m.Name, Module: mod.Name},
			Runtime: mod.Runtime,
			Code:    mod.Code,
			Digest:  ir.CodeDigest(mod.Code),
		}
	}
	return s
}

// Manifest returns the manifest the registry was built from.
func (s *Static) Manifest() *ir.AppManifest {
	return s.manifest
}

// Name implements dispatch.Registry.
func (s *Static) Name() string {
	return s.manifest.Name
}

// ResolveModuleForType implements dispatch.Registry.
func (s *Static) ResolveModuleForType(_ context.Context, typeName string) (ir.ModuleIdentity, bool, error) {
	mod, ok := s.owners[typeName]
	if !ok {
		return ir.ModuleIdentity{}, false, nil
	}
	return ir.ModuleIdentity{App: s.manifest.Name, Module: mod}, true, nil
}

// FetchCode implements dispatch.Registry.
func (s *Static) FetchCode(_ context.Context, id ir.ModuleIdentity) (ir.CodeArtifact, bool, error) {
	if id.App != s.manifest.Name {
		return ir.CodeArtifact{}, false, nil
	}
	code, ok := s.code[id.Module]
	return code, ok, nil
}
