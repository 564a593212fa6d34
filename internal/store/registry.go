package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/admit/internal/ir"
)

// Registry is an Application Registry reading imported manifests from the
// store. Lookups always see the latest import.
type Registry struct {
	store *Store
	app   string
}

// Registry returns the store-backed registry of app. The application does
// not have to be imported yet: lookups then find nothing.
func (s *Store) Registry(app string) *Registry {
	return &Registry{store: s, app: app}
}

// Name implements dispatch.Registry.
func (r *Registry) Name() string {
	return r.app
}

// ResolveModuleForType implements dispatch.Registry.
func (r *Registry) ResolveModuleForType(ctx context.Context, typeName string) (ir.ModuleIdentity, bool, error) {
	var module string
	err := r.store.db.QueryRowContext(ctx, `
		SELECT module FROM module_entry_types WHERE app = ? AND entry_type = ?
	`, r.app, typeName).Scan(&module)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.ModuleIdentity{}, false, nil
	}
	if err != nil {
		return ir.ModuleIdentity{}, false, fmt.Errorf("resolve module for %q: %w", typeName, err)
	}
	return ir.ModuleIdentity{App: r.app, Module: module}, true, nil
}

// FetchCode implements dispatch.Registry.
func (r *Registry) FetchCode(ctx context.Context, id ir.ModuleIdentity) (ir.CodeArtifact, bool, error) {
	if id.App != r.app {
		return ir.CodeArtifact{}, false, nil
	}
	return r.store.fetchCode(ctx, id.App, id.Module)
}
