package server

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/roach88/admit/internal/dispatch"
	"github.com/roach88/admit/internal/registry"
	"github.com/roach88/admit/internal/store"
)

// AppSet maps application names to registries. Applications come from
// manifest directories (hot-reloaded holders), fixed registries, or the
// store; directories take precedence over the store.
type AppSet struct {
	mu    sync.RWMutex
	apps  map[string]func() dispatch.Registry
	store *store.Store
}

// NewAppSet creates an AppSet backed by st. st may be nil.
func NewAppSet(st *store.Store) *AppSet {
	return &AppSet{
		apps:  make(map[string]func() dispatch.Registry),
		store: st,
	}
}

// AddHolder serves the application of a manifest directory. Each lookup
// takes the holder's current registry.
func (a *AppSet) AddHolder(h *registry.Holder) error {
	return a.add(h.Current().Name(), func() dispatch.Registry { return h.Current() })
}

// AddRegistry serves a fixed registry.
func (a *AppSet) AddRegistry(reg dispatch.Registry) error {
	return a.add(reg.Name(), func() dispatch.Registry { return reg })
}

func (a *AppSet) add(name string, get func() dispatch.Registry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, dup := a.apps[name]; dup {
		return fmt.Errorf("application %q is already served", name)
	}
	a.apps[name] = get
	return nil
}

// Lookup returns the registry of an application.
func (a *AppSet) Lookup(ctx context.Context, app string) (dispatch.Registry, bool, error) {
	a.mu.RLock()
	get, ok := a.apps[app]
	a.mu.RUnlock()
	if ok {
		return get(), true, nil
	}
	if a.store == nil {
		return nil, false, nil
	}
	names, err := a.store.Apps(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("list stored apps: %w", err)
	}
	if !slices.Contains(names, app) {
		return nil, false, nil
	}
	return a.store.Registry(app), true, nil
}

// Names lists every served application, sorted.
func (a *AppSet) Names(ctx context.Context) ([]string, error) {
	a.mu.RLock()
	names := make([]string, 0, len(a.apps))
	for name := range a.apps {
		names = append(names, name)
	}
	a.mu.RUnlock()

	if a.store != nil {
		stored, err := a.store.Apps(ctx)
		if err != nil {
			return nil, fmt.Errorf("list stored apps: %w", err)
		}
		for _, name := range stored {
			if !slices.Contains(names, name) {
				names = append(names, name)
			}
		}
	}
	slices.Sort(names)
	return names, nil
}
