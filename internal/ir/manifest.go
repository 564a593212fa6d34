package ir

// AppManifest is a compiled application descriptor: the application's name
// and the modules that own validation for its entry types.
type AppManifest struct {
	Name    string       `json:"name"`
	Modules []ModuleSpec `json:"modules"`
}

// ModuleSpec declares one module of an application.
type ModuleSpec struct {
	Name       string   `json:"name"`
	Runtime    string   `json:"runtime"`
	EntryTypes []string `json:"entry_types"`
	Code       []byte   `json:"code"`
}

// ModuleFor returns the module declaring the given entry type name.
func (m *AppManifest) ModuleFor(typeName string) (ModuleSpec, bool) {
	for _, mod := range m.Modules {
		for _, t := range mod.EntryTypes {
			if t == typeName {
				return mod, true
			}
		}
	}
	return ModuleSpec{}, false
}

// Module returns the module with the given name.
func (m *AppManifest) Module(name string) (ModuleSpec, bool) {
	for _, mod := range m.Modules {
		if mod.Name == name {
			return mod, true
		}
	}
	return ModuleSpec{}, false
}
