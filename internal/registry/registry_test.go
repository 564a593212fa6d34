package registry

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/admit/internal/dispatch"
	"github.com/roach88/admit/internal/ir"
)

var _ dispatch.Registry = (*Static)(nil)

const blogManifest = `
package manifest

app: {
	name: "blog"

	module: posts: {
		runtime:     "cue"
		entry_types: ["post", "draft"]
		code_file:   "validators/posts.cue"
	}

	module: comments: {
		entry_types: ["comment"]
		code: """
			validate_comment: {
				entry: {text: string & != ""}
				ctx: {...}
				result: *"" | string
			}
			"""
	}
}
`

const postsCode = `validate_post: {
	entry: {title: string & != ""}
	ctx: {...}
	result: *"" | string
}
`

func writeManifestDir(t *testing.T, manifest string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.cue"), []byte(manifest), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "validators"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "validators", "posts.cue"), []byte(postsCode), 0644))
	return dir
}

func TestLoadDir(t *testing.T) {
	dir := writeManifestDir(t, blogManifest)

	res, err := LoadDir(dir)
	require.NoError(t, err)
	assert.Equal(t, 1, res.FileCount)

	m := res.Manifest
	assert.Equal(t, "blog", m.Name)
	require.Len(t, m.Modules, 2)
	assert.Equal(t, "posts", m.Modules[0].Name)
	assert.Equal(t, []string{"post", "draft"}, m.Modules[0].EntryTypes)
	assert.Equal(t, postsCode, string(m.Modules[0].Code))
	assert.Equal(t, "comments", m.Modules[1].Name)
	assert.Equal(t, ir.RuntimeCUE, m.Modules[1].Runtime)
	assert.Contains(t, string(m.Modules[1].Code), "validate_comment")
}

func TestLoadDirErrors(t *testing.T) {
	_, err := LoadDir(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)

	_, err = LoadDir(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no CUE files")

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.cue"), []byte("package manifest\napp: {"), 0644))
	_, err = LoadDir(dir)
	assert.Error(t, err)
}

func TestCompileSourceRejects(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		field string
	}{
		{
			name:  "missing app",
			src:   `other: 1`,
			field: "app",
		},
		{
			name:  "missing name",
			src:   `app: module: m: {entry_types: ["post"], code: "x: 1"}`,
			field: "name",
		},
		{
			name:  "empty name",
			src:   `app: {name: "", module: m: {entry_types: ["post"], code: "x: 1"}}`,
			field: "name",
		},
		{
			name:  "no modules",
			src:   `app: name: "blog"`,
			field: "module",
		},
		{
			name:  "no code",
			src:   `app: {name: "blog", module: m: entry_types: ["post"]}`,
			field: "module.m.code",
		},
		{
			name:  "empty code",
			src:   `app: {name: "blog", module: m: {entry_types: ["post"], code: ""}}`,
			field: "module.m.code",
		},
		{
			name:  "code and code_file",
			src:   `app: {name: "blog", module: m: {entry_types: ["post"], code: "x: 1", code_file: "m.cue"}}`,
			field: "module.m.code",
		},
		{
			name:  "missing code file",
			src:   `app: {name: "blog", module: m: {entry_types: ["post"], code_file: "nope.cue"}}`,
			field: "module.m.code_file",
		},
		{
			name:  "type name not an identifier",
			src:   `app: {name: "blog", module: m: {entry_types: ["post.title"], code: "x: 1"}}`,
			field: "module.m.entry_types",
		},
		{
			name:  "unsupported runtime",
			src:   `app: {name: "blog", module: m: {runtime: "wasm", entry_types: ["post"], code: "x: 1"}}`,
			field: "module.m.runtime",
		},
		{
			name: "type claimed twice",
			src: `app: {
				name: "blog"
				module: a: {entry_types: ["post"], code: "x: 1"}
				module: b: {entry_types: ["post"], code: "x: 1"}
			}`,
			field: "module.b.entry_types",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CompileSource("app.cue", []byte(tt.src), t.TempDir())
			require.Error(t, err)
			ce, ok := AsCompileError(err)
			require.True(t, ok, "got %T: %v", err, err)
			assert.Equal(t, tt.field, ce.Field)
		})
	}
}

func TestCompileErrorPosition(t *testing.T) {
	_, err := CompileSource("app.cue", []byte("app: {\n\tname: \"blog\"\n\tmodule: m: {entry_types: [\"a-b\"], code: \"x: 1\"}\n}\n"), ".")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "app.cue:3:")
}

func TestCompileSourceSyntaxError(t *testing.T) {
	_, err := CompileSource("app.cue", []byte("app: {"), ".")
	require.Error(t, err)
	ce, ok := AsCompileError(err)
	require.True(t, ok)
	assert.Equal(t, "cue", ce.Field)
}

func TestStatic(t *testing.T) {
	m, err := CompileSource("app.cue", []byte(`app: {
		name: "blog"
		module: posts: {entry_types: ["post"], code: "validate_post: {}"}
	}`), ".")
	require.NoError(t, err)
	s := NewStatic(m)
	ctx := context.Background()

	assert.Equal(t, "blog", s.Name())

	id, ok, err := s.ResolveModuleForType(ctx, "post")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, ir.ModuleIdentity{App: "blog", Module: "posts"}, id)

	_, ok, err = s.ResolveModuleForType(ctx, "comment")
	require.NoError(t, err)
	assert.False(t, ok)

	code, ok, err := s.FetchCode(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "validate_post: {}", string(code.Code))
	assert.Equal(t, ir.CodeDigest(code.Code), code.Digest)

	_, ok, _ = s.FetchCode(ctx, ir.ModuleIdentity{App: "other", Module: "posts"})
	assert.False(t, ok)
}

func TestHolderReload(t *testing.T) {
	dir := writeManifestDir(t, blogManifest)
	h, err := NewHolder(dir)
	require.NoError(t, err)
	defer h.Stop()

	assert.Equal(t, "blog", h.Current().Name())

	var seen []string
	var reloads []error
	h.OnChange(func(s *Static) { seen = append(seen, s.Name()) })
	h.OnReload(func(err error) { reloads = append(reloads, err) })

	renamed := `package manifest
app: {name: "journal", module: posts: {entry_types: ["post"], code: "validate_post: {}"}}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.cue"), []byte(renamed), 0644))
	require.NoError(t, h.Reload())
	assert.Equal(t, "journal", h.Current().Name())
	assert.Equal(t, []string{"journal"}, seen)

	// A broken manifest keeps the previous registry.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.cue"), []byte("package manifest\napp: {"), 0644))
	assert.Error(t, h.Reload())
	assert.Equal(t, "journal", h.Current().Name())
	assert.Equal(t, []string{"journal"}, seen)

	require.Len(t, reloads, 2)
	assert.NoError(t, reloads[0])
	assert.Error(t, reloads[1])
}

func TestHolderWatch(t *testing.T) {
	dir := writeManifestDir(t, blogManifest)
	h, err := NewHolder(dir)
	require.NoError(t, err)
	require.NoError(t, h.Watch())
	defer h.Stop()

	updated := `package manifest
app: {name: "watched", module: posts: {entry_types: ["post"], code: "validate_post: {}"}}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.cue"), []byte(updated), 0644))

	assert.Eventually(t, func() bool {
		return h.Current().Name() == "watched"
	}, 5*time.Second, 20*time.Millisecond)
}

func TestHolderStopIdempotent(t *testing.T) {
	h, err := NewHolder(writeManifestDir(t, blogManifest))
	require.NoError(t, err)
	h.Stop()
	h.Stop()
}
