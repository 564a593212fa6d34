package store

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/roach88/admit/internal/ir"
)

// createTestStore creates a new store in a temp directory for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// postsCode is long enough to be stored zstd-compressed.
var postsCode = []byte(`validate_post: {
	entry: {title: string & != "", body: string}
	ctx: {...}
	result: *"" | string
}
` + strings.Repeat("// padding to exercise compression\n", 8))

// createTestManifest creates a two-module manifest.
func createTestManifest(name string) *ir.AppManifest {
	return &ir.AppManifest{
		Name: name,
		Modules: []ir.ModuleSpec{
			{Name: "posts", Runtime: ir.RuntimeCUE, EntryTypes: []string{"post", "draft"}, Code: postsCode},
			{Name: "comments", Runtime: ir.RuntimeCUE, EntryTypes: []string{"comment"}, Code: []byte("validate_comment: {}")},
		},
	}
}

// createTestVerdict creates a verdict record with minimal required fields.
func createTestVerdict(token string, seq int64, outcome ir.Outcome) ir.VerdictRecord {
	return ir.VerdictRecord{
		Seq:          seq,
		Token:        token,
		App:          "blog",
		EntryType:    "post",
		EntryAddress: "addr-" + token,
		Outcome:      outcome,
	}
}
