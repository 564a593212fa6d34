package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const blogManifest = `package manifest

app: {
	name: "blog"

	module: posts: {
		entry_types: ["post"]
		code_file:   "validators/posts.cue"
	}
}
`

const postsValidator = `validate_post: {
	entry: {
		title: string & != ""
		body:  string
	}
	ctx:    {...}
	result: *"" | string

	if len(entry.body) > 40 {
		result: "body too long"
	}
}
`

// writeFile writes content to dir/name, creating parent directories.
func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// writeBlogManifest creates a manifest directory serving "post" entries.
func writeBlogManifest(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, dir, "app.cue", blogManifest)
	writeFile(t, dir, "validators/posts.cue", postsValidator)
	return dir
}

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// decodeResponse parses the first JSON envelope of out.
func decodeResponse(t *testing.T, out string) CLIResponse {
	t.Helper()
	var resp CLIResponse
	require.NoError(t, json.NewDecoder(strings.NewReader(out)).Decode(&resp), "output: %s", out)
	return resp
}

// dataMap returns the envelope's data as a map.
func dataMap(t *testing.T, resp CLIResponse) map[string]any {
	t.Helper()
	m, ok := resp.Data.(map[string]any)
	require.True(t, ok, "data is %T", resp.Data)
	return m
}
