package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/admit/internal/config"
	"github.com/roach88/admit/internal/server"
)

func loadServeConfig(t *testing.T, body string) *config.Config {
	t.Helper()
	path := writeFile(t, t.TempDir(), "admit.yaml", body)
	cfg, err := config.Load(path)
	require.NoError(t, err)
	return cfg
}

func TestServiceServesManifestApps(t *testing.T) {
	manifests := writeBlogManifest(t)
	db := filepath.Join(t.TempDir(), "admit.db")
	cfg := loadServeConfig(t, `
apps:
  - manifests: `+manifests+`
store:
  path: `+db+`
  record_verdicts: true
metrics:
  enabled: true
`)

	svc, err := newService(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	defer svc.Close()

	ts := httptest.NewServer(svc.server.Router())
	defer ts.Close()

	body, _ := json.Marshal(server.ValidateRequest{
		Type:  "post",
		Entry: json.RawMessage(`{"title": "hello", "body": "hi"}`),
		Token: "serve-1",
	})
	resp, err := http.Post(ts.URL+"/v1/apps/blog/validate", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var verdict server.VerdictResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&verdict))
	assert.Equal(t, "pass", string(verdict.Outcome))
	assert.True(t, verdict.Admitted)

	recorded, err := http.Get(ts.URL + "/v1/verdicts/serve-1")
	require.NoError(t, err)
	defer recorded.Body.Close()
	assert.Equal(t, http.StatusOK, recorded.StatusCode)

	metrics, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer metrics.Body.Close()
	text, err := io.ReadAll(metrics.Body)
	require.NoError(t, err)
	assert.Contains(t, string(text), `admit_verdicts_total{app="blog",outcome="pass"} 1`)
	assert.Contains(t, string(text), "go_goroutines")
}

func TestServiceWithoutStore(t *testing.T) {
	cfg := loadServeConfig(t, "apps:\n  - manifests: "+writeBlogManifest(t)+"\n")

	svc, err := newService(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	defer svc.Close()

	assert.Nil(t, svc.store)
	assert.Nil(t, svc.metrics)

	rec := httptest.NewRecorder()
	svc.server.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/verdicts/x", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServiceDuplicateApps(t *testing.T) {
	manifests := writeBlogManifest(t)
	cfg := loadServeConfig(t, "apps:\n  - manifests: "+manifests+"\n  - manifests: "+manifests+"\n")

	_, err := newService(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already served")
}

func TestServeBadConfig(t *testing.T) {
	path := writeFile(t, t.TempDir(), "admit.yaml", "surprise: true\n")

	out, err := execute(t, "", "serve", "--config", path)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.True(t, strings.Contains(out, ErrCodeConfig), out)
}
