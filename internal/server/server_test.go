package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/admit/internal/dispatch"
	"github.com/roach88/admit/internal/ir"
	"github.com/roach88/admit/internal/metrics"
	"github.com/roach88/admit/internal/registry"
	"github.com/roach88/admit/internal/sandbox"
	"github.com/roach88/admit/internal/store"
)

const blogManifest = `
app: {
	name: "blog"
	module: posts: {
		entry_types: ["post"]
		code: """
			validate_post: {
				entry: {title: string & != "", body: string}
				ctx: {...}
				result: *"" | string
				if len(entry.body) > 20 {
					result: "body too long"
				}
			}
			"""
	}
}
`

type fixture struct {
	handler http.Handler
	metrics *metrics.Collector
	store   *store.Store
}

func newFixture(t *testing.T, strict bool) *fixture {
	t.Helper()

	m, err := registry.CompileSource("app.cue", []byte(blogManifest), "")
	require.NoError(t, err)

	st, err := store.Open(filepath.Join(t.TempDir(), "admit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	reg := prometheus.NewRegistry()
	collector := metrics.NewWithRegistry(reg)

	apps := NewAppSet(st)
	require.NoError(t, apps.AddRegistry(registry.NewStatic(m)))

	d := dispatch.New(sandbox.New(),
		dispatch.WithObserver(dispatch.MultiObserver{collector, store.NewVerdictRecorder(st)}),
	)

	srv := New(Config{
		Dispatcher:     d,
		Apps:           apps,
		Store:          st,
		Metrics:        collector,
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Strict:         strict,
	})
	return &fixture{handler: srv.Router(), metrics: collector, store: st}
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decodeVerdict(t *testing.T, rec *httptest.ResponseRecorder) VerdictResponse {
	t.Helper()
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var v VerdictResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorDetail {
	t.Helper()
	var e ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e))
	return e.Error
}

const commitCtx = `{"lifecycle":"chain","action":"commit","sources":["agent-1"]}`

func TestValidatePass(t *testing.T) {
	f := newFixture(t, false)

	rec := f.do(t, http.MethodPost, "/v1/apps/blog/validate",
		`{"type":"post","entry":{"title":"hello","body":"hi"},"ctx":`+commitCtx+`,"token":"tok-1"}`)
	v := decodeVerdict(t, rec)

	assert.Equal(t, "tok-1", v.Token)
	assert.Equal(t, "blog", v.App)
	assert.Equal(t, "post", v.EntryType)
	assert.Equal(t, ir.OutcomePass, v.Outcome)
	assert.True(t, v.Admitted)
	assert.Equal(t, "posts", v.Module)
	assert.Equal(t, "validate_post", v.Function)
	assert.NotEmpty(t, v.InvocationID)
	assert.NotEmpty(t, v.EntryAddress)
}

func TestValidateFail(t *testing.T) {
	f := newFixture(t, false)

	rec := f.do(t, http.MethodPost, "/v1/apps/blog/validate",
		`{"type":"post","entry":{"title":"t","body":"this body is definitely too long"},"ctx":`+commitCtx+`}`)
	v := decodeVerdict(t, rec)

	assert.Equal(t, ir.OutcomeFail, v.Outcome)
	assert.Equal(t, "body too long", v.Reason)
	assert.False(t, v.Admitted)
	assert.NotEmpty(t, v.Token)
}

func TestValidateNotImplemented(t *testing.T) {
	tests := []struct {
		name     string
		strict   bool
		typ      string
		admitted bool
	}{
		{"unknown app type", false, "comment", true},
		{"unknown app type strict", true, "comment", false},
		{"system type", false, "%agent_id", true},
		{"unknown system tag", true, "%bogus", false},
		{"unregistered non-identifier", false, "bad-name", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.strict)
			rec := f.do(t, http.MethodPost, "/v1/apps/blog/validate",
				`{"type":"`+tt.typ+`","entry":{},"ctx":`+commitCtx+`}`)
			v := decodeVerdict(t, rec)
			assert.Equal(t, ir.OutcomeNotImplemented, v.Outcome)
			assert.Equal(t, tt.admitted, v.Admitted)
			assert.Empty(t, v.Function)
		})
	}
}

func TestValidateAppDescriptorPasses(t *testing.T) {
	f := newFixture(t, true)
	rec := f.do(t, http.MethodPost, "/v1/apps/blog/validate", `{"type":"%dna","content":"opaque","ctx":`+commitCtx+`}`)
	v := decodeVerdict(t, rec)
	assert.Equal(t, ir.OutcomePass, v.Outcome)
	assert.True(t, v.Admitted)
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		body   string
		status int
		code   string
	}{
		{"unknown app", "/v1/apps/shop/validate", `{"type":"post","entry":{}}`, http.StatusNotFound, "app_not_found"},
		{"bad json", "/v1/apps/blog/validate", `{"type":`, http.StatusBadRequest, "invalid_json"},
		{"unknown field", "/v1/apps/blog/validate", `{"type":"post","entry":{},"extra":1}`, http.StatusBadRequest, "invalid_json"},
		{"missing type", "/v1/apps/blog/validate", `{"entry":{}}`, http.StatusBadRequest, "invalid_request"},
		{"missing entry", "/v1/apps/blog/validate", `{"type":"post"}`, http.StatusBadRequest, "invalid_request"},
		{"entry and content", "/v1/apps/blog/validate", `{"type":"post","entry":{},"content":"{}"}`, http.StatusBadRequest, "invalid_request"},
		{"malformed content", "/v1/apps/blog/validate", `{"type":"post","content":"{\"title\":"}`, http.StatusUnprocessableEntity, string(dispatch.ErrCodeMalformedEntry)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, false)
			rec := f.do(t, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.code, decodeError(t, rec).Code)
		})
	}
}

func TestValidateBodyTooLarge(t *testing.T) {
	m, err := registry.CompileSource("app.cue", []byte(blogManifest), "")
	require.NoError(t, err)
	apps := NewAppSet(nil)
	require.NoError(t, apps.AddRegistry(registry.NewStatic(m)))
	srv := New(Config{Dispatcher: dispatch.New(sandbox.New()), Apps: apps, MaxBodyBytes: 16})

	body := `{"type":"post","entry":{"title":"` + strings.Repeat("x", 64) + `"}}`
	req := httptest.NewRequest(http.MethodPost, "/v1/apps/blog/validate", strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestValidateBatch(t *testing.T) {
	f := newFixture(t, false)

	body := `{"requests":[
		{"type":"post","entry":{"title":"a","body":"b"},"ctx":` + commitCtx + `},
		{"type":"post","entry":{"title":"","body":"b"},"ctx":` + commitCtx + `},
		{"type":"post","content":"not json","ctx":` + commitCtx + `},
		{"type":"comment","entry":{},"ctx":` + commitCtx + `}
	]}`
	rec := f.do(t, http.MethodPost, "/v1/apps/blog/validate/batch", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp BatchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 4)

	assert.Equal(t, ir.OutcomePass, resp.Results[0].Verdict.Outcome)
	assert.Equal(t, ir.OutcomeFail, resp.Results[1].Verdict.Outcome)
	assert.Contains(t, resp.Results[1].Verdict.Reason, "title")
	require.NotNil(t, resp.Results[2].Error)
	assert.Equal(t, string(dispatch.ErrCodeMalformedEntry), resp.Results[2].Error.Code)
	assert.Equal(t, ir.OutcomeNotImplemented, resp.Results[3].Verdict.Outcome)
}

func TestVerdictLookup(t *testing.T) {
	f := newFixture(t, false)

	rec := f.do(t, http.MethodPost, "/v1/apps/blog/validate",
		`{"type":"post","entry":{"title":"hello","body":"hi"},"ctx":`+commitCtx+`,"token":"tok-lookup"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/v1/verdicts/tok-lookup", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var got ir.VerdictRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "tok-lookup", got.Token)
	assert.Equal(t, ir.OutcomePass, got.Outcome)

	rec = f.do(t, http.MethodGet, "/v1/verdicts/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListAppsIncludesStored(t *testing.T) {
	f := newFixture(t, false)

	_, err := f.store.ImportManifest(context.Background(), &ir.AppManifest{
		Name: "wiki",
		Modules: []ir.ModuleSpec{
			{Name: "pages", Runtime: ir.RuntimeCUE, EntryTypes: []string{"page"}, Code: []byte(`validate_page: {entry: _, ctx: _, result: ""}`)},
		},
	})
	require.NoError(t, err)

	rec := f.do(t, http.MethodGet, "/v1/apps", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"apps":["blog","wiki"]}`, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/v1/apps/wiki/validate", `{"type":"page","entry":{"x":1},"ctx":`+commitCtx+`}`)
	v := decodeVerdict(t, rec)
	assert.Equal(t, ir.OutcomePass, v.Outcome)
	assert.Equal(t, "pages", v.Module)
}

func TestHealth(t *testing.T) {
	f := newFixture(t, false)
	for _, path := range []string{"/health", "/health/live", "/health/ready"} {
		rec := f.do(t, http.MethodGet, path, "")
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	}
}

func TestMetrics(t *testing.T) {
	f := newFixture(t, false)

	f.do(t, http.MethodPost, "/v1/apps/blog/validate", `{"type":"post","entry":{"title":"a","body":"b"},"ctx":`+commitCtx+`}`)
	f.do(t, http.MethodGet, "/health", "")

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.RequestsTotal.WithLabelValues("POST", "/v1/apps/{app}/validate", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Verdicts.WithLabelValues("blog", "pass")))
	assert.Equal(t, 0.0, testutil.ToFloat64(f.metrics.RequestsInFlight))

	rec := f.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, bytes.Contains(rec.Body.Bytes(), []byte("admit_verdicts_total")))
	assert.False(t, bytes.Contains(rec.Body.Bytes(), []byte(`route="/health"`)))
}

func TestAppSetDuplicate(t *testing.T) {
	m, err := registry.CompileSource("app.cue", []byte(blogManifest), "")
	require.NoError(t, err)
	apps := NewAppSet(nil)
	require.NoError(t, apps.AddRegistry(registry.NewStatic(m)))
	assert.Error(t, apps.AddRegistry(registry.NewStatic(m)))

	_, ok, err := apps.Lookup(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}
