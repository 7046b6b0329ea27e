package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/brandscan/internal/config"
	"github.com/JakeFAU/brandscan/internal/dispatcher"
	queuemem "github.com/JakeFAU/brandscan/internal/queue/memory"
	"github.com/JakeFAU/brandscan/internal/scan"
	"github.com/JakeFAU/brandscan/internal/storage/memory"
)

type fixedIDs struct {
	mu  sync.Mutex
	ids []string
}

func (f *fixedIDs) NewID() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.ids) == 0 {
		return uuid.NewString(), nil
	}
	id := f.ids[0]
	f.ids = f.ids[1:]
	return id, nil
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type recordingCanceler struct {
	mu       sync.Mutex
	canceled []string
}

func (c *recordingCanceler) Cancel(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.canceled = append(c.canceled, id)
	return true
}

type testEnv struct {
	server   *Server
	store    *memory.ScanStore
	queue    *queuemem.Queue
	canceler *recordingCanceler
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	return cfg
}

func newTestEnv(t *testing.T, cfg config.Config, queueSize int, ids ...string) *testEnv {
	t.Helper()
	env := &testEnv{
		store:    memory.NewScanStore(),
		queue:    queuemem.NewQueue(queueSize),
		canceler: &recordingCanceler{},
	}
	env.server = NewServer(Deps{
		Store:    env.store,
		Progress: NewProgressHandler(env.store, nil),
		Queue:    dispatcher.New(env.queue),
		Canceler: env.canceler,
		IDs:      &fixedIDs{ids: ids},
		Clock:    fixedClock{now: time.Unix(100, 0).UTC()},
	}, cfg, zap.NewNop())
	return env
}

func (e *testEnv) do(method, path string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func TestSubmitScanQueuesWithDefaults(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, testConfig(t), 4, "scan-1")
	rec := env.do(http.MethodPost, "/v1/scans", []byte(`{"url":"https://brand.example"}`))

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	require.JSONEq(t, `{"scan_id":"scan-1","status":"queued"}`, rec.Body.String())

	item, err := env.queue.Dequeue(context.Background())
	require.NoError(t, err)
	require.Equal(t, "scan-1", item.ScanID)
	require.Equal(t, "scan-1", item.Request.ID)
	require.Equal(t, 1, item.Request.MaxDepth)
	require.Equal(t, 5, item.Request.MaxPages)
	require.True(t, item.Request.RespectRobots)
	require.Equal(t, 30*time.Second, item.Request.Timeout)

	stored, err := env.store.GetScan(context.Background(), "scan-1")
	require.NoError(t, err)
	require.Equal(t, scan.StatusQueued, stored.Status)
	require.Equal(t, time.Unix(100, 0).UTC(), stored.Submitted)
}

func TestSubmitScanOverrides(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, testConfig(t), 4, "scan-2")
	body := `{"url":"http://brand.example/shop","max_depth":0,"max_pages":1,"timeout_ms":1500,"respect_robots":false}`
	rec := env.do(http.MethodPost, "/v1/scans", []byte(body))
	require.Equal(t, http.StatusAccepted, rec.Code)

	item, err := env.queue.Dequeue(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, item.Request.MaxDepth)
	require.Equal(t, 1, item.Request.MaxPages)
	require.False(t, item.Request.RespectRobots)
	require.Equal(t, 1500*time.Millisecond, item.Request.Timeout)
}

func TestSubmitScanValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "invalid json", body: `{invalid`, want: "invalid JSON"},
		{name: "unknown field", body: `{"url":"https://a.example","urls":[]}`, want: "invalid JSON"},
		{name: "missing url", body: `{}`, want: "url failed required"},
		{name: "non http scheme", body: `{"url":"ftp://a.example/file"}`, want: "url failed http_url"},
		{name: "too many pages", body: `{"url":"https://a.example","max_pages":500}`, want: "max_pages failed max=100"},
		{name: "negative depth", body: `{"url":"https://a.example","max_depth":-1}`, want: "max_depth failed min=0"},
		{name: "tiny timeout", body: `{"url":"https://a.example","timeout_ms":5}`, want: "timeout_ms failed min=100"},
	}
	env := newTestEnv(t, testConfig(t), 4)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := env.do(http.MethodPost, "/v1/scans", []byte(tt.body))
			require.Equal(t, http.StatusBadRequest, rec.Code)
			require.Contains(t, rec.Body.String(), tt.want)
		})
	}
}

func TestSubmitScanQueueFull(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, testConfig(t), 1, "scan-a", "scan-b")
	require.Equal(t, http.StatusAccepted, env.do(http.MethodPost, "/v1/scans", []byte(`{"url":"https://a.example"}`)).Code)

	rec := env.do(http.MethodPost, "/v1/scans", []byte(`{"url":"https://b.example"}`))
	require.Equal(t, http.StatusTooManyRequests, rec.Code)

	rejected, err := env.store.GetScan(context.Background(), "scan-b")
	require.NoError(t, err)
	require.Equal(t, scan.StatusFailed, rejected.Status)
}

func TestStatusAndResult(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, testConfig(t), 4)
	ctx := context.Background()
	require.NoError(t, env.store.CreateScan(ctx, scan.Record{ID: "done", Request: scan.Request{URL: "https://brand.example"}}))

	rec := env.do(http.MethodGet, "/v1/scans/done/result", nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Contains(t, rec.Body.String(), "queued")

	result := scan.Result{
		URL:               "https://brand.example",
		CSSVarsExport:     ":root {\n  --color-primary: #0066ff;\n}\n",
		ThemeConfigExport: "module.exports = {};\n",
		Coverage:          scan.Coverage{PagesScanned: 3},
	}
	require.NoError(t, env.store.SaveResult(ctx, "done", result, []scan.Artifact{{Name: "theme.css", URI: "memory://done/theme.css"}}))

	rec = env.do(http.MethodGet, "/v1/scans/done/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var status struct {
		Scan scan.Record `json:"scan"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	require.Equal(t, scan.StatusSucceeded, status.Scan.Status)
	require.Len(t, status.Scan.Artifacts, 1)

	rec = env.do(http.MethodGet, "/v1/scans/done/result", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got scan.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, 3, got.Coverage.PagesScanned)

	rec = env.do(http.MethodGet, "/v1/scans/missing/status", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExports(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, testConfig(t), 4)
	ctx := context.Background()
	require.NoError(t, env.store.CreateScan(ctx, scan.Record{ID: "exp"}))
	require.NoError(t, env.store.SaveResult(ctx, "exp", scan.Result{
		CSSVarsExport:     ":root { --color-primary: #0066ff; }",
		ThemeConfigExport: "module.exports = { theme: {} };",
	}, nil))

	rec := env.do(http.MethodGet, "/v1/scans/exp/exports/theme.css", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "text/css; charset=utf-8", rec.Header().Get("Content-Type"))
	require.Contains(t, rec.Header().Get("Content-Disposition"), `filename="theme.css"`)
	require.Equal(t, ":root { --color-primary: #0066ff; }", rec.Body.String())

	rec = env.do(http.MethodGet, "/v1/scans/exp/exports/theme.config.js", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "module.exports")

	rec = env.do(http.MethodGet, "/v1/scans/exp/exports/tokens.json", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"color"`)

	rec = env.do(http.MethodGet, "/v1/scans/exp/exports/theme.scss", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancelScan(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, testConfig(t), 4)
	ctx := context.Background()
	require.NoError(t, env.store.CreateScan(ctx, scan.Record{ID: "run"}))
	require.NoError(t, env.store.UpdateStatus(ctx, "run", scan.StatusRunning, ""))

	rec := env.do(http.MethodPost, "/v1/scans/run/cancel", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"scan_id":"run","status":"canceled"}`, rec.Body.String())
	require.Equal(t, []string{"run"}, env.canceler.canceled)

	stored, err := env.store.GetScan(ctx, "run")
	require.NoError(t, err)
	require.Equal(t, scan.StatusCanceled, stored.Status)

	rec = env.do(http.MethodPost, "/v1/scans/run/cancel", nil)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(http.MethodPost, "/v1/scans/missing/cancel", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestProgressRoute(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, testConfig(t), 4)
	id := uuid.New()
	require.NoError(t, env.store.MarkStarted(context.Background(), id, time.Now()))

	rec := env.do(http.MethodGet, "/v1/scans/"+id.String()+"/progress", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"status":"running"`)
}

func TestProbesAndMetrics(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, testConfig(t), 4)
	require.Equal(t, http.StatusOK, env.do(http.MethodGet, "/healthz", nil).Code)
	require.Equal(t, http.StatusOK, env.do(http.MethodGet, "/readyz", nil).Code)

	env.do(http.MethodGet, "/v1/scans/missing/status", nil)
	rec := env.do(http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "http_requests_total")

	notReady := NewServer(Deps{Ready: func(context.Context) error { return errors.New("browser down") }},
		testConfig(t), nil)
	rr := httptest.NewRecorder()
	notReady.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	require.Contains(t, rr.Body.String(), "browser down")
}

func TestAPIKeyRequired(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Auth.Enabled = true
	cfg.Auth.APIKey = "secret"
	env := newTestEnv(t, cfg, 4, "scan-key")

	rec := env.do(http.MethodPost, "/v1/scans", []byte(`{"url":"https://brand.example"}`))
	require.Equal(t, http.StatusForbidden, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/v1/scans", bytes.NewBufferString(`{"url":"https://brand.example"}`))
	req.Header.Set("X-API-Key", "secret")
	rr := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rr, req)
	require.Equal(t, http.StatusAccepted, rr.Code)

	require.Equal(t, http.StatusOK, env.do(http.MethodGet, "/healthz", nil).Code)
}

func TestRecoverMiddleware(t *testing.T) {
	t.Parallel()

	handler := recoverMiddleware(zap.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}
