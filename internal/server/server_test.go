package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"snaptrace/internal/pipeline"
	"snaptrace/pkg/contract"
	"snaptrace/pkg/structdiff"
	dchg "snaptrace/plugins/decoder/changelog"
	rfs "snaptrace/plugins/reader/filesystem"
	runi "snaptrace/plugins/renderer/unified"
	"snaptrace/plugins/splitter/lines"
)

const cartLog = `{"subject":"Cart","action":"add","fieldChanges":{"items":{"before":[],"after":["apple"]}},"backtrace":[{"file":"/srv/cart.py","line":12,"function":"add"}]}
garbage
{"subject":"Cart","action":"apply","fieldChanges":{"discount":{"before":{"code":"A"},"after":{"code":"B","pct":20}}}}
`

func newTestServer(t *testing.T, content string) (*Server, string) {
	t.Helper()
	p := filepath.Join(t.TempDir(), "log.txt")
	if content != "" {
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	dec, err := dchg.New(nil)
	require.NoError(t, err)
	ren, err := runi.New(nil)
	require.NoError(t, err)
	comp := pipeline.Components{Reader: rfs.New(nil), Splitter: lines.New(nil), Decoder: dec, Renderer: ren}
	s := New(Options{Path: p, MaxLines: 20}, comp, pipeline.Settings{}, nil)
	require.NoError(t, s.Reload(context.Background()))
	return s, p
}

func get(t *testing.T, h http.Handler, method, url string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, url, nil))
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func TestLogs(t *testing.T) {
	s, _ := newTestServer(t, cartLog)
	rec := get(t, s.Handler(), http.MethodGet, "/api/logs")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
	var body struct {
		Entries []struct {
			Subject      string                     `json:"subject"`
			Action       string                     `json:"action"`
			FieldChanges map[string]json.RawMessage `json:"fieldChanges"`
		} `json:"entries"`
		Skipped     int `json:"skipped"`
		Diagnostics []struct {
			Index int `json:"index"`
		} `json:"diagnostics"`
	}
	decode(t, rec, &body)
	require.Len(t, body.Entries, 2)
	assert.Equal(t, "apply", body.Entries[1].Action)
	assert.Contains(t, body.Entries[0].FieldChanges, "items")
	assert.Equal(t, 1, body.Skipped)
	require.Len(t, body.Diagnostics, 1)
	assert.Equal(t, 1, body.Diagnostics[0].Index)
}

func TestLogsMissingFile(t *testing.T) {
	s, _ := newTestServer(t, "")
	rec := get(t, s.Handler(), http.MethodGet, "/api/logs")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"entries":[],"skipped":0}`, rec.Body.String())
}

func TestClearLogs(t *testing.T) {
	s, p := newTestServer(t, cartLog)
	h := s.Handler()
	rec := get(t, h, http.MethodDelete, "/api/logs")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true}`, rec.Body.String())
	_, err := os.Stat(p)
	assert.True(t, errors.Is(err, os.ErrNotExist))
	assert.Equal(t, 0, s.Timeline().Len())

	// 幂等
	rec = get(t, h, http.MethodDelete, "/api/logs")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestClearLogsError(t *testing.T) {
	s, _ := newTestServer(t, cartLog)
	s.opts.Remove = func(ctx context.Context, p string) error {
		return &os.PathError{Op: "remove", Path: p, Err: errors.New("busy")}
	}
	rec := get(t, s.Handler(), http.MethodDelete, "/api/logs")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":"io"`)
	assert.Equal(t, 2, s.Timeline().Len())
}

func TestTimeline(t *testing.T) {
	s, _ := newTestServer(t, cartLog)
	rec := get(t, s.Handler(), http.MethodGet, "/api/timeline")
	require.Equal(t, http.StatusOK, rec.Code)
	var body timelineBody
	decode(t, rec, &body)
	require.Len(t, body.Entries, 2)
	assert.Equal(t, entrySummary{Position: 1, Timestamp: 1000, Label: "Cart.apply()", Subject: "Cart", Action: "apply", Changed: []string{"discount"}, Total: 2}, body.Entries[1])
	assert.Equal(t, 1, body.Skipped)
}

func TestState(t *testing.T) {
	s, _ := newTestServer(t, cartLog)
	h := s.Handler()
	rec := get(t, h, http.MethodGet, "/api/timeline/1/state")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `{"items":["apple"],"discount":{"code":"B","pct":20}}`, strings.TrimSpace(rec.Body.String()))

	rec = get(t, h, http.MethodGet, "/api/timeline/9/state")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), `"code":"range"`)

	rec = get(t, h, http.MethodGet, "/api/timeline/x/state")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChanges(t *testing.T) {
	s, _ := newTestServer(t, cartLog)
	rec := get(t, s.Handler(), http.MethodGet, "/api/timeline/0/changes")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `{"items":{"before":[],"after":["apple"]}}`, strings.TrimSpace(rec.Body.String()))
}

func TestOrigin(t *testing.T) {
	s, _ := newTestServer(t, cartLog)
	h := s.Handler()
	rec := get(t, h, http.MethodGet, "/api/timeline/1/origin?path=items[0]")
	require.Equal(t, http.StatusOK, rec.Code)
	var body originBody
	decode(t, rec, &body)
	assert.Equal(t, 0, body.EntryPosition)
	assert.Equal(t, "Cart.add()", body.Label)
	require.Len(t, body.Backtrace, 1)
	assert.Equal(t, "/srv/cart.py", body.Backtrace[0].File)

	rec = get(t, h, http.MethodGet, "/api/timeline/1/origin?path=discount.pct")
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &body)
	assert.Equal(t, 1, body.EntryPosition)
	assert.Empty(t, body.Backtrace)

	rec = get(t, h, http.MethodGet, "/api/timeline/0/origin?path=discount")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = get(t, h, http.MethodGet, "/api/timeline/0/origin")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDiff(t *testing.T) {
	s, _ := newTestServer(t, cartLog)
	h := s.Handler()
	rec := get(t, h, http.MethodGet, "/api/timeline/1/diff?field=discount")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Title   string            `json:"title"`
		Lines   []structdiff.Line `json:"lines"`
		Total   int               `json:"total"`
		Omitted int               `json:"omitted"`
		Changes int               `json:"changes"`
	}
	decode(t, rec, &body)
	assert.Equal(t, "discount @ 1", body.Title)
	assert.Equal(t, 3, body.Changes)
	assert.Equal(t, []structdiff.Line{
		{Kind: structdiff.Unchanged, Content: "{"},
		{Kind: structdiff.Removed, Content: `  "code": "A"`},
		{Kind: structdiff.Added, Content: `  "code": "B"`},
		{Kind: structdiff.Added, Content: `  "pct": 20`},
		{Kind: structdiff.Unchanged, Content: "  // ... 0 unchanged keys"},
		{Kind: structdiff.Unchanged, Content: "}"},
	}, body.Lines)

	rec = get(t, h, http.MethodGet, "/api/timeline/1/diff?field=discount&max_lines=2")
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &body)
	assert.Len(t, body.Lines, 2)
	assert.Equal(t, 6, body.Total)
	assert.Equal(t, 4, body.Omitted)

	rec = get(t, h, http.MethodGet, "/api/timeline/1/diff?field=discount&format=text")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
	assert.Contains(t, rec.Body.String(), `+  "pct": 20`)

	for url, code := range map[string]int{
		"/api/timeline/1/diff":                               http.StatusBadRequest,
		"/api/timeline/1/diff?field=items":                   http.StatusNotFound,
		"/api/timeline/1/diff?field=discount&max_lines=many": http.StatusBadRequest,
		"/api/timeline/1/diff?field=discount&format=html":    http.StatusBadRequest,
	} {
		assert.Equal(t, code, get(t, h, http.MethodGet, url).Code, url)
	}
}

func TestMetricsRoute(t *testing.T) {
	s, _ := newTestServer(t, cartLog)
	h := s.Handler()
	_ = get(t, h, http.MethodGet, "/api/timeline")
	rec := get(t, h, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "snaptrace_op_total")
	assert.Contains(t, rec.Body.String(), "snaptrace_records_skipped_total")
}

func TestListenAndServeShutdown(t *testing.T) {
	s, _ := newTestServer(t, cartLog)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe(ctx, "127.0.0.1:0") }()
	cancel()
	assert.NoError(t, <-done)
}

func TestReloadSwapsSnapshot(t *testing.T) {
	s, p := newTestServer(t, cartLog)
	before := s.Timeline()
	require.NoError(t, os.WriteFile(p, []byte(`{"subject":"C","action":"m","fieldChanges":{"x":{"before":10,"after":15}}}`+"\n"), 0o644))
	require.NoError(t, s.Reload(context.Background()))
	assert.Equal(t, 2, before.Len())
	assert.Equal(t, 1, s.Timeline().Len())
	assert.Equal(t, contract.NormalizeFileID(p), s.cur.Load().res.FileID)
}
