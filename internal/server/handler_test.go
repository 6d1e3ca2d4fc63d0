package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crmscan/internal/classify"
	"crmscan/internal/engine"
)

type fakeEngine struct {
	status     classify.Status
	statusErr  error
	scanned    bool
	scanErr    error
	classified []string
	cleared    bool
	flushed    bool
	flushErr   error
}

func (f *fakeEngine) ClassifyEmail(_ context.Context, address string) (classify.Status, error) {
	f.classified = append(f.classified, address)
	return f.status, f.statusErr
}

func (f *fakeEngine) Scan(_ context.Context, doc *goquery.Document) (bool, error) {
	if f.scanErr != nil || !f.scanned {
		return f.scanned, f.scanErr
	}
	doc.Find("a").AddClass("crmscan-" + string(f.status))
	return true, nil
}

func (f *fakeEngine) ClearCaches(context.Context) error {
	f.cleared = true
	return nil
}

func (f *fakeEngine) Flush(context.Context) error {
	f.flushed = true
	return f.flushErr
}

func newTestRouter(eng *fakeEngine, w *engine.Watcher, rescans <-chan struct{}) http.Handler {
	return NewRouter(New(eng, w, rescans, nil), nil)
}

func doRequest(t *testing.T, router http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	rec := doRequest(t, newTestRouter(&fakeEngine{}, nil, nil), http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestStatusRequiresEmail(t *testing.T) {
	rec := doRequest(t, newTestRouter(&fakeEngine{}, nil, nil), http.MethodGet, "/v1/status", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatusReturnsClassification(t *testing.T) {
	eng := &fakeEngine{status: classify.StatusYellow}
	rec := doRequest(t, newTestRouter(eng, nil, nil), http.MethodGet, "/v1/status?email=bob@example.com", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "bob@example.com", body["email"])
	assert.Equal(t, "yellow", body["status"])
	assert.Equal(t, classify.StatusYellow.Explanation(), body["explanation"])
	assert.Equal(t, []string{"bob@example.com"}, eng.classified)
}

func TestStatusReportsCachedErrorVerdict(t *testing.T) {
	eng := &fakeEngine{status: classify.StatusError, statusErr: errors.New("upstream down")}
	rec := doRequest(t, newTestRouter(eng, nil, nil), http.MethodGet, "/v1/status?email=bob@example.com", "")

	require.Equal(t, http.StatusOK, rec.Code, "a failed lookup still reports its verdict")
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "error", body["status"])
}

func TestScanHTMLReturnsAnnotatedDocument(t *testing.T) {
	eng := &fakeEngine{scanned: true, status: classify.StatusRed}
	rec := doRequest(t, newTestRouter(eng, nil, nil), http.MethodPost, "/v1/scan",
		`<html><body><a href="mailto:bob@example.com">Bob</a></body></html>`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "crmscan-red")
}

func TestScanHTMLConflictWhenBusy(t *testing.T) {
	eng := &fakeEngine{scanned: false}
	rec := doRequest(t, newTestRouter(eng, nil, nil), http.MethodPost, "/v1/scan", "<p>hi</p>")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestScanHTMLBadGatewayOnScanError(t *testing.T) {
	eng := &fakeEngine{scanErr: errors.New("crm unreachable")}
	rec := doRequest(t, newTestRouter(eng, nil, nil), http.MethodPost, "/v1/scan", "<p>hi</p>")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestScanTextReturnsMatches(t *testing.T) {
	rec := doRequest(t, newTestRouter(&fakeEngine{}, nil, nil), http.MethodPost, "/v1/scan/text",
		"contact us at info (at) example (dot) com please")

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Matches []struct {
			Start int    `json:"start"`
			End   int    `json:"end"`
			Email string `json:"email"`
		} `json:"matches"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Matches, 1)
	assert.Equal(t, "info@example.com", body.Matches[0].Email)
}

func TestScanTextEmptyBody(t *testing.T) {
	rec := doRequest(t, newTestRouter(&fakeEngine{}, nil, nil), http.MethodPost, "/v1/scan/text", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"matches":[]}`, rec.Body.String())
}

func TestTriggerFeedsWatcher(t *testing.T) {
	var fired int
	w := engine.NewWatcher(func() { fired++ }, nil)
	router := newTestRouter(&fakeEngine{}, w, nil)

	rec := doRequest(t, router, http.MethodPost, "/v1/trigger?kind=mutation", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec = doRequest(t, router, http.MethodPost, "/v1/trigger?kind=reload", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTriggerWithoutWatcher(t *testing.T) {
	rec := doRequest(t, newTestRouter(&fakeEngine{}, nil, nil), http.MethodPost, "/v1/trigger?kind=mutation", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRescanWaitDeliversRequest(t *testing.T) {
	rescans := make(chan struct{}, 1)
	rescans <- struct{}{}
	rec := doRequest(t, newTestRouter(&fakeEngine{}, nil, rescans), http.MethodGet, "/v1/rescan", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRescanWaitTimesOutWithRequest(t *testing.T) {
	rescans := make(chan struct{})
	router := newTestRouter(&fakeEngine{}, nil, rescans)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/v1/rescan", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	cancel()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusRequestTimeout, rec.Code)
}

func TestCacheFlush(t *testing.T) {
	eng := &fakeEngine{}
	rec := doRequest(t, newTestRouter(eng, nil, nil), http.MethodPost, "/v1/cache/flush", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.True(t, eng.flushed)
}

func TestCacheFlushError(t *testing.T) {
	eng := &fakeEngine{flushErr: errors.New("store down")}
	rec := doRequest(t, newTestRouter(eng, nil, nil), http.MethodPost, "/v1/cache/flush", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestCacheClear(t *testing.T) {
	eng := &fakeEngine{}
	rec := doRequest(t, newTestRouter(eng, nil, nil), http.MethodDelete, "/v1/cache", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.True(t, eng.cleared)
}
