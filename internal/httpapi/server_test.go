package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/Fzero1925/ai-discovery-sub000/internal/ledger"
	"github.com/Fzero1925/ai-discovery-sub000/internal/publishstate"
	"github.com/Fzero1925/ai-discovery-sub000/internal/queue"
	"github.com/Fzero1925/ai-discovery-sub000/internal/report"
)

var fixedNow = time.Date(2026, 6, 1, 10, 30, 0, 0, time.UTC)

type fakeRuns struct {
	kind  string
	limit int
	rows  []ledger.RunRecord
	err   error
}

func (f *fakeRuns) RecentRuns(_ context.Context, kind string, limit int) ([]ledger.RunRecord, error) {
	f.kind = kind
	f.limit = limit
	return f.rows, f.err
}

type apiResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newTestServer(t *testing.T, runs RunLister) (*Server, Files) {
	t.Helper()

	dir := t.TempDir()
	files := Files{
		QueueFile:           filepath.Join(dir, "queue.json"),
		StateFile:           filepath.Join(dir, "state.json"),
		SchedulerConfigFile: filepath.Join(dir, "scheduler.json"),
		ReportsDir:          filepath.Join(dir, "reports"),
	}
	srv := NewServer(files, runs, zerolog.Nop(), Options{})
	srv.now = func() time.Time { return fixedNow }
	return srv, files
}

func doGet(t *testing.T, srv *Server, target string) (int, apiResponse) {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	var body apiResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode %s response %q: %v", target, rec.Body.String(), err)
	}
	return rec.Code, body
}

func TestHealth(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, nil)
	code, body := doGet(t, srv, "/api/v1/health")
	if code != http.StatusOK || body.Status != "success" {
		t.Fatalf("unexpected health response %d %+v", code, body)
	}
}

func TestQueueEndpointMarksDueItems(t *testing.T) {
	t.Parallel()

	srv, files := newTestServer(t, nil)
	q := &queue.Queue{Items: []queue.Item{
		queue.NewItem("a", "a.md", "alpha", "news", fixedNow.Add(-2*time.Hour), fixedNow.Add(-time.Hour)),
		queue.NewItem("b", "b.md", "beta", "news", fixedNow.Add(-2*time.Hour), fixedNow.Add(time.Hour)),
	}}
	if err := q.Save(files.QueueFile); err != nil {
		t.Fatalf("save queue: %v", err)
	}

	code, body := doGet(t, srv, "/api/v1/queue?due=true")
	if code != http.StatusOK {
		t.Fatalf("unexpected status %d: %+v", code, body)
	}
	var data struct {
		Items []struct {
			ContentRef string `json:"content_ref"`
			Due        bool   `json:"due"`
		} `json:"items"`
		Total int `json:"total"`
		Due   int `json:"due"`
	}
	if err := json.Unmarshal(body.Data, &data); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if data.Total != 2 || data.Due != 1 || len(data.Items) != 1 || data.Items[0].ContentRef != "a" || !data.Items[0].Due {
		t.Fatalf("unexpected queue view %+v", data)
	}
}

func TestStateEndpointReportsBudget(t *testing.T) {
	t.Parallel()

	srv, files := newTestServer(t, nil)
	if err := (publishstate.State{"2026-06-01 10": 1}).Save(files.StateFile); err != nil {
		t.Fatalf("save state: %v", err)
	}

	code, body := doGet(t, srv, "/api/v1/state")
	if code != http.StatusOK {
		t.Fatalf("unexpected status %d", code)
	}
	var data struct {
		Bucket   string `json:"bucket"`
		Cap      int    `json:"hourly_cap"`
		Released int    `json:"released_this_hour"`
		Budget   int    `json:"budget"`
	}
	if err := json.Unmarshal(body.Data, &data); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if data.Bucket != "2026-06-01 10" || data.Cap != 3 || data.Released != 1 || data.Budget != 2 {
		t.Fatalf("unexpected state view %+v", data)
	}
}

func TestSchedulerEndpointUsesDefaults(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, nil)
	code, body := doGet(t, srv, "/api/v1/scheduler")
	if code != http.StatusOK {
		t.Fatalf("unexpected status %d", code)
	}
	var data struct {
		Active bool `json:"active"`
		Paused bool `json:"paused"`
	}
	if err := json.Unmarshal(body.Data, &data); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if !data.Active || data.Paused {
		t.Fatalf("expected active window at 10:30 UTC, got %+v", data)
	}
}

func TestLatestReport(t *testing.T) {
	t.Parallel()

	srv, files := newTestServer(t, nil)

	code, _ := doGet(t, srv, "/api/v1/reports/latest?kind=publish")
	if code != http.StatusNotFound {
		t.Fatalf("expected 404 before any run, got %d", code)
	}
	code, _ = doGet(t, srv, "/api/v1/reports/latest?kind=bogus")
	if code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown kind, got %d", code)
	}

	r := report.Report{
		Kind:       report.KindPublish,
		RunID:      "0b7c6f0e-7d4f-4e55-9d59-3d3cbd0c2a11",
		StartedAt:  fixedNow,
		FinishedAt: fixedNow,
		Status:     report.StatusOK,
		Counts:     map[string]int{"released": 2},
	}
	if err := report.NewFileSink(files.ReportsDir).Emit(context.Background(), r); err != nil {
		t.Fatalf("emit report: %v", err)
	}

	code, body := doGet(t, srv, "/api/v1/reports/latest?kind=release")
	if code != http.StatusOK {
		t.Fatalf("unexpected status %d: %+v", code, body)
	}
	var got report.Report
	if err := json.Unmarshal(body.Data, &got); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if got.RunID != r.RunID || got.Counts["released"] != 2 {
		t.Fatalf("unexpected report %+v", got)
	}
}

func TestRunsWithoutLedger(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, nil)
	code, body := doGet(t, srv, "/api/v1/runs")
	if code != http.StatusServiceUnavailable || body.Status != "fail" {
		t.Fatalf("expected 503 fail, got %d %+v", code, body)
	}
}

func TestRunsQueriesLedger(t *testing.T) {
	t.Parallel()

	runs := &fakeRuns{rows: []ledger.RunRecord{{
		RunID:      "run-1",
		Kind:       "admission",
		Status:     "ok",
		StartedAt:  fixedNow,
		FinishedAt: fixedNow,
		Counts:     json.RawMessage(`{"admitted":3}`),
	}}}
	srv, _ := newTestServer(t, runs)

	code, body := doGet(t, srv, "/api/v1/runs?kind=admit&limit=5")
	if code != http.StatusOK {
		t.Fatalf("unexpected status %d: %+v", code, body)
	}
	if runs.kind != "admission" || runs.limit != 5 {
		t.Fatalf("unexpected ledger query kind=%q limit=%d", runs.kind, runs.limit)
	}
	var data struct {
		Items []runView `json:"items"`
	}
	if err := json.Unmarshal(body.Data, &data); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if len(data.Items) != 1 || data.Items[0].RunID != "run-1" || string(data.Items[0].Counts) != `{"admitted":3}` {
		t.Fatalf("unexpected runs %+v", data.Items)
	}

	code, _ = doGet(t, srv, "/api/v1/runs?limit=0")
	if code != http.StatusBadRequest {
		t.Fatalf("expected 400 for limit=0, got %d", code)
	}

	runs.err = errors.New("db down")
	code, body = doGet(t, srv, "/api/v1/runs")
	if code != http.StatusInternalServerError || body.Status != "error" {
		t.Fatalf("expected 500 error, got %d %+v", code, body)
	}
}

func TestUnknownRouteUsesJSendEnvelope(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, nil)
	code, body := doGet(t, srv, "/api/v1/nope")
	if code != http.StatusNotFound || body.Status != "fail" {
		t.Fatalf("unexpected response %d %+v", code, body)
	}
}

func TestParsePositiveInt(t *testing.T) {
	t.Parallel()

	if v, err := parsePositiveInt("", 20, 1, 200); err != nil || v != 20 {
		t.Fatalf("expected default, got %d %v", v, err)
	}
	if _, err := parsePositiveInt("abc", 20, 1, 200); err == nil {
		t.Fatalf("expected error for non-integer")
	}
	if _, err := parsePositiveInt("500", 20, 1, 200); err == nil {
		t.Fatalf("expected range error")
	}
}

func TestResponsesCarryRequestID(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set(echo.HeaderXRequestID, "req-42")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	var body struct {
		RequestID string `json:"request_id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.RequestID != "req-42" {
		t.Fatalf("expected request id to be echoed, got %q", body.RequestID)
	}
}
