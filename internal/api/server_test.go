package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"pricepatrol/internal/config"
	"pricepatrol/internal/jobs"
	"pricepatrol/internal/observability"
	"pricepatrol/internal/ratelimit"
	"pricepatrol/internal/sources"
	"pricepatrol/internal/store"
	"pricepatrol/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

type fakeAdapter struct {
	name string
	raws []types.RawListing
}

func (f *fakeAdapter) Name() string { return f.name }

func (f *fakeAdapter) BuildQueryURL(query, category string) string {
	return "https://example.com/search?q=" + query
}

func (f *fakeAdapter) Extract(ctx context.Context, in *sources.ExtractInput) ([]types.RawListing, error) {
	return f.raws, nil
}

func (f *fakeAdapter) ExtractDetail(ctx context.Context, productURL string) (*types.RawListing, error) {
	return nil, types.ErrNoPriceResolved
}

func newTestServer(t *testing.T, opts ...ServerOption) (*Server, *store.Memory) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Worker.Secret = "s3cret"

	registry := sources.NewRegistry()
	registry.Register(&fakeAdapter{name: "Amazon", raws: []types.RawListing{{
		Source:     "Amazon",
		Title:      "Apple iPhone 15 128GB",
		Price:      69900,
		ProductURL: "https://www.amazon.in/dp/B0CHX1W1XY",
	}}})

	mem := store.NewMemory()
	var o *jobs.Orchestrator
	o = jobs.NewOrchestrator(
		cfg, registry,
		ratelimit.NewGovernor(&cfg.Rate, testLogger),
		mem,
		observability.NewMetrics(testLogger),
		testLogger,
		jobs.WithRemote(jobs.DispatcherFunc(func(ctx context.Context, job *types.Job) error {
			return o.Run(ctx, job.ID)
		})),
	)
	return NewServer(cfg, o, mem, observability.NewMetrics(testLogger), testLogger, opts...), mem
}

func postJSON(t *testing.T, h http.Handler, path, body string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestSearchScrapeAccepted(t *testing.T) {
	s, _ := newTestServer(t)

	rec := postJSON(t, s.Handler(), "/search/scrape", `{"query":"iphone 15","category":"mobiles"}`, nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body)
	}
	var body struct {
		JobID  string `json:"jobId"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.JobID == "" {
		t.Error("response missing jobId")
	}

	poll := get(t, s.Handler(), "/search/status/"+body.JobID)
	if poll.Code != http.StatusOK {
		t.Fatalf("poll status = %d: %s", poll.Code, poll.Body)
	}
	var job types.Job
	if err := json.Unmarshal(poll.Body.Bytes(), &job); err != nil {
		t.Fatal(err)
	}
	if job.Status != types.JobCompleted || len(job.Results) != 1 {
		t.Errorf("job = %+v", job)
	}
}

func TestSearchScrapeMissingQuery(t *testing.T) {
	s, mem := newTestServer(t)

	for _, body := range []string{`{}`, `{"query":"   "}`, `not json`} {
		rec := postJSON(t, s.Handler(), "/search/scrape", body, nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %q: status = %d, want 400", body, rec.Code)
		}
	}
	// No job may be created for a rejected request.
	if _, err := mem.FindReusable(context.Background(), "", time.Hour); err == nil {
		t.Error("a job was created for an empty query")
	}
}

func TestSearchStatusNotFound(t *testing.T) {
	s, _ := newTestServer(t)
	if rec := get(t, s.Handler(), "/search/status/nope"); rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestSearchStatusExpiredJob(t *testing.T) {
	s, mem := newTestServer(t)

	past := time.Now().Add(-2 * time.Hour)
	if err := mem.InsertJob(context.Background(), &types.Job{
		ID:        "expired",
		Query:     "iphone 15",
		Status:    types.JobCompleted,
		StartTime: past,
		ExpiresAt: past.Add(time.Hour),
	}); err != nil {
		t.Fatal(err)
	}
	if rec := get(t, s.Handler(), "/search/status/expired"); rec.Code != http.StatusNotFound {
		t.Errorf("expired job returned %d, want 404", rec.Code)
	}
}

func TestWorkerScrapeAuth(t *testing.T) {
	s, mem := newTestServer(t)
	if err := mem.InsertJob(context.Background(), &types.Job{
		ID:             "j1",
		Query:          "iphone 15",
		Status:         types.JobPending,
		PlatformStatus: map[string]types.SourceStatus{"Amazon": types.SourcePending},
		StartTime:      time.Now(),
		ExpiresAt:      time.Now().Add(time.Hour),
	}); err != nil {
		t.Fatal(err)
	}

	rec := postJSON(t, s.Handler(), "/scrape", `{"jobId":"j1"}`, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing token: status = %d, want 401", rec.Code)
	}
	rec = postJSON(t, s.Handler(), "/scrape", `{"jobId":"j1"}`, http.Header{"Authorization": {"Bearer wrong"}})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad token: status = %d, want 401", rec.Code)
	}

	rec = postJSON(t, s.Handler(), "/scrape", `{"jobId":"j1"}`, http.Header{"Authorization": {"Bearer s3cret"}})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("good token: status = %d, want 202: %s", rec.Code, rec.Body)
	}

	deadline := time.Now().Add(3 * time.Second)
	for {
		job, err := mem.GetJob(context.Background(), "j1")
		if err == nil && job.Status.Terminal() {
			if job.Status != types.JobCompleted {
				t.Fatalf("job status = %s", job.Status)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("job never reached a terminal state")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestWorkerModeHidesSearchRoutes(t *testing.T) {
	s, _ := newTestServer(t, AsWorker())

	if rec := postJSON(t, s.Handler(), "/search/scrape", `{"query":"x"}`, nil); rec.Code != http.StatusNotFound {
		t.Errorf("search route in worker mode: %d", rec.Code)
	}
	if rec := get(t, s.Handler(), "/health"); rec.Code != http.StatusOK {
		t.Errorf("health in worker mode: %d", rec.Code)
	}
}

func TestAlertLifecycle(t *testing.T) {
	s, _ := newTestServer(t)

	rec := postJSON(t, s.Handler(), "/alerts", `{"productName":"iphone 15","targetPrice":60000,"stores":["Amazon"]}`, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: status = %d: %s", rec.Code, rec.Body)
	}
	var alert types.Alert
	if err := json.Unmarshal(rec.Body.Bytes(), &alert); err != nil {
		t.Fatal(err)
	}
	if alert.ID == "" || alert.IsTriggered {
		t.Errorf("created alert = %+v", alert)
	}

	if rec := get(t, s.Handler(), "/alerts/"+alert.ID); rec.Code != http.StatusOK {
		t.Errorf("get: status = %d", rec.Code)
	}
	if rec := get(t, s.Handler(), "/alerts/missing"); rec.Code != http.StatusNotFound {
		t.Errorf("get missing: status = %d", rec.Code)
	}

	list := get(t, s.Handler(), "/alerts")
	var body struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(list.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Count != 1 {
		t.Errorf("list count = %d, want 1", body.Count)
	}
}

func TestCreateAlertValidation(t *testing.T) {
	s, _ := newTestServer(t)
	for _, body := range []string{
		`{"targetPrice":100}`,
		`{"productName":"x","targetPrice":0}`,
		`{"productName":"x","targetPrice":-5}`,
	} {
		if rec := postJSON(t, s.Handler(), "/alerts", body, nil); rec.Code != http.StatusBadRequest {
			t.Errorf("body %q: status = %d, want 400", body, rec.Code)
		}
	}
}

func TestHealthAndMetrics(t *testing.T) {
	s, _ := newTestServer(t)
	if rec := get(t, s.Handler(), "/health"); rec.Code != http.StatusOK {
		t.Errorf("health = %d", rec.Code)
	}
	rec := get(t, s.Handler(), "/metrics")
	if rec.Code != http.StatusOK {
		t.Errorf("metrics = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "pricepatrol_jobs_created_total") {
		t.Errorf("metrics body missing counters: %s", rec.Body)
	}
}
