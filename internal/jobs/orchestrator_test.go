package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"testing"

	"pricepatrol/internal/config"
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
	err  error

	mu    sync.Mutex
	calls int
	trace *[]string

	// onExtract, when set, runs at the start of every Extract call.
	onExtract func()
}

func (f *fakeAdapter) Name() string { return f.name }

func (f *fakeAdapter) BuildQueryURL(query, category string) string {
	return "https://example.com/search?q=" + query
}

func (f *fakeAdapter) Extract(ctx context.Context, in *sources.ExtractInput) ([]types.RawListing, error) {
	f.mu.Lock()
	f.calls++
	if f.trace != nil {
		*f.trace = append(*f.trace, f.name)
	}
	f.mu.Unlock()
	if f.onExtract != nil {
		f.onExtract()
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.raws, nil
}

func (f *fakeAdapter) ExtractDetail(ctx context.Context, productURL string) (*types.RawListing, error) {
	if f.err != nil {
		return nil, f.err
	}
	if len(f.raws) == 0 {
		return nil, types.ErrNoPriceResolved
	}
	raw := f.raws[0]
	return &raw, nil
}

func raw(source, title string, price float64) types.RawListing {
	return types.RawListing{
		Source:     source,
		Title:      title,
		Price:      price,
		ProductURL: "https://example.com/p/" + title,
	}
}

func newTestOrchestrator(t *testing.T, adapters []sources.Adapter, opts ...Option) (*Orchestrator, *store.Memory) {
	t.Helper()
	cfg := config.DefaultConfig()
	logger := testLogger

	registry := sources.NewRegistry()
	for _, a := range adapters {
		registry.Register(a)
	}
	mem := store.NewMemory()
	o := NewOrchestrator(
		cfg,
		registry,
		ratelimit.NewGovernor(&cfg.Rate, logger),
		mem,
		observability.NewMetrics(logger),
		logger,
		opts...,
	)
	return o, mem
}

// syncRemote makes Submit run jobs inline so tests observe final state.
func syncRemote(o **Orchestrator) Option {
	return WithRemote(DispatcherFunc(func(ctx context.Context, job *types.Job) error {
		return (*o).Run(ctx, job.ID)
	}))
}

func TestSubmitEmptyQuery(t *testing.T) {
	o, _ := newTestOrchestrator(t, nil)
	if _, err := o.Submit(context.Background(), "   ", ""); !errors.Is(err, types.ErrEmptyQuery) {
		t.Fatalf("got %v, want ErrEmptyQuery", err)
	}
}

func TestSubmitAndRunCompletes(t *testing.T) {
	ctx := context.Background()
	var o *Orchestrator
	o, _ = newTestOrchestrator(t, []sources.Adapter{
		&fakeAdapter{name: "Amazon", raws: []types.RawListing{raw("Amazon", "Apple iPhone 15 128GB", 69900)}},
		&fakeAdapter{name: "Flipkart", raws: []types.RawListing{raw("Flipkart", "Apple iPhone 15 128GB", 68999)}},
	}, syncRemote(&o))

	job, err := o.Submit(ctx, "iphone 15", "mobiles")
	if err != nil {
		t.Fatal(err)
	}

	got, err := o.Status(ctx, job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != types.JobCompleted {
		t.Fatalf("status = %s, want completed", got.Status)
	}
	if got.EndTime == nil {
		t.Error("completed job must carry an end time")
	}
	if len(got.Results) != 2 {
		t.Fatalf("got %d results, want 2: %+v", len(got.Results), got.Results)
	}
	// Same score band, the cheaper listing leads.
	if got.Results[0].Source != "Flipkart" {
		t.Errorf("cheapest in-band listing should lead, got %s", got.Results[0].Source)
	}
	for source, st := range got.PlatformStatus {
		if st != types.SourceCompleted {
			t.Errorf("platform %s = %s, want completed", source, st)
		}
	}
	if got.Progress != "2/2 sources" {
		t.Errorf("progress = %q", got.Progress)
	}
}

func TestSourceFailureDoesNotFailJob(t *testing.T) {
	ctx := context.Background()
	var o *Orchestrator
	o, _ = newTestOrchestrator(t, []sources.Adapter{
		&fakeAdapter{name: "Amazon", raws: []types.RawListing{raw("Amazon", "Apple iPhone 15 128GB", 69900)}},
		&fakeAdapter{name: "Flipkart", err: fmt.Errorf("search page: %w", types.ErrSourceBlocked)},
	}, syncRemote(&o))

	job, err := o.Submit(ctx, "iphone 15", "")
	if err != nil {
		t.Fatal(err)
	}
	got, err := o.Status(ctx, job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != types.JobCompleted {
		t.Fatalf("status = %s, want completed despite source failure", got.Status)
	}
	if got.PlatformStatus["Flipkart"] != types.SourceFailed {
		t.Errorf("Flipkart status = %s, want failed", got.PlatformStatus["Flipkart"])
	}
	if len(got.Errors) != 1 || got.Errors[0].Kind != types.ErrKindBlocked {
		t.Errorf("errors = %+v, want one blocked error", got.Errors)
	}
	if len(got.Results) != 1 {
		t.Errorf("got %d results, want 1 from the healthy source", len(got.Results))
	}
}

func TestAllSourcesFailStillCompletes(t *testing.T) {
	ctx := context.Background()
	var o *Orchestrator
	o, _ = newTestOrchestrator(t, []sources.Adapter{
		&fakeAdapter{name: "Amazon", err: types.ErrSourceBlocked},
		&fakeAdapter{name: "Flipkart", err: errors.New("selectors drifted")},
	}, syncRemote(&o))

	job, err := o.Submit(ctx, "iphone 15", "")
	if err != nil {
		t.Fatal(err)
	}
	got, err := o.Status(ctx, job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != types.JobCompleted {
		t.Fatalf("status = %s; source failures alone never fail the job", got.Status)
	}
	if len(got.Results) != 0 || len(got.Errors) != 2 {
		t.Errorf("results=%d errors=%d, want 0 and 2", len(got.Results), len(got.Errors))
	}
}

func TestBrowserLaunchFailureFailsJob(t *testing.T) {
	ctx := context.Background()
	var o *Orchestrator
	o, _ = newTestOrchestrator(t, []sources.Adapter{
		&fakeAdapter{name: "Amazon", err: fmt.Errorf("engine: %w", types.ErrBrowserLaunch)},
	}, syncRemote(&o))

	job, err := o.Submit(ctx, "iphone 15", "")
	if err != nil {
		t.Fatal(err)
	}
	got, err := o.Status(ctx, job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != types.JobFailed {
		t.Fatalf("status = %s, want failed on browser launch exhaustion", got.Status)
	}
}

func TestSubmitReusesRecentJob(t *testing.T) {
	ctx := context.Background()
	amazon := &fakeAdapter{name: "Amazon", raws: []types.RawListing{raw("Amazon", "Apple iPhone 15 128GB", 69900)}}
	var o *Orchestrator
	o, _ = newTestOrchestrator(t, []sources.Adapter{amazon}, syncRemote(&o))

	first, err := o.Submit(ctx, "iphone 15", "")
	if err != nil {
		t.Fatal(err)
	}
	second, err := o.Submit(ctx, "IPHONE 15", "")
	if err != nil {
		t.Fatal(err)
	}
	if second.ID != first.ID {
		t.Errorf("identical query within the window must reuse job %s, got %s", first.ID, second.ID)
	}
	if amazon.calls != 1 {
		t.Errorf("source scraped %d times, want 1", amazon.calls)
	}
}

func TestConstrainedTierRunsSequentially(t *testing.T) {
	ctx := context.Background()
	var trace []string
	a := &fakeAdapter{name: "Amazon", trace: &trace, raws: []types.RawListing{raw("Amazon", "Apple iPhone 15", 69900)}}
	b := &fakeAdapter{name: "Croma", trace: &trace, raws: []types.RawListing{raw("Croma", "Apple iPhone 15", 70900)}}

	var o *Orchestrator
	o, _ = newTestOrchestrator(t, []sources.Adapter{a, b}, syncRemote(&o))
	o.cfg.Scrape.Tier = config.TierConstrained

	if _, err := o.Submit(ctx, "iphone 15", ""); err != nil {
		t.Fatal(err)
	}
	want := []string{"Amazon", "Croma"}
	if len(trace) != 2 || trace[0] != want[0] || trace[1] != want[1] {
		t.Errorf("trace = %v, want %v", trace, want)
	}
}

func TestAdmissionCountedBeforeExtraction(t *testing.T) {
	ctx := context.Background()
	var o *Orchestrator
	var inWindow int
	a := &fakeAdapter{name: "Amazon", raws: []types.RawListing{raw("Amazon", "Apple iPhone 15", 69900)}}
	a.onExtract = func() { inWindow = o.governor.InWindow("Amazon") }
	o, _ = newTestOrchestrator(t, []sources.Adapter{a}, syncRemote(&o))

	if _, err := o.Submit(ctx, "iphone 15", ""); err != nil {
		t.Fatal(err)
	}
	// The slot is consumed at admission, not after the extraction returns,
	// so a concurrent job over the same source sees the window occupied.
	if inWindow != 1 {
		t.Errorf("window count during extraction = %d, want 1", inWindow)
	}
}

// deadlineStore refuses writes once the caller's context is done, the way
// a real driver would.
type deadlineStore struct {
	*store.Memory
}

func (s *deadlineStore) UpdateJob(ctx context.Context, job *types.Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.Memory.UpdateJob(ctx, job)
}

func TestFinalizePersistsPastRunDeadline(t *testing.T) {
	mem := store.NewMemory()
	cfg := config.DefaultConfig()
	logger := testLogger

	runCtx, cancel := context.WithCancel(context.Background())
	a := &fakeAdapter{name: "Amazon", raws: []types.RawListing{raw("Amazon", "Apple iPhone 15", 69900)}}
	a.onExtract = func() { cancel() }

	registry := sources.NewRegistry()
	registry.Register(a)
	o := NewOrchestrator(cfg, registry, ratelimit.NewGovernor(&cfg.Rate, logger),
		&deadlineStore{mem}, observability.NewMetrics(logger), logger,
		WithRemote(DispatcherFunc(func(context.Context, *types.Job) error { return nil })))

	job, err := o.Submit(context.Background(), "iphone 15", "")
	if err != nil {
		t.Fatal(err)
	}
	// The run context dies mid-extraction; the terminal snapshot must land
	// in the store regardless.
	if err := o.Run(runCtx, job.ID); err != nil {
		t.Fatal(err)
	}
	got, err := o.Status(context.Background(), job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != types.JobCompleted {
		t.Fatalf("status = %s, want completed visible to poll clients", got.Status)
	}
	if got.EndTime == nil {
		t.Error("finalized job must carry an end time")
	}
}

func TestRunIdempotentOnTerminalJob(t *testing.T) {
	ctx := context.Background()
	amazon := &fakeAdapter{name: "Amazon", raws: []types.RawListing{raw("Amazon", "Apple iPhone 15", 69900)}}
	var o *Orchestrator
	o, _ = newTestOrchestrator(t, []sources.Adapter{amazon}, syncRemote(&o))

	job, err := o.Submit(ctx, "iphone 15", "")
	if err != nil {
		t.Fatal(err)
	}
	if err := o.Run(ctx, job.ID); err != nil {
		t.Fatal(err)
	}
	if amazon.calls != 1 {
		t.Errorf("re-running a terminal job scraped again: %d calls", amazon.calls)
	}
}

func TestCatalogEnrichment(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	mem.SeedCatalog([]types.Listing{{
		Source:       "Croma",
		Title:        "Apple iPhone 15 128GB Blue",
		Price:        70900,
		ProductURL:   "https://example.com/c/1",
		Availability: true,
	}})

	cfg := config.DefaultConfig()
	logger := testLogger
	registry := sources.NewRegistry()
	registry.Register(&fakeAdapter{name: "Amazon", raws: []types.RawListing{raw("Amazon", "Apple iPhone 15 128GB", 69900)}})

	var o *Orchestrator
	o = NewOrchestrator(cfg, registry, ratelimit.NewGovernor(&cfg.Rate, logger), mem,
		observability.NewMetrics(logger), logger,
		WithCatalog(mem), syncRemote(&o))

	job, err := o.Submit(ctx, "iphone 15", "")
	if err != nil {
		t.Fatal(err)
	}
	got, err := o.Status(ctx, job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Results) != 2 {
		t.Fatalf("got %d results, want live + catalog: %+v", len(got.Results), got.Results)
	}
}
