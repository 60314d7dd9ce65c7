// Package jobs owns the asynchronous search-job lifecycle: submission,
// reuse, per-source fan-out, incremental persistence, and finalization.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"pricepatrol/internal/config"
	"pricepatrol/internal/normalize"
	"pricepatrol/internal/observability"
	"pricepatrol/internal/rank"
	"pricepatrol/internal/ratelimit"
	"pricepatrol/internal/sources"
	"pricepatrol/internal/store"
	"pricepatrol/internal/types"
)

const catalogLimit = 10

// Dispatcher hands a freshly created job to whichever process should run
// it. The local orchestrator is itself a Dispatcher; a remote worker client
// is another.
type Dispatcher interface {
	Dispatch(ctx context.Context, job *types.Job) error
}

// DispatcherFunc adapts a function to the Dispatcher interface.
type DispatcherFunc func(ctx context.Context, job *types.Job) error

func (f DispatcherFunc) Dispatch(ctx context.Context, job *types.Job) error {
	return f(ctx, job)
}

// Orchestrator coordinates one job across all registered sources.
type Orchestrator struct {
	cfg        *config.Config
	registry   *sources.Registry
	governor   *ratelimit.Governor
	normalizer *normalize.Normalizer
	ranker     *rank.Ranker
	jobs       store.JobStore
	catalog    store.CatalogStore
	metrics    *observability.Metrics
	logger     *slog.Logger

	// remote, when set, is tried first for every new job; on any handoff
	// failure the job runs locally.
	remote Dispatcher
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithCatalog enables static-catalog enrichment of results.
func WithCatalog(c store.CatalogStore) Option {
	return func(o *Orchestrator) { o.catalog = c }
}

// WithRemote routes new jobs to a remote worker, falling back to local
// execution when the handoff fails.
func WithRemote(d Dispatcher) Option {
	return func(o *Orchestrator) { o.remote = d }
}

// NewOrchestrator wires the pipeline stages together.
func NewOrchestrator(
	cfg *config.Config,
	registry *sources.Registry,
	governor *ratelimit.Governor,
	jobs store.JobStore,
	metrics *observability.Metrics,
	logger *slog.Logger,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		cfg:        cfg,
		registry:   registry,
		governor:   governor,
		normalizer: normalize.New(cfg.Rank.PriceCeiling, logger),
		ranker:     rank.New(&cfg.Rank),
		jobs:       jobs,
		metrics:    metrics,
		logger:     logger.With("component", "orchestrator"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Submit registers a search job and schedules its execution. An identical
// query submitted within the reuse window returns the earlier job instead
// of scraping again.
func (o *Orchestrator) Submit(ctx context.Context, query, category string) (*types.Job, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, types.ErrEmptyQuery
	}

	if reused, err := o.jobs.FindReusable(ctx, query, o.cfg.Scrape.ReuseWindow); err == nil {
		o.metrics.JobsReused.Add(1)
		o.logger.Info("reusing recent job", "job_id", reused.ID, "query", query)
		return reused, nil
	} else if !errors.Is(err, types.ErrJobNotFound) {
		return nil, err
	}

	now := time.Now()
	job := &types.Job{
		ID:             uuid.NewString(),
		Query:          query,
		Category:       category,
		Status:         types.JobPending,
		Progress:       fmt.Sprintf("0/%d sources", len(o.registry.Names())),
		PlatformStatus: make(map[string]types.SourceStatus),
		StartTime:      now,
		ExpiresAt:      now.Add(o.cfg.Scrape.JobTTL),
	}
	for _, name := range o.registry.Names() {
		job.PlatformStatus[name] = types.SourcePending
	}
	if err := o.jobs.InsertJob(ctx, job); err != nil {
		return nil, err
	}
	o.metrics.JobsCreated.Add(1)
	o.logger.Info("job created", "job_id", job.ID, "query", query, "category", category)

	if o.remote != nil {
		if err := o.remote.Dispatch(ctx, job); err == nil {
			return job, nil
		} else {
			o.logger.Warn("worker handoff failed, running locally", "job_id", job.ID, "error", err)
		}
	}
	go o.runDetached(job.ID)
	return job, nil
}

// Dispatch runs a previously inserted job locally. Used directly by the
// worker process and as the fallback path of Submit.
func (o *Orchestrator) Dispatch(ctx context.Context, job *types.Job) error {
	return o.Run(ctx, job.ID)
}

func (o *Orchestrator) runDetached(jobID string) {
	ctx, cancel := context.WithTimeout(context.Background(), o.jobTimeout())
	defer cancel()
	if err := o.Run(ctx, jobID); err != nil {
		o.logger.Error("job run failed", "job_id", jobID, "error", err)
	}
}

func (o *Orchestrator) jobTimeout() time.Duration {
	per := o.cfg.Scrape.ExtractionTimeout
	n := len(o.registry.Names())
	if n == 0 {
		n = 1
	}
	// Sequential worst case plus slack for rate-limit waits.
	return per*time.Duration(n) + 2*time.Minute
}

// Run executes the job with the given ID through every registered source
// and finalizes it. Individual source failures are recorded on the job;
// only a browser that cannot launch fails the job itself.
func (o *Orchestrator) Run(ctx context.Context, jobID string) error {
	job, err := o.jobs.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		return nil
	}
	if job.Status.CanTransition(types.JobRunning) {
		job.Status = types.JobRunning
		if err := o.jobs.UpdateJob(ctx, job); err != nil {
			return err
		}
	}

	run := &jobRun{o: o, job: job}
	adapters := o.registry.All()

	if strings.EqualFold(o.cfg.Scrape.Tier, config.TierConstrained) {
		for _, a := range adapters {
			run.scrapeSource(ctx, a)
		}
	} else {
		var wg sync.WaitGroup
		for _, a := range adapters {
			wg.Add(1)
			go func(a sources.Adapter) {
				defer wg.Done()
				run.scrapeSource(ctx, a)
			}(a)
		}
		wg.Wait()
	}

	return run.finalize(ctx)
}

// jobRun serializes mutations of one job during its concurrent fan-out.
type jobRun struct {
	o   *Orchestrator
	job *types.Job

	mu        sync.Mutex
	done      int
	jobFatal  bool
	collected []types.Listing
}

func (r *jobRun) scrapeSource(ctx context.Context, a sources.Adapter) {
	name := a.Name()
	log := r.o.logger.With("job_id", r.job.ID, "source", name)

	r.mutate(ctx, func(job *types.Job) {
		job.PlatformStatus[name] = types.SourceScraping
	})

	if err := r.o.governor.AwaitSlot(ctx, name); err != nil {
		r.fail(ctx, name, err, log)
		return
	}
	// Admission consumes the slot immediately; concurrent jobs must see
	// the window occupied while this extraction is still in flight.
	r.o.governor.RecordRequest(name)

	extractCtx, cancel := context.WithTimeout(ctx, r.o.cfg.Scrape.ExtractionTimeout)
	defer cancel()

	r.o.metrics.ExtractionsTotal.Add(1)
	raws, err := a.Extract(extractCtx, &sources.ExtractInput{
		Query:    r.job.Query,
		Category: r.job.Category,
	})

	if err != nil {
		if extractCtx.Err() != nil && errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %v", types.ErrTimeout, err)
		}
		r.fail(ctx, name, err, log)
		return
	}

	r.o.metrics.ListingsExtracted.Add(int64(len(raws)))
	listings := r.o.normalizer.Batch(raws)
	r.o.metrics.ListingsNormalized.Add(int64(len(listings)))
	r.o.metrics.ListingsDropped.Add(int64(len(raws) - len(listings)))

	log.Info("source completed", "raw", len(raws), "kept", len(listings))
	r.mutate(ctx, func(job *types.Job) {
		r.collected = append(r.collected, listings...)
		job.Results = append(job.Results, listings...)
		job.PlatformStatus[name] = types.SourceCompleted
		r.done++
		job.Progress = fmt.Sprintf("%d/%d sources", r.done, len(job.PlatformStatus))
	})
}

func (r *jobRun) fail(ctx context.Context, source string, err error, log *slog.Logger) {
	ee := types.ClassifyExtractError(source, err)
	if ee.Kind == types.ErrKindBlocked {
		r.o.metrics.SourcesBlocked.Add(1)
	}
	r.o.metrics.ExtractionsFailed.Add(1)
	log.Warn("source failed", "kind", ee.Kind, "error", err)

	r.mutate(ctx, func(job *types.Job) {
		job.PlatformStatus[source] = types.SourceFailed
		job.Errors = append(job.Errors, ee.JobErr())
		r.done++
		job.Progress = fmt.Sprintf("%d/%d sources", r.done, len(job.PlatformStatus))
		if errors.Is(err, types.ErrBrowserLaunch) {
			r.jobFatal = true
		}
	})
}

// mutate applies fn under the run lock and persists the snapshot so poll
// clients see progress as it happens.
func (r *jobRun) mutate(ctx context.Context, fn func(job *types.Job)) {
	r.mu.Lock()
	fn(r.job)
	snapshot := *r.job
	r.mu.Unlock()

	if err := r.o.jobs.UpdateJob(ctx, &snapshot); err != nil {
		r.o.logger.Warn("incremental persist failed", "job_id", r.job.ID, "error", err)
	}
}

func (r *jobRun) finalize(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	job := r.job
	results := r.collected

	if r.o.catalog != nil {
		if extra, err := r.o.catalog.FindCatalog(ctx, job.Query, catalogLimit); err != nil {
			r.o.logger.Warn("catalog lookup failed", "job_id", job.ID, "error", err)
		} else {
			results = append(results, extra...)
		}
	}

	job.Results = r.o.ranker.Rank(job.Query, results)

	next := types.JobCompleted
	if r.jobFatal {
		next = types.JobFailed
	}
	if job.Status.CanTransition(next) {
		job.Status = next
	}
	now := time.Now()
	job.EndTime = &now

	switch job.Status {
	case types.JobFailed:
		r.o.metrics.JobsFailed.Add(1)
	default:
		r.o.metrics.JobsCompleted.Add(1)
	}
	r.o.logger.Info("job finalized",
		"job_id", job.ID,
		"status", job.Status,
		"results", len(job.Results),
		"errors", len(job.Errors),
		"duration", now.Sub(job.StartTime).Round(time.Millisecond))

	// The run context may already be past its deadline; the terminal state
	// still has to reach the store.
	persistCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return r.o.jobs.UpdateJob(persistCtx, job)
}

// Status returns the current snapshot of a job, honoring expiry.
func (o *Orchestrator) Status(ctx context.Context, jobID string) (*types.Job, error) {
	return o.jobs.GetJob(ctx, jobID)
}
