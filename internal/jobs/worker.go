package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"

	"pricepatrol/internal/config"
	"pricepatrol/internal/types"
)

// handoffTimeout bounds the acknowledgment wait; the worker does the actual
// scraping on its own schedule.
const handoffTimeout = 2 * time.Second

// HandoffRequest is the payload posted to the worker process.
type HandoffRequest struct {
	JobID    string `json:"jobId"`
	Query    string `json:"query"`
	Category string `json:"category,omitempty"`
}

// WorkerClient dispatches jobs to a separate worker process over HTTP. The
// worker shares the job store, so only the job ID crosses the wire; the
// query rides along for logging.
type WorkerClient struct {
	client *resty.Client
	secret string
	logger *slog.Logger
}

// NewWorkerClient builds a Dispatcher that posts to cfg.URL authenticated
// with the shared bearer secret.
func NewWorkerClient(cfg *config.WorkerConfig, logger *slog.Logger) *WorkerClient {
	client := resty.New().
		SetBaseURL(cfg.URL).
		SetTimeout(handoffTimeout).
		SetAuthToken(cfg.Secret).
		SetHeader("Content-Type", "application/json")
	return &WorkerClient{
		client: client,
		secret: cfg.Secret,
		logger: logger.With("component", "worker_client"),
	}
}

// Dispatch posts the job and waits only for acknowledgment.
func (w *WorkerClient) Dispatch(ctx context.Context, job *types.Job) error {
	resp, err := w.client.R().
		SetContext(ctx).
		SetBody(HandoffRequest{JobID: job.ID, Query: job.Query, Category: job.Category}).
		Post("/scrape")
	if err != nil {
		return fmt.Errorf("worker handoff: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("worker handoff: status %d", resp.StatusCode())
	}
	w.logger.Debug("job handed off", "job_id", job.ID, "status", resp.StatusCode())
	return nil
}
