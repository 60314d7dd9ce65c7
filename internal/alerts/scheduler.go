package alerts

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler drives the evaluator on a wall-clock interval.
type Scheduler struct {
	cron      *cron.Cron
	evaluator *Evaluator
	spec      string
	timeout   time.Duration
	logger    *slog.Logger
}

// NewScheduler fires one evaluator pass every interval. Each pass is
// bounded so a stuck source cannot pile ticks on top of each other.
func NewScheduler(evaluator *Evaluator, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cron:      cron.New(),
		evaluator: evaluator,
		spec:      fmt.Sprintf("@every %s", interval),
		timeout:   interval,
		logger:    logger.With("component", "alert_scheduler"),
	}
}

// Start registers the tick and begins scheduling.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.spec, func() {
		tickCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		if err := s.evaluator.RunOnce(tickCtx); err != nil {
			s.logger.Error("alert pass failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("cron.AddFunc: %w", err)
	}
	s.cron.Start()
	s.logger.Info("alert scheduler started", "spec", s.spec)
	return nil
}

// Stop halts scheduling and waits for an in-flight pass to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("alert scheduler stopped")
}
