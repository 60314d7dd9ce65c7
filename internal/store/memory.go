package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"pricepatrol/internal/types"
)

// Memory is an in-process store for development and tests. Expiry is
// enforced on read; nothing is reclaimed in the background.
type Memory struct {
	mu      sync.RWMutex
	jobs    map[string]types.Job
	alerts  map[string]types.Alert
	catalog []types.Listing
}

func NewMemory() *Memory {
	return &Memory{
		jobs:   make(map[string]types.Job),
		alerts: make(map[string]types.Alert),
	}
}

// SeedCatalog replaces the static catalog contents.
func (m *Memory) SeedCatalog(listings []types.Listing) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.catalog = append([]types.Listing(nil), listings...)
}

func (m *Memory) InsertJob(_ context.Context, job *types.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = cloneJob(job)
	return nil
}

func (m *Memory) GetJob(_ context.Context, id string) (*types.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok || job.Expired(time.Now()) {
		return nil, types.ErrJobNotFound
	}
	out := cloneJob(&job)
	return &out, nil
}

func (m *Memory) UpdateJob(_ context.Context, job *types.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[job.ID]; !ok {
		return types.ErrJobNotFound
	}
	m.jobs[job.ID] = cloneJob(job)
	return nil
}

func (m *Memory) FindReusable(_ context.Context, query string, window time.Duration) (*types.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := time.Now()
	cutoff := now.Add(-window)
	want := strings.ToLower(strings.TrimSpace(query))

	candidates := make([]types.Job, 0, 4)
	for _, job := range m.jobs {
		if strings.ToLower(strings.TrimSpace(job.Query)) != want {
			continue
		}
		if job.StartTime.Before(cutoff) || job.Expired(now) {
			continue
		}
		if job.Status == types.JobFailed {
			continue
		}
		if job.Status == types.JobCompleted && len(job.Results) == 0 {
			continue
		}
		candidates = append(candidates, job)
	}
	if len(candidates) == 0 {
		return nil, types.ErrJobNotFound
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].StartTime.After(candidates[j].StartTime)
	})
	out := cloneJob(&candidates[0])
	return &out, nil
}

func (m *Memory) InsertAlert(_ context.Context, alert *types.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts[alert.ID] = *alert
	return nil
}

func (m *Memory) GetAlert(_ context.Context, id string) (*types.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	alert, ok := m.alerts[id]
	if !ok {
		return nil, types.ErrAlertNotFound
	}
	return &alert, nil
}

func (m *Memory) UpdateAlert(_ context.Context, alert *types.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.alerts[alert.ID]; !ok {
		return types.ErrAlertNotFound
	}
	m.alerts[alert.ID] = *alert
	return nil
}

func (m *Memory) ListAlerts(_ context.Context, untriggeredOnly bool) ([]types.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	alerts := make([]types.Alert, 0, len(m.alerts))
	for _, alert := range m.alerts {
		if untriggeredOnly && alert.IsTriggered {
			continue
		}
		alerts = append(alerts, alert)
	}
	sort.Slice(alerts, func(i, j int) bool {
		if alerts[i].CreatedAt.Equal(alerts[j].CreatedAt) {
			return alerts[i].ID < alerts[j].ID
		}
		return alerts[i].CreatedAt.Before(alerts[j].CreatedAt)
	})
	return alerts, nil
}

func (m *Memory) FindCatalog(_ context.Context, query string, limit int) ([]types.Listing, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	want := strings.ToLower(query)
	out := make([]types.Listing, 0, limit)
	for _, l := range m.catalog {
		if !strings.Contains(strings.ToLower(l.Title), want) {
			continue
		}
		out = append(out, l)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func cloneJob(job *types.Job) types.Job {
	out := *job
	if job.PlatformStatus != nil {
		out.PlatformStatus = make(map[string]types.SourceStatus, len(job.PlatformStatus))
		for k, v := range job.PlatformStatus {
			out.PlatformStatus[k] = v
		}
	}
	out.Results = append([]types.Listing(nil), job.Results...)
	out.Errors = append([]types.JobError(nil), job.Errors...)
	return out
}
