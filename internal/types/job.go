package types

import (
	"time"
)

// JobStatus is the lifecycle state of a search job. Transitions are
// monotonic: pending -> running -> completed|failed, never backwards.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// Terminal reports whether the status is absorbing.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// CanTransition reports whether moving from s to next is a legal forward
// transition.
func (s JobStatus) CanTransition(next JobStatus) bool {
	switch s {
	case JobPending:
		return next == JobRunning || next == JobCompleted || next == JobFailed
	case JobRunning:
		return next == JobCompleted || next == JobFailed
	default:
		return false
	}
}

// SourceStatus is the per-source progress within a job.
type SourceStatus string

const (
	SourcePending   SourceStatus = "pending"
	SourceScraping  SourceStatus = "scraping"
	SourceCompleted SourceStatus = "completed"
	SourceFailed    SourceStatus = "failed"
)

// ErrorKind classifies a per-source failure recorded on a job.
type ErrorKind string

const (
	ErrKindBlocked    ErrorKind = "blocked"
	ErrKindTimeout    ErrorKind = "timeout"
	ErrKindNavigation ErrorKind = "navigation"
	ErrKindAdapter    ErrorKind = "adapter"
)

// JobError is one structured per-source failure. Source failures never fail
// the job; they are surfaced here and in PlatformStatus instead.
type JobError struct {
	Source  string    `json:"source"  bson:"source"`
	Message string    `json:"message" bson:"message"`
	Kind    ErrorKind `json:"kind"    bson:"kind"`
}

// Job is the unit of asynchronous search work and its accumulating state.
// The orchestrator (or the worker process it hands off to) is the sole
// mutator of a job during its run; API readers only ever see snapshots.
type Job struct {
	ID       string `json:"jobId"    bson:"_id"`
	Query    string `json:"query"    bson:"query"`
	Category string `json:"category" bson:"category"`

	Status   JobStatus `json:"status"   bson:"status"`
	Progress string    `json:"progress" bson:"progress"`

	PlatformStatus map[string]SourceStatus `json:"platformStatus" bson:"platform_status"`
	Results        []Listing               `json:"results"        bson:"results"`
	Errors         []JobError              `json:"errors"         bson:"errors"`

	StartTime time.Time  `json:"startTime"         bson:"start_time"`
	EndTime   *time.Time `json:"endTime,omitempty" bson:"end_time,omitempty"`

	// ExpiresAt is the absolute reclaim point; the storage layer deletes
	// the job after this and the API treats it as not found.
	ExpiresAt time.Time `json:"expiresAt" bson:"expires_at"`
}

// Expired reports whether the job has passed its reclaim point.
func (j *Job) Expired(now time.Time) bool {
	return !j.ExpiresAt.IsZero() && now.After(j.ExpiresAt)
}

// PricePoint is one observation in an alert's bounded price history.
type PricePoint struct {
	Price  float64   `json:"price"  bson:"price"`
	Source string    `json:"source" bson:"source"`
	At     time.Time `json:"at"     bson:"at"`
}

// PriceHistoryCap bounds an alert's price history; oldest entries are
// evicted past this.
const PriceHistoryCap = 50

// Alert is a user-defined price watch. Alerts are created on user request,
// mutated only by the periodic evaluator, and never deleted automatically.
type Alert struct {
	ID          string `json:"id"                   bson:"_id"`
	ProductName string `json:"productName"          bson:"product_name"`
	ProductURL  string `json:"productUrl,omitempty" bson:"product_url,omitempty"`

	// Stores restricts which sources are consulted; empty means all.
	Stores []string `json:"stores,omitempty" bson:"stores,omitempty"`

	TargetPrice      float64      `json:"targetPrice"      bson:"target_price"`
	LastCheckedPrice float64      `json:"lastCheckedPrice" bson:"last_checked_price"`
	PriceHistory     []PricePoint `json:"priceHistory"     bson:"price_history"`

	// IsTriggered is monotonic: once true it never resets.
	IsTriggered bool       `json:"isTriggered"           bson:"is_triggered"`
	TriggeredAt *time.Time `json:"triggeredAt,omitempty" bson:"triggered_at,omitempty"`

	CreatedAt     time.Time `json:"createdAt"     bson:"created_at"`
	LastCheckedAt time.Time `json:"lastCheckedAt" bson:"last_checked_at"`
}

// RecordPrice appends an observation to the bounded history and updates
// LastCheckedPrice.
func (a *Alert) RecordPrice(p PricePoint) {
	a.PriceHistory = append(a.PriceHistory, p)
	if len(a.PriceHistory) > PriceHistoryCap {
		a.PriceHistory = a.PriceHistory[len(a.PriceHistory)-PriceHistoryCap:]
	}
	a.LastCheckedPrice = p.Price
	a.LastCheckedAt = p.At
}

// WatchesStore reports whether the alert consults the given source.
func (a *Alert) WatchesStore(source string) bool {
	if len(a.Stores) == 0 {
		return true
	}
	for _, s := range a.Stores {
		if s == source {
			return true
		}
	}
	return false
}
