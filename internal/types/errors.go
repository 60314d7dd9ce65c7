package types

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure modes.
var (
	// ErrSourceBlocked means the page carried an anti-automation signature.
	// It is source-fatal but job-tolerant, and is never retried within the
	// extraction call that raised it.
	ErrSourceBlocked = errors.New("source blocked the request")

	// ErrBrowserLaunch means the rendering engine could not be (re)started
	// after exhausting retries. This is the only orchestration-fatal error.
	ErrBrowserLaunch = errors.New("browser launch failed")

	ErrJobNotFound     = errors.New("job not found")
	ErrAlertNotFound   = errors.New("alert not found")
	ErrUnknownSource   = errors.New("unknown source")
	ErrEmptyQuery      = errors.New("query must not be empty")
	ErrInvalidListing  = errors.New("listing failed validation")
	ErrNoPriceResolved = errors.New("no price could be resolved")
	ErrCacheMiss       = errors.New("cache miss")
)

// ExtractError wraps a per-source extraction failure with its classification.
type ExtractError struct {
	Source string
	Kind   ErrorKind
	Err    error
}

func (e *ExtractError) Error() string {
	return fmt.Sprintf("extract %s (%s): %v", e.Source, e.Kind, e.Err)
}

func (e *ExtractError) Unwrap() error { return e.Err }

// JobErr converts the failure to the structured form recorded on a job.
func (e *ExtractError) JobErr() JobError {
	return JobError{Source: e.Source, Message: e.Err.Error(), Kind: e.Kind}
}

// ClassifyExtractError wraps err with a kind inferred from well-known
// sentinels; unknown errors are adapter errors.
func ClassifyExtractError(source string, err error) *ExtractError {
	var ee *ExtractError
	if errors.As(err, &ee) {
		return ee
	}
	kind := ErrKindAdapter
	switch {
	case errors.Is(err, ErrSourceBlocked):
		kind = ErrKindBlocked
	case errors.Is(err, ErrTimeout):
		kind = ErrKindTimeout
	}
	return &ExtractError{Source: source, Kind: kind, Err: err}
}

// ErrTimeout marks a bounded operation that ran out of time.
var ErrTimeout = errors.New("operation timed out")

// StoreError wraps errors from the persistence layer.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }
