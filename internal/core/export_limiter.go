package core

// export_limiter.go bounds how many exports run at once.
//
// Each export reads every selected month and builds one workbook in memory,
// so the HTTP surface admits only a few at a time. Callers that cannot get a
// slot within maxWait receive ErrTooManyExports.

import (
	"context"
	"errors"
	"time"
)

// ErrTooManyExports is returned when all export slots stay occupied for the
// whole wait period.
var ErrTooManyExports = errors.New("too many exports in progress, please try again later")

const (
	DefaultMaxConcurrentExports = 2
	DefaultExportWait           = 30 * time.Second
)

// ExportLimiter is a counting semaphore with a bounded wait.
type ExportLimiter struct {
	slots   chan struct{}
	maxWait time.Duration
}

// NewExportLimiter allows at most maxConcurrent exports; Acquire gives up
// after maxWait.
func NewExportLimiter(maxConcurrent int, maxWait time.Duration) *ExportLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentExports
	}
	if maxWait <= 0 {
		maxWait = DefaultExportWait
	}
	return &ExportLimiter{
		slots:   make(chan struct{}, maxConcurrent),
		maxWait: maxWait,
	}
}

// Acquire takes a slot, waiting up to maxWait. The caller must Release it.
// A cancelled ctx returns ctx.Err() instead of ErrTooManyExports.
func (l *ExportLimiter) Acquire(ctx context.Context) error {
	timer := time.NewTimer(l.maxWait)
	defer timer.Stop()

	select {
	case l.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrTooManyExports
	}
}

// TryAcquire takes a slot only if one is free right now.
func (l *ExportLimiter) TryAcquire() bool {
	select {
	case l.slots <- struct{}{}:
		return true
	default:
		return false
	}
}

// Release frees a slot taken by Acquire or TryAcquire.
func (l *ExportLimiter) Release() {
	<-l.slots
}

// Active returns the number of slots in use.
func (l *ExportLimiter) Active() int { return len(l.slots) }

// Available returns the number of free slots.
func (l *ExportLimiter) Available() int { return cap(l.slots) - len(l.slots) }

// ExportLimiterStatus is a snapshot for the health endpoint.
type ExportLimiterStatus struct {
	Active        int `json:"active"`
	Available     int `json:"available"`
	MaxConcurrent int `json:"max_concurrent"`
}

// Status returns the current limiter state.
func (l *ExportLimiter) Status() ExportLimiterStatus {
	active := len(l.slots)
	return ExportLimiterStatus{
		Active:        active,
		Available:     cap(l.slots) - active,
		MaxConcurrent: cap(l.slots),
	}
}
