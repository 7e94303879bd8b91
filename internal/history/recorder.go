// Package history persists a log of validation and export runs.
//
// Each run stores one row per inspected file with its outcome, so an operator
// can later see which monthly exports were rejected and why.
package history

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Run kinds.
const (
	KindValidate = "validate"
	KindExport   = "export"
)

// Drivers accepted by Open.
const (
	DriverNone     = "none"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Run is one validation or export pass over a folder.
type Run struct {
	ID         uuid.UUID     `json:"id"`
	Kind       string        `json:"kind"`
	Folder     string        `json:"folder"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Output     string        `json:"output,omitempty"`
	Files      []FileOutcome `json:"files,omitempty"`
}

// FileOutcome is the result recorded for a single file in a run.
type FileOutcome struct {
	Name   string `json:"name"`
	Valid  bool   `json:"valid"`
	Code   string `json:"code,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// ValidCount returns how many files passed.
func (r Run) ValidCount() int {
	n := 0
	for _, f := range r.Files {
		if f.Valid {
			n++
		}
	}
	return n
}

// Recorder stores runs.
type Recorder interface {
	RecordRun(ctx context.Context, run Run) error
	// RecentRuns returns up to limit runs, newest first, with their files.
	RecentRuns(ctx context.Context, limit int) ([]Run, error)
	// Prune deletes runs started before cutoff and returns how many went.
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
	Close() error
}

// Open returns the recorder for driver. url is a file path for sqlite and a
// connection string for postgres; it is ignored for none.
func Open(ctx context.Context, driver, url string) (Recorder, error) {
	switch strings.ToLower(driver) {
	case "", DriverNone:
		return Noop{}, nil
	case DriverSQLite:
		return NewSQLite(ctx, url)
	case DriverPostgres:
		return NewPostgres(ctx, url)
	default:
		return nil, fmt.Errorf("unknown history driver %q", driver)
	}
}
