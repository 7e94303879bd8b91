package core

import (
	"time"

	"github.com/JonMunkholm/intervalmerge/internal/history"
	"github.com/google/uuid"
)

// FileResult is the validation outcome for one file. Err is nil when the
// file is a complete month.
type FileResult struct {
	Name string
	Err  error

	// Header and Rows are filled in whenever the file could be parsed.
	Header []string
	Rows   int
}

// Valid reports whether the file passed every check.
func (r FileResult) Valid() bool { return r.Err == nil }

// Reason is the human-readable failure, or "" for a valid file.
func (r FileResult) Reason() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// Code is the support code of the failure, or "" for a valid file.
func (r FileResult) Code() string {
	if r.Err == nil {
		return ""
	}
	return Describe(r.Err).Code
}

func (r FileResult) outcome() history.FileOutcome {
	return history.FileOutcome{Name: r.Name, Valid: r.Valid(), Code: r.Code(), Reason: r.Reason()}
}

// Report is the result of validating a folder. Results follow the folder
// listing order.
type Report struct {
	RunID      uuid.UUID
	Folder     string
	StartedAt  time.Time
	FinishedAt time.Time
	Results    []FileResult
}

// Valid returns the names of the files that passed.
func (r *Report) Valid() []string {
	var names []string
	for _, res := range r.Results {
		if res.Valid() {
			names = append(names, res.Name)
		}
	}
	return names
}

// Invalid returns the results of the files that failed.
func (r *Report) Invalid() []FileResult {
	var out []FileResult
	for _, res := range r.Results {
		if !res.Valid() {
			out = append(out, res)
		}
	}
	return out
}

// Lookup returns the result for name.
func (r *Report) Lookup(name string) (FileResult, bool) {
	for _, res := range r.Results {
		if res.Name == name {
			return res, true
		}
	}
	return FileResult{}, false
}

func (r *Report) run() history.Run {
	run := history.Run{
		ID:         r.RunID,
		Kind:       history.KindValidate,
		Folder:     r.Folder,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
	}
	for _, res := range r.Results {
		run.Files = append(run.Files, res.outcome())
	}
	return run
}

// ExportRequest selects files and columns for a workbook.
type ExportRequest struct {
	Folder     string
	Files      []string
	Column1    string
	Column2    string
	OutputPath string
}

// ExportResult describes a finished export.
type ExportResult struct {
	RunID      uuid.UUID
	OutputPath string
	StartedAt  time.Time
	FinishedAt time.Time

	// Rows is the number of data rows written.
	Rows int

	// Included lists the exported files in request order.
	Included []string

	// Skipped holds the requested files that failed, with their reasons.
	Skipped []FileResult
}

func (r *ExportResult) run(folder string, written bool) history.Run {
	run := history.Run{
		ID:         r.RunID,
		Kind:       history.KindExport,
		Folder:     folder,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
	}
	if written {
		run.Output = r.OutputPath
	}
	for _, name := range r.Included {
		run.Files = append(run.Files, history.FileOutcome{Name: name, Valid: true})
	}
	for _, res := range r.Skipped {
		run.Files = append(run.Files, res.outcome())
	}
	return run
}
