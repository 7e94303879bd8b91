package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/JonMunkholm/intervalmerge/internal/history"
	"github.com/JonMunkholm/intervalmerge/internal/interval"
	"github.com/JonMunkholm/intervalmerge/internal/logging"
	"github.com/JonMunkholm/intervalmerge/internal/measurement"
	"github.com/JonMunkholm/intervalmerge/internal/spreadsheet"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// DefaultWorkers is used when Options.Workers is not positive.
const DefaultWorkers = 4

// ErrInvalidRequest is returned for export requests missing required fields.
var ErrInvalidRequest = errors.New("invalid export request")

// WriteFunc writes projected rows to a workbook at path.
type WriteFunc func(path string, header []string, rows []measurement.ProjectedRow) error

// Options configures a Service.
type Options struct {
	// Extension filters folder listings (default: .txt).
	Extension string

	// Workers bounds how many files are processed at once.
	Workers int

	// Recorder receives every run. Defaults to history.Noop.
	Recorder history.Recorder

	// Write saves the workbook. Defaults to spreadsheet.Write.
	Write WriteFunc
}

// Service validates and exports interval files.
type Service struct {
	ext      string
	workers  int
	recorder history.Recorder
	write    WriteFunc
	now      func() time.Time
}

// NewService creates a Service, filling in defaults for unset options.
func NewService(opts Options) *Service {
	if opts.Extension == "" {
		opts.Extension = measurement.DefaultExtension
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.Recorder == nil {
		opts.Recorder = history.Noop{}
	}
	if opts.Write == nil {
		opts.Write = spreadsheet.Write
	}

	return &Service{
		ext:      opts.Extension,
		workers:  opts.Workers,
		recorder: opts.Recorder,
		write:    opts.Write,
		now:      time.Now,
	}
}

// Recorder returns the history recorder the service writes to.
func (s *Service) Recorder() history.Recorder { return s.recorder }

/* ----------------------------------------
	Validation
---------------------------------------- */

// ValidateFolder checks every export in folder.
//
// The returned error is only for folder-level problems (missing folder,
// cancellation); per-file failures are reported in the Report.
func (s *Service) ValidateFolder(ctx context.Context, folder string) (*Report, error) {
	names, err := measurement.ScanDir(folder, s.ext)
	if err != nil {
		return nil, err
	}

	report := &Report{RunID: uuid.New(), Folder: folder, StartedAt: s.now()}
	ctx = logging.WithRunID(ctx, report.RunID.String())
	logger := logging.FromContext(ctx)
	logger.Info("validating folder", "folder", folder, "files", len(names))

	results := make([]FileResult, len(names))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, name := range names {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return fmt.Errorf("operation cancelled: %w", err)
			}
			res, _ := s.checkFile(filepath.Join(folder, name))
			logResult(gctx, res)
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report.Results = results
	report.FinishedAt = s.now()
	s.record(ctx, report.run())

	logger.Info("folder validated",
		"valid", len(report.Valid()),
		"invalid", len(report.Invalid()),
		"duration_ms", report.FinishedAt.Sub(report.StartedAt).Milliseconds(),
	)
	return report, nil
}

// ValidateReader checks a single export read from r, such as an upload.
// Nothing is recorded.
func (s *Service) ValidateReader(ctx context.Context, name string, r io.Reader) FileResult {
	file, err := measurement.Parse(name, r)
	if err != nil {
		return FileResult{Name: name, Err: err}
	}
	res := FileResult{Name: name, Header: file.Header, Rows: len(file.Rows)}
	res.Err = validateFile(file)
	logResult(ctx, res)
	return res
}

// Columns returns the header of one file in folder.
func (s *Service) Columns(ctx context.Context, folder, name string) ([]string, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	file, err := measurement.ReadFile(filepath.Join(folder, name))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return file.Header, nil
}

// checkFile reads and validates the file at path. The parsed file is
// returned only when it is valid. Callers log the outcome.
func (s *Service) checkFile(path string) (FileResult, *measurement.File) {
	name := filepath.Base(path)

	file, err := measurement.ReadFile(path)
	if err != nil {
		return FileResult{Name: name, Err: err}, nil
	}

	res := FileResult{Name: name, Header: file.Header, Rows: len(file.Rows)}
	res.Err = validateFile(file)
	if res.Err != nil {
		return res, nil
	}
	return res, file
}

func validateFile(file *measurement.File) error {
	stamps, err := file.Timestamps()
	if err != nil {
		return err
	}
	return interval.Validate(stamps)
}

func logResult(ctx context.Context, res FileResult) {
	logger := logging.WithFields(ctx, "file", res.Name)
	if res.Err != nil {
		logger.Warn("file rejected", "code", res.Code(), "reason", res.Reason())
		return
	}
	logger.Debug("file validated", "rows", res.Rows)
}

/* ----------------------------------------
	Export
---------------------------------------- */

// Export re-validates the requested files, projects the two columns and
// writes the workbook.
//
// Failing files are skipped and listed in the result. If no rows remain the
// workbook is not written and spreadsheet.ErrNoData is returned together with
// the result.
func (s *Service) Export(ctx context.Context, req ExportRequest) (*ExportResult, error) {
	files, err := normalizeRequest(&req)
	if err != nil {
		return nil, err
	}

	result := &ExportResult{RunID: uuid.New(), OutputPath: req.OutputPath, StartedAt: s.now()}
	ctx = logging.WithRunID(ctx, result.RunID.String())
	logger := logging.FromContext(ctx)
	logger.Info("export started", "folder", req.Folder, "files", len(files), "column1", req.Column1, "column2", req.Column2)

	type projected struct {
		res  FileResult
		rows []measurement.ProjectedRow
	}
	outputs := make([]projected, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, name := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return fmt.Errorf("operation cancelled: %w", err)
			}
			res, file := s.checkFile(filepath.Join(req.Folder, name))
			var rows []measurement.ProjectedRow
			if file != nil {
				var err error
				if rows, err = file.Project(req.Column1, req.Column2); err != nil {
					res.Err = err
					rows = nil
				}
			}
			logResult(gctx, res)
			outputs[i] = projected{res: res, rows: rows}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var rows []measurement.ProjectedRow
	for _, out := range outputs {
		if out.res.Err != nil {
			result.Skipped = append(result.Skipped, out.res)
			continue
		}
		result.Included = append(result.Included, out.res.Name)
		rows = append(rows, out.rows...)
	}
	result.Rows = len(rows)

	writeErr := spreadsheet.ErrNoData
	if len(rows) > 0 {
		writeErr = s.write(req.OutputPath, spreadsheet.Header(req.Column1, req.Column2), rows)
	}
	result.FinishedAt = s.now()
	s.record(ctx, result.run(req.Folder, writeErr == nil))

	if writeErr != nil {
		if errors.Is(writeErr, spreadsheet.ErrNoData) {
			logger.Warn("export produced no data", "skipped", len(result.Skipped))
			return result, writeErr
		}
		return result, fmt.Errorf("write %s: %w", filepath.Base(req.OutputPath), writeErr)
	}

	logger.Info("export finished",
		"output", req.OutputPath,
		"rows", result.Rows,
		"included", len(result.Included),
		"skipped", len(result.Skipped),
	)
	return result, nil
}

// normalizeRequest checks req and returns its file list with blanks and
// duplicates removed, order kept.
func normalizeRequest(req *ExportRequest) ([]string, error) {
	req.Column1 = strings.TrimSpace(req.Column1)
	req.Column2 = strings.TrimSpace(req.Column2)

	switch {
	case req.Column1 == "" || req.Column2 == "":
		return nil, fmt.Errorf("%w: two columns are required", ErrInvalidRequest)
	case req.OutputPath == "":
		return nil, fmt.Errorf("%w: output path is required", ErrInvalidRequest)
	}

	seen := make(map[string]bool, len(req.Files))
	var files []string
	for _, name := range req.Files {
		name = strings.TrimSpace(name)
		if name == "" || seen[name] {
			continue
		}
		if err := checkName(name); err != nil {
			return nil, err
		}
		seen[name] = true
		files = append(files, name)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no files selected", ErrInvalidRequest)
	}
	return files, nil
}

// checkName rejects names that would escape the input folder.
func checkName(name string) error {
	if filepath.Base(name) != name || strings.Contains(name, "..") {
		return fmt.Errorf("%w: invalid filename %q", ErrInvalidRequest, name)
	}
	return nil
}

func (s *Service) record(ctx context.Context, run history.Run) {
	if err := s.recorder.RecordRun(ctx, run); err != nil {
		logging.FromContext(ctx).Warn("failed to record run history", "error", err)
	}
}
