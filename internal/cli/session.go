// Package cli is the line-oriented interactive front end.
//
// A Session walks the operator through folder, file, column and output
// choices, printing the validation report along the way. Every answer can be
// preset, in which case the matching prompt is skipped; a fully preset
// session runs without reading input at all.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"strings"

	"github.com/JonMunkholm/intervalmerge/internal/core"
	"github.com/JonMunkholm/intervalmerge/internal/measurement"
	"github.com/JonMunkholm/intervalmerge/internal/spreadsheet"
)

// ErrAborted is returned when the session stops early after printing a
// diagnostic, e.g. for a missing folder or an empty selection.
var ErrAborted = errors.New("session aborted")

// ErrNoInput is returned when input ends while a prompt is waiting.
var ErrNoInput = errors.New("no input for prompt")

// Runner is the part of core.Service a session drives.
type Runner interface {
	ValidateFolder(ctx context.Context, folder string) (*core.Report, error)
	Columns(ctx context.Context, folder, name string) ([]string, error)
	Export(ctx context.Context, req core.ExportRequest) (*core.ExportResult, error)
}

// Presets answers prompts ahead of time. Empty fields are asked for.
type Presets struct {
	Folder       string
	Files        []string
	Column1      string
	Column2      string
	OutputFolder string
	OutputFile   string

	// AllValid selects every valid file when Files is empty instead of
	// asking.
	AllValid bool
}

// Session is one interactive run.
type Session struct {
	runner  Runner
	in      *bufio.Scanner
	out     io.Writer
	presets Presets
}

// NewSession creates a session reading answers from in and writing prompts
// and reports to out.
func NewSession(runner Runner, in io.Reader, out io.Writer, presets Presets) *Session {
	if presets.OutputFile == "" {
		presets.OutputFile = spreadsheet.DefaultFileName
	}
	return &Session{
		runner:  runner,
		in:      bufio.NewScanner(in),
		out:     out,
		presets: presets,
	}
}

// Run executes the full flow. It returns nil after a successful export and
// after "No valid data to save.", which is reported but not an error.
func (s *Session) Run(ctx context.Context) error {
	folder, err := s.answer(s.presets.Folder, "Enter the folder path containing the files: ")
	if err != nil {
		return err
	}
	if !measurement.DirExists(folder) {
		return s.abort("Folder does not exist. Exiting.")
	}

	s.println("\nValidating files...")
	report, err := s.runner.ValidateFolder(ctx, folder)
	if err != nil {
		return fmt.Errorf("validate %s: %w", folder, err)
	}
	s.printReport(report)

	valid := report.Valid()
	if len(valid) == 0 {
		return s.abort("No valid files found. Exiting.")
	}

	files, err := s.selectFiles(valid)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return s.abort("No valid files selected. Exiting.")
	}

	header, err := s.runner.Columns(ctx, folder, files[0])
	if err != nil {
		return fmt.Errorf("read columns: %w", err)
	}
	col1, col2, err := s.selectColumns(header)
	if err != nil {
		return err
	}

	outDir, err := s.outputFolder()
	if err != nil {
		return err
	}

	s.println("\nProcessing files...")
	result, err := s.runner.Export(ctx, core.ExportRequest{
		Folder:     folder,
		Files:      files,
		Column1:    col1,
		Column2:    col2,
		OutputPath: filepath.Join(outDir, s.presets.OutputFile),
	})
	if result != nil {
		for _, skipped := range result.Skipped {
			s.printf("Skipping %s: %s\n", skipped.Name, skipped.Reason())
		}
	}
	switch {
	case errors.Is(err, spreadsheet.ErrNoData):
		s.println("\nNo valid data to save.")
		return nil
	case err != nil:
		s.printf("\n%s\n", core.FormatUserError(err))
		return err
	}

	s.printf("\nAll data saved to %s.\n", result.OutputPath)
	return nil
}

func (s *Session) printReport(report *core.Report) {
	if invalid := report.Invalid(); len(invalid) > 0 {
		s.println("\nInvalid Files:")
		for _, res := range invalid {
			s.printf("%s: %s\n", res.Name, res.Reason())
		}
	}
	if valid := report.Valid(); len(valid) > 0 {
		s.println("\nValid Files:")
		for _, name := range valid {
			s.println(name)
		}
	}
}

// selectFiles keeps the chosen names that passed validation, in the order
// they were given.
func (s *Session) selectFiles(valid []string) ([]string, error) {
	chosen := s.presets.Files
	if len(chosen) == 0 && s.presets.AllValid {
		return valid, nil
	}
	if len(chosen) == 0 {
		s.println("\nWhich files do you want to process? (comma-separated)")
		line, err := s.prompt("> ")
		if err != nil {
			return nil, err
		}
		chosen = strings.Split(line, ",")
	}

	var files []string
	for _, name := range chosen {
		name = strings.TrimSpace(name)
		if slices.Contains(valid, name) {
			files = append(files, name)
		}
	}
	return files, nil
}

func (s *Session) selectColumns(header []string) (string, string, error) {
	col1, col2 := s.presets.Column1, s.presets.Column2
	if col1 == "" || col2 == "" {
		s.println("\nAvailable columns:")
		for _, col := range header {
			s.println(col)
		}

		var err error
		if col1, err = s.prompt("\nEnter the first column name to extract: "); err != nil {
			return "", "", err
		}
		if col2, err = s.prompt("Enter the second column name to extract: "); err != nil {
			return "", "", err
		}
	}

	if !slices.Contains(header, col1) || !slices.Contains(header, col2) {
		return "", "", s.abort(fmt.Sprintf("Invalid column names. Please choose from: %s", strings.Join(header, ", ")))
	}
	return col1, col2, nil
}

// outputFolder re-prompts until an existing folder is given. An invalid
// preset falls through to the prompt.
func (s *Session) outputFolder() (string, error) {
	if dir := s.presets.OutputFolder; dir != "" {
		if measurement.DirExists(dir) {
			return dir, nil
		}
		s.println("Folder does not exist. Please enter a valid folder path.")
	}
	for {
		dir, err := s.prompt("\nEnter the folder path to save the output file: ")
		if err != nil {
			return "", err
		}
		if measurement.DirExists(dir) {
			return dir, nil
		}
		s.println("Folder does not exist. Please enter a valid folder path.")
	}
}

func (s *Session) answer(preset, question string) (string, error) {
	if preset != "" {
		return preset, nil
	}
	return s.prompt(question)
}

// prompt writes question and returns the next trimmed input line.
func (s *Session) prompt(question string) (string, error) {
	io.WriteString(s.out, question)
	if !s.in.Scan() {
		if err := s.in.Err(); err != nil {
			return "", fmt.Errorf("read input: %w", err)
		}
		return "", fmt.Errorf("%w: %q", ErrNoInput, strings.TrimSpace(question))
	}
	return strings.TrimSpace(s.in.Text()), nil
}

func (s *Session) abort(msg string) error {
	s.println(msg)
	return ErrAborted
}

func (s *Session) println(line string) { fmt.Fprintln(s.out, line) }

func (s *Session) printf(format string, args ...any) { fmt.Fprintf(s.out, format, args...) }
