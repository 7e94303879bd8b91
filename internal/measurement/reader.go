// Package measurement reads the semicolon-delimited interval exports and
// projects selected columns out of them.
//
// An export may start with free-form banner lines. The table begins at the
// first line whose text starts with HeaderToken; everything before it is
// ignored. Files are encoded in ISO-8859-1.
package measurement

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/JonMunkholm/intervalmerge/internal/interval"
	"golang.org/x/text/encoding/charmap"
)

// HeaderToken names the timestamp column and marks the header line.
const HeaderToken = "Datum/Zeit"

// Delimiter separates fields in header and data lines.
const Delimiter = ';'

var (
	ErrNoHeader       = errors.New("no header found")
	ErrIncompleteRow  = errors.New("missing data in one or more columns")
	ErrFolderNotFound = errors.New("folder does not exist")
	ErrUnknownColumn  = errors.New("unknown column")
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// LineError attaches a 1-indexed source line to a row-level failure.
type LineError struct {
	Line int
	Err  error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *LineError) Unwrap() error { return e.Err }

// File is one parsed export.
type File struct {
	Name string

	// Header holds the trimmed column names of the header line.
	Header []string

	// Rows holds the data rows following the header, in file order.
	Rows [][]string

	// HeaderLine is the 1-indexed line the header was found on.
	HeaderLine int

	lines []int
}

// ReadFile opens and parses the export at path.
func ReadFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	return Parse(filepath.Base(path), f)
}

// Parse reads an export from r. name is only used for reporting.
//
// Every data row must carry a non-blank value for each header column;
// the first row that does not fails the whole file with ErrIncompleteRow.
func Parse(name string, r io.Reader) (*File, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	raw = bytes.TrimPrefix(raw, utf8BOM)

	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(raw)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}

	lines := strings.Split(string(decoded), "\n")
	headerIdx := FindHeader(lines)
	if headerIdx < 0 {
		return nil, ErrNoHeader
	}

	reader := csv.NewReader(strings.NewReader(strings.Join(lines[headerIdx:], "\n")))
	reader.Comma = Delimiter
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	headerRow, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("header of %s: %w", name, err)
	}

	file := &File{
		Name:       name,
		Header:     cleanHeader(headerRow),
		HeaderLine: headerIdx + 1,
	}

	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				return nil, &LineError{Line: pe.Line + headerIdx, Err: pe.Err}
			}
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		line, _ := reader.FieldPos(0)
		line += headerIdx

		row = cleanRow(row)
		if blank(row) {
			continue
		}
		if !complete(row, len(file.Header)) {
			return nil, &LineError{Line: line, Err: ErrIncompleteRow}
		}

		file.Rows = append(file.Rows, row)
		file.lines = append(file.lines, line)
	}

	return file, nil
}

// FindHeader returns the index of the first line starting with HeaderToken
// once surrounding whitespace is removed, or -1.
func FindHeader(lines []string) int {
	for i, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), HeaderToken) {
			return i
		}
	}
	return -1
}

// Line returns the 1-indexed source line of data row i.
func (f *File) Line(i int) int {
	if i >= 0 && i < len(f.lines) {
		return f.lines[i]
	}
	return f.HeaderLine + i + 1
}

// Timestamps parses the first field of every data row.
func (f *File) Timestamps() ([]interval.Instant, error) {
	out := make([]interval.Instant, len(f.Rows))
	for i, row := range f.Rows {
		if len(row) == 0 {
			return nil, &LineError{Line: f.Line(i), Err: interval.ErrMalformedTimestamp}
		}
		at, err := interval.Parse(row[0])
		if err != nil {
			return nil, &LineError{Line: f.Line(i), Err: err}
		}
		out[i] = at
	}
	return out, nil
}

// cleanHeader trims names and drops empty trailing columns left by a
// terminating delimiter.
func cleanHeader(row []string) []string {
	out := make([]string, len(row))
	for i, h := range row {
		out[i] = strings.TrimSpace(h)
	}
	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	return out
}

func cleanRow(row []string) []string {
	for i, v := range row {
		row[i] = strings.TrimSpace(v)
	}
	return row
}

func blank(row []string) bool {
	for _, v := range row {
		if v != "" {
			return false
		}
	}
	return true
}

// complete reports whether the first n fields are present and non-blank.
func complete(row []string, n int) bool {
	if len(row) < n {
		return false
	}
	for _, v := range row[:n] {
		if v == "" {
			return false
		}
	}
	return true
}
