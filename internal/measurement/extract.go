package measurement

import (
	"fmt"
	"strings"

	"github.com/JonMunkholm/intervalmerge/internal/interval"
)

// ProjectedRow is a data row reduced to its timestamp and two values.
type ProjectedRow struct {
	At     interval.Instant
	Value1 string
	Value2 string
}

// UnknownColumnError reports a requested column that is not in the header.
type UnknownColumnError struct {
	Column    string
	Available []string
}

func (e *UnknownColumnError) Error() string {
	return fmt.Sprintf("%s %q, available: %s", ErrUnknownColumn, e.Column, strings.Join(e.Available, ", "))
}

func (e *UnknownColumnError) Unwrap() error { return ErrUnknownColumn }

// ColumnIndex returns the position of name in the header.
func (f *File) ColumnIndex(name string) (int, bool) {
	name = strings.TrimSpace(name)
	for i, h := range f.Header {
		if h == name {
			return i, true
		}
	}
	return -1, false
}

// CheckColumns returns an *UnknownColumnError for the first name that is not
// in the header.
func (f *File) CheckColumns(names ...string) error {
	for _, name := range names {
		if _, ok := f.ColumnIndex(name); !ok {
			return &UnknownColumnError{Column: name, Available: append([]string(nil), f.Header...)}
		}
	}
	return nil
}

// Project extracts (timestamp, col1, col2) from every data row, in file
// order. Rows too short to hold all three positions are skipped.
//
// Project does not validate the timestamp sequence; callers are expected to
// run interval.Validate first.
func (f *File) Project(col1, col2 string) ([]ProjectedRow, error) {
	if err := f.CheckColumns(col1, col2); err != nil {
		return nil, err
	}

	tsIdx, ok := f.ColumnIndex(HeaderToken)
	if !ok {
		tsIdx = 0
	}
	idx1, _ := f.ColumnIndex(col1)
	idx2, _ := f.ColumnIndex(col2)
	need := max(tsIdx, idx1, idx2)

	out := make([]ProjectedRow, 0, len(f.Rows))
	for i, row := range f.Rows {
		if len(row) <= need {
			continue
		}
		at, err := interval.Parse(row[tsIdx])
		if err != nil {
			return nil, &LineError{Line: f.Line(i), Err: err}
		}
		out = append(out, ProjectedRow{At: at, Value1: row[idx1], Value2: row[idx2]})
	}
	return out, nil
}
