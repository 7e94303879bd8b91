package interval

import (
	"errors"
	"fmt"
	"strings"
)

// Kinds of validation failure. A *ValidationError unwraps to exactly one of
// these, so callers can branch with errors.Is.
var (
	ErrEmptySequence     = errors.New("no timestamps")
	ErrMissingTimestamps = errors.New("missing timestamps")
	ErrSequenceMismatch  = errors.New("duplicate or out-of-order timestamps")
)

// Mismatch locates the first position where the observed sequence diverges
// from the grid.
type Mismatch struct {
	Index int

	// Expected is the grid mark at Index. Zero if the observed sequence is
	// longer than the grid.
	Expected Instant

	// Observed is the value found at Index. Zero if the observed sequence is
	// shorter than the grid.
	Observed Instant

	ExpectedLen int
	ObservedLen int
}

// ValidationError describes why a sequence is not a complete month.
type ValidationError struct {
	Kind error

	// Missing holds every absent grid mark in ascending order. Set only when
	// Kind is ErrMissingTimestamps.
	Missing []Instant

	// Mismatch is set only when Kind is ErrSequenceMismatch.
	Mismatch *Mismatch
}

func (e *ValidationError) Error() string {
	if e == nil {
		return ""
	}
	switch {
	case e.Kind == ErrMissingTimestamps:
		return fmt.Sprintf("%s: %s", e.Kind, e.MissingList())
	case e.Kind == ErrSequenceMismatch && e.Mismatch != nil:
		return fmt.Sprintf("%s: %s", e.Kind, e.Mismatch.describe())
	default:
		return e.Kind.Error()
	}
}

func (e *ValidationError) Unwrap() error { return e.Kind }

// MissingList joins the missing marks for display.
func (e *ValidationError) MissingList() string {
	parts := make([]string, len(e.Missing))
	for i, at := range e.Missing {
		parts[i] = at.Format()
	}
	return strings.Join(parts, ", ")
}

func (m *Mismatch) describe() string {
	counts := fmt.Sprintf("%d rows, %d expected", m.ObservedLen, m.ExpectedLen)
	switch {
	case m.Expected.IsZero():
		return fmt.Sprintf("unexpected %s after closing mark at row %d (%s)", m.Observed, m.Index+1, counts)
	case m.Observed.IsZero():
		return fmt.Sprintf("sequence ends before %s at row %d (%s)", m.Expected, m.Index+1, counts)
	default:
		return fmt.Sprintf("row %d has %s, expected %s (%s)", m.Index+1, m.Observed, m.Expected, counts)
	}
}

// Validate checks that observed, in file order, is exactly the month grid
// anchored at its first element. It returns nil for a complete sequence and
// a *ValidationError otherwise.
//
// Missing marks are checked first, as a set, and reported in full. Only when
// nothing is missing is the sequence compared position by position, which
// catches duplicates, reordering and stray off-grid values.
func Validate(observed []Instant) error {
	if len(observed) == 0 {
		return &ValidationError{Kind: ErrEmptySequence}
	}

	grid := MonthGrid(observed[0])

	if missing := missingMarks(grid, observed); len(missing) > 0 {
		return &ValidationError{Kind: ErrMissingTimestamps, Missing: missing}
	}

	if m := firstMismatch(grid, observed); m != nil {
		return &ValidationError{Kind: ErrSequenceMismatch, Mismatch: m}
	}

	return nil
}

func missingMarks(grid Grid, observed []Instant) []Instant {
	seen := make(map[Instant]struct{}, len(observed))
	for _, at := range observed {
		seen[at] = struct{}{}
	}

	var missing []Instant
	for at := range grid.All() {
		if _, ok := seen[at]; !ok {
			missing = append(missing, at)
		}
	}
	return missing
}

func firstMismatch(grid Grid, observed []Instant) *Mismatch {
	n := grid.Len()
	i := 0
	for want := range grid.All() {
		if i >= len(observed) {
			return &Mismatch{Index: i, Expected: want, ExpectedLen: n, ObservedLen: len(observed)}
		}
		if observed[i] != want {
			return &Mismatch{Index: i, Expected: want, Observed: observed[i], ExpectedLen: n, ObservedLen: len(observed)}
		}
		i++
	}
	if len(observed) > n {
		return &Mismatch{Index: n, Observed: observed[n], ExpectedLen: n, ObservedLen: len(observed)}
	}
	return nil
}
