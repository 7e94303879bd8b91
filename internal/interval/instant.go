// Package interval validates 15-minute interval timestamp sequences against
// the calendar month they claim to cover.
//
// A monthly export is expected to hold one row per 15-minute mark, starting at
// 00:15 on the first day of the month and ending at 00:00 on the first day of
// the following month. [MonthGrid] builds that expected grid and [Validate]
// reports which marks are missing, or where the observed order diverges from
// the grid (duplicates, swaps, stray off-grid values).
//
// All values are naive wall-clock times. No timezone or DST handling is done.
package interval

import (
	"errors"
	"fmt"
	"time"
)

// Layout is the timestamp layout used by the exports (DD.MM.YYYY HH:MM).
const Layout = "02.01.2006 15:04"

// ErrMalformedTimestamp is returned when a value does not match Layout or
// encodes an impossible date or time.
var ErrMalformedTimestamp = errors.New("malformed timestamp")

// Instant is a calendar date and time at minute resolution.
//
// Instants are comparable with == and usable as map keys.
type Instant struct {
	t time.Time
}

// NewInstant builds an Instant from its calendar fields. Out-of-range values
// are normalized the way time.Date normalizes them.
func NewInstant(year int, month time.Month, day, hour, minute int) Instant {
	return Instant{t: time.Date(year, month, day, hour, minute, 0, 0, time.UTC)}
}

// FromTime truncates t to the minute and drops its location, keeping the
// wall-clock fields.
func FromTime(t time.Time) Instant {
	return NewInstant(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute())
}

// Parse converts a DD.MM.YYYY HH:MM string into an Instant.
//
// Parse only checks calendar validity. It does not require the minute to sit
// on the 15-minute grid; that is left to Validate.
func Parse(s string) (Instant, error) {
	t, err := time.Parse(Layout, s)
	if err != nil {
		return Instant{}, fmt.Errorf("%w: %q", ErrMalformedTimestamp, s)
	}
	return Instant{t: t}, nil
}

// MustParse is like Parse but panics on error. Intended for tests and
// package-level constants.
func MustParse(s string) Instant {
	at, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return at
}

// Format renders the instant using Layout.
func (i Instant) Format() string { return i.t.Format(Layout) }

// String implements fmt.Stringer.
func (i Instant) String() string { return i.Format() }

// Time returns the instant as a UTC time.Time carrying the wall-clock fields.
func (i Instant) Time() time.Time { return i.t }

func (i Instant) Year() int         { return i.t.Year() }
func (i Instant) Month() time.Month { return i.t.Month() }
func (i Instant) Day() int          { return i.t.Day() }
func (i Instant) Hour() int         { return i.t.Hour() }
func (i Instant) Minute() int       { return i.t.Minute() }

// IsZero reports whether i is the zero Instant.
func (i Instant) IsZero() bool { return i.t.IsZero() }

// Before reports whether i is earlier than other.
func (i Instant) Before(other Instant) bool { return i.t.Before(other.t) }

// After reports whether i is later than other.
func (i Instant) After(other Instant) bool { return i.t.After(other.t) }

// Add returns i shifted by d, truncated to the minute.
func (i Instant) Add(d time.Duration) Instant {
	return Instant{t: i.t.Add(d).Truncate(time.Minute)}
}

// OnGrid reports whether the minute is a multiple of 15.
func (i Instant) OnGrid() bool { return i.t.Minute()%15 == 0 }
