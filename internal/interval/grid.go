package interval

import (
	"iter"
	"time"
)

// Step is the distance between two consecutive grid marks.
const Step = 15 * time.Minute

// MarksPerDay is the number of 15-minute marks in one day.
const MarksPerDay = 96

// Grid is the ordered, gap-free set of 15-minute marks expected for one
// calendar month: from day 1 00:15 through 00:00 of the first day of the next
// month, both inclusive.
//
// A Grid is a value; iterating it has no side effects and can be repeated.
type Grid struct {
	start Instant
	end   Instant
}

// MonthGrid returns the grid for the month containing first.
//
// Only the year and month of first are used. Whether first is itself the
// opening mark is not checked here; a late or misaligned first row shows up
// as a validation failure instead.
func MonthGrid(first Instant) Grid {
	year, month := first.Year(), first.Month()

	nextYear, nextMonth := year, month+1
	if nextMonth > time.December {
		nextYear, nextMonth = year+1, time.January
	}

	return Grid{
		start: NewInstant(year, month, 1, 0, 15),
		end:   NewInstant(nextYear, nextMonth, 1, 0, 0),
	}
}

// Start is the first mark (day 1, 00:15).
func (g Grid) Start() Instant { return g.start }

// End is the closing mark (first day of next month, 00:00).
func (g Grid) End() Instant { return g.end }

// Year and Month identify the calendar month the grid covers.
func (g Grid) Year() int         { return g.start.Year() }
func (g Grid) Month() time.Month { return g.start.Month() }

// Len returns the number of marks in the grid, which is DaysIn × MarksPerDay.
func (g Grid) Len() int {
	return int(g.end.t.Sub(g.start.t)/Step) + 1
}

// All yields every mark in ascending order.
func (g Grid) All() iter.Seq[Instant] {
	return func(yield func(Instant) bool) {
		for at := g.start; !at.After(g.end); at = at.Add(Step) {
			if !yield(at) {
				return
			}
		}
	}
}

// Instants materializes the grid.
func (g Grid) Instants() []Instant {
	out := make([]Instant, 0, g.Len())
	for at := range g.All() {
		out = append(out, at)
	}
	return out
}

// Contains reports whether at is one of the grid's marks.
func (g Grid) Contains(at Instant) bool {
	if at.Before(g.start) || at.After(g.end) {
		return false
	}
	return at.t.Sub(g.start.t)%Step == 0
}

// DaysIn returns the number of days in the given month.
func DaysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
