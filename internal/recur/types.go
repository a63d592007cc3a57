// Package recur expands the recurrence of calendar components. It backs
// time-range matching and free-busy in the test server and the "next
// occurrence" column of the CLI listing.
package recur

import "time"

// Info contains all recurrence-related information for a component
type Info struct {
	RRULE  string      // RRULE value without the "RRULE:" prefix
	RDATE  []time.Time // additional recurrence dates
	EXDATE []time.Time // excluded occurrences
}

// IsRecurring reports whether the component repeats at all.
func (i Info) IsRecurring() bool {
	return i.RRULE != "" || len(i.RDATE) > 0
}

// Occurrence is a single instance of a component in time
type Occurrence struct {
	Start time.Time
	End   time.Time
}

// Overlaps uses the CalDAV time-range test: start < rangeEnd and end > rangeStart.
// Zero-length occurrences match when they fall inside the range.
func (o Occurrence) Overlaps(rangeStart, rangeEnd time.Time) bool {
	if o.End.Equal(o.Start) {
		return !o.Start.Before(rangeStart) && o.Start.Before(rangeEnd)
	}
	return o.Start.Before(rangeEnd) && o.End.After(rangeStart)
}
