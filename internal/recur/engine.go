package recur

import (
	"fmt"
	"sort"
	"time"

	"github.com/teambition/rrule-go"
)

// DefaultMaxOccurrences bounds a single expansion.
const DefaultMaxOccurrences = 1000

// Engine provides recurrence expansion
type Engine struct {
	maxOccurrences int
}

// NewEngine creates a new recurrence engine instance
func NewEngine() *Engine {
	return &Engine{maxOccurrences: DefaultMaxOccurrences}
}

// Occurrences returns every instance of the master span that overlaps
// [rangeStart, rangeEnd), sorted by start time.
func (e *Engine) Occurrences(master Occurrence, info Info, rangeStart, rangeEnd time.Time) ([]Occurrence, error) {
	duration := master.End.Sub(master.Start)
	starts := []time.Time{master.Start}

	if info.RRULE != "" {
		// widen by the duration so instances starting before the range but
		// still running are kept
		expanded, err := e.expandRRule(master.Start, info.RRULE, rangeStart.Add(-duration), rangeEnd)
		if err != nil {
			return nil, err
		}
		starts = append(starts, expanded...)
	}
	starts = append(starts, info.RDATE...)

	seen := make(map[int64]bool, len(starts))
	var out []Occurrence
	for _, start := range starts {
		if seen[start.Unix()] || isExcluded(start, info.EXDATE) {
			continue
		}
		seen[start.Unix()] = true
		occ := Occurrence{Start: start, End: start.Add(duration)}
		if occ.Overlaps(rangeStart, rangeEnd) {
			out = append(out, occ)
		}
		if len(out) >= e.maxOccurrences {
			break
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

// HasOccurrenceInRange checks if a recurring event has any occurrence in the time range
func (e *Engine) HasOccurrenceInRange(master Occurrence, info Info, rangeStart, rangeEnd time.Time) (bool, error) {
	if !isExcluded(master.Start, info.EXDATE) && master.Overlaps(rangeStart, rangeEnd) {
		return true, nil
	}
	if !info.IsRecurring() {
		return false, nil
	}
	occurrences, err := e.Occurrences(master, info, rangeStart, rangeEnd)
	if err != nil {
		return false, fmt.Errorf("failed to check RRULE occurrences: %w", err)
	}
	return len(occurrences) > 0, nil
}

// Next returns the first instance starting after t. ok is false when the
// recurrence has ended.
func (e *Engine) Next(master Occurrence, info Info, after time.Time) (occ Occurrence, ok bool, err error) {
	duration := master.End.Sub(master.Start)
	var candidates []time.Time
	if master.Start.After(after) {
		candidates = append(candidates, master.Start)
	}
	if info.RRULE != "" {
		set, err := ruleSet(master.Start, info.RRULE)
		if err != nil {
			return Occurrence{}, false, err
		}
		for _, ex := range info.EXDATE {
			set.ExDate(ex)
		}
		if next := set.After(after, false); !next.IsZero() {
			candidates = append(candidates, next)
		}
	}
	for _, rdate := range info.RDATE {
		if rdate.After(after) {
			candidates = append(candidates, rdate)
		}
	}

	for _, c := range candidates {
		if isExcluded(c, info.EXDATE) {
			continue
		}
		if !ok || c.Before(occ.Start) {
			occ = Occurrence{Start: c, End: c.Add(duration)}
			ok = true
		}
	}
	return occ, ok, nil
}

// expandRRule expands an RRULE within the given time range
func (e *Engine) expandRRule(masterStart time.Time, rruleStr string, rangeStart, rangeEnd time.Time) ([]time.Time, error) {
	set, err := ruleSet(masterStart, rruleStr)
	if err != nil {
		return nil, err
	}
	// Between is inclusive of both ends here; callers filter with Overlaps
	occurrences := set.Between(rangeStart, rangeEnd, true)
	if len(occurrences) > e.maxOccurrences {
		occurrences = occurrences[:e.maxOccurrences]
	}
	return occurrences, nil
}

func ruleSet(masterStart time.Time, rruleStr string) (*rrule.Set, error) {
	dtstart := masterStart.UTC().Format("20060102T150405Z")
	set, err := rrule.StrToRRuleSet(fmt.Sprintf("DTSTART:%s\nRRULE:%s", dtstart, rruleStr))
	if err != nil {
		return nil, fmt.Errorf("failed to parse RRULE '%s': %w", rruleStr, err)
	}
	return set, nil
}

// isExcluded checks if a given time is in the EXDATE list. Date-only
// exceptions (midnight UTC) exclude every instance on that day.
func isExcluded(t time.Time, exdates []time.Time) bool {
	for _, exdate := range exdates {
		if t.Equal(exdate) {
			return true
		}
		if isAllDayDate(exdate) && exdate.Location() == time.UTC {
			day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
			if day.Equal(exdate) {
				return true
			}
		}
	}
	return false
}

// isAllDayDate checks if a time represents an all-day date (time part is midnight)
func isAllDayDate(t time.Time) bool {
	return t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0
}
