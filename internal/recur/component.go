package recur

import (
	"strings"
	"time"

	"github.com/emersion/go-ical"
)

// InfoFromComponent extracts recurrence information from an iCal component
func InfoFromComponent(comp *ical.Component) Info {
	info := Info{}
	if prop := comp.Props.Get(ical.PropRecurrenceRule); prop != nil && prop.Value != "" {
		info.RRULE = prop.Value
	}
	for _, prop := range comp.Props[ical.PropRecurrenceDates] {
		info.RDATE = append(info.RDATE, parseDateList(prop.Value, prop.Params)...)
	}
	for _, prop := range comp.Props[ical.PropExceptionDates] {
		info.EXDATE = append(info.EXDATE, parseDateList(prop.Value, prop.Params)...)
	}
	return info
}

// SpanFromComponent returns the span of the master instance. ok is false
// when the component has no usable time.
func SpanFromComponent(comp *ical.Component) (span Occurrence, ok bool) {
	var start, end time.Time
	if prop := comp.Props.Get(ical.PropDateTimeStart); prop != nil {
		t, err := prop.DateTime(time.UTC)
		if err == nil {
			start, ok = t, true
		}
	}

	if ok {
		switch {
		case comp.Props.Get(ical.PropDateTimeEnd) != nil:
			dtend, err := comp.Props.DateTime(ical.PropDateTimeEnd, time.UTC)
			if err != nil {
				return Occurrence{}, false
			}
			end = dtend
			// an all-day event ending on its start date lasts the whole day
			if isAllDayDate(start) && sameDay(start, end) {
				end = start.AddDate(0, 0, 1)
			}
		case comp.Props.Get(ical.PropDuration) != nil:
			d, err := comp.Props.Get(ical.PropDuration).Duration()
			if err != nil {
				return Occurrence{}, false
			}
			end = start.Add(d)
		case isAllDay(comp.Props.Get(ical.PropDateTimeStart)):
			end = start.AddDate(0, 0, 1)
		default:
			end = start
		}
	}

	if comp.Name == ical.CompToDo {
		if prop := comp.Props.Get(ical.PropDue); prop != nil {
			if due, err := prop.DateTime(time.UTC); err == nil {
				if !ok {
					start, end, ok = due, due, true
				} else if due.After(end) {
					end = due
				}
			}
		}
	}
	return Occurrence{Start: start, End: end}, ok
}

func isAllDay(prop *ical.Prop) bool {
	return prop != nil && strings.EqualFold(prop.Params.Get(ical.ParamValue), "DATE")
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// parseDateList parses a comma separated RDATE or EXDATE value. Dates
// without a time are stored as midnight UTC; unparseable entries are skipped.
func parseDateList(value string, params ical.Params) []time.Time {
	dateOnly := strings.EqualFold(params.Get(ical.ParamValue), "DATE")
	var loc *time.Location
	if tzid := params.Get(ical.ParamTimezoneID); tzid != "" {
		loc, _ = time.LoadLocation(tzid)
	}

	var dates []time.Time
	for _, s := range strings.Split(value, ",") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if t, err := parseDateTime(s, dateOnly, loc); err == nil {
			dates = append(dates, t)
		}
	}
	return dates
}

func parseDateTime(value string, dateOnly bool, loc *time.Location) (time.Time, error) {
	if !dateOnly {
		if t, err := time.Parse("20060102T150405Z", value); err == nil {
			return t, nil
		}
		if loc == nil {
			loc = time.UTC
		}
		if t, err := time.ParseInLocation("20060102T150405", value, loc); err == nil {
			return t, nil
		}
	}
	t, err := time.Parse("20060102", value)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
}
