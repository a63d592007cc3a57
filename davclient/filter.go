package davclient

import (
	"strconv"
	"time"

	"github.com/cyp0633/caldora-sync/internal/xml"
	"github.com/emersion/go-ical"
	"github.com/samber/mo"
)

// ObjectQuery builds the filter of a calendar-query REPORT. Every condition
// must hold for an object to match.
type ObjectQuery struct {
	kind        string
	timeRange   mo.Option[xml.TimeRange]
	hasAlarm    bool
	propFilters []xml.FilterNode
	limit       int
}

// NewObjectQuery starts a query for components of kind (VEVENT, VTODO, ...).
func NewObjectQuery(kind string) *ObjectQuery {
	return &ObjectQuery{kind: kind}
}

// Events is shorthand for NewObjectQuery(ical.CompEvent).
func Events() *ObjectQuery {
	return NewObjectQuery(ical.CompEvent)
}

// Todos is shorthand for NewObjectQuery(ical.CompToDo).
func Todos() *ObjectQuery {
	return NewObjectQuery(ical.CompToDo)
}

// Kind returns the component kind the query matches.
func (q *ObjectQuery) Kind() string {
	return q.kind
}

// TimeRange matches components overlapping [start, end).
func (q *ObjectQuery) TimeRange(start, end time.Time) *ObjectQuery {
	q.timeRange = mo.Some(xml.TimeRange{Start: mo.Some(start), End: mo.Some(end)})
	return q
}

// HasAlarm matches components carrying a VALARM.
func (q *ObjectQuery) HasAlarm() *ObjectQuery {
	q.hasAlarm = true
	return q
}

// UID matches the UID byte for byte. Substrings of other UIDs never match.
func (q *ObjectQuery) UID(uid string) *ObjectQuery {
	return q.match(ical.PropUID, xml.NewTextMatch(uid, xml.CollationOctet))
}

// Summary matches a case-insensitive substring of SUMMARY.
func (q *ObjectQuery) Summary(summary string) *ObjectQuery {
	return q.match(ical.PropSummary, xml.NewTextMatch(summary, ""))
}

// Description matches a case-insensitive substring of DESCRIPTION.
func (q *ObjectQuery) Description(desc string) *ObjectQuery {
	return q.match(ical.PropDescription, xml.NewTextMatch(desc, ""))
}

// Location matches a case-insensitive substring of LOCATION.
func (q *ObjectQuery) Location(location string) *ObjectQuery {
	return q.match(ical.PropLocation, xml.NewTextMatch(location, ""))
}

// Organizer matches a case-insensitive substring of ORGANIZER.
func (q *ObjectQuery) Organizer(organizer string) *ObjectQuery {
	return q.match(ical.PropOrganizer, xml.NewTextMatch(organizer, ""))
}

// Status matches STATUS, ignoring ASCII case.
func (q *ObjectQuery) Status(status string) *ObjectQuery {
	return q.match(ical.PropStatus, xml.NewTextMatch(status, xml.CollationASCIICasemap))
}

// NotStatus excludes components whose STATUS matches status.
func (q *ObjectQuery) NotStatus(status string) *ObjectQuery {
	return q.match(ical.PropStatus, &xml.TextMatch{
		Text:      status,
		Collation: mo.Some(xml.CollationASCIICasemap),
		Negate:    true,
	})
}

// Priority matches the PRIORITY value.
func (q *ObjectQuery) Priority(priority int) *ObjectQuery {
	return q.match(ical.PropPriority, xml.NewTextMatch(strconv.Itoa(priority), xml.CollationOctet))
}

// Categories requires every given category to be present.
func (q *ObjectQuery) Categories(categories ...string) *ObjectQuery {
	for _, category := range categories {
		q.match(ical.PropCategories, xml.NewTextMatch(category, ""))
	}
	return q
}

// Limit caps the number of objects returned. The cap is applied client side.
func (q *ObjectQuery) Limit(limit int) *ObjectQuery {
	q.limit = limit
	return q
}

func (q *ObjectQuery) match(prop string, m *xml.TextMatch) *ObjectQuery {
	q.propFilters = append(q.propFilters, xml.NewPropFilter(prop, m))
	return q
}

// Filter returns the filter tree:
// VCALENDAR > kind > [time-range] [VALARM] prop-filters...
func (q *ObjectQuery) Filter() xml.FilterNode {
	var children []xml.FilterNode
	if tr, ok := q.timeRange.Get(); ok {
		children = append(children, &tr)
	}
	if q.hasAlarm {
		children = append(children, xml.NewCompFilter(ical.CompAlarm))
	}
	children = append(children, q.propFilters...)
	return xml.NewCompFilter(ical.CompCalendar, xml.NewCompFilter(q.kind, children...))
}
