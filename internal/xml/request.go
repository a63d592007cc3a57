package xml

import (
	"time"

	"github.com/beevik/etree"
	"github.com/cyp0633/caldora-sync/internal/daverr"
	"github.com/samber/mo"
)

// BuildPropfind builds a PROPFIND body asking for the given properties.
func BuildPropfind(props ...PropRequest) *etree.Document {
	doc, root := newDocument(propfindName)
	appendProps(root, props)
	return doc
}

// BuildCalendarQuery builds a calendar-query REPORT body. The filter, when
// present, is wrapped in a C:filter element.
func BuildCalendarQuery(props []PropRequest, filter mo.Option[FilterNode]) *etree.Document {
	doc, root := newDocument(calendarQueryName)
	appendProps(root, props)
	if node, ok := filter.Get(); ok && node != nil {
		node.filterElement(createElement(root, filterName))
	}
	return doc
}

// BuildFreeBusyQuery builds a free-busy-query REPORT body. Bounds that are
// absent are left off the time-range element.
func BuildFreeBusyQuery(start, end mo.Option[time.Time]) *etree.Document {
	doc, root := newDocument(freeBusyQueryName)
	tr := TimeRange{Start: start, End: end}
	tr.toElement(createElement(root, timeRangeName))
	return doc
}

func appendProps(root *etree.Element, props []PropRequest) {
	prop := createElement(root, propName)
	for _, p := range props {
		p.appendTo(prop)
	}
}

// PropfindRequest is a decoded PROPFIND body.
type PropfindRequest struct {
	Props []PropName
}

// CalendarQueryRequest is a decoded calendar-query REPORT body.
type CalendarQueryRequest struct {
	Props  []Property
	Filter mo.Option[FilterNode]
}

// FreeBusyRequest is a decoded free-busy-query REPORT body.
type FreeBusyRequest struct {
	TimeRange TimeRange
}

// ReportRequest holds whichever REPORT body was decoded.
type ReportRequest struct {
	Query    *CalendarQueryRequest
	FreeBusy *FreeBusyRequest
}

// DecodePropfind parses a PROPFIND request body.
func DecodePropfind(data []byte) (*PropfindRequest, error) {
	root, err := readRoot(data)
	if err != nil {
		return nil, err
	}
	if nameOf(root) != propfindName {
		return nil, daverr.Protocolf("invalid root tag: %s", nameOf(root))
	}

	req := &PropfindRequest{}
	for _, child := range root.ChildElements() {
		if nameOf(child) != propName {
			continue
		}
		for _, p := range child.ChildElements() {
			req.Props = append(req.Props, nameOf(p))
		}
	}
	return req, nil
}

// DecodeReport parses a calendar-query or free-busy-query REPORT body.
func DecodeReport(data []byte) (*ReportRequest, error) {
	root, err := readRoot(data)
	if err != nil {
		return nil, err
	}

	switch nameOf(root) {
	case calendarQueryName:
		query := &CalendarQueryRequest{Filter: mo.None[FilterNode]()}
		for _, child := range root.ChildElements() {
			switch nameOf(child) {
			case propName:
				for _, p := range child.ChildElements() {
					query.Props = append(query.Props, propertyFromElement(p))
				}
			case filterName:
				node, err := DecodeFilter(child)
				if err != nil {
					return nil, err
				}
				query.Filter = mo.Some(node)
			}
		}
		return &ReportRequest{Query: query}, nil
	case freeBusyQueryName:
		for _, child := range root.ChildElements() {
			if nameOf(child) == timeRangeName {
				tr, err := decodeTimeRange(child)
				if err != nil {
					return nil, err
				}
				return &ReportRequest{FreeBusy: &FreeBusyRequest{TimeRange: *tr}}, nil
			}
		}
		return nil, daverr.Protocolf("free-busy-query without time-range")
	default:
		return nil, daverr.Protocolf("unsupported report type: %s", nameOf(root))
	}
}

func readRoot(data []byte) (*etree.Element, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, &daverr.ProtocolError{Msg: "malformed XML body", Err: err}
	}
	root := doc.Root()
	if root == nil {
		return nil, daverr.Protocolf("empty document")
	}
	return root, nil
}
