package xml

import (
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/cyp0633/caldora-sync/internal/daverr"
	"github.com/samber/mo"
)

// TimeFormat is the iCalendar UTC date-time form used by time-range attributes.
const TimeFormat = "20060102T150405Z"

// Collations understood by CalDAV text-match (RFC 4791 §7.5)
const (
	CollationOctet          = "i;octet"
	CollationASCIICasemap   = "i;ascii-casemap"
	CollationUnicodeCasemap = "i;unicode-casemap"
)

// FilterNode is one node of a CalDAV calendar-query filter tree. The set of
// implementations is closed: CompFilter, PropFilter, TextMatch and TimeRange.
type FilterNode interface {
	filterElement(parent *etree.Element)
}

// CompFilter matches calendar components by name.
type CompFilter struct {
	Name     mo.Option[string]
	Children []FilterNode
}

// PropFilter matches component properties by name.
type PropFilter struct {
	Name     mo.Option[string]
	Children []FilterNode
}

// TextMatch matches property text. It is always a leaf.
type TextMatch struct {
	Text      string
	Collation mo.Option[string]
	Negate    bool
}

// TimeRange restricts a comp-filter to an interval. It is always a leaf.
type TimeRange struct {
	Start mo.Option[time.Time]
	End   mo.Option[time.Time]
}

func NewCompFilter(name string, children ...FilterNode) *CompFilter {
	return &CompFilter{Name: mo.Some(name), Children: children}
}

func NewPropFilter(name string, children ...FilterNode) *PropFilter {
	return &PropFilter{Name: mo.Some(name), Children: children}
}

// NewTextMatch builds a text-match; an empty collation leaves the server default.
func NewTextMatch(text, collation string) *TextMatch {
	return &TextMatch{Text: text, Collation: mo.EmptyableToOption(collation)}
}

func (f *CompFilter) filterElement(parent *etree.Element) {
	el := createElement(parent, compFilterName)
	if name, ok := f.Name.Get(); ok {
		el.CreateAttr("name", name)
	}
	for _, child := range f.Children {
		child.filterElement(el)
	}
}

func (f *PropFilter) filterElement(parent *etree.Element) {
	el := createElement(parent, propFilterName)
	if name, ok := f.Name.Get(); ok {
		el.CreateAttr("name", name)
	}
	for _, child := range f.Children {
		child.filterElement(el)
	}
}

func (m *TextMatch) filterElement(parent *etree.Element) {
	el := createElement(parent, textMatchName)
	if collation, ok := m.Collation.Get(); ok {
		el.CreateAttr("collation", collation)
	}
	if m.Negate {
		el.CreateAttr("negate-condition", "yes")
	}
	el.SetText(m.Text)
}

func (tr *TimeRange) filterElement(parent *etree.Element) {
	tr.toElement(createElement(parent, timeRangeName))
}

func (tr *TimeRange) toElement(el *etree.Element) {
	if start, ok := tr.Start.Get(); ok {
		el.CreateAttr("start", start.UTC().Format(TimeFormat))
	}
	if end, ok := tr.End.Get(); ok {
		el.CreateAttr("end", end.UTC().Format(TimeFormat))
	}
}

// DecodeFilter parses a CalDAV filter element back into a node tree.
func DecodeFilter(el *etree.Element) (FilterNode, error) {
	if nameOf(el) != filterName {
		return nil, daverr.Protocolf("expected %s, got %s", filterName, nameOf(el))
	}
	children := el.ChildElements()
	if len(children) != 1 {
		return nil, daverr.Protocolf("filter must hold exactly one element, got %d", len(children))
	}
	return decodeFilterNode(children[0])
}

func decodeFilterNode(el *etree.Element) (FilterNode, error) {
	switch nameOf(el) {
	case compFilterName:
		children, err := decodeFilterChildren(el)
		if err != nil {
			return nil, err
		}
		return &CompFilter{Name: optionalAttr(el, "name"), Children: children}, nil
	case propFilterName:
		children, err := decodeFilterChildren(el)
		if err != nil {
			return nil, err
		}
		return &PropFilter{Name: optionalAttr(el, "name"), Children: children}, nil
	case textMatchName:
		if len(el.ChildElements()) > 0 {
			return nil, daverr.Protocolf("text-match must not contain elements")
		}
		return &TextMatch{
			Text:      el.Text(),
			Collation: optionalAttr(el, "collation"),
			Negate:    strings.EqualFold(el.SelectAttrValue("negate-condition", "no"), "yes"),
		}, nil
	case timeRangeName:
		if len(el.ChildElements()) > 0 {
			return nil, daverr.Protocolf("time-range must not contain elements")
		}
		return decodeTimeRange(el)
	default:
		return nil, daverr.Protocolf("unsupported filter element %s", nameOf(el))
	}
}

func decodeFilterChildren(el *etree.Element) ([]FilterNode, error) {
	var children []FilterNode
	for _, child := range el.ChildElements() {
		node, err := decodeFilterNode(child)
		if err != nil {
			return nil, err
		}
		children = append(children, node)
	}
	return children, nil
}

func decodeTimeRange(el *etree.Element) (*TimeRange, error) {
	tr := &TimeRange{}
	for _, bound := range []struct {
		attr string
		dst  *mo.Option[time.Time]
	}{{"start", &tr.Start}, {"end", &tr.End}} {
		value, ok := optionalAttr(el, bound.attr).Get()
		if !ok {
			continue
		}
		t, err := time.Parse(TimeFormat, value)
		if err != nil {
			return nil, &daverr.ProtocolError{Msg: "invalid time-range " + bound.attr, Err: err}
		}
		*bound.dst = mo.Some(t)
	}
	return tr, nil
}

func optionalAttr(el *etree.Element, key string) mo.Option[string] {
	attr := el.SelectAttr(key)
	if attr == nil {
		return mo.None[string]()
	}
	return mo.Some(attr.Value)
}
