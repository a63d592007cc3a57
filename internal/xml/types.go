package xml

import (
	"fmt"
	"sort"
	"strings"

	"github.com/beevik/etree"
	"github.com/samber/mo"
)

// PropName is a namespace-qualified XML name, written in Clark notation as
// {namespace}local.
type PropName struct {
	Space string
	Local string
}

func (n PropName) String() string {
	return "{" + n.Space + "}" + n.Local
}

// ParsePropName parses a name in Clark notation. A name without braces has
// no namespace.
func ParsePropName(s string) (PropName, error) {
	if !strings.HasPrefix(s, "{") {
		if s == "" {
			return PropName{}, fmt.Errorf("empty property name")
		}
		return PropName{Local: s}, nil
	}
	end := strings.IndexByte(s, '}')
	if end < 0 || end == len(s)-1 {
		return PropName{}, fmt.Errorf("invalid property name %q", s)
	}
	return PropName{Space: s[1:end], Local: s[end+1:]}, nil
}

// Well-known property and element names
var (
	GetETagName              = PropName{DAV, "getetag"}
	ResourceTypeName         = PropName{DAV, "resourcetype"}
	DisplayNameName          = PropName{DAV, "displayname"}
	CurrentUserPrincipalName = PropName{DAV, "current-user-principal"}
	CurrentUserPrivSetName   = PropName{DAV, "current-user-privilege-set"}
	AddMemberName            = PropName{DAV, "add-member"}
	HrefName                 = PropName{DAV, "href"}
	CollectionName           = PropName{DAV, "collection"}
	PrivilegeName            = PropName{DAV, "privilege"}
	WriteName                = PropName{DAV, "write"}

	CalendarDataName     = PropName{CalDAV, "calendar-data"}
	CalendarHomeSetName  = PropName{CalDAV, "calendar-home-set"}
	ScheduleInboxURLName = PropName{CalDAV, "schedule-inbox-URL"}
	CalendarName         = PropName{CalDAV, "calendar"}
	CalendarColorName    = PropName{AppleICal, "calendar-color"}
	GetCTagName          = PropName{CalendarServer, "getctag"}

	multistatusName         = PropName{DAV, "multistatus"}
	responseName            = PropName{DAV, "response"}
	propstatName            = PropName{DAV, "propstat"}
	propName                = PropName{DAV, "prop"}
	statusName              = PropName{DAV, "status"}
	responseDescriptionName = PropName{DAV, "responsedescription"}
	syncTokenName           = PropName{DAV, "sync-token"}
	propfindName            = PropName{DAV, "propfind"}

	calendarQueryName = PropName{CalDAV, "calendar-query"}
	freeBusyQueryName = PropName{CalDAV, "free-busy-query"}
	filterName        = PropName{CalDAV, "filter"}
	compFilterName    = PropName{CalDAV, "comp-filter"}
	propFilterName    = PropName{CalDAV, "prop-filter"}
	textMatchName     = PropName{CalDAV, "text-match"}
	timeRangeName     = PropName{CalDAV, "time-range"}
)

// PropRequest is an entry in the prop list of a PROPFIND or REPORT body:
// either a bare PropName, serialized as an empty element, or a pre-built
// Property such as a calendar-data element carrying restriction attributes.
type PropRequest interface {
	appendTo(parent *etree.Element) *etree.Element
}

func (n PropName) appendTo(parent *etree.Element) *etree.Element {
	return createElement(parent, n)
}

// Property represents a generic XML property
type Property struct {
	Name       PropName
	Text       string
	Attributes map[string]string
	Children   []Property
}

func (p Property) appendTo(parent *etree.Element) *etree.Element {
	el := createElement(parent, p.Name)
	keys := make([]string, 0, len(p.Attributes))
	for key := range p.Attributes {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		el.CreateAttr(key, p.Attributes[key])
	}
	if p.Text != "" {
		el.SetText(p.Text)
	}
	for _, child := range p.Children {
		child.appendTo(el)
	}
	return el
}

// propertyFromElement copies a parsed element into a Property, resolving
// namespaces while the element is still attached to its document.
func propertyFromElement(el *etree.Element) Property {
	p := Property{
		Name: nameOf(el),
		Text: el.Text(),
	}
	for _, attr := range el.Attr {
		if attr.Space == "xmlns" || (attr.Space == "" && attr.Key == "xmlns") {
			continue
		}
		p.SetAttr(attr.FullKey(), attr.Value)
	}
	for _, child := range el.ChildElements() {
		p.Children = append(p.Children, propertyFromElement(child))
	}
	return p
}

// GetAttr returns the value of an attribute, or empty string if not found
func (p *Property) GetAttr(name string) string {
	if p.Attributes == nil {
		return ""
	}
	return p.Attributes[name]
}

// SetAttr sets an attribute value
func (p *Property) SetAttr(name, value string) {
	if p.Attributes == nil {
		p.Attributes = make(map[string]string)
	}
	p.Attributes[name] = value
}

// Child returns the first child with the given name.
func (p Property) Child(name PropName) mo.Option[Property] {
	for _, child := range p.Children {
		if child.Name == name {
			return mo.Some(child)
		}
	}
	return mo.None[Property]()
}

// ChildrenNamed returns every child with the given name, in document order.
func (p Property) ChildrenNamed(name PropName) []Property {
	var out []Property
	for _, child := range p.Children {
		if child.Name == name {
			out = append(out, child)
		}
	}
	return out
}
