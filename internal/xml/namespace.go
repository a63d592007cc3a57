package xml

import "github.com/beevik/etree"

// Namespace definitions for CalDAV and WebDAV
const (
	// DAV is the WebDAV namespace
	DAV = "DAV:"
	// CalDAV is the CalDAV namespace
	CalDAV = "urn:ietf:params:xml:ns:caldav"
	// CalendarServer is the Calendar Server namespace (used by some implementations)
	CalendarServer = "http://calendarserver.org/ns/"
	// AppleICal is the Apple iCal namespace, mostly seen on calendar-color
	AppleICal = "http://apple.com/ns/ical/"
)

// prefixes maps well-known namespaces to the prefix used when serializing.
// D and C are declared on every root element; the others are declared on
// first use.
var prefixes = map[string]string{
	DAV:            "D",
	CalDAV:         "C",
	CalendarServer: "CS",
	AppleICal:      "IC",
}

// newDocument creates a document with an XML declaration and a root element
// carrying the DAV and CalDAV namespace declarations.
func newDocument(root PropName) (*etree.Document, *etree.Element) {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	el := doc.CreateElement(root.Local)
	el.CreateAttr("xmlns:D", DAV)
	el.CreateAttr("xmlns:C", CalDAV)
	setNamespace(el, root.Space)
	return doc, el
}

// createElement appends a namespace-qualified child to parent.
func createElement(parent *etree.Element, name PropName) *etree.Element {
	el := parent.CreateElement(name.Local)
	setNamespace(el, name.Space)
	return el
}

// setNamespace places el in namespace ns, declaring a prefix or a default
// namespace on el itself when no ancestor already binds it. el must already
// be attached to its parent so inherited declarations are visible.
func setNamespace(el *etree.Element, ns string) {
	if prefix, ok := prefixes[ns]; ok {
		el.Space = prefix
		if el.NamespaceURI() != ns {
			el.CreateAttr("xmlns:"+prefix, ns)
		}
		return
	}
	el.Space = ""
	if el.NamespaceURI() != ns {
		el.CreateAttr("xmlns", ns)
	}
}

// nameOf returns the resolved qualified name of a parsed element.
func nameOf(el *etree.Element) PropName {
	return PropName{Space: el.NamespaceURI(), Local: el.Tag}
}
