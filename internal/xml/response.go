package xml

import (
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/beevik/etree"
	"github.com/cyp0633/caldora-sync/internal/daverr"
	"github.com/samber/mo"
)

// PropstatGroups maps a propstat status line to the properties reported
// under it. Every property of a response belongs to exactly one group.
type PropstatGroups map[string][]Property

func (g PropstatGroups) statuses() []string {
	statuses := make([]string, 0, len(g))
	for status := range g {
		statuses = append(statuses, status)
	}
	sort.Strings(statuses)
	return statuses
}

// Response represents a single response within a multistatus
type Response struct {
	Href      string
	Status    mo.Option[string]
	Propstats PropstatGroups
}

// StatusCode returns the code of the response-level status, or 0 when the
// response has none.
func (r Response) StatusCode() int {
	status, ok := r.Status.Get()
	if !ok {
		return 0
	}
	code, err := ParseStatusLine(status)
	if err != nil {
		return 0
	}
	return code
}

// Prop returns the named property from a successful (2xx) propstat group.
// Groups are searched in status order.
func (r Response) Prop(name PropName) mo.Option[Property] {
	for _, status := range r.Propstats.statuses() {
		code, err := ParseStatusLine(status)
		if err != nil || code/100 != 2 {
			continue
		}
		for _, p := range r.Propstats[status] {
			if p.Name == name {
				return mo.Some(p)
			}
		}
	}
	return mo.None[Property]()
}

// StatusOf returns the propstat status line under which name was reported.
func (r Response) StatusOf(name PropName) mo.Option[string] {
	for _, status := range r.Propstats.statuses() {
		for _, p := range r.Propstats[status] {
			if p.Name == name {
				return mo.Some(status)
			}
		}
	}
	return mo.None[string]()
}

// ParseStatusLine extracts the code from a line such as "HTTP/1.1 404 Not Found".
func ParseStatusLine(status string) (int, error) {
	fields := strings.Fields(status)
	if len(fields) < 2 || !strings.HasPrefix(fields[0], "HTTP/") {
		return 0, fmt.Errorf("invalid status line %q", status)
	}
	code, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0, fmt.Errorf("invalid status code in %q: %w", status, err)
	}
	return code, nil
}

// StatusLine formats a status line for code, as servers write it.
func StatusLine(code int) string {
	return fmt.Sprintf("HTTP/1.1 %d %s", code, http.StatusText(code))
}

// DecodeMultistatus parses a multistatus body into its responses, in
// document order. Any element outside the shapes RFC 4918 allows yields a
// ProtocolError.
func DecodeMultistatus(data []byte) ([]Response, error) {
	root, err := readRoot(data)
	if err != nil {
		return nil, err
	}
	if nameOf(root) != multistatusName {
		return nil, daverr.Protocolf("invalid root tag: %s", nameOf(root))
	}

	var responses []Response
	for _, child := range root.ChildElements() {
		switch nameOf(child) {
		case responseName:
			resp, err := decodeResponse(child)
			if err != nil {
				return nil, err
			}
			responses = append(responses, resp)
		case syncTokenName, responseDescriptionName:
		default:
			return nil, daverr.Protocolf("unexpected element %s in multistatus", nameOf(child))
		}
	}
	return responses, nil
}

func decodeResponse(el *etree.Element) (Response, error) {
	resp := Response{Status: mo.None[string](), Propstats: PropstatGroups{}}
	hrefs := 0
	for _, child := range el.ChildElements() {
		switch nameOf(child) {
		case HrefName:
			hrefs++
			resp.Href = strings.TrimSpace(child.Text())
		case statusName:
			if resp.Status.IsPresent() {
				return Response{}, daverr.Protocolf("response has more than one status")
			}
			resp.Status = mo.Some(strings.TrimSpace(child.Text()))
		case propstatName:
			status, props, err := decodePropstat(child)
			if err != nil {
				return Response{}, err
			}
			resp.Propstats[status] = append(resp.Propstats[status], props...)
		case responseDescriptionName:
		default:
			return Response{}, daverr.Protocolf("unexpected element %s in response", nameOf(child))
		}
	}
	if hrefs != 1 {
		return Response{}, daverr.Protocolf("response must hold exactly one href, got %d", hrefs)
	}
	return resp, nil
}

func decodePropstat(el *etree.Element) (string, []Property, error) {
	var status mo.Option[string]
	var prop *etree.Element
	for _, child := range el.ChildElements() {
		switch nameOf(child) {
		case statusName:
			if status.IsPresent() {
				return "", nil, daverr.Protocolf("propstat has more than one status")
			}
			status = mo.Some(strings.TrimSpace(child.Text()))
		case propName:
			if prop != nil {
				return "", nil, daverr.Protocolf("propstat has more than one prop")
			}
			prop = child
		case responseDescriptionName:
		default:
			return "", nil, daverr.Protocolf("unexpected element %s in propstat", nameOf(child))
		}
	}
	line, ok := status.Get()
	if !ok {
		return "", nil, daverr.Protocolf("propstat without status")
	}
	if prop == nil {
		return "", nil, daverr.Protocolf("propstat without prop")
	}

	props := make([]Property, 0, len(prop.ChildElements()))
	for _, p := range prop.ChildElements() {
		props = append(props, propertyFromElement(p))
	}
	return line, props, nil
}

// EncodeMultistatus converts responses to a multistatus document. Propstat
// groups are written in status order so the output is stable.
func EncodeMultistatus(responses []Response) *etree.Document {
	doc, root := newDocument(multistatusName)
	for _, resp := range responses {
		response := createElement(root, responseName)
		createElement(response, HrefName).SetText(resp.Href)
		if status, ok := resp.Status.Get(); ok {
			createElement(response, statusName).SetText(status)
		}

		for _, status := range resp.Propstats.statuses() {
			ps := createElement(response, propstatName)
			prop := createElement(ps, propName)
			for _, p := range resp.Propstats[status] {
				p.appendTo(prop)
			}
			createElement(ps, statusName).SetText(status)
		}
	}
	return doc
}
