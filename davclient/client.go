// Package davclient implements the CalDAV lookups and writes used to keep a
// remote calendar collection in sync with an external item source.
package davclient

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"

	"github.com/cyp0633/caldora-sync/internal/httpclient"
	"github.com/emersion/go-ical"
	"github.com/samber/mo"
)

// ProductID is written to calendars that do not carry one.
const ProductID = "-//cyp0633//caldora-sync//EN"

// Client runs DAV operations over a shared transport. It holds no state
// between calls.
type Client struct {
	httpClient httpclient.HttpClientWrapper
	logger     *slog.Logger
}

// NewClient creates a new CalDAV client
func NewClient(httpClient httpclient.HttpClientWrapper, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Client{httpClient: httpClient, logger: logger}
}

// CalendarObject represents a calendar object with its metadata
type CalendarObject struct {
	Href     string
	ETag     mo.Option[string]
	Calendar *ical.Calendar
}

// Component returns the first child component of the given kind.
func (o *CalendarObject) Component(kind string) mo.Option[*ical.Component] {
	if o.Calendar == nil {
		return mo.None[*ical.Component]()
	}
	for _, child := range o.Calendar.Children {
		if child.Name == kind {
			return mo.Some(child)
		}
	}
	return mo.None[*ical.Component]()
}

// EncodeCalendar serializes cal, adding PRODID and VERSION when missing.
func EncodeCalendar(cal *ical.Calendar) ([]byte, error) {
	if cal.Props.Get(ical.PropProductID) == nil {
		cal.Props.SetText(ical.PropProductID, ProductID)
	}
	if cal.Props.Get(ical.PropVersion) == nil {
		cal.Props.SetText(ical.PropVersion, "2.0")
	}

	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(cal); err != nil {
		return nil, fmt.Errorf("failed to encode calendar: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeCalendar parses a single text/calendar document. Line endings are
// normalized to CRLF first since XML parsing turns them into bare LF.
func DecodeCalendar(data []byte) (*ical.Calendar, error) {
	data = bytes.TrimSpace(data)
	data = bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n"))
	data = bytes.ReplaceAll(data, []byte("\n"), []byte("\r\n"))
	data = append(data, '\r', '\n')

	cal, err := ical.NewDecoder(bytes.NewReader(data)).Decode()
	if err != nil {
		return nil, fmt.Errorf("failed to parse iCalendar data: %w", err)
	}
	return cal, nil
}

// ComponentUID returns the UID of comp, or an empty string.
func ComponentUID(comp *ical.Component) string {
	uid, err := comp.Props.Text(ical.PropUID)
	if err != nil {
		return ""
	}
	return uid
}
