package source

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cyp0633/caldora-sync/davclient"
	"github.com/cyp0633/caldora-sync/internal/davtest"
	"github.com/cyp0633/caldora-sync/internal/httpclient"
	"github.com/cyp0633/caldora-sync/internal/reconcile"
	"github.com/emersion/go-ical"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const feed = "BEGIN:VCALENDAR\r\n" +
	"VERSION:2.0\r\n" +
	"PRODID:-//Example//Feed//EN\r\n" +
	"X-WR-CALNAME:Conference\r\n" +
	"BEGIN:VTIMEZONE\r\n" +
	"TZID:Europe/Berlin\r\n" +
	"BEGIN:STANDARD\r\n" +
	"DTSTART:19701025T030000\r\n" +
	"TZOFFSETFROM:+0200\r\n" +
	"TZOFFSETTO:+0100\r\n" +
	"END:STANDARD\r\n" +
	"END:VTIMEZONE\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:talk-1\r\n" +
	"DTSTAMP:20240101T000000Z\r\n" +
	"DTSTART:20240301T090000Z\r\n" +
	"DTEND:20240301T100000Z\r\n" +
	"SUMMARY:Opening\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:talk-2\r\n" +
	"DTSTAMP:20240101T000000Z\r\n" +
	"DTSTART:20240301T110000Z\r\n" +
	"DTEND:20240301T120000Z\r\n" +
	"SUMMARY:Keynote\r\n" +
	"STATUS:CANCELLED\r\n" +
	"CATEGORIES:talks,Main\\, Hall\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VTODO\r\n" +
	"UID:prep\r\n" +
	"DTSTAMP:20240101T000000Z\r\n" +
	"SUMMARY:Prepare slides\r\n" +
	"END:VTODO\r\n" +
	"END:VCALENDAR\r\n"

func newEngine(t *testing.T, srv *davtest.Server) *reconcile.Engine {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	base, err := url.Parse(srv.URL)
	require.NoError(t, err)
	wrapper, err := httpclient.NewHttpClientWrapper(srv.Client(), *base, logger)
	require.NoError(t, err)
	return reconcile.NewEngine(davclient.NewClient(wrapper, logger), davtest.CollectionPath)
}

// applied runs item's Apply on a fresh component.
func applied(t *testing.T, item reconcile.Item) *ical.Component {
	t.Helper()
	comp := ical.NewComponent(item.Kind)
	comp.Props.SetText(ical.PropUID, item.UID)
	require.NoError(t, item.Apply(comp))
	return comp
}

func TestParseICS(t *testing.T) {
	items, err := ParseICS([]byte(feed), ImportOptions{})
	require.NoError(t, err)
	require.Len(t, items, 3)

	assert.Equal(t, []string{"talk-1", "talk-2", "prep"}, []string{items[0].UID, items[1].UID, items[2].UID})
	assert.Equal(t, ical.CompEvent, items[0].Kind)
	assert.Equal(t, ical.CompToDo, items[2].Kind)

	for _, item := range items {
		assert.Equal(t, reconcile.Rebuild, item.Policy)
		require.Len(t, item.Extra, 1)
		assert.Equal(t, ical.CompTimezone, item.Extra[0].Name)
		name, err := item.CalendarProps.Text("X-WR-CALNAME")
		require.NoError(t, err)
		assert.Equal(t, "Conference", name)
		assert.Nil(t, item.CalendarProps.Get(ical.PropMethod))
	}

	comp := applied(t, items[0])
	summary, err := comp.Props.Text(ical.PropSummary)
	require.NoError(t, err)
	assert.Equal(t, "Opening", summary)
	assert.Nil(t, comp.Props.Get(ical.PropStatus))
}

func TestParseICS_Options(t *testing.T) {
	items, err := ParseICS([]byte(feed), ImportOptions{
		SourceURL: "https://example.com/feed.ics",
		Invite:    true,
		Category:  "imported",
		Status:    "tentative",
	})
	require.NoError(t, err)

	props := items[0].CalendarProps
	assert.Equal(t, "https://example.com/feed.ics", props.Get(PropImportedFrom).Value)
	method, _ := props.Text(ical.PropMethod)
	assert.Equal(t, "REQUEST", method)

	opening := applied(t, items[0])
	status, _ := opening.Props.Text(ical.PropStatus)
	assert.Equal(t, "TENTATIVE", status)
	assert.Equal(t, "imported", opening.Props.Get(ical.PropCategories).Value)

	keynote := applied(t, items[1])
	status, _ = keynote.Props.Text(ical.PropStatus)
	assert.Equal(t, "CANCELLED", status, "an existing status is kept")
	categories := keynote.Props[ical.PropCategories]
	require.Len(t, categories, 2)
	assert.Equal(t, `talks,Main\, Hall`, categories[0].Value)
	assert.Equal(t, "imported", categories[1].Value)
}

func TestParseICS_CategoryAlreadyPresent(t *testing.T) {
	items, err := ParseICS([]byte(feed), ImportOptions{Category: "Main, Hall"})
	require.NoError(t, err)
	keynote := applied(t, items[1])
	assert.Len(t, keynote.Props[ical.PropCategories], 1)
}

func TestParseICS_Errors(t *testing.T) {
	noUID := strings.Replace(feed, "UID:prep\r\n", "", 1)
	tests := []struct {
		name string
		data string
		opts ImportOptions
	}{
		{"missing uid", noUID, ImportOptions{}},
		{"bad status", feed, ImportOptions{Status: "maybe"}},
		{"not a calendar", "hello", ImportOptions{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseICS([]byte(tt.data), tt.opts)
			assert.Error(t, err)
		})
	}
}

func TestParseICS_DuplicateUIDKeepsLast(t *testing.T) {
	dup := strings.Replace(feed, "UID:talk-2", "UID:talk-1", 1)
	items, err := ParseICS([]byte(dup), ImportOptions{})
	require.NoError(t, err)
	require.Len(t, items, 2)
	summary, _ := applied(t, items[0]).Props.Text(ical.PropSummary)
	assert.Equal(t, "Keynote", summary)
}

func TestImport_Idempotent(t *testing.T) {
	srv := davtest.New()
	defer srv.Close()
	engine := newEngine(t, srv)

	items, err := ParseICS([]byte(feed), ImportOptions{Category: "imported"})
	require.NoError(t, err)

	first := engine.Run(context.Background(), items)
	require.NoError(t, first.Err())
	assert.Equal(t, 3, first.Created)

	stored, ok := srv.ObjectByUID("talk-1")
	require.True(t, ok)
	assert.Contains(t, stored.Data, "BEGIN:VTIMEZONE")
	assert.Contains(t, stored.Data, "X-WR-CALNAME:Conference")

	items, err = ParseICS([]byte(feed), ImportOptions{Category: "imported"})
	require.NoError(t, err)
	second := engine.Run(context.Background(), items)
	require.NoError(t, second.Err())
	assert.Equal(t, 3, second.Unchanged)
	assert.Equal(t, 3, srv.Writes())

	changed := strings.Replace(feed, "SUMMARY:Opening", "SUMMARY:Welcome", 1)
	items, err = ParseICS([]byte(changed), ImportOptions{Category: "imported"})
	require.NoError(t, err)
	third := engine.Run(context.Background(), items)
	assert.Equal(t, 1, third.Updated)
	assert.Equal(t, 2, third.Unchanged)
}

func TestLoad(t *testing.T) {
	ctx := context.Background()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/feed.ics" {
			http.NotFound(w, r)
			return
		}
		io.WriteString(w, feed)
	}))
	defer ts.Close()

	path := filepath.Join(t.TempDir(), "feed.ics")
	require.NoError(t, os.WriteFile(path, []byte(feed), 0o600))

	tests := []struct {
		name     string
		location string
		wantURL  string
		wantErr  bool
	}{
		{"stdin", "-", "", false},
		{"empty means stdin", "", "", false},
		{"file", path, "", false},
		{"url", ts.URL + "/feed.ics", ts.URL + "/feed.ics", false},
		{"missing url", ts.URL + "/missing.ics", "", true},
		{"missing file", filepath.Join(t.TempDir(), "nope.ics"), "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, origin, err := Load(ctx, ts.Client(), tt.location, strings.NewReader(feed))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, feed, string(data))
			assert.Equal(t, tt.wantURL, origin)
		})
	}
}
