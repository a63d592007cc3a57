package davclient

import (
	"context"
	"log/slog"
	"net"
	"net/url"
	"os"
	"testing"
	"time"

	"github.com/cyp0633/caldora-sync/internal/daverr"
	"github.com/cyp0633/caldora-sync/internal/httpclient"
	"github.com/emersion/go-ical"
	"github.com/google/uuid"
	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRealServerOperations tests the client against real CalDAV servers
// Set these environment variables to run:
// - CALDAV_SERVER_URL (e.g., "https://caldav.fastmail.com")
// - CALDAV_USERNAME
// - CALDAV_PASSWORD
// - CALDAV_CALENDAR_URL (optional, will auto-discover if not set)
func TestRealServerOperations(t *testing.T) {
	serverURL := os.Getenv("CALDAV_SERVER_URL")
	username := os.Getenv("CALDAV_USERNAME")
	password := os.Getenv("CALDAV_PASSWORD")
	calendarURL := os.Getenv("CALDAV_CALENDAR_URL")

	if serverURL == "" || username == "" || password == "" {
		t.Skip("Real server test requires CALDAV_SERVER_URL, CALDAV_USERNAME, and CALDAV_PASSWORD environment variables")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	base, err := url.Parse(serverURL)
	require.NoError(t, err)
	wrapper, err := httpclient.NewHttpClientWrapper(httpclient.NewClient(username, password, 30*time.Second, logger), *base, logger)
	require.NoError(t, err)
	client := NewClient(wrapper, logger)

	if calendarURL == "" {
		calendars, err := client.FindCalendars(ctx, serverURL, &net.Resolver{})
		require.NoError(t, err, "calendar discovery failed")
		for _, cal := range calendars {
			t.Logf("found calendar %q at %s (read-only: %v)", cal.Name, cal.URI, cal.ReadOnly)
			if !cal.ReadOnly && calendarURL == "" {
				calendarURL = cal.URI
			}
		}
		if calendarURL == "" {
			t.Skip("no writable calendar found")
		}
	}

	uid := "caldora-sync-test-" + uuid.New().String()
	cal := ical.NewCalendar()
	todo := ical.NewComponent(ical.CompToDo)
	todo.Props.SetText(ical.PropUID, uid)
	todo.Props.SetDateTime(ical.PropDateTimeStamp, time.Now().UTC())
	todo.Props.SetText(ical.PropSummary, "caldora-sync integration test")
	cal.Children = append(cal.Children, todo)

	created, err := client.AddMember(ctx, calendarURL, cal)
	require.NoError(t, err)
	t.Logf("created %s", created.Href)

	found, err := client.GetItemByUID(ctx, calendarURL, ical.CompToDo, uid)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = client.DeleteObject(context.Background(), found.Href, mo.None[string]())
	})

	todo.Props.SetText(ical.PropSummary, "caldora-sync integration test (updated)")
	etag, err := client.PutObject(ctx, found.Href, cal, found.ETag)
	require.NoError(t, err)
	if found.ETag.IsPresent() && etag.IsPresent() {
		assert.NotEqual(t, found.ETag, etag)
	}

	// a write guarded by the superseded ETag is refused
	if found.ETag.IsPresent() {
		_, err = client.PutObject(ctx, found.Href, cal, found.ETag)
		assert.True(t, daverr.IsPreconditionFailed(err), "got %v", err)
	}

	current, err := client.GetItemByUID(ctx, calendarURL, ical.CompToDo, uid)
	require.NoError(t, err)
	require.NoError(t, client.DeleteObject(ctx, current.Href, current.ETag))

	_, err = client.GetItemByUID(ctx, calendarURL, ical.CompToDo, uid)
	assert.True(t, daverr.IsNotFound(err), "got %v", err)
}
