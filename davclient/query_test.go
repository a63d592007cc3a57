package davclient

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/cyp0633/caldora-sync/internal/daverr"
	"github.com/cyp0633/caldora-sync/internal/davtest"
	"github.com/emersion/go-ical"
	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetItemByUID(t *testing.T) {
	client, srv := newTestClient(t)
	ctx := context.Background()

	// a.ics sorts first, so the substring match on task-10 is seen before task-1
	srv.SeedAt(davtest.CollectionPath+"a.ics", davtest.Todo("task-10", "Ten"))
	_, etag := srv.SeedAt(davtest.CollectionPath+"b.ics", davtest.Todo("task-1", "One"))

	obj, err := client.GetItemByUID(ctx, davtest.CollectionPath, ical.CompToDo, "task-1")
	require.NoError(t, err)
	assert.Equal(t, srv.URL+davtest.CollectionPath+"b.ics", obj.Href)
	assert.Equal(t, mo.Some(etag), obj.ETag)

	comp, ok := obj.Component(ical.CompToDo).Get()
	require.True(t, ok)
	summary, err := comp.Props.Text(ical.PropSummary)
	require.NoError(t, err)
	assert.Equal(t, "One", summary)
}

func TestGetItemByUID_NotFound(t *testing.T) {
	client, srv := newTestClient(t)
	ctx := context.Background()
	srv.Seed(davtest.Todo("task-10", "Ten"))

	tests := []struct {
		name string
		kind string
		uid  string
	}{
		{"no object at all", ical.CompToDo, "missing"},
		{"only a superstring matches", ical.CompToDo, "task-1"},
		{"wrong component kind", ical.CompEvent, "task-10"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.GetItemByUID(ctx, davtest.CollectionPath, tt.kind, tt.uid)
			require.Error(t, err)
			assert.True(t, daverr.IsNotFound(err), "got %v", err)
		})
	}
}

func TestGetItemByUID_MissingCollection(t *testing.T) {
	client, _ := newTestClient(t)
	_, err := client.GetItemByUID(context.Background(), "/calendars/alice/nope/", ical.CompToDo, "x")
	assert.True(t, daverr.IsNotFound(err))
}

func TestListObjects(t *testing.T) {
	client, srv := newTestClient(t)
	ctx := context.Background()
	srv.SeedAt(davtest.CollectionPath+"1.ics", davtest.Todo("a", "Buy milk"))
	srv.SeedAt(davtest.CollectionPath+"2.ics", davtest.Todo("b", "Buy bread"))
	srv.SeedAt(davtest.CollectionPath+"3.ics", davtest.Todo("c", "Call mom"))
	srv.SeedAt(davtest.CollectionPath+"4.ics", davtest.Event("d", "Buy a car", "20240101T090000Z", "20240101T100000Z", ""))

	tests := []struct {
		name  string
		query *ObjectQuery
		want  []string
	}{
		{"all todos", Todos(), []string{"1.ics", "2.ics", "3.ics"}},
		{"summary substring", Todos().Summary("buy"), []string{"1.ics", "2.ics"}},
		{"limit", Todos().Limit(1), []string{"1.ics"}},
		{"events", Events().Summary("Buy"), []string{"4.ics"}},
		{"event time range", Events().TimeRange(
			time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)), []string{"4.ics"}},
		{"event outside range", Events().TimeRange(
			time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
			time.Date(2024, 2, 2, 0, 0, 0, 0, time.UTC)), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			objects, err := client.ListObjects(ctx, davtest.CollectionPath, tt.query)
			require.NoError(t, err)
			var got []string
			for _, obj := range objects {
				got = append(got, obj.Href[len(srv.URL+davtest.CollectionPath):])
				assert.True(t, obj.ETag.IsPresent())
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFreeBusy(t *testing.T) {
	client, srv := newTestClient(t)
	ctx := context.Background()
	srv.Seed(davtest.Event("standup", "Standup", "20240101T090000Z", "20240101T091500Z", "FREQ=DAILY;COUNT=5"))

	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	data, err := client.FreeBusy(ctx, davtest.InboxPath, mo.Some(start), mo.Some(start.AddDate(0, 0, 1)))
	require.NoError(t, err)

	cal, err := ical.NewDecoder(bytes.NewReader(data)).Decode()
	require.NoError(t, err)
	require.Len(t, cal.Children, 1)
	periods := cal.Children[0].Props[ical.PropFreeBusy]
	require.Len(t, periods, 1)
	assert.Equal(t, "20240102T090000Z/20240102T091500Z", periods[0].Value)

	_, err = client.FreeBusy(ctx, davtest.InboxPath, mo.None[time.Time](), mo.None[time.Time]())
	assert.True(t, daverr.IsUnexpectedStatus(err), "got %v", err)
}
