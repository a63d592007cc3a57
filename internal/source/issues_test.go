package source

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/cyp0633/caldora-sync/internal/davtest"
	"github.com/cyp0633/caldora-sync/internal/reconcile"
	"github.com/emersion/go-ical"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const issuesYAML = `
- id: "42"
  tracker: GitHub
  title: Crash on start
  body: "Steps:\r\n1. run it"
  url: https://github.com/acme/app/issues/42
  api_url: https://api.github.com/repos/acme/app/issues/42
  state: open
  tags: [bug, "needs, triage"]
  created: 2024-03-01T10:00:00Z
  target: acme/app
- id: "7"
  tracker: gitlab
  title: Docs
  state: closed
  created: 2024-02-01T08:00:00Z
  closed: 2024-02-03T09:30:00Z
`

func TestParseIssues(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  int
	}{
		{"yaml", issuesYAML, 2},
		{"json", `[{"id": "1", "tracker": "github", "title": "One", "state": "open"}]`, 1},
		{"empty", "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			issues, err := ParseIssues(strings.NewReader(tt.input))
			require.NoError(t, err)
			assert.Len(t, issues, tt.want)
		})
	}

	_, err := ParseIssues(strings.NewReader("id: [unclosed"))
	assert.Error(t, err)
}

func TestIssueItems_Apply(t *testing.T) {
	issues, err := ParseIssues(strings.NewReader(issuesYAML))
	require.NoError(t, err)
	items, err := IssueItems(issues)
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, "sync-github-42", items[0].UID)
	assert.Equal(t, ical.CompToDo, items[0].Kind)
	assert.Equal(t, reconcile.CopyExisting, items[0].Policy)

	open := applied(t, items[0])
	text := func(comp *ical.Component, name string) string {
		v, err := comp.Props.Text(name)
		require.NoError(t, err)
		return v
	}
	assert.Equal(t, "acme/app: Crash on start", text(open, ical.PropSummary))
	assert.Equal(t, "Steps:\n1. run it", text(open, ical.PropDescription))
	assert.Equal(t, "PUBLIC", text(open, ical.PropClass))
	assert.Equal(t, "NEEDS-ACTION", text(open, ical.PropStatus))
	assert.Equal(t, "https://github.com/acme/app/issues/42", open.Props.Get(ical.PropURL).Value)
	assert.Equal(t, "https://api.github.com/repos/acme/app/issues/42", text(open, "X-GITHUB-URL"))
	assert.Equal(t, `bug,needs\, triage`, open.Props.Get(ical.PropCategories).Value)
	assert.Nil(t, open.Props.Get(ical.PropCompleted))
	created, err := open.Props.DateTime(ical.PropCreated, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), created)

	closed := applied(t, items[1])
	assert.Equal(t, "sync-gitlab-7", items[1].UID)
	assert.Equal(t, "COMPLETED", text(closed, ical.PropStatus))
	assert.Nil(t, closed.Props.Get(ical.PropDescription))
	assert.Nil(t, closed.Props.Get(ical.PropCategories))
	completed, err := closed.Props.DateTime(ical.PropCompleted, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 2, 3, 9, 30, 0, 0, time.UTC), completed)
}

func TestIssueItems_Reopened(t *testing.T) {
	closedAt := time.Date(2024, 2, 3, 9, 30, 0, 0, time.UTC)
	items, err := IssueItems([]Issue{{ID: "1", Tracker: "github", Title: "x", State: "open", Closed: &closedAt}})
	require.NoError(t, err)

	comp := ical.NewComponent(ical.CompToDo)
	comp.Props.SetDateTime(ical.PropCompleted, closedAt)
	comp.Props.SetText(ical.PropDescription, "stale")
	require.NoError(t, items[0].Apply(comp))
	assert.Nil(t, comp.Props.Get(ical.PropCompleted))
	assert.Nil(t, comp.Props.Get(ical.PropDescription))
}

func TestIssueItems_Errors(t *testing.T) {
	tests := []struct {
		name   string
		issues []Issue
	}{
		{"missing id", []Issue{{Tracker: "github", State: "open"}}},
		{"missing tracker", []Issue{{ID: "1", State: "open"}}},
		{"unknown state", []Issue{{ID: "1", Tracker: "github", State: "merged"}}},
		{"duplicate", []Issue{
			{ID: "1", Tracker: "github", State: "open"},
			{ID: "1", Tracker: "GitHub", State: "closed"},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := IssueItems(tt.issues)
			assert.Error(t, err)
		})
	}
}

func TestIssues_KeepRemoteEdits(t *testing.T) {
	srv := davtest.New()
	defer srv.Close()
	engine := newEngine(t, srv)
	ctx := context.Background()

	issues, err := ParseIssues(strings.NewReader(issuesYAML))
	require.NoError(t, err)
	items, err := IssueItems(issues)
	require.NoError(t, err)

	report := engine.Run(ctx, items)
	require.NoError(t, report.Err())
	assert.Equal(t, 2, report.Created)

	// A user sets a priority in their calendar app.
	obj, ok := srv.ObjectByUID("sync-github-42")
	require.True(t, ok)
	edited := strings.Replace(obj.Data, "END:VTODO", "PRIORITY:1\r\nEND:VTODO", 1)
	srv.Replace(obj.Href, edited)

	report = engine.Run(ctx, items)
	require.NoError(t, report.Err())
	assert.Equal(t, 2, report.Unchanged)

	issues[0].State = "closed"
	closedAt := time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)
	issues[0].Closed = &closedAt
	items, err = IssueItems(issues)
	require.NoError(t, err)
	report = engine.Run(ctx, items)
	require.NoError(t, report.Err())
	assert.Equal(t, 1, report.Updated)

	obj, ok = srv.ObjectByUID("sync-github-42")
	require.True(t, ok)
	assert.Contains(t, obj.Data, "PRIORITY:1")
	assert.Contains(t, obj.Data, "STATUS:COMPLETED")
}
