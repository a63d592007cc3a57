package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cyp0633/caldora-sync/internal/config"
	"github.com/cyp0633/caldora-sync/internal/davtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const feed = "BEGIN:VCALENDAR\r\nVERSION:2.0\r\nPRODID:-//Example//Feed//EN\r\n" +
	"BEGIN:VEVENT\r\nUID:talk-1\r\nDTSTAMP:20240101T000000Z\r\n" +
	"DTSTART:20240301T090000Z\r\nDTEND:20240301T100000Z\r\nSUMMARY:Opening\r\nEND:VEVENT\r\n" +
	"BEGIN:VEVENT\r\nUID:talk-2\r\nDTSTAMP:20240101T000000Z\r\n" +
	"DTSTART:20240301T110000Z\r\nDTEND:20240301T120000Z\r\nSUMMARY:Keynote\r\nEND:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

// run executes the command line against srv and returns its stdout.
func run(t *testing.T, srv *davtest.Server, stdin string, args ...string) (string, error) {
	t.Helper()
	for _, env := range []string{config.EnvBaseURL, config.EnvUser, config.EnvPassword, config.EnvURL} {
		t.Setenv(env, "")
	}
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd(strings.NewReader(stdin), &stdout, &stderr)
	cmd.SetArgs(append(args,
		"--config", filepath.Join(t.TempDir(), "missing.yaml"),
		"--base-url", srv.URL,
		"--url", davtest.CollectionPath,
		"--log-level", "error",
	))
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

func TestImport(t *testing.T) {
	srv := davtest.New()
	defer srv.Close()
	path := filepath.Join(t.TempDir(), "feed.ics")
	require.NoError(t, os.WriteFile(path, []byte(feed), 0o600))

	out, err := run(t, srv, "", "import", path, "--prefix", "conf", "--category", "talks")
	require.NoError(t, err)
	assert.Equal(t, "Processed conf. Seen 2, updated 0, new 2, unchanged 0, failed 0\n", out)

	out, err = run(t, srv, "", "import", path, "--prefix", "conf", "--category", "talks")
	require.NoError(t, err)
	assert.Contains(t, out, "unchanged 2")
	assert.Equal(t, 2, srv.Writes())

	obj, ok := srv.ObjectByUID("talk-2")
	require.True(t, ok)
	assert.Contains(t, obj.Data, "CATEGORIES:talks")
}

func TestImport_StdinDryRun(t *testing.T) {
	srv := davtest.New()
	defer srv.Close()

	out, err := run(t, srv, feed, "import", "-", "--dry-run", "--status", "tentative")
	require.NoError(t, err)
	assert.Contains(t, out, "new 2")
	assert.Zero(t, srv.Writes())
}

func TestImport_Errors(t *testing.T) {
	srv := davtest.New()
	defer srv.Close()

	_, err := run(t, srv, feed, "import", "--status", "maybe")
	assert.Error(t, err)

	_, err = run(t, srv, feed, "import", "--schedule", "*/5 * * * *")
	assert.ErrorContains(t, err, "standard input")

	srv.FailUID("talk-1", 500)
	out, err := run(t, srv, feed, "import")
	assert.ErrorContains(t, err, "1 of 2 items failed")
	assert.Contains(t, out, "new 1")
}

func TestIssues(t *testing.T) {
	srv := davtest.New()
	defer srv.Close()
	issues := `[{"id": "3", "tracker": "github", "title": "Fix it", "state": "open", "tags": ["bug"]}]`

	out, err := run(t, srv, issues, "issues", "-")
	require.NoError(t, err)
	assert.Equal(t, "Processed -. Seen 1, updated 0, new 1, unchanged 0, failed 0\n", out)

	obj, ok := srv.ObjectByUID("sync-github-3")
	require.True(t, ok)
	assert.Contains(t, obj.Data, "STATUS:NEEDS-ACTION")

	_, err = run(t, srv, "", "issues", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestList(t *testing.T) {
	srv := davtest.New()
	defer srv.Close()
	srv.Seed(davtest.Todo("task-1", "Buy milk"))
	srv.Seed(davtest.Event("standup", "Standup", "20240101T090000Z", "20240101T091500Z", "FREQ=DAILY"))

	out, err := run(t, srv, "", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "task-1")
	assert.Contains(t, out, "Buy milk")
	assert.NotContains(t, out, "standup")

	out, err = run(t, srv, "", "list", "--kind", "vevent")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[1], "standup")
	assert.Regexp(t, `\d{4}-\d{2}-\d{2} \d{2}:\d{2}`, lines[1], "a daily event has a next occurrence")
}

func TestDelete(t *testing.T) {
	srv := davtest.New()
	defer srv.Close()
	href, _ := srv.Seed(davtest.Todo("task-1", "Buy milk"))

	out, err := run(t, srv, "", "delete", "task-1")
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted task-1")
	_, ok := srv.Object(href)
	assert.False(t, ok)

	_, err = run(t, srv, "", "delete", "task-1")
	assert.Error(t, err)
}

func TestPrincipalAndFreeBusy(t *testing.T) {
	srv := davtest.New()
	defer srv.Close()
	srv.Seed(davtest.Event("meeting", "Meeting", "20240301T090000Z", "20240301T100000Z", ""))

	out, err := run(t, srv, "", "principal")
	require.NoError(t, err)
	assert.Contains(t, out, "Current user principal: "+srv.URL+davtest.PrincipalPath)
	assert.Contains(t, out, "Inbox URL: "+srv.URL+davtest.InboxPath)

	out, err = run(t, srv, "", "freebusy", "--start", "2024-03-01T00:00:00Z", "--end", "2024-03-02")
	require.NoError(t, err)
	assert.Contains(t, out, "BEGIN:VFREEBUSY")
	assert.Contains(t, out, "20240301T090000Z/20240301T100000Z")

	_, err = run(t, srv, "", "freebusy", "--start", "tomorrow")
	assert.Error(t, err)
}

func TestInvalidConfig(t *testing.T) {
	srv := davtest.New()
	defer srv.Close()
	_, err := run(t, srv, "", "list", "--password", "secret")
	assert.ErrorContains(t, err, "invalid configuration")
}
