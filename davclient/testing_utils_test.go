package davclient

import (
	"io"
	"log/slog"
	"net/url"
	"testing"

	"github.com/cyp0633/caldora-sync/internal/davtest"
	"github.com/cyp0633/caldora-sync/internal/httpclient"
	"github.com/emersion/go-ical"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestClient starts a davtest server and a client pointed at its root.
func newTestClient(t *testing.T, opts ...davtest.Option) (*Client, *davtest.Server) {
	t.Helper()
	srv := davtest.New(opts...)
	t.Cleanup(srv.Close)

	base, err := url.Parse(srv.URL)
	require.NoError(t, err)
	wrapper, err := httpclient.NewHttpClientWrapper(srv.Client(), *base, discardLogger())
	require.NoError(t, err)
	return NewClient(wrapper, discardLogger()), srv
}

func mustCalendar(t *testing.T, ics string) *ical.Calendar {
	t.Helper()
	cal, err := DecodeCalendar([]byte(ics))
	require.NoError(t, err)
	return cal
}
