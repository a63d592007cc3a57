package httpclient

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// maxLoggedBody caps how much of a request or response body is logged.
const maxLoggedBody = 4096

// BasicAuthTransport implements http.RoundTripper and adds Basic Auth
// authentication to outgoing requests. With an empty Username requests are
// sent anonymously.
type BasicAuthTransport struct {
	Username  string
	Password  string
	Transport http.RoundTripper
	Logger    *slog.Logger
}

// NewBasicAuthTransport creates a new BasicAuthTransport with the given
// credentials and optional underlying transport. If transport is nil,
// http.DefaultTransport will be used.
func NewBasicAuthTransport(username, password string, transport http.RoundTripper, logger *slog.Logger) *BasicAuthTransport {
	if transport == nil {
		transport = http.DefaultTransport
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &BasicAuthTransport{
		Username:  username,
		Password:  password,
		Transport: transport,
		Logger:    logger,
	}
}

// NewClient returns an *http.Client that authenticates every request. It is
// built once per process and handed to every component that talks to the
// server.
func NewClient(username, password string, timeout time.Duration, logger *slog.Logger) *http.Client {
	return &http.Client{
		Transport: NewBasicAuthTransport(username, password, nil, logger),
		Timeout:   timeout,
	}
}

// RoundTrip implements the http.RoundTripper interface. It adds Basic Auth
// credentials to the request and delegates to the underlying transport.
func (t *BasicAuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.Transport == nil {
		return nil, errors.New("transport cannot be nil")
	}
	if t.Username == "" && t.Password != "" {
		return nil, errors.New("basic auth password set without username")
	}

	// RoundTrip must not modify the caller's request
	req = req.Clone(req.Context())
	reqBody := ""
	if req.Body != nil {
		bodyBytes, err := io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			return nil, err
		}
		reqBody = truncate(bodyBytes)
		req.Body = io.NopCloser(bytes.NewReader(bodyBytes))
	}

	t.Logger.Debug("outgoing request",
		"method", req.Method,
		"url", req.URL.String(),
		"headers", redact(req.Header),
		"body", reqBody)

	if t.Username != "" {
		req.SetBasicAuth(t.Username, t.Password)
	}
	resp, err := t.Transport.RoundTrip(req)

	if err == nil && resp != nil {
		respBody := ""
		if resp.Body != nil {
			bodyBytes, err := io.ReadAll(resp.Body)
			resp.Body.Close()
			if err != nil {
				return nil, err
			}
			respBody = truncate(bodyBytes)
			resp.Body = io.NopCloser(bytes.NewReader(bodyBytes))
		}

		t.Logger.Debug("incoming response",
			"status", resp.Status,
			"headers", resp.Header,
			"body", respBody)
	}

	return resp, err
}

func truncate(b []byte) string {
	if len(b) > maxLoggedBody {
		return string(b[:maxLoggedBody]) + "..."
	}
	return string(b)
}

func redact(h http.Header) http.Header {
	if h.Get("Authorization") == "" {
		return h
	}
	out := h.Clone()
	out.Set("Authorization", "REDACTED")
	return out
}
