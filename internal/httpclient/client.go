package httpclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/beevik/etree"
	"github.com/cyp0633/caldora-sync/internal/daverr"
	"github.com/cyp0633/caldora-sync/internal/xml"
	"github.com/samber/mo"
)

// DefaultUserAgent is sent when the caller does not configure one.
const DefaultUserAgent = "caldora-sync/0.1"

// Content types used on the wire
const (
	ContentTypeXML      = "application/xml; charset=utf-8"
	ContentTypeCalendar = "text/calendar; charset=utf-8"
)

// HTTPClient is the transport boundary. *http.Client satisfies it; credentials
// are injected below it by a RoundTripper such as BasicAuthTransport.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// HttpClientWrapper performs one HTTP exchange per DAV operation and enforces
// the status codes each operation accepts.
type HttpClientWrapper interface {
	DoPROPFIND(ctx context.Context, url string, depth int, props ...xml.PropRequest) ([]xml.Response, error)
	DoREPORT(ctx context.Context, url string, depth int, doc *etree.Document) (*Reply, error)
	DoGET(ctx context.Context, url string) (etag mo.Option[string], body []byte, err error)
	DoPUT(ctx context.Context, url, contentType string, body []byte, pre mo.Option[Precondition]) (etag mo.Option[string], err error)
	DoPOST(ctx context.Context, url, contentType string, body []byte, pre mo.Option[Precondition]) (*Reply, error)
	DoDELETE(ctx context.Context, url string, pre mo.Option[Precondition]) error
	// ResolveURL resolves a possibly relative reference against the base URL.
	ResolveURL(url string) (*url.URL, error)
}

// Reply is a fully read HTTP response.
type Reply struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// ETag returns the ETag response header, if any.
func (r *Reply) ETag() mo.Option[string] {
	return mo.EmptyableToOption(r.Header.Get("ETag"))
}

// Multistatus decodes the body as a multistatus document.
func (r *Reply) Multistatus() ([]xml.Response, error) {
	return xml.DecodeMultistatus(r.Body)
}

type httpClientWrapper struct {
	client    HTTPClient
	baseURL   url.URL
	userAgent string
	logger    *slog.Logger
}

// Option configures a wrapper
type Option func(*httpClientWrapper)

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *httpClientWrapper) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// NewHttpClientWrapper creates a new client wrapper with basic auth and logging
func NewHttpClientWrapper(client HTTPClient, baseURL url.URL, logger *slog.Logger, opts ...Option) (HttpClientWrapper, error) {
	if client == nil {
		return nil, fmt.Errorf("http client is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	c := &httpClientWrapper{client: client, baseURL: baseURL, userAgent: DefaultUserAgent, logger: logger}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ResolveURL resolves a URL string against the base URL
func (c *httpClientWrapper) ResolveURL(urlStr string) (*url.URL, error) {
	ref, err := url.Parse(urlStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL %q: %w", urlStr, err)
	}
	return c.baseURL.ResolveReference(ref), nil
}

// request describes one exchange
type request struct {
	method   string
	url      string
	header   http.Header
	body     []byte
	pre      mo.Option[Precondition]
	accepted []int
}

// do sends req and reads the whole response. A status outside req.accepted
// is mapped to a daverr type.
func (c *httpClientWrapper) do(ctx context.Context, req request) (*Reply, error) {
	resolvedURL, err := c.ResolveURL(req.url)
	if err != nil {
		c.logger.Debug("failed to resolve URL", "url", req.url, "error", err)
		return nil, fmt.Errorf("failed to resolve URL %q: %w", req.url, err)
	}
	c.logger.Debug("resolved URL", "url", resolvedURL.String())

	var body io.Reader
	if req.body != nil {
		body = bytes.NewReader(req.body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.method, resolvedURL.String(), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s request: %w", req.method, err)
	}
	for key, values := range req.header {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}
	if p, ok := req.pre.Get(); ok {
		httpReq.Header.Set(p.Header, p.Value())
	}
	httpReq.Header.Set("User-Agent", c.userAgent)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		c.logger.Debug("request failed", "method", req.method, "error", err)
		return nil, fmt.Errorf("failed to send %s request: %w", req.method, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("received response", "method", req.method, "status", resp.Status)

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s response: %w", req.method, err)
	}

	if err := checkStatus(req.method, resolvedURL.String(), resp, req.pre, req.accepted); err != nil {
		c.logger.Debug("unexpected status code",
			"method", req.method,
			"status_code", resp.StatusCode,
			"status", resp.Status)
		return nil, err
	}

	return &Reply{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}, nil
}

func checkStatus(method, u string, resp *http.Response, pre mo.Option[Precondition], accepted []int) error {
	for _, code := range accepted {
		if resp.StatusCode == code {
			return nil
		}
	}
	switch resp.StatusCode {
	case http.StatusPreconditionFailed:
		return &daverr.PreconditionFailedError{URL: u, ETags: pre.OrEmpty().ETags}
	case http.StatusNotFound:
		return &daverr.NotFoundError{What: u}
	default:
		return &daverr.UnexpectedStatusError{Method: method, URL: u, StatusCode: resp.StatusCode, Status: resp.Status}
	}
}

// Precondition header names
const (
	IfMatch     = "If-Match"
	IfNoneMatch = "If-None-Match"
)

// Precondition is an If-Match or If-None-Match header carrying a list of ETags.
type Precondition struct {
	Header string
	ETags  []string
}

// MatchETag builds an If-Match precondition.
func MatchETag(etags ...string) Precondition {
	return Precondition{Header: IfMatch, ETags: etags}
}

// NoneMatch builds an If-None-Match precondition. NoneMatch("*") only lets
// a write through when the resource does not exist yet.
func NoneMatch(etags ...string) Precondition {
	return Precondition{Header: IfNoneMatch, ETags: etags}
}

// Value renders the header value.
func (p Precondition) Value() string {
	return strings.Join(p.ETags, ", ")
}
