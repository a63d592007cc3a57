package httpclient

import (
	"context"
	"net/http"

	"github.com/samber/mo"
)

// DoGET fetches a resource and returns its ETag and body.
func (c *httpClientWrapper) DoGET(ctx context.Context, urlStr string) (mo.Option[string], []byte, error) {
	c.logger.Debug("starting GET request", "url", urlStr)

	reply, err := c.do(ctx, request{
		method:   http.MethodGet,
		url:      urlStr,
		accepted: []int{http.StatusOK},
	})
	if err != nil {
		return mo.None[string](), nil, err
	}

	etag := reply.ETag()
	c.logger.Debug("GET request complete",
		"etag", etag.OrEmpty(),
		"body_length", len(reply.Body))
	return etag, reply.Body, nil
}
