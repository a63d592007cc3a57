package httpclient

import (
	"context"
	"net/http"

	"github.com/samber/mo"
)

// DoPUT stores body at urlStr, optionally guarded by a precondition, and
// returns the new ETag when the server reports one.
func (c *httpClientWrapper) DoPUT(ctx context.Context, urlStr, contentType string, data []byte, pre mo.Option[Precondition]) (mo.Option[string], error) {
	c.logger.Debug("starting PUT request",
		"url", urlStr,
		"precondition", pre.OrEmpty().Header,
		"etag", pre.OrEmpty().Value(),
		"data_length", len(data))

	reply, err := c.do(ctx, request{
		method:   http.MethodPut,
		url:      urlStr,
		header:   http.Header{"Content-Type": {contentType}},
		body:     data,
		pre:      pre,
		accepted: []int{http.StatusOK, http.StatusCreated, http.StatusNoContent},
	})
	if err != nil {
		return mo.None[string](), err
	}

	newEtag := reply.ETag()
	c.logger.Debug("PUT request complete",
		"status", reply.StatusCode,
		"new_etag", newEtag.OrEmpty())
	return newEtag, nil
}

// DoPOST posts body to urlStr, used for add-member creation.
func (c *httpClientWrapper) DoPOST(ctx context.Context, urlStr, contentType string, data []byte, pre mo.Option[Precondition]) (*Reply, error) {
	c.logger.Debug("starting POST request",
		"url", urlStr,
		"content_type", contentType,
		"data_length", len(data))

	reply, err := c.do(ctx, request{
		method:   http.MethodPost,
		url:      urlStr,
		header:   http.Header{"Content-Type": {contentType}},
		body:     data,
		pre:      pre,
		accepted: []int{http.StatusOK, http.StatusCreated, http.StatusNoContent},
	})
	if err != nil {
		return nil, err
	}

	c.logger.Debug("POST request complete",
		"status", reply.StatusCode,
		"location", reply.Header.Get("Location"))
	return reply, nil
}
