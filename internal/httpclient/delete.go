package httpclient

import (
	"context"
	"net/http"

	"github.com/samber/mo"
)

// DoDELETE sends a DELETE request with If-Match header for optimistic locking
func (c *httpClientWrapper) DoDELETE(ctx context.Context, urlStr string, pre mo.Option[Precondition]) error {
	c.logger.Debug("starting DELETE request",
		"url", urlStr,
		"etag", pre.OrEmpty().Value())

	reply, err := c.do(ctx, request{
		method:   http.MethodDelete,
		url:      urlStr,
		pre:      pre,
		accepted: []int{http.StatusOK, http.StatusNoContent},
	})
	if err != nil {
		return err
	}

	c.logger.Debug("DELETE request complete", "status", reply.StatusCode)
	return nil
}
