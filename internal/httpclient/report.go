package httpclient

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/beevik/etree"
)

// DefaultReportDepth is the Depth used for collection queries.
const DefaultReportDepth = 1

// DoREPORT executes a CalDAV REPORT request. calendar-query replies are 207;
// free-busy-query replies are 200 with a text/calendar body.
func (c *httpClientWrapper) DoREPORT(ctx context.Context, urlStr string, depth int, doc *etree.Document) (*Reply, error) {
	c.logger.Debug("starting REPORT request",
		"url", urlStr,
		"depth", depth)

	body, err := doc.WriteToBytes()
	if err != nil {
		c.logger.Debug("failed to marshal query", "error", err)
		return nil, fmt.Errorf("failed to marshal REPORT query: %w", err)
	}

	reply, err := c.do(ctx, request{
		method: "REPORT",
		url:    urlStr,
		header: http.Header{
			"Depth":        {strconv.Itoa(depth)},
			"Content-Type": {ContentTypeXML},
		},
		body:     body,
		accepted: []int{http.StatusMultiStatus, http.StatusOK},
	})
	if err != nil {
		return nil, err
	}

	c.logger.Debug("REPORT request complete",
		"status", reply.StatusCode,
		"body_length", len(reply.Body))
	return reply, nil
}
