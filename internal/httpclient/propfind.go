package httpclient

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/cyp0633/caldora-sync/internal/xml"
)

// DefaultPropfindDepth is the Depth used for single-resource lookups.
const DefaultPropfindDepth = 0

// DoPROPFIND performs a PROPFIND request and decodes the multistatus reply.
func (c *httpClientWrapper) DoPROPFIND(ctx context.Context, urlStr string, depth int, props ...xml.PropRequest) ([]xml.Response, error) {
	c.logger.Debug("starting PROPFIND request",
		"url", urlStr,
		"depth", depth,
		"properties", len(props))

	body, err := xml.BuildPropfind(props...).WriteToBytes()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize PROPFIND body: %w", err)
	}

	reply, err := c.do(ctx, request{
		method: "PROPFIND",
		url:    urlStr,
		header: http.Header{
			"Depth":        {strconv.Itoa(depth)},
			"Content-Type": {ContentTypeXML},
		},
		body:     body,
		accepted: []int{http.StatusMultiStatus},
	})
	if err != nil {
		return nil, err
	}

	responses, err := reply.Multistatus()
	if err != nil {
		c.logger.Debug("failed to parse XML response", "error", err)
		return nil, err
	}

	c.logger.Debug("PROPFIND request complete", "response_count", len(responses))
	return responses, nil
}
