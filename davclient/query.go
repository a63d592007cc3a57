package davclient

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cyp0633/caldora-sync/internal/daverr"
	"github.com/cyp0633/caldora-sync/internal/httpclient"
	"github.com/cyp0633/caldora-sync/internal/xml"
	"github.com/samber/mo"
)

// objectProps is the prop list of every object query.
var objectProps = []xml.PropRequest{xml.CalendarDataName, xml.GetETagName}

// GetItemByUID finds the object in collection whose kind component has
// exactly the given UID. It fails with a NotFoundError when there is none.
func (c *Client) GetItemByUID(ctx context.Context, collection, kind, uid string) (*CalendarObject, error) {
	c.logger.Debug("looking up item", "collection", collection, "kind", kind, "uid", uid)

	responses, base, err := c.calendarQuery(ctx, collection, NewObjectQuery(kind).UID(uid))
	if err != nil {
		return nil, err
	}

	for _, resp := range responses {
		if resp.StatusCode() == http.StatusNotFound {
			return nil, &daverr.NotFoundError{What: "UID " + uid}
		}
		obj, ok, err := objectFromResponse(base, resp)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		comp, found := obj.Component(kind).Get()
		if !found || ComponentUID(comp) != uid {
			// text-match is a substring match, so task-1 also returns task-10
			c.logger.Debug("skipping non-matching object", "href", obj.Href, "uid", uid)
			continue
		}
		c.logger.Debug("found item", "uid", uid, "href", obj.Href, "etag", obj.ETag.OrEmpty())
		return obj, nil
	}
	return nil, &daverr.NotFoundError{What: "UID " + uid}
}

// ListObjects returns every object in collection matching query. A
// successful response without calendar-data is a ProtocolError.
func (c *Client) ListObjects(ctx context.Context, collection string, query *ObjectQuery) ([]*CalendarObject, error) {
	responses, base, err := c.calendarQuery(ctx, collection, query)
	if err != nil {
		return nil, err
	}

	var objects []*CalendarObject
	for _, resp := range responses {
		if resp.StatusCode() == http.StatusNotFound {
			continue
		}
		obj, ok, err := objectFromResponse(base, resp)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, daverr.Protocolf("calendar-data missing for %s", resp.Href)
		}
		objects = append(objects, obj)
		if query.limit > 0 && len(objects) == query.limit {
			break
		}
	}
	c.logger.Debug("listed objects", "collection", base.String(), "count", len(objects))
	return objects, nil
}

func (c *Client) calendarQuery(ctx context.Context, collection string, query *ObjectQuery) ([]xml.Response, *url.URL, error) {
	base, err := c.httpClient.ResolveURL(collection)
	if err != nil {
		return nil, nil, err
	}
	doc := xml.BuildCalendarQuery(objectProps, mo.Some(query.Filter()))
	reply, err := c.httpClient.DoREPORT(ctx, base.String(), httpclient.DefaultReportDepth, doc)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to execute calendar query: %w", err)
	}
	responses, err := reply.Multistatus()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decode calendar query: %w", err)
	}
	return responses, base, nil
}

// objectFromResponse builds an object from a response carrying
// calendar-data in a successful propstat. ok is false when it does not.
func objectFromResponse(base *url.URL, resp xml.Response) (*CalendarObject, bool, error) {
	data, ok := resp.Prop(xml.CalendarDataName).Get()
	if !ok {
		return nil, false, nil
	}
	cal, err := DecodeCalendar([]byte(data.Text))
	if err != nil {
		return nil, false, &daverr.ProtocolError{Msg: "invalid calendar-data for " + resp.Href, Err: err}
	}
	ref, err := url.Parse(resp.Href)
	if err != nil {
		return nil, false, &daverr.ProtocolError{Msg: "invalid href " + resp.Href, Err: err}
	}

	etag := mo.None[string]()
	if p, ok := resp.Prop(xml.GetETagName).Get(); ok {
		etag = mo.EmptyableToOption(strings.TrimSpace(p.Text))
	}
	return &CalendarObject{
		Href:     base.ResolveReference(ref).String(),
		ETag:     etag,
		Calendar: cal,
	}, true, nil
}

// FreeBusy runs a free-busy-query against target and returns the
// text/calendar reply body.
func (c *Client) FreeBusy(ctx context.Context, target string, start, end mo.Option[time.Time]) ([]byte, error) {
	doc := xml.BuildFreeBusyQuery(start, end)
	reply, err := c.httpClient.DoREPORT(ctx, target, httpclient.DefaultReportDepth, doc)
	if err != nil {
		return nil, fmt.Errorf("failed to query free-busy: %w", err)
	}
	if reply.StatusCode != http.StatusOK {
		return nil, &daverr.UnexpectedStatusError{Method: "REPORT", URL: target, StatusCode: reply.StatusCode}
	}
	return reply.Body, nil
}
