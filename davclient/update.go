package davclient

import (
	"context"
	"fmt"
	"net/url"

	"github.com/cyp0633/caldora-sync/internal/daverr"
	"github.com/cyp0633/caldora-sync/internal/httpclient"
	"github.com/emersion/go-ical"
	"github.com/google/uuid"
	"github.com/samber/mo"
)

// AddMember creates cal in collection. It POSTs to the collection's
// add-member URL; when the server has none it PUTs to a fresh <uuid>.ics
// with If-None-Match: *. Href is empty when the server did not say where
// a POSTed member went.
func (c *Client) AddMember(ctx context.Context, collection string, cal *ical.Calendar) (*CalendarObject, error) {
	data, err := EncodeCalendar(cal)
	if err != nil {
		return nil, err
	}

	addURL, err := c.GetAddMemberURL(ctx, collection)
	if daverr.IsNotFound(err) {
		c.logger.Debug("no add-member URL, creating with PUT", "collection", collection)
		return c.createWithPut(ctx, collection, cal, data)
	}
	if err != nil {
		return nil, err
	}

	reply, err := c.httpClient.DoPOST(ctx, addURL.String(), httpclient.ContentTypeCalendar, data, mo.None[httpclient.Precondition]())
	if err != nil {
		return nil, fmt.Errorf("failed to add member to %s: %w", collection, err)
	}

	obj := &CalendarObject{ETag: reply.ETag(), Calendar: cal}
	if loc := reply.Header.Get("Location"); loc != "" {
		ref, err := url.Parse(loc)
		if err != nil {
			return nil, &daverr.ProtocolError{Msg: "invalid Location header", Err: err}
		}
		obj.Href = addURL.ResolveReference(ref).String()
	}
	return obj, nil
}

func (c *Client) createWithPut(ctx context.Context, collection string, cal *ical.Calendar, data []byte) (*CalendarObject, error) {
	base, err := c.httpClient.ResolveURL(collection)
	if err != nil {
		return nil, err
	}
	ref, err := url.Parse(uuid.New().String() + ".ics")
	if err != nil {
		return nil, fmt.Errorf("failed to parse object URL: %w", err)
	}
	objectURL := base.ResolveReference(ref).String()

	etag, err := c.httpClient.DoPUT(ctx, objectURL, httpclient.ContentTypeCalendar, data, mo.Some(httpclient.NoneMatch("*")))
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar object: %w", err)
	}
	return &CalendarObject{Href: objectURL, ETag: etag, Calendar: cal}, nil
}

// PutObject replaces the object at href. With an etag the write only
// succeeds while the remote copy is unchanged; otherwise it fails with a
// PreconditionFailedError.
func (c *Client) PutObject(ctx context.Context, href string, cal *ical.Calendar, etag mo.Option[string]) (mo.Option[string], error) {
	data, err := EncodeCalendar(cal)
	if err != nil {
		return mo.None[string](), err
	}
	newETag, err := c.httpClient.DoPUT(ctx, href, httpclient.ContentTypeCalendar, data, precondition(etag))
	if err != nil {
		return mo.None[string](), fmt.Errorf("failed to update calendar object: %w", err)
	}
	return newETag, nil
}

// DeleteObject deletes a calendar object at the specified URL with optimistic locking using etag
func (c *Client) DeleteObject(ctx context.Context, href string, etag mo.Option[string]) error {
	if err := c.httpClient.DoDELETE(ctx, href, precondition(etag)); err != nil {
		return fmt.Errorf("failed to delete calendar object: %w", err)
	}
	return nil
}

func precondition(etag mo.Option[string]) mo.Option[httpclient.Precondition] {
	if e, ok := etag.Get(); ok {
		return mo.Some(httpclient.MatchETag(e))
	}
	return mo.None[httpclient.Precondition]()
}
