package davclient

import (
	"context"
	"fmt"
	"net/url"

	"github.com/cyp0633/caldora-sync/internal/httpclient"
	"github.com/cyp0633/caldora-sync/internal/xml"
)

// propfindHref reads a single href-valued property of target and resolves
// it against target. A missing property or resource is a NotFoundError.
func (c *Client) propfindHref(ctx context.Context, target string, name xml.PropName) (*url.URL, error) {
	base, err := c.httpClient.ResolveURL(target)
	if err != nil {
		return nil, err
	}
	responses, err := c.httpClient.DoPROPFIND(ctx, base.String(), httpclient.DefaultPropfindDepth, name)
	if err != nil {
		return nil, fmt.Errorf("failed to get %s of %s: %w", name.Local, base, err)
	}
	href, err := xml.ExtractHref(base, responses, name)
	if err != nil {
		return nil, fmt.Errorf("failed to get %s of %s: %w", name.Local, base, err)
	}
	c.logger.Debug("resolved property", "property", name.Local, "url", base.String(), "href", href.String())
	return href, nil
}

// GetAddMemberURL returns the URL new members of collection are POSTed to.
func (c *Client) GetAddMemberURL(ctx context.Context, collection string) (*url.URL, error) {
	return c.propfindHref(ctx, collection, xml.AddMemberName)
}

// CurrentUserPrincipal returns the principal URL of the authenticated user.
func (c *Client) CurrentUserPrincipal(ctx context.Context, target string) (*url.URL, error) {
	return c.propfindHref(ctx, target, xml.CurrentUserPrincipalName)
}

// InboxURL returns the scheduling inbox of principal.
func (c *Client) InboxURL(ctx context.Context, principal string) (*url.URL, error) {
	return c.propfindHref(ctx, principal, xml.ScheduleInboxURLName)
}

// CalendarHomeSet returns the collection holding principal's calendars.
func (c *Client) CalendarHomeSet(ctx context.Context, principal string) (*url.URL, error) {
	return c.propfindHref(ctx, principal, xml.CalendarHomeSetName)
}
