package davclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/cyp0633/caldora-sync/internal/daverr"
	"github.com/cyp0633/caldora-sync/internal/xml"
)

// ErrNoPrincipal is returned when no discovery location reports a
// current-user-principal.
var ErrNoPrincipal = errors.New("could not find current-user-principal")

type CalendarInfo struct {
	URI      string
	Name     string
	Color    string
	CTag     string
	ReadOnly bool
}

// DNSResolver interface for mocking DNS lookups in tests
type DNSResolver interface {
	LookupSRV(ctx context.Context, service, proto, name string) (cname string, addrs []*net.SRV, err error)
	LookupTXT(ctx context.Context, name string) ([]string, error)
}

// FindCalendars lists the calendars of the authenticated user, starting from
// location. Discovery follows Thunderbird: the location itself, DNS SRV/TXT
// records, /.well-known/caldav, then the server root.
func (c *Client) FindCalendars(ctx context.Context, location string, resolver DNSResolver) ([]CalendarInfo, error) {
	baseURL, err := url.Parse(location)
	if err != nil || baseURL.Host == "" || (baseURL.Scheme != "http" && baseURL.Scheme != "https") {
		return nil, fmt.Errorf("invalid URL %q", location)
	}
	if resolver == nil {
		resolver = &net.Resolver{}
	}

	var principal *url.URL
	var lastErr error
	for _, candidate := range discoveryLocations(ctx, baseURL, resolver) {
		p, err := c.CurrentUserPrincipal(ctx, candidate)
		if err == nil {
			principal = p
			break
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.logger.Debug("discovery candidate failed", "url", candidate, "error", err)
		lastErr = err
	}
	if principal == nil {
		return nil, fmt.Errorf("%w: %v", ErrNoPrincipal, lastErr)
	}

	home, err := c.CalendarHomeSet(ctx, principal.String())
	if err != nil {
		return nil, err
	}

	responses, err := c.httpClient.DoPROPFIND(ctx, home.String(), 1,
		xml.ResourceTypeName,
		xml.DisplayNameName,
		xml.CalendarColorName,
		xml.GetCTagName,
		xml.CurrentUserPrivSetName)
	if err != nil {
		return nil, fmt.Errorf("failed to list calendars: %w", err)
	}

	calendars := make([]CalendarInfo, 0)
	for _, resp := range responses {
		info, ok, err := calendarInfo(home, resp)
		if err != nil {
			return nil, err
		}
		if ok {
			calendars = append(calendars, info)
		}
	}
	c.logger.Debug("discovered calendars", "home", home.String(), "count", len(calendars))
	return calendars, nil
}

// discoveryLocations returns the URLs probed for a principal, in order.
func discoveryLocations(ctx context.Context, baseURL *url.URL, resolver DNSResolver) []string {
	var locations []string

	if baseURL.Path != "/" && baseURL.Path != "" {
		locations = append(locations, baseURL.String())
	}

	for _, srv := range []struct{ prefix, scheme string }{
		{"_caldavs._tcp.", "https"},
		{"_caldav._tcp.", "http"},
	} {
		host := srv.prefix + baseURL.Hostname()
		_, addrs, err := resolver.LookupSRV(ctx, "", "", host)
		if err != nil {
			continue
		}

		var path string
		txts, _ := resolver.LookupTXT(ctx, host)
		for _, txt := range txts {
			if p, ok := strings.CutPrefix(txt, "path="); ok {
				path = p
				break
			}
		}

		for _, addr := range addrs {
			target := strings.TrimSuffix(addr.Target, ".")
			locations = append(locations, fmt.Sprintf("%s://%s:%d%s", srv.scheme, target, addr.Port, path))
		}
	}

	locations = append(locations, baseURL.ResolveReference(&url.URL{Path: "/.well-known/caldav"}).String())
	locations = append(locations, baseURL.ResolveReference(&url.URL{Path: "/"}).String())
	return locations
}

func calendarInfo(home *url.URL, resp xml.Response) (CalendarInfo, bool, error) {
	rt, ok := resp.Prop(xml.ResourceTypeName).Get()
	if !ok || !rt.Child(xml.CalendarName).IsPresent() {
		return CalendarInfo{}, false, nil
	}
	ref, err := url.Parse(resp.Href)
	if err != nil {
		return CalendarInfo{}, false, &daverr.ProtocolError{Msg: "invalid href " + resp.Href, Err: err}
	}

	info := CalendarInfo{URI: home.ResolveReference(ref).String(), ReadOnly: true}
	if p, ok := resp.Prop(xml.DisplayNameName).Get(); ok {
		info.Name = strings.TrimSpace(p.Text)
	}
	if p, ok := resp.Prop(xml.CalendarColorName).Get(); ok {
		info.Color = strings.TrimSpace(p.Text)
	}
	if p, ok := resp.Prop(xml.GetCTagName).Get(); ok {
		info.CTag = strings.TrimSpace(p.Text)
	}
	if p, ok := resp.Prop(xml.CurrentUserPrivSetName).Get(); ok {
		for _, priv := range p.ChildrenNamed(xml.PrivilegeName) {
			if priv.Child(xml.WriteName).IsPresent() {
				info.ReadOnly = false
				break
			}
		}
	}
	return info, true, nil
}
