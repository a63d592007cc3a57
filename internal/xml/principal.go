package xml

import (
	"net/url"
	"strings"

	"github.com/cyp0633/caldora-sync/internal/daverr"
)

// ExtractCurrentUserPrincipal returns the current-user-principal reported by
// the first response carrying it, resolved against requestURL.
func ExtractCurrentUserPrincipal(requestURL *url.URL, responses []Response) (*url.URL, error) {
	return ExtractHref(requestURL, responses, CurrentUserPrincipalName)
}

// ExtractHref finds the first response with a successful name property, which
// must hold exactly one DAV:href, and resolves that href against requestURL.
func ExtractHref(requestURL *url.URL, responses []Response, name PropName) (*url.URL, error) {
	for _, resp := range responses {
		prop, ok := resp.Prop(name).Get()
		if !ok {
			continue
		}
		hrefs := prop.ChildrenNamed(HrefName)
		if len(hrefs) != 1 {
			return nil, daverr.Protocolf("%s must hold exactly one href, got %d", name, len(hrefs))
		}
		ref, err := url.Parse(strings.TrimSpace(hrefs[0].Text))
		if err != nil {
			return nil, &daverr.ProtocolError{Msg: "invalid href in " + name.String(), Err: err}
		}
		return requestURL.ResolveReference(ref), nil
	}
	return nil, &daverr.NotFoundError{What: name.String()}
}
