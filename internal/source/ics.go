// Package source turns external data into reconcile items: calendar
// documents to import and issue lists exported from trackers.
package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/cyp0633/caldora-sync/davclient"
	"github.com/cyp0633/caldora-sync/internal/httpclient"
	"github.com/cyp0633/caldora-sync/internal/reconcile"
	"github.com/emersion/go-ical"
)

// PropImportedFrom records where an imported calendar came from.
const PropImportedFrom = "X-IMPORTED-FROM-URL"

// ImportOptions controls how an imported document is rewritten.
type ImportOptions struct {
	// SourceURL is stored as X-IMPORTED-FROM-URL when not empty.
	SourceURL string
	// Invite marks the output as an iTIP request (METHOD:REQUEST).
	Invite bool
	// Category is added to every imported component.
	Category string
	// Status ("tentative" or "confirmed") is set on components without one.
	Status string
}

func (o ImportOptions) validate() error {
	switch strings.ToLower(o.Status) {
	case "", "tentative", "confirmed":
		return nil
	default:
		return fmt.Errorf("invalid status %q: must be tentative or confirmed", o.Status)
	}
}

// ParseICS splits a calendar document into one item per VEVENT or VTODO.
// Components sharing a UID collapse into the last one. Every other
// component (VTIMEZONE, ...) travels along with each item.
func ParseICS(data []byte, opts ImportOptions) ([]reconcile.Item, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	orig, err := davclient.DecodeCalendar(data)
	if err != nil {
		return nil, err
	}

	calProps := make(ical.Props)
	for name, props := range orig.Props {
		calProps[name] = props
	}
	if opts.SourceURL != "" && calProps.Get(PropImportedFrom) == nil {
		p := ical.NewProp(PropImportedFrom)
		p.Params.Set(ical.ParamValue, "URI")
		p.Value = opts.SourceURL
		calProps.Set(p)
	}
	if opts.Invite && calProps.Get(ical.PropMethod) == nil {
		calProps.SetText(ical.PropMethod, "REQUEST")
	}

	var other []*ical.Component
	var order []string
	byUID := make(map[string]*ical.Component)
	for _, comp := range orig.Children {
		if comp.Name != ical.CompEvent && comp.Name != ical.CompToDo {
			other = append(other, comp)
			continue
		}
		uid := davclient.ComponentUID(comp)
		if uid == "" {
			return nil, fmt.Errorf("missing UID for %s", comp.Name)
		}
		if _, seen := byUID[uid]; !seen {
			order = append(order, uid)
		}
		byUID[uid] = comp
	}

	items := make([]reconcile.Item, 0, len(order))
	for _, uid := range order {
		comp := byUID[uid]
		items = append(items, reconcile.Item{
			UID:           uid,
			Kind:          comp.Name,
			Apply:         importApply(comp, opts),
			Policy:        reconcile.Rebuild,
			CalendarProps: calProps,
			Extra:         other,
		})
	}
	return items, nil
}

// importApply copies src onto the target component, then adds the
// configured category and default status.
func importApply(src *ical.Component, opts ImportOptions) func(*ical.Component) error {
	return func(target *ical.Component) error {
		clone := reconcile.CloneComponent(src)
		for name, props := range clone.Props {
			target.Props[name] = props
		}
		target.Children = clone.Children

		if opts.Category != "" && !hasCategory(target, opts.Category) {
			p := ical.NewProp(ical.PropCategories)
			p.Value = escapeText(opts.Category)
			target.Props.Add(p)
		}
		if opts.Status != "" && target.Props.Get(ical.PropStatus) == nil {
			target.Props.SetText(ical.PropStatus, strings.ToUpper(opts.Status))
		}
		return nil
	}
}

func hasCategory(comp *ical.Component, category string) bool {
	for _, p := range comp.Props[ical.PropCategories] {
		for _, v := range splitList(p.Value) {
			if v == escapeText(category) {
				return true
			}
		}
	}
	return false
}

// splitList splits a comma separated value, leaving escaped commas alone.
func splitList(value string) []string {
	var out []string
	start := 0
	for i := 0; i < len(value); i++ {
		switch value[i] {
		case '\\':
			i++
		case ',':
			out = append(out, value[start:i])
			start = i + 1
		}
	}
	return append(out, value[start:])
}

var textEscaper = strings.NewReplacer(`\`, `\\`, ";", `\;`, ",", `\,`, "\n", `\n`)

func escapeText(s string) string {
	return textEscaper.Replace(s)
}

// Load reads a calendar document from a file, an http(s) URL, or stdin
// when location is empty or "-". It returns the URL to record as the
// origin, which is empty unless the document was fetched.
func Load(ctx context.Context, client httpclient.HTTPClient, location string, stdin io.Reader) ([]byte, string, error) {
	switch {
	case location == "" || location == "-":
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, "", fmt.Errorf("failed to read stdin: %w", err)
		}
		return data, "", nil
	case strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://"):
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create request: %w", err)
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, "", fmt.Errorf("failed to fetch %s: %w", location, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, "", fmt.Errorf("failed to fetch %s: %s", location, resp.Status)
		}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, "", fmt.Errorf("failed to read %s: %w", location, err)
		}
		return data, location, nil
	default:
		data, err := os.ReadFile(location)
		if err != nil {
			return nil, "", fmt.Errorf("failed to read %s: %w", location, err)
		}
		return data, "", nil
	}
}
