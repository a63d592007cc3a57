package davtest

import (
	"io"
	"net/http"
	"strings"

	"github.com/beevik/etree"
	"github.com/cyp0633/caldora-sync/internal/xml"
	"github.com/samber/mo"
)

type resourceKind int

const (
	kindUnknown resourceKind = iota
	kindRoot
	kindPrincipal
	kindHome
	kindCollection
	kindReadOnly
	kindInbox
	kindObject
)

// resolve classifies path. Callers hold s.mu.
func (s *Server) resolve(path string) resourceKind {
	switch path {
	case "/", "", WellKnownPath, WellKnownPath + "/":
		return kindRoot
	case PrincipalPath:
		return kindPrincipal
	case HomePath:
		return kindHome
	case CollectionPath:
		return kindCollection
	case ReadOnlyCollectionPath:
		return kindReadOnly
	case InboxPath:
		return kindInbox
	}
	if _, ok := s.store.objects[path]; ok {
		return kindObject
	}
	return kindUnknown
}

func href(path string) xml.Property {
	return xml.Property{Name: xml.HrefName, Text: path}
}

func hrefProp(name xml.PropName, path string) xml.Property {
	return xml.Property{Name: name, Children: []xml.Property{href(path)}}
}

func privileges(names ...xml.PropName) xml.Property {
	set := xml.Property{Name: xml.CurrentUserPrivSetName}
	for _, name := range names {
		set.Children = append(set.Children, xml.Property{
			Name:     xml.PrivilegeName,
			Children: []xml.Property{{Name: name}},
		})
	}
	return set
}

var readName = xml.PropName{Space: xml.DAV, Local: "read"}

// properties returns every property the resource at path has. Callers
// hold s.mu.
func (s *Server) properties(path string, kind resourceKind) []xml.Property {
	props := []xml.Property{hrefProp(xml.CurrentUserPrincipalName, PrincipalPath)}
	collection := xml.Property{Name: xml.ResourceTypeName, Children: []xml.Property{{Name: xml.CollectionName}}}
	calendar := xml.Property{Name: xml.ResourceTypeName, Children: []xml.Property{{Name: xml.CollectionName}, {Name: xml.CalendarName}}}

	switch kind {
	case kindPrincipal:
		props = append(props,
			collection,
			hrefProp(xml.CalendarHomeSetName, HomePath),
			hrefProp(xml.ScheduleInboxURLName, InboxPath))
	case kindHome, kindInbox, kindRoot:
		props = append(props, collection)
	case kindCollection:
		props = append(props,
			calendar,
			xml.Property{Name: xml.DisplayNameName, Text: "Tasks"},
			xml.Property{Name: xml.CalendarColorName, Text: "#3A87ADFF"},
			xml.Property{Name: xml.GetCTagName, Text: s.store.ctag()},
			privileges(readName, xml.WriteName))
		if s.addMember {
			props = append(props, hrefProp(xml.AddMemberName, AddMemberPath))
		}
	case kindReadOnly:
		props = append(props,
			calendar,
			xml.Property{Name: xml.DisplayNameName, Text: "Holidays"},
			xml.Property{Name: xml.GetCTagName, Text: "1"},
			privileges(readName))
	case kindObject:
		obj := s.store.objects[path]
		props = append(props,
			xml.Property{Name: xml.ResourceTypeName},
			xml.Property{Name: xml.GetETagName, Text: obj.ETag},
			xml.Property{Name: xml.CalendarDataName, Text: obj.Data})
	}
	return props
}

// propResponse reports the requested props of path; the ones it lacks go
// into a 404 propstat. An empty request returns every property.
func (s *Server) propResponse(path string, kind resourceKind, requested []xml.PropName) xml.Response {
	available := s.properties(path, kind)
	groups := xml.PropstatGroups{}
	ok, missing := xml.StatusLine(http.StatusOK), xml.StatusLine(http.StatusNotFound)
	if len(requested) == 0 {
		groups[ok] = available
	}
	for _, name := range requested {
		found := false
		for _, p := range available {
			if p.Name == name {
				groups[ok] = append(groups[ok], p)
				found = true
				break
			}
		}
		if !found {
			groups[missing] = append(groups[missing], xml.Property{Name: name})
		}
	}
	return xml.Response{Href: path, Status: mo.None[string](), Propstats: groups}
}

// children lists the members reported at Depth 1. Callers hold s.mu.
func (s *Server) children(path string, kind resourceKind) []string {
	switch kind {
	case kindHome:
		return []string{CollectionPath, ReadOnlyCollectionPath, InboxPath}
	case kindCollection, kindReadOnly:
		var out []string
		for _, obj := range s.store.members(path) {
			out = append(out, obj.Href)
		}
		return out
	}
	return nil
}

func (s *Server) handlePropfind(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Error reading request body", http.StatusBadRequest)
		return
	}
	var requested []xml.PropName
	if len(strings.TrimSpace(string(body))) > 0 {
		req, err := xml.DecodePropfind(body)
		if err != nil {
			s.logger.Warn("invalid propfind body", "error", err)
			http.Error(w, "Invalid PROPFIND body", http.StatusBadRequest)
			return
		}
		requested = req.Props
	}

	s.mu.Lock()
	path := r.URL.Path
	kind := s.resolve(path)
	if kind == kindUnknown {
		s.mu.Unlock()
		http.NotFound(w, r)
		return
	}
	responses := []xml.Response{s.propResponse(path, kind, requested)}
	if r.Header.Get("Depth") != "0" {
		for _, child := range s.children(path, kind) {
			responses = append(responses, s.propResponse(child, s.resolve(child), requested))
		}
	}
	s.mu.Unlock()

	writeMultistatus(w, xml.EncodeMultistatus(responses))
}

func writeMultistatus(w http.ResponseWriter, doc *etree.Document) {
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.WriteHeader(http.StatusMultiStatus)
	doc.WriteTo(w)
}
