package davtest

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cyp0633/caldora-sync/internal/recur"
	"github.com/cyp0633/caldora-sync/internal/xml"
	"github.com/emersion/go-ical"
	"github.com/google/uuid"
)

var (
	farPast   = time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)
	farFuture = time.Date(2200, 1, 1, 0, 0, 0, 0, time.UTC)
)

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Error reading request body", http.StatusBadRequest)
		return
	}
	req, err := xml.DecodeReport(body)
	if err != nil {
		s.logger.Warn("invalid report body", "error", err)
		http.Error(w, "Invalid REPORT body", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	kind := s.resolve(r.URL.Path)
	s.mu.Unlock()

	switch {
	case req.Query != nil && (kind == kindCollection || kind == kindReadOnly):
		s.handleCalendarQuery(w, r.URL.Path, req.Query)
	case req.FreeBusy != nil && (kind == kindCollection || kind == kindInbox):
		s.handleFreeBusy(w, req.FreeBusy)
	case kind == kindUnknown:
		http.NotFound(w, r)
	default:
		http.Error(w, "Unsupported report for resource", http.StatusBadRequest)
	}
}

func (s *Server) handleCalendarQuery(w http.ResponseWriter, collection string, query *xml.CalendarQueryRequest) {
	requested := make([]xml.PropName, 0, len(query.Props))
	for _, p := range query.Props {
		requested = append(requested, p.Name)
	}

	s.mu.Lock()
	var responses []xml.Response
	for _, obj := range s.store.members(collection) {
		if node, ok := query.Filter.Get(); ok {
			matched, err := s.matches(node, obj.Calendar.Component)
			if err != nil {
				s.mu.Unlock()
				s.logger.Warn("filter evaluation failed", "href", obj.Href, "error", err)
				http.Error(w, "Invalid filter", http.StatusBadRequest)
				return
			}
			if !matched {
				continue
			}
		}
		responses = append(responses, s.propResponse(obj.Href, kindObject, requested))
	}
	s.mu.Unlock()

	s.logger.Debug("calendar-query answered", "collection", collection, "matches", len(responses))
	writeMultistatus(w, xml.EncodeMultistatus(responses))
}

// matches evaluates a comp-filter against comp. Callers hold s.mu.
func (s *Server) matches(node xml.FilterNode, comp *ical.Component) (bool, error) {
	filter, ok := node.(*xml.CompFilter)
	if !ok {
		return false, fmt.Errorf("filter root must be a comp-filter")
	}
	if name, ok := filter.Name.Get(); ok && !strings.EqualFold(name, comp.Name) {
		return false, nil
	}
	return s.matchChildren(filter.Children, comp)
}

func (s *Server) matchChildren(children []xml.FilterNode, comp *ical.Component) (bool, error) {
	for _, child := range children {
		var matched bool
		var err error
		switch f := child.(type) {
		case *xml.CompFilter:
			matched, err = s.matchSubcomponent(f, comp)
		case *xml.PropFilter:
			matched = matchProp(f, comp)
		case *xml.TimeRange:
			matched, err = s.matchTimeRange(f, comp)
		default:
			err = fmt.Errorf("unexpected %T below comp-filter", child)
		}
		if err != nil || !matched {
			return false, err
		}
	}
	return true, nil
}

func (s *Server) matchSubcomponent(f *xml.CompFilter, comp *ical.Component) (bool, error) {
	for _, sub := range comp.Children {
		matched, err := s.matches(f, sub)
		if err != nil || matched {
			return matched, err
		}
	}
	return false, nil
}

func (s *Server) matchTimeRange(tr *xml.TimeRange, comp *ical.Component) (bool, error) {
	span, ok := recur.SpanFromComponent(comp)
	if !ok {
		return false, nil
	}
	start := tr.Start.OrElse(farPast)
	end := tr.End.OrElse(farFuture)
	return s.engine.HasOccurrenceInRange(span, recur.InfoFromComponent(comp), start, end)
}

// matchProp applies a prop-filter. text-match is a substring test, case
// sensitive only under i;octet.
func matchProp(f *xml.PropFilter, comp *ical.Component) bool {
	name, ok := f.Name.Get()
	if !ok {
		return false
	}
	props := comp.Props[strings.ToUpper(name)]
	if len(props) == 0 {
		return false
	}
	for _, child := range f.Children {
		m, ok := child.(*xml.TextMatch)
		if !ok {
			continue
		}
		found := false
		for _, p := range props {
			if textMatches(m, p.Value) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func textMatches(m *xml.TextMatch, value string) bool {
	var contains bool
	if m.Collation.OrEmpty() == xml.CollationOctet {
		contains = strings.Contains(value, m.Text)
	} else {
		contains = strings.Contains(strings.ToLower(value), strings.ToLower(m.Text))
	}
	return contains != m.Negate
}

// handleFreeBusy answers with a VFREEBUSY listing every busy event of the
// writable collection inside the range.
func (s *Server) handleFreeBusy(w http.ResponseWriter, req *xml.FreeBusyRequest) {
	start, ok := req.TimeRange.Start.Get()
	if !ok {
		http.Error(w, "free-busy-query requires a start", http.StatusBadRequest)
		return
	}
	end := req.TimeRange.End.OrElse(start.AddDate(1, 0, 0))

	fb := ical.NewComponent(ical.CompFreeBusy)
	fb.Props.SetText(ical.PropUID, uuid.New().String())
	fb.Props.SetDateTime(ical.PropDateTimeStamp, time.Now().UTC())
	fb.Props.SetDateTime(ical.PropDateTimeStart, start.UTC())
	fb.Props.SetDateTime(ical.PropDateTimeEnd, end.UTC())

	s.mu.Lock()
	for _, obj := range s.store.members(CollectionPath) {
		for _, comp := range obj.Calendar.Children {
			periods, err := s.busyPeriods(comp, start, end)
			if err != nil {
				s.logger.Warn("skipping object in free-busy", "href", obj.Href, "error", err)
				continue
			}
			for _, occ := range periods {
				prop := ical.NewProp(ical.PropFreeBusy)
				prop.Params.Set(ical.ParamFreeBusyType, "BUSY")
				prop.Value = occ.Start.UTC().Format(xml.TimeFormat) + "/" + occ.End.UTC().Format(xml.TimeFormat)
				fb.Props.Add(prop)
			}
		}
	}
	s.mu.Unlock()

	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropProductID, "-//caldora-sync//davtest//EN")
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Children = append(cal.Children, fb)

	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(cal); err != nil {
		s.logger.Error("failed to encode free-busy", "error", err)
		http.Error(w, "Failed to encode free-busy", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

func (s *Server) busyPeriods(comp *ical.Component, start, end time.Time) ([]recur.Occurrence, error) {
	if comp.Name != ical.CompEvent {
		return nil, nil
	}
	if transp, _ := comp.Props.Text(ical.PropTransparency); strings.EqualFold(transp, "TRANSPARENT") {
		return nil, nil
	}
	if status, _ := comp.Props.Text(ical.PropStatus); strings.EqualFold(status, "CANCELLED") {
		return nil, nil
	}
	span, ok := recur.SpanFromComponent(comp)
	if !ok {
		return nil, nil
	}
	return s.engine.Occurrences(span, recur.InfoFromComponent(comp), start, end)
}
