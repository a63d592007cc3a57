package davtest

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/emersion/go-ical"
	"github.com/google/uuid"
)

// Object is a stored calendar object
type Object struct {
	Href     string
	ETag     string
	Data     string
	Calendar *ical.Calendar
}

type store struct {
	objects  map[string]*Object // key: path
	revision int
}

func newStore() *store {
	return &store{objects: make(map[string]*Object)}
}

func generateETag(data []byte) string {
	hash := sha1.Sum(data)
	return `"` + hex.EncodeToString(hash[:]) + `"`
}

func parseCalendar(data []byte) (*ical.Calendar, error) {
	data = bytes.ReplaceAll(bytes.TrimSpace(data), []byte("\r\n"), []byte("\n"))
	data = append(bytes.ReplaceAll(data, []byte("\n"), []byte("\r\n")), '\r', '\n')
	cal, err := ical.NewDecoder(bytes.NewReader(data)).Decode()
	if err != nil {
		return nil, fmt.Errorf("failed to decode calendar: %w", err)
	}
	return cal, nil
}

func (st *store) put(path string, data []byte, cal *ical.Calendar) *Object {
	st.revision++
	obj := &Object{Href: path, ETag: generateETag(data), Data: string(data), Calendar: cal}
	st.objects[path] = obj
	return obj
}

func (st *store) delete(path string) {
	st.revision++
	delete(st.objects, path)
}

// members returns the objects directly inside collection, sorted by path.
func (st *store) members(collection string) []*Object {
	var out []*Object
	for path, obj := range st.objects {
		rest, ok := strings.CutPrefix(path, collection)
		if ok && rest != "" && !strings.Contains(rest, "/") {
			out = append(out, obj)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Href < out[j].Href })
	return out
}

// uidConflict reports whether another object in collection carries uid.
func (st *store) uidConflict(collection, path, uid string) bool {
	for _, obj := range st.members(collection) {
		if obj.Href != path && calendarUID(obj.Calendar) == uid {
			return true
		}
	}
	return false
}

func (st *store) ctag() string {
	return strconv.Itoa(st.revision)
}

func calendarUID(cal *ical.Calendar) string {
	for _, child := range cal.Children {
		if uid, err := child.Props.Text(ical.PropUID); err == nil && uid != "" {
			return uid
		}
	}
	return ""
}

// Seed stores ics as a new object in the writable collection and returns
// its href and ETag. It panics on invalid data.
func (s *Server) Seed(ics string) (href, etag string) {
	return s.SeedAt(CollectionPath+uuid.New().String()+".ics", ics)
}

// SeedAt stores ics at path.
func (s *Server) SeedAt(path, ics string) (href, etag string) {
	cal, err := parseCalendar([]byte(ics))
	if err != nil {
		panic(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	obj := s.store.put(path, []byte(ics), cal)
	return obj.Href, obj.ETag
}

// Replace changes the stored object at path as another client would,
// giving it a new ETag.
func (s *Server) Replace(path, ics string) string {
	_, etag := s.SeedAt(path, ics)
	return etag
}

// Object returns the object stored at path.
func (s *Server) Object(path string) (Object, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.store.objects[path]
	if !ok {
		return Object{}, false
	}
	return *obj, true
}

// Objects returns the objects of the writable collection, sorted by href.
func (s *Server) Objects() []Object {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Object
	for _, obj := range s.store.members(CollectionPath) {
		out = append(out, *obj)
	}
	return out
}

// ObjectByUID returns the object of the writable collection carrying uid.
func (s *Server) ObjectByUID(uid string) (Object, bool) {
	for _, obj := range s.Objects() {
		if calendarUID(obj.Calendar) == uid {
			return obj, true
		}
	}
	return Object{}, false
}

// Todo returns a minimal VTODO calendar.
func Todo(uid, summary string) string {
	return "BEGIN:VCALENDAR\r\nVERSION:2.0\r\nPRODID:-//caldora-sync//davtest//EN\r\n" +
		"BEGIN:VTODO\r\nUID:" + uid + "\r\nDTSTAMP:20240101T000000Z\r\nSUMMARY:" + summary + "\r\n" +
		"END:VTODO\r\nEND:VCALENDAR\r\n"
}

// Event returns a VEVENT calendar; rrule may be empty.
func Event(uid, summary, start, end, rrule string) string {
	var extra string
	if rrule != "" {
		extra = "RRULE:" + rrule + "\r\n"
	}
	return "BEGIN:VCALENDAR\r\nVERSION:2.0\r\nPRODID:-//caldora-sync//davtest//EN\r\n" +
		"BEGIN:VEVENT\r\nUID:" + uid + "\r\nDTSTAMP:20240101T000000Z\r\n" +
		"DTSTART:" + start + "\r\nDTEND:" + end + "\r\nSUMMARY:" + summary + "\r\n" + extra +
		"END:VEVENT\r\nEND:VCALENDAR\r\n"
}
