package davtest

import (
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	obj, ok := s.Object(r.URL.Path)
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("ETag", obj.ETag)
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, obj.Data)
}

// etagListMatches reports whether header (an If-Match or If-None-Match
// value) names etag.
func etagListMatches(header, etag string) bool {
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || candidate == etag {
			return true
		}
	}
	return false
}

// checkPreconditions returns the status to fail with, or 0. existing is
// nil when nothing is stored at the target.
func checkPreconditions(r *http.Request, existing *Object) int {
	ifMatch := r.Header.Get("If-Match")
	ifNone := r.Header.Get("If-None-Match")
	if existing == nil {
		if ifMatch != "" {
			return http.StatusPreconditionFailed
		}
		return 0
	}
	if ifMatch != "" && !etagListMatches(ifMatch, existing.ETag) {
		return http.StatusPreconditionFailed
	}
	if ifNone != "" && etagListMatches(ifNone, existing.ETag) {
		return http.StatusPreconditionFailed
	}
	return 0
}

func (s *Server) handlePut(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	parent := path[:strings.LastIndex(path, "/")+1]
	switch {
	case parent == ReadOnlyCollectionPath:
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	case parent != CollectionPath || path == parent:
		http.Error(w, "Conflict", http.StatusConflict)
		return
	}
	s.saveObject(w, r, path, false)
}

func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	if !s.addMember || r.URL.Path != AddMemberPath {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	s.saveObject(w, r, CollectionPath+uuid.New().String()+".ics", true)
}

// saveObject runs the checks shared by PUT and POST, then writes the object.
func (s *Server) saveObject(w http.ResponseWriter, r *http.Request, path string, created bool) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read body", http.StatusInternalServerError)
		return
	}
	if status, ok := s.injectedFailure(data); ok {
		http.Error(w, http.StatusText(status), status)
		return
	}
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "text/calendar") {
		http.Error(w, "Unsupported Media Type", http.StatusUnsupportedMediaType)
		return
	}
	cal, err := parseCalendar(data)
	if err != nil {
		s.logger.Warn("invalid iCalendar data", "error", err)
		http.Error(w, "Invalid iCalendar data", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	existing := s.store.objects[path]
	if status := checkPreconditions(r, existing); status != 0 {
		s.mu.Unlock()
		s.logger.Debug("precondition failed", "path", path)
		http.Error(w, "Precondition Failed", status)
		return
	}
	if s.store.uidConflict(CollectionPath, path, calendarUID(cal)) {
		s.mu.Unlock()
		http.Error(w, "UID already in use", http.StatusForbidden)
		return
	}
	obj := s.store.put(path, data, cal)
	s.writes[r.Method]++
	s.mu.Unlock()

	w.Header().Set("ETag", obj.ETag)
	if existing == nil || created {
		w.Header().Set("Location", path)
		w.WriteHeader(http.StatusCreated)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	s.mu.Lock()
	existing, ok := s.store.objects[path]
	if !ok {
		s.mu.Unlock()
		http.NotFound(w, r)
		return
	}
	if status := checkPreconditions(r, existing); status != 0 {
		s.mu.Unlock()
		http.Error(w, "Precondition Failed", status)
		return
	}
	s.store.delete(path)
	s.writes[r.Method]++
	s.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}
