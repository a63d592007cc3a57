// Package davtest runs an in-memory CalDAV server for tests. It serves one
// principal with a calendar home holding a writable task collection and a
// read-only calendar, and speaks enough of RFC 4791 for the client:
// PROPFIND, calendar-query and free-busy-query REPORTs, GET, PUT, POST to
// an add-member URL and DELETE.
package davtest

import (
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/cyp0633/caldora-sync/internal/recur"
)

// Fixed resource paths
const (
	PrincipalPath          = "/principals/alice/"
	HomePath               = "/calendars/alice/"
	CollectionPath         = "/calendars/alice/tasks/"
	AddMemberPath          = "/calendars/alice/tasks/;add-member"
	ReadOnlyCollectionPath = "/calendars/alice/holidays/"
	InboxPath              = "/calendars/alice/inbox/"
	WellKnownPath          = "/.well-known/caldav"
)

// Server is a CalDAV server backed by an in-memory store.
type Server struct {
	*httptest.Server

	logger    *slog.Logger
	addMember bool
	username  string
	password  string
	engine    *recur.Engine

	mu       sync.Mutex
	store    *store
	requests map[string]int
	writes   map[string]int
	failures map[string]int // UID -> status
}

// Option configures a Server
type Option func(*Server)

// WithoutAddMember hides the add-member URL so clients fall back to PUT.
func WithoutAddMember() Option {
	return func(s *Server) { s.addMember = false }
}

// WithBasicAuth makes every request require the given credentials.
func WithBasicAuth(username, password string) Option {
	return func(s *Server) {
		s.username = username
		s.password = password
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// New starts a server. Call Close when done.
func New(opts ...Option) *Server {
	s := &Server{
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		addMember: true,
		engine:    recur.NewEngine(),
		store:     newStore(),
		requests:  make(map[string]int),
		writes:    make(map[string]int),
		failures:  make(map[string]int),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Server = httptest.NewServer(s)
	return s
}

// CollectionURL returns the absolute URL of the writable collection.
func (s *Server) CollectionURL() string {
	return s.URL + CollectionPath
}

// Requests returns how many requests with method were received.
func (s *Server) Requests(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[method]
}

// Writes returns how many PUT, POST and DELETE requests changed the store.
func (s *Server) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, n := range s.writes {
		total += n
	}
	return total
}

// FailUID makes every write whose body carries uid answer with status.
func (s *Server) FailUID(uid string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[uid] = status
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.requests[r.Method]++
	s.mu.Unlock()
	s.logger.Debug("request received", "method", r.Method, "path", r.URL.Path)

	if s.username != "" && !s.checkAuth(r) {
		w.Header().Set("WWW-Authenticate", `Basic realm="davtest"`)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	switch r.Method {
	case "PROPFIND":
		s.handlePropfind(w, r)
	case "REPORT":
		s.handleReport(w, r)
	case http.MethodGet:
		s.handleGet(w, r)
	case http.MethodPut:
		s.handlePut(w, r)
	case http.MethodPost:
		s.handlePost(w, r)
	case http.MethodDelete:
		s.handleDelete(w, r)
	default:
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) checkAuth(r *http.Request) bool {
	encoded, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Basic ")
	if !ok {
		return false
	}
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return false
	}
	return string(decoded) == fmt.Sprintf("%s:%s", s.username, s.password)
}

func (s *Server) injectedFailure(body []byte) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for uid, status := range s.failures {
		if strings.Contains(string(body), "UID:"+uid+"\r\n") || strings.Contains(string(body), "UID:"+uid+"\n") {
			return status, true
		}
	}
	return 0, false
}
