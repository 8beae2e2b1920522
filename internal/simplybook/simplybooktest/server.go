// Package simplybooktest provides an in-process fake of the provider's JSON-RPC API.
package simplybooktest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

const (
	Company  = "acme-school"
	User     = "api-user"
	Password = "api-secret"
	Token    = "token-123"
)

// Call records one request received by the fake.
type Call struct {
	Path    string
	Method  string
	Params  []json.RawMessage
	Company string
	Token   string
}

type failure struct {
	status  int
	code    int
	message string
}

// Server answers getUserToken, getBookingDetails and getClientInfo from
// in-memory fixtures.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	token    string
	bookings map[string]json.RawMessage
	clients  map[string]json.RawMessage
	failures map[string]failure
	delay    time.Duration
	calls    []Call
}

func NewServer() *Server {
	s := &Server{
		token:    Token,
		bookings: map[string]json.RawMessage{},
		clients:  map[string]json.RawMessage{},
		failures: map[string]failure{},
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	return s
}

// SetToken changes the token issued by getUserToken. An empty token makes the
// exchange return an empty result.
func (s *Server) SetToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
}

func (s *Server) AddBooking(id, payload string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bookings[id] = json.RawMessage(payload)
}

func (s *Server) AddClient(id, payload string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[id] = json.RawMessage(payload)
}

// FailRPC makes every call to method answer with a JSON-RPC error envelope.
func (s *Server) FailRPC(method string, code int, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[method] = failure{status: http.StatusOK, code: code, message: message}
}

// FailHTTP makes every call to method answer with a bare HTTP status.
func (s *Server) FailHTTP(method string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[method] = failure{status: status}
}

// SetDelay holds every response for d.
func (s *Server) SetDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
}

func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// CallCount returns how many times method was called, or all calls for "".
func (s *Server) CallCount(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if method == "" {
		return len(s.calls)
	}
	n := 0
	for _, c := range s.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

type envelope struct {
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
	ID     any               `json:"id"`
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	var req envelope
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad envelope", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.calls = append(s.calls, Call{
		Path:    r.URL.Path,
		Method:  req.Method,
		Params:  req.Params,
		Company: r.Header.Get("X-Company-Login"),
		Token:   r.Header.Get("X-User-Token"),
	})
	delay := s.delay
	fail, failing := s.failures[req.Method]
	token := s.token
	var result json.RawMessage
	var found bool
	switch req.Method {
	case "getBookingDetails":
		result, found = s.bookings[param(req.Params)]
	case "getClientInfo":
		result, found = s.clients[param(req.Params)]
	}
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}

	if failing {
		if fail.code == 0 {
			w.WriteHeader(fail.status)
			return
		}
		writeError(w, req.ID, fail.code, fail.message)
		return
	}

	switch req.Method {
	case "getUserToken":
		if r.URL.Path != "/login" || param(req.Params) != Company {
			writeError(w, req.ID, -32000, "wrong login endpoint or company")
			return
		}
		if len(req.Params) != 3 || unquote(req.Params[1]) != User || unquote(req.Params[2]) != Password {
			writeError(w, req.ID, -32001, "invalid credentials")
			return
		}
		raw, _ := json.Marshal(token)
		writeResult(w, req.ID, raw)
	case "getBookingDetails", "getClientInfo":
		if r.URL.Path != "/admin" || r.Header.Get("X-Company-Login") != Company || r.Header.Get("X-User-Token") != token {
			writeError(w, req.ID, -32600, "access denied")
			return
		}
		if !found {
			writeResult(w, req.ID, json.RawMessage("null"))
			return
		}
		writeResult(w, req.ID, result)
	default:
		writeError(w, req.ID, -32601, "method not found")
	}
}

func param(params []json.RawMessage) string {
	if len(params) == 0 {
		return ""
	}
	return unquote(params[0])
}

func unquote(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func writeResult(w http.ResponseWriter, id any, result json.RawMessage) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": id, "result": result})
}

func writeError(w http.ResponseWriter, id any, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"error":   map[string]any{"code": code, "message": message},
	})
}
