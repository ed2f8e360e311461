// Package apifake is an in-process admin API for tests: the identity
// endpoints plus a small requests resource that demands a bearer credential.
package apifake

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/jrsteele09/go-auth-client/users"
)

// Counts records how often each endpoint was hit.
type Counts struct {
	Login    int
	Register int
	Refresh  int
	Logout   int
	Profile  int
	Resource int
}

type Server struct {
	srv *httptest.Server

	lock      sync.Mutex
	passwords map[string]string
	profiles  map[string]*users.Profile
	access    map[string]string // access credential to email
	refresh   map[string]string // refresh credential to email
	issued    int
	rotate    bool

	failLogout     bool
	refreshGate    chan struct{}
	refreshStarted chan struct{}
	requestIDs     []string

	counts Counts
}

// New starts the server. Callers must Close it.
func New() *Server {
	s := &Server{
		passwords: make(map[string]string),
		profiles:  make(map[string]*users.Profile),
		access:    make(map[string]string),
		refresh:   make(map[string]string),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login", s.login)
	mux.HandleFunc("POST /api/auth/register", s.register)
	mux.HandleFunc("POST /api/auth/refresh", s.renew)
	mux.HandleFunc("POST /api/auth/logout", s.logout)
	mux.HandleFunc("POST /api/auth/forgot", s.ok)
	mux.HandleFunc("POST /api/auth/reset", s.ok)
	mux.HandleFunc("GET /api/users/me", s.me)
	mux.HandleFunc("GET /api/requests", s.listRequests)
	mux.HandleFunc("POST /api/requests", s.createRequest)
	s.srv = httptest.NewServer(mux)
	return s
}

func (s *Server) Close() {
	s.srv.Close()
}

// APIURL is the base URL the clients should be configured with.
func (s *Server) APIURL() string {
	return s.srv.URL + "/api"
}

func (s *Server) AddAccount(email, password string, profile *users.Profile) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.passwords[email] = password
	s.profiles[email] = profile
}

// ExpireAccess invalidates every access credential issued so far.
func (s *Server) ExpireAccess() {
	s.lock.Lock()
	defer s.lock.Unlock()
	clear(s.access)
}

// RevokeRefresh invalidates every refresh credential issued so far.
func (s *Server) RevokeRefresh() {
	s.lock.Lock()
	defer s.lock.Unlock()
	clear(s.refresh)
}

// RotateRefresh makes renew calls also hand out a new refresh credential
// and invalidate the old one.
func (s *Server) RotateRefresh() {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.rotate = true
}

func (s *Server) FailLogout() {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.failLogout = true
}

// BlockRefresh holds renew calls until release is called.
func (s *Server) BlockRefresh() (started <-chan struct{}, release func()) {
	s.lock.Lock()
	defer s.lock.Unlock()
	gate := make(chan struct{})
	s.refreshGate = gate
	s.refreshStarted = make(chan struct{}, 64)
	var once sync.Once
	return s.refreshStarted, func() { once.Do(func() { close(gate) }) }
}

func (s *Server) Calls() Counts {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.counts
}

// RequestIDs lists the X-Request-ID of every resource call, in arrival order.
func (s *Server) RequestIDs() []string {
	s.lock.Lock()
	defer s.lock.Unlock()
	return append([]string(nil), s.requestIDs...)
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "malformed body"})
		return
	}

	s.lock.Lock()
	defer s.lock.Unlock()
	s.counts.Login++
	if password, ok := s.passwords[req.Email]; !ok || password != req.Password {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "message": "invalid credentials"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": s.issuePairLocked(req.Email)})
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" || req.Password == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "email and password are required"})
		return
	}

	s.lock.Lock()
	defer s.lock.Unlock()
	s.counts.Register++
	if _, exists := s.passwords[req.Email]; exists {
		writeJSON(w, http.StatusConflict, map[string]any{"success": false, "message": "email already registered"})
		return
	}
	s.passwords[req.Email] = req.Password
	s.profiles[req.Email] = users.NewProfile(fmt.Sprintf("u-%d", len(s.passwords)), req.Name, req.Email, []string{"user"}, nil)
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "data": s.issuePairLocked(req.Email)})
}

func (s *Server) renew(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	s.lock.Lock()
	s.counts.Refresh++
	gate, started := s.refreshGate, s.refreshStarted
	s.lock.Unlock()

	if gate != nil {
		started <- struct{}{}
		<-gate
	}

	s.lock.Lock()
	defer s.lock.Unlock()
	email, ok := s.refresh[req.RefreshToken]
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "message": "refresh token revoked"})
		return
	}

	s.issued++
	data := map[string]string{"accessToken": fmt.Sprintf("access-%d", s.issued)}
	s.access[data["accessToken"]] = email
	if s.rotate {
		delete(s.refresh, req.RefreshToken)
		data["refreshToken"] = fmt.Sprintf("refresh-%d", s.issued)
		s.refresh[data["refreshToken"]] = email
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": data})
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	s.lock.Lock()
	defer s.lock.Unlock()
	s.counts.Logout++
	if s.failLogout {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "message": "revocation unavailable"})
		return
	}
	delete(s.refresh, req.RefreshToken)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "logged out"})
}

func (s *Server) ok(w http.ResponseWriter, r *http.Request) {
	_, _ = io.Copy(io.Discard, r.Body)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "ok"})
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.counts.Profile++

	email, ok := s.authorizedLocked(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "unauthorized"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": s.profiles[email]})
}

func (s *Server) listRequests(w http.ResponseWriter, r *http.Request) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.counts.Resource++
	s.requestIDs = append(s.requestIDs, r.Header.Get("X-Request-ID"))

	if _, ok := s.authorizedLocked(r); !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "unauthorized"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": []map[string]string{
		{"id": "req-1", "title": "Printer on floor 2", "status": "open"},
	}})
}

func (s *Server) createRequest(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	s.lock.Lock()
	defer s.lock.Unlock()
	s.counts.Resource++
	s.requestIDs = append(s.requestIDs, r.Header.Get("X-Request-ID"))

	if _, ok := s.authorizedLocked(r); !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "unauthorized"})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"data": json.RawMessage(body)})
}

func (s *Server) authorizedLocked(r *http.Request) (string, bool) {
	raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return "", false
	}
	email, ok := s.access[raw]
	return email, ok
}

func (s *Server) issuePairLocked(email string) map[string]string {
	s.issued++
	pair := map[string]string{
		"accessToken":  fmt.Sprintf("access-%d", s.issued),
		"refreshToken": fmt.Sprintf("refresh-%d", s.issued),
	}
	s.access[pair["accessToken"]] = email
	s.refresh[pair["refreshToken"]] = email
	return pair
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
