// Package adminapitest runs an in-process admin API implementing the console's
// auth contract, for tests of the SDK and CLI.
package adminapitest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Default credentials of the seeded administrators.
const (
	AdminUsername    = "admin"
	AdminPassword    = "validpass"
	BillingUsername  = "billing"
	BillingPassword  = "billingpass"
	SupportUsername  = "support"
	SupportPassword  = "supportpass"
	LockedUsername   = "locked"
	DisabledUsername = "disabled"
	// SeedPassword is the password of the locked and disabled accounts.
	SeedPassword = "seedpass"
)

const defaultAccessTTL = 15 * time.Minute

// Role mirrors the role snapshot served by the admin API.
type Role struct {
	Name        string                     `json:"name"`
	Permissions map[string]map[string]bool `json:"permissions,omitempty"`
}

// Admin is a seeded administrator account.
type Admin struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Email     string `json:"email,omitempty"`
	Role      *Role  `json:"role,omitempty"`

	Password string `json:"-"`
	Locked   bool   `json:"-"`
	Disabled bool   `json:"-"`
}

type accessClaims struct {
	jwt.RegisteredClaims
	SessionID  string `json:"sid"`
	Generation int64  `json:"gen"`
}

type refreshGrant struct {
	adminID   string
	sessionID string
}

type tokens struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type ctxKey struct{}

// Server is a fake admin API backed by httptest.Server.
type Server struct {
	*httptest.Server

	secret    []byte
	accessTTL time.Duration

	mu           sync.Mutex
	admins       map[string]*Admin // by username
	grants       map[string]refreshGrant
	generation   int64
	failRefresh  bool
	refreshDelay time.Duration
	profileFail  int

	loginCalls   atomic.Int64
	refreshCalls atomic.Int64
	logoutCalls  atomic.Int64
	profileCalls atomic.Int64
	unauthorized atomic.Int64
}

// Option configures a Server.
type Option func(*Server)

// WithAccessTTL sets the lifetime of issued access tokens.
func WithAccessTTL(ttl time.Duration) Option {
	return func(s *Server) {
		s.accessTTL = ttl
	}
}

// WithAdmin seeds an additional administrator.
func WithAdmin(admin Admin) Option {
	return func(s *Server) {
		if admin.ID == "" {
			admin.ID = uuid.NewString()
		}
		s.admins[admin.Username] = &admin
	}
}

// New starts a Server with the default seed accounts. It is closed on test cleanup.
func New(t testing.TB, opts ...Option) *Server {
	t.Helper()

	s := &Server{
		secret:    []byte(uuid.NewString()),
		accessTTL: defaultAccessTTL,
		admins:    defaultAdmins(),
		grants:    make(map[string]refreshGrant),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.Server = httptest.NewServer(s.router())
	t.Cleanup(s.Close)
	return s
}

func defaultAdmins() map[string]*Admin {
	seed := []*Admin{
		{
			Username: AdminUsername, Password: AdminPassword,
			FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com",
			Role: &Role{Name: "super_admin", Permissions: map[string]map[string]bool{
				"users": {"read": true, "write": true},
			}},
		},
		{
			Username: BillingUsername, Password: BillingPassword,
			FirstName: "Bill", LastName: "Payne",
			Role: &Role{Name: "billing_admin", Permissions: map[string]map[string]bool{
				"finance": {"read": true, "write": true},
				"users":   {"read": true},
			}},
		},
		{
			Username: SupportUsername, Password: SupportPassword,
			Role: &Role{Name: "support", Permissions: map[string]map[string]bool{
				"calls": {"read": true},
				"users": {"read": true, "write": false},
			}},
		},
		{Username: LockedUsername, Password: SeedPassword, Locked: true, Role: &Role{Name: "support"}},
		{Username: DisabledUsername, Password: SeedPassword, Disabled: true, Role: &Role{Name: "support"}},
	}

	admins := make(map[string]*Admin, len(seed))
	for _, a := range seed {
		a.ID = uuid.NewString()
		admins[a.Username] = a
	}
	return admins
}

func (s *Server) router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Route("/api/admin", func(r chi.Router) {
		r.Post("/auth/login", s.handleLogin)
		r.Post("/auth/refresh", s.handleRefresh)

		r.Group(func(r chi.Router) {
			r.Use(s.authenticate)
			r.Post("/auth/logout", s.handleLogout)
			r.Post("/auth/logout-all", s.handleLogoutAll)
			r.Get("/auth/profile", s.handleProfile)
			r.Get("/users", s.handleListUsers)
			r.Post("/echo", s.handleEcho)
			r.Put("/echo", s.handleEcho)
		})
	})
	return r
}

// SetFailRefresh makes the refresh endpoint reject every refresh token.
func (s *Server) SetFailRefresh(fail bool) {
	s.mu.Lock()
	s.failRefresh = fail
	s.mu.Unlock()
}

// SetRefreshDelay delays refresh answers, widening the window for concurrent 401s.
func (s *Server) SetRefreshDelay(d time.Duration) {
	s.mu.Lock()
	s.refreshDelay = d
	s.mu.Unlock()
}

// SetProfileFailure makes the profile endpoint answer status (0 restores it).
func (s *Server) SetProfileFailure(status int) {
	s.mu.Lock()
	s.profileFail = status
	s.mu.Unlock()
}

// SetRole replaces the role of username.
func (s *Server) SetRole(username string, role *Role) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.admins[username]; ok {
		a.Role = role
	}
}

// RevokeAccessTokens makes every access token issued so far answer 401.
// Refresh tokens stay valid.
func (s *Server) RevokeAccessTokens() {
	s.mu.Lock()
	s.generation++
	s.mu.Unlock()
}

// IssueTokens mints credentials for username as a login would, with an access
// token expiring after ttl (which may be negative).
func (s *Server) IssueTokens(username string, ttl time.Duration) (accessToken, refreshToken string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	admin, ok := s.admins[username]
	if !ok {
		return "", ""
	}
	sid := uuid.NewString()
	refreshToken = uuid.NewString()
	s.grants[refreshToken] = refreshGrant{adminID: admin.ID, sessionID: sid}
	return s.signLocked(admin.ID, sid, ttl), refreshToken
}

// RefreshTokenValid reports whether the refresh token is still accepted.
func (s *Server) RefreshTokenValid(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.grants[token]
	return ok
}

func (s *Server) LoginCalls() int64 { return s.loginCalls.Load() }
func (s *Server) RefreshCalls() int64 { return s.refreshCalls.Load() }
func (s *Server) LogoutCalls() int64 { return s.logoutCalls.Load() }
func (s *Server) ProfileCalls() int64 { return s.profileCalls.Load() }
func (s *Server) Unauthorized() int64 { return s.unauthorized.Load() }

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	s.loginCalls.Add(1)

	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Username == "" || body.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	admin, ok := s.admins[body.Username]
	switch {
	case !ok || admin.Password != body.Password:
		writeError(w, http.StatusUnauthorized, "Invalid username or password")
		return
	case admin.Locked:
		writeError(w, http.StatusLocked, "Account is locked")
		return
	case admin.Disabled:
		writeError(w, http.StatusForbidden, "Account is disabled")
		return
	}

	sid := uuid.NewString()
	refresh := uuid.NewString()
	s.grants[refresh] = refreshGrant{adminID: admin.ID, sessionID: sid}

	writeJSON(w, http.StatusOK, map[string]any{
		"tokens": tokens{AccessToken: s.signLocked(admin.ID, sid, s.accessTTL), RefreshToken: refresh},
		"admin":  admin,
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.refreshCalls.Add(1)

	s.mu.Lock()
	delay := s.refreshDelay
	s.mu.Unlock()
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}

	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "refreshToken is required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	grant, ok := s.grants[body.RefreshToken]
	if !ok || s.failRefresh {
		writeError(w, http.StatusUnauthorized, "Invalid refresh token")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"tokens": tokens{
			AccessToken:  s.signLocked(grant.adminID, grant.sessionID, s.accessTTL),
			RefreshToken: body.RefreshToken,
		},
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.logoutCalls.Add(1)
	claims := r.Context().Value(ctxKey{}).(*accessClaims)

	s.mu.Lock()
	for token, grant := range s.grants {
		if grant.sessionID == claims.SessionID {
			delete(s.grants, token)
		}
	}
	s.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	s.logoutCalls.Add(1)
	claims := r.Context().Value(ctxKey{}).(*accessClaims)

	s.mu.Lock()
	for token, grant := range s.grants {
		if grant.adminID == claims.Subject {
			delete(s.grants, token)
		}
	}
	s.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	s.profileCalls.Add(1)
	claims := r.Context().Value(ctxKey{}).(*accessClaims)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.profileFail != 0 {
		writeError(w, s.profileFail, "profile unavailable")
		return
	}
	admin := s.adminByIDLocked(claims.Subject)
	if admin == nil {
		writeError(w, http.StatusUnauthorized, "Unknown administrator")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"admin": admin})
}

func (s *Server) handleListUsers(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	names := make([]string, 0, len(s.admins))
	for name := range s.admins {
		names = append(names, name)
	}
	s.mu.Unlock()
	sort.Strings(names)
	writeJSON(w, http.StatusOK, map[string]any{"users": names})
}

func (s *Server) handleEcho(w http.ResponseWriter, r *http.Request) {
	var body json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "body must be JSON")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"method": r.Method, "received": body})
}

// authenticate rejects requests without a valid, unrevoked bearer token.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || raw == "" {
			s.unauthorized.Add(1)
			writeError(w, http.StatusUnauthorized, "Missing bearer token")
			return
		}

		claims := &accessClaims{}
		_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
			return s.secret, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
		if err == nil {
			s.mu.Lock()
			if claims.Generation < s.generation {
				err = errors.New("token revoked")
			}
			s.mu.Unlock()
		}
		if err != nil {
			s.unauthorized.Add(1)
			writeError(w, http.StatusUnauthorized, "Invalid or expired token")
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, claims)))
	})
}

func (s *Server) signLocked(adminID, sessionID string, ttl time.Duration) string {
	now := time.Now()
	claims := accessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   adminID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		SessionID:  sessionID,
		Generation: s.generation,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		panic(err)
	}
	return signed
}

func (s *Server) adminByIDLocked(id string) *Admin {
	for _, a := range s.admins {
		if a.ID == id {
			return a
		}
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}
