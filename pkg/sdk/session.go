package sdk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// State is the authentication state of a Session.
type State int

const (
	StateUnauthenticated State = iota
	StateAuthenticating
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Event drives Session state transitions.
type Event int

const (
	EventLoginStarted Event = iota
	EventLoginSucceeded
	EventLoginFailed
	EventRestored
	EventTokenRefreshed
	EventLoggedOut
	EventExpired
)

func (e Event) String() string {
	switch e {
	case EventLoginStarted:
		return "login-started"
	case EventLoginSucceeded:
		return "login-succeeded"
	case EventLoginFailed:
		return "login-failed"
	case EventRestored:
		return "restored"
	case EventTokenRefreshed:
		return "token-refreshed"
	case EventLoggedOut:
		return "logged-out"
	case EventExpired:
		return "expired"
	default:
		return fmt.Sprintf("event(%d)", int(e))
	}
}

// transitions lists every legal (state, event) pair. Anything else is rejected.
var transitions = map[State]map[Event]State{
	StateUnauthenticated: {
		EventLoginStarted: StateAuthenticating,
		EventRestored:     StateAuthenticated,
		EventLoggedOut:    StateUnauthenticated,
		EventExpired:      StateUnauthenticated,
	},
	StateAuthenticating: {
		EventLoginSucceeded: StateAuthenticated,
		EventLoginFailed:    StateUnauthenticated,
		EventLoggedOut:      StateUnauthenticated,
		EventExpired:        StateUnauthenticated,
	},
	StateAuthenticated: {
		EventLoginStarted:   StateAuthenticating,
		EventTokenRefreshed: StateAuthenticated,
		EventLoggedOut:      StateUnauthenticated,
		EventExpired:        StateUnauthenticated,
	},
}

// Transition returns the state reached from s on e, or ErrInvalidTransition.
func Transition(s State, e Event) (State, error) {
	next, ok := transitions[s][e]
	if !ok {
		return s, fmt.Errorf("%w: %s while %s", ErrInvalidTransition, e, s)
	}
	return next, nil
}

// Navigator is the UI surface the Session redirects through when a session expires.
type Navigator interface {
	// CurrentLocation returns the location the user is currently on.
	CurrentLocation() string
	// RedirectToLogin sends the user to the login entry point, remembering returnTo.
	RedirectToLogin(returnTo string)
}

// Snapshot is a consistent view of a Session taken under a single lock.
type Snapshot struct {
	State        State
	Identity     *Identity
	ProfileError error
	Evaluator    *Evaluator
}

// Session owns the identity state of a console user: it drives login, logout and
// profile refresh, and answers permission questions from the cached identity.
type Session struct {
	store         CredentialStore
	api           *AuthAPI
	inspector     *TokenInspector
	navigator     Navigator
	protectedArea func(location string) bool
	evalOpts      []EvaluatorOption
	logger        *slog.Logger

	mu         sync.RWMutex
	state      State
	identity   *Identity
	lastError  string
	profileErr error
	// generation changes whenever a login or logout replaces the session, so
	// results of network calls started earlier can be recognised and dropped.
	generation uint64

	background sync.WaitGroup
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Identity returns a copy of the cached identity, or nil.
func (s *Session) Identity() *Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity.clone()
}

// LastError returns the user-facing message of the last failed login.
func (s *Session) LastError() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastError
}

// ProfileError returns the last profile load failure, or nil.
func (s *Session) ProfileError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.profileErr
}

func (s *Session) DisplayName() string {
	return s.Identity().DisplayName()
}

func (s *Session) Initials() string {
	return s.Identity().Initials()
}

// Evaluator returns a permission evaluator over the cached identity.
func (s *Session) Evaluator() *Evaluator {
	return NewEvaluator(s.Identity(), s.evalOpts...)
}

func (s *Session) HasPermission(resource, action string) bool {
	return s.Evaluator().HasPermission(resource, action)
}

func (s *Session) HasRole(name string) bool {
	return s.Evaluator().HasRole(name)
}

func (s *Session) HasAnyRole(names ...string) bool {
	return s.Evaluator().HasAnyRole(names...)
}

// Snapshot returns the state, identity and profile error as one consistent view.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	identity := s.identity.clone()
	snap := Snapshot{
		State:        s.state,
		Identity:     identity,
		ProfileError: s.profileErr,
	}
	s.mu.RUnlock()
	snap.Evaluator = NewEvaluator(identity, s.evalOpts...)
	return snap
}

// Login authenticates with username and password. On failure the session is
// Unauthenticated and LastError holds the message to show the user.
func (s *Session) Login(ctx context.Context, input LoginInput) error {
	s.mu.Lock()
	if err := s.fireLocked(EventLoginStarted); err != nil {
		s.mu.Unlock()
		return err
	}
	s.lastError = ""
	s.generation++
	gen := s.generation
	s.mu.Unlock()

	result, err := s.api.Login(ctx, input)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		return fmt.Errorf("login: %w", ErrSessionChanged)
	}
	if err == nil {
		err = s.persistLocked(result)
	}
	if err != nil {
		s.lastError = LoginErrorMessage(err)
		// A failed re-login must not leave the previous session behind.
		s.endLocked(EventLoginFailed)
		s.logger.Info("login failed", "username", input.Username, "error", err)
		return err
	}

	s.identity = result.Identity.clone()
	s.profileErr = nil
	_ = s.fireLocked(EventLoginSucceeded)
	s.logger.Info("logged in", "username", result.Identity.Username, "role", result.Identity.RoleName())
	return nil
}

func (s *Session) persistLocked(result *LoginResult) error {
	if err := s.store.SaveCredentials(result.Credentials); err != nil {
		return fmt.Errorf("failed to store credentials: %w", err)
	}
	if err := s.store.SaveIdentity(result.Identity); err != nil {
		_ = clearSession(s.store)
		return fmt.Errorf("failed to store identity: %w", err)
	}
	return nil
}

// Logout ends the session. The server is asked to invalidate the current refresh
// token (or every refresh token of the identity when all is set); whatever that
// call returns, local credentials and identity are cleared and the session is
// Unauthenticated. The returned error only reports the server call.
func (s *Session) Logout(ctx context.Context, all bool) error {
	var serverErr error
	creds, err := s.store.LoadCredentials()
	if err != nil {
		s.logger.Warn("failed to load credentials before logout", "error", err)
	}
	if creds != nil {
		if all {
			serverErr = s.api.LogoutAll(ctx)
		} else {
			serverErr = s.api.Logout(ctx)
		}
		if serverErr != nil {
			s.logger.Warn("server logout failed, clearing local session anyway", "all", all, "error", serverErr)
		}
	}

	s.mu.Lock()
	s.endLocked(EventLoggedOut)
	s.mu.Unlock()

	if serverErr != nil {
		return fmt.Errorf("logout: %w", serverErr)
	}
	return nil
}

// RefreshProfile re-fetches the identity snapshot. A failure is recorded as the
// profile error and returned; it never ends the session by itself.
func (s *Session) RefreshProfile(ctx context.Context) error {
	s.mu.RLock()
	state, gen := s.state, s.generation
	s.mu.RUnlock()
	if state != StateAuthenticated {
		return ErrNotAuthenticated
	}

	identity, err := s.api.Profile(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	current := gen == s.generation
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrProfileLoad, err)
		if current {
			s.profileErr = err
		}
		return err
	}
	if !current {
		return fmt.Errorf("profile: %w", ErrSessionChanged)
	}
	if err := s.store.SaveIdentity(identity); err != nil {
		s.logger.Warn("failed to cache identity", "error", err)
	}
	s.identity = identity.clone()
	s.profileErr = nil
	return nil
}

// Bootstrap restores a session from the store. With a live access token the
// cached identity is adopted at once and a profile refresh runs in the
// background, bounded by ctx; Wait joins it. Otherwise any stored leftovers are
// cleared and the session stays Unauthenticated.
func (s *Session) Bootstrap(ctx context.Context) error {
	creds, err := s.store.LoadCredentials()
	if err != nil {
		s.logger.Warn("failed to load stored credentials", "error", err)
	}
	if creds == nil || !s.inspector.IsLive(creds.AccessToken) {
		if err := clearSession(s.store); err != nil {
			return fmt.Errorf("failed to clear stale session: %w", err)
		}
		s.logger.Debug("no live session to restore")
		return nil
	}

	identity, err := s.store.LoadIdentity()
	if err != nil {
		s.logger.Warn("failed to load cached identity", "error", err)
	}

	s.mu.Lock()
	if err := s.fireLocked(EventRestored); err != nil {
		s.mu.Unlock()
		return err
	}
	s.identity = identity
	s.profileErr = nil
	gen := s.generation
	s.mu.Unlock()

	s.background.Add(1)
	go func() {
		defer s.background.Done()
		s.verifyRestored(ctx, gen)
	}()
	return nil
}

// verifyRestored refreshes the profile of a restored session. Authorization
// failures end the session; anything else leaves it in place with a profile error.
func (s *Session) verifyRestored(ctx context.Context, gen uint64) {
	err := s.RefreshProfile(ctx)
	if err == nil || errors.Is(err, ErrSessionChanged) || errors.Is(err, ErrNotAuthenticated) {
		return
	}
	if !isAuthorizationFailure(err) {
		s.logger.Warn("profile refresh failed, keeping restored session", "error", err)
		return
	}

	s.mu.Lock()
	if gen == s.generation {
		s.logger.Warn("restored session rejected by server, logging out", "error", err)
		s.endLocked(EventLoggedOut)
	}
	s.mu.Unlock()
}

// Wait blocks until background work started by Bootstrap has finished.
func (s *Session) Wait() {
	s.background.Wait()
}

func (s *Session) onRefreshed(context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fireLocked(EventTokenRefreshed); err != nil {
		s.logger.Debug("ignoring token refresh", "state", s.state)
	}
}

func (s *Session) onExpired(_ context.Context, cause error) {
	s.mu.Lock()
	s.endLocked(EventExpired)
	s.mu.Unlock()
	s.logger.Info("session expired", "error", cause)

	if s.navigator == nil {
		return
	}
	location := s.navigator.CurrentLocation()
	if s.protectedArea(location) {
		s.navigator.RedirectToLogin(location)
	}
}

// endLocked clears the stored and cached session and applies ev.
func (s *Session) endLocked(ev Event) {
	if err := clearSession(s.store); err != nil {
		s.logger.Error("failed to clear stored session", "error", err)
	}
	s.identity = nil
	s.profileErr = nil
	s.generation++
	_ = s.fireLocked(ev)
}

func (s *Session) fireLocked(ev Event) error {
	next, err := Transition(s.state, ev)
	if err != nil {
		return err
	}
	if next != s.state {
		s.logger.Debug("session state changed", "from", s.state, "to", next, "event", ev)
	}
	s.state = next
	return nil
}
