package sdk_test

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ringline/console/internal/adminapitest"
	"github.com/ringline/console/pkg/sdk"
)

type fakeNavigator struct {
	mu        sync.Mutex
	location  string
	redirects []string
}

func (n *fakeNavigator) CurrentLocation() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.location
}

func (n *fakeNavigator) RedirectToLogin(returnTo string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.redirects = append(n.redirects, returnTo)
}

func (n *fakeNavigator) Redirects() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.redirects...)
}

func newTestClient(t *testing.T, srv *adminapitest.Server, opts ...sdk.ClientOption) *sdk.Client {
	t.Helper()
	opts = append([]sdk.ClientOption{sdk.WithHTTPClient(srv.Client())}, opts...)
	return sdk.NewClient(srv.URL, opts...)
}

func login(t *testing.T, c *sdk.Client, username, password string) {
	t.Helper()
	require.NoError(t, c.Session().Login(context.Background(), sdk.LoginInput{Username: username, Password: password}))
}

func TestLoginThenTransparentRefresh(t *testing.T) {
	srv := adminapitest.New(t)
	store := sdk.NewMemoryStore()
	c := newTestClient(t, srv, sdk.WithCredentialStore(store))
	session := c.Session()

	assert.Equal(t, sdk.StateUnauthenticated, session.State())
	login(t, c, adminapitest.AdminUsername, adminapitest.AdminPassword)

	assert.Equal(t, sdk.StateAuthenticated, session.State())
	assert.Empty(t, session.LastError())
	assert.Equal(t, "Ada Lovelace", session.DisplayName())
	assert.Equal(t, "AL", session.Initials())
	assert.True(t, session.HasRole("super_admin"))

	creds, err := store.LoadCredentials()
	require.NoError(t, err)
	require.True(t, creds.Complete())
	refreshToken := creds.RefreshToken

	// Every access token issued so far is now rejected.
	srv.RevokeAccessTokens()

	var out struct {
		Users []string `json:"users"`
	}
	require.NoError(t, c.Do(context.Background(), http.MethodGet, "/api/admin/users", nil, &out))
	assert.Contains(t, out.Users, adminapitest.AdminUsername)

	assert.Equal(t, int64(1), srv.RefreshCalls())
	assert.Equal(t, int64(1), srv.Unauthorized())
	assert.Equal(t, sdk.StateAuthenticated, session.State())

	creds, err = store.LoadCredentials()
	require.NoError(t, err)
	assert.Equal(t, refreshToken, creds.RefreshToken)
}

func TestLoginFailures(t *testing.T) {
	tests := []struct {
		name        string
		input       sdk.LoginInput
		wantErr     error
		wantMessage string
		serverCalls int64
	}{
		{
			name:        "wrong password",
			input:       sdk.LoginInput{Username: adminapitest.AdminUsername, Password: "nope"},
			wantErr:     sdk.ErrInvalidCredentials,
			wantMessage: "Invalid username or password",
			serverCalls: 1,
		},
		{
			name:        "locked account",
			input:       sdk.LoginInput{Username: adminapitest.LockedUsername, Password: adminapitest.SeedPassword},
			wantErr:     sdk.ErrAccountLocked,
			wantMessage: "Your account is locked. Try again later or contact an administrator.",
			serverCalls: 1,
		},
		{
			name:        "disabled account",
			input:       sdk.LoginInput{Username: adminapitest.DisabledUsername, Password: adminapitest.SeedPassword},
			wantErr:     sdk.ErrAccountDisabled,
			wantMessage: "Your account has been disabled. Contact an administrator.",
			serverCalls: 1,
		},
		{
			name:        "missing fields",
			input:       sdk.LoginInput{},
			wantMessage: "username and password required",
			serverCalls: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := adminapitest.New(t)
			store := sdk.NewMemoryStore()
			c := newTestClient(t, srv, sdk.WithCredentialStore(store))

			err := c.Session().Login(context.Background(), tt.input)
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				var validation *sdk.ValidationError
				assert.ErrorAs(t, err, &validation)
			}

			assert.Equal(t, sdk.StateUnauthenticated, c.Session().State())
			assert.Equal(t, tt.wantMessage, c.Session().LastError())
			assert.Equal(t, tt.serverCalls, srv.LoginCalls())

			creds, err := store.LoadCredentials()
			require.NoError(t, err)
			assert.Nil(t, creds)
		})
	}
}

func TestFailedReloginEndsPreviousSession(t *testing.T) {
	srv := adminapitest.New(t)
	store := sdk.NewMemoryStore()
	c := newTestClient(t, srv, sdk.WithCredentialStore(store))
	session := c.Session()

	login(t, c, adminapitest.AdminUsername, adminapitest.AdminPassword)
	require.True(t, session.HasPermission("users", sdk.ActionRead))

	err := session.Login(context.Background(), sdk.LoginInput{Username: adminapitest.AdminUsername, Password: "wrong"})
	require.ErrorIs(t, err, sdk.ErrInvalidCredentials)

	assert.Equal(t, sdk.StateUnauthenticated, session.State())
	assert.Nil(t, session.Identity())
	assert.False(t, session.HasPermission("users", sdk.ActionRead))
	assert.NotEmpty(t, session.LastError())

	creds, err := store.LoadCredentials()
	require.NoError(t, err)
	assert.Nil(t, creds)
	identity, err := store.LoadIdentity()
	require.NoError(t, err)
	assert.Nil(t, identity)

	// No bearer is attached anymore, so the protected call is rejected.
	err = c.Do(context.Background(), http.MethodGet, "/api/admin/users", nil, nil)
	assert.Error(t, err)
}

func TestLogoutInvalidatesRefreshToken(t *testing.T) {
	srv := adminapitest.New(t)
	store := sdk.NewMemoryStore()
	c := newTestClient(t, srv, sdk.WithCredentialStore(store))
	login(t, c, adminapitest.AdminUsername, adminapitest.AdminPassword)

	creds, err := store.LoadCredentials()
	require.NoError(t, err)

	require.NoError(t, c.Session().Logout(context.Background(), false))

	assert.False(t, srv.RefreshTokenValid(creds.RefreshToken))
	assert.Equal(t, sdk.StateUnauthenticated, c.Session().State())
	assert.Nil(t, c.Session().Identity())
}

func TestLogoutAllInvalidatesEverySession(t *testing.T) {
	srv := adminapitest.New(t)
	first, second := sdk.NewMemoryStore(), sdk.NewMemoryStore()
	a := newTestClient(t, srv, sdk.WithCredentialStore(first))
	b := newTestClient(t, srv, sdk.WithCredentialStore(second))
	login(t, a, adminapitest.AdminUsername, adminapitest.AdminPassword)
	login(t, b, adminapitest.AdminUsername, adminapitest.AdminPassword)

	otherCreds, err := second.LoadCredentials()
	require.NoError(t, err)

	require.NoError(t, a.Session().Logout(context.Background(), true))
	assert.False(t, srv.RefreshTokenValid(otherCreds.RefreshToken))
}

func TestLogoutClearsLocallyWhenServerIsUnreachable(t *testing.T) {
	srv := adminapitest.New(t)
	store := sdk.NewMemoryStore()
	c := newTestClient(t, srv, sdk.WithCredentialStore(store))
	login(t, c, adminapitest.AdminUsername, adminapitest.AdminPassword)

	srv.Close()

	err := c.Session().Logout(context.Background(), false)
	assert.Error(t, err)

	creds, loadErr := store.LoadCredentials()
	require.NoError(t, loadErr)
	assert.Nil(t, creds)
	identity, loadErr := store.LoadIdentity()
	require.NoError(t, loadErr)
	assert.Nil(t, identity)
	assert.Equal(t, sdk.StateUnauthenticated, c.Session().State())
}

func TestRefreshFailureEndsSessionAndRedirects(t *testing.T) {
	srv := adminapitest.New(t)
	store := sdk.NewMemoryStore()
	nav := &fakeNavigator{location: "/users"}
	c := newTestClient(t, srv, sdk.WithCredentialStore(store), sdk.WithNavigator(nav))
	login(t, c, adminapitest.SupportUsername, adminapitest.SupportPassword)

	srv.SetFailRefresh(true)
	srv.RevokeAccessTokens()

	err := c.Do(context.Background(), http.MethodGet, "/api/admin/users", nil, nil)
	assert.ErrorIs(t, err, sdk.ErrRefreshFailed)

	creds, loadErr := store.LoadCredentials()
	require.NoError(t, loadErr)
	assert.Nil(t, creds)
	assert.Equal(t, sdk.StateUnauthenticated, c.Session().State())
	assert.Equal(t, []string{"/users"}, nav.Redirects())

	decision := c.Authorize(sdk.Policy{Permissions: []sdk.Requirement{{Resource: "users"}}}, "/users")
	assert.Equal(t, sdk.OutcomeRedirect, decision.Outcome)
	assert.Equal(t, "/login?returnTo=%2Fusers", decision.LoginURL())
}

func TestExpiryOutsideProtectedAreaDoesNotRedirect(t *testing.T) {
	srv := adminapitest.New(t)
	nav := &fakeNavigator{location: "/login"}
	c := newTestClient(t, srv, sdk.WithNavigator(nav))
	login(t, c, adminapitest.AdminUsername, adminapitest.AdminPassword)

	srv.SetFailRefresh(true)
	srv.RevokeAccessTokens()

	err := c.Do(context.Background(), http.MethodGet, "/api/admin/users", nil, nil)
	assert.ErrorIs(t, err, sdk.ErrRefreshFailed)
	assert.Empty(t, nav.Redirects())
}

func TestBootstrapRestoresLiveSession(t *testing.T) {
	srv := adminapitest.New(t)
	store := sdk.NewMemoryStore()
	access, refresh := srv.IssueTokens(adminapitest.AdminUsername, 15*time.Minute)
	require.NoError(t, store.SaveCredentials(&sdk.Credentials{AccessToken: access, RefreshToken: refresh}))
	// A stale cached identity is adopted first, then replaced by the server's.
	require.NoError(t, store.SaveIdentity(&sdk.Identity{Username: "admin", Role: &sdk.Role{Name: "support"}}))

	c := newTestClient(t, srv, sdk.WithCredentialStore(store))
	require.NoError(t, c.Session().Bootstrap(context.Background()))
	assert.Equal(t, sdk.StateAuthenticated, c.Session().State())

	c.Session().Wait()
	assert.Equal(t, int64(1), srv.ProfileCalls())
	assert.Equal(t, "super_admin", c.Session().Identity().RoleName())
	assert.NoError(t, c.Session().ProfileError())

	cached, err := store.LoadIdentity()
	require.NoError(t, err)
	assert.Equal(t, "super_admin", cached.RoleName())
}

func TestBootstrapClearsDeadCredentials(t *testing.T) {
	srv := adminapitest.New(t)
	expired, refresh := srv.IssueTokens(adminapitest.AdminUsername, -time.Minute)

	tests := map[string]string{
		"expired":   expired,
		"malformed": "not.a.jwt",
	}
	for name, access := range tests {
		t.Run(name, func(t *testing.T) {
			store := sdk.NewMemoryStore()
			require.NoError(t, store.SaveCredentials(&sdk.Credentials{AccessToken: access, RefreshToken: refresh}))
			require.NoError(t, store.SaveIdentity(&sdk.Identity{Username: "admin"}))

			c := newTestClient(t, srv, sdk.WithCredentialStore(store))
			require.NoError(t, c.Session().Bootstrap(context.Background()))
			c.Session().Wait()

			assert.Equal(t, sdk.StateUnauthenticated, c.Session().State())
			creds, _ := store.LoadCredentials()
			identity, _ := store.LoadIdentity()
			assert.Nil(t, creds)
			assert.Nil(t, identity)
		})
	}
	assert.Equal(t, int64(0), srv.ProfileCalls())
}

func TestBootstrapLogsOutWhenServerRejectsSession(t *testing.T) {
	srv := adminapitest.New(t)
	store := sdk.NewMemoryStore()
	access, refresh := srv.IssueTokens(adminapitest.AdminUsername, 15*time.Minute)
	require.NoError(t, store.SaveCredentials(&sdk.Credentials{AccessToken: access, RefreshToken: refresh}))

	srv.RevokeAccessTokens()
	srv.SetFailRefresh(true)

	c := newTestClient(t, srv, sdk.WithCredentialStore(store))
	require.NoError(t, c.Session().Bootstrap(context.Background()))
	c.Session().Wait()

	assert.Equal(t, sdk.StateUnauthenticated, c.Session().State())
	creds, _ := store.LoadCredentials()
	assert.Nil(t, creds)
}

func TestBootstrapKeepsSessionOnTransientProfileFailure(t *testing.T) {
	srv := adminapitest.New(t)
	store := sdk.NewMemoryStore()
	access, refresh := srv.IssueTokens(adminapitest.SupportUsername, 15*time.Minute)
	require.NoError(t, store.SaveCredentials(&sdk.Credentials{AccessToken: access, RefreshToken: refresh}))

	srv.SetProfileFailure(http.StatusInternalServerError)

	c := newTestClient(t, srv, sdk.WithCredentialStore(store))
	require.NoError(t, c.Session().Bootstrap(context.Background()))
	c.Session().Wait()

	assert.Equal(t, sdk.StateAuthenticated, c.Session().State())
	assert.ErrorIs(t, c.Session().ProfileError(), sdk.ErrProfileLoad)

	decision := c.Authorize(sdk.Policy{}, "/dashboard")
	assert.Equal(t, sdk.OutcomeProfileError, decision.Outcome)

	srv.SetProfileFailure(0)
	require.NoError(t, c.Session().RefreshProfile(context.Background()))
	assert.NoError(t, c.Session().ProfileError())
	assert.True(t, c.Authorize(sdk.Policy{Permissions: []sdk.Requirement{{Resource: "calls"}}}, "/calls").Allowed())
}

func TestRefreshProfilePicksUpRoleChange(t *testing.T) {
	srv := adminapitest.New(t)
	c := newTestClient(t, srv)
	login(t, c, adminapitest.SupportUsername, adminapitest.SupportPassword)
	assert.False(t, c.Session().HasPermission("finance", ""))

	srv.SetRole(adminapitest.SupportUsername, &adminapitest.Role{
		Name:        "billing_admin",
		Permissions: map[string]map[string]bool{"finance": {"read": true}},
	})
	require.NoError(t, c.Session().RefreshProfile(context.Background()))

	assert.True(t, c.Session().HasRole("billing_admin"))
	assert.True(t, c.Session().HasPermission("finance", ""))
	assert.True(t, c.Session().HasAnyRole("super_admin", "billing_admin"))
}

func TestRefreshProfileRequiresSession(t *testing.T) {
	srv := adminapitest.New(t)
	c := newTestClient(t, srv)

	assert.ErrorIs(t, c.Session().RefreshProfile(context.Background()), sdk.ErrNotAuthenticated)
	assert.Equal(t, int64(0), srv.ProfileCalls())
}

func TestSuperRoleConfiguredOnClient(t *testing.T) {
	srv := adminapitest.New(t)
	c := newTestClient(t, srv, sdk.WithClientSuperRoles("super_admin"))
	login(t, c, adminapitest.AdminUsername, adminapitest.AdminPassword)

	assert.True(t, c.Session().HasPermission("finance", "write"))
	assert.False(t, c.Session().HasRole("billing_admin"))
}

func TestTransitionTable(t *testing.T) {
	legal := []struct {
		from  sdk.State
		event sdk.Event
		to    sdk.State
	}{
		{sdk.StateUnauthenticated, sdk.EventLoginStarted, sdk.StateAuthenticating},
		{sdk.StateUnauthenticated, sdk.EventRestored, sdk.StateAuthenticated},
		{sdk.StateAuthenticating, sdk.EventLoginSucceeded, sdk.StateAuthenticated},
		{sdk.StateAuthenticating, sdk.EventLoginFailed, sdk.StateUnauthenticated},
		{sdk.StateAuthenticated, sdk.EventTokenRefreshed, sdk.StateAuthenticated},
		{sdk.StateAuthenticated, sdk.EventLoggedOut, sdk.StateUnauthenticated},
		{sdk.StateAuthenticated, sdk.EventExpired, sdk.StateUnauthenticated},
		{sdk.StateUnauthenticated, sdk.EventLoggedOut, sdk.StateUnauthenticated},
	}
	for _, tt := range legal {
		got, err := sdk.Transition(tt.from, tt.event)
		require.NoError(t, err, "%s on %s", tt.event, tt.from)
		assert.Equal(t, tt.to, got)
	}

	illegal := []struct {
		from  sdk.State
		event sdk.Event
	}{
		{sdk.StateUnauthenticated, sdk.EventTokenRefreshed},
		{sdk.StateUnauthenticated, sdk.EventLoginSucceeded},
		{sdk.StateAuthenticating, sdk.EventRestored},
		{sdk.StateAuthenticating, sdk.EventTokenRefreshed},
		{sdk.StateAuthenticated, sdk.EventRestored},
	}
	for _, tt := range illegal {
		got, err := sdk.Transition(tt.from, tt.event)
		assert.ErrorIs(t, err, sdk.ErrInvalidTransition, "%s on %s", tt.event, tt.from)
		assert.Equal(t, tt.from, got)
	}
}
