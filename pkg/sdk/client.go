package sdk

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Client wires the session subsystem for one admin API: a credential store, a
// Gateway-backed HTTP client for the protected surface, the Session and a Guard.
type Client struct {
	baseURL string
	store   CredentialStore
	auth    *AuthAPI
	gateway *Gateway
	http    *http.Client
	session *Session
	guard   Guard
}

// ClientOptions configures SDK client construction.
type ClientOptions struct {
	HTTPClient    *http.Client
	Store         CredentialStore
	Logger        *slog.Logger
	Metrics       *Metrics
	Navigator     Navigator
	SuperRoles    []string
	Now           func() time.Time
	LoginPath     string
	ProtectedArea func(location string) bool
}

// ClientOption mutates ClientOptions.
type ClientOption func(*ClientOptions)

// WithHTTPClient overrides the HTTP client requests are sent through. Its
// transport sits underneath the Gateway.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(opts *ClientOptions) {
		opts.HTTPClient = client
	}
}

// WithCredentialStore sets where credentials and identity are persisted.
// Defaults to a fresh MemoryStore.
func WithCredentialStore(store CredentialStore) ClientOption {
	return func(opts *ClientOptions) {
		opts.Store = store
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) ClientOption {
	return func(opts *ClientOptions) {
		opts.Logger = logger
	}
}

// WithMetrics records Gateway activity.
func WithMetrics(m *Metrics) ClientOption {
	return func(opts *ClientOptions) {
		opts.Metrics = m
	}
}

// WithNavigator sets where expired sessions and guard redirects are sent.
func WithNavigator(nav Navigator) ClientOption {
	return func(opts *ClientOptions) {
		opts.Navigator = nav
	}
}

// WithClientSuperRoles names roles that hold every permission.
func WithClientSuperRoles(names ...string) ClientOption {
	return func(opts *ClientOptions) {
		opts.SuperRoles = append(opts.SuperRoles, names...)
	}
}

// WithClock overrides the clock used to judge token expiry.
func WithClock(now func() time.Time) ClientOption {
	return func(opts *ClientOptions) {
		opts.Now = now
	}
}

// WithLoginPath overrides LoginLocation.
func WithLoginPath(path string) ClientOption {
	return func(opts *ClientOptions) {
		opts.LoginPath = path
	}
}

// WithProtectedArea decides which locations redirect to login when the session
// expires. By default every location except the login path is protected.
func WithProtectedArea(match func(location string) bool) ClientOption {
	return func(opts *ClientOptions) {
		opts.ProtectedArea = match
	}
}

// NewClient creates a Client for the admin API at baseURL.
func NewClient(baseURL string, optFns ...ClientOption) *Client {
	opts := ClientOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.Store == nil {
		opts.Store = NewMemoryStore()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.LoginPath == "" {
		opts.LoginPath = LoginLocation
	}
	if opts.ProtectedArea == nil {
		loginPath := opts.LoginPath
		opts.ProtectedArea = func(location string) bool {
			return location != "" && !strings.HasPrefix(location, loginPath)
		}
	}
	baseURL = strings.TrimRight(baseURL, "/")

	transport := opts.HTTPClient.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	public := &http.Client{
		Transport: transport,
		Timeout:   opts.HTTPClient.Timeout,
		Jar:       opts.HTTPClient.Jar,
	}
	authAPI := NewAuthAPI(baseURL, public)

	var inspectorOpts []InspectorOption
	if opts.Now != nil {
		inspectorOpts = append(inspectorOpts, WithInspectorClock(opts.Now))
	}

	session := &Session{
		store:         opts.Store,
		inspector:     NewTokenInspector(inspectorOpts...),
		navigator:     opts.Navigator,
		protectedArea: opts.ProtectedArea,
		evalOpts:      []EvaluatorOption{WithSuperRoles(opts.SuperRoles...)},
		logger:        opts.Logger,
	}

	gateway := NewGateway(opts.Store, authAPI,
		WithTransport(transport),
		WithProtectedSurface(ProtectedSurface(baseURL)),
		WithGatewayHooks(GatewayHooks{
			OnRefreshed: session.onRefreshed,
			OnExpired:   session.onExpired,
		}),
		WithGatewayMetrics(opts.Metrics),
		WithGatewayLogger(opts.Logger),
	)
	protected := &http.Client{
		Transport: gateway,
		Timeout:   opts.HTTPClient.Timeout,
		Jar:       opts.HTTPClient.Jar,
	}
	session.api = authAPI.Protected(protected)

	return &Client{
		baseURL: baseURL,
		store:   opts.Store,
		auth:    session.api,
		gateway: gateway,
		http:    protected,
		session: session,
		guard:   Guard{LoginPath: opts.LoginPath},
	}
}

// BaseURL returns the admin API root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Session returns the session controller.
func (c *Client) Session() *Session {
	return c.session
}

// Store returns the credential store.
func (c *Client) Store() CredentialStore {
	return c.store
}

// Auth returns the auth endpoint client.
func (c *Client) Auth() *AuthAPI {
	return c.auth
}

// HTTPClient returns the http.Client that routes through the Gateway. Use it for
// any admin API call that needs the bearer credential.
func (c *Client) HTTPClient() *http.Client {
	return c.http
}

// Do sends a JSON request to the admin API through the Gateway and decodes the
// answer into out. A 401 that survives the refresh-and-retry matches
// ErrUnauthorized; a failed refresh matches ErrRefreshFailed.
func (c *Client) Do(ctx context.Context, method, path string, in, out any) error {
	return doJSON(ctx, c.http, c.baseURL, method, path, in, out)
}

// Authorize evaluates policy for location against the current session. A
// redirect decision is also handed to the Navigator.
func (c *Client) Authorize(policy Policy, location string) Decision {
	decision := c.guard.Evaluate(c.session.Snapshot(), policy, location)
	if decision.Outcome == OutcomeRedirect && c.session.navigator != nil {
		c.session.navigator.RedirectToLogin(decision.ReturnTo)
	}
	return decision
}
