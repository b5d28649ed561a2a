package sdk

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/sync/singleflight"
)

// errNoRefreshToken is the refresh-exhaustion cause when nothing can be refreshed.
var errNoRefreshToken = errors.New("no refresh token stored")

const refreshKey = "refresh"

// Refresher exchanges a refresh token for new credentials.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*Credentials, error)
}

// RefresherFunc adapts a function to Refresher.
type RefresherFunc func(ctx context.Context, refreshToken string) (*Credentials, error)

// Refresh calls f.
func (f RefresherFunc) Refresh(ctx context.Context, refreshToken string) (*Credentials, error) {
	return f(ctx, refreshToken)
}

// GatewayHooks are notified of refresh outcomes. Both run at most once per refresh,
// however many requests were waiting on it.
type GatewayHooks struct {
	// OnRefreshed runs after a new access token has been stored.
	OnRefreshed func(ctx context.Context)
	// OnExpired runs after the stored session was cleared because refresh failed.
	OnExpired func(ctx context.Context, cause error)
}

// Gateway is an http.RoundTripper that attaches the stored bearer token to
// protected admin API requests and, on 401, performs a single coalesced refresh
// and replays the request once.
type Gateway struct {
	base      http.RoundTripper
	store     CredentialStore
	refresher Refresher
	protected func(*http.Request) bool
	hooks     GatewayHooks
	metrics   *Metrics
	logger    *slog.Logger

	group singleflight.Group
}

var _ http.RoundTripper = (*Gateway)(nil)

// GatewayOption configures a Gateway.
type GatewayOption func(*Gateway)

// WithTransport sets the transport requests are sent through. Defaults to http.DefaultTransport.
func WithTransport(rt http.RoundTripper) GatewayOption {
	return func(g *Gateway) {
		if rt != nil {
			g.base = rt
		}
	}
}

// WithProtectedSurface overrides which requests get credentials and refresh handling.
func WithProtectedSurface(match func(*http.Request) bool) GatewayOption {
	return func(g *Gateway) {
		if match != nil {
			g.protected = match
		}
	}
}

// WithGatewayHooks sets the refresh outcome hooks.
func WithGatewayHooks(hooks GatewayHooks) GatewayOption {
	return func(g *Gateway) {
		g.hooks = hooks
	}
}

// WithGatewayMetrics records gateway activity in m.
func WithGatewayMetrics(m *Metrics) GatewayOption {
	return func(g *Gateway) {
		g.metrics = m
	}
}

// WithGatewayLogger sets the logger. Defaults to slog.Default().
func WithGatewayLogger(logger *slog.Logger) GatewayOption {
	return func(g *Gateway) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// NewGateway creates a Gateway backed by store that refreshes through refresher.
// Without WithProtectedSurface every request under ProtectedPrefix, except the
// login and refresh endpoints, is treated as protected.
func NewGateway(store CredentialStore, refresher Refresher, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		base:      http.DefaultTransport,
		store:     store,
		refresher: refresher,
		protected: ProtectedSurface(""),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// ProtectedSurface returns a matcher for the admin API rooted at baseURL. When
// baseURL names a host, requests to other hosts never receive credentials.
func ProtectedSurface(baseURL string) func(*http.Request) bool {
	var host, basePath string
	if u, err := url.Parse(baseURL); err == nil {
		host = u.Host
		basePath = strings.TrimRight(u.Path, "/")
	}
	prefix := basePath + ProtectedPrefix
	login := basePath + PathLogin
	refresh := basePath + PathRefresh

	return func(r *http.Request) bool {
		if r.URL == nil {
			return false
		}
		if host != "" && r.URL.Host != host {
			return false
		}
		p := r.URL.Path
		if !strings.HasPrefix(p, prefix) {
			return false
		}
		return p != login && p != refresh
	}
}

// RoundTrip implements http.RoundTripper.
func (g *Gateway) RoundTrip(req *http.Request) (*http.Response, error) {
	if !g.protected(req) {
		return g.base.RoundTrip(req)
	}

	getBody, err := replayableBody(req)
	if err != nil {
		return nil, err
	}

	token := g.accessToken()
	first, err := authorize(req, req.Context(), token, getBody)
	if err != nil {
		return nil, err
	}

	resp, err := g.base.RoundTrip(first)
	if err != nil {
		g.metrics.request("transport_error")
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized || isRetry(req.Context()) {
		g.metrics.request(outcomeFor(resp))
		return resp, nil
	}
	discard(resp)

	g.logger.Debug("admin api answered 401, refreshing session", "path", req.URL.Path)
	fresh, err := g.refresh(req.Context(), token)
	if err != nil {
		g.metrics.request("refresh_failed")
		return nil, err
	}

	retry, err := authorize(req, markRetry(req.Context()), fresh, getBody)
	if err != nil {
		return nil, err
	}
	resp, err = g.base.RoundTrip(retry)
	switch {
	case err != nil:
		g.metrics.retry("error")
		g.metrics.request("transport_error")
		return nil, err
	case resp.StatusCode == http.StatusUnauthorized:
		g.logger.Warn("admin api rejected refreshed token", "path", req.URL.Path)
		g.metrics.retry("unauthorized")
	default:
		g.metrics.retry("ok")
	}
	g.metrics.request(outcomeFor(resp))
	return resp, nil
}

// refresh returns an access token to replay with. Concurrent callers share one
// refresh; the refresh itself is detached from any single caller's cancellation.
// A caller that joined a refresh started for an older token may get back the very
// token it was rejected with, in which case it starts one more refresh of its own.
func (g *Gateway) refresh(ctx context.Context, stale string) (string, error) {
	token, err := g.sharedRefresh(ctx, stale)
	if err != nil || token != stale {
		return token, err
	}
	g.logger.Debug("shared refresh returned the rejected token, refreshing again")
	return g.sharedRefresh(ctx, stale)
}

func (g *Gateway) sharedRefresh(ctx context.Context, stale string) (string, error) {
	detached := context.WithoutCancel(ctx)
	ch := g.group.DoChan(refreshKey, func() (any, error) {
		return g.doRefresh(detached, stale)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (g *Gateway) doRefresh(ctx context.Context, stale string) (string, error) {
	creds, err := g.store.LoadCredentials()
	if err != nil {
		return "", g.expire(ctx, fmt.Errorf("failed to load credentials: %w", err))
	}

	// Another refresh already replaced the token this request was sent with.
	if creds != nil && creds.AccessToken != "" && creds.AccessToken != stale {
		g.metrics.refresh("reused")
		return creds.AccessToken, nil
	}

	if creds == nil || creds.RefreshToken == "" {
		g.metrics.refresh("no_refresh_token")
		return "", g.expire(ctx, errNoRefreshToken)
	}

	fresh, err := g.refresher.Refresh(ctx, creds.RefreshToken)
	if err != nil {
		g.metrics.refresh("failure")
		return "", g.expire(ctx, err)
	}

	// The refresh token is kept as stored. This save fails if the session was
	// cleared while the refresh was in flight.
	if err := g.store.SaveCredentials(&Credentials{AccessToken: fresh.AccessToken}); err != nil {
		g.metrics.refresh("failure")
		return "", g.expire(ctx, fmt.Errorf("failed to store refreshed token: %w", err))
	}

	g.metrics.refresh("success")
	g.logger.Debug("access token refreshed")
	if g.hooks.OnRefreshed != nil {
		g.hooks.OnRefreshed(ctx)
	}
	return fresh.AccessToken, nil
}

// expire clears the stored session and notifies OnExpired.
func (g *Gateway) expire(ctx context.Context, cause error) error {
	if err := clearSession(g.store); err != nil {
		g.logger.Error("failed to clear session after refresh failure", "error", err)
	}
	g.logger.Warn("session refresh failed, session cleared", "error", cause)
	if g.hooks.OnExpired != nil {
		g.hooks.OnExpired(ctx, cause)
	}
	return &RefreshError{Cause: cause}
}

func (g *Gateway) accessToken() string {
	creds, err := g.store.LoadCredentials()
	if err != nil {
		g.logger.Warn("failed to load credentials", "error", err)
		return ""
	}
	if creds == nil {
		return ""
	}
	return creds.AccessToken
}

// authorize clones req for one attempt with a fresh body and the given bearer token.
func authorize(req *http.Request, ctx context.Context, token string, getBody func() (io.ReadCloser, error)) (*http.Request, error) {
	out := req.Clone(ctx)
	body, err := getBody()
	if err != nil {
		return nil, fmt.Errorf("failed to rewind request body: %w", err)
	}
	out.Body = body
	out.GetBody = getBody
	out.Header.Del("Authorization")
	if token != "" {
		out.Header.Set("Authorization", "Bearer "+token)
	}
	return out, nil
}

// replayableBody returns a function yielding a fresh copy of the request body.
// The original body is consumed and closed.
func replayableBody(req *http.Request) (func() (io.ReadCloser, error), error) {
	if req.Body == nil || req.Body == http.NoBody {
		return func() (io.ReadCloser, error) { return http.NoBody, nil }, nil
	}
	if req.GetBody != nil {
		_ = req.Body.Close()
		return req.GetBody, nil
	}

	data, err := io.ReadAll(req.Body)
	_ = req.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to buffer request body: %w", err)
	}
	return func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}, nil
}

func discard(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	_ = resp.Body.Close()
}

func outcomeFor(resp *http.Response) string {
	if resp.StatusCode == http.StatusUnauthorized {
		return "unauthorized"
	}
	return "ok"
}

type retryKey struct{}

func markRetry(ctx context.Context) context.Context {
	return context.WithValue(ctx, retryKey{}, true)
}

func isRetry(ctx context.Context) bool {
	retried, _ := ctx.Value(retryKey{}).(bool)
	return retried
}
