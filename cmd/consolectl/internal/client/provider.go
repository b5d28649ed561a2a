package client

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/ringline/console/cmd/consolectl/internal/auth"
	"github.com/ringline/console/pkg/sdk"
	"golang.org/x/oauth2"
)

const requestTimeout = 30 * time.Second

// Options configures a Provider.
type Options struct {
	ServerURL string
	// BearerToken is an ephemeral token that bypasses the credential store.
	BearerToken string
	StoreKind   string
	StoreDir    string
	SuperRoles  []string
	Logger      *slog.Logger
	Navigator   sdk.Navigator
	// Store overrides StoreKind/StoreDir.
	Store sdk.CredentialStore
}

// Provider yields the credential store and a bootstrapped SDK client, each
// built once per command invocation.
type Provider struct {
	opts Options

	storeOnce sync.Once
	store     sdk.CredentialStore
	storeErr  error

	httpOnce sync.Once
	httpCli  *http.Client

	sdkOnce   sync.Once
	sdkClient *sdk.Client
	sdkErr    error

	closeOnce sync.Once
	closeErr  error
}

// NewProvider constructs a new Provider.
func NewProvider(opts Options) *Provider {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Provider{opts: opts}
}

// ServerURL returns the admin API root the provider talks to.
func (p *Provider) ServerURL() string {
	return p.opts.ServerURL
}

// Ephemeral reports whether an injected bearer token replaces the stored session.
func (p *Provider) Ephemeral() bool {
	return p.opts.BearerToken != ""
}

// Store returns the credential store. Ephemeral providers use a throwaway
// in-memory store so nothing is read from or written to disk.
func (p *Provider) Store() (sdk.CredentialStore, error) {
	p.storeOnce.Do(func() {
		switch {
		case p.opts.Store != nil:
			p.store = p.opts.Store
		case p.Ephemeral():
			p.store = sdk.NewMemoryStore()
		default:
			p.store, p.storeErr = auth.Open(p.opts.StoreKind, p.opts.StoreDir)
			if p.storeErr != nil {
				p.storeErr = fmt.Errorf("failed to open credential store: %w", p.storeErr)
			}
		}
	})
	return p.store, p.storeErr
}

// HTTPClient returns the client the SDK sends requests through.
func (p *Provider) HTTPClient() *http.Client {
	p.httpOnce.Do(func() {
		if p.Ephemeral() {
			source := oauth2.StaticTokenSource(&oauth2.Token{
				AccessToken: p.opts.BearerToken,
				TokenType:   "Bearer",
			})
			p.httpCli = oauth2.NewClient(context.Background(), source)
			p.httpCli.Timeout = requestTimeout
			return
		}
		p.httpCli = &http.Client{Timeout: requestTimeout}
	})
	return p.httpCli
}

// SDKClient returns the SDK client with its session restored from the store.
// Restoring waits for the server to confirm the cached session.
func (p *Provider) SDKClient(ctx context.Context) (*sdk.Client, error) {
	p.sdkOnce.Do(func() {
		store, err := p.Store()
		if err != nil {
			p.sdkErr = err
			return
		}

		opts := []sdk.ClientOption{
			sdk.WithHTTPClient(p.HTTPClient()),
			sdk.WithCredentialStore(store),
			sdk.WithLogger(p.opts.Logger),
			sdk.WithClientSuperRoles(p.opts.SuperRoles...),
		}
		if p.opts.Navigator != nil {
			opts = append(opts, sdk.WithNavigator(p.opts.Navigator))
		}
		p.sdkClient = sdk.NewClient(p.opts.ServerURL, opts...)

		if p.Ephemeral() {
			return
		}
		if err := p.sdkClient.Session().Bootstrap(ctx); err != nil {
			p.sdkErr = fmt.Errorf("failed to restore session: %w", err)
			return
		}
		p.sdkClient.Session().Wait()
	})

	if p.sdkErr != nil {
		return nil, p.sdkErr
	}
	return p.sdkClient, nil
}

// Close waits for background session work and releases the store.
func (p *Provider) Close() error {
	p.closeOnce.Do(func() {
		if p.sdkClient != nil {
			p.sdkClient.Session().Wait()
		}
		if closer, ok := p.store.(io.Closer); ok {
			p.closeErr = closer.Close()
		}
	})
	return p.closeErr
}
