package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Admin API auth endpoints.
const (
	PathLogin     = "/api/admin/auth/login"
	PathLogout    = "/api/admin/auth/logout"
	PathLogoutAll = "/api/admin/auth/logout-all"
	PathRefresh   = "/api/admin/auth/refresh"
	PathProfile   = "/api/admin/auth/profile"

	// ProtectedPrefix is the path prefix of the bearer-authenticated API surface.
	ProtectedPrefix = "/api/admin/"
)

// maxErrorBody bounds how much of an error response is read for its message.
const maxErrorBody = 64 << 10

// LoginInput carries the username/password submitted to the login endpoint.
type LoginInput struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// LoginResult is a successful login: the issued credentials and the identity snapshot.
type LoginResult struct {
	Credentials *Credentials
	Identity    *Identity
}

// ValidationError reports a LoginInput that was rejected before any request was made.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Fields, " and ") + " required"
}

type loginResponse struct {
	Tokens *Credentials `json:"tokens"`
	Admin  *Identity    `json:"admin"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type refreshResponse struct {
	Tokens *Credentials `json:"tokens"`
}

type profileResponse struct {
	Admin *Identity `json:"admin"`
}

type errorResponse struct {
	Message string `json:"message"`
}

// AuthAPI speaks the admin API's auth contract. Login and refresh use the public
// client; logout and profile use the protected client, which is expected to be
// wrapped by a Gateway so the bearer token is attached and refreshed.
type AuthAPI struct {
	baseURL   string
	public    *http.Client
	protected *http.Client
	validate  *validator.Validate
}

// NewAuthAPI creates an AuthAPI rooted at baseURL. The same client is used for
// both surfaces until Protected is called.
func NewAuthAPI(baseURL string, public *http.Client) *AuthAPI {
	if public == nil {
		public = http.DefaultClient
	}
	return &AuthAPI{
		baseURL:   strings.TrimRight(baseURL, "/"),
		public:    public,
		protected: public,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Protected returns a copy of the AuthAPI that sends bearer-authenticated calls through c.
func (a *AuthAPI) Protected(c *http.Client) *AuthAPI {
	cp := *a
	cp.protected = c
	return &cp
}

// Login exchanges a username/password for credentials and the identity snapshot.
// Rejections map onto ErrInvalidCredentials, ErrAccountLocked (423) and
// ErrAccountDisabled (403).
func (a *AuthAPI) Login(ctx context.Context, input LoginInput) (*LoginResult, error) {
	if err := a.validate.Struct(input); err != nil {
		return nil, validationError(err)
	}

	var resp loginResponse
	err := doJSON(ctx, a.public, a.baseURL, http.MethodPost, PathLogin, input, &resp)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			switch apiErr.StatusCode {
			case http.StatusLocked, http.StatusForbidden:
				return nil, err
			}
			if apiErr.StatusCode < http.StatusInternalServerError {
				return nil, fmt.Errorf("%w: %w", ErrInvalidCredentials, err)
			}
		}
		return nil, fmt.Errorf("login: %w", err)
	}
	if !resp.Tokens.Complete() {
		return nil, fmt.Errorf("login: response is missing tokens")
	}
	if resp.Admin == nil {
		return nil, fmt.Errorf("login: response is missing the admin profile")
	}

	return &LoginResult{Credentials: resp.Tokens, Identity: resp.Admin}, nil
}

// Refresh exchanges a refresh token for a new access token.
func (a *AuthAPI) Refresh(ctx context.Context, refreshToken string) (*Credentials, error) {
	var resp refreshResponse
	if err := doJSON(ctx, a.public, a.baseURL, http.MethodPost, PathRefresh, refreshRequest{RefreshToken: refreshToken}, &resp); err != nil {
		return nil, fmt.Errorf("refresh: %w", err)
	}
	if resp.Tokens == nil || resp.Tokens.AccessToken == "" {
		return nil, fmt.Errorf("refresh: response is missing the access token")
	}
	return resp.Tokens, nil
}

// Logout invalidates the current refresh token on the server.
func (a *AuthAPI) Logout(ctx context.Context) error {
	return doJSON(ctx, a.protected, a.baseURL, http.MethodPost, PathLogout, nil, nil)
}

// LogoutAll invalidates every refresh token of the identity on the server.
func (a *AuthAPI) LogoutAll(ctx context.Context) error {
	return doJSON(ctx, a.protected, a.baseURL, http.MethodPost, PathLogoutAll, nil, nil)
}

// Profile fetches the current identity snapshot.
func (a *AuthAPI) Profile(ctx context.Context) (*Identity, error) {
	var resp profileResponse
	if err := doJSON(ctx, a.protected, a.baseURL, http.MethodGet, PathProfile, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Admin == nil {
		return nil, fmt.Errorf("profile: response is missing the admin profile")
	}
	return resp.Admin, nil
}

// doJSON sends in as a JSON body (when non-nil) and decodes a 2xx body into out
// (when non-nil). Non-2xx answers become *APIError.
func doJSON(ctx context.Context, client *http.Client, baseURL, method, path string, in, out any) error {
	endpoint, err := resolveURL(baseURL, path)
	if err != nil {
		return err
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeAPIError(resp, path)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if raw, ok := out.(*json.RawMessage); ok {
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response: %w", err)
		}
		*raw = data
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// resolveURL joins path (which may carry a query string) onto baseURL.
func resolveURL(baseURL, path string) (string, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid admin api url: %w", err)
	}
	rel, err := url.Parse(path)
	if err != nil {
		return "", fmt.Errorf("invalid request path %q: %w", path, err)
	}
	u := base.JoinPath(rel.Path)
	u.RawQuery = rel.RawQuery
	return u.String(), nil
}

func decodeAPIError(resp *http.Response, path string) error {
	apiErr := &APIError{StatusCode: resp.StatusCode, Path: path}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var payload errorResponse
	if json.Unmarshal(data, &payload) == nil {
		apiErr.Message = payload.Message
	}
	return apiErr
}

func validationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return &ValidationError{Fields: []string{err.Error()}}
	}
	fields := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		fields = append(fields, strings.ToLower(fe.Field()))
	}
	return &ValidationError{Fields: fields}
}
