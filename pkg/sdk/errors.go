package sdk

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for use with errors.Is().
var (
	// ErrInvalidCredentials is returned when the login endpoint rejects the username/password.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrAccountLocked is returned when the login endpoint answers 423.
	ErrAccountLocked = errors.New("account locked")

	// ErrAccountDisabled is returned when the login endpoint answers 403.
	ErrAccountDisabled = errors.New("account disabled")

	// ErrUnauthorized is returned when a protected call still answers 401 after
	// the one permitted refresh-and-retry.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRefreshFailed is returned when the access token could not be refreshed.
	// The session has been cleared when this error surfaces.
	ErrRefreshFailed = errors.New("session refresh failed")

	// ErrNotAuthenticated is returned by operations that need an authenticated session.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrProfileLoad is returned when the identity snapshot could not be fetched.
	ErrProfileLoad = errors.New("profile load failed")

	// ErrInvalidTransition is returned when the session state machine rejects an event.
	ErrInvalidTransition = errors.New("invalid session transition")

	// ErrSessionChanged is returned when a logout or another login replaced the
	// session while an operation was waiting on the network. Its result is dropped.
	ErrSessionChanged = errors.New("session changed during the operation")

	// ErrIncompleteCredentials is returned when a save would leave an access token
	// without a refresh token.
	ErrIncompleteCredentials = errors.New("incomplete credentials")
)

// APIError is a non-2xx answer from the admin API.
type APIError struct {
	// StatusCode is the HTTP status code.
	StatusCode int
	// Message is the server's "message" field, when present.
	Message string
	// Path is the request path.
	Path string
}

// Error returns a human-readable description of the failure.
func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("admin api %s: %d %s", e.Path, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("admin api %s: %d %s", e.Path, e.StatusCode, http.StatusText(e.StatusCode))
}

// Is maps well-known status codes onto the package sentinels.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized
	case ErrAccountLocked:
		return e.StatusCode == http.StatusLocked
	case ErrAccountDisabled:
		return e.StatusCode == http.StatusForbidden
	}
	return false
}

// RefreshError is returned by the Gateway when the coalesced refresh failed.
type RefreshError struct {
	// Cause is the underlying failure (network error, rejected refresh token, ...).
	Cause error
}

// Error returns a human-readable description of the refresh failure.
func (e *RefreshError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("session refresh failed: %v", e.Cause)
	}
	return "session refresh failed"
}

// Unwrap returns the underlying cause.
func (e *RefreshError) Unwrap() error {
	return e.Cause
}

// Is supports errors.Is(err, ErrRefreshFailed).
func (e *RefreshError) Is(target error) bool {
	return target == ErrRefreshFailed
}

const (
	msgLoginFailed        = "Login failed. Please try again."
	msgInvalidCredentials = "Login failed. Please check your username and password."
	msgAccountLocked      = "Your account is locked. Try again later or contact an administrator."
	msgAccountDisabled    = "Your account has been disabled. Contact an administrator."
)

// LoginErrorMessage derives the user-facing message for a failed login.
func LoginErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, ErrAccountLocked):
		return msgAccountLocked
	case errors.Is(err, ErrAccountDisabled):
		return msgAccountDisabled
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	var validation *ValidationError
	if errors.As(err, &validation) {
		return validation.Error()
	}
	if errors.Is(err, ErrInvalidCredentials) {
		return msgInvalidCredentials
	}
	return msgLoginFailed
}

// isAuthorizationFailure reports whether err means the credentials are no longer usable.
func isAuthorizationFailure(err error) bool {
	return errors.Is(err, ErrRefreshFailed) || errors.Is(err, ErrUnauthorized)
}
