package sdk

import (
	"fmt"
	"net/url"
)

// LoginLocation is the default login entry point of the console.
const LoginLocation = "/login"

// Policy declares what a protected view requires. Every permission must hold;
// when Roles is non-empty at least one of them must be held.
type Policy struct {
	Permissions []Requirement `json:"permissions,omitempty"`
	Roles       []string      `json:"roles,omitempty"`
}

// Outcome is the result of evaluating a Policy.
type Outcome int

const (
	OutcomeLoading Outcome = iota
	OutcomeRedirect
	OutcomeDenied
	OutcomeInsufficientRole
	OutcomeProfileError
	OutcomeAllow
)

func (o Outcome) String() string {
	switch o {
	case OutcomeLoading:
		return "loading"
	case OutcomeRedirect:
		return "redirect"
	case OutcomeDenied:
		return "denied"
	case OutcomeInsufficientRole:
		return "insufficient-role"
	case OutcomeProfileError:
		return "profile-error"
	case OutcomeAllow:
		return "allow"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Decision is what a protected view should do.
type Decision struct {
	Outcome Outcome
	// ReturnTo is the location to come back to after login (OutcomeRedirect).
	ReturnTo string
	// Missing lists the unmet permissions (OutcomeDenied).
	Missing []Requirement
	// Roles lists the acceptable roles (OutcomeInsufficientRole).
	Roles []string
	// Err is the profile load failure (OutcomeProfileError).
	Err error

	loginPath string
}

// Allowed reports whether the protected content may be shown.
func (d Decision) Allowed() bool {
	return d.Outcome == OutcomeAllow
}

// LoginURL is the login location carrying ReturnTo as the returnTo query parameter.
func (d Decision) LoginURL() string {
	path := d.loginPath
	if path == "" {
		path = LoginLocation
	}
	if d.ReturnTo == "" {
		return path
	}
	return path + "?" + url.Values{"returnTo": {d.ReturnTo}}.Encode()
}

// Guard gates protected views on session state, permissions and roles.
type Guard struct {
	// LoginPath overrides LoginLocation in redirect decisions.
	LoginPath string
}

// Evaluate decides how the view at location, protected by policy, is handled
// for the session described by snap.
func (g Guard) Evaluate(snap Snapshot, policy Policy, location string) Decision {
	switch snap.State {
	case StateAuthenticating:
		return Decision{Outcome: OutcomeLoading}
	case StateAuthenticated:
	default:
		return Decision{Outcome: OutcomeRedirect, ReturnTo: location, loginPath: g.LoginPath}
	}

	// Without an identity snapshot there is nothing to check permissions against.
	if snap.Identity == nil {
		return Decision{Outcome: OutcomeProfileError, Err: profileFailure(snap.ProfileError)}
	}

	eval := snap.Evaluator
	if eval == nil {
		eval = NewEvaluator(snap.Identity)
	}
	if ok, missing := eval.Allows(policy.Permissions...); !ok {
		return Decision{Outcome: OutcomeDenied, Missing: missing}
	}
	if len(policy.Roles) > 0 && !eval.HasAnyRole(policy.Roles...) {
		return Decision{Outcome: OutcomeInsufficientRole, Roles: append([]string(nil), policy.Roles...)}
	}
	if snap.ProfileError != nil {
		return Decision{Outcome: OutcomeProfileError, Err: snap.ProfileError}
	}
	return Decision{Outcome: OutcomeAllow}
}

func profileFailure(err error) error {
	if err != nil {
		return err
	}
	return ErrProfileLoad
}
