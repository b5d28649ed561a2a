package sdk

import (
	"strings"
	"unicode/utf8"
)

// Credentials represents the bearer credentials issued by the admin API.
// AccessToken is short-lived; RefreshToken is only used by the Gateway's
// refresh path.
type Credentials struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

// Complete reports whether both tokens are present.
func (c *Credentials) Complete() bool {
	return c != nil && c.AccessToken != "" && c.RefreshToken != ""
}

func (c *Credentials) clone() *Credentials {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}

// Role is the cached role snapshot. Permissions maps resource -> action -> granted.
type Role struct {
	Name        string                     `json:"name"`
	Permissions map[string]map[string]bool `json:"permissions,omitempty"`
}

// Identity is the cached administrator snapshot returned by login and profile.
type Identity struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Email     string `json:"email,omitempty"`
	Role      *Role  `json:"role,omitempty"`
}

// DisplayName returns "First Last", falling back to the username.
func (i *Identity) DisplayName() string {
	if i == nil {
		return ""
	}
	name := strings.TrimSpace(strings.TrimSpace(i.FirstName) + " " + strings.TrimSpace(i.LastName))
	if name != "" {
		return name
	}
	return i.Username
}

// Initials returns the uppercased first letters of the first and last name,
// falling back to the first two characters of the username.
func (i *Identity) Initials() string {
	if i == nil {
		return ""
	}
	first, last := firstRune(i.FirstName), firstRune(i.LastName)
	if first != "" || last != "" {
		return strings.ToUpper(first + last)
	}
	username := strings.TrimSpace(i.Username)
	if utf8.RuneCountInString(username) > 2 {
		username = string([]rune(username)[:2])
	}
	return strings.ToUpper(username)
}

// RoleName returns the cached role name, or "" when no role is cached.
func (i *Identity) RoleName() string {
	if i == nil || i.Role == nil {
		return ""
	}
	return i.Role.Name
}

func (i *Identity) clone() *Identity {
	if i == nil {
		return nil
	}
	cp := *i
	if i.Role != nil {
		role := Role{Name: i.Role.Name}
		if i.Role.Permissions != nil {
			role.Permissions = make(map[string]map[string]bool, len(i.Role.Permissions))
			for resource, actions := range i.Role.Permissions {
				copied := make(map[string]bool, len(actions))
				for action, granted := range actions {
					copied[action] = granted
				}
				role.Permissions[resource] = copied
			}
		}
		cp.Role = &role
	}
	return &cp
}

func firstRune(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	r, _ := utf8.DecodeRuneInString(s)
	return string(r)
}
