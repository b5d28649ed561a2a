// Package views lists the console's screens and the access policy guarding each.
package views

import (
	"fmt"
	"strings"

	"github.com/ringline/console/pkg/sdk"
)

// View is one console screen.
type View struct {
	Name   string
	Title  string
	Policy sdk.Policy
}

// Location is the console path of the view.
func (v View) Location() string {
	return "/" + v.Name
}

// Requirements renders the policy for display, e.g. "finance:read; role super_admin|billing_admin".
func (v View) Requirements() string {
	var parts []string
	if len(v.Policy.Permissions) > 0 {
		perms := make([]string, len(v.Policy.Permissions))
		for i, req := range v.Policy.Permissions {
			perms[i] = req.String()
		}
		parts = append(parts, strings.Join(perms, ", "))
	}
	if len(v.Policy.Roles) > 0 {
		parts = append(parts, "role "+strings.Join(v.Policy.Roles, "|"))
	}
	if len(parts) == 0 {
		return "signed in"
	}
	return strings.Join(parts, "; ")
}

var registry = []View{
	{Name: "dashboard", Title: "Dashboard"},
	{
		Name:   "users",
		Title:  "Users",
		Policy: sdk.Policy{Permissions: []sdk.Requirement{{Resource: "users", Action: "read"}}},
	},
	{
		Name:   "calls",
		Title:  "Call Records",
		Policy: sdk.Policy{Permissions: []sdk.Requirement{{Resource: "calls", Action: "read"}}},
	},
	{
		Name:  "finance",
		Title: "Finance",
		Policy: sdk.Policy{
			Permissions: []sdk.Requirement{{Resource: "finance", Action: "read"}},
			Roles:       []string{"super_admin", "billing_admin"},
		},
	},
	{
		Name:   "numbers",
		Title:  "Phone Numbers",
		Policy: sdk.Policy{Permissions: []sdk.Requirement{{Resource: "numbers", Action: "read"}}},
	},
	{
		Name:   "admins",
		Title:  "Administrators",
		Policy: sdk.Policy{Roles: []string{"super_admin"}},
	},
}

// List returns every view in menu order.
func List() []View {
	out := make([]View, len(registry))
	copy(out, registry)
	return out
}

// Lookup finds a view by name or location ("users" and "/users" both work).
func Lookup(name string) (View, error) {
	name = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(name)), "/")
	if i := strings.IndexAny(name, "?#"); i >= 0 {
		name = name[:i]
	}
	for _, v := range registry {
		if v.Name == name {
			return v, nil
		}
	}
	return View{}, fmt.Errorf("unknown view %q", name)
}
