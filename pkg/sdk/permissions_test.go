package sdk

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func identityWithRole(name string, perms map[string]map[string]bool) *Identity {
	return &Identity{ID: "42", Username: "jdoe", Role: &Role{Name: name, Permissions: perms}}
}

func TestHasPermissionFailsClosed(t *testing.T) {
	tests := []struct {
		name     string
		identity *Identity
		resource string
		action   string
		want     bool
	}{
		{name: "no identity", identity: nil, resource: "users", want: false},
		{name: "no role", identity: &Identity{Username: "jdoe"}, resource: "users", want: false},
		{name: "no permission map", identity: identityWithRole("support", nil), resource: "users", want: false},
		{name: "resource absent", identity: identityWithRole("support", map[string]map[string]bool{"calls": {"read": true}}), resource: "users", want: false},
		{name: "action absent", identity: identityWithRole("support", map[string]map[string]bool{"users": {"read": true}}), resource: "users", action: "write", want: false},
		{name: "action false", identity: identityWithRole("support", map[string]map[string]bool{"users": {"write": false}}), resource: "users", action: "write", want: false},
		{name: "explicitly granted", identity: identityWithRole("support", map[string]map[string]bool{"users": {"write": true}}), resource: "users", action: "write", want: true},
		{name: "default action is read", identity: identityWithRole("support", map[string]map[string]bool{"users": {"read": true}}), resource: "users", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NewEvaluator(tt.identity).HasPermission(tt.resource, tt.action))
		})
	}
}

func TestHasAnyRole(t *testing.T) {
	billing := NewEvaluator(identityWithRole("billing_admin", nil))
	assert.True(t, billing.HasAnyRole("super_admin", "billing_admin"))

	support := NewEvaluator(identityWithRole("support", nil))
	assert.False(t, support.HasAnyRole("super_admin", "billing_admin"))

	assert.False(t, NewEvaluator(nil).HasAnyRole("super_admin"))
	assert.False(t, support.HasAnyRole())
	assert.False(t, support.HasRole(""))
}

func TestSuperRoleBypass(t *testing.T) {
	identity := identityWithRole("super_admin", nil)

	plain := NewEvaluator(identity)
	assert.False(t, plain.HasPermission("finance", "read"), "no bypass unless configured")
	assert.False(t, plain.IsSuperRole())

	bypass := NewEvaluator(identity, WithSuperRoles("super_admin"))
	assert.True(t, bypass.HasPermission("finance", "read"))
	assert.True(t, bypass.HasPermission("anything", "delete"))
	assert.True(t, bypass.IsSuperRole())
	assert.False(t, bypass.HasRole("billing_admin"), "bypass does not grant roles")

	other := NewEvaluator(identityWithRole("support", nil), WithSuperRoles("super_admin"))
	assert.False(t, other.HasPermission("finance", "read"))
}

func TestAllowsReportsMissing(t *testing.T) {
	eval := NewEvaluator(identityWithRole("support", map[string]map[string]bool{
		"users": {"read": true},
	}))

	ok, missing := eval.Allows(
		Requirement{Resource: "users"},
		Requirement{Resource: "users", Action: "write"},
		Requirement{Resource: "finance"},
	)
	assert.False(t, ok)
	assert.Equal(t, []Requirement{
		{Resource: "users", Action: "write"},
		{Resource: "finance", Action: "read"},
	}, missing)

	ok, missing = eval.Allows()
	assert.True(t, ok)
	assert.Empty(t, missing)
}

func TestGrantsSorted(t *testing.T) {
	eval := NewEvaluator(identityWithRole("support", map[string]map[string]bool{
		"users": {"write": true, "read": true, "delete": false},
		"calls": {"read": true},
	}))

	assert.Equal(t, []Requirement{
		{Resource: "calls", Action: "read"},
		{Resource: "users", Action: "read"},
		{Resource: "users", Action: "write"},
	}, eval.Grants())
	assert.Equal(t, "users:read", Requirement{Resource: "users"}.String())
}

func TestEvaluatorSnapshotIsIsolated(t *testing.T) {
	identity := identityWithRole("support", map[string]map[string]bool{"users": {"read": true}})
	eval := NewEvaluator(identity)

	identity.Role.Permissions["users"]["read"] = false
	assert.True(t, eval.HasPermission("users", "read"))
}
