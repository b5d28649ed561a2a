package sdk

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIdentityDisplayName(t *testing.T) {
	assert.Equal(t, "Ada Lovelace", (&Identity{Username: "ada", FirstName: "Ada", LastName: "Lovelace"}).DisplayName())
	assert.Equal(t, "Ada", (&Identity{Username: "ada", FirstName: "Ada"}).DisplayName())
	assert.Equal(t, "ada", (&Identity{Username: "ada", FirstName: "  "}).DisplayName())
	assert.Equal(t, "", (*Identity)(nil).DisplayName())
}

func TestIdentityInitials(t *testing.T) {
	assert.Equal(t, "AL", (&Identity{Username: "ada", FirstName: "ada", LastName: "lovelace"}).Initials())
	assert.Equal(t, "L", (&Identity{Username: "ada", LastName: "lovelace"}).Initials())
	assert.Equal(t, "AD", (&Identity{Username: "ada"}).Initials())
	assert.Equal(t, "Ö", (&Identity{Username: "ö"}).Initials())
	assert.Equal(t, "ÉM", (&Identity{Username: "émile"}).Initials())
	assert.Equal(t, "", (*Identity)(nil).Initials())
}

func TestCredentialsComplete(t *testing.T) {
	assert.True(t, (&Credentials{AccessToken: "a", RefreshToken: "r"}).Complete())
	assert.False(t, (&Credentials{AccessToken: "a"}).Complete())
	assert.False(t, (*Credentials)(nil).Complete())
}
