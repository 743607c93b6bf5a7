package accounts_test

import (
	"testing"
	"time"

	accounts "github.com/mkcode/go-accounts"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUser(t *testing.T) {
	user, err := accounts.NewUser("  Pepe Rone ", " Pepe@Example.COM ", "hash")
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, user.ID)
	assert.Equal(t, "Pepe Rone", user.Name)
	assert.Equal(t, "pepe@example.com", user.Email)
	assert.Equal(t, accounts.RoleUser, user.Role)
	assert.True(t, user.IsActive)
	assert.False(t, user.IsVerified)
	assert.NoError(t, user.Validate())
}

func TestNewUserRejectsBadInput(t *testing.T) {
	for name, tc := range map[string]struct{ name, email, hash string }{
		"empty name":  {"", "pepe@example.com", "hash"},
		"empty email": {"Pepe", "", "hash"},
		"empty hash":  {"Pepe", "pepe@example.com", ""},
		"bad email":   {"Pepe", "not an email", "hash"},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := accounts.NewUser(tc.name, tc.email, tc.hash)
			assert.Error(t, err)
		})
	}
}

func TestUserValidateRole(t *testing.T) {
	user, err := accounts.NewUser("Pepe", "pepe@example.com", "hash")
	require.NoError(t, err)

	user.Role = "superuser"
	assert.Error(t, user.Validate())
}

func TestUserPublicOmitsPasswordHash(t *testing.T) {
	user, err := accounts.NewUser("Pepe", "pepe@example.com", "hash")
	require.NoError(t, err)

	public := user.Public()
	assert.Equal(t, user.ID, public.ID)
	assert.Equal(t, user.Email, public.Email)
}

func TestRoles(t *testing.T) {
	assert.True(t, accounts.IsValidRole(accounts.RoleUser))
	assert.True(t, accounts.IsValidRole(accounts.RoleAdmin))
	assert.False(t, accounts.IsValidRole("owner"))

	role, ok := accounts.ParseRole("admin")
	require.True(t, ok)
	assert.Equal(t, accounts.RoleAdmin, role)

	_, ok = accounts.ParseRole("owner")
	assert.False(t, ok)
}

func TestResetTokenExpired(t *testing.T) {
	now := time.Now()
	token := &accounts.ResetToken{ExpiresAt: now.Add(time.Minute)}

	assert.False(t, token.Expired(now))
	assert.True(t, token.Expired(now.Add(time.Minute)))
	assert.True(t, token.Expired(now.Add(2*time.Minute)))
}

func TestActivityLogEntryValidate(t *testing.T) {
	entry := &accounts.ActivityLogEntry{
		ActorID: uuid.New(),
		Action:  accounts.ActionPromoteUser,
	}
	assert.NoError(t, entry.Validate())

	t.Run("missing actor", func(t *testing.T) {
		bad := &accounts.ActivityLogEntry{Action: accounts.ActionPromoteUser}
		assert.Error(t, bad.Validate())
	})

	t.Run("unknown action", func(t *testing.T) {
		bad := &accounts.ActivityLogEntry{ActorID: uuid.New(), Action: "SOMETHING_ELSE"}
		assert.Error(t, bad.Validate())
	})
}

func TestActivityActionEnumIsClosed(t *testing.T) {
	valid := []accounts.ActivityAction{
		accounts.ActionPromoteUser,
		accounts.ActionDemoteUser,
		accounts.ActionResetUserPassword,
		accounts.ActionActivateUser,
		accounts.ActionDeactivateUser,
		accounts.ActionDeleteUser,
		accounts.ActionBulkDeleteUsers,
		accounts.ActionBulkActivateUsers,
		accounts.ActionBulkDeactivateUsers,
		accounts.ActionBulkPromoteUsers,
		accounts.ActionBulkDemoteUsers,
	}

	for _, action := range valid {
		assert.True(t, action.IsValid(), "%s should be valid", action)
	}

	assert.False(t, accounts.ActivityAction("").IsValid())
	assert.False(t, accounts.ActivityAction("promote_user").IsValid())
}
