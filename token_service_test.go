package accounts_test

import (
	"testing"
	"time"

	accounts "github.com/mkcode/go-accounts"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenServiceIssueAndValidate(t *testing.T) {
	key := []byte("test-signing-key")
	userID := uuid.New().String()

	svc := accounts.NewTokenService(key, time.Hour, "accounts-test", nil, nil)

	token, err := svc.Issue(userID, "pepe@example.com", accounts.RoleUser)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := svc.Validate(token)
	require.NoError(t, err)

	assert.Equal(t, userID, claims.UserID())
	assert.Equal(t, "pepe@example.com", claims.Email)
	assert.Equal(t, accounts.RoleUser, claims.Role())
	assert.False(t, claims.IsAdmin())
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.Expires(), time.Minute)
}

func TestTokenServiceDefaultTTL(t *testing.T) {
	svc := accounts.NewTokenService([]byte("key"), 0, "", nil, nil)

	token, err := svc.Issue(uuid.New().String(), "a@b.co", accounts.RoleAdmin)
	require.NoError(t, err)

	claims, err := svc.Validate(token)
	require.NoError(t, err)

	assert.True(t, claims.IsAdmin())
	assert.WithinDuration(t, time.Now().Add(7*24*time.Hour), claims.Expires(), time.Minute)
}

func TestTokenServiceExpired(t *testing.T) {
	key := []byte("test-signing-key")
	issuedAt := time.Now().Add(-2 * time.Hour)

	issuer := accounts.NewTokenService(key, time.Hour, "accounts-test", nil, nil).
		WithClock(func() time.Time { return issuedAt })

	token, err := issuer.Issue(uuid.New().String(), "a@b.co", accounts.RoleUser)
	require.NoError(t, err)

	validator := accounts.NewTokenService(key, time.Hour, "accounts-test", nil, nil)

	_, err = validator.Validate(token)
	require.Error(t, err)

	var richErr *goerrors.Error
	require.ErrorAs(t, err, &richErr)
	assert.Equal(t, accounts.TextCodeTokenExpired, richErr.TextCode)
}

func TestTokenServiceWrongKey(t *testing.T) {
	issuer := accounts.NewTokenService([]byte("key-one"), time.Hour, "", nil, nil)
	validator := accounts.NewTokenService([]byte("key-two"), time.Hour, "", nil, nil)

	token, err := issuer.Issue(uuid.New().String(), "a@b.co", accounts.RoleUser)
	require.NoError(t, err)

	_, err = validator.Validate(token)
	require.Error(t, err)

	var richErr *goerrors.Error
	require.ErrorAs(t, err, &richErr)
	assert.Equal(t, accounts.TextCodeTokenMalformed, richErr.TextCode)
}

func TestTokenServiceGarbage(t *testing.T) {
	svc := accounts.NewTokenService([]byte("key"), time.Hour, "", nil, nil)

	for _, tc := range []string{"", "not-a-token", "a.b.c"} {
		_, err := svc.Validate(tc)
		assert.Error(t, err, "token %q should not validate", tc)
	}
}

func TestTokenServiceEmptySubject(t *testing.T) {
	svc := accounts.NewTokenService([]byte("key"), time.Hour, "", nil, nil)

	_, err := svc.Issue("", "a@b.co", accounts.RoleUser)
	assert.Error(t, err)
}

func TestTokenServiceIssuerMismatch(t *testing.T) {
	issuer := accounts.NewTokenService([]byte("key"), time.Hour, "service-a", nil, nil)
	validator := accounts.NewTokenService([]byte("key"), time.Hour, "service-b", nil, nil)

	token, err := issuer.Issue(uuid.New().String(), "a@b.co", accounts.RoleUser)
	require.NoError(t, err)

	_, err = validator.Validate(token)
	assert.Error(t, err)
}
