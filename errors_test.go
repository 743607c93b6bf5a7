package accounts_test

import (
	"errors"
	"net/http"
	"testing"

	accounts "github.com/mkcode/go-accounts"

	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
)

func TestErrorTaxonomy(t *testing.T) {
	t.Run("ErrInvalidCredentials", func(t *testing.T) {
		assert.Equal(t, goerrors.CategoryAuth, accounts.ErrInvalidCredentials.Category)
		assert.Equal(t, accounts.TextCodeInvalidCreds, accounts.ErrInvalidCredentials.TextCode)
	})

	t.Run("ErrDuplicateEmail", func(t *testing.T) {
		assert.Equal(t, goerrors.CategoryValidation, accounts.ErrDuplicateEmail.Category)
		assert.Equal(t, accounts.TextCodeDuplicateEmail, accounts.ErrDuplicateEmail.TextCode)
	})

	t.Run("ErrAccountDeactivated", func(t *testing.T) {
		assert.Equal(t, goerrors.CategoryAuth, accounts.ErrAccountDeactivated.Category)
		assert.Equal(t, goerrors.CodeForbidden, accounts.ErrAccountDeactivated.Code)
	})

	t.Run("ErrTokenExpired", func(t *testing.T) {
		assert.Equal(t, accounts.TextCodeTokenExpired, accounts.ErrTokenExpired.TextCode)
		assert.True(t, accounts.IsTokenExpiredError(accounts.ErrTokenExpired))
		assert.False(t, accounts.IsTokenExpiredError(accounts.ErrTokenMalformed))
		assert.False(t, accounts.IsTokenExpiredError(nil))
	})

	t.Run("ErrTokenMalformed", func(t *testing.T) {
		assert.Equal(t, accounts.TextCodeTokenMalformed, accounts.ErrTokenMalformed.TextCode)
		assert.True(t, accounts.IsMalformedError(accounts.ErrTokenMalformed))
		assert.False(t, accounts.IsMalformedError(nil))
	})

	t.Run("ErrSelfAction", func(t *testing.T) {
		assert.Equal(t, goerrors.CategoryValidation, accounts.ErrSelfAction.Category)
		assert.Equal(t, accounts.TextCodeSelfAction, accounts.ErrSelfAction.TextCode)
	})

	t.Run("ErrInvalidOrExpiredCode", func(t *testing.T) {
		assert.Equal(t, accounts.TextCodeInvalidResetCode, accounts.ErrInvalidOrExpiredCode.TextCode)
		assert.Equal(t, goerrors.CodeBadRequest, accounts.ErrInvalidOrExpiredCode.Code)
	})
}

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"invalid credentials", accounts.ErrInvalidCredentials, http.StatusUnauthorized},
		{"unauthorized", accounts.ErrUnauthorized, http.StatusUnauthorized},
		{"token expired", accounts.ErrTokenExpired, http.StatusUnauthorized},
		{"deactivated", accounts.ErrAccountDeactivated, http.StatusForbidden},
		{"forbidden", accounts.ErrForbidden, http.StatusForbidden},
		{"duplicate email", accounts.ErrDuplicateEmail, http.StatusBadRequest},
		{"self action", accounts.ErrSelfAction, http.StatusBadRequest},
		{"bad code", accounts.ErrInvalidOrExpiredCode, http.StatusBadRequest},
		{"not found", accounts.ErrUserNotFound, http.StatusNotFound},
		{"category conflict", goerrors.New("boom", goerrors.CategoryConflict), http.StatusConflict},
		{"category rate limit", goerrors.New("slow down", goerrors.CategoryRateLimit), http.StatusTooManyRequests},
		{"plain error", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, accounts.HTTPStatus(tc.err))
		})
	}
}
