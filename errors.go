package accounts

import (
	"strings"

	"github.com/goliatone/go-errors"
)

const (
	TextCodeInvalidCreds       = "INVALID_CREDENTIALS"
	TextCodeDuplicateEmail     = "DUPLICATE_EMAIL"
	TextCodeAccountDeactivated = "ACCOUNT_DEACTIVATED"
	TextCodeTokenExpired       = "TOKEN_EXPIRED"
	TextCodeTokenMalformed     = "TOKEN_MALFORMED"
	TextCodeInvalidResetCode   = "INVALID_OR_EXPIRED_CODE"
	TextCodeSelfAction         = "SELF_ACTION_FORBIDDEN"
	TextCodeRateLimited        = "RATE_LIMITED"
	TextCodeEmptyPassword      = "EMPTY_PASSWORD"
)

// ErrInvalidCredentials covers both an unknown email and a failed password
// check so the response never reveals which field was wrong.
var ErrInvalidCredentials = errors.New("the credentials provided are invalid", errors.CategoryAuth).
	WithTextCode(TextCodeInvalidCreds).
	WithCode(errors.CodeUnauthorized)

// ErrDuplicateEmail is returned when a live user already owns the email.
var ErrDuplicateEmail = errors.New("a user already exists with this email", errors.CategoryValidation).
	WithTextCode(TextCodeDuplicateEmail).
	WithCode(errors.CodeBadRequest)

// ErrAccountDeactivated is returned on login against a deactivated account.
var ErrAccountDeactivated = errors.New("account is deactivated", errors.CategoryAuth).
	WithTextCode(TextCodeAccountDeactivated).
	WithCode(errors.CodeForbidden)

// ErrTokenExpired is returned once a bearer token is past its expiry.
var ErrTokenExpired = errors.New("authentication token has expired", errors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(errors.CodeUnauthorized)

// ErrTokenMalformed is returned for forged, truncated, or otherwise
// undecodable tokens.
var ErrTokenMalformed = errors.New("authentication token is invalid", errors.CategoryAuth).
	WithTextCode(TextCodeTokenMalformed).
	WithCode(errors.CodeUnauthorized)

// ErrUnauthorized is returned when a protected route has no usable principal.
var ErrUnauthorized = errors.New("authentication required", errors.CategoryAuth).
	WithCode(errors.CodeUnauthorized)

// ErrForbidden is returned on a role mismatch for a privileged route.
var ErrForbidden = errors.New("admin access required", errors.CategoryAuthz).
	WithCode(errors.CodeForbidden)

// ErrSelfAction is returned when an administrative mutation targets the
// caller's own account. It is a validation failure, not a role failure.
var ErrSelfAction = errors.New("cannot perform this action on your own account", errors.CategoryValidation).
	WithTextCode(TextCodeSelfAction).
	WithCode(errors.CodeBadRequest)

// ErrInvalidOrExpiredCode covers every reset-code miss: unknown email, no
// live token, expired token, or hash mismatch.
var ErrInvalidOrExpiredCode = errors.New("invalid or expired verification code", errors.CategoryValidation).
	WithTextCode(TextCodeInvalidResetCode).
	WithCode(errors.CodeBadRequest)

// ErrUserNotFound is the not-found error for user lookups by id.
var ErrUserNotFound = errors.New("user not found", errors.CategoryNotFound).
	WithCode(errors.CodeNotFound)

// ErrNoEmptyString rejects empty passwords before they reach bcrypt.
var ErrNoEmptyString = errors.New("value must not be an empty string", errors.CategoryValidation).
	WithTextCode(TextCodeEmptyPassword).
	WithCode(errors.CodeBadRequest)

// IsTokenExpiredError will check for expired tokens
func IsTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}
	var rich *errors.Error
	if errors.As(err, &rich) && rich.TextCode == TextCodeTokenExpired {
		return true
	}
	return strings.Contains(err.Error(), "token is expired")
}

// IsMalformedError will check for error message
func IsMalformedError(err error) bool {
	if err == nil {
		return false
	}
	var rich *errors.Error
	if errors.As(err, &rich) && rich.TextCode == TextCodeTokenMalformed {
		return true
	}
	return strings.Contains(err.Error(), "token is malformed")
}
