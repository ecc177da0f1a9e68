package auth

import (
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

// Stable machine-readable codes surfaced at the wire boundary.
const (
	TextCodeUserExists         = "USER_EXISTS"
	TextCodeInvalidCredentials = "INVALID_CREDENTIALS"
	TextCodeAccountInactive    = "ACCOUNT_INACTIVE"
	TextCodeTokenRequired      = "TOKEN_REQUIRED"
	TextCodeInvalidToken       = "INVALID_TOKEN"
	TextCodeInvalidMFACode     = "INVALID_MFA_CODE"
	TextCodeTooManyAttempts    = "TOO_MANY_LOGIN_ATTEMPTS"
	TextCodeRegistrationError  = "REGISTRATION_ERROR"
)

// ErrUserExists is returned when registration hits a duplicate email.
var ErrUserExists = goerrors.New("an account with this email already exists", goerrors.CategoryConflict).
	WithTextCode(TextCodeUserExists).
	WithCode(goerrors.CodeConflict)

// ErrInvalidCredentials merges the unknown-email and wrong-password paths
// on purpose: responses must not reveal which emails are registered.
var ErrInvalidCredentials = goerrors.New("invalid email or password", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials).
	WithCode(goerrors.CodeUnauthorized)

// ErrAccountInactive is returned after password success for any non-active
// account, so disabled accounts cannot be probed for valid credentials.
var ErrAccountInactive = goerrors.New("account is not active", goerrors.CategoryAuthz).
	WithTextCode(TextCodeAccountInactive).
	WithCode(goerrors.CodeForbidden)

// ErrTokenRequired is returned when a refresh request carries no token.
var ErrTokenRequired = goerrors.New("refresh token is required", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenRequired).
	WithCode(goerrors.CodeUnauthorized)

// ErrInvalidToken covers absent, expired, spent, and tampered tokens in
// the refresh, verify, and reset flows.
var ErrInvalidToken = goerrors.New("invalid or expired token", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidToken).
	WithCode(goerrors.CodeUnauthorized)

// ErrInvalidMFACode is returned when an MFA challenge is presented with a
// code that does not verify. The challenge itself stays usable.
var ErrInvalidMFACode = goerrors.New("invalid multi-factor code", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidMFACode).
	WithCode(goerrors.CodeUnauthorized)

// ErrTooManyLoginAttempts enforces the login cooldown window.
var ErrTooManyLoginAttempts = goerrors.New("too many login attempts, try again later", goerrors.CategoryRateLimit).
	WithTextCode(TextCodeTooManyAttempts).
	WithCode(429)

// ErrNoEmptyString rejects empty passwords before hashing.
var ErrNoEmptyString = goerrors.New("value must not be empty", goerrors.CategoryBadInput).
	WithCode(goerrors.CodeBadRequest)

// ErrMismatchedHashAndPassword is the internal bcrypt mismatch marker;
// it is always translated to ErrInvalidCredentials before leaving Login.
var ErrMismatchedHashAndPassword = goerrors.New("password does not match", goerrors.CategoryAuth).
	WithCode(goerrors.CodeUnauthorized)

// ErrTokenExpired is returned for signed tokens past their exp claim.
var ErrTokenExpired = goerrors.New("token is expired", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidToken).
	WithCode(goerrors.CodeUnauthorized)

// ErrTokenMalformed is returned for tokens that fail signature or shape checks.
var ErrTokenMalformed = goerrors.New("token is malformed", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidToken).
	WithCode(goerrors.CodeUnauthorized)

// HasTextCode reports whether err carries the given stable code.
func HasTextCode(err error, code string) bool {
	if err == nil {
		return false
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr.TextCode == code
	}
	return false
}

// statusAuthError maps a non-active lifecycle state to its auth error.
func statusAuthError(status UserStatus) error {
	switch status {
	case UserStatusActive, "":
		return nil
	default:
		return ErrAccountInactive.WithMetadata(map[string]any{
			"status": status,
		})
	}
}

// IsUniqueViolation checks driver errors for a unique-constraint failure.
// The store's unique index is the authoritative guard against the
// check-then-insert race at registration; the violation must be
// translated, never surfaced as a generic server error.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || // sqlite
		strings.Contains(msg, "duplicate key value") || // postgres
		strings.Contains(msg, "Duplicate entry") // mysql
}
