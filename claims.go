package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AuthClaims is the read side of a verified token.
type AuthClaims interface {
	Subject() string
	UserID() string
	Role() string
	Purpose() TokenPurpose
	TokenID() string
	Expires() time.Time
	IssuedAt() time.Time
}

// JWTClaims is the concrete claim set carried by every signed token.
// Access tokens leave TokenPurpose empty; action tokens (MFA challenges)
// set it so a token minted for one transition can never satisfy another.
type JWTClaims struct {
	jwt.RegisteredClaims
	UID          string       `json:"uid,omitempty"`
	UserRole     string       `json:"role,omitempty"`
	TokenPurpose TokenPurpose `json:"purpose,omitempty"`
}

var _ AuthClaims = (*JWTClaims)(nil)

// Subject returns the subject claim
func (c *JWTClaims) Subject() string {
	return c.RegisteredClaims.Subject
}

// UserID returns the user ID
func (c *JWTClaims) UserID() string {
	if c.UID != "" {
		return c.UID
	}
	return c.Subject()
}

// Role returns the account role carried by the token
func (c *JWTClaims) Role() string {
	return c.UserRole
}

// Purpose returns the action the token was minted for, empty for access tokens
func (c *JWTClaims) Purpose() TokenPurpose {
	return c.TokenPurpose
}

// TokenID returns the jti claim
func (c *JWTClaims) TokenID() string {
	return c.RegisteredClaims.ID
}

// Expires returns the expiration time
func (c *JWTClaims) Expires() time.Time {
	if c.RegisteredClaims.ExpiresAt != nil {
		return c.RegisteredClaims.ExpiresAt.Time
	}
	return time.Time{}
}

// IssuedAt returns the issued at time
func (c *JWTClaims) IssuedAt() time.Time {
	if c.RegisteredClaims.IssuedAt != nil {
		return c.RegisteredClaims.IssuedAt.Time
	}
	return time.Time{}
}

func ensureTokenID(claims *jwt.RegisteredClaims) {
	if claims.ID == "" {
		claims.ID = MustOpaqueToken()
	}
}
