package auth

import (
	"context"
	"fmt"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Identity holds the attributes of an authenticated identity
type Identity interface {
	ID() string
	Email() string
	Role() string
}

// Config holds auth options
type Config interface {
	GetSigningKey() string
	GetIssuer() string
	GetAudience() []string
	GetContextKey() string
	GetAccessTokenTTL() int  // minutes
	GetSessionTTL() int      // hours
	GetOneTimeTokenTTL() int // minutes
	GetMFATokenTTL() int     // minutes
}

// TokenService issues and verifies signed, tamper-evident tokens. Access
// tokens are stateless; action tokens additionally carry a purpose claim
// and a store-backed jti so they can be consumed exactly once.
type TokenService interface {
	Generate(identity Identity) (string, error)
	MintActionToken(subject string, purpose TokenPurpose, jti string) (string, error)
	Validate(tokenString string) (AuthClaims, error)
	ValidatePurpose(tokenString string, purpose TokenPurpose) (AuthClaims, error)
}

// PasswordAuthenticator authenticates passwords
type PasswordAuthenticator interface {
	HashPassword(password string) (string, error)
	ComparePasswordAndHash(password, hash string) error
}

// Mailer is the outbound email collaborator. Sends are fire-and-forget
// from the workflow's perspective; delivery failures are logged, never
// fatal to the triggering flow.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] AUTH "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] AUTH "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] AUTH "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] AUTH "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
