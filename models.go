package auth

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// UserRole is the user's role
type UserRole = string

const (
	// RoleUser is a regular account
	RoleUser UserRole = "user"
	// RoleAdmin is an administrative account
	RoleAdmin UserRole = "admin"
)

// UserStatus tracks the account lifecycle state.
type UserStatus = string

const (
	// UserStatusPending is the state of a freshly registered account
	// that has not confirmed its email yet.
	UserStatusPending UserStatus = "pending_verification"
	// UserStatusActive accounts are the only ones allowed to log in.
	UserStatusActive UserStatus = "active"
	// UserStatusSuspended is a reversible administrative lock.
	UserStatusSuspended UserStatus = "suspended"
	// UserStatusInactive is the terminal state for closed accounts.
	UserStatusInactive UserStatus = "inactive"
)

// User is the credential store record. It exclusively owns identity,
// credentials, and lifecycle state; every other model references it by ID.
type User struct {
	bun.BaseModel  `bun:"table:users,alias:usr"`
	ID             uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Role           UserRole   `bun:"user_role,notnull" json:"role,omitempty"`
	FirstName      string     `bun:"first_name,notnull" json:"first_name,omitempty"`
	LastName       string     `bun:"last_name,notnull" json:"last_name,omitempty"`
	Company        string     `bun:"company" json:"company,omitempty"`
	Email          string     `bun:"email,notnull,unique" json:"email,omitempty"`
	PasswordHash   string     `bun:"password_hash" json:"-"`
	Status         UserStatus `bun:"status,notnull" json:"status,omitempty"`
	MFAEnabled     bool       `bun:"mfa_enabled" json:"mfa_enabled,omitempty"`
	MFASecret      string     `bun:"mfa_secret" json:"-"`
	LoginCount     int        `bun:"login_count" json:"login_count,omitempty"`
	LoginAttempts  int        `bun:"login_attempts" json:"-"`
	LoginAttemptAt *time.Time `bun:"login_attempt_at" json:"-"`
	LoggedInAt     *time.Time `bun:"loggedin_at" json:"loggedin_at,omitempty"`
	CreatedAt      *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt      *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt      *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// EnsureStatus backfills the status for legacy rows created before the
// lifecycle column existed.
func (u *User) EnsureStatus() {
	if u == nil {
		return
	}
	if u.Status == "" {
		u.Status = UserStatusActive
	}
}

// IsActive reports whether the account may authenticate.
func (u *User) IsActive() bool {
	if u == nil {
		return false
	}
	u.EnsureStatus()
	return u.Status == UserStatusActive
}

// NormalizeEmail canonicalizes an email for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Session is the refresh-token holder. The token column is an opaque
// high-entropy value; validity is `now < expires_at` plus an owner
// status check performed at lookup time, never cached.
type Session struct {
	bun.BaseModel `bun:"table:sessions,alias:ses"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	UserID        uuid.UUID  `bun:"user_id,notnull,type:uuid" json:"user_id,omitempty"`
	Token         string     `bun:"token,notnull,unique" json:"-"`
	IP            string     `bun:"ip" json:"ip,omitempty"`
	UserAgent     string     `bun:"user_agent" json:"user_agent,omitempty"`
	ExpiresAt     time.Time  `bun:"expires_at,notnull" json:"expires_at,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// Expired reports whether the session is past its fixed window.
func (s *Session) Expired(now time.Time) bool {
	return s == nil || !now.Before(s.ExpiresAt)
}

// TokenPurpose scopes a one-time token to the single state transition it guards.
type TokenPurpose = string

const (
	// PurposeEmailVerify guards the pending -> active transition.
	PurposeEmailVerify TokenPurpose = "email_verify"
	// PurposePasswordReset guards a credential replacement.
	PurposePasswordReset TokenPurpose = "password_reset"
	// PurposeMFAPending guards the second half of an MFA login.
	PurposeMFAPending TokenPurpose = "mfa_pending"
)

// VerificationToken is a single-use, short-lived credential. Consumption
// happens atomically with the state change it guards, so a consumed token
// must never validate a second time even inside its expiry window.
type VerificationToken struct {
	bun.BaseModel `bun:"table:verification_tokens,alias:vtk"`
	ID            uuid.UUID    `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	UserID        uuid.UUID    `bun:"user_id,notnull,type:uuid" json:"user_id,omitempty"`
	Token         string       `bun:"token,notnull,unique" json:"-"`
	Purpose       TokenPurpose `bun:"purpose,notnull" json:"purpose,omitempty"`
	ExpiresAt     time.Time    `bun:"expires_at,notnull" json:"expires_at,omitempty"`
	ConsumedAt    *time.Time   `bun:"consumed_at,nullzero" json:"consumed_at,omitempty"`
	CreatedAt     *time.Time   `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// Usable reports whether the token can still guard its transition.
func (t *VerificationToken) Usable(now time.Time) bool {
	if t == nil || t.ConsumedAt != nil {
		return false
	}
	return now.Before(t.ExpiresAt)
}
