package auth

import (
	"context"
	"database/sql"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// MaxLoginAttempts is the maximun number of attempts a user gets
// before we make them cool off
var MaxLoginAttempts = 5

// CoolDownPeriod is the period in which we enforce a cool down
var CoolDownPeriod = "24h"

// dummyPasswordHash keeps the compare cost of an unknown email in the
// same ballpark as a known one. The result is discarded either way.
const dummyPasswordHash = "$2a$12$R9h/cIPz0gi.URNNX3kh2OPST9/PgBkqquzi.Ss7KIUgO2t0jWMUW"

// LoginMetadata carries request attributes persisted with the session.
type LoginMetadata struct {
	IP        string
	UserAgent string
}

// LoginResult is the outcome of a successful credential check. Either
// the token pair is populated, or RequiresMFA is set and MFAToken
// holds the short-lived challenge to present to ConfirmMFA.
type LoginResult struct {
	User         *User  `json:"user,omitempty"`
	AccessToken  string `json:"accessToken,omitempty"`
	RefreshToken string `json:"refreshToken,omitempty"`
	RequiresMFA  bool   `json:"requiresMfa,omitempty"`
	MFAToken     string `json:"mfaToken,omitempty"`
}

type Auther struct {
	repos         RepositoryManager
	config        Config
	logger        Logger
	tokenService  TokenService
	activitySink  ActivitySink
	sessionTTL    time.Duration
	mfaTokenTTL   time.Duration
	rotateRefresh bool
	now           func() time.Time
}

// NewAuthenticator returns a new Authenticator
func NewAuthenticator(repos RepositoryManager, opts Config) *Auther {
	return &Auther{
		repos:        repos,
		config:       opts,
		logger:       defLogger{},
		tokenService: NewTokenService(opts, defLogger{}),
		activitySink: noopActivitySink{},
		sessionTTL:   time.Duration(opts.GetSessionTTL()) * time.Hour,
		mfaTokenTTL:  time.Duration(opts.GetMFATokenTTL()) * time.Minute,
		now:          time.Now,
	}
}

func (s *Auther) WithLogger(logger Logger) *Auther {
	s.logger = logger
	// Update the TokenService logger as well
	s.tokenService = NewTokenService(s.config, logger)
	return s
}

// WithActivitySink configures an ActivitySink for emitting auth events.
func (s *Auther) WithActivitySink(sink ActivitySink) *Auther {
	s.activitySink = normalizeActivitySink(sink)
	return s
}

// WithRefreshRotation makes Refresh replace the presented refresh
// token with a new one, invalidating the old one in the same
// transaction.
func (s *Auther) WithRefreshRotation() *Auther {
	s.rotateRefresh = true
	return s
}

// WithClock overrides the time source. Tests use this to step through
// expiry windows.
func (s *Auther) WithClock(now func() time.Time) *Auther {
	if now != nil {
		s.now = now
	}
	return s
}

// TokenService returns the TokenService instance used by this Authenticator
func (s *Auther) TokenService() TokenService {
	return s.tokenService
}

// Login verifies the email and password pair and either establishes a
// session or, for MFA-enabled accounts, returns a pending challenge.
// Unknown emails and wrong passwords are indistinguishable to the
// caller.
func (s *Auther) Login(ctx context.Context, email, password string, meta LoginMetadata) (*LoginResult, error) {
	user, err := s.repos.Users().GetByEmail(ctx, email)
	if err != nil {
		if errors.IsNotFound(err) {
			// burn a compare so the miss costs the same as a mismatch
			_ = ComparePasswordAndHash(password, dummyPasswordHash)
			s.emitAuthEvent(ctx, ActivityEventLoginFailure, ActorRef{Type: "unknown"}, "", map[string]any{
				"email": NormalizeEmail(email),
				"error": ErrInvalidCredentials.Error(),
			})
			return nil, ErrInvalidCredentials
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to retrieve user during login")
	}

	if user.LoginAttemptAt != nil {
		expired, err := IsOutsideThresholdPeriod(*user.LoginAttemptAt, CoolDownPeriod)
		if err != nil {
			return nil, errors.Wrap(err, errors.CategoryInternal, "failed to calculate login attempt cooldown")
		}

		if expired {
			user.LoginAttempts = 0
		}
	}

	// if we have too many attempts in the given window, cool off!
	if user.LoginAttempts > MaxLoginAttempts {
		s.emitAuthEvent(ctx, ActivityEventLoginFailure, s.actorForUser(user), user.ID.String(), map[string]any{
			"error": ErrTooManyLoginAttempts.Error(),
		})
		return nil, ErrTooManyLoginAttempts
	}

	if err := ComparePasswordAndHash(password, user.PasswordHash); err != nil {
		if err2 := s.repos.Users().TrackAttemptedLogin(ctx, user); err2 != nil {
			return nil, errors.Wrap(err2, errors.CategoryInternal, "failed to track login attempt")
		}
		s.emitAuthEvent(ctx, ActivityEventLoginFailure, s.actorForUser(user), user.ID.String(), map[string]any{
			"error": ErrInvalidCredentials.Error(),
		})
		return nil, ErrInvalidCredentials
	}

	user.EnsureStatus()
	if err := statusAuthError(user.Status); err != nil {
		s.logger.Warn("login blocked due to user status: status=%s", user.Status)
		s.emitAuthEvent(ctx, ActivityEventLoginFailure, s.actorForUser(user), user.ID.String(), map[string]any{
			"error":  err.Error(),
			"status": user.Status,
		})
		return nil, err
	}

	if user.MFAEnabled && user.MFASecret != "" {
		return s.issueMFAChallenge(ctx, user)
	}

	return s.establishSession(ctx, user, meta, ActivityEventLoginSuccess)
}

// ConfirmMFA completes a pending MFA challenge. The challenge record
// is consumed only when the TOTP code verifies, so a typo does not
// force the user back through the password step.
func (s *Auther) ConfirmMFA(ctx context.Context, mfaToken, code string, meta LoginMetadata) (*LoginResult, error) {
	if mfaToken == "" {
		return nil, ErrTokenRequired
	}

	claims, err := s.tokenService.ValidatePurpose(mfaToken, PurposeMFAPending)
	if err != nil {
		s.logger.Warn("mfa token rejected: %v", err)
		return nil, ErrInvalidToken
	}

	record, err := s.repos.VerificationTokens().GetByToken(ctx, claims.TokenID())
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, ErrInvalidToken
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to load mfa challenge")
	}

	now := s.now()
	if record.Purpose != PurposeMFAPending || !record.Usable(now) {
		return nil, ErrInvalidToken
	}

	user, err := s.repos.Users().GetByID(ctx, record.UserID.String())
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, ErrInvalidToken
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to load user for mfa challenge")
	}

	user.EnsureStatus()
	if err := statusAuthError(user.Status); err != nil {
		return nil, err
	}

	ok, err := VerifyTOTP(user.MFASecret, code, now)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to verify mfa code")
	}

	if !ok {
		s.emitAuthEvent(ctx, ActivityEventMFAFailure, s.actorForUser(user), user.ID.String(), nil)
		return nil, ErrInvalidMFACode
	}

	var result *LoginResult
	err = s.repos.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if _, err := s.repos.VerificationTokens().ConsumeTx(ctx, tx, record.Token, now); err != nil {
			if repository.IsRecordNotFound(err) {
				return ErrInvalidToken
			}
			return err
		}

		session, err := s.createSessionTx(ctx, tx, user, meta)
		if err != nil {
			return err
		}

		if err := s.repos.Users().TrackSuccessfulLoginTx(ctx, tx, user); err != nil {
			return err
		}

		result = &LoginResult{User: user, RefreshToken: session.Token}
		return nil
	})
	if err != nil {
		return nil, err
	}

	access, err := s.tokenService.Generate(NewIdentityFromUser(user))
	if err != nil {
		return nil, err
	}
	result.AccessToken = access

	s.emitAuthEvent(ctx, ActivityEventMFASuccess, s.actorForUser(user), user.ID.String(), nil)
	s.emitAuthEvent(ctx, ActivityEventLoginSuccess, s.actorForUser(user), user.ID.String(), map[string]any{
		"mfa": true,
	})

	return result, nil
}

// Refresh exchanges a live refresh token for a fresh access token.
// With rotation enabled the refresh token itself is replaced.
func (s *Auther) Refresh(ctx context.Context, refreshToken string) (*LoginResult, error) {
	if refreshToken == "" {
		return nil, ErrTokenRequired
	}

	session, err := s.repos.Sessions().GetByToken(ctx, refreshToken)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, ErrInvalidToken
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to load session")
	}

	now := s.now()
	if session.Expired(now) {
		if err := s.repos.Sessions().DeleteByToken(ctx, session.UserID, session.Token); err != nil {
			s.logger.Warn("failed to drop expired session: %v", err)
		}
		return nil, ErrInvalidToken
	}

	user, err := s.repos.Users().GetByID(ctx, session.UserID.String())
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, ErrInvalidToken
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to load session owner")
	}

	user.EnsureStatus()
	if err := statusAuthError(user.Status); err != nil {
		return nil, err
	}

	access, err := s.tokenService.Generate(NewIdentityFromUser(user))
	if err != nil {
		return nil, err
	}

	result := &LoginResult{User: user, AccessToken: access, RefreshToken: session.Token}

	if s.rotateRefresh {
		meta := LoginMetadata{IP: session.IP, UserAgent: session.UserAgent}
		err = s.repos.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
			if err := s.repos.Sessions().DeleteByTokenTx(ctx, tx, session.UserID, session.Token); err != nil {
				return err
			}
			next, err := s.createSessionTx(ctx, tx, user, meta)
			if err != nil {
				return err
			}
			result.RefreshToken = next.Token
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	s.emitAuthEvent(ctx, ActivityEventTokenRefresh, s.actorForUser(user), user.ID.String(), map[string]any{
		"rotated": s.rotateRefresh,
	})

	return result, nil
}

// Logout revokes a single session. Revoking an already revoked or
// unknown token succeeds, logout is idempotent.
func (s *Auther) Logout(ctx context.Context, user *User, refreshToken string) error {
	if refreshToken == "" {
		return ErrTokenRequired
	}

	if err := s.repos.Sessions().DeleteByToken(ctx, user.ID, refreshToken); err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to delete session")
	}

	s.emitAuthEvent(ctx, ActivityEventLogout, s.actorForUser(user), user.ID.String(), nil)
	return nil
}

// LogoutAll revokes every session the user holds.
func (s *Auther) LogoutAll(ctx context.Context, user *User) error {
	if err := s.repos.Sessions().DeleteAllForUser(ctx, user.ID); err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to delete sessions")
	}

	s.emitAuthEvent(ctx, ActivityEventLogout, s.actorForUser(user), user.ID.String(), map[string]any{
		"all": true,
	})
	return nil
}

// PurgeExpiredSessions drops sessions past their expiry. Meant to run
// on a schedule outside the request path.
func (s *Auther) PurgeExpiredSessions(ctx context.Context) (int64, error) {
	return s.repos.Sessions().DeleteExpired(ctx, s.now())
}

func (s *Auther) issueMFAChallenge(ctx context.Context, user *User) (*LoginResult, error) {
	var record *VerificationToken
	err := s.repos.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		var err error
		record, err = s.repos.VerificationTokens().IssueTx(ctx, tx, user.ID, PurposeMFAPending, s.mfaTokenTTL)
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to issue mfa challenge")
	}

	challenge, err := s.tokenService.MintActionToken(user.ID.String(), PurposeMFAPending, record.Token)
	if err != nil {
		return nil, err
	}

	s.emitAuthEvent(ctx, ActivityEventMFAChallenge, s.actorForUser(user), user.ID.String(), nil)

	return &LoginResult{RequiresMFA: true, MFAToken: challenge}, nil
}

func (s *Auther) establishSession(ctx context.Context, user *User, meta LoginMetadata, event ActivityEventType) (*LoginResult, error) {
	var session *Session
	err := s.repos.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		var err error
		if session, err = s.createSessionTx(ctx, tx, user, meta); err != nil {
			return err
		}
		return s.repos.Users().TrackSuccessfulLoginTx(ctx, tx, user)
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to establish session")
	}

	access, err := s.tokenService.Generate(NewIdentityFromUser(user))
	if err != nil {
		return nil, err
	}

	s.emitAuthEvent(ctx, event, s.actorForUser(user), user.ID.String(), nil)

	return &LoginResult{
		User:         user,
		AccessToken:  access,
		RefreshToken: session.Token,
	}, nil
}

func (s *Auther) createSessionTx(ctx context.Context, tx bun.IDB, user *User, meta LoginMetadata) (*Session, error) {
	token, err := NewOpaqueToken()
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to generate session token")
	}

	session := &Session{
		UserID:    user.ID,
		Token:     token,
		IP:        meta.IP,
		UserAgent: meta.UserAgent,
		ExpiresAt: s.now().Add(s.sessionTTL),
	}

	return s.repos.Sessions().CreateTx(ctx, tx, session)
}

func (s *Auther) emitAuthEvent(ctx context.Context, eventType ActivityEventType, actor ActorRef, userID string, metadata map[string]any) {
	sink := normalizeActivitySink(s.activitySink)
	event := ActivityEvent{
		EventType: eventType,
		Actor:     actor,
		UserID:    userID,
		Metadata:  metadata,
	}

	if event.Metadata == nil {
		event.Metadata = map[string]any{}
	}

	if event.OccurredAt.IsZero() {
		event.OccurredAt = s.now()
	}

	if err := sink.Record(ctx, event); err != nil {
		s.logger.Warn("activity sink record error: %v", err)
	}
}

func (s *Auther) actorForUser(user *User) ActorRef {
	if user == nil {
		return ActorRef{Type: "unknown"}
	}
	return ActorRef{ID: user.ID.String(), Type: "user"}
}
