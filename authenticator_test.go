package auth

import (
	"context"
	"encoding/base32"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAuther(t *testing.T) (RepositoryManager, *Auther, *recordingSink) {
	t.Helper()

	repos := setupTestRepos(t)
	sink := &recordingSink{}
	auther := NewAuthenticator(repos, testConfig()).WithActivitySink(sink)

	return repos, auther, sink
}

func totpCodeForSecret(t *testing.T, secret string, now time.Time) string {
	t.Helper()

	key, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(secret)
	require.NoError(t, err)

	return hotpCode(key, now.Unix()/totpPeriod, totpDigits)
}

func TestLoginSuccess(t *testing.T) {
	repos, auther, sink := newTestAuther(t)
	user := createTestUser(t, repos, "login@example.com", "super secret password", UserStatusActive)

	result, err := auther.Login(context.Background(), user.Email, "super secret password", LoginMetadata{
		IP:        "10.0.0.1",
		UserAgent: "test-agent",
	})
	require.NoError(t, err)

	assert.False(t, result.RequiresMFA)
	assert.NotEmpty(t, result.AccessToken)
	assert.NotEmpty(t, result.RefreshToken)
	assert.Equal(t, user.ID, result.User.ID)

	claims, err := auther.TokenService().Validate(result.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID.String(), claims.UserID())

	session, err := repos.Sessions().GetByToken(context.Background(), result.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, session.UserID)
	assert.Equal(t, "10.0.0.1", session.IP)

	stored, err := repos.Users().GetByEmail(context.Background(), user.Email)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.LoginCount)

	assert.True(t, sink.HasEvent(ActivityEventLoginSuccess))
}

func TestLoginUnknownEmailAndWrongPasswordAreIdentical(t *testing.T) {
	repos, auther, _ := newTestAuther(t)
	user := createTestUser(t, repos, "probe@example.com", "super secret password", UserStatusActive)

	_, errUnknown := auther.Login(context.Background(), "nobody@example.com", "whatever password", LoginMetadata{})
	_, errWrong := auther.Login(context.Background(), user.Email, "not the password", LoginMetadata{})

	require.Error(t, errUnknown)
	require.Error(t, errWrong)
	assert.Equal(t, errUnknown.Error(), errWrong.Error())
	assert.True(t, HasTextCode(errUnknown, TextCodeInvalidCredentials))
	assert.True(t, HasTextCode(errWrong, TextCodeInvalidCredentials))
}

func TestLoginWrongPasswordTracksAttempt(t *testing.T) {
	repos, auther, sink := newTestAuther(t)
	user := createTestUser(t, repos, "tracked@example.com", "super secret password", UserStatusActive)

	_, err := auther.Login(context.Background(), user.Email, "not the password", LoginMetadata{})
	require.Error(t, err)

	stored, err := repos.Users().GetByEmail(context.Background(), user.Email)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.LoginAttempts)

	assert.True(t, sink.HasEvent(ActivityEventLoginFailure))
}

func TestLoginCooldown(t *testing.T) {
	repos, auther, _ := newTestAuther(t)
	user := createTestUser(t, repos, "cooldown@example.com", "super secret password", UserStatusActive)

	for i := 0; i <= MaxLoginAttempts; i++ {
		require.NoError(t, repos.Users().TrackAttemptedLogin(context.Background(), user))
		user.LoginAttempts++
	}

	_, err := auther.Login(context.Background(), user.Email, "super secret password", LoginMetadata{})
	require.Error(t, err)
	assert.True(t, HasTextCode(err, TextCodeTooManyAttempts))
}

func TestLoginInactiveAccount(t *testing.T) {
	repos, auther, _ := newTestAuther(t)

	for _, status := range []UserStatus{UserStatusPending, UserStatusSuspended, UserStatusInactive} {
		user := createTestUser(t, repos, status+"@example.com", "super secret password", status)

		_, err := auther.Login(context.Background(), user.Email, "super secret password", LoginMetadata{})
		require.Error(t, err)
		assert.True(t, HasTextCode(err, TextCodeAccountInactive), "status %s", status)
	}
}

func TestLoginInactiveRequiresValidPassword(t *testing.T) {
	repos, auther, _ := newTestAuther(t)
	user := createTestUser(t, repos, "locked@example.com", "super secret password", UserStatusSuspended)

	// the password is checked first so a suspended account cannot be
	// used to probe credentials
	_, err := auther.Login(context.Background(), user.Email, "not the password", LoginMetadata{})
	require.Error(t, err)
	assert.True(t, HasTextCode(err, TextCodeInvalidCredentials))
}

func newMFAUser(t *testing.T, repos RepositoryManager, email string) (*User, string) {
	t.Helper()

	secret, err := GenerateTOTPSecret()
	require.NoError(t, err)

	hash, err := HashPassword("super secret password")
	require.NoError(t, err)

	user, err := repos.Users().Create(context.Background(), &User{
		FirstName:    "Pepe",
		LastName:     "Rone",
		Email:        email,
		PasswordHash: hash,
		Status:       UserStatusActive,
		MFAEnabled:   true,
		MFASecret:    secret,
	})
	require.NoError(t, err)

	return user, secret
}

func TestLoginWithMFAReturnsChallenge(t *testing.T) {
	repos, auther, sink := newTestAuther(t)
	user, _ := newMFAUser(t, repos, "mfa@example.com")

	result, err := auther.Login(context.Background(), user.Email, "super secret password", LoginMetadata{})
	require.NoError(t, err)

	assert.True(t, result.RequiresMFA)
	assert.NotEmpty(t, result.MFAToken)
	assert.Empty(t, result.AccessToken)
	assert.Empty(t, result.RefreshToken)

	// no session until the second factor clears
	purged, err := repos.Sessions().DeleteExpired(context.Background(), time.Now().Add(365*24*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, purged)

	assert.True(t, sink.HasEvent(ActivityEventMFAChallenge))
	assert.False(t, sink.HasEvent(ActivityEventLoginSuccess))
}

func TestConfirmMFASuccess(t *testing.T) {
	repos, auther, sink := newTestAuther(t)
	user, secret := newMFAUser(t, repos, "mfa-ok@example.com")

	challenge, err := auther.Login(context.Background(), user.Email, "super secret password", LoginMetadata{})
	require.NoError(t, err)

	code := totpCodeForSecret(t, secret, time.Now())
	result, err := auther.ConfirmMFA(context.Background(), challenge.MFAToken, code, LoginMetadata{IP: "10.0.0.2"})
	require.NoError(t, err)

	assert.NotEmpty(t, result.AccessToken)
	assert.NotEmpty(t, result.RefreshToken)

	session, err := repos.Sessions().GetByToken(context.Background(), result.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, session.UserID)

	assert.True(t, sink.HasEvent(ActivityEventMFASuccess))
	assert.True(t, sink.HasEvent(ActivityEventLoginSuccess))
}

func TestConfirmMFAChallengeIsSingleUse(t *testing.T) {
	repos, auther, _ := newTestAuther(t)
	user, secret := newMFAUser(t, repos, "mfa-once@example.com")

	challenge, err := auther.Login(context.Background(), user.Email, "super secret password", LoginMetadata{})
	require.NoError(t, err)

	code := totpCodeForSecret(t, secret, time.Now())
	_, err = auther.ConfirmMFA(context.Background(), challenge.MFAToken, code, LoginMetadata{})
	require.NoError(t, err)

	// replaying the same challenge must fail even with a fresh code
	_, err = auther.ConfirmMFA(context.Background(), challenge.MFAToken, totpCodeForSecret(t, secret, time.Now()), LoginMetadata{})
	require.Error(t, err)
	assert.True(t, HasTextCode(err, TextCodeInvalidToken))
}

func TestConfirmMFAWrongCodeKeepsChallengeUsable(t *testing.T) {
	repos, auther, sink := newTestAuther(t)
	user, secret := newMFAUser(t, repos, "mfa-retry@example.com")

	challenge, err := auther.Login(context.Background(), user.Email, "super secret password", LoginMetadata{})
	require.NoError(t, err)

	_, err = auther.ConfirmMFA(context.Background(), challenge.MFAToken, "000000", LoginMetadata{})
	require.Error(t, err)
	assert.True(t, HasTextCode(err, TextCodeInvalidMFACode))
	assert.True(t, sink.HasEvent(ActivityEventMFAFailure))

	// a typo does not burn the challenge
	code := totpCodeForSecret(t, secret, time.Now())
	_, err = auther.ConfirmMFA(context.Background(), challenge.MFAToken, code, LoginMetadata{})
	require.NoError(t, err)
}

func TestConfirmMFARejectsNonChallengeTokens(t *testing.T) {
	repos, auther, _ := newTestAuther(t)
	user := createTestUser(t, repos, "mfa-access@example.com", "super secret password", UserStatusActive)

	login, err := auther.Login(context.Background(), user.Email, "super secret password", LoginMetadata{})
	require.NoError(t, err)

	// an access token never satisfies the MFA purpose
	_, err = auther.ConfirmMFA(context.Background(), login.AccessToken, "123456", LoginMetadata{})
	require.Error(t, err)
	assert.True(t, HasTextCode(err, TextCodeInvalidToken))

	_, err = auther.ConfirmMFA(context.Background(), "", "123456", LoginMetadata{})
	assert.True(t, HasTextCode(err, TextCodeTokenRequired))
}

func TestRefreshSuccess(t *testing.T) {
	repos, auther, sink := newTestAuther(t)
	user := createTestUser(t, repos, "refresh@example.com", "super secret password", UserStatusActive)

	login, err := auther.Login(context.Background(), user.Email, "super secret password", LoginMetadata{})
	require.NoError(t, err)

	result, err := auther.Refresh(context.Background(), login.RefreshToken)
	require.NoError(t, err)

	assert.NotEmpty(t, result.AccessToken)
	// rotation is off by default, the token is reusable
	assert.Equal(t, login.RefreshToken, result.RefreshToken)

	assert.True(t, sink.HasEvent(ActivityEventTokenRefresh))
}

func TestRefreshWithRotation(t *testing.T) {
	repos, auther, _ := newTestAuther(t)
	auther.WithRefreshRotation()
	user := createTestUser(t, repos, "rotate@example.com", "super secret password", UserStatusActive)

	login, err := auther.Login(context.Background(), user.Email, "super secret password", LoginMetadata{})
	require.NoError(t, err)

	result, err := auther.Refresh(context.Background(), login.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, login.RefreshToken, result.RefreshToken)

	// the old token is dead
	_, err = auther.Refresh(context.Background(), login.RefreshToken)
	require.Error(t, err)
	assert.True(t, HasTextCode(err, TextCodeInvalidToken))

	// the new one works
	_, err = auther.Refresh(context.Background(), result.RefreshToken)
	require.NoError(t, err)
}

func TestRefreshErrors(t *testing.T) {
	repos, auther, _ := newTestAuther(t)

	_, err := auther.Refresh(context.Background(), "")
	assert.True(t, HasTextCode(err, TextCodeTokenRequired))

	_, err = auther.Refresh(context.Background(), "unknown-token")
	assert.True(t, HasTextCode(err, TextCodeInvalidToken))

	// expired session
	user := createTestUser(t, repos, "stale@example.com", "super secret password", UserStatusActive)
	login, err := auther.Login(context.Background(), user.Email, "super secret password", LoginMetadata{})
	require.NoError(t, err)

	auther.WithClock(func() time.Time { return time.Now().Add(25 * time.Hour) })
	_, err = auther.Refresh(context.Background(), login.RefreshToken)
	assert.True(t, HasTextCode(err, TextCodeInvalidToken))
}

func TestRefreshSuspendedOwner(t *testing.T) {
	repos, auther, _ := newTestAuther(t)
	user := createTestUser(t, repos, "suspended-refresh@example.com", "super secret password", UserStatusActive)

	login, err := auther.Login(context.Background(), user.Email, "super secret password", LoginMetadata{})
	require.NoError(t, err)

	_, err = repos.Users().Suspend(context.Background(), ActorRef{Type: "admin"}, user)
	require.NoError(t, err)

	_, err = auther.Refresh(context.Background(), login.RefreshToken)
	require.Error(t, err)
	assert.True(t, HasTextCode(err, TextCodeAccountInactive))
}

func TestLogout(t *testing.T) {
	repos, auther, sink := newTestAuther(t)
	user := createTestUser(t, repos, "logout@example.com", "super secret password", UserStatusActive)

	login, err := auther.Login(context.Background(), user.Email, "super secret password", LoginMetadata{})
	require.NoError(t, err)

	require.NoError(t, auther.Logout(context.Background(), user, login.RefreshToken))

	_, err = auther.Refresh(context.Background(), login.RefreshToken)
	assert.True(t, HasTextCode(err, TextCodeInvalidToken))

	// logout is idempotent
	require.NoError(t, auther.Logout(context.Background(), user, login.RefreshToken))

	assert.True(t, sink.HasEvent(ActivityEventLogout))
}

func TestLogoutAll(t *testing.T) {
	repos, auther, _ := newTestAuther(t)
	user := createTestUser(t, repos, "logout-all@example.com", "super secret password", UserStatusActive)

	first, err := auther.Login(context.Background(), user.Email, "super secret password", LoginMetadata{})
	require.NoError(t, err)
	second, err := auther.Login(context.Background(), user.Email, "super secret password", LoginMetadata{})
	require.NoError(t, err)

	require.NoError(t, auther.LogoutAll(context.Background(), user))

	for _, token := range []string{first.RefreshToken, second.RefreshToken} {
		_, err = auther.Refresh(context.Background(), token)
		assert.True(t, HasTextCode(err, TextCodeInvalidToken))
	}
}

func TestPurgeExpiredSessions(t *testing.T) {
	repos, auther, _ := newTestAuther(t)
	user := createTestUser(t, repos, "purge@example.com", "super secret password", UserStatusActive)

	_, err := auther.Login(context.Background(), user.Email, "super secret password", LoginMetadata{})
	require.NoError(t, err)

	auther.WithClock(func() time.Time { return time.Now().Add(25 * time.Hour) })
	purged, err := auther.PurgeExpiredSessions(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, purged)
}
