package auth

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasTextCode(t *testing.T) {
	assert.True(t, HasTextCode(ErrUserExists, TextCodeUserExists))
	assert.True(t, HasTextCode(ErrInvalidCredentials, TextCodeInvalidCredentials))
	assert.False(t, HasTextCode(ErrUserExists, TextCodeInvalidCredentials))
	assert.False(t, HasTextCode(nil, TextCodeUserExists))
	assert.False(t, HasTextCode(errors.New("plain"), TextCodeUserExists))
}

func TestStatusAuthError(t *testing.T) {
	assert.NoError(t, statusAuthError(UserStatusActive))
	assert.NoError(t, statusAuthError(""))

	for _, status := range []UserStatus{UserStatusPending, UserStatusSuspended, UserStatusInactive} {
		err := statusAuthError(status)
		assert.Error(t, err)
		assert.True(t, HasTextCode(err, TextCodeAccountInactive))
	}
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, IsUniqueViolation(errors.New("UNIQUE constraint failed: users.email")))
	assert.True(t, IsUniqueViolation(errors.New(`duplicate key value violates unique constraint "idx_users_email"`)))
	assert.True(t, IsUniqueViolation(errors.New("Error 1062: Duplicate entry 'a@b.c' for key 'email'")))
	assert.False(t, IsUniqueViolation(errors.New("connection refused")))
	assert.False(t, IsUniqueViolation(nil))
}
