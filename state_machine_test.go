package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupStateMachine(t *testing.T) (RepositoryManager, UserStateMachine, *recordingSink) {
	t.Helper()

	repos := setupTestRepos(t)
	sink := &recordingSink{}
	sm := NewUserStateMachine(repos.Users(), WithStateMachineActivitySink(sink))

	return repos, sm, sink
}

func TestStateMachineActivatesPendingUser(t *testing.T) {
	repos, sm, sink := setupStateMachine(t)
	user := createTestUser(t, repos, "pending@example.com", "super secret password", UserStatusPending)

	updated, err := sm.Transition(context.Background(), ActorRef{Type: "system"}, user, UserStatusActive)
	require.NoError(t, err)
	assert.Equal(t, UserStatusActive, updated.Status)

	stored, err := repos.Users().GetByEmail(context.Background(), user.Email)
	require.NoError(t, err)
	assert.Equal(t, UserStatusActive, stored.Status)

	assert.True(t, sink.HasEvent(ActivityEventUserStatusChanged))
}

func TestStateMachineSuspendAndReinstate(t *testing.T) {
	repos, sm, _ := setupStateMachine(t)
	user := createTestUser(t, repos, "active@example.com", "super secret password", UserStatusActive)

	_, err := sm.Transition(context.Background(), ActorRef{Type: "admin"}, user, UserStatusSuspended)
	require.NoError(t, err)
	assert.Equal(t, UserStatusSuspended, user.Status)

	_, err = sm.Transition(context.Background(), ActorRef{Type: "admin"}, user, UserStatusActive)
	require.NoError(t, err)
	assert.Equal(t, UserStatusActive, user.Status)
}

func TestStateMachineRejectsInvalidTransition(t *testing.T) {
	repos, sm, _ := setupStateMachine(t)
	user := createTestUser(t, repos, "pending2@example.com", "super secret password", UserStatusPending)

	_, err := sm.Transition(context.Background(), ActorRef{Type: "admin"}, user, UserStatusSuspended)
	assert.Error(t, err)
	assert.True(t, HasTextCode(err, textCodeInvalidTransition))
}

func TestStateMachineTerminalState(t *testing.T) {
	repos, sm, _ := setupStateMachine(t)
	user := createTestUser(t, repos, "closed@example.com", "super secret password", UserStatusInactive)

	_, err := sm.Transition(context.Background(), ActorRef{Type: "admin"}, user, UserStatusActive)
	assert.Error(t, err)
	assert.True(t, HasTextCode(err, textCodeTerminalState))

	// force bypasses the terminal check for manual repair work
	_, err = sm.Transition(context.Background(), ActorRef{Type: "admin"}, user, UserStatusActive, WithForceTransition())
	require.NoError(t, err)
	assert.Equal(t, UserStatusActive, user.Status)
}

func TestStateMachineSameStatusIsNoop(t *testing.T) {
	repos, sm, sink := setupStateMachine(t)
	user := createTestUser(t, repos, "same@example.com", "super secret password", UserStatusActive)

	_, err := sm.Transition(context.Background(), ActorRef{Type: "admin"}, user, UserStatusActive)
	require.NoError(t, err)
	assert.Empty(t, sink.Events())
}

func TestStateMachineHooks(t *testing.T) {
	repos, sm, _ := setupStateMachine(t)
	user := createTestUser(t, repos, "hooks@example.com", "super secret password", UserStatusPending)

	var before, after TransitionContext
	_, err := sm.Transition(context.Background(), ActorRef{ID: "ops", Type: "admin"}, user, UserStatusActive,
		WithTransitionReason("verified via support"),
		WithBeforeTransitionHook(func(ctx context.Context, tc TransitionContext) error {
			before = tc
			return nil
		}),
		WithAfterTransitionHook(func(ctx context.Context, tc TransitionContext) error {
			after = tc
			return nil
		}),
	)
	require.NoError(t, err)

	assert.Equal(t, UserStatusPending, before.From)
	assert.Equal(t, UserStatusActive, before.To)
	assert.Equal(t, "verified via support", before.Reason)
	assert.Equal(t, "ops", after.Actor.ID)
}

func TestStateMachineBeforeHookAborts(t *testing.T) {
	repos, sm, _ := setupStateMachine(t)
	user := createTestUser(t, repos, "abort@example.com", "super secret password", UserStatusPending)

	boom := errors.New("hook rejected")
	_, err := sm.Transition(context.Background(), ActorRef{Type: "admin"}, user, UserStatusActive,
		WithBeforeTransitionHook(func(ctx context.Context, tc TransitionContext) error {
			return boom
		}),
	)
	assert.ErrorIs(t, err, boom)

	stored, err := repos.Users().GetByEmail(context.Background(), user.Email)
	require.NoError(t, err)
	assert.Equal(t, UserStatusPending, stored.Status)
}
