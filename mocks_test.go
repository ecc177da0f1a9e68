package auth

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

const (
	sqliteCreateUsers = `CREATE TABLE users (
    id TEXT NOT NULL PRIMARY KEY,
    user_role TEXT NOT NULL DEFAULT 'user',
    first_name TEXT,
    last_name TEXT,
    company TEXT,
    email TEXT NOT NULL UNIQUE,
    password_hash TEXT,
    status TEXT NOT NULL DEFAULT 'pending_verification',
    mfa_enabled BOOLEAN NOT NULL DEFAULT 0,
    mfa_secret TEXT,
    login_count INTEGER NOT NULL DEFAULT 0,
    login_attempts INTEGER NOT NULL DEFAULT 0,
    login_attempt_at TIMESTAMP,
    loggedin_at TIMESTAMP,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    deleted_at TIMESTAMP
);`

	sqliteCreateSessions = `CREATE TABLE sessions (
    id TEXT NOT NULL PRIMARY KEY,
    user_id TEXT NOT NULL,
    token TEXT NOT NULL UNIQUE,
    ip TEXT,
    user_agent TEXT,
    expires_at TIMESTAMP NOT NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (user_id) REFERENCES users (id) ON DELETE CASCADE
);`

	sqliteCreateVerificationTokens = `CREATE TABLE verification_tokens (
    id TEXT NOT NULL PRIMARY KEY,
    user_id TEXT NOT NULL,
    token TEXT NOT NULL UNIQUE,
    purpose TEXT NOT NULL,
    expires_at TIMESTAMP NOT NULL,
    consumed_at TIMESTAMP,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (user_id) REFERENCES users (id) ON DELETE CASCADE
);`
)

func setupTestDB(t *testing.T) *bun.DB {
	t.Helper()

	db, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)

	bunDB := bun.NewDB(db, sqlitedialect.New())

	for _, stmt := range []string{
		sqliteCreateUsers,
		sqliteCreateSessions,
		sqliteCreateVerificationTokens,
	} {
		_, err = bunDB.Exec(stmt)
		require.NoError(t, err)
	}

	t.Cleanup(func() {
		_ = bunDB.Close()
	})

	return bunDB
}

func setupTestRepos(t *testing.T) RepositoryManager {
	t.Helper()
	return NewRepositoryManager(setupTestDB(t))
}

func testConfig() *SimpleConfig {
	return &SimpleConfig{
		SigningKey:      "test-signing-key",
		Issuer:          "auth-test",
		Audience:        []string{"auth-test"},
		AccessTokenTTL:  15,
		SessionTTL:      24,
		OneTimeTokenTTL: 60,
		MFATokenTTL:     5,
	}
}

func createTestUser(t *testing.T, repos RepositoryManager, email, password string, status UserStatus) *User {
	t.Helper()

	hash, err := HashPassword(password)
	require.NoError(t, err)

	user, err := repos.Users().Create(context.Background(), &User{
		FirstName:    "Pepe",
		LastName:     "Rone",
		Email:        email,
		PasswordHash: hash,
		Status:       status,
	})
	require.NoError(t, err)

	return user
}

// recordingSink captures activity events for assertions.
type recordingSink struct {
	mu     sync.Mutex
	events []ActivityEvent
}

func (s *recordingSink) Record(ctx context.Context, event ActivityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) Events() []ActivityEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ActivityEvent, len(s.events))
	copy(out, s.events)
	return out
}

func (s *recordingSink) HasEvent(eventType ActivityEventType) bool {
	for _, e := range s.Events() {
		if e.EventType == eventType {
			return true
		}
	}
	return false
}

// recordingMailer captures outbound messages for assertions. Sends are
// dispatched on goroutines, so waiting is part of the contract.
type recordingMailer struct {
	mu       sync.Mutex
	messages []Message
}

func (m *recordingMailer) Send(ctx context.Context, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
	return nil
}

func (m *recordingMailer) Messages() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Message, len(m.messages))
	copy(out, m.messages)
	return out
}

// WaitForMessage polls until a message arrives or the deadline passes.
func (m *recordingMailer) WaitForMessage(timeout time.Duration) (Message, bool) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if msgs := m.Messages(); len(msgs) > 0 {
			return msgs[len(msgs)-1], true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return Message{}, false
}
