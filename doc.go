// Package auth implements the credential and session lifecycle for user
// accounts: registration with email verification, password login with an
// optional TOTP second factor, access/refresh token pairs, logout, and
// password reset.
//
// Token model:
//   - Access tokens are short-lived signed JWTs validated statelessly.
//   - Refresh tokens are opaque random values backed by a sessions row,
//     so revocation (logout, password reset) takes effect immediately.
//   - Verification, reset, and pending-MFA tokens are single-use rows in
//     the verification_tokens table; consuming one is an atomic
//     conditional update, so a token can never be spent twice.
//
// User lifecycle:
//   - Users carry a UserStatus field that is persisted via Bun. Accounts
//     start pending, activate on email verification, and can be suspended
//     or deactivated. UserStateMachine centralizes the transition graph.
//
// Activity sinks:
//   - ActivitySink is a light-weight audit emitter used by Auther and the
//     workflow handlers to describe registration, login, MFA, refresh,
//     logout, and password reset events. Sinks run best-effort (errors
//     are logged) so you can forward to a database or queue without
//     blocking authentication.
//
// Anti-enumeration:
//   - Login returns the same error for unknown emails and wrong
//     passwords, and the verification resend and password reset request
//     endpoints answer identically whether or not the email is known.
package auth
