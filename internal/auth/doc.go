// Package auth implements the account and external-session pipeline.
//
// Four collaborators cover the full lifecycle of an identity:
//
//   - [CredentialStore] owns user records and credential verification
//   - [SessionManager] maps requests to users via a server-side session cookie
//   - [Broker] runs the two-phase OAuth authorization code handshake
//   - [RefreshCoordinator] trades the stored refresh token for fresh access tokens
//
// Control flow: the session manager gates every request, the credential store
// supplies identity, the broker runs once per registration (or whenever
// re-linking is required), and the refresh coordinator runs once per login and
// before outbound provider calls.
//
// All durable state lives in SQLite through the repositories package. The
// pipeline holds no process-wide mutable maps: pending handshakes and active
// provider sessions are rows with explicit ownership and TTLs, so they survive
// restarts and cannot accumulate unboundedly.
package auth
