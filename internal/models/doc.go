// Package models defines domain entities and persistence interfaces for the setplaylist web service.
//
// The package contains two categories of types:
//
// 1. Persistent entities with full lifecycle management:
//   - [User] : accounts with credential hashes and the linked Spotify refresh token
//   - [Playlist] : playlists generated from concert setlists, with their song entries
//
// 2. Transient auth records scoped to the account/session pipeline:
//   - [PendingAuth] : an in-flight OAuth handshake keyed by its one-time state token
//   - [LocalSession] : a server-side session keyed by the opaque cookie value
//   - [ExternalSession] : the provider token pair held for the life of a browser session
//
// Persistent entities implement the [Model] interface providing ID generation,
// timestamps, validation, and soft delete support. The [Repository] interface
// defines standard CRUD operations for database access; auth records have
// narrower, purpose-built repositories because their lifecycles are driven by
// expiry and single-use consumption rather than CRUD.
package models
