// Package services provides clients for the external HTTP APIs the
// application aggregates.
//
// # Clients
//
//   - [SpotifyService] : catalog search, artist data, and playlist creation
//   - [SetlistService] : past concert setlists from Setlist.fm
//   - [BandsintownService] : upcoming shows from Bandsintown
//
// Each client owns its typed response structs and a doRequest helper bounded
// by a finite timeout. Calls made on a user's behalf take the user's access
// token as an explicit parameter; token lifecycle belongs to the auth
// package, which keeps these clients stateless and safe to share across
// concurrent requests.
//
// Setlist.fm enforces a small request budget, so [SetlistService] waits on a
// shared rate limiter before every call.
package services
