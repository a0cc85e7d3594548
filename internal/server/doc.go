// Package server provides HTTP routing, middleware, and the page handlers
// for the application.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
//
// The [BasicRouter] implementation registers method-qualified patterns on an
// [http.ServeMux], so path wildcards and method dispatch come from the
// standard mux.
//
// # Session Middleware
//
// [WithSession] resolves the opaque session cookie into the user and session
// records and stores them on the request context; [UserFrom] and
// [SessionFrom] read them back. Anonymous requests pass through untouched.
// Handlers behind the login wall are wrapped per route rather than globally,
// since most of the auth surface must stay reachable while signed out.
//
// # Handlers
//
// [App] owns the full page surface: account registration and login, the
// password recovery flow, the OAuth link/callback pair, artist search and
// detail pages, and playlist previews and builds. External services enter as
// narrow interfaces ([Catalog], [SetlistSource], [EventSource],
// [PlaylistBuilder]) so tests can stub providers without HTTP fixtures.
package server
