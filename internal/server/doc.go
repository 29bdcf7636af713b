// Package server exposes sessions over HTTP and WebSocket.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
// [RequestLogger] is installed on every route.
//
// The [BasicRouter] implementation uses [http.ServeMux] internally with method filtering.
//
// # Session Lifecycle
//
// A host creates a session through [OAuthHandler]: GET /create redirects to Spotify with a state cookie,
// and GET /callback exchanges the code, stores the credentials under a new session id, and marks the
// browser as host. Peers join with GET /join/{id}. Only the host may POST /session/{id}/kill.
//
// # WebSocket Transport
//
// GET /session/{id}/ws upgrades to a [Client]. Each client has its own connection id, a buffered send
// channel the hub delivers into, and a heartbeat: the server pings on an interval and drops the
// connection when nothing, pong included, arrives within the client timeout.
//
// Inbound text frames are JSON objects tagged by "type" and decoded with [DecodeRequest].
// Frames that do not decode are ignored.
package server
