// Package services defines the [Player] interface the engine drives and implements it for Spotify.
//
// # Spotify Implementation
//
// [SpotifyService] owns the OAuth2 application config used by the host login flow
// ([SpotifyService.AuthURL], [SpotifyService.Exchange]) and a [rate.Limiter] shared by every session.
//
// [SpotifyService.Player] binds a session's stored credentials to a [SpotifyPlayer].
// Players are cheap and built per request; tokens are refreshed explicitly through
// [SpotifyPlayer.RefreshToken] and persisted by the caller.
//
// # Error Handling
//
// Non-2xx responses decode into [APIError], which matches:
//   - [shared.ErrAPIRequest] : every API failure
//   - [shared.ErrNotAuthenticated] : 401
//   - [shared.ErrForbidden] : 403, usually a non-premium account
//   - [shared.ErrServiceUnavailable] : 503
//
// 429 and 5xx responses are retried up to three times with exponential backoff.
package services
