// Package ui implements the watch client, an interactive terminal interface using bubbletea's Elm architecture.
//
// The client joins one session over WebSocket ([Dial]) and works across views:
//  1. [QueueView] : The now-playing track and the vote-ordered queue. Vote with v.
//  2. [SearchView] : Type a query, pick a result, and queue it.
//  3. [DevicesView] : List the host's Spotify Connect devices and transfer playback.
//  4. [ClosedView] : Shown after the host ends the session or the connection drops.
//
// The (view) [Model] implements bubbletea/Elm's standard Init/Update/View pattern, receiving messages via the Msg union type.
// Server pushes are read one at a time by a command that re-arms itself after each message.
//
// Keyboard navigation uses vim-style bindings (j/k, enter, esc, q) with contextual help displayed via charmbracelet/bubbles/help.
package ui
