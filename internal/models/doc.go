// Package models defines domain entities, message contracts, and persistence interfaces for the queuetify session service.
//
// The package contains three categories of types:
//
// 1. Domain data shared by every layer
//   - [Session] and [Credentials] : one playback party and its Spotify token set
//   - [QueueEntry] : a queued track with its vote count and insertion order
//   - [Track], [Playback], [Device] : Player-side reports
//   - [TrackInfo] and [StateSnapshot] : the read-only projection sent to clients
//
// 2. Message contracts between the hub and the engine
//   - [Request] : a closed set (Search, Queue, Vote, GetState, PollState, Refresh, Kill, Devices, Transfer, VotedTracks)
//   - [Reply] : a closed set (SearchComplete, StateUpdate, KillComplete, DevicesComplete, TransferComplete, VotedTracksComplete, RefreshScheduled)
//   - [Envelope] : the tagged server-to-client push
//
// 3. Persistence interfaces
//   - [Store] and [StoreTx] : implemented by the repositories package
//
// Both contract sets are sealed with unexported marker methods, so a type switch over them can be exhaustive.
package models
