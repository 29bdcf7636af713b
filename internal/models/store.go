package models

import "context"

// Store is durable per-session persistence of credentials, queue entries, and votes.
//
// Implementations must make each method atomic; multi-step changes that depend on a read go through [Store.Begin].
type Store interface {
	SessionExists(ctx context.Context, sessionID string) (bool, error) // SessionExists reports whether the session row exists
	CreateSession(ctx context.Context, session *Session) error         // CreateSession inserts a new session
	Session(ctx context.Context, sessionID string) (*Session, error)   // Session loads a session with its credentials
	ListSessions(ctx context.Context) ([]SessionSummary, error)       // ListSessions returns every session, newest first

	SetCredentials(ctx context.Context, sessionID string, creds *Credentials) error // SetCredentials replaces the token set
	SetDevice(ctx context.Context, sessionID, deviceID string) error                // SetDevice records the playback target

	Queue(ctx context.Context, sessionID string) ([]QueueEntry, error) // Queue lists entries by votes desc, sequence asc

	// InsertVote records a vote unique on (connection, session, track) and increments the entry's count.
	// It returns false without changing anything when the vote already exists or the track is not queued.
	InsertVote(ctx context.Context, sessionID, connectionID, trackID string) (bool, error)
	VotedTracks(ctx context.Context, sessionID, connectionID string) ([]string, error) // VotedTracks lists a connection's votes

	DeleteSession(ctx context.Context, sessionID string) error // DeleteSession purges votes, queue entries, and the session

	Begin(ctx context.Context) (StoreTx, error) // Begin starts a transaction for read-then-write steps
}

// StoreTx is a transaction over one or more sessions' playback state.
//
// Callers must end every StoreTx with Commit or Rollback.
type StoreTx interface {
	CurrentTrack(sessionID string) (string, error) // CurrentTrack returns "" when none is set
	SetCurrentTrack(sessionID, trackID string) error
	ClearCurrentTrack(sessionID string) error

	// InsertQueueEntry adds a track; an existing (session, track) entry is left untouched.
	InsertQueueEntry(sessionID, trackID string) (bool, error)
	// PopQueueEntry removes and returns the highest-voted entry along with its votes, or nil when the queue is empty.
	PopQueueEntry(sessionID string) (*QueueEntry, error)
	RemoveVotes(sessionID, trackID string) error

	Commit() error
	Rollback() error
}
