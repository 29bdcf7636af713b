package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/queuetify/internal/models"
	"github.com/desertthunder/queuetify/internal/shared"
	"github.com/jmoiron/sqlx"
)

const queueColumns = "session_id, track_id, votes, sequence, queued_at"

// queueOrder is the canonical queue ordering: most votes first, earliest queued among equals.
const queueOrder = "ORDER BY votes DESC, sequence ASC"

// QueueRepository persists queue entries and votes.
type QueueRepository struct {
	db *sqlx.DB
}

// NewQueueRepository creates a new [QueueRepository] with the given database connection
func NewQueueRepository(db *sqlx.DB) *QueueRepository {
	return &QueueRepository{db: db}
}

// Queue lists a session's entries in play order.
func (r *QueueRepository) Queue(ctx context.Context, sessionID string) ([]models.QueueEntry, error) {
	var entries []models.QueueEntry
	q := r.db.Rebind("SELECT " + queueColumns + " FROM queued_tracks WHERE session_id = ? " + queueOrder)
	if err := r.db.SelectContext(ctx, &entries, q, sessionID); err != nil {
		return nil, fmt.Errorf("failed to list queue: %w", err)
	}
	return entries, nil
}

// InsertVote records one vote per (connection, session, track) and bumps the entry's count in the same transaction.
//
// Returns false when the track is not queued or the connection already voted for it.
func (r *QueueRepository) InsertVote(ctx context.Context, sessionID, connectionID, trackID string) (bool, error) {
	inserted := false
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var queued int
		q := tx.Rebind("SELECT COUNT(*) FROM queued_tracks WHERE session_id = ? AND track_id = ?")
		if err := tx.GetContext(ctx, &queued, q, sessionID, trackID); err != nil {
			return fmt.Errorf("failed to query queue entry: %w", err)
		}
		if queued == 0 {
			return nil
		}

		q = tx.Rebind(`
			INSERT INTO votes (connection_id, session_id, track_id, voted_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT DO NOTHING
		`)
		res, err := tx.ExecContext(ctx, q, connectionID, sessionID, trackID, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("failed to insert vote: %w", err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		} else if n == 0 {
			return nil
		}

		q = tx.Rebind("UPDATE queued_tracks SET votes = votes + 1 WHERE session_id = ? AND track_id = ?")
		if _, err := tx.ExecContext(ctx, q, sessionID, trackID); err != nil {
			return fmt.Errorf("failed to increment votes: %w", err)
		}

		inserted = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return inserted, nil
}

// VotedTracks lists the tracks a connection has voted for in a session.
func (r *QueueRepository) VotedTracks(ctx context.Context, sessionID, connectionID string) ([]string, error) {
	ids := []string{}
	q := r.db.Rebind("SELECT track_id FROM votes WHERE session_id = ? AND connection_id = ? ORDER BY voted_at, track_id")
	if err := r.db.SelectContext(ctx, &ids, q, sessionID, connectionID); err != nil {
		return nil, fmt.Errorf("failed to list votes: %w", err)
	}
	return ids, nil
}

// Tx implements [models.StoreTx] over a single [sqlx.Tx].
type Tx struct {
	ctx context.Context
	tx  *sqlx.Tx
}

var _ models.StoreTx = (*Tx)(nil)

// CurrentTrack returns the session's current track, or "" when none is set.
func (t *Tx) CurrentTrack(sessionID string) (string, error) {
	var current sql.NullString
	q := t.tx.Rebind("SELECT current_track FROM sessions WHERE id = ?")
	err := t.tx.GetContext(t.ctx, &current, q, sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", shared.ErrSessionNotFound, sessionID)
	}
	if err != nil {
		return "", fmt.Errorf("failed to query current track: %w", err)
	}
	return current.String, nil
}

// SetCurrentTrack stores trackID as the session's current track.
func (t *Tx) SetCurrentTrack(sessionID, trackID string) error {
	if trackID == "" {
		return fmt.Errorf("%w: track id is required", shared.ErrInvalidInput)
	}
	return t.updateCurrent(sessionID, nullString(trackID))
}

// ClearCurrentTrack leaves the session idle.
func (t *Tx) ClearCurrentTrack(sessionID string) error {
	return t.updateCurrent(sessionID, sql.NullString{})
}

func (t *Tx) updateCurrent(sessionID string, track sql.NullString) error {
	q := t.tx.Rebind("UPDATE sessions SET current_track = ?, updated_at = ? WHERE id = ?")
	res, err := t.tx.ExecContext(t.ctx, q, track, time.Now().UTC(), sessionID)
	if err != nil {
		return fmt.Errorf("failed to update current track: %w", err)
	}
	return requireRow(res, sessionID)
}

// InsertQueueEntry queues a track; re-queueing an existing track returns false and changes nothing.
func (t *Tx) InsertQueueEntry(sessionID, trackID string) (bool, error) {
	if trackID == "" {
		return false, fmt.Errorf("%w: track id is required", shared.ErrInvalidInput)
	}

	sequence, err := NextSequence(t.ctx, t.tx, "queued_tracks")
	if err != nil {
		return false, fmt.Errorf("failed to generate sequence: %w", err)
	}

	q := t.tx.Rebind(`
		INSERT INTO queued_tracks (session_id, track_id, votes, sequence, queued_at)
		VALUES (?, ?, 0, ?, ?)
		ON CONFLICT (session_id, track_id) DO NOTHING
	`)
	res, err := t.tx.ExecContext(t.ctx, q, sessionID, trackID, sequence, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("failed to insert queue entry: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// PopQueueEntry removes the highest-voted entry and its votes. Returns nil when the queue is empty.
func (t *Tx) PopQueueEntry(sessionID string) (*models.QueueEntry, error) {
	var entry models.QueueEntry
	q := t.tx.Rebind("SELECT " + queueColumns + " FROM queued_tracks WHERE session_id = ? " + queueOrder + " LIMIT 1")
	err := t.tx.GetContext(t.ctx, &entry, q, sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select next entry: %w", err)
	}

	q = t.tx.Rebind("DELETE FROM queued_tracks WHERE session_id = ? AND track_id = ?")
	if _, err := t.tx.ExecContext(t.ctx, q, sessionID, entry.TrackID); err != nil {
		return nil, fmt.Errorf("failed to delete queue entry: %w", err)
	}

	if err := t.RemoveVotes(sessionID, entry.TrackID); err != nil {
		return nil, err
	}

	return &entry, nil
}

// RemoveVotes deletes every vote for a track in a session.
func (t *Tx) RemoveVotes(sessionID, trackID string) error {
	q := t.tx.Rebind("DELETE FROM votes WHERE session_id = ? AND track_id = ?")
	if _, err := t.tx.ExecContext(t.ctx, q, sessionID, trackID); err != nil {
		return fmt.Errorf("failed to remove votes: %w", err)
	}
	return nil
}

// Commit commits the transaction.
func (t *Tx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Rollback aborts the transaction. Rolling back a finished transaction is not an error.
func (t *Tx) Rollback() error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}
	return nil
}
