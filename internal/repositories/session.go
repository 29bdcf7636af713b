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

// sessionRow mirrors the sessions table.
type sessionRow struct {
	ID           string         `db:"id"`
	AccessToken  string         `db:"access_token"`
	RefreshToken string         `db:"refresh_token"`
	TokenType    string         `db:"token_type"`
	ExpiresAt    sql.NullTime   `db:"expires_at"`
	Market       string         `db:"market"`
	DeviceID     sql.NullString `db:"device_id"`
	CurrentTrack sql.NullString `db:"current_track"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
	HostToken    string         `db:"host_token_hash"`
}

func (r sessionRow) toModel() *models.Session {
	s := &models.Session{
		ID: r.ID,
		Credentials: models.Credentials{
			AccessToken:  r.AccessToken,
			RefreshToken: r.RefreshToken,
			TokenType:    r.TokenType,
			Market:       r.Market,
		},
		DeviceID:      r.DeviceID.String,
		CurrentTrack:  r.CurrentTrack.String,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
		HostTokenHash: r.HostToken,
	}
	if r.ExpiresAt.Valid {
		s.Credentials.Expiry = r.ExpiresAt.Time
	}
	return s
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t.UTC(), Valid: !t.IsZero()}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// SessionRepository persists [models.Session] rows.
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository creates a new [SessionRepository] with the given database connection
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// SessionExists reports whether a session row exists.
func (r *SessionRepository) SessionExists(ctx context.Context, sessionID string) (bool, error) {
	var n int
	q := r.db.Rebind("SELECT COUNT(*) FROM sessions WHERE id = ?")
	if err := r.db.GetContext(ctx, &n, q, sessionID); err != nil {
		return false, fmt.Errorf("failed to query session: %w", err)
	}
	return n > 0, nil
}

// CreateSession inserts a new session. Timestamps are set here.
func (r *SessionRepository) CreateSession(ctx context.Context, session *models.Session) error {
	if err := session.Validate(); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}

	now := time.Now().UTC()
	session.CreatedAt, session.UpdatedAt = now, now

	tokenType := session.Credentials.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}

	q := r.db.Rebind(`
		INSERT INTO sessions (id, access_token, refresh_token, token_type, expires_at, market, device_id, current_track, created_at, updated_at, host_token_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	_, err := r.db.ExecContext(ctx, q,
		session.ID,
		session.Credentials.AccessToken,
		session.Credentials.RefreshToken,
		tokenType,
		nullTime(session.Credentials.Expiry),
		session.Credentials.MarketOrDefault(),
		nullString(session.DeviceID),
		nullString(session.CurrentTrack),
		now,
		now,
		session.HostTokenHash,
	)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

// Session loads a session by id.
func (r *SessionRepository) Session(ctx context.Context, sessionID string) (*models.Session, error) {
	var row sessionRow
	q := r.db.Rebind(`
		SELECT id, access_token, refresh_token, token_type, expires_at, market, device_id, current_track, created_at, updated_at, host_token_hash
		FROM sessions
		WHERE id = ?
	`)
	err := r.db.GetContext(ctx, &row, q, sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", shared.ErrSessionNotFound, sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query session: %w", err)
	}
	return row.toModel(), nil
}

// ListSessions returns a summary of every session, newest first.
func (r *SessionRepository) ListSessions(ctx context.Context) ([]models.SessionSummary, error) {
	var rows []struct {
		ID           string         `db:"id"`
		CurrentTrack sql.NullString `db:"current_track"`
		CreatedAt    time.Time      `db:"created_at"`
		QueueLength  int            `db:"queue_length"`
	}
	q := `
		SELECT s.id, s.current_track, s.created_at,
			(SELECT COUNT(*) FROM queued_tracks q WHERE q.session_id = s.id) AS queue_length
		FROM sessions s
		ORDER BY s.created_at DESC
	`
	if err := r.db.SelectContext(ctx, &rows, q); err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	summaries := make([]models.SessionSummary, 0, len(rows))
	for _, row := range rows {
		summaries = append(summaries, models.SessionSummary{
			ID:           row.ID,
			CurrentTrack: row.CurrentTrack.String,
			QueueLength:  row.QueueLength,
			CreatedAt:    row.CreatedAt,
		})
	}
	return summaries, nil
}

// SetCredentials replaces the session's token set. An empty refresh token keeps the stored one.
func (r *SessionRepository) SetCredentials(ctx context.Context, sessionID string, creds *models.Credentials) error {
	if creds == nil || creds.AccessToken == "" {
		return fmt.Errorf("%w: access token is required", shared.ErrInvalidInput)
	}

	set := "access_token = ?, expires_at = ?, updated_at = ?"
	args := []any{creds.AccessToken, nullTime(creds.Expiry), time.Now().UTC()}
	if creds.RefreshToken != "" {
		set += ", refresh_token = ?"
		args = append(args, creds.RefreshToken)
	}
	args = append(args, sessionID)

	q := r.db.Rebind("UPDATE sessions SET " + set + " WHERE id = ?")
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("failed to update credentials: %w", err)
	}
	return requireRow(res, sessionID)
}

// SetDevice records the device playback should target.
func (r *SessionRepository) SetDevice(ctx context.Context, sessionID, deviceID string) error {
	q := r.db.Rebind("UPDATE sessions SET device_id = ?, updated_at = ? WHERE id = ?")
	res, err := r.db.ExecContext(ctx, q, nullString(deviceID), time.Now().UTC(), sessionID)
	if err != nil {
		return fmt.Errorf("failed to update device: %w", err)
	}
	return requireRow(res, sessionID)
}

// DeleteSession removes the session's votes, queue entries, and record in one transaction.
func (r *SessionRepository) DeleteSession(ctx context.Context, sessionID string) error {
	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		for _, table := range []string{"votes", "queued_tracks"} {
			q := tx.Rebind(fmt.Sprintf("DELETE FROM %s WHERE session_id = ?", table))
			if _, err := tx.ExecContext(ctx, q, sessionID); err != nil {
				return fmt.Errorf("failed to delete %s: %w", table, err)
			}
		}

		res, err := tx.ExecContext(ctx, tx.Rebind("DELETE FROM sessions WHERE id = ?"), sessionID)
		if err != nil {
			return fmt.Errorf("failed to delete session: %w", err)
		}
		return requireRow(res, sessionID)
	})
}

// requireRow maps an UPDATE/DELETE that touched nothing to [shared.ErrSessionNotFound].
func requireRow(res sql.Result, sessionID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", shared.ErrSessionNotFound, sessionID)
	}
	return nil
}
