package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/desertthunder/queuetify/internal/models"
	"github.com/desertthunder/queuetify/internal/shared"
	"github.com/jmoiron/sqlx"
)

// setupTestDB creates an in-memory SQLite database with migrations applied
func setupTestDB(t *testing.T) *sqlx.DB {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

// setupStore returns a store holding one session with id "s1".
func setupStore(t *testing.T) *SQLStore {
	t.Helper()
	store := NewSQLStore(setupTestDB(t))
	session := &models.Session{
		ID: "s1",
		Credentials: models.Credentials{
			AccessToken:  "access",
			RefreshToken: "refresh",
			Expiry:       time.Now().Add(time.Hour),
			Market:       "SE",
		},
	}
	if err := store.CreateSession(context.Background(), session); err != nil {
		t.Fatalf("failed to create session: %v", err)
	}
	return store
}

// queueTracks inserts trackIDs in order through a committed transaction.
func queueTracks(t *testing.T, store *SQLStore, sessionID string, trackIDs ...string) {
	t.Helper()
	tx, err := store.Begin(context.Background())
	if err != nil {
		t.Fatalf("failed to begin: %v", err)
	}
	defer tx.Rollback()

	for _, id := range trackIDs {
		if _, err := tx.InsertQueueEntry(sessionID, id); err != nil {
			t.Fatalf("failed to queue %s: %v", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("failed to commit: %v", err)
	}
}

func vote(t *testing.T, store *SQLStore, connectionID, trackID string) bool {
	t.Helper()
	ok, err := store.InsertVote(context.Background(), "s1", connectionID, trackID)
	if err != nil {
		t.Fatalf("failed to vote: %v", err)
	}
	return ok
}

func trackIDs(entries []models.QueueEntry) []string {
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.TrackID
	}
	return ids
}

func TestSessionRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("Create and Session", func(t *testing.T) {
		store := setupStore(t)

		s, err := store.Session(ctx, "s1")
		if err != nil {
			t.Fatalf("failed to get session: %v", err)
		}
		if s.Credentials.AccessToken != "access" || s.Credentials.RefreshToken != "refresh" {
			t.Errorf("unexpected credentials: %+v", s.Credentials)
		}
		if s.Credentials.Market != "SE" {
			t.Errorf("expected market SE, got %s", s.Credentials.Market)
		}
		if s.Credentials.TokenType != "Bearer" {
			t.Errorf("expected default token type Bearer, got %s", s.Credentials.TokenType)
		}
		if s.CurrentTrack != "" || s.DeviceID != "" {
			t.Errorf("expected empty current track and device, got %q %q", s.CurrentTrack, s.DeviceID)
		}
		if s.CreatedAt.IsZero() {
			t.Error("expected created_at to be set")
		}
	})

	t.Run("Create rejects invalid session", func(t *testing.T) {
		store := NewSQLStore(setupTestDB(t))
		err := store.CreateSession(ctx, &models.Session{ID: "s1"})
		if !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("host token hash round-trips", func(t *testing.T) {
		store := NewSQLStore(setupTestDB(t))
		hash := shared.HashToken("secret")
		session := &models.Session{ID: "s1", Credentials: models.Credentials{AccessToken: "x"}, HostTokenHash: hash}
		if err := store.CreateSession(ctx, session); err != nil {
			t.Fatalf("failed to create session: %v", err)
		}

		got, err := store.Session(ctx, "s1")
		if err != nil {
			t.Fatalf("failed to get session: %v", err)
		}
		if got.HostTokenHash != hash {
			t.Errorf("expected hash %q, got %q", hash, got.HostTokenHash)
		}
	})

	t.Run("Create duplicate fails", func(t *testing.T) {
		store := setupStore(t)
		dup := &models.Session{ID: "s1", Credentials: models.Credentials{AccessToken: "x"}}
		if err := store.CreateSession(ctx, dup); err == nil {
			t.Error("expected error for duplicate session id")
		}
	})

	t.Run("SessionExists", func(t *testing.T) {
		store := setupStore(t)

		tests := []struct {
			id   string
			want bool
		}{
			{"s1", true},
			{"missing", false},
		}
		for _, tt := range tests {
			got, err := store.SessionExists(ctx, tt.id)
			if err != nil {
				t.Fatalf("SessionExists(%s): %v", tt.id, err)
			}
			if got != tt.want {
				t.Errorf("SessionExists(%s) = %v, want %v", tt.id, got, tt.want)
			}
		}
	})

	t.Run("Session not found", func(t *testing.T) {
		store := setupStore(t)
		if _, err := store.Session(ctx, "missing"); !errors.Is(err, shared.ErrSessionNotFound) {
			t.Errorf("expected ErrSessionNotFound, got %v", err)
		}
	})

	t.Run("SetCredentials keeps refresh token when empty", func(t *testing.T) {
		store := setupStore(t)

		err := store.SetCredentials(ctx, "s1", &models.Credentials{AccessToken: "new-access", Expiry: time.Now().Add(time.Hour)})
		if err != nil {
			t.Fatalf("failed to set credentials: %v", err)
		}

		s, _ := store.Session(ctx, "s1")
		if s.Credentials.AccessToken != "new-access" {
			t.Errorf("expected new access token, got %s", s.Credentials.AccessToken)
		}
		if s.Credentials.RefreshToken != "refresh" {
			t.Errorf("expected refresh token to be kept, got %s", s.Credentials.RefreshToken)
		}

		err = store.SetCredentials(ctx, "s1", &models.Credentials{AccessToken: "a2", RefreshToken: "r2"})
		if err != nil {
			t.Fatalf("failed to set credentials: %v", err)
		}
		s, _ = store.Session(ctx, "s1")
		if s.Credentials.RefreshToken != "r2" {
			t.Errorf("expected rotated refresh token, got %s", s.Credentials.RefreshToken)
		}
	})

	t.Run("SetCredentials errors", func(t *testing.T) {
		store := setupStore(t)
		if err := store.SetCredentials(ctx, "s1", &models.Credentials{}); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
		err := store.SetCredentials(ctx, "missing", &models.Credentials{AccessToken: "a"})
		if !errors.Is(err, shared.ErrSessionNotFound) {
			t.Errorf("expected ErrSessionNotFound, got %v", err)
		}
	})

	t.Run("SetDevice", func(t *testing.T) {
		store := setupStore(t)
		if err := store.SetDevice(ctx, "s1", "dev-1"); err != nil {
			t.Fatalf("failed to set device: %v", err)
		}
		s, _ := store.Session(ctx, "s1")
		if s.DeviceID != "dev-1" {
			t.Errorf("expected dev-1, got %s", s.DeviceID)
		}
	})

	t.Run("ListSessions", func(t *testing.T) {
		store := setupStore(t)
		queueTracks(t, store, "s1", "a", "b")

		summaries, err := store.ListSessions(ctx)
		if err != nil {
			t.Fatalf("failed to list sessions: %v", err)
		}
		if len(summaries) != 1 {
			t.Fatalf("expected 1 session, got %d", len(summaries))
		}
		if summaries[0].QueueLength != 2 {
			t.Errorf("expected queue length 2, got %d", summaries[0].QueueLength)
		}
	})

	t.Run("DeleteSession purges everything", func(t *testing.T) {
		store := setupStore(t)
		queueTracks(t, store, "s1", "a")
		vote(t, store, "c1", "a")

		if err := store.DeleteSession(ctx, "s1"); err != nil {
			t.Fatalf("failed to delete session: %v", err)
		}

		if ok, _ := store.SessionExists(ctx, "s1"); ok {
			t.Error("session should be gone")
		}

		var votes, queued int
		store.db.Get(&votes, "SELECT COUNT(*) FROM votes")
		store.db.Get(&queued, "SELECT COUNT(*) FROM queued_tracks")
		if votes != 0 || queued != 0 {
			t.Errorf("expected no votes or entries left, got %d votes, %d entries", votes, queued)
		}

		if err := store.DeleteSession(ctx, "s1"); !errors.Is(err, shared.ErrSessionNotFound) {
			t.Errorf("expected ErrSessionNotFound on second delete, got %v", err)
		}
	})
}

func TestQueueRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("re-queueing is idempotent", func(t *testing.T) {
		store := setupStore(t)

		tx, err := store.Begin(ctx)
		if err != nil {
			t.Fatalf("failed to begin: %v", err)
		}
		first, err := tx.InsertQueueEntry("s1", "x")
		if err != nil {
			t.Fatalf("first insert failed: %v", err)
		}
		second, err := tx.InsertQueueEntry("s1", "x")
		if err != nil {
			t.Fatalf("second insert failed: %v", err)
		}
		if err := tx.Commit(); err != nil {
			t.Fatalf("commit failed: %v", err)
		}

		if !first || second {
			t.Errorf("expected (true, false), got (%v, %v)", first, second)
		}

		entries, _ := store.Queue(ctx, "s1")
		if len(entries) != 1 {
			t.Errorf("expected exactly one entry, got %d", len(entries))
		}
	})

	t.Run("votes are unique per connection", func(t *testing.T) {
		store := setupStore(t)
		queueTracks(t, store, "s1", "x")

		if !vote(t, store, "c1", "x") {
			t.Error("first vote should count")
		}
		if vote(t, store, "c1", "x") {
			t.Error("duplicate vote should be a no-op")
		}
		if !vote(t, store, "c2", "x") {
			t.Error("another connection's vote should count")
		}

		entries, _ := store.Queue(ctx, "s1")
		if entries[0].Votes != 2 {
			t.Errorf("expected 2 votes, got %d", entries[0].Votes)
		}
	})

	t.Run("vote for unqueued track is a no-op", func(t *testing.T) {
		store := setupStore(t)
		if vote(t, store, "c1", "ghost") {
			t.Error("expected vote for unqueued track to be rejected")
		}
		ids, _ := store.VotedTracks(ctx, "s1", "c1")
		if len(ids) != 0 {
			t.Errorf("expected no recorded votes, got %v", ids)
		}
	})

	t.Run("queue is ordered by votes then insertion", func(t *testing.T) {
		store := setupStore(t)
		queueTracks(t, store, "s1", "a", "b", "c", "d")
		vote(t, store, "c1", "c")
		vote(t, store, "c2", "c")
		vote(t, store, "c1", "d")
		vote(t, store, "c1", "b")

		entries, err := store.Queue(ctx, "s1")
		if err != nil {
			t.Fatalf("failed to list queue: %v", err)
		}

		want := []string{"c", "b", "d", "a"}
		got := trackIDs(entries)
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("expected order %v, got %v", want, got)
			}
		}
	})

	t.Run("VotedTracks", func(t *testing.T) {
		store := setupStore(t)
		queueTracks(t, store, "s1", "a", "b")
		vote(t, store, "c1", "a")
		vote(t, store, "c1", "b")
		vote(t, store, "c2", "a")

		ids, err := store.VotedTracks(ctx, "s1", "c1")
		if err != nil {
			t.Fatalf("failed to list voted tracks: %v", err)
		}
		if len(ids) != 2 {
			t.Errorf("expected 2 voted tracks, got %v", ids)
		}

		ids, _ = store.VotedTracks(ctx, "s1", "nobody")
		if ids == nil || len(ids) != 0 {
			t.Errorf("expected empty non-nil slice, got %#v", ids)
		}
	})
}

func TestTx(t *testing.T) {
	ctx := context.Background()

	t.Run("current track lifecycle", func(t *testing.T) {
		store := setupStore(t)

		tx, _ := store.Begin(ctx)
		current, err := tx.CurrentTrack("s1")
		if err != nil {
			t.Fatalf("failed to read current track: %v", err)
		}
		if current != "" {
			t.Errorf("expected no current track, got %s", current)
		}
		if err := tx.SetCurrentTrack("s1", "x"); err != nil {
			t.Fatalf("failed to set current track: %v", err)
		}
		if err := tx.Commit(); err != nil {
			t.Fatalf("commit failed: %v", err)
		}

		s, _ := store.Session(ctx, "s1")
		if s.CurrentTrack != "x" {
			t.Errorf("expected current track x, got %s", s.CurrentTrack)
		}

		tx, _ = store.Begin(ctx)
		if err := tx.ClearCurrentTrack("s1"); err != nil {
			t.Fatalf("failed to clear: %v", err)
		}
		tx.Commit()

		s, _ = store.Session(ctx, "s1")
		if s.CurrentTrack != "" {
			t.Errorf("expected cleared current track, got %s", s.CurrentTrack)
		}
	})

	t.Run("rollback discards changes", func(t *testing.T) {
		store := setupStore(t)

		tx, _ := store.Begin(ctx)
		tx.SetCurrentTrack("s1", "x")
		tx.InsertQueueEntry("s1", "y")
		if err := tx.Rollback(); err != nil {
			t.Fatalf("rollback failed: %v", err)
		}
		if err := tx.Rollback(); err != nil {
			t.Errorf("second rollback should be a no-op, got %v", err)
		}

		s, _ := store.Session(ctx, "s1")
		entries, _ := store.Queue(ctx, "s1")
		if s.CurrentTrack != "" || len(entries) != 0 {
			t.Errorf("expected no changes after rollback, got current=%q entries=%d", s.CurrentTrack, len(entries))
		}
	})

	t.Run("CurrentTrack for missing session", func(t *testing.T) {
		store := setupStore(t)
		tx, _ := store.Begin(ctx)
		defer tx.Rollback()
		if _, err := tx.CurrentTrack("missing"); !errors.Is(err, shared.ErrSessionNotFound) {
			t.Errorf("expected ErrSessionNotFound, got %v", err)
		}
	})

	t.Run("pop selects highest votes and clears them", func(t *testing.T) {
		store := setupStore(t)
		queueTracks(t, store, "s1", "A", "B", "C")
		vote(t, store, "c1", "A")
		vote(t, store, "c2", "A")
		for _, c := range []string{"c1", "c2", "c3", "c4", "c5"} {
			vote(t, store, c, "B")
		}

		tx, _ := store.Begin(ctx)
		entry, err := tx.PopQueueEntry("s1")
		if err != nil {
			t.Fatalf("pop failed: %v", err)
		}
		if entry == nil || entry.TrackID != "B" {
			t.Fatalf("expected B, got %+v", entry)
		}
		if entry.Votes != 5 {
			t.Errorf("expected popped entry to report 5 votes, got %d", entry.Votes)
		}
		tx.SetCurrentTrack("s1", entry.TrackID)
		tx.Commit()

		var remaining int
		store.db.Get(&remaining, "SELECT COUNT(*) FROM votes WHERE track_id = 'B'")
		if remaining != 0 {
			t.Errorf("expected B's votes to be cleared, got %d", remaining)
		}

		entries, _ := store.Queue(ctx, "s1")
		got := trackIDs(entries)
		if len(got) != 2 || got[0] != "A" || got[1] != "C" {
			t.Errorf("expected [A C] left, got %v", got)
		}

		// B can be queued and voted for again after being played.
		queueTracks(t, store, "s1", "B")
		if !vote(t, store, "c1", "B") {
			t.Error("expected a fresh vote for re-queued B to count")
		}
	})

	t.Run("pop ties go to earliest queued", func(t *testing.T) {
		store := setupStore(t)
		queueTracks(t, store, "s1", "first", "second")

		tx, _ := store.Begin(ctx)
		defer tx.Rollback()
		entry, err := tx.PopQueueEntry("s1")
		if err != nil {
			t.Fatalf("pop failed: %v", err)
		}
		if entry.TrackID != "first" {
			t.Errorf("expected first, got %s", entry.TrackID)
		}
	})

	t.Run("pop on empty queue", func(t *testing.T) {
		store := setupStore(t)
		tx, _ := store.Begin(ctx)
		defer tx.Rollback()
		entry, err := tx.PopQueueEntry("s1")
		if err != nil {
			t.Fatalf("pop failed: %v", err)
		}
		if entry != nil {
			t.Errorf("expected nil entry, got %+v", entry)
		}
	})
}

func TestNextSequence(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		t.Fatalf("failed to begin: %v", err)
	}
	defer tx.Rollback()

	seq1, err := NextSequence(ctx, tx, "queued_tracks")
	if err != nil {
		t.Fatalf("failed to get first sequence: %v", err)
	}
	if seq1 != 1 {
		t.Errorf("expected first sequence to be 1, got %d", seq1)
	}

	seq2, err := NextSequence(ctx, tx, "queued_tracks")
	if err != nil {
		t.Fatalf("failed to get second sequence: %v", err)
	}
	if seq2 != 2 {
		t.Errorf("expected second sequence to be 2, got %d", seq2)
	}

	if _, err := NextSequence(ctx, tx, "missing"); err == nil {
		t.Error("expected error for table without a sequence")
	}
}
