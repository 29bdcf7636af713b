package engine

import (
	"context"
	"fmt"
	"slices"

	"github.com/desertthunder/queuetify/internal/models"
)

// broadcastState emits the session's snapshot to target, or to every connection when target is empty.
func (e *Engine) broadcastState(ctx context.Context, sessionID, target string) {
	snapshot, err := e.Snapshot(ctx, sessionID)
	if err != nil {
		e.logger.Error("failed to build snapshot", "session", sessionID, "error", err)
		return
	}
	e.emit(ctx, models.StateUpdate{SessionID: sessionID, Target: target, Snapshot: snapshot})
}

// Snapshot projects the session's current track and queue to client-facing [models.TrackInfo].
//
// Ids the Player cannot resolve are logged and left out.
func (e *Engine) Snapshot(ctx context.Context, sessionID string) (models.StateSnapshot, error) {
	s, err := e.store.Session(ctx, sessionID)
	if err != nil {
		return models.StateSnapshot{}, err
	}

	entries, err := e.store.Queue(ctx, sessionID)
	if err != nil {
		return models.StateSnapshot{}, fmt.Errorf("failed to load queue: %w", err)
	}
	models.SortQueue(entries)

	ids := make([]string, 0, len(entries)+1)
	if s.CurrentTrack != "" {
		ids = append(ids, s.CurrentTrack)
	}
	for _, entry := range entries {
		ids = append(ids, entry.TrackID)
	}
	tracks := e.resolve(ctx, s, ids)

	snapshot := models.StateSnapshot{Queue: make([]models.TrackInfo, 0, len(entries))}
	if s.CurrentTrack != "" {
		if t, ok := tracks[s.CurrentTrack]; ok {
			info := t.Info()
			snapshot.CurrentTrack = &info
		} else {
			e.logger.Warn("snapshot: unresolvable current track", "session", sessionID, "track", s.CurrentTrack)
		}
	}

	for _, entry := range entries {
		t, ok := tracks[entry.TrackID]
		if !ok {
			e.logger.Warn("snapshot: skipping unresolvable entry", "session", sessionID, "track", entry.TrackID)
			continue
		}
		info := t.Info()
		info.Votes = entry.Votes
		snapshot.Queue = append(snapshot.Queue, info)
	}

	return snapshot, nil
}

// resolve looks ids up in the cache and fetches the rest from the session's Player.
func (e *Engine) resolve(ctx context.Context, s *models.Session, ids []string) map[string]models.Track {
	tracks := make(map[string]models.Track, len(ids))
	var missing []string
	for _, id := range ids {
		if _, done := tracks[id]; done || slices.Contains(missing, id) {
			continue
		}
		if t, ok := e.tracks.Get(id); ok {
			tracks[id] = t
			continue
		}
		missing = append(missing, id)
	}

	if len(missing) == 0 {
		return tracks
	}

	fetched, err := e.players.Player(s.Credentials).Tracks(ctx, missing)
	if err != nil {
		e.logger.Warn("failed to resolve track metadata", "session", s.ID, "count", len(missing), "error", err)
		return tracks
	}
	for _, t := range fetched {
		e.tracks.Add(t.ID, t)
		tracks[t.ID] = t
	}
	return tracks
}
