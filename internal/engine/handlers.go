package engine

import (
	"context"
	"errors"
	"time"

	"github.com/desertthunder/queuetify/internal/models"
	"github.com/desertthunder/queuetify/internal/services"
	"github.com/desertthunder/queuetify/internal/shared"
)

// session loads a session and a Player bound to its credentials.
func (e *Engine) session(ctx context.Context, sessionID string) (*models.Session, services.Player, error) {
	s, err := e.store.Session(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	return s, e.players.Player(s.Credentials), nil
}

// search replies to the requesting connection only. A failed search sends nothing.
func (e *Engine) search(ctx context.Context, r models.Search) {
	logger := e.logger.With("session", r.SessionID, "connection", r.ConnectionID)

	s, player, err := e.session(ctx, r.SessionID)
	if err != nil {
		logger.Error("search: failed to load session", "error", err)
		return
	}

	tracks, err := player.Search(ctx, r.Query, s.Credentials.MarketOrDefault(), e.opts.SearchLimit)
	if err != nil {
		logger.Error("search failed", "query", r.Query, "error", err)
		return
	}

	results := make([]models.TrackInfo, 0, min(len(tracks), e.opts.SearchLimit))
	for _, t := range tracks {
		if len(results) == e.opts.SearchLimit {
			break
		}
		if t.ID == "" {
			continue
		}
		e.tracks.Add(t.ID, t)
		results = append(results, t.Info())
	}

	e.emit(ctx, models.SearchComplete{SessionID: r.SessionID, ConnectionID: r.ConnectionID, Tracks: results})
}

// queue starts playback when the session is idle and otherwise adds an entry. Re-queueing is a no-op.
func (e *Engine) queue(ctx context.Context, r models.Queue) {
	logger := e.logger.With("session", r.SessionID, "track", r.TrackID)
	if r.TrackID == "" {
		logger.Warn("queue: empty track id")
		return
	}

	s, player, err := e.session(ctx, r.SessionID)
	if err != nil {
		logger.Error("queue: failed to load session", "error", err)
		return
	}

	tx, err := e.store.Begin(ctx)
	if err != nil {
		logger.Error("queue: failed to begin transaction", "error", err)
		return
	}
	defer tx.Rollback()

	current, err := tx.CurrentTrack(r.SessionID)
	if err != nil {
		logger.Error("queue: failed to read current track", "error", err)
		return
	}

	if current == "" {
		if err := player.StartPlayback(ctx, r.TrackID, s.DeviceID); err != nil {
			logger.Error("queue: failed to start playback", "error", err)
			return
		}
		if err := tx.SetCurrentTrack(r.SessionID, r.TrackID); err != nil {
			logger.Error("queue: failed to set current track", "error", err)
			return
		}
		logger.Info("playback started")
	} else {
		inserted, err := tx.InsertQueueEntry(r.SessionID, r.TrackID)
		if err != nil {
			logger.Error("queue: failed to insert entry", "error", err)
			return
		}
		if !inserted {
			logger.Debug("track already queued")
		}
	}

	if err := tx.Commit(); err != nil {
		logger.Error("queue: commit failed", "error", err)
		return
	}

	e.broadcastState(ctx, r.SessionID, "")
}

// vote counts one vote per connection and track. Duplicates change nothing and broadcast nothing.
func (e *Engine) vote(ctx context.Context, r models.Vote) {
	logger := e.logger.With("session", r.SessionID, "connection", r.ConnectionID, "track", r.TrackID)

	counted, err := e.store.InsertVote(ctx, r.SessionID, r.ConnectionID, r.TrackID)
	if err != nil {
		logger.Error("vote: failed to insert", "error", err)
		return
	}
	if !counted {
		logger.Debug("vote ignored")
		return
	}

	e.broadcastState(ctx, r.SessionID, "")
}

// pollState corrects drift between the stored current track and what the Player reports.
//
// Nothing is enforced while the session has no current track. When the playing track will end
// before the next poll, the highest-voted entry becomes current and is queued on the device.
func (e *Engine) pollState(ctx context.Context, r models.PollState) {
	logger := e.logger.With("session", r.SessionID)

	s, err := e.store.Session(ctx, r.SessionID)
	if err != nil {
		logger.Error("poll: failed to load session", "error", err)
		return
	}
	if s.CurrentTrack == "" {
		return
	}
	logger = logger.With("current", s.CurrentTrack)

	player := e.players.Player(s.Credentials)
	playback, err := player.CurrentPlayback(ctx)
	if err != nil {
		logger.Error("poll: failed to read playback", "error", err)
		return
	}

	switch {
	case playback == nil:
		logger.Info("nothing playing, restarting current track")
		if err := player.StartPlayback(ctx, s.CurrentTrack, s.DeviceID); err != nil {
			logger.Error("poll: failed to start playback", "error", err)
		}
		return
	case playback.Item == nil:
		logger.Warn("poll: playing item could not be resolved")
		return
	case playback.Item.ID != s.CurrentTrack:
		logger.Info("device drifted, forcing current track", "playing", playback.Item.ID)
		if err := player.StartPlayback(ctx, s.CurrentTrack, s.DeviceID); err != nil {
			logger.Error("poll: failed to start playback", "error", err)
		}
		return
	case !playback.IsPlaying:
		logger.Info("playback paused, resuming")
		if err := player.ResumePlayback(ctx); err != nil {
			logger.Error("poll: failed to resume playback", "error", err)
		}
		return
	}

	e.tracks.Add(playback.Item.ID, *playback.Item)

	remaining, ok := playback.Remaining()
	if !ok {
		logger.Warn("poll: player reported no progress")
		return
	}
	if remaining >= e.opts.PollInterval {
		return
	}

	e.advance(ctx, r.SessionID, player)
}

// advance pops the next entry into current_track, or clears it when the queue is empty.
func (e *Engine) advance(ctx context.Context, sessionID string, player services.Player) {
	logger := e.logger.With("session", sessionID)

	tx, err := e.store.Begin(ctx)
	if err != nil {
		logger.Error("advance: failed to begin transaction", "error", err)
		return
	}
	defer tx.Rollback()

	entry, err := tx.PopQueueEntry(sessionID)
	if err != nil {
		logger.Error("advance: failed to pop queue", "error", err)
		return
	}

	if entry == nil {
		if err := tx.ClearCurrentTrack(sessionID); err != nil {
			logger.Error("advance: failed to clear current track", "error", err)
			return
		}
		if err := tx.Commit(); err != nil {
			logger.Error("advance: commit failed", "error", err)
			return
		}
		logger.Info("queue exhausted, session idle")
		e.broadcastState(ctx, sessionID, "")
		return
	}

	if err := player.AddToQueue(ctx, entry.TrackID); err != nil {
		logger.Error("advance: failed to queue on device", "track", entry.TrackID, "error", err)
		return
	}
	if err := tx.SetCurrentTrack(sessionID, entry.TrackID); err != nil {
		logger.Error("advance: failed to set current track", "error", err)
		return
	}
	if err := tx.Commit(); err != nil {
		logger.Error("advance: commit failed", "error", err)
		return
	}

	logger.Info("advanced to next track", "track", entry.TrackID, "votes", entry.Votes)
	e.broadcastState(ctx, sessionID, "")
}

// refresh renews the access token when it is due and tells the hub when to check again.
//
// A token with time left is not renewed; the reply carries the time until it falls due.
// A session that no longer exists gets no reply, which ends its refresh chain.
func (e *Engine) refresh(ctx context.Context, r models.Refresh) {
	logger := e.logger.With("session", r.SessionID)
	retry := models.RefreshScheduled{SessionID: r.SessionID, Delay: e.opts.RefreshBackoff}

	s, player, err := e.session(ctx, r.SessionID)
	if errors.Is(err, shared.ErrSessionNotFound) {
		logger.Info("refresh: session is gone")
		return
	}
	if err != nil {
		logger.Error("refresh: failed to load session", "error", err)
		e.emit(ctx, retry)
		return
	}

	if due := e.untilRefresh(s.Credentials.Expiry); due > 0 {
		logger.Debug("token still valid", "refresh_in", due)
		e.emit(ctx, models.RefreshScheduled{SessionID: r.SessionID, Delay: due, OK: true})
		return
	}

	creds, err := player.RefreshToken(ctx)
	if err != nil {
		logger.Warn("token refresh failed", "retry_in", e.opts.RefreshBackoff, "error", err)
		e.emit(ctx, retry)
		return
	}
	if creds.Market == "" {
		creds.Market = s.Credentials.Market
	}

	if err := e.store.SetCredentials(ctx, r.SessionID, creds); err != nil {
		logger.Error("refresh: failed to persist credentials", "retry_in", e.opts.RefreshBackoff, "error", err)
		e.emit(ctx, retry)
		return
	}

	next := e.opts.RefreshInterval
	if !creds.Expiry.IsZero() {
		next = max(e.untilRefresh(creds.Expiry), e.opts.RefreshBackoff)
	}
	logger.Debug("token refreshed", "expiry", creds.Expiry, "refresh_in", next)
	e.emit(ctx, models.RefreshScheduled{SessionID: r.SessionID, Delay: next, OK: true})
}

// untilRefresh is how long a token expiring at expiry stays usable before renewal, capped at RefreshInterval.
// An unknown expiry is due now.
func (e *Engine) untilRefresh(expiry time.Time) time.Duration {
	if expiry.IsZero() {
		return 0
	}
	return min(expiry.Sub(e.now())-e.opts.RefreshMargin, e.opts.RefreshInterval)
}

// kill purges the session. A failed purge is logged and not retried.
func (e *Engine) kill(ctx context.Context, r models.Kill) {
	logger := e.logger.With("session", r.SessionID)

	if err := e.store.DeleteSession(ctx, r.SessionID); err != nil {
		if !errors.Is(err, shared.ErrSessionNotFound) {
			logger.Error("kill: failed to delete session", "error", err)
			return
		}
		logger.Warn("kill: session already deleted")
	}

	logger.Info("session killed")
	e.emit(ctx, models.KillComplete{SessionID: r.SessionID})
}

func (e *Engine) devices(ctx context.Context, r models.Devices) {
	logger := e.logger.With("session", r.SessionID, "connection", r.ConnectionID)

	_, player, err := e.session(ctx, r.SessionID)
	if err != nil {
		logger.Error("devices: failed to load session", "error", err)
		return
	}

	devices, err := player.Devices(ctx)
	if err != nil {
		logger.Error("devices: failed to list", "error", err)
		return
	}

	e.emit(ctx, models.DevicesComplete{SessionID: r.SessionID, ConnectionID: r.ConnectionID, Devices: devices})
}

// transfer moves playback and remembers the device as the session's playback target.
func (e *Engine) transfer(ctx context.Context, r models.Transfer) {
	logger := e.logger.With("session", r.SessionID, "device", r.DeviceID)
	reply := models.TransferComplete{SessionID: r.SessionID, ConnectionID: r.ConnectionID, DeviceID: r.DeviceID}

	_, player, err := e.session(ctx, r.SessionID)
	if err != nil {
		logger.Error("transfer: failed to load session", "error", err)
		return
	}

	if err := player.TransferPlayback(ctx, r.DeviceID); err != nil {
		logger.Error("transfer failed", "error", err)
		e.emit(ctx, reply)
		return
	}

	if err := e.store.SetDevice(ctx, r.SessionID, r.DeviceID); err != nil {
		logger.Warn("transfer: failed to persist device", "error", err)
	}

	reply.OK = true
	e.emit(ctx, reply)
}

func (e *Engine) votedTracks(ctx context.Context, r models.VotedTracks) {
	ids, err := e.store.VotedTracks(ctx, r.SessionID, r.ConnectionID)
	if err != nil {
		e.logger.Error("voted tracks: failed to list", "session", r.SessionID, "connection", r.ConnectionID, "error", err)
		return
	}

	e.emit(ctx, models.VotedTracksComplete{SessionID: r.SessionID, ConnectionID: r.ConnectionID, TrackIDs: ids})
}
