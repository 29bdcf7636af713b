package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/desertthunder/queuetify/internal/formatter"
	"github.com/desertthunder/queuetify/internal/models"
	"github.com/desertthunder/queuetify/internal/shared"
	"github.com/urfave/cli/v3"
)

// ListSessions prints every stored session, newest first.
func (r *Runner) ListSessions(ctx context.Context, cmd *cli.Command) error {
	config, err := r.loadConfig(cmd.String("config"))
	if err != nil {
		return err
	}

	store, db, err := r.openStore(config)
	if err != nil {
		return err
	}
	defer db.Close()

	sessions, err := store.ListSessions(ctx)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(sessions, cmd.Bool("pretty"))
	}

	if len(sessions) == 0 {
		return r.writePlain("No sessions.\n")
	}

	out, err := formatter.SessionsToText(sessions)
	if err != nil {
		return err
	}
	if _, err := r.output.Write(out); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

// ShowSession renders one session's current track and queue in the requested format.
//
// Track names are resolved through Spotify with the session's own credentials when the app credentials are configured.
func (r *Runner) ShowSession(ctx context.Context, cmd *cli.Command) error {
	sessionID := strings.TrimSpace(cmd.StringArg("id"))
	if sessionID == "" {
		return fmt.Errorf("%w: session id", shared.ErrMissingArgument)
	}

	format := strings.ToLower(cmd.String("format"))
	config, err := r.loadConfig(cmd.String("config"))
	if err != nil {
		return err
	}

	store, db, err := r.openStore(config)
	if err != nil {
		return err
	}
	defer db.Close()

	session, err := store.Session(ctx, sessionID)
	if err != nil {
		return err
	}
	entries, err := store.Queue(ctx, sessionID)
	if err != nil {
		return err
	}

	export := formatter.NewQueueExport(session, entries, r.resolveTracks(ctx, config, session, entries))

	if path := cmd.String("output"); path != "" {
		written, err := formatter.WriteExport(export, format, path)
		if err != nil {
			return err
		}
		r.logger.Info("queue exported", "session", sessionID, "path", written)
		return nil
	}

	out, err := formatter.Export(export, format)
	if err != nil {
		return err
	}
	if _, err := r.output.Write(out); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

// resolveTracks looks up metadata for the current track and queue. Failures leave rows keyed by id only.
func (r *Runner) resolveTracks(ctx context.Context, config *shared.Config, session *models.Session, entries []models.QueueEntry) map[string]models.Track {
	tracks := make(map[string]models.Track)

	ids := make([]string, 0, len(entries)+1)
	if session.CurrentTrack != "" {
		ids = append(ids, session.CurrentTrack)
	}
	for _, e := range entries {
		ids = append(ids, e.TrackID)
	}
	if len(ids) == 0 {
		return tracks
	}

	players := r.playerProvider(config)
	if players == nil {
		return tracks
	}

	resolved, err := players.Player(session.Credentials).Tracks(ctx, ids)
	if err != nil {
		r.logger.Warn("failed to resolve track metadata", "session", session.ID, "error", err)
		return tracks
	}
	for _, t := range resolved {
		tracks[t.ID] = t
	}
	return tracks
}

// KillSession deletes a session with its queue entries and votes directly from the store.
//
// Connected clients are not notified; use the server's kill route for a live session.
func (r *Runner) KillSession(ctx context.Context, cmd *cli.Command) error {
	sessionID := strings.TrimSpace(cmd.StringArg("id"))
	if sessionID == "" {
		return fmt.Errorf("%w: session id", shared.ErrMissingArgument)
	}

	config, err := r.loadConfig(cmd.String("config"))
	if err != nil {
		return err
	}

	store, db, err := r.openStore(config)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := store.DeleteSession(ctx, sessionID); err != nil {
		return err
	}

	r.logger.Info("session deleted", "session", sessionID)
	return r.writePlain("Deleted session %s\n", sessionID)
}
