package main

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/queuetify/internal/shared"
	"github.com/desertthunder/queuetify/internal/ui"
	"github.com/urfave/cli/v3"
)

// Watch joins a session over WebSocket and runs the interactive TUI until the user quits or the session ends.
func (r *Runner) Watch(ctx context.Context, cmd *cli.Command) error {
	sessionID := strings.TrimSpace(cmd.StringArg("session-id"))
	if sessionID == "" {
		return fmt.Errorf("%w: session id", shared.ErrMissingArgument)
	}

	config, err := r.loadConfig(cmd.String("config"))
	if err != nil {
		return err
	}

	baseURL := cmd.String("url")
	if baseURL == "" {
		baseURL = localURL(config.Server)
	}

	logger, err := shared.NewFileLogger(cmd.String("log-file"))
	if err != nil {
		return err
	}
	if err := shared.ApplyLogLevel(logger, config.Log.Level); err != nil {
		return err
	}

	conn, err := ui.Dial(ctx, baseURL, sessionID)
	if err != nil {
		return err
	}
	defer conn.Close()

	logger.Info("joined session", "session", sessionID, "url", baseURL)

	model := ui.NewModel(conn, sessionID, logger)
	if _, err := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx)).Run(); err != nil {
		return fmt.Errorf("failed to run watch: %w", err)
	}
	return model.Err()
}

// localURL is the base URL for a server on this machine. Wildcard hosts are dialed on loopback.
func localURL(s shared.ServerConfig) string {
	host := s.Host
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(s.Port))
}
