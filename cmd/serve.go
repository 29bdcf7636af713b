package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/desertthunder/queuetify/internal/engine"
	"github.com/desertthunder/queuetify/internal/hub"
	"github.com/desertthunder/queuetify/internal/server"
	"github.com/desertthunder/queuetify/internal/shared"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"
)

// Serve wires the store, Spotify client, engine, hub and HTTP server, and runs them until SIGINT or SIGTERM.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	config, err := r.loadConfig(cmd.String("config"))
	if err != nil {
		return err
	}
	if err := config.Validate(); err != nil {
		return err
	}

	store, db, err := r.openStore(config)
	if err != nil {
		return err
	}
	defer db.Close()

	spotify, err := r.spotifyService(config)
	if err != nil {
		return fmt.Errorf("failed to create spotify client: %w", err)
	}

	eng, err := engine.New(store, spotify, r.engineOptions(config))
	if err != nil {
		return err
	}
	h := hub.New(eng, r.hubOptions(eng))
	srv := server.New(h, store, spotify, r.serverOptions(config))

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := config.Server.Addr()
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return eng.Run(ctx) })
	g.Go(func() error { return h.Run(ctx) })
	g.Go(func() error { return srv.ListenAndServe(ctx, addr) })

	if cmd.Bool("open") {
		url := fmt.Sprintf("http://%s/create", addr)
		if err := shared.OpenBrowser(url); err != nil {
			r.logger.Warn("failed to open browser", "url", url, "error", err)
		}
	}

	if err := g.Wait(); err != nil {
		return err
	}
	r.logger.Info("server stopped")
	return nil
}

func (r *Runner) engineOptions(config *shared.Config) engine.Options {
	return engine.Options{
		PollInterval:    config.Session.PollInterval,
		RefreshInterval: config.Session.RefreshInterval,
		RefreshBackoff:  config.Session.RefreshBackoff,
		RefreshMargin:   config.Session.RefreshMargin,
		RequestTimeout:  config.Session.RequestTimeout,
		SearchLimit:     config.Session.SearchLimit,
		CacheSize:       config.Player.CacheSize,
		Logger:          r.logger,
	}
}

// hubOptions ticks the hub at the engine's effective poll interval, so a track ending
// within one tick is the one the engine advances.
func (r *Runner) hubOptions(eng *engine.Engine) hub.Options {
	return hub.Options{PollInterval: eng.Options().PollInterval, Logger: r.logger}
}

func (r *Runner) serverOptions(config *shared.Config) server.Options {
	return server.Options{
		HeartbeatInterval: config.Session.HeartbeatInterval,
		ClientTimeout:     config.Session.ClientTimeout,
		SecureCookies:     config.Server.SecureCookies,
		Logger:            r.logger,
	}
}
