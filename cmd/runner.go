package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/queuetify/internal/repositories"
	"github.com/desertthunder/queuetify/internal/services"
	"github.com/desertthunder/queuetify/internal/shared"
	"github.com/jmoiron/sqlx"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config     *shared.Config
	players    services.PlayerProvider
	httpClient *http.Client
	logger     *log.Logger
	output     io.Writer
}

// RunnerOpts contains configuration options for creating a Runner.
//
// Players resolves track metadata for offline commands; when nil it is built from the loaded config on demand.
type RunnerOpts struct {
	Config     *shared.Config
	Players    services.PlayerProvider
	HTTPClient *http.Client
	Logger     *log.Logger
	Output     io.Writer
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}

	return &Runner{
		config:     opts.Config,
		players:    opts.Players,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		output:     opts.Output,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		serveCommand, setupCommand, dbCommand, sessionsCommand, watchCommand, configCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// loadConfig replaces the runner's config with the file at path when it exists.
//
// A missing file keeps the current config so commands work against the embedded defaults.
func (r *Runner) loadConfig(path string) (*shared.Config, error) {
	if path == "" {
		return r.config, nil
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			r.logger.Debug("config file not found, using defaults", "path", path)
			return r.config, nil
		}
		return nil, fmt.Errorf("failed to stat config: %w", err)
	}

	config, err := shared.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	if err := shared.ApplyLogLevel(r.logger, config.Log.Level); err != nil {
		return nil, err
	}
	r.config = config
	return config, nil
}

// openDatabase opens, tunes and migrates the configured database.
func (r *Runner) openDatabase(config *shared.Config) (*sqlx.DB, error) {
	r.logger.Debug("opening database", "driver", config.Database.Driver, "path", config.Database.Path)

	db, err := shared.OpenDatabase(config.Database.Driver, config.Database.Path)
	if err != nil {
		return nil, err
	}
	shared.ConfigureDatabase(db, config.Database.MaxOpenConns, config.Database.MaxIdleConns)

	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return db, nil
}

// openStore opens the database and wraps it in a [repositories.SQLStore]. Callers close the returned db.
func (r *Runner) openStore(config *shared.Config) (*repositories.SQLStore, *sqlx.DB, error) {
	db, err := r.openDatabase(config)
	if err != nil {
		return nil, nil, err
	}
	return repositories.NewSQLStore(db), db, nil
}

// spotifyService builds the Spotify client from the config's credentials.
func (r *Runner) spotifyService(config *shared.Config) (*services.SpotifyService, error) {
	return services.NewSpotifyService(services.SpotifyOptions{
		ClientID:     config.Credentials.Spotify.ClientID,
		ClientSecret: config.Credentials.Spotify.ClientSecret,
		RedirectURI:  config.Credentials.Spotify.RedirectURI,
		APIBaseURL:   config.Player.APIBaseURL,
		RateLimit:    config.Player.RateLimit,
		Burst:        config.Player.Burst,
		HTTPClient:   r.httpClient,
		Logger:       r.logger,
	})
}

// playerProvider returns the injected provider, or one built from config when credentials are present.
func (r *Runner) playerProvider(config *shared.Config) services.PlayerProvider {
	if r.players != nil {
		return r.players
	}
	if config.Credentials.Spotify.ClientID == "" || config.Credentials.Spotify.ClientSecret == "" {
		return nil
	}
	svc, err := r.spotifyService(config)
	if err != nil {
		r.logger.Warn("spotify unavailable, track names will not be resolved", "error", err)
		return nil
	}
	r.players = svc
	return svc
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
