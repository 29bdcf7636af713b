package shared

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// envPrefix namespaces environment overrides, e.g. QUEUETIFY_SPOTIFY_CLIENT_ID.
const envPrefix = "QUEUETIFY_"

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Credentials CredentialsConfig `toml:"credentials"`
	Database    DatabaseConfig    `toml:"database"`
	Server      ServerConfig      `toml:"server"`
	Session     SessionConfig     `toml:"session"`
	Player      PlayerConfig      `toml:"player"`
	Log         LogConfig         `toml:"log"`
}

// CredentialsConfig contains service-specific credentials.
type CredentialsConfig struct {
	Spotify SpotifyConfig `toml:"spotify"`
}

// SpotifyConfig contains Spotify API credentials.
type SpotifyConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	RedirectURI  string `toml:"redirect_uri"`
}

// DatabaseConfig contains database connection settings.
//
// Driver is "sqlite3" (Path is a file or ":memory:") or "postgres" (Path is a DSN).
type DatabaseConfig struct {
	Driver       string `toml:"driver"`
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	SecureCookies bool   `toml:"secure_cookies"`
}

// Addr returns the host:port pair the HTTP server listens on.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// SessionConfig controls reconciliation cadence and connection liveness.
type SessionConfig struct {
	PollInterval      time.Duration `toml:"poll_interval"`
	RefreshInterval   time.Duration `toml:"refresh_interval"`
	RefreshBackoff    time.Duration `toml:"refresh_backoff"`
	RefreshMargin     time.Duration `toml:"refresh_margin"`
	HeartbeatInterval time.Duration `toml:"heartbeat_interval"`
	ClientTimeout     time.Duration `toml:"client_timeout"`
	RequestTimeout    time.Duration `toml:"request_timeout"`
	SearchLimit       int           `toml:"search_limit"`
}

// PlayerConfig contains Spotify Web API client settings.
type PlayerConfig struct {
	APIBaseURL string  `toml:"api_base_url"`
	RateLimit  float64 `toml:"rate_limit"`
	Burst      int     `toml:"burst"`
	CacheSize  int     `toml:"cache_size"`
}

// LogConfig contains logger settings.
type LogConfig struct {
	Level string `toml:"level"`
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Values missing from the file keep the embedded defaults, and QUEUETIFY_* environment variables are applied last.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := config.applyEnv(); err != nil {
		return nil, err
	}

	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate reports whether the config can run the server.
func (c *Config) Validate() error {
	if c.Credentials.Spotify.ClientID == "" || c.Credentials.Spotify.ClientSecret == "" {
		return fmt.Errorf("%w: spotify client_id and client_secret are required", ErrMissingCredentials)
	}
	if c.Session.PollInterval <= 0 {
		return fmt.Errorf("%w: session.poll_interval must be positive", ErrInvalidConfig)
	}
	if c.Session.RefreshInterval <= 0 || c.Session.RefreshBackoff <= 0 {
		return fmt.Errorf("%w: session refresh intervals must be positive", ErrInvalidConfig)
	}
	switch c.Database.Driver {
	case "sqlite3", "postgres":
	default:
		return fmt.Errorf("%w: unsupported database driver %q", ErrInvalidConfig, c.Database.Driver)
	}
	return nil
}

func (c *Config) applyEnv() error {
	strs := map[string]*string{
		"SPOTIFY_CLIENT_ID":     &c.Credentials.Spotify.ClientID,
		"SPOTIFY_CLIENT_SECRET": &c.Credentials.Spotify.ClientSecret,
		"SPOTIFY_REDIRECT_URI":  &c.Credentials.Spotify.RedirectURI,
		"DATABASE_DRIVER":       &c.Database.Driver,
		"DATABASE_PATH":         &c.Database.Path,
		"SERVER_HOST":           &c.Server.Host,
		"LOG_LEVEL":             &c.Log.Level,
	}
	for key, dst := range strs {
		if v, ok := os.LookupEnv(envPrefix + key); ok {
			*dst = v
		}
	}

	if v, ok := os.LookupEnv(envPrefix + "SERVER_PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %sSERVER_PORT=%q", ErrInvalidConfig, envPrefix, v)
		}
		c.Server.Port = port
	}

	return nil
}
