// submodule cmd contains command definitions
package main

import (
	"github.com/desertthunder/queuetify/internal/formatter"
	"github.com/urfave/cli/v3"
)

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to configuration file",
		Value:   "config.toml",
	}
}

// serveCommand runs the session server
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP and WebSocket server",
		Flags: []cli.Flag{
			configFlag(),
			&cli.BoolFlag{
				Name:  "open",
				Usage: "Open the session creation page in a browser",
			},
		},
		Action: r.Serve,
	}
}

func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "setup",
		Usage:  "Create the config file if missing and run database migrations",
		Flags:  []cli.Flag{configFlag()},
		Action: r.Setup,
	}
}

// dbCommand groups migration maintenance
func dbCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "db",
		Usage: "Database maintenance",
		Commands: []*cli.Command{
			{
				Name:   "rollback",
				Usage:  "Roll back the latest migration",
				Flags:  []cli.Flag{configFlag()},
				Action: r.Rollback,
			},
			{
				Name:   "status",
				Usage:  "Show applied and pending migrations",
				Flags:  []cli.Flag{configFlag()},
				Action: r.MigrationStatus,
			},
		},
	}
}

// sessionsCommand handles offline session administration
func sessionsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "sessions",
		Aliases: []string{"s"},
		Usage:   "Inspect and remove stored sessions",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List sessions",
				Flags: []cli.Flag{
					configFlag(),
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
					&cli.BoolFlag{
						Name:  "pretty",
						Usage: "Pretty-print JSON output",
					},
				},
				Action: r.ListSessions,
			},
			{
				Name:  "show",
				Usage: "Render a session's queue",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "id", UsageText: "Session ID"},
				},
				Flags: []cli.Flag{
					configFlag(),
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   "Output format (text, markdown, csv)",
						Value:   formatter.FormatText,
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Write to a file instead of stdout",
					},
				},
				Action: r.ShowSession,
			},
			{
				Name:  "kill",
				Usage: "Delete a session and its queue",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "id", UsageText: "Session ID"},
				},
				Flags:  []cli.Flag{configFlag()},
				Action: r.KillSession,
			},
		},
	}
}

// watchCommand starts the terminal client
func watchCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Join a session in the terminal",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "session-id", UsageText: "Session ID"},
		},
		Flags: []cli.Flag{
			configFlag(),
			&cli.StringFlag{
				Name:  "url",
				Usage: "Server base URL (defaults to the configured listen address)",
			},
			&cli.StringFlag{
				Name:  "log-file",
				Usage: "Where to write logs while the TUI owns the terminal",
				Value: "queuetify-watch.log",
			},
		},
		Action: r.Watch,
	}
}

// configCommand manages the config file
func configCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Configuration file helpers",
		Commands: []*cli.Command{
			{
				Name:   "init",
				Usage:  "Write the template config",
				Flags:  []cli.Flag{configFlag()},
				Action: r.InitConfig,
			},
		},
	}
}
