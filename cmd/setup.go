package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/desertthunder/queuetify/internal/shared"
	"github.com/urfave/cli/v3"
)

// Setup creates the config file from the embedded template when it is missing, then runs migrations.
func (r *Runner) Setup(ctx context.Context, cmd *cli.Command) error {
	configPath := cmd.String("config")

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		r.logger.Info("config file not found, creating from template", "path", configPath)
		if err := shared.CreateConfigFile(configPath); err != nil {
			r.logger.Warn("failed to create config file, using defaults", "error", err)
		} else {
			r.logger.Info("config file created", "path", configPath)
		}
	}

	config, err := r.loadConfig(configPath)
	if err != nil {
		r.logger.Warn("failed to load config, using defaults", "error", err)
		config = shared.DefaultConfig()
	}

	r.logger.Info("initializing database", "driver", config.Database.Driver, "path", config.Database.Path)

	db, err := r.openDatabase(config)
	if err != nil {
		return err
	}
	defer db.Close()

	r.logger.Infof("setup complete for database: %v", config.Database.Path)
	return nil
}

// Rollback reverts the most recently applied migration.
func (r *Runner) Rollback(ctx context.Context, cmd *cli.Command) error {
	config, err := r.loadConfig(cmd.String("config"))
	if err != nil {
		return err
	}

	db, err := shared.OpenDatabase(config.Database.Driver, config.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := shared.RollbackMigration(db); err != nil {
		return err
	}
	r.logger.Info("rolled back latest migration")
	return nil
}

// MigrationStatus prints every known migration and when it was applied.
func (r *Runner) MigrationStatus(ctx context.Context, cmd *cli.Command) error {
	config, err := r.loadConfig(cmd.String("config"))
	if err != nil {
		return err
	}

	db, err := shared.OpenDatabase(config.Database.Driver, config.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	states, err := shared.MigrationStatus(db)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(r.output, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "VERSION\tNAME\tAPPLIED")
	for _, s := range states {
		applied := "pending"
		if s.AppliedAt != nil {
			applied = s.AppliedAt.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%04d\t%s\t%s\n", s.Version, s.Name, applied)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

// InitConfig writes the template config to the --config path.
func (r *Runner) InitConfig(ctx context.Context, cmd *cli.Command) error {
	path := cmd.String("config")
	if err := shared.CreateConfigFile(path); err != nil {
		return err
	}
	return r.writePlain("Wrote %s\n", path)
}
