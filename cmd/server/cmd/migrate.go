package cmd

import (
	"fmt"

	"github.com/ams-cubing/public-calendar/internal/config"
	"github.com/ams-cubing/public-calendar/internal/storage/postgres"
	"github.com/spf13/cobra"
)

func newMigrateCommand(global *globalFlags) *cobra.Command {
	var migrationsPath string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
		Long: `Apply or revert schema migrations. Reads DATABASE_URL from the environment.

Examples:
  # Apply every pending migration, including the job queue tables
  server migrate up

  # Revert the last migration
  server migrate down --steps 1

  # Show the applied schema version
  server migrate version`,
	}
	cmd.PersistentFlags().StringVar(&migrationsPath, "path", "", "migrations directory (default: DATABASE_MIGRATIONS_PATH or "+postgres.DefaultMigrationsPath+")")

	dbConfig := func() (config.DatabaseConfig, error) {
		db, err := config.LoadDatabase()
		if err != nil {
			return db, err
		}
		if migrationsPath != "" {
			db.MigrationsPath = migrationsPath
		}
		return db, nil
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply pending schema and job queue migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := dbConfig()
			if err != nil {
				return err
			}
			logger := config.NewLogger(logging(global))
			if err := postgres.MigrateUp(db.URL, db.MigrationsPath); err != nil {
				return err
			}

			pool, err := openPool(cmd.Context(), db)
			if err != nil {
				return err
			}
			defer pool.Close()
			if err := postgres.MigrateRiver(cmd.Context(), pool); err != nil {
				return err
			}

			version, _, err := postgres.MigrationVersion(db.URL, db.MigrationsPath)
			if err != nil {
				return err
			}
			logger.Info().Uint("version", version).Msg("migrations applied")
			fmt.Fprintf(cmd.OutOrStdout(), "schema at version %d\n", version)
			return nil
		},
	}

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Revert schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := dbConfig()
			if err != nil {
				return err
			}
			if err := postgres.MigrateDown(db.URL, db.MigrationsPath, steps); err != nil {
				return err
			}
			version, _, err := postgres.MigrationVersion(db.URL, db.MigrationsPath)
			if err != nil {
				return err
			}
			logger := config.NewLogger(logging(global))
			logger.Info().Int("steps", steps).Uint("version", version).Msg("migrations reverted")
			fmt.Fprintf(cmd.OutOrStdout(), "schema at version %d\n", version)
			return nil
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to revert")

	version := &cobra.Command{
		Use:   "version",
		Short: "Print the applied schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := dbConfig()
			if err != nil {
				return err
			}
			v, dirty, err := postgres.MigrationVersion(db.URL, db.MigrationsPath)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "version: %d\ndirty:   %t\n", v, dirty)
			return nil
		},
	}

	cmd.AddCommand(up, down, version)
	return cmd
}

// logging builds the logger settings for commands that skip config.Load.
func logging(global *globalFlags) config.LoggingConfig {
	cfg := config.LoggingConfig{Level: "info", Format: "console"}
	if global.logLevel != "" {
		cfg.Level = global.logLevel
	}
	if global.logFormat != "" {
		cfg.Format = global.logFormat
	}
	return cfg
}
