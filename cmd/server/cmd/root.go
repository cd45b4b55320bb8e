package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/ams-cubing/public-calendar/internal/config"
	"github.com/spf13/cobra"
)

// globalFlags are the persistent flags shared by every subcommand.
type globalFlags struct {
	logLevel  string
	logFormat string
}

func newRootCommand() *cobra.Command {
	flags := &globalFlags{}
	serve := newServeCommand(flags)

	root := &cobra.Command{
		Use:   "server",
		Short: "AMS calendar server - competition scheduling for the Asociación Mexicana de Speedcubing",
		Long: `The AMS calendar server schedules speedcubing competitions in Mexico.

It provides:
- Date requests from organizers with automatic delegate assignment
- Delegate availability and unavailability tracking
- A public calendar of reserved and announced competitions
- Email notifications and an audit log of every change`,
		SilenceUsage:  true,
		SilenceErrors: true,
		// serve runs when no subcommand is given
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve.RunE(cmd, args)
		},
	}

	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level (debug, info, warn, error) (default: info)")
	root.PersistentFlags().StringVar(&flags.logFormat, "log-format", "", "log format (json, console) (default: json)")
	root.Flags().AddFlagSet(serve.Flags())

	root.AddCommand(serve)
	root.AddCommand(newMigrateCommand(flags))
	root.AddCommand(newSeedCommand(flags))
	root.AddCommand(newVersionCommand())
	root.AddCommand(newHealthcheckCommand())
	return root
}

// Execute is called by main.main.
func Execute() {
	if err := newRootCommand().Execute(); err != nil {
		var exit *exitError
		if errors.As(err, &exit) {
			fmt.Fprintln(os.Stderr, exit.Error())
			os.Exit(exit.code)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// exitError carries a process exit code out of a command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

// loadConfig reads the environment and applies flag overrides.
func loadConfig(flags *globalFlags) (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	if flags.logLevel != "" {
		cfg.Logging.Level = flags.logLevel
	}
	if flags.logFormat != "" {
		cfg.Logging.Format = flags.logFormat
	}
	return cfg, nil
}
