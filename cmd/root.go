// Package cmd provides the CLI commands of the meet processing worker.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/suitenumerique/meet/config"
	"github.com/suitenumerique/meet/pkg/logging"
)

var (
	cfgFile string
	debug   bool
)

// NewRootCommand creates the root command with all subcommands.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "meet-worker",
		Short: "Recording processing worker for the meet platform",
		Long: `meet-worker processes finished meeting recordings: it transcribes
them, resolves speakers against the room's speaking-time log, delivers
the transcript document and, when enabled, a generated summary.

Commands:
  worker   - Run the queue workers (transcribe + summarize)
  tracker  - Track speaking intervals of a live room
  enqueue  - Enqueue a transcription job by hand
  version  - Print build information

Configuration is read from a YAML file (--config) overlaid with MEET_*
environment variables; a .env file in the working directory is loaded
first.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to the YAML configuration file")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(NewWorkerCommand())
	rootCmd.AddCommand(NewTrackerCommand())
	rootCmd.AddCommand(NewEnqueueCommand())
	rootCmd.AddCommand(NewVersionCommand())

	return rootCmd
}

// loadConfig builds the runtime configuration and a logger from the
// persistent flags.
func loadConfig(serviceName string) (*config.Config, logging.Logger, error) {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("loading configuration: %w", err)
	}
	if debug {
		cfg.Debug = true
	}

	level := logging.LevelInfo
	if cfg.Debug {
		level = logging.LevelDebug
	}
	logger := logging.NewLogger(&logging.Config{
		Level:       level,
		ServiceName: serviceName,
		JSONFormat:  cfg.LogJSON,
	})
	return cfg, logger, nil
}
