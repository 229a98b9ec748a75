// Package cmd defines the CLI commands for the facilityapi executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/iri-facility-api/internal/config"
	"github.com/JakeFAU/iri-facility-api/internal/logging"
)

var cfgFile string

// newRootCmd creates the root command and its subcommands.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "facilityapi",
		Short: "Serves the IRI Facility API.",
		Long: `iri-facility-api exposes a facility's status, account, compute,
filesystem, task and facility information over one HTTP API. Each
sub-domain is served by a pluggable backend selected in configuration.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); environment variables override it")
	cmd.AddCommand(newServeCmd(), newRoutesCmd())
	return cmd
}

// loadConfig reads configuration and builds the process logger from it.
func loadConfig() (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("logger init failed: %w", err)
	}
	return cfg, logger, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
