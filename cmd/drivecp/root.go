package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/walteh/drivecp/cmd/drivecp/commands"
	"github.com/walteh/drivecp/pkg/config"
	"gitlab.com/tozd/go/errors"
)

var (
	// Flags
	configFile string
	debug      bool
)

// addRootFlags wires the shared flags and the pre-run that sets up logging
// and loads the defaults file. The returned options are filled in before any
// subcommand runs.
func addRootFlags(cmd *cobra.Command) *commands.RootOpts {
	cmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path (default: .drivecp in cwd or home)")
	cmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "enable debug logging")

	opts := &commands.RootOpts{}
	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		level := zerolog.WarnLevel
		if debug {
			level = zerolog.DebugLevel
		}
		logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
			Level(level).With().Timestamp().Logger()
		ctx := logger.WithContext(cmd.Context())
		cmd.SetContext(ctx)

		var cfg *config.Config
		var err error
		if configFile != "" {
			cfg, err = config.Load(ctx, configFile)
		} else {
			cfg, err = config.Locate(ctx)
		}
		if err != nil {
			return errors.Errorf("loading config: %w", err)
		}
		opts.Config = cfg
		return nil
	}
	return opts
}
