package main

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Verbose    bool
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		log.Error().Err(err).Msg("powermeet failed")
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "powermeet",
		Short: "Live meet lifting orchestration",
		Long:  "Runs the platform control surface, its mirror displays and the event relay for a powerlifting meet.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := godotenv.Load(); err != nil {
				log.Debug().Err(err).Msg("could not load .env file")
			}
			setupLogging(opts.Verbose)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", getEnv("POWERMEET_CONFIG", ""), "path to the meet YAML config")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newSeedCommand(opts))
	cmd.AddCommand(newRelayCommand(opts))
	cmd.AddCommand(newMirrorCommand(opts))
	return cmd
}

// setupLogging configures zerolog console output and level
func setupLogging(verbose bool) {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	level := zerolog.InfoLevel
	if lvl, err := zerolog.ParseLevel(strings.ToLower(getEnv("LOG_LEVEL", ""))); err == nil && lvl != zerolog.NoLevel {
		level = lvl
	}
	if verbose {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)
}
