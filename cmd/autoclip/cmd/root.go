// Package cmd implements the CLI commands for autoclip.
package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/jmylchreest/autoclip/internal/config"
	"github.com/jmylchreest/autoclip/internal/observability"
	"github.com/jmylchreest/autoclip/internal/version"
)

var (
	// cfgFile holds the config file path from CLI flag.
	cfgFile string

	// cfg is loaded once in PersistentPreRunE and shared by subcommands.
	cfg *config.Config
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:     "autoclip",
	Short:   "Clip job engine for video links",
	Version: version.Short(),
	Long: `autoclip cuts short vertical clips out of online videos.

Requests name a source URL, a start offset, a duration and an output
profile. Accepted requests wait in a FIFO queue and a single worker runs
each one as a yt-dlp | ffmpeg pipeline, reporting progress and honouring
cancellation. Aggregate statistics are kept in a JSON file and every job
is recorded in the history database.`,
	SilenceUsage: true,
	// PersistentPreRunE is set in init() to avoid initialization cycle
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		return fmt.Errorf("executing root command: %w", err)
	}
	return nil
}

func init() {
	rootCmd.PersistentPreRunE = func(_ *cobra.Command, _ []string) error {
		return initConfig()
	}

	// Global flags. These are not bound to viper: they only override the
	// file and environment values when explicitly given.
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default searches ./config.yaml, ./configs, /etc/autoclip)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "json", "log format (text, json)")
}

// initConfig loads the configuration and installs the default logger.
//
// Priority order (highest to lowest):
//  1. CLI flags (--log-level, --log-format) - only if explicitly provided
//  2. Environment variables (AUTOCLIP_LOGGING_LEVEL, AUTOCLIP_LOGGING_FORMAT)
//  3. Config file values
//  4. Built-in defaults (info, json)
func initConfig() error {
	loaded, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	cfg = loaded

	flags := rootCmd.PersistentFlags()
	if level, ok := changedString(flags, "log-level"); ok {
		cfg.Logging.Level = strings.ToLower(level)
	}
	if format, ok := changedString(flags, "log-format"); ok {
		cfg.Logging.Format = strings.ToLower(format)
	}
	if cfg.Logging.Level == "warning" {
		cfg.Logging.Level = "warn"
	}

	logger := observability.NewLoggerWithWriter(cfg.Logging, os.Stderr).
		With(slog.String("app", version.ApplicationName))
	observability.SetDefault(logger)
	return nil
}

// changedString returns a string flag's value only when it was given on
// the command line, so unset flags never mask file or environment values.
func changedString(flags *pflag.FlagSet, name string) (string, bool) {
	if !flags.Changed(name) {
		return "", false
	}
	v, err := flags.GetString(name)
	return v, err == nil
}

// skipConfig is used by commands that must work without a valid config.
func skipConfig(*cobra.Command, []string) error { return nil }
