// Package cli implements the ezan-vakti command tree.
package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/smokyabdulrahman/ezan-vakti/internal/app"
	"github.com/smokyabdulrahman/ezan-vakti/internal/config"
)

// Global flags shared across all subcommands.
var (
	FlagJSON     bool
	FlagStore    string
	FlagDataDir  string
	FlagLogLevel string
)

// loadedConfig and logger are set during PersistentPreRunE and available
// to all subcommand handlers.
var (
	loadedConfig *config.Config
	logger       zerolog.Logger
)

// NewRootCmd creates the root command for the ezan-vakti CLI.
// The version parameter is set by the calling binary via ldflags.
func NewRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "ezan-vakti",
		Short:   "Diyanet prayer times and alarms",
		Long:    "Shows today's prayer times for Turkish cities and rings an alarm at each prayer.\nTimes come from the Diyanet authority, its community mirrors or the local cache.",
		Version: version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if err := applyFlags(cmd, cfg); err != nil {
				return err
			}
			loadedConfig = cfg
			logger = newLogger(cmd.ErrOrStderr(), cfg.AppEnv, cfg.LogLevel)
			return nil
		},
		// Default action: show today's prayer schedule.
		RunE:          runToday,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.BoolVar(&FlagJSON, "json", false, "Output as JSON (where supported)")
	pf.StringVar(&FlagStore, "store", "", "Store backend: file, memory, redis or sqlite (overrides STORE_BACKEND)")
	pf.StringVar(&FlagDataDir, "data-dir", "", "Data directory (default: ~/.config/ezan-vakti/)")
	pf.StringVar(&FlagLogLevel, "log-level", "", "Log level: debug, info, warn or error (overrides LOG_LEVEL)")

	rootCmd.AddCommand(newNextCmd())
	rootCmd.AddCommand(newCitiesCmd())
	rootCmd.AddCommand(newLocationCmd())
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newAlarmsCmd())
	rootCmd.AddCommand(newRunCmd())

	return rootCmd
}

// applyFlags merges explicitly set persistent flags over the environment
// configuration: CLI flags > environment > defaults.
func applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	root := cmd.Root().PersistentFlags()

	if flagWasSet(flags, root, "store") {
		cfg.StoreBackend = FlagStore
	}
	if flagWasSet(flags, root, "data-dir") {
		cfg.DataDir = FlagDataDir
	}
	if flagWasSet(flags, root, "log-level") {
		cfg.LogLevel = FlagLogLevel
	}
	return cfg.Validate()
}

// flagWasSet checks if a flag was explicitly set on either the local or persistent flag set.
func flagWasSet(local, persistent *pflag.FlagSet, name string) bool {
	if f := local.Lookup(name); f != nil && f.Changed {
		return true
	}
	if f := persistent.Lookup(name); f != nil && f.Changed {
		return true
	}
	return false
}

// newLogger writes human-readable logs for local use and JSON elsewhere.
// An unparsable level falls back to warn.
func newLogger(w io.Writer, appEnv, level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.WarnLevel
	}
	if appEnv == "local" {
		return zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}).
			Level(lvl).With().Timestamp().Logger()
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}

// openApp builds the application from the loaded config and reads the
// persisted settings. Callers must Close it.
func openApp(ctx context.Context) (*app.App, error) {
	cfg := loadedConfig
	if cfg == nil {
		return nil, fmt.Errorf("configuration not loaded")
	}
	a, err := app.New(ctx, cfg, &logger)
	if err != nil {
		return nil, err
	}
	a.Load(ctx)
	return a, nil
}

func closeApp(a *app.App) {
	if err := a.Close(); err != nil {
		logger.Warn().Err(err).Msg("close failed")
	}
}
