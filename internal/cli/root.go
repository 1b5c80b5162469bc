// Package cli implements the recoveryctl commands.
package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"github.com/acailic/archi-comm-sub010/pkg/recovery/config"
)

var (
	cfgPath string
	isDebug bool
)

var rootCmd = &cobra.Command{
	Use:   "recoveryctl",
	Short: "Drive and inspect the recovery subsystem",
	Long: `recoveryctl builds the recovery orchestrator from a config file and lets you
simulate faults, run the startup restoration check, list design backups and
serve recovery metrics.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "recovery.yaml", "config file (missing default file means built-in defaults)")
	rootCmd.PersistentFlags().BoolVar(&isDebug, "debug", false, "enable debug logging")
}

// loadSettings reads .env, the config file and sets up the default logger.
func loadSettings(cmd *cobra.Command) (config.Settings, *slog.Logger, error) {
	_ = godotenv.Load()

	settings := config.DefaultSettings()
	cfg, err := config.FromFile(cfgPath)
	switch {
	case err == nil:
		if settings, err = config.LoadSettings(cfg); err != nil {
			return settings, nil, fmt.Errorf("invalid config %s: %w", cfgPath, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !cmd.Flags().Changed("config"):
		// No config file at the default path: run on defaults.
	default:
		return settings, nil, fmt.Errorf("load config: %w", err)
	}

	level := settings.LogLevel
	if isDebug {
		level = slog.LevelDebug
	}
	logger := slog.New(tint.NewHandler(cmd.ErrOrStderr(), &tint.Options{
		Level:      level,
		TimeFormat: time.RFC3339,
	}))
	slog.SetDefault(logger)
	return settings, logger, nil
}
