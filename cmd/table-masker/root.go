package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/txn2/table-masker/pkg/config"
)

// rootOptions holds the persistent flags shared by every subcommand.
type rootOptions struct {
	configPath string
	configDir  string
	profile    string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:           "table-masker",
		Short:         "Provision masked tables from per-schema SQL templates",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to configuration file (overrides --profile)")
	rootCmd.PersistentFlags().StringVar(&opts.configDir, "config-dir", "config", "Directory holding application-<profile>.yaml files")
	rootCmd.PersistentFlags().StringVar(&opts.profile, "profile", "", "Configuration profile (default $MASKER_PROFILE, then $SPRING_PROFILES_ACTIVE, then default)")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Override logging.level")

	rootCmd.AddCommand(
		newServeCmd(opts),
		newProvisionCmd(opts),
		newMigrateCmd(opts),
		newTemplatesCmd(opts),
		newPushMetricsCmd(opts),
		newExportCmd(opts),
		newVersionCmd(),
	)

	return rootCmd
}

// load reads and validates the configuration, then installs the default logger.
func (o *rootOptions) load(cmd *cobra.Command) (*config.Config, error) {
	path := o.configPath
	if path == "" {
		path = config.ProfilePath(o.configDir, config.ResolveProfile(o.profile))
	}

	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	slog.SetDefault(newLogger(cfg.Logging, cmd.ErrOrStderr()))
	slog.Debug("loaded configuration", "path", path)
	return cfg, nil
}

func newLogger(cfg config.LoggingConfig, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	handlerOpts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(w, handlerOpts))
	}
	return slog.New(slog.NewJSONHandler(w, handlerOpts))
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
