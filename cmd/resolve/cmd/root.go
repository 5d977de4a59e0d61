// Package cmd implements the resolve CLI commands.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/agentstation/resolve/internal/memstore"
	"github.com/agentstation/resolve/internal/sqlitestore"
	"github.com/agentstation/resolve/pkg/adapter"
	"github.com/agentstation/resolve/pkg/config"
	"github.com/agentstation/resolve/pkg/logging"
)

var (
	configPath string
	logLevel   string
	logFormat  string

	cfg *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Entity resolution engine",
	Long: `resolve scores, matches, and merges duplicate records.

Profiles configure field comparators, blocking strategies, and merge
behavior; ambiguous pairs land on a review queue for a human decision.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Missing .env files are fine, only honor one when present.
		_ = godotenv.Load()

		var err error
		if configPath != "" {
			cfg, err = config.Load(configPath)
			if err != nil {
				return err
			}
		} else {
			cfg = config.Default()
			cfg.ApplyEnv()
		}

		if logLevel != "" {
			cfg.Log.Level = logLevel
		}
		if logFormat != "" {
			cfg.Log.Format = logFormat
		}
		configureLogging(cfg.Log)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a resolution profile (YAML)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format (console, json)")
}

// Execute runs the root command with the given context.
func Execute(ctx context.Context, version, commit, date string) error {
	rootCmd.Version = fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

func configureLogging(lc config.LogConfig) {
	level := zerolog.InfoLevel
	if lc.Level != "" {
		parsed, err := zerolog.ParseLevel(lc.Level)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: invalid log level %q, using %q\n", lc.Level, level)
		} else {
			level = parsed
		}
	}
	zerolog.SetGlobalLevel(level)

	if lc.Format == "json" {
		logging.SetDefault(logging.NewJSON(os.Stderr))
	} else {
		logging.SetDefault(logging.NewConsole())
	}
}

// openAdapters builds the persistence bundle named by the store config.
// The returned closer is a no-op for the in-memory store.
func openAdapters() (adapter.Adapters, func() error, error) {
	switch cfg.Store.Driver {
	case config.StoreSQLite:
		store, err := sqlitestore.Open(cfg.Store.Path)
		if err != nil {
			return adapter.Adapters{}, nil, err
		}
		return store.Adapters(), store.Close, nil
	default:
		return memstore.New().Adapters(), func() error { return nil }, nil
	}
}
