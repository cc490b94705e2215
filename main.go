package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/inventory-app/glossary-sync/pkg/config"
	"github.com/inventory-app/glossary-sync/pkg/logging"
)

// Version is set at build time via ldflags
var Version = "dev"

var (
	configPath string
	cfg        *config.Config
	logger     *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:           "glossary-sync",
	Short:         "Keeps item translations linked to the glossary spellings they mention",
	SilenceUsage:  true,
	SilenceErrors: true,
	Version:       Version,
}

// loadRuntime reads the configuration and builds the logger for commands that need them.
func loadRuntime(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.Load(configPath, Version)
	if err != nil {
		return err
	}

	logger, err = logging.NewLogger(cfg.Env, cfg.ZapLevel())
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	logger.Info("Configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("version", cfg.Version),
		zap.String("database", logging.SanitizeConnectionString(cfg.Database.URL())),
		zap.Bool("redis", cfg.Redis.Enabled()),
		zap.Int("concurrency", cfg.Queue.Concurrency),
	)
	return nil
}

func syncLogger(cmd *cobra.Command, args []string) {
	if logger != nil {
		_ = logger.Sync()
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath, "path to the YAML configuration file")

	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(resyncCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", logging.SanitizeError(err))
		os.Exit(1)
	}
}
