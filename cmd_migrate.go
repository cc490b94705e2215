package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/inventory-app/glossary-sync/pkg/config"
	"github.com/inventory-app/glossary-sync/pkg/database"
)

var rollbackSteps int

var migrateCmd = &cobra.Command{
	Use:               "migrate",
	Short:             "Manage the database schema",
	PersistentPreRunE: loadRuntime,
	PersistentPostRun: syncLogger,
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return migrateUp(cfg, logger)
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back the most recent migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := database.OpenSQL(cfg.Database.URL())
		if err != nil {
			return err
		}
		defer db.Close()
		return database.RollbackMigrations(db, rollbackSteps, logger)
	},
}

func init() {
	migrateDownCmd.Flags().IntVar(&rollbackSteps, "steps", 1, "number of migrations to roll back")
	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateDownCmd)
}

func migrateUp(cfg *config.Config, logger *zap.Logger) error {
	db, err := database.OpenSQL(cfg.Database.URL())
	if err != nil {
		return err
	}
	defer db.Close()
	return database.RunMigrations(db, logger)
}
