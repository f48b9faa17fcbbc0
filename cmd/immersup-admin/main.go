package main

import (
	"fmt"
	"os"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/immersup/immersup-api/pkg/config"
	"github.com/immersup/immersup-api/pkg/database"
	"github.com/immersup/immersup-api/pkg/logger"
)

var logr *zap.Logger

// rootCmd is the operator command line. Subcommands connect to the
// database themselves so `--help` works without one.
var rootCmd = &cobra.Command{
	Use:   "immersup-admin",
	Short: "ImmerSup operator toolbox",
	Long: `Operator commands for the ImmerSup platform.

Available subcommands:
  fix-core-permissions - Regenerate core permission display names
  save-group-rights    - Dump group permission codenames to JSON
  restore-group-rights - Reapply group permissions from the JSON dump
  initial-import       - Seed reference data for a deployment goal
  send-notifications   - Run the daily notification sweeps`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		logr, err = logger.New(cfg)
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logr != nil {
			_ = logr.Sync()
		}
	},
}

// openDatabase connects using the same configuration as the API server.
func openDatabase() (*sqlx.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	return db, nil
}

func main() {
	rootCmd.AddCommand(fixCorePermissionsCmd)
	rootCmd.AddCommand(saveGroupRightsCmd)
	rootCmd.AddCommand(restoreGroupRightsCmd)
	rootCmd.AddCommand(initialImportCmd)
	rootCmd.AddCommand(sendNotificationsCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
