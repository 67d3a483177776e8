package main

import (
	"fmt"

	"github.com/dukerupert/starchart/internal/database"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations and exit",
	Args:  cobra.NoArgs,
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	db, err := database.OpenForMigrate(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	applied, err := database.Migrate(cmd.Context(), db)
	if err != nil {
		return err
	}
	for _, m := range applied {
		fmt.Fprintf(cmd.OutOrStdout(), "applied %05d %s\n", m.Version, m.Name)
	}

	version, err := database.Version(cmd.Context(), db)
	if err != nil {
		return err
	}
	logger.Info("database up to date", "path", cfg.DBPath, "version", version, "applied", len(applied))
	return nil
}
