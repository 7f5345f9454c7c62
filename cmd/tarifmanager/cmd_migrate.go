package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bher20/tarifmanager/internal/migrate"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the database schema",
}

func init() {
	migrateCmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := loadSQLConfig(); err != nil {
					return err
				}
				return migrate.Up(cmd.Context(), cfg.DBDriver, cfg.DBDSN)
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the latest migration",
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := loadSQLConfig(); err != nil {
					return err
				}
				return migrate.Down(cmd.Context(), cfg.DBDriver, cfg.DBDSN)
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Print the state of every migration",
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := loadSQLConfig(); err != nil {
					return err
				}
				return migrate.Status(cmd.Context(), cfg.DBDriver, cfg.DBDSN)
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the current schema version",
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := loadSQLConfig(); err != nil {
					return err
				}
				v, err := migrate.Version(cmd.Context(), cfg.DBDriver, cfg.DBDSN)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), v)
				return nil
			},
		},
	)
	rootCmd.AddCommand(migrateCmd)
}

func loadSQLConfig() error {
	if err := loadConfig(); err != nil {
		return err
	}
	if cfg.DBDriver == "memory" {
		return fmt.Errorf("migrations need a SQL driver; set TARIFMANAGER_DB_DRIVER to sqlite or postgres")
	}
	return nil
}
