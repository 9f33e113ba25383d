package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run or inspect the event store's schema migrations",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		es, err := openEventStore(cmd)
		if err != nil {
			return err
		}
		defer es.Close()

		if err := es.RunMigrations(); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
		version, err := es.GetMigrationVersion()
		if err != nil {
			return fmt.Errorf("read migration version: %w", err)
		}
		fmt.Printf("migrated to version %d\n", version)
		return nil
	},
}

var migrateVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the currently applied migration version",
	RunE: func(cmd *cobra.Command, args []string) error {
		es, err := openEventStore(cmd)
		if err != nil {
			return err
		}
		defer es.Close()

		version, err := es.GetMigrationVersion()
		if err != nil {
			return fmt.Errorf("read migration version: %w", err)
		}
		fmt.Println(version)
		return nil
	},
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateVersionCmd)
}
