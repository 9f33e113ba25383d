// Command labourctl runs the labour event-sourcing system described in
// SPEC_FULL.md: the command processor, process manager, notification
// executor, and read-model projectors, wired together as a single
// supervised process via pkg/runner.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "labourctl",
	Short: "labourctl runs and administers the labour event-sourcing system",
	Long: `labourctl wires the Labour/Notification event-sourced aggregates,
the process manager, the notification executor, and both the synchronous
and durable read-model projectors into one supervised process, and
provides operator subcommands for managing the underlying SQLite store.`,
	Version: fmt.Sprintf("%s (%s)", version, commit),
}

func init() {
	rootCmd.PersistentFlags().String("db", "labourctl.db", "path to the SQLite event store database (or :memory:)")
	rootCmd.PersistentFlags().String("nats-url", "nats://127.0.0.1:4222", "NATS server URL for the domain event bus and effect queue")
	rootCmd.PersistentFlags().String("deployment-id", "dev", "deployment identifier, mixed into the derived subscription-token salt")
	rootCmd.PersistentFlags().String("master-secret", "", "master secret the subscription-token salt is derived from (required; prefer MASTER_SECRET env var)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level: debug, info, warn, error")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
}
