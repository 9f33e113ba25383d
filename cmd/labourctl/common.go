package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/kieran-gray/fern-labour-sub001/pkg/store/sqlite"
)

func newLogger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelInfo
	if lv, _ := cmd.Flags().GetString("log-level"); lv != "" {
		_ = level.UnmarshalText([]byte(lv))
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return slog.New(handler)
}

// openEventStore opens the SQLite event store named by --db, running
// migrations immediately so both serve and migrate operate on a current
// schema.
func openEventStore(cmd *cobra.Command) (*sqlite.EventStore, error) {
	dbPath, _ := cmd.Flags().GetString("db")
	var opt sqlite.Option
	if dbPath == ":memory:" {
		opt = sqlite.WithMemoryDatabase()
	} else {
		opt = sqlite.WithFilename(dbPath)
	}
	es, err := sqlite.NewEventStore(opt, sqlite.WithWALMode())
	if err != nil {
		return nil, fmt.Errorf("open event store %s: %w", dbPath, err)
	}
	return es, nil
}

// resolveMasterSecret reads --master-secret, falling back to the
// MASTER_SECRET environment variable; it is the seed config.Load derives
// the subscription-token salt from.
func resolveMasterSecret(cmd *cobra.Command) (string, error) {
	secret, _ := cmd.Flags().GetString("master-secret")
	if secret == "" {
		secret = os.Getenv("MASTER_SECRET")
	}
	if secret == "" {
		return "", fmt.Errorf("a master secret is required: pass --master-secret or set MASTER_SECRET")
	}
	return secret, nil
}
