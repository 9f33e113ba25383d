package sqlite

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/kieran-gray/fern-labour-sub001/pkg/store/sqlite/migrate"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// runMigrations runs all pending migrations using our own embedded-SQL migrator.
func runMigrations(db *sql.DB) error {
	m := migrate.New(db, "schema_migrations")

	if err := m.LoadFromFS(migrationsFS, "migrations"); err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	if err := m.Up(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// RunMigrations runs all pending migrations on the event store's database.
func (s *EventStore) RunMigrations() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return runMigrations(s.db)
}

// GetMigrationVersion returns the highest applied migration version.
func (s *EventStore) GetMigrationVersion() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var version int
	err := s.db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&version)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return version, err
}
