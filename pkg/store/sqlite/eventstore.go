// Package sqlite implements the write-side EventStore and the read-side
// checkpoint/effect-ledger/snapshot stores against a single SQLite
// database, using modernc.org/sqlite's pure-Go driver and the embedded
// migrator in pkg/store/sqlite/migrate.
package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kieran-gray/fern-labour-sub001/pkg/eventsourcing"
)

// EventStore is a SQLite-backed eventsourcing.EventStore. A single
// instance owns one *sql.DB and serializes writes with an RWMutex:
// modernc.org/sqlite serializes at the connection-pool level, but the
// append-then-constrain sequence needs stronger ordering than that alone
// gives, so concurrent appends are additionally serialized in-process.
type EventStore struct {
	mu sync.RWMutex
	db *sql.DB
}

// Option configures an EventStore at construction time.
type Option func(*config)

type config struct {
	dsn          string
	maxOpenConns int
	maxIdleConns int
	walMode      bool
	autoMigrate  bool
}

// WithDSN sets the full SQLite DSN (e.g. "file:/path/to/db.sqlite?_pragma=...").
// WithDSN, WithFilename and WithMemoryDatabase all set the DSN; the last
// one applied wins.
func WithDSN(dsn string) Option {
	return func(c *config) { c.dsn = dsn }
}

// WithFilename opens (or creates) a SQLite database file on disk.
func WithFilename(path string) Option {
	return func(c *config) { c.dsn = "file:" + path }
}

// WithMemoryDatabase opens a private in-memory database, useful for tests.
// Each store gets an isolated database: a private-cache in-memory database
// belongs to one connection, and NewEventStore pins the pool to a single
// connection, so multiple stores in the same test process never share state.
func WithMemoryDatabase() Option {
	return func(c *config) { c.dsn = "file::memory:?cache=private" }
}

// WithMaxOpenConns bounds the connection pool. Default is unlimited, except
// for an in-memory DSN, which is pinned to one connection.
func WithMaxOpenConns(n int) Option {
	return func(c *config) { c.maxOpenConns = n }
}

// WithMaxIdleConns bounds idle pool connections. Default is 2.
func WithMaxIdleConns(n int) Option {
	return func(c *config) { c.maxIdleConns = n }
}

// WithWALMode enables write-ahead logging for better write concurrency.
// Ignored for in-memory databases.
func WithWALMode() Option {
	return func(c *config) { c.walMode = true }
}

// WithAutoMigrate runs pending migrations immediately after opening the
// database, before NewEventStore returns.
func WithAutoMigrate() Option {
	return func(c *config) { c.autoMigrate = true }
}

// NewEventStore opens a SQLite database and returns an EventStore. If none
// of WithDSN/WithFilename/WithMemoryDatabase is supplied, it opens an
// in-memory database.
func NewEventStore(opts ...Option) (*EventStore, error) {
	cfg := &config{dsn: "file::memory:?cache=private", maxIdleConns: 2}
	for _, opt := range opts {
		opt(cfg)
	}

	db, err := sql.Open("sqlite", cfg.dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	switch {
	case cfg.maxOpenConns > 0:
		db.SetMaxOpenConns(cfg.maxOpenConns)
	case strings.Contains(cfg.dsn, ":memory:"):
		// A private-cache in-memory database is per-connection: a second
		// pooled connection would see an empty database. Pin the pool to
		// a single connection so every query hits the same instance.
		db.SetMaxOpenConns(1)
	}
	db.SetMaxIdleConns(cfg.maxIdleConns)

	if cfg.walMode {
		if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}
	if _, err := db.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &EventStore{db: db}

	if cfg.autoMigrate {
		if err := s.RunMigrations(); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	return s, nil
}

// AppendEvents appends events to an aggregate's stream atomically,
// enforcing optimistic concurrency and unique-constraint claims within a
// single transaction.
func (s *EventStore) AppendEvents(aggregateID string, expectedVersion int64, events []*eventsourcing.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.appendEventsTx(tx, aggregateID, expectedVersion, events); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *EventStore) appendEventsTx(tx *sql.Tx, aggregateID string, expectedVersion int64, events []*eventsourcing.Event) error {
	var current int64
	err := tx.QueryRow(
		`SELECT COALESCE(MAX(version), 0) FROM events WHERE aggregate_id = ?`, aggregateID,
	).Scan(&current)
	if err != nil {
		return fmt.Errorf("failed to read current version: %w", err)
	}
	if current != expectedVersion {
		return eventsourcing.ErrConcurrencyConflict
	}

	for _, e := range events {
		for _, c := range e.UniqueConstraints {
			switch c.Operation {
			case eventsourcing.ConstraintClaim:
				var owner string
				err := tx.QueryRow(
					`SELECT aggregate_id FROM unique_constraints WHERE index_name = ? AND value = ?`,
					c.IndexName, c.Value,
				).Scan(&owner)
				if err == nil && owner != aggregateID {
					return eventsourcing.NewUniqueConstraintError(c.IndexName, c.Value, owner)
				}
				if err != nil && err != sql.ErrNoRows {
					return fmt.Errorf("failed to check constraint: %w", err)
				}
				_, err = tx.Exec(
					`INSERT OR REPLACE INTO unique_constraints (index_name, value, aggregate_id, created_at) VALUES (?, ?, ?, ?)`,
					c.IndexName, c.Value, aggregateID, eventsourcing.Now().Unix(),
				)
				if err != nil {
					return fmt.Errorf("failed to claim constraint: %w", err)
				}
			case eventsourcing.ConstraintRelease:
				_, err := tx.Exec(
					`DELETE FROM unique_constraints WHERE index_name = ? AND value = ? AND aggregate_id = ?`,
					c.IndexName, c.Value, aggregateID,
				)
				if err != nil {
					return fmt.Errorf("failed to release constraint: %w", err)
				}
			default:
				return eventsourcing.ErrInvalidConstraintOperation
			}
		}
	}

	for _, e := range events {
		metadata, err := json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
		var constraints sql.NullString
		if len(e.UniqueConstraints) > 0 {
			data, err := json.Marshal(e.UniqueConstraints)
			if err != nil {
				return fmt.Errorf("failed to marshal constraints: %w", err)
			}
			constraints = sql.NullString{String: string(data), Valid: true}
		}

		_, err = tx.Exec(
			`INSERT INTO events (event_id, aggregate_id, aggregate_type, event_type, version, timestamp, data, metadata, constraints)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.ID, e.AggregateID, e.AggregateType, e.EventType, e.Version,
			e.Timestamp.Unix(), e.Data, string(metadata), constraints,
		)
		if err != nil {
			return fmt.Errorf("failed to insert event: %w", err)
		}
	}

	return nil
}

// AppendEventsIdempotent appends events with command-level idempotency,
// recording the command ID and its resulting event IDs so a retried
// command returns the cached result instead of appending twice.
func (s *EventStore) AppendEventsIdempotent(
	aggregateID string,
	expectedVersion int64,
	events []*eventsourcing.Event,
	commandID string,
	ttl time.Duration,
) (*eventsourcing.CommandResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cached, err := s.getCommandResultLocked(commandID); err == nil && cached != nil {
		return cached, nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.appendEventsTx(tx, aggregateID, expectedVersion, events); err != nil {
		return nil, err
	}

	eventIDs := make([]string, len(events))
	for i, e := range events {
		eventIDs[i] = e.ID
	}
	eventIDsJSON, err := json.Marshal(eventIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event ids: %w", err)
	}

	processedAt := eventsourcing.Now()
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	_, err = tx.Exec(
		`INSERT INTO processed_commands (command_id, event_ids, processed_at, expires_at) VALUES (?, ?, ?, ?)`,
		commandID, string(eventIDsJSON), processedAt.Unix(), processedAt.Add(ttl).Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to record processed command: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return &eventsourcing.CommandResult{
		CommandID:        commandID,
		Events:           events,
		AlreadyProcessed: false,
		ProcessedAt:      processedAt,
	}, nil
}

// GetCommandResult retrieves the result of a previously processed
// command, or nil if the command hasn't been processed or its TTL expired.
func (s *EventStore) GetCommandResult(commandID string) (*eventsourcing.CommandResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getCommandResultLocked(commandID)
}

func (s *EventStore) getCommandResultLocked(commandID string) (*eventsourcing.CommandResult, error) {
	var eventIDsJSON string
	var processedAt, expiresAt int64
	err := s.db.QueryRow(
		`SELECT event_ids, processed_at, expires_at FROM processed_commands WHERE command_id = ?`, commandID,
	).Scan(&eventIDsJSON, &processedAt, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query processed command: %w", err)
	}
	if expiresAt < eventsourcing.Now().Unix() {
		return nil, nil
	}

	var eventIDs []string
	if err := json.Unmarshal([]byte(eventIDsJSON), &eventIDs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event ids: %w", err)
	}

	events := make([]*eventsourcing.Event, 0, len(eventIDs))
	for _, id := range eventIDs {
		e, err := s.loadEventByIDLocked(id)
		if err != nil {
			return nil, fmt.Errorf("failed to load event %s: %w", id, err)
		}
		events = append(events, e)
	}

	return &eventsourcing.CommandResult{
		CommandID:        commandID,
		Events:           events,
		AlreadyProcessed: true,
		ProcessedAt:      time.Unix(processedAt, 0).UTC(),
	}, nil
}

func (s *EventStore) loadEventByIDLocked(eventID string) (*eventsourcing.Event, error) {
	row := s.db.QueryRow(
		`SELECT event_id, aggregate_id, aggregate_type, event_type, version, global_position, timestamp, data, metadata, constraints
		 FROM events WHERE event_id = ?`, eventID,
	)
	return scanEvent(row)
}

// LoadEvents loads all events for an aggregate with version > afterVersion,
// ordered by version.
func (s *EventStore) LoadEvents(aggregateID string, afterVersion int64) ([]*eventsourcing.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT event_id, aggregate_id, aggregate_type, event_type, version, global_position, timestamp, data, metadata, constraints
		 FROM events WHERE aggregate_id = ? AND version > ? ORDER BY version ASC`,
		aggregateID, afterVersion,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// LoadAllEvents loads events across every aggregate in global-position
// order, for async projector catch-up.
func (s *EventStore) LoadAllEvents(fromPosition int64, limit int) ([]*eventsourcing.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(
		`SELECT event_id, aggregate_id, aggregate_type, event_type, version, global_position, timestamp, data, metadata, constraints
		 FROM events WHERE global_position > ? ORDER BY global_position ASC LIMIT ?`,
		fromPosition, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query all events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// GetAggregateVersion returns the current version of an aggregate, or 0
// if it doesn't exist.
func (s *EventStore) GetAggregateVersion(aggregateID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var version int64
	err := s.db.QueryRow(
		`SELECT COALESCE(MAX(version), 0) FROM events WHERE aggregate_id = ?`, aggregateID,
	).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to get aggregate version: %w", err)
	}
	return version, nil
}

// CheckUniqueness reports whether a value is available for claiming
// under the given index.
func (s *EventStore) CheckUniqueness(indexName, value string) (bool, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var owner string
	err := s.db.QueryRow(
		`SELECT aggregate_id FROM unique_constraints WHERE index_name = ? AND value = ?`, indexName, value,
	).Scan(&owner)
	if err == sql.ErrNoRows {
		return true, "", nil
	}
	if err != nil {
		return false, "", fmt.Errorf("failed to check uniqueness: %w", err)
	}
	return false, owner, nil
}

// GetConstraintOwner returns the aggregate ID owning a claimed value, or
// "" if unclaimed.
func (s *EventStore) GetConstraintOwner(indexName, value string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var owner string
	err := s.db.QueryRow(
		`SELECT aggregate_id FROM unique_constraints WHERE index_name = ? AND value = ?`, indexName, value,
	).Scan(&owner)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get constraint owner: %w", err)
	}
	return owner, nil
}

// RebuildConstraints clears the unique-constraint index and replays it
// from the full event stream's recorded constraint claims/releases, in
// append order.
func (s *EventStore) RebuildConstraints() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM unique_constraints`); err != nil {
		return fmt.Errorf("failed to clear constraints: %w", err)
	}

	rows, err := tx.Query(
		`SELECT aggregate_id, constraints FROM events WHERE constraints IS NOT NULL ORDER BY global_position ASC`,
	)
	if err != nil {
		return fmt.Errorf("failed to query events with constraints: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var aggregateID string
		var constraintsJSON sql.NullString
		if err := rows.Scan(&aggregateID, &constraintsJSON); err != nil {
			return fmt.Errorf("failed to scan event: %w", err)
		}
		if !constraintsJSON.Valid || constraintsJSON.String == "" {
			continue
		}

		var constraints []eventsourcing.UniqueConstraint
		if err := json.Unmarshal([]byte(constraintsJSON.String), &constraints); err != nil {
			return fmt.Errorf("failed to unmarshal constraints: %w", err)
		}

		for _, c := range constraints {
			switch c.Operation {
			case eventsourcing.ConstraintClaim:
				_, err = tx.Exec(
					`INSERT OR REPLACE INTO unique_constraints (index_name, value, aggregate_id, created_at) VALUES (?, ?, ?, ?)`,
					c.IndexName, c.Value, aggregateID, eventsourcing.Now().Unix(),
				)
			case eventsourcing.ConstraintRelease:
				_, err = tx.Exec(
					`DELETE FROM unique_constraints WHERE index_name = ? AND value = ? AND aggregate_id = ?`,
					c.IndexName, c.Value, aggregateID,
				)
			}
			if err != nil {
				return fmt.Errorf("failed to replay constraint: %w", err)
			}
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate events: %w", err)
	}

	return tx.Commit()
}

// CleanExpiredCommands removes idempotency records past their TTL, a
// maintenance operation intended to run periodically outside the
// EventStore interface proper.
func (s *EventStore) CleanExpiredCommands() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec(`DELETE FROM processed_commands WHERE expires_at < ?`, eventsourcing.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to clean expired commands: %w", err)
	}
	return result.RowsAffected()
}

// DB returns the underlying connection for direct SQL access — used by
// the read-side stores, which share the same database.
func (s *EventStore) DB() *sql.DB {
	return s.db
}

func (s *EventStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEvent(row rowScanner) (*eventsourcing.Event, error) {
	var e eventsourcing.Event
	var timestamp int64
	var metadataJSON string
	var constraintsJSON sql.NullString

	err := row.Scan(
		&e.ID, &e.AggregateID, &e.AggregateType, &e.EventType, &e.Version, &e.GlobalPosition,
		&timestamp, &e.Data, &metadataJSON, &constraintsJSON,
	)
	if err != nil {
		return nil, err
	}

	e.Timestamp = time.Unix(timestamp, 0).UTC()
	if err := json.Unmarshal([]byte(metadataJSON), &e.Metadata); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	if constraintsJSON.Valid && constraintsJSON.String != "" {
		if err := json.Unmarshal([]byte(constraintsJSON.String), &e.UniqueConstraints); err != nil {
			return nil, fmt.Errorf("failed to unmarshal constraints: %w", err)
		}
	}
	return &e, nil
}

func scanEvents(rows *sql.Rows) ([]*eventsourcing.Event, error) {
	var events []*eventsourcing.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate events: %w", err)
	}
	return events, nil
}
